package config

import "time"

type Config interface {
	EnvConfig
	DatabaseConfig
	RedisConfig
	KafkaConfig
	RelayConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
}

type DatabaseConfig interface {
	GetPostgresHost() string
	GetPostgresPort() string
	GetPostgresUser() string
	GetPostgresPassword() string
	GetPostgresDB() string
	GetPostgresSSLMode() string
}

type RedisConfig interface {
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
}

type KafkaConfig interface {
	GetKafkaBrokers() []string
	GetKafkaTopic() string
}

type RelayConfig interface {
	GetDailyQuota() int
	GetStoreBackend() string
	GetStorageTimeout() time.Duration
	GetSendTimeout() time.Duration
}

type mainConfig struct {
	Values
}

// New builds the configuration from the environment, with an optional
// YAML file (CONFIG_FILE) supplying values the environment leaves
// unset. The result is constructed once at startup and passed down;
// there is no module-level config state.
func New() Config {
	return mainConfig{NewValues()}
}
