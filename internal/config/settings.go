package config

import (
	"fmt"
	"time"

	"github.com/relaygate/go-relay-server/token"
)

const (
	// StoreBackendPostgres keeps token records in the relational store.
	StoreBackendPostgres = "postgres"
	// StoreBackendRedis keeps token records in Redis; sender accounts
	// stay in Postgres either way.
	StoreBackendRedis = "redis"
)

var _ Config = mainConfig{}

func (c mainConfig) GetPort() string {
	port := c.get("PORT", "8080")
	if port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (c mainConfig) GetAppName() string {
	return c.get("APP_NAME", "Relay Token Server")
}

func (c mainConfig) GetEnv() string {
	return c.get("ENV", "DEV")
}

func (c mainConfig) GetPostgresHost() string {
	return c.get("POSTGRES_HOST", "localhost")
}

func (c mainConfig) GetPostgresPort() string {
	return c.get("POSTGRES_PORT", "5432")
}

func (c mainConfig) GetPostgresUser() string {
	return c.get("POSTGRES_USER", "relay")
}

func (c mainConfig) GetPostgresPassword() string {
	return c.get("POSTGRES_PASSWORD", "")
}

func (c mainConfig) GetPostgresDB() string {
	return c.get("POSTGRES_DB", "relay")
}

func (c mainConfig) GetPostgresSSLMode() string {
	return c.get("POSTGRES_SSLMODE", "disable")
}

func (c mainConfig) GetRedisAddr() string {
	return c.get("REDIS_ADDR", "localhost:6379")
}

func (c mainConfig) GetRedisPassword() string {
	return c.get("REDIS_PASSWORD", "")
}

func (c mainConfig) GetRedisDB() int {
	return c.getInt("REDIS_DB", 0)
}

func (c mainConfig) GetKafkaBrokers() []string {
	return c.getStrings("KAFKA_BROKERS", nil)
}

func (c mainConfig) GetKafkaTopic() string {
	return c.get("KAFKA_TOPIC", "relay-events")
}

func (c mainConfig) GetDailyQuota() int {
	return c.getInt("RELAY_DAILY_QUOTA", token.DefaultDailyQuota)
}

func (c mainConfig) GetStoreBackend() string {
	return c.get("STORE_BACKEND", StoreBackendPostgres)
}

func (c mainConfig) GetStorageTimeout() time.Duration {
	return c.getDuration("RELAY_STORAGE_TIMEOUT", 5*time.Second)
}

func (c mainConfig) GetSendTimeout() time.Duration {
	return c.getDuration("RELAY_SEND_TIMEOUT", 30*time.Second)
}
