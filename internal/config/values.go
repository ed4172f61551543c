package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const configFileEnvVar = "CONFIG_FILE"

// Values resolves settings in order: environment variable, config
// file, fallback.
type Values struct {
	file map[string]string
}

func NewValues() Values {
	v := Values{file: map[string]string{}}

	path := os.Getenv(configFileEnvVar)
	if path == "" {
		return v
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("config file not readable, using environment only")
		return v
	}
	if err := yaml.Unmarshal(data, &v.file); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("config file not parseable, using environment only")
		v.file = map[string]string{}
	}
	return v
}

func (v Values) get(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if value, ok := v.file[key]; ok && value != "" {
		return value
	}
	return fallback
}

func (v Values) getInt(key string, fallback int) int {
	raw := v.get(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func (v Values) getDuration(key string, fallback time.Duration) time.Duration {
	raw := v.get(key, "")
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}

func (v Values) getStrings(key string, fallback []string) []string {
	raw := v.get(key, "")
	if raw == "" {
		return fallback
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
