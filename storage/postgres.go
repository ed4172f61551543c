// Package storage is the Postgres persistence layer for token records
// and sender accounts. All access goes through gorm, so every query is
// parameterized; nothing in this package concatenates SQL.
package storage

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Open connects to Postgres. The handle is constructed here and passed
// down; there is no package-level connection state.
func Open(cfg Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.Host, cfg.User, cfg.Password, cfg.DBName, cfg.Port, cfg.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "[storage.Open] connect")
	}

	log.Info().Str("db", cfg.DBName).Msg("connected to postgres")
	return db, nil
}

// AutoMigrate creates or updates the account and token tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&AccountModel{}, &TokenModel{})
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
