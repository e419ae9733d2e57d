// Package database opens the Postgres connections the K-line service's
// GORM-backed registry repository and sqlx-backed candle/intraday
// repositories share, both over the same pooled *sql.DB.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Config holds the Postgres connection parameters and pool tuning knobs.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string

	MaxOpenConnections    int
	MaxIdleConnections    int
	MaxConnectionLifeTime time.Duration
	Debug                 bool
}

func (c Config) dsn() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, sslmode)
}

// Connection wraps the GORM handle (used by the universe registry) and the
// sqlx handle (used by the per-resolution candle and intraday
// repositories), both backed by the same underlying *sql.DB pool.
type Connection struct {
	GORM *gorm.DB
	SQLX *sqlx.DB
}

// Open connects to Postgres, applies the pool settings and returns both
// the GORM and sqlx handles over the same pool plus a cleanup func.
func Open(ctx context.Context, logger *zap.Logger, cfg Config) (*Connection, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("connecting to database", zap.String("host", cfg.Host), zap.String("name", cfg.Name))

	gormLog := gormlogger.Default
	if !cfg.Debug {
		gormLog = gormlogger.Discard
	}

	gormDB, err := gorm.Open(postgres.Open(cfg.dsn()), &gorm.Config{
		PrepareStmt: true,
		Logger:      gormLog,
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "open postgres via gorm")
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not get sql.DB from gorm")
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConnections)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConnections)
	sqlDB.SetConnMaxLifetime(cfg.MaxConnectionLifeTime)

	sqlxDB := sqlx.NewDb(sqlDB, "postgres")

	cleanup := func() {
		if err := sqlDB.Close(); err != nil {
			logger.Error("failed to close db connections", zap.Error(err))
		}
	}

	return &Connection{GORM: gormDB, SQLX: sqlxDB}, cleanup, nil
}
