package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// PostgresOptions tunes the pool and query logging of the primary database.
type PostgresOptions struct {
	DSN                string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetime    time.Duration
	SlowQueryThreshold time.Duration
}

func (o PostgresOptions) withDefaults() PostgresOptions {
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = 25
	}
	if o.MaxIdleConns <= 0 || o.MaxIdleConns > o.MaxOpenConns {
		o.MaxIdleConns = o.MaxOpenConns / 2
	}
	if o.ConnMaxLifetime <= 0 {
		o.ConnMaxLifetime = 30 * time.Minute
	}
	if o.SlowQueryThreshold <= 0 {
		o.SlowQueryThreshold = 500 * time.Millisecond
	}
	return o
}

// ConnectPostgres opens the pool, verifies it with a ping and routes gorm's
// slow-query and error output through zerolog. Driver errors are translated
// so repositories can match gorm.ErrDuplicatedKey.
func ConnectPostgres(ctx context.Context, opts PostgresOptions, logger zerolog.Logger) (*gorm.DB, error) {
	if opts.DSN == "" {
		return nil, errors.New("database url must not be empty")
	}
	opts = opts.withDefaults()

	db, err := gorm.Open(postgres.Open(opts.DSN), &gorm.Config{
		TranslateError: true,
		Logger:         newGormLogger(logger, opts.SlowQueryThreshold),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access postgres pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger.Info().
		Int("max_open_conns", opts.MaxOpenConns).
		Int("max_idle_conns", opts.MaxIdleConns).
		Dur("slow_query_threshold", opts.SlowQueryThreshold).
		Msg("postgres connected")

	return db, nil
}

// newGormLogger reports slow queries and errors at warn level. Missing rows
// are expected on lookups and stay silent.
func newGormLogger(logger zerolog.Logger, slow time.Duration) gormlogger.Interface {
	sink := gormWriter{logger: logger.With().Str("component", "gorm").Logger()}
	return gormlogger.New(sink, gormlogger.Config{
		SlowThreshold:             slow,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

type gormWriter struct {
	logger zerolog.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.logger.Warn().Msgf(format, args...)
}
