// Package postgres provides the SQL connection, the durable revocation
// backend and a gorm-backed model repository. PostgreSQL is the production
// target; SQLite serves tests and single-node setups.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/turtacn/littlejwt/pkg/config"
	"github.com/turtacn/littlejwt/pkg/errors"
	"github.com/turtacn/littlejwt/pkg/logger"
)

// DBConnection owns a gorm handle and, for PostgreSQL, the pgx pool under it.
type DBConnection struct {
	db     *gorm.DB
	pool   *pgxpool.Pool
	config *config.DatabaseConfig
	logger logger.Logger
}

// NewDBConnection opens the configured database and pings it.
func NewDBConnection(ctx context.Context, cfg *config.DatabaseConfig, log logger.Logger) (*DBConnection, error) {
	if cfg == nil {
		return nil, errors.Config("database configuration is required")
	}
	if log == nil {
		log = logger.L()
	}
	log = log.WithComponent("database")

	gormCfg := &gorm.Config{Logger: gormlogger.Discard}
	conn := &DBConnection{config: cfg, logger: log}

	var err error
	switch cfg.Driver {
	case "postgres":
		conn.pool, err = openPool(ctx, cfg.GetDSN())
		if err != nil {
			log.Error(ctx, "Failed to create PostgreSQL pool", err, logger.String("host", cfg.Host))
			return nil, errors.Storage("connect", err)
		}
		conn.db, err = gorm.Open(postgres.New(postgres.Config{Conn: stdlib.OpenDBFromPool(conn.pool)}), gormCfg)
	case "sqlite", "":
		conn.db, err = gorm.Open(sqlite.Open(cfg.GetDSN()), gormCfg)
	default:
		return nil, errors.Config("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		conn.closePool()
		log.Error(ctx, "Failed to open database", err, logger.String("driver", cfg.Driver))
		return nil, errors.Storage("connect", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	log.Info(ctx, "Database connection established", logger.String("driver", conn.db.Dialector.Name()))
	return conn, nil
}

func openPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return pgxpool.NewWithConfig(connectCtx, poolConfig)
}

// DB returns the gorm handle.
func (c *DBConnection) DB() *gorm.DB {
	return c.db
}

// Ping verifies the database answers.
func (c *DBConnection) Ping(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return errors.Storage("ping", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		c.logger.Error(ctx, "Database ping failed", err)
		return errors.Storage("ping", err)
	}
	c.logger.Debug(ctx, "Database ping successful", logger.Int64("latency_ms", time.Since(start).Milliseconds()))
	return nil
}

// Close closes the database and the pool.
func (c *DBConnection) Close() error {
	var sqlDB *sql.DB
	var err error
	if c.db != nil {
		if sqlDB, err = c.db.DB(); err == nil {
			err = sqlDB.Close()
		}
	}
	c.closePool()
	return err
}

func (c *DBConnection) closePool() {
	if c.pool != nil {
		c.pool.Close()
		c.pool = nil
	}
}
