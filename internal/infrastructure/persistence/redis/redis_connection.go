// Package redis provides the Redis connection and the Redis revocation backend.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/littlejwt/pkg/config"
	"github.com/turtacn/littlejwt/pkg/errors"
	"github.com/turtacn/littlejwt/pkg/logger"
)

// RedisConnection manages the client lifecycle. A comma separated address
// list yields a cluster client; a single address a standalone one.
type RedisConnection struct {
	config        config.RedisConfig
	client        redis.UniversalClient
	logger        logger.Logger
	isInitialized bool
}

// NewRedisConnection creates a connection manager. Call Connect before use.
func NewRedisConnection(cfg config.RedisConfig, log logger.Logger) *RedisConnection {
	if log == nil {
		log = logger.L()
	}
	return &RedisConnection{
		config: cfg,
		logger: log.WithComponent("redis"),
	}
}

// Connect creates the client and verifies it with a ping.
func (rc *RedisConnection) Connect(ctx context.Context) error {
	if rc.isInitialized {
		rc.logger.Warn(ctx, "Redis connection already initialized")
		return nil
	}

	addrs := splitAddrs(rc.config.Addr)
	if len(addrs) == 0 {
		return errors.Config("redis address is required")
	}
	poolSize := rc.config.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        addrs,
		Password:     rc.config.Password,
		DB:           rc.config.DB,
		PoolSize:     poolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxRetries:   3,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		rc.logger.Error(ctx, "Redis ping failed", err, logger.Any("addrs", addrs))
		_ = client.Close()
		return errors.Storage("connect", fmt.Errorf("redis ping failed: %w", err))
	}

	rc.client = client
	rc.isInitialized = true
	rc.logger.Info(ctx, "Redis connection established",
		logger.Any("addrs", addrs),
		logger.Int("pool_size", poolSize),
	)
	return nil
}

// Client returns the client, or nil before Connect.
func (rc *RedisConnection) Client() redis.UniversalClient {
	if !rc.isInitialized {
		return nil
	}
	return rc.client
}

// Ping checks connectivity.
func (rc *RedisConnection) Ping(ctx context.Context) error {
	if !rc.isInitialized {
		return fmt.Errorf("redis connection not initialized")
	}
	return rc.client.Ping(ctx).Err()
}

// Close releases the client.
func (rc *RedisConnection) Close() error {
	if !rc.isInitialized {
		return nil
	}
	if err := rc.client.Close(); err != nil {
		rc.logger.Error(context.Background(), "Failed to close Redis connection", err)
		return err
	}
	rc.isInitialized = false
	rc.logger.Info(context.Background(), "Redis connection closed")
	return nil
}

func splitAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
