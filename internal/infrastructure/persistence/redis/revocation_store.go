package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/littlejwt/pkg/constants"
	"github.com/turtacn/littlejwt/pkg/logger"
	"github.com/turtacn/littlejwt/pkg/revocation"
)

var _ revocation.Backend = (*RevocationStore)(nil)

// RevocationStore keeps one key per revoked id and lets Redis expire it.
type RevocationStore struct {
	rdb    redis.UniversalClient
	prefix string
	logger logger.Logger
}

// NewRevocationStore creates a store writing keys under prefix.
func NewRevocationStore(rdb redis.UniversalClient, prefix string, log logger.Logger) *RevocationStore {
	if prefix == "" {
		prefix = constants.DefaultRedisKeyPrefix
	}
	if log == nil {
		log = logger.L()
	}
	return &RevocationStore{rdb: rdb, prefix: prefix, logger: log.WithComponent("redis_revocation")}
}

func (s *RevocationStore) key(id string) string {
	return s.prefix + id
}

func (s *RevocationStore) Name() string {
	return string(constants.RevocationDriverRedis)
}

func (s *RevocationStore) Contains(ctx context.Context, id string, _ time.Time) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RevocationStore) Put(ctx context.Context, entry revocation.Entry, now time.Time) error {
	var ttl time.Duration
	if entry.ExpiresAt != nil {
		ttl = entry.TTL(now)
		if ttl <= 0 {
			return nil
		}
	}
	// a zero expiration keeps the key forever
	return s.rdb.Set(ctx, s.key(entry.ID), "1", ttl).Err()
}

// Purge is a no-op: Redis expires keys itself.
func (s *RevocationStore) Purge(context.Context, time.Time) error {
	return nil
}
