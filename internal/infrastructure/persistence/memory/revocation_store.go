// Package memory provides the in-process revocation backend.
package memory

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/turtacn/littlejwt/pkg/constants"
	"github.com/turtacn/littlejwt/pkg/logger"
	"github.com/turtacn/littlejwt/pkg/revocation"
)

var _ revocation.Backend = (*RevocationStore)(nil)

// RevocationStore keeps revoked ids in a go-cache instance. Entries carry
// their own expiry so lookups honour the caller's clock as well as the
// cache's native TTL.
type RevocationStore struct {
	cache  *gocache.Cache
	logger logger.Logger
}

// NewRevocationStore creates a store whose expired items are swept every
// cleanupInterval. A non-positive interval disables sweeping.
func NewRevocationStore(cleanupInterval time.Duration, log logger.Logger) *RevocationStore {
	if log == nil {
		log = logger.L()
	}
	return &RevocationStore{
		cache:  gocache.New(gocache.NoExpiration, cleanupInterval),
		logger: log.WithComponent("memory_revocation"),
	}
}

func (s *RevocationStore) Name() string {
	return string(constants.RevocationDriverCache)
}

func (s *RevocationStore) Contains(_ context.Context, id string, now time.Time) (bool, error) {
	v, ok := s.cache.Get(id)
	if !ok {
		return false, nil
	}
	entry, ok := v.(revocation.Entry)
	if !ok || entry.Expired(now) {
		s.cache.Delete(id)
		return false, nil
	}
	return true, nil
}

func (s *RevocationStore) Put(ctx context.Context, entry revocation.Entry, now time.Time) error {
	ttl := gocache.NoExpiration
	if entry.ExpiresAt != nil {
		ttl = entry.TTL(now)
		if ttl <= 0 {
			s.logger.Debug(ctx, "Skipping already expired revocation", logger.String("id", entry.ID))
			return nil
		}
	}
	s.cache.Set(entry.ID, entry, ttl)
	return nil
}

// Purge sweeps items whose native TTL has passed. Expiry needs no purge to
// take effect.
func (s *RevocationStore) Purge(context.Context, time.Time) error {
	s.cache.DeleteExpired()
	return nil
}

// Len returns the number of cached entries, expired or not.
func (s *RevocationStore) Len() int {
	return s.cache.ItemCount()
}
