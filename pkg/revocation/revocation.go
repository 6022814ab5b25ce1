// Package revocation tracks revoked tokens. Store is what validation rules and
// callers use; a Backend persists entries by id and is implemented by the
// cache, redis and database stores.
package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/spf13/cast"

	"github.com/turtacn/littlejwt/pkg/constants"
	"github.com/turtacn/littlejwt/pkg/errors"
	"github.com/turtacn/littlejwt/pkg/logger"
	"github.com/turtacn/littlejwt/pkg/token"
	"github.com/turtacn/littlejwt/pkg/utils"
)

// Store answers and records revocations.
type Store interface {
	// IsRevoked reports whether tok is revoked and not yet expired.
	IsRevoked(ctx context.Context, tok token.Claims) (bool, error)

	// Revoke records tok. A negative ttl uses the store default; zero never expires.
	Revoke(ctx context.Context, tok token.Claims, ttl time.Duration) error

	// Purge removes expired entries where the backend does not expire them itself.
	Purge(ctx context.Context) error
}

// Entry is one revoked token id. A nil ExpiresAt never expires.
type Entry struct {
	ID        string
	ExpiresAt *time.Time
}

// Expired reports whether the entry expired at or before now.
func (e Entry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

// TTL returns the remaining lifetime at now; zero for entries that never expire.
func (e Entry) TTL(now time.Time) time.Duration {
	if e.ExpiresAt == nil {
		return 0
	}
	return e.ExpiresAt.Sub(now)
}

// Backend persists entries.
type Backend interface {
	Name() string
	Contains(ctx context.Context, id string, now time.Time) (bool, error)
	Put(ctx context.Context, entry Entry, now time.Time) error
	Purge(ctx context.Context, now time.Time) error
}

// ID returns the revocation id of tok: the jti claim when present, otherwise
// the hex SHA-256 of the wire token. The claims behind a mutated token are
// read from its wire form.
func ID(tok token.Claims) string {
	payload := tok.Payload()
	if signed, ok := token.Signed(tok); ok {
		payload = signed.Payload()
	}
	if v, ok := payload.Get(constants.ClaimID); ok && v != nil {
		if s, err := cast.ToStringE(v); err == nil && s != "" {
			return s
		}
	}
	sum := sha256.Sum256([]byte(token.Wire(tok)))
	return hex.EncodeToString(sum[:])
}

// Manager implements Store on top of a Backend.
type Manager struct {
	backend    Backend
	defaultTTL time.Duration
	clock      utils.Clock
	log        logger.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithDefaultTTL sets the ttl used for negative Revoke ttls.
func WithDefaultTTL(d time.Duration) Option {
	return func(m *Manager) { m.defaultTTL = d }
}

// WithClock sets the clock expiries are computed against.
func WithClock(c utils.Clock) Option {
	return func(m *Manager) { m.clock = utils.ClockOrSystem(c) }
}

// WithLogger sets the manager logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// NewManager wraps backend.
func NewManager(backend Backend, opts ...Option) *Manager {
	m := &Manager{
		backend:    backend,
		defaultTTL: constants.DefaultRevocationTTL,
		clock:      utils.SystemClock{},
		log:        logger.L(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.WithComponent("revocation").WithFields(logger.String("driver", backend.Name()))
	return m
}

// Driver names the backend.
func (m *Manager) Driver() string {
	return m.backend.Name()
}

func (m *Manager) IsRevoked(ctx context.Context, tok token.Claims) (bool, error) {
	id := ID(tok)
	revoked, err := m.backend.Contains(ctx, id, m.clock.Now())
	if err != nil {
		m.log.Error(ctx, "Revocation lookup failed", err, logger.String("id", id))
		return false, storageError("lookup", err)
	}
	return revoked, nil
}

func (m *Manager) Revoke(ctx context.Context, tok token.Claims, ttl time.Duration) error {
	now := m.clock.Now()
	entry := Entry{ID: ID(tok)}
	if ttl < 0 {
		ttl = m.defaultTTL
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		entry.ExpiresAt = &exp
	}
	if err := m.backend.Put(ctx, entry, now); err != nil {
		m.log.Error(ctx, "Revocation write failed", err, logger.String("id", entry.ID))
		return storageError("revoke", err)
	}
	m.log.Info(ctx, "Token revoked", logger.String("id", entry.ID), logger.Duration("ttl", ttl))
	return nil
}

func (m *Manager) Purge(ctx context.Context) error {
	if err := m.backend.Purge(ctx, m.clock.Now()); err != nil {
		return storageError("purge", err)
	}
	return nil
}

func storageError(op string, err error) error {
	if _, ok := errors.AsJWTError(err); ok {
		return err
	}
	return errors.Storage(op, err)
}

// Noop is a Backend that never records anything.
type Noop struct{}

func (Noop) Name() string { return string(constants.RevocationDriverNone) }

func (Noop) Contains(context.Context, string, time.Time) (bool, error) { return false, nil }

func (Noop) Put(context.Context, Entry, time.Time) error { return nil }

func (Noop) Purge(context.Context, time.Time) error { return nil }
