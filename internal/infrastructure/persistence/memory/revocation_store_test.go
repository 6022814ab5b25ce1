package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/littlejwt/pkg/claims"
	"github.com/turtacn/littlejwt/pkg/logger"
	"github.com/turtacn/littlejwt/pkg/revocation"
	"github.com/turtacn/littlejwt/pkg/token"
	"github.com/turtacn/littlejwt/pkg/utils"
)

func parse(t *testing.T, jti string) *token.SignedToken {
	t.Helper()
	p, err := claims.NewSetFrom(map[string]interface{}{"jti": jti}).Encode()
	require.NoError(t, err)
	tok, err := token.Parse("eyJhbGciOiJub25lIn0." + p + ".")
	require.NoError(t, err)
	return tok
}

func TestRevocationStoreExpiry(t *testing.T) {
	ctx := context.Background()
	clock := utils.NewMockClock(time.Now())
	store := NewRevocationStore(0, logger.NewNoopLogger())
	m := revocation.NewManager(store, revocation.WithClock(clock))

	tok := parse(t, "a")
	require.NoError(t, m.Revoke(ctx, tok, 60*time.Second))

	revoked, err := m.IsRevoked(ctx, tok)
	require.NoError(t, err)
	assert.True(t, revoked)

	clock.Advance(61 * time.Second)
	revoked, err = m.IsRevoked(ctx, tok)
	require.NoError(t, err)
	assert.False(t, revoked)
	assert.Zero(t, store.Len())
}

func TestRevocationStoreForever(t *testing.T) {
	ctx := context.Background()
	clock := utils.NewMockClock(time.Now())
	m := revocation.NewManager(NewRevocationStore(time.Minute, nil), revocation.WithClock(clock))

	tok := parse(t, "b")
	require.NoError(t, m.Revoke(ctx, tok, 0))
	clock.Advance(24 * 365 * time.Hour)

	revoked, err := m.IsRevoked(ctx, tok)
	require.NoError(t, err)
	assert.True(t, revoked)
	require.NoError(t, m.Purge(ctx))

	revoked, err = m.IsRevoked(ctx, parse(t, "other"))
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRevocationStoreSkipsExpiredEntries(t *testing.T) {
	store := NewRevocationStore(0, nil)
	now := time.Now()
	past := now.Add(-time.Second)
	require.NoError(t, store.Put(context.Background(), revocation.Entry{ID: "x", ExpiresAt: &past}, now))
	assert.Zero(t, store.Len())
	assert.Equal(t, "cache", store.Name())
}
