//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/littlejwt/pkg/config"
	"github.com/turtacn/littlejwt/pkg/revocation"
	"github.com/turtacn/littlejwt/pkg/utils"
)

func TestRevocationStorePostgres(t *testing.T) {
	if os.Getenv("SKIP_DOCKER_TESTS") == "true" {
		t.Skip("Skipping Docker-dependent tests")
	}
	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("littlejwt"),
		tcpostgres.WithUsername("littlejwt"),
		tcpostgres.WithPassword("littlejwt"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, err := NewDBConnection(ctx, &config.DatabaseConfig{Driver: "postgres", DSN: dsn}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	store := NewRevocationStore(conn.DB(), config.DatabaseConfig{}, nil)
	require.NoError(t, store.EnsureSchema(ctx))

	clock := utils.NewMockClock(time.Now())
	m := revocation.NewManager(store, revocation.WithClock(clock))
	tok := parse(t, map[string]interface{}{"jti": "pg"})
	require.NoError(t, m.Revoke(ctx, tok, time.Minute))

	revoked, err := m.IsRevoked(ctx, tok)
	require.NoError(t, err)
	assert.True(t, revoked)

	clock.Advance(2 * time.Minute)
	revoked, err = m.IsRevoked(ctx, tok)
	require.NoError(t, err)
	assert.False(t, revoked)
	require.NoError(t, m.Purge(ctx))
}
