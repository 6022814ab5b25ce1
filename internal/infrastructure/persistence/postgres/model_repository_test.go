package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/littlejwt/pkg/mutator"
)

type account struct {
	ID   int64 `gorm:"primaryKey"`
	Name string
}

type tenant struct {
	Slug string `gorm:"primaryKey"`
	Plan string
}

func TestModelRepository(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t).DB()
	require.NoError(t, db.AutoMigrate(&account{}, &tenant{}))
	require.NoError(t, db.Create(&account{ID: 7, Name: "alice"}).Error)
	require.NoError(t, db.Create(&tenant{Slug: "acme", Plan: "pro"}).Error)

	accounts := NewModelRepository[account](db, nil)
	found, err := accounts.Find(ctx, int64(7))
	require.NoError(t, err)
	assert.Equal(t, &account{ID: 7, Name: "alice"}, found)

	_, err = accounts.Find(ctx, int64(8))
	assert.Error(t, err)

	tenants := NewModelRepository[tenant](db, nil)
	found, err = tenants.Find(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "pro", found.(*tenant).Plan)

	id, ok := accounts.PrimaryKeyOf(&account{ID: 3})
	require.True(t, ok)
	assert.Equal(t, int64(3), id)
	_, ok = accounts.PrimaryKeyOf(&tenant{Slug: "x"})
	assert.False(t, ok)
	_, ok = accounts.PrimaryKeyOf(account{})
	assert.False(t, ok)
}

func TestModelMutatorOverGorm(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t).DB()
	require.NoError(t, db.AutoMigrate(&account{}))
	require.NoError(t, db.Create(&account{ID: 7, Name: "alice"}).Error)

	engine, err := mutator.NewEngine(mutator.WithModelRepository("account", NewModelRepository[account](db, nil)))
	require.NoError(t, err)

	wire, err := engine.Serialize(ctx, "owner", mutator.Tag("model:account"), &account{ID: 7}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(7), wire)

	back, err := engine.Unserialize(ctx, "owner", mutator.Tag("model:account"), int64(7), nil)
	require.NoError(t, err)
	assert.Equal(t, &account{ID: 7, Name: "alice"}, back)

	raw, err := engine.Unserialize(ctx, "owner", mutator.Tag("model:account"), int64(99), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(99), raw)
}
