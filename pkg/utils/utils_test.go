package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/littlejwt/pkg/errors"
)

type nestedSample struct {
	DefaultTTL int `validate:"gte=0"`
}

type sample struct {
	Algorithm  string `validate:"required,oneof=HS256 RS256"`
	Revocation nestedSample
}

func TestValidateStruct(t *testing.T) {
	require.NoError(t, ValidateStruct(sample{Algorithm: "HS256"}))

	err := ValidateStruct(sample{Algorithm: "XX", Revocation: nestedSample{DefaultTTL: -1}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfig))

	jwtErr, ok := errors.AsJWTError(err)
	require.True(t, ok)
	assert.Equal(t, "must be one of: HS256 RS256", jwtErr.Metadata()["algorithm"])
	assert.Equal(t, "must be greater than or equal to 0", jwtErr.Metadata()["revocation.default_ttl"])
}

func TestIsUUID(t *testing.T) {
	assert.True(t, IsUUID("3fa85f64-5717-4562-b3fc-2c963f66afa6"))
	assert.False(t, IsUUID("not-a-uuid"))
}

func TestMockClock(t *testing.T) {
	start := time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)
	c.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())

	assert.IsType(t, SystemClock{}, ClockOrSystem(nil))
	assert.Same(t, c, ClockOrSystem(c))
}
