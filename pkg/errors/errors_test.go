package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrappedErrorsMatchSentinels(t *testing.T) {
	err := fmt.Errorf("parse header: %w", CantParseJWT("bad base64"))

	assert.True(t, Is(err, ErrCantParseJWT))
	assert.False(t, Is(err, ErrInvalidKey))
	assert.True(t, IsCode(err, CodeCantParseJWT))
	assert.Equal(t, CodeCantParseJWT, CodeOf(err))
}

func TestWithCauseDoesNotMutateSentinel(t *testing.T) {
	cause := stderrors.New("boom")
	err := ErrStorage.WithCause(cause)

	assert.Nil(t, ErrStorage.Unwrap())
	assert.Same(t, cause, stderrors.Unwrap(err))
	assert.True(t, stderrors.Is(err, cause))
}

func TestInvalidClaimValueCarriesData(t *testing.T) {
	ch := make(chan int)
	err := InvalidClaimValue("ch", ch, stderrors.New("unsupported type"))

	jwtErr, ok := AsJWTError(err)
	require.True(t, ok)
	assert.Equal(t, "ch", jwtErr.Metadata()["claim"])
	assert.Equal(t, ch, jwtErr.Metadata()["value"])
	assert.Contains(t, err.Error(), "unsupported type")
	assert.Equal(t, ErrInvalidClaimValue.Description(), jwtErr.Description())
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(stderrors.New("plain")))
	_, ok := AsJWTError(nil)
	assert.False(t, ok)
}
