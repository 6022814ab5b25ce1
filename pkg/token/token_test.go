package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/littlejwt/pkg/claims"
	"github.com/turtacn/littlejwt/pkg/errors"
)

func sampleToken() *Token {
	return New(
		claims.NewSetFrom(map[string]interface{}{"alg": "HS256", "typ": "JWT"}),
		claims.NewSetFrom(map[string]interface{}{"sub": "alice", "iat": int64(1700000000), "admin": true}),
	)
}

func TestTokenIsImmutable(t *testing.T) {
	header := claims.NewSetFrom(map[string]interface{}{"alg": "HS256"})
	tok := New(header, claims.NewSet())

	require.NoError(t, header.Set("alg", "none"))
	assert.Equal(t, "HS256", tok.Header().Value("alg"))
	assert.True(t, errors.Is(tok.Header().Set("kid", "x"), errors.ErrMutationOfImmutable))
}

func TestSignedTokenRoundTrip(t *testing.T) {
	signed, err := NewSigned(sampleToken(), []byte{0xde, 0xad, 0xbe, 0xef})
	require.NoError(t, err)

	wire := signed.String()
	parsed, err := Parse(wire)
	require.NoError(t, err)

	assert.Equal(t, wire, parsed.String())
	assert.Equal(t, signed.Header().All(), parsed.Header().All())
	assert.Equal(t, signed.Payload().All(), parsed.Payload().All())
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, parsed.Signature())
	assert.Equal(t, sampleToken().String(), parsed.SigningInput())
}

func TestParseKeepsRawSegments(t *testing.T) {
	// non-canonical key order must survive untouched for verification
	header := claims.EncodeSegment([]byte(`{"typ":"JWT","alg":"HS256"}`))
	payload := claims.EncodeSegment([]byte(`{"sub":"a"}`))
	wire := header + "." + payload + "."

	parsed, err := Parse(wire)
	require.NoError(t, err)
	assert.Equal(t, header+"."+payload, parsed.SigningInput())
	assert.Equal(t, wire, parsed.String())
	assert.Empty(t, parsed.Signature())
}

func TestParseRejectsMalformedTokens(t *testing.T) {
	valid := sampleToken().String()
	cases := map[string]string{
		"two segments":  valid,
		"four segments": valid + ".sig.extra",
		"bad base64":    "%%%." + claims.EncodeSegment([]byte(`{}`)) + ".",
		"array header":  claims.EncodeSegment([]byte(`[]`)) + "." + claims.EncodeSegment([]byte(`{}`)) + ".",
		"bad json":      claims.EncodeSegment([]byte(`{`)) + "." + claims.EncodeSegment([]byte(`{}`)) + ".",
		"bad signature": valid + ".%%%",
		"empty":         "",
	}
	for name, wire := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(wire)
			assert.True(t, errors.Is(err, errors.ErrCantParseJWT), "got %v", err)
		})
	}
}

func TestMutatedTokenKeepsOriginal(t *testing.T) {
	signed, err := NewSigned(sampleToken(), []byte("sig"))
	require.NoError(t, err)

	mutated := NewMutated(signed, signed.Header(), claims.NewSetFrom(map[string]interface{}{"sub": "ALICE"}))
	assert.Equal(t, "ALICE", mutated.Payload().Value("sub"))
	assert.Same(t, signed, mutated.Original())
	assert.Equal(t, signed.String(), mutated.String())

	got, ok := Signed(mutated)
	require.True(t, ok)
	assert.Same(t, signed, got)

	_, ok = Signed(sampleToken())
	assert.False(t, ok)
	assert.Equal(t, signed.String(), Wire(mutated))
}
