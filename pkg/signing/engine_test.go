package signing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/littlejwt/pkg/claims"
	"github.com/turtacn/littlejwt/pkg/errors"
	"github.com/turtacn/littlejwt/pkg/keys"
	"github.com/turtacn/littlejwt/pkg/token"
)

func newToken() *token.Token {
	return token.New(
		claims.NewSetFrom(map[string]interface{}{"typ": "JWT"}),
		claims.NewSetFrom(map[string]interface{}{"sub": "alice", "iat": int64(1700000000)}),
	)
}

func randomKey(t *testing.T, alg keys.Algorithm) *keys.Key {
	t.Helper()
	k, err := keys.NewRandom(alg, 0)
	require.NoError(t, err)
	return k
}

func TestSignVerifyRoundTrip(t *testing.T) {
	engine := NewEngine()
	for _, alg := range keys.Algorithms() {
		t.Run(string(alg), func(t *testing.T) {
			key := randomKey(t, alg)

			signed, err := engine.Sign(newToken(), key)
			require.NoError(t, err)
			assert.Equal(t, string(alg), signed.Header().Value("alg"))

			ok, err := engine.VerifyToken(signed, key)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = engine.Verify(signed.Header(), signed.Payload(), key, signed.Signature())
			require.NoError(t, err)
			assert.True(t, ok)

			parsed, err := token.Parse(signed.String())
			require.NoError(t, err)
			ok, err = engine.VerifyToken(parsed, key)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestHashMatchesSign(t *testing.T) {
	engine := NewEngine()
	key := randomKey(t, keys.HS256)

	signed, err := engine.Sign(newToken(), key)
	require.NoError(t, err)

	sig, err := engine.Hash(signed.Header(), signed.Payload(), key)
	require.NoError(t, err)
	assert.Equal(t, signed.Signature(), sig)
}

func TestTamperedPayloadFailsVerification(t *testing.T) {
	engine := NewEngine()
	for _, alg := range []keys.Algorithm{keys.HS512, keys.RS256, keys.ES256, keys.EdDSA} {
		t.Run(string(alg), func(t *testing.T) {
			key := randomKey(t, alg)
			signed, err := engine.Sign(newToken(), key)
			require.NoError(t, err)

			forged := signed.Payload().Mutable()
			require.NoError(t, forged.Set("sub", "mallory"))
			ok, err := engine.Verify(signed.Header(), forged, key, signed.Signature())
			require.NoError(t, err)
			assert.False(t, ok)

			// splice a different payload segment into the wire form
			segment, err := forged.Encode()
			require.NoError(t, err)
			parts := strings.Split(signed.String(), ".")
			parsed, err := token.Parse(parts[0] + "." + segment + "." + parts[2])
			require.NoError(t, err)
			ok, err = engine.VerifyToken(parsed, key)
			require.NoError(t, err)
			assert.False(t, ok)

			// flip one byte of the raw payload JSON, keeping it valid
			raw, err := claims.DecodeSegment(parts[1])
			require.NoError(t, err)
			raw[len(raw)-3] ^= 0x01
			parsed, err = token.Parse(parts[0] + "." + claims.EncodeSegment(raw) + "." + parts[2])
			require.NoError(t, err)
			ok, err = engine.VerifyToken(parsed, key)
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = engine.VerifyToken(signed, key)
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = engine.Verify(signed.Header(), signed.Payload(), key, flip(signed.Signature()))
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func flip(b []byte) []byte {
	out := append([]byte(nil), b...)
	if len(out) > 0 {
		out[0] ^= 0xff
	}
	return out
}

func TestDifferentKeyFailsVerification(t *testing.T) {
	engine := NewEngine()
	keyA := randomKey(t, keys.HS256)
	keyB := randomKey(t, keys.HS256)

	signed, err := engine.Sign(newToken(), keyA)
	require.NoError(t, err)
	ok, err := engine.VerifyToken(signed, keyB)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNoneSignature(t *testing.T) {
	engine := NewEngine()
	key := keys.NewNone()

	signed, err := engine.Sign(newToken(), key)
	require.NoError(t, err)
	assert.Empty(t, signed.Signature())
	assert.True(t, strings.HasSuffix(signed.String(), "."))

	ok, err := engine.Verify(signed.Header(), signed.Payload(), key, []byte("x"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSignRejectsConflictingHeaderAlgorithm(t *testing.T) {
	engine := NewEngine()
	tok := token.New(claims.NewSetFrom(map[string]interface{}{"alg": "RS256"}), claims.NewSet())

	_, err := engine.Sign(tok, randomKey(t, keys.HS256))
	assert.True(t, errors.Is(err, errors.ErrIncompatibleKeyAlgorithm))
}

func TestSignStampsKeyID(t *testing.T) {
	key, err := keys.NewSecret(keys.HS256, []byte(strings.Repeat("k", 32)), keys.WithKeyID("k1"))
	require.NoError(t, err)

	signed, err := NewEngine().Sign(newToken(), key)
	require.NoError(t, err)
	assert.Equal(t, "k1", signed.Header().Value("kid"))
	assert.Equal(t, "JWT", signed.Header().Value("typ"))
}

func TestSignWithoutPrivateMaterial(t *testing.T) {
	signing := randomKey(t, keys.ES256)
	public, err := keys.FromJWK(signing.JWK())
	require.NoError(t, err)

	_, err = NewEngine().Sign(newToken(), public)
	assert.True(t, errors.Is(err, errors.ErrMissingKey))

	_, err = NewEngine().Sign(newToken(), nil)
	assert.True(t, errors.Is(err, errors.ErrMissingKey))
}

func TestUnencodableClaimFailsSigning(t *testing.T) {
	tok := token.New(claims.NewSet(), claims.NewSetFrom(map[string]interface{}{"bad": func() {}}))
	_, err := NewEngine().Sign(tok, randomKey(t, keys.HS256))
	assert.True(t, errors.Is(err, errors.ErrInvalidClaimValue))
}
