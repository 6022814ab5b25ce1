package keys

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"

	"github.com/turtacn/littlejwt/pkg/errors"
)

// RandomRSABits is the modulus size of generated RSA keys.
const RandomRSABits = 2048

// NewRandom generates fresh key material for alg. For HMAC algorithms size is
// the secret length in bytes, raised to the algorithm minimum when smaller.
func NewRandom(alg Algorithm, size int, opts ...Option) (*Key, error) {
	if _, err := ParseAlgorithm(string(alg)); err != nil {
		return nil, err
	}
	switch alg.Family() {
	case FamilyHMAC:
		if size < alg.MinSecretLength() {
			size = alg.MinSecretLength()
		}
		secret := make([]byte, size)
		if _, err := rand.Read(secret); err != nil {
			return nil, errors.Wrap(err, errors.CodeMissingKey, "cannot generate random secret")
		}
		return NewSecret(alg, secret, opts...)
	case FamilyRSA, FamilyRSAPSS:
		priv, err := rsa.GenerateKey(rand.Reader, RandomRSABits)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeMissingKey, "cannot generate RSA key")
		}
		return NewPrivate(alg, priv, opts...)
	case FamilyECDSA:
		priv, err := ecdsa.GenerateKey(alg.Curve(), rand.Reader)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeMissingKey, "cannot generate EC key")
		}
		return NewPrivate(alg, priv, opts...)
	case FamilyEdDSA:
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeMissingKey, "cannot generate ed25519 key")
		}
		return NewPrivate(alg, priv, opts...)
	default:
		return NewNone(opts...), nil
	}
}
