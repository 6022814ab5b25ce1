package keys

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"math/big"

	"github.com/turtacn/littlejwt/pkg/claims"
	"github.com/turtacn/littlejwt/pkg/errors"
	"github.com/turtacn/littlejwt/pkg/logger"
)

// Use is the JWK "use" parameter.
type Use string

const (
	UseSignature  Use = "sig"
	UseEncryption Use = "enc"
)

// Key is immutable key material bound to one algorithm. It is validated once
// when built and is safe to share between goroutines.
type Key struct {
	alg     Algorithm
	use     Use
	id      string
	secret  []byte
	private crypto.PrivateKey
	public  crypto.PublicKey
	params  map[string]string
}

type keyOptions struct {
	id         string
	use        Use
	allowEmpty bool
	logger     logger.Logger
}

// Option configures key construction.
type Option func(*keyOptions)

// WithKeyID sets the kid.
func WithKeyID(id string) Option {
	return func(o *keyOptions) { o.id = id }
}

// WithUse sets the usage tag. Defaults to sig.
func WithUse(u Use) Option {
	return func(o *keyOptions) { o.use = u }
}

// AllowEmptySecret accepts an empty HMAC secret with a warning instead of failing.
func AllowEmptySecret() Option {
	return func(o *keyOptions) { o.allowEmpty = true }
}

// WithLogger sets the logger used for construction warnings.
func WithLogger(l logger.Logger) Option {
	return func(o *keyOptions) { o.logger = l }
}

func applyOptions(opts []Option) keyOptions {
	o := keyOptions{use: UseSignature, logger: logger.L()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newKey(alg Algorithm, o keyOptions) *Key {
	return &Key{alg: alg, use: o.use, id: o.id, params: make(map[string]string)}
}

// NewSecret builds an HMAC key. The secret must be at least
// alg.MinSecretLength() bytes; an empty secret fails with MissingKey unless
// AllowEmptySecret is given.
func NewSecret(alg Algorithm, secret []byte, opts ...Option) (*Key, error) {
	if _, err := ParseAlgorithm(string(alg)); err != nil {
		return nil, err
	}
	if !alg.IsMAC() {
		return nil, errors.IncompatibleKeyAlgorithm(string(alg), secret)
	}
	o := applyOptions(opts)
	switch {
	case len(secret) == 0 && o.allowEmpty:
		o.logger.Warn(context.Background(), "empty HMAC secret accepted", logger.String("alg", string(alg)))
	case len(secret) == 0:
		return nil, errors.MissingKey("HMAC secret is empty")
	case len(secret) < alg.MinSecretLength():
		return nil, errors.InvalidKey("HMAC secret is shorter than required").
			WithMetadata("alg", string(alg)).
			WithMetadata("min_length", alg.MinSecretLength()).
			WithMetadata("length", len(secret))
	}

	k := newKey(alg, o)
	k.secret = append([]byte(nil), secret...)
	k.params["kty"] = "oct"
	return k, nil
}

// NewPrivate builds an asymmetric signing key. The public half is derived
// from priv.
func NewPrivate(alg Algorithm, priv crypto.PrivateKey, opts ...Option) (*Key, error) {
	if _, err := ParseAlgorithm(string(alg)); err != nil {
		return nil, err
	}
	if priv == nil {
		return nil, errors.MissingKey("private key is nil")
	}

	var pub crypto.PublicKey
	switch p := priv.(type) {
	case *rsa.PrivateKey:
		pub = &p.PublicKey
	case *ecdsa.PrivateKey:
		pub = &p.PublicKey
	case ed25519.PrivateKey:
		if len(p) != ed25519.PrivateKeySize {
			return nil, errors.InvalidKey("ed25519 private key has the wrong size")
		}
		pub = p.Public()
	default:
		return nil, errors.IncompatibleKeyAlgorithm(string(alg), priv)
	}

	k, err := NewPublic(alg, pub, opts...)
	if err != nil {
		return nil, err
	}
	k.private = priv
	return k, nil
}

// NewPublic builds a verification-only asymmetric key.
func NewPublic(alg Algorithm, pub crypto.PublicKey, opts ...Option) (*Key, error) {
	if _, err := ParseAlgorithm(string(alg)); err != nil {
		return nil, err
	}
	if pub == nil {
		return nil, errors.MissingKey("public key is nil")
	}
	k := newKey(alg, applyOptions(opts))

	switch p := pub.(type) {
	case *rsa.PublicKey:
		if f := alg.Family(); f != FamilyRSA && f != FamilyRSAPSS {
			return nil, errors.IncompatibleKeyAlgorithm(string(alg), pub)
		}
		if p.N == nil || p.E == 0 {
			return nil, errors.InvalidKey("RSA key requires n and e")
		}
		k.params["kty"] = "RSA"
		k.params["n"] = encodeBigInt(p.N, 0)
		k.params["e"] = encodeBigInt(big.NewInt(int64(p.E)), 0)
	case *ecdsa.PublicKey:
		if alg.Family() != FamilyECDSA {
			return nil, errors.IncompatibleKeyAlgorithm(string(alg), pub)
		}
		if p.Curve == nil || p.X == nil || p.Y == nil {
			return nil, errors.InvalidKey("EC key requires x, y and crv")
		}
		if p.Curve != alg.Curve() {
			return nil, errors.IncompatibleKeyAlgorithm(string(alg), pub).
				WithMetadata("crv", p.Curve.Params().Name)
		}
		size := (p.Curve.Params().BitSize + 7) / 8
		k.params["kty"] = "EC"
		k.params["crv"] = p.Curve.Params().Name
		k.params["x"] = encodeBigInt(p.X, size)
		k.params["y"] = encodeBigInt(p.Y, size)
	case ed25519.PublicKey:
		if alg.Family() != FamilyEdDSA {
			return nil, errors.IncompatibleKeyAlgorithm(string(alg), pub)
		}
		if len(p) != ed25519.PublicKeySize {
			return nil, errors.InvalidKey("ed25519 public key has the wrong size")
		}
		k.params["kty"] = "OKP"
		k.params["crv"] = "Ed25519"
		k.params["x"] = claims.EncodeSegment(p)
	default:
		return nil, errors.IncompatibleKeyAlgorithm(string(alg), pub)
	}

	k.public = pub
	return k, nil
}

// NewNone returns the insecure key for the none algorithm. It has to be
// requested explicitly.
func NewNone(opts ...Option) *Key {
	k := newKey(None, applyOptions(opts))
	return k
}

// Algorithm returns the declared algorithm.
func (k *Key) Algorithm() Algorithm { return k.alg }

// Use returns the usage tag.
func (k *Key) Use() Use { return k.use }

// ID returns the key id, possibly empty.
func (k *Key) ID() string { return k.id }

// CanSign reports whether the key holds signing material.
func (k *Key) CanSign() bool {
	switch k.alg.Family() {
	case FamilyHMAC, FamilyNone:
		return true
	default:
		return k.private != nil
	}
}

// SigningMaterial returns the value the signing primitive expects.
func (k *Key) SigningMaterial() (interface{}, error) {
	switch k.alg.Family() {
	case FamilyHMAC:
		return k.secret, nil
	case FamilyNone:
		return nil, nil
	default:
		if k.private == nil {
			return nil, errors.MissingKey("key has no private material")
		}
		return k.private, nil
	}
}

// VerificationMaterial returns the value the verification primitive expects.
func (k *Key) VerificationMaterial() interface{} {
	switch k.alg.Family() {
	case FamilyHMAC:
		return k.secret
	case FamilyNone:
		return nil
	default:
		return k.public
	}
}

// Param returns a JWK parameter such as kty, n, e, crv, x or y.
func (k *Key) Param(name string) (string, bool) {
	v, ok := k.params[name]
	return v, ok
}

// JWK returns the public JWK representation. Secrets are never exported.
func (k *Key) JWK() map[string]interface{} {
	out := map[string]interface{}{
		"alg": string(k.alg),
		"use": string(k.use),
	}
	if k.id != "" {
		out["kid"] = k.id
	}
	for name, v := range k.params {
		out[name] = v
	}
	return out
}

func encodeBigInt(n *big.Int, size int) string {
	if size > 0 {
		return claims.EncodeSegment(n.FillBytes(make([]byte, size)))
	}
	return claims.EncodeSegment(n.Bytes())
}
