package keys

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"
	"math/big"

	"github.com/turtacn/littlejwt/pkg/claims"
	"github.com/turtacn/littlejwt/pkg/errors"
)

// FromJWK builds a key from a JSON Web Key. The alg member is mandatory and
// each key type must carry its required members: oct needs k, RSA needs n and
// e, EC needs crv, x and y, OKP needs crv and x. A private member (d) makes a
// signing key.
func FromJWK(jwk map[string]interface{}, opts ...Option) (*Key, error) {
	algID, _ := jwk["alg"].(string)
	alg, err := ParseAlgorithm(algID)
	if err != nil {
		return nil, err
	}
	if kid, ok := jwk["kid"].(string); ok && kid != "" {
		opts = append([]Option{WithKeyID(kid)}, opts...)
	}
	if use, ok := jwk["use"].(string); ok && use != "" {
		opts = append([]Option{WithUse(Use(use))}, opts...)
	}

	kty, _ := jwk["kty"].(string)
	switch kty {
	case "oct":
		k, err := member(jwk, kty, "k")
		if err != nil {
			return nil, err
		}
		return NewSecret(alg, k, opts...)
	case "RSA":
		return rsaFromJWK(alg, jwk, opts)
	case "EC":
		return ecFromJWK(alg, jwk, opts)
	case "OKP":
		return okpFromJWK(alg, jwk, opts)
	case "":
		return nil, errors.InvalidKey("JWK requires kty")
	default:
		return nil, errors.InvalidKey(fmt.Sprintf("unsupported kty %q", kty))
	}
}

func rsaFromJWK(alg Algorithm, jwk map[string]interface{}, opts []Option) (*Key, error) {
	n, err := member(jwk, "RSA", "n")
	if err != nil {
		return nil, err
	}
	e, err := member(jwk, "RSA", "e")
	if err != nil {
		return nil, err
	}
	pub := &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(new(big.Int).SetBytes(e).Int64())}
	if _, ok := jwk["d"]; !ok {
		return NewPublic(alg, pub, opts...)
	}

	d, err := member(jwk, "RSA", "d")
	if err != nil {
		return nil, err
	}
	p, err := member(jwk, "RSA", "p")
	if err != nil {
		return nil, err
	}
	q, err := member(jwk, "RSA", "q")
	if err != nil {
		return nil, err
	}
	priv := &rsa.PrivateKey{
		PublicKey: *pub,
		D:         new(big.Int).SetBytes(d),
		Primes:    []*big.Int{new(big.Int).SetBytes(p), new(big.Int).SetBytes(q)},
	}
	if err := priv.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidKey, "RSA private key is inconsistent")
	}
	priv.Precompute()
	return NewPrivate(alg, priv, opts...)
}

func ecFromJWK(alg Algorithm, jwk map[string]interface{}, opts []Option) (*Key, error) {
	crv, _ := jwk["crv"].(string)
	x, errX := member(jwk, "EC", "x")
	y, errY := member(jwk, "EC", "y")
	if crv == "" || errX != nil || errY != nil {
		return nil, errors.InvalidKey("EC key requires x, y and crv")
	}
	var curve elliptic.Curve
	switch crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, errors.InvalidKey(fmt.Sprintf("unsupported curve %q", crv))
	}
	pub := &ecdsa.PublicKey{Curve: curve, X: new(big.Int).SetBytes(x), Y: new(big.Int).SetBytes(y)}
	if !curve.IsOnCurve(pub.X, pub.Y) {
		return nil, errors.InvalidKey("EC point is not on the curve")
	}
	if _, ok := jwk["d"]; !ok {
		return NewPublic(alg, pub, opts...)
	}
	d, err := member(jwk, "EC", "d")
	if err != nil {
		return nil, err
	}
	return NewPrivate(alg, &ecdsa.PrivateKey{PublicKey: *pub, D: new(big.Int).SetBytes(d)}, opts...)
}

func okpFromJWK(alg Algorithm, jwk map[string]interface{}, opts []Option) (*Key, error) {
	crv, _ := jwk["crv"].(string)
	x, err := member(jwk, "OKP", "x")
	if crv == "" || err != nil {
		return nil, errors.InvalidKey("OKP key requires crv and x")
	}
	if crv != "Ed25519" {
		return nil, errors.InvalidKey(fmt.Sprintf("unsupported curve %q", crv))
	}
	if _, ok := jwk["d"]; !ok {
		return NewPublic(alg, ed25519.PublicKey(x), opts...)
	}
	d, err := member(jwk, "OKP", "d")
	if err != nil {
		return nil, err
	}
	if len(d) != ed25519.SeedSize {
		return nil, errors.InvalidKey("ed25519 seed has the wrong size")
	}
	return NewPrivate(alg, ed25519.NewKeyFromSeed(d), opts...)
}

func member(jwk map[string]interface{}, kty, name string) ([]byte, error) {
	s, _ := jwk[name].(string)
	if s == "" {
		return nil, errors.InvalidKey(fmt.Sprintf("%s key requires %s", kty, name))
	}
	b, err := claims.DecodeSegment(s)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidKey, "JWK member %s is not base64url", name)
	}
	return b, nil
}
