// Package keys holds the key and algorithm registry: algorithm identifiers,
// immutable key values validated once at construction, and loaders for every
// supported key source.
package keys

import (
	"crypto/elliptic"

	"github.com/golang-jwt/jwt/v5"

	"github.com/turtacn/littlejwt/pkg/errors"
)

// Algorithm is a JWS algorithm identifier.
type Algorithm string

const (
	HS256 Algorithm = "HS256"
	HS384 Algorithm = "HS384"
	HS512 Algorithm = "HS512"
	RS256 Algorithm = "RS256"
	RS384 Algorithm = "RS384"
	RS512 Algorithm = "RS512"
	PS256 Algorithm = "PS256"
	PS384 Algorithm = "PS384"
	PS512 Algorithm = "PS512"
	ES256 Algorithm = "ES256"
	ES384 Algorithm = "ES384"
	ES512 Algorithm = "ES512"
	EdDSA Algorithm = "EdDSA"

	// None signs with an empty signature. It is never a default.
	None Algorithm = "none"
)

// Family groups algorithms by the key material they need.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyHMAC
	FamilyRSA
	FamilyRSAPSS
	FamilyECDSA
	FamilyEdDSA
	FamilyNone
)

func (f Family) String() string {
	switch f {
	case FamilyHMAC:
		return "hmac"
	case FamilyRSA:
		return "rsa"
	case FamilyRSAPSS:
		return "rsa-pss"
	case FamilyECDSA:
		return "ecdsa"
	case FamilyEdDSA:
		return "eddsa"
	case FamilyNone:
		return "none"
	default:
		return "unknown"
	}
}

type algorithmInfo struct {
	family    Family
	minSecret int
	curve     elliptic.Curve
}

var registry = map[Algorithm]algorithmInfo{
	HS256: {family: FamilyHMAC, minSecret: 32},
	HS384: {family: FamilyHMAC, minSecret: 48},
	HS512: {family: FamilyHMAC, minSecret: 64},
	RS256: {family: FamilyRSA},
	RS384: {family: FamilyRSA},
	RS512: {family: FamilyRSA},
	PS256: {family: FamilyRSAPSS},
	PS384: {family: FamilyRSAPSS},
	PS512: {family: FamilyRSAPSS},
	ES256: {family: FamilyECDSA, curve: elliptic.P256()},
	ES384: {family: FamilyECDSA, curve: elliptic.P384()},
	ES512: {family: FamilyECDSA, curve: elliptic.P521()},
	EdDSA: {family: FamilyEdDSA},
	None:  {family: FamilyNone},
}

// Algorithms lists every supported identifier.
func Algorithms() []Algorithm {
	return []Algorithm{
		HS256, HS384, HS512,
		RS256, RS384, RS512,
		PS256, PS384, PS512,
		ES256, ES384, ES512,
		EdDSA, None,
	}
}

// ParseAlgorithm validates an identifier. An empty identifier is rejected so
// that a missing configuration never falls back to none.
func ParseAlgorithm(id string) (Algorithm, error) {
	alg := Algorithm(id)
	if _, ok := registry[alg]; !ok {
		return "", errors.InvalidHashAlgorithm(id)
	}
	return alg, nil
}

// Valid reports whether a is a known identifier.
func (a Algorithm) Valid() bool {
	_, ok := registry[a]
	return ok
}

// Family returns the key family a needs.
func (a Algorithm) Family() Family {
	return registry[a].family
}

// IsMAC reports whether a is a symmetric keyed-hash algorithm.
func (a Algorithm) IsMAC() bool {
	return a.Family() == FamilyHMAC
}

// IsAsymmetric reports whether a signs with a private key.
func (a Algorithm) IsAsymmetric() bool {
	switch a.Family() {
	case FamilyRSA, FamilyRSAPSS, FamilyECDSA, FamilyEdDSA:
		return true
	}
	return false
}

// MinSecretLength is the minimum HMAC secret length in bytes, 0 for other families.
func (a Algorithm) MinSecretLength() int {
	return registry[a].minSecret
}

// Curve returns the elliptic curve an ECDSA algorithm requires.
func (a Algorithm) Curve() elliptic.Curve {
	return registry[a].curve
}

// SigningMethod returns the primitive implementing a.
func (a Algorithm) SigningMethod() (jwt.SigningMethod, error) {
	if !a.Valid() {
		return nil, errors.InvalidHashAlgorithm(string(a))
	}
	if a == None {
		return jwt.SigningMethodNone, nil
	}
	m := jwt.GetSigningMethod(string(a))
	if m == nil {
		return nil, errors.HashAlgorithmNotFound(string(a))
	}
	return m, nil
}

func (a Algorithm) String() string {
	return string(a)
}
