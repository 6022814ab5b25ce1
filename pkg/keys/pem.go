package keys

import (
	"crypto/x509"
	"encoding/pem"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/pkcs12"

	"github.com/turtacn/littlejwt/pkg/errors"
)

// FromPEM builds a key from PEM data. A private key yields a signing key, a
// public key a verification-only key. The passphrase applies to legacy
// encrypted RSA keys only.
func FromPEM(alg Algorithm, data []byte, passphrase string, opts ...Option) (*Key, error) {
	if _, err := ParseAlgorithm(string(alg)); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.MissingKey("PEM data is empty")
	}
	if passphrase != "" && alg.Family() != FamilyRSA && alg.Family() != FamilyRSAPSS {
		return nil, errors.InvalidKey("encrypted PEM keys are only supported for RSA")
	}

	switch alg.Family() {
	case FamilyRSA, FamilyRSAPSS:
		var priv interface{}
		var err error
		if passphrase != "" {
			priv, err = jwt.ParseRSAPrivateKeyFromPEMWithPassword(data, passphrase) //nolint:staticcheck
		} else {
			priv, err = jwt.ParseRSAPrivateKeyFromPEM(data)
		}
		if err == nil {
			return NewPrivate(alg, priv, opts...)
		}
		pub, pubErr := jwt.ParseRSAPublicKeyFromPEM(data)
		if pubErr != nil {
			return nil, pemError(alg, data, err)
		}
		return NewPublic(alg, pub, opts...)
	case FamilyECDSA:
		if priv, err := jwt.ParseECPrivateKeyFromPEM(data); err == nil {
			return NewPrivate(alg, priv, opts...)
		}
		pub, err := jwt.ParseECPublicKeyFromPEM(data)
		if err != nil {
			return nil, pemError(alg, data, err)
		}
		return NewPublic(alg, pub, opts...)
	case FamilyEdDSA:
		if priv, err := jwt.ParseEdPrivateKeyFromPEM(data); err == nil {
			return NewPrivate(alg, priv, opts...)
		}
		pub, err := jwt.ParseEdPublicKeyFromPEM(data)
		if err != nil {
			return nil, pemError(alg, data, err)
		}
		return NewPublic(alg, pub, opts...)
	default:
		return nil, errors.IncompatibleKeyAlgorithm(string(alg), data)
	}
}

// pemError distinguishes a well-formed key of the wrong family from garbage.
func pemError(alg Algorithm, data []byte, cause error) error {
	block, _ := pem.Decode(data)
	if block == nil {
		return errors.Wrap(cause, errors.CodeInvalidKey, "data is not PEM encoded")
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return errors.IncompatibleKeyAlgorithm(string(alg), key)
	}
	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		return errors.IncompatibleKeyAlgorithm(string(alg), key)
	}
	return errors.Wrap(cause, errors.CodeInvalidKey, "cannot parse %s key", alg.Family())
}

// FromCertificatePEM builds a verification key from the public key of a PEM
// X.509 certificate.
func FromCertificatePEM(alg Algorithm, data []byte, opts ...Option) (*Key, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, errors.InvalidKey("data is not a PEM certificate")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidKey, "cannot parse certificate")
	}
	return NewPublic(alg, cert.PublicKey, opts...)
}

// FromPKCS12 builds a signing key from a PKCS#12 bundle holding one private
// key and its certificate.
func FromPKCS12(alg Algorithm, data []byte, password string, opts ...Option) (*Key, error) {
	if len(data) == 0 {
		return nil, errors.MissingKey("PKCS#12 data is empty")
	}
	priv, _, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidKey, "cannot decode PKCS#12 bundle")
	}
	return NewPrivate(alg, priv, opts...)
}
