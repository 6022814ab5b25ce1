// Package signing produces and verifies token signatures. The primitive is
// chosen from the key's declared algorithm; golang-jwt supplies the
// HMAC, RSA, RSA-PSS, ECDSA, EdDSA and none implementations.
package signing

import (
	"context"
	stderrors "errors"

	"github.com/golang-jwt/jwt/v5"

	"github.com/turtacn/littlejwt/pkg/claims"
	"github.com/turtacn/littlejwt/pkg/constants"
	"github.com/turtacn/littlejwt/pkg/errors"
	"github.com/turtacn/littlejwt/pkg/keys"
	"github.com/turtacn/littlejwt/pkg/logger"
	"github.com/turtacn/littlejwt/pkg/token"
)

// Engine signs and verifies. It holds no per-call state and is safe for
// concurrent use.
type Engine struct {
	log logger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine creates a signing engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{log: logger.L()}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.WithComponent("signing")
	return e
}

// Hash returns the signature of the canonical signing input of header and payload.
func (e *Engine) Hash(header, payload *claims.Set, key *keys.Key) ([]byte, error) {
	input, err := token.New(header, payload).SigningInput()
	if err != nil {
		return nil, err
	}
	return e.sign(input, key)
}

// Verify reports whether signature matches header and payload under key. A
// mismatch is (false, nil); an unusable key is an error.
func (e *Engine) Verify(header, payload *claims.Set, key *keys.Key, signature []byte) (bool, error) {
	input, err := token.New(header, payload).SigningInput()
	if err != nil {
		return false, err
	}
	return e.verify(input, key, signature)
}

// Sign stamps the key's algorithm (and kid, when the key has one) into the
// header and signs the result. A header that already names a different
// algorithm is rejected.
func (e *Engine) Sign(t *token.Token, key *keys.Key) (*token.SignedToken, error) {
	if key == nil {
		return nil, errors.MissingKey("no signing key")
	}
	alg := string(key.Algorithm())

	header := t.Header().Mutable()
	if v, ok := header.Get(constants.HeaderAlgorithm); ok && v != alg {
		return nil, errors.New(errors.CodeIncompatibleKeyAlgorithm,
			"header declares %v but the key is %s", v, alg).WithMetadata("alg", alg)
	}
	_ = header.Set(constants.HeaderAlgorithm, alg)
	if !header.Has(constants.HeaderType) {
		_ = header.Set(constants.HeaderType, constants.TokenTypeJWT)
	}
	if key.ID() != "" && !header.Has(constants.HeaderKeyID) {
		_ = header.Set(constants.HeaderKeyID, key.ID())
	}

	unsigned := token.New(header, t.Payload())
	input, err := unsigned.SigningInput()
	if err != nil {
		return nil, err
	}
	signature, err := e.sign(input, key)
	if err != nil {
		return nil, err
	}
	return token.NewSigned(unsigned, signature)
}

// VerifyToken checks the signature of a signed token against the exact
// segments it was parsed from.
func (e *Engine) VerifyToken(t *token.SignedToken, key *keys.Key) (bool, error) {
	return e.verify(t.SigningInput(), key, t.Signature())
}

func (e *Engine) sign(input string, key *keys.Key) ([]byte, error) {
	if key == nil {
		return nil, errors.MissingKey("no signing key")
	}
	method, err := key.Algorithm().SigningMethod()
	if err != nil {
		return nil, err
	}
	material, err := key.SigningMaterial()
	if err != nil {
		return nil, err
	}
	if key.Algorithm() == keys.None {
		material = jwt.UnsafeAllowNoneSignatureType
	}

	signature, err := method.Sign(input, material)
	if err != nil {
		return nil, classify(key, material, err)
	}
	e.log.Debug(context.Background(), "token signed", logger.String("alg", string(key.Algorithm())))
	return signature, nil
}

func (e *Engine) verify(input string, key *keys.Key, signature []byte) (bool, error) {
	if key == nil {
		return false, errors.MissingKey("no verification key")
	}
	method, err := key.Algorithm().SigningMethod()
	if err != nil {
		return false, err
	}
	material := key.VerificationMaterial()
	if key.Algorithm() == keys.None {
		material = jwt.UnsafeAllowNoneSignatureType
	}

	err = method.Verify(input, signature, material)
	if err == nil {
		return true, nil
	}
	if classified := classify(key, material, err); isKeyError(err) {
		return false, classified
	}
	e.log.Debug(context.Background(), "signature mismatch",
		logger.String("alg", string(key.Algorithm())), logger.Err(err))
	return false, nil
}

func isKeyError(err error) bool {
	return stderrors.Is(err, jwt.ErrInvalidKeyType) ||
		stderrors.Is(err, jwt.ErrInvalidKey) ||
		stderrors.Is(err, jwt.ErrHashUnavailable)
}

func classify(key *keys.Key, material interface{}, err error) error {
	alg := string(key.Algorithm())
	switch {
	case stderrors.Is(err, jwt.ErrInvalidKeyType):
		return errors.IncompatibleKeyAlgorithm(alg, material).WithCause(err)
	case stderrors.Is(err, jwt.ErrInvalidKey):
		return errors.Wrap(err, errors.CodeMissingKey, "key material rejected by %s", alg)
	case stderrors.Is(err, jwt.ErrHashUnavailable):
		return errors.HashAlgorithmNotFound(alg).WithCause(err)
	default:
		return errors.Wrap(err, errors.CodeInvalidKey, "%s signing failed", alg)
	}
}
