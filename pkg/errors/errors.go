// Package errors defines the structured error taxonomy for littlejwt.
// Every failure surfaced by the engines carries a Code so callers can branch
// with errors.Is against the exported sentinels without string matching.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code identifies a class of failure.
type Code string

const (
	// CodeCantParseJWT covers malformed wire strings, bad base64 and bad JSON
	CodeCantParseJWT Code = "cant_parse_jwt"

	// CodeInvalidClaimValue is raised when a claim value cannot be JSON-encoded
	CodeInvalidClaimValue Code = "invalid_claim_value"

	// CodeInvalidHashAlgorithm is raised for an unknown algorithm id
	CodeInvalidHashAlgorithm Code = "invalid_hash_algorithm"

	// CodeHashAlgorithmNotFound is raised when no implementation is available for an algorithm
	CodeHashAlgorithmNotFound Code = "hash_algorithm_not_found"

	// CodeIncompatibleKeyAlgorithm is raised when key material does not fit the algorithm
	CodeIncompatibleKeyAlgorithm Code = "incompatible_key_algorithm"

	// CodeMissingKey is raised when required key material is absent
	CodeMissingKey Code = "missing_key"

	// CodeInvalidKey is raised by key-shape validation at construction time
	CodeInvalidKey Code = "invalid_key"

	// CodeMutationOfImmutable is raised when an immutable claim set is modified
	CodeMutationOfImmutable Code = "mutation_of_immutable"

	// CodeCantResolveMutator is raised when a mutator definition has no handler
	CodeCantResolveMutator Code = "cant_resolve_mutator"

	// CodeStorage wraps revocation backend failures
	CodeStorage Code = "storage"

	// CodeConfig reports invalid configuration
	CodeConfig Code = "config"
)

// ================================================================================
// Base Error Interface
// ================================================================================

// JWTError is a structured error with a code, a description and metadata.
type JWTError interface {
	error

	// Code returns the failure class
	Code() Code

	// Description returns a human-readable description of the failure class
	Description() string

	// Unwrap returns the underlying error for error chain support
	Unwrap() error

	// WithCause returns a copy carrying cause in its chain
	WithCause(cause error) JWTError

	// WithMetadata returns a copy with an additional context value
	WithMetadata(key string, value interface{}) JWTError

	// Metadata returns all metadata
	Metadata() map[string]interface{}
}

type baseError struct {
	code        Code
	description string
	message     string
	cause       error
	metadata    map[string]interface{}
}

func (e *baseError) Error() string {
	msg := e.message
	if msg == "" {
		msg = e.description
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *baseError) Code() Code {
	return e.code
}

func (e *baseError) Description() string {
	return e.description
}

func (e *baseError) Unwrap() error {
	return e.cause
}

// Is reports whether target carries the same code, so wrapped instances match
// the package sentinels.
func (e *baseError) Is(target error) bool {
	t, ok := target.(JWTError)
	if !ok {
		return false
	}
	return t.Code() == e.code
}

func (e *baseError) clone() *baseError {
	c := *e
	c.metadata = make(map[string]interface{}, len(e.metadata))
	for k, v := range e.metadata {
		c.metadata[k] = v
	}
	return &c
}

func (e *baseError) WithCause(cause error) JWTError {
	c := e.clone()
	c.cause = cause
	return c
}

func (e *baseError) WithMetadata(key string, value interface{}) JWTError {
	c := e.clone()
	c.metadata[key] = value
	return c
}

func (e *baseError) Metadata() map[string]interface{} {
	return e.metadata
}

// NewError creates a JWTError with the given code, description and message.
func NewError(code Code, description, message string) JWTError {
	return &baseError{
		code:        code,
		description: description,
		message:     message,
		metadata:    make(map[string]interface{}),
	}
}

// ================================================================================
// Sentinels
// ================================================================================

var (
	ErrCantParseJWT             = NewError(CodeCantParseJWT, "the token could not be parsed", "")
	ErrInvalidClaimValue        = NewError(CodeInvalidClaimValue, "a claim value cannot be encoded as JSON", "")
	ErrInvalidHashAlgorithm     = NewError(CodeInvalidHashAlgorithm, "the algorithm identifier is not recognized", "")
	ErrHashAlgorithmNotFound    = NewError(CodeHashAlgorithmNotFound, "no implementation is available for the algorithm", "")
	ErrIncompatibleKeyAlgorithm = NewError(CodeIncompatibleKeyAlgorithm, "the key material is incompatible with the algorithm", "")
	ErrMissingKey               = NewError(CodeMissingKey, "required key material is missing", "")
	ErrInvalidKey               = NewError(CodeInvalidKey, "the key is invalid", "")
	ErrMutationOfImmutable      = NewError(CodeMutationOfImmutable, "the claim set is immutable", "")
	ErrCantResolveMutator       = NewError(CodeCantResolveMutator, "the mutator definition cannot be resolved", "")
	ErrStorage                  = NewError(CodeStorage, "the revocation store failed", "")
	ErrConfig                   = NewError(CodeConfig, "the configuration is invalid", "")
)

// ================================================================================
// Constructors
// ================================================================================

// New creates a JWTError with the description of the code's sentinel.
func New(code Code, format string, args ...interface{}) JWTError {
	return NewError(code, describe(code), fmt.Sprintf(format, args...))
}

// Wrap wraps err into a JWTError with the given code and message.
func Wrap(err error, code Code, format string, args ...interface{}) JWTError {
	return New(code, format, args...).WithCause(err)
}

// CantParseJWT reports a malformed token.
func CantParseJWT(reason string) JWTError {
	return New(CodeCantParseJWT, "cannot parse token: %s", reason)
}

// InvalidClaimValue reports a claim that cannot be encoded. The offending key
// and value are kept in the metadata.
func InvalidClaimValue(key string, value interface{}, cause error) JWTError {
	return New(CodeInvalidClaimValue, "claim %q has a value that cannot be encoded", key).
		WithMetadata("claim", key).
		WithMetadata("value", value).
		WithCause(cause)
}

// InvalidHashAlgorithm reports an unknown algorithm id.
func InvalidHashAlgorithm(alg string) JWTError {
	return New(CodeInvalidHashAlgorithm, "unknown algorithm %q", alg).WithMetadata("alg", alg)
}

// HashAlgorithmNotFound reports an algorithm without an available implementation.
func HashAlgorithmNotFound(alg string) JWTError {
	return New(CodeHashAlgorithmNotFound, "algorithm %q is not available", alg).WithMetadata("alg", alg)
}

// IncompatibleKeyAlgorithm reports key material that cannot be used with alg.
func IncompatibleKeyAlgorithm(alg string, material interface{}) JWTError {
	return New(CodeIncompatibleKeyAlgorithm, "key of type %T cannot be used with %s", material, alg).
		WithMetadata("alg", alg)
}

// MissingKey reports absent key material.
func MissingKey(reason string) JWTError {
	return New(CodeMissingKey, "missing key: %s", reason)
}

// InvalidKey reports a key that failed shape validation.
func InvalidKey(reason string) JWTError {
	return New(CodeInvalidKey, "invalid key: %s", reason)
}

// MutationOfImmutable reports a write against a frozen claim set.
func MutationOfImmutable(key string) JWTError {
	return New(CodeMutationOfImmutable, "cannot modify claim %q of an immutable claim set", key).
		WithMetadata("claim", key)
}

// CantResolveMutator reports a definition without a registered handler.
func CantResolveMutator(definition string) JWTError {
	return New(CodeCantResolveMutator, "cannot resolve mutator %q", definition).
		WithMetadata("definition", definition)
}

// Storage wraps a revocation backend failure.
func Storage(op string, err error) JWTError {
	return Wrap(err, CodeStorage, "revocation store %s failed", op).WithMetadata("operation", op)
}

// Config reports an invalid configuration value.
func Config(format string, args ...interface{}) JWTError {
	return New(CodeConfig, format, args...)
}

func describe(code Code) string {
	for _, s := range []JWTError{
		ErrCantParseJWT, ErrInvalidClaimValue, ErrInvalidHashAlgorithm,
		ErrHashAlgorithmNotFound, ErrIncompatibleKeyAlgorithm, ErrMissingKey,
		ErrInvalidKey, ErrMutationOfImmutable, ErrCantResolveMutator,
		ErrStorage, ErrConfig,
	} {
		if s.Code() == code {
			return s.Description()
		}
	}
	return string(code)
}

// ================================================================================
// Error Utilities
// ================================================================================

// AsJWTError finds the first JWTError in err's chain.
func AsJWTError(err error) (JWTError, bool) {
	var jwtErr JWTError
	if stderrors.As(err, &jwtErr) {
		return jwtErr, true
	}
	return nil, false
}

// IsCode reports whether err's chain contains a JWTError with the given code.
func IsCode(err error, code Code) bool {
	jwtErr, ok := AsJWTError(err)
	return ok && jwtErr.Code() == code
}

// CodeOf returns the code of the first JWTError in err's chain, or "" if none.
func CodeOf(err error) Code {
	if jwtErr, ok := AsJWTError(err); ok {
		return jwtErr.Code()
	}
	return ""
}

// Is is errors.Is from the standard library, re-exported so callers only import one package.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As is errors.As from the standard library.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}
