package token

import (
	"strings"

	"github.com/turtacn/littlejwt/pkg/claims"
	"github.com/turtacn/littlejwt/pkg/errors"
)

// SignedToken is a token with its signature. It keeps the exact header and
// payload segments it was built from so verification runs on the wire bytes.
type SignedToken struct {
	token      *Token
	rawHeader  string
	rawPayload string
	signature  []byte
}

// NewSigned attaches signature to t. It is meant for signing engines; other
// callers obtain signed tokens from Parse.
func NewSigned(t *Token, signature []byte) (*SignedToken, error) {
	h, err := t.header.Encode()
	if err != nil {
		return nil, err
	}
	p, err := t.payload.Encode()
	if err != nil {
		return nil, err
	}
	return &SignedToken{
		token:      t,
		rawHeader:  h,
		rawPayload: p,
		signature:  append([]byte(nil), signature...),
	}, nil
}

func (s *SignedToken) Header() *claims.Set  { return s.token.header }
func (s *SignedToken) Payload() *claims.Set { return s.token.payload }

// Unsigned returns the token without its signature.
func (s *SignedToken) Unsigned() *Token {
	return s.token
}

// Signature returns a copy of the raw signature bytes.
func (s *SignedToken) Signature() []byte {
	return append([]byte(nil), s.signature...)
}

// SigningInput returns the header and payload segments exactly as signed or received.
func (s *SignedToken) SigningInput() string {
	return s.rawHeader + "." + s.rawPayload
}

// String returns the three-part wire form.
func (s *SignedToken) String() string {
	return s.SigningInput() + "." + claims.EncodeSegment(s.signature)
}

// Parse decodes a three-part wire token. Two-part tokens are rejected: wire
// tokens always carry a signature segment, possibly empty.
func Parse(wire string) (*SignedToken, error) {
	parts := strings.Split(strings.TrimSpace(wire), ".")
	if len(parts) != 3 {
		return nil, errors.CantParseJWT("expected 3 segments")
	}

	header, err := claims.DecodeSet(parts[0])
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeCantParseJWT, "cannot decode header")
	}
	payload, err := claims.DecodeSet(parts[1])
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeCantParseJWT, "cannot decode payload")
	}
	signature, err := claims.DecodeSegment(parts[2])
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeCantParseJWT, "cannot decode signature")
	}

	return &SignedToken{
		token:      &Token{header: header, payload: payload},
		rawHeader:  parts[0],
		rawPayload: parts[1],
		signature:  signature,
	}, nil
}
