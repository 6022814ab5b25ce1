// Package token models unsigned, signed and mutated JSON Web Tokens and
// their wire form.
package token

import (
	"github.com/turtacn/littlejwt/pkg/claims"
)

// Claims is the read view shared by every token shape.
type Claims interface {
	Header() *claims.Set
	Payload() *claims.Set
}

// Token is an unsigned header and payload. Both sets are immutable.
type Token struct {
	header  *claims.Set
	payload *claims.Set
}

// New returns a token over frozen copies of header and payload.
func New(header, payload *claims.Set) *Token {
	return &Token{header: header.Freeze(), payload: payload.Freeze()}
}

// FromPair returns a token over the parts of p.
func FromPair(p claims.Pair) *Token {
	return New(p.Header, p.Payload)
}

func (t *Token) Header() *claims.Set  { return t.header }
func (t *Token) Payload() *claims.Set { return t.payload }

// Pair returns the token's claims as a pair.
func (t *Token) Pair() claims.Pair {
	return claims.Pair{Header: t.header, Payload: t.payload}
}

// SigningInput returns base64url(header) "." base64url(payload).
func (t *Token) SigningInput() (string, error) {
	h, err := t.header.Encode()
	if err != nil {
		return "", err
	}
	p, err := t.payload.Encode()
	if err != nil {
		return "", err
	}
	return h + "." + p, nil
}

// String returns the two-part wire form, or "" when a claim cannot be encoded.
func (t *Token) String() string {
	s, _ := t.SigningInput()
	return s
}
