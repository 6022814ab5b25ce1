package token

import "github.com/turtacn/littlejwt/pkg/claims"

// MutatedToken is the unserialized view of a signed token. Header and Payload
// return the mutated claims; Original keeps the wire token for signature
// checks and revocation ids.
type MutatedToken struct {
	original *SignedToken
	header   *claims.Set
	payload  *claims.Set
}

// NewMutated wraps original with mutated claim sets.
func NewMutated(original *SignedToken, header, payload *claims.Set) *MutatedToken {
	return &MutatedToken{
		original: original,
		header:   header.Freeze(),
		payload:  payload.Freeze(),
	}
}

func (m *MutatedToken) Header() *claims.Set  { return m.header }
func (m *MutatedToken) Payload() *claims.Set { return m.payload }

// Original returns the serialized token the view was derived from.
func (m *MutatedToken) Original() *SignedToken {
	return m.original
}

// String returns the original wire form.
func (m *MutatedToken) String() string {
	return m.original.String()
}

// Signed returns the wire-backed token behind c, if any.
func Signed(c Claims) (*SignedToken, bool) {
	switch t := c.(type) {
	case *SignedToken:
		return t, t != nil
	case *MutatedToken:
		if t == nil || t.original == nil {
			return nil, false
		}
		return t.original, true
	default:
		return nil, false
	}
}

// Wire returns the wire form of c, or "" when c is not backed by one.
func Wire(c Claims) string {
	switch t := c.(type) {
	case *SignedToken:
		return t.String()
	case *MutatedToken:
		return t.String()
	case *Token:
		return t.String()
	default:
		return ""
	}
}
