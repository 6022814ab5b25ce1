// Package builder accumulates header and payload claims from ordered
// buildable sources and emits a finished claim pair.
package builder

import (
	"time"

	"github.com/turtacn/littlejwt/pkg/claims"
	"github.com/turtacn/littlejwt/pkg/constants"
)

// Builder collects claims. A key goes to the header only when it is a
// reserved header key and not a reserved payload key; an explicit part
// overrides that. A Builder is not safe for concurrent use.
type Builder struct {
	header      *claims.Set
	payload     *claims.Set
	headerKeys  map[string]struct{}
	payloadKeys map[string]struct{}
}

// Option configures a Builder.
type Option func(*Builder)

// WithHeaderKeys replaces the reserved header key set.
func WithHeaderKeys(keys ...string) Option {
	return func(b *Builder) { b.headerKeys = keySet(keys) }
}

// WithPayloadKeys replaces the reserved payload key set.
func WithPayloadKeys(keys ...string) Option {
	return func(b *Builder) { b.payloadKeys = keySet(keys) }
}

// New returns an empty builder with the default reserved key sets.
func New(opts ...Option) *Builder {
	b := &Builder{
		header:      claims.NewSet(),
		payload:     claims.NewSet(),
		headerKeys:  keySet(constants.DefaultHeaderKeys()),
		payloadKeys: keySet(constants.DefaultPayloadKeys()),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func keySet(keys []string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}

// Route returns the part key is placed in when no part is given.
func (b *Builder) Route(key string) constants.Part {
	_, inHeader := b.headerKeys[key]
	_, inPayload := b.payloadKeys[key]
	if inHeader && !inPayload {
		return constants.PartHeader
	}
	return constants.PartPayload
}

func (b *Builder) target(key string, part []constants.Part) *claims.Set {
	p := constants.PartAuto
	if len(part) > 0 {
		p = part[0]
	}
	if p == constants.PartAuto {
		p = b.Route(key)
	}
	if p == constants.PartHeader {
		return b.header
	}
	return b.payload
}

// AddClaim stores value under key, replacing any earlier value in that part.
func (b *Builder) AddClaim(key string, value interface{}, part ...constants.Part) *Builder {
	// the builder's sets are never frozen
	_ = b.target(key, part).Set(key, value)
	return b
}

// Remove deletes key from the given part, or from both parts when none is given.
func (b *Builder) Remove(key string, part ...constants.Part) *Builder {
	if len(part) > 0 && part[0] != constants.PartAuto {
		_ = b.target(key, part).Remove(key)
		return b
	}
	_ = b.header.Remove(key)
	_ = b.payload.Remove(key)
	return b
}

// GetClaim returns the value of key in the routed or given part.
func (b *Builder) GetClaim(key string, part ...constants.Part) (interface{}, bool) {
	return b.target(key, part).Get(key)
}

// HasClaim reports whether key is set in the routed or given part.
func (b *Builder) HasClaim(key string, part ...constants.Part) bool {
	return b.target(key, part).Has(key)
}

// Build returns mutable copies of the accumulated claims. The builder can
// keep being used afterwards.
func (b *Builder) Build() claims.Pair {
	return claims.NewPair(b.header.Mutable(), b.payload.Mutable())
}

// IssuedAt sets iat to t in unix seconds.
func (b *Builder) IssuedAt(t time.Time) *Builder {
	return b.AddClaim(constants.ClaimIssuedAt, t.Unix())
}

// NotBefore sets nbf to t in unix seconds.
func (b *Builder) NotBefore(t time.Time) *Builder {
	return b.AddClaim(constants.ClaimNotBefore, t.Unix())
}

// ExpiresAt sets exp to t in unix seconds.
func (b *Builder) ExpiresAt(t time.Time) *Builder {
	return b.AddClaim(constants.ClaimExpiresAt, t.Unix())
}

// Issuer sets iss.
func (b *Builder) Issuer(iss string) *Builder {
	return b.AddClaim(constants.ClaimIssuer, iss)
}

// Subject sets sub.
func (b *Builder) Subject(sub string) *Builder {
	return b.AddClaim(constants.ClaimSubject, sub)
}

// Audience sets aud to a string for a single audience and to an array otherwise.
func (b *Builder) Audience(aud ...string) *Builder {
	if len(aud) == 1 {
		return b.AddClaim(constants.ClaimAudience, aud[0])
	}
	values := make([]interface{}, len(aud))
	for i, a := range aud {
		values[i] = a
	}
	return b.AddClaim(constants.ClaimAudience, values)
}

// ID sets jti.
func (b *Builder) ID(jti string) *Builder {
	return b.AddClaim(constants.ClaimID, jti)
}

// Type sets the typ header.
func (b *Builder) Type(typ string) *Builder {
	return b.AddClaim(constants.HeaderType, typ, constants.PartHeader)
}

// KeyID sets the kid header.
func (b *Builder) KeyID(kid string) *Builder {
	return b.AddClaim(constants.HeaderKeyID, kid, constants.PartHeader)
}

// ContentType sets the cty header.
func (b *Builder) ContentType(cty string) *Builder {
	return b.AddClaim(constants.HeaderContentType, cty, constants.PartHeader)
}
