package builder

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/littlejwt/pkg/config"
	"github.com/turtacn/littlejwt/pkg/constants"
	"github.com/turtacn/littlejwt/pkg/utils"
)

// Buildable contributes claims to a builder.
type Buildable interface {
	Build(b *Builder) error
}

// BuildableFunc adapts a function to Buildable.
type BuildableFunc func(b *Builder) error

func (f BuildableFunc) Build(b *Builder) error {
	return f(b)
}

// Stack runs its buildables in order against the same builder and stops at
// the first error.
type Stack []Buildable

func (s Stack) Build(b *Builder) error {
	for _, item := range s {
		if item == nil {
			continue
		}
		if err := item.Build(b); err != nil {
			return err
		}
	}
	return nil
}

// Compose builds a Stack from Buildables and plain callbacks. Accepted
// callbacks are func(*Builder) and func(*Builder) error.
func Compose(items ...interface{}) (Stack, error) {
	stack := make(Stack, 0, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case nil:
		case Buildable:
			stack = append(stack, v)
		case func(*Builder) error:
			stack = append(stack, BuildableFunc(v))
		case func(*Builder):
			stack = append(stack, BuildableFunc(func(b *Builder) error {
				v(b)
				return nil
			}))
		default:
			return nil, fmt.Errorf("item %d of type %T is not buildable", i, item)
		}
	}
	return stack, nil
}

// DefaultClaims sets iat, nbf, exp, iss, aud and a fresh jti.
type DefaultClaims struct {
	TTL      time.Duration
	Issuer   string
	Audience []string
	Clock    utils.Clock
	// NewID generates jti. Defaults to a random UUID.
	NewID func() string
}

// NewDefaultClaims builds DefaultClaims from configuration. The audience may
// be a comma separated list.
func NewDefaultClaims(cfg config.BuilderConfig, clock utils.Clock) DefaultClaims {
	d := DefaultClaims{TTL: cfg.TTL, Issuer: cfg.Issuer, Clock: clock}
	for _, aud := range strings.Split(cfg.Audience, ",") {
		if aud = strings.TrimSpace(aud); aud != "" {
			d.Audience = append(d.Audience, aud)
		}
	}
	return d
}

func (d DefaultClaims) Build(b *Builder) error {
	now := utils.ClockOrSystem(d.Clock).Now()
	ttl := d.TTL
	if ttl <= 0 {
		ttl = constants.DefaultTokenTTL
	}
	newID := d.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	b.IssuedAt(now).NotBefore(now).ExpiresAt(now.Add(ttl)).ID(newID())
	if d.Issuer != "" {
		b.Issuer(d.Issuer)
	}
	if len(d.Audience) > 0 {
		b.Audience(d.Audience...)
	}
	return nil
}
