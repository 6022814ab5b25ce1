package validation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/turtacn/littlejwt/pkg/config"
	"github.com/turtacn/littlejwt/pkg/constants"
	"github.com/turtacn/littlejwt/pkg/keys"
	"github.com/turtacn/littlejwt/pkg/logger"
	"github.com/turtacn/littlejwt/pkg/revocation"
	"github.com/turtacn/littlejwt/pkg/signing"
	"github.com/turtacn/littlejwt/pkg/token"
	"github.com/turtacn/littlejwt/pkg/utils"
)

// Validatable adds rules to a validator.
type Validatable interface {
	Validate(v *Validator) error
}

// ValidatableFunc adapts a function to Validatable.
type ValidatableFunc func(v *Validator) error

func (f ValidatableFunc) Validate(v *Validator) error {
	return f(v)
}

// Stack runs its validatables in order against the same validator.
type Stack []Validatable

func (s Stack) Validate(v *Validator) error {
	for _, item := range s {
		if item == nil {
			continue
		}
		if err := item.Validate(v); err != nil {
			return err
		}
	}
	return nil
}

// Compose builds a Stack from Validatables, Rules and plain callbacks.
// Accepted callbacks are func(*Validator) and func(*Validator) error; a Rule
// is added as an ordinary rule.
func Compose(items ...interface{}) (Stack, error) {
	stack := make(Stack, 0, len(items))
	for i, item := range items {
		switch it := item.(type) {
		case nil:
		case Validatable:
			stack = append(stack, it)
		case Rule:
			stack = append(stack, ValidatableFunc(func(v *Validator) error {
				v.AddRule(it)
				return nil
			}))
		case func(*Validator) error:
			stack = append(stack, ValidatableFunc(it))
		case func(*Validator):
			stack = append(stack, ValidatableFunc(func(v *Validator) error {
				it(v)
				return nil
			}))
		default:
			return nil, fmt.Errorf("item %d of type %T is not validatable", i, item)
		}
	}
	return stack, nil
}

// DefaultRules is the configured default validatable. The signature check and
// required claims are before-rules; the time, issuer, audience and revocation
// checks are ordinary rules.
type DefaultRules struct {
	Engine *signing.Engine
	Key    *keys.Key
	// Keys, when set, replaces Key: the signing key is looked up by kid.
	Keys              keys.Resolver
	RequiredHeader    []string
	RequiredPayload   []string
	Leeway            time.Duration
	ExpectedAlgorithm string
	ExpectedIssuer    string
	ExpectedAudience  string
	Store             revocation.Store
	Clock             utils.Clock
}

// NewDefaultRules builds DefaultRules from configuration.
func NewDefaultRules(cfg config.ValidatorConfig, engine *signing.Engine, key *keys.Key, store revocation.Store, clock utils.Clock) DefaultRules {
	return DefaultRules{
		Engine:            engine,
		Key:               key,
		RequiredHeader:    cfg.RequiredHeader,
		RequiredPayload:   cfg.RequiredPayload,
		Leeway:            cfg.Leeway,
		ExpectedAlgorithm: cfg.ExpectedAlgorithm,
		ExpectedIssuer:    cfg.ExpectedIssuer,
		ExpectedAudience:  cfg.ExpectedAudience,
		Store:             store,
		Clock:             clock,
	}
}

func (d DefaultRules) Validate(v *Validator) error {
	switch {
	case d.Engine != nil && d.Keys != nil:
		v.AddBeforeRule(ValidSignatureFrom(d.Engine, d.Keys))
	case d.Engine != nil && d.Key != nil:
		v.ValidSignature(d.Engine, d.Key)
	}
	if len(d.RequiredHeader) > 0 {
		v.ContainsHeaderClaims(d.RequiredHeader...)
	}
	if len(d.RequiredPayload) > 0 {
		v.ContainsClaims(d.RequiredPayload...)
	}

	v.Past(constants.ClaimIssuedAt, d.Leeway, d.Clock).
		Past(constants.ClaimNotBefore, d.Leeway, d.Clock).
		Future(constants.ClaimExpiresAt, d.Leeway, d.Clock)

	if d.ExpectedAlgorithm != "" {
		v.AddRule(HeaderEquals(constants.HeaderAlgorithm, d.ExpectedAlgorithm, true))
	}
	if d.ExpectedIssuer != "" {
		v.AddRule(Equals(constants.ClaimIssuer, d.ExpectedIssuer, true))
	}
	if aud := strings.TrimSpace(d.ExpectedAudience); aud != "" {
		v.AddRule(Includes(constants.ClaimAudience, aud, true))
	}
	if d.Store != nil {
		v.Allowed(d.Store)
	}
	return nil
}

// Factory runs the default validatable around caller validatables.
type Factory struct {
	defaults      Validatable
	mode          constants.DefaultsMode
	stopOnFailure bool
	log           logger.Logger
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

func WithDefaults(d Validatable) FactoryOption {
	return func(f *Factory) { f.defaults = d }
}

// WithMode selects when defaults run. An empty mode means before.
func WithMode(mode constants.DefaultsMode) FactoryOption {
	return func(f *Factory) {
		if mode != "" {
			f.mode = mode
		}
	}
}

func WithStopOnFailure(stop bool) FactoryOption {
	return func(f *Factory) { f.stopOnFailure = stop }
}

func WithLogger(l logger.Logger) FactoryOption {
	return func(f *Factory) { f.log = l }
}

// NewFactory creates a factory without defaults.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		mode:          constants.DefaultsBefore,
		stopOnFailure: true,
		log:           logger.L(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.log = f.log.WithComponent("validation")
	return f
}

// Validator assembles a validator from the defaults and validatables.
func (f *Factory) Validator(validatables ...Validatable) (*Validator, error) {
	stack := make(Stack, 0, len(validatables)+1)
	if f.mode == constants.DefaultsBefore && f.defaults != nil {
		stack = append(stack, f.defaults)
	}
	stack = append(stack, validatables...)
	if f.mode == constants.DefaultsAfter && f.defaults != nil {
		stack = append(stack, f.defaults)
	}

	v := NewValidator().StopOnFailure(f.stopOnFailure)
	if err := stack.Validate(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Validate assembles a validator and runs it. The error reports a failing
// validatable, not a failing rule.
func (f *Factory) Validate(ctx context.Context, tok token.Claims, validatables ...Validatable) (Result, error) {
	v, err := f.Validator(validatables...)
	if err != nil {
		return Result{}, err
	}
	result := v.Validate(ctx, tok)
	if !result.Passed {
		f.log.Debug(ctx, "Token failed validation", logger.Any("failed", result.Failed))
	}
	return result, nil
}
