package builder

import (
	"context"

	"github.com/turtacn/littlejwt/pkg/claims"
	"github.com/turtacn/littlejwt/pkg/constants"
	"github.com/turtacn/littlejwt/pkg/logger"
	"github.com/turtacn/littlejwt/pkg/mutator"
)

// Factory runs the default buildable around caller buildables and applies
// the mutator set to the result. It holds no per-build state.
type Factory struct {
	defaults Buildable
	mode     constants.DefaultsMode
	engine   *mutator.Engine
	mutators *mutator.Set
	builder  []Option
	log      logger.Logger
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithDefaults sets the default buildable.
func WithDefaults(d Buildable) FactoryOption {
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

// WithMutators serializes built claims through engine using set.
func WithMutators(engine *mutator.Engine, set *mutator.Set) FactoryOption {
	return func(f *Factory) {
		f.engine = engine
		f.mutators = set
	}
}

// WithBuilderOptions passes options to every Builder the factory creates.
func WithBuilderOptions(opts ...Option) FactoryOption {
	return func(f *Factory) { f.builder = append(f.builder, opts...) }
}

// WithFactoryLogger sets the factory logger.
func WithFactoryLogger(l logger.Logger) FactoryOption {
	return func(f *Factory) { f.log = l }
}

// NewFactory creates a factory. Without WithDefaults it uses DefaultClaims
// with the default TTL.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		defaults: DefaultClaims{},
		mode:     constants.DefaultsBefore,
		log:      logger.L(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.log = f.log.WithComponent("builder")
	return f
}

// Stack returns the ordered buildables for one build. With DefaultsAfter the
// defaults run last and override caller claims of the same key.
func (f *Factory) Stack(buildables ...Buildable) Stack {
	stack := make(Stack, 0, len(buildables)+1)
	if f.mode == constants.DefaultsBefore && f.defaults != nil {
		stack = append(stack, f.defaults)
	}
	stack = append(stack, buildables...)
	if f.mode == constants.DefaultsAfter && f.defaults != nil {
		stack = append(stack, f.defaults)
	}
	return stack
}

// Build runs the stack against a fresh builder and returns the frozen,
// serialized claim pair. Nothing is returned when any step fails, including a
// claim that cannot be encoded.
func (f *Factory) Build(ctx context.Context, buildables ...Buildable) (claims.Pair, error) {
	b := New(f.builder...)
	if err := f.Stack(buildables...).Build(b); err != nil {
		f.log.Debug(ctx, "Buildable failed", logger.Err(err))
		return claims.Pair{}, err
	}

	pair := b.Build()
	if f.engine != nil && f.mutators.Len() > 0 {
		var err error
		if pair, err = f.engine.SerializePair(ctx, pair, f.mutators); err != nil {
			return claims.Pair{}, err
		}
	}
	for _, set := range []*claims.Set{pair.Header, pair.Payload} {
		if _, err := set.JSON(); err != nil {
			return claims.Pair{}, err
		}
	}
	return pair.Freeze(), nil
}
