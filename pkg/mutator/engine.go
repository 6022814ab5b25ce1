package mutator

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/turtacn/littlejwt/pkg/claims"
	"github.com/turtacn/littlejwt/pkg/constants"
	"github.com/turtacn/littlejwt/pkg/errors"
	"github.com/turtacn/littlejwt/pkg/logger"
	"github.com/turtacn/littlejwt/pkg/token"
)

// resolved is a cached tag lookup.
type resolved struct {
	handler Handler
	args    []string
}

// Engine resolves definitions to handlers and applies them. Custom handlers
// are fixed at construction, so an Engine is safe for concurrent use.
type Engine struct {
	custom    map[string]Handler
	builtins  map[string]Handler
	encrypter Encrypter
	models    map[string]ModelRepository
	location  *time.Location
	cacheSize int
	cache     *lru.Cache[string, resolved]
	log       logger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithHandler registers a custom tag. Custom tags shadow built-ins.
func WithHandler(tag string, h Handler) Option {
	return func(e *Engine) { e.custom[tag] = h }
}

// WithEncrypter sets the cipher of the encrypted mutator.
func WithEncrypter(enc Encrypter) Option {
	return func(e *Engine) { e.encrypter = enc }
}

// WithModelRepository registers the repository behind model:<ref>.
func WithModelRepository(ref string, repo ModelRepository) Option {
	return func(e *Engine) { e.models[ref] = repo }
}

// WithLocation sets the zone date and time values are read into. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.location = loc
		}
	}
}

// WithCacheSize bounds the resolved definition cache.
func WithCacheSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.cacheSize = n
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine creates a mutator engine with the built-in primitives.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		custom:    make(map[string]Handler),
		models:    make(map[string]ModelRepository),
		location:  time.UTC,
		cacheSize: constants.DefaultMutatorCacheSize,
		log:       logger.L(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.WithComponent("mutator")

	cache, err := lru.New[string, resolved](e.cacheSize)
	if err != nil {
		return nil, errors.Config("mutator cache: %v", err)
	}
	e.cache = cache

	float := floatMutator{}
	e.builtins = map[string]Handler{
		"bool":            boolMutator{},
		"int":             intMutator{},
		"array":           arrayMutator{},
		"json":            jsonMutator{},
		"object":          jsonMutator{object: true},
		"double":          float,
		"float":           float,
		"real":            float,
		"decimal":         decimalMutator{},
		"date":            timeMutator{layout: dateLayout, startOfDay: true, loc: e.location},
		"datetime":        timeMutator{layout: time.RFC3339, loc: e.location},
		"custom_datetime": timeMutator{fromArgs: true, loc: e.location},
		"timestamp":       timestampMutator{loc: e.location},
		"encrypted":       encryptedMutator{enc: e.encrypter},
		"model":           modelMutator{repos: e.models, log: e.log},
	}
	return e, nil
}

// Resolve returns the handler and arguments for def.
func (e *Engine) Resolve(def Definition) (Handler, []string, error) {
	if def.handler != nil {
		return def.handler, nil, nil
	}
	if r, ok := e.cache.Get(def.raw); ok {
		return r.handler, r.args, nil
	}
	tag, args := def.Parse()
	h, ok := e.custom[tag]
	if !ok {
		h, ok = e.builtins[tag]
	}
	if !ok {
		return nil, nil, errors.CantResolveMutator(def.String())
	}
	e.cache.Add(def.raw, resolved{handler: h, args: args})
	return h, args, nil
}

// Serialize converts value to its wire form. An unresolvable definition passes
// the value through.
func (e *Engine) Serialize(ctx context.Context, key string, def Definition, value interface{}, tok token.Claims) (interface{}, error) {
	return e.serialize(ctx, Target{Key: key, Token: tok}, def, value)
}

// Unserialize converts a wire value back. An unresolvable definition passes
// the value through; a failing handler yields CantParseJWT.
func (e *Engine) Unserialize(ctx context.Context, key string, def Definition, value interface{}, tok token.Claims) (interface{}, error) {
	return e.unserialize(ctx, Target{Key: key, Token: tok}, def, value)
}

func (e *Engine) serialize(ctx context.Context, target Target, def Definition, value interface{}) (interface{}, error) {
	h, args, err := e.Resolve(def)
	if err != nil {
		e.log.Warn(ctx, "Unresolved mutator, passing value through",
			logger.String("claim", target.Key), logger.String("definition", def.String()))
		return value, nil
	}
	target.Args = args
	out, err := h.Serialize(ctx, target, value)
	if err != nil {
		return nil, errors.InvalidClaimValue(target.Key, value, err)
	}
	return out, nil
}

func (e *Engine) unserialize(ctx context.Context, target Target, def Definition, value interface{}) (interface{}, error) {
	h, args, err := e.Resolve(def)
	if err != nil {
		e.log.Warn(ctx, "Unresolved mutator, passing value through",
			logger.String("claim", target.Key), logger.String("definition", def.String()))
		return value, nil
	}
	target.Args = args
	out, err := h.Unserialize(ctx, target, value)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeCantParseJWT, "claim %q cannot be unserialized", target.Key).
			WithMetadata("claim", target.Key)
	}
	return out, nil
}

// SerializePair applies set to every claim of pair and returns a new pair.
// Claims without a definition pass through.
func (e *Engine) SerializePair(ctx context.Context, pair claims.Pair, set *Set) (claims.Pair, error) {
	header, err := e.apply(ctx, pair.Header, set, constants.PartHeader, nil, e.serialize)
	if err != nil {
		return claims.Pair{}, err
	}
	payload, err := e.apply(ctx, pair.Payload, set, constants.PartPayload, nil, e.serialize)
	if err != nil {
		return claims.Pair{}, err
	}
	return claims.NewPair(header, payload), nil
}

// UnserializePair is the inverse of SerializePair. tok is the token the
// claims were read from, if any.
func (e *Engine) UnserializePair(ctx context.Context, pair claims.Pair, set *Set, tok token.Claims) (claims.Pair, error) {
	header, err := e.apply(ctx, pair.Header, set, constants.PartHeader, tok, e.unserialize)
	if err != nil {
		return claims.Pair{}, err
	}
	payload, err := e.apply(ctx, pair.Payload, set, constants.PartPayload, tok, e.unserialize)
	if err != nil {
		return claims.Pair{}, err
	}
	return claims.NewPair(header, payload), nil
}

// Mutate returns the unserialized view of signed. The wire token is kept as
// the view's original.
func (e *Engine) Mutate(ctx context.Context, signed *token.SignedToken, set *Set) (*token.MutatedToken, error) {
	pair, err := e.UnserializePair(ctx, claims.NewPair(signed.Header(), signed.Payload()), set, signed)
	if err != nil {
		return nil, err
	}
	return token.NewMutated(signed, pair.Header, pair.Payload), nil
}

type applyFunc func(ctx context.Context, target Target, def Definition, value interface{}) (interface{}, error)

func (e *Engine) apply(ctx context.Context, in *claims.Set, set *Set, part constants.Part, tok token.Claims, fn applyFunc) (*claims.Set, error) {
	out := claims.NewSet()
	for _, key := range in.Keys() {
		value := in.Value(key)
		if def, ok := set.Lookup(part, key); ok && !def.IsZero() {
			v, err := fn(ctx, Target{Key: key, Part: part, Token: tok}, def, value)
			if err != nil {
				return nil, err
			}
			value = v
		}
		if err := out.Set(key, value); err != nil {
			return nil, err
		}
	}
	return out, nil
}
