// Package littlejwt builds, signs, parses, validates and revokes JSON Web
// Tokens. New wires every engine from a single configuration; the engines
// under pkg/ can also be used on their own.
package littlejwt

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/turtacn/littlejwt/internal/infrastructure/messaging"
	"github.com/turtacn/littlejwt/internal/infrastructure/monitoring"
	"github.com/turtacn/littlejwt/internal/infrastructure/persistence/memory"
	"github.com/turtacn/littlejwt/internal/infrastructure/persistence/postgres"
	redisstore "github.com/turtacn/littlejwt/internal/infrastructure/persistence/redis"
	"github.com/turtacn/littlejwt/pkg/builder"
	"github.com/turtacn/littlejwt/pkg/config"
	"github.com/turtacn/littlejwt/pkg/constants"
	"github.com/turtacn/littlejwt/pkg/errors"
	"github.com/turtacn/littlejwt/pkg/keys"
	"github.com/turtacn/littlejwt/pkg/logger"
	"github.com/turtacn/littlejwt/pkg/mutator"
	"github.com/turtacn/littlejwt/pkg/revocation"
	"github.com/turtacn/littlejwt/pkg/signing"
	"github.com/turtacn/littlejwt/pkg/token"
	"github.com/turtacn/littlejwt/pkg/utils"
	"github.com/turtacn/littlejwt/pkg/validation"
)

// LittleJWT is the assembled token toolkit.
type LittleJWT struct {
	cfg        *config.Config
	key        *keys.Key
	signer     *signing.Engine
	mutators   *mutator.Engine
	mutatorSet *mutator.Set
	builders   *builder.Factory
	validators *validation.Factory
	revocation *revocation.Manager
	metrics    *monitoring.Metrics
	tracing    *monitoring.TracingManager
	clock      utils.Clock
	log        logger.Logger
	closers    []func() error
}

// New validates cfg and wires the engines it describes. A nil cfg uses
// config.Default.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*LittleJWT, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	l := &LittleJWT{cfg: cfg, clock: utils.ClockOrSystem(o.clock), log: o.log}
	if l.log == nil {
		zl, err := monitoring.NewZapLogger(cfg.Log)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeConfig, "failed to create logger")
		}
		l.log = zl
	}

	tracing, err := monitoring.NewTracingManager(cfg.Tracing, l.log, o.tracing...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConfig, "failed to initialize tracing")
	}
	l.tracing = tracing
	l.closers = append(l.closers, func() error { return tracing.Shutdown(context.Background()) })

	if err := l.init(ctx, cfg, o); err != nil {
		_ = l.Close()
		return nil, err
	}
	return l, nil
}

// init builds everything that may hold resources. The caller closes l when it
// fails.
func (l *LittleJWT) init(ctx context.Context, cfg *config.Config, o *options) error {
	var err error

	var reg prometheus.Registerer
	if cfg.Metrics.Enabled {
		reg = o.registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
	}
	l.metrics = monitoring.NewMetrics(cfg.Metrics, reg)

	l.key = o.key
	if l.key == nil {
		if l.key, err = keys.Load(ctx, cfg.Algorithm, &cfg.Key, l.log); err != nil {
			return err
		}
	}
	l.signer = signing.NewEngine(signing.WithLogger(l.log))

	if err := l.initMutators(cfg.Mutators, o.mutatorOptions); err != nil {
		return err
	}

	backend, closeBackend := o.backend, o.closeBackend
	if backend == nil {
		if backend, closeBackend, err = openBackend(ctx, cfg.Revocation, l.log); err != nil {
			return err
		}
	}
	if closeBackend != nil {
		l.closers = append(l.closers, closeBackend)
	}
	backend = l.broadcast(cfg.Revocation.Broadcast, backend, o)
	l.revocation = revocation.NewManager(backend,
		revocation.WithDefaultTTL(cfg.Revocation.DefaultTTL),
		revocation.WithClock(l.clock),
		revocation.WithLogger(l.log),
	)

	l.builders = builder.NewFactory(
		builder.WithDefaults(builder.NewDefaultClaims(cfg.Builder, l.clock)),
		builder.WithMode(constants.DefaultsMode(cfg.Builder.Defaults)),
		builder.WithMutators(l.mutators, l.mutatorSet),
		builder.WithFactoryLogger(l.log),
	)

	var store revocation.Store
	if backend.Name() != string(constants.RevocationDriverNone) {
		store = l.revocation
	}
	rules := validation.NewDefaultRules(cfg.Validator, l.signer, l.key, store, l.clock)
	if cfg.Validator.JWKSURL != "" {
		rules.Keys = keys.NewRemoteKeySet(cfg.Validator.JWKSURL, nil, l.log)
	}
	l.validators = validation.NewFactory(
		validation.WithDefaults(rules),
		validation.WithMode(constants.DefaultsMode(cfg.Validator.Defaults)),
		validation.WithStopOnFailure(cfg.Validator.StopOnFailure),
		validation.WithLogger(l.log),
	)

	l.log.Info(ctx, "littlejwt initialized",
		logger.String("alg", string(l.key.Algorithm())),
		logger.String("revocation", backend.Name()),
	)
	return nil
}

func (l *LittleJWT) initMutators(cfg config.MutatorConfig, extra []mutator.Option) error {
	opts := []mutator.Option{mutator.WithCacheSize(cfg.CacheSize), mutator.WithLogger(l.log)}
	if cfg.EncryptionKey != "" {
		raw, err := hex.DecodeString(cfg.EncryptionKey)
		if err != nil {
			return errors.Wrap(err, errors.CodeConfig, "mutators.encryption_key is not valid hex")
		}
		enc, err := mutator.NewXChaChaEncrypter(raw)
		if err != nil {
			return err
		}
		opts = append(opts, mutator.WithEncrypter(enc))
	}

	engine, err := mutator.NewEngine(append(opts, extra...)...)
	if err != nil {
		return err
	}
	l.mutators = engine
	l.mutatorSet = mutator.SetFromConfig(cfg)
	return nil
}

func openBackend(ctx context.Context, cfg config.RevocationConfig, log logger.Logger) (revocation.Backend, func() error, error) {
	switch constants.RevocationDriver(cfg.Driver) {
	case constants.RevocationDriverCache:
		return memory.NewRevocationStore(cfg.Cache.CleanupInterval, log), nil, nil

	case constants.RevocationDriverRedis:
		conn := redisstore.NewRedisConnection(cfg.Redis, log)
		if err := conn.Connect(ctx); err != nil {
			return nil, nil, err
		}
		return redisstore.NewRevocationStore(conn.Client(), cfg.Redis.KeyPrefix, log), conn.Close, nil

	case constants.RevocationDriverDatabase:
		conn, err := postgres.NewDBConnection(ctx, &cfg.Database, log)
		if err != nil {
			return nil, nil, err
		}
		store := postgres.NewRevocationStore(conn.DB(), cfg.Database, log)
		if cfg.Database.AutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = conn.Close()
				return nil, nil, err
			}
		}
		return store, conn.Close, nil

	case constants.RevocationDriverNone, "":
		return revocation.Noop{}, nil, nil

	default:
		return nil, nil, errors.Config("unknown revocation driver %q", cfg.Driver)
	}
}

// broadcast wraps backend so revocations are published, and starts a
// consumer applying the revocations of other instances to backend.
func (l *LittleJWT) broadcast(cfg config.BroadcastConfig, backend revocation.Backend, o *options) revocation.Backend {
	writer, reader := o.broadcastWriter, o.broadcastReader
	if writer == nil && reader == nil && !cfg.Enabled {
		return backend
	}

	origin := uuid.NewString()
	if writer == nil {
		writer = messaging.NewKafkaWriter(cfg)
	}
	if reader == nil {
		reader = messaging.NewKafkaReader(cfg, origin)
	}

	consumer := messaging.NewRevocationConsumer(reader, backend, origin, l.clock, l.log)
	go consumer.Start(context.Background())
	l.closers = append(l.closers, writer.Close, consumer.Stop)

	return messaging.NewBroadcastBackend(backend, writer, origin, l.log)
}

// Create builds a token from the default claims and buildables, then signs it.
func (l *LittleJWT) Create(ctx context.Context, buildables ...builder.Buildable) (*token.SignedToken, error) {
	defer l.metrics.ObserveOperation(monitoring.OpCreate, time.Now())

	var signed *token.SignedToken
	err := monitoring.TraceOperation(ctx, l.tracing, "littlejwt.create",
		map[string]interface{}{"alg": string(l.key.Algorithm())},
		func(ctx context.Context) error {
			pair, err := l.builders.Build(ctx, buildables...)
			if err != nil {
				return err
			}
			signed, err = l.signer.Sign(token.FromPair(pair), l.key)
			return err
		})
	if err != nil {
		l.log.Debug(ctx, "Token creation failed", logger.Err(err))
		return nil, err
	}

	l.metrics.RecordTokenIssued(string(l.key.Algorithm()))
	return signed, nil
}

// Parse decodes a wire token without verifying it.
func (l *LittleJWT) Parse(wire string) (*token.SignedToken, error) {
	defer l.metrics.ObserveOperation(monitoring.OpParse, time.Now())
	return token.Parse(wire)
}

// ParseMutated decodes a wire token and unserializes its claims with the
// configured mutators.
func (l *LittleJWT) ParseMutated(ctx context.Context, wire string) (*token.MutatedToken, error) {
	signed, err := l.Parse(wire)
	if err != nil {
		return nil, err
	}
	return l.mutators.Mutate(ctx, signed, l.mutatorSet)
}

// Validate runs the default rules and validatables against tok.
func (l *LittleJWT) Validate(ctx context.Context, tok token.Claims, validatables ...validation.Validatable) (validation.Result, error) {
	defer l.metrics.ObserveOperation(monitoring.OpValidate, time.Now())

	var result validation.Result
	err := monitoring.TraceOperation(ctx, l.tracing, "littlejwt.validate", nil, func(ctx context.Context) error {
		var err error
		result, err = l.validators.Validate(ctx, tok, validatables...)
		if err == nil {
			l.tracing.SetSpanAttributes(ctx, map[string]interface{}{
				"passed": result.Passed,
				"failed": result.Failed,
			})
		}
		return err
	})
	if err != nil {
		return validation.Result{}, err
	}

	l.metrics.RecordValidation(result.Passed, result.Failed)
	return result, nil
}

// ValidateString parses wire, applying mutators when any are configured, and
// validates it. A token that cannot be parsed is returned as an error.
func (l *LittleJWT) ValidateString(ctx context.Context, wire string, validatables ...validation.Validatable) (validation.Result, error) {
	var (
		tok token.Claims
		err error
	)
	if l.mutatorSet.Len() > 0 {
		tok, err = l.ParseMutated(ctx, wire)
	} else {
		tok, err = l.Parse(wire)
	}
	if err != nil {
		l.metrics.RecordValidation(false, nil)
		return validation.Result{}, err
	}
	return l.Validate(ctx, tok, validatables...)
}

// Revoke records tok as revoked for ttl. A negative ttl uses the configured
// default and zero never expires.
func (l *LittleJWT) Revoke(ctx context.Context, tok token.Claims, ttl time.Duration) error {
	defer l.metrics.ObserveOperation(monitoring.OpRevoke, time.Now())

	err := monitoring.TraceOperation(ctx, l.tracing, "littlejwt.revoke",
		map[string]interface{}{"driver": l.revocation.Driver()},
		func(ctx context.Context) error { return l.revocation.Revoke(ctx, tok, ttl) })
	if err != nil {
		return err
	}
	l.metrics.RecordRevocation(l.revocation.Driver())
	return nil
}

// IsRevoked reports whether tok is currently revoked.
func (l *LittleJWT) IsRevoked(ctx context.Context, tok token.Claims) (bool, error) {
	return l.revocation.IsRevoked(ctx, tok)
}

// Purge removes expired revocation entries.
func (l *LittleJWT) Purge(ctx context.Context) error {
	defer l.metrics.ObserveOperation(monitoring.OpPurge, time.Now())
	return l.revocation.Purge(ctx)
}

// Key returns the signing and verification key.
func (l *LittleJWT) Key() *keys.Key {
	return l.key
}

// Config returns the configuration l was built from.
func (l *LittleJWT) Config() *config.Config {
	return l.cfg
}

// Close releases the revocation backend connection and flushes spans.
func (l *LittleJWT) Close() error {
	var first error
	for i := len(l.closers) - 1; i >= 0; i-- {
		if err := l.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	l.closers = nil
	return first
}
