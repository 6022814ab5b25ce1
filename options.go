package littlejwt

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/turtacn/littlejwt/internal/infrastructure/messaging"
	"github.com/turtacn/littlejwt/internal/infrastructure/monitoring"
	"github.com/turtacn/littlejwt/pkg/keys"
	"github.com/turtacn/littlejwt/pkg/logger"
	"github.com/turtacn/littlejwt/pkg/mutator"
	"github.com/turtacn/littlejwt/pkg/revocation"
	"github.com/turtacn/littlejwt/pkg/utils"
)

// Option customizes New.
type Option func(*options)

type options struct {
	key             *keys.Key
	clock           utils.Clock
	log             logger.Logger
	registerer      prometheus.Registerer
	tracing         []monitoring.TracingOption
	mutatorOptions  []mutator.Option
	backend         revocation.Backend
	closeBackend    func() error
	broadcastWriter messaging.MessageWriter
	broadcastReader messaging.MessageReader
}

// WithKey uses k instead of loading key material from the configuration.
func WithKey(k *keys.Key) Option {
	return func(o *options) { o.key = k }
}

// WithClock pins the clock used for default claims, temporal rules and
// revocation expiries.
func WithClock(c utils.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger replaces the zap logger built from the log configuration.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithRegisterer registers metrics with reg instead of the default registry.
// Metrics are only registered when metrics.enabled is set.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithTracing passes options to the tracer provider, typically an exporter.
func WithTracing(opts ...monitoring.TracingOption) Option {
	return func(o *options) { o.tracing = append(o.tracing, opts...) }
}

// WithMutatorOptions registers custom mutator handlers, model repositories
// and other engine options.
func WithMutatorOptions(opts ...mutator.Option) Option {
	return func(o *options) { o.mutatorOptions = append(o.mutatorOptions, opts...) }
}

// WithRevocationBackend uses backend instead of the configured driver.
// closeFn, when set, runs on Close.
func WithRevocationBackend(backend revocation.Backend, closeFn func() error) Option {
	return func(o *options) {
		o.backend = backend
		o.closeBackend = closeFn
	}
}

// WithRevocationBroadcast shares revocations with other instances through
// writer and reader instead of the Kafka clients built from
// revocation.broadcast. Both are closed on Close.
func WithRevocationBroadcast(writer messaging.MessageWriter, reader messaging.MessageReader) Option {
	return func(o *options) {
		o.broadcastWriter = writer
		o.broadcastReader = reader
	}
}
