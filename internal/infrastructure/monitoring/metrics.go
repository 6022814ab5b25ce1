package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/turtacn/littlejwt/pkg/config"
	"github.com/turtacn/littlejwt/pkg/constants"
)

// Operation labels for OperationDuration.
const (
	OpCreate   = "create"
	OpParse    = "parse"
	OpValidate = "validate"
	OpRevoke   = "revoke"
	OpPurge    = "purge"
)

// Metrics manages the Prometheus metrics.
type Metrics struct {
	TokensIssued      *prometheus.CounterVec
	Validations       *prometheus.CounterVec
	RuleFailures      *prometheus.CounterVec
	Revocations       *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// leaves them unregistered, which is what tests and disabled configs use.
func NewMetrics(cfg config.MetricsConfig, reg prometheus.Registerer) *Metrics {
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = constants.ServiceName
	}
	factory := promauto.With(reg)

	return &Metrics{
		TokensIssued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_issued_total",
				Help:      "Total number of signed tokens issued.",
			},
			[]string{"alg"},
		),
		Validations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validations_total",
				Help:      "Total number of token validations by result.",
			},
			[]string{"result"},
		),
		RuleFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_failures_total",
				Help:      "Total number of failed validation rules by identifier.",
			},
			[]string{"rule"},
		),
		Revocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "revocations_total",
				Help:      "Total number of revoked tokens by store driver.",
			},
			[]string{"driver"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Latency of token operations.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordTokenIssued records a signed token.
func (m *Metrics) RecordTokenIssued(alg string) {
	m.TokensIssued.WithLabelValues(alg).Inc()
}

// RecordValidation records a validation outcome and every failed rule.
func (m *Metrics) RecordValidation(passed bool, failed []string) {
	result := "passed"
	if !passed {
		result = "failed"
	}
	m.Validations.WithLabelValues(result).Inc()
	for _, rule := range failed {
		m.RuleFailures.WithLabelValues(rule).Inc()
	}
}

// RecordRevocation records a revoked token.
func (m *Metrics) RecordRevocation(driver string) {
	m.Revocations.WithLabelValues(driver).Inc()
}

// ObserveOperation records the time elapsed since start.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
