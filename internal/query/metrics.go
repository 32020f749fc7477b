package query

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/traversalproc/metric"
)

// metricsService is the serviceName the hook registers under in the
// shared MetricsRegistry (spec §6: "<server-scope>.op.eval").
const metricsService = "query"

// MetricsHook is C6: it records the eval-op timer (started at submission,
// stopped at completion, matching the original evalOpTimer scope — see
// SPEC_FULL.md §10.5) and a counter of terminal outcomes by status code.
// A nil *MetricsHook is valid and records nothing, so callers that build
// one unconditionally never need a nil check of their own.
type MetricsHook struct {
	duration prometheus.Histogram
	outcomes *prometheus.CounterVec
	now      func() time.Time
}

// NewMetricsHook registers this package's metrics against registry under
// metricsService, returning an error if registration conflicts with an
// already-registered metric of the same name.
func NewMetricsHook(registry *metric.MetricsRegistry) (*MetricsHook, error) {
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "op_eval_duration_seconds",
		Help:    "Time spent evaluating and streaming results for an eval op, from submission to completion.",
		Buckets: prometheus.DefBuckets,
	})
	if err := registry.RegisterHistogram(metricsService, "op_eval_duration_seconds", duration); err != nil {
		return nil, err
	}

	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "op_eval_outcomes_total",
		Help: "Count of eval op completions by terminal ResponseStatusCode.",
	}, []string{"code"})
	if err := registry.RegisterCounterVec(metricsService, "op_eval_outcomes_total", outcomes); err != nil {
		return nil, err
	}

	return &MetricsHook{duration: duration, outcomes: outcomes, now: time.Now}, nil
}

func (h *MetricsHook) startTimer() func() {
	if h == nil {
		return func() {}
	}
	start := h.now()
	return func() {
		h.duration.Observe(h.now().Sub(start).Seconds())
	}
}

func (h *MetricsHook) recordSuccess() {
	if h == nil {
		return
	}
	h.outcomes.WithLabelValues(StatusSuccess.String()).Inc()
}

func (h *MetricsHook) recordFailure(code ResponseStatusCode) {
	if h == nil {
		return
	}
	h.outcomes.WithLabelValues(code.String()).Inc()
}
