// Package metrics provides Prometheus instrumentation for the moderation
// service: decisions by stage and outcome, degraded-mode fallbacks, model
// call latency, parser levels, cache hits, and rate-limit denials.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/whisper/comment-moderator/internal/moderation"
)

var (
	// DecisionsTotal counts final verdicts, labeled by the stage that decided
	// and the outcome ("appropriate" or "rejected").
	DecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderator_decisions_total",
		Help: "Total number of moderation decisions",
	}, []string{"stage", "outcome"})

	// FallbacksTotal counts degraded-mode activations by cause.
	FallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderator_fallbacks_total",
		Help: "Total number of heuristic-only fallback activations",
	}, []string{"cause"})

	// ModelCallsTotal counts model attempts, labeled by attempt number and
	// result ("ok" or "error").
	ModelCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderator_model_calls_total",
		Help: "Total number of model calls",
	}, []string{"attempt", "result"})

	// ModelLatency records model call latency in seconds.
	ModelLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "moderator_model_latency_seconds",
		Help:    "Model call latency in seconds",
		Buckets: []float64{.1, .25, .5, 1, 2, 4, 8, 15, 30},
	})

	// ParseLevelTotal counts which parser level recovered model verdicts.
	ParseLevelTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderator_parse_level_total",
		Help: "Model replies recovered per parser level",
	}, []string{"level"})

	// DecisionLatency records end-to-end moderation latency in seconds.
	DecisionLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "moderator_decision_latency_seconds",
		Help:    "End-to-end moderation latency in seconds",
		Buckets: []float64{.001, .01, .05, .1, .25, .5, 1, 2, 5, 10, 30},
	})

	// CacheLookupsTotal counts verdict cache lookups by result ("hit" or "miss").
	CacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderator_cache_lookups_total",
		Help: "Verdict cache lookups",
	}, []string{"result"})

	// RateLimitedTotal counts rate-limit denials by rule ("model" or "author").
	RateLimitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderator_rate_limited_total",
		Help: "Requests denied by a rate limit",
	}, []string{"rule"})

	// MutesTotal counts authors muted after repeated rejections.
	MutesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "moderator_mutes_total",
		Help: "Authors muted after repeated rejections",
	})

	// InFlight tracks requests currently being moderated.
	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "moderator_in_flight",
		Help: "Requests currently being moderated",
	})
)

func init() {
	prometheus.MustRegister(
		DecisionsTotal,
		FallbacksTotal,
		ModelCallsTotal,
		ModelLatency,
		ParseLevelTotal,
		DecisionLatency,
		CacheLookupsTotal,
		RateLimitedTotal,
		MutesTotal,
		InFlight,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Outcome labels a verdict.
func Outcome(r moderation.Result) string {
	if r.IsAppropriate {
		return "appropriate"
	}
	return "rejected"
}

// Observer feeds pipeline events into the package metrics. It satisfies
// moderation.Observer.
type Observer struct{}

// ModelCall records one model attempt.
func (Observer) ModelCall(attempt int, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ModelCallsTotal.WithLabelValues(attemptLabel(attempt), result).Inc()
	ModelLatency.Observe(elapsed.Seconds())
}

// Decided records a pipeline verdict.
func (Observer) Decided(d moderation.Decision) {
	RecordDecision(d)
	if d.FallbackCause != moderation.CauseNone {
		FallbacksTotal.WithLabelValues(string(d.FallbackCause)).Inc()
	}
	if d.ParseLevel != moderation.LevelNone {
		ParseLevelTotal.WithLabelValues(d.ParseLevel.String()).Inc()
	}
}

// RecordDecision counts a verdict, including those served outside the
// pipeline (cache hits, muted authors).
func RecordDecision(d moderation.Decision) {
	DecisionsTotal.WithLabelValues(string(d.Stage), Outcome(d.Result)).Inc()
	DecisionLatency.Observe(d.Duration.Seconds())
}

func attemptLabel(attempt int) string {
	switch attempt {
	case 1:
		return "1"
	case 2:
		return "2"
	}
	return "other"
}
