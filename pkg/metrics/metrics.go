// Package metrics registers the gateway's Prometheus collectors and
// offers small helpers so call sites never touch collector types
// directly.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	engineCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sessiongate_engine_calls_total",
		Help: "Auth engine invocations by outcome (2xx, 4xx, 5xx, error).",
	}, []string{"outcome"})

	engineLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sessiongate_engine_call_seconds",
		Help:    "Auth engine invocation latency.",
		Buckets: prometheus.DefBuckets,
	})

	guardDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sessiongate_guard_decisions_total",
		Help: "Guard outcomes by route kind and decision.",
	}, []string{"route", "decision"})

	streamedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessiongate_streamed_bytes_total",
		Help: "Response bytes relayed from the engine to native clients.",
	})

	engineReady = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sessiongate_engine_ready",
		Help: "1 when the last engine probe succeeded, 0 otherwise.",
	})
)

func init() {
	prometheus.MustRegister(engineCalls, engineLatency, guardDecisions, streamedBytes, engineReady)
}

// ObserveEngineCall records one engine invocation.
func ObserveEngineCall(outcome string, d time.Duration) {
	engineCalls.WithLabelValues(outcome).Inc()
	engineLatency.Observe(d.Seconds())
}

// OutcomeFor buckets a status code into the outcome label set.
func OutcomeFor(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "other"
	}
}

// GuardDecision records one guard verdict. route is "public" or
// "protected"; decision is "allow" or "deny".
func GuardDecision(route, decision string) {
	guardDecisions.WithLabelValues(route, decision).Inc()
}

// AddStreamedBytes accounts body bytes relayed to a native client.
func AddStreamedBytes(n int) {
	if n > 0 {
		streamedBytes.Add(float64(n))
	}
}

// SetEngineReady publishes the latest probe verdict.
func SetEngineReady(ok bool) {
	if ok {
		engineReady.Set(1)
		return
	}
	engineReady.Set(0)
}
