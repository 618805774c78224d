package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Breaker states as exported by xgrab_upstream_breaker_state.
const (
	BreakerClosed   = 0
	BreakerHalfOpen = 1
	BreakerOpen     = 2
)

var (
	upstreamBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "xgrab_upstream_breaker_state",
		Help: "Breaker state per upstream (0 closed, 1 half-open, 2 open)",
	}, []string{"upstream"})

	upstreamBreakerOpens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xgrab_upstream_breaker_opens_total",
		Help: "Breaker transitions to open per upstream",
	}, []string{"upstream", "cause"})
)

// SetBreakerState exports state ("closed", "half-open" or "open") for an
// upstream. Unknown states are ignored.
func SetBreakerState(upstream, state string) {
	var v float64
	switch state {
	case "closed":
		v = BreakerClosed
	case "half-open":
		v = BreakerHalfOpen
	case "open":
		v = BreakerOpen
	default:
		return
	}
	upstreamBreakerState.WithLabelValues(upstream).Set(v)
}

// RecordBreakerOpen counts a breaker opening.
func RecordBreakerOpen(upstream, cause string) {
	upstreamBreakerOpens.WithLabelValues(upstream, cause).Inc()
}
