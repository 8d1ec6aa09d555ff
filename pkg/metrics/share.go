package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var breakerStates = map[string]float64{
	"closed":    0,
	"half-open": 1,
	"open":      2,
}

// Share records sharing calls and breaker state.
type Share struct {
	Calls        *prometheus.CounterVec
	BreakerState *prometheus.GaugeVec
}

// NewShare registers the sharing collectors with reg. A nil reg returns nil.
func NewShare(reg prometheus.Registerer) *Share {
	if reg == nil {
		return nil
	}
	return &Share{
		Calls: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "share",
			Name:      "calls_total",
			Help:      "Sharing calls by operation and status",
		}, []string{"operation", "status"}),
		BreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "share",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"breaker"}),
	}
}

// ObserveCall counts one sharing call.
func (m *Share) ObserveCall(op string, err error) {
	if m == nil {
		return
	}
	m.Calls.WithLabelValues(op, status(err)).Inc()
}

// SetBreakerState publishes the state of the named breaker.
func (m *Share) SetBreakerState(name, state string) {
	if m == nil {
		return
	}
	if v, ok := breakerStates[state]; ok {
		m.BreakerState.WithLabelValues(name).Set(v)
	}
}
