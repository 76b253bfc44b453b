package classifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts classification attempts and which parser stage answered.
// A nil *Metrics records nothing.
type Metrics struct {
	attempts *prometheus.CounterVec
	parsers  *prometheus.CounterVec
}

// NewMetrics registers the classifier collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "focus",
			Subsystem: "classifier",
			Name:      "attempts_total",
			Help:      "Classification attempts by provider and result",
		}, []string{"provider", "result"}),
		parsers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "focus",
			Subsystem: "classifier",
			Name:      "verdicts_total",
			Help:      "Verdicts by the parser stage that produced them",
		}, []string{"parser"}),
	}
}

func (m *Metrics) recordAttempt(provider, result string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) recordParser(parser string) {
	if m == nil {
		return
	}
	m.parsers.WithLabelValues(parser).Inc()
}
