package metrics

import "github.com/prometheus/client_golang/prometheus"

var breakerStateValue = map[string]float64{
	"closed":    0,
	"half-open": 1,
	"open":      2,
}

// resilienceCollectors implements resilience.Observer for a single service.
type resilienceCollectors struct {
	service      string
	retriesTotal *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
}

func newResilienceCollectors(service string) *resilienceCollectors {
	return &resilienceCollectors{
		service: service,
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "resilience",
				Name:      "retries_total",
				Help:      "Retries performed by the resilience executor.",
			},
			[]string{"service", "operation"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "resilience",
				Name:      "breaker_state",
				Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
			},
			[]string{"service", "operation"},
		),
	}
}

func (c *resilienceCollectors) register(registry *prometheus.Registry) {
	registry.MustRegister(c.retriesTotal, c.breakerState)
}

func (c *resilienceCollectors) ObserveRetry(operation string) {
	c.retriesTotal.WithLabelValues(c.service, operation).Inc()
}

func (c *resilienceCollectors) ObserveBreakerState(operation string, state string) {
	value, ok := breakerStateValue[state]
	if !ok {
		return
	}
	c.breakerState.WithLabelValues(c.service, operation).Set(value)
}
