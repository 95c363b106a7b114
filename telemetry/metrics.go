// Package telemetry exports GBP message counts and planner health as Prometheus metrics.
package telemetry

import (
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.viam.com/gbpplanner/factorgraph"
)

// Metrics bundles the planner's collectors.
type Metrics struct {
	gatherer prometheus.Gatherer

	MessagesSent     *prometheus.CounterVec
	MessagesReceived *prometheus.CounterVec
	Robots           prometheus.Gauge
	InvalidVariables prometheus.Gauge
	TickDuration     prometheus.Histogram
}

// NewMetrics registers the planner metrics against reg, defaulting to the global registry when
// nil. Registering twice on the same registry returns the existing collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	sent, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gbp_messages_sent_total",
		Help: "Non-empty GBP messages sent, labeled by passing mode.",
	}, []string{"mode"}))
	if err != nil {
		return nil, err
	}
	received, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gbp_messages_received_total",
		Help: "Non-empty GBP messages received, labeled by passing mode.",
	}, []string{"mode"}))
	if err != nil {
		return nil, err
	}
	robots, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gbp_robots",
		Help: "Robots currently simulated.",
	}))
	if err != nil {
		return nil, err
	}
	invalid, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gbp_invalid_variables",
		Help: "Variables whose belief could not be inverted on the last tick.",
	}))
	if err != nil {
		return nil, err
	}
	tick, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gbp_tick_seconds",
		Help:    "Wall time of one simulation tick.",
		Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		gatherer:         gatherer,
		MessagesSent:     sent,
		MessagesReceived: received,
		Robots:           robots,
		InvalidVariables: invalid,
		TickDuration:     tick,
	}, nil
}

// ObserveTick records the outcome of one tick. A nil Metrics records nothing.
func (m *Metrics) ObserveTick(counts factorgraph.MessageCounts, robots, invalidVariables int, took time.Duration) {
	if m == nil {
		return
	}
	for mode, count := range map[factorgraph.MessagePassingMode]factorgraph.MessageCount{
		factorgraph.Internal: counts.Internal,
		factorgraph.External: counts.External,
	} {
		m.MessagesSent.WithLabelValues(mode.String()).Add(float64(count.Sent))
		m.MessagesReceived.WithLabelValues(mode.String()).Add(float64(count.Received))
	}
	m.Robots.Set(float64(robots))
	m.InvalidVariables.Set(float64(invalidVariables))
	m.TickDuration.Observe(took.Seconds())
}

// Handler serves the registered metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, errors.Errorf("collector %v already registered with incompatible type", c)
		}
		var zero T
		return zero, err
	}
	return c, nil
}
