// Package metrics defines the Prometheus collectors shared by the transport,
// the event dispatcher and the callback registry.
//
// A nil *Metrics is valid and records nothing, so library users that do not
// care about metrics never have to construct one.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "ircore").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

// Metrics holds every collector of the library.
type Metrics struct {
	linesReceived    *prometheus.CounterVec
	linesSent        *prometheus.CounterVec
	sendErrors       *prometheus.CounterVec
	sendQueue        *prometheus.GaugeVec
	eventsDispatched *prometheus.CounterVec
	handlerErrors    *prometheus.CounterVec
	handlerPanics    *prometheus.CounterVec
	callbacksMatched prometheus.Counter
	callbacksExpired prometheus.Counter
	callbacksPending prometheus.Gauge
	connectionsLost  *prometheus.CounterVec
}

// New registers the collectors with the configured registry.
func New(opts ...Option) *Metrics {
	config := Config{
		Namespace: "ircore",
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}, labels)
	}

	return &Metrics{
		linesReceived:    counterVec("lines_received_total", "Total number of lines read from IRC servers", "server"),
		linesSent:        counterVec("lines_sent_total", "Total number of lines written to IRC servers", "server"),
		sendErrors:       counterVec("send_errors_total", "Total number of lines dropped because the write failed", "server"),
		eventsDispatched: counterVec("events_dispatched_total", "Total number of events dispatched to handlers", "event"),
		handlerErrors:    counterVec("handler_errors_total", "Total number of handler invocations that returned an error", "event"),
		handlerPanics:    counterVec("handler_panics_total", "Total number of handler invocations that panicked", "event"),
		connectionsLost:  counterVec("connections_lost_total", "Total number of connections that ended", "server", "reason"),

		sendQueue: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "send_queue_depth",
			Help:        "Number of lines waiting in the send queue",
			ConstLabels: config.ConstLabels,
		}, []string{"server"}),

		callbacksMatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "callbacks_matched_total",
			Help:        "Total number of callbacks completed by a matching packet",
			ConstLabels: config.ConstLabels,
		}),
		callbacksExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "callbacks_expired_total",
			Help:        "Total number of callbacks that timed out",
			ConstLabels: config.ConstLabels,
		}),
		callbacksPending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "callbacks_pending",
			Help:        "Number of callbacks waiting for a packet",
			ConstLabels: config.ConstLabels,
		}),
	}
}

func (m *Metrics) LineReceived(server string) {
	if m != nil {
		m.linesReceived.WithLabelValues(server).Inc()
	}
}

func (m *Metrics) LineSent(server string) {
	if m != nil {
		m.linesSent.WithLabelValues(server).Inc()
	}
}

func (m *Metrics) SendError(server string) {
	if m != nil {
		m.sendErrors.WithLabelValues(server).Inc()
	}
}

func (m *Metrics) SendQueue(server string, depth int) {
	if m != nil {
		m.sendQueue.WithLabelValues(server).Set(float64(depth))
	}
}

func (m *Metrics) EventDispatched(event string) {
	if m != nil {
		m.eventsDispatched.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) HandlerError(event string) {
	if m != nil {
		m.handlerErrors.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) HandlerPanic(event string) {
	if m != nil {
		m.handlerPanics.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) CallbackMatched() {
	if m != nil {
		m.callbacksMatched.Inc()
	}
}

func (m *Metrics) CallbackExpired() {
	if m != nil {
		m.callbacksExpired.Inc()
	}
}

func (m *Metrics) CallbacksPending(n int) {
	if m != nil {
		m.callbacksPending.Set(float64(n))
	}
}

func (m *Metrics) ConnectionLost(server, reason string) {
	if m != nil {
		m.connectionsLost.WithLabelValues(server, reason).Inc()
	}
}
