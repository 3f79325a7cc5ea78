// internal/monitoring/monitoring.go
package monitoring

import (
	"net/http"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the service exports. A nil *Metrics is valid and records nothing,
// which keeps tests and tools free of registry plumbing.
type Metrics struct {
	registry *prometheus.Registry

	roomsCreated   prometheus.Counter
	roomsDeleted   prometheus.Counter
	joins          *prometheus.CounterVec
	intents        *prometheus.CounterVec
	chatMessages   prometheus.Counter
	ticks          prometheus.Counter
	tickErrors     prometheus.Counter
	alerts         *prometheus.CounterVec
	simulations    prometheus.Gauge
	connections    *prometheus.GaugeVec
	requestSeconds *prometheus.SummaryVec
	goroutines     prometheus.GaugeFunc
}

// New builds the collectors under the given namespace and registers them on a private registry.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		roomsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rooms_created_total",
			Help: "Rooms created.",
		}),
		roomsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rooms_deleted_total",
			Help: "Rooms deleted after their last player left.",
		}),
		joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "room_joins_total",
			Help: "Join attempts by outcome.",
		}, []string{"result"}),
		intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "intents_total",
			Help: "Role control intents by action and outcome.",
		}, []string{"action", "result"}),
		chatMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "chat_messages_total",
			Help: "Chat messages appended.",
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "simulation_ticks_total",
			Help: "Simulation ticks committed.",
		}),
		tickErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "simulation_tick_errors_total",
			Help: "Simulation ticks that failed to commit.",
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "vessel_alerts_total",
			Help: "Vessel alerts raised by level.",
		}, []string{"level"}),
		simulations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_simulations",
			Help: "Rooms with a running simulation loop.",
		}),
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "websocket_connections",
			Help: "Open websocket connections by endpoint.",
		}, []string{"endpoint"}),
		requestSeconds: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:       "HTTP request latency by method.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"method"}),
		goroutines: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "goroutines",
			Help: "Current number of goroutines.",
		}, func() float64 { return float64(runtime.NumGoroutine()) }),
	}

	m.registry.MustRegister(
		m.roomsCreated, m.roomsDeleted, m.joins, m.intents, m.chatMessages,
		m.ticks, m.tickErrors, m.alerts, m.simulations, m.connections,
		m.requestSeconds, m.goroutines,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RoomCreated() {
	if m != nil {
		m.roomsCreated.Inc()
	}
}

func (m *Metrics) RoomDeleted() {
	if m != nil {
		m.roomsDeleted.Inc()
	}
}

// Join records a join attempt; result is e.g. "joined", "rejoined", "full".
func (m *Metrics) Join(result string) {
	if m != nil {
		m.joins.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Intent(action, result string) {
	if m != nil {
		m.intents.WithLabelValues(action, result).Inc()
	}
}

func (m *Metrics) ChatMessage() {
	if m != nil {
		m.chatMessages.Inc()
	}
}

func (m *Metrics) Tick(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.tickErrors.Inc()
		return
	}
	m.ticks.Inc()
}

func (m *Metrics) Alert(level string) {
	if m != nil {
		m.alerts.WithLabelValues(level).Inc()
	}
}

func (m *Metrics) SetSimulations(n int) {
	if m != nil {
		m.simulations.Set(float64(n))
	}
}

// ConnectionOpened and ConnectionClosed track live websockets per endpoint ("room", "lobby").
func (m *Metrics) ConnectionOpened(endpoint string) {
	if m != nil {
		m.connections.WithLabelValues(endpoint).Inc()
	}
}

func (m *Metrics) ConnectionClosed(endpoint string) {
	if m != nil {
		m.connections.WithLabelValues(endpoint).Dec()
	}
}

func (m *Metrics) ObserveRequest(method string, seconds float64) {
	if m != nil {
		m.requestSeconds.WithLabelValues(method).Observe(seconds)
	}
}
