package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service counters. A nil *Metrics is valid and records
// nothing, so components can be built without instrumentation in tests.
type Metrics struct {
	registry *prometheus.Registry

	emits             *prometheus.CounterVec
	deliveries        *prometheus.CounterVec
	handlerPanics     *prometheus.CounterVec
	publishFailures   *prometheus.CounterVec
	remoteReceived    *prometheus.CounterVec
	draftOps          *prometheus.CounterVec
	draftStorageFails *prometheus.CounterVec
	wsClients         prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.emits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "minutes_live",
		Name:      "emits_total",
		Help:      "Live events emitted in this process",
	}, []string{"topic"})
	m.deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "minutes_live",
		Name:      "handler_deliveries_total",
		Help:      "Handler invocations, split by local or cross-tab origin",
	}, []string{"topic", "source"})
	m.handlerPanics = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "minutes_live",
		Name:      "handler_panics_total",
		Help:      "Handlers that panicked during delivery",
	}, []string{"topic"})
	m.publishFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "minutes_live",
		Name:      "crosstab_publish_failures_total",
		Help:      "Cross-tab marker writes that failed",
	}, []string{"topic"})
	m.remoteReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "minutes_live",
		Name:      "crosstab_received_total",
		Help:      "Cross-tab notifications received from other tabs",
	}, []string{"topic"})
	m.draftOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "minutes_drafts",
		Name:      "operations_total",
		Help:      "Draft store mutations",
	}, []string{"op"})
	m.draftStorageFails = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "minutes_drafts",
		Name:      "storage_failures_total",
		Help:      "Draft storage reads or writes that failed or returned corrupt data",
	}, []string{"op"})
	m.wsClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "minutes_live",
		Name:      "websocket_clients",
		Help:      "Connected WebSocket clients",
	})

	m.registry.MustRegister(
		m.emits, m.deliveries, m.handlerPanics, m.publishFailures,
		m.remoteReceived, m.draftOps, m.draftStorageFails, m.wsClients,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Emit(topic string) {
	if m == nil {
		return
	}
	m.emits.WithLabelValues(topic).Inc()
}

// Delivered counts one handler invocation; remote marks cross-tab origin.
func (m *Metrics) Delivered(topic string, remote bool) {
	if m == nil {
		return
	}
	source := "local"
	if remote {
		source = "remote"
	}
	m.deliveries.WithLabelValues(topic, source).Inc()
}

func (m *Metrics) HandlerPanic(topic string) {
	if m == nil {
		return
	}
	m.handlerPanics.WithLabelValues(topic).Inc()
}

func (m *Metrics) PublishFailed(topic string) {
	if m == nil {
		return
	}
	m.publishFailures.WithLabelValues(topic).Inc()
}

func (m *Metrics) RemoteReceived(topic string) {
	if m == nil {
		return
	}
	m.remoteReceived.WithLabelValues(topic).Inc()
}

// DraftOp counts a draft mutation ("save" or "remove").
func (m *Metrics) DraftOp(op string) {
	if m == nil {
		return
	}
	m.draftOps.WithLabelValues(op).Inc()
}

// DraftStorageFailed counts a failed or corrupt storage access ("read" or "write").
func (m *Metrics) DraftStorageFailed(op string) {
	if m == nil {
		return
	}
	m.draftStorageFails.WithLabelValues(op).Inc()
}

func (m *Metrics) SetWebSocketClients(n int) {
	if m == nil {
		return
	}
	m.wsClients.Set(float64(n))
}
