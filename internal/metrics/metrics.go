// Package metrics exposes Prometheus instrumentation for the relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the relay server.
type Metrics struct {
	registry            *prometheus.Registry
	roomsCreatedTotal   prometheus.Counter
	roomsDeletedTotal   prometheus.Counter
	activeRooms         prometheus.Gauge
	connectedViewers    prometheus.Gauge
	fragmentsTotal      prometheus.Counter
	fragmentBytesTotal  prometheus.Counter
	droppedSendsTotal   prometheus.Counter
	protocolErrorsTotal prometheus.Counter
}

// New creates and registers relay metrics on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	roomsCreatedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_rooms_created_total",
		Help: "Total number of rooms created",
	})
	roomsDeletedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_rooms_deleted_total",
		Help: "Total number of rooms deleted, explicitly or by streamer disconnect",
	})
	activeRooms := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_active_rooms",
		Help: "Number of live rooms",
	})
	connectedViewers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connected_viewers",
		Help: "Number of viewer memberships across all rooms",
	})
	fragmentsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_stream_fragments_total",
		Help: "Total number of stream fragments relayed",
	})
	fragmentBytesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_stream_fragment_bytes_total",
		Help: "Total encoded payload bytes relayed to viewers",
	})
	droppedSendsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_dropped_sends_total",
		Help: "Messages dropped because a client send buffer was full",
	})
	protocolErrorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_protocol_errors_total",
		Help: "Malformed messages and references to unknown rooms",
	})

	registry.MustRegister(
		roomsCreatedTotal,
		roomsDeletedTotal,
		activeRooms,
		connectedViewers,
		fragmentsTotal,
		fragmentBytesTotal,
		droppedSendsTotal,
		protocolErrorsTotal,
	)

	return &Metrics{
		registry:            registry,
		roomsCreatedTotal:   roomsCreatedTotal,
		roomsDeletedTotal:   roomsDeletedTotal,
		activeRooms:         activeRooms,
		connectedViewers:    connectedViewers,
		fragmentsTotal:      fragmentsTotal,
		fragmentBytesTotal:  fragmentBytesTotal,
		droppedSendsTotal:   droppedSendsTotal,
		protocolErrorsTotal: protocolErrorsTotal,
	}
}

// IncRoomsCreated increments the rooms created counter.
func (m *Metrics) IncRoomsCreated() { m.roomsCreatedTotal.Inc() }

// IncRoomsDeleted increments the rooms deleted counter.
func (m *Metrics) IncRoomsDeleted() { m.roomsDeletedTotal.Inc() }

// SetActiveRooms sets the live room gauge.
func (m *Metrics) SetActiveRooms(n int) { m.activeRooms.Set(float64(n)) }

// SetConnectedViewers sets the viewer membership gauge.
func (m *Metrics) SetConnectedViewers(n int) { m.connectedViewers.Set(float64(n)) }

// AddFragment records one relayed fragment of the given encoded payload size,
// fanned out to n viewers.
func (m *Metrics) AddFragment(payloadBytes, fanout int) {
	m.fragmentsTotal.Inc()
	m.fragmentBytesTotal.Add(float64(payloadBytes * fanout))
}

// IncDroppedSends increments the dropped send counter.
func (m *Metrics) IncDroppedSends() { m.droppedSendsTotal.Inc() }

// IncProtocolErrors increments the protocol error counter.
func (m *Metrics) IncProtocolErrors() { m.protocolErrorsTotal.Inc() }

// Handler returns an http.Handler serving the relay metrics. updateGauges is
// called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
