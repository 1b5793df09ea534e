// Package metrics declares the prometheus/client_golang instruments
// spec.md §6 names for the metrics sink: connection up/down per
// station, per-action message counts, handler-latency histogram keyed
// by station and action, transaction active/energy gauges keyed by
// station and connector, cumulative energy counter, disconnects-during-
// active-tx counter, energy-jump counter, central-call-timeout/rejection
// counters. Grounded on the teacher's internal/metrics/metrics.go
// promauto idiom, expanded to this domain's full metric list.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsUp = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "centralsystem_connections_up_total",
		Help: "Total number of station connections established.",
	}, []string{"station_id"})

	ConnectionsDown = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "centralsystem_connections_down_total",
		Help: "Total number of station connections closed.",
	}, []string{"station_id"})

	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "centralsystem_active_connections",
		Help: "Current number of live station sessions.",
	})

	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "centralsystem_messages_received_total",
		Help: "Total number of inbound Call messages, labeled by station and action.",
	}, []string{"station_id", "action"})

	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "centralsystem_messages_sent_total",
		Help: "Total number of outbound Call messages, labeled by station and action.",
	}, []string{"station_id", "action"})

	HandlerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "centralsystem_handler_latency_seconds",
		Help:    "Handler processing latency, labeled by station and action.",
		Buckets: prometheus.DefBuckets,
	}, []string{"station_id", "action"})

	TransactionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "centralsystem_transactions_active",
		Help: "Current number of Active transactions, labeled by station and connector.",
	}, []string{"station_id", "connector_id"})

	EnergyDeliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "centralsystem_energy_delivered_wh_total",
		Help: "Cumulative energy delivered in Wh, labeled by station and connector.",
	}, []string{"station_id", "connector_id"})

	DisconnectsDuringActiveTx = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "centralsystem_disconnects_during_active_tx_total",
		Help: "Total disconnects observed while a station had at least one Active transaction.",
	}, []string{"station_id"})

	EnergyJumps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "centralsystem_energy_jumps_total",
		Help: "Total meter-reading jumps exceeding the configured threshold.",
	}, []string{"station_id"})

	CentralCallTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "centralsystem_call_timeouts_total",
		Help: "Total central-initiated calls that timed out awaiting a reply.",
	}, []string{"station_id", "action"})

	CentralCallRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "centralsystem_call_rejections_total",
		Help: "Total central-initiated calls rejected by the station.",
	}, []string{"station_id", "action"})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "centralsystem_events_published_total",
		Help: "Total number of audit events published to the message broker.",
	}, []string{"event_type"})

	CommandsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "centralsystem_commands_consumed_total",
		Help: "Total number of external commands consumed from the message broker.",
	}, []string{"command_name"})
)
