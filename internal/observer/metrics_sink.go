package observer

import (
	"strconv"
	"time"

	"github.com/chargenet/central-system/internal/metrics"
	"github.com/chargenet/central-system/internal/ocpp"
)

// PrometheusMetricsSink implements MetricsSink over the promauto
// instruments in internal/metrics, grounded on the teacher's
// internal/metrics package and its handleSuccesses/handleErrors callers
// in internal/message/kafka_producer.go that increment counters inline.
type PrometheusMetricsSink struct{}

func NewPrometheusMetricsSink() *PrometheusMetricsSink { return &PrometheusMetricsSink{} }

func (s *PrometheusMetricsSink) ConnectionUp(stationID string) {
	metrics.ConnectionsUp.WithLabelValues(stationID).Inc()
	metrics.ActiveConnections.Inc()
}

func (s *PrometheusMetricsSink) ConnectionDown(stationID string) {
	metrics.ConnectionsDown.WithLabelValues(stationID).Inc()
	metrics.ActiveConnections.Dec()
}

func (s *PrometheusMetricsSink) MessageReceived(stationID string, action ocpp.Action) {
	metrics.MessagesReceived.WithLabelValues(stationID, string(action)).Inc()
}

func (s *PrometheusMetricsSink) MessageSent(stationID string, action ocpp.Action) {
	metrics.MessagesSent.WithLabelValues(stationID, string(action)).Inc()
}

func (s *PrometheusMetricsSink) HandlerLatency(stationID string, action ocpp.Action, d time.Duration) {
	metrics.HandlerLatency.WithLabelValues(stationID, string(action)).Observe(d.Seconds())
}

func (s *PrometheusMetricsSink) TransactionActive(stationID string, connectorID int, delta int) {
	g := metrics.TransactionsActive.WithLabelValues(stationID, strconv.Itoa(connectorID))
	if delta > 0 {
		g.Add(float64(delta))
	} else {
		g.Sub(float64(-delta))
	}
}

func (s *PrometheusMetricsSink) EnergyDelivered(stationID string, connectorID int, wh int) {
	if wh <= 0 {
		return
	}
	metrics.EnergyDeliveredTotal.WithLabelValues(stationID, strconv.Itoa(connectorID)).Add(float64(wh))
}

func (s *PrometheusMetricsSink) DisconnectDuringActiveTx(stationID string) {
	metrics.DisconnectsDuringActiveTx.WithLabelValues(stationID).Inc()
}

// EnergyJump only feeds the station_id label into Prometheus — txID,
// previous, current, and delta would blow up cardinality as counter
// labels; other MetricsSink implementations receive the full values on
// the call. Audit sinks are not given EnergyJump events.
func (s *PrometheusMetricsSink) EnergyJump(stationID string, txID int, previous, current, delta int) {
	metrics.EnergyJumps.WithLabelValues(stationID).Inc()
}

func (s *PrometheusMetricsSink) CallTimeout(stationID string, action ocpp.Action) {
	metrics.CentralCallTimeouts.WithLabelValues(stationID, string(action)).Inc()
}

func (s *PrometheusMetricsSink) CallRejected(stationID string, action ocpp.Action) {
	metrics.CentralCallRejections.WithLabelValues(stationID, string(action)).Inc()
}

var _ MetricsSink = (*PrometheusMetricsSink)(nil)
