// Package observer is the ObserverBus spec.md §2/§6 describes: a
// pure read-side fan-out of domain events to optional sinks (audit,
// metrics), wired from the teacher's event-publishing idiom
// (internal/message/kafka_producer.go's IntegrationEvent conversion)
// but rebuilt around this system's own event shapes rather than the
// teacher's events.Event hierarchy — see DESIGN.md.
package observer

import (
	"time"

	"github.com/chargenet/central-system/internal/ocpp"
)

// Direction is recv or send, per spec.md §6's audit record shape.
type Direction string

const (
	DirectionRecv Direction = "recv"
	DirectionSend Direction = "send"
)

// AuditSink receives one record per frame and one per connection
// lifecycle event, per spec.md §6.
type AuditSink interface {
	Frame(stationID string, dir Direction, raw []byte, remoteAddr string)
	Connect(stationID string, remoteAddr string)
	Disconnect(stationID string, remoteAddr string)
}

// MetricsSink receives the named counters/gauges spec.md §6 lists.
type MetricsSink interface {
	ConnectionUp(stationID string)
	ConnectionDown(stationID string)
	MessageReceived(stationID string, action ocpp.Action)
	MessageSent(stationID string, action ocpp.Action)
	HandlerLatency(stationID string, action ocpp.Action, d time.Duration)
	TransactionActive(stationID string, connectorID int, delta int)
	EnergyDelivered(stationID string, connectorID int, wh int)
	DisconnectDuringActiveTx(stationID string)
	EnergyJump(stationID string, txID int, previous, current, delta int)
	CallTimeout(stationID string, action ocpp.Action)
	CallRejected(stationID string, action ocpp.Action)
}

// Bus fans events out to zero or more sinks of each kind. A missing sink
// of a kind is a silent no-op, never an error — both kinds are optional
// per spec.md §2.
type Bus struct {
	audit   []AuditSink
	metrics []MetricsSink
}

func NewBus() *Bus { return &Bus{} }

func (b *Bus) AddAuditSink(s AuditSink) { b.audit = append(b.audit, s) }

func (b *Bus) AddMetricsSink(s MetricsSink) { b.metrics = append(b.metrics, s) }

// Frame fans out one audit record for a single inbound/outbound frame.
// Panics from a misbehaving sink are recovered and swallowed, per
// spec.md §7's "observer sink failure: log and swallow".
func (b *Bus) Frame(stationID string, dir Direction, raw []byte, remoteAddr string) {
	for _, s := range b.audit {
		b.safeAudit(func() { s.Frame(stationID, dir, raw, remoteAddr) })
	}
}

func (b *Bus) Connect(stationID, remoteAddr string) {
	for _, s := range b.audit {
		b.safeAudit(func() { s.Connect(stationID, remoteAddr) })
	}
}

func (b *Bus) Disconnect(stationID, remoteAddr string) {
	for _, s := range b.audit {
		b.safeAudit(func() { s.Disconnect(stationID, remoteAddr) })
	}
}

func (b *Bus) ConnectionUp(stationID string) {
	for _, s := range b.metrics {
		b.safeMetrics(func() { s.ConnectionUp(stationID) })
	}
}

func (b *Bus) ConnectionDown(stationID string) {
	for _, s := range b.metrics {
		b.safeMetrics(func() { s.ConnectionDown(stationID) })
	}
}

func (b *Bus) MessageReceived(stationID string, action ocpp.Action) {
	for _, s := range b.metrics {
		b.safeMetrics(func() { s.MessageReceived(stationID, action) })
	}
}

func (b *Bus) MessageSent(stationID string, action ocpp.Action) {
	for _, s := range b.metrics {
		b.safeMetrics(func() { s.MessageSent(stationID, action) })
	}
}

func (b *Bus) HandlerLatency(stationID string, action ocpp.Action, d time.Duration) {
	for _, s := range b.metrics {
		b.safeMetrics(func() { s.HandlerLatency(stationID, action, d) })
	}
}

func (b *Bus) TransactionActive(stationID string, connectorID int, delta int) {
	for _, s := range b.metrics {
		b.safeMetrics(func() { s.TransactionActive(stationID, connectorID, delta) })
	}
}

func (b *Bus) EnergyDelivered(stationID string, connectorID int, wh int) {
	for _, s := range b.metrics {
		b.safeMetrics(func() { s.EnergyDelivered(stationID, connectorID, wh) })
	}
}

func (b *Bus) DisconnectDuringActiveTx(stationID string) {
	for _, s := range b.metrics {
		b.safeMetrics(func() { s.DisconnectDuringActiveTx(stationID) })
	}
}

func (b *Bus) EnergyJump(stationID string, txID int, previous, current, delta int) {
	for _, s := range b.metrics {
		b.safeMetrics(func() { s.EnergyJump(stationID, txID, previous, current, delta) })
	}
}

func (b *Bus) CallTimeout(stationID string, action ocpp.Action) {
	for _, s := range b.metrics {
		b.safeMetrics(func() { s.CallTimeout(stationID, action) })
	}
}

func (b *Bus) CallRejected(stationID string, action ocpp.Action) {
	for _, s := range b.metrics {
		b.safeMetrics(func() { s.CallRejected(stationID, action) })
	}
}

func (b *Bus) safeAudit(fn func()) {
	defer func() { recover() }()
	fn()
}

func (b *Bus) safeMetrics(fn func()) {
	defer func() { recover() }()
	fn()
}
