package observer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chargenet/central-system/internal/ocpp"
)

type recordingAuditSink struct {
	frames   int
	connects int
	disconns int
}

func (r *recordingAuditSink) Frame(string, Direction, []byte, string) { r.frames++ }
func (r *recordingAuditSink) Connect(string, string)                  { r.connects++ }
func (r *recordingAuditSink) Disconnect(string, string)               { r.disconns++ }

type panickyAuditSink struct{}

func (panickyAuditSink) Frame(string, Direction, []byte, string) { panic("boom") }
func (panickyAuditSink) Connect(string, string)                  { panic("boom") }
func (panickyAuditSink) Disconnect(string, string)               { panic("boom") }

type recordingMetricsSink struct {
	jumps int
}

func (r *recordingMetricsSink) ConnectionUp(string)                               {}
func (r *recordingMetricsSink) ConnectionDown(string)                             {}
func (r *recordingMetricsSink) MessageReceived(string, ocpp.Action)               {}
func (r *recordingMetricsSink) MessageSent(string, ocpp.Action)                   {}
func (r *recordingMetricsSink) HandlerLatency(string, ocpp.Action, time.Duration) {}
func (r *recordingMetricsSink) TransactionActive(string, int, int)               {}
func (r *recordingMetricsSink) EnergyDelivered(string, int, int)                  {}
func (r *recordingMetricsSink) DisconnectDuringActiveTx(string)                   {}
func (r *recordingMetricsSink) EnergyJump(string, int, int, int, int)             { r.jumps++ }
func (r *recordingMetricsSink) CallTimeout(string, ocpp.Action)                   {}
func (r *recordingMetricsSink) CallRejected(string, ocpp.Action)                  {}

type panickyMetricsSink struct{ recordingMetricsSink }

func (panickyMetricsSink) EnergyJump(string, int, int, int, int) { panic("boom") }

// TestBusFansOutToAllSinks covers the multi-sink case: both audit sinks
// receive every Frame call.
func TestBusFansOutToAllSinks(t *testing.T) {
	bus := NewBus()
	a := &recordingAuditSink{}
	b := &recordingAuditSink{}
	bus.AddAuditSink(a)
	bus.AddAuditSink(b)

	bus.Frame("cp-1", DirectionRecv, []byte("[2,\"1\",\"Heartbeat\",{}]"), "10.0.0.1")
	bus.Connect("cp-1", "10.0.0.1")
	bus.Disconnect("cp-1", "10.0.0.1")

	require.Equal(t, 1, a.frames)
	require.Equal(t, 1, a.connects)
	require.Equal(t, 1, a.disconns)
	require.Equal(t, 1, b.frames)
}

// TestBusRecoversFromPanickingAuditSink covers spec.md's "observer sink
// failure: log and swallow" — a panicking sink must not prevent a
// well-behaved sink registered alongside it from running.
func TestBusRecoversFromPanickingAuditSink(t *testing.T) {
	bus := NewBus()
	bus.AddAuditSink(panickyAuditSink{})
	good := &recordingAuditSink{}
	bus.AddAuditSink(good)

	require.NotPanics(t, func() {
		bus.Frame("cp-1", DirectionSend, []byte("[]"), "10.0.0.1")
		bus.Connect("cp-1", "10.0.0.1")
		bus.Disconnect("cp-1", "10.0.0.1")
	})
	require.Equal(t, 1, good.frames)
	require.Equal(t, 1, good.connects)
	require.Equal(t, 1, good.disconns)
}

// TestBusRecoversFromPanickingMetricsSink mirrors the audit case for
// the metrics fan-out path.
func TestBusRecoversFromPanickingMetricsSink(t *testing.T) {
	bus := NewBus()
	bus.AddMetricsSink(panickyMetricsSink{})
	good := &recordingMetricsSink{}
	bus.AddMetricsSink(good)

	require.NotPanics(t, func() {
		bus.EnergyJump("cp-1", 1, 100, 200, 100)
	})
	require.Equal(t, 1, good.jumps)
}

// TestBusWithNoSinksIsNoOp covers the "missing sink is a silent no-op"
// guarantee: calling any fan-out method with zero registered sinks must
// never panic.
func TestBusWithNoSinksIsNoOp(t *testing.T) {
	bus := NewBus()
	require.NotPanics(t, func() {
		bus.Frame("cp-1", DirectionRecv, nil, "")
		bus.ConnectionUp("cp-1")
		bus.CallTimeout("cp-1", ocpp.ActionHeartbeat)
	})
}
