package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chargenet/central-system/internal/observer"
	"github.com/chargenet/central-system/internal/ocpp"
	"github.com/chargenet/central-system/internal/pipeline"
	"github.com/chargenet/central-system/internal/store"
)

func newDeps(t *testing.T) (Deps, store.Store) {
	t.Helper()
	st := store.NewMemory()
	return Deps{
		Store:                    st,
		Validator:                ocpp.NewValidator(),
		Bus:                      observer.NewBus(),
		HeartbeatIntervalSeconds: 60,
	}, st
}

// TestStartTransactionClosesOrphanFirst covers spec.md's orphan-closure
// step: a station that never sent StopTransaction for its previous
// session has that transaction force-stopped before the new one opens.
func TestStartTransactionClosesOrphanFirst(t *testing.T) {
	ctx := context.Background()
	d, st := newDeps(t)

	orphan, err := st.CreateTransaction(ctx, "cp-1", 1, "tag-0", time.Now().Add(-time.Hour), 100)
	require.NoError(t, err)

	err = st.CreateMeterValues(ctx, []store.MeterValue{{
		TransactionID: orphan.ID,
		Timestamp:     time.Now().Add(-time.Minute),
		Value:         "500",
		Measurand:     ocpp.DefaultMeasurand,
	}})
	require.NoError(t, err)

	cat := BuildCatalog(d)
	req := &pipeline.Request{
		StationID: "cp-1",
		UniqueID:  "1",
		Action:    ocpp.ActionStartTransaction,
		Payload: &ocpp.StartTransactionRequest{
			ConnectorId: 1,
			IdTag:       "tag-1",
			MeterStart:  0,
			Timestamp:   ocpp.NewDateTime(time.Now()),
		},
		Extra: map[string]interface{}{},
	}

	resp, err := cat.Dispatch(ctx, req)
	require.NoError(t, err)
	require.Nil(t, resp.ReplyErr)

	closedOrphan, found, err := st.GetTransaction(ctx, orphan.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, store.TransactionCompleted, closedOrphan.Status)
	require.NotNil(t, closedOrphan.EnergyDelivered)
	require.Equal(t, 400, *closedOrphan.EnergyDelivered)

	active, err := st.ActiveForChargePoint(ctx, "cp-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "tag-1", active[0].IDTag)

	require.NotNil(t, resp.TransactionID)
	require.Equal(t, active[0].ID, *resp.TransactionID)
}

// TestBootNotificationClosesOrphanWithReasonReboot covers the other
// orphan-closure call site: BootNotification re-running the same sweep
// with reason Reboot instead of Other.
func TestBootNotificationClosesOrphanWithReasonReboot(t *testing.T) {
	ctx := context.Background()
	d, st := newDeps(t)

	tx, err := st.CreateTransaction(ctx, "cp-2", 1, "tag-0", time.Now().Add(-time.Hour), 50)
	require.NoError(t, err)

	cat := BuildCatalog(d)
	req := &pipeline.Request{
		StationID: "cp-2",
		UniqueID:  "1",
		Action:    ocpp.ActionBootNotification,
		Payload: &ocpp.BootNotificationRequest{
			ChargePointVendor: "Acme",
			ChargePointModel:  "X1",
		},
		Extra: map[string]interface{}{},
	}

	resp, err := cat.Dispatch(ctx, req)
	require.NoError(t, err)
	require.Nil(t, resp.ReplyErr)

	closed, found, err := st.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, store.TransactionCompleted, closed.Status)
	require.NotNil(t, closed.StopReason)
	require.Equal(t, ocpp.ReasonReboot, *closed.StopReason)
}

// TestMeterValuesReportsEnergyJump covers the absolute-value jump
// detection, scoped per transaction: a reading that moves more than
// JumpThresholdWh away from the last one fires EnergyJump.
func TestMeterValuesReportsEnergyJump(t *testing.T) {
	ctx := context.Background()
	d, st := newDeps(t)
	d.JumpThresholdWh = 1000

	tx, err := st.CreateTransaction(ctx, "cp-3", 1, "tag-1", time.Now(), 0)
	require.NoError(t, err)

	sink := newFakeMetricsSink()
	d.Bus.AddMetricsSink(sink)
	cat := BuildCatalog(d)

	send := func(value string) {
		req := &pipeline.Request{
			StationID: "cp-3",
			UniqueID:  "1",
			Action:    ocpp.ActionMeterValues,
			Payload: &ocpp.MeterValuesRequest{
				ConnectorId:   1,
				TransactionId: &tx.ID,
				MeterValue: []ocpp.MeterValue{{
					Timestamp:    ocpp.NewDateTime(time.Now()),
					SampledValue: []ocpp.SampledValue{{Value: value}},
				}},
			},
			Extra: map[string]interface{}{},
		}
		_, err := cat.Dispatch(ctx, req)
		require.NoError(t, err)
	}

	send("100")
	select {
	case <-sink.jumps:
		t.Fatal("unexpected EnergyJump on the first reading")
	case <-time.After(10 * time.Millisecond):
	}

	send("5000")
	select {
	case ev := <-sink.jumps:
		require.Equal(t, "cp-3", ev.stationID)
		require.Equal(t, tx.ID, ev.txID)
		require.Equal(t, 100, ev.previous)
		require.Equal(t, 5000, ev.current)
		require.Equal(t, 4900, ev.delta)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for EnergyJump")
	}
}

// TestMeterValuesWithinThresholdDoesNotJump ensures a small delta never
// fires the metric.
func TestMeterValuesWithinThresholdDoesNotJump(t *testing.T) {
	ctx := context.Background()
	d, st := newDeps(t)
	d.JumpThresholdWh = 1000

	tx, err := st.CreateTransaction(ctx, "cp-4", 1, "tag-1", time.Now(), 0)
	require.NoError(t, err)

	sink := newFakeMetricsSink()
	d.Bus.AddMetricsSink(sink)
	cat := BuildCatalog(d)

	for _, value := range []string{"100", "600"} {
		req := &pipeline.Request{
			StationID: "cp-4",
			UniqueID:  "1",
			Action:    ocpp.ActionMeterValues,
			Payload: &ocpp.MeterValuesRequest{
				ConnectorId:   1,
				TransactionId: &tx.ID,
				MeterValue: []ocpp.MeterValue{{
					Timestamp:    ocpp.NewDateTime(time.Now()),
					SampledValue: []ocpp.SampledValue{{Value: value}},
				}},
			},
			Extra: map[string]interface{}{},
		}
		_, err := cat.Dispatch(ctx, req)
		require.NoError(t, err)
	}

	select {
	case <-sink.jumps:
		t.Fatal("unexpected EnergyJump within threshold")
	case <-time.After(20 * time.Millisecond):
	}
}

// TestAutoRemoteStartEnqueuesOnPreparing covers the after-hook: a
// StatusNotification reporting Preparing, with the feature enabled,
// enqueues a RemoteStartTransaction side effect.
func TestAutoRemoteStartEnqueuesOnPreparing(t *testing.T) {
	ctx := context.Background()
	d, _ := newDeps(t)
	d.AutoRemoteStart = AutoRemoteStartConfig{Enabled: true, IDTag: "auto-tag", Delay: 5 * time.Second}
	cat := BuildCatalog(d)

	req := &pipeline.Request{
		StationID: "cp-5",
		UniqueID:  "1",
		Action:    ocpp.ActionStatusNotification,
		Payload: &ocpp.StatusNotificationRequest{
			ConnectorId: 1,
			ErrorCode:   ocpp.CPErrorNoError,
			Status:      ocpp.StatusPreparing,
			Timestamp:   ocpp.NewDateTime(time.Now()),
		},
		Extra: map[string]interface{}{},
	}

	resp, err := cat.Dispatch(ctx, req)
	require.NoError(t, err)

	var enqueued []ocpp.Action
	cat.RunAfter(ctx, req, resp, func(action ocpp.Action, payload interface{}, delay time.Duration) {
		enqueued = append(enqueued, action)
		remoteStart, ok := payload.(ocpp.RemoteStartTransactionRequest)
		require.True(t, ok)
		require.Equal(t, "auto-tag", remoteStart.IdTag)
		require.NotNil(t, remoteStart.ConnectorId)
		require.Equal(t, 1, *remoteStart.ConnectorId)
		require.Equal(t, 5*time.Second, delay)
	})
	require.Equal(t, []ocpp.Action{ocpp.ActionRemoteStartTransaction}, enqueued)
}

// TestAutoRemoteStartSkipsOtherStatuses covers the guard: any status
// other than Preparing never enqueues the side effect.
func TestAutoRemoteStartSkipsOtherStatuses(t *testing.T) {
	ctx := context.Background()
	d, _ := newDeps(t)
	d.AutoRemoteStart = AutoRemoteStartConfig{Enabled: true, IDTag: "auto-tag"}
	cat := BuildCatalog(d)

	req := &pipeline.Request{
		StationID: "cp-6",
		UniqueID:  "1",
		Action:    ocpp.ActionStatusNotification,
		Payload: &ocpp.StatusNotificationRequest{
			ConnectorId: 1,
			ErrorCode:   ocpp.CPErrorNoError,
			Status:      ocpp.StatusCharging,
			Timestamp:   ocpp.NewDateTime(time.Now()),
		},
		Extra: map[string]interface{}{},
	}

	resp, err := cat.Dispatch(ctx, req)
	require.NoError(t, err)

	var enqueued []ocpp.Action
	cat.RunAfter(ctx, req, resp, func(action ocpp.Action, payload interface{}, delay time.Duration) {
		enqueued = append(enqueued, action)
	})
	require.Empty(t, enqueued)
}

// TestAutoRemoteStartDisabledRegistersNoAfterHook covers the opposite:
// when the feature is off, BuildCatalog never registers an after-hook
// for StatusNotification at all.
func TestAutoRemoteStartDisabledRegistersNoAfterHook(t *testing.T) {
	ctx := context.Background()
	d, _ := newDeps(t)
	cat := BuildCatalog(d)

	req := &pipeline.Request{
		StationID: "cp-7",
		UniqueID:  "1",
		Action:    ocpp.ActionStatusNotification,
		Payload: &ocpp.StatusNotificationRequest{
			ConnectorId: 1,
			ErrorCode:   ocpp.CPErrorNoError,
			Status:      ocpp.StatusPreparing,
			Timestamp:   ocpp.NewDateTime(time.Now()),
		},
		Extra: map[string]interface{}{},
	}

	resp, err := cat.Dispatch(ctx, req)
	require.NoError(t, err)

	var calls int
	cat.RunAfter(ctx, req, resp, func(action ocpp.Action, payload interface{}, delay time.Duration) {
		calls++
	})
	require.Zero(t, calls)
}

type energyJumpEvent struct {
	stationID        string
	txID             int
	previous, current, delta int
}

type fakeMetricsSink struct {
	jumps chan energyJumpEvent
}

func newFakeMetricsSink() *fakeMetricsSink {
	return &fakeMetricsSink{jumps: make(chan energyJumpEvent, 8)}
}

func (f *fakeMetricsSink) ConnectionUp(string)                               {}
func (f *fakeMetricsSink) ConnectionDown(string)                             {}
func (f *fakeMetricsSink) MessageReceived(string, ocpp.Action)               {}
func (f *fakeMetricsSink) MessageSent(string, ocpp.Action)                   {}
func (f *fakeMetricsSink) HandlerLatency(string, ocpp.Action, time.Duration) {}
func (f *fakeMetricsSink) TransactionActive(string, int, int)                {}
func (f *fakeMetricsSink) EnergyDelivered(string, int, int)                  {}
func (f *fakeMetricsSink) DisconnectDuringActiveTx(string)                   {}
func (f *fakeMetricsSink) CallTimeout(string, ocpp.Action)                   {}
func (f *fakeMetricsSink) CallRejected(string, ocpp.Action)                  {}

func (f *fakeMetricsSink) EnergyJump(stationID string, txID int, previous, current, delta int) {
	f.jumps <- energyJumpEvent{stationID: stationID, txID: txID, previous: previous, current: current, delta: delta}
}

var _ observer.MetricsSink = (*fakeMetricsSink)(nil)
