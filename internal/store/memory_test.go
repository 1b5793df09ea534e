package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chargenet/central-system/internal/ocpp"
)

func TestMemoryUpsertChargePoint(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	vendor := "Acme"
	cp, err := m.UpsertChargePoint(ctx, "cp-1", ChargePointFields{Vendor: &vendor})
	require.NoError(t, err)
	assert.Equal(t, "cp-1", cp.ID)
	assert.Equal(t, "Acme", cp.Vendor)

	model := "Model-X"
	cp, err = m.UpsertChargePoint(ctx, "cp-1", ChargePointFields{Model: &model})
	require.NoError(t, err)
	assert.Equal(t, "Acme", cp.Vendor, "unset fields must not be clobbered by a partial update")
	assert.Equal(t, "Model-X", cp.Model)
}

func TestMemoryConnectionAndHeartbeat(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.UpdateConnection(ctx, "cp-1", true, now))
	cp, ok, err := m.GetChargePoint(ctx, "cp-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, cp.IsConnected)
	require.NotNil(t, cp.LastConnectAt)

	later := now.Add(time.Minute)
	require.NoError(t, m.UpdateHeartbeat(ctx, "cp-1", later))
	cp, _, err = m.GetChargePoint(ctx, "cp-1")
	require.NoError(t, err)
	require.NotNil(t, cp.LastHeartbeatAt)
	assert.Equal(t, later, *cp.LastHeartbeatAt)
}

func TestMemoryConnectorUpsert(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	c, err := m.UpsertConnector(ctx, "cp-1", 1, ocpp.StatusAvailable, ocpp.CPErrorNoError, "")
	require.NoError(t, err)
	assert.Equal(t, ocpp.StatusAvailable, c.Status)

	c, err = m.UpsertConnector(ctx, "cp-1", 1, ocpp.StatusCharging, ocpp.CPErrorNoError, "")
	require.NoError(t, err)
	assert.Equal(t, ocpp.StatusCharging, c.Status)

	got, ok, err := m.GetConnector(ctx, "cp-1", 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ocpp.StatusCharging, got.Status)

	_, ok, err = m.GetConnector(ctx, "cp-1", 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryTransactionLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	start := time.Now()

	tx1, err := m.CreateTransaction(ctx, "cp-1", 1, "tag-1", start, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, tx1.ID)
	assert.Equal(t, TransactionActive, tx1.Status)

	tx2, err := m.CreateTransaction(ctx, "cp-1", 1, "tag-2", start.Add(time.Second), 1000)
	require.NoError(t, err)
	assert.Equal(t, 2, tx2.ID, "transaction ids are sequentially assigned, never reused")

	active, err := m.ActiveForChargePoint(ctx, "cp-1")
	require.NoError(t, err)
	assert.Len(t, active, 2)

	stopped, err := m.StopTransaction(ctx, tx1.ID, start.Add(time.Hour), 5000, ocpp.ReasonLocal)
	require.NoError(t, err)
	assert.Equal(t, TransactionCompleted, stopped.Status)
	require.NotNil(t, stopped.EnergyDelivered)
	assert.Equal(t, 4000, *stopped.EnergyDelivered)

	active, err = m.ActiveForChargePoint(ctx, "cp-1")
	require.NoError(t, err)
	assert.Len(t, active, 1)
	assert.Equal(t, tx2.ID, active[0].ID)

	_, err = m.StopTransaction(ctx, 999, start, 0, ocpp.ReasonLocal)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryMeterValues(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	start := time.Now()

	tx, err := m.CreateTransaction(ctx, "cp-1", 1, "tag-1", start, 1000)
	require.NoError(t, err)

	values := []MeterValue{
		{TransactionID: tx.ID, Timestamp: start.Add(time.Minute), Measurand: ocpp.DefaultMeasurand, Value: "1200"},
		{TransactionID: tx.ID, Timestamp: start.Add(2 * time.Minute), Measurand: ocpp.DefaultMeasurand, Value: "1500"},
		{TransactionID: tx.ID, Timestamp: start.Add(2 * time.Minute), Measurand: ocpp.MeasurandVoltage, Value: "230"},
	}
	require.NoError(t, m.CreateMeterValues(ctx, values))

	last, ok, err := m.LastForTransaction(ctx, tx.ID, ocpp.DefaultMeasurand)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1500", last.Value)

	_, ok, err = m.LastForTransaction(ctx, tx.ID, ocpp.MeasurandTemperature)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryMessageDeduplication(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	fields := MessageFields{
		ChargePointID: "cp-1",
		Actor:         ActorChargePoint,
		MessageType:   ocpp.Call,
		UniqueID:      "abc-123",
		Body:          []byte(`{}`),
	}

	msg, err := m.InsertMessage(ctx, fields)
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.ID)

	_, err = m.InsertMessage(ctx, fields)
	assert.ErrorIs(t, err, ErrDuplicateMessage, "duplicate (actor, unique_id) must be rejected, not silently re-inserted")

	found, ok, err := m.FindCall(ctx, ActorChargePoint, "abc-123")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, msg.ID, found.ID)

	require.NoError(t, m.LinkReply(ctx, msg.ID, 42))
}

func TestMemoryLinkTransaction(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	msg, err := m.InsertMessage(ctx, MessageFields{
		ChargePointID: "cp-1",
		Actor:         ActorChargePoint,
		MessageType:   ocpp.Call,
		UniqueID:      "start-1",
		Body:          []byte(`{}`),
	})
	require.NoError(t, err)
	require.Nil(t, msg.TransactionID)

	require.NoError(t, m.LinkTransaction(ctx, msg.ID, 7))

	found, ok, err := m.FindCall(ctx, ActorChargePoint, "start-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, found.TransactionID)
	assert.Equal(t, 7, *found.TransactionID)

	assert.ErrorIs(t, m.LinkTransaction(ctx, 9999, 1), ErrNotFound)
}
