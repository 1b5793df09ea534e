package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chargenet/central-system/internal/handlers"
	"github.com/chargenet/central-system/internal/logger"
	"github.com/chargenet/central-system/internal/observer"
	"github.com/chargenet/central-system/internal/ocpp"
	"github.com/chargenet/central-system/internal/registry"
	"github.com/chargenet/central-system/internal/store"
)

type noopSession struct{ id string }

func (n noopSession) StationID() string                                   { return n.id }
func (n noopSession) Close(string)                                        {}
func (n noopSession) SendCommand(action ocpp.Action, payload interface{}) {}

var _ registry.Session = noopSession{}

func newTestSweeper(t *testing.T) (*Sweeper, store.Store, *registry.Registry) {
	t.Helper()
	st := store.NewMemory()
	reg := registry.New()
	log, err := logger.New(logger.DefaultConfig())
	require.NoError(t, err)

	deps := handlers.Deps{
		Store:     st,
		Validator: ocpp.NewValidator(),
		Bus:       observer.NewBus(),
	}
	return New(st, reg, deps, log, time.Hour), st, reg
}

// TestRunOnceClosesDisconnectedStationTransactions covers the core
// sweep behavior: a station with an Active transaction and no live
// Registry entry gets its transaction force-closed.
func TestRunOnceClosesDisconnectedStationTransactions(t *testing.T) {
	sweeper, st, _ := newTestSweeper(t)
	ctx := context.Background()

	tx, err := st.CreateTransaction(ctx, "cp-1", 1, "tag-1", time.Now().Add(-time.Hour), 0)
	require.NoError(t, err)

	sweeper.runOnce()

	closed, found, err := st.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, store.TransactionCompleted, closed.Status)
}

// TestRunOnceSkipsConnectedStations covers the other half: a station
// that is currently registered must not have its Active transaction
// touched, since it is still actively charging.
func TestRunOnceSkipsConnectedStations(t *testing.T) {
	sweeper, st, reg := newTestSweeper(t)
	ctx := context.Background()

	tx, err := st.CreateTransaction(ctx, "cp-2", 1, "tag-1", time.Now().Add(-time.Hour), 0)
	require.NoError(t, err)
	reg.Register("cp-2", noopSession{"cp-2"})

	sweeper.runOnce()

	active, found, err := st.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, store.TransactionActive, active.Status)
}

// TestRunOnceSweepsEachStationOnce covers the dedup guard: a station
// with multiple Active transactions (multi-connector) is only swept
// once per cycle, since CloseOrphans already closes every Active
// transaction for that station in one call.
func TestRunOnceSweepsEachStationOnce(t *testing.T) {
	sweeper, st, _ := newTestSweeper(t)
	ctx := context.Background()

	tx1, err := st.CreateTransaction(ctx, "cp-3", 1, "tag-1", time.Now().Add(-time.Hour), 0)
	require.NoError(t, err)
	tx2, err := st.CreateTransaction(ctx, "cp-3", 2, "tag-2", time.Now().Add(-time.Hour), 0)
	require.NoError(t, err)

	sweeper.runOnce()

	closed1, _, err := st.GetTransaction(ctx, tx1.ID)
	require.NoError(t, err)
	closed2, _, err := st.GetTransaction(ctx, tx2.ID)
	require.NoError(t, err)
	require.Equal(t, store.TransactionCompleted, closed1.Status)
	require.Equal(t, store.TransactionCompleted, closed2.Status)
}

// TestStartStop covers the ticker-driven loop shutting down cleanly.
func TestStartStop(t *testing.T) {
	sweeper, _, _ := newTestSweeper(t)
	sweeper.interval = 5 * time.Millisecond

	done := make(chan struct{})
	go func() {
		sweeper.Start()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	sweeper.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
