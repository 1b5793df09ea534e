// Package sweep is the independent correction pass SPEC_FULL.md adds
// alongside the inline orphan closure spec.md §4.5 wires into
// StartTransaction and BootNotification. Grounded on
// original_source/be/ocpp/services/ocpp/automation/orphaned_transaction.py,
// run here as a ticker-driven background task rather than a request-time
// middleware: a station that never reconnects (so never sends another
// BootNotification or StartTransaction) would otherwise keep an Active
// transaction open forever.
package sweep

import (
	"context"
	"time"

	"github.com/chargenet/central-system/internal/handlers"
	"github.com/chargenet/central-system/internal/logger"
	"github.com/chargenet/central-system/internal/ocpp"
	"github.com/chargenet/central-system/internal/registry"
	"github.com/chargenet/central-system/internal/store"
)

// Sweeper periodically closes Active transactions belonging to stations
// that are no longer connected (per the Registry, the authoritative
// source of "connected right now" — the Store's IsConnected flag can lag
// a crash that skipped the disconnect path).
type Sweeper struct {
	store    store.Store
	reg      *registry.Registry
	deps     handlers.Deps
	log      *logger.Logger
	interval time.Duration

	stop chan struct{}
	done chan struct{}
}

func New(st store.Store, reg *registry.Registry, deps handlers.Deps, log *logger.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:    st,
		reg:      reg,
		deps:     deps,
		log:      log,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called. Intended to be run on
// its own goroutine by internal/server.
func (s *Sweeper) Start() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.runOnce()
		}
	}
}

func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

// runOnce closes every Active transaction whose station has no live
// Session in the Registry right now. No separate disconnect-duration
// threshold is needed: every disconnect path unregisters synchronously
// via Session.cleanup before that station's transactions could be swept,
// so Registry-absence already means "actually gone", not "mid-heartbeat".
func (s *Sweeper) runOnce() {
	ctx := context.Background()

	active, err := s.store.AllActiveTransactions(ctx)
	if err != nil {
		s.log.Errorf("sweep: list active transactions failed: %v", err)
		return
	}

	now := time.Now()
	swept := make(map[string]bool)
	closed := 0
	for _, tx := range active {
		if swept[tx.ChargePointID] {
			continue
		}
		if _, connected := s.reg.Get(tx.ChargePointID); connected {
			continue
		}
		swept[tx.ChargePointID] = true
		if err := s.deps.CloseOrphans(ctx, tx.ChargePointID, now, ocpp.ReasonOther); err != nil {
			s.log.Errorf("sweep: close orphan for %s failed: %v", tx.ChargePointID, err)
			continue
		}
		closed++
	}
	if closed > 0 {
		s.log.Infof("sweep: closed %d station(s) with orphaned transactions", closed)
	}
}
