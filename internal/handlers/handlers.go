// Package handlers implements the concrete middlewares for each OCPP
// action spec.md §4.5 describes, wired into a pipeline.Catalog at boot.
// Each handler is grounded on the matching file under
// original_source/be/ocpp/services/ocpp/**/*.py, reimplemented against
// this repository's Store/Pipeline contracts instead of the original's
// Django ORM and reflective middleware table.
package handlers

import (
	"time"

	"github.com/chargenet/central-system/internal/observer"
	"github.com/chargenet/central-system/internal/ocpp"
	"github.com/chargenet/central-system/internal/pipeline"
	"github.com/chargenet/central-system/internal/store"
)

// AutoRemoteStartConfig toggles the supplemented auto-remote-start
// behaviour (SPEC_FULL.md §12, resolving spec.md §9's first Open
// Question in favor of the after-phase variant). Delay of 0 falls back
// to the session's default outbound delay.
type AutoRemoteStartConfig struct {
	Enabled bool
	IDTag   string
	Delay   time.Duration
}

// Deps are the dependencies every handler closes over. Built once at
// boot and threaded through BuildCatalog; no handler holds any other
// shared state, per spec.md §5's "no handler holds a cross-station
// lock".
type Deps struct {
	Store                    store.Store
	Validator                *ocpp.Validator
	Bus                      *observer.Bus
	HeartbeatIntervalSeconds int
	AutoRemoteStart          AutoRemoteStartConfig
	JumpThresholdWh          int
}

// BuildCatalog assembles the closed (action, Call) -> chain registry
// spec.md §9 calls for. Constructed once at boot; the returned Catalog
// is read-only thereafter.
func BuildCatalog(d Deps) *pipeline.Catalog {
	cat := pipeline.NewCatalog()

	cat.Register(ocpp.ActionBootNotification, d.bootNotification)
	cat.Register(ocpp.ActionHeartbeat, d.heartbeat)
	cat.Register(ocpp.ActionStatusNotification, d.statusNotification)
	cat.Register(ocpp.ActionStartTransaction, d.startTransaction)
	cat.Register(ocpp.ActionStopTransaction, d.stopTransaction)
	cat.Register(ocpp.ActionMeterValues, d.meterValues)
	cat.Register(ocpp.ActionAuthorize, d.authorize)
	cat.Register(ocpp.ActionDataTransfer, d.dataTransfer)
	cat.Register(ocpp.ActionDiagnosticsStatusNotification, d.diagnosticsStatusNotification)
	cat.Register(ocpp.ActionFirmwareStatusNotification, d.firmwareStatusNotification)

	if d.AutoRemoteStart.Enabled {
		cat.RegisterAfter(ocpp.ActionStatusNotification, d.autoRemoteStart)
	}

	return cat
}
