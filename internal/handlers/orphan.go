package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/chargenet/central-system/internal/ocpp"
)

// closeOrphans implements spec.md §4.5's orphan-closure step, shared by
// StartTransaction (reason Other) and BootNotification (reason Reboot).
// Grounded on original_source's OrphanedTransactionMiddleware
// (services/ocpp/automation/orphaned_transaction.py): for every Active
// transaction on the station, recover the last
// Energy.Active.Import.Register meter value as meter_stop, falling back
// to meter_start when no reading was ever recorded, then stop it.
func (d Deps) closeOrphans(ctx context.Context, stationID string, at time.Time, reason ocpp.Reason) error {
	return d.CloseOrphans(ctx, stationID, at, reason)
}

// CloseOrphans is closeOrphans exported for internal/sweep's periodic
// correction pass (SPEC_FULL.md's supplemented independent sweep,
// alongside this file's inline StartTransaction/BootNotification calls).
func (d Deps) CloseOrphans(ctx context.Context, stationID string, at time.Time, reason ocpp.Reason) error {
	active, err := d.Store.ActiveForChargePoint(ctx, stationID)
	if err != nil {
		return err
	}

	for _, tx := range active {
		meterStop := tx.MeterStart
		if last, ok, err := d.Store.LastForTransaction(ctx, tx.ID, ocpp.DefaultMeasurand); err == nil && ok {
			if v, err := strconv.ParseFloat(last.Value, 64); err == nil {
				meterStop = int(v)
			}
		}

		stopped, err := d.Store.StopTransaction(ctx, tx.ID, at, meterStop, reason)
		if err != nil {
			return err
		}

		delivered := 0
		if stopped.EnergyDelivered != nil {
			delivered = *stopped.EnergyDelivered
		}
		d.Bus.TransactionActive(stationID, tx.ConnectorID, -1)
		d.Bus.EnergyDelivered(stationID, tx.ConnectorID, delivered)
	}
	return nil
}
