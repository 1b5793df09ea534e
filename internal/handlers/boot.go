package handlers

import (
	"context"
	"time"

	"github.com/chargenet/central-system/internal/ocpp"
	"github.com/chargenet/central-system/internal/pipeline"
	"github.com/chargenet/central-system/internal/store"
)

// bootNotification implements spec.md §4.5's BootNotification handler.
// Grounded on original_source's boot-notification service (the same
// vendor/model/serial/firmware/iccid/imsi-onto-ChargePoint pattern) and
// on orphaned_transaction.py for the re-run-on-boot orphan closure.
func (d Deps) bootNotification(ctx context.Context, req *pipeline.Request) (*pipeline.Response, error) {
	in := req.Payload.(*ocpp.BootNotificationRequest)
	now := time.Now()

	fields := store.ChargePointFields{
		Vendor: &in.ChargePointVendor,
		Model:  &in.ChargePointModel,
	}
	if in.ChargePointSerialNumber != nil {
		fields.Serial = in.ChargePointSerialNumber
	} else if in.ChargeBoxSerialNumber != nil {
		fields.Serial = in.ChargeBoxSerialNumber
	}
	if in.FirmwareVersion != nil {
		fields.Firmware = in.FirmwareVersion
	}
	if in.Iccid != nil {
		fields.Iccid = in.Iccid
	}
	if in.Imsi != nil {
		fields.Imsi = in.Imsi
	}
	fields.LastBootAt = &now

	if _, err := d.Store.UpsertChargePoint(ctx, req.StationID, fields); err != nil {
		return nil, err
	}

	if err := d.closeOrphans(ctx, req.StationID, now, ocpp.ReasonReboot); err != nil {
		return nil, err
	}

	resp := pipeline.NewResponse()
	resp.ReplyPayload = ocpp.BootNotificationResponse{
		Status:      ocpp.RegistrationAccepted,
		CurrentTime: ocpp.NewDateTime(now),
		Interval:    d.HeartbeatIntervalSeconds,
	}
	return resp, nil
}
