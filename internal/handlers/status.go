package handlers

import (
	"context"
	"time"

	"github.com/chargenet/central-system/internal/ocpp"
	"github.com/chargenet/central-system/internal/pipeline"
	"github.com/chargenet/central-system/internal/store"
)

// statusNotification implements spec.md §4.5's StatusNotification
// handler: connector_id 0 updates the ChargePoint row itself, any other
// value upserts a Connector row.
func (d Deps) statusNotification(ctx context.Context, req *pipeline.Request) (*pipeline.Response, error) {
	in := req.Payload.(*ocpp.StatusNotificationRequest)

	if in.ConnectorId == 0 {
		fields := store.ChargePointFields{
			Status:    &in.Status,
			ErrorCode: &in.ErrorCode,
		}
		if in.VendorErrorCode != nil {
			fields.VendorErrorCode = in.VendorErrorCode
		}
		if in.Info != nil {
			fields.VendorStatusInfo = in.Info
		}
		if in.VendorId != nil {
			fields.VendorStatusID = in.VendorId
		}
		if _, err := d.Store.UpsertChargePoint(ctx, req.StationID, fields); err != nil {
			return nil, err
		}
	} else {
		vendorError := ""
		if in.VendorErrorCode != nil {
			vendorError = *in.VendorErrorCode
		}
		if _, err := d.Store.UpsertConnector(ctx, req.StationID, in.ConnectorId, in.Status, in.ErrorCode, vendorError); err != nil {
			return nil, err
		}
	}

	return pipeline.NewResponse(), nil
}

// autoRemoteStart is the after-phase hook spec.md §9's Open Question
// resolves in favor of: queue a RemoteStartTransaction as soon as a
// station reports Preparing. Grounded on original_source's
// AutoRemoteStartMiddleware (services/ocpp/anon/auto_remote_start.py),
// which appends the side-effect after computing the response rather than
// blocking it.
func (d Deps) autoRemoteStart(ctx context.Context, req *pipeline.Request, resp *pipeline.Response, enqueue func(action ocpp.Action, payload interface{}, delay time.Duration)) {
	in, ok := req.Payload.(*ocpp.StatusNotificationRequest)
	if !ok || in.Status != ocpp.StatusPreparing {
		return
	}

	idTag := d.AutoRemoteStart.IDTag
	if idTag == "" {
		idTag = "anonymous"
	}

	payload := ocpp.RemoteStartTransactionRequest{IdTag: idTag}
	if in.ConnectorId > 0 {
		connID := in.ConnectorId
		payload.ConnectorId = &connID
	}
	enqueue(ocpp.ActionRemoteStartTransaction, payload, d.AutoRemoteStart.Delay)
}
