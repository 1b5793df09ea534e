package handlers

import (
	"context"

	"github.com/chargenet/central-system/internal/ocpp"
	"github.com/chargenet/central-system/internal/pipeline"
	"github.com/chargenet/central-system/internal/store"
)

// startTransaction implements spec.md §4.5's StartTransaction handler:
// orphan closure first (reason Other), then create the new Active
// transaction. Grounded on original_source's start-transaction service
// plus OrphanedTransactionMiddleware for step 1.
func (d Deps) startTransaction(ctx context.Context, req *pipeline.Request) (*pipeline.Response, error) {
	in := req.Payload.(*ocpp.StartTransactionRequest)
	start := in.Timestamp.Time

	if err := d.closeOrphans(ctx, req.StationID, start, ocpp.ReasonOther); err != nil {
		return nil, err
	}

	if _, err := d.Store.UpsertConnector(ctx, req.StationID, in.ConnectorId, ocpp.StatusCharging, ocpp.CPErrorNoError, ""); err != nil {
		return nil, err
	}

	tx, err := d.Store.CreateTransaction(ctx, req.StationID, in.ConnectorId, in.IdTag, start, in.MeterStart)
	if err != nil {
		return nil, err
	}

	if _, err := d.Store.UpsertChargePoint(ctx, req.StationID, store.ChargePointFields{LastTxStartAt: &start}); err != nil {
		return nil, err
	}

	d.Bus.TransactionActive(req.StationID, in.ConnectorId, 1)

	resp := pipeline.NewResponse()
	resp.TransactionID = &tx.ID
	resp.ReplyPayload = ocpp.StartTransactionResponse{
		TransactionId: tx.ID,
		IdTagInfo:     ocpp.IdTagInfo{Status: ocpp.AuthAccepted},
	}
	return resp, nil
}
