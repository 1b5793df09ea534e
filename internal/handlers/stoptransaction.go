package handlers

import (
	"context"

	"github.com/chargenet/central-system/internal/ocpp"
	"github.com/chargenet/central-system/internal/pipeline"
	"github.com/chargenet/central-system/internal/store"
)

// stopTransaction implements spec.md §4.5's StopTransaction handler:
// persist the stop, ingest any embedded transactionData as final meter
// values, and update the ChargePoint's last_tx_stop_at.
func (d Deps) stopTransaction(ctx context.Context, req *pipeline.Request) (*pipeline.Response, error) {
	in := req.Payload.(*ocpp.StopTransactionRequest)
	stop := in.Timestamp.Time

	reason := ocpp.ReasonLocal
	if in.Reason != nil {
		reason = *in.Reason
	}

	tx, err := d.Store.StopTransaction(ctx, in.TransactionId, stop, in.MeterStop, reason)
	if err != nil {
		return nil, err
	}

	if len(in.TransactionData) > 0 {
		values := flattenMeterValues(tx.ID, in.TransactionData)
		for i := range values {
			values[i].IsFinal = true
		}
		if err := d.Store.CreateMeterValues(ctx, values); err != nil {
			return nil, err
		}
	}

	if _, err := d.Store.UpsertChargePoint(ctx, req.StationID, store.ChargePointFields{LastTxStopAt: &stop}); err != nil {
		return nil, err
	}

	delivered := 0
	if tx.EnergyDelivered != nil {
		delivered = *tx.EnergyDelivered
	}
	d.Bus.TransactionActive(req.StationID, tx.ConnectorID, -1)
	d.Bus.EnergyDelivered(req.StationID, tx.ConnectorID, delivered)

	resp := pipeline.NewResponse()
	resp.ReplyPayload = ocpp.StopTransactionResponse{
		IdTagInfo: &ocpp.IdTagInfo{Status: ocpp.AuthAccepted},
	}
	return resp, nil
}
