package handlers

import (
	"context"
	"strconv"

	"github.com/chargenet/central-system/internal/ocpp"
	"github.com/chargenet/central-system/internal/pipeline"
	"github.com/chargenet/central-system/internal/store"
)

// meterValues implements spec.md §4.5's MeterValues handler: flatten the
// sampledValue grid into rows, then check the new
// Energy.Active.Import.Register reading against the last one recorded for
// the same transaction for a jump beyond JumpThresholdWh. A jump is
// reported to the observer bus but never changes what gets persisted —
// spec.md §7 treats the raw reading as authoritative regardless.
func (d Deps) meterValues(ctx context.Context, req *pipeline.Request) (*pipeline.Response, error) {
	in := req.Payload.(*ocpp.MeterValuesRequest)

	var txID int
	if in.TransactionId != nil {
		txID = *in.TransactionId
	}

	values := flattenMeterValues(txID, in.MeterValue)
	if txID != 0 {
		d.checkEnergyJump(ctx, req.StationID, in.ConnectorId, txID, values)
	}

	if err := d.Store.CreateMeterValues(ctx, values); err != nil {
		return nil, err
	}

	return pipeline.NewResponse(), nil
}

// checkEnergyJump compares the last Energy.Active.Import.Register
// reading in values against the last one stored for txID, per transaction.
func (d Deps) checkEnergyJump(ctx context.Context, stationID string, connID, txID int, values []store.MeterValue) {
	if d.JumpThresholdWh <= 0 {
		return
	}

	var latest *int
	for _, v := range values {
		if v.Measurand != ocpp.DefaultMeasurand {
			continue
		}
		n, err := strconv.ParseFloat(v.Value, 64)
		if err != nil {
			continue
		}
		val := int(n)
		latest = &val
	}
	if latest == nil {
		return
	}

	prev, ok, err := d.Store.LastForTransaction(ctx, txID, ocpp.DefaultMeasurand)
	if err != nil || !ok {
		return
	}
	prevVal, err := strconv.ParseFloat(prev.Value, 64)
	if err != nil {
		return
	}

	prevInt := int(prevVal)
	delta := *latest - prevInt
	if delta < 0 {
		delta = -delta
	}
	if delta > d.JumpThresholdWh {
		d.Bus.EnergyJump(stationID, txID, prevInt, *latest, delta)
	}
}

// flattenMeterValues expands an OCPP MeterValue grid (one timestamp, many
// sampledValue entries) into one store row per sampled value, applying the
// defaults spec.md §4.5 names for any field a station omits.
func flattenMeterValues(txID int, in []ocpp.MeterValue) []store.MeterValue {
	var out []store.MeterValue
	for _, mv := range in {
		for _, sv := range mv.SampledValue {
			row := store.MeterValue{
				TransactionID: txID,
				Timestamp:     mv.Timestamp.Time,
				Value:         sv.Value,
				Measurand:     ocpp.DefaultMeasurand,
				Unit:          ocpp.DefaultUnit,
				Context:       ocpp.DefaultContext,
				Location:      ocpp.DefaultLocation,
				Format:        ocpp.DefaultFormat,
			}
			if sv.Measurand != nil {
				row.Measurand = *sv.Measurand
			}
			if sv.Unit != nil {
				row.Unit = *sv.Unit
			}
			if sv.Context != nil {
				row.Context = *sv.Context
			}
			if sv.Location != nil {
				row.Location = *sv.Location
			}
			if sv.Format != nil {
				row.Format = *sv.Format
			}
			if sv.Phase != nil {
				row.Phase = *sv.Phase
			}
			out = append(out, row)
		}
	}
	return out
}
