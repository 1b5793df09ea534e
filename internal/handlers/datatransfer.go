package handlers

import (
	"context"

	"github.com/chargenet/central-system/internal/ocpp"
	"github.com/chargenet/central-system/internal/pipeline"
)

// dataTransfer implements spec.md §4.5's DataTransfer handler: vendor
// extensions are not interpreted, so every request is rejected.
func (d Deps) dataTransfer(ctx context.Context, req *pipeline.Request) (*pipeline.Response, error) {
	resp := pipeline.NewResponse()
	resp.ReplyPayload = ocpp.DataTransferResponse{Status: ocpp.DataTransferRejected}
	return resp, nil
}
