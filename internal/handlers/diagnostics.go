package handlers

import (
	"context"

	"github.com/chargenet/central-system/internal/ocpp"
	"github.com/chargenet/central-system/internal/pipeline"
)

// diagnosticsStatusNotification and firmwareStatusNotification both ack
// with an empty CallResult (spec.md §4.5); neither triggers a domain
// state change today, but both are dispatched through the catalog so an
// observer-bus audit sink still records them.

func (d Deps) diagnosticsStatusNotification(ctx context.Context, req *pipeline.Request) (*pipeline.Response, error) {
	resp := pipeline.NewResponse()
	resp.ReplyPayload = ocpp.DiagnosticsStatusNotificationResponse{}
	return resp, nil
}

func (d Deps) firmwareStatusNotification(ctx context.Context, req *pipeline.Request) (*pipeline.Response, error) {
	resp := pipeline.NewResponse()
	resp.ReplyPayload = ocpp.FirmwareStatusNotificationResponse{}
	return resp, nil
}
