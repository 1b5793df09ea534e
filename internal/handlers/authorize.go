package handlers

import (
	"context"

	"github.com/chargenet/central-system/internal/ocpp"
	"github.com/chargenet/central-system/internal/pipeline"
)

// authorize implements spec.md §4.5's Authorize handler: the default
// accept-all policy, since id_tag whitelisting is an explicit Non-goal.
func (d Deps) authorize(ctx context.Context, req *pipeline.Request) (*pipeline.Response, error) {
	resp := pipeline.NewResponse()
	resp.ReplyPayload = ocpp.AuthorizeResponse{
		IdTagInfo: ocpp.IdTagInfo{Status: ocpp.AuthAccepted},
	}
	return resp, nil
}
