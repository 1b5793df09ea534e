package handlers

import (
	"context"
	"time"

	"github.com/chargenet/central-system/internal/ocpp"
	"github.com/chargenet/central-system/internal/pipeline"
)

// heartbeat implements spec.md §4.5's Heartbeat handler. The Session
// resets its own watchdog deadline on every inbound Heartbeat frame
// (spec.md §4.3); this handler only persists last_heartbeat_at and
// replies with the current time.
func (d Deps) heartbeat(ctx context.Context, req *pipeline.Request) (*pipeline.Response, error) {
	now := time.Now()
	if err := d.Store.UpdateHeartbeat(ctx, req.StationID, now); err != nil {
		return nil, err
	}

	resp := pipeline.NewResponse()
	resp.ReplyPayload = ocpp.HeartbeatResponse{CurrentTime: ocpp.NewDateTime(now)}
	return resp, nil
}
