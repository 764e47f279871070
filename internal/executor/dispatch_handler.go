package executor

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sinkr-io/sinkr/internal/shardrpc"
	"github.com/sinkr-io/sinkr/internal/wire"
)

// LocalDispatchHandler implements shardrpc.DispatchHandler on the shard side: it
// executes a coordinator-issued dispatch request against this process's own Target
// (normally a LocalTarget wrapping the shard's peer.Registry).
type LocalDispatchHandler struct {
	Target Target
}

func NewLocalDispatchHandler(target Target) *LocalDispatchHandler {
	return &LocalDispatchHandler{Target: target}
}

func (h *LocalDispatchHandler) HandleDispatch(ctx context.Context, req shardrpc.DispatchPayload) shardrpc.DispatchAckPayload {
	var frame wire.SinkFrame
	if err := json.Unmarshal(req.Frame, &frame); err != nil {
		return shardrpc.DispatchAckPayload{Error: err.Error()}
	}

	switch req.Kind {
	case shardrpc.DispatchDeliver:
		err := h.Target.Deliver(ctx, req.AppID, req.PeerID, frame)
		if err == nil {
			return shardrpc.DispatchAckPayload{Found: true}
		}
		if errors.Is(err, ErrNotMine) {
			return shardrpc.DispatchAckPayload{Found: false}
		}
		return shardrpc.DispatchAckPayload{Error: err.Error()}
	case shardrpc.DispatchBroadcast:
		n, err := h.Target.Broadcast(ctx, req.AppID, frame)
		if err != nil {
			return shardrpc.DispatchAckPayload{Delivered: n, Error: err.Error()}
		}
		return shardrpc.DispatchAckPayload{Delivered: n}
	default:
		return shardrpc.DispatchAckPayload{Error: "unknown dispatch kind"}
	}
}
