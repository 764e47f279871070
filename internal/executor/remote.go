package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sinkr-io/sinkr/internal/shardrpc"
	"github.com/sinkr-io/sinkr/internal/wire"
)

// RemoteTarget adapts one connected shard (reached over the internal shardrpc link)
// into a Target, so the coordinator's Executor can fan out to it exactly like its own
// local registry.
type RemoteTarget struct {
	Shard *shardrpc.RemoteShard
}

func NewRemoteTarget(shard *shardrpc.RemoteShard) *RemoteTarget {
	return &RemoteTarget{Shard: shard}
}

func (t *RemoteTarget) Deliver(ctx context.Context, appID, peerID string, frame wire.SinkFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	ack, err := t.Shard.Dispatch(ctx, shardrpc.DispatchPayload{
		Kind:   shardrpc.DispatchDeliver,
		AppID:  appID,
		PeerID: peerID,
		Frame:  data,
	})
	if err != nil {
		return fmt.Errorf("remote deliver via shard %s: %w", t.Shard.ShardID, err)
	}
	if ack.Error != "" {
		return fmt.Errorf("remote deliver via shard %s: %s", t.Shard.ShardID, ack.Error)
	}
	if !ack.Found {
		return ErrNotMine
	}
	return nil
}

func (t *RemoteTarget) Broadcast(ctx context.Context, appID string, frame wire.SinkFrame) (int, error) {
	data, err := json.Marshal(frame)
	if err != nil {
		return 0, err
	}
	ack, err := t.Shard.Dispatch(ctx, shardrpc.DispatchPayload{
		Kind:  shardrpc.DispatchBroadcast,
		AppID: appID,
		Frame: data,
	})
	if err != nil {
		return 0, fmt.Errorf("remote broadcast via shard %s: %w", t.Shard.ShardID, err)
	}
	if ack.Error != "" {
		return 0, fmt.Errorf("remote broadcast via shard %s: %s", t.Shard.ShardID, ack.Error)
	}
	return ack.Delivered, nil
}
