package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/sinkr-io/sinkr/internal/peer"
	"github.com/sinkr-io/sinkr/internal/wire"
)

// LocalTarget adapts a process's own peer.Registry into a Target, used by both the
// coordinator (for its directly-connected sources) and each shard (for its sinks).
type LocalTarget struct {
	Registry *peer.Registry
}

func NewLocalTarget(r *peer.Registry) *LocalTarget {
	return &LocalTarget{Registry: r}
}

// Deliver pushes frame to peerID if this target holds it. A dead peer (saturated
// buffer, closing socket) is swallowed rather than returned as an error — §7: "per-peer
// send failures during fan-out are swallowed (the peer is garbage); they do not fail the
// aggregate request." The peer is still considered delivered-to for the caller's
// purposes; its own close handler reaps the membership row.
func (t *LocalTarget) Deliver(ctx context.Context, appID, peerID string, frame wire.SinkFrame) error {
	conn, ok := t.Registry.Lookup(peerID)
	if !ok || conn.AppID != appID {
		return ErrNotMine
	}
	if err := t.Registry.Send(conn, frame); err != nil {
		if errors.Is(err, peer.ErrDead) {
			return nil
		}
		return fmt.Errorf("local deliver to %s: %w", peerID, err)
	}
	return nil
}

// Broadcast pushes frame to every peer this target holds under appID. A dead peer does
// not count toward delivered and does not fail the aggregate (§5 back-pressure, §7).
func (t *LocalTarget) Broadcast(ctx context.Context, appID string, frame wire.SinkFrame) (int, error) {
	var delivered int
	var firstErr error
	t.Registry.IterateLocal(appID, func(peerID string, conn *peer.Connection) {
		if err := conn.Send(frame); err != nil {
			if errors.Is(err, peer.ErrDead) {
				return
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("local broadcast to %s: %w", peerID, err)
			}
			return
		}
		delivered++
	})
	return delivered, firstErr
}
