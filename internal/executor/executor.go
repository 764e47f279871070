// Package executor implements the Dispatch abstraction of §10: a uniform interface over
// "push this frame to this peer" that the coordinator can satisfy either from its own
// embedded local peer.Registry (sources connect directly to the coordinator, so it must
// participate in fan-out as a peer-holder itself) or from a remote shard reached over the
// internal shardrpc link. Callers above this package (the coordinator's route handlers)
// never know or care which kind of Target actually held a given peer.
package executor

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sinkr-io/sinkr/internal/channel"
	"github.com/sinkr-io/sinkr/internal/wire"
)

// ErrNotMine is returned by a Target when the requested peer is not connected to it.
// It is not a failure of the target itself — the Executor tries the next one.
var ErrNotMine = errors.New("executor: peer not held by this target")

// Target is one fan-out destination: the coordinator's own local registry, or a proxy
// for one remote shard.
type Target interface {
	// Deliver pushes frame to peerID if this target currently holds that peer's
	// connection. It returns ErrNotMine (possibly wrapped) if not.
	Deliver(ctx context.Context, appID, peerID string, frame wire.SinkFrame) error

	// Broadcast pushes frame to every peer this target holds under appID. It returns
	// the count actually delivered.
	Broadcast(ctx context.Context, appID string, frame wire.SinkFrame) (delivered int, err error)
}

// Executor fans a channel.Engine's delivery plans out across every known Target.
type Executor struct {
	// Targets returns the current target set: the coordinator's own local registry
	// first, then one per live shard. It is read fresh on every call so newly
	// registered or departed shards are picked up without restarting the coordinator.
	Targets func() []Target
}

func New(targets func() []Target) *Executor {
	return &Executor{Targets: targets}
}

// DeliverToPeer implements the disjunction ("any-wins") rule of §4.3b for
// direct-to-peer delivery (user.messages.send): exactly one target actually holds
// peerID, so the operation succeeds as soon as that one target accepts the frame.
// Every ErrNotMine from the other targets is not itself a failure.
func (e *Executor) DeliverToPeer(ctx context.Context, appID, peerID string, frame wire.SinkFrame) error {
	var lastErr error
	for _, t := range e.Targets() {
		err := t.Deliver(ctx, appID, peerID, frame)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNotMine) {
			continue
		}
		lastErr = err
	}
	if lastErr != nil {
		return lastErr
	}
	return wire.ErrPeerNotFound
}

// DeliverPlan implements the conjunction ("all-succeed") rule of §4.3b for
// broadcast/channel-send/subscriber-add-remove fan-out: every Delivery in the plan is
// routed to its peer (via the same any-wins search per peer, since which shard holds a
// given peer is still unknown to the caller), and the aggregate succeeds only if every
// individual delivery that targets a peer actually present in the cluster succeeds.
// A delivery whose peer is not found anywhere is skipped, not failed — a dead or
// already-disconnected subscriber does not abort fan-out to the rest (§5).
func (e *Executor) DeliverPlan(ctx context.Context, appID string, plan []channel.Delivery) error {
	var (
		mu       sync.Mutex
		firstErr error
	)
	var g errgroup.Group
	for _, d := range plan {
		d := d
		g.Go(func() error {
			err := e.DeliverToPeer(ctx, appID, d.PeerID, d.Frame)
			if err == nil || errors.Is(err, wire.ErrPeerNotFound) {
				return nil
			}
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return firstErr
}

// BroadcastAll implements global.messages.send: every target's local Broadcast is
// invoked in parallel (§4.3b), and the aggregate succeeds only if all of them do
// (conjunction).
func (e *Executor) BroadcastAll(ctx context.Context, appID string, frame wire.SinkFrame) (delivered int, err error) {
	var mu sync.Mutex
	var g errgroup.Group
	for _, t := range e.Targets() {
		t := t
		g.Go(func() error {
			n, terr := t.Broadcast(ctx, appID, frame)
			mu.Lock()
			delivered += n
			if terr != nil && err == nil {
				err = terr
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return delivered, err
}
