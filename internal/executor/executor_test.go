package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinkr-io/sinkr/internal/channel"
	"github.com/sinkr-io/sinkr/internal/wire"
)

// fakeTarget is a hand-rolled Target double: each holds a fixed peer set and records
// every frame it was asked to deliver or broadcast.
type fakeTarget struct {
	held        map[string]bool
	deliverErr  error
	broadcastN  int
	broadcastErr error
	delivered   []string
}

func (t *fakeTarget) Deliver(ctx context.Context, appID, peerID string, frame wire.SinkFrame) error {
	if !t.held[peerID] {
		return ErrNotMine
	}
	if t.deliverErr != nil {
		return t.deliverErr
	}
	t.delivered = append(t.delivered, peerID)
	return nil
}

func (t *fakeTarget) Broadcast(ctx context.Context, appID string, frame wire.SinkFrame) (int, error) {
	return t.broadcastN, t.broadcastErr
}

func frame(t *testing.T) wire.SinkFrame {
	f, err := wire.NewMessageFrame("f1", wire.MessageData{Event: "e", From: wire.FromBroadcast()})
	require.NoError(t, err)
	return f
}

func TestDeliverToPeerAnyWins(t *testing.T) {
	holder := &fakeTarget{held: map[string]bool{"p1": true}}
	other := &fakeTarget{held: map[string]bool{}}
	e := New(func() []Target { return []Target{other, holder} })

	err := e.DeliverToPeer(context.Background(), "app1", "p1", frame(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, holder.delivered)
}

func TestDeliverToPeerNotFoundAnywhere(t *testing.T) {
	e := New(func() []Target { return []Target{&fakeTarget{held: map[string]bool{}}} })

	err := e.DeliverToPeer(context.Background(), "app1", "ghost", frame(t))
	assert.ErrorIs(t, err, wire.ErrPeerNotFound)
}

func TestDeliverToPeerRealFailurePropagates(t *testing.T) {
	boom := errors.New("boom")
	holder := &fakeTarget{held: map[string]bool{"p1": true}, deliverErr: boom}
	e := New(func() []Target { return []Target{holder} })

	err := e.DeliverToPeer(context.Background(), "app1", "p1", frame(t))
	assert.ErrorIs(t, err, boom)
}

func TestDeliverPlanSkipsNotFoundButFailsOnRealError(t *testing.T) {
	boom := errors.New("boom")
	holder := &fakeTarget{held: map[string]bool{"p1": true}, deliverErr: boom}
	e := New(func() []Target { return []Target{holder} })

	plan := []channel.Delivery{
		{PeerID: "ghost", Frame: frame(t)}, // not found anywhere, skipped
		{PeerID: "p1", Frame: frame(t)},    // found, but delivery errors
	}

	err := e.DeliverPlan(context.Background(), "app1", plan)
	assert.ErrorIs(t, err, boom)
}

func TestDeliverPlanAllNotFoundSucceeds(t *testing.T) {
	e := New(func() []Target { return []Target{&fakeTarget{held: map[string]bool{}}} })

	plan := []channel.Delivery{{PeerID: "ghost1", Frame: frame(t)}, {PeerID: "ghost2", Frame: frame(t)}}
	assert.NoError(t, e.DeliverPlan(context.Background(), "app1", plan))
}

func TestBroadcastAllAggregatesAndFailsIfAnyTargetFails(t *testing.T) {
	boom := errors.New("boom")
	ok := &fakeTarget{broadcastN: 3}
	bad := &fakeTarget{broadcastN: 2, broadcastErr: boom}
	e := New(func() []Target { return []Target{ok, bad} })

	delivered, err := e.BroadcastAll(context.Background(), "app1", frame(t))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 5, delivered)
}
