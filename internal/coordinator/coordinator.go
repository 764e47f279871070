// Package coordinator implements the Shard Coordinator actor of §4.3: the one
// externally-reachable process, realized per §10 as a single lock-protected struct
// (there is exactly one per deployment). It owns upgrade dispatch (§4.3a), fan-out of
// source requests across every registered shard (§4.3b), and load accounting (§4.3c),
// and embeds its own local peer.Registry for the source connections that never leave
// this process.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sinkr-io/sinkr/internal/channel"
	"github.com/sinkr-io/sinkr/internal/executor"
	"github.com/sinkr-io/sinkr/internal/loadstore"
	"github.com/sinkr-io/sinkr/internal/metrics"
	"github.com/sinkr-io/sinkr/internal/model"
	"github.com/sinkr-io/sinkr/internal/peer"
	"github.com/sinkr-io/sinkr/internal/shardrpc"
	"github.com/sinkr-io/sinkr/internal/store"
	"github.com/sinkr-io/sinkr/internal/wire"
)

// ErrNoShardAvailable is returned by SelectShardForUpgrade when every registered shard
// is over MaxConnectionsPerObject and none has registered without yet reporting
// load (the stand-in, in a process-per-shard deployment, for §4.3a's "allocate a new
// shard id" — this coordinator has no mechanism to start a new OS process itself, so
// capacity beyond the registered pool is an operational/orchestration concern, not
// something upgrade dispatch can satisfy on its own).
var ErrNoShardAvailable = errors.New("coordinator: no shard available under the connection cap")

func newFrameID() string { return uuid.NewString() }

type Coordinator struct {
	store store.Store
	local *peer.Registry

	engine   *channel.Engine
	executor *executor.Executor

	loadstore               *loadstore.Store
	maxConnectionsPerObject int
	metrics                 *metrics.Metrics

	mu     sync.RWMutex
	shards map[string]*shardrpc.RemoteShard
}

func New(st store.Store, ls *loadstore.Store, m *metrics.Metrics, maxConnectionsPerObject int) *Coordinator {
	c := &Coordinator{
		store:                   st,
		local:                   peer.NewRegistry(),
		engine:                  channel.New(st),
		loadstore:               ls,
		maxConnectionsPerObject: maxConnectionsPerObject,
		metrics:                 m,
		shards:                  make(map[string]*shardrpc.RemoteShard),
	}
	c.executor = executor.New(c.targets)
	return c
}

// Metrics exposes the coordinator's metrics handle for the HTTP layer's own connection
// lifecycle events (source upgrades), which the coordinator doesn't otherwise see.
func (c *Coordinator) Metrics() *metrics.Metrics { return c.metrics }

// Local returns the coordinator's own embedded peer.Registry, for the HTTP layer to
// register/unregister sources. Sinks are never registered here.
func (c *Coordinator) Local() *peer.Registry { return c.local }

func (c *Coordinator) targets() []executor.Target {
	c.mu.RLock()
	defer c.mu.RUnlock()

	targets := make([]executor.Target, 0, len(c.shards)+1)
	targets = append(targets, executor.NewLocalTarget(c.local))
	for _, sh := range c.shards {
		targets = append(targets, executor.NewRemoteTarget(sh))
	}
	return targets
}

// RegisterShard adds a newly-dialed-in shard to the pool. Its OnLoad/OnClose hooks are
// wired here so the shardrpc connection's own lifecycle drives the load table and
// shard registry without internal/shardrpc needing to know about either.
func (c *Coordinator) RegisterShard(shard *shardrpc.RemoteShard) {
	shard.OnLoad = func(count int) {
		_ = c.loadstore.Report(context.Background(), loadstore.ShardLoad{
			ShardID:         shard.ShardID,
			AdvertiseAddr:   shard.AdvertiseAddr,
			ConnectionCount: count,
		})
	}
	shard.OnClose = func() {
		c.mu.Lock()
		delete(c.shards, shard.ShardID)
		c.mu.Unlock()
		_ = c.loadstore.Remove(context.Background(), shard.ShardID)
	}
	shard.OnDisconnect = func(appID, peerID string) {
		_ = c.HandleDisconnect(context.Background(), appID, peerID)
	}

	c.mu.Lock()
	c.shards[shard.ShardID] = shard
	c.mu.Unlock()
}

// SelectShardForUpgrade implements §4.3a for the forwarding path: pick the
// registered shard with the lowest reported connection count at or under the cap. A
// shard that has registered but not yet reported any load is treated as having zero
// connections, so a freshly started shard is preferred exactly once it's worth routing
// to, without waiting out the first load-report interval.
func (c *Coordinator) SelectShardForUpgrade(ctx context.Context) (*shardrpc.RemoteShard, error) {
	c.mu.RLock()
	ids := make([]string, 0, len(c.shards))
	shards := make(map[string]*shardrpc.RemoteShard, len(c.shards))
	for id, sh := range c.shards {
		ids = append(ids, id)
		shards[id] = sh
	}
	c.mu.RUnlock()

	if len(ids) == 0 {
		return nil, ErrNoShardAvailable
	}

	loads, err := c.loadstore.Snapshot(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("select shard: %w", err)
	}
	reported := make(map[string]int, len(loads))
	for _, l := range loads {
		reported[l.ShardID] = l.ConnectionCount
	}

	var best *shardrpc.RemoteShard
	bestCount := -1
	for _, id := range ids {
		count, ok := reported[id]
		if !ok {
			count = 0
		}
		if count > c.maxConnectionsPerObject {
			continue
		}
		if best == nil || count < bestCount {
			best = shards[id]
			bestCount = count
		}
	}
	if best == nil {
		return nil, ErrNoShardAvailable
	}
	return best, nil
}

// --- §4.4 request routing, fanning out via executor where §4.3b calls for it ---

func (c *Coordinator) GetApp(ctx context.Context, appID string) (*model.App, error) {
	return c.store.GetApp(ctx, appID)
}

func (c *Coordinator) CreatePeer(ctx context.Context, p *model.Peer) error {
	return c.store.CreatePeer(ctx, p)
}

func (c *Coordinator) GetPeer(ctx context.Context, appID, peerID string) (*model.Peer, error) {
	return c.store.GetPeer(ctx, appID, peerID)
}

func (c *Coordinator) Authenticate(ctx context.Context, appID, peerID, authenticatedUserID string, userInfo json.RawMessage) error {
	return c.store.AuthenticatePeer(ctx, appID, peerID, authenticatedUserID, userInfo)
}

func (c *Coordinator) CreateChannel(ctx context.Context, appID, name string, auth model.ChannelAuth, storeMessages bool) (string, error) {
	return c.engine.CreateChannel(ctx, appID, name, auth, storeMessages)
}

func (c *Coordinator) DeleteChannel(ctx context.Context, appID, channelID string) error {
	return c.engine.DeleteChannel(ctx, appID, channelID)
}

func (c *Coordinator) DeleteMessages(ctx context.Context, appID, channelID string, messageIDs []string) error {
	return c.engine.DeleteMessages(ctx, appID, channelID, messageIDs)
}

// resolveIdentity implements §4.4's subscriberId/recipientId rule: match against
// peer.id first, then authenticatedUserId; either one wins. notFoundErr lets callers
// pick the route-appropriate error of §7 when resolution fails — subscribers.add/remove
// report "Peer not found", user.messages.send reports the distinct "Recipient not found".
func (c *Coordinator) resolveIdentity(ctx context.Context, appID, identity string, notFoundErr error) (*model.Peer, error) {
	p, err := c.store.FindPeerByIdentity(ctx, appID, identity)
	if err != nil {
		return nil, fmt.Errorf("resolve identity: %w", err)
	}
	if p == nil {
		return nil, notFoundErr
	}
	return p, nil
}

// trackFanout records how long a fan-out step took and, on failure, increments the
// route's dispatch-failure counter — the only place this coordinator surfaces §12's
// fan-out cost and error-rate signals.
func (c *Coordinator) trackFanout(route string, start time.Time, err error) {
	c.metrics.FanoutLatency(route, time.Since(start).Milliseconds())
	if err != nil {
		c.metrics.DispatchFailure(route)
	}
}

// SubscribersAdd resolves subscriberId to a live peer, then runs the subscribe
// transition and fans its notifications out (conjunction, §4.3b).
func (c *Coordinator) SubscribersAdd(ctx context.Context, appID, subscriberID, channelID string) error {
	p, err := c.resolveIdentity(ctx, appID, subscriberID, wire.ErrPeerNotFound)
	if err != nil {
		return err
	}
	deliveries, _, err := c.engine.Subscribe(ctx, appID, p.ID, channelID)
	if err != nil {
		return err
	}
	start := time.Now()
	err = c.executor.DeliverPlan(ctx, appID, deliveries)
	c.trackFanout(string(wire.RouteChannelSubscribersAdd), start, err)
	return err
}

func (c *Coordinator) SubscribersRemove(ctx context.Context, appID, subscriberID, channelID string) error {
	p, err := c.resolveIdentity(ctx, appID, subscriberID, wire.ErrPeerNotFound)
	if err != nil {
		return err
	}
	deliveries, err := c.engine.Unsubscribe(ctx, appID, p.ID, channelID)
	if err != nil {
		return err
	}
	start := time.Now()
	err = c.executor.DeliverPlan(ctx, appID, deliveries)
	c.trackFanout(string(wire.RouteChannelSubscribersRemove), start, err)
	return err
}

// ChannelMessagesSend persists (if the channel stores) and fans the message out to
// every current subscriber — conjunction, §4.3b.
func (c *Coordinator) ChannelMessagesSend(ctx context.Context, appID, channelID, messageID, event string, payload wire.MessagePayload) error {
	deliveries, err := c.engine.SendMessage(ctx, appID, channelID, messageID, event, payload)
	if err != nil {
		return err
	}
	start := time.Now()
	err = c.executor.DeliverPlan(ctx, appID, deliveries)
	c.trackFanout(string(wire.RouteChannelMessagesSend), start, err)
	return err
}

// UserMessagesSend resolves recipientId then delivers directly — disjunction, §4.3b:
// delivery to whichever one target actually holds the peer is enough.
func (c *Coordinator) UserMessagesSend(ctx context.Context, appID, recipientID, event string, payload wire.MessagePayload) error {
	p, err := c.resolveIdentity(ctx, appID, recipientID, wire.ErrRecipientNotFound)
	if err != nil {
		return err
	}
	frame, err := wire.NewMessageFrame(newFrameID(), wire.MessageData{
		Event:   event,
		From:    wire.FromDirect(),
		Message: payload,
	})
	if err != nil {
		return err
	}
	start := time.Now()
	err = c.executor.DeliverToPeer(ctx, appID, p.ID, frame)
	c.trackFanout(string(wire.RouteUserMessagesSend), start, err)
	return err
}

// GlobalMessagesSend broadcasts to every peer of appID across the whole cluster —
// conjunction across targets, §4.3b.
func (c *Coordinator) GlobalMessagesSend(ctx context.Context, appID, event string, payload wire.MessagePayload) error {
	frame, err := wire.NewMessageFrame(newFrameID(), wire.MessageData{
		Event:   event,
		From:    wire.FromBroadcast(),
		Message: payload,
	})
	if err != nil {
		return err
	}
	start := time.Now()
	_, err = c.executor.BroadcastAll(ctx, appID, frame)
	c.trackFanout(string(wire.RouteGlobalMessagesSend), start, err)
	return err
}

// HandleDisconnect reaps peerID's subscriptions and fans out the resulting
// member-leave notifications — called by whichever process (coordinator, for a source
// or directly-held sink; or relayed from a shard) actually observed the socket close.
func (c *Coordinator) HandleDisconnect(ctx context.Context, appID, peerID string) error {
	deliveries, err := c.engine.HandleDisconnect(ctx, appID, peerID)
	if err != nil {
		return err
	}
	return c.executor.DeliverPlan(ctx, appID, deliveries)
}
