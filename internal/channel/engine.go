// Package channel implements the Channel Engine of §4.2: subscribe/unsubscribe,
// presence tracking, and channel CRUD, enforcing the authorization rules of §3.
//
// The engine is stateless — every decision is made by reading and writing store.Store
// inside one transaction — and never touches a live socket. Every mutating operation
// returns a plan of Deliveries (which peer should receive which frame) instead of
// pushing frames itself; §10 has the coordinator execute local deliveries against its
// own peer.Registry and remote ones via shardrpc, so the decision logic here stays
// independent of where a peer's socket happens to be connected.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sinkr-io/sinkr/internal/model"
	"github.com/sinkr-io/sinkr/internal/store"
	"github.com/sinkr-io/sinkr/internal/wire"
)

func marshalStoredMessage(event string, payload wire.MessagePayload) ([]byte, error) {
	data, err := json.Marshal(wire.StoredMessageData{Event: event, Message: payload})
	if err != nil {
		return nil, fmt.Errorf("marshal stored message: %w", err)
	}
	return data, nil
}

// Delivery is one (peerId, frame) pair the caller must push, wherever that peer's
// connection actually lives.
type Delivery struct {
	PeerID string
	Frame  wire.SinkFrame
}

type Engine struct {
	store store.Store
}

func New(s store.Store) *Engine {
	return &Engine{store: s}
}

func toMember(p model.Peer, auth model.ChannelAuth) model.Member {
	m := model.Member{ID: p.ID}
	if auth == model.AuthPresence {
		m.UserInfo = p.UserInfo
	}
	return m
}

// Subscribe implements the unsubscribed -> subscribed transition of §4.2. A duplicate
// subscribe (the row already exists) succeeds without emitting any deliveries.
func (e *Engine) Subscribe(ctx context.Context, appID, peerID, channelID string) ([]Delivery, *model.Channel, error) {
	var deliveries []Delivery
	var channel *model.Channel

	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		ch, err := e.store.GetChannelByID(ctx, appID, channelID)
		if err != nil {
			return fmt.Errorf("get channel: %w", err)
		}
		if ch == nil {
			return wire.ErrChannelNotFound
		}
		channel = ch

		p, err := e.store.GetPeer(ctx, appID, peerID)
		if err != nil {
			return fmt.Errorf("get peer: %w", err)
		}
		if p == nil {
			return wire.ErrPeerNotFound
		}

		// §4.2 / §9: private and presence channels require an authenticated peer;
		// public does not. (The visible reference implementation inverts this check —
		// that is a documented bug, not reproduced here.)
		if (ch.Auth == model.AuthPrivate || ch.Auth == model.AuthPresence) && p.AuthenticatedUserID == nil {
			return wire.ErrPeerNotAuthenticated
		}

		created, err := e.store.Subscribe(ctx, appID, peerID, channelID)
		if err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
		if !created {
			return nil
		}

		members, err := e.store.ListMembers(ctx, appID, channelID)
		if err != nil {
			return fmt.Errorf("list members: %w", err)
		}

		others := make([]model.Member, 0, len(members))
		for _, m := range members {
			if m.ID == peerID {
				continue
			}
			others = append(others, toMember(m, ch.Auth))
		}

		var storedRefs []wire.StoredMessageRef
		if ch.Store {
			stored, err := e.store.ListStoredMessages(ctx, appID, channelID)
			if err != nil {
				return fmt.Errorf("list stored messages: %w", err)
			}
			for _, sm := range stored {
				storedRefs = append(storedRefs, wire.StoredMessageRef{
					ID:   sm.ID,
					Date: sm.CreatedAt.Format(time.RFC3339),
				})
			}
		}

		joinFrame, err := wire.NewJoinChannelFrame(uuid.NewString(), wire.JoinChannelEvent{
			ChannelID:             ch.ID,
			ChannelName:           ch.Name,
			ChannelAuthMode:       ch.Auth,
			ChannelStoredMessages: storedRefs,
			Members:               others,
		})
		if err != nil {
			return err
		}
		deliveries = append(deliveries, Delivery{PeerID: peerID, Frame: joinFrame})

		newMember := toMember(*p, ch.Auth)
		for _, m := range members {
			if m.ID == peerID {
				continue
			}
			f, err := wire.NewMemberJoinFrame(uuid.NewString(), ch.ID, newMember)
			if err != nil {
				return err
			}
			deliveries = append(deliveries, Delivery{PeerID: m.ID, Frame: f})
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return deliveries, channel, nil
}

// Unsubscribe implements the subscribed -> unsubscribed transition.
func (e *Engine) Unsubscribe(ctx context.Context, appID, peerID, channelID string) ([]Delivery, error) {
	var deliveries []Delivery

	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		ch, err := e.store.GetChannelByID(ctx, appID, channelID)
		if err != nil {
			return fmt.Errorf("get channel: %w", err)
		}
		if ch == nil {
			return wire.ErrChannelNotFound
		}

		existed, err := e.store.Unsubscribe(ctx, appID, peerID, channelID)
		if err != nil {
			return fmt.Errorf("unsubscribe: %w", err)
		}
		if !existed {
			return wire.ErrNotSubscribed
		}

		p, err := e.store.GetPeer(ctx, appID, peerID)
		if err != nil {
			return fmt.Errorf("get peer: %w", err)
		}

		leaveFrame, err := wire.NewLeaveChannelFrame(uuid.NewString(), ch.ID)
		if err != nil {
			return err
		}
		deliveries = append(deliveries, Delivery{PeerID: peerID, Frame: leaveFrame})

		leavingMember := model.Member{ID: peerID}
		if p != nil {
			leavingMember = toMember(*p, ch.Auth)
		}

		remaining, err := e.store.ListMembers(ctx, appID, channelID)
		if err != nil {
			return fmt.Errorf("list members: %w", err)
		}
		for _, m := range remaining {
			f, err := wire.NewMemberLeaveFrame(uuid.NewString(), ch.ID, leavingMember)
			if err != nil {
				return err
			}
			deliveries = append(deliveries, Delivery{PeerID: m.ID, Frame: f})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deliveries, nil
}

// HandleDisconnect reaps every subscription of peerID and the peer row itself, emitting
// a member-leave to every still-subscribed co-member of each affected channel (§4.2
// "Socket close"). Safe against concurrent subscribe/unsubscribe by other peers, since
// the membership snapshot and the peer-row delete happen in one transaction.
func (e *Engine) HandleDisconnect(ctx context.Context, appID, peerID string) ([]Delivery, error) {
	var deliveries []Delivery

	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		p, err := e.store.GetPeer(ctx, appID, peerID)
		if err != nil {
			return fmt.Errorf("get peer: %w", err)
		}
		if p == nil {
			return nil // already reaped; idempotent
		}

		subs, err := e.store.ListSubscriptions(ctx, appID, peerID)
		if err != nil {
			return fmt.Errorf("list subscriptions: %w", err)
		}

		type snapshot struct {
			channelID string
			members   []model.Peer
		}
		snapshots := make([]snapshot, 0, len(subs))
		for _, sub := range subs {
			members, err := e.store.ListMembers(ctx, appID, sub.ChannelID)
			if err != nil {
				return fmt.Errorf("list members: %w", err)
			}
			snapshots = append(snapshots, snapshot{channelID: sub.ChannelID, members: members})
		}

		if err := e.store.DeletePeer(ctx, appID, peerID); err != nil {
			return fmt.Errorf("delete peer: %w", err)
		}

		for _, snap := range snapshots {
			ch, err := e.store.GetChannelByID(ctx, appID, snap.channelID)
			if err != nil {
				return fmt.Errorf("get channel: %w", err)
			}
			if ch == nil {
				continue // channel was deleted concurrently
			}

			leavingMember := toMember(*p, ch.Auth)
			for _, m := range snap.members {
				if m.ID == peerID {
					continue
				}
				f, err := wire.NewMemberLeaveFrame(uuid.NewString(), snap.channelID, leavingMember)
				if err != nil {
					return err
				}
				deliveries = append(deliveries, Delivery{PeerID: m.ID, Frame: f})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deliveries, nil
}

// CreateChannel upserts by (appId, name): updates auth/store if the channel already
// exists and returns its id, otherwise inserts a new one.
func (e *Engine) CreateChannel(ctx context.Context, appID, name string, auth model.ChannelAuth, storeMessages bool) (string, error) {
	id, _, err := e.store.UpsertChannel(ctx, appID, name, auth, storeMessages)
	if err != nil {
		return "", fmt.Errorf("upsert channel: %w", err)
	}
	return id, nil
}

// DeleteChannel cascades to subscriptions and stored messages.
func (e *Engine) DeleteChannel(ctx context.Context, appID, channelID string) error {
	ch, err := e.store.GetChannelByID(ctx, appID, channelID)
	if err != nil {
		return fmt.Errorf("get channel: %w", err)
	}
	if ch == nil {
		return wire.ErrChannelNotFound
	}
	if err := e.store.DeleteChannel(ctx, appID, channelID); err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	return nil
}

// DeleteMessages deletes exactly messageIds, or every stored message of the channel if
// messageIds is empty.
func (e *Engine) DeleteMessages(ctx context.Context, appID, channelID string, messageIDs []string) error {
	ch, err := e.store.GetChannelByID(ctx, appID, channelID)
	if err != nil {
		return fmt.Errorf("get channel: %w", err)
	}
	if ch == nil {
		return wire.ErrChannelNotFound
	}
	if err := e.store.DeleteStoredMessages(ctx, appID, channelID, messageIDs); err != nil {
		return fmt.Errorf("delete stored messages: %w", err)
	}
	return nil
}

// SendMessage resolves the channel, persists a StoredMessage when store=true (using
// messageID, the source envelope's id, as both primary key and replay handle per §3),
// and returns one message Delivery per current subscriber. It observes the subscriber
// set once, inside the same transaction as the (optional) persistence write — a late
// subscriber does not retroactively receive this send (§5).
func (e *Engine) SendMessage(ctx context.Context, appID, channelID, messageID, event string, payload wire.MessagePayload) ([]Delivery, error) {
	var deliveries []Delivery

	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		ch, err := e.store.GetChannelByID(ctx, appID, channelID)
		if err != nil {
			return fmt.Errorf("get channel: %w", err)
		}
		if ch == nil {
			return wire.ErrChannelNotFound
		}

		if ch.Store {
			data, err := marshalStoredMessage(event, payload)
			if err != nil {
				return err
			}
			if err := e.store.InsertStoredMessage(ctx, appID, channelID, messageID, data, time.Now()); err != nil {
				return fmt.Errorf("insert stored message: %w", err)
			}
		}

		members, err := e.store.ListMembers(ctx, appID, channelID)
		if err != nil {
			return fmt.Errorf("list members: %w", err)
		}

		frame, err := wire.NewMessageFrame(uuid.NewString(), wire.MessageData{
			Event:   event,
			From:    wire.FromChannel(channelID),
			Message: payload,
		})
		if err != nil {
			return err
		}

		for _, m := range members {
			deliveries = append(deliveries, Delivery{PeerID: m.ID, Frame: frame})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deliveries, nil
}
