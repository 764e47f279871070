// Package store defines the Tenant & Membership Store interface of §4.5: a transactional
// interface over apps, peers, channels, subscriptions and stored messages, serving every
// shard and the coordinator. internal/store/postgres is the production implementation;
// internal/storetest holds an in-memory double for tests.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sinkr-io/sinkr/internal/model"
)

// Store is implemented by internal/store/postgres.Store. Every method is safe for
// concurrent use; uniqueness invariants (§3) are enforced by the schema, not by caller
// discipline.
type Store interface {
	// WithTx runs fn with a single transaction threaded through ctx. Nested calls reuse
	// the already-open transaction instead of starting a new one.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	GetApp(ctx context.Context, appID string) (*model.App, error)

	CreatePeer(ctx context.Context, peer *model.Peer) error
	GetPeer(ctx context.Context, appID, peerID string) (*model.Peer, error)
	AuthenticatePeer(ctx context.Context, appID, peerID, authenticatedUserID string, userInfo json.RawMessage) error
	DeletePeer(ctx context.Context, appID, peerID string) error
	// FindPeerByIdentity resolves subscriberId/recipientId per §4.4: match against
	// peer.id first, then authenticatedUserId.
	FindPeerByIdentity(ctx context.Context, appID, identity string) (*model.Peer, error)

	UpsertChannel(ctx context.Context, appID, name string, auth model.ChannelAuth, store bool) (channelID string, created bool, err error)
	GetChannelByID(ctx context.Context, appID, channelID string) (*model.Channel, error)
	DeleteChannel(ctx context.Context, appID, channelID string) error

	// Subscribe inserts the (appId, peerId, channelId) row. created is false if the row
	// already existed — a duplicate subscribe is success without re-emitting join events.
	Subscribe(ctx context.Context, appID, peerID, channelID string) (created bool, err error)
	// Unsubscribe removes the row. existed is false if there was nothing to remove.
	Unsubscribe(ctx context.Context, appID, peerID, channelID string) (existed bool, err error)
	// IsSubscribed reports whether (appId, peerId, channelId) currently has a row — used
	// to gate a sink's request-stored-messages to channels it is actually subscribed to
	// (§4.4).
	IsSubscribed(ctx context.Context, appID, peerID, channelID string) (bool, error)
	// ListMembers returns every peer currently subscribed to channelID, for presence
	// resolution and fan-out targeting.
	ListMembers(ctx context.Context, appID, channelID string) ([]model.Peer, error)
	// ListSubscriptions enumerates every channel a peer belongs to, for disconnect reaping.
	ListSubscriptions(ctx context.Context, appID, peerID string) ([]model.Subscription, error)

	InsertStoredMessage(ctx context.Context, appID, channelID, id string, data []byte, createdAt time.Time) error
	ListStoredMessages(ctx context.Context, appID, channelID string) ([]model.StoredMessage, error)
	GetStoredMessagesByIDs(ctx context.Context, appID, channelID string, ids []string) ([]model.StoredMessage, error)
	DeleteStoredMessages(ctx context.Context, appID, channelID string, ids []string) error
}
