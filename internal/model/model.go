// Package model holds the data-model types of §3: App, Peer, Channel, Subscription
// and StoredMessage. These are persistence-shaped structs, scanned directly by sqlx.
package model

import (
	"encoding/json"
	"time"
)

// PeerType distinguishes an authenticated publisher from a subscriber connection.
type PeerType string

const (
	PeerSource PeerType = "source"
	PeerSink   PeerType = "sink"
)

// ChannelAuth is the authorization mode of a channel.
type ChannelAuth string

const (
	AuthPublic   ChannelAuth = "public"
	AuthPrivate  ChannelAuth = "private"
	AuthPresence ChannelAuth = "presence"
)

// App is the tenant record. Immutable from the core's perspective; the external app
// manager owns writes to it. The core only ever reads a row to authorize a connection.
type App struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	SecretKey string `db:"secret_key"`
	Enabled   bool   `db:"enabled"`
}

// Peer is one live client connection. A row exists iff the socket is live on some shard.
type Peer struct {
	ID                  string          `db:"id"`
	AppID               string          `db:"app_id"`
	Type                PeerType        `db:"type"`
	AuthenticatedUserID *string         `db:"authenticated_user_id"`
	UserInfo            json.RawMessage `db:"user_info"` // opaque JSON, stored verbatim
}

// Channel is a named pub/sub target scoped to one app.
type Channel struct {
	ID     string      `db:"id"`
	AppID  string      `db:"app_id"`
	Name   string      `db:"name"`
	Auth   ChannelAuth `db:"auth"`
	Store  bool        `db:"store"`
}

// Subscription is a peer<->channel membership row.
type Subscription struct {
	ID        string `db:"id"`
	AppID     string `db:"app_id"`
	PeerID    string `db:"peer_id"`
	ChannelID string `db:"channel_id"`
}

// StoredMessage is a persisted channel payload, present only for store=true channels.
// ID is source-assigned and used both for persistence dedup and replay correlation.
type StoredMessage struct {
	ID        string    `db:"id"`
	AppID     string    `db:"app_id"`
	ChannelID string    `db:"channel_id"`
	CreatedAt time.Time `db:"created_at"`
	Data      []byte    `db:"data"`
}

// Member is the presence-facing projection of a Peer: its id, plus userInfo when the
// channel's auth mode makes membership visible. UserInfo is carried as raw JSON so the
// value a source set via user.authenticate passes through to the wire verbatim, instead
// of being re-encoded as a quoted string.
type Member struct {
	ID       string          `json:"id"`
	UserInfo json.RawMessage `json:"userInfo,omitempty"`
}
