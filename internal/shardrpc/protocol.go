// Package shardrpc implements the internal shard<->coordinator link of §10: a single
// persistent, authenticated WebSocket a shard dials to the coordinator, multiplexing
// shard->coordinator lifecycle frames (register, load, deregister) with
// coordinator->shard dispatch request/response, framed the same {id, data} envelope
// shape the external source protocol uses (§6), just over a different frame union.
package shardrpc

import "encoding/json"

// Frame is the unit exchanged over the internal link in both directions.
type Frame struct {
	ID   string          `json:"id"`
	Type FrameType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

type FrameType string

const (
	FrameRegister    FrameType = "register"
	FrameDeregister  FrameType = "deregister"
	FrameLoad        FrameType = "load"
	FrameDisconnect  FrameType = "disconnect"
	FrameDispatch    FrameType = "dispatch"
	FrameDispatchAck FrameType = "dispatch_ack"
	FrameTicket      FrameType = "ticket"
)

// RegisterPayload is sent once, immediately after the shard dials in. AdvertiseAddr is
// the address the coordinator's reverse proxy forwards sink upgrade requests to (§10).
type RegisterPayload struct {
	ShardID        string `json:"shardId"`
	AdvertiseAddr  string `json:"advertiseAddr"`
}

// LoadPayload is sent on a fixed interval and whenever a connection is accepted or
// closed, so the coordinator's least-loaded shard selection (§4.3a,
// MAX_CONNECTIONS_PER_OBJECT) stays current without polling.
type LoadPayload struct {
	ConnectionCount int `json:"connectionCount"`
}

// DeregisterPayload carries no data; its presence on the wire is the signal. Sent by a
// shard during graceful shutdown so the coordinator stops routing new connections and
// dispatches to it immediately, instead of waiting for the socket to drop.
type DeregisterPayload struct{}

// DisconnectPayload notifies the coordinator that a locally-held sink's socket closed,
// so the coordinator (the only process with a channel.Engine) can reap its
// subscriptions and fan out member-leave notifications, §4.2 "Socket close".
type DisconnectPayload struct {
	AppID  string `json:"appId"`
	PeerID string `json:"peerId"`
}

// TicketPayload is coordinator->shard, sent once right after a secret-authenticated
// register: a short-lived ticket (internal/pkg/ticket) the shard can present on its next
// reconnect instead of the raw COORDINATION_SECRET.
type TicketPayload struct {
	Ticket string `json:"ticket"`
}

// DispatchKind discriminates the two fan-out shapes a coordinator can ask a shard to
// perform locally.
type DispatchKind string

const (
	DispatchDeliver   DispatchKind = "deliver"   // push Frame to exactly PeerID, if held here
	DispatchBroadcast DispatchKind = "broadcast" // push Frame to every peer of AppID held here
)

// DispatchPayload is coordinator->shard: "do this fan-out step against your local
// peer.Registry and tell me what happened."
type DispatchPayload struct {
	Kind   DispatchKind    `json:"kind"`
	AppID  string          `json:"appId"`
	PeerID string          `json:"peerId,omitempty"`
	Frame  json.RawMessage `json:"frame"`
}

// DispatchAckPayload is the shard's reply. Found is meaningful only for Deliver;
// Delivered only for Broadcast.
type DispatchAckPayload struct {
	Found     bool   `json:"found"`
	Delivered int    `json:"delivered"`
	Error     string `json:"error,omitempty"`
}
