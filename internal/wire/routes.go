package wire

import (
	"encoding/json"

	"github.com/sinkr-io/sinkr/internal/model"
)

// Route is the route-name union of §4.4.
type Route string

const (
	RouteUserAuthenticate         Route = "user.authenticate"
	RouteChannelCreate            Route = "channel.create"
	RouteChannelDelete            Route = "channel.delete"
	RouteChannelMessagesDelete    Route = "channel.messages.delete"
	RouteChannelSubscribersAdd    Route = "channel.subscribers.add"
	RouteChannelSubscribersRemove Route = "channel.subscribers.remove"
	RouteChannelMessagesSend      Route = "channel.messages.send"
	RouteUserMessagesSend         Route = "user.messages.send"
	RouteGlobalMessagesSend       Route = "global.messages.send"
)

// MessagePayload is the tagged union carried by every message-send route and delivered
// verbatim to sinks: either {type:"plain", message} or {type:"chunk", index, message}.
// The server never inspects or reassembles it; index and tag are passed through as-is.
type MessagePayload struct {
	Type    string          `json:"type"`
	Index   *int            `json:"index,omitempty"`
	Message json.RawMessage `json:"message"`
}

// --- user.authenticate ---

type UserAuthenticateRequest struct {
	PeerID   string          `json:"peerId"`
	ID       string          `json:"id"`
	UserInfo json.RawMessage `json:"userInfo,omitempty"`
}

type UserAuthenticateResponse struct{ Ok }

// --- channel.create ---

type ChannelCreateRequest struct {
	Name          string            `json:"name"`
	AuthMode      model.ChannelAuth `json:"authMode"`
	StoreMessages bool              `json:"storeMessages"`
}

type ChannelCreateResponse struct {
	Ok
	ChannelID string `json:"channelId"`
}

// --- channel.delete ---

type ChannelDeleteRequest struct {
	ChannelID string `json:"channelId"`
}

type ChannelDeleteResponse struct{ Ok }

// --- channel.messages.delete ---

type ChannelMessagesDeleteRequest struct {
	ChannelID  string   `json:"channelId"`
	MessageIDs []string `json:"messageIds,omitempty"`
}

type ChannelMessagesDeleteResponse struct{ Ok }

// --- channel.subscribers.add / remove ---

type ChannelSubscribersAddRequest struct {
	SubscriberID string `json:"subscriberId"`
	ChannelID    string `json:"channelId"`
}

type ChannelSubscribersAddResponse struct{ Ok }

type ChannelSubscribersRemoveRequest struct {
	SubscriberID string `json:"subscriberId"`
	ChannelID    string `json:"channelId"`
}

type ChannelSubscribersRemoveResponse struct{ Ok }

// --- channel.messages.send ---

// ChannelMessagesSendRequest carries no id of its own: per §3, a StoredMessage's id is
// "assigned by source, used for correlation and replay dedup" — that's the envelope's
// top-level id (§6), which the channel engine reuses verbatim as the StoredMessage row's
// primary key when the channel has store=true.
type ChannelMessagesSendRequest struct {
	ChannelID string         `json:"channelId"`
	Event     string         `json:"event"`
	Message   MessagePayload `json:"message"`
}

type ChannelMessagesSendResponse struct{ Ok }

// StoredMessageData is what actually gets persisted for a store=true channel's
// messages: the event name alongside the payload, so a replayed StoredMessage can
// reconstruct the same message frame a live subscriber would have received.
type StoredMessageData struct {
	Event   string         `json:"event"`
	Message MessagePayload `json:"message"`
}

// --- user.messages.send ---

type UserMessagesSendRequest struct {
	RecipientID string         `json:"recipientId"`
	Event       string         `json:"event"`
	Message     MessagePayload `json:"message"`
}

type UserMessagesSendResponse struct{ Ok }

// --- global.messages.send ---

type GlobalMessagesSendRequest struct {
	Event   string         `json:"event"`
	Message MessagePayload `json:"message"`
}

type GlobalMessagesSendResponse struct{ Ok }
