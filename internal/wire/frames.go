package wire

import (
	"encoding/json"

	"github.com/sinkr-io/sinkr/internal/model"
)

// SinkFrame is the server→sink frame of §6, discriminated by Source.
type SinkFrame struct {
	ID     string          `json:"id"`
	Source string          `json:"source"` // "metadata" | "message"
	Data   json.RawMessage `json:"data"`
}

const (
	sourceMetadata = "metadata"
	sourceMessage  = "message"
)

func newFrame(id, source string, data any) (SinkFrame, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return SinkFrame{}, err
	}
	return SinkFrame{ID: id, Source: source, Data: payload}, nil
}

// --- metadata events ---

type InitEvent struct {
	Event  string `json:"event"`
	PeerID string `json:"peerId"`
}

// StoredMessageRef is one entry of join-channel's channelStoredMessages list: enough to
// let a sink request the bodies it hasn't seen yet without re-sending every payload.
type StoredMessageRef struct {
	ID   string `json:"id"`
	Date string `json:"date"` // RFC3339, StoredMessage.CreatedAt
}

type JoinChannelEvent struct {
	Event                 string             `json:"event"`
	ChannelID             string             `json:"channelId"`
	ChannelName           string             `json:"channelName"`
	ChannelAuthMode       model.ChannelAuth  `json:"channelAuthMode"`
	ChannelStoredMessages []StoredMessageRef `json:"channelStoredMessages"`
	Members               []model.Member     `json:"members"`
}

type LeaveChannelEvent struct {
	Event     string `json:"event"`
	ChannelID string `json:"channelId"`
}

type MemberJoinEvent struct {
	Event     string       `json:"event"`
	ChannelID string       `json:"channelId"`
	Member    model.Member `json:"member"`
}

type MemberLeaveEvent struct {
	Event     string       `json:"event"`
	ChannelID string       `json:"channelId"`
	Member    model.Member `json:"member"`
}

func NewInitFrame(frameID, peerID string) (SinkFrame, error) {
	return newFrame(frameID, sourceMetadata, InitEvent{Event: "init", PeerID: peerID})
}

func NewJoinChannelFrame(frameID string, e JoinChannelEvent) (SinkFrame, error) {
	e.Event = "join-channel"
	return newFrame(frameID, sourceMetadata, e)
}

func NewLeaveChannelFrame(frameID, channelID string) (SinkFrame, error) {
	return newFrame(frameID, sourceMetadata, LeaveChannelEvent{Event: "leave-channel", ChannelID: channelID})
}

func NewMemberJoinFrame(frameID, channelID string, member model.Member) (SinkFrame, error) {
	return newFrame(frameID, sourceMetadata, MemberJoinEvent{Event: "member-join", ChannelID: channelID, Member: member})
}

func NewMemberLeaveFrame(frameID, channelID string, member model.Member) (SinkFrame, error) {
	return newFrame(frameID, sourceMetadata, MemberLeaveEvent{Event: "member-leave", ChannelID: channelID, Member: member})
}

// --- message frames ---

// MessageFrom discriminates the origin of a pushed message: a global broadcast, a
// direct user-to-user delivery, or a named channel (carrying its id).
type MessageFrom struct {
	Source    string  `json:"source"` // "broadcast" | "direct" | "channel"
	ChannelID *string `json:"channelId,omitempty"`
}

type MessageData struct {
	Event   string         `json:"event"`
	From    MessageFrom    `json:"from"`
	Message MessagePayload `json:"message"`
}

func FromBroadcast() MessageFrom { return MessageFrom{Source: "broadcast"} }
func FromDirect() MessageFrom    { return MessageFrom{Source: "direct"} }
func FromChannel(channelID string) MessageFrom {
	return MessageFrom{Source: "channel", ChannelID: &channelID}
}

func NewMessageFrame(frameID string, data MessageData) (SinkFrame, error) {
	return newFrame(frameID, sourceMessage, data)
}

// --- sink → server frames ---
// A sink may only ever send a literal "ping" text frame or a request-stored-messages
// event (§4.4); everything else received from a sink is ignored by the caller.

const (
	SinkPingText = "ping"
	SinkPongText = "pong"
)

type RequestStoredMessages struct {
	Event      string   `json:"event"`
	ChannelID  string   `json:"channelId"`
	MessageIDs []string `json:"messageIds"`
}

const EventRequestStoredMessages = "request-stored-messages"
