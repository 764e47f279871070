package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReplySuccess(t *testing.T) {
	reply, err := NewReply("env-1", RouteChannelCreate, ChannelCreateResponse{Ok: Success, ChannelID: "chan-1"})
	require.NoError(t, err)
	assert.Equal(t, "env-1", reply.ID)
	assert.Equal(t, RouteChannelCreate, reply.Route)

	var decoded ChannelCreateResponse
	require.NoError(t, json.Unmarshal(reply.Response, &decoded))
	assert.True(t, decoded.Success)
	assert.Equal(t, "chan-1", decoded.ChannelID)
}

func TestNewReplyError(t *testing.T) {
	reply, err := NewReply("env-2", RouteChannelDelete, NewErrorResponse(ErrChannelNotFound))
	require.NoError(t, err)

	var decoded ErrorResponse
	require.NoError(t, json.Unmarshal(reply.Response, &decoded))
	assert.False(t, decoded.Success)
	assert.Equal(t, "Channel not found", decoded.Error)
}

func TestOkResponseFlattensSuccessField(t *testing.T) {
	// Ok is embedded anonymously so "success" sits alongside route-specific fields
	// instead of nesting under an "ok" key.
	data, err := json.Marshal(ChannelCreateResponse{Ok: Success, ChannelID: "chan-2"})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, true, m["success"])
	assert.Equal(t, "chan-2", m["channelId"])
	_, hasNestedOk := m["Ok"]
	assert.False(t, hasNestedOk)
}
