package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinkr-io/sinkr/internal/model"
	"github.com/sinkr-io/sinkr/internal/storetest"
	"github.com/sinkr-io/sinkr/internal/wire"
)

const appID = "app1"

func newEngine() (*Engine, *storetest.Store) {
	st := storetest.New()
	st.Apps[appID] = &model.App{ID: appID, Name: "test", Enabled: true}
	return New(st), st
}

func addPeer(st *storetest.Store, id string, authenticated bool) {
	p := &model.Peer{ID: id, AppID: appID, Type: model.PeerSink}
	if authenticated {
		uid := id + "-user"
		p.AuthenticatedUserID = &uid
	}
	_ = st.CreatePeer(context.Background(), p)
}

func TestSubscribePublicChannelAnonymousPeerAllowed(t *testing.T) {
	e, st := newEngine()
	chanID, _, err := st.UpsertChannel(context.Background(), appID, "room", model.AuthPublic, false)
	require.NoError(t, err)
	addPeer(st, "peer1", false)

	deliveries, ch, err := e.Subscribe(context.Background(), appID, "peer1", chanID)
	require.NoError(t, err)
	assert.Equal(t, model.AuthPublic, ch.Auth)
	require.Len(t, deliveries, 1) // only the join-channel frame back to peer1; no other members yet
	assert.Equal(t, "peer1", deliveries[0].PeerID)
}

func TestSubscribePrivateChannelRequiresAuthentication(t *testing.T) {
	e, st := newEngine()
	chanID, _, err := st.UpsertChannel(context.Background(), appID, "room", model.AuthPrivate, false)
	require.NoError(t, err)
	addPeer(st, "peer1", false)

	_, _, err = e.Subscribe(context.Background(), appID, "peer1", chanID)
	assert.ErrorIs(t, err, wire.ErrPeerNotAuthenticated)
}

func TestSubscribeDuplicateIsNoOp(t *testing.T) {
	e, st := newEngine()
	chanID, _, err := st.UpsertChannel(context.Background(), appID, "room", model.AuthPublic, false)
	require.NoError(t, err)
	addPeer(st, "peer1", false)

	_, _, err = e.Subscribe(context.Background(), appID, "peer1", chanID)
	require.NoError(t, err)

	deliveries, _, err := e.Subscribe(context.Background(), appID, "peer1", chanID)
	require.NoError(t, err)
	assert.Empty(t, deliveries)
}

func TestSubscribeNotifiesExistingMembers(t *testing.T) {
	e, st := newEngine()
	chanID, _, err := st.UpsertChannel(context.Background(), appID, "room", model.AuthPublic, false)
	require.NoError(t, err)
	addPeer(st, "peer1", false)
	addPeer(st, "peer2", false)

	_, _, err = e.Subscribe(context.Background(), appID, "peer1", chanID)
	require.NoError(t, err)

	deliveries, _, err := e.Subscribe(context.Background(), appID, "peer2", chanID)
	require.NoError(t, err)
	// one join-channel frame back to peer2, one member-join frame out to peer1
	require.Len(t, deliveries, 2)
	peerIDs := []string{deliveries[0].PeerID, deliveries[1].PeerID}
	assert.Contains(t, peerIDs, "peer1")
	assert.Contains(t, peerIDs, "peer2")
}

func TestUnsubscribeNotSubscribedFails(t *testing.T) {
	e, st := newEngine()
	chanID, _, err := st.UpsertChannel(context.Background(), appID, "room", model.AuthPublic, false)
	require.NoError(t, err)
	addPeer(st, "peer1", false)

	_, err = e.Unsubscribe(context.Background(), appID, "peer1", chanID)
	assert.ErrorIs(t, err, wire.ErrNotSubscribed)
}

func TestUnsubscribeNotifiesRemainingMembers(t *testing.T) {
	e, st := newEngine()
	chanID, _, err := st.UpsertChannel(context.Background(), appID, "room", model.AuthPublic, false)
	require.NoError(t, err)
	addPeer(st, "peer1", false)
	addPeer(st, "peer2", false)
	_, _, err = e.Subscribe(context.Background(), appID, "peer1", chanID)
	require.NoError(t, err)
	_, _, err = e.Subscribe(context.Background(), appID, "peer2", chanID)
	require.NoError(t, err)

	deliveries, err := e.Unsubscribe(context.Background(), appID, "peer1", chanID)
	require.NoError(t, err)
	// one leave-channel frame back to peer1, one member-leave frame out to peer2
	require.Len(t, deliveries, 2)
}

func TestSendMessageStoresWhenChannelStores(t *testing.T) {
	e, st := newEngine()
	chanID, _, err := st.UpsertChannel(context.Background(), appID, "room", model.AuthPublic, true)
	require.NoError(t, err)
	addPeer(st, "peer1", false)
	_, _, err = e.Subscribe(context.Background(), appID, "peer1", chanID)
	require.NoError(t, err)

	deliveries, err := e.SendMessage(context.Background(), appID, chanID, "msg-1", "greeting", wire.MessagePayload{Type: "plain", Message: []byte(`"hi"`)})
	require.NoError(t, err)
	require.Len(t, deliveries, 1)

	stored, err := st.ListStoredMessages(context.Background(), appID, chanID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "msg-1", stored[0].ID)
}

func TestSendMessageUnknownChannelFails(t *testing.T) {
	e, _ := newEngine()
	_, err := e.SendMessage(context.Background(), appID, "nope", "msg-1", "greeting", wire.MessagePayload{Type: "plain", Message: []byte(`"hi"`)})
	assert.ErrorIs(t, err, wire.ErrChannelNotFound)
}

func TestHandleDisconnectNotifiesEveryChannel(t *testing.T) {
	e, st := newEngine()
	chanA, _, err := st.UpsertChannel(context.Background(), appID, "a", model.AuthPublic, false)
	require.NoError(t, err)
	chanB, _, err := st.UpsertChannel(context.Background(), appID, "b", model.AuthPublic, false)
	require.NoError(t, err)
	addPeer(st, "peer1", false)
	addPeer(st, "peer2", false)
	_, _, err = e.Subscribe(context.Background(), appID, "peer1", chanA)
	require.NoError(t, err)
	_, _, err = e.Subscribe(context.Background(), appID, "peer2", chanA)
	require.NoError(t, err)
	_, _, err = e.Subscribe(context.Background(), appID, "peer1", chanB)
	require.NoError(t, err)

	deliveries, err := e.HandleDisconnect(context.Background(), appID, "peer1")
	require.NoError(t, err)
	// only chanA has another member (peer2) left to notify; chanB had no co-members
	require.Len(t, deliveries, 1)
	assert.Equal(t, "peer2", deliveries[0].PeerID)

	p, err := st.GetPeer(context.Background(), appID, "peer1")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestHandleDisconnectAlreadyReapedIsIdempotent(t *testing.T) {
	e, _ := newEngine()
	deliveries, err := e.HandleDisconnect(context.Background(), appID, "ghost")
	require.NoError(t, err)
	assert.Empty(t, deliveries)
}

func TestDeleteMessagesSpecificIDs(t *testing.T) {
	e, st := newEngine()
	chanID, _, err := st.UpsertChannel(context.Background(), appID, "room", model.AuthPublic, true)
	require.NoError(t, err)
	require.NoError(t, st.InsertStoredMessage(context.Background(), appID, chanID, "m1", []byte("{}"), time.Now()))
	require.NoError(t, st.InsertStoredMessage(context.Background(), appID, chanID, "m2", []byte("{}"), time.Now()))

	require.NoError(t, e.DeleteMessages(context.Background(), appID, chanID, []string{"m1"}))

	remaining, err := st.ListStoredMessages(context.Background(), appID, chanID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "m2", remaining[0].ID)
}
