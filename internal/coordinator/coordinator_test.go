package coordinator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/sinkr-io/sinkr/internal/loadstore"
	"github.com/sinkr-io/sinkr/internal/metrics"
	"github.com/sinkr-io/sinkr/internal/model"
	"github.com/sinkr-io/sinkr/internal/peer"
	"github.com/sinkr-io/sinkr/internal/storetest"
	"github.com/sinkr-io/sinkr/internal/wire"
)

var testUpgrader = websocket.Upgrader{}

func newTestCoordinator() (*Coordinator, *storetest.Store) {
	st := storetest.New()
	c := New(st, loadstore.New(nil), &metrics.Metrics{}, 1000)
	return c, st
}

// newLocalPeer registers a live connection for peerID directly on the coordinator's own
// registry (as if it were a directly-connected source), and returns the client side of
// the socket so the test can observe what gets pushed.
func newLocalPeer(t *testing.T, c *Coordinator, appID, peerID string) *websocket.Conn {
	t.Helper()

	serverConnCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverConnCh <- conn
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = clientConn.Close() })

	serverConn := <-serverConnCh
	conn := peer.NewConnection(peerID, appID, serverConn)
	c.Local().Register(conn)
	return clientConn
}

func readFrame(t *testing.T, client *websocket.Conn) wire.SinkFrame {
	t.Helper()
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame wire.SinkFrame
	require.NoError(t, client.ReadJSON(&frame))
	return frame
}

func TestSubscribersAddDeliversJoinFrameToSubscriber(t *testing.T) {
	c, st := newTestCoordinator()
	st.Apps["app1"] = &model.App{ID: "app1", Enabled: true}
	chanID, _, err := st.UpsertChannel(context.Background(), "app1", "room", model.AuthPublic, false)
	require.NoError(t, err)
	require.NoError(t, st.CreatePeer(context.Background(), &model.Peer{ID: "peer1", AppID: "app1"}))

	client := newLocalPeer(t, c, "app1", "peer1")

	require.NoError(t, c.SubscribersAdd(context.Background(), "app1", "peer1", chanID))

	frame := readFrame(t, client)
	require.Equal(t, "metadata", frame.Source)
}

func TestSubscribersAddUnknownSubscriberFails(t *testing.T) {
	c, st := newTestCoordinator()
	st.Apps["app1"] = &model.App{ID: "app1", Enabled: true}
	chanID, _, err := st.UpsertChannel(context.Background(), "app1", "room", model.AuthPublic, false)
	require.NoError(t, err)

	err = c.SubscribersAdd(context.Background(), "app1", "ghost", chanID)
	require.ErrorIs(t, err, wire.ErrPeerNotFound)
}

func TestUserMessagesSendDeliversDirectlyToResolvedPeer(t *testing.T) {
	c, st := newTestCoordinator()
	st.Apps["app1"] = &model.App{ID: "app1", Enabled: true}
	authUser := "user-42"
	require.NoError(t, st.CreatePeer(context.Background(), &model.Peer{ID: "peer1", AppID: "app1", AuthenticatedUserID: &authUser}))

	client := newLocalPeer(t, c, "app1", "peer1")

	payload := wire.MessagePayload{Type: "plain", Message: []byte(`"hello"`)}
	require.NoError(t, c.UserMessagesSend(context.Background(), "app1", "user-42", "greet", payload))

	frame := readFrame(t, client)
	require.Equal(t, "message", frame.Source)
}

func TestUserMessagesSendUnresolvedRecipientFails(t *testing.T) {
	c, st := newTestCoordinator()
	st.Apps["app1"] = &model.App{ID: "app1", Enabled: true}

	err := c.UserMessagesSend(context.Background(), "app1", "nobody", "greet", wire.MessagePayload{Type: "plain"})
	require.ErrorIs(t, err, wire.ErrRecipientNotFound)
}

func TestGlobalMessagesSendBroadcastsToEveryLocalPeer(t *testing.T) {
	c, st := newTestCoordinator()
	st.Apps["app1"] = &model.App{ID: "app1", Enabled: true}

	client1 := newLocalPeer(t, c, "app1", "peer1")
	client2 := newLocalPeer(t, c, "app1", "peer2")

	require.NoError(t, c.GlobalMessagesSend(context.Background(), "app1", "announce", wire.MessagePayload{Type: "plain"}))

	readFrame(t, client1)
	readFrame(t, client2)
}

func TestHandleDisconnectReapsSubscriptions(t *testing.T) {
	c, st := newTestCoordinator()
	st.Apps["app1"] = &model.App{ID: "app1", Enabled: true}
	chanID, _, err := st.UpsertChannel(context.Background(), "app1", "room", model.AuthPublic, false)
	require.NoError(t, err)
	require.NoError(t, st.CreatePeer(context.Background(), &model.Peer{ID: "peer1", AppID: "app1"}))
	require.NoError(t, st.CreatePeer(context.Background(), &model.Peer{ID: "peer2", AppID: "app1"}))

	client1 := newLocalPeer(t, c, "app1", "peer1")
	client2 := newLocalPeer(t, c, "app1", "peer2")

	require.NoError(t, c.SubscribersAdd(context.Background(), "app1", "peer1", chanID))
	readFrame(t, client1) // join-channel ack

	require.NoError(t, c.SubscribersAdd(context.Background(), "app1", "peer2", chanID))
	readFrame(t, client2)       // join-channel ack to peer2
	readFrame(t, client1)       // member-join notification to peer1

	require.NoError(t, c.HandleDisconnect(context.Background(), "app1", "peer1"))
	frame := readFrame(t, client2) // member-leave notification
	require.Equal(t, "metadata", frame.Source)

	p, err := st.GetPeer(context.Background(), "app1", "peer1")
	require.NoError(t, err)
	require.Nil(t, p)
}
