package peer

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/sinkr-io/sinkr/internal/wire"
)

var upgrader = websocket.Upgrader{}

// newServerConnection dials a real loopback WebSocket and returns the server-side
// *websocket.Conn wrapped in a Connection, plus the client-side *websocket.Conn the test
// uses to observe what the Connection actually writes.
func newServerConnection(t *testing.T, peerID, appID string) (*Connection, *websocket.Conn) {
	t.Helper()

	serverConnCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverConnCh <- conn
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = clientConn.Close() })

	serverConn := <-serverConnCh
	return NewConnection(peerID, appID, serverConn), clientConn
}

func TestRegistryRegisterLookupUnregister(t *testing.T) {
	r := NewRegistry()
	conn, client := newServerConnection(t, "peer1", "app1")
	defer client.Close()

	r.Register(conn)
	got, ok := r.Lookup("peer1")
	require.True(t, ok)
	require.Equal(t, conn, got)
	require.Equal(t, 1, r.Count())

	r.Unregister("peer1")
	_, ok = r.Lookup("peer1")
	require.False(t, ok)
	require.Equal(t, 0, r.Count())
}

func TestRegistryUnregisterUnknownIsNoOp(t *testing.T) {
	r := NewRegistry()
	r.Unregister("ghost") // must not panic
	require.Equal(t, 0, r.Count())
}

func TestRegistrySendDeliversOverSocket(t *testing.T) {
	r := NewRegistry()
	conn, client := newServerConnection(t, "peer1", "app1")
	defer client.Close()
	r.Register(conn)

	frame, err := wire.NewInitFrame("f1", "peer1")
	require.NoError(t, err)
	require.NoError(t, r.Send(conn, frame))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := client.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(payload), `"peerId":"peer1"`)
}

func TestRegistryIterateLocalScopedByApp(t *testing.T) {
	r := NewRegistry()
	connA1, clientA1 := newServerConnection(t, "a1", "appA")
	defer clientA1.Close()
	connA2, clientA2 := newServerConnection(t, "a2", "appA")
	defer clientA2.Close()
	connB1, clientB1 := newServerConnection(t, "b1", "appB")
	defer clientB1.Close()

	r.Register(connA1)
	r.Register(connA2)
	r.Register(connB1)

	seen := map[string]bool{}
	r.IterateLocal("appA", func(peerID string, conn *Connection) {
		seen[peerID] = true
	})
	require.Equal(t, map[string]bool{"a1": true, "a2": true}, seen)
}

func TestRegistryUnregisterClearsAppIndexWhenEmpty(t *testing.T) {
	r := NewRegistry()
	conn, client := newServerConnection(t, "peer1", "app1")
	defer client.Close()

	r.Register(conn)
	r.Unregister("peer1")

	count := 0
	r.IterateLocal("app1", func(peerID string, conn *Connection) { count++ })
	require.Equal(t, 0, count)
}
