package shardrpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{}

// fakeHandler is a hand-rolled DispatchHandler double: it answers every dispatch with a
// fixed ack, and records what it was asked to do.
type fakeHandler struct {
	ack     DispatchAckPayload
	lastReq DispatchPayload
}

func (h *fakeHandler) HandleDispatch(ctx context.Context, req DispatchPayload) DispatchAckPayload {
	h.lastReq = req
	return h.ack
}

// startLink dials a Client against a freshly accepted RemoteShard, running both sides'
// read loops in the background, and returns both handles for the test to drive.
func startLink(t *testing.T, secret, shardID, advertiseAddr string) (*Client, *RemoteShard) {
	t.Helper()

	shardCh := make(chan *RemoteShard, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth != "Bearer "+secret {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		shard, err := Accept(conn)
		if err != nil {
			return
		}
		shardCh <- shard
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, err := Dial(context.Background(), wsURL, secret, shardID, advertiseAddr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case shard := <-shardCh:
		return client, shard
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for shard to register")
		return nil, nil
	}
}

func TestDialRegistersWithCoordinator(t *testing.T) {
	_, shard := startLink(t, "secret", "shard-1", "10.0.0.1:9000")
	require.Equal(t, "shard-1", shard.ShardID)
	require.Equal(t, "10.0.0.1:9000", shard.AdvertiseAddr)
}

func TestDispatchDeliverRoundTrip(t *testing.T) {
	client, shard := startLink(t, "secret", "shard-1", "10.0.0.1:9000")

	handler := &fakeHandler{ack: DispatchAckPayload{Found: true}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = client.Run(ctx, handler, func() int { return 0 }) }()
	go func() { _ = shard.Run(ctx) }()

	ack, err := shard.Dispatch(context.Background(), DispatchPayload{
		Kind:   DispatchDeliver,
		AppID:  "app1",
		PeerID: "peer1",
		Frame:  []byte(`{}`),
	})
	require.NoError(t, err)
	require.True(t, ack.Found)
	require.Equal(t, "peer1", handler.lastReq.PeerID)
}

func TestDispatchTimesOutWhenShardNeverReplies(t *testing.T) {
	_, shard := startLink(t, "secret", "shard-1", "10.0.0.1:9000")
	// Deliberately never run shard.Run or client.Run, so nothing ever acks.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := shard.Dispatch(ctx, DispatchPayload{Kind: DispatchBroadcast, AppID: "app1", Frame: []byte(`{}`)})
	require.Error(t, err)
}

func TestLoadFrameInvokesOnLoad(t *testing.T) {
	client, shard := startLink(t, "secret", "shard-1", "10.0.0.1:9000")

	loadCh := make(chan int, 1)
	shard.OnLoad = func(count int) { loadCh <- count }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = shard.Run(ctx) }()

	require.NoError(t, client.ReportLoadNow(7))

	select {
	case count := <-loadCh:
		require.Equal(t, 7, count)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for load report")
	}
}
