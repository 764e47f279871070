package peer

import (
	"sync"

	"github.com/sinkr-io/sinkr/internal/wire"
)

// Registry is the per-shard (or, on the coordinator, per-process) mapping from peer id
// to its live Connection, plus a reverse (appId) -> peerIds index for broadcast fan-out.
// All operations are safe under many concurrent callers (§5): per-peer work is
// serialized by the connection's own write pump, while the registry's own maps are
// guarded by a single RWMutex — reads (lookup, iteration) are the hot path.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]*Connection
	byApp map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		peers: make(map[string]*Connection),
		byApp: make(map[string]map[string]struct{}),
	}
}

// Register records handle under peerId, at socket open.
func (r *Registry) Register(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.peers[conn.PeerID] = conn
	if r.byApp[conn.AppID] == nil {
		r.byApp[conn.AppID] = make(map[string]struct{})
	}
	r.byApp[conn.AppID][conn.PeerID] = struct{}{}
}

// Unregister removes peerId, at socket close. Idempotent.
func (r *Registry) Unregister(peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.peers[peerID]
	if !ok {
		return
	}
	delete(r.peers, peerID)
	if peers, ok := r.byApp[conn.AppID]; ok {
		delete(peers, peerID)
		if len(peers) == 0 {
			delete(r.byApp, conn.AppID)
		}
	}
}

// Lookup returns the live handle for peerId, if any.
func (r *Registry) Lookup(peerID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.peers[peerID]
	return conn, ok
}

// Send serializes frame and writes it to handle. A failed send marks the peer dead but
// does not remove the durable Peer row synchronously — the socket's own close callback
// does that (§4.1).
func (r *Registry) Send(conn *Connection, frame wire.SinkFrame) error {
	return conn.Send(frame)
}

// IterateLocal calls fn for every (peerId, handle) registered under appId on this
// process, for broadcast fan-out. fn is called with the registry's read lock held, so it
// must not call back into the registry.
func (r *Registry) IterateLocal(appID string, fn func(peerID string, conn *Connection)) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for peerID := range r.byApp[appID] {
		if conn, ok := r.peers[peerID]; ok {
			fn(peerID, conn)
		}
	}
}

// Count returns the number of live connections on this process, for §4.3c load
// accounting.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
