// Package storetest provides an in-memory store.Store double shared by every package
// that exercises internal/channel and internal/coordinator against store semantics
// without a real Postgres connection.
package storetest

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/sinkr-io/sinkr/internal/model"
)

// Store is a minimal, non-transactional stand-in for store.Store: WithTx just runs fn
// inline, since every test here only needs one fake-store call to ever be in flight.
type Store struct {
	mu sync.Mutex

	Apps     map[string]*model.App
	Peers    map[string]map[string]*model.Peer // appID -> peerID -> Peer
	Channels map[string]map[string]*model.Channel // appID -> channelID -> Channel
	Subs     map[string]map[string]map[string]bool // appID -> channelID -> peerID -> true
	Stored   map[string]map[string][]model.StoredMessage // appID -> channelID -> messages

	nextID int
}

func New() *Store {
	return &Store{
		Apps:     make(map[string]*model.App),
		Peers:    make(map[string]map[string]*model.Peer),
		Channels: make(map[string]map[string]*model.Channel),
		Subs:     make(map[string]map[string]map[string]bool),
		Stored:   make(map[string]map[string][]model.StoredMessage),
	}
}

func (s *Store) newID(prefix string) string {
	s.nextID++
	return prefix + "-" + strconv.Itoa(s.nextID)
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *Store) GetApp(ctx context.Context, appID string) (*model.App, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Apps[appID], nil
}

func (s *Store) CreatePeer(ctx context.Context, peer *model.Peer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Peers[peer.AppID] == nil {
		s.Peers[peer.AppID] = make(map[string]*model.Peer)
	}
	cp := *peer
	s.Peers[peer.AppID][peer.ID] = &cp
	return nil
}

func (s *Store) GetPeer(ctx context.Context, appID, peerID string) (*model.Peer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.Peers[appID][peerID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *Store) AuthenticatePeer(ctx context.Context, appID, peerID, authenticatedUserID string, userInfo json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.Peers[appID][peerID]
	if !ok {
		return nil
	}
	p.AuthenticatedUserID = &authenticatedUserID
	p.UserInfo = userInfo
	return nil
}

func (s *Store) DeletePeer(ctx context.Context, appID, peerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Peers[appID], peerID)
	for _, byPeer := range s.Subs[appID] {
		delete(byPeer, peerID)
	}
	return nil
}

func (s *Store) FindPeerByIdentity(ctx context.Context, appID, identity string) (*model.Peer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.Peers[appID][identity]; ok {
		cp := *p
		return &cp, nil
	}
	for _, p := range s.Peers[appID] {
		if p.AuthenticatedUserID != nil && *p.AuthenticatedUserID == identity {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) UpsertChannel(ctx context.Context, appID, name string, auth model.ChannelAuth, store bool) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Channels[appID] == nil {
		s.Channels[appID] = make(map[string]*model.Channel)
	}
	for id, ch := range s.Channels[appID] {
		if ch.Name == name {
			ch.Auth = auth
			ch.Store = store
			return id, false, nil
		}
	}
	id := s.newID("chan")
	s.Channels[appID][id] = &model.Channel{ID: id, AppID: appID, Name: name, Auth: auth, Store: store}
	return id, true, nil
}

func (s *Store) GetChannelByID(ctx context.Context, appID, channelID string) (*model.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.Channels[appID][channelID]
	if !ok {
		return nil, nil
	}
	cp := *ch
	return &cp, nil
}

func (s *Store) DeleteChannel(ctx context.Context, appID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Channels[appID], channelID)
	delete(s.Subs[appID], channelID)
	delete(s.Stored[appID], channelID)
	return nil
}

func (s *Store) Subscribe(ctx context.Context, appID, peerID, channelID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Subs[appID] == nil {
		s.Subs[appID] = make(map[string]map[string]bool)
	}
	if s.Subs[appID][channelID] == nil {
		s.Subs[appID][channelID] = make(map[string]bool)
	}
	if s.Subs[appID][channelID][peerID] {
		return false, nil
	}
	s.Subs[appID][channelID][peerID] = true
	return true, nil
}

func (s *Store) Unsubscribe(ctx context.Context, appID, peerID, channelID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Subs[appID][channelID][peerID] {
		return false, nil
	}
	delete(s.Subs[appID][channelID], peerID)
	return true, nil
}

func (s *Store) IsSubscribed(ctx context.Context, appID, peerID, channelID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Subs[appID][channelID][peerID], nil
}

func (s *Store) ListMembers(ctx context.Context, appID, channelID string) ([]model.Peer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var members []model.Peer
	for peerID := range s.Subs[appID][channelID] {
		if p, ok := s.Peers[appID][peerID]; ok {
			members = append(members, *p)
		}
	}
	return members, nil
}

func (s *Store) ListSubscriptions(ctx context.Context, appID, peerID string) ([]model.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var subs []model.Subscription
	for channelID, byPeer := range s.Subs[appID] {
		if byPeer[peerID] {
			subs = append(subs, model.Subscription{AppID: appID, PeerID: peerID, ChannelID: channelID})
		}
	}
	return subs, nil
}

func (s *Store) InsertStoredMessage(ctx context.Context, appID, channelID, id string, data []byte, createdAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Stored[appID] == nil {
		s.Stored[appID] = make(map[string][]model.StoredMessage)
	}
	s.Stored[appID][channelID] = append(s.Stored[appID][channelID], model.StoredMessage{
		ID: id, AppID: appID, ChannelID: channelID, CreatedAt: createdAt, Data: data,
	})
	return nil
}

func (s *Store) ListStoredMessages(ctx context.Context, appID, channelID string) ([]model.StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.StoredMessage(nil), s.Stored[appID][channelID]...), nil
}

func (s *Store) GetStoredMessagesByIDs(ctx context.Context, appID, channelID string, ids []string) ([]model.StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []model.StoredMessage
	for _, m := range s.Stored[appID][channelID] {
		if want[m.ID] {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) DeleteStoredMessages(ctx context.Context, appID, channelID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(ids) == 0 {
		delete(s.Stored[appID], channelID)
		return nil
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := make([]model.StoredMessage, 0, len(s.Stored[appID][channelID]))
	for _, m := range s.Stored[appID][channelID] {
		if !drop[m.ID] {
			kept = append(kept, m)
		}
	}
	s.Stored[appID][channelID] = kept
	return nil
}
