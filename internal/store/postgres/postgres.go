// Package postgres implements store.Store against PostgreSQL with
// github.com/Masterminds/squirrel query building and github.com/jmoiron/sqlx scanning,
// the same combination the teacher's internal/repository/postgres/repo.go uses.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/sinkr-io/sinkr/internal/model"
	"github.com/sinkr-io/sinkr/internal/store/dbtx"
)

type Store struct {
	db *sqlx.DB
}

// Open mirrors the teacher's db.New(cfg): it connects and fails fast if the DSN is bad.
func Open(dsn string) (*Store, error) {
	conn, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{db: conn}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return dbtx.Execute(ctx, s.db, fn)
}

func (s *Store) q() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

func (s *Store) GetApp(ctx context.Context, appID string) (*model.App, error) {
	query, args, err := s.q().Select("id", "name", "secret_key", "enabled").
		From("apps").Where(sq.Eq{"id": appID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get app query: %w", err)
	}

	var app model.App
	if err := dbtx.Chk(ctx, s.db).GetContext(ctx, &app, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get app: %w", err)
	}
	return &app, nil
}

func (s *Store) CreatePeer(ctx context.Context, peer *model.Peer) error {
	query, args, err := s.q().Insert("peers").
		Columns("id", "app_id", "type", "authenticated_user_id", "user_info").
		Values(peer.ID, peer.AppID, peer.Type, peer.AuthenticatedUserID, peer.UserInfo).
		ToSql()
	if err != nil {
		return fmt.Errorf("build create peer query: %w", err)
	}

	_, err = dbtx.Chk(ctx, s.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("create peer: %w", err)
	}
	return nil
}

func (s *Store) GetPeer(ctx context.Context, appID, peerID string) (*model.Peer, error) {
	query, args, err := s.q().Select("id", "app_id", "type", "authenticated_user_id", "user_info").
		From("peers").
		Where(sq.Eq{"id": peerID, "app_id": appID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get peer query: %w", err)
	}

	var peer model.Peer
	if err := dbtx.Chk(ctx, s.db).GetContext(ctx, &peer, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get peer: %w", err)
	}
	return &peer, nil
}

func (s *Store) AuthenticatePeer(ctx context.Context, appID, peerID, authenticatedUserID string, userInfo json.RawMessage) error {
	query, args, err := s.q().Update("peers").
		Set("authenticated_user_id", authenticatedUserID).
		Set("user_info", []byte(userInfo)).
		Where(sq.Eq{"id": peerID, "app_id": appID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build authenticate peer query: %w", err)
	}

	_, err = dbtx.Chk(ctx, s.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("authenticate peer: %w", err)
	}
	return nil
}

func (s *Store) DeletePeer(ctx context.Context, appID, peerID string) error {
	query, args, err := s.q().Delete("peers").
		Where(sq.Eq{"id": peerID, "app_id": appID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete peer query: %w", err)
	}

	_, err = dbtx.Chk(ctx, s.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete peer: %w", err)
	}
	return nil
}

// FindPeerByIdentity resolves subscriberId/recipientId per §4.4: match against peer.id
// first, then authenticatedUserId. Two lookups keep the "id wins" priority explicit
// rather than leaning on SQL ORDER BY tie-breaking.
func (s *Store) FindPeerByIdentity(ctx context.Context, appID, identity string) (*model.Peer, error) {
	byID, err := s.GetPeer(ctx, appID, identity)
	if err != nil {
		return nil, err
	}
	if byID != nil {
		return byID, nil
	}

	query, args, err := s.q().Select("id", "app_id", "type", "authenticated_user_id", "user_info").
		From("peers").
		Where(sq.Eq{"app_id": appID, "authenticated_user_id": identity}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find peer by user id query: %w", err)
	}

	var peer model.Peer
	if err := dbtx.Chk(ctx, s.db).GetContext(ctx, &peer, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find peer by user id: %w", err)
	}
	return &peer, nil
}

func (s *Store) UpsertChannel(ctx context.Context, appID, name string, auth model.ChannelAuth, store bool) (string, bool, error) {
	existing, err := s.GetChannelByName(ctx, appID, name)
	if err != nil {
		return "", false, err
	}
	if existing != nil {
		query, args, err := s.q().Update("channels").
			Set("auth", auth).
			Set("store", store).
			Where(sq.Eq{"id": existing.ID}).
			ToSql()
		if err != nil {
			return "", false, fmt.Errorf("build update channel query: %w", err)
		}
		if _, err := dbtx.Chk(ctx, s.db).ExecContext(ctx, query, args...); err != nil {
			return "", false, fmt.Errorf("update channel: %w", err)
		}
		return existing.ID, false, nil
	}

	id := uuid.New().String()
	query, args, err := s.q().Insert("channels").
		Columns("id", "app_id", "name", "auth", "store").
		Values(id, appID, name, auth, store).
		ToSql()
	if err != nil {
		return "", false, fmt.Errorf("build create channel query: %w", err)
	}
	if _, err := dbtx.Chk(ctx, s.db).ExecContext(ctx, query, args...); err != nil {
		return "", false, fmt.Errorf("create channel: %w", err)
	}
	return id, true, nil
}

func (s *Store) GetChannelByName(ctx context.Context, appID, name string) (*model.Channel, error) {
	query, args, err := s.q().Select("id", "app_id", "name", "auth", "store").
		From("channels").
		Where(sq.Eq{"app_id": appID, "name": name}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get channel by name query: %w", err)
	}

	var channel model.Channel
	if err := dbtx.Chk(ctx, s.db).GetContext(ctx, &channel, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get channel by name: %w", err)
	}
	return &channel, nil
}

func (s *Store) GetChannelByID(ctx context.Context, appID, channelID string) (*model.Channel, error) {
	query, args, err := s.q().Select("id", "app_id", "name", "auth", "store").
		From("channels").
		Where(sq.Eq{"app_id": appID, "id": channelID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get channel query: %w", err)
	}

	var channel model.Channel
	if err := dbtx.Chk(ctx, s.db).GetContext(ctx, &channel, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get channel: %w", err)
	}
	return &channel, nil
}

func (s *Store) DeleteChannel(ctx context.Context, appID, channelID string) error {
	query, args, err := s.q().Delete("channels").
		Where(sq.Eq{"id": channelID, "app_id": appID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete channel query: %w", err)
	}

	_, err = dbtx.Chk(ctx, s.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	return nil
}

func (s *Store) Subscribe(ctx context.Context, appID, peerID, channelID string) (bool, error) {
	existing, err := s.subscriptionID(ctx, appID, peerID, channelID)
	if err != nil {
		return false, err
	}
	if existing != "" {
		return false, nil
	}

	query, args, err := s.q().Insert("peer_channel_subscriptions").
		Columns("id", "app_id", "peer_id", "channel_id").
		Values(uuid.New().String(), appID, peerID, channelID).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build subscribe query: %w", err)
	}

	if _, err := dbtx.Chk(ctx, s.db).ExecContext(ctx, query, args...); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}
	return true, nil
}

// IsSubscribed reports whether (appId, peerId, channelId) currently has a subscription
// row.
func (s *Store) IsSubscribed(ctx context.Context, appID, peerID, channelID string) (bool, error) {
	id, err := s.subscriptionID(ctx, appID, peerID, channelID)
	if err != nil {
		return false, err
	}
	return id != "", nil
}

func (s *Store) subscriptionID(ctx context.Context, appID, peerID, channelID string) (string, error) {
	query, args, err := s.q().Select("id").
		From("peer_channel_subscriptions").
		Where(sq.Eq{"app_id": appID, "peer_id": peerID, "channel_id": channelID}).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build subscription lookup query: %w", err)
	}

	var id string
	if err := dbtx.Chk(ctx, s.db).GetContext(ctx, &id, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("lookup subscription: %w", err)
	}
	return id, nil
}

func (s *Store) Unsubscribe(ctx context.Context, appID, peerID, channelID string) (bool, error) {
	existing, err := s.subscriptionID(ctx, appID, peerID, channelID)
	if err != nil {
		return false, err
	}
	if existing == "" {
		return false, nil
	}

	query, args, err := s.q().Delete("peer_channel_subscriptions").
		Where(sq.Eq{"id": existing}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build unsubscribe query: %w", err)
	}

	if _, err := dbtx.Chk(ctx, s.db).ExecContext(ctx, query, args...); err != nil {
		return false, fmt.Errorf("unsubscribe: %w", err)
	}
	return true, nil
}

func (s *Store) ListMembers(ctx context.Context, appID, channelID string) ([]model.Peer, error) {
	query, args, err := s.q().Select("p.id", "p.app_id", "p.type", "p.authenticated_user_id", "p.user_info").
		From("peers p").
		Join("peer_channel_subscriptions sub ON sub.peer_id = p.id").
		Where(sq.Eq{"sub.app_id": appID, "sub.channel_id": channelID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list members query: %w", err)
	}

	var peers []model.Peer
	if err := dbtx.Chk(ctx, s.db).SelectContext(ctx, &peers, query, args...); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return peers, nil
}

func (s *Store) ListSubscriptions(ctx context.Context, appID, peerID string) ([]model.Subscription, error) {
	query, args, err := s.q().Select("id", "app_id", "peer_id", "channel_id").
		From("peer_channel_subscriptions").
		Where(sq.Eq{"app_id": appID, "peer_id": peerID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list subscriptions query: %w", err)
	}

	var subs []model.Subscription
	if err := dbtx.Chk(ctx, s.db).SelectContext(ctx, &subs, query, args...); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}

func (s *Store) InsertStoredMessage(ctx context.Context, appID, channelID, id string, data []byte, createdAt time.Time) error {
	query, args, err := s.q().Insert("stored_channel_messages").
		Columns("id", "app_id", "channel_id", "created_at", "data").
		Values(id, appID, channelID, createdAt, data).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert stored message query: %w", err)
	}

	_, err = dbtx.Chk(ctx, s.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert stored message: %w", err)
	}
	return nil
}

func (s *Store) ListStoredMessages(ctx context.Context, appID, channelID string) ([]model.StoredMessage, error) {
	query, args, err := s.q().Select("id", "app_id", "channel_id", "created_at", "data").
		From("stored_channel_messages").
		Where(sq.Eq{"app_id": appID, "channel_id": channelID}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list stored messages query: %w", err)
	}

	var messages []model.StoredMessage
	if err := dbtx.Chk(ctx, s.db).SelectContext(ctx, &messages, query, args...); err != nil {
		return nil, fmt.Errorf("list stored messages: %w", err)
	}
	return messages, nil
}

func (s *Store) GetStoredMessagesByIDs(ctx context.Context, appID, channelID string, ids []string) ([]model.StoredMessage, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := s.q().Select("id", "app_id", "channel_id", "created_at", "data").
		From("stored_channel_messages").
		Where(sq.Eq{"app_id": appID, "channel_id": channelID, "id": ids}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get stored messages query: %w", err)
	}

	var messages []model.StoredMessage
	if err := dbtx.Chk(ctx, s.db).SelectContext(ctx, &messages, query, args...); err != nil {
		return nil, fmt.Errorf("get stored messages: %w", err)
	}
	return messages, nil
}

func (s *Store) DeleteStoredMessages(ctx context.Context, appID, channelID string, ids []string) error {
	builder := s.q().Delete("stored_channel_messages").
		Where(sq.Eq{"app_id": appID, "channel_id": channelID})
	if len(ids) > 0 {
		builder = builder.Where(sq.Eq{"id": ids})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build delete stored messages query: %w", err)
	}

	_, err = dbtx.Chk(ctx, s.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete stored messages: %w", err)
	}
	return nil
}
