// Package loadstore implements the coordinator's (handlerId, connectionCount) table of
// §4.3c: an advisory, lock-free snapshot consulted by upgrade dispatch to pick the
// least-loaded shard. Grounded on Prudhvinik1-EdgeSync's presence_repo.go: TTL'd,
// JSON-marshalled rows keyed by id, with a bulk-read helper for scanning every shard at
// once.
package loadstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	loadKeyPrefix = "sinkr:shard-load:"
	// loadTTL outlives the loadInterval heartbeat (internal/shardrpc) by a comfortable
	// margin; a shard that stops reporting drops out of Snapshot shortly after its last
	// report.
	loadTTL = 20 * time.Second
)

// ShardLoad is one shard's most recently reported connection count.
type ShardLoad struct {
	ShardID         string `json:"shardId"`
	AdvertiseAddr   string `json:"advertiseAddr"`
	ConnectionCount int    `json:"connectionCount"`
}

type Store struct {
	client *redis.Client
}

func New(client *redis.Client) *Store {
	return &Store{client: client}
}

func key(shardID string) string {
	return loadKeyPrefix + shardID
}

// Report upserts a shard's load row with a fresh TTL.
func (s *Store) Report(ctx context.Context, load ShardLoad) error {
	data, err := json.Marshal(load)
	if err != nil {
		return fmt.Errorf("loadstore: marshal: %w", err)
	}
	if err := s.client.Set(ctx, key(load.ShardID), data, loadTTL).Err(); err != nil {
		return fmt.Errorf("loadstore: set %s: %w", load.ShardID, err)
	}
	return nil
}

// Remove deletes a shard's row immediately, on graceful deregister.
func (s *Store) Remove(ctx context.Context, shardID string) error {
	if err := s.client.Del(ctx, key(shardID)).Err(); err != nil {
		return fmt.Errorf("loadstore: del %s: %w", shardID, err)
	}
	return nil
}

// Snapshot returns the current load of every shard named in shardIDs that still has a
// live (unexpired) row — a shard whose TTL lapsed is silently omitted. Removing a dead
// shard from selection is not done here: the coordinator drops it from its shard
// registry when its link closes, and treats a registered shard with no row as having
// zero connections.
func (s *Store) Snapshot(ctx context.Context, shardIDs []string) ([]ShardLoad, error) {
	if len(shardIDs) == 0 {
		return nil, nil
	}
	keys := make([]string, len(shardIDs))
	for i, id := range shardIDs {
		keys[i] = key(id)
	}

	results, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("loadstore: mget: %w", err)
	}

	loads := make([]ShardLoad, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		raw, ok := r.(string)
		if !ok {
			continue
		}
		var load ShardLoad
		if err := json.Unmarshal([]byte(raw), &load); err != nil {
			continue
		}
		loads = append(loads, load)
	}
	return loads, nil
}
