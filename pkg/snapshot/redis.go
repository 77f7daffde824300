package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/newtcfg/pkg/util"
)

// Redis key layout:
//
//	SNAPSHOT|<device>|<timestamp>   hash: device_id, captured_at, content_hash, config_text
//	SNAPSHOT_INDEX|<device>         sorted set of timestamps, scored by unix seconds
//
// Timestamps sort lexically in time order, so members sharing a score still
// come back in capture order.
const (
	snapshotTable = "SNAPSHOT"
	indexTable    = "SNAPSHOT_INDEX"
)

// RedisStore keeps snapshot history in Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store on the given Redis address and database.
func NewRedisStore(addr string, db int) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   db,
		}),
	}
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Connect tests the connection
func (s *RedisStore) Connect(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func snapshotKey(deviceID, stamp string) string {
	return fmt.Sprintf("%s|%s|%s", snapshotTable, deviceID, stamp)
}

func indexKey(deviceID string) string {
	return fmt.Sprintf("%s|%s", indexTable, deviceID)
}

// Store implements Store. The captured_at field is claimed with HSETNX first
// so an existing snapshot is never overwritten.
func (s *RedisStore) Store(ctx context.Context, deviceID string, ts time.Time, text string) (string, error) {
	snap := New(deviceID, ts, text)
	stamp := snap.CapturedAt.Format(TimeFormat)
	key := snapshotKey(deviceID, stamp)

	created, err := s.client.HSetNX(ctx, key, "captured_at", stamp).Result()
	if err != nil {
		return "", fmt.Errorf("storing snapshot %s: %w", snap.ID, err)
	}
	if !created {
		return "", fmt.Errorf("snapshot %s: %w", snap.ID, util.ErrAlreadyExists)
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key,
			"device_id", deviceID,
			"content_hash", snap.ContentHash,
			"config_text", text,
		)
		p.ZAdd(ctx, indexKey(deviceID), &redis.Z{
			Score:  float64(snap.CapturedAt.Unix()),
			Member: stamp,
		})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("storing snapshot %s: %w", snap.ID, err)
	}
	return snap.ID, nil
}

// Latest implements Store.
func (s *RedisStore) Latest(ctx context.Context, deviceID string) (*Snapshot, error) {
	stamps, err := s.client.ZRevRange(ctx, indexKey(deviceID), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("reading snapshot index for %s: %w", deviceID, err)
	}
	if len(stamps) == 0 {
		return nil, nil
	}
	return s.read(ctx, deviceID, stamps[0])
}

// List implements Store.
func (s *RedisStore) List(ctx context.Context, deviceID string) ([]*Snapshot, error) {
	stamps, err := s.client.ZRange(ctx, indexKey(deviceID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading snapshot index for %s: %w", deviceID, err)
	}
	out := make([]*Snapshot, 0, len(stamps))
	for _, stamp := range stamps {
		snap, err := s.read(ctx, deviceID, stamp)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, id string) (*Snapshot, error) {
	deviceID, ts, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	return s.read(ctx, deviceID, ts.Format(TimeFormat))
}

func (s *RedisStore) read(ctx context.Context, deviceID, stamp string) (*Snapshot, error) {
	vals, err := s.client.HGetAll(ctx, snapshotKey(deviceID, stamp)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s@%s: %w", deviceID, stamp, err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("snapshot %s@%s: %w", deviceID, stamp, util.ErrNotFound)
	}
	ts, err := time.Parse(TimeFormat, stamp)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s@%s: bad timestamp: %w", deviceID, stamp, err)
	}
	return New(deviceID, ts, vals["config_text"]), nil
}
