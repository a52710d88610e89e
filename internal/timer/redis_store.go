package timer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/acadio/assess-backend/internal/config"
	"github.com/redis/go-redis/v9"
)

// RedisSnapshotStore persists timer snapshots in Redis, keyed by test and
// student so a reload on any device resumes the same countdown.
type RedisSnapshotStore struct {
	rdb       *redis.Client
	testID    string
	studentID int
}

// NewRedisSnapshotStore creates a snapshot store bound to one attempt.
func NewRedisSnapshotStore(rdb *redis.Client, testID string, studentID int) *RedisSnapshotStore {
	return &RedisSnapshotStore{rdb: rdb, testID: testID, studentID: studentID}
}

func (s *RedisSnapshotStore) key() string {
	return config.CacheKey.TimerSnapshotKey(s.testID, s.studentID)
}

// Save writes the snapshot. No TTL: the snapshot lives until teardown clears it.
func (s *RedisSnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(), data, 0).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load returns the stored snapshot, if one exists.
func (s *RedisSnapshotStore) Load(ctx context.Context) (Snapshot, bool, error) {
	data, err := s.rdb.Get(ctx, s.key()).Bytes()
	if err == redis.Nil {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("load snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, true, nil
}

// Clear removes the snapshot on session teardown.
func (s *RedisSnapshotStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key()).Err(); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}
