// Package cache mirrors the latest telemetry snapshot into Redis so other
// processes can read it, and restores it after a restart.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"aqua-backend/internal/models"
)

const (
	defaultDialTimeout  = 5 * time.Second
	defaultReadTimeout  = 3 * time.Second
	defaultWriteTimeout = 3 * time.Second

	snapshotKey     = "aqua:snapshot"
	readingsChannel = "aqua:readings"
)

// commander is the subset of the go-redis client the store uses
type commander interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Close() error
}

// NewRedisClient returns a configured go-redis client and validates the connection with PING.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis: addr is empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  defaultDialTimeout,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	})

	ctx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	return client, nil
}

// SnapshotStore keeps the latest snapshot under one key and publishes each
// reading batch on a pub/sub channel.
type SnapshotStore struct {
	client commander
	ttl    time.Duration
	logger *zap.Logger
}

// NewSnapshotStore wraps client. ttl 0 keeps the snapshot forever.
func NewSnapshotStore(client commander, ttl time.Duration, logger *zap.Logger) *SnapshotStore {
	return &SnapshotStore{client: client, ttl: ttl, logger: logger.Named("redis")}
}

// Name identifies the store in sink logs
func (s *SnapshotStore) Name() string {
	return "redis"
}

// HandleReadings mirrors the snapshot and announces the readings
func (s *SnapshotStore) HandleReadings(ctx context.Context, readings []models.Reading, snapshot models.Snapshot) error {
	if err := s.SaveSnapshot(ctx, snapshot); err != nil {
		return err
	}

	data, err := json.Marshal(readings)
	if err != nil {
		return fmt.Errorf("redis: marshal readings: %w", err)
	}
	if err := s.client.Publish(ctx, readingsChannel, data).Err(); err != nil {
		return fmt.Errorf("redis: publish readings: %w", err)
	}
	return nil
}

// SaveSnapshot stores snapshot as JSON
func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snapshot models.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKey, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis: save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the stored snapshot. ok is false when none is stored.
func (s *SnapshotStore) LoadSnapshot(ctx context.Context) (models.Snapshot, bool, error) {
	raw, err := s.client.Get(ctx, snapshotKey).Result()
	if errors.Is(err, redis.Nil) {
		return models.Snapshot{}, false, nil
	}
	if err != nil {
		return models.Snapshot{}, false, fmt.Errorf("redis: load snapshot: %w", err)
	}

	var snapshot models.Snapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return models.Snapshot{}, false, fmt.Errorf("redis: decode snapshot: %w", err)
	}
	return snapshot, true, nil
}

// Close closes the underlying client
func (s *SnapshotStore) Close() error {
	return s.client.Close()
}
