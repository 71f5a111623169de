package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"presenced/internal/models"
)

const offlineKeyPrefix = "presence:offline:"

// RedisConfig holds configuration for the Redis-backed store
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	Retention time.Duration // row expiry, 0 keeps rows until overwritten or deleted
}

// redisStore implements OfflineStore on a Redis key per user
type redisStore struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisStore creates a Redis offline-presence store.
func NewRedisStore(config RedisConfig) (OfflineStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	return &redisStore{client: client, retention: config.Retention}, nil
}

func (s *redisStore) recordKey(username string) string {
	return offlineKeyPrefix + username
}

// Load retrieves a user's offline presence row
func (s *redisStore) Load(ctx context.Context, username string) (models.OfflinePresenceRecord, error) {
	data, err := s.client.Get(ctx, s.recordKey(username)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.OfflinePresenceRecord{}, ErrNotFound
		}
		return models.OfflinePresenceRecord{}, fmt.Errorf("failed to load offline presence: %w", err)
	}

	var record models.OfflinePresenceRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return models.OfflinePresenceRecord{}, fmt.Errorf("failed to unmarshal offline presence: %w", err)
	}
	if record.At.IsZero() {
		return models.OfflinePresenceRecord{}, ErrNotFound
	}

	return record, nil
}

// Insert overwrites a user's offline presence row
func (s *redisStore) Insert(ctx context.Context, username string, payload []byte, at time.Time) error {
	data, err := json.Marshal(models.OfflinePresenceRecord{Payload: payload, At: at})
	if err != nil {
		return fmt.Errorf("failed to marshal offline presence: %w", err)
	}

	if err := s.client.Set(ctx, s.recordKey(username), data, s.retention).Err(); err != nil {
		return fmt.Errorf("failed to set offline presence: %w", err)
	}
	return nil
}

// Delete removes a user's offline presence row
func (s *redisStore) Delete(ctx context.Context, username string) error {
	if err := s.client.Del(ctx, s.recordKey(username)).Err(); err != nil {
		return fmt.Errorf("failed to delete offline presence: %w", err)
	}
	return nil
}

// Ping validates store connectivity
func (s *redisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client
func (s *redisStore) Close() error {
	return s.client.Close()
}
