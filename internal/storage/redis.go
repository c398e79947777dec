package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"Uncanny-Terrors/server/internal/config"
)

// RedisStore keeps each profile's save slot as a single JSON blob under a
// fixed key, mirroring the one-slot browser-storage contract.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func saveKey(profileID string) string {
	return "save:" + profileID
}

func flagKey(profileID, name string) string {
	return "flag:" + profileID + ":" + name
}

func (s *RedisStore) SaveGame(ctx context.Context, profileID string, document []byte) error {
	if err := s.client.Set(ctx, saveKey(profileID), document, 0).Err(); err != nil {
		return fmt.Errorf("failed to write save slot: %w", err)
	}
	return nil
}

func (s *RedisStore) LoadGame(ctx context.Context, profileID string) ([]byte, error) {
	data, err := s.client.Get(ctx, saveKey(profileID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSave
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read save slot: %w", err)
	}
	return data, nil
}

func (s *RedisStore) HasSave(ctx context.Context, profileID string) (bool, error) {
	count, err := s.client.Exists(ctx, saveKey(profileID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check save slot: %w", err)
	}
	return count > 0, nil
}

func (s *RedisStore) DeleteSave(ctx context.Context, profileID string) error {
	if err := s.client.Del(ctx, saveKey(profileID)).Err(); err != nil {
		return fmt.Errorf("failed to delete save slot: %w", err)
	}
	return nil
}

func (s *RedisStore) TutorialSeen(ctx context.Context, profileID string) (bool, error) {
	count, err := s.client.Exists(ctx, flagKey(profileID, tutorialFlag)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check tutorial flag: %w", err)
	}
	return count > 0, nil
}

func (s *RedisStore) MarkTutorialSeen(ctx context.Context, profileID string) error {
	if err := s.client.Set(ctx, flagKey(profileID, tutorialFlag), "1", 0).Err(); err != nil {
		return fmt.Errorf("failed to set tutorial flag: %w", err)
	}
	return nil
}
