package storage

import (
	"context"
	"errors"
	"fmt"

	"Uncanny-Terrors/server/internal/config"
)

// ErrNoSave is returned when a profile has no saved game in its slot.
var ErrNoSave = errors.New("no saved game")

// tutorialFlag is the one profile flag currently in use; its lifecycle is
// independent from the save slot.
const tutorialFlag = "tutorial_seen"

// SaveStore persists one save-slot document per profile plus independent
// profile flags. Documents are opaque bytes here; shape and versioning are
// the models package's concern.
type SaveStore interface {
	SaveGame(ctx context.Context, profileID string, document []byte) error
	LoadGame(ctx context.Context, profileID string) ([]byte, error)
	HasSave(ctx context.Context, profileID string) (bool, error)
	DeleteSave(ctx context.Context, profileID string) error

	TutorialSeen(ctx context.Context, profileID string) (bool, error)
	MarkTutorialSeen(ctx context.Context, profileID string) error

	Close() error
}

// Open constructs the configured save store.
func Open(cfg config.StorageConfig) (SaveStore, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedisStore(cfg.Redis)
	case "mysql":
		return NewMySQLStore(cfg.MySQL)
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.Driver)
	}
}
