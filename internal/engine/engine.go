package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"Uncanny-Terrors/server/internal/dice"
	"Uncanny-Terrors/server/internal/models"
	"Uncanny-Terrors/server/internal/prompts"
	"Uncanny-Terrors/server/internal/storage"
)

// ErrConfirmRequired gates the destructive lifecycle operations: the caller
// must re-submit with explicit confirmation before anything is lost.
var ErrConfirmRequired = errors.New("confirmation required")

// GameEngine owns the per-profile sessions and the save-slot lifecycle.
type GameEngine struct {
	narrator Narrator
	memory   SceneMemory
	store    storage.SaveStore
	prompts  *prompts.Engine
	roller   *dice.Roller
	recall   int
	log      zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewGameEngine wires the engine. memory may be nil to disable recall.
func NewGameEngine(narrator Narrator, memory SceneMemory, store storage.SaveStore, promptEngine *prompts.Engine, recallLimit int, log zerolog.Logger) *GameEngine {
	return &GameEngine{
		narrator: narrator,
		memory:   memory,
		store:    store,
		prompts:  promptEngine,
		roller:   dice.NewRoller(),
		recall:   recallLimit,
		log:      log.With().Str("component", "engine").Logger(),
		sessions: make(map[string]*Session),
	}
}

// Session returns the live session for a profile, creating an empty one on
// first touch.
func (e *GameEngine) Session(profileID string) *Session {
	e.mu.RLock()
	session, ok := e.sessions[profileID]
	e.mu.RUnlock()
	if ok {
		return session
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if session, ok := e.sessions[profileID]; ok {
		return session
	}
	session = newSession(profileID, e.narrator, e.memory, e.prompts, e.roller, e.recall, e.log)
	e.sessions[profileID] = session
	return session
}

// NewGame resets the profile's session to the empty aggregate. When a saved
// game exists it requires confirmation first, then deletes the slot.
func (e *GameEngine) NewGame(ctx context.Context, profileID string, confirm bool) error {
	exists, err := e.store.HasSave(ctx, profileID)
	if err != nil {
		return fmt.Errorf("failed to check save slot: %w", err)
	}
	if exists {
		if !confirm {
			return ErrConfirmRequired
		}
		if err := e.store.DeleteSave(ctx, profileID); err != nil {
			return err
		}
	}
	e.Session(profileID).Reset()
	return nil
}

// ContinueGame loads the persisted document verbatim into the session. A
// corrupt or version-mismatched document is an error and the session is
// left untouched — no partial load.
func (e *GameEngine) ContinueGame(ctx context.Context, profileID string) error {
	data, err := e.store.LoadGame(ctx, profileID)
	if err != nil {
		return err
	}
	doc, err := models.DecodeSaveDocument(data)
	if err != nil {
		return err
	}
	e.Session(profileID).Restore(doc.State)
	return nil
}

// SaveGame serializes the whole aggregate into the slot and returns the
// save timestamp (unix milliseconds).
func (e *GameEngine) SaveGame(ctx context.Context, profileID string) (int64, error) {
	snapshot := e.Session(profileID).Snapshot()
	doc := models.NewSaveDocument(snapshot.State)
	data, err := doc.Encode()
	if err != nil {
		return 0, err
	}
	if err := e.store.SaveGame(ctx, profileID, data); err != nil {
		return 0, err
	}
	return doc.SavedAt, nil
}

// FinishAdventure resets the aggregate after explicit confirmation.
// Unsaved progress is lost by design; the saved slot is untouched.
func (e *GameEngine) FinishAdventure(profileID string, confirm bool) error {
	if !confirm {
		return ErrConfirmRequired
	}
	e.Session(profileID).Reset()
	return nil
}

// HasSave reports whether the profile's slot holds a document.
func (e *GameEngine) HasSave(ctx context.Context, profileID string) (bool, error) {
	return e.store.HasSave(ctx, profileID)
}

// TutorialSeen reports the profile's tutorial flag.
func (e *GameEngine) TutorialSeen(ctx context.Context, profileID string) (bool, error) {
	return e.store.TutorialSeen(ctx, profileID)
}

// MarkTutorialSeen sets the profile's tutorial flag.
func (e *GameEngine) MarkTutorialSeen(ctx context.Context, profileID string) error {
	return e.store.MarkTutorialSeen(ctx, profileID)
}
