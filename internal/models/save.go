package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// SaveVersion is the current shape of the persisted document. Loads of any
// other version are rejected outright rather than migrated.
const SaveVersion = 1

// SaveDocument is the single-slot persisted envelope: the whole aggregate
// plus a version stamp.
type SaveDocument struct {
	Version int        `json:"version"`
	SavedAt int64      `json:"savedAt"` // unix milliseconds
	State   *GameState `json:"state"`
}

// NewSaveDocument wraps the aggregate in a current-version envelope.
func NewSaveDocument(state *GameState) *SaveDocument {
	return &SaveDocument{
		Version: SaveVersion,
		SavedAt: time.Now().UnixMilli(),
		State:   state,
	}
}

// DecodeSaveDocument parses and version-checks a persisted document.
// A document from any other shape version is an error, never a partial load.
func DecodeSaveDocument(data []byte) (*SaveDocument, error) {
	var doc SaveDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("corrupt save document: %w", err)
	}
	if doc.Version != SaveVersion {
		return nil, fmt.Errorf("save document version %d is not supported (want %d)", doc.Version, SaveVersion)
	}
	if doc.State == nil {
		return nil, fmt.Errorf("save document has no game state")
	}
	return &doc, nil
}

// Encode serializes the envelope for storage.
func (d *SaveDocument) Encode() ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal save document: %w", err)
	}
	return data, nil
}

// SaveRecord is the database row backing the MySQL save store: one slot per
// profile, the document stored as an opaque JSON blob.
type SaveRecord struct {
	ProfileID string         `gorm:"primaryKey;size:64" json:"profile_id"`
	Document  string         `gorm:"type:mediumtext" json:"-"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// ProfileFlag is a per-profile boolean marker with a lifecycle independent
// from the save slot (currently only the tutorial-seen flag).
type ProfileFlag struct {
	ProfileID string    `gorm:"primaryKey;size:64" json:"profile_id"`
	Name      string    `gorm:"primaryKey;size:32" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
