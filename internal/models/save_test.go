package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func playState() *GameState {
	state := NewGameState()
	state.Keywords = []string{"abandoned hospital", "whispers"}
	state.Adventure = &Adventure{Title: "The Hollow House", Description: "A house that eats sound."}
	state.Character = NewCharacter("Alma", "a tired nurse", Attributes{1, 1, 1}, validCharacteristics())
	state.History = []Message{
		NewMessage(RoleAssistant, "The corridor stretches."),
		NewMessage(RoleUser, "I listen at the door."),
	}
	state.Tension = 1
	state.NPCs = []NPC{{Name: "Old Sal", Description: "smells of wet ash", Motivation: "wants out"}}
	state.Notes = "the third door is warm"
	return state
}

func TestSaveDocumentRoundTrip(t *testing.T) {
	state := playState()

	doc := NewSaveDocument(state)
	assert.Equal(t, SaveVersion, doc.Version)
	assert.NotZero(t, doc.SavedAt)

	data, err := doc.Encode()
	require.NoError(t, err)

	loaded, err := DecodeSaveDocument(data)
	require.NoError(t, err)
	assert.Equal(t, doc.SavedAt, loaded.SavedAt)
	assert.Equal(t, state.Keywords, loaded.State.Keywords)
	assert.Equal(t, state.Adventure, loaded.State.Adventure)
	assert.Equal(t, state.Character, loaded.State.Character)
	assert.Len(t, loaded.State.History, 2)
	assert.Equal(t, 1, loaded.State.Tension)
	assert.Equal(t, state.NPCs, loaded.State.NPCs)
	assert.Equal(t, state.Notes, loaded.State.Notes)
}

func TestDecodeSaveDocumentRejectsVersionMismatch(t *testing.T) {
	data, err := json.Marshal(map[string]interface{}{
		"version": SaveVersion + 1,
		"savedAt": 1,
		"state":   NewGameState(),
	})
	require.NoError(t, err)

	_, err = DecodeSaveDocument(data)
	assert.ErrorContains(t, err, "not supported")
}

func TestDecodeSaveDocumentRejectsCorruptJSON(t *testing.T) {
	_, err := DecodeSaveDocument([]byte("{not json"))
	assert.ErrorContains(t, err, "corrupt")
}

func TestDecodeSaveDocumentRejectsMissingState(t *testing.T) {
	data, err := json.Marshal(map[string]interface{}{"version": SaveVersion, "savedAt": 1})
	require.NoError(t, err)

	_, err = DecodeSaveDocument(data)
	assert.ErrorContains(t, err, "no game state")
}

func TestGameStateClone(t *testing.T) {
	state := playState()

	cp := state.Clone()
	cp.Keywords[0] = "changed"
	cp.Adventure.Title = "changed"
	cp.Character.Name = "changed"
	cp.History[0].Content = "changed"
	cp.NPCs[0].Name = "changed"
	cp.Tension = 2

	assert.Equal(t, "abandoned hospital", state.Keywords[0])
	assert.Equal(t, "The Hollow House", state.Adventure.Title)
	assert.Equal(t, "Alma", state.Character.Name)
	assert.Equal(t, "The corridor stretches.", state.History[0].Content)
	assert.Equal(t, "Old Sal", state.NPCs[0].Name)
	assert.Equal(t, 1, state.Tension)
}

func TestRecentHistory(t *testing.T) {
	state := NewGameState()
	for i := 0; i < 8; i++ {
		state.History = append(state.History, NewMessage(RoleUser, "entry"))
	}

	assert.Len(t, state.RecentHistory(5), 5)
	assert.Len(t, state.RecentHistory(20), 8)
	assert.Len(t, state.RecentHistory(0), 8)
}
