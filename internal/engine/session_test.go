package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Uncanny-Terrors/server/internal/dice"
	"Uncanny-Terrors/server/internal/models"
	"Uncanny-Terrors/server/internal/prompts"
)

type fakeNarrator struct {
	hook       *models.Adventure
	hookErr    error
	opening    string
	openingErr error
	npc        *models.NPC
	npcErr     error
	image      string
	imageErr   error
	turn       string
	turnErr    error

	turnCalls int
	lastTurn  *TurnRequest
}

func (f *fakeNarrator) AdventureHook(ctx context.Context, keywords []string) (*models.Adventure, error) {
	return f.hook, f.hookErr
}

func (f *fakeNarrator) OpeningScene(ctx context.Context, adv *models.Adventure, char *models.Character, keywords []string) (string, error) {
	return f.opening, f.openingErr
}

func (f *fakeNarrator) CreateNPC(ctx context.Context, adv *models.Adventure, recent []models.Message, recall []string) (*models.NPC, error) {
	return f.npc, f.npcErr
}

func (f *fakeNarrator) SceneImage(ctx context.Context, narrative string) (string, error) {
	return f.image, f.imageErr
}

func (f *fakeNarrator) Turn(ctx context.Context, req *TurnRequest) (string, error) {
	f.turnCalls++
	f.lastTurn = req
	return f.turn, f.turnErr
}

func testSession(narrator Narrator) *Session {
	return newSession("test", narrator, nil, prompts.NewEngine(), dice.NewRoller(), 0, zerolog.Nop())
}

func testCharacter() *models.Character {
	return &models.Character{
		Name:         "Alma",
		Presentation: "a tired nurse",
		Attributes:   models.Attributes{Courage: 1, Wisdom: 1, Heart: 1},
		Characteristics: models.Characteristics{
			Courage: "steady hands",
			Wisdom:  "sharp memory",
			Heart:   "stubborn hope",
		},
	}
}

// toPlay advances a session to the play screen.
func toPlay(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.ConfirmKeywords([]string{"whispers"}))
	require.NoError(t, s.ConfirmAdventure(models.Adventure{Title: "The Hollow House", Description: "A house that eats sound."}))
	require.NoError(t, s.CreateCharacter(context.Background(), testCharacter()))
}

func TestDeriveScreen(t *testing.T) {
	tests := []struct {
		name    string
		state   func() *models.GameState
		opening bool
		want    Screen
	}{
		{
			name:  "empty aggregate",
			state: models.NewGameState,
			want:  ScreenKeywords,
		},
		{
			name: "keywords confirmed",
			state: func() *models.GameState {
				s := models.NewGameState()
				s.Keywords = []string{"whispers"}
				return s
			},
			want: ScreenAdventure,
		},
		{
			name: "adventure confirmed",
			state: func() *models.GameState {
				s := models.NewGameState()
				s.Keywords = []string{"whispers"}
				s.Adventure = &models.Adventure{Title: "t", Description: "d"}
				return s
			},
			want: ScreenCharacter,
		},
		{
			name: "opening in flight",
			state: func() *models.GameState {
				s := models.NewGameState()
				s.Keywords = []string{"whispers"}
				s.Adventure = &models.Adventure{Title: "t", Description: "d"}
				return s
			},
			opening: true,
			want:    ScreenLoading,
		},
		{
			name: "full aggregate",
			state: func() *models.GameState {
				s := models.NewGameState()
				s.Keywords = []string{"whispers"}
				s.Adventure = &models.Adventure{Title: "t", Description: "d"}
				s.Character = testCharacter()
				s.History = []models.Message{models.NewMessage(models.RoleAssistant, "scene")}
				return s
			},
			want: ScreenPlay,
		},
		{
			name: "opening flag ignored once history exists",
			state: func() *models.GameState {
				s := models.NewGameState()
				s.Keywords = []string{"whispers"}
				s.Adventure = &models.Adventure{Title: "t", Description: "d"}
				s.Character = testCharacter()
				s.History = []models.Message{models.NewMessage(models.RoleAssistant, "scene")}
				return s
			},
			opening: true,
			want:    ScreenPlay,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveScreen(tt.state(), tt.opening))
		})
	}
}

func TestToggleKeyword(t *testing.T) {
	s := testSession(&fakeNarrator{})

	assert.Equal(t, []string{"whispers"}, s.ToggleKeyword("whispers"))
	assert.Equal(t, []string{"whispers", "fog"}, s.ToggleKeyword("fog"))

	// deselect restores the prior set
	assert.Equal(t, []string{"fog"}, s.ToggleKeyword("whispers"))
}

func TestToggleKeywordCapsAtFive(t *testing.T) {
	s := testSession(&fakeNarrator{})
	for _, kw := range []string{"a", "b", "c", "d", "e"} {
		s.ToggleKeyword(kw)
	}

	// sixth toggle is a no-op
	selection := s.ToggleKeyword("f")
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, selection)

	// deselecting one reopens the slot
	s.ToggleKeyword("c")
	assert.Equal(t, []string{"a", "b", "d", "e", "f"}, s.ToggleKeyword("f"))
}

func TestConfirmKeywords(t *testing.T) {
	s := testSession(&fakeNarrator{})

	require.NoError(t, s.ConfirmKeywords([]string{" whispers ", "fog", "whispers", ""}))
	snap := s.Snapshot()
	assert.Equal(t, []string{"whispers", "fog"}, snap.State.Keywords)
	assert.Equal(t, ScreenAdventure, snap.Screen)
}

func TestConfirmKeywordsBounds(t *testing.T) {
	s := testSession(&fakeNarrator{})

	assert.ErrorIs(t, s.ConfirmKeywords(nil), ErrInvalidKeywords)
	assert.ErrorIs(t, s.ConfirmKeywords([]string{"", "  "}), ErrInvalidKeywords)
	assert.ErrorIs(t, s.ConfirmKeywords([]string{"a", "b", "c", "d", "e", "f"}), ErrInvalidKeywords)
}

func TestRollAdventure(t *testing.T) {
	narrator := &fakeNarrator{hook: &models.Adventure{Title: "t", Description: "d"}}
	s := testSession(narrator)

	_, err := s.RollAdventure(context.Background())
	assert.ErrorIs(t, err, ErrNoKeywords)

	require.NoError(t, s.ConfirmKeywords([]string{"whispers"}))
	adv, err := s.RollAdventure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t", adv.Title)

	// nothing is committed by a roll
	assert.Nil(t, s.Snapshot().State.Adventure)
}

func TestRollAdventureSurfacesErrors(t *testing.T) {
	s := testSession(&fakeNarrator{hookErr: errors.New("provider down")})
	require.NoError(t, s.ConfirmKeywords([]string{"whispers"}))

	_, err := s.RollAdventure(context.Background())
	assert.Error(t, err)
}

func TestConfirmAdventure(t *testing.T) {
	s := testSession(&fakeNarrator{})
	adv := models.Adventure{Title: "t", Description: "d"}

	assert.ErrorIs(t, s.ConfirmAdventure(models.Adventure{}), ErrNoAdventure)
	assert.ErrorIs(t, s.ConfirmAdventure(adv), ErrNoKeywords)

	require.NoError(t, s.ConfirmKeywords([]string{"whispers"}))
	require.NoError(t, s.ConfirmAdventure(adv))
	assert.ErrorIs(t, s.ConfirmAdventure(adv), ErrAdventureSet)
}

func TestBackToKeywords(t *testing.T) {
	s := testSession(&fakeNarrator{})
	require.NoError(t, s.ConfirmKeywords([]string{"whispers"}))
	require.NoError(t, s.ConfirmAdventure(models.Adventure{Title: "t", Description: "d"}))

	s.BackToKeywords()
	snap := s.Snapshot()
	assert.Empty(t, snap.State.Keywords)
	assert.Nil(t, snap.State.Adventure)
	assert.Equal(t, ScreenKeywords, snap.Screen)
}

func TestCreateCharacter(t *testing.T) {
	narrator := &fakeNarrator{opening: "The corridor stretches."}
	s := testSession(narrator)
	require.NoError(t, s.ConfirmKeywords([]string{"whispers"}))
	require.NoError(t, s.ConfirmAdventure(models.Adventure{Title: "The Hollow House", Description: "d"}))

	require.NoError(t, s.CreateCharacter(context.Background(), testCharacter()))

	snap := s.Snapshot()
	assert.Equal(t, ScreenPlay, snap.Screen)
	require.Len(t, snap.State.History, 1)
	assert.Equal(t, models.RoleAssistant, snap.State.History[0].Role)
	assert.Equal(t, "The corridor stretches.", snap.State.History[0].Content)
	assert.Equal(t, 0, snap.State.Tension)
	assert.Equal(t, models.DefaultMaxTension, snap.State.MaxTension)
	assert.Equal(t, models.HealthWell, snap.State.Character.Health)
	assert.Equal(t, models.InitialPlotPoints, snap.State.Character.PlotPoints)
}

func TestCreateCharacterGuards(t *testing.T) {
	s := testSession(&fakeNarrator{opening: "scene"})

	assert.ErrorIs(t, s.CreateCharacter(context.Background(), testCharacter()), ErrNoAdventure)

	require.NoError(t, s.ConfirmKeywords([]string{"whispers"}))
	require.NoError(t, s.ConfirmAdventure(models.Adventure{Title: "t", Description: "d"}))

	invalid := testCharacter()
	invalid.Attributes.Courage = 3
	assert.ErrorIs(t, s.CreateCharacter(context.Background(), invalid), ErrInvalidCharacter)

	require.NoError(t, s.CreateCharacter(context.Background(), testCharacter()))
	assert.ErrorIs(t, s.CreateCharacter(context.Background(), testCharacter()), ErrCharacterExists)
}

func TestCreateCharacterFallsBackOnNarratorFailure(t *testing.T) {
	s := testSession(&fakeNarrator{openingErr: errors.New("provider down")})
	require.NoError(t, s.ConfirmKeywords([]string{"whispers"}))
	require.NoError(t, s.ConfirmAdventure(models.Adventure{Title: "The Hollow House", Description: "d"}))

	// the transition still commits
	require.NoError(t, s.CreateCharacter(context.Background(), testCharacter()))

	snap := s.Snapshot()
	assert.Equal(t, ScreenPlay, snap.Screen)
	require.Len(t, snap.State.History, 1)
	assert.Equal(t, "**The Hollow House** begins now. You are Alma. Something dark awaits... What do you do?", snap.State.History[0].Content)
}

func TestSendAction(t *testing.T) {
	narrator := &fakeNarrator{opening: "scene", turn: "The door answers."}
	s := testSession(narrator)
	toPlay(t, s)

	reply, err := s.SendAction(context.Background(), "I knock twice.")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAssistant, reply.Role)
	assert.Equal(t, "The door answers.", reply.Content)

	history := s.Snapshot().State.History
	require.Len(t, history, 3)
	assert.Equal(t, "I knock twice.", history[1].Content)
	assert.Equal(t, "The door answers.", history[2].Content)

	// the narrator saw the transcript including the new action
	require.NotNil(t, narrator.lastTurn)
	assert.Len(t, narrator.lastTurn.History, 2)
	assert.Equal(t, "I knock twice.", narrator.lastTurn.History[1].Content)
}

func TestSendActionRejectsEmpty(t *testing.T) {
	s := testSession(&fakeNarrator{opening: "scene"})
	toPlay(t, s)

	_, err := s.SendAction(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyAction)
}

func TestSendActionRequiresCharacter(t *testing.T) {
	s := testSession(&fakeNarrator{})
	_, err := s.SendAction(context.Background(), "I knock.")
	assert.ErrorIs(t, err, ErrNoCharacter)
}

func TestSendActionBusy(t *testing.T) {
	narrator := &fakeNarrator{opening: "scene", turn: "reply"}
	s := testSession(narrator)
	toPlay(t, s)

	s.turnBusy.Store(true)
	_, err := s.SendAction(context.Background(), "I knock.")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Zero(t, narrator.turnCalls)

	// nothing was appended optimistically
	assert.Len(t, s.Snapshot().State.History, 1)
}

func TestSendActionFallsBackOnFailure(t *testing.T) {
	s := testSession(&fakeNarrator{opening: "scene", turnErr: errors.New("provider down")})
	toPlay(t, s)

	reply, err := s.SendAction(context.Background(), "I knock twice.")
	require.NoError(t, err)
	assert.Equal(t, prompts.TurnFailureMessage, reply.Content)

	// the player action stays in the transcript
	history := s.Snapshot().State.History
	require.Len(t, history, 3)
	assert.Equal(t, "I knock twice.", history[1].Content)
}

func TestRollDiceFeedsConversation(t *testing.T) {
	narrator := &fakeNarrator{opening: "scene", turn: "A success, barely."}
	s := testSession(narrator)
	toPlay(t, s)

	roll, reply, err := s.RollDice(context.Background(), 2, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "A success, barely.", reply.Content)
	assert.Len(t, roll.Positive, 2)
	assert.Len(t, roll.Negative, 1)

	history := s.Snapshot().State.History
	require.Len(t, history, 3)
	assert.Equal(t, models.RoleUser, history[1].Role)
	assert.Contains(t, history[1].Content, "DICE ROLL")
	assert.Contains(t, history[1].Content, roll.Report())
}

func TestGenerateImage(t *testing.T) {
	narrator := &fakeNarrator{opening: "scene", image: "data:image/png;base64,abc"}
	s := testSession(narrator)
	toPlay(t, s)

	image, err := s.GenerateImage(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,abc", image)
	assert.Equal(t, image, s.Snapshot().State.History[0].Image)
}

func TestGenerateImageGuards(t *testing.T) {
	narrator := &fakeNarrator{opening: "scene", turn: "reply", image: "data:image/png;base64,abc"}
	s := testSession(narrator)
	toPlay(t, s)
	_, err := s.SendAction(context.Background(), "I knock.")
	require.NoError(t, err)

	_, err = s.GenerateImage(context.Background(), -1)
	assert.ErrorIs(t, err, ErrNoSuchMessage)

	_, err = s.GenerateImage(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNoSuchMessage)

	// index 1 is the player action
	_, err = s.GenerateImage(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotAssistantScene)

	_, err = s.GenerateImage(context.Background(), 0)
	require.NoError(t, err)
	_, err = s.GenerateImage(context.Background(), 0)
	assert.ErrorIs(t, err, ErrImageExists)
}

func TestGenerateImageBusy(t *testing.T) {
	s := testSession(&fakeNarrator{opening: "scene", image: "data:image/png;base64,abc"})
	toPlay(t, s)

	s.imageIdx.Store(0)
	_, err := s.GenerateImage(context.Background(), 0)
	assert.ErrorIs(t, err, ErrBusy)
}

func TestGenerateImageSwallowsFailures(t *testing.T) {
	s := testSession(&fakeNarrator{opening: "scene", imageErr: errors.New("provider down")})
	toPlay(t, s)

	image, err := s.GenerateImage(context.Background(), 0)
	assert.NoError(t, err)
	assert.Empty(t, image)
	assert.Empty(t, s.Snapshot().State.History[0].Image)
}

func TestCreateNPC(t *testing.T) {
	narrator := &fakeNarrator{opening: "scene", npc: &models.NPC{Name: "Old Sal", Description: "smells of wet ash", Motivation: "wants out"}}
	s := testSession(narrator)
	toPlay(t, s)

	npc, err := s.CreateNPC(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Old Sal", npc.Name)

	roster := s.Snapshot().State.NPCs
	require.Len(t, roster, 1)
	assert.Equal(t, "Old Sal", roster[0].Name)
}

func TestCreateNPCSurfacesErrors(t *testing.T) {
	s := testSession(&fakeNarrator{opening: "scene", npcErr: errors.New("provider down")})
	toPlay(t, s)

	_, err := s.CreateNPC(context.Background())
	assert.Error(t, err)
	assert.Empty(t, s.Snapshot().State.NPCs)
}

func TestAdjustTensionClamps(t *testing.T) {
	s := testSession(&fakeNarrator{opening: "scene"})
	toPlay(t, s)

	assert.Equal(t, 1, s.AdjustTension(1))
	assert.Equal(t, 2, s.AdjustTension(1))
	assert.Equal(t, 2, s.AdjustTension(1))
	assert.Equal(t, 2, s.AdjustTension(5))
	assert.Equal(t, 0, s.AdjustTension(-10))
	assert.Equal(t, 0, s.AdjustTension(-1))
}

func TestUpdateNotes(t *testing.T) {
	s := testSession(&fakeNarrator{})
	s.UpdateNotes("the third door is warm")
	assert.Equal(t, "the third door is warm", s.Snapshot().State.Notes)
}

func TestUpdateCharacter(t *testing.T) {
	s := testSession(&fakeNarrator{opening: "scene"})

	assert.ErrorIs(t, s.UpdateCharacter(testCharacter()), ErrNoCharacter)

	toPlay(t, s)
	updated := testCharacter()
	updated.Health = models.HealthHurt
	updated.Equipment = []string{"lantern", "rope", "knife", "matches"}
	require.NoError(t, s.UpdateCharacter(updated))

	sheet := s.Snapshot().State.Character
	assert.Equal(t, models.HealthHurt, sheet.Health)
	assert.Equal(t, []string{"lantern", "rope", "knife"}, sheet.Equipment)
}

func TestResetClearsEverything(t *testing.T) {
	s := testSession(&fakeNarrator{opening: "scene"})
	toPlay(t, s)

	s.Reset()
	snap := s.Snapshot()
	assert.Equal(t, ScreenKeywords, snap.Screen)
	assert.Empty(t, snap.State.Keywords)
	assert.Nil(t, snap.State.Adventure)
	assert.Nil(t, snap.State.Character)
	assert.Empty(t, snap.State.History)
}
