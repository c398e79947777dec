package engine

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"Uncanny-Terrors/server/internal/dice"
	"Uncanny-Terrors/server/internal/models"
	"Uncanny-Terrors/server/internal/prompts"
)

// Screen is the single active view, derived from the aggregate on every
// read. It is never stored, so it cannot drift from the underlying data.
type Screen string

const (
	ScreenKeywords  Screen = "keywords"
	ScreenAdventure Screen = "adventure"
	ScreenLoading   Screen = "loading"
	ScreenCharacter Screen = "character"
	ScreenPlay      Screen = "play"
)

// Boundary rejections. Every other failure degrades to a fallback value
// inside the session; these are the only errors the play loop surfaces.
var (
	ErrBusy              = errors.New("another request is already in flight")
	ErrInvalidKeywords   = errors.New("keyword selection must contain 1 to 5 entries")
	ErrNoKeywords        = errors.New("no keywords selected")
	ErrNoAdventure       = errors.New("no adventure confirmed")
	ErrAdventureSet      = errors.New("adventure already confirmed")
	ErrInvalidCharacter  = errors.New("character sheet is incomplete or off budget")
	ErrCharacterExists   = errors.New("character already created")
	ErrNoCharacter       = errors.New("no character created")
	ErrEmptyAction       = errors.New("action text is empty")
	ErrNoSuchMessage     = errors.New("no message at that index")
	ErrImageExists       = errors.New("message already has an image")
	ErrNotAssistantScene = errors.New("images can only be generated for narrator scenes")
)

// DeriveScreen computes the active screen from the aggregate, strict
// precedence top to bottom, first unmet condition wins.
func DeriveScreen(state *models.GameState, openingInFlight bool) Screen {
	switch {
	case len(state.Keywords) == 0:
		return ScreenKeywords
	case state.Adventure == nil:
		return ScreenAdventure
	case openingInFlight && len(state.History) == 0:
		return ScreenLoading
	case state.Character == nil:
		return ScreenCharacter
	default:
		return ScreenPlay
	}
}

// Snapshot is a read-only view of a session handed to the presentation
// layer.
type Snapshot struct {
	Screen        Screen            `json:"screen"`
	State         *models.GameState `json:"state"`
	TurnBusy      bool              `json:"turnBusy"`
	ImageInFlight int64             `json:"imageInFlight"` // message index, -1 when idle
}

// Session owns one GameState aggregate. All mutations are whole-aggregate
// updates under one mutex; narrator calls happen outside it, guarded by the
// busy flags so at most one turn and one image request are outstanding.
type Session struct {
	profileID string

	mu    sync.Mutex
	state *models.GameState

	// pending keyword selection, local to the keyword screen until confirmed
	pending []string

	turnBusy    atomic.Bool
	openingBusy atomic.Bool
	imageIdx    atomic.Int64 // -1 when idle

	narrator Narrator
	memory   SceneMemory
	prompts  *prompts.Engine
	roller   *dice.Roller
	recall   int
	log      zerolog.Logger
}

func newSession(profileID string, narrator Narrator, memory SceneMemory, promptEngine *prompts.Engine, roller *dice.Roller, recallLimit int, log zerolog.Logger) *Session {
	s := &Session{
		profileID: profileID,
		state:     models.NewGameState(),
		narrator:  narrator,
		memory:    memory,
		prompts:   promptEngine,
		roller:    roller,
		recall:    recallLimit,
		log:       log.With().Str("profile", profileID).Logger(),
	}
	s.imageIdx.Store(-1)
	return s
}

// Snapshot returns a deep copy of the aggregate plus the derived screen.
func (s *Session) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Snapshot{
		Screen:        DeriveScreen(s.state, s.openingBusy.Load()),
		State:         s.state.Clone(),
		TurnBusy:      s.turnBusy.Load(),
		ImageInFlight: s.imageIdx.Load(),
	}
}

// Reset discards the aggregate and returns to the empty state.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = models.NewGameState()
	s.pending = nil
}

// Restore replaces the aggregate with a loaded save. No partial state: the
// caller only gets here with a fully decoded document.
func (s *Session) Restore(state *models.GameState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.pending = nil
}

// ToggleKeyword adds or removes a keyword from the pending selection.
// Deselecting restores the prior set; adding a sixth while five are active
// is a no-op. Returns the selection after the toggle.
func (s *Session) ToggleKeyword(keyword string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, kw := range s.pending {
		if kw == keyword {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return append([]string(nil), s.pending...)
		}
	}
	if len(s.pending) < models.MaxKeywords {
		s.pending = append(s.pending, keyword)
	}
	return append([]string(nil), s.pending...)
}

// ConfirmKeywords commits a keyword selection: 1 to 5 entries after
// deduplication, insertion order preserved.
func (s *Session) ConfirmKeywords(keywords []string) error {
	deduped := make([]string, 0, len(keywords))
	seen := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		deduped = append(deduped, kw)
	}
	if len(deduped) < 1 || len(deduped) > models.MaxKeywords {
		return ErrInvalidKeywords
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Keywords = deduped
	s.pending = nil
	return nil
}

// BackToKeywords clears both the adventure and the keywords, discarding any
// in-flight adventure proposal.
func (s *Session) BackToKeywords() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Keywords = nil
	s.state.Adventure = nil
}

// RollAdventure asks the narrator for a hook proposal. Nothing is committed;
// failures surface so the player can re-roll manually.
func (s *Session) RollAdventure(ctx context.Context) (*models.Adventure, error) {
	s.mu.Lock()
	keywords := append([]string(nil), s.state.Keywords...)
	s.mu.Unlock()
	if len(keywords) == 0 {
		return nil, ErrNoKeywords
	}
	return s.narrator.AdventureHook(ctx, keywords)
}

// ConfirmAdventure freezes a generated hook. Presence is the only
// validation; the hook is accepted verbatim.
func (s *Session) ConfirmAdventure(adv models.Adventure) error {
	if adv.Title == "" || adv.Description == "" {
		return ErrNoAdventure
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.state.Keywords) == 0 {
		return ErrNoKeywords
	}
	if s.state.Adventure != nil {
		return ErrAdventureSet
	}
	s.state.Adventure = &adv
	return nil
}

// CreateCharacter validates the sheet, requests the opening scene and seeds
// the transcript. The character and the screen transition commit regardless
// of the narrator outcome: a failed request degrades to the fixed fallback
// scene, never strands the player on the creation screen.
func (s *Session) CreateCharacter(ctx context.Context, char *models.Character) error {
	s.mu.Lock()
	if s.state.Adventure == nil {
		s.mu.Unlock()
		return ErrNoAdventure
	}
	if s.state.Character != nil {
		s.mu.Unlock()
		return ErrCharacterExists
	}
	if !char.Valid() {
		s.mu.Unlock()
		return ErrInvalidCharacter
	}
	adv := *s.state.Adventure
	keywords := append([]string(nil), s.state.Keywords...)
	s.mu.Unlock()

	sheet := models.NewCharacter(char.Name, char.Presentation, char.Attributes, char.Characteristics)

	s.openingBusy.Store(true)
	defer s.openingBusy.Store(false)

	scene, err := s.narrator.OpeningScene(ctx, &adv, sheet, keywords)
	if err != nil || scene == "" {
		s.log.Warn().Err(err).Msg("opening scene generation failed, using fallback")
		scene, _ = s.prompts.Render(prompts.TemplateOpeningFail, map[string]string{
			"adventure_title": adv.Title,
			"name":            sheet.Name,
		})
	} else {
		s.remember(scene)
	}

	opening := models.NewMessage(models.RoleAssistant, scene)

	s.mu.Lock()
	s.state.Character = sheet
	s.state.History = []models.Message{opening}
	s.state.Tension = 0
	s.state.MaxTension = models.DefaultMaxTension
	s.state.NPCs = []models.NPC{}
	s.state.Notes = ""
	s.mu.Unlock()
	return nil
}

// SendAction appends the player action optimistically, asks the narrator
// for the reply and appends it, or the fixed error line when the call
// fails. A second send while one is outstanding is rejected at the
// boundary.
func (s *Session) SendAction(ctx context.Context, text string) (models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, ErrEmptyAction
	}

	if !s.turnBusy.CompareAndSwap(false, true) {
		return models.Message{}, ErrBusy
	}
	defer s.turnBusy.Store(false)

	s.mu.Lock()
	if s.state.Character == nil || s.state.Adventure == nil {
		s.mu.Unlock()
		return models.Message{}, ErrNoCharacter
	}
	s.state.History = append(s.state.History, models.NewMessage(models.RoleUser, text))
	req := &TurnRequest{
		History:    append([]models.Message{}, s.state.History...),
		Character:  s.state.Character.Clone(),
		Adventure:  &models.Adventure{Title: s.state.Adventure.Title, Description: s.state.Adventure.Description},
		Tension:    s.state.Tension,
		MaxTension: s.state.MaxTension,
		NPCs:       append([]models.NPC{}, s.state.NPCs...),
	}
	s.mu.Unlock()

	req.Recall = s.recallScenes(ctx, text)

	content, err := s.narrator.Turn(ctx, req)
	if err != nil || content == "" {
		s.log.Warn().Err(err).Msg("turn generation failed, using fallback")
		content = prompts.TurnFailureMessage
	} else {
		s.remember(content)
	}

	reply := models.NewMessage(models.RoleAssistant, content)
	s.mu.Lock()
	s.state.History = append(s.state.History, reply)
	s.mu.Unlock()
	return reply, nil
}

// RollDice draws the dice pools and submits the formatted report into the
// conversation as a player action. The narrator alone adjudicates the
// result against whatever difficulty it stated.
func (s *Session) RollDice(ctx context.Context, numPos, numNeg, modifier int) (dice.Roll, models.Message, error) {
	roll := s.roller.Roll(numPos, numNeg, modifier)
	reply, err := s.SendAction(ctx, roll.Report())
	return roll, reply, err
}

// GenerateImage renders the scene at the given transcript index. At most
// one image request is outstanding across the whole history; duplicates and
// concurrent requests are rejected at the boundary. Generation failures are
// swallowed: the message is simply left without an image.
func (s *Session) GenerateImage(ctx context.Context, index int) (string, error) {
	s.mu.Lock()
	if index < 0 || index >= len(s.state.History) {
		s.mu.Unlock()
		return "", ErrNoSuchMessage
	}
	msg := s.state.History[index]
	s.mu.Unlock()

	if msg.Role != models.RoleAssistant {
		return "", ErrNotAssistantScene
	}
	if msg.Image != "" {
		return "", ErrImageExists
	}
	if !s.imageIdx.CompareAndSwap(-1, int64(index)) {
		return "", ErrBusy
	}
	defer s.imageIdx.Store(-1)

	image, err := s.narrator.SceneImage(ctx, msg.Content)
	if err != nil {
		s.log.Warn().Err(err).Int("index", index).Msg("image generation failed")
		return "", nil
	}
	if image == "" {
		return "", nil
	}

	s.mu.Lock()
	if index < len(s.state.History) {
		s.state.History[index].Image = image
	}
	s.mu.Unlock()
	return image, nil
}

// CreateNPC invents an NPC from the adventure and the transcript tail and
// appends it to the roster. Failures surface; the player retries.
func (s *Session) CreateNPC(ctx context.Context) (*models.NPC, error) {
	s.mu.Lock()
	if s.state.Adventure == nil {
		s.mu.Unlock()
		return nil, ErrNoAdventure
	}
	adv := *s.state.Adventure
	recent := append([]models.Message{}, s.state.RecentHistory(models.NPCContextMessages)...)
	s.mu.Unlock()

	var query string
	if len(recent) > 0 {
		query = recent[len(recent)-1].Content
	}
	recall := s.recallScenes(ctx, query)

	npc, err := s.narrator.CreateNPC(ctx, &adv, recent, recall)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.state.NPCs = append(s.state.NPCs, *npc)
	s.mu.Unlock()
	return npc, nil
}

// AdjustTension clamps tension + delta into [0, maxTension] and returns the
// new value.
func (s *Session) AdjustTension(delta int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	tension := s.state.Tension + delta
	if tension < 0 {
		tension = 0
	}
	if tension > s.state.MaxTension {
		tension = s.state.MaxTension
	}
	s.state.Tension = tension
	return tension
}

// UpdateNotes replaces the free-text notes.
func (s *Session) UpdateNotes(notes string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Notes = notes
}

// UpdateCharacter replaces the sheet in place. The equipment list is
// clamped to its cap; no other field is validated after creation.
func (s *Session) UpdateCharacter(char *models.Character) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Character == nil {
		return ErrNoCharacter
	}
	updated := char.Clone()
	updated.ClampEquipment()
	s.state.Character = updated
	return nil
}

func (s *Session) remember(scene string) {
	if s.memory == nil {
		return
	}
	go s.memory.Remember(context.Background(), s.profileID, scene)
}

func (s *Session) recallScenes(ctx context.Context, query string) []string {
	if s.memory == nil || query == "" {
		return nil
	}
	return s.memory.Recall(ctx, s.profileID, query, s.recall)
}
