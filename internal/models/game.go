package models

import "time"

// Game-wide tuning constants.
const (
	MaxKeywords        = 5
	MaxEquipment       = 3
	PointBudget        = 3
	InitialPlotPoints  = 1
	DefaultMaxTension  = 2
	NPCContextMessages = 5
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Adventure is the hook the player confirmed for this session. Frozen once
// confirmed; replaceable only by re-rolling before confirmation.
type Adventure struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// NPC is a narrator-created character. Appended to the roster, never edited.
type NPC struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Motivation  string `json:"motivation"`
}

// Message is one entry of the play-loop transcript. Immutable once appended,
// except that an image may later be attached to it by index.
type Message struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Image     string `json:"image,omitempty"` // data URL, set on demand
	Timestamp int64  `json:"timestamp"`       // unix milliseconds
}

// NewMessage builds a message stamped with the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	}
}

// GameState is the root aggregate: one live instance per session, persisted
// and restored wholesale as a single JSON document.
//
// Invariant: 0 <= Tension <= MaxTension.
type GameState struct {
	Keywords   []string   `json:"keywords"`
	Adventure  *Adventure `json:"adventure"`
	Character  *Character `json:"character"`
	History    []Message  `json:"history"`
	Tension    int        `json:"tension"`
	MaxTension int        `json:"maxTension"`
	NPCs       []NPC      `json:"npcs"`
	Notes      string     `json:"notes"`
}

// NewGameState returns the empty aggregate a session starts from.
func NewGameState() *GameState {
	return &GameState{
		History:    []Message{},
		MaxTension: DefaultMaxTension,
		NPCs:       []NPC{},
	}
}

// Clone returns a deep copy so callers can hand out snapshots without
// exposing the live aggregate.
func (g *GameState) Clone() *GameState {
	c := *g
	if g.Adventure != nil {
		adv := *g.Adventure
		c.Adventure = &adv
	}
	if g.Character != nil {
		c.Character = g.Character.Clone()
	}
	c.Keywords = append([]string(nil), g.Keywords...)
	c.History = append([]Message{}, g.History...)
	c.NPCs = append([]NPC{}, g.NPCs...)
	return &c
}

// RecentHistory returns up to the last n transcript entries.
func (g *GameState) RecentHistory(n int) []Message {
	if n <= 0 || len(g.History) <= n {
		return g.History
	}
	return g.History[len(g.History)-n:]
}
