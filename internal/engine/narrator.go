package engine

import (
	"context"

	"Uncanny-Terrors/server/internal/models"
)

// turnTemperature favors variety over determinism in play-loop narration.
const turnTemperature = 0.9

// TurnRequest carries everything the narrator sees when answering a player
// action: the full transcript plus the live sheet, adventure, tension and
// roster, and any recalled scene snippets.
type TurnRequest struct {
	History    []models.Message
	Character  *models.Character
	Adventure  *models.Adventure
	Tension    int
	MaxTension int
	NPCs       []models.NPC
	Recall     []string
}

// Narrator is the external generative collaborator. Every method is a
// stateless request/response; callers own all fallback behavior.
type Narrator interface {
	// AdventureHook generates a title and one-line synopsis from the selected
	// keywords. Failures surface to the caller; re-rolling is manual.
	AdventureHook(ctx context.Context, keywords []string) (*models.Adventure, error)

	// OpeningScene writes the first scene for a confirmed adventure and a
	// freshly created character.
	OpeningScene(ctx context.Context, adv *models.Adventure, char *models.Character, keywords []string) (string, error)

	// CreateNPC invents a non-player character from the adventure and the
	// recent transcript.
	CreateNPC(ctx context.Context, adv *models.Adventure, recent []models.Message, recall []string) (*models.NPC, error)

	// SceneImage renders a narrative excerpt as an image, returned as a data
	// URL. An empty string with a nil error means the provider returned no
	// image part.
	SceneImage(ctx context.Context, narrative string) (string, error)

	// Turn answers the latest player action with free-text narration.
	Turn(ctx context.Context, req *TurnRequest) (string, error)
}

// SceneMemory is the optional recall store scenes are written to. A nil
// store disables recall entirely.
type SceneMemory interface {
	// Remember stores a scene for later recall. Failures are the store's
	// problem; gameplay never blocks on it.
	Remember(ctx context.Context, profileID, content string)

	// Recall returns up to limit scene snippets related to the query.
	Recall(ctx context.Context, profileID, query string, limit int) []string
}
