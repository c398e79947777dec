// Package prompts holds every prompt string the narrator depends on, so the
// game-rule text lives beside the code that sends it.
package prompts

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"Uncanny-Terrors/server/internal/models"
)

// Template names.
const (
	TemplateGameRules     = "game_rules"
	TemplateAdventureHook = "adventure_hook"
	TemplateOpeningScene  = "opening_scene"
	TemplateNPCCreation   = "npc_creation"
	TemplateSceneImage    = "scene_image"
	TemplateOpeningFail   = "opening_fallback"
)

// Fallback lines for failed narrator calls. These are game state, not UI
// copy: on failure they are appended to the transcript verbatim.
const (
	TurnFailureMessage = "*A dark interference blocks the narration. Try again.*"
)

// imagePromptLimit caps how much narrative is embedded in an image prompt.
const imagePromptLimit = 500

// Template is a named prompt body with {{field}} placeholders.
type Template struct {
	Name    string
	Content string
}

// Engine renders registered templates by substituting a map of named fields
// in a single pass. One pass means a field value that itself looks like a
// placeholder is never re-substituted.
type Engine struct {
	templates map[string]*Template
	mu        sync.RWMutex
}

var fieldPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// NewEngine returns an engine preloaded with the default game templates.
func NewEngine() *Engine {
	e := &Engine{templates: make(map[string]*Template)}
	for _, tmpl := range defaultTemplates {
		e.Register(tmpl)
	}
	return e
}

// Register adds or replaces a template.
func (e *Engine) Register(tmpl *Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[tmpl.Name] = tmpl
}

// Render substitutes fields into the named template. Placeholders with no
// matching field are left intact.
func (e *Engine) Render(name string, fields map[string]string) (string, error) {
	e.mu.RLock()
	tmpl, ok := e.templates[name]
	e.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("template not found: %s", name)
	}

	return fieldPattern.ReplaceAllStringFunc(tmpl.Content, func(match string) string {
		key := fieldPattern.FindStringSubmatch(match)[1]
		if value, ok := fields[key]; ok {
			return value
		}
		return match
	}), nil
}

// RulesFields builds the field map for the game-rules system instruction.
func RulesFields(adv *models.Adventure, char *models.Character, tension, maxTension int, npcs []models.NPC) map[string]string {
	return map[string]string{
		"adventure_title": adv.Title,
		"adventure_desc":  adv.Description,
		"name":            char.Name,
		"presentation":    char.Presentation,
		"courage":         strconv.Itoa(char.Attributes.Courage),
		"wisdom":          strconv.Itoa(char.Attributes.Wisdom),
		"heart":           strconv.Itoa(char.Attributes.Heart),
		"health":          string(char.Health),
		"tension":         fmt.Sprintf("%d of %d", tension, maxTension),
		"npcs":            NPCRoster(npcs),
	}
}

// HookFields builds the field map for adventure hook generation.
func HookFields(keywords []string) map[string]string {
	return map[string]string{
		"keywords": strings.Join(keywords, ", "),
	}
}

// OpeningFields builds the field map for first-scene generation.
func OpeningFields(adv *models.Adventure, char *models.Character, keywords []string) map[string]string {
	return map[string]string{
		"adventure_title": adv.Title,
		"adventure_desc":  adv.Description,
		"name":            char.Name,
		"presentation":    char.Presentation,
		"keywords":        strings.Join(keywords, ", "),
	}
}

// NPCFields builds the field map for NPC creation from the adventure and the
// tail of the transcript.
func NPCFields(adv *models.Adventure, recent []models.Message) map[string]string {
	lines := make([]string, len(recent))
	for i, msg := range recent {
		lines[i] = msg.Content
	}
	return map[string]string{
		"adventure_title": adv.Title,
		"recent_history":  strings.Join(lines, "\n"),
	}
}

// ImageFields builds the field map for scene visualization, truncating the
// narrative to the prompt limit.
func ImageFields(narrative string) map[string]string {
	runes := []rune(narrative)
	if len(runes) > imagePromptLimit {
		narrative = string(runes[:imagePromptLimit])
	}
	return map[string]string{
		"scene": narrative,
	}
}

// NPCRoster formats the known-NPC list for prompt context.
func NPCRoster(npcs []models.NPC) string {
	if len(npcs) == 0 {
		return "None known yet."
	}
	parts := make([]string, len(npcs))
	for i, npc := range npcs {
		parts[i] = fmt.Sprintf("%s (%s)", npc.Name, npc.Description)
	}
	return strings.Join(parts, "; ")
}

var defaultTemplates = []*Template{
	{
		Name: TemplateGameRules,
		Content: `You are the Game Master of "Uncanny Terrors". Your task is to narrate a horror and survival adventure.

ADVENTURE CONTEXT:
Title: {{adventure_title}}
Premise: {{adventure_desc}}

CRITICAL AND MANDATORY RULES:
1. SYSTEM: The game uses six-sided dice. A Positive die (D+) and a Negative die (D-).
2. RESULT: (sum of D+) - (sum of D-) + character attribute + optional modifier.
3. TRIALS: Set difficulty levels from 0 to 3.
   - WHEN ASKING FOR A TEST: Be explicit. E.g. "Make a Courage test (Difficulty 1)".
4. TEST OUTCOMES:
   - Success: result > difficulty.
   - Trouble: result == difficulty.
   - Failure: result < difficulty.
5. NPCS: The player may bring NPCs into being. Use them in the narrative when the player interacts with them.
6. STYLE: Use Markdown. Be visceral, poetic and grim. Vary the pacing.

CURRENT CHARACTER:
Name: {{name}}
Presentation: {{presentation}}
Attributes: Courage {{courage}}, Wisdom {{wisdom}}, Heart {{heart}}
Health: {{health}}
Current tension: {{tension}}
KNOWN NPCS: {{npcs}}`,
	},
	{
		Name:    TemplateAdventureHook,
		Content: `Generate a striking title and a short one-sentence synopsis for a horror RPG. Elements: {{keywords}}.`,
	},
	{
		Name: TemplateOpeningScene,
		Content: `You are a Horror RPG Game Master. Write the FIRST SCENE of the adventure "{{adventure_title}}".
Premise: {{adventure_desc}}
Character: {{name}}, {{presentation}}.
Tone elements: {{keywords}}.

GUIDELINES:
1. Avoid obvious opening cliches unless they earn their place.
2. Start by describing the setting and what the character is doing right now.
3. It may be a mundane moment (everyday life) where the horror begins to seep in, or a moment of already-established tension.
4. Use sensory description (sounds, smells, lighting).
5. End with a question or a situation demanding an immediate reaction.
6. At most 2 immersive paragraphs. Use Markdown.`,
	},
	{
		Name: TemplateNPCCreation,
		Content: `Based on the adventure "{{adventure_title}}" and the recent history: "{{recent_history}}", create an enigmatic non-player character.
Name, sensory description and secret motivation. Keep the horror tone.`,
	},
	{
		Name:    TemplateSceneImage,
		Content: `Cinematic horror, dark, 16:9. Scene: {{scene}}`,
	},
	{
		Name:    TemplateOpeningFail,
		Content: `**{{adventure_title}}** begins now. You are {{name}}. Something dark awaits... What do you do?`,
	},
}
