package engine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"Uncanny-Terrors/server/internal/config"
	"Uncanny-Terrors/server/internal/models"
	"Uncanny-Terrors/server/internal/prompts"
)

// GeminiNarrator talks to the Gemini API. Structured calls use response
// schemas instead of JSON-mode prompt nudging.
type GeminiNarrator struct {
	client  *genai.Client
	prompts *prompts.Engine
	cfg     config.GeminiConfig
	log     zerolog.Logger
}

// NewGeminiNarrator creates a narrator backed by the Gemini API.
func NewGeminiNarrator(ctx context.Context, cfg config.GeminiConfig, promptEngine *prompts.Engine, log zerolog.Logger) (*GeminiNarrator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiNarrator{
		client:  client,
		prompts: promptEngine,
		cfg:     cfg,
		log:     log.With().Str("component", "narrator").Str("provider", "gemini").Logger(),
	}, nil
}

// Close releases the underlying client.
func (n *GeminiNarrator) Close() error {
	return n.client.Close()
}

func (n *GeminiNarrator) AdventureHook(ctx context.Context, keywords []string) (*models.Adventure, error) {
	prompt, err := n.prompts.Render(prompts.TemplateAdventureHook, prompts.HookFields(keywords))
	if err != nil {
		return nil, err
	}

	model := n.client.GenerativeModel(n.cfg.FastModel)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title":       {Type: genai.TypeString},
			"description": {Type: genai.TypeString},
		},
		Required: []string{"title", "description"},
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("adventure hook generation failed: %w", err)
	}

	var adv models.Adventure
	if err := json.Unmarshal([]byte(responseText(resp)), &adv); err != nil {
		return nil, fmt.Errorf("adventure hook decode failed: %w", err)
	}
	if adv.Title == "" || adv.Description == "" {
		return nil, fmt.Errorf("adventure hook response missing fields")
	}
	return &adv, nil
}

func (n *GeminiNarrator) OpeningScene(ctx context.Context, adv *models.Adventure, char *models.Character, keywords []string) (string, error) {
	prompt, err := n.prompts.Render(prompts.TemplateOpeningScene, prompts.OpeningFields(adv, char, keywords))
	if err != nil {
		return "", err
	}

	model := n.client.GenerativeModel(n.cfg.TextModel)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("opening scene generation failed: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("opening scene response was empty")
	}
	return text, nil
}

func (n *GeminiNarrator) CreateNPC(ctx context.Context, adv *models.Adventure, recent []models.Message, recall []string) (*models.NPC, error) {
	prompt, err := n.prompts.Render(prompts.TemplateNPCCreation, prompts.NPCFields(adv, recent))
	if err != nil {
		return nil, err
	}
	prompt += recallBlock(recall)

	model := n.client.GenerativeModel(n.cfg.FastModel)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"name":        {Type: genai.TypeString},
			"description": {Type: genai.TypeString},
			"motivation":  {Type: genai.TypeString},
		},
		Required: []string{"name", "description", "motivation"},
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("npc generation failed: %w", err)
	}

	var npc models.NPC
	if err := json.Unmarshal([]byte(responseText(resp)), &npc); err != nil {
		return nil, fmt.Errorf("npc decode failed: %w", err)
	}
	if npc.Name == "" {
		return nil, fmt.Errorf("npc response missing name")
	}
	return &npc, nil
}

func (n *GeminiNarrator) SceneImage(ctx context.Context, narrative string) (string, error) {
	prompt, err := n.prompts.Render(prompts.TemplateSceneImage, prompts.ImageFields(narrative))
	if err != nil {
		return "", err
	}

	model := n.client.GenerativeModel(n.cfg.ImageModel)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("image generation failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if blob, ok := part.(genai.Blob); ok {
			mime := blob.MIMEType
			if mime == "" {
				mime = "image/png"
			}
			return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(blob.Data)), nil
		}
	}
	return "", nil
}

func (n *GeminiNarrator) Turn(ctx context.Context, req *TurnRequest) (string, error) {
	system, err := n.prompts.Render(prompts.TemplateGameRules,
		prompts.RulesFields(req.Adventure, req.Character, req.Tension, req.MaxTension, req.NPCs))
	if err != nil {
		return "", err
	}
	system += recallBlock(req.Recall)

	if len(req.History) == 0 {
		return "", fmt.Errorf("turn requires at least one message")
	}

	model := n.client.GenerativeModel(n.cfg.TextModel)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	model.SetTemperature(turnTemperature)

	chat := model.StartChat()
	prior := req.History[:len(req.History)-1]
	chat.History = make([]*genai.Content, 0, len(prior))
	for _, msg := range prior {
		chat.History = append(chat.History, &genai.Content{
			Role:  geminiRole(msg.Role),
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}

	last := req.History[len(req.History)-1]
	resp, err := chat.SendMessage(ctx, genai.Text(last.Content))
	if err != nil {
		return "", fmt.Errorf("turn generation failed: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("turn response was empty")
	}
	return text, nil
}

func geminiRole(role models.Role) string {
	if role == models.RoleAssistant {
		return "model"
	}
	return "user"
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text += string(t)
		}
	}
	return text
}
