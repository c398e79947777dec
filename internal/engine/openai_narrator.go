package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"Uncanny-Terrors/server/internal/config"
	"Uncanny-Terrors/server/internal/models"
	"Uncanny-Terrors/server/internal/prompts"
)

const (
	maxRetries = 3
	retryDelay = 1 * time.Second
)

// OpenAINarrator speaks the OpenAI chat-completions dialect. The base URL is
// configurable, so any compatible provider works behind it.
type OpenAINarrator struct {
	client  *openai.Client
	prompts *prompts.Engine
	cfg     config.OpenAIConfig
	log     zerolog.Logger
}

// NewOpenAINarrator creates a narrator against cfg's endpoint.
func NewOpenAINarrator(cfg config.OpenAIConfig, promptEngine *prompts.Engine, log zerolog.Logger) *OpenAINarrator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAINarrator{
		client:  openai.NewClientWithConfig(clientCfg),
		prompts: promptEngine,
		cfg:     cfg,
		log:     log.With().Str("component", "narrator").Str("provider", "openai").Logger(),
	}
}

// Client exposes the underlying client so the embedding store can share it.
func (n *OpenAINarrator) Client() *openai.Client {
	return n.client
}

func (n *OpenAINarrator) AdventureHook(ctx context.Context, keywords []string) (*models.Adventure, error) {
	prompt, err := n.prompts.Render(prompts.TemplateAdventureHook, prompts.HookFields(keywords))
	if err != nil {
		return nil, err
	}
	prompt += `

Respond with a single JSON object with string keys "title" and "description".`

	text, err := n.chat(ctx, n.cfg.FastModel, "", []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}, 0, true)
	if err != nil {
		return nil, fmt.Errorf("adventure hook generation failed: %w", err)
	}

	var adv models.Adventure
	if err := json.Unmarshal([]byte(text), &adv); err != nil {
		return nil, fmt.Errorf("adventure hook decode failed: %w", err)
	}
	if adv.Title == "" || adv.Description == "" {
		return nil, fmt.Errorf("adventure hook response missing fields")
	}
	return &adv, nil
}

func (n *OpenAINarrator) OpeningScene(ctx context.Context, adv *models.Adventure, char *models.Character, keywords []string) (string, error) {
	prompt, err := n.prompts.Render(prompts.TemplateOpeningScene, prompts.OpeningFields(adv, char, keywords))
	if err != nil {
		return "", err
	}

	return n.chat(ctx, n.cfg.TextModel, "", []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}, 0, false)
}

func (n *OpenAINarrator) CreateNPC(ctx context.Context, adv *models.Adventure, recent []models.Message, recall []string) (*models.NPC, error) {
	prompt, err := n.prompts.Render(prompts.TemplateNPCCreation, prompts.NPCFields(adv, recent))
	if err != nil {
		return nil, err
	}
	prompt += recallBlock(recall)
	prompt += `

Respond with a single JSON object with string keys "name", "description" and "motivation".`

	text, err := n.chat(ctx, n.cfg.FastModel, "", []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}, 0, true)
	if err != nil {
		return nil, fmt.Errorf("npc generation failed: %w", err)
	}

	var npc models.NPC
	if err := json.Unmarshal([]byte(text), &npc); err != nil {
		return nil, fmt.Errorf("npc decode failed: %w", err)
	}
	if npc.Name == "" {
		return nil, fmt.Errorf("npc response missing name")
	}
	return &npc, nil
}

func (n *OpenAINarrator) SceneImage(ctx context.Context, narrative string) (string, error) {
	prompt, err := n.prompts.Render(prompts.TemplateSceneImage, prompts.ImageFields(narrative))
	if err != nil {
		return "", err
	}

	resp, err := n.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          n.cfg.ImageModel,
		N:              1,
		Size:           openai.CreateImageSize1792x1024, // closest to 16:9
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return "", fmt.Errorf("image generation failed: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return "", nil
	}
	return "data:image/png;base64," + resp.Data[0].B64JSON, nil
}

func (n *OpenAINarrator) Turn(ctx context.Context, req *TurnRequest) (string, error) {
	system, err := n.prompts.Render(prompts.TemplateGameRules,
		prompts.RulesFields(req.Adventure, req.Character, req.Tension, req.MaxTension, req.NPCs))
	if err != nil {
		return "", err
	}
	system += recallBlock(req.Recall)

	messages := make([]openai.ChatCompletionMessage, 0, len(req.History))
	for _, msg := range req.History {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    chatRole(msg.Role),
			Content: msg.Content,
		})
	}

	return n.chat(ctx, n.cfg.TextModel, system, messages, turnTemperature, false)
}

// chat sends one completion request with bounded retries on transient errors.
func (n *OpenAINarrator) chat(ctx context.Context, model, system string, messages []openai.ChatCompletionMessage, temperature float32, jsonMode bool) (string, error) {
	if system != "" {
		messages = append([]openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
		}, messages...)
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   n.cfg.MaxTokens,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(retryDelay * time.Duration(attempt)):
			}
		}

		resp, err := n.client.CreateChatCompletion(ctx, req)
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", fmt.Errorf("no choices returned from model")
			}
			return resp.Choices[0].Message.Content, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			break
		}
		n.log.Warn().Err(err).Int("attempt", attempt+1).Msg("completion failed, retrying")
	}

	return "", fmt.Errorf("completion failed after retries: %w", lastErr)
}

func chatRole(role models.Role) string {
	switch role {
	case models.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case models.RoleSystem:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}

func recallBlock(recall []string) string {
	if len(recall) == 0 {
		return ""
	}
	return "\n\nSCENES RECALLED FROM EARLIER:\n- " + strings.Join(recall, "\n- ")
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "503")
}
