// Package llm generates answers over retrieved document context with a
// local ollama model or any OpenAI-compatible endpoint.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"docqa/internal/config"
	"docqa/internal/models"
)

var thinkRe = regexp.MustCompile(models.ThinkTag)

// preferredModels is the auto-selection order when no model is configured.
var preferredModels = []string{"llama3", "llama2", "mistral", "phi", "gemma", "orca"}

// Client holds the chat endpoint configuration and the active model. The
// model can be switched at runtime; reads and writes are mutex-guarded.
type Client struct {
	cfg config.LLMConfig

	mu    sync.RWMutex
	model string
}

func NewClient(cfg config.LLMConfig) *Client {
	return &Client{cfg: cfg, model: cfg.Model}
}

func (c *Client) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

func (c *Client) SetModel(name string) {
	c.mu.Lock()
	c.model = name
	c.mu.Unlock()
	log.Info().Str("model", name).Msg("Switched model")
}

// BaseURL exposes the chat endpoint root for status reporting.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

// Available lists the models installed on the chat endpoint.
func (c *Client) Available(ctx context.Context) ([]string, error) {
	return ListModels(ctx, c.cfg.BaseURL)
}

// EnsureModel resolves the active model, auto-selecting from the locally
// available ones when the config names none. It returns the chosen model.
func (c *Client) EnsureModel(ctx context.Context) (string, error) {
	if m := c.Model(); m != "" {
		return m, nil
	}
	if c.cfg.Provider == "openai" {
		return "", fmt.Errorf("chat_llm.model is required for the openai provider")
	}

	available, err := ListModels(ctx, c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("failed to list models: %w", err)
	}
	chosen := ChooseDefault(available)
	if chosen == "" {
		return "", fmt.Errorf("no models available; install one with 'ollama pull <model_name>'")
	}
	c.SetModel(chosen)
	return chosen, nil
}

// Generate sends one prompt and returns the model's answer with reasoning
// tags stripped.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	model := c.Model()
	if model == "" {
		return "", fmt.Errorf("no model configured")
	}

	llm, err := c.newModel(model)
	if err != nil {
		return "", err
	}

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: prompt}},
		},
	}

	resp, err := llm.GenerateContent(ctx, messages,
		llms.WithTemperature(0.2),
		llms.WithMaxTokens(2048),
		llms.WithTopK(40),
		llms.WithTopP(0.95),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}

	answer := thinkRe.ReplaceAllString(resp.Choices[0].Content, "")
	return strings.TrimSpace(answer), nil
}

func (c *Client) newModel(model string) (llms.Model, error) {
	switch c.cfg.Provider {
	case "", "ollama":
		llm, err := ollama.New(
			ollama.WithServerURL(c.cfg.BaseURL),
			ollama.WithModel(model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama LLM: %w", err)
		}
		return llm, nil
	case "openai":
		llm, err := openai.New(
			openai.WithBaseURL(c.cfg.BaseURL),
			openai.WithToken(strings.TrimPrefix(c.cfg.Key, "Bearer ")),
			openai.WithModel(model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai LLM: %w", err)
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("unknown chat provider: %s", c.cfg.Provider)
	}
}

// tagsResponse is ollama's /api/tags payload.
type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels asks the ollama server which models are installed.
func ListModels(ctx context.Context, baseURL string) ([]string, error) {
	url := strings.TrimSuffix(baseURL, "/") + "/api/tags"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model listing returned status %d", resp.StatusCode)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to decode model listing: %w", err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		if m.Name != "" {
			names = append(names, m.Name)
		}
	}
	return names, nil
}

// ChooseDefault picks the best installed model by preference order, falling
// back to the first available.
func ChooseDefault(available []string) string {
	for _, preferred := range preferredModels {
		for _, m := range available {
			if strings.Contains(strings.ToLower(m), preferred) {
				return m
			}
		}
	}
	if len(available) > 0 {
		return available[0]
	}
	return ""
}
