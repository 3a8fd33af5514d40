// Package enrich generates the reveal payload for a reflection using the
// OpenAI chat API: three short poems, three gentle tips, and a closing line.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/reveriehq/reverie/internal/emotion"
	"github.com/reveriehq/reverie/internal/models"
)

// ErrNoChoicesReturned indicates the chat API returned an empty choice list.
var ErrNoChoicesReturned = errors.New("no choices returned")

// chatService defines the minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// openaiChat adapts the real OpenAI client to chatService.
type openaiChat struct {
	client openai.Client
}

func (c openaiChat) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Opts holds configuration options for the enrichment client.
type Opts struct {
	APIKey string
	Model  string
}

// Option defines a configuration option for the enrichment client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the default chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// Client generates enrichment payloads through the chat API.
type Client struct {
	chat  chatService
	model openai.ChatModel
}

// NewClient creates an enrichment client. The API key falls back to the
// OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	model := openai.ChatModelGPT4oMini
	if cfg.Model != "" {
		model = openai.ChatModel(cfg.Model)
	}

	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Client{chat: openaiChat{client: cli}, model: model}, nil
}

const systemPrompt = `You are the night voice of a journaling app. A user has written a short
reflection before sleep. Respond with strict JSON, no prose around it:

{"poems": ["...", "...", "..."], "tips": ["...", "...", "..."], "closing_line": "..."}

- poems: three very short poems (2-4 lines each) that transform the
  reflection's imagery into something calm.
- tips: three one-sentence suggestions for tomorrow, each matched to the poem
  at the same position.
- closing_line: one sentence to carry into sleep.
- Leave an entry as an empty string if nothing good comes; never pad.`

// Generate produces an enrichment payload for the reflection. The detected
// emotion steers the prompt; the response is parsed tolerantly (code fences
// stripped) but must contain the JSON contract.
func (c *Client) Generate(ctx context.Context, r *models.Reflection) (models.EnrichmentPayload, error) {
	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt + emotion.BuildPromptGuide(r.Emotion)),
			openai.UserMessage(r.Text),
		},
	}

	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		return models.EnrichmentPayload{}, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return models.EnrichmentPayload{}, ErrNoChoicesReturned
	}
	return parsePayload(resp.Choices[0].Message.Content)
}

// wirePayload is the JSON shape the model is asked to produce.
type wirePayload struct {
	Poems       []string `json:"poems"`
	Tips        []string `json:"tips"`
	ClosingLine string   `json:"closing_line"`
}

// parsePayload extracts the payload from the raw model output. Models wrap
// JSON in code fences often enough that we cut to the outermost braces before
// unmarshalling.
func parsePayload(raw string) (models.EnrichmentPayload, error) {
	var payload models.EnrichmentPayload

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return payload, fmt.Errorf("no JSON object in model output: %q", truncate(raw, 80))
	}

	var wire wirePayload
	if err := json.Unmarshal([]byte(raw[start:end+1]), &wire); err != nil {
		return payload, fmt.Errorf("failed to parse model output: %w", err)
	}

	for i := 0; i < models.PayloadEntryCount && i < len(wire.Poems); i++ {
		payload.Poems[i] = strings.TrimSpace(wire.Poems[i])
	}
	for i := 0; i < models.PayloadEntryCount && i < len(wire.Tips); i++ {
		payload.Tips[i] = strings.TrimSpace(wire.Tips[i])
	}
	payload.ClosingLine = strings.TrimSpace(wire.ClosingLine)
	return payload, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
