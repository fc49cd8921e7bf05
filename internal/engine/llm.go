package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anatolykoptev/go-kit/llm"
	"google.golang.org/genai"
)

// Generator calls the generative model with a transcript prompt or with audio.
// Rate limits are returned as *RateLimitError.
type Generator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	GenerateAudio(ctx context.Context, prompt string, audio Audio) (string, error)
}

// NewGenerator builds the generator selected by c.LLMProvider.
func NewGenerator(ctx context.Context, c Config) (Generator, error) {
	switch strings.ToLower(c.LLMProvider) {
	case "", "gemini", "genai":
		return NewGeminiGenerator(ctx, c)
	case "openai", "compat":
		return NewCompletionGenerator(c), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", c.LLMProvider)
	}
}

// --- Gemini (google.golang.org/genai) ---

// GeminiGenerator sends text or inline audio to the Gemini API.
type GeminiGenerator struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
}

func NewGeminiGenerator(ctx context.Context, c Config) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     c.LLMAPIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: c.PlatformTimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	model := c.LLMModel
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiGenerator{
		client:      client,
		model:       model,
		temperature: float32(c.LLMTemperature),
		maxTokens:   int32(c.LLMMaxTokens),
	}, nil
}

func (g *GeminiGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	return g.generate(ctx, []*genai.Part{genai.NewPartFromText(prompt)})
}

func (g *GeminiGenerator) GenerateAudio(ctx context.Context, prompt string, audio Audio) (string, error) {
	mime := audio.MIMEType
	if mime == "" {
		mime = "audio/webm"
	}
	return g.generate(ctx, []*genai.Part{
		genai.NewPartFromBytes(audio.Data, mime),
		genai.NewPartFromText(prompt),
	})
}

func (g *GeminiGenerator) generate(ctx context.Context, parts []*genai.Part) (string, error) {
	metrics.LLMCalls.Add(1)
	conf := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr(g.temperature),
	}
	if g.maxTokens > 0 {
		conf.MaxOutputTokens = g.maxTokens
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, conf)
	if err != nil {
		metrics.LLMErrors.Add(1)
		return "", classifyGenAIError(err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		metrics.LLMErrors.Add(1)
		return "", errors.New("gemini: empty response")
	}
	return text, nil
}

// classifyGenAIError turns quota responses into *RateLimitError, reading the
// RetryInfo detail for the cooldown.
func classifyGenAIError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		if rl, ok := ClassifyRateLimit(err); ok {
			return rl
		}
		return fmt.Errorf("gemini: %w", err)
	}
	if apiErr.Code != http.StatusTooManyRequests && !strings.EqualFold(apiErr.Status, "RESOURCE_EXHAUSTED") {
		return fmt.Errorf("gemini: %w", err)
	}
	cooldown := retryInfoDelay(apiErr.Details)
	if cooldown == 0 {
		cooldown = ParseRetryDelay(apiErr.Message)
	}
	if cooldown == 0 {
		cooldown = DefaultCooldown
	}
	return &RateLimitError{Cooldown: cooldown, Cause: err}
}

func retryInfoDelay(details []map[string]any) time.Duration {
	for _, d := range details {
		t, _ := d["@type"].(string)
		if !strings.HasSuffix(t, "RetryInfo") {
			continue
		}
		raw, _ := d["retryDelay"].(string)
		if dur, err := time.ParseDuration(raw); err == nil && dur > 0 {
			return clampCooldown(dur)
		}
	}
	return 0
}

// --- OpenAI-compatible completion (go-kit/llm) ---

// CompletionGenerator uses an OpenAI-compatible chat endpoint. Text only.
type CompletionGenerator struct {
	client      *llm.Client
	temperature float64
	maxTokens   int
}

func NewCompletionGenerator(c Config) *CompletionGenerator {
	return &CompletionGenerator{
		client: llm.NewClient(c.LLMAPIBase, c.LLMAPIKey, c.LLMModel,
			llm.WithFallbackKeys(c.LLMAPIKeyFallbacks),
			llm.WithMaxTokens(c.LLMMaxTokens),
			llm.WithTemperature(c.LLMTemperature),
			llm.WithHTTPClient(&http.Client{Timeout: c.PlatformTimeout}),
		),
		temperature: c.LLMTemperature,
		maxTokens:   c.LLMMaxTokens,
	}
}

func (g *CompletionGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	metrics.LLMCalls.Add(1)
	resp, err := g.client.Complete(ctx, "", prompt,
		llm.WithChatTemperature(g.temperature),
		llm.WithChatMaxTokens(g.maxTokens),
	)
	if err != nil {
		metrics.LLMErrors.Add(1)
		if rl, ok := ClassifyRateLimit(err); ok {
			return "", rl
		}
		return "", fmt.Errorf("completion: %w", err)
	}
	return resp, nil
}

func (g *CompletionGenerator) GenerateAudio(context.Context, string, Audio) (string, error) {
	return "", ErrAudioUnsupported
}
