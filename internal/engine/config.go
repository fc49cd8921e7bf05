package engine

import (
	"net/http"
	"time"
)

// Size and time budgets shared by the acquirers and the pipeline.
const (
	DefaultMaxAudioBytes      = 19 << 20
	DefaultMinTranscriptChars = 100
	DefaultPromptBudget       = 18000
	DefaultAudioTimeout       = 45 * time.Second
	DefaultPlatformTimeout    = 60 * time.Second

	minAudioTimeout = 30 * time.Second
	maxAudioTimeout = 45 * time.Second
	minPromptBudget = 15000
	maxPromptBudget = 20000
)

// Config holds all engine configuration, injected from main.
type Config struct {
	LLMProvider        string // "gemini" (default) or "openai"
	LLMAPIKey          string
	LLMAPIKeyFallbacks []string
	LLMAPIBase         string
	LLMModel           string
	LLMTemperature     float64
	LLMMaxTokens       int

	MaxAudioBytes      int64
	MinTranscriptChars int
	PromptBudget       int
	AudioTimeout       time.Duration
	TranscriptTimeout  time.Duration
	PlatformTimeout    time.Duration

	YtDlpPath           string
	TranscriptLanguages []string
	TranscriptRoster    []string
	AudioRoster         []string

	HTTPClient    *http.Client
	BrowserClient *BrowserClient // nil = watch page fetched with HTTPClient
}

var cfg Config

// Cfg exposes the engine configuration for sub-packages (sources).
// Always points to the current cfg value.
var Cfg = &cfg

// Init initializes the engine with the given configuration.
func Init(c Config) {
	cfg = c.WithDefaults()
	Cfg = &cfg
}

// HasCredential reports whether a model API key is configured.
func (c Config) HasCredential() bool {
	return c.LLMAPIKey != ""
}

// WithDefaults fills zero values and clamps budgets into their allowed ranges.
func (c Config) WithDefaults() Config {
	if c.MaxAudioBytes <= 0 {
		c.MaxAudioBytes = DefaultMaxAudioBytes
	}
	if c.MinTranscriptChars <= 0 {
		c.MinTranscriptChars = DefaultMinTranscriptChars
	}
	switch {
	case c.PromptBudget <= 0:
		c.PromptBudget = DefaultPromptBudget
	case c.PromptBudget < minPromptBudget:
		c.PromptBudget = minPromptBudget
	case c.PromptBudget > maxPromptBudget:
		c.PromptBudget = maxPromptBudget
	}
	switch {
	case c.AudioTimeout <= 0:
		c.AudioTimeout = DefaultAudioTimeout
	case c.AudioTimeout < minAudioTimeout:
		c.AudioTimeout = minAudioTimeout
	case c.AudioTimeout > maxAudioTimeout:
		c.AudioTimeout = maxAudioTimeout
	}
	if c.TranscriptTimeout <= 0 {
		c.TranscriptTimeout = 15 * time.Second
	}
	if c.PlatformTimeout <= 0 || c.PlatformTimeout > DefaultPlatformTimeout {
		c.PlatformTimeout = DefaultPlatformTimeout
	}
	if c.YtDlpPath == "" {
		c.YtDlpPath = "yt-dlp"
	}
	if len(c.TranscriptLanguages) == 0 {
		c.TranscriptLanguages = []string{"en"}
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	return c
}
