// go_vidsum summarizes YouTube videos with a generative model.
//
// Serves the REST endpoint POST /api/summarize and the MCP tool
// video_summarize. Captions are preferred; audio is the fallback.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-mcpserver"
	stealth "github.com/anatolykoptev/go-stealth"
	"github.com/anatolykoptev/go-stealth/proxypool"
	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_vidsum/internal/engine"
	"github.com/anatolykoptev/go_vidsum/internal/engine/sources"
	"github.com/anatolykoptev/go_vidsum/internal/vidserver"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	mcpPort := env.Str("MCP_PORT", "8891")
	apiPort := env.Str("API_PORT", "8892")

	c := loadConfig()
	engine.Init(c)
	c = *engine.Cfg

	if !c.HasCredential() {
		slog.Warn("LLM_API_KEY not set; every request will fail with credential_missing")
	}

	pipeline, err := buildPipeline(context.Background(), c)
	if err != nil {
		slog.Error("pipeline init failed", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("starting go_vidsum",
		slog.String("mcp_port", mcpPort),
		slog.String("api_port", apiPort),
		slog.String("provider", c.LLMProvider),
		slog.String("model", c.LLMModel),
	)

	api := &http.Server{
		Addr: ":" + apiPort,
		Handler: vidserver.NewHandler(pipeline, vidserver.HandlerConfig{
			Timeout:        c.PlatformTimeout,
			RequestsPerMin: env.Float("API_RATE_PER_MIN", 30),
			Burst:          env.Int("API_RATE_BURST", 5),
		}),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      c.PlatformTimeout + 10*time.Second,
	}
	go func() {
		if err := api.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("REST server failed", slog.Any("error", err))
		}
	}()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "go_vidsum",
		Version: version,
	}, nil)
	vidserver.RegisterTools(server, pipeline, c.PlatformTimeout)

	if err := mcpserver.Run(server, mcpserver.Config{
		Name:         "go_vidsum",
		Version:      version,
		Port:         mcpPort,
		WriteTimeout: c.PlatformTimeout + 10*time.Second,
		Metrics:      engine.FormatMetrics,
	}); err != nil {
		slog.Error("server failed", slog.Any("error", err))
	}
}

func loadConfig() engine.Config {
	c := engine.Config{
		LLMProvider:         env.Str("LLM_PROVIDER", "gemini"),
		LLMAPIKey:           env.Str("LLM_API_KEY", env.Str("GEMINI_API_KEY", "")),
		LLMAPIKeyFallbacks:  env.List("LLM_API_KEY_FALLBACKS", ""),
		LLMAPIBase:          env.Str("LLM_API_BASE", "https://generativelanguage.googleapis.com/v1beta/openai"),
		LLMModel:            env.Str("LLM_MODEL", "gemini-2.5-flash"),
		LLMTemperature:      env.Float("LLM_TEMPERATURE", 0.2),
		LLMMaxTokens:        env.Int("LLM_MAX_TOKENS", 8192),
		MaxAudioBytes:       int64(env.Int("MAX_AUDIO_BYTES", engine.DefaultMaxAudioBytes)),
		MinTranscriptChars:  env.Int("MIN_TRANSCRIPT_CHARS", engine.DefaultMinTranscriptChars),
		PromptBudget:        env.Int("PROMPT_BUDGET", engine.DefaultPromptBudget),
		AudioTimeout:        env.Duration("AUDIO_TIMEOUT", engine.DefaultAudioTimeout),
		TranscriptTimeout:   env.Duration("TRANSCRIPT_TIMEOUT", 15*time.Second),
		PlatformTimeout:     env.Duration("PLATFORM_TIMEOUT", engine.DefaultPlatformTimeout),
		YtDlpPath:           env.Str("YTDLP_PATH", "yt-dlp"),
		TranscriptLanguages: env.List("TRANSCRIPT_LANGUAGES", "en"),
		TranscriptRoster:    env.List("TRANSCRIPT_ACQUIRERS", ""),
		AudioRoster:         env.List("AUDIO_ACQUIRERS", ""),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     60 * time.Second,
			},
		},
	}

	var opts []stealth.ClientOption
	opts = append(opts, stealth.WithTimeout(15))

	if apiKey := env.Str("WEBSHARE_API_KEY", ""); apiKey != "" {
		pool, err := proxypool.NewWebshare(apiKey)
		if err != nil {
			slog.Warn("proxy pool init failed, running without proxy", slog.Any("error", err))
		} else {
			opts = append(opts, stealth.WithProxyPool(pool))
			slog.Info("proxy pool initialized", slog.Int("proxies", pool.Len()))
		}
	}

	bc, err := stealth.NewClient(opts...)
	if err != nil {
		slog.Warn("stealth client init failed, watch pages use the plain client", slog.Any("error", err))
	} else {
		c.BrowserClient = bc
		slog.Info("stealth browser client initialized")
	}
	return c
}

func buildPipeline(ctx context.Context, c engine.Config) (*engine.Pipeline, error) {
	// Without a key the pipeline rejects requests before generation.
	var gen engine.Generator
	if c.HasCredential() {
		var err error
		if gen, err = engine.NewGenerator(ctx, c); err != nil {
			return nil, err
		}
	}
	transcripts, err := sources.TranscriptAcquirers(c)
	if err != nil {
		return nil, err
	}
	audio, err := sources.AudioAcquirers(c)
	if err != nil {
		return nil, err
	}
	slog.Info("acquirers ready",
		slog.Int("transcript", len(transcripts)),
		slog.Int("audio", len(audio)))
	return engine.NewPipeline(c, gen, transcripts, audio), nil
}
