package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	SummarizeRequests  atomic.Int64
	SummarizeErrors    atomic.Int64
	RateLimited        atomic.Int64
	DegradedResults    atomic.Int64
	MalformedOutputs   atomic.Int64
	LLMCalls           atomic.Int64
	LLMErrors          atomic.Int64
	TranscriptAttempts atomic.Int64
	TranscriptHits     atomic.Int64
	AudioAttempts      atomic.Int64
	AudioHits          atomic.Int64
	AudioTooLarge      atomic.Int64
	SubprocessRuns     atomic.Int64
}

// GetMetrics returns a snapshot of all metrics.
func GetMetrics() map[string]int64 {
	return map[string]int64{
		"summarize_requests":  metrics.SummarizeRequests.Load(),
		"summarize_errors":    metrics.SummarizeErrors.Load(),
		"rate_limited":        metrics.RateLimited.Load(),
		"degraded_results":    metrics.DegradedResults.Load(),
		"malformed_outputs":   metrics.MalformedOutputs.Load(),
		"llm_calls":           metrics.LLMCalls.Load(),
		"llm_errors":          metrics.LLMErrors.Load(),
		"transcript_attempts": metrics.TranscriptAttempts.Load(),
		"transcript_hits":     metrics.TranscriptHits.Load(),
		"audio_attempts":      metrics.AudioAttempts.Load(),
		"audio_hits":          metrics.AudioHits.Load(),
		"audio_too_large":     metrics.AudioTooLarge.Load(),
		"subprocess_runs":     metrics.SubprocessRuns.Load(),
	}
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	keys := []string{
		"summarize_requests", "summarize_errors", "rate_limited",
		"degraded_results", "malformed_outputs",
		"llm_calls", "llm_errors",
		"transcript_attempts", "transcript_hits",
		"audio_attempts", "audio_hits", "audio_too_large",
		"subprocess_runs",
	}
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

// IncrSubprocessRuns is called by sources before starting an extraction tool.
func IncrSubprocessRuns() { metrics.SubprocessRuns.Add(1) }

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > 5*time.Second {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
