package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/kkdai/youtube/v2"

	"github.com/anatolykoptev/go_vidsum/internal/engine"
)

// CaptionsAPI asks the Innertube transcript endpoint for captions by id.
// Fast, but fails for many videos.
type CaptionsAPI struct {
	client    *youtube.Client
	Languages []string
}

func NewCaptionsAPI(hc *http.Client, langs []string) *CaptionsAPI {
	return &CaptionsAPI{client: &youtube.Client{HTTPClient: httpClient(hc)}, Languages: langs}
}

func (c *CaptionsAPI) Name() string { return "captions-api" }

func (c *CaptionsAPI) AcquireTranscript(ctx context.Context, id engine.VideoID) engine.Outcome[engine.Transcript] {
	video := &youtube.Video{ID: string(id)}
	var lastErr error
	for _, lang := range c.Languages {
		segs, err := c.client.GetTranscriptCtx(ctx, video, lang)
		if err != nil {
			lastErr = err
			if errors.Is(err, youtube.ErrTranscriptDisabled) {
				return engine.Unavailable[engine.Transcript](fmt.Errorf("%w: %v", engine.ErrNoCaptions, err))
			}
			continue
		}
		lines := make([]string, 0, len(segs))
		for _, s := range segs {
			if text := engine.StripTags(s.Text); text != "" {
				lines = append(lines, text)
			}
		}
		if len(lines) == 0 {
			lastErr = fmt.Errorf("%w: empty transcript for %q", engine.ErrNoCaptions, lang)
			continue
		}
		return engine.Succeeded(engine.Transcript{Segments: lines, Language: lang, Source: c.Name()})
	}
	if lastErr == nil {
		lastErr = errors.New("no languages configured")
	}
	return engine.Failed[engine.Transcript](classifyYouTubeError(lastErr))
}

// classifyYouTubeError keeps upstream 429s visible as rate-limit signals.
func classifyYouTubeError(err error) error {
	var status youtube.ErrUnexpectedStatusCode
	if errors.As(err, &status) && int(status) == http.StatusTooManyRequests {
		return &engine.RateLimitError{Cooldown: engine.DefaultCooldown, Cause: err}
	}
	return err
}
