package sources

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/anatolykoptev/go_vidsum/internal/engine"
)

// Default acquirer order.
var (
	DefaultTranscriptRoster = []string{"captions-api", "captions-manifest", "yt-dlp-subs"}
	DefaultAudioRoster      = []string{"yt-dlp-audio", "stream-download"}
)

// TranscriptAcquirers builds the transcript roster named in c.TranscriptRoster.
func TranscriptAcquirers(c engine.Config) ([]engine.TranscriptAcquirer, error) {
	names := c.TranscriptRoster
	if len(names) == 0 {
		names = DefaultTranscriptRoster
	}
	tool := NewYtDlp(c.YtDlpPath)
	out := make([]engine.TranscriptAcquirer, 0, len(names))
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "captions-api":
			out = append(out, NewCaptionsAPI(c.HTTPClient, c.TranscriptLanguages))
		case "captions-manifest":
			out = append(out, NewManifestCaptions(c.HTTPClient, c.BrowserClient, c.TranscriptLanguages))
		case "yt-dlp-subs":
			out = append(out, NewYtDlpSubtitles(tool, c.TranscriptLanguages))
		case "":
		default:
			return nil, fmt.Errorf("unknown transcript acquirer %q", n)
		}
	}
	return out, nil
}

// AudioAcquirers builds the audio roster named in c.AudioRoster.
func AudioAcquirers(c engine.Config) ([]engine.AudioAcquirer, error) {
	names := c.AudioRoster
	if len(names) == 0 {
		names = DefaultAudioRoster
	}
	tool := NewYtDlp(c.YtDlpPath)
	out := make([]engine.AudioAcquirer, 0, len(names))
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "yt-dlp-audio":
			out = append(out, NewYtDlpAudio(tool, c.MaxAudioBytes, c.AudioTimeout))
		case "stream-download":
			out = append(out, NewStreamAudio(c.HTTPClient, c.MaxAudioBytes, c.AudioTimeout))
		case "":
		default:
			return nil, fmt.Errorf("unknown audio acquirer %q", n)
		}
	}
	return out, nil
}

// httpClient falls back to the client installed by engine.Init.
func httpClient(hc *http.Client) *http.Client {
	if hc != nil {
		return hc
	}
	if engine.Cfg.HTTPClient != nil {
		return engine.Cfg.HTTPClient
	}
	return http.DefaultClient
}
