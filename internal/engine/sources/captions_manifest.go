package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v5"

	"github.com/anatolykoptev/go_vidsum/internal/engine"
)

// ManifestCaptions reads the caption track list from the watch page player
// response and downloads the chosen track as timedtext XML.
// Fallbacks: ANDROID Innertube /player, then WEB /next → /get_transcript.
type ManifestCaptions struct {
	HTTPClient *http.Client
	Browser    *engine.BrowserClient // optional; used for the watch page
	Languages  []string
	baseURL    string
}

func NewManifestCaptions(hc *http.Client, bc *engine.BrowserClient, langs []string) *ManifestCaptions {
	return &ManifestCaptions{HTTPClient: httpClient(hc), Browser: bc, Languages: langs, baseURL: ytBaseURL}
}

func (m *ManifestCaptions) Name() string { return "captions-manifest" }

func (m *ManifestCaptions) AcquireTranscript(ctx context.Context, id engine.VideoID) engine.Outcome[engine.Transcript] {
	steps := []struct {
		name string
		fn   func(context.Context, engine.VideoID) (engine.Transcript, error)
	}{
		{"page", m.viaWatchPage},
		{"player", m.viaPlayer},
		{"engagement-panel", m.viaEngagementPanel},
	}

	var errs []error
	for _, s := range steps {
		tr, err := s.fn(ctx, id)
		if err == nil {
			tr.Source = m.Name()
			return engine.Succeeded(tr)
		}
		slog.Warn("captions manifest step failed", slog.String("step", s.name),
			slog.String("id", string(id)), slog.Any("err", err))
		errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		if ctx.Err() != nil {
			break
		}
	}
	err := errors.Join(errs...)
	if allNoCaptions(errs) {
		return engine.Unavailable[engine.Transcript](err)
	}
	return engine.Failed[engine.Transcript](err)
}

func allNoCaptions(errs []error) bool {
	if len(errs) == 0 {
		return false
	}
	for _, e := range errs {
		if !errors.Is(e, engine.ErrNoCaptions) {
			return false
		}
	}
	return true
}

// ytInitialPlayerResponseMarker marks the start of the player response JSON in watch page HTML.
const ytInitialPlayerResponseMarker = "ytInitialPlayerResponse = "

func (m *ManifestCaptions) viaWatchPage(ctx context.Context, id engine.VideoID) (engine.Transcript, error) {
	body, err := m.fetchWatchPage(ctx, id)
	if err != nil {
		return engine.Transcript{}, err
	}
	raw, err := playerResponseFromHTML(body)
	if err != nil {
		return engine.Transcript{}, err
	}
	var pr playerResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return engine.Transcript{}, fmt.Errorf("decode ytInitialPlayerResponse: %w", err)
	}
	return m.fromTracks(ctx, pr)
}

func (m *ManifestCaptions) fetchWatchPage(ctx context.Context, id engine.VideoID) ([]byte, error) {
	watchURL := m.baseURL + "/watch?v=" + url.QueryEscape(string(id))

	if m.Browser != nil {
		data, status, err := engine.BrowserGet(m.Browser, watchURL, map[string]string{
			"accept-language": "en-US,en;q=0.9",
		})
		if err == nil && status == http.StatusOK {
			return data, nil
		}
		slog.Debug("watch page via browser client failed, using http", slog.Int("status", status), slog.Any("err", err))
	}

	resp, err := engine.RetryHTTP(ctx, engine.DefaultRetryConfig, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, watchURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", engine.RandomUserAgent())
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		return m.HTTPClient.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("watch page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, "watch page")
	}
	return io.ReadAll(io.LimitReader(resp.Body, 6*1024*1024))
}

// playerResponseFromHTML finds the <script> holding ytInitialPlayerResponse
// and returns the JSON object.
func playerResponseFromHTML(body []byte) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("goquery parse: %w", err)
	}
	var found []byte
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		idx := strings.Index(text, ytInitialPlayerResponseMarker)
		if idx < 0 {
			return true
		}
		found = extractJSON([]byte(text[idx+len(ytInitialPlayerResponseMarker):]))
		return found == nil
	})
	if found == nil {
		return nil, errors.New("ytInitialPlayerResponse not found in watch page")
	}
	return found, nil
}

func (m *ManifestCaptions) viaPlayer(ctx context.Context, id engine.VideoID) (engine.Transcript, error) {
	data, err := postInnertube(ctx, m.HTTPClient, m.baseURL+ytPlayerPath, innertubeReq{
		VideoID: string(id),
		Context: innertubeCtx{Client: innertubeClient{
			ClientName:        "ANDROID",
			ClientVersion:     ytAndroidVersion,
			AndroidSdkVersion: 30,
			Hl:                "en",
			Gl:                "US",
		}},
		RacyCheckOk:    true,
		ContentCheckOk: true,
	}, "", true)
	if err != nil {
		return engine.Transcript{}, err
	}
	var pr playerResponse
	if err := json.Unmarshal(data, &pr); err != nil {
		return engine.Transcript{}, fmt.Errorf("decode player: %w", err)
	}
	return m.fromTracks(ctx, pr)
}

func (m *ManifestCaptions) fromTracks(ctx context.Context, pr playerResponse) (engine.Transcript, error) {
	tracks, err := pr.tracks()
	if err != nil {
		return engine.Transcript{}, err
	}
	track := pickTrack(tracks, m.Languages)
	segs, err := fetchTimedText(ctx, m.HTTPClient, track.BaseURL)
	if err != nil {
		return engine.Transcript{}, err
	}
	return engine.Transcript{Segments: segs, Language: track.LanguageCode}, nil
}

// getTranscriptRE extracts the continuation token from a raw /next JSON response.
var getTranscriptRE = regexp.MustCompile(`"getTranscriptEndpoint":\{"params":"([^"]+)"`)

func extractTranscriptToken(data []byte) (string, error) {
	m := getTranscriptRE.FindSubmatch(data)
	if len(m) < 2 {
		return "", fmt.Errorf("%w: getTranscriptEndpoint not in engagement panels", engine.ErrNoCaptions)
	}
	// /next returns the params URL-encoded; /get_transcript wants raw base64.
	if decoded, err := url.QueryUnescape(string(m[1])); err == nil {
		return decoded, nil
	}
	return string(m[1]), nil
}

func (m *ManifestCaptions) viaEngagementPanel(ctx context.Context, id engine.VideoID) (engine.Transcript, error) {
	visitor := generateVisitorData()
	nextData, err := postInnertube(ctx, m.HTTPClient, m.baseURL+ytNextPath, map[string]any{
		"videoId": string(id),
		"context": map[string]any{"client": webClient(visitor)},
	}, visitor, false)
	if err != nil {
		return engine.Transcript{}, fmt.Errorf("/next: %w", err)
	}
	token, err := extractTranscriptToken(nextData)
	if err != nil {
		return engine.Transcript{}, err
	}
	data, err := postInnertube(ctx, m.HTTPClient, m.baseURL+ytGetTranscriptPath, map[string]any{
		"params":  token,
		"context": map[string]any{"client": webClient(visitor)},
	}, visitor, false)
	if err != nil {
		return engine.Transcript{}, fmt.Errorf("/get_transcript: %w", err)
	}
	var resp ytGetTranscriptResp
	if err := json.Unmarshal(data, &resp); err != nil {
		return engine.Transcript{}, fmt.Errorf("decode transcript: %w", err)
	}
	segs := panelSegments(resp)
	if len(segs) == 0 {
		return engine.Transcript{}, fmt.Errorf("%w: empty transcript panel", engine.ErrNoCaptions)
	}
	return engine.Transcript{Segments: segs}, nil
}

func panelSegments(resp ytGetTranscriptResp) []string {
	var out []string
	for _, action := range resp.Actions {
		if action.UpdateEngagementPanelAction == nil {
			continue
		}
		segs := action.UpdateEngagementPanelAction.Content.
			TranscriptRenderer.Content.
			TranscriptSearchPanelRenderer.Body.
			TranscriptSegmentListRenderer.InitialSegments
		for _, seg := range segs {
			if seg.TranscriptSegmentRenderer == nil {
				continue
			}
			var sb strings.Builder
			for _, run := range seg.TranscriptSegmentRenderer.Snippet.Runs {
				sb.WriteString(run.Text)
			}
			if text := engine.CollapseSpace(sb.String()); text != "" {
				out = append(out, text)
			}
		}
	}
	return out
}

// needsPoToken reports whether a caption track URL requires a PoToken (browser-only).
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

// pickTrack prefers a manual track in a preferred language, then an
// auto-generated one, then any English track, then the first track.
// Tracks needing a PoToken are skipped unless nothing else exists.
func pickTrack(tracks []captionTrack, langs []string) captionTrack {
	usable := make([]captionTrack, 0, len(tracks))
	for _, t := range tracks {
		if !needsPoToken(t.BaseURL) {
			usable = append(usable, t)
		}
	}
	if len(usable) == 0 {
		usable = tracks
	}
	for _, lang := range langs {
		for _, t := range usable {
			if t.LanguageCode == lang && t.Kind != "asr" {
				return t
			}
		}
	}
	for _, lang := range langs {
		for _, t := range usable {
			if t.LanguageCode == lang {
				return t
			}
		}
	}
	for _, t := range usable {
		if strings.HasPrefix(t.LanguageCode, "en") {
			return t
		}
	}
	return usable[0]
}

// fetchTimedText downloads a timedtext XML track and returns its cleaned lines.
func fetchTimedText(ctx context.Context, hc *http.Client, baseURL string) ([]string, error) {
	operation := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", engine.UserAgentChrome)
		resp, err := hc.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if engine.IsRetryableStatus(resp.StatusCode) {
			return nil, fmt.Errorf("timedtext status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, backoff.Permanent(fmt.Errorf("timedtext status %d", resp.StatusCode))
		}
		return io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 4 * time.Second
	body, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(3), backoff.WithMaxElapsedTime(10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("fetch timedtext: %w", err)
	}
	return parseTimedText(body)
}

func parseTimedText(body []byte) ([]string, error) {
	var tt ytTimedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return nil, fmt.Errorf("parse timedtext XML: %w", err)
	}
	lines := make([]string, 0, len(tt.Lines))
	for _, l := range tt.Lines {
		if text := engine.StripTags(l.Text); text != "" {
			lines = append(lines, text)
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: empty timedtext", engine.ErrNoCaptions)
	}
	return lines, nil
}

// extractJSON returns the JSON object starting at b[0] == '{' by tracking brace depth.
func extractJSON(b []byte) []byte {
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	depth := 0
	inStr, escaped := false, false
	for i, c := range b {
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return b[:i+1]
			}
		}
	}
	return nil
}
