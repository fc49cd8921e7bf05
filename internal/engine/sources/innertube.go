package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"

	"github.com/anatolykoptev/go_vidsum/internal/engine"
)

// Innertube API: constants, wire types and the WEB/ANDROID request helpers.

const (
	ytBaseURL           = "https://www.youtube.com"
	ytPlayerPath        = "/youtubei/v1/player"
	ytNextPath          = "/youtubei/v1/next"
	ytGetTranscriptPath = "/youtubei/v1/get_transcript"
	ytWebVersion        = "2.20250222.10.00"
	ytAndroidVersion    = "20.10.38"
	ytAndroidUA         = "com.google.android.youtube/" + ytAndroidVersion + " (Linux; U; Android 11) gzip"
)

type innertubeReq struct {
	VideoID        string       `json:"videoId"`
	Context        innertubeCtx `json:"context"`
	RacyCheckOk    bool         `json:"racyCheckOk"`
	ContentCheckOk bool         `json:"contentCheckOk"`
}

type innertubeCtx struct {
	Client innertubeClient `json:"client"`
}

type innertubeClient struct {
	ClientName        string `json:"clientName"`
	ClientVersion     string `json:"clientVersion"`
	AndroidSdkVersion int    `json:"androidSdkVersion,omitempty"`
	VisitorData       string `json:"visitorData,omitempty"`
	Hl                string `json:"hl,omitempty"`
	Gl                string `json:"gl,omitempty"`
}

// playerResponse is the subset of ytInitialPlayerResponse / player JSON we read.
type playerResponse struct {
	Captions *struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
	PlayabilityStatus *struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
}

// tracks returns the caption tracks or a reason why there are none.
func (p playerResponse) tracks() ([]captionTrack, error) {
	if p.Captions == nil {
		if p.PlayabilityStatus != nil && p.PlayabilityStatus.Reason != "" {
			return nil, fmt.Errorf("%w: %s", engine.ErrNoCaptions, p.PlayabilityStatus.Reason)
		}
		return nil, engine.ErrNoCaptions
	}
	tracks := p.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
	if len(tracks) == 0 {
		return nil, engine.ErrNoCaptions
	}
	return tracks, nil
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"` // "asr" = auto-generated
}

type ytTimedText struct {
	Lines []ytLine `xml:"text"`
}

type ytLine struct {
	Text string `xml:",chardata"`
}

// ytGetTranscriptResp is the /get_transcript engagement panel payload.
type ytGetTranscriptResp struct {
	Actions []struct {
		UpdateEngagementPanelAction *struct {
			Content struct {
				TranscriptRenderer struct {
					Content struct {
						TranscriptSearchPanelRenderer struct {
							Body struct {
								TranscriptSegmentListRenderer struct {
									InitialSegments []struct {
										TranscriptSegmentRenderer *struct {
											Snippet struct {
												Runs []struct {
													Text string `json:"text"`
												} `json:"runs"`
											} `json:"snippet"`
										} `json:"transcriptSegmentRenderer"`
									} `json:"initialSegments"`
								} `json:"transcriptSegmentListRenderer"`
							} `json:"body"`
						} `json:"transcriptSearchPanelRenderer"`
					} `json:"content"`
				} `json:"transcriptRenderer"`
			} `json:"content"`
		} `json:"updateEngagementPanelAction"`
	} `json:"actions"`
}

// generateVisitorData creates a random 11-char visitor ID for Innertube requests.
func generateVisitorData() string {
	const chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	b := make([]byte, 11)
	for i := range b {
		b[i] = chars[rand.Intn(len(chars))] //nolint:gosec // non-cryptographic use
	}
	return string(b)
}

func webClient(visitorData string) innertubeClient {
	return innertubeClient{
		ClientName:    "WEB",
		ClientVersion: ytWebVersion,
		VisitorData:   visitorData,
		Hl:            "en",
		Gl:            "US",
	}
}

// postInnertube POSTs payload to an Innertube endpoint and returns the body.
// android selects the ANDROID client headers instead of WEB.
func postInnertube(ctx context.Context, hc *http.Client, endpoint string, payload any, visitorData string, android bool) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	resp, err := engine.RetryHTTP(ctx, engine.DefaultRetryConfig, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?prettyPrint=false", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if android {
			req.Header.Set("User-Agent", ytAndroidUA)
			req.Header.Set("X-Youtube-Client-Name", "3")
			req.Header.Set("X-Youtube-Client-Version", ytAndroidVersion)
		} else {
			req.Header.Set("Accept", "*/*")
			req.Header.Set("User-Agent", engine.UserAgentChrome)
			req.Header.Set("X-Youtube-Client-Name", "1")
			req.Header.Set("X-Youtube-Client-Version", ytWebVersion)
			req.Header.Set("X-Goog-Visitor-Id", visitorData)
			req.Header.Set("Origin", "https://www.youtube.com")
			req.Header.Set("Referer", "https://www.youtube.com/")
		}
		return hc.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("innertube [%s]: %w", endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, statusError(resp.StatusCode, string(snippet))
	}
	return io.ReadAll(io.LimitReader(resp.Body, 3*1024*1024))
}

// statusError maps an upstream status into an error, preserving rate limits.
func statusError(code int, snippet string) error {
	err := fmt.Errorf("HTTP %d: %s", code, snippet)
	if code == http.StatusTooManyRequests {
		return &engine.RateLimitError{Cooldown: engine.DefaultCooldown, Cause: err}
	}
	return err
}
