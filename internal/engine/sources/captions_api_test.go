package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/anatolykoptev/go_vidsum/internal/engine"
)

// rewriteTransport sends every request to target, keeping path and query.
type rewriteTransport struct {
	target *url.URL
}

func (rt rewriteTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	r.Host = ""
	return http.DefaultTransport.RoundTrip(r)
}

// stubServer starts srv and returns a client that routes youtube.com to it.
func stubServer(t *testing.T, h http.Handler) (*httptest.Server, *http.Client) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	target, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	return srv, &http.Client{Transport: rewriteTransport{target: target}}
}

func transcriptSegment(startMs, endMs int, text string) string {
	return fmt.Sprintf(`{"transcriptSegmentRenderer":{"startMs":"%d","endMs":"%d",`+
		`"snippet":{"elementsAttributedString":{"content":%q}},`+
		`"startTimeText":{"elementsAttributedString":{"content":"0:00"}}}}`, startMs, endMs, text)
}

func transcriptBody(segments ...string) string {
	return `{"actions":[{"elementsCommand":{"transformEntityCommand":{"arguments":` +
		`{"transformTranscriptSegmentListArguments":{"overwrite":{"initialSegments":[` +
		strings.Join(segments, ",") + `]}}}}}}]}`
}

func TestCaptionsAPI_AcquireTranscript(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus engine.Status
		wantText   string
		check      func(t *testing.T, reason error)
	}{
		{
			name:   "segments",
			status: http.StatusOK,
			body: transcriptBody(
				transcriptSegment(0, 1500, "Welcome back"),
				transcriptSegment(1500, 3000, "today we talk about <b>Go</b>"),
				transcriptSegment(3000, 4000, "   "),
			),
			wantStatus: engine.StatusSuccess,
			wantText:   "Welcome back today we talk about Go",
		},
		{
			name:       "captions disabled",
			status:     http.StatusOK,
			body:       `{"actions":[]}`,
			wantStatus: engine.StatusUnavailable,
			check: func(t *testing.T, reason error) {
				if !errors.Is(reason, engine.ErrNoCaptions) {
					t.Errorf("reason = %v, want ErrNoCaptions", reason)
				}
			},
		},
		{
			name:       "throttled",
			status:     http.StatusTooManyRequests,
			wantStatus: engine.StatusFailed,
			check: func(t *testing.T, reason error) {
				rl, ok := engine.AsRateLimit(reason)
				if !ok {
					t.Fatalf("reason = %v, want a rate-limit signal", reason)
				}
				if rl.Cooldown != engine.DefaultCooldown {
					t.Errorf("cooldown = %v, want %v", rl.Cooldown, engine.DefaultCooldown)
				}
			},
		},
		{
			name:       "server error",
			status:     http.StatusInternalServerError,
			wantStatus: engine.StatusFailed,
			check: func(t *testing.T, reason error) {
				if _, ok := engine.AsRateLimit(reason); ok {
					t.Errorf("reason = %v classified as rate limit", reason)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			_, hc := stubServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/youtubei/v1/get_transcript" {
					http.NotFound(w, r)
					return
				}
				calls.Add(1)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))

			out := NewCaptionsAPI(hc, []string{"en"}).AcquireTranscript(context.Background(), "dQw4w9WgXcQ")
			if out.Status != tt.wantStatus {
				t.Fatalf("status = %v, want %v (reason %v)", out.Status, tt.wantStatus, out.Reason)
			}
			if n := calls.Load(); n != 1 {
				t.Errorf("transcript endpoint hit %d times, want 1", n)
			}
			if tt.wantText != "" {
				if got := out.Payload.Text(); got != tt.wantText {
					t.Errorf("text = %q, want %q", got, tt.wantText)
				}
				if out.Payload.Source != "captions-api" || out.Payload.Language != "en" {
					t.Errorf("source = %q, language = %q", out.Payload.Source, out.Payload.Language)
				}
			}
			if tt.check != nil {
				tt.check(t, out.Reason)
			}
		})
	}
}

func TestCaptionsAPI_TriesEachLanguage(t *testing.T) {
	var calls atomic.Int32
	_, hc := stubServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	out := NewCaptionsAPI(hc, []string{"de", "en"}).AcquireTranscript(context.Background(), "dQw4w9WgXcQ")
	if out.Status != engine.StatusFailed {
		t.Fatalf("status = %v, want failed", out.Status)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("calls = %d, want one per language", n)
	}
}
