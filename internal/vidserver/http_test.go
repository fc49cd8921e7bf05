package vidserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_vidsum/internal/engine"
	"github.com/anatolykoptev/go_vidsum/internal/toolutil"
)

type summarizerFunc func(ctx context.Context, ref string) (*engine.Result, error)

func (f summarizerFunc) Summarize(ctx context.Context, ref string) (*engine.Result, error) {
	return f(ctx, ref)
}

func okSummarizer(t *testing.T, wantRef string) Summarizer {
	return summarizerFunc(func(_ context.Context, ref string) (*engine.Result, error) {
		require.Equal(t, wantRef, ref)
		return &engine.Result{
			Summary:    "A talk about Go.",
			Notes:      "- goroutines\n- channels",
			Transcript: "hello and welcome",
			Source:     "captions-api",
			Mode:       engine.ModeTranscript,
		}, nil
	})
}

func errSummarizer(err error) Summarizer {
	return summarizerFunc(func(context.Context, string) (*engine.Result, error) { return nil, err })
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/summarize", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) toolutil.ErrorBody {
	t.Helper()
	var eb toolutil.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &eb))
	return eb
}

func TestSummarize_OK(t *testing.T) {
	h := NewHandler(okSummarizer(t, "https://youtu.be/dQw4w9WgXcQ"), HandlerConfig{Timeout: time.Second})

	for _, body := range []string{
		`{"videoReference":"https://youtu.be/dQw4w9WgXcQ"}`,
		`{"url":"https://youtu.be/dQw4w9WgXcQ"}`,
	} {
		rec := post(t, h, body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

		var res engine.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		require.Equal(t, "A talk about Go.", res.Summary)
		require.Equal(t, "hello and welcome", res.Transcript)
		require.Equal(t, engine.ModeTranscript, res.Mode)
	}
}

func TestSummarize_BadInput(t *testing.T) {
	h := NewHandler(errSummarizer(errors.New("must not be called")), HandlerConfig{})
	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty body", ``, msgBadBody},
		{"not json", `videoReference=abc`, msgBadBody},
		{"missing field", `{}`, msgMissingReference},
		{"blank field", `{"videoReference":"   "}`, msgMissingReference},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, h, tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t, tt.want, decodeError(t, rec).Error)
		})
	}
}

func TestSummarize_ErrorKinds(t *testing.T) {
	tests := []struct {
		kind   engine.Kind
		status int
	}{
		{engine.KindInvalidReference, http.StatusBadRequest},
		{engine.KindCredentialMissing, http.StatusInternalServerError},
		{engine.KindAcquisitionExhausted, http.StatusInternalServerError},
		{engine.KindAudioTooLarge, http.StatusInternalServerError},
		{engine.KindGenerationFailed, http.StatusInternalServerError},
		{engine.KindTimeout, http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := &engine.Error{Kind: tt.kind, Message: "user message", Err: errors.New("upstream secret detail")}
			rec := post(t, NewHandler(errSummarizer(err), HandlerConfig{}), `{"videoReference":"x"}`)
			require.Equal(t, tt.status, rec.Code)
			require.Equal(t, "user message", decodeError(t, rec).Error)
			require.NotContains(t, rec.Body.String(), "upstream secret detail")
		})
	}
}

func TestSummarize_RateLimited(t *testing.T) {
	err := &engine.Error{
		Kind:       engine.KindRateLimited,
		Message:    "The model is rate limited. Retrying in 12 seconds.",
		Cooldown:   11200 * time.Millisecond,
		Transcript: "partial transcript",
	}
	rec := post(t, NewHandler(errSummarizer(err), HandlerConfig{}), `{"videoReference":"x"}`)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "12", rec.Header().Get("Retry-After"))
	eb := decodeError(t, rec)
	require.Equal(t, 12, eb.RetryAfter)
	require.Equal(t, "partial transcript", eb.Transcript)
}

func TestSummarize_Deadline(t *testing.T) {
	slow := summarizerFunc(func(ctx context.Context, _ string) (*engine.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	rec := post(t, NewHandler(slow, HandlerConfig{Timeout: 20 * time.Millisecond}), `{"videoReference":"x"}`)
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	require.Equal(t, msgTimeout, decodeError(t, rec).Error)
}

func TestSummarize_UnknownErrorHidden(t *testing.T) {
	rec := post(t, NewHandler(errSummarizer(errors.New("dial tcp 10.0.0.1: refused")), HandlerConfig{}), `{"videoReference":"x"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, msgInternal, decodeError(t, rec).Error)
}

func TestSummarize_ClientRateLimit(t *testing.T) {
	h := NewHandler(okSummarizer(t, "x"), HandlerConfig{RequestsPerMin: 1, Burst: 1})

	require.Equal(t, http.StatusOK, post(t, h, `{"videoReference":"x"}`).Code)
	rec := post(t, h, `{"videoReference":"x"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))
	require.Equal(t, 1, decodeError(t, rec).RetryAfter)
}

func TestRequestID_Echoed(t *testing.T) {
	h := NewHandler(okSummarizer(t, "x"), HandlerConfig{})
	req := httptest.NewRequest(http.MethodPost, "/api/summarize", strings.NewReader(`{"videoReference":"x"}`))
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestMetricsAndMethods(t *testing.T) {
	h := NewHandler(okSummarizer(t, "x"), HandlerConfig{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "summarize_requests ")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/summarize", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestClientLimiter_Prunes(t *testing.T) {
	l := newClientLimiter(60, 1)
	base := time.Now()
	l.now = func() time.Time { return base }
	require.True(t, l.allow("10.0.0.1"))
	require.False(t, l.allow("10.0.0.1"))

	l.now = func() time.Time { return base.Add(2 * time.Second) }
	require.True(t, l.allow("10.0.0.1"))

	l.now = func() time.Time { return base.Add(time.Hour) }
	l.mu.Lock()
	l.pruneLocked(l.now())
	n := len(l.clients)
	l.mu.Unlock()
	require.Zero(t, n)
}

func TestRetrySeconds(t *testing.T) {
	require.Equal(t, 1, retrySeconds(0))
	require.Equal(t, 1, retrySeconds(300*time.Millisecond))
	require.Equal(t, 30, retrySeconds(30*time.Second))
	require.Equal(t, 31, retrySeconds(30*time.Second+time.Millisecond))
}
