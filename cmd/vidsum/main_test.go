package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_vidsum/internal/apiclient"
	"github.com/anatolykoptev/go_vidsum/internal/cooldown"
)

// limitedServer answers 429 until calls exceeds limitedFor, then 200.
func limitedServer(t *testing.T, limitedFor int32, retryAfter string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= limitedFor {
			w.Header().Set("Retry-After", retryAfter)
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"The model is rate limited.","retryAfter":` + retryAfter + `}`))
			return
		}
		w.Write([]byte(`{"summary":"Short summary.","notes":"- point one","mode":"transcript"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// captureStderr redirects status lines for the duration of the test.
func captureStderr(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := stderr
	stderr = &buf
	t.Cleanup(func() { stderr = prev })
	return &buf
}

// waitState polls from a helper goroutine, so it must not call FailNow.
func waitState(t *testing.T, ctl interface{ State() cooldown.State }, want cooldown.State) {
	t.Helper()
	assert.Eventually(t, func() bool { return ctl.State() == want }, 2*time.Second, 5*time.Millisecond)
}

func TestLoop_AutoRetryAfterCooldown(t *testing.T) {
	var calls atomic.Int32
	srv := limitedServer(t, 1, "1", &calls)
	ctl, events := newController(apiclient.New(srv.URL, srv.Client()))

	go ctl.Submit(context.Background(), "dQw4w9WgXcQ")

	var out bytes.Buffer
	err := loop(ctl, events, make(chan struct{}), make(chan os.Signal), &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "Short summary.")
	require.Equal(t, int32(2), calls.Load())
}

func TestLoop_EnterRetriesNow(t *testing.T) {
	var calls atomic.Int32
	srv := limitedServer(t, 1, "60", &calls)
	ctl, events := newController(apiclient.New(srv.URL, srv.Client()))

	go ctl.Submit(context.Background(), "dQw4w9WgXcQ")
	enter := make(chan struct{}, 1)
	go func() {
		waitState(t, ctl, cooldown.Cooldown)
		enter <- struct{}{}
	}()

	var out bytes.Buffer
	start := time.Now()
	require.NoError(t, loop(ctl, events, enter, make(chan os.Signal), &out))
	require.Less(t, time.Since(start), 10*time.Second)
	require.Contains(t, out.String(), "Short summary.")
	require.Equal(t, int32(2), calls.Load())
}

func TestLoop_InterruptCancelsRetry(t *testing.T) {
	var calls atomic.Int32
	srv := limitedServer(t, 1, "60", &calls)
	ctl, events := newController(apiclient.New(srv.URL, srv.Client()))

	go ctl.Submit(context.Background(), "dQw4w9WgXcQ")
	sigs := make(chan os.Signal, 1)
	go func() {
		waitState(t, ctl, cooldown.Cooldown)
		sigs <- os.Interrupt
	}()

	status := captureStderr(t)
	var out bytes.Buffer
	require.NoError(t, loop(ctl, events, make(chan struct{}), sigs, &out))
	require.Empty(t, out.String())
	require.Contains(t, status.String(), "→ retry cancelled")
	require.Equal(t, cooldown.Idle, ctl.State())
	require.Equal(t, int32(1), calls.Load())
}

func TestLoop_InterruptDuringFirstAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()
	ctl, events := newController(apiclient.New(srv.URL, srv.Client()))

	go ctl.Submit(context.Background(), "dQw4w9WgXcQ")
	sigs := make(chan os.Signal, 1)
	go func() {
		waitState(t, ctl, cooldown.Submitting)
		sigs <- os.Interrupt
	}()

	status := captureStderr(t)
	require.NoError(t, loop(ctl, events, make(chan struct{}), sigs, &bytes.Buffer{}))
	require.Contains(t, status.String(), "→ cancelled")
	require.NotContains(t, status.String(), "retry")
}

func TestLoop_CooldownShowsTranscriptExcerpt(t *testing.T) {
	transcript := strings.Repeat("word ", 1000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"The model is rate limited.","retryAfter":60,"transcript":"` + transcript + `"}`))
	}))
	defer srv.Close()
	ctl, events := newController(apiclient.New(srv.URL, srv.Client()))

	go ctl.Submit(context.Background(), "dQw4w9WgXcQ")
	sigs := make(chan os.Signal, 1)
	go func() {
		waitState(t, ctl, cooldown.Cooldown)
		sigs <- os.Interrupt
	}()

	captureStderr(t)
	var out bytes.Buffer
	require.NoError(t, loop(ctl, events, make(chan struct{}), sigs, &out))
	require.Contains(t, out.String(), "Transcript so far:\nword word")
	require.Contains(t, out.String(), "use --transcript")
	require.Less(t, out.Len(), len(transcript))
}

func TestLoop_FailureIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"Could not find a video id in that link."}`))
	}))
	defer srv.Close()
	ctl, events := newController(apiclient.New(srv.URL, srv.Client()))

	go ctl.Submit(context.Background(), "not a link")
	err := loop(ctl, events, make(chan struct{}), make(chan os.Signal), &bytes.Buffer{})

	var apiErr *apiclient.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.Status)
}
