package vidserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/anatolykoptev/go_vidsum/internal/engine"
	"github.com/anatolykoptev/go_vidsum/internal/toolutil"
)

const (
	msgMissingReference = "Provide a video link in videoReference."
	msgBadBody          = "Request body must be JSON like {\"videoReference\": \"https://youtu.be/...\"}."
	msgTimeout          = "Processing took too long. Try a shorter video."
	msgInternal         = "Something went wrong while summarizing this video."
	msgTooManyRequests  = "Too many requests. Slow down and try again shortly."
)

// HandlerConfig tunes the REST handler.
type HandlerConfig struct {
	Timeout        time.Duration // whole-request ceiling
	RequestsPerMin float64       // per client IP, 0 disables limiting
	Burst          int
}

type summarizeRequest struct {
	VideoReference string `json:"videoReference"`
	URL            string `json:"url"`
}

type handler struct {
	sum     Summarizer
	timeout time.Duration
	limiter *clientLimiter
}

// NewHandler returns the REST API: POST /api/summarize and GET /metrics.
func NewHandler(sum Summarizer, c HandlerConfig) http.Handler {
	h := &handler{sum: sum, timeout: c.Timeout}
	if c.RequestsPerMin > 0 {
		h.limiter = newClientLimiter(c.RequestsPerMin, c.Burst)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/summarize", h.summarize)
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, engine.FormatMetrics())
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		toolutil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return withRequestID(mux)
}

func (h *handler) summarize(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get(requestIDHeader)
	log := slog.With(slog.String("request_id", reqID))

	if h.limiter != nil && !h.limiter.allow(clientIP(r)) {
		w.Header().Set("Retry-After", "1")
		toolutil.WriteJSON(w, http.StatusTooManyRequests, toolutil.ErrorBody{Error: msgTooManyRequests, RetryAfter: 1})
		return
	}

	in, err := toolutil.DecodeJSON[summarizeRequest](r.Body)
	if err != nil {
		log.Debug("bad request body", slog.Any("error", err))
		toolutil.WriteError(w, http.StatusBadRequest, msgBadBody)
		return
	}
	ref := toolutil.FirstNonEmpty(in.VideoReference, in.URL)
	if ref == "" {
		toolutil.WriteError(w, http.StatusBadRequest, msgMissingReference)
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := h.sum.Summarize(ctx, ref)
	if err != nil {
		h.writeError(ctx, w, log, err)
		return
	}
	log.Info("summarized",
		slog.String("ref", ref),
		slog.String("mode", string(res.Mode)),
		slog.String("source", res.Source),
		slog.Bool("degraded", res.Degraded),
		slog.Duration("elapsed", time.Since(start)))
	toolutil.WriteJSON(w, http.StatusOK, res)
}

func (h *handler) writeError(ctx context.Context, w http.ResponseWriter, log *slog.Logger, err error) {
	pe, ok := engine.AsError(err)
	if !ok {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			log.Warn("summarize timed out", slog.Any("error", err))
			toolutil.WriteError(w, http.StatusGatewayTimeout, msgTimeout)
			return
		}
		log.Error("summarize failed", slog.Any("error", err))
		toolutil.WriteError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	status := pe.Kind.HTTPStatus()
	log.Warn("summarize failed",
		slog.String("kind", pe.Kind.String()),
		slog.Int("status", status),
		slog.Any("error", err))

	body := toolutil.ErrorBody{Error: pe.Message}
	if pe.Kind == engine.KindRateLimited {
		secs := retrySeconds(pe.Cooldown)
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		body.RetryAfter = secs
		body.Transcript = pe.Transcript
	}
	toolutil.WriteJSON(w, status, body)
}

// retrySeconds rounds a cooldown up to whole seconds, at least one.
func retrySeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	return max(secs, 1)
}

const requestIDHeader = "X-Request-ID"

// withRequestID echoes a caller-supplied request id or assigns a new one.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}
