package engine

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinels shared by acquirers and generators.
var (
	ErrInvalidReference = errors.New("invalid video reference")
	ErrToolMissing      = errors.New("extraction tool not installed")
	ErrAcquireTimeout   = errors.New("acquisition timed out")
	ErrAudioTooLarge    = errors.New("audio exceeds size ceiling")
	ErrAudioUnsupported = errors.New("model client does not accept audio")
	ErrNoCaptions       = errors.New("no caption tracks")
)

// Kind classifies a terminal pipeline failure.
type Kind int

const (
	KindInvalidReference Kind = iota + 1
	KindCredentialMissing
	KindAcquisitionExhausted
	KindAudioTooLarge
	KindRateLimited
	KindGenerationFailed
	KindTimeout
)

var kindNames = map[Kind]string{
	KindInvalidReference:     "invalid_reference",
	KindCredentialMissing:    "credential_missing",
	KindAcquisitionExhausted: "acquisition_exhausted",
	KindAudioTooLarge:        "audio_too_large",
	KindRateLimited:          "rate_limited",
	KindGenerationFailed:     "generation_failed",
	KindTimeout:              "timeout",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// HTTPStatus maps a kind to its response status.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidReference:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Error is a typed pipeline failure with a user-facing message.
// Err holds the upstream cause for logs and is never shown to users.
type Error struct {
	Kind       Kind
	Message    string
	Cooldown   time.Duration // RateLimited only
	Transcript string        // partial data already acquired, if any
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts a pipeline error from err.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// User-facing messages.
const (
	msgInvalidReference  = "Could not find a video id in that link. Paste a YouTube watch, youtu.be, shorts or embed URL."
	msgCredentialMissing = "The summarizer is not configured: the model API key is missing."
	msgExhausted         = "Could not get captions or audio for this video. It may be too long, private or age-restricted, or it has no captions. Try a shorter public video."
	msgGenerationFailed  = "The model could not process this video. Please try again later."
	msgTimeout           = "Processing took too long. Try a shorter video."
)

func invalidReference(err error) *Error {
	return &Error{Kind: KindInvalidReference, Message: msgInvalidReference, Err: err}
}

func audioTooLarge(size, limit int64, err error) *Error {
	msg := fmt.Sprintf("The audio for this video is too large to process (limit %d MiB). Try a shorter video.", limit>>20)
	if size > 0 {
		msg = fmt.Sprintf("The audio for this video is %s, above the %d MiB limit. Try a shorter video.",
			audioSize(size, limit), limit>>20)
	}
	return &Error{Kind: KindAudioTooLarge, Message: msg, Err: err}
}

// audioSize renders size in MiB, or in bytes when that would read as the limit itself.
func audioSize(size, limit int64) string {
	mib := func(n int64) string { return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20)) }
	if s := mib(size); s != mib(limit) {
		return s
	}
	return fmt.Sprintf("%d bytes", size)
}

func rateLimited(rl *RateLimitError, transcript string) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Message:    fmt.Sprintf("The model is rate limited. Retrying in %d seconds.", cooldownSeconds(rl.Cooldown)),
		Cooldown:   rl.Cooldown,
		Transcript: transcript,
		Err:        rl,
	}
}

// upstreamRateLimited reports that YouTube throttled every acquirer.
func upstreamRateLimited(rl *RateLimitError, causes error) *Error {
	return &Error{
		Kind:     KindRateLimited,
		Message:  fmt.Sprintf("YouTube is limiting requests right now. Retrying in %d seconds.", cooldownSeconds(rl.Cooldown)),
		Cooldown: rl.Cooldown,
		Err:      causes,
	}
}

func cooldownSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}

// RateLimitError signals an upstream quota or backoff response.
type RateLimitError struct {
	Cooldown time.Duration
	Cause    error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (retry in %s): %v", e.Cooldown, e.Cause)
}

func (e *RateLimitError) Unwrap() error { return e.Cause }

// AsRateLimit extracts a rate-limit signal from err.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
