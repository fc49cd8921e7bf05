package engine

import (
	"context"
	"strings"
	"unicode/utf8"
)

// VideoID is the 11-character platform identifier of a video.
type VideoID string

// WatchURL returns the canonical watch link for the id.
func (id VideoID) WatchURL() string {
	return "https://www.youtube.com/watch?v=" + string(id)
}

// Status tags the result of one acquirer attempt.
type Status int

const (
	StatusSuccess Status = iota
	StatusUnavailable
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "failed"
	}
}

// Outcome is the tagged result of a single acquirer attempt.
type Outcome[T any] struct {
	Status  Status
	Payload T
	Reason  error
}

func Succeeded[T any](payload T) Outcome[T] {
	return Outcome[T]{Status: StatusSuccess, Payload: payload}
}

func Unavailable[T any](reason error) Outcome[T] {
	return Outcome[T]{Status: StatusUnavailable, Reason: reason}
}

func Failed[T any](reason error) Outcome[T] {
	return Outcome[T]{Status: StatusFailed, Reason: reason}
}

// Transcript is caption text ordered by time in video.
type Transcript struct {
	Segments []string
	Language string
	Source   string
}

// Text joins the segments into a single blob.
func (t Transcript) Text() string {
	return CollapseSpace(strings.Join(t.Segments, " "))
}

// Usable reports whether the transcript is long enough to summarize.
func (t Transcript) Usable(minChars int) bool {
	return utf8.RuneCountInString(t.Text()) >= minChars
}

// Audio is an encoded audio payload.
type Audio struct {
	Data     []byte
	MIMEType string
	Source   string
}

func (a Audio) Size() int64 { return int64(len(a.Data)) }

// TranscriptAcquirer obtains caption text for a video.
type TranscriptAcquirer interface {
	Name() string
	AcquireTranscript(ctx context.Context, id VideoID) Outcome[Transcript]
}

// AudioAcquirer downloads a bounded audio payload for a video.
type AudioAcquirer interface {
	Name() string
	AcquireAudio(ctx context.Context, id VideoID) Outcome[Audio]
}

// Mode is the payload kind the model was given.
type Mode string

const (
	ModeTranscript Mode = "transcript"
	ModeAudio      Mode = "audio"
)

// Result is the structured pipeline output.
type Result struct {
	Summary    string `json:"summary"`
	Notes      string `json:"notes"`
	Transcript string `json:"transcript,omitempty"`
	Source     string `json:"source,omitempty"`
	Mode       Mode   `json:"mode,omitempty"`
	Degraded   bool   `json:"degraded,omitempty"`
}

// SummarizeInput is the input for the video_summarize tool.
type SummarizeInput struct {
	VideoReference string `json:"video_reference" jsonschema:"Video URL (watch, youtu.be, embed, shorts) or bare 11-character video id"`
}
