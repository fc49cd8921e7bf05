package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Pipeline sequences acquisition, generation and normalization for one
// video reference. It holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	cfg         Config
	gen         Generator
	transcripts []TranscriptAcquirer
	audio       []AudioAcquirer
}

// NewPipeline builds a pipeline. Acquirers are tried in slice order.
func NewPipeline(c Config, gen Generator, transcripts []TranscriptAcquirer, audio []AudioAcquirer) *Pipeline {
	return &Pipeline{
		cfg:         c.WithDefaults(),
		gen:         gen,
		transcripts: transcripts,
		audio:       audio,
	}
}

// Summarize runs the pipeline. Failures are always *Error.
func (p *Pipeline) Summarize(ctx context.Context, ref string) (*Result, error) {
	metrics.SummarizeRequests.Add(1)
	var res *Result
	err := TrackOperation(ctx, "summarize", func(ctx context.Context) error {
		var err error
		res, err = p.run(ctx, ref)
		return err
	})
	if err != nil {
		metrics.SummarizeErrors.Add(1)
		if pe, ok := AsError(err); ok && pe.Kind == KindRateLimited {
			metrics.RateLimited.Add(1)
		}
		return nil, err
	}
	if res.Degraded {
		metrics.DegradedResults.Add(1)
	}
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, ref string) (*Result, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, invalidReference(errors.New("empty reference"))
	}
	if !p.cfg.HasCredential() {
		return nil, &Error{Kind: KindCredentialMissing, Message: msgCredentialMissing}
	}
	id, err := ExtractVideoID(ref)
	if err != nil {
		return nil, invalidReference(err)
	}

	var limit upstreamLimit
	if tr, ok := p.acquireTranscript(ctx, id, &limit); ok {
		return p.fromTranscript(ctx, tr)
	}
	if err := contextError(ctx); err != nil {
		return nil, err
	}

	audio, err := p.acquireAudio(ctx, id, &limit)
	if err != nil {
		return nil, err
	}
	return p.fromAudio(ctx, audio)
}

// acquireTranscript returns the first usable transcript.
func (p *Pipeline) acquireTranscript(ctx context.Context, id VideoID, limit *upstreamLimit) (Transcript, bool) {
	for _, a := range p.transcripts {
		if ctx.Err() != nil {
			return Transcript{}, false
		}
		metrics.TranscriptAttempts.Add(1)
		actx, cancel := context.WithTimeout(ctx, p.cfg.TranscriptTimeout)
		out := safeTranscript(actx, a, id)
		cancel()

		switch {
		case out.Status == StatusSuccess && out.Payload.Usable(p.cfg.MinTranscriptChars):
			metrics.TranscriptHits.Add(1)
			if out.Payload.Source == "" {
				out.Payload.Source = a.Name()
			}
			slog.Info("transcript acquired", slog.String("acquirer", a.Name()), slog.String("id", string(id)),
				slog.Int("chars", len(out.Payload.Text())))
			return out.Payload, true
		case out.Status == StatusSuccess:
			slog.Warn("transcript too short, trying next", slog.String("acquirer", a.Name()),
				slog.String("id", string(id)), slog.Int("chars", len(out.Payload.Text())))
		default:
			slog.Warn("transcript acquirer failed, trying next", slog.String("acquirer", a.Name()),
				slog.String("id", string(id)), slog.String("status", out.Status.String()), slog.Any("err", out.Reason))
			limit.note(out.Reason)
		}
	}
	return Transcript{}, false
}

// acquireAudio returns the first audio payload within the size ceiling.
// Oversize payloads count as failures so the next acquirer still runs.
func (p *Pipeline) acquireAudio(ctx context.Context, id VideoID, limit *upstreamLimit) (Audio, error) {
	var reasons []error
	tooLarge := false
	var oversize int64
	for _, a := range p.audio {
		if err := contextError(ctx); err != nil {
			return Audio{}, err
		}
		metrics.AudioAttempts.Add(1)
		out := safeAudio(ctx, a, id)
		if out.Status == StatusSuccess {
			size := out.Payload.Size()
			switch {
			case size > p.cfg.MaxAudioBytes:
				oversize = max(oversize, size)
				out = Failed[Audio](fmt.Errorf("%d bytes: %w", size, ErrAudioTooLarge))
			case size > 0:
				metrics.AudioHits.Add(1)
				if out.Payload.Source == "" {
					out.Payload.Source = a.Name()
				}
				slog.Info("audio acquired", slog.String("acquirer", a.Name()), slog.String("id", string(id)),
					slog.Int64("bytes", size), slog.String("mime", out.Payload.MIMEType))
				return out.Payload, nil
			default:
				out = Failed[Audio](errors.New("empty audio payload"))
			}
		}
		slog.Warn("audio acquirer failed, trying next", slog.String("acquirer", a.Name()),
			slog.String("id", string(id)), slog.String("status", out.Status.String()), slog.Any("err", out.Reason))
		if errors.Is(out.Reason, ErrAudioTooLarge) {
			tooLarge = true
		}
		limit.note(out.Reason)
		reasons = append(reasons, fmt.Errorf("%s: %s: %w", a.Name(), out.Status, out.Reason))
	}
	if err := contextError(ctx); err != nil {
		return Audio{}, err
	}
	joined := errors.Join(reasons...)
	// A throttled upstream may well succeed later, so it wins over size.
	if limit.rl != nil {
		return Audio{}, upstreamRateLimited(limit.rl, joined)
	}
	if tooLarge {
		metrics.AudioTooLarge.Add(1)
		return Audio{}, audioTooLarge(oversize, p.cfg.MaxAudioBytes, joined)
	}
	return Audio{}, &Error{Kind: KindAcquisitionExhausted, Message: msgExhausted, Err: joined}
}

// upstreamLimit keeps the longest rate-limit signal seen while acquiring.
type upstreamLimit struct {
	rl *RateLimitError
}

func (u *upstreamLimit) note(err error) {
	if rl, ok := AsRateLimit(err); ok && (u.rl == nil || rl.Cooldown > u.rl.Cooldown) {
		u.rl = rl
	}
}

func (p *Pipeline) fromTranscript(ctx context.Context, tr Transcript) (*Result, error) {
	text := tr.Text()
	raw, err := p.gen.GenerateText(ctx, TranscriptPrompt(text, p.cfg.PromptBudget))
	if err != nil {
		if rl, ok := AsRateLimit(err); ok {
			return nil, rateLimited(rl, text)
		}
		slog.Warn("generation failed, returning transcript only", slog.String("source", tr.Source), slog.Any("err", err))
		return &Result{
			Summary:    PlaceholderSummary,
			Notes:      PlaceholderNotes,
			Transcript: text,
			Source:     tr.Source,
			Mode:       ModeTranscript,
			Degraded:   true,
		}, nil
	}
	res := Normalize(raw)
	res.Transcript = text
	res.Source = tr.Source
	res.Mode = ModeTranscript
	return &res, nil
}

func (p *Pipeline) fromAudio(ctx context.Context, audio Audio) (*Result, error) {
	raw, err := p.gen.GenerateAudio(ctx, AudioPrompt(), audio)
	if err != nil {
		if rl, ok := AsRateLimit(err); ok {
			return nil, rateLimited(rl, "")
		}
		if cerr := contextError(ctx); cerr != nil {
			return nil, cerr
		}
		return nil, &Error{Kind: KindGenerationFailed, Message: msgGenerationFailed, Err: err}
	}
	res := Normalize(raw)
	res.Source = audio.Source
	res.Mode = ModeAudio
	return &res, nil
}

// contextError converts an expired request context into a pipeline error.
func contextError(ctx context.Context) error {
	switch err := ctx.Err(); {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Message: msgTimeout, Err: err}
	default:
		return &Error{Kind: KindGenerationFailed, Message: "The request was cancelled.", Err: err}
	}
}

func safeTranscript(ctx context.Context, a TranscriptAcquirer, id VideoID) (out Outcome[Transcript]) {
	defer func() {
		if r := recover(); r != nil {
			out = Failed[Transcript](fmt.Errorf("panic: %v", r))
		}
	}()
	return a.AcquireTranscript(ctx, id)
}

func safeAudio(ctx context.Context, a AudioAcquirer, id VideoID) (out Outcome[Audio]) {
	defer func() {
		if r := recover(); r != nil {
			out = Failed[Audio](fmt.Errorf("panic: %v", r))
		}
	}()
	return a.AcquireAudio(ctx, id)
}
