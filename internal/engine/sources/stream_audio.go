package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/kkdai/youtube/v2"

	"github.com/anatolykoptev/go_vidsum/internal/engine"
)

// StreamAudio downloads the lowest-bitrate audio-only format in-process.
type StreamAudio struct {
	client   *youtube.Client
	MaxBytes int64
	Timeout  time.Duration
}

func NewStreamAudio(hc *http.Client, maxBytes int64, timeout time.Duration) *StreamAudio {
	return &StreamAudio{
		client:   &youtube.Client{HTTPClient: httpClient(hc)},
		MaxBytes: maxBytes,
		Timeout:  timeout,
	}
}

func (s *StreamAudio) Name() string { return "stream-download" }

func (s *StreamAudio) AcquireAudio(ctx context.Context, id engine.VideoID) engine.Outcome[engine.Audio] {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	audio, err := s.download(ctx, id)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", engine.ErrAcquireTimeout, err)
		}
		return engine.Failed[engine.Audio](err)
	}
	return engine.Succeeded(audio)
}

func (s *StreamAudio) download(ctx context.Context, id engine.VideoID) (engine.Audio, error) {
	video, err := s.client.GetVideoContext(ctx, string(id))
	if err != nil {
		return engine.Audio{}, describeVideoError(err)
	}

	formats, skipped := audioFormats(video.Formats, s.MaxBytes)
	if len(formats) == 0 {
		if skipped > 0 {
			return engine.Audio{}, fmt.Errorf("%w: %d audio formats above limit", engine.ErrAudioTooLarge, skipped)
		}
		return engine.Audio{}, errors.New("no audio-only formats")
	}

	f := formats[0]
	stream, size, err := s.client.GetStreamContext(ctx, video, &f)
	if err != nil {
		return engine.Audio{}, fmt.Errorf("open stream itag %d: %w", f.ItagNo, classifyYouTubeError(err))
	}
	defer stream.Close()
	if size > s.MaxBytes {
		return engine.Audio{}, fmt.Errorf("%w: itag %d declares %d bytes", engine.ErrAudioTooLarge, f.ItagNo, size)
	}

	data, err := readCapped(stream, s.MaxBytes)
	if err != nil {
		return engine.Audio{}, fmt.Errorf("read stream itag %d: %w", f.ItagNo, err)
	}
	return engine.Audio{Data: data, MIMEType: formatMIME(f.MimeType), Source: s.Name()}, nil
}

// audioFormats returns audio-only formats within maxBytes, lowest bitrate
// first, and how many were skipped for declaring a larger size.
func audioFormats(list youtube.FormatList, maxBytes int64) (youtube.FormatList, int) {
	skipped := 0
	out := list.Select(func(f youtube.Format) bool {
		if f.AudioChannels == 0 || f.Width > 0 || f.Height > 0 {
			return false
		}
		if f.ContentLength > maxBytes {
			skipped++
			return false
		}
		return true
	})
	sort.SliceStable(out, func(i, j int) bool {
		return bitrate(out[i]) < bitrate(out[j])
	})
	return out, skipped
}

func bitrate(f youtube.Format) int {
	if f.AverageBitrate > 0 {
		return f.AverageBitrate
	}
	return f.Bitrate
}

// formatMIME strips codec parameters: `audio/webm; codecs="opus"` → audio/webm.
func formatMIME(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	mime = strings.TrimSpace(mime)
	if mime == "" {
		return "audio/webm"
	}
	return mime
}

// describeVideoError adds a readable category to metadata failures.
func describeVideoError(err error) error {
	switch {
	case errors.Is(err, youtube.ErrVideoPrivate):
		return fmt.Errorf("private video: %w", err)
	case errors.Is(err, youtube.ErrLoginRequired):
		return fmt.Errorf("age-restricted video: %w", err)
	case errors.Is(err, youtube.ErrNotPlayableInEmbed):
		return fmt.Errorf("embedding disabled: %w", err)
	}
	var ps *youtube.ErrPlayabiltyStatus
	if errors.As(err, &ps) {
		return fmt.Errorf("video unavailable: %w", err)
	}
	return fmt.Errorf("video metadata: %w", classifyYouTubeError(err))
}
