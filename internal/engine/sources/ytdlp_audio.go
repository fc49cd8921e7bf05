package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/anatolykoptev/go_vidsum/internal/engine"
)

// YtDlpAudio streams the smallest audio-only format from yt-dlp's stdout.
type YtDlpAudio struct {
	tool     *YtDlp
	MaxBytes int64
	Timeout  time.Duration
}

func NewYtDlpAudio(tool *YtDlp, maxBytes int64, timeout time.Duration) *YtDlpAudio {
	return &YtDlpAudio{tool: tool, MaxBytes: maxBytes, Timeout: timeout}
}

func (a *YtDlpAudio) Name() string { return "yt-dlp-audio" }

func (a *YtDlpAudio) AcquireAudio(ctx context.Context, id engine.VideoID) engine.Outcome[engine.Audio] {
	bin, err := a.tool.resolve()
	if err != nil {
		return engine.Unavailable[engine.Audio](err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.Timeout)
	defer cancel()

	buf := &cappedBuffer{max: a.MaxBytes, onOverflow: cancel}
	stderr, err := a.tool.run(ctx, bin, audioArgs(id, a.MaxBytes), buf)
	if buf.overflowed {
		return engine.Failed[engine.Audio](fmt.Errorf("%w: stream passed %d bytes", engine.ErrAudioTooLarge, a.MaxBytes))
	}
	if err != nil {
		if known := stderrError(stderr); known != nil {
			err = fmt.Errorf("%w (%v)", known, err)
		}
		return engine.Failed[engine.Audio](err)
	}

	data := buf.Bytes()
	if len(data) == 0 {
		if known := stderrError(stderr); known != nil {
			return engine.Failed[engine.Audio](known)
		}
		return engine.Failed[engine.Audio](errors.New("yt-dlp produced no audio"))
	}
	return engine.Succeeded(engine.Audio{Data: data, MIMEType: sniffAudioMIME(data), Source: a.Name()})
}

// audioArgs asks for the lowest-bitrate audio-only stream under the ceiling,
// falling back to the lowest one when sizes are unknown.
func audioArgs(id engine.VideoID, maxBytes int64) []string {
	limit := strconv.FormatInt(maxBytes, 10)
	return []string{
		"-f", "worstaudio[filesize<" + limit + "]/worstaudio[filesize_approx<" + limit + "]/worstaudio",
		"--max-filesize", limit,
		"-o", "-",
		id.WatchURL(),
	}
}

// sniffAudioMIME identifies the container yt-dlp returned.
func sniffAudioMIME(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return "audio/webm"
	case len(data) >= 8 && bytes.Equal(data[4:8], []byte("ftyp")):
		return "audio/mp4"
	case bytes.HasPrefix(data, []byte("OggS")):
		return "audio/ogg"
	case bytes.HasPrefix(data, []byte("ID3")), len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return "audio/mpeg"
	default:
		return "audio/webm"
	}
}
