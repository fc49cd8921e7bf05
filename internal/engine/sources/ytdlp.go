package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/anatolykoptev/go_vidsum/internal/engine"
)

// YtDlp runs the yt-dlp binary. Availability is checked on every call so
// installing or removing the tool needs no restart.
type YtDlp struct {
	Path     string
	lookPath func(string) (string, error)
}

func NewYtDlp(path string) *YtDlp {
	if path == "" {
		path = "yt-dlp"
	}
	return &YtDlp{Path: path, lookPath: exec.LookPath}
}

// resolve returns the executable path or ErrToolMissing.
func (y *YtDlp) resolve() (string, error) {
	bin, err := y.lookPath(y.Path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", engine.ErrToolMissing, y.Path, err)
	}
	return bin, nil
}

// baseArgs are passed on every invocation.
var baseArgs = []string{"--ignore-config", "--no-progress", "--no-playlist", "--no-warnings"}

// run executes bin and waits for it. The process group is killed when ctx
// ends and the child is always reaped before run returns.
func (y *YtDlp) run(ctx context.Context, bin string, args []string, stdout io.Writer) (stderr string, err error) {
	engine.IncrSubprocessRuns()
	errBuf := &tailBuffer{max: 8 * 1024}
	cmd := exec.CommandContext(ctx, bin, append(append([]string{}, baseArgs...), args...)...)
	cmd.Stdout = stdout
	cmd.Stderr = errBuf
	cmd.WaitDelay = 2 * time.Second
	setProcessGroup(cmd)

	err = cmd.Run()
	switch {
	case err == nil:
		return errBuf.String(), nil
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return errBuf.String(), engine.ErrAcquireTimeout
	case ctx.Err() != nil:
		return errBuf.String(), ctx.Err()
	default:
		return errBuf.String(), fmt.Errorf("yt-dlp: %w: %s", err, lastLine(errBuf.String()))
	}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	data []byte
	max  int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.data = append(t.data, p...)
	if over := len(t.data) - t.max; over > 0 {
		t.data = t.data[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return string(t.data) }

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// stderrError converts well-known yt-dlp diagnostics into engine errors.
func stderrError(stderr string) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "max-filesize") || strings.Contains(lower, "larger than max"):
		return engine.ErrAudioTooLarge
	case strings.Contains(lower, "http error 429") || strings.Contains(lower, "too many requests"):
		return &engine.RateLimitError{Cooldown: engine.DefaultCooldown, Cause: errors.New(lastLine(stderr))}
	case strings.Contains(lower, "private video"), strings.Contains(lower, "sign in to confirm"):
		return fmt.Errorf("restricted video: %s", lastLine(stderr))
	}
	return nil
}
