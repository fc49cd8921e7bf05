package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/asticode/go-astisub"

	"github.com/anatolykoptev/go_vidsum/internal/engine"
)

// YtDlpSubtitles downloads manual or automatic subtitles with yt-dlp.
type YtDlpSubtitles struct {
	tool      *YtDlp
	Languages []string
}

func NewYtDlpSubtitles(tool *YtDlp, langs []string) *YtDlpSubtitles {
	return &YtDlpSubtitles{tool: tool, Languages: langs}
}

func (s *YtDlpSubtitles) Name() string { return "yt-dlp-subs" }

func (s *YtDlpSubtitles) AcquireTranscript(ctx context.Context, id engine.VideoID) engine.Outcome[engine.Transcript] {
	bin, err := s.tool.resolve()
	if err != nil {
		return engine.Unavailable[engine.Transcript](err)
	}

	dir, err := os.MkdirTemp("", "vidsum-subs-*")
	if err != nil {
		return engine.Failed[engine.Transcript](fmt.Errorf("temp dir: %w", err))
	}
	defer os.RemoveAll(dir)

	args := []string{
		"--skip-download",
		"--write-sub", "--write-auto-sub",
		"--sub-format", "vtt",
		"--sub-langs", subLangs(s.Languages),
		"-o", filepath.Join(dir, "%(id)s.%(ext)s"),
		id.WatchURL(),
	}
	stderr, err := s.tool.run(ctx, bin, args, io.Discard)
	if err != nil {
		if known := stderrError(stderr); known != nil {
			err = fmt.Errorf("%w (%v)", known, err)
		}
		return engine.Failed[engine.Transcript](err)
	}

	files, _ := filepath.Glob(filepath.Join(dir, "*.vtt"))
	if len(files) == 0 {
		return engine.Unavailable[engine.Transcript](fmt.Errorf("%w: yt-dlp wrote no subtitles", engine.ErrNoCaptions))
	}
	path := preferredSubtitle(files, s.Languages)
	f, err := os.Open(path)
	if err != nil {
		return engine.Failed[engine.Transcript](err)
	}
	defer f.Close()

	lines, err := parseVTT(f)
	if err != nil {
		return engine.Failed[engine.Transcript](err)
	}
	return engine.Succeeded(engine.Transcript{
		Segments: lines,
		Language: subtitleLang(path),
		Source:   s.Name(),
	})
}

// subLangs builds the --sub-langs selector, matching regional variants too.
func subLangs(langs []string) string {
	if len(langs) == 0 {
		langs = []string{"en"}
	}
	parts := make([]string, 0, len(langs)*2)
	for _, l := range langs {
		parts = append(parts, l, l+"-.*")
	}
	return strings.Join(parts, ",")
}

// subtitleLang returns "en" for "<dir>/ID.en.vtt".
func subtitleLang(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), ".vtt")
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		return base[i+1:]
	}
	return ""
}

// preferredSubtitle picks the file whose language comes first in langs.
func preferredSubtitle(files []string, langs []string) string {
	sort.Strings(files)
	for _, l := range langs {
		for _, f := range files {
			if subtitleLang(f) == l {
				return f
			}
		}
	}
	for _, l := range langs {
		for _, f := range files {
			if strings.HasPrefix(subtitleLang(f), l) {
				return f
			}
		}
	}
	return files[0]
}

// parseVTT returns cue text in order. Auto-generated captions repeat the
// previous line in each cue; consecutive duplicates are dropped.
func parseVTT(r io.Reader) ([]string, error) {
	subs, err := astisub.ReadFromWebVTT(r)
	if err != nil {
		return nil, fmt.Errorf("parse vtt: %w", err)
	}
	var out []string
	for _, item := range subs.Items {
		for _, line := range item.Lines {
			var sb strings.Builder
			for _, li := range line.Items {
				sb.WriteString(li.Text)
				sb.WriteByte(' ')
			}
			text := engine.StripTags(sb.String())
			if text == "" || (len(out) > 0 && out[len(out)-1] == text) {
				continue
			}
			out = append(out, text)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("vtt has no cues")
	}
	return out, nil
}
