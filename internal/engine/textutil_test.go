package engine

import (
	"strings"
	"testing"
	"time"
)

func TestStripTags(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello world", "hello world"},
		{"collapse", "  hello \n\t world  ", "hello world"},
		{"font tag", `<font color="#E5E5E5">hello</font> world`, "hello world"},
		{"voice span", "<v Speaker>we</v><c> are</c> live", "we are live"},
		{"entities", "rock &amp; roll &#39;n&#39; more", "rock & roll 'n' more"},
		{"br", "line one<br>line two", "line one line two"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripTags(tt.in); got != tt.want {
				t.Errorf("StripTags(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTranscriptUsable(t *testing.T) {
	tests := []struct {
		name     string
		segments []string
		want     bool
	}{
		{"empty", nil, false},
		{"99 chars", []string{strings.Repeat("a", 99)}, false},
		{"100 chars", []string{strings.Repeat("a", 100)}, true},
		{"whitespace padding does not count", []string{"   " + strings.Repeat("a", 98) + "   "}, false},
		{"joined segments", []string{strings.Repeat("a", 50), strings.Repeat("b", 49)}, true},
		{"runes not bytes", []string{strings.Repeat("é", 99)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := Transcript{Segments: tt.segments}
			if got := tr.Usable(DefaultMinTranscriptChars); got != tt.want {
				t.Errorf("Usable() = %v for %d chars, want %v", got, len(tr.Text()), tt.want)
			}
		})
	}
}

func TestConfigWithDefaults(t *testing.T) {
	c := Config{PromptBudget: 50000, AudioTimeout: 5 * time.Second}.WithDefaults()
	if c.PromptBudget != maxPromptBudget {
		t.Errorf("PromptBudget = %d, want clamp to %d", c.PromptBudget, maxPromptBudget)
	}
	if c.AudioTimeout != minAudioTimeout {
		t.Errorf("AudioTimeout = %v, want clamp to %v", c.AudioTimeout, minAudioTimeout)
	}
	if c.MaxAudioBytes != 19*1024*1024 {
		t.Errorf("MaxAudioBytes = %d, want 19 MiB", c.MaxAudioBytes)
	}
	if c.MinTranscriptChars != 100 {
		t.Errorf("MinTranscriptChars = %d, want 100", c.MinTranscriptChars)
	}
}
