package sources

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/anatolykoptev/go_vidsum/internal/engine"
)

func TestReadCapped(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		max     int64
		wantErr bool
	}{
		{"under", 10, 16, false},
		{"exact", 16, 16, false},
		{"one over", 17, 16, true},
		{"far over", 4096, 16, true},
		{"empty", 0, 16, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := readCapped(bytes.NewReader(make([]byte, tt.size)), tt.max)
			if tt.wantErr {
				if !errors.Is(err, engine.ErrAudioTooLarge) {
					t.Fatalf("err = %v, want ErrAudioTooLarge", err)
				}
				if data != nil {
					t.Errorf("got %d bytes on overflow, want none", len(data))
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(data) != tt.size {
				t.Errorf("len = %d, want %d", len(data), tt.size)
			}
		})
	}
}

func TestCappedBuffer(t *testing.T) {
	calls := 0
	b := &cappedBuffer{max: 8, onOverflow: func() { calls++ }}

	if _, err := b.Write([]byte("abcd")); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Write([]byte("efgh")); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Write([]byte("i")); !errors.Is(err, engine.ErrAudioTooLarge) {
		t.Fatalf("err = %v, want ErrAudioTooLarge", err)
	}
	if _, err := b.Write([]byte("j")); !errors.Is(err, engine.ErrAudioTooLarge) {
		t.Fatalf("second overflow err = %v", err)
	}
	if calls != 1 {
		t.Errorf("onOverflow called %d times, want 1", calls)
	}
	if !b.overflowed {
		t.Error("overflowed not set")
	}
	if got := string(b.Bytes()); got != "abcdefgh" {
		t.Errorf("buffer = %q", got)
	}
}

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{max: 10}
	tb.Write([]byte(strings.Repeat("x", 20)))
	tb.Write([]byte("\nlast line"))
	if got := tb.String(); len(got) != 10 || !strings.HasSuffix(got, "last line") {
		t.Errorf("tail = %q", got)
	}
	if got := lastLine("first\nsecond\n"); got != "second" {
		t.Errorf("lastLine = %q", got)
	}
}
