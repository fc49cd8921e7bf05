package sources

import (
	"bytes"
	"io"

	"github.com/anatolykoptev/go_vidsum/internal/engine"
)

// cappedBuffer accumulates bytes and fails once more than max are written.
// onOverflow runs once, on the first rejected write.
type cappedBuffer struct {
	buf        bytes.Buffer
	max        int64
	overflowed bool
	onOverflow func()
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if b.overflowed || int64(b.buf.Len())+int64(len(p)) > b.max {
		if !b.overflowed && b.onOverflow != nil {
			b.onOverflow()
		}
		b.overflowed = true
		return 0, engine.ErrAudioTooLarge
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) Bytes() []byte { return b.buf.Bytes() }

// readCapped reads r to EOF, failing with ErrAudioTooLarge past max bytes.
// It never returns a truncated payload.
func readCapped(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, engine.ErrAudioTooLarge
	}
	return data, nil
}
