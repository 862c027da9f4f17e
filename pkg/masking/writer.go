package masking

import (
	"bytes"
	"io"
	"sync"
	"unicode/utf8"
)

const (
	// DefaultMaxPending is the partial line size at which a Writer starts
	// forwarding before seeing a newline.
	DefaultMaxPending = 64 << 10
	// DefaultOverlap is the tail a Writer keeps back when it forwards a
	// partial line, so a secret split across writes can still be matched.
	DefaultOverlap = 4 << 10
)

// Writer masks text line by line before forwarding it to the underlying
// writer. A trailing partial line is held back until it is completed or Flush
// is called, so a secret is never split across two masked chunks by a line
// boundary it does not contain.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	m       Masker
	pending []byte

	// MaxPending caps the buffered partial line. Zero disables the cap.
	MaxPending int
	// Overlap is kept back when an overlong partial line is forwarded. It
	// should be at least as long as the longest secret.
	Overlap int

	// OnRedact, when set, is called once for every forwarded line that changed.
	OnRedact func()
}

// NewWriter returns a Writer forwarding masked lines to w.
func NewWriter(w io.Writer, m Masker) *Writer {
	return &Writer{w: w, m: m, MaxPending: DefaultMaxPending, Overlap: DefaultOverlap}
}

func (mw *Writer) Write(p []byte) (int, error) {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	mw.pending = append(mw.pending, p...)
	for {
		idx := bytes.IndexByte(mw.pending, '\n')
		if idx < 0 {
			break
		}
		line := string(mw.pending[:idx+1])
		mw.pending = mw.pending[idx+1:]
		if err := mw.emit(line); err != nil {
			return len(p), err
		}
	}
	if mw.MaxPending > 0 && len(mw.pending) > mw.MaxPending {
		if err := mw.emitPrefix(); err != nil {
			return len(p), err
		}
	}
	if len(mw.pending) == 0 {
		mw.pending = nil
	}
	return len(p), nil
}

// emitPrefix forwards an overlong partial line up to the last Overlap bytes.
// If a match straddles the cut the whole buffer is forwarded instead.
func (mw *Writer) emitPrefix() error {
	cut := len(mw.pending) - mw.Overlap
	for cut > 0 && !utf8.RuneStart(mw.pending[cut]) {
		cut--
	}
	if cut <= 0 {
		return nil
	}

	whole := string(mw.pending)
	head, tail := whole[:cut], whole[cut:]
	if mw.m.Mask(head)+mw.m.Mask(tail) != mw.m.Mask(whole) {
		mw.pending = nil
		return mw.emit(whole)
	}
	mw.pending = append([]byte(nil), tail...)
	return mw.emit(head)
}

// Flush masks and forwards any buffered partial line.
func (mw *Writer) Flush() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	if len(mw.pending) == 0 {
		return nil
	}
	line := string(mw.pending)
	mw.pending = nil
	return mw.emit(line)
}

func (mw *Writer) emit(line string) error {
	masked := mw.m.Mask(line)
	if masked != line && mw.OnRedact != nil {
		mw.OnRedact()
	}
	_, err := io.WriteString(mw.w, masked)
	return err
}
