package audio

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrFinalized is returned when a Buffer is written to or finalized after
	// Finalize has already produced its WAV output.
	ErrFinalized = errors.New("audio: buffer already finalized")

	// ErrDiscarded is returned when a Buffer is used after Discard.
	ErrDiscarded = errors.New("audio: buffer discarded")
)

// Buffer accumulates PCM for a whole play in a single fixed format. Clips in
// other formats are converted on append. The WAV header is written exactly
// once, by Finalize, after every segment has been appended.
//
// Buffer is safe for concurrent use, although the render pipeline only ever
// appends from one goroutine.
type Buffer struct {
	mu        sync.Mutex
	format    Format
	conv      FormatConverter
	pcm       bytes.Buffer
	finalized bool
	discarded bool
}

// NewBuffer returns an empty Buffer that stores audio in format f.
func NewBuffer(f Format) *Buffer {
	return &Buffer{format: f, conv: FormatConverter{Target: f}}
}

// Format returns the buffer's storage format.
func (b *Buffer) Format() Format { return b.format }

func (b *Buffer) writable() error {
	switch {
	case b.discarded:
		return ErrDiscarded
	case b.finalized:
		return ErrFinalized
	}
	return nil
}

// Append converts clip to the buffer format and appends its frames.
func (b *Buffer) Append(clip Clip) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.writable(); err != nil {
		return err
	}
	converted, err := b.conv.Convert(clip)
	if err != nil {
		return fmt.Errorf("audio: append clip: %w", err)
	}
	b.pcm.Write(converted.PCM)
	return nil
}

// AppendSilence appends d of silence.
func (b *Buffer) AppendSilence(d time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.writable(); err != nil {
		return err
	}
	b.pcm.Write(Silence(d, b.format))
	return nil
}

// Duration returns the playback length accumulated so far.
func (b *Buffer) Duration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BytesDuration(b.pcm.Len(), b.format)
}

// Finalize writes the WAV header and returns the complete file. It may be
// called only once; the buffer rejects further writes afterwards.
func (b *Buffer) Finalize() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.writable(); err != nil {
		return nil, err
	}
	b.finalized = true
	wav, err := EncodeWAV(Clip{PCM: b.pcm.Bytes(), Format: b.format})
	b.pcm = bytes.Buffer{}
	if err != nil {
		return nil, err
	}
	return wav, nil
}

// Discard drops all accumulated audio. Used on error paths so that partial
// output is never handed to a caller. Discard is idempotent.
func (b *Buffer) Discard() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.discarded = true
	b.pcm = bytes.Buffer{}
}
