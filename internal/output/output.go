// Package output persists finished scripts and audio to disk.
//
// Files are written wholesale once the artefact is complete: data goes to a
// temporary file in the target directory which is then renamed over the
// destination, so readers never observe a half-written script or WAV.
package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var (
	// ErrNoPath is returned when the destination path is empty.
	ErrNoPath = errors.New("output: path is empty")

	// ErrInvalidUTF8 is returned by WriteScript for text that is not UTF-8.
	ErrInvalidUTF8 = errors.New("output: script is not valid UTF-8")

	// ErrNotWAV is returned by WriteWAV when data lacks a RIFF/WAVE header.
	ErrNotWAV = errors.New("output: data is not a WAV file")
)

// WriteScript writes text to path as UTF-8. A trailing newline is added when
// missing.
func WriteScript(path, text string) error {
	if !utf8.ValidString(text) {
		return ErrInvalidUTF8
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return writeAtomic(path, []byte(text))
}

// WriteWAV writes a complete WAV file to path.
func WriteWAV(path string, data []byte) error {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return ErrNotWAV
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) (err error) {
	if path == "" {
		return ErrNoPath
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("output: create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("output: create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("output: write %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("output: sync %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("output: close %s: %w", path, err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("output: chmod %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("output: rename to %s: %w", path, err)
	}
	return nil
}
