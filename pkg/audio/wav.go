package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	riffHeaderSize = 12
	wavHeaderSize  = 44
	pcmFormatTag   = 1
)

// DecodeWAV parses a RIFF/WAVE container and returns its PCM payload. The fmt
// chunk is located by walking the chunk list rather than assuming a fixed
// 44-byte header, since providers emit LIST and fact chunks in between.
// Only 16-bit PCM is accepted.
func DecodeWAV(wav []byte) (Clip, error) {
	if len(wav) < riffHeaderSize {
		return Clip{}, errors.New("audio: WAV data too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return Clip{}, errors.New("audio: WAV data missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return Clip{}, errors.New("audio: WAV data missing WAVE identifier")
	}

	var (
		f        Format
		foundFmt bool
	)
	offset := riffHeaderSize
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))
		body := offset + 8

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 || body+16 > len(wav) {
				return Clip{}, errors.New("audio: WAV fmt chunk truncated")
			}
			fmtData := wav[body:]
			if tag := binary.LittleEndian.Uint16(fmtData[0:2]); tag != pcmFormatTag {
				return Clip{}, fmt.Errorf("audio: unsupported WAV format tag %d", tag)
			}
			f.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
			f.BitsPerSample = int(binary.LittleEndian.Uint16(fmtData[14:16]))
			foundFmt = true
		case "data":
			if !foundFmt {
				return Clip{}, errors.New("audio: WAV data chunk precedes fmt chunk")
			}
			if !f.Valid() {
				return Clip{}, fmt.Errorf("audio: unsupported WAV layout %s", f)
			}
			end := body + chunkSize
			// Streaming encoders write 0 or 0xFFFFFFFF when the length is unknown.
			if chunkSize == 0 || end > len(wav) || end < body {
				end = len(wav)
			}
			pcm := wav[body:end]
			pcm = pcm[:len(pcm)-len(pcm)%f.FrameSize()]
			return Clip{PCM: pcm, Format: f}, nil
		}

		offset = body + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return Clip{}, errors.New("audio: WAV data missing data chunk")
}

// EncodeWAV wraps clip in a canonical 44-byte RIFF/WAVE header.
func EncodeWAV(clip Clip) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + len(clip.PCM))
	if err := WriteWAV(&buf, clip); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWAV writes clip as a WAV stream to out.
func WriteWAV(out io.Writer, clip Clip) error {
	f := clip.Format
	if !f.Valid() {
		return fmt.Errorf("audio: cannot encode %s as WAV", f)
	}

	dataSize := uint32(len(clip.PCM))
	w := bufio.NewWriter(out)

	fields := []any{
		[4]byte{'R', 'I', 'F', 'F'},
		uint32(36) + dataSize,
		[4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '},
		uint32(16),
		uint16(pcmFormatTag),
		uint16(f.Channels),
		uint32(f.SampleRate),
		uint32(f.ByteRate()),
		uint16(f.FrameSize()),
		uint16(f.BitsPerSample),
		[4]byte{'d', 'a', 't', 'a'},
		dataSize,
	}
	for _, v := range fields {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("audio: write WAV header: %w", err)
		}
	}
	if _, err := w.Write(clip.PCM); err != nil {
		return fmt.Errorf("audio: write WAV data: %w", err)
	}
	return w.Flush()
}
