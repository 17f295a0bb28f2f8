// Package audio holds the PCM primitives shared by TTS providers and the
// render pipeline: clip and format types, a RIFF/WAVE codec, format
// conversion, and the append-only buffer that stitches a play together.
//
// All sample data is little-endian signed 16-bit PCM.
package audio

import "time"

// Format describes the layout of a PCM stream.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// Output is the format every rendered play is written in: 24 kHz, 16-bit, mono.
var Output = Format{SampleRate: 24000, Channels: 1, BitsPerSample: 16}

// FrameSize returns the number of bytes in one sample frame.
func (f Format) FrameSize() int {
	return f.Channels * f.BitsPerSample / 8
}

// ByteRate returns the number of bytes per second of audio.
func (f Format) ByteRate() int {
	return f.SampleRate * f.FrameSize()
}

// Valid reports whether f describes 16-bit PCM with a positive rate and
// one or two channels.
func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.BitsPerSample == 16 && (f.Channels == 1 || f.Channels == 2)
}

// Clip is a contiguous piece of PCM audio, typically one TTS response.
type Clip struct {
	PCM    []byte
	Format Format
}

// Duration returns the playback length of the clip.
func (c Clip) Duration() time.Duration {
	return BytesDuration(len(c.PCM), c.Format)
}

// BytesDuration converts a PCM byte count into playback time for format f.
func BytesDuration(n int, f Format) time.Duration {
	rate := f.ByteRate()
	if rate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(rate))
}

// Silence returns zeroed PCM of length d in format f, rounded down to a whole
// number of frames.
func Silence(d time.Duration, f Format) []byte {
	if d <= 0 || f.FrameSize() <= 0 {
		return nil
	}
	frames := int64(d) * int64(f.SampleRate) / int64(time.Second)
	return make([]byte, int(frames)*f.FrameSize())
}
