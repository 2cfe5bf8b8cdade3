// ABOUTME: Audio type definitions
// ABOUTME: Defines stream formats and decoded mono float buffers
package audio

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// CaptureSampleRate is the rate of microphone frames sent upstream.
	CaptureSampleRate = 16000

	// PlaybackSampleRate is the rate of audio fragments sent by the live API.
	PlaybackSampleRate = 24000

	// FrameSize is the capture window in samples.
	FrameSize = 4096
)

// Format describes a raw PCM16 mono stream
type Format struct {
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
}

// PCM16 returns the mono 16-bit PCM format at the given rate
func PCM16(sampleRate int) Format {
	return Format{
		Codec:      "pcm",
		SampleRate: sampleRate,
		Channels:   1,
		BitDepth:   16,
	}
}

// MIMEType renders the format the way the live API declares it, e.g. audio/pcm;rate=16000
func (f Format) MIMEType() string {
	return fmt.Sprintf("audio/%s;rate=%d", f.Codec, f.SampleRate)
}

// ParseRate extracts the rate parameter from a MIME type such as audio/pcm;rate=24000.
// Returns fallback when the parameter is missing or malformed.
func ParseRate(mimeType string, fallback int) int {
	for _, param := range strings.Split(mimeType, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(key, "rate") {
			continue
		}
		rate, err := strconv.Atoi(value)
		if err != nil || rate <= 0 {
			return fallback
		}
		return rate
	}
	return fallback
}

// Buffer represents decoded mono audio in the [-1.0, 1.0) range
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the playback length in seconds
func (b Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}
