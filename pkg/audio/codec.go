// ABOUTME: Codec helpers for the live audio wire format
// ABOUTME: Converts between base64 text, PCM16 bytes and float32 samples
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrOddLength is returned when a PCM16 buffer is not sample aligned
var ErrOddLength = errors.New("pcm16 buffer has odd length")

// CodecError reports a malformed payload. It fails one message, never the session.
type CodecError struct {
	Op  string
	Len int
	Err error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("audio %s (%d bytes): %v", e.Op, e.Len, e.Err)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

// EncodeBase64 encodes raw bytes with the standard padded alphabet
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 is the inverse of EncodeBase64
func DecodeBase64(text string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, &CodecError{Op: "base64 decode", Len: len(text), Err: err}
	}
	return data, nil
}

// PCM16ToFloat maps little-endian signed 16-bit samples to [-1.0, 1.0) by dividing by 32768
func PCM16ToFloat(data []byte) ([]float32, error) {
	if len(data)%2 != 0 {
		return nil, &CodecError{Op: "pcm16 decode", Len: len(data), Err: ErrOddLength}
	}

	samples := make([]float32, len(data)/2)
	for i := range samples {
		sample := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples, nil
}

// FloatToPCM16 multiplies by 32768 and truncates toward zero.
// Values at or beyond full scale are clamped so 1.0 does not wrap to -32768.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(toInt16(s)))
	}
	return out
}

func toInt16(s float32) int16 {
	v := float64(s) * 32768.0
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt16:
		return math.MaxInt16
	case v <= math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

// MeanAbs returns the mean absolute amplitude of the samples
func MeanAbs(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += math.Abs(float64(s))
	}
	return sum / float64(len(samples))
}
