// ABOUTME: Audio fundamentals package providing core types and codec helpers
// ABOUTME: Defines Format, Buffer and the PCM16/base64 conversions used on the wire
// Package audio provides the audio types and conversions shared by capture and playback.
//
// The live API speaks mono 16-bit little-endian PCM, base64 encoded inside JSON:
//   - upstream microphone frames at 16 kHz (audio/pcm;rate=16000)
//   - downstream assistant fragments at 24 kHz (audio/pcm;rate=24000)
//
// Example:
//
//	samples, err := audio.PCM16ToFloat(fragment)
//	if err != nil {
//	    // drop this fragment only
//	}
//	buf := audio.Buffer{Samples: samples, SampleRate: audio.PlaybackSampleRate}
//
//	frame := audio.EncodeBase64(audio.FloatToPCM16(mic))
package audio
