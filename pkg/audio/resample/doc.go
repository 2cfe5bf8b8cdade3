// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts microphone audio between sample rates
// Package resample provides streaming sample rate conversion for mono audio.
//
// Capture devices often run at 44.1 or 48 kHz while the live API expects
// 16 kHz frames. The resampler is stateful so it can be fed device-sized chunks.
//
// Example:
//
//	r := resample.New(48000, 16000)
//	frame16k := r.Process(deviceChunk)
package resample
