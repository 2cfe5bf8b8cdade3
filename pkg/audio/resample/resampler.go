// ABOUTME: Streaming linear resampler for mono float audio
// ABOUTME: Converts microphone audio to the 16kHz capture rate across chunk boundaries
package resample

// Resampler performs linear interpolation to convert between sample rates.
// It keeps the last input sample so consecutive chunks join without a seam.
type Resampler struct {
	inputRate  int
	outputRate int
	ratio      float64
	position   float64
	last       float32
	primed     bool
}

// New creates a new resampler
func New(inputRate, outputRate int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		ratio:      float64(inputRate) / float64(outputRate),
	}
}

// Passthrough reports whether input and output rates match
func (r *Resampler) Passthrough() bool {
	return r.inputRate == r.outputRate
}

// Process converts a chunk of input samples and returns the samples produced so far
func (r *Resampler) Process(input []float32) []float32 {
	if len(input) == 0 {
		return nil
	}
	if r.Passthrough() {
		out := make([]float32, len(input))
		copy(out, input)
		return out
	}

	// Prepend the carried sample so interpolation can span the chunk boundary
	x := input
	if r.primed {
		x = make([]float32, 0, len(input)+1)
		x = append(x, r.last)
		x = append(x, input...)
	}

	out := make([]float32, 0, r.OutputSamplesNeeded(len(x))+1)
	for r.position < float64(len(x)-1) {
		idx := int(r.position)
		frac := float32(r.position - float64(idx))
		out = append(out, x[idx]*(1-frac)+x[idx+1]*frac)
		r.position += r.ratio
	}

	r.position -= float64(len(x) - 1)
	r.last = x[len(x)-1]
	r.primed = true

	return out
}

// Reset resets the resampler state
func (r *Resampler) Reset() {
	r.position = 0
	r.last = 0
	r.primed = false
}

// OutputSamplesNeeded estimates how many output samples input samples produce
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	return int(float64(inputSamples) / r.ratio)
}
