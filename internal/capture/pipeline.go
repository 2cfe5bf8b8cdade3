// ABOUTME: Microphone capture pipeline producing outbound PCM16 frames
// ABOUTME: Reframes device audio into fixed windows and flags user speech by amplitude
package capture

import (
	"context"
	"sync"

	"github.com/Ashama-AI/ashama-go/internal/live"
	"github.com/Ashama-AI/ashama-go/pkg/audio"
	"github.com/Ashama-AI/ashama-go/pkg/audio/resample"
	"go.uber.org/zap"
)

// DefaultThreshold is the mean absolute amplitude above which the user is
// considered to be talking. It equals a summed amplitude of 1.2 over one
// 4096-sample frame.
const DefaultThreshold = 1.2 / audio.FrameSize

// Sender accepts outbound frames. live.Session satisfies it.
type Sender interface {
	Send(ctx context.Context, frame live.AudioFrame) error
}

// FrameResult describes one processed frame
type FrameResult struct {
	Mean    float64
	Talking bool
	Sent    bool
	Err     error
}

// Stats tracks pipeline metrics
type Stats struct {
	Frames     int64
	Sent       int64
	SendErrors int64
}

// Pipeline turns capture samples into network frames
type Pipeline struct {
	mu        sync.Mutex
	sender    Sender
	format    audio.Format
	threshold float64
	frameSize int
	resampler *resample.Resampler
	pending   []float32
	stats     Stats

	onFrame func(FrameResult)
	logger  *zap.SugaredLogger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithThreshold overrides DefaultThreshold
func WithThreshold(v float64) Option {
	return func(p *Pipeline) { p.threshold = v }
}

// WithFrameSize overrides audio.FrameSize
func WithFrameSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.frameSize = n
		}
	}
}

// WithDeviceRate resamples input from the device rate to the capture rate
func WithDeviceRate(rate int) Option {
	return func(p *Pipeline) {
		if rate > 0 && rate != audio.CaptureSampleRate {
			p.resampler = resample.New(rate, audio.CaptureSampleRate)
		}
	}
}

// WithOnFrame registers a callback invoked after every processed frame
func WithOnFrame(fn func(FrameResult)) Option {
	return func(p *Pipeline) { p.onFrame = fn }
}

// WithLogger sets the logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a pipeline sending to sender
func New(sender Sender, opts ...Option) *Pipeline {
	p := &Pipeline{
		sender:    sender,
		format:    audio.PCM16(audio.CaptureSampleRate),
		threshold: DefaultThreshold,
		frameSize: audio.FrameSize,
		logger:    zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process encodes and sends one frame, and evaluates the talking heuristic.
// A send failure is reported in the result; it never stops the pipeline.
func (p *Pipeline) Process(ctx context.Context, frame []float32) FrameResult {
	mean := audio.MeanAbs(frame)
	res := FrameResult{
		Mean:    mean,
		Talking: mean > p.threshold,
	}

	pcm := audio.FloatToPCM16(frame)
	err := p.sender.Send(ctx, live.NewAudioFrame(pcm, p.format))

	p.mu.Lock()
	p.stats.Frames++
	if err != nil {
		p.stats.SendErrors++
		if p.stats.SendErrors == 1 {
			p.logger.Warnw("capture frame not sent", "error", err)
		}
	} else {
		p.stats.Sent++
	}
	p.mu.Unlock()

	res.Sent = err == nil
	res.Err = err

	if p.onFrame != nil {
		p.onFrame(res)
	}
	return res
}

// Write accepts device samples of any length, resamples them and processes
// every complete frame. Leftover samples wait for the next call.
func (p *Pipeline) Write(ctx context.Context, samples []float32) []FrameResult {
	p.mu.Lock()
	if p.resampler != nil {
		samples = p.resampler.Process(samples)
	}
	p.pending = append(p.pending, samples...)

	var frames [][]float32
	for len(p.pending) >= p.frameSize {
		frame := make([]float32, p.frameSize)
		copy(frame, p.pending[:p.frameSize])
		frames = append(frames, frame)
		p.pending = p.pending[p.frameSize:]
	}
	if len(p.pending) == 0 {
		p.pending = nil
	}
	p.mu.Unlock()

	results := make([]FrameResult, 0, len(frames))
	for _, f := range frames {
		results = append(results, p.Process(ctx, f))
	}
	return results
}

// Reset drops buffered samples and resampler state
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = nil
	if p.resampler != nil {
		p.resampler.Reset()
	}
}

// Buffered returns the number of samples waiting for a full frame
func (p *Pipeline) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Stats returns pipeline statistics
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
