// ABOUTME: Audio output using oto library
// ABOUTME: Plays scheduled buffers at device-clock times and reports natural ends
package device

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/Ashama-AI/ashama-go/internal/playback"
	"github.com/Ashama-AI/ashama-go/pkg/audio"
	"github.com/Ashama-AI/ashama-go/pkg/audio/resample"
	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"
)

// Speaker is a mono PCM16 output. oto allows one context per process, so a
// Speaker is created once and acquired/released per session.
type Speaker struct {
	mu         sync.Mutex
	otoCtx     *oto.Context
	sampleRate int
	epoch      time.Time
	acquired   bool
	volume     float64
	logger     *zap.SugaredLogger
}

// NewSpeaker creates the oto context at sampleRate
func NewSpeaker(sampleRate int, logger *zap.SugaredLogger) (*Speaker, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	// Start suspended; Acquire resumes
	if err := ctx.Suspend(); err != nil {
		logger.Warnw("failed to suspend audio output", "error", err)
	}

	logger.Infow("audio output initialized", "sample_rate", sampleRate)

	return &Speaker{
		otoCtx:     ctx,
		sampleRate: sampleRate,
		epoch:      time.Now(),
		volume:     1,
		logger:     logger,
	}, nil
}

// Acquire resumes the output device for a session
func (s *Speaker) Acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.acquired {
		return nil
	}
	if err := s.otoCtx.Resume(); err != nil {
		return fmt.Errorf("failed to resume audio output: %w", err)
	}
	s.acquired = true
	return nil
}

// Release suspends the output device. Safe to call repeatedly.
func (s *Speaker) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.acquired {
		return nil
	}
	s.acquired = false
	if err := s.otoCtx.Suspend(); err != nil {
		return fmt.Errorf("failed to suspend audio output: %w", err)
	}
	return nil
}

// SetVolume sets the software gain (0.0-1.0)
func (s *Speaker) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	s.mu.Lock()
	s.volume = v
	s.mu.Unlock()
}

// Now returns device time in seconds since the speaker was created
func (s *Speaker) Now() float64 {
	return time.Since(s.epoch).Seconds()
}

// Start plays buf at device time at. Buffers at another rate are resampled.
func (s *Speaker) Start(buf audio.Buffer, at float64, onEnded func()) (playback.Handle, error) {
	s.mu.Lock()
	volume := s.volume
	acquired := s.acquired
	s.mu.Unlock()

	if !acquired {
		return nil, fmt.Errorf("audio output not acquired")
	}

	samples := buf.Samples
	if buf.SampleRate != s.sampleRate && buf.SampleRate > 0 {
		samples = resample.New(buf.SampleRate, s.sampleRate).Process(samples)
	}
	if volume != 1 {
		scaled := make([]float32, len(samples))
		for i, v := range samples {
			scaled[i] = v * float32(volume)
		}
		samples = scaled
	}

	src := &source{
		pcm:      audio.FloatToPCM16(samples),
		duration: time.Duration(buf.Duration() * float64(time.Second)),
		onEnded:  onEnded,
	}

	delay := time.Duration((at - s.Now()) * float64(time.Second))
	if delay < 0 {
		delay = 0
	}

	src.mu.Lock()
	src.startTimer = time.AfterFunc(delay, func() { src.play(s.otoCtx) })
	src.mu.Unlock()

	return src, nil
}

// source is one scheduled oto player
type source struct {
	mu         sync.Mutex
	pcm        []byte
	duration   time.Duration
	onEnded    func()
	player     *oto.Player
	startTimer *time.Timer
	endTimer   *time.Timer
	stopped    bool
	ended      bool
}

func (src *source) play(ctx *oto.Context) {
	src.mu.Lock()
	defer src.mu.Unlock()

	if src.stopped {
		return
	}

	src.player = ctx.NewPlayer(bytes.NewReader(src.pcm))
	src.player.Play()
	src.endTimer = time.AfterFunc(src.duration, src.finish)
}

func (src *source) finish() {
	src.mu.Lock()
	if src.stopped || src.ended {
		src.mu.Unlock()
		return
	}
	src.ended = true
	if src.player != nil {
		src.player.Close()
	}
	src.mu.Unlock()

	if src.onEnded != nil {
		src.onEnded()
	}
}

// Stop halts the source. Stopping a finished source is a no-op.
func (src *source) Stop() {
	src.mu.Lock()
	defer src.mu.Unlock()

	if src.stopped || src.ended {
		return
	}
	src.stopped = true

	if src.startTimer != nil {
		src.startTimer.Stop()
	}
	if src.endTimer != nil {
		src.endTimer.Stop()
	}
	if src.player != nil {
		src.player.Pause()
		src.player.Close()
	}
}
