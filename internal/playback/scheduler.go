// ABOUTME: Gapless playback scheduler on a virtual device timeline
// ABOUTME: Tracks in-flight sources so an interruption can cancel them all at once
package playback

import (
	"errors"
	"sync"

	"github.com/Ashama-AI/ashama-go/pkg/audio"
	"go.uber.org/zap"
)

// ErrClosed is returned by Schedule after Stop
var ErrClosed = errors.New("playback scheduler stopped")

// Handle is an owned, started playback source
type Handle interface {
	// Stop halts the source. Stopping a finished source is a no-op.
	Stop()
}

// Device is an output device with its own clock, in seconds
type Device interface {
	Now() float64
	// Start begins playing buf at device time at. onEnded is called once,
	// from another goroutine, when the buffer finishes naturally. It is not
	// called for sources stopped through their Handle.
	Start(buf audio.Buffer, at float64, onEnded func()) (Handle, error)
}

// Scheduled is the slot a buffer was placed in
type Scheduled struct {
	Start float64
	End   float64
}

// Stats tracks scheduler metrics
type Stats struct {
	Scheduled     int64
	Ended         int64
	Stopped       int64
	Interruptions int64
}

// Scheduler places buffers back to back on the device timeline
type Scheduler struct {
	mu        sync.Mutex
	device    Device
	watermark float64
	active    map[uint64]Handle
	nextID    uint64
	talking   bool
	closed    bool
	stats     Stats

	onTalking func(bool)
	logger    *zap.SugaredLogger
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithOnTalking registers a callback for assistant talking transitions.
// It is invoked outside the scheduler lock.
func WithOnTalking(fn func(talking bool)) Option {
	return func(s *Scheduler) { s.onTalking = fn }
}

// WithLogger sets the logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// NewScheduler creates a scheduler bound to device
func NewScheduler(device Device, opts ...Option) *Scheduler {
	s := &Scheduler{
		device: device,
		active: make(map[uint64]Handle),
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule queues buf to start at max(now, watermark)
func (s *Scheduler) Schedule(buf audio.Buffer) (Scheduled, error) {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return Scheduled{}, ErrClosed
	}

	now := s.device.Now()
	start := now
	if s.watermark > start {
		start = s.watermark
	}
	slot := Scheduled{Start: start, End: start + buf.Duration()}

	if len(buf.Samples) == 0 {
		s.mu.Unlock()
		return slot, nil
	}

	id := s.nextID
	s.nextID++

	// onEnded takes the lock, so it cannot run before the handle is registered
	h, err := s.device.Start(buf, start, func() { s.ended(id) })
	if err != nil {
		s.mu.Unlock()
		return Scheduled{}, err
	}

	s.active[id] = h
	s.watermark = slot.End
	s.stats.Scheduled++

	if s.stats.Scheduled <= 3 {
		s.logger.Debugw("scheduled buffer",
			"n", s.stats.Scheduled, "start", start, "end", slot.End, "now", now)
	}

	notify := !s.talking
	s.talking = true
	s.mu.Unlock()

	if notify {
		s.emit(true)
	}
	return slot, nil
}

func (s *Scheduler) ended(id uint64) {
	s.mu.Lock()
	if _, ok := s.active[id]; !ok {
		// already stopped by an interruption
		s.mu.Unlock()
		return
	}
	delete(s.active, id)
	s.stats.Ended++

	notify := len(s.active) == 0 && s.talking
	if notify {
		s.talking = false
	}
	s.mu.Unlock()

	if notify {
		s.emit(false)
	}
}

// Interrupt stops every in-flight source and rewinds the timeline
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	n := s.stopAllLocked()
	s.stats.Interruptions++
	s.talking = false
	s.mu.Unlock()

	s.logger.Debugw("playback interrupted", "stopped", n)
	s.emit(false)
}

// Stop tears the scheduler down. Further Schedule calls fail with ErrClosed.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopAllLocked()
	notify := s.talking
	s.talking = false
	s.mu.Unlock()

	if notify {
		s.emit(false)
	}
}

func (s *Scheduler) stopAllLocked() int {
	n := len(s.active)
	for id, h := range s.active {
		h.Stop()
		delete(s.active, id)
	}
	s.stats.Stopped += int64(n)
	s.watermark = 0
	return n
}

func (s *Scheduler) emit(talking bool) {
	if s.onTalking != nil {
		s.onTalking(talking)
	}
}

// Active returns the number of in-flight sources
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Watermark returns the end time of the last scheduled buffer
func (s *Scheduler) Watermark() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watermark
}

// Talking reports whether any source is in flight
func (s *Scheduler) Talking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.talking
}

// Stats returns scheduler statistics
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
