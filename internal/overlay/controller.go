// ABOUTME: Live voice session controller and state machine
// ABOUTME: Serialises remote messages, capture frames and user actions on one event loop
package overlay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/Ashama-AI/ashama-go/internal/capture"
	"github.com/Ashama-AI/ashama-go/internal/device/category"
	"github.com/Ashama-AI/ashama-go/internal/live"
	"github.com/Ashama-AI/ashama-go/internal/metrics"
	"github.com/Ashama-AI/ashama-go/internal/playback"
	"github.com/Ashama-AI/ashama-go/internal/transcript"
	"github.com/Ashama-AI/ashama-go/pkg/audio"
	"go.uber.org/zap"
)

// Speaker is the output device for one session at a time
type Speaker interface {
	playback.Device
	Acquire() error
	Release() error
}

// Microphone is an open capture stream
type Microphone interface {
	Close() error
}

// MicrophoneSource opens the capture device. onSamples may be called from
// an audio thread and must not block.
type MicrophoneSource interface {
	Open(ctx context.Context, sampleRate int, onSamples func([]float32)) (Microphone, error)
}

// MicrophoneFunc adapts a function to MicrophoneSource
type MicrophoneFunc func(ctx context.Context, sampleRate int, onSamples func([]float32)) (Microphone, error)

// Open calls f
func (f MicrophoneFunc) Open(ctx context.Context, sampleRate int, onSamples func([]float32)) (Microphone, error) {
	return f(ctx, sampleRate, onSamples)
}

// Config holds controller configuration
type Config struct {
	Dialer     live.Dialer
	Session    live.Config
	Speaker    Speaker
	Microphone MicrophoneSource

	// CaptureRate is the rate the microphone is opened at. Audio is
	// resampled to 16kHz before it is sent.
	CaptureRate  int
	Threshold    float64
	FlushOnClose bool

	OnChange  func(Snapshot)
	OnMessage func(transcript.Message)

	Logger  *zap.SugaredLogger
	Metrics *metrics.Metrics
}

// Controller drives one overlay: connect, converse, fail, retry, close
type Controller struct {
	config Config
	logger *zap.SugaredLogger

	mu      sync.Mutex
	state   State
	ai      bool
	user    bool
	errText string
	errCat  string
	gen     uint64
	sess    *session
	started bool
	closed  bool

	// cancels the in-flight connect attempt
	connectCancel context.CancelFunc

	mailbox []event
	notify  chan struct{}
	done    chan struct{}

	closeOnce sync.Once
	last      Snapshot
}

// session owns the resources of one connection attempt
type session struct {
	gen        uint64
	live       live.Session
	mic        Microphone
	scheduler  *playback.Scheduler
	pipeline   atomic.Pointer[capture.Pipeline]
	transcript *transcript.Aggregator
	cancel     context.CancelFunc
	teardown   sync.Once
}

type event interface{}

type (
	evStart struct {
		ctx context.Context
	}
	evConnected struct {
		gen  uint64
		sess *session
	}
	evFailed struct {
		gen uint64
		err error
	}
	evMessage struct {
		gen uint64
		msg live.Message
	}
	evAITalking struct {
		gen     uint64
		talking bool
	}
	evUserTalking struct {
		gen     uint64
		talking bool
	}
	evClose struct{}
)

// New creates a controller. Start begins the first connection.
func New(config Config) *Controller {
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}
	if config.CaptureRate <= 0 {
		config.CaptureRate = audio.CaptureSampleRate
	}
	if config.Threshold <= 0 {
		config.Threshold = capture.DefaultThreshold
	}

	return &Controller{
		config: config,
		logger: config.Logger,
		state:  StateConnecting,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Start runs the event loop and begins connecting. The loop ends when Close
// is called or ctx is cancelled.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	go c.run(ctx)
	c.post(evStart{ctx: ctx})
	return nil
}

// Retry re-runs the acquisition sequence after a failure
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return ErrNotStarted
	}
	if c.state != StateError {
		return ErrNotRetryable
	}
	c.postLocked(evStart{ctx: ctx})
	return nil
}

// Close ends the session and waits for teardown. Safe to call repeatedly.
func (c *Controller) Close() {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()

	if !started {
		c.closeOnce.Do(func() { close(c.done) })
		return
	}
	c.post(evClose{})
	<-c.done
}

// Done is closed once the controller has shut down
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the UI view
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:         c.state,
		Status:        statusFor(c.state),
		AITalking:     c.ai,
		UserTalking:   c.user,
		Error:         c.errText,
		ErrorCategory: c.errCat,
		Generation:    c.gen,
	}
	if c.state == StateError {
		snap.Status = c.errText
	}
	return snap
}

func (c *Controller) post(ev event) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		// a connect that finished after shutdown still owns its resources
		if e, ok := ev.(evConnected); ok {
			c.teardown(e.sess)
		}
		return
	}
	c.postLocked(ev)
	c.mu.Unlock()
}

func (c *Controller) postLocked(ev event) {
	c.mailbox = append(c.mailbox, ev)
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *Controller) run(ctx context.Context) {
	defer c.closeOnce.Do(func() { close(c.done) })

	for {
		select {
		case <-ctx.Done():
			c.shutdown(nil)
			return
		case <-c.notify:
		}

		c.mu.Lock()
		batch := c.mailbox
		c.mailbox = nil
		c.mu.Unlock()

		for i, ev := range batch {
			if _, ok := ev.(evClose); ok {
				c.shutdown(batch[i+1:])
				return
			}
			c.handle(ev)
			c.publish()

			// a clean remote close ends the overlay
			if c.State() == StateClosed {
				c.shutdown(batch[i+1:])
				return
			}
		}
	}
}

func (c *Controller) handle(ev event) {
	switch e := ev.(type) {
	case evStart:
		c.connect(e.ctx)

	case evConnected:
		c.mu.Lock()
		stale := e.gen != c.gen || c.state != StateConnecting
		if !stale {
			c.sess = e.sess
			c.connectCancel = nil
			c.setStateLocked(StateActive)
		}
		c.mu.Unlock()

		if stale {
			c.logger.Debugw("dropping stale connection", "gen", e.gen)
			c.teardown(e.sess)
			return
		}
		c.config.Metrics.SessionOpened()
		c.logger.Infow("live session active", "gen", e.gen)
		go c.pump(e.sess)

	case evFailed:
		c.mu.Lock()
		stale := e.gen != c.gen || c.state != StateConnecting
		c.mu.Unlock()
		if stale {
			return
		}
		c.fail(e.err)

	case evMessage:
		sess := c.current(e.gen)
		if sess == nil {
			return
		}
		c.onMessage(sess, e.msg)

	case evAITalking:
		if c.current(e.gen) == nil {
			return
		}
		c.mu.Lock()
		c.ai = e.talking
		c.deriveLocked()
		c.mu.Unlock()

	case evUserTalking:
		if c.current(e.gen) == nil {
			return
		}
		c.config.Metrics.SetUserTalking(e.talking)
		c.mu.Lock()
		c.user = e.talking
		c.deriveLocked()
		c.mu.Unlock()
	}
}

// current returns the live session for gen, or nil if gen is stale
func (c *Controller) current(gen uint64) *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.sess == nil || c.sess.gen != gen {
		return nil
	}
	return c.sess
}

// connect enters Connecting and starts a fresh acquisition in the background
func (c *Controller) connect(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateConnecting && c.state != StateError {
		c.mu.Unlock()
		return
	}
	if c.connectCancel != nil {
		c.connectCancel()
	}
	c.gen++
	gen := c.gen
	c.errText = ""
	c.errCat = ""
	c.ai = false
	c.user = false
	c.setStateLocked(StateConnecting)

	attemptCtx, cancel := context.WithCancel(ctx)
	c.connectCancel = cancel
	c.mu.Unlock()

	c.logger.Infow("connecting live session", "gen", gen)
	go c.acquire(attemptCtx, cancel, gen)
}

// acquire runs the blocking part of connecting: speaker, microphone, session
func (c *Controller) acquire(ctx context.Context, cancel context.CancelFunc, gen uint64) {
	sess := &session{
		gen:    gen,
		cancel: cancel,
		transcript: transcript.New(
			transcript.WithFlushOnClose(c.config.FlushOnClose),
			transcript.WithLogger(c.logger),
		),
	}

	if err := c.config.Speaker.Acquire(); err != nil {
		c.post(evFailed{gen: gen, err: &DeviceError{Category: category.Other, Err: err}})
		return
	}

	mic, err := c.config.Microphone.Open(ctx, c.config.CaptureRate, func(samples []float32) {
		if p := sess.pipeline.Load(); p != nil {
			p.Write(ctx, samples)
		}
	})
	if err != nil {
		c.config.Speaker.Release()
		c.post(evFailed{gen: gen, err: &DeviceError{Category: category.Classify(err), Err: err}})
		return
	}
	sess.mic = mic

	ls, err := c.config.Dialer.Dial(ctx, c.config.Session)
	if err != nil {
		mic.Close()
		c.config.Speaker.Release()
		c.post(evFailed{gen: gen, err: &ConnectError{Err: err}})
		return
	}
	sess.live = ls

	sess.scheduler = playback.NewScheduler(c.config.Speaker,
		playback.WithLogger(c.logger),
		playback.WithOnTalking(func(talking bool) {
			c.post(evAITalking{gen: gen, talking: talking})
		}),
	)

	sess.pipeline.Store(capture.New(ls,
		capture.WithDeviceRate(c.config.CaptureRate),
		capture.WithThreshold(c.config.Threshold),
		capture.WithLogger(c.logger),
		capture.WithOnFrame(func(r capture.FrameResult) {
			c.post(evUserTalking{gen: gen, talking: r.Talking})
		}),
	))

	c.post(evConnected{gen: gen, sess: sess})
}

// pump forwards remote messages into the mailbox
func (c *Controller) pump(sess *session) {
	sawClosed := false
	for m := range sess.live.Messages() {
		if _, ok := m.(live.Closed); ok {
			sawClosed = true
		}
		c.post(evMessage{gen: sess.gen, msg: m})
	}
	if !sawClosed {
		c.post(evMessage{gen: sess.gen, msg: live.Closed{}})
	}
}

func (c *Controller) onMessage(sess *session, msg live.Message) {
	switch m := msg.(type) {
	case live.TurnComplete:
		c.commit(sess.transcript.Flush())

	case live.AudioFragment:
		samples, err := audio.PCM16ToFloat(m.Data)
		if err != nil {
			c.config.Metrics.CodecError()
			c.logger.Warnw("dropping audio fragment", "error", err)
			return
		}
		rate := m.SampleRate
		if rate <= 0 {
			rate = audio.PlaybackSampleRate
		}
		if _, err := sess.scheduler.Schedule(audio.Buffer{Samples: samples, SampleRate: rate}); err != nil {
			c.logger.Warnw("failed to schedule audio", "error", err)
		}
		c.config.Metrics.SetActiveSources(sess.scheduler.Active())

	case live.TextFragment:
		sess.transcript.Append(live.RoleAssistant, m.Text)

	case live.TranscriptionFragment:
		sess.transcript.Append(m.Role, m.Text)

	case live.Interrupted:
		c.config.Metrics.Interruption()
		sess.scheduler.Interrupt()
		c.config.Metrics.SetActiveSources(0)
		c.logger.Debugw("assistant interrupted")

	case live.Closed:
		if m.Err != nil {
			c.logger.Errorw("live session failed", "error", m.Err)
			c.fail(m.Err)
			return
		}
		c.logger.Infow("live session closed by server")
		c.end(StateClosed, "", "")
	}
}

func (c *Controller) commit(msgs []transcript.Message) {
	for _, m := range msgs {
		c.logger.Debugw("transcript committed", "role", m.Role, "chars", len(m.Content))
		if c.config.OnMessage != nil {
			c.config.OnMessage(m)
		}
	}
}

// fail tears down the current session and enters Error
func (c *Controller) fail(err error) {
	kind, message := describe(err)
	c.config.Metrics.SessionError(kind)
	c.logger.Warnw("live session error", "category", kind, "error", err)

	c.end(StateError, kind, message)
}

// end releases the current session and moves to a terminal state
func (c *Controller) end(state State, kind, message string) {
	c.mu.Lock()
	c.errCat = kind
	c.errText = message
	sess := c.sess
	c.sess = nil
	if c.connectCancel != nil {
		c.connectCancel()
		c.connectCancel = nil
	}
	c.ai = false
	c.user = false
	c.setStateLocked(state)
	c.mu.Unlock()

	if sess != nil {
		c.teardown(sess)
	}
}

// teardown releases everything a session holds, exactly once
func (c *Controller) teardown(sess *session) {
	sess.teardown.Do(func() {
		if sess.cancel != nil {
			defer sess.cancel()
		}
		if sess.scheduler != nil {
			sess.scheduler.Stop()
		}
		if p := sess.pipeline.Swap(nil); p != nil {
			p.Reset()
		}
		if sess.mic != nil {
			if err := sess.mic.Close(); err != nil {
				c.logger.Warnw("failed to close microphone", "error", err)
			}
		}
		if sess.live != nil {
			if err := sess.live.Close(); err != nil {
				c.logger.Warnw("failed to close live session", "error", err)
			}
		}
		if err := c.config.Speaker.Release(); err != nil {
			c.logger.Warnw("failed to release speaker", "error", err)
		}
		c.commit(sess.transcript.Close())
		c.config.Metrics.SetActiveSources(0)
		c.logger.Infow("live session torn down", "gen", sess.gen)
	})
}

func (c *Controller) shutdown(unhandled []event) {
	c.mu.Lock()
	c.gen++
	c.closed = true
	unhandled = append(unhandled, c.mailbox...)
	c.mailbox = nil
	c.mu.Unlock()

	for _, ev := range unhandled {
		if e, ok := ev.(evConnected); ok {
			c.teardown(e.sess)
		}
	}

	c.end(StateClosed, "", "")
	c.publish()
	c.logger.Infow("overlay closed")
}

func (c *Controller) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.config.Metrics.StateTransition(s.String())
}

// deriveLocked picks the talking sub-state of a live session
func (c *Controller) deriveLocked() {
	if !c.state.Live() {
		return
	}
	switch {
	case c.ai:
		c.setStateLocked(StateTalkingAI)
	case c.user:
		c.setStateLocked(StateTalkingUser)
	default:
		c.setStateLocked(StateActive)
	}
}

// publish notifies OnChange if the snapshot changed
func (c *Controller) publish() {
	c.mu.Lock()
	snap := c.snapshotLocked()
	changed := snap != c.last
	c.last = snap
	c.mu.Unlock()

	if changed && c.config.OnChange != nil {
		c.config.OnChange(snap)
	}
}

// IsDeviceError reports whether err is a categorized device failure
func IsDeviceError(err error) bool {
	var de *DeviceError
	return errors.As(err, &de)
}
