// ABOUTME: Tests for the overlay controller state machine
// ABOUTME: Drives connect, talk, interrupt, error, retry and close with fakes
package overlay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Ashama-AI/ashama-go/internal/device/category"
	"github.com/Ashama-AI/ashama-go/internal/live"
	"github.com/Ashama-AI/ashama-go/internal/playback"
	"github.com/Ashama-AI/ashama-go/internal/transcript"
	"github.com/Ashama-AI/ashama-go/pkg/audio"
)

type fakeHandle struct {
	mu      sync.Mutex
	at      float64
	dur     float64
	onEnded func()
	stopped bool
}

func (h *fakeHandle) Stop() {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
}

func (h *fakeHandle) isStopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

type fakeSpeaker struct {
	mu         sync.Mutex
	handles    []*fakeHandle
	acquires   int
	releases   int
	acquireErr error
}

func (s *fakeSpeaker) Now() float64 { return 0 }

func (s *fakeSpeaker) Start(buf audio.Buffer, at float64, onEnded func()) (playback.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := &fakeHandle{at: at, dur: buf.Duration(), onEnded: onEnded}
	s.handles = append(s.handles, h)
	return h, nil
}

func (s *fakeSpeaker) Acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquires++
	return s.acquireErr
}

func (s *fakeSpeaker) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases++
	return nil
}

func (s *fakeSpeaker) started() []*fakeHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeHandle(nil), s.handles...)
}

func (s *fakeSpeaker) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquires, s.releases
}

type fakeMic struct {
	mu     sync.Mutex
	closes int
}

func (m *fakeMic) Close() error {
	m.mu.Lock()
	m.closes++
	m.mu.Unlock()
	return nil
}

func (m *fakeMic) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

type fakeMicSource struct {
	mu        sync.Mutex
	err       error
	mics      []*fakeMic
	onSamples func([]float32)
}

func (f *fakeMicSource) Open(_ context.Context, _ int, onSamples func([]float32)) (Microphone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	m := &fakeMic{}
	f.mics = append(f.mics, m)
	f.onSamples = onSamples
	return m, nil
}

func (f *fakeMicSource) mic(i int) *fakeMic {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mics[i]
}

func (f *fakeMicSource) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeMicSource) feed(samples []float32) {
	f.mu.Lock()
	fn := f.onSamples
	f.mu.Unlock()
	fn(samples)
}

type harness struct {
	c       *Controller
	speaker *fakeSpeaker
	mics    *fakeMicSource
	dialer  *live.FakeDialer

	mu       sync.Mutex
	states   []State
	messages []transcript.Message
}

func newHarness(t *testing.T, sessions ...*live.FakeSession) *harness {
	t.Helper()
	h := &harness{
		speaker: &fakeSpeaker{},
		mics:    &fakeMicSource{},
		dialer:  live.NewFakeDialer(sessions...),
	}
	h.c = New(Config{
		Dialer:     h.dialer,
		Session:    live.Config{Model: "test-live"},
		Speaker:    h.speaker,
		Microphone: h.mics,
		OnChange: func(s Snapshot) {
			h.mu.Lock()
			h.states = append(h.states, s.State)
			h.mu.Unlock()
		},
		OnMessage: func(m transcript.Message) {
			h.mu.Lock()
			h.messages = append(h.messages, m)
			h.mu.Unlock()
		},
	})
	t.Cleanup(h.c.Close)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
}

func (h *harness) seen() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]State(nil), h.states...)
}

func (h *harness) committed() []transcript.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]transcript.Message(nil), h.messages...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitState(t *testing.T, c *Controller, want State) {
	t.Helper()
	waitFor(t, want.String(), func() bool { return c.State() == want })
}

func pcm(seconds float64) []byte {
	n := int(seconds * audio.PlaybackSampleRate)
	return make([]byte, n*2)
}

func constant(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestConnectToActive(t *testing.T) {
	sess := live.NewFakeSession(64)
	h := newHarness(t, sess)
	h.start(t)

	waitState(t, h.c, StateActive)

	snap := h.c.Snapshot()
	if snap.Status != StatusActive {
		t.Errorf("status = %q, want %q", snap.Status, StatusActive)
	}
	if seen := h.seen(); len(seen) < 2 || seen[0] != StateConnecting {
		t.Errorf("expected Connecting then Active, got %v", seen)
	}
	if cfgs := h.dialer.Configs(); len(cfgs) != 1 || cfgs[0].Model != "test-live" {
		t.Errorf("unexpected dial configs %+v", cfgs)
	}
	if err := h.c.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestPermissionDeniedThenRetry(t *testing.T) {
	h := newHarness(t)
	h.mics.setErr(category.ErrPermissionDenied)
	h.start(t)

	waitState(t, h.c, StateError)

	snap := h.c.Snapshot()
	if snap.ErrorCategory != string(category.PermissionDenied) {
		t.Errorf("category = %q, want permission-denied", snap.ErrorCategory)
	}
	if snap.Status != category.PermissionDenied.Message("") {
		t.Errorf("unexpected status %q", snap.Status)
	}
	if h.dialer.Dials() != 0 {
		t.Error("session must not be opened without a microphone")
	}
	if acq, rel := h.speaker.counts(); acq != 1 || rel != 1 {
		t.Errorf("speaker acquire/release = %d/%d, want 1/1", acq, rel)
	}

	h.mics.setErr(nil)
	if err := h.c.Retry(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	waitState(t, h.c, StateActive)

	seen := h.seen()
	idx := -1
	for i, s := range seen {
		if s == StateError {
			idx = i
			break
		}
	}
	if idx < 0 || idx+1 >= len(seen) || seen[idx+1] != StateConnecting {
		t.Errorf("expected Error followed by Connecting, got %v", seen)
	}
	if snap := h.c.Snapshot(); snap.Error != "" || snap.ErrorCategory != "" {
		t.Errorf("error not cleared on retry: %+v", snap)
	}
}

func TestDeviceNotFound(t *testing.T) {
	h := newHarness(t)
	h.mics.setErr(errors.New("No device"))
	h.start(t)

	waitState(t, h.c, StateError)
	if cat := h.c.Snapshot().ErrorCategory; cat != string(category.NotFound) {
		t.Errorf("category = %q, want device-not-found", cat)
	}
}

func TestRetryOnlyFromError(t *testing.T) {
	h := newHarness(t, live.NewFakeSession(8))
	if err := h.c.Retry(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
	h.start(t)
	waitState(t, h.c, StateActive)
	if err := h.c.Retry(context.Background()); !errors.Is(err, ErrNotRetryable) {
		t.Errorf("expected ErrNotRetryable, got %v", err)
	}
}

func TestDialFailure(t *testing.T) {
	h := newHarness(t)
	h.dialer.Err = errors.New("handshake failed")
	h.start(t)

	waitState(t, h.c, StateError)
	snap := h.c.Snapshot()
	if snap.ErrorCategory != CategoryConnect {
		t.Errorf("category = %q, want connect", snap.ErrorCategory)
	}
	if snap.Error != "Dogoggora: handshake failed" {
		t.Errorf("unexpected message %q", snap.Error)
	}
	if h.mics.mic(0).closeCount() != 1 {
		t.Error("microphone not released after dial failure")
	}
}

func TestTwoFragmentsPlayBackToBack(t *testing.T) {
	sess := live.NewFakeSession(64)
	h := newHarness(t, sess)
	h.start(t)
	waitState(t, h.c, StateActive)

	sess.Push(live.AudioFragment{Data: pcm(0.5), SampleRate: audio.PlaybackSampleRate})
	sess.Push(live.AudioFragment{Data: pcm(0.5), SampleRate: audio.PlaybackSampleRate})

	waitFor(t, "two sources", func() bool { return len(h.speaker.started()) == 2 })
	waitState(t, h.c, StateTalkingAI)

	handles := h.speaker.started()
	if handles[1].at != handles[0].at+handles[0].dur {
		t.Errorf("second starts at %v, want %v", handles[1].at, handles[0].at+handles[0].dur)
	}
	if h.c.Snapshot().Status != StatusTalkingAI {
		t.Errorf("unexpected status %q", h.c.Snapshot().Status)
	}

	handles[0].onEnded()
	time.Sleep(20 * time.Millisecond)
	if h.c.State() != StateTalkingAI {
		t.Errorf("still one source in flight, state = %s", h.c.State())
	}

	handles[1].onEnded()
	waitState(t, h.c, StateActive)
}

func TestInterruptStopsPlayback(t *testing.T) {
	sess := live.NewFakeSession(64)
	h := newHarness(t, sess)
	h.start(t)
	waitState(t, h.c, StateActive)

	for i := 0; i < 3; i++ {
		sess.Push(live.AudioFragment{Data: pcm(1), SampleRate: audio.PlaybackSampleRate})
	}
	waitFor(t, "three sources", func() bool { return len(h.speaker.started()) == 3 })
	waitState(t, h.c, StateTalkingAI)

	sess.Push(live.Interrupted{})
	waitState(t, h.c, StateActive)

	for i, hd := range h.speaker.started() {
		if !hd.isStopped() {
			t.Errorf("source %d still playing after interruption", i)
		}
	}

	// next response starts from the device clock, not the old watermark
	sess.Push(live.AudioFragment{Data: pcm(0.1), SampleRate: audio.PlaybackSampleRate})
	waitFor(t, "fourth source", func() bool { return len(h.speaker.started()) == 4 })
	if at := h.speaker.started()[3].at; at != 0 {
		t.Errorf("post-interrupt start = %v, want 0", at)
	}
}

func TestCodecErrorKeepsSession(t *testing.T) {
	sess := live.NewFakeSession(64)
	h := newHarness(t, sess)
	h.start(t)
	waitState(t, h.c, StateActive)

	sess.Push(live.AudioFragment{Data: []byte{1, 2, 3}, SampleRate: audio.PlaybackSampleRate})
	sess.Push(live.TranscriptionFragment{Role: live.RoleAssistant, Text: "ok"})
	sess.Push(live.TurnComplete{})

	waitFor(t, "commit", func() bool { return len(h.committed()) == 1 })
	if len(h.speaker.started()) != 0 {
		t.Error("odd-length fragment should not be scheduled")
	}
	if h.c.State() != StateActive {
		t.Errorf("state = %s, want active", h.c.State())
	}
}

func TestTranscriptCommittedOnTurnComplete(t *testing.T) {
	sess := live.NewFakeSession(64)
	h := newHarness(t, sess)
	h.start(t)
	waitState(t, h.c, StateActive)

	sess.Push(live.TranscriptionFragment{Role: live.RoleUser, Text: "Akkam"})
	sess.Push(live.TranscriptionFragment{Role: live.RoleAssistant, Text: "Na"})
	sess.Push(live.TranscriptionFragment{Role: live.RoleAssistant, Text: "gaa"})
	sess.Push(live.TurnComplete{})

	waitFor(t, "two commits", func() bool { return len(h.committed()) == 2 })

	msgs := h.committed()
	if msgs[0].Role != live.RoleAssistant || msgs[0].Content != "Nagaa" {
		t.Errorf("first commit = %+v, want assistant Nagaa", msgs[0])
	}
	if msgs[1].Role != live.RoleUser || msgs[1].Content != "Akkam" {
		t.Errorf("second commit = %+v, want user Akkam", msgs[1])
	}
}

func TestUserTalkingFromCapture(t *testing.T) {
	sess := live.NewFakeSession(64)
	h := newHarness(t, sess)
	h.start(t)
	waitState(t, h.c, StateActive)

	h.mics.feed(constant(audio.FrameSize, 0.3))
	waitState(t, h.c, StateTalkingUser)
	if h.c.Snapshot().Status != StatusTalkingUser {
		t.Errorf("unexpected status %q", h.c.Snapshot().Status)
	}

	h.mics.feed(make([]float32, audio.FrameSize))
	waitState(t, h.c, StateActive)

	if n := len(sess.Sent()); n != 2 {
		t.Errorf("expected 2 frames sent, got %d", n)
	}
	for _, f := range sess.Sent() {
		if f.MIMEType != "audio/pcm;rate=16000" {
			t.Errorf("unexpected mime %q", f.MIMEType)
		}
	}
}

func TestRemoteCloseEndsSession(t *testing.T) {
	sess := live.NewFakeSession(64)
	h := newHarness(t, sess)
	h.start(t)
	waitState(t, h.c, StateActive)

	sess.Push(live.TranscriptionFragment{Role: live.RoleUser, Text: "lost"})
	sess.CloseRemote(nil)

	waitState(t, h.c, StateClosed)
	if sess.Closes() != 1 {
		t.Errorf("session closed %d times", sess.Closes())
	}
	if h.mics.mic(0).closeCount() != 1 {
		t.Error("microphone not released")
	}
	if _, rel := h.speaker.counts(); rel != 1 {
		t.Errorf("speaker released %d times", rel)
	}
	if len(h.committed()) != 0 {
		t.Error("partial transcript should be discarded on close")
	}

	select {
	case <-h.c.Done():
	case <-time.After(time.Second):
		t.Fatal("controller still running after the server closed the session")
	}
	if h.dialer.Dials() != 1 {
		t.Errorf("expected no reconnect, got %d dials", h.dialer.Dials())
	}

	// closing after the loop ended must not block
	closed := make(chan struct{})
	go func() {
		h.c.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked after remote close")
	}
}

func TestRemoteErrorStaysRunning(t *testing.T) {
	sess := live.NewFakeSession(64)
	h := newHarness(t, sess)
	h.start(t)
	waitState(t, h.c, StateActive)

	sess.CloseRemote(errors.New("stream reset"))
	waitState(t, h.c, StateError)

	select {
	case <-h.c.Done():
		t.Fatal("an error must leave the overlay open for retry")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRemoteErrorThenRetry(t *testing.T) {
	first := live.NewFakeSession(64)
	second := live.NewFakeSession(64)
	h := newHarness(t, first, second)
	h.start(t)
	waitState(t, h.c, StateActive)

	first.CloseRemote(errors.New("stream reset"))
	waitState(t, h.c, StateError)

	snap := h.c.Snapshot()
	if snap.ErrorCategory != CategoryProtocol || snap.Error != ProtocolMessage {
		t.Errorf("unexpected error snapshot %+v", snap)
	}

	if err := h.c.Retry(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitState(t, h.c, StateActive)
	if h.dialer.Dials() != 2 {
		t.Errorf("expected a second dial, got %d", h.dialer.Dials())
	}

	// the new session plays audio
	second.Push(live.AudioFragment{Data: pcm(0.1), SampleRate: audio.PlaybackSampleRate})
	waitFor(t, "source from new session", func() bool { return len(h.speaker.started()) == 1 })
}

func TestCloseRacesRemoteClose(t *testing.T) {
	sess := live.NewFakeSession(64)
	h := newHarness(t, sess)
	h.start(t)
	waitState(t, h.c, StateActive)

	sess.Push(live.AudioFragment{Data: pcm(1), SampleRate: audio.PlaybackSampleRate})
	waitFor(t, "source", func() bool { return len(h.speaker.started()) == 1 })

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sess.CloseRemote(nil)
	}()
	go func() {
		defer wg.Done()
		h.c.Close()
	}()
	wg.Wait()

	if h.c.State() != StateClosed {
		t.Errorf("state = %s, want closed", h.c.State())
	}
	if sess.Closes() != 1 {
		t.Errorf("session closed %d times, want 1", sess.Closes())
	}
	if n := h.mics.mic(0).closeCount(); n != 1 {
		t.Errorf("microphone closed %d times, want 1", n)
	}
	if _, rel := h.speaker.counts(); rel != 1 {
		t.Errorf("speaker released %d times, want 1", rel)
	}
	if !h.speaker.started()[0].isStopped() {
		t.Error("in-flight source not stopped on close")
	}

	select {
	case <-h.c.Done():
	default:
		t.Error("controller not done after Close")
	}
}

type blockingDialer struct {
	dialed chan struct{}
}

func (d *blockingDialer) Dial(ctx context.Context, _ live.Config) (live.Session, error) {
	close(d.dialed)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCloseWhileConnecting(t *testing.T) {
	speaker := &fakeSpeaker{}
	mics := &fakeMicSource{}
	dialer := &blockingDialer{dialed: make(chan struct{})}

	c := New(Config{Dialer: dialer, Speaker: speaker, Microphone: mics})
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	<-dialer.dialed

	c.Close()

	if c.State() != StateClosed {
		t.Errorf("state = %s, want closed", c.State())
	}
	waitFor(t, "mic release", func() bool { return mics.mic(0).closeCount() == 1 })
	waitFor(t, "speaker release", func() bool {
		_, rel := speaker.counts()
		return rel == 1
	})
}

func TestFlushOnClose(t *testing.T) {
	sess := live.NewFakeSession(64)
	var mu sync.Mutex
	var got []transcript.Message

	c := New(Config{
		Dialer:       live.NewFakeDialer(sess),
		Speaker:      &fakeSpeaker{},
		Microphone:   &fakeMicSource{},
		FlushOnClose: true,
		OnMessage: func(m transcript.Message) {
			mu.Lock()
			got = append(got, m)
			mu.Unlock()
		},
	})
	c.Start(context.Background())
	waitState(t, c, StateActive)

	sess.Push(live.TranscriptionFragment{Role: live.RoleUser, Text: "galatoomi"})
	waitFor(t, "fragment delivered", func() bool { return len(sess.Messages()) == 0 })
	time.Sleep(20 * time.Millisecond)
	c.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].Content != "galatoomi" {
		t.Errorf("expected flushed message, got %+v", got)
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateConnecting:  "connecting",
		StateActive:      "active",
		StateTalkingAI:   "talking-ai",
		StateTalkingUser: "talking-user",
		StateError:       "error",
		StateClosed:      "closed",
		State(99):        "unknown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), s.String(), want)
		}
	}
}
