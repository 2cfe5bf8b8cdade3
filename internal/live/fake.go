// ABOUTME: In-memory live session for tests and offline runs
// ABOUTME: Records outbound frames and lets callers inject inbound messages
package live

import (
	"context"
	"sync"
)

// FakeSession is a Session driven by the caller
type FakeSession struct {
	mu       sync.Mutex
	sent     []AudioFrame
	msgs     chan Message
	closed   bool
	closes   int
	finished bool

	// in-flight Push sends that must land before the stream is closed
	pushing sync.WaitGroup
}

// NewFakeSession creates a fake with room for buffer pending inbound messages
func NewFakeSession(buffer int) *FakeSession {
	return &FakeSession{msgs: make(chan Message, buffer)}
}

// Send records the frame
func (f *FakeSession) Send(_ context.Context, frame AudioFrame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.sent = append(f.sent, frame)
	return nil
}

// Messages returns the inbound channel
func (f *FakeSession) Messages() <-chan Message {
	return f.msgs
}

// Push injects an inbound message. It is ignored after the stream finished.
// The send happens outside the lock, so a full buffer blocks only the caller.
func (f *FakeSession) Push(msg Message) {
	f.mu.Lock()
	if f.finished {
		f.mu.Unlock()
		return
	}
	f.pushing.Add(1)
	f.mu.Unlock()

	defer f.pushing.Done()
	f.msgs <- msg
}

// CloseRemote simulates the server ending the session
func (f *FakeSession) CloseRemote(err error) {
	f.finish(err)
}

// Close closes the session from the client side
func (f *FakeSession) Close() error {
	f.mu.Lock()
	f.closes++
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	f.finish(nil)
	return nil
}

// finish delivers the terminal Closed marker after pending pushes
func (f *FakeSession) finish(err error) {
	f.mu.Lock()
	if f.finished {
		f.mu.Unlock()
		return
	}
	f.finished = true
	f.mu.Unlock()

	f.pushing.Wait()
	f.msgs <- Closed{Err: err}
	close(f.msgs)
}

// Sent returns a copy of the frames sent so far
func (f *FakeSession) Sent() []AudioFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]AudioFrame, len(f.sent))
	copy(out, f.sent)
	return out
}

// Closes returns how many times Close was called
func (f *FakeSession) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// IsClosed reports whether Close was called
func (f *FakeSession) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// FakeDialer hands out queued sessions or a configured error
type FakeDialer struct {
	mu       sync.Mutex
	sessions []*FakeSession
	Err      error
	dials    int
	configs  []Config
}

// NewFakeDialer creates a dialer that returns the given sessions in order.
// When the queue is empty a fresh session is created.
func NewFakeDialer(sessions ...*FakeSession) *FakeDialer {
	return &FakeDialer{sessions: sessions}
}

// Dial returns the next session
func (d *FakeDialer) Dial(_ context.Context, cfg Config) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.configs = append(d.configs, cfg)
	if d.Err != nil {
		return nil, d.Err
	}
	if len(d.sessions) == 0 {
		return NewFakeSession(64), nil
	}
	s := d.sessions[0]
	d.sessions = d.sessions[1:]
	return s, nil
}

// Dials returns how many times Dial was called
func (d *FakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Configs returns the configs passed to Dial
func (d *FakeDialer) Configs() []Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Config(nil), d.configs...)
}
