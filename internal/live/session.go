// ABOUTME: Narrow capability interface over a hosted live voice session
// ABOUTME: Lets the scheduler, aggregator and controller run against fakes
package live

import (
	"context"
	"errors"
)

// ErrClosed is returned when sending on a session that has been closed
var ErrClosed = errors.New("live session closed")

// Config describes the session to open
type Config struct {
	Model             string
	SystemInstruction string
	Voice             string

	// Transcripts of both directions feed the conversation log
	InputTranscription  bool
	OutputTranscription bool
}

// Session is an open bidirectional stream
type Session interface {
	// Send queues one frame. It never waits for the network; a congested
	// transport may drop frames.
	Send(ctx context.Context, frame AudioFrame) error

	// Messages delivers inbound events in arrival order. The last message
	// is always Closed, after which the channel is closed.
	Messages() <-chan Message

	// Close is idempotent
	Close() error
}

// Dialer opens sessions
type Dialer interface {
	Dial(ctx context.Context, cfg Config) (Session, error)
}
