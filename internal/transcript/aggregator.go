// ABOUTME: Buffers streaming transcript fragments per speaker for one turn
// ABOUTME: Flushes complete turns as committed conversation messages
package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/Ashama-AI/ashama-go/internal/live"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Message is one committed utterance
type Message struct {
	ID        string
	Role      live.Role
	Content   string
	Timestamp time.Time
}

// Aggregator accumulates fragments until a turn completes
type Aggregator struct {
	mu        sync.Mutex
	user      strings.Builder
	assistant strings.Builder

	flushOnClose bool
	now          func() time.Time
	newID        func() string
	logger       *zap.SugaredLogger
}

// Option configures an Aggregator
type Option func(*Aggregator)

// WithFlushOnClose commits pending text on Close instead of discarding it
func WithFlushOnClose(v bool) Option {
	return func(a *Aggregator) { a.flushOnClose = v }
}

// WithClock sets the timestamp source
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithIDs sets the message id generator
func WithIDs(fn func() string) Option {
	return func(a *Aggregator) { a.newID = fn }
}

// WithLogger sets the logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// New creates an empty aggregator
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		now:    time.Now,
		newID:  uuid.NewString,
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Append adds a fragment to the role's accumulator. Unknown roles are ignored.
func (a *Aggregator) Append(role live.Role, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch role {
	case live.RoleUser:
		a.user.WriteString(text)
	case live.RoleAssistant:
		a.assistant.WriteString(text)
	default:
		a.logger.Debugw("transcript fragment with unknown role", "role", role)
	}
}

// Flush commits each non-empty accumulator, assistant first, and clears both
func (a *Aggregator) Flush() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flushLocked()
}

func (a *Aggregator) flushLocked() []Message {
	var out []Message
	ts := a.now()

	if a.assistant.Len() > 0 {
		out = append(out, Message{
			ID:        a.newID(),
			Role:      live.RoleAssistant,
			Content:   a.assistant.String(),
			Timestamp: ts,
		})
	}
	if a.user.Len() > 0 {
		out = append(out, Message{
			ID:        a.newID(),
			Role:      live.RoleUser,
			Content:   a.user.String(),
			Timestamp: ts,
		})
	}

	a.user.Reset()
	a.assistant.Reset()
	return out
}

// Discard drops pending text and returns how many bytes were lost
func (a *Aggregator) Discard() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := a.user.Len() + a.assistant.Len()
	a.user.Reset()
	a.assistant.Reset()
	return n
}

// Close ends the session. Pending text is flushed when WithFlushOnClose is
// set and discarded otherwise.
func (a *Aggregator) Close() []Message {
	if a.flushOnClose {
		return a.Flush()
	}
	if n := a.Discard(); n > 0 {
		a.logger.Infow("discarded unfinished transcript", "bytes", n)
	}
	return nil
}

// Pending returns the current accumulators
func (a *Aggregator) Pending() (user, assistant string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user.String(), a.assistant.String()
}
