// ABOUTME: Conversation history persisted as one JSON list in the key-value store
// ABOUTME: Sessions are kept newest-activity first and auto-titled from their first message
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Ashama-AI/ashama-go/internal/kv"
	"github.com/Ashama-AI/ashama-go/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// SessionsKey is where the session list lives
	SessionsKey = "ashama_ai_v3_sessions"
	// DefaultTitle is the title of a chat that has not been named yet
	DefaultTitle = "Marii Haaraa"

	titleRunes = 30
)

var (
	ErrNotFound = errors.New("conversation not found")
	ErrCorrupt  = errors.New("conversation store is corrupt")
)

// Role values used in stored messages
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Source is a grounding link returned with an answer
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Message is one stored utterance. Timestamp is unix milliseconds.
type Message struct {
	ID        string   `json:"id"`
	Role      string   `json:"role"`
	Content   string   `json:"content"`
	Timestamp int64    `json:"timestamp"`
	IsAudio   bool     `json:"isAudio,omitempty"`
	Sources   []Source `json:"sources,omitempty"`
	Maps      []Source `json:"maps,omitempty"`
}

// Session is one conversation
type Session struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Messages      []Message `json:"messages"`
	LastTimestamp int64     `json:"lastTimestamp"`
}

// Conversations reads and writes the session list
type Conversations struct {
	mu      sync.Mutex
	kv      kv.Store
	key     string
	now     func() time.Time
	newID   func() string
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

// Option configures Conversations
type Option func(*Conversations)

// WithKey overrides the storage key
func WithKey(key string) Option {
	return func(c *Conversations) { c.key = key }
}

// WithClock sets the timestamp source
func WithClock(now func() time.Time) Option {
	return func(c *Conversations) { c.now = now }
}

// WithIDs sets the id generator
func WithIDs(fn func() string) Option {
	return func(c *Conversations) { c.newID = fn }
}

// WithLogger sets the logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Conversations) { c.logger = l }
}

// WithMetrics counts stored messages
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Conversations) { c.metrics = m }
}

// New creates a Conversations over store
func New(store kv.Store, opts ...Option) *Conversations {
	c := &Conversations{
		kv:     store,
		key:    SessionsKey,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewMessage builds a message stamped with the store clock
func (c *Conversations) NewMessage(role, content string) Message {
	return Message{
		ID:        c.newID(),
		Role:      role,
		Content:   content,
		Timestamp: c.now().UnixMilli(),
	}
}

// Load returns all sessions. A missing key is an empty list.
func (c *Conversations) Load(ctx context.Context) ([]Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked(ctx)
}

// Get returns one session by id
func (c *Conversations) Get(ctx context.Context, id string) (Session, error) {
	sessions, err := c.Load(ctx)
	if err != nil {
		return Session{}, err
	}
	for _, s := range sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Latest returns the most recently active session, creating one if the
// list is empty
func (c *Conversations) Latest(ctx context.Context) (Session, error) {
	sessions, err := c.Load(ctx)
	if err != nil {
		return Session{}, err
	}
	if len(sessions) > 0 {
		return sessions[0], nil
	}
	return c.NewChat(ctx)
}

// NewChat creates an empty session at the head of the list
func (c *Conversations) NewChat(ctx context.Context) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sessions, err := c.loadLocked(ctx)
	if err != nil {
		return Session{}, err
	}

	s := Session{
		ID:            c.newID(),
		Title:         DefaultTitle,
		Messages:      []Message{},
		LastTimestamp: c.now().UnixMilli(),
	}
	sessions = append([]Session{s}, sessions...)

	if err := c.saveLocked(ctx, sessions); err != nil {
		return Session{}, err
	}
	c.logger.Debugw("Created conversation", "id", s.ID)
	return s, nil
}

// Update replaces the messages of a session. An empty title keeps the
// current one, except that an untitled session is named after its first
// message.
func (c *Conversations) Update(ctx context.Context, id string, messages []Message, title string) (Session, error) {
	return c.modify(ctx, id, func(s *Session) {
		s.Messages = messages
		if title != "" {
			s.Title = title
		}
	})
}

// Append adds messages to the end of a session
func (c *Conversations) Append(ctx context.Context, id string, messages ...Message) (Session, error) {
	s, err := c.modify(ctx, id, func(s *Session) {
		s.Messages = append(s.Messages, messages...)
	})
	if err != nil {
		return Session{}, err
	}
	for range messages {
		c.metrics.MessageStored()
	}
	return s, nil
}

// Delete removes a session. Deleting an unknown id is a no-op.
func (c *Conversations) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sessions, err := c.loadLocked(ctx)
	if err != nil {
		return err
	}

	kept := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		if s.ID != id {
			kept = append(kept, s)
		}
	}
	if len(kept) == len(sessions) {
		return nil
	}
	return c.saveLocked(ctx, kept)
}

func (c *Conversations) modify(ctx context.Context, id string, fn func(*Session)) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sessions, err := c.loadLocked(ctx)
	if err != nil {
		return Session{}, err
	}

	idx := -1
	for i := range sessions {
		if sessions[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s := &sessions[idx]
	fn(s)
	if s.Title == DefaultTitle && len(s.Messages) > 0 {
		s.Title = autoTitle(s.Messages[0].Content)
	}
	s.LastTimestamp = c.now().UnixMilli()
	updated := *s

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].LastTimestamp > sessions[j].LastTimestamp
	})

	if err := c.saveLocked(ctx, sessions); err != nil {
		return Session{}, err
	}
	return updated, nil
}

func (c *Conversations) loadLocked(ctx context.Context) ([]Session, error) {
	raw, ok, err := c.kv.Get(ctx, c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversations: %w", err)
	}
	if !ok || raw == "" {
		return []Session{}, nil
	}

	var sessions []Session
	if err := json.Unmarshal([]byte(raw), &sessions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if sessions == nil {
		sessions = []Session{}
	}
	return sessions, nil
}

// saveLocked always writes, including an empty list, so a deleted last
// session does not come back on the next load
func (c *Conversations) saveLocked(ctx context.Context, sessions []Session) error {
	raw, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("failed to encode conversations: %w", err)
	}
	if err := c.kv.Set(ctx, c.key, string(raw)); err != nil {
		return fmt.Errorf("failed to save conversations: %w", err)
	}
	return nil
}

func autoTitle(content string) string {
	r := []rune(content)
	if len(r) <= titleRunes {
		return content
	}
	return string(r[:titleRunes]) + "..."
}
