// ABOUTME: Application services built once at startup and shared by the commands
// ABOUTME: Owns the key-value backend, conversation history, cache, persona, chat and metrics
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Ashama-AI/ashama-go/internal/cache"
	"github.com/Ashama-AI/ashama-go/internal/chat"
	"github.com/Ashama-AI/ashama-go/internal/config"
	"github.com/Ashama-AI/ashama-go/internal/kv"
	"github.com/Ashama-AI/ashama-go/internal/metrics"
	"github.com/Ashama-AI/ashama-go/internal/persona"
	"github.com/Ashama-AI/ashama-go/internal/store"
	"github.com/Ashama-AI/ashama-go/internal/transcript"
	"go.uber.org/zap"
)

// Services is the explicit context passed to commands
type Services struct {
	Config        *config.Config
	Logger        *zap.SugaredLogger
	Metrics       *metrics.Metrics
	KV            kv.Store
	Conversations *store.Conversations
	Cache         *cache.Cache
	Persona       *persona.Persona
	Chat          *chat.Client

	generator chat.Generator

	mu        sync.Mutex
	sessionID string
	closeOnce sync.Once
	closeErr  error
}

// Option configures Initialize
type Option func(*Services)

// WithGenerator replaces the genai backend used by Chat
func WithGenerator(g chat.Generator) Option {
	return func(s *Services) { s.generator = g }
}

// WithStore uses store instead of the configured backend
func WithStore(backend kv.Store) Option {
	return func(s *Services) { s.KV = backend }
}

// Initialize wires every service from cfg
func Initialize(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger, opts ...Option) (*Services, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Services{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.KV == nil {
		backend, err := OpenStore(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
		s.KV = backend
	}

	s.Conversations = store.New(s.KV,
		store.WithLogger(logger.Named("store")),
		store.WithMetrics(s.Metrics))
	s.Cache = cache.New(s.KV,
		cache.WithTTL(cfg.Cache.TTL),
		cache.WithLogger(logger.Named("cache")),
		cache.WithMetrics(s.Metrics))
	s.Persona = persona.New(s.KV, persona.WithLogger(logger.Named("persona")))

	if s.generator == nil {
		gen, err := chat.NewGenAI(ctx, cfg.Gemini.APIKey)
		if err != nil {
			s.KV.Close()
			return nil, err
		}
		s.generator = gen
	}
	s.Chat = chat.New(s.generator, cfg.Gemini.APIKey,
		chat.WithModels(chat.Models{
			Chat:  cfg.Gemini.ChatModel,
			Image: cfg.Gemini.ImageModel,
			Quiz:  cfg.Gemini.QuizModel,
			TTS:   cfg.Gemini.TTSModel,
			Video: cfg.Gemini.VideoModel,
		}),
		chat.WithInstruction(persona.GeneralInstruction),
		chat.WithCache(s.Cache, cfg.Cache.TTL),
		chat.WithLogger(logger.Named("chat")),
		chat.WithMetrics(s.Metrics))

	logger.Infow("Services initialized", "store", cfg.Store.Backend)
	return s, nil
}

// OpenStore opens the configured key-value backend
func OpenStore(ctx context.Context, cfg config.StoreConfig) (kv.Store, error) {
	switch cfg.Backend {
	case "memory":
		return kv.NewMemory(), nil
	case "file":
		return kv.OpenFile(cfg.Path)
	case "redis":
		return kv.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.Namespace)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// ActiveSession returns the conversation new messages go to, creating one
// on first use
func (s *Services) ActiveSession(ctx context.Context) (store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessionID != "" {
		sess, err := s.Conversations.Get(ctx, s.sessionID)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return store.Session{}, err
		}
	}

	sess, err := s.Conversations.Latest(ctx)
	if err != nil {
		return store.Session{}, err
	}
	s.sessionID = sess.ID
	return sess, nil
}

// StartConversation makes a new empty conversation active
func (s *Services) StartConversation(ctx context.Context) (store.Session, error) {
	sess, err := s.Conversations.NewChat(ctx)
	if err != nil {
		return store.Session{}, err
	}
	s.mu.Lock()
	s.sessionID = sess.ID
	s.mu.Unlock()
	return sess, nil
}

// RecordVoice stores committed live transcript messages in the active
// conversation, flagged as audio
func (s *Services) RecordVoice(ctx context.Context, msgs ...transcript.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	sess, err := s.ActiveSession(ctx)
	if err != nil {
		return err
	}

	stored := make([]store.Message, 0, len(msgs))
	for _, m := range msgs {
		stored = append(stored, store.Message{
			ID:        m.ID,
			Role:      string(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp.UnixMilli(),
			IsAudio:   true,
		})
	}
	if _, err := s.Conversations.Append(ctx, sess.ID, stored...); err != nil {
		return fmt.Errorf("failed to record voice messages: %w", err)
	}

	texts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		texts = append(texts, m.Content)
	}
	if err := s.Persona.UpdateTopics(ctx, texts); err != nil {
		s.Logger.Warnw("Failed to update topics", "error", err)
	}
	return nil
}

// Ask answers a text prompt in the active conversation and stores both
// sides. When the service is unreachable the offline reply is stored and
// returned together with the error.
func (s *Services) Ask(ctx context.Context, prompt string) (chat.Result, error) {
	sess, err := s.ActiveSession(ctx)
	if err != nil {
		return chat.Result{}, err
	}

	user := s.Conversations.NewMessage(store.RoleUser, prompt)
	res, askErr := s.Chat.Respond(ctx, chat.Request{
		Prompt:  prompt,
		History: chat.ToHistory(sess.Messages),
	})
	if askErr != nil {
		if !chat.IsKind(askErr, chat.KindNetwork) {
			return chat.Result{}, askErr
		}
		res = chat.Result{Text: cache.OfflineFallback(prompt)}
	}

	reply := s.Conversations.NewMessage(store.RoleAssistant, persona.DetectMood(prompt).Prefix()+res.Text)
	reply.Sources = res.Sources
	reply.Maps = res.Maps
	res.Text = reply.Content

	if _, err := s.Conversations.Append(ctx, sess.ID, user, reply); err != nil {
		return res, fmt.Errorf("failed to store answer: %w", err)
	}
	if err := s.Persona.UpdateTopics(ctx, []string{prompt}); err != nil {
		s.Logger.Warnw("Failed to update topics", "error", err)
	}
	return res, askErr
}

// Shutdown releases the store. Safe to call more than once.
func (s *Services) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() {
		done := make(chan error, 1)
		go func() { done <- s.KV.Close() }()
		select {
		case s.closeErr = <-done:
		case <-ctx.Done():
			s.closeErr = ctx.Err()
		case <-time.After(5 * time.Second):
			s.closeErr = errors.New("timed out closing store")
		}
		_ = s.Logger.Sync()
	})
	return s.closeErr
}
