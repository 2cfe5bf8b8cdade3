// ABOUTME: Text, image, quiz, story and video generation against the Gemini API
// ABOUTME: Wraps the genai SDK behind a small Generator interface so it can be faked
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/Ashama-AI/ashama-go/internal/cache"
	"github.com/Ashama-AI/ashama-go/internal/metrics"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	// DefaultPollInterval is how often a video operation is checked
	DefaultPollInterval = 10 * time.Second

	temperature = 0.7
)

// Generator is the part of the genai SDK the client uses
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateVideos(ctx context.Context, model, prompt string, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
	GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error)
}

// Models names the model used for each request kind
type Models struct {
	Chat  string
	Image string
	Quiz  string
	TTS   string
	Video string
}

// DefaultModels returns the models the web client used
func DefaultModels() Models {
	return Models{
		Chat:  "gemini-2.5-flash",
		Image: "gemini-2.5-flash-image",
		Quiz:  "gemini-3-flash-preview",
		TTS:   "gemini-2.5-flash-preview-tts",
		Video: "veo-3.1-fast-generate-preview",
	}
}

// genaiGenerator adapts *genai.Client to Generator
type genaiGenerator struct {
	client *genai.Client
}

// NewGenAI creates a Generator for the Gemini developer API
func NewGenAI(ctx context.Context, apiKey string) (Generator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &genaiGenerator{client: client}, nil
}

func (g *genaiGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return g.client.Models.GenerateContent(ctx, model, contents, config)
}

func (g *genaiGenerator) GenerateVideos(ctx context.Context, model, prompt string, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	return g.client.Models.GenerateVideos(ctx, model, prompt, nil, config)
}

func (g *genaiGenerator) GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	return g.client.Operations.GetVideosOperation(ctx, op, nil)
}

// Client issues requests on behalf of the assistant
type Client struct {
	gen          Generator
	apiKey       string
	models       Models
	instruction  string
	cache        *cache.Cache
	cacheTTL     time.Duration
	pollInterval time.Duration
	logger       *zap.SugaredLogger
	metrics      *metrics.Metrics
}

// Option configures a Client
type Option func(*Client)

// WithModels overrides the model names. Empty fields keep their defaults.
func WithModels(m Models) Option {
	return func(c *Client) {
		if m.Chat != "" {
			c.models.Chat = m.Chat
		}
		if m.Image != "" {
			c.models.Image = m.Image
		}
		if m.Quiz != "" {
			c.models.Quiz = m.Quiz
		}
		if m.TTS != "" {
			c.models.TTS = m.TTS
		}
		if m.Video != "" {
			c.models.Video = m.Video
		}
	}
}

// WithInstruction sets the system instruction for chat requests
func WithInstruction(text string) Option {
	return func(c *Client) { c.instruction = text }
}

// WithCache stores text answers so repeated prompts skip the network
func WithCache(cc *cache.Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cc
		c.cacheTTL = ttl
	}
}

// WithPollInterval sets the video operation polling period
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// WithLogger sets the logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics records request counts and latency
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a Client. apiKey is appended to video download links.
func New(gen Generator, apiKey string, opts ...Option) *Client {
	c := &Client{
		gen:          gen,
		apiKey:       apiKey,
		models:       DefaultModels(),
		pollInterval: DefaultPollInterval,
		logger:       zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Models returns the configured model names
func (c *Client) Models() Models {
	return c.models
}

func (c *Client) systemInstruction() *genai.Content {
	if c.instruction == "" {
		return nil
	}
	return genai.NewContentFromText(c.instruction, genai.RoleUser)
}

// lastInline returns the last inline blob of the first candidate
func lastInline(resp *genai.GenerateContentResponse) *genai.Blob {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	var blob *genai.Blob
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil && p.InlineData != nil {
			blob = p.InlineData
		}
	}
	return blob
}
