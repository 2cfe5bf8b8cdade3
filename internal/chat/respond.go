// ABOUTME: Grounded chat answers and keyword-triggered image generation
// ABOUTME: Answers are cached by prompt and fall back to search-only grounding
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Ashama-AI/ashama-go/internal/cache"
	"github.com/Ashama-AI/ashama-go/internal/store"
	"google.golang.org/genai"
)

const (
	imageReply = "Fakkii ati gaafatte qopheesseera."
	emptyReply = "Dogoggorri uumameera."
	cacheMode  = "chat"
)

// imageKeywords mark a prompt as an image request
var imageKeywords = []string{"fakkii", "kaasi", "uumi"}

// Turn is one earlier exchange sent as context
type Turn struct {
	Role string
	Text string
}

// Location biases maps grounding
type Location struct {
	Latitude  float64
	Longitude float64
}

// Request is one user prompt
type Request struct {
	Prompt   string
	History  []Turn
	Image    []byte // optional JPEG attached by the user
	Location *Location
}

// Result is the assistant answer
type Result struct {
	Text      string
	Sources   []store.Source
	Maps      []store.Source
	Image     []byte
	ImageMIME string
	Cached    bool
}

// IsImageRequest reports whether prompt asks for a picture
func IsImageRequest(prompt string) bool {
	lower := strings.ToLower(prompt)
	for _, kw := range imageKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Respond answers req. Failures are returned as *FriendlyError.
func (c *Client) Respond(ctx context.Context, req Request) (res Result, err error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Result{}, ErrEmptyPrompt
	}

	if IsImageRequest(req.Prompt) && len(req.Image) == 0 {
		started := time.Now()
		defer func() { c.metrics.ChatRequest("image", started, err) }()
		return c.generateImage(ctx, req.Prompt)
	}

	cacheable := c.cache != nil && len(req.Image) == 0 && len(req.History) == 0
	key := cache.GenerateKey(req.Prompt, cacheMode)
	if cacheable {
		var cached Result
		ok, cerr := c.cache.Get(ctx, key, &cached)
		if cerr != nil {
			c.logger.Warnw("Cache lookup failed", "error", cerr)
		}
		if ok {
			cached.Cached = true
			return cached, nil
		}
	}

	started := time.Now()
	defer func() { c.metrics.ChatRequest("chat", started, err) }()

	res, err = c.grounded(ctx, req, true)
	if mapsUnsupported(err) {
		c.logger.Warnw("Maps grounding not supported, retrying with search only", "model", c.models.Chat)
		res, err = c.grounded(ctx, req, false)
		if err != nil {
			return Result{}, &FriendlyError{Kind: KindUnavailable, Err: err}
		}
	}
	if err != nil {
		c.logger.Errorw("Chat request failed", "error", err)
		return Result{}, friendly(err)
	}

	if cacheable {
		if cerr := c.cache.Set(ctx, key, res, c.cacheTTL); cerr != nil {
			c.logger.Warnw("Failed to cache answer", "error", cerr)
		}
	}
	return res, nil
}

func (c *Client) grounded(ctx context.Context, req Request, withMaps bool) (Result, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: c.systemInstruction(),
		Temperature:       genai.Ptr[float32](temperature),
		Tools:             []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	}
	if withMaps {
		config.Tools = append(config.Tools, &genai.Tool{GoogleMaps: &genai.GoogleMaps{}})
		if req.Location != nil {
			config.ToolConfig = &genai.ToolConfig{
				RetrievalConfig: &genai.RetrievalConfig{
					LatLng: &genai.LatLng{
						Latitude:  genai.Ptr(req.Location.Latitude),
						Longitude: genai.Ptr(req.Location.Longitude),
					},
				},
			}
		}
	}

	resp, err := c.gen.GenerateContent(ctx, c.models.Chat, buildContents(req), config)
	if err != nil {
		return Result{}, err
	}

	text := resp.Text()
	if text == "" {
		text = emptyReply
	}
	res := Result{Text: text}
	res.Sources, res.Maps = groundingSources(resp)
	if !withMaps {
		res.Maps = nil
	}
	return res, nil
}

func (c *Client) generateImage(ctx context.Context, prompt string) (Result, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(fmt.Sprintf("Generate an image based on this Oromo description: %s.", prompt), genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		ImageConfig: &genai.ImageConfig{AspectRatio: "1:1"},
	}

	resp, err := c.gen.GenerateContent(ctx, c.models.Image, contents, config)
	if err != nil {
		c.logger.Errorw("Image request failed", "error", err)
		return Result{}, friendly(err)
	}

	res := Result{Text: imageReply}
	if blob := lastInline(resp); blob != nil {
		res.Image = blob.Data
		res.ImageMIME = blob.MIMEType
		if res.ImageMIME == "" {
			res.ImageMIME = "image/png"
		}
	}
	return res, nil
}

// buildContents sends earlier turns followed by the prompt and optional image
func buildContents(req Request) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, t := range req.History {
		role := genai.RoleUser
		if t.Role == store.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, genai.Role(role)))
	}

	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	if len(req.Image) > 0 {
		parts = append(parts, genai.NewPartFromBytes(req.Image, "image/jpeg"))
	}
	return append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
}

func groundingSources(resp *genai.GenerateContentResponse) (web, maps []store.Source) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return nil, nil
	}
	for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk == nil {
			continue
		}
		if chunk.Web != nil {
			web = append(web, store.Source{Title: chunk.Web.Title, URI: chunk.Web.URI})
		}
		if chunk.Maps != nil {
			maps = append(maps, store.Source{Title: chunk.Maps.Title, URI: chunk.Maps.URI})
		}
	}
	return web, maps
}

// ToHistory converts stored messages into request context
func ToHistory(messages []store.Message) []Turn {
	turns := make([]Turn, 0, len(messages))
	for _, m := range messages {
		if m.Content == "" {
			continue
		}
		turns = append(turns, Turn{Role: m.Role, Text: m.Content})
	}
	return turns
}
