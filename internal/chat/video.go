// ABOUTME: Long-running video generation with periodic polling
// ABOUTME: Reports progress text while waiting and returns a download link
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	progressStarted = "Viidiyoo uumaa jirra..."
	progressWaiting = "Viidiyoo bilcheessaa jirra (Daqiiqaa 1 fudhachuu danda'a)..."
)

// GenerateVideo starts a 720p 16:9 video and polls until it is ready.
// progress may be nil.
func (c *Client) GenerateVideo(ctx context.Context, prompt string, progress func(string)) (link string, err error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}
	if progress == nil {
		progress = func(string) {}
	}
	started := time.Now()
	defer func() { c.metrics.ChatRequest("video", started, err) }()

	progress(progressStarted)
	op, err := c.gen.GenerateVideos(ctx, c.models.Video, prompt, &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		Resolution:     "720p",
		AspectRatio:    "16:9",
	})
	if err != nil {
		c.logger.Errorw("Video request failed", "error", err)
		return "", friendly(err)
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for !op.Done {
		progress(progressWaiting)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		op, err = c.gen.GetVideosOperation(ctx, op)
		if err != nil {
			c.logger.Errorw("Video poll failed", "error", err)
			return "", friendly(err)
		}
	}

	if len(op.Error) > 0 {
		return "", fmt.Errorf("video generation failed: %v", op.Error["message"])
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 ||
		op.Response.GeneratedVideos[0].Video == nil || op.Response.GeneratedVideos[0].Video.URI == "" {
		return "", ErrNoVideo
	}

	uri := op.Response.GeneratedVideos[0].Video.URI
	sep := "&"
	if !strings.Contains(uri, "?") {
		sep = "?"
	}
	c.logger.Infow("Video ready", "elapsed", time.Since(started))
	return uri + sep + "key=" + c.apiKey, nil
}
