// ABOUTME: Two-voice narrated stories from the multi-speaker TTS model
// ABOUTME: Returns the decoded 24 kHz mono PCM as an audio buffer
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Ashama-AI/ashama-go/pkg/audio"
	"google.golang.org/genai"
)

// StorySampleRate is the TTS output rate
const StorySampleRate = 24000

// Storytellers and their prebuilt voices
const (
	ElderSpeaker = "Jaalalaa"
	ChildSpeaker = "Boonaa"
	elderVoice   = "Kore"
	childVoice   = "Puck"
)

func storyPrompt(topic string) string {
	return fmt.Sprintf(`TTS the following conversation between %[2]s (an old man) and %[3]s (a young boy) about %[1]s in Afaan Oromo:
      %[2]s: Ashamaa %[3]s, waa'ee %[1]s sitti himuu?
      %[3]s: Eeyyee abbaa, natti himi maaloo.
      %[2]s: Tole, dhaggeeffadhu, %[1]s jechuun...`, topic, ElderSpeaker, ChildSpeaker)
}

func speaker(name, voice string) *genai.SpeakerVoiceConfig {
	return &genai.SpeakerVoiceConfig{
		Speaker: name,
		VoiceConfig: &genai.VoiceConfig{
			PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
		},
	}
}

// GenerateStory narrates a short dialogue about topic
func (c *Client) GenerateStory(ctx context.Context, topic string) (buf audio.Buffer, err error) {
	if strings.TrimSpace(topic) == "" {
		return audio.Buffer{}, ErrEmptyPrompt
	}
	started := time.Now()
	defer func() { c.metrics.ChatRequest("story", started, err) }()

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityAudio)},
		SpeechConfig: &genai.SpeechConfig{
			MultiSpeakerVoiceConfig: &genai.MultiSpeakerVoiceConfig{
				SpeakerVoiceConfigs: []*genai.SpeakerVoiceConfig{
					speaker(ElderSpeaker, elderVoice),
					speaker(ChildSpeaker, childVoice),
				},
			},
		},
	}

	resp, err := c.gen.GenerateContent(ctx, c.models.TTS, []*genai.Content{genai.NewContentFromText(storyPrompt(topic), genai.RoleUser)}, config)
	if err != nil {
		c.logger.Errorw("Story request failed", "topic", topic, "error", err)
		return audio.Buffer{}, friendly(err)
	}

	blob := lastInline(resp)
	if blob == nil || len(blob.Data) == 0 {
		return audio.Buffer{}, ErrNoAudio
	}

	samples, err := audio.PCM16ToFloat(blob.Data)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("failed to decode story audio: %w", err)
	}
	return audio.Buffer{
		Samples:    samples,
		SampleRate: audio.ParseRate(blob.MIMEType, StorySampleRate),
	}, nil
}
