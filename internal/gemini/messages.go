// ABOUTME: Gemini Live BidiGenerateContent wire messages
// ABOUTME: Decodes server JSON once into live.Message variants
package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Ashama-AI/ashama-go/internal/live"
	"github.com/Ashama-AI/ashama-go/pkg/audio"
)

// Client messages

type setupMessage struct {
	Setup setup `json:"setup"`
}

type setup struct {
	Model                    string            `json:"model"`
	GenerationConfig         *generationConfig `json:"generationConfig,omitempty"`
	SystemInstruction        *content          `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}         `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}         `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []blob `json:"mediaChunks"`
}

// Shared

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Server messages

type serverMessage struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *serverContent `json:"serverContent,omitempty"`
	GoAway        *goAway        `json:"goAway,omitempty"`
}

type serverContent struct {
	ModelTurn           *content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}

type goAway struct {
	TimeLeft string `json:"timeLeft"`
}

func newSetup(cfg live.Config) setupMessage {
	s := setup{
		Model: modelName(cfg.Model),
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
	}
	if cfg.Voice != "" {
		s.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.Voice}},
		}
	}
	if cfg.SystemInstruction != "" {
		s.SystemInstruction = &content{Parts: []part{{Text: cfg.SystemInstruction}}}
	}
	if cfg.InputTranscription {
		s.InputAudioTranscription = &struct{}{}
	}
	if cfg.OutputTranscription {
		s.OutputAudioTranscription = &struct{}{}
	}
	return setupMessage{Setup: s}
}

func modelName(model string) string {
	if strings.HasPrefix(model, "models/") || strings.HasPrefix(model, "tunedModels/") {
		return model
	}
	return "models/" + model
}

func newRealtimeInput(frame live.AudioFrame) realtimeInputMessage {
	return realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []blob{{MIMEType: frame.MIMEType, Data: frame.Data}},
		},
	}
}

// Decoded is the result of decoding one server frame
type Decoded struct {
	Messages      []live.Message
	SetupComplete bool
	GoAway        string

	// FragmentErrors holds per-fragment failures. Other fragments of the
	// same frame are still delivered.
	FragmentErrors []error
}

// Decode parses one server frame. Variants are emitted in the order turn
// complete, model turn parts, input transcription, output transcription,
// interrupted. An error is returned only when the frame is not valid JSON.
func Decode(data []byte) (Decoded, error) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Decoded{}, fmt.Errorf("failed to parse server message: %w", err)
	}

	var d Decoded
	d.SetupComplete = msg.SetupComplete != nil
	if msg.GoAway != nil {
		d.GoAway = msg.GoAway.TimeLeft
		if d.GoAway == "" {
			d.GoAway = "0s"
		}
	}

	sc := msg.ServerContent
	if sc == nil {
		return d, nil
	}

	if sc.TurnComplete {
		d.Messages = append(d.Messages, live.TurnComplete{})
	}

	if sc.ModelTurn != nil {
		for i, p := range sc.ModelTurn.Parts {
			if p.Text != "" {
				d.Messages = append(d.Messages, live.TextFragment{Text: p.Text})
			}
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			if !strings.HasPrefix(p.InlineData.MIMEType, "audio/") {
				continue
			}
			pcm, err := audio.DecodeBase64(p.InlineData.Data)
			if err != nil {
				d.FragmentErrors = append(d.FragmentErrors, fmt.Errorf("part %d: %w", i, err))
				continue
			}
			d.Messages = append(d.Messages, live.AudioFragment{
				Data:       pcm,
				SampleRate: audio.ParseRate(p.InlineData.MIMEType, audio.PlaybackSampleRate),
			})
		}
	}

	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		d.Messages = append(d.Messages, live.TranscriptionFragment{
			Role: live.RoleUser,
			Text: sc.InputTranscription.Text,
		})
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		d.Messages = append(d.Messages, live.TranscriptionFragment{
			Role: live.RoleAssistant,
			Text: sc.OutputTranscription.Text,
		})
	}

	if sc.Interrupted {
		d.Messages = append(d.Messages, live.Interrupted{})
	}

	return d, nil
}
