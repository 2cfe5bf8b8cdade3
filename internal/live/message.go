// ABOUTME: Tagged union of messages received from a live voice session
// ABOUTME: Vendor payloads are decoded once at the boundary into these variants
package live

import "github.com/Ashama-AI/ashama-go/pkg/audio"

// Role identifies the speaker of a transcript fragment
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one inbound event from the remote session
type Message interface {
	isMessage()
}

// TurnComplete marks the end of a conversational turn
type TurnComplete struct{}

// AudioFragment carries raw PCM16 bytes for the assistant voice
type AudioFragment struct {
	Data       []byte
	SampleRate int
}

// TextFragment is model text emitted as part of the turn
type TextFragment struct {
	Text string
}

// Interrupted means the user spoke over the assistant; buffered audio is stale
type Interrupted struct{}

// TranscriptionFragment is a partial transcript of user input or assistant output
type TranscriptionFragment struct {
	Role Role
	Text string
}

// Closed is the last message on a session's channel. Err is nil for a clean close.
type Closed struct {
	Err error
}

func (TurnComplete) isMessage()          {}
func (AudioFragment) isMessage()         {}
func (TextFragment) isMessage()          {}
func (Interrupted) isMessage()           {}
func (TranscriptionFragment) isMessage() {}
func (Closed) isMessage()                {}

// AudioFrame is one outbound microphone frame
type AudioFrame struct {
	Data     string // base64 PCM16
	MIMEType string
}

// NewAudioFrame encodes PCM16 bytes for the given format
func NewAudioFrame(pcm []byte, format audio.Format) AudioFrame {
	return AudioFrame{
		Data:     audio.EncodeBase64(pcm),
		MIMEType: format.MIMEType(),
	}
}

// Kind names a message variant for logs and metrics
func Kind(m Message) string {
	switch m.(type) {
	case TurnComplete:
		return "turn_complete"
	case AudioFragment:
		return "audio"
	case TextFragment:
		return "text"
	case Interrupted:
		return "interrupted"
	case TranscriptionFragment:
		return "transcription"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}
