// ABOUTME: Maps vendor failures to categories with Afaan Oromo messages
// ABOUTME: FriendlyError keeps the underlying error for logging and errors.Is
package chat

import (
	"errors"
	"net"
	"strings"

	"google.golang.org/genai"
)

// ErrorKind categorizes a failed request
type ErrorKind string

const (
	KindAuth        ErrorKind = "auth"
	KindQuota       ErrorKind = "quota"
	KindNetwork     ErrorKind = "network"
	KindUnavailable ErrorKind = "unavailable"
	KindOther       ErrorKind = "other"
)

const (
	msgAuth        = "Dogoggora: API key sirrii miti. Maaloo .env.local keessatti API key kee sirrii ta'e galchi."
	msgQuota       = "Gaaffii baay'ee ergameera. Maaloo daqiiqaa muraasa booda irra deebi'ii yaali."
	msgNetwork     = "Walitti dhufeenya interneetii hin jiru. Maaloo interneetii kee mirkaneessi."
	msgUnavailable = "Dogoggora: Odeeffannoo argachuu hin dandeenye. Maaloo irra deebi'ii yaali."

	detailLimit = 100
)

var (
	ErrEmptyPrompt = errors.New("prompt is empty")
	ErrNoVideo     = errors.New("video generation failed - no URI found")
	ErrNoAudio     = errors.New("story generation returned no audio")
)

// FriendlyError is a request failure with a user-facing message
type FriendlyError struct {
	Kind ErrorKind
	Err  error
}

func (e *FriendlyError) Error() string {
	switch e.Kind {
	case KindAuth:
		return msgAuth
	case KindQuota:
		return msgQuota
	case KindNetwork:
		return msgNetwork
	case KindUnavailable:
		return msgUnavailable
	}
	detail := ""
	if e.Err != nil {
		detail = e.Err.Error()
	}
	if r := []rune(detail); len(r) > detailLimit {
		detail = string(r[:detailLimit])
	}
	return "Dogoggora: " + detail + "..."
}

func (e *FriendlyError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a FriendlyError of kind
func IsKind(err error, kind ErrorKind) bool {
	var fe *FriendlyError
	return errors.As(err, &fe) && fe.Kind == kind
}

// friendly classifies err. Already classified errors pass through.
func friendly(err error) error {
	if err == nil {
		return nil
	}
	var fe *FriendlyError
	if errors.As(err, &fe) {
		return err
	}
	return &FriendlyError{Kind: classify(err), Err: err}
}

func classify(err error) ErrorKind {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401, 403:
			return KindAuth
		case 429:
			return KindQuota
		}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "API key") || strings.Contains(msg, "401") || strings.Contains(msg, "403"):
		return KindAuth
	case strings.Contains(msg, "quota") || strings.Contains(msg, "429"):
		return KindQuota
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "network") || strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "connection refused") {
		return KindNetwork
	}
	return KindOther
}

// mapsUnsupported reports the vendor rejecting the maps tool for the model
func mapsUnsupported(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Google Maps tool is not enabled")
}
