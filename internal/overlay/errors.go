// ABOUTME: Error taxonomy for overlay session failures
// ABOUTME: Device acquisition, connect and remote protocol errors carry localized text
package overlay

import (
	"errors"
	"fmt"

	"github.com/Ashama-AI/ashama-go/internal/device/category"
)

// Error categories for failures that are not device acquisition
const (
	CategoryConnect  = "connect"
	CategoryProtocol = "protocol"
)

// ProtocolMessage is shown when the remote session fails mid-conversation
const ProtocolMessage = "Walitti bu'iinsi uumameera. Maaloo irra deebi'ii yaali."

// RetryLabel is the label of the retry action
const RetryLabel = "Irra Deebi'ii Yaali"

var (
	ErrAlreadyStarted = errors.New("overlay already started")
	ErrNotStarted     = errors.New("overlay not started")
	ErrNotRetryable   = errors.New("retry is only possible from the error state")
)

// DeviceError is a categorized microphone or speaker acquisition failure
type DeviceError struct {
	Category category.Category
	Err      error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// Message returns the localized text for the failure
func (e *DeviceError) Message() string {
	detail := ""
	if e.Err != nil {
		detail = e.Err.Error()
	}
	return e.Category.Message(detail)
}

// ConnectError is a failure to open the remote session
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect: %v", e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Message returns the localized text for the failure
func (e *ConnectError) Message() string {
	return "Dogoggora: " + e.Err.Error()
}

// describe returns the category and localized message for err
func describe(err error) (kind, message string) {
	var de *DeviceError
	if errors.As(err, &de) {
		return string(de.Category), de.Message()
	}
	var ce *ConnectError
	if errors.As(err, &ce) {
		return CategoryConnect, ce.Message()
	}
	return CategoryProtocol, ProtocolMessage
}
