// ABOUTME: Classification of audio device failures into user-facing categories
// ABOUTME: Has no audio backend imports, so it builds without cgo
package category

import (
	"errors"
	"io/fs"
	"strings"
)

// Category is a user-facing class of device failure
type Category string

const (
	NotFound         Category = "device-not-found"
	PermissionDenied Category = "permission-denied"
	Other            Category = "other"
)

var (
	// ErrNotFound means no capture device is available
	ErrNotFound = errors.New("device not found")

	// ErrPermissionDenied means the OS refused access to the device
	ErrPermissionDenied = errors.New("permission denied")
)

// Classify maps an acquisition error to a Category
func Classify(err error) Category {
	if err == nil {
		return Other
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return NotFound
	}
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, fs.ErrPermission) {
		return PermissionDenied
	}

	// miniaudio reports backend failures as plain result strings
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no device"),
		strings.Contains(msg, "device not found"),
		strings.Contains(msg, "does not exist"),
		strings.Contains(msg, "no backend"):
		return NotFound
	case strings.Contains(msg, "access denied"),
		strings.Contains(msg, "permission"),
		strings.Contains(msg, "not allowed"):
		return PermissionDenied
	}
	return Other
}

// Message returns the localized text shown for the category. detail is
// used only by Other.
func (c Category) Message(detail string) string {
	switch c {
	case NotFound:
		return "Mic-ni (microphoniin) hin argamne. Maaloo mic kee check godhi."
	case PermissionDenied:
		return "Eeyyama mic dhorkatteetta. Maaloo settings keessatti eeyyami."
	default:
		if detail == "" {
			detail = "Hin argamne"
		}
		return "Dogoggora mic: " + detail
	}
}
