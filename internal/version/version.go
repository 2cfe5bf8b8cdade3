// ABOUTME: Build identity reported in logs and request headers
// ABOUTME: Version is overridden at link time with -ldflags
package version

// Version is set by the release build
var Version = "0.1.0"

const (
	Product      = "Ashama AI"
	Manufacturer = "Newaz Nezif"
)

// UserAgent identifies the client to remote services
func UserAgent() string {
	return "ashama-go/" + Version
}
