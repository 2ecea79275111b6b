package fingerprint

import (
	"strings"

	"github.com/mileusna/useragent"

	"github.com/Alfahan/sso-sub000/internal/core/port"
)

// UAParser extracts the OS/browser/device triple from a User-Agent header.
type UAParser struct{}

// NewUAParser constructs a User-Agent parser.
func NewUAParser() UAParser {
	return UAParser{}
}

// Parse returns the OS name, browser name, and device class. Unrecognized
// headers yield empty strings, which comparison treats as unknown dimensions.
func (UAParser) Parse(header string) (os, browser, device string) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", "", ""
	}

	ua := useragent.Parse(header)

	switch {
	case ua.Mobile:
		device = "mobile"
	case ua.Tablet:
		device = "tablet"
	case ua.Desktop:
		device = "desktop"
	case ua.Bot:
		device = "bot"
	}

	return ua.OS, ua.Name, device
}

var _ port.AgentParser = UAParser{}
