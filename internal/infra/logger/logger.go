package logger

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	lg   *zap.Logger
	once sync.Once
)

// New returns a singleton zap.Logger. Production gets JSON output; anything
// else gets the colored development console encoder.
func New(env string) (*zap.Logger, error) {
	var err error
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		if env != "production" {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}

		lg, err = cfg.Build()
	})

	return lg, err
}

// RequestIDKey is used to store a request identifier on the context.
type RequestIDKey struct{}

// PII masking helpers. Identifier values never reach logs unmasked.

// MaskEmail keeps up to three leading characters and the domain.
// dewi.anggraini@example.co.id becomes dew***@example.co.id.
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}

	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return "***"
	}

	visible := len(local)
	if visible > 3 {
		visible = 3
	}
	return local[:visible] + "***@" + domain
}

// MaskPhone keeps the leading country-code digits and the last four.
// +628111222333 becomes +628***2333.
func MaskPhone(phone string) string {
	if phone == "" {
		return ""
	}
	if len(phone) < 8 {
		return "***"
	}

	head := 3
	if strings.HasPrefix(phone, "+") {
		head = 4
	}
	return phone[:head] + "***" + phone[len(phone)-4:]
}

// MaskIP keeps the network half of an address: two octets for IPv4, four
// groups for IPv6.
func MaskIP(ip string) string {
	if ip == "" {
		return ""
	}

	if strings.Contains(ip, ".") {
		parts := strings.Split(ip, ".")
		if len(parts) == 4 {
			return parts[0] + "." + parts[1] + ".*.*"
		}
	}

	if strings.Contains(ip, ":") {
		parts := strings.Split(ip, ":")
		if len(parts) >= 4 {
			return strings.Join(parts[:4], ":") + ":*:*:*:*"
		}
	}

	return "***"
}

// MaskString keeps the first and last two characters of an opaque secret or
// identifier such as an employee NIK.
func MaskString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "***"
	}
	return s[:2] + "***" + s[len(s)-2:]
}
