package usecase

import (
	"strings"

	"github.com/Alfahan/sso-sub000/internal/core/domain"
)

// classifyIdentifier maps a raw login identifier onto the blind-indexed
// column it should resolve against. Anything that is neither an email nor a
// phone number is treated as a username.
func classifyIdentifier(identifier string) (domain.IdentifierKind, string) {
	value := strings.TrimSpace(identifier)

	if strings.Contains(value, "@") {
		return domain.IdentifierEmail, strings.ToLower(value)
	}
	if looksLikePhone(value) {
		return domain.IdentifierPhone, value
	}
	return domain.IdentifierUsername, value
}

func looksLikePhone(value string) bool {
	if value == "" {
		return false
	}

	digits := 0
	for i, r := range value {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-':
		default:
			return false
		}
	}
	return digits >= 8
}
