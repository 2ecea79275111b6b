package port

import "github.com/Alfahan/sso-sub000/internal/core/domain"

// PasswordPolicyValidator enforces password strength requirements.
type PasswordPolicyValidator interface {
	Validate(password string, ctx domain.PasswordContext) error
}
