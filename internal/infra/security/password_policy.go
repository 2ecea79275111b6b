package security

import (
	"fmt"
	"strings"

	"github.com/Alfahan/sso-sub000/internal/core/domain"
)

const (
	defaultMinPasswordLength   = 10
	defaultMinCharacterClasses = 3
	defaultMinZxcvbnScore      = 3
)

// PasswordRules are the tunable knobs of the password policy. Zero values fall
// back to the service defaults.
type PasswordRules struct {
	MinLength           int
	MinCharacterClasses int
	MinStrengthScore    int
}

func (r PasswordRules) withDefaults() PasswordRules {
	if r.MinLength <= 0 {
		r.MinLength = defaultMinPasswordLength
	}
	if r.MinCharacterClasses <= 0 {
		r.MinCharacterClasses = defaultMinCharacterClasses
	}
	if r.MinStrengthScore <= 0 {
		r.MinStrengthScore = defaultMinZxcvbnScore
	}
	return r
}

func (r PasswordRules) validator(userInputs []string) *PasswordValidator {
	r = r.withDefaults()
	return NewPasswordValidator(
		MinLengthRule(r.MinLength),
		RequireCharacterClassesRule(r.MinCharacterClasses),
		RequirePasswordStrengthRule(r.MinStrengthScore, userInputs...),
	)
}

// DefaultPasswordValidator returns a validator on the default rules, without
// contextual user inputs.
func DefaultPasswordValidator() *PasswordValidator {
	return PasswordRules{}.validator(nil)
}

// NewPasswordValidatorWithContext includes additional user inputs (username,
// email) in the strength check so passwords derived from them score poorly.
func NewPasswordValidatorWithContext(userInputs ...string) *PasswordValidator {
	return PasswordRules{}.validator(userInputs)
}

// PasswordPolicy validates candidate passwords against the configured rules,
// feeding the account identifiers into the strength estimator.
type PasswordPolicy struct {
	rules PasswordRules
}

// NewPasswordPolicy builds a policy on the service defaults.
func NewPasswordPolicy() *PasswordPolicy {
	return NewPasswordPolicyWithRules(PasswordRules{})
}

// NewPasswordPolicyWithRules builds a policy with explicit rule knobs, zero
// values defaulted.
func NewPasswordPolicyWithRules(rules PasswordRules) *PasswordPolicy {
	return &PasswordPolicy{rules: rules.withDefaults()}
}

// Validate applies the policy to a candidate password.
func (p *PasswordPolicy) Validate(password string, ctx domain.PasswordContext) error {
	if p == nil {
		return fmt.Errorf("password policy not configured")
	}
	return p.rules.validator(contextInputs(ctx)).Validate(password)
}

// contextInputs flattens the account identifiers into zxcvbn user inputs. The
// email local part goes in on its own because users reuse it verbatim.
func contextInputs(ctx domain.PasswordContext) []string {
	inputs := make([]string, 0, 4)
	if ctx.Username != "" {
		inputs = append(inputs, ctx.Username)
	}
	if ctx.Email != "" {
		inputs = append(inputs, ctx.Email)
		if local, _, ok := strings.Cut(ctx.Email, "@"); ok && local != "" {
			inputs = append(inputs, local)
		}
	}
	if ctx.Phone != nil && *ctx.Phone != "" {
		inputs = append(inputs, *ctx.Phone)
	}
	return inputs
}
