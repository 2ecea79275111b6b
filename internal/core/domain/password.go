package domain

// PasswordContext carries user-derived words that a new password must not
// contain or resemble.
type PasswordContext struct {
	Username string
	Email    string
	Phone    *string
}
