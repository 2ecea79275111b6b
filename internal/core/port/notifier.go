package port

import "context"

// Notifier delivers OTP codes and reset links out of band. Calls are
// fire-and-forget from the caller's perspective: failures are logged by the
// implementation and never propagated into the auth flow.
type Notifier interface {
	SendOTPByEmail(ctx context.Context, address, code string) error
	SendOTPByMessage(ctx context.Context, phone, code string) error
	SendResetLink(ctx context.Context, address, token string) error
}
