package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Alfahan/sso-sub000/internal/core/domain"
	"github.com/Alfahan/sso-sub000/internal/core/port"
	"github.com/Alfahan/sso-sub000/internal/infra/config"
	"github.com/Alfahan/sso-sub000/internal/infra/security"
)

type loginFixture struct {
	svc       *LoginService
	users     *userRepoMock
	history   *historyRepoMock
	notifier  *notifierMock
	events    *eventPublisherMock
	directory *directoryMock
	current   *time.Time
}

func newLoginFixture(t *testing.T, cfg config.AuthSettings, users *userRepoMock) *loginFixture {
	t.Helper()

	current := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	cipher := newTestCipher(t)
	manager := newTestJWTManager(t)
	history := &historyRepoMock{}
	notifier := &notifierMock{}
	events := &eventPublisherMock{}
	directory := &directoryMock{records: make(map[string]*port.EmployeeRecord)}

	limiter := NewLoginRateLimiter(cfg, users, nil).WithClock(clock)
	anomalies := NewAnomalyDetector(history, nil)
	otp := NewOTPService(cfg, 5, newChallengeRepoMock(), cipher, notifier, nil, nil).WithClock(clock)
	codes := NewCodeService(newCodeRepoMock(), cfg.CodeTTL, nil).WithClock(clock)
	sessions := NewSessionService(
		config.JWTSettings{AccessTokenTTL: 15 * time.Minute, RefreshTokenTTL: 168 * time.Hour},
		testIssuer, newSessionRepoMock(), manager, cipher, testKid, nil,
	).WithClock(clock)

	apiKeys := &apiKeyRepoMock{keys: []domain.APIKey{
		{ID: "key-1", Name: "portal", Key: "portal-secret", Status: domain.APIKeyStatusActive},
		{ID: "key-2", Name: "legacy", Key: "legacy-secret", Status: "revoked"},
	}}

	svc := NewLoginService(cfg, users, apiKeys, limiter, anomalies, otp, codes, sessions, history, directory, events, nil, security.NewPasswordPolicy(), nil).
		WithClock(clock)

	return &loginFixture{
		svc:       svc,
		users:     users,
		history:   history,
		notifier:  notifier,
		events:    events,
		directory: directory,
		current:   &current,
	}
}

func loginTestUser(t *testing.T) *domain.User {
	t.Helper()
	hash, err := security.HashPassword("Correct-Horse-42!")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	phone := "+628111222333"
	return &domain.User{
		ID:           "user-1",
		Username:     "ayu.lestari",
		Email:        "ayu@example.com",
		Phone:        &phone,
		PasswordHash: hash,
		Status:       domain.UserStatusActive,
	}
}

func containsEvent(names []string, want string) bool {
	for _, name := range names {
		if name == want {
			return true
		}
	}
	return false
}

func TestLoginWithPasswordIssuesCodeAndExchanges(t *testing.T) {
	fx := newLoginFixture(t, testAuthSettings(), newUserRepoMock(loginTestUser(t)))
	ctx := context.Background()

	result, err := fx.svc.LoginWithPassword(ctx, "ayu.lestari", "Correct-Horse-42!", "key-1", testFingerprint())
	if err != nil {
		t.Fatalf("LoginWithPassword returned error: %v", err)
	}
	if result.Step != LoginStepCodeIssued || result.Code == "" {
		t.Fatalf("expected an issued code, got %+v", result)
	}

	actions := fx.history.actions("user-1")
	if len(actions) != 1 || actions[0] != domain.ActionLogin {
		t.Fatalf("unexpected history %v", actions)
	}
	if fx.users.get("user-1").LastLogin == nil {
		t.Fatal("expected last login stamped")
	}

	exchange, err := fx.svc.ExchangeCode(ctx, result.Code)
	if err != nil {
		t.Fatalf("ExchangeCode returned error: %v", err)
	}
	if exchange.Tokens.AccessToken == "" || exchange.Tokens.RefreshToken == "" {
		t.Fatal("expected a full token pair")
	}
	if !containsEvent(fx.events.names(), "login.succeeded") {
		t.Fatalf("expected login.succeeded event, got %v", fx.events.names())
	}

	// The code is single use.
	if _, err := fx.svc.ExchangeCode(ctx, result.Code); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid on replay, got %v", err)
	}
}

func TestLoginWithPasswordWrongPassword(t *testing.T) {
	fx := newLoginFixture(t, testAuthSettings(), newUserRepoMock(loginTestUser(t)))
	ctx := context.Background()

	_, err := fx.svc.LoginWithPassword(ctx, "ayu.lestari", "Wrong-Guess-1!", "key-1", testFingerprint())
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	if got := fx.users.get("user-1").FailedLoginAttempts; got != 1 {
		t.Fatalf("expected 1 failed attempt recorded, got %d", got)
	}
	actions := fx.history.actions("user-1")
	if len(actions) != 1 || actions[0] != domain.ActionLoginFailed {
		t.Fatalf("unexpected history %v", actions)
	}
	if !containsEvent(fx.events.names(), "login.failed") {
		t.Fatalf("expected login.failed event, got %v", fx.events.names())
	}
}

func TestLoginWithPasswordUnknownIdentifier(t *testing.T) {
	fx := newLoginFixture(t, testAuthSettings(), newUserRepoMock())

	_, err := fx.svc.LoginWithPassword(context.Background(), "nobody", "Whatever-9!", "key-1", testFingerprint())
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown identifiers must fail like wrong passwords, got %v", err)
	}
}

func TestLoginLockoutAfterRepeatedFailures(t *testing.T) {
	fx := newLoginFixture(t, testAuthSettings(), newUserRepoMock(loginTestUser(t)))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := fx.svc.LoginWithPassword(ctx, "ayu.lestari", "Wrong-Guess-1!", "key-1", testFingerprint()); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	// Even the correct password is rejected while the window is open.
	_, err := fx.svc.LoginWithPassword(ctx, "ayu.lestari", "Correct-Horse-42!", "key-1", testFingerprint())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	// Once the window elapses the counter resets and login succeeds.
	*fx.current = fx.current.Add(16 * time.Minute)

	result, err := fx.svc.LoginWithPassword(ctx, "ayu.lestari", "Correct-Horse-42!", "key-1", testFingerprint())
	if err != nil {
		t.Fatalf("expected login after window elapsed, got %v", err)
	}
	if result.Step != LoginStepCodeIssued {
		t.Fatalf("expected code issued, got %+v", result)
	}
}

func TestLoginBlockedAccount(t *testing.T) {
	user := loginTestUser(t)
	user.Status = domain.UserStatusBlocked
	fx := newLoginFixture(t, testAuthSettings(), newUserRepoMock(user))

	_, err := fx.svc.LoginWithPassword(context.Background(), "ayu.lestari", "Correct-Horse-42!", "key-1", testFingerprint())
	if !errors.Is(err, ErrAccountBlocked) {
		t.Fatalf("expected ErrAccountBlocked, got %v", err)
	}
}

func TestLoginAnomalyRejectPolicy(t *testing.T) {
	fx := newLoginFixture(t, testAuthSettings(), newUserRepoMock(loginTestUser(t)))
	ctx := context.Background()

	baseline := testFingerprint()
	_ = fx.history.Append(ctx, domain.AuthHistory{
		ID: "h-0", UserID: "user-1", Fingerprint: baseline,
		Action: domain.ActionLogin, CreatedAt: fx.current.Add(-24 * time.Hour),
	})

	moved := baseline
	moved.IP = "198.51.100.7"
	moved.Country = "SG"

	_, err := fx.svc.LoginWithPassword(ctx, "ayu.lestari", "Correct-Horse-42!", "key-1", moved)
	if !errors.Is(err, ErrAnomalyDetected) {
		t.Fatalf("expected ErrAnomalyDetected, got %v", err)
	}

	var anomaly *AnomalyError
	if !errors.As(err, &anomaly) {
		t.Fatalf("expected AnomalyError, got %T", err)
	}
	if len(anomaly.Kinds) != 2 {
		t.Fatalf("expected LOCATION and IP kinds, got %v", anomaly.Kinds)
	}
	if !containsEvent(fx.events.names(), "anomaly.detected") {
		t.Fatalf("expected anomaly.detected event, got %v", fx.events.names())
	}

	actions := fx.history.actions("user-1")
	if actions[len(actions)-1] != domain.ActionLoginFailed {
		t.Fatalf("expected trailing LOGIN_FAILED, got %v", actions)
	}
}

func TestLoginAnomalyRequireOTPPolicy(t *testing.T) {
	cfg := testAuthSettings()
	cfg.AnomalyPolicy = config.AnomalyPolicyRequireOTP
	fx := newLoginFixture(t, cfg, newUserRepoMock(loginTestUser(t)))
	ctx := context.Background()

	baseline := testFingerprint()
	_ = fx.history.Append(ctx, domain.AuthHistory{
		ID: "h-0", UserID: "user-1", Fingerprint: baseline,
		Action: domain.ActionLogin, CreatedAt: fx.current.Add(-24 * time.Hour),
	})

	moved := baseline
	moved.Country = "SG"
	moved.IP = "198.51.100.7"

	result, err := fx.svc.LoginWithPassword(ctx, "ayu.lestari", "Correct-Horse-42!", "key-1", moved)
	if err != nil {
		t.Fatalf("LoginWithPassword returned error: %v", err)
	}
	if result.Step != LoginStepOTPRequired {
		t.Fatalf("expected OTP escalation, got %+v", result)
	}

	verified, err := fx.svc.VerifyOTP(ctx, "ayu.lestari", fx.notifier.lastCode, "key-1", moved)
	if err != nil {
		t.Fatalf("VerifyOTP returned error: %v", err)
	}
	if verified.Step != LoginStepCodeIssued || verified.Code == "" {
		t.Fatalf("expected code after OTP verification, got %+v", verified)
	}
}

func TestLoginWithPhoneFlow(t *testing.T) {
	fx := newLoginFixture(t, testAuthSettings(), newUserRepoMock(loginTestUser(t)))
	ctx := context.Background()

	result, err := fx.svc.LoginWithPhone(ctx, "+628111222333", "key-1", testFingerprint())
	if err != nil {
		t.Fatalf("LoginWithPhone returned error: %v", err)
	}
	if result.Step != LoginStepOTPRequired || result.OTP == nil {
		t.Fatalf("expected OTP challenge, got %+v", result)
	}
	if len(fx.notifier.sms) == 0 {
		t.Fatal("expected SMS delivery")
	}

	verified, err := fx.svc.VerifyOTP(ctx, "+628111222333", fx.notifier.lastCode, "key-1", testFingerprint())
	if err != nil {
		t.Fatalf("VerifyOTP returned error: %v", err)
	}
	if verified.Step != LoginStepCodeIssued {
		t.Fatalf("expected code issued, got %+v", verified)
	}
}

func TestVerifyOTPWrongCodeCountsFailure(t *testing.T) {
	fx := newLoginFixture(t, testAuthSettings(), newUserRepoMock(loginTestUser(t)))
	ctx := context.Background()

	if _, err := fx.svc.LoginWithPhone(ctx, "+628111222333", "key-1", testFingerprint()); err != nil {
		t.Fatalf("LoginWithPhone returned error: %v", err)
	}

	_, err := fx.svc.VerifyOTP(ctx, "+628111222333", "000000", "key-1", testFingerprint())
	if !errors.Is(err, ErrOTPInvalid) {
		t.Fatalf("expected ErrOTPInvalid, got %v", err)
	}
	if got := fx.users.get("user-1").FailedLoginAttempts; got != 1 {
		t.Fatalf("expected failed attempt recorded, got %d", got)
	}
}

func TestLoginWithNIKProvisionsFromDirectory(t *testing.T) {
	fx := newLoginFixture(t, testAuthSettings(), newUserRepoMock())
	ctx := context.Background()

	fx.directory.records["3174012345678901"] = &port.EmployeeRecord{
		NIK:      "3174012345678901",
		Name:     "Budi Santoso",
		Email:    "budi@corp.example.com",
		Phone:    "+628999888777",
		Username: "budi.santoso",
	}

	result, err := fx.svc.LoginWithNIK(ctx, "3174012345678901", "Enterprise-Gate-55!", "key-1", testFingerprint())
	if err != nil {
		t.Fatalf("LoginWithNIK returned error: %v", err)
	}
	if result.Step != LoginStepOTPRequired || result.OTP == nil {
		t.Fatalf("expected enterprise OTP step, got %+v", result)
	}
	if want := fx.current.Add(10 * time.Minute); !result.OTP.ExpiresAt.Equal(want) {
		t.Fatalf("expected enterprise TTL expiry %v, got %v", want, result.OTP.ExpiresAt)
	}

	provisioned, err := fx.users.GetByIdentifier(ctx, domain.IdentifierNIK, "3174012345678901")
	if err != nil {
		t.Fatalf("expected user provisioned: %v", err)
	}
	if provisioned.Username != "budi.santoso" || provisioned.Email != "budi@corp.example.com" {
		t.Fatalf("unexpected provisioned user %+v", provisioned)
	}
	if !containsEvent(fx.events.names(), "user.registered") {
		t.Fatalf("expected user.registered event, got %v", fx.events.names())
	}

	// Second login hits the local account; the supplied password now verifies locally.
	verified, err := fx.svc.VerifyOTP(ctx, "budi.santoso", fx.notifier.lastCode, "key-1", testFingerprint())
	if err != nil {
		t.Fatalf("VerifyOTP returned error: %v", err)
	}
	if verified.Step != LoginStepCodeIssued {
		t.Fatalf("expected code issued, got %+v", verified)
	}
}

func TestLoginWithNIKDirectoryUnavailable(t *testing.T) {
	fx := newLoginFixture(t, testAuthSettings(), newUserRepoMock())
	fx.directory.err = fmt.Errorf("upstream timeout")

	_, err := fx.svc.LoginWithNIK(context.Background(), "3174012345678901", "Enterprise-Gate-55!", "key-1", testFingerprint())
	if !errors.Is(err, ErrDirectoryUnavailable) {
		t.Fatalf("expected ErrDirectoryUnavailable, got %v", err)
	}
}

func TestLoginWithNIKUnknownEmployee(t *testing.T) {
	fx := newLoginFixture(t, testAuthSettings(), newUserRepoMock())

	_, err := fx.svc.LoginWithNIK(context.Background(), "0000000000000000", "Enterprise-Gate-55!", "key-1", testFingerprint())
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	fx := newLoginFixture(t, testAuthSettings(), newUserRepoMock(loginTestUser(t)))
	ctx := context.Background()

	result, err := fx.svc.LoginWithPassword(ctx, "ayu.lestari", "Correct-Horse-42!", "key-1", testFingerprint())
	if err != nil {
		t.Fatalf("LoginWithPassword returned error: %v", err)
	}
	exchange, err := fx.svc.ExchangeCode(ctx, result.Code)
	if err != nil {
		t.Fatalf("ExchangeCode returned error: %v", err)
	}

	if err := fx.svc.Logout(ctx, exchange.Tokens.AccessToken, testFingerprint()); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}

	if !containsEvent(fx.events.names(), "logout") {
		t.Fatalf("expected logout event, got %v", fx.events.names())
	}
	actions := fx.history.actions("user-1")
	if actions[len(actions)-1] != domain.ActionLogout {
		t.Fatalf("expected trailing LOGOUT, got %v", actions)
	}

	// Refresh after logout must fail: the row is authoritative.
	if _, err := fx.svc.Refresh(ctx, exchange.Tokens.RefreshToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid after logout, got %v", err)
	}
}

func TestResolveAPIKey(t *testing.T) {
	fx := newLoginFixture(t, testAuthSettings(), newUserRepoMock())
	ctx := context.Background()

	key, err := fx.svc.ResolveAPIKey(ctx, "portal-secret")
	if err != nil {
		t.Fatalf("ResolveAPIKey returned error: %v", err)
	}
	if key.ID != "key-1" {
		t.Fatalf("unexpected api key %+v", key)
	}

	if _, err := fx.svc.ResolveAPIKey(ctx, "legacy-secret"); !errors.Is(err, ErrAPIKeyInvalid) {
		t.Fatalf("expected ErrAPIKeyInvalid for revoked key, got %v", err)
	}
	if _, err := fx.svc.ResolveAPIKey(ctx, "unknown"); !errors.Is(err, ErrAPIKeyInvalid) {
		t.Fatalf("expected ErrAPIKeyInvalid for unknown key, got %v", err)
	}
}
