package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Alfahan/sso-sub000/internal/core/domain"
	"github.com/Alfahan/sso-sub000/internal/core/port"
	"github.com/Alfahan/sso-sub000/internal/infra/config"
	"github.com/Alfahan/sso-sub000/internal/infra/logger"
	"github.com/Alfahan/sso-sub000/internal/infra/security"
	"github.com/Alfahan/sso-sub000/internal/infra/telemetry"
	"github.com/Alfahan/sso-sub000/internal/repository"
)

// LoginStep tells the caller what the flow produced.
type LoginStep string

const (
	// LoginStepCodeIssued means credentials checked out and an authorization
	// code is ready for exchange.
	LoginStepCodeIssued LoginStep = "CODE_ISSUED"
	// LoginStepOTPRequired means a one-time code was sent and must be
	// verified before a code is issued.
	LoginStepOTPRequired LoginStep = "OTP_REQUIRED"
)

const (
	failureReasonPassword = "invalid_password"
	failureReasonOTP      = "invalid_otp"
	failureReasonAnomaly  = "anomaly"
)

// LoginResult is the outcome of a credential-bearing login operation.
type LoginResult struct {
	Step          LoginStep
	UserID        string
	Code          string
	CodeExpiresAt time.Time
	OTP           *OTPIssueResult
}

// ExchangeResult carries the token pair minted for an exchanged code.
type ExchangeResult struct {
	SessionID string
	UserID    string
	Tokens    domain.TokenPair
	Reused    bool
}

// LoginService orchestrates the login state machine: admission, credential
// verification, anomaly evaluation, OTP escalation, code issuance, and the
// downstream exchange/refresh/logout operations. Every terminal transition
// appends an auth history row carrying the request fingerprint.
type LoginService struct {
	cfg       config.AuthSettings
	users     port.UserRepository
	apiKeys   port.APIKeyRepository
	limiter   *LoginRateLimiter
	anomalies *AnomalyDetector
	otp       *OTPService
	codes     *CodeService
	sessions  *SessionService
	history   port.AuthHistoryRepository
	directory port.DirectoryClient
	events    port.EventPublisher
	metrics   *telemetry.Provider
	policy    port.PasswordPolicyValidator
	logger    *zap.Logger
	now       func() time.Time
}

// NewLoginService constructs the login orchestrator.
func NewLoginService(cfg config.AuthSettings, users port.UserRepository, apiKeys port.APIKeyRepository, limiter *LoginRateLimiter, anomalies *AnomalyDetector, otp *OTPService, codes *CodeService, sessions *SessionService, history port.AuthHistoryRepository, directory port.DirectoryClient, events port.EventPublisher, metrics *telemetry.Provider, policy port.PasswordPolicyValidator, log *zap.Logger) *LoginService {
	if policy == nil {
		policy = security.NewPasswordPolicy()
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &LoginService{
		cfg:       cfg,
		users:     users,
		apiKeys:   apiKeys,
		limiter:   limiter,
		anomalies: anomalies,
		otp:       otp,
		codes:     codes,
		sessions:  sessions,
		history:   history,
		directory: directory,
		events:    events,
		metrics:   metrics,
		policy:    policy,
		logger:    log,
		now:       time.Now,
	}
}

// WithClock overrides the service clock for deterministic tests.
func (s *LoginService) WithClock(now func() time.Time) *LoginService {
	if now != nil {
		s.now = now
	}
	return s
}

// ResolveAPIKey maps a raw client key onto its active record. Used by the
// transport layer to scope every login call to a known client.
func (s *LoginService) ResolveAPIKey(ctx context.Context, key string) (*domain.APIKey, error) {
	if key == "" {
		return nil, ErrAPIKeyInvalid
	}

	apiKey, err := s.apiKeys.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAPIKeyInvalid
		}
		return nil, fmt.Errorf("resolve api key: %w", err)
	}
	if apiKey.Status != domain.APIKeyStatusActive {
		return nil, ErrAPIKeyInvalid
	}

	return apiKey, nil
}

// LoginWithPassword authenticates identifier+password. Unknown identifiers
// fail exactly like wrong passwords, so the endpoint cannot be used to probe
// which accounts exist.
func (s *LoginService) LoginWithPassword(ctx context.Context, identifier, password, apiKeyID string, fp domain.Fingerprint) (*LoginResult, error) {
	kind, value := classifyIdentifier(identifier)

	user, err := s.users.GetByIdentifier(ctx, kind, value)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.countLogin("failure")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	if err := s.admit(ctx, user); err != nil {
		return nil, err
	}

	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return nil, s.failAttempt(ctx, user, failureReasonPassword, fp, ErrInvalidCredentials)
	}

	if result, err := s.applyAnomalyPolicy(ctx, user, apiKeyID, fp); result != nil || err != nil {
		return result, err
	}

	return s.succeed(ctx, user, apiKeyID, fp)
}

// LoginWithPhone starts a phone login by issuing an OTP challenge. The
// challenge must be verified through VerifyOTP to obtain a code.
func (s *LoginService) LoginWithPhone(ctx context.Context, phone, apiKeyID string, fp domain.Fingerprint) (*LoginResult, error) {
	user, err := s.users.GetByIdentifier(ctx, domain.IdentifierPhone, phone)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	if err := s.admit(ctx, user); err != nil {
		return nil, err
	}

	return s.issueOTPStep(ctx, user, apiKeyID, false)
}

// VerifyOTP completes a pending challenge and issues an authorization code.
// A wrong or expired code counts as a failed attempt against the lockout.
func (s *LoginService) VerifyOTP(ctx context.Context, identifier, code, apiKeyID string, fp domain.Fingerprint) (*LoginResult, error) {
	kind, value := classifyIdentifier(identifier)

	user, err := s.users.GetByIdentifier(ctx, kind, value)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.countLogin("failure")
			return nil, ErrOTPInvalid
		}
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	if err := s.admit(ctx, user); err != nil {
		return nil, err
	}

	if err := s.otp.Verify(ctx, user.ID, code); err != nil {
		if errors.Is(err, ErrOTPInvalid) || errors.Is(err, ErrOTPExpired) {
			return nil, s.failAttempt(ctx, user, failureReasonOTP, fp, err)
		}
		return nil, err
	}

	return s.succeed(ctx, user, apiKeyID, fp)
}

// LoginWithNIK authenticates an enterprise user. Unknown NIKs resolve against
// the external directory and provision the account just in time; the first
// and every subsequent NIK login is gated by a long-TTL OTP challenge
// delivered to the directory-registered contact.
func (s *LoginService) LoginWithNIK(ctx context.Context, nik, password, apiKeyID string, fp domain.Fingerprint) (*LoginResult, error) {
	user, err := s.users.GetByIdentifier(ctx, domain.IdentifierNIK, nik)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("resolve user: %w", err)
		}

		user, err = s.provisionFromDirectory(ctx, nik, password, fp)
		if err != nil {
			return nil, err
		}
	} else {
		if err := s.admit(ctx, user); err != nil {
			return nil, err
		}

		ok, verr := security.VerifyPassword(password, user.PasswordHash)
		if verr != nil || !ok {
			return nil, s.failAttempt(ctx, user, failureReasonPassword, fp, ErrInvalidCredentials)
		}
	}

	return s.issueOTPStep(ctx, user, apiKeyID, true)
}

// ExchangeCode swaps an authorization code for a session token pair.
func (s *LoginService) ExchangeCode(ctx context.Context, code string) (*ExchangeResult, error) {
	authCode, err := s.codes.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, authCode.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCodeInvalid
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.CanAuthenticate() {
		return nil, ErrAccountBlocked
	}

	session, reused, err := s.sessions.IssueOrReuse(ctx, user, authCode.APIKeyID, authCode.Fingerprint)
	if err != nil {
		return nil, err
	}

	s.publishLoginSucceeded(ctx, session, reused)

	return &ExchangeResult{
		SessionID: session.ID,
		UserID:    session.UserID,
		Tokens: domain.TokenPair{
			AccessToken:  session.AccessToken,
			RefreshToken: session.RefreshToken,
		},
		Reused: reused,
	}, nil
}

// Refresh rotates the token pair behind a refresh token.
func (s *LoginService) Refresh(ctx context.Context, refreshToken string) (*ExchangeResult, error) {
	session, err := s.sessions.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	return &ExchangeResult{
		SessionID: session.ID,
		UserID:    session.UserID,
		Tokens: domain.TokenPair{
			AccessToken:  session.AccessToken,
			RefreshToken: session.RefreshToken,
		},
	}, nil
}

// Introspect verifies an access token and returns the owning session.
func (s *LoginService) Introspect(ctx context.Context, accessToken string) (*domain.Session, error) {
	return s.sessions.Verify(ctx, accessToken)
}

// Logout verifies the access token, revokes the session, and records the
// transition. An expired token still logs out its session.
func (s *LoginService) Logout(ctx context.Context, accessToken string, fp domain.Fingerprint) error {
	session, err := s.sessions.Verify(ctx, accessToken)
	if err != nil && !errors.Is(err, ErrTokenExpired) {
		return err
	}

	if err := s.sessions.Revoke(ctx, session.ID); err != nil {
		return err
	}

	now := s.now().UTC()
	s.appendHistory(ctx, session.UserID, fp, domain.ActionLogout, now)
	s.publishLogout(ctx, session, now)

	return nil
}

// admit enforces account status and the failed-attempt lockout.
func (s *LoginService) admit(ctx context.Context, user *domain.User) error {
	if !user.CanAuthenticate() {
		return ErrAccountBlocked
	}

	if err := s.limiter.CheckAdmission(ctx, user); err != nil {
		if errors.Is(err, ErrRateLimited) {
			s.countLockout()
		}
		return err
	}

	return nil
}

// applyAnomalyPolicy evaluates the fingerprint and applies the configured
// policy. Reject records the attempt as failed; require_otp escalates to a
// challenge instead. A nil, nil return means no anomaly and the flow goes on.
func (s *LoginService) applyAnomalyPolicy(ctx context.Context, user *domain.User, apiKeyID string, fp domain.Fingerprint) (*LoginResult, error) {
	kinds, err := s.anomalies.Evaluate(ctx, user.ID, fp)
	if err != nil {
		return nil, err
	}
	if len(kinds) == 0 {
		return nil, nil
	}

	s.publishAnomaly(ctx, user.ID, kinds, fp)
	for _, kind := range kinds {
		s.countAnomaly(string(kind))
	}

	if s.cfg.AnomalyPolicy == config.AnomalyPolicyRequireOTP {
		return s.issueOTPStep(ctx, user, apiKeyID, false)
	}

	return nil, s.failAttempt(ctx, user, failureReasonAnomaly, fp, &AnomalyError{Kinds: kinds})
}

// succeed closes out a verified attempt: counter reset, code issuance,
// history, last-login stamp.
func (s *LoginService) succeed(ctx context.Context, user *domain.User, apiKeyID string, fp domain.Fingerprint) (*LoginResult, error) {
	if err := s.limiter.Reset(ctx, user.ID); err != nil {
		s.logger.Warn("reset attempt counter failed", zap.String("user_id", user.ID), zap.Error(err))
	}

	code, err := s.codes.Issue(ctx, user.ID, apiKeyID, fp)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	s.appendHistory(ctx, user.ID, fp, domain.ActionLogin, now)
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("update last login failed", zap.String("user_id", user.ID), zap.Error(err))
	}
	s.countLogin("success")

	return &LoginResult{
		Step:          LoginStepCodeIssued,
		UserID:        user.ID,
		Code:          code.Code,
		CodeExpiresAt: code.ExpiresAt,
	}, nil
}

func (s *LoginService) issueOTPStep(ctx context.Context, user *domain.User, apiKeyID string, enterprise bool) (*LoginResult, error) {
	var keyID *string
	if apiKeyID != "" {
		keyID = &apiKeyID
	}

	issued, err := s.otp.Issue(ctx, user, keyID, enterprise)
	if err != nil {
		return nil, err
	}
	s.countOTPIssued()

	return &LoginResult{
		Step:   LoginStepOTPRequired,
		UserID: user.ID,
		OTP:    issued,
	}, nil
}

// failAttempt records a failed credential check and returns the caller's
// error with the attempt count folded into the failure event.
func (s *LoginService) failAttempt(ctx context.Context, user *domain.User, reason string, fp domain.Fingerprint, cause error) error {
	attempts, err := s.limiter.RecordFailure(ctx, user.ID)
	if err != nil {
		s.logger.Warn("record failed attempt failed", zap.String("user_id", user.ID), zap.Error(err))
	}

	now := s.now().UTC()
	s.appendHistory(ctx, user.ID, fp, domain.ActionLoginFailed, now)
	s.publishLoginFailed(ctx, user.ID, reason, fp, attempts, now)
	s.countLogin("failure")

	return cause
}

// provisionFromDirectory creates a local account for a directory-verified
// employee. The supplied password becomes the local credential after policy
// validation; the long-TTL OTP sent to the directory contact gates the first
// login.
func (s *LoginService) provisionFromDirectory(ctx context.Context, nik, password string, fp domain.Fingerprint) (*domain.User, error) {
	record, err := s.directory.FindByNIK(ctx, nik)
	if err != nil {
		s.logger.Warn("directory lookup failed", zap.String("nik", logger.MaskString(nik)), zap.Error(err))
		return nil, ErrDirectoryUnavailable
	}
	if record == nil {
		s.countLogin("failure")
		return nil, ErrInvalidCredentials
	}

	username := record.Username
	if username == "" {
		username = record.NIK
	}

	var phone *string
	if record.Phone != "" {
		phone = &record.Phone
	}

	if err := s.policy.Validate(password, domain.PasswordContext{
		Username: username,
		Email:    record.Email,
		Phone:    phone,
	}); err != nil {
		return nil, err
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	employeeNIK := record.NIK
	user := domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        record.Email,
		Phone:        phone,
		NIK:          &employeeNIK,
		PasswordHash: hash,
		Status:       domain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("provision user: %w", err)
	}

	s.publishRegistered(ctx, &user, "directory")
	s.logger.Info("provisioned enterprise user",
		zap.String("user_id", user.ID),
		zap.String("nik", logger.MaskString(nik)),
	)

	return &user, nil
}

func (s *LoginService) appendHistory(ctx context.Context, userID string, fp domain.Fingerprint, action domain.AuthAction, at time.Time) {
	entry := domain.AuthHistory{
		ID:          uuid.NewString(),
		UserID:      userID,
		Fingerprint: fp,
		Action:      action,
		CreatedAt:   at,
	}
	if err := s.history.Append(ctx, entry); err != nil {
		s.logger.Warn("append auth history failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *LoginService) publishLoginSucceeded(ctx context.Context, session *domain.Session, reused bool) {
	if s.events == nil {
		return
	}
	event := domain.LoginSucceededEvent{
		EventID:     uuid.NewString(),
		UserID:      session.UserID,
		APIKeyID:    session.APIKeyID,
		SessionID:   session.ID,
		Fingerprint: session.Fingerprint,
		Reused:      reused,
		At:          s.now().UTC(),
	}
	if err := s.events.PublishLoginSucceeded(ctx, event); err != nil {
		s.logger.Warn("publish login succeeded event failed", zap.String("user_id", session.UserID), zap.Error(err))
	}
}

func (s *LoginService) publishLoginFailed(ctx context.Context, userID, reason string, fp domain.Fingerprint, attempts int, at time.Time) {
	if s.events == nil {
		return
	}
	event := domain.LoginFailedEvent{
		EventID:     uuid.NewString(),
		UserID:      userID,
		Reason:      reason,
		Fingerprint: fp,
		Attempts:    attempts,
		At:          at,
	}
	if err := s.events.PublishLoginFailed(ctx, event); err != nil {
		s.logger.Warn("publish login failed event failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *LoginService) publishLogout(ctx context.Context, session *domain.Session, at time.Time) {
	if s.events == nil {
		return
	}
	event := domain.LogoutEvent{
		EventID:   uuid.NewString(),
		UserID:    session.UserID,
		SessionID: session.ID,
		At:        at,
	}
	if err := s.events.PublishLogout(ctx, event); err != nil {
		s.logger.Warn("publish logout event failed", zap.String("user_id", session.UserID), zap.Error(err))
	}
}

func (s *LoginService) publishAnomaly(ctx context.Context, userID string, kinds []domain.AnomalyKind, fp domain.Fingerprint) {
	if s.events == nil {
		return
	}
	event := domain.AnomalyDetectedEvent{
		EventID:     uuid.NewString(),
		UserID:      userID,
		Kinds:       kinds,
		Fingerprint: fp,
		At:          s.now().UTC(),
	}
	if err := s.events.PublishAnomalyDetected(ctx, event); err != nil {
		s.logger.Warn("publish anomaly event failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *LoginService) publishRegistered(ctx context.Context, user *domain.User, source string) {
	if s.events == nil {
		return
	}

	var email *string
	if user.Email != "" {
		value := user.Email
		email = &value
	}

	event := domain.UserRegisteredEvent{
		EventID:      uuid.NewString(),
		UserID:       user.ID,
		Username:     user.Username,
		Email:        email,
		Phone:        user.Phone,
		RegisteredAt: user.CreatedAt,
		Source:       source,
	}
	if err := s.events.PublishUserRegistered(ctx, event); err != nil {
		s.logger.Warn("publish user registered event failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}

func (s *LoginService) countLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.CountLogin(outcome)
	}
}

func (s *LoginService) countAnomaly(kind string) {
	if s.metrics != nil {
		s.metrics.CountAnomaly(kind)
	}
}

func (s *LoginService) countOTPIssued() {
	if s.metrics != nil {
		s.metrics.CountOTPIssued()
	}
}

func (s *LoginService) countLockout() {
	if s.metrics != nil {
		s.metrics.CountLockout()
	}
}
