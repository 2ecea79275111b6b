package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Alfahan/sso-sub000/internal/core/domain"
	"github.com/Alfahan/sso-sub000/internal/core/port"
	"github.com/Alfahan/sso-sub000/internal/infra/config"
	"github.com/Alfahan/sso-sub000/internal/infra/security"
	"github.com/Alfahan/sso-sub000/internal/repository"
)

const (
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
	refreshSecretByteLen   = 32
)

// SessionService mints, verifies, rotates, and revokes session token pairs.
// The access token subject is the field-cipher output for the session id, so
// inspecting a token never reveals the raw identifier; it is decrypted only
// after the signature checks out.
type SessionService struct {
	sessions   port.SessionRepository
	tokens     *security.JWTManager
	cipher     port.FieldCipher
	signingKid string
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(cfg config.JWTSettings, issuer string, sessions port.SessionRepository, tokens *security.JWTManager, cipher port.FieldCipher, signingKid string, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}

	refreshTTL := cfg.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTokenTTL
	}

	return &SessionService{
		sessions:   sessions,
		tokens:     tokens,
		cipher:     cipher,
		signingKid: signingKid,
		issuer:     issuer,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: refreshTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the service clock for deterministic tests.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	if now != nil {
		s.now = now
	}
	return s
}

// IssueOrReuse returns a live, signature-valid session for the exact
// (user, client, fingerprint) tuple unchanged. When the tuple has a row whose
// access token no longer verifies, the tokens rotate in place and the session
// id stays stable; when no row exists a new session is created. The second
// return reports whether an existing pair was handed back untouched.
func (s *SessionService) IssueOrReuse(ctx context.Context, user *domain.User, apiKeyID string, fp domain.Fingerprint) (*domain.Session, bool, error) {
	if user == nil {
		return nil, false, ErrUserNotFound
	}

	now := s.now().UTC()

	existing, err := s.sessions.GetActive(ctx, user.ID, apiKeyID, fp)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, false, fmt.Errorf("load active session: %w", err)
	}
	if existing != nil {
		if s.accessTokenVerifies(existing.AccessToken, now) {
			return existing, true, nil
		}

		access, refresh, err := s.mintPair(existing.ID, apiKeyID, now)
		if err != nil {
			return nil, false, err
		}
		if err := s.sessions.UpdateTokens(ctx, existing.ID, access, refresh, now); err != nil {
			return nil, false, fmt.Errorf("rotate session tokens: %w", err)
		}

		rotated := *existing
		rotated.AccessToken = access
		rotated.RefreshToken = refresh
		rotated.UpdatedAt = now
		return &rotated, false, nil
	}

	sessionID := uuid.NewString()
	access, refresh, err := s.mintPair(sessionID, apiKeyID, now)
	if err != nil {
		return nil, false, err
	}

	session := domain.Session{
		ID:           sessionID,
		UserID:       user.ID,
		APIKeyID:     apiKeyID,
		AccessToken:  access,
		RefreshToken: refresh,
		Status:       domain.SessionLoggedIn,
		Fingerprint:  fp,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, false, fmt.Errorf("persist session: %w", err)
	}

	return &session, false, nil
}

// Verify authenticates an access token against both its signature and the
// session row. The row status is authoritative: a revoked session fails
// verification even when the token itself has not cryptographically expired.
func (s *SessionService) Verify(ctx context.Context, accessToken string) (*domain.Session, error) {
	claims := &security.AccessTokenClaims{}
	_, err := jwt.ParseWithClaims(accessToken, claims, s.tokens.Keyfunc,
		jwt.WithTimeFunc(func() time.Time { return s.now().UTC() }))

	expired := false
	if err != nil {
		if !errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionInvalid
		}
		expired = true
	}

	session, lookupErr := s.lookupBySubject(ctx, claims.Subject)
	if lookupErr != nil {
		return nil, lookupErr
	}
	if !session.IsLive() {
		return nil, ErrSessionInvalid
	}
	if !security.ConstantTimeEquals(session.AccessToken, accessToken) {
		return nil, ErrSessionInvalid
	}
	if expired {
		// The row is returned alongside the error so logout can still
		// revoke a session whose access token already expired.
		return session, ErrTokenExpired
	}

	return session, nil
}

// Refresh rotates the token pair for the session owning the refresh token.
// The session id is stable across rotations. A refresh token older than the
// configured refresh TTL is rejected; the user has to log in again.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*domain.Session, error) {
	session, err := s.sessions.GetByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("load session by refresh token: %w", err)
	}
	if !session.IsLive() {
		return nil, ErrSessionInvalid
	}

	now := s.now().UTC()
	// Every mint and rotation stamps updated_at, so it marks when the
	// current refresh token was issued.
	if now.Sub(session.UpdatedAt) > s.refreshTTL {
		return nil, ErrTokenExpired
	}

	access, refresh, err := s.mintPair(session.ID, session.APIKeyID, now)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.UpdateTokens(ctx, session.ID, access, refresh, now); err != nil {
		return nil, fmt.Errorf("rotate session tokens: %w", err)
	}

	rotated := *session
	rotated.AccessToken = access
	rotated.RefreshToken = refresh
	rotated.UpdatedAt = now
	return &rotated, nil
}

// Revoke flips the session to LOGGED_OUT. Every token bound to the row stops
// verifying and refreshing from that point, regardless of expiry.
func (s *SessionService) Revoke(ctx context.Context, sessionID string) error {
	if err := s.sessions.SetStatus(ctx, sessionID, domain.SessionLoggedOut); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionInvalid
		}
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeAllForUser logs out every live session of a user and returns how many
// rows changed.
func (s *SessionService) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	revoked, err := s.sessions.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke user sessions: %w", err)
	}
	return revoked, nil
}

func (s *SessionService) mintPair(sessionID, apiKeyID string, now time.Time) (string, string, error) {
	subject, err := s.cipher.Encrypt(sessionID)
	if err != nil {
		return "", "", fmt.Errorf("seal token subject: %w", err)
	}

	claims, err := security.NewAccessTokenClaims(security.TokenOptions{
		Subject:  subject,
		APIKeyID: apiKeyID,
		Issuer:   s.issuer,
		TTL:      s.accessTTL,
		IssuedAt: now,
	})
	if err != nil {
		return "", "", fmt.Errorf("build access token claims: %w", err)
	}

	access, err := s.tokens.Sign(s.signingKid, claims)
	if err != nil {
		return "", "", fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := security.GenerateSecureToken(refreshSecretByteLen)
	if err != nil {
		return "", "", fmt.Errorf("generate refresh token: %w", err)
	}

	return access, refresh, nil
}

func (s *SessionService) lookupBySubject(ctx context.Context, subject string) (*domain.Session, error) {
	if subject == "" {
		return nil, ErrSessionInvalid
	}

	sessionID, err := s.cipher.Decrypt(subject)
	if err != nil {
		return nil, ErrSessionInvalid
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	return session, nil
}

func (s *SessionService) accessTokenVerifies(accessToken string, now time.Time) bool {
	claims := &security.AccessTokenClaims{}
	_, err := jwt.ParseWithClaims(accessToken, claims, s.tokens.Keyfunc, jwt.WithTimeFunc(func() time.Time { return now }))
	return err == nil
}
