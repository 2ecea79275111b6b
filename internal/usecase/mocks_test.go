package usecase

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Alfahan/sso-sub000/internal/core/domain"
	"github.com/Alfahan/sso-sub000/internal/core/port"
	"github.com/Alfahan/sso-sub000/internal/infra/security"
	"github.com/Alfahan/sso-sub000/internal/repository"
)

const (
	testCipherKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	testIndexKey  = "00112233445566778899aabbccddeeff"
	testKid       = "test-key"
	testIssuer    = "sso-core-test"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func newTestCipher(t *testing.T) *security.AESFieldCipher {
	t.Helper()
	cipher, err := security.NewAESFieldCipher(testCipherKey, testIndexKey)
	if err != nil {
		t.Fatalf("NewAESFieldCipher: %v", err)
	}
	return cipher
}

type staticKeyProvider struct {
	key *rsa.PrivateKey
}

func (p *staticKeyProvider) GetSigningKey() (*rsa.PrivateKey, error) { return p.key, nil }

func (p *staticKeyProvider) GetVerificationKey(kid string) (*rsa.PublicKey, error) {
	if kid != testKid {
		return nil, security.ErrKeyNotFound
	}
	return &p.key.PublicKey, nil
}

func (p *staticKeyProvider) ListVerificationKeys() map[string]*rsa.PublicKey {
	return map[string]*rsa.PublicKey{testKid: &p.key.PublicKey}
}

func newTestJWTManager(t *testing.T) *security.JWTManager {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}
	return security.NewJWTManager(&staticKeyProvider{key: key})
}

// userRepoMock is a map-backed in-memory user store keyed by id.
type userRepoMock struct {
	mu        sync.Mutex
	users     map[string]*domain.User
	createErr error
}

func newUserRepoMock(users ...*domain.User) *userRepoMock {
	m := &userRepoMock{users: make(map[string]*domain.User)}
	for _, u := range users {
		copied := *u
		m.users[u.ID] = &copied
	}
	return m
}

func (m *userRepoMock) get(id string) *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id]
}

func (m *userRepoMock) Create(_ context.Context, user domain.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = &user
	return nil
}

func (m *userRepoMock) GetByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.users[id]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (m *userRepoMock) GetByIdentifier(_ context.Context, kind domain.IdentifierKind, value string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		var match bool
		switch kind {
		case domain.IdentifierUsername:
			match = user.Username == value
		case domain.IdentifierEmail:
			match = user.Email == value
		case domain.IdentifierPhone:
			match = user.Phone != nil && *user.Phone == value
		case domain.IdentifierNIK:
			match = user.NIK != nil && *user.NIK == value
		}
		if match {
			copied := *user
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *userRepoMock) UpdatePassword(_ context.Context, id, passwordHash string, changedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = changedAt
	return nil
}

func (m *userRepoMock) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.LastLogin = &at
	return nil
}

func (m *userRepoMock) IncrementFailedAttempts(_ context.Context, id string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	user.FailedLoginAttempts++
	user.AttemptsUpdatedAt = &at
	return user.FailedLoginAttempts, nil
}

func (m *userRepoMock) ResetFailedAttempts(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.FailedLoginAttempts = 0
	user.AttemptsUpdatedAt = &at
	return nil
}

var _ port.UserRepository = (*userRepoMock)(nil)

// historyRepoMock appends in memory and serves the newest row.
type historyRepoMock struct {
	mu      sync.Mutex
	entries []domain.AuthHistory
}

func (m *historyRepoMock) Append(_ context.Context, entry domain.AuthHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *historyRepoMock) Latest(_ context.Context, userID string) (*domain.AuthHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *domain.AuthHistory
	for i := range m.entries {
		entry := m.entries[i]
		if entry.UserID != userID {
			continue
		}
		if latest == nil || entry.CreatedAt.After(latest.CreatedAt) {
			latest = &m.entries[i]
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (m *historyRepoMock) actions(userID string) []domain.AuthAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var actions []domain.AuthAction
	for _, entry := range m.entries {
		if entry.UserID == userID {
			actions = append(actions, entry.Action)
		}
	}
	return actions
}

var _ port.AuthHistoryRepository = (*historyRepoMock)(nil)

// challengeRepoMock keeps at most one VALID challenge per user, mirroring the
// supersede semantics of the real repository.
type challengeRepoMock struct {
	mu         sync.Mutex
	challenges map[string]*domain.MfaChallenge
}

func newChallengeRepoMock() *challengeRepoMock {
	return &challengeRepoMock{challenges: make(map[string]*domain.MfaChallenge)}
}

func (m *challengeRepoMock) Supersede(_ context.Context, challenge domain.MfaChallenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.challenges {
		if existing.UserID == challenge.UserID && existing.Status == domain.CredentialValid {
			existing.Status = domain.CredentialInvalid
		}
	}
	m.challenges[challenge.ID] = &challenge
	return nil
}

func (m *challengeRepoMock) GetActiveByUser(_ context.Context, userID string) (*domain.MfaChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var newest *domain.MfaChallenge
	for _, challenge := range m.challenges {
		if challenge.UserID != userID || challenge.Status != domain.CredentialValid {
			continue
		}
		if newest == nil || challenge.CreatedAt.After(newest.CreatedAt) {
			newest = challenge
		}
	}
	if newest == nil {
		return nil, repository.ErrNotFound
	}
	copied := *newest
	return &copied, nil
}

func (m *challengeRepoMock) Consume(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	challenge, ok := m.challenges[id]
	if !ok || challenge.Status != domain.CredentialValid {
		return repository.ErrNotFound
	}
	challenge.Status = domain.CredentialInvalid
	return nil
}

func (m *challengeRepoMock) Invalidate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	challenge, ok := m.challenges[id]
	if !ok {
		return repository.ErrNotFound
	}
	challenge.Status = domain.CredentialInvalid
	return nil
}

var _ port.ChallengeRepository = (*challengeRepoMock)(nil)

// codeRepoMock mirrors the atomic consume of the real repository.
type codeRepoMock struct {
	mu    sync.Mutex
	codes map[string]*domain.AuthCode
}

func newCodeRepoMock() *codeRepoMock {
	return &codeRepoMock{codes: make(map[string]*domain.AuthCode)}
}

func (m *codeRepoMock) Supersede(_ context.Context, code domain.AuthCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.codes {
		if existing.UserID == code.UserID && existing.APIKeyID == code.APIKeyID && existing.Status == domain.CredentialValid {
			existing.Status = domain.CredentialInvalid
		}
	}
	m.codes[code.ID] = &code
	return nil
}

func (m *codeRepoMock) GetActive(_ context.Context, userID, apiKeyID string) (*domain.AuthCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, code := range m.codes {
		if code.UserID == userID && code.APIKeyID == apiKeyID && code.Status == domain.CredentialValid {
			copied := *code
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *codeRepoMock) Consume(_ context.Context, secret string) (*domain.AuthCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, code := range m.codes {
		if code.Code == secret && code.Status == domain.CredentialValid {
			code.Status = domain.CredentialInvalid
			copied := *code
			copied.Status = domain.CredentialValid
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *codeRepoMock) Invalidate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	code, ok := m.codes[id]
	if !ok {
		return repository.ErrNotFound
	}
	code.Status = domain.CredentialInvalid
	return nil
}

var _ port.CodeRepository = (*codeRepoMock)(nil)

// sessionRepoMock is a map-backed session store.
type sessionRepoMock struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func newSessionRepoMock() *sessionRepoMock {
	return &sessionRepoMock{sessions: make(map[string]*domain.Session)}
}

func (m *sessionRepoMock) Create(_ context.Context, session domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = &session
	return nil
}

func (m *sessionRepoMock) GetByID(_ context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session, ok := m.sessions[id]; ok {
		copied := *session
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (m *sessionRepoMock) GetActive(_ context.Context, userID, apiKeyID string, fp domain.Fingerprint) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, session := range m.sessions {
		if session.UserID == userID && session.APIKeyID == apiKeyID &&
			session.Status == domain.SessionLoggedIn && session.Fingerprint == fp {
			copied := *session
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *sessionRepoMock) GetByAccessToken(_ context.Context, token string) (*domain.Session, error) {
	return m.findByToken(func(s *domain.Session) bool { return s.AccessToken == token })
}

func (m *sessionRepoMock) GetByRefreshToken(_ context.Context, token string) (*domain.Session, error) {
	return m.findByToken(func(s *domain.Session) bool { return s.RefreshToken == token })
}

func (m *sessionRepoMock) findByToken(match func(*domain.Session) bool) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, session := range m.sessions {
		if match(session) {
			copied := *session
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *sessionRepoMock) UpdateTokens(_ context.Context, id, accessToken, refreshToken string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	session.AccessToken = accessToken
	session.RefreshToken = refreshToken
	session.UpdatedAt = at
	return nil
}

func (m *sessionRepoMock) SetStatus(_ context.Context, id string, status domain.SessionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	session.Status = status
	return nil
}

func (m *sessionRepoMock) RevokeAllForUser(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	revoked := 0
	for _, session := range m.sessions {
		if session.UserID == userID && session.Status == domain.SessionLoggedIn {
			session.Status = domain.SessionLoggedOut
			revoked++
		}
	}
	return revoked, nil
}

var _ port.SessionRepository = (*sessionRepoMock)(nil)

// resetRepoMock keeps at most one VALID token per user.
type resetRepoMock struct {
	mu     sync.Mutex
	tokens map[string]*domain.PasswordResetToken
}

func newResetRepoMock() *resetRepoMock {
	return &resetRepoMock{tokens: make(map[string]*domain.PasswordResetToken)}
}

func (m *resetRepoMock) Supersede(_ context.Context, token domain.PasswordResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tokens {
		if existing.UserID == token.UserID && existing.Status == domain.CredentialValid {
			existing.Status = domain.CredentialInvalid
		}
	}
	m.tokens[token.ID] = &token
	return nil
}

func (m *resetRepoMock) GetActiveByUser(_ context.Context, userID string) (*domain.PasswordResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, token := range m.tokens {
		if token.UserID == userID && token.Status == domain.CredentialValid {
			copied := *token
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *resetRepoMock) GetByToken(_ context.Context, value string) (*domain.PasswordResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, token := range m.tokens {
		if token.Token == value {
			copied := *token
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *resetRepoMock) Consume(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[id]
	if !ok || token.Status != domain.CredentialValid {
		return repository.ErrNotFound
	}
	token.Status = domain.CredentialInvalid
	return nil
}

func (m *resetRepoMock) Invalidate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[id]
	if !ok {
		return repository.ErrNotFound
	}
	token.Status = domain.CredentialInvalid
	return nil
}

var _ port.ResetTokenRepository = (*resetRepoMock)(nil)

// apiKeyRepoMock serves a fixed set of client records.
type apiKeyRepoMock struct {
	keys []domain.APIKey
}

func (m *apiKeyRepoMock) GetByKey(_ context.Context, key string) (*domain.APIKey, error) {
	for i := range m.keys {
		if m.keys[i].Key == key {
			copied := m.keys[i]
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *apiKeyRepoMock) GetByID(_ context.Context, id string) (*domain.APIKey, error) {
	for i := range m.keys {
		if m.keys[i].ID == id {
			copied := m.keys[i]
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

var _ port.APIKeyRepository = (*apiKeyRepoMock)(nil)

// attemptStoreMock is an in-memory sliding-window store.
type attemptStoreMock struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
}

func newAttemptStoreMock() *attemptStoreMock {
	return &attemptStoreMock{attempts: make(map[string][]time.Time)}
}

func (m *attemptStoreMock) RecordAttempt(_ context.Context, identifier string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[identifier] = append(m.attempts[identifier], at)
	return nil
}

func (m *attemptStoreMock) CountAttempts(_ context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, at := range m.attempts[identifier] {
		if !at.Before(reference.Add(-window)) && !at.After(reference) {
			count++
		}
	}
	return count, nil
}

func (m *attemptStoreMock) TrimWindow(_ context.Context, identifier string, window time.Duration, reference time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.attempts[identifier][:0]
	for _, at := range m.attempts[identifier] {
		if !at.Before(reference.Add(-window)) {
			kept = append(kept, at)
		}
	}
	m.attempts[identifier] = kept
	return nil
}

func (m *attemptStoreMock) OldestAttempt(_ context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inWindow := make([]time.Time, 0, len(m.attempts[identifier]))
	for _, at := range m.attempts[identifier] {
		if !at.Before(reference.Add(-window)) && !at.After(reference) {
			inWindow = append(inWindow, at)
		}
	}
	if len(inWindow) == 0 {
		return time.Time{}, false, nil
	}
	sort.Slice(inWindow, func(i, j int) bool { return inWindow[i].Before(inWindow[j]) })
	return inWindow[0], true, nil
}

var _ port.AttemptStore = (*attemptStoreMock)(nil)

// notifierMock records deliveries instead of sending them.
type notifierMock struct {
	mu       sync.Mutex
	emails   []string
	sms      []string
	resets   []string
	lastCode string
	failAll  bool
}

func (m *notifierMock) SendOTPByEmail(_ context.Context, address, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return fmt.Errorf("smtp unavailable")
	}
	m.emails = append(m.emails, address)
	m.lastCode = code
	return nil
}

func (m *notifierMock) SendOTPByMessage(_ context.Context, phone, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return fmt.Errorf("sms unavailable")
	}
	m.sms = append(m.sms, phone)
	m.lastCode = code
	return nil
}

func (m *notifierMock) SendResetLink(_ context.Context, address, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return fmt.Errorf("smtp unavailable")
	}
	m.resets = append(m.resets, address)
	m.lastCode = token
	return nil
}

var _ port.Notifier = (*notifierMock)(nil)

// eventPublisherMock records published events by name.
type eventPublisherMock struct {
	mu     sync.Mutex
	events []string
}

func (m *eventPublisherMock) record(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, name)
	return nil
}

func (m *eventPublisherMock) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

func (m *eventPublisherMock) PublishUserRegistered(context.Context, domain.UserRegisteredEvent) error {
	return m.record("user.registered")
}

func (m *eventPublisherMock) PublishLoginSucceeded(context.Context, domain.LoginSucceededEvent) error {
	return m.record("login.succeeded")
}

func (m *eventPublisherMock) PublishLoginFailed(context.Context, domain.LoginFailedEvent) error {
	return m.record("login.failed")
}

func (m *eventPublisherMock) PublishLogout(context.Context, domain.LogoutEvent) error {
	return m.record("logout")
}

func (m *eventPublisherMock) PublishAnomalyDetected(context.Context, domain.AnomalyDetectedEvent) error {
	return m.record("anomaly.detected")
}

func (m *eventPublisherMock) PublishPasswordResetRequested(context.Context, domain.PasswordResetRequestedEvent) error {
	return m.record("password.reset_requested")
}

func (m *eventPublisherMock) PublishPasswordChanged(context.Context, domain.PasswordChangedEvent) error {
	return m.record("password.changed")
}

var _ port.EventPublisher = (*eventPublisherMock)(nil)

// directoryMock resolves NIKs from a fixed employee map.
type directoryMock struct {
	records map[string]*port.EmployeeRecord
	err     error
}

func (m *directoryMock) FindByNIK(_ context.Context, nik string) (*port.EmployeeRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	record, ok := m.records[nik]
	if !ok {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

var _ port.DirectoryClient = (*directoryMock)(nil)
