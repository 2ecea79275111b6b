package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Alfahan/sso-sub000/internal/core/domain"
	"github.com/Alfahan/sso-sub000/internal/infra/config"
)

func newSessionFixture(t *testing.T) (*SessionService, *sessionRepoMock, *time.Time) {
	t.Helper()

	current := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	sessions := newSessionRepoMock()

	svc := NewSessionService(
		config.JWTSettings{AccessTokenTTL: 15 * time.Minute, RefreshTokenTTL: 168 * time.Hour},
		testIssuer,
		sessions,
		newTestJWTManager(t),
		newTestCipher(t),
		testKid,
		nil,
	).WithClock(func() time.Time { return current })

	return svc, sessions, &current
}

func testSessionUser() *domain.User {
	return &domain.User{ID: "user-1", Username: "ayu.lestari", Status: domain.UserStatusActive}
}

func TestSessionIssueAndVerify(t *testing.T) {
	svc, _, _ := newSessionFixture(t)
	ctx := context.Background()

	session, reused, err := svc.IssueOrReuse(ctx, testSessionUser(), "key-1", testFingerprint())
	if err != nil {
		t.Fatalf("IssueOrReuse returned error: %v", err)
	}
	if reused {
		t.Fatal("first issuance must not report reuse")
	}
	if session.AccessToken == "" || session.RefreshToken == "" {
		t.Fatal("expected a full token pair")
	}

	verified, err := svc.Verify(ctx, session.AccessToken)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if verified.ID != session.ID {
		t.Fatalf("expected session %s, got %s", session.ID, verified.ID)
	}
}

func TestSessionIssueOrReuseReturnsLivePair(t *testing.T) {
	svc, _, _ := newSessionFixture(t)
	ctx := context.Background()
	user := testSessionUser()

	first, _, err := svc.IssueOrReuse(ctx, user, "key-1", testFingerprint())
	if err != nil {
		t.Fatalf("first IssueOrReuse returned error: %v", err)
	}

	second, reused, err := svc.IssueOrReuse(ctx, user, "key-1", testFingerprint())
	if err != nil {
		t.Fatalf("second IssueOrReuse returned error: %v", err)
	}
	if !reused {
		t.Fatal("expected reuse of the live session")
	}
	if second.ID != first.ID || second.AccessToken != first.AccessToken {
		t.Fatal("expected the existing pair returned unchanged")
	}
}

func TestSessionIssueOrReuseMintsPerFingerprint(t *testing.T) {
	svc, _, _ := newSessionFixture(t)
	ctx := context.Background()
	user := testSessionUser()

	first, _, err := svc.IssueOrReuse(ctx, user, "key-1", testFingerprint())
	if err != nil {
		t.Fatalf("first IssueOrReuse returned error: %v", err)
	}

	other := testFingerprint()
	other.Device = "mobile"
	other.OS = "iOS"

	second, reused, err := svc.IssueOrReuse(ctx, user, "key-1", other)
	if err != nil {
		t.Fatalf("second IssueOrReuse returned error: %v", err)
	}
	if reused || second.ID == first.ID {
		t.Fatal("expected a distinct session for a different fingerprint")
	}
}

func TestSessionIssueOrReuseRotatesExpiredAccessToken(t *testing.T) {
	svc, _, current := newSessionFixture(t)
	ctx := context.Background()
	user := testSessionUser()

	first, _, err := svc.IssueOrReuse(ctx, user, "key-1", testFingerprint())
	if err != nil {
		t.Fatalf("first IssueOrReuse returned error: %v", err)
	}

	*current = current.Add(20 * time.Minute)

	second, reused, err := svc.IssueOrReuse(ctx, user, "key-1", testFingerprint())
	if err != nil {
		t.Fatalf("second IssueOrReuse returned error: %v", err)
	}
	if reused {
		t.Fatal("an expired pair must not be reported as reused")
	}
	if second.ID != first.ID {
		t.Fatal("session id must stay stable across in-place rotation")
	}
	if second.AccessToken == first.AccessToken || second.RefreshToken == first.RefreshToken {
		t.Fatal("expected both tokens rotated")
	}
}

func TestSessionVerifyRevokedBeatsUnexpired(t *testing.T) {
	svc, _, _ := newSessionFixture(t)
	ctx := context.Background()

	session, _, err := svc.IssueOrReuse(ctx, testSessionUser(), "key-1", testFingerprint())
	if err != nil {
		t.Fatalf("IssueOrReuse returned error: %v", err)
	}

	if err := svc.Revoke(ctx, session.ID); err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}

	if _, err := svc.Verify(ctx, session.AccessToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid for revoked session, got %v", err)
	}
}

func TestSessionVerifyExpiredToken(t *testing.T) {
	svc, _, current := newSessionFixture(t)
	ctx := context.Background()

	session, _, err := svc.IssueOrReuse(ctx, testSessionUser(), "key-1", testFingerprint())
	if err != nil {
		t.Fatalf("IssueOrReuse returned error: %v", err)
	}

	*current = current.Add(time.Hour)

	verified, err := svc.Verify(ctx, session.AccessToken)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if verified == nil || verified.ID != session.ID {
		t.Fatal("expected the session row returned alongside the expiry error")
	}
}

func TestSessionVerifyGarbageToken(t *testing.T) {
	svc, _, _ := newSessionFixture(t)

	if _, err := svc.Verify(context.Background(), "not.a.jwt"); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}
}

func TestSessionRefreshRotatesPair(t *testing.T) {
	svc, _, current := newSessionFixture(t)
	ctx := context.Background()

	session, _, err := svc.IssueOrReuse(ctx, testSessionUser(), "key-1", testFingerprint())
	if err != nil {
		t.Fatalf("IssueOrReuse returned error: %v", err)
	}

	*current = current.Add(time.Minute)

	rotated, err := svc.Refresh(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if rotated.ID != session.ID {
		t.Fatal("session id must stay stable across refresh")
	}
	if rotated.AccessToken == session.AccessToken || rotated.RefreshToken == session.RefreshToken {
		t.Fatal("expected both tokens rotated")
	}

	if _, err := svc.Refresh(ctx, session.RefreshToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected the old refresh token rejected, got %v", err)
	}
}

func TestSessionRefreshRejectsExpiredRefreshToken(t *testing.T) {
	svc, _, current := newSessionFixture(t)
	ctx := context.Background()

	session, _, err := svc.IssueOrReuse(ctx, testSessionUser(), "key-1", testFingerprint())
	if err != nil {
		t.Fatalf("IssueOrReuse returned error: %v", err)
	}

	// The fixture configures a 168h refresh TTL.
	*current = current.Add(365 * 24 * time.Hour)

	if _, err := svc.Refresh(ctx, session.RefreshToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired for a stale refresh token, got %v", err)
	}
}

func TestSessionRefreshRotationRestartsWindow(t *testing.T) {
	svc, _, current := newSessionFixture(t)
	ctx := context.Background()

	session, _, err := svc.IssueOrReuse(ctx, testSessionUser(), "key-1", testFingerprint())
	if err != nil {
		t.Fatalf("IssueOrReuse returned error: %v", err)
	}

	*current = current.Add(100 * time.Hour)
	rotated, err := svc.Refresh(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}

	// 100h past the rotation is inside the 168h window even though the
	// session itself is older than that by now.
	*current = current.Add(100 * time.Hour)
	if _, err := svc.Refresh(ctx, rotated.RefreshToken); err != nil {
		t.Fatalf("Refresh inside the rotated window returned error: %v", err)
	}
}

func TestSessionRefreshRevoked(t *testing.T) {
	svc, _, _ := newSessionFixture(t)
	ctx := context.Background()

	session, _, err := svc.IssueOrReuse(ctx, testSessionUser(), "key-1", testFingerprint())
	if err != nil {
		t.Fatalf("IssueOrReuse returned error: %v", err)
	}

	if err := svc.Revoke(ctx, session.ID); err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}

	if _, err := svc.Refresh(ctx, session.RefreshToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid for revoked session, got %v", err)
	}
}

func TestSessionRevokeAllForUser(t *testing.T) {
	svc, _, _ := newSessionFixture(t)
	ctx := context.Background()
	user := testSessionUser()

	if _, _, err := svc.IssueOrReuse(ctx, user, "key-1", testFingerprint()); err != nil {
		t.Fatalf("IssueOrReuse returned error: %v", err)
	}
	other := testFingerprint()
	other.Device = "mobile"
	if _, _, err := svc.IssueOrReuse(ctx, user, "key-1", other); err != nil {
		t.Fatalf("IssueOrReuse returned error: %v", err)
	}

	revoked, err := svc.RevokeAllForUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("RevokeAllForUser returned error: %v", err)
	}
	if revoked != 2 {
		t.Fatalf("expected 2 sessions revoked, got %d", revoked)
	}
}
