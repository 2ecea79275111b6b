package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/Alfahan/sso-sub000/internal/core/domain"
	"github.com/Alfahan/sso-sub000/internal/repository"
)

func TestSessionRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	now := time.Now().UTC()
	session := domain.Session{
		ID:           "session-1",
		UserID:       "user-1",
		APIKeyID:     "key-1",
		AccessToken:  "access.jwt",
		RefreshToken: "refresh-token",
		Status:       domain.SessionLoggedIn,
		Fingerprint: domain.Fingerprint{
			IP: "203.0.113.5", Country: "ID", OS: "Linux", Browser: "Firefox", Device: "desktop",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	mock.ExpectExec(`INSERT INTO sso\.sessions`).
		WithArgs(
			session.ID, session.UserID, session.APIKeyID,
			session.AccessToken, session.RefreshToken, session.Status,
			session.Fingerprint.IP, session.Fingerprint.Country, session.Fingerprint.OS,
			session.Fingerprint.Browser, session.Fingerprint.Device,
			session.CreatedAt, session.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), session); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_GetActiveMatchesFingerprint(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	now := time.Now().UTC()
	fp := domain.Fingerprint{IP: "203.0.113.5", Country: "ID", OS: "Linux", Browser: "Firefox", Device: "desktop"}

	rows := pgxmock.NewRows(sessionColumns).AddRow(
		"session-1", "user-1", "key-1", "access.jwt", "refresh-token", domain.SessionLoggedIn,
		fp.IP, fp.Country, fp.OS, fp.Browser, fp.Device, now, now,
	)

	// Eq map predicates render in sorted key order.
	mock.ExpectQuery(`SELECT .*FROM sso\.sessions`).
		WithArgs("key-1", fp.Browser, fp.Country, fp.Device, fp.IP, fp.OS, domain.SessionLoggedIn, "user-1").
		WillReturnRows(rows)

	session, err := repo.GetActive(context.Background(), "user-1", "key-1", fp)
	if err != nil {
		t.Fatalf("GetActive returned error: %v", err)
	}
	if session.ID != "session-1" {
		t.Fatalf("unexpected session: %+v", session)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_GetByRefreshTokenNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	mock.ExpectQuery(`SELECT .*FROM sso\.sessions`).
		WithArgs("unknown").
		WillReturnRows(pgxmock.NewRows(sessionColumns))

	if _, err := repo.GetByRefreshToken(context.Background(), "unknown"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionRepository_RevokeAllForUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	mock.ExpectExec(`UPDATE sso\.sessions`).
		WithArgs(domain.SessionLoggedOut, pgxmock.AnyArg(), domain.SessionLoggedIn, "user-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	revoked, err := repo.RevokeAllForUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("RevokeAllForUser returned error: %v", err)
	}
	if revoked != 2 {
		t.Fatalf("expected 2 revoked sessions, got %d", revoked)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
