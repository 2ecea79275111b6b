package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Alfahan/sso-sub000/internal/core/domain"
	"github.com/Alfahan/sso-sub000/internal/core/port"
	"github.com/Alfahan/sso-sub000/internal/repository"
)

var sessionColumns = []string{
	"id",
	"user_id",
	"api_key_id",
	"access_token",
	"refresh_token",
	"status",
	"ip",
	"country",
	"os",
	"browser",
	"device",
	"created_at",
	"updated_at",
}

// SessionRepository implements port.SessionRepository backed by PostgreSQL.
type SessionRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSessionRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewSessionRepository(exec pgExecutor) *SessionRepository {
	repo := &SessionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance that executes statements within the supplied transaction.
func (r *SessionRepository) WithTx(tx pgx.Tx) *SessionRepository {
	if tx == nil {
		return r
	}
	return &SessionRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create persists a new session row.
func (r *SessionRepository) Create(ctx context.Context, session domain.Session) error {
	stmt, args, err := r.builder.Insert("sso.sessions").
		Columns(sessionColumns...).
		Values(
			session.ID,
			session.UserID,
			session.APIKeyID,
			session.AccessToken,
			session.RefreshToken,
			session.Status,
			session.Fingerprint.IP,
			session.Fingerprint.Country,
			session.Fingerprint.OS,
			session.Fingerprint.Browser,
			session.Fingerprint.Device,
			session.CreatedAt,
			session.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var session domain.Session
	if err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.APIKeyID,
		&session.AccessToken,
		&session.RefreshToken,
		&session.Status,
		&session.Fingerprint.IP,
		&session.Fingerprint.Country,
		&session.Fingerprint.OS,
		&session.Fingerprint.Browser,
		&session.Fingerprint.Device,
		&session.CreatedAt,
		&session.UpdatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &session, nil
}

// GetByID retrieves a session by identifier.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	stmt, args, err := r.builder.
		Select(sessionColumns...).
		From("sso.sessions").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session sql: %w", err)
	}

	return scanSession(r.exec.QueryRow(ctx, stmt, args...))
}

// GetActive returns the LOGGED_IN session matching the exact
// (user, api key, fingerprint) tuple.
func (r *SessionRepository) GetActive(ctx context.Context, userID, apiKeyID string, fp domain.Fingerprint) (*domain.Session, error) {
	stmt, args, err := r.builder.
		Select(sessionColumns...).
		From("sso.sessions").
		Where(squirrel.Eq{
			"user_id":    userID,
			"api_key_id": apiKeyID,
			"status":     domain.SessionLoggedIn,
			"ip":         fp.IP,
			"country":    fp.Country,
			"os":         fp.OS,
			"browser":    fp.Browser,
			"device":     fp.Device,
		}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select active session sql: %w", err)
	}

	return scanSession(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByAccessToken resolves a session by its stored access token.
func (r *SessionRepository) GetByAccessToken(ctx context.Context, token string) (*domain.Session, error) {
	return r.getByTokenColumn(ctx, "access_token", token)
}

// GetByRefreshToken resolves a session by its stored refresh token.
func (r *SessionRepository) GetByRefreshToken(ctx context.Context, token string) (*domain.Session, error) {
	return r.getByTokenColumn(ctx, "refresh_token", token)
}

func (r *SessionRepository) getByTokenColumn(ctx context.Context, column, token string) (*domain.Session, error) {
	stmt, args, err := r.builder.
		Select(sessionColumns...).
		From("sso.sessions").
		Where(squirrel.Eq{column: token}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session by token sql: %w", err)
	}

	return scanSession(r.exec.QueryRow(ctx, stmt, args...))
}

// UpdateTokens replaces the stored token pair, keeping the session id stable.
func (r *SessionRepository) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, at time.Time) error {
	stmt, args, err := r.builder.Update("sso.sessions").
		Set("access_token", accessToken).
		Set("refresh_token", refreshToken).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update session tokens sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update session tokens: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// SetStatus transitions the session row.
func (r *SessionRepository) SetStatus(ctx context.Context, id string, status domain.SessionStatus) error {
	stmt, args, err := r.builder.Update("sso.sessions").
		Set("status", status).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update session status sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// RevokeAllForUser marks every LOGGED_IN session of the user LOGGED_OUT and
// returns how many rows transitioned.
func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	stmt, args, err := r.builder.Update("sso.sessions").
		Set("status", domain.SessionLoggedOut).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"user_id": userID, "status": domain.SessionLoggedIn}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build revoke sessions sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}

	return int(ct.RowsAffected()), nil
}

var _ port.SessionRepository = (*SessionRepository)(nil)
