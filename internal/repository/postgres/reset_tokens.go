package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Alfahan/sso-sub000/internal/core/domain"
	"github.com/Alfahan/sso-sub000/internal/core/port"
	"github.com/Alfahan/sso-sub000/internal/repository"
)

var resetTokenColumns = []string{
	"id",
	"user_id",
	"token",
	"status",
	"ip",
	"country",
	"os",
	"browser",
	"device",
	"expires_at",
	"created_at",
}

// ResetTokenRepository implements port.ResetTokenRepository backed by PostgreSQL.
type ResetTokenRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewResetTokenRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewResetTokenRepository(exec pgExecutor) *ResetTokenRepository {
	repo := &ResetTokenRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *ResetTokenRepository) WithTx(tx pgx.Tx) *ResetTokenRepository {
	if tx == nil {
		return r
	}
	return &ResetTokenRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Supersede invalidates any VALID token for the user and inserts the new one
// in the same transaction.
func (r *ResetTokenRepository) Supersede(ctx context.Context, token domain.PasswordResetToken) error {
	if r.pool == nil {
		return r.supersede(ctx, r.exec, token)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin supersede reset token tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.supersede(ctx, tx, token); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit supersede reset token tx: %w", err)
	}

	return nil
}

func (r *ResetTokenRepository) supersede(ctx context.Context, exec pgExecutor, token domain.PasswordResetToken) error {
	invalidate, invalidateArgs, err := r.builder.Update("sso.password_reset_tokens").
		Set("status", domain.CredentialInvalid).
		Where(squirrel.Eq{"user_id": token.UserID, "status": domain.CredentialValid}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build invalidate reset tokens sql: %w", err)
	}

	if _, err := exec.Exec(ctx, invalidate, invalidateArgs...); err != nil {
		return fmt.Errorf("invalidate prior reset tokens: %w", err)
	}

	insert, insertArgs, err := r.builder.Insert("sso.password_reset_tokens").
		Columns(resetTokenColumns...).
		Values(
			token.ID,
			token.UserID,
			token.Token,
			token.Status,
			token.Fingerprint.IP,
			token.Fingerprint.Country,
			token.Fingerprint.OS,
			token.Fingerprint.Browser,
			token.Fingerprint.Device,
			token.ExpiresAt,
			token.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert reset token sql: %w", err)
	}

	if _, err := exec.Exec(ctx, insert, insertArgs...); err != nil {
		return fmt.Errorf("insert reset token: %w", err)
	}

	return nil
}

func scanResetToken(row pgx.Row) (*domain.PasswordResetToken, error) {
	var token domain.PasswordResetToken
	if err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.Token,
		&token.Status,
		&token.Fingerprint.IP,
		&token.Fingerprint.Country,
		&token.Fingerprint.OS,
		&token.Fingerprint.Browser,
		&token.Fingerprint.Device,
		&token.ExpiresAt,
		&token.CreatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan reset token: %w", err)
	}
	return &token, nil
}

// GetActiveByUser returns the VALID token for the user, if one exists.
func (r *ResetTokenRepository) GetActiveByUser(ctx context.Context, userID string) (*domain.PasswordResetToken, error) {
	stmt, args, err := r.builder.
		Select(resetTokenColumns...).
		From("sso.password_reset_tokens").
		Where(squirrel.Eq{"user_id": userID, "status": domain.CredentialValid}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select active reset token sql: %w", err)
	}

	return scanResetToken(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByToken resolves a reset row by its signed token string.
func (r *ResetTokenRepository) GetByToken(ctx context.Context, token string) (*domain.PasswordResetToken, error) {
	stmt, args, err := r.builder.
		Select(resetTokenColumns...).
		From("sso.password_reset_tokens").
		Where(squirrel.Eq{"token": token}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select reset token sql: %w", err)
	}

	return scanResetToken(r.exec.QueryRow(ctx, stmt, args...))
}

// Consume flips the token to INVALID only while it is still VALID.
func (r *ResetTokenRepository) Consume(ctx context.Context, id string) error {
	return r.setInvalid(ctx, id, true)
}

// Invalidate unconditionally marks the token INVALID.
func (r *ResetTokenRepository) Invalidate(ctx context.Context, id string) error {
	return r.setInvalid(ctx, id, false)
}

func (r *ResetTokenRepository) setInvalid(ctx context.Context, id string, onlyValid bool) error {
	query := r.builder.Update("sso.password_reset_tokens").
		Set("status", domain.CredentialInvalid).
		Where(squirrel.Eq{"id": id})
	if onlyValid {
		query = query.Where(squirrel.Eq{"status": domain.CredentialValid})
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build invalidate reset token sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("invalidate reset token: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ port.ResetTokenRepository = (*ResetTokenRepository)(nil)
