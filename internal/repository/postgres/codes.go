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

var codeColumns = []string{
	"id",
	"user_id",
	"api_key_id",
	"code",
	"status",
	"ip",
	"country",
	"os",
	"browser",
	"device",
	"expires_at",
	"created_at",
}

// CodeRepository implements port.CodeRepository backed by PostgreSQL.
type CodeRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewCodeRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewCodeRepository(exec pgExecutor) *CodeRepository {
	repo := &CodeRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *CodeRepository) WithTx(tx pgx.Tx) *CodeRepository {
	if tx == nil {
		return r
	}
	return &CodeRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Supersede invalidates any VALID code for the (user, api key) pair and
// inserts the new one in the same transaction.
func (r *CodeRepository) Supersede(ctx context.Context, code domain.AuthCode) error {
	if r.pool == nil {
		return r.supersede(ctx, r.exec, code)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin supersede code tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.supersede(ctx, tx, code); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit supersede code tx: %w", err)
	}

	return nil
}

func (r *CodeRepository) supersede(ctx context.Context, exec pgExecutor, code domain.AuthCode) error {
	invalidate, invalidateArgs, err := r.builder.Update("sso.auth_codes").
		Set("status", domain.CredentialInvalid).
		Where(squirrel.Eq{
			"user_id":    code.UserID,
			"api_key_id": code.APIKeyID,
			"status":     domain.CredentialValid,
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build invalidate codes sql: %w", err)
	}

	if _, err := exec.Exec(ctx, invalidate, invalidateArgs...); err != nil {
		return fmt.Errorf("invalidate prior codes: %w", err)
	}

	insert, insertArgs, err := r.builder.Insert("sso.auth_codes").
		Columns(codeColumns...).
		Values(
			code.ID,
			code.UserID,
			code.APIKeyID,
			code.Code,
			code.Status,
			code.Fingerprint.IP,
			code.Fingerprint.Country,
			code.Fingerprint.OS,
			code.Fingerprint.Browser,
			code.Fingerprint.Device,
			code.ExpiresAt,
			code.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert code sql: %w", err)
	}

	if _, err := exec.Exec(ctx, insert, insertArgs...); err != nil {
		return fmt.Errorf("insert code: %w", err)
	}

	return nil
}

func scanCode(row pgx.Row) (*domain.AuthCode, error) {
	var code domain.AuthCode
	if err := row.Scan(
		&code.ID,
		&code.UserID,
		&code.APIKeyID,
		&code.Code,
		&code.Status,
		&code.Fingerprint.IP,
		&code.Fingerprint.Country,
		&code.Fingerprint.OS,
		&code.Fingerprint.Browser,
		&code.Fingerprint.Device,
		&code.ExpiresAt,
		&code.CreatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan code: %w", err)
	}
	return &code, nil
}

// GetActive returns the VALID code for the (user, api key) pair, if any.
func (r *CodeRepository) GetActive(ctx context.Context, userID, apiKeyID string) (*domain.AuthCode, error) {
	stmt, args, err := r.builder.
		Select(codeColumns...).
		From("sso.auth_codes").
		Where(squirrel.Eq{
			"user_id":    userID,
			"api_key_id": apiKeyID,
			"status":     domain.CredentialValid,
		}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select active code sql: %w", err)
	}

	return scanCode(r.exec.QueryRow(ctx, stmt, args...))
}

// Consume atomically flips the matching VALID row to INVALID and returns it.
// A second concurrent exchange of the same code loses the UPDATE race and
// observes ErrNotFound.
func (r *CodeRepository) Consume(ctx context.Context, code string) (*domain.AuthCode, error) {
	stmt, args, err := r.builder.Update("sso.auth_codes").
		Set("status", domain.CredentialInvalid).
		Where(squirrel.Eq{"code": code, "status": domain.CredentialValid}).
		Suffix("RETURNING " + joinColumns(codeColumns)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build consume code sql: %w", err)
	}

	consumed, err := scanCode(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		return nil, err
	}

	// The returned row reflects the post-update state; report the status the
	// code held when it was matched.
	consumed.Status = domain.CredentialValid
	return consumed, nil
}

// Invalidate unconditionally marks the code INVALID.
func (r *CodeRepository) Invalidate(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update("sso.auth_codes").
		Set("status", domain.CredentialInvalid).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build invalidate code sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("invalidate code: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ port.CodeRepository = (*CodeRepository)(nil)
