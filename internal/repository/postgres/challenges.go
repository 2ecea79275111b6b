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

// ChallengeRepository implements port.ChallengeRepository backed by PostgreSQL.
// The code column stores field-cipher output; callers encrypt before handing
// the challenge over.
type ChallengeRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewChallengeRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewChallengeRepository(exec pgExecutor) *ChallengeRepository {
	repo := &ChallengeRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *ChallengeRepository) WithTx(tx pgx.Tx) *ChallengeRepository {
	if tx == nil {
		return r
	}
	return &ChallengeRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Supersede invalidates any VALID challenge for the user and inserts the new
// one in the same transaction, so at most one live challenge exists per user.
func (r *ChallengeRepository) Supersede(ctx context.Context, challenge domain.MfaChallenge) error {
	if r.pool == nil {
		return r.supersede(ctx, r.exec, challenge)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin supersede challenge tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.supersede(ctx, tx, challenge); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit supersede challenge tx: %w", err)
	}

	return nil
}

func (r *ChallengeRepository) supersede(ctx context.Context, exec pgExecutor, challenge domain.MfaChallenge) error {
	invalidate, invalidateArgs, err := r.builder.Update("sso.mfa_challenges").
		Set("status", domain.CredentialInvalid).
		Where(squirrel.Eq{"user_id": challenge.UserID, "status": domain.CredentialValid}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build invalidate challenges sql: %w", err)
	}

	if _, err := exec.Exec(ctx, invalidate, invalidateArgs...); err != nil {
		return fmt.Errorf("invalidate prior challenges: %w", err)
	}

	insert, insertArgs, err := r.builder.Insert("sso.mfa_challenges").
		Columns("id", "user_id", "api_key_id", "code", "status", "expires_at", "created_at").
		Values(
			challenge.ID,
			challenge.UserID,
			challenge.APIKeyID,
			challenge.Code,
			challenge.Status,
			challenge.ExpiresAt,
			challenge.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert challenge sql: %w", err)
	}

	if _, err := exec.Exec(ctx, insert, insertArgs...); err != nil {
		return fmt.Errorf("insert challenge: %w", err)
	}

	return nil
}

// GetActiveByUser returns the VALID challenge for the user, if one exists.
func (r *ChallengeRepository) GetActiveByUser(ctx context.Context, userID string) (*domain.MfaChallenge, error) {
	stmt, args, err := r.builder.
		Select("id", "user_id", "api_key_id", "code", "status", "expires_at", "created_at").
		From("sso.mfa_challenges").
		Where(squirrel.Eq{"user_id": userID, "status": domain.CredentialValid}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select active challenge sql: %w", err)
	}

	var challenge domain.MfaChallenge
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&challenge.ID,
		&challenge.UserID,
		&challenge.APIKeyID,
		&challenge.Code,
		&challenge.Status,
		&challenge.ExpiresAt,
		&challenge.CreatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan challenge: %w", err)
	}

	return &challenge, nil
}

// Consume flips the challenge to INVALID only while it is still VALID.
func (r *ChallengeRepository) Consume(ctx context.Context, id string) error {
	return r.setInvalid(ctx, id, true)
}

// Invalidate unconditionally marks the challenge INVALID.
func (r *ChallengeRepository) Invalidate(ctx context.Context, id string) error {
	return r.setInvalid(ctx, id, false)
}

func (r *ChallengeRepository) setInvalid(ctx context.Context, id string, onlyValid bool) error {
	query := r.builder.Update("sso.mfa_challenges").
		Set("status", domain.CredentialInvalid).
		Where(squirrel.Eq{"id": id})
	if onlyValid {
		query = query.Where(squirrel.Eq{"status": domain.CredentialValid})
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build invalidate challenge sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("invalidate challenge: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ port.ChallengeRepository = (*ChallengeRepository)(nil)
