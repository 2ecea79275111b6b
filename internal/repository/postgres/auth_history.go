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

// AuthHistoryRepository implements port.AuthHistoryRepository backed by PostgreSQL.
type AuthHistoryRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAuthHistoryRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewAuthHistoryRepository(exec pgExecutor) *AuthHistoryRepository {
	repo := &AuthHistoryRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *AuthHistoryRepository) WithTx(tx pgx.Tx) *AuthHistoryRepository {
	if tx == nil {
		return r
	}
	return &AuthHistoryRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Append inserts a history row. The table is append-only.
func (r *AuthHistoryRepository) Append(ctx context.Context, entry domain.AuthHistory) error {
	stmt, args, err := r.builder.Insert("sso.auth_history").
		Columns("id", "user_id", "ip", "country", "os", "browser", "device", "action", "created_at").
		Values(
			entry.ID,
			entry.UserID,
			entry.Fingerprint.IP,
			entry.Fingerprint.Country,
			entry.Fingerprint.OS,
			entry.Fingerprint.Browser,
			entry.Fingerprint.Device,
			entry.Action,
			entry.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert auth history sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert auth history: %w", err)
	}

	return nil
}

// Latest returns the most recent history row for the user.
func (r *AuthHistoryRepository) Latest(ctx context.Context, userID string) (*domain.AuthHistory, error) {
	stmt, args, err := r.builder.
		Select("id", "user_id", "ip", "country", "os", "browser", "device", "action", "created_at").
		From("sso.auth_history").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select latest auth history sql: %w", err)
	}

	var entry domain.AuthHistory
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&entry.ID,
		&entry.UserID,
		&entry.Fingerprint.IP,
		&entry.Fingerprint.Country,
		&entry.Fingerprint.OS,
		&entry.Fingerprint.Browser,
		&entry.Fingerprint.Device,
		&entry.Action,
		&entry.CreatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan auth history: %w", err)
	}

	return &entry, nil
}

var _ port.AuthHistoryRepository = (*AuthHistoryRepository)(nil)
