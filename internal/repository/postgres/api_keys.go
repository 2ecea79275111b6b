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

// APIKeyRepository implements port.APIKeyRepository backed by PostgreSQL.
// The auth core only reads this table.
type APIKeyRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAPIKeyRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewAPIKeyRepository(exec pgExecutor) *APIKeyRepository {
	repo := &APIKeyRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

func (r *APIKeyRepository) get(ctx context.Context, cond squirrel.Eq) (*domain.APIKey, error) {
	stmt, args, err := r.builder.
		Select("id", "name", "key", "status", "created_at").
		From("sso.api_keys").
		Where(cond).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select api key sql: %w", err)
	}

	var key domain.APIKey
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&key.ID,
		&key.Name,
		&key.Key,
		&key.Status,
		&key.CreatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan api key: %w", err)
	}

	return &key, nil
}

// GetByKey resolves a client record by its opaque key value.
func (r *APIKeyRepository) GetByKey(ctx context.Context, key string) (*domain.APIKey, error) {
	return r.get(ctx, squirrel.Eq{"key": key})
}

// GetByID resolves a client record by identifier.
func (r *APIKeyRepository) GetByID(ctx context.Context, id string) (*domain.APIKey, error) {
	return r.get(ctx, squirrel.Eq{"id": id})
}

var _ port.APIKeyRepository = (*APIKeyRepository)(nil)
