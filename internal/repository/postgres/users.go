package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Alfahan/sso-sub000/internal/core/domain"
	"github.com/Alfahan/sso-sub000/internal/core/port"
	"github.com/Alfahan/sso-sub000/internal/repository"
)

var userColumns = []string{
	"id",
	"username",
	"email_ciphertext",
	"phone_ciphertext",
	"nik_ciphertext",
	"password_hash",
	"status",
	"failed_login_attempts",
	"attempts_updated_at",
	"created_at",
	"updated_at",
	"last_login",
}

// UserRepository implements port.UserRepository using PostgreSQL. Contact
// columns are stored as ciphertext with a deterministic blind index beside
// each; lookups match the index, never the ciphertext.
type UserRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	cipher  port.FieldCipher
}

// NewUserRepository wires a PostgreSQL-backed user repository.
func NewUserRepository(exec pgExecutor, cipher port.FieldCipher) *UserRepository {
	repo := &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		cipher:  cipher,
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	if tx == nil {
		return r
	}
	return &UserRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
		cipher:  r.cipher,
	}
}

func (r *UserRepository) sealContact(value string) (ciphertext, bidx any, err error) {
	if value == "" {
		return nil, nil, nil
	}
	sealed, err := r.cipher.Encrypt(value)
	if err != nil {
		return nil, nil, fmt.Errorf("encrypt contact field: %w", err)
	}
	return sealed, r.cipher.BlindIndex(value), nil
}

// Create inserts a new user row.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	emailValue, emailIdx, err := r.sealContact(user.Email)
	if err != nil {
		return err
	}

	var phone, nik string
	if user.Phone != nil {
		phone = *user.Phone
	}
	if user.NIK != nil {
		nik = *user.NIK
	}

	phoneValue, phoneIdx, err := r.sealContact(phone)
	if err != nil {
		return err
	}
	nikValue, nikIdx, err := r.sealContact(nik)
	if err != nil {
		return err
	}

	query := r.builder.Insert("sso.users").
		Columns(
			"id",
			"username",
			"email_ciphertext",
			"email_bidx",
			"phone_ciphertext",
			"phone_bidx",
			"nik_ciphertext",
			"nik_bidx",
			"password_hash",
			"status",
			"failed_login_attempts",
			"attempts_updated_at",
			"created_at",
			"updated_at",
			"last_login",
		).
		Values(
			user.ID,
			user.Username,
			emailValue,
			emailIdx,
			phoneValue,
			phoneIdx,
			nikValue,
			nikIdx,
			user.PasswordHash,
			user.Status,
			user.FailedLoginAttempts,
			user.AttemptsUpdatedAt,
			user.CreatedAt,
			user.UpdatedAt,
			user.LastLogin,
		)

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

func (r *UserRepository) scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user              domain.User
		email             sql.NullString
		phone             sql.NullString
		nik               sql.NullString
		attemptsUpdatedAt *time.Time
		lastLogin         *time.Time
	)

	if err := row.Scan(
		&user.ID,
		&user.Username,
		&email,
		&phone,
		&nik,
		&user.PasswordHash,
		&user.Status,
		&user.FailedLoginAttempts,
		&attemptsUpdatedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
		&lastLogin,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	user.AttemptsUpdatedAt = attemptsUpdatedAt
	user.LastLogin = lastLogin

	if email.Valid {
		plain, err := r.cipher.Decrypt(email.String)
		if err != nil {
			return nil, fmt.Errorf("decrypt email column: %w", err)
		}
		user.Email = plain
	}
	if phone.Valid {
		plain, err := r.cipher.Decrypt(phone.String)
		if err != nil {
			return nil, fmt.Errorf("decrypt phone column: %w", err)
		}
		user.Phone = &plain
	}
	if nik.Valid {
		plain, err := r.cipher.Decrypt(nik.String)
		if err != nil {
			return nil, fmt.Errorf("decrypt nik column: %w", err)
		}
		user.NIK = &plain
	}

	return &user, nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From("sso.users").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	return r.scanUser(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByIdentifier retrieves a user by one contact identifier kind. Username
// matches the plain column; the rest resolve through their blind index.
func (r *UserRepository) GetByIdentifier(ctx context.Context, kind domain.IdentifierKind, value string) (*domain.User, error) {
	var cond squirrel.Eq
	switch kind {
	case domain.IdentifierUsername:
		cond = squirrel.Eq{"username": value}
	case domain.IdentifierEmail:
		cond = squirrel.Eq{"email_bidx": r.cipher.BlindIndex(value)}
	case domain.IdentifierPhone:
		cond = squirrel.Eq{"phone_bidx": r.cipher.BlindIndex(value)}
	case domain.IdentifierNIK:
		cond = squirrel.Eq{"nik_bidx": r.cipher.BlindIndex(value)}
	default:
		return nil, fmt.Errorf("unknown identifier kind %q", kind)
	}

	stmt, args, err := r.builder.
		Select(userColumns...).
		From("sso.users").
		Where(cond).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user by identifier sql: %w", err)
	}

	return r.scanUser(r.exec.QueryRow(ctx, stmt, args...))
}

// UpdatePassword updates a user's password hash and change timestamp.
func (r *UserRepository) UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error {
	stmt, args, err := r.builder.Update("sso.users").
		Set("password_hash", passwordHash).
		Set("updated_at", changedAt).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// UpdateLastLogin stamps the most recent successful authentication.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	stmt, args, err := r.builder.Update("sso.users").
		Set("last_login", at).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update last login sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// IncrementFailedAttempts bumps the counter in a single statement and returns
// the new value, so concurrent failures serialize on the row without losing
// increments.
func (r *UserRepository) IncrementFailedAttempts(ctx context.Context, id string, at time.Time) (int, error) {
	stmt, args, err := r.builder.Update("sso.users").
		Set("failed_login_attempts", squirrel.Expr("failed_login_attempts + 1")).
		Set("attempts_updated_at", at).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING failed_login_attempts").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build increment attempts sql: %w", err)
	}

	var attempts int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&attempts); err != nil {
		if err == pgx.ErrNoRows {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("increment failed attempts: %w", err)
	}

	return attempts, nil
}

// ResetFailedAttempts zeroes the counter.
func (r *UserRepository) ResetFailedAttempts(ctx context.Context, id string, at time.Time) error {
	stmt, args, err := r.builder.Update("sso.users").
		Set("failed_login_attempts", 0).
		Set("attempts_updated_at", at).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build reset attempts sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("reset failed attempts: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ port.UserRepository = (*UserRepository)(nil)
