package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"account-portal/internal/domain"
)

// ErrDuplicate indica una violación de unicidad (email o identidad federada ya registrados).
var ErrDuplicate = errors.New("duplicate record")

const pgUniqueViolation = "23505"

// AccountRepository define el contrato de persistencia para cuentas del proveedor de identidad.
type AccountRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByAuth(ctx context.Context, provider, subject string) (domain.User, error)
	LinkOAuth(ctx context.Context, id, provider, subject string) error
	UpdateDisplayName(ctx context.Context, id, displayName string) error
}

// PgAccountRepository implementa AccountRepository usando pgxpool.
type PgAccountRepository struct {
	pool *pgxpool.Pool
}

func NewPgAccountRepository(pool *pgxpool.Pool) *PgAccountRepository {
	return &PgAccountRepository{pool: pool}
}

const accountColumns = `id, email, display_name, password_hash, auth_provider, auth_subject, created_at`

func (r *PgAccountRepository) Create(ctx context.Context, user domain.User) error {
	const query = `
		INSERT INTO accounts (id, email, display_name, password_hash, auth_provider, auth_subject, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.DisplayName,
		user.PasswordHash,
		user.AuthProvider,
		user.AuthSubject,
		user.CreatedAt,
	)
	return translateError(err)
}

func (r *PgAccountRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, id))
}

func (r *PgAccountRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE lower(email) = lower($1)`
	return scanAccount(r.pool.QueryRow(ctx, query, email))
}

func (r *PgAccountRepository) GetByAuth(ctx context.Context, provider, subject string) (domain.User, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE auth_provider = $1 AND auth_subject = $2`
	return scanAccount(r.pool.QueryRow(ctx, query, provider, subject))
}

func (r *PgAccountRepository) LinkOAuth(ctx context.Context, id, provider, subject string) error {
	const query = `UPDATE accounts SET auth_provider = $2, auth_subject = $3 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, provider, subject)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgAccountRepository) UpdateDisplayName(ctx context.Context, id, displayName string) error {
	const query = `UPDATE accounts SET display_name = $2 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, displayName)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanAccount(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&u.PasswordHash,
		&u.AuthProvider,
		&u.AuthSubject,
		&u.CreatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func translateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDuplicate
	}
	return err
}
