package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loomstudio/loomstudio/internal/shared"
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence for accounts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByEmail fetches an account by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return r.scanOne(r.pool.QueryRow(ctx,
		`SELECT id, email, role, balance, created_at, updated_at FROM accounts WHERE email = $1`, email))
}

// GetByID fetches an account by id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return r.scanOne(r.pool.QueryRow(ctx,
		`SELECT id, email, role, balance, created_at, updated_at FROM accounts WHERE id = $1`, id))
}

// Create inserts a new account. A concurrent insert of the same email
// surfaces as ErrDuplicate so the caller can re-read.
func (r *Repository) Create(ctx context.Context, account *Account) error {
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now
	_, err := r.pool.Exec(ctx,
		`INSERT INTO accounts (id, email, role, balance, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		account.ID, account.Email, account.Role.String(), account.Balance, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// ErrDuplicate indicates a concurrent materialization of the same email.
var ErrDuplicate = errors.New("accounts: duplicate email")

func (r *Repository) scanOne(row pgx.Row) (*Account, error) {
	var account Account
	var role string
	if err := row.Scan(&account.ID, &account.Email, &role, &account.Balance, &account.CreatedAt, &account.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	parsed, err := ParseRole(role)
	if err != nil {
		return nil, err
	}
	account.Role = parsed
	return &account, nil
}

var _ RepositoryPort = (*Repository)(nil)
