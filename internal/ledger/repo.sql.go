package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loomstudio/loomstudio/internal/accounts"
	"github.com/loomstudio/loomstudio/internal/platform/db"
	"github.com/loomstudio/loomstudio/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a database transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// GetAccount reads role and balance without locking.
func (r *Repository) GetAccount(ctx context.Context, id uuid.UUID) (AccountState, error) {
	return scanAccountState(r.pool.QueryRow(ctx,
		`SELECT role, balance FROM accounts WHERE id = $1`, id))
}

// CountTransactions returns the number of ledger entries for an account.
func (r *Repository) CountTransactions(ctx context.Context, accountID uuid.UUID) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM credit_transactions WHERE account_id = $1`, accountID).Scan(&total)
	return total, err
}

// ListTransactions returns ledger entries newest first.
func (r *Repository) ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, account_id, amount, balance, description, category, created_at
		 FROM credit_transactions WHERE account_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txs []Transaction
	for rows.Next() {
		var tx Transaction
		var category string
		if err := rows.Scan(&tx.ID, &tx.AccountID, &tx.Amount, &tx.Balance, &tx.Description, &category, &tx.CreatedAt); err != nil {
			return nil, err
		}
		parsed, err := ParseCategory(category)
		if err != nil {
			return nil, err
		}
		tx.Category = parsed
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}

type txRepo struct {
	tx pgx.Tx
}

// GetAccountForUpdate locks the account row for the duration of the
// enclosing transaction.
func (t *txRepo) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (AccountState, error) {
	return scanAccountState(t.tx.QueryRow(ctx,
		`SELECT role, balance FROM accounts WHERE id = $1 FOR UPDATE`, id))
}

// UpdateBalance writes the new balance.
func (t *txRepo) UpdateBalance(ctx context.Context, id uuid.UUID, balance int64) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE accounts SET balance = $2, updated_at = $3 WHERE id = $1`, id, balance, time.Now().UTC())
	return err
}

// InsertTransaction appends one immutable ledger entry.
func (t *txRepo) InsertTransaction(ctx context.Context, tx Transaction) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO credit_transactions (id, account_id, amount, balance, description, category, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tx.ID, tx.AccountID, tx.Amount, tx.Balance, tx.Description, tx.Category.String(), tx.CreatedAt)
	return err
}

func scanAccountState(row pgx.Row) (AccountState, error) {
	var role string
	var state AccountState
	if err := row.Scan(&role, &state.Balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountState{}, shared.ErrNotFound
		}
		return AccountState{}, err
	}
	parsed, err := accounts.ParseRole(role)
	if err != nil {
		return AccountState{}, err
	}
	state.Role = parsed
	return state, nil
}

var _ RepositoryPort = (*Repository)(nil)
