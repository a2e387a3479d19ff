package ledger

import (
	"context"

	"github.com/google/uuid"

	"github.com/loomstudio/loomstudio/internal/accounts"
)

// AccountState is the slice of an account the ledger operates on.
type AccountState struct {
	Role    accounts.Role
	Balance int64
}

// RepositoryPort defines data access methods for the ledger.
type RepositoryPort interface {
	// WithTx runs fn inside one database transaction; mutations on the same
	// account serialize through the row lock taken by GetAccountForUpdate.
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetAccount(ctx context.Context, id uuid.UUID) (AccountState, error)
	CountTransactions(ctx context.Context, accountID uuid.UUID) (int, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]Transaction, error)
}

// TxRepository is the transactional slice of the port. Balance read, balance
// write, and transaction append execute as one unit per account.
type TxRepository interface {
	GetAccountForUpdate(ctx context.Context, id uuid.UUID) (AccountState, error)
	UpdateBalance(ctx context.Context, id uuid.UUID, balance int64) error
	InsertTransaction(ctx context.Context, tx Transaction) error
}
