package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/loomstudio/loomstudio/internal/accounts"
	"github.com/loomstudio/loomstudio/internal/shared"
)

// MetricsRecorder receives ledger-side metric observations.
type MetricsRecorder interface {
	ObserveCreditsCharged(category string, credits float64)
}

// Service holds authoritative balance bookkeeping with an audit trail.
type Service struct {
	repo    RepositoryPort
	metrics MetricsRecorder
	logger  *slog.Logger
}

// NewService constructs a Service. metrics may be nil.
func NewService(repo RepositoryPort, metrics MetricsRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, metrics: metrics, logger: logger}
}

// GetBalance reads the account balance. Admin accounts report unlimited.
func (s *Service) GetBalance(ctx context.Context, accountID uuid.UUID) (Balance, error) {
	state, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return Balance{}, err
	}
	if state.Role == accounts.RoleAdmin {
		return Balance{Unlimited: true}, nil
	}
	return Balance{Amount: state.Balance}, nil
}

// TryDebit atomically charges amount against the balance. Admin accounts
// always succeed with unlimited remaining and no ledger mutation. An
// insufficient balance fails without mutating state.
func (s *Service) TryDebit(ctx context.Context, accountID uuid.UUID, amount int64, description string) (bool, Balance, error) {
	if amount <= 0 {
		return false, Balance{}, fmt.Errorf("%w: debit amount must be positive", shared.ErrInvalidInput)
	}
	var ok bool
	var remaining Balance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		state, err := tx.GetAccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if state.Role == accounts.RoleAdmin {
			ok = true
			remaining = Balance{Unlimited: true}
			return nil
		}
		if state.Balance < amount {
			ok = false
			remaining = Balance{Amount: state.Balance}
			return nil
		}
		newBalance := state.Balance - amount
		if err := tx.UpdateBalance(ctx, accountID, newBalance); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, Transaction{
			ID:          uuid.New(),
			AccountID:   accountID,
			Amount:      -amount,
			Balance:     newBalance,
			Description: description,
			Category:    CategoryUsage,
			CreatedAt:   time.Now().UTC(),
		}); err != nil {
			return err
		}
		ok = true
		remaining = Balance{Amount: newBalance}
		return nil
	})
	if err != nil {
		return false, Balance{}, err
	}
	if ok && !remaining.Unlimited && s.metrics != nil {
		s.metrics.ObserveCreditsCharged(CategoryUsage.String(), float64(amount)/100)
	}
	return ok, remaining, nil
}

// Credit atomically adds amount to the balance with a transaction record.
// Category must be purchase, bonus, or refund.
func (s *Service) Credit(ctx context.Context, accountID uuid.UUID, amount int64, description string, category Category) (Balance, error) {
	if amount <= 0 {
		return Balance{}, fmt.Errorf("%w: credit amount must be positive", shared.ErrInvalidInput)
	}
	switch category {
	case CategoryPurchase, CategoryBonus, CategoryRefund:
	case CategoryUsage, CategoryAdminAdjustment:
		return Balance{}, fmt.Errorf("%w: category %s is not creditable", shared.ErrInvalidInput, category)
	default:
		return Balance{}, fmt.Errorf("%w: category %s is not creditable", shared.ErrInvalidInput, category)
	}
	var total Balance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		state, err := tx.GetAccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		newBalance := state.Balance + amount
		if err := tx.UpdateBalance(ctx, accountID, newBalance); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, Transaction{
			ID:          uuid.New(),
			AccountID:   accountID,
			Amount:      amount,
			Balance:     newBalance,
			Description: description,
			Category:    category,
			CreatedAt:   time.Now().UTC(),
		}); err != nil {
			return err
		}
		total = Balance{Amount: newBalance, Unlimited: state.Role == accounts.RoleAdmin}
		return nil
	})
	if err != nil {
		return Balance{}, err
	}
	s.logger.Info("credits added",
		slog.String("account_id", accountID.String()),
		slog.String("category", category.String()),
		slog.String("amount", FormatCredits(amount)))
	return total, nil
}

// AdminAdjust applies a signed delta to a non-admin account, flooring the
// result at zero. Adjusting an admin account is rejected since it never
// affects access.
func (s *Service) AdminAdjust(ctx context.Context, accountID uuid.UUID, delta int64, reason string) (int64, int64, error) {
	var previous, updated int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		state, err := tx.GetAccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if state.Role == accounts.RoleAdmin {
			return fmt.Errorf("%w: cannot adjust an admin account", shared.ErrInvalidInput)
		}
		previous = state.Balance
		updated = previous + delta
		if updated < 0 {
			updated = 0
		}
		if err := tx.UpdateBalance(ctx, accountID, updated); err != nil {
			return err
		}
		// Record the applied delta, not the requested one, so the running
		// sum of transaction amounts still equals the balance.
		return tx.InsertTransaction(ctx, Transaction{
			ID:          uuid.New(),
			AccountID:   accountID,
			Amount:      updated - previous,
			Balance:     updated,
			Description: reason,
			Category:    CategoryAdminAdjustment,
			CreatedAt:   time.Now().UTC(),
		})
	})
	if err != nil {
		return 0, 0, err
	}
	s.logger.Info("balance adjusted",
		slog.String("account_id", accountID.String()),
		slog.String("previous", FormatCredits(previous)),
		slog.String("new", FormatCredits(updated)))
	return previous, updated, nil
}

// History returns a page of the account's transaction log, newest first.
func (s *Service) History(ctx context.Context, accountID uuid.UUID, page, perPage int) ([]Transaction, shared.Pagination, error) {
	total, err := s.repo.CountTransactions(ctx, accountID)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	p := shared.NewPagination(page, perPage, total)
	txs, err := s.repo.ListTransactions(ctx, accountID, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return txs, p, nil
}
