package accounts

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/loomstudio/loomstudio/internal/shared"
)

// RepositoryPort defines data access methods for accounts.
type RepositoryPort interface {
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	Create(ctx context.Context, account *Account) error
}

// Service materializes accounts from resolved identities. The admin
// allowlist is injected once at construction; the resulting capability lives
// on the account entity.
type Service struct {
	repo   RepositoryPort
	admins map[string]struct{}
	group  singleflight.Group
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, adminEmails []string, logger *slog.Logger) *Service {
	admins := make(map[string]struct{}, len(adminEmails))
	for _, email := range adminEmails {
		email = strings.ToLower(strings.TrimSpace(email))
		if email != "" {
			admins[email] = struct{}{}
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, admins: admins, logger: logger}
}

// Resolve returns the account for an authenticated email, creating it on
// first resolution. Concurrent first-time resolutions of the same email are
// deduplicated so only one insert is attempted.
func (s *Service) Resolve(ctx context.Context, email string) (*Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, shared.ErrUnauthenticated
	}
	v, err, _ := s.group.Do(email, func() (any, error) {
		return s.resolveOnce(ctx, email)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Account), nil
}

// Get fetches an account by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Account, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) resolveOnce(ctx context.Context, email string) (*Account, error) {
	account, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	account = &Account{
		ID:    uuid.New(),
		Email: email,
		Role:  s.roleFor(email),
	}
	if err := s.repo.Create(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicate) {
			// Lost the materialization race; the row exists now.
			return s.repo.GetByEmail(ctx, email)
		}
		return nil, err
	}
	s.logger.Info("account materialized",
		slog.String("account_id", account.ID.String()),
		slog.String("role", account.Role.String()))
	return account, nil
}

func (s *Service) roleFor(email string) Role {
	if _, ok := s.admins[email]; ok {
		return RoleAdmin
	}
	return RoleStandard
}
