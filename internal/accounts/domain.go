package accounts

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of account privilege levels.
type Role int

const (
	// RoleStandard accounts pay for every metered request.
	RoleStandard Role = iota
	// RoleAdmin accounts bypass all balance checks; their stored balance is
	// bookkeeping only and never consulted for authorization.
	RoleAdmin
)

// String returns the persisted representation of the role.
func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	default:
		return "standard"
	}
}

// ParseRole converts a persisted role value back into the enum.
func ParseRole(s string) (Role, error) {
	switch s {
	case "standard":
		return RoleStandard, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return RoleStandard, fmt.Errorf("accounts: unknown role %q", s)
	}
}

// Account is the resolved caller identity. The role is computed once at
// materialization time from injected configuration and carried on the entity,
// never re-derived at call sites.
type Account struct {
	ID        uuid.UUID
	Email     string
	Role      Role
	Balance   int64 // centi-credits
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAdmin reports whether the account holds the admin capability.
func (a *Account) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}
