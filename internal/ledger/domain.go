// Package ledger is the subsystem of record for account credit balances and
// their transaction history. Amounts are stored as int64 hundredths of a
// credit so display formatting stays exact.
package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category is the closed set of transaction categories.
type Category int

const (
	CategoryUsage Category = iota
	CategoryPurchase
	CategoryBonus
	CategoryRefund
	CategoryAdminAdjustment
)

// String returns the persisted representation of the category.
func (c Category) String() string {
	switch c {
	case CategoryUsage:
		return "usage"
	case CategoryPurchase:
		return "purchase"
	case CategoryBonus:
		return "bonus"
	case CategoryRefund:
		return "refund"
	case CategoryAdminAdjustment:
		return "admin-adjustment"
	default:
		return "unknown"
	}
}

// ParseCategory converts a persisted category value back into the enum.
func ParseCategory(s string) (Category, error) {
	switch s {
	case "usage":
		return CategoryUsage, nil
	case "purchase":
		return CategoryPurchase, nil
	case "bonus":
		return CategoryBonus, nil
	case "refund":
		return CategoryRefund, nil
	case "admin-adjustment":
		return CategoryAdminAdjustment, nil
	default:
		return CategoryUsage, fmt.Errorf("ledger: unknown category %q", s)
	}
}

// Transaction is one immutable ledger entry. Negative amounts are debits.
// The running sum of amounts for a non-admin account equals its balance.
type Transaction struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	Amount      int64
	Balance     int64 // resulting balance snapshot
	Description string
	Category    Category
	CreatedAt   time.Time
}

// Balance is an account balance as seen by callers. Admin accounts report
// the unlimited marker regardless of the stored numeric value.
type Balance struct {
	Amount    int64
	Unlimited bool
}

// Display renders the balance for presentation. Formatting is a pure
// function with no side effects.
func (b Balance) Display() string {
	if b.Unlimited {
		return "∞"
	}
	return FormatCredits(b.Amount)
}

// Credits returns the balance as a float credit count for JSON payloads.
func (b Balance) Credits() float64 {
	return float64(b.Amount) / 100
}

// FormatCredits renders centi-credits as a fixed two-decimal string.
func FormatCredits(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	s := fmt.Sprintf("%d.%02d", amount/100, amount%100)
	if neg {
		return "-" + s
	}
	return s
}

// ParseCredits parses a two-decimal credit string back into centi-credits.
// FormatCredits and ParseCredits round-trip exactly.
func ParseCredits(s string) (int64, error) {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	whole, frac, ok := strings.Cut(s, ".")
	if !ok || len(frac) != 2 {
		return 0, fmt.Errorf("ledger: malformed credit amount %q", s)
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ledger: malformed credit amount %q", s)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("ledger: malformed credit amount %q", s)
	}
	amount := w*100 + f
	if neg {
		amount = -amount
	}
	return amount, nil
}

// InsufficientCreditsError reports a failed balance check with the amounts
// needed for a specific caller-facing message.
type InsufficientCreditsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %s, available %s",
		FormatCredits(e.Required), FormatCredits(e.Available))
}
