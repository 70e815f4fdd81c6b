// Package loyalty keeps the points ledger and the balance cached on each
// customer. Every entry is written together with its balance change.
package loyalty

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/krishna-marketing/grocer/internal/domain/apperr"
)

// EntryType is the kind of ledger movement.
type EntryType string

const (
	TypeEarned   EntryType = "earned"
	TypeRedeemed EntryType = "redeemed"
	TypeExpired  EntryType = "expired"
	TypeBonus    EntryType = "bonus"
	TypeRefunded EntryType = "refunded"
	// TypeReversed claws back points earned on an order that was cancelled.
	TypeReversed EntryType = "reversed"
)

// PointsPerRupee is the redemption rate: 10 points are worth ₹1.
const PointsPerRupee = 10

var ErrInsufficientPoints = apperr.Validation("insufficient loyalty points")

// Entry is one ledger line. Points is signed: grants are positive,
// redemptions and reversals negative.
type Entry struct {
	ID          string
	UserID      string
	Type        EntryType
	Points      int64
	OrderID     string
	Description string
	ExpiresAt   *time.Time
	CreatedAt   time.Time
}

// Summary is a customer's balance with their most recent entries.
type Summary struct {
	Balance int64
	History []Entry
}

// Repository persists ledger entries.
type Repository interface {
	// Append inserts e and adds e.Points to the customer's balance in one
	// statement group. It returns ErrInsufficientPoints if the balance would
	// drop below zero, and the new balance otherwise.
	Append(ctx context.Context, e *Entry) (int64, error)
	Balance(ctx context.Context, userID string) (int64, error)
	History(ctx context.Context, userID string, limit int) ([]Entry, error)
}

// EarnedFor returns the points granted for spending amount: floor(amount/10).
func EarnedFor(amount decimal.Decimal) int64 {
	if !amount.IsPositive() {
		return 0
	}
	return amount.Div(decimal.NewFromInt(10)).Floor().IntPart()
}

// Value converts points to rupees.
func Value(points int64) decimal.Decimal {
	return decimal.NewFromInt(points).Div(decimal.NewFromInt(PointsPerRupee)).Round(2)
}
