package loyalty

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const historyLimit = 50

// OrderRef identifies the order a ledger movement belongs to.
type OrderRef struct {
	ID     string
	Number string
}

// Ledger records point movements. Callers that combine a movement with other
// writes run it inside their own transaction.
type Ledger struct {
	repo Repository
}

func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo}
}

// Earn grants floor(amount/10) points for an order and returns the grant.
func (l *Ledger) Earn(ctx context.Context, userID string, o OrderRef, amount decimal.Decimal) (int64, error) {
	points := EarnedFor(amount)
	if points == 0 {
		return 0, nil
	}
	err := l.append(ctx, userID, TypeEarned, points, o, fmt.Sprintf("Earned on order %s", o.Number))
	if err != nil {
		return 0, errors.Wrap(err, "earn points")
	}
	return points, nil
}

// Redeem spends points on an order.
func (l *Ledger) Redeem(ctx context.Context, userID string, o OrderRef, points int64) error {
	if points <= 0 {
		return nil
	}
	if err := l.append(ctx, userID, TypeRedeemed, -points, o, fmt.Sprintf("Redeemed on order %s", o.Number)); err != nil {
		return errors.Wrap(err, "redeem points")
	}
	return nil
}

// Refund returns points spent on a cancelled order.
func (l *Ledger) Refund(ctx context.Context, userID string, o OrderRef, points int64) error {
	if points <= 0 {
		return nil
	}
	if err := l.append(ctx, userID, TypeRefunded, points, o, fmt.Sprintf("Refunded for cancelled order %s", o.Number)); err != nil {
		return errors.Wrap(err, "refund points")
	}
	return nil
}

// Reverse takes back points earned on a cancelled order. Points already spent
// elsewhere are not recovered, so the balance never goes negative. It returns
// the number of points actually reversed.
func (l *Ledger) Reverse(ctx context.Context, userID string, o OrderRef, points int64) (int64, error) {
	if points <= 0 {
		return 0, nil
	}
	balance, err := l.repo.Balance(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "get balance")
	}
	points = min(points, balance)
	if points == 0 {
		return 0, nil
	}
	err = l.append(ctx, userID, TypeReversed, -points, o, fmt.Sprintf("Reversed for cancelled order %s", o.Number))
	if err != nil {
		return 0, errors.Wrap(err, "reverse points")
	}
	return points, nil
}

// Balance returns the current balance.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	b, err := l.repo.Balance(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "get balance")
	}
	return b, nil
}

// Summary returns the balance and recent history.
func (l *Ledger) Summary(ctx context.Context, userID string) (*Summary, error) {
	balance, err := l.repo.Balance(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get balance")
	}
	history, err := l.repo.History(ctx, userID, historyLimit)
	if err != nil {
		return nil, errors.Wrap(err, "get history")
	}
	return &Summary{Balance: balance, History: history}, nil
}

func (l *Ledger) append(ctx context.Context, userID string, typ EntryType, points int64, o OrderRef, desc string) error {
	_, err := l.repo.Append(ctx, &Entry{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        typ,
		Points:      points,
		OrderID:     o.ID,
		Description: desc,
	})
	return err
}
