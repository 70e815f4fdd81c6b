package loyalty

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	balances map[string]int64
	entries  []Entry
}

func newMemRepo() *memRepo {
	return &memRepo{balances: map[string]int64{}}
}

func (m *memRepo) Append(_ context.Context, e *Entry) (int64, error) {
	next := m.balances[e.UserID] + e.Points
	if next < 0 {
		return 0, ErrInsufficientPoints
	}
	m.balances[e.UserID] = next
	m.entries = append(m.entries, *e)
	return next, nil
}

func (m *memRepo) Balance(_ context.Context, userID string) (int64, error) {
	return m.balances[userID], nil
}

func (m *memRepo) History(_ context.Context, userID string, limit int) ([]Entry, error) {
	var out []Entry
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.entries[i].UserID == userID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func TestEarnedFor(t *testing.T) {
	tests := []struct {
		amount string
		want   int64
	}{
		{"230", 23},
		{"239.99", 23},
		{"9.99", 0},
		{"0", 0},
		{"-50", 0},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			assert.Equal(t, tt.want, EarnedFor(decimal.RequireFromString(tt.amount)))
		})
	}
}

func TestValue(t *testing.T) {
	assert.True(t, decimal.RequireFromString("5").Equal(Value(50)))
	assert.True(t, decimal.RequireFromString("0.5").Equal(Value(5)))
}

func TestLedger_EarnRedeemRefund(t *testing.T) {
	repo := newMemRepo()
	l := NewLedger(repo)
	ctx := context.Background()
	ref := OrderRef{ID: "o1", Number: "KM1"}

	earned, err := l.Earn(ctx, "u1", ref, decimal.NewFromInt(230))
	require.NoError(t, err)
	assert.Equal(t, int64(23), earned)

	require.NoError(t, l.Redeem(ctx, "u1", ref, 20))
	require.NoError(t, l.Refund(ctx, "u1", ref, 20))

	s, err := l.Summary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(23), s.Balance)
	require.Len(t, s.History, 3)
	assert.Equal(t, TypeRefunded, s.History[0].Type)
	assert.Equal(t, int64(-20), s.History[1].Points)
	assert.Equal(t, TypeEarned, s.History[2].Type)
}

func TestLedger_RedeemMoreThanBalance(t *testing.T) {
	l := NewLedger(newMemRepo())
	err := l.Redeem(context.Background(), "u1", OrderRef{ID: "o1"}, 5)
	require.ErrorIs(t, err, ErrInsufficientPoints)
}

func TestLedger_ReverseBoundedByBalance(t *testing.T) {
	repo := newMemRepo()
	repo.balances["u1"] = 10
	l := NewLedger(repo)

	got, err := l.Reverse(context.Background(), "u1", OrderRef{ID: "o1", Number: "KM1"}, 23)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got)
	assert.Equal(t, int64(0), repo.balances["u1"])
	assert.Equal(t, TypeReversed, repo.entries[0].Type)
}

func TestLedger_ZeroMovementsWriteNothing(t *testing.T) {
	repo := newMemRepo()
	l := NewLedger(repo)
	ctx := context.Background()

	_, err := l.Earn(ctx, "u1", OrderRef{}, decimal.NewFromInt(9))
	require.NoError(t, err)
	require.NoError(t, l.Redeem(ctx, "u1", OrderRef{}, 0))
	_, err = l.Reverse(ctx, "u1", OrderRef{}, 5)
	require.NoError(t, err)
	assert.Empty(t, repo.entries)
}

type failingRepo struct {
	*memRepo
	err error
}

func (f failingRepo) Append(context.Context, *Entry) (int64, error) { return 0, f.err }

func TestLedger_MovementErrors(t *testing.T) {
	ref := OrderRef{ID: "o1", Number: "KM1"}
	moves := []struct {
		name string
		typ  EntryType
		run  func(*Ledger) error
	}{
		{"Redeem", TypeRedeemed, func(l *Ledger) error { return l.Redeem(context.Background(), "u1", ref, 10) }},
		{"Refund", TypeRefunded, func(l *Ledger) error { return l.Refund(context.Background(), "u1", ref, 10) }},
	}
	for _, m := range moves {
		t.Run(m.name, func(t *testing.T) {
			repo := newMemRepo()
			repo.balances["u1"] = 10
			require.NoError(t, m.run(NewLedger(repo)))
			require.Len(t, repo.entries, 1)
			assert.Equal(t, m.typ, repo.entries[0].Type)

			boom := errors.New("connection reset")
			err := m.run(NewLedger(failingRepo{memRepo: newMemRepo(), err: boom}))
			require.ErrorIs(t, err, boom)
		})
	}
}
