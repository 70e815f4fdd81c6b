package txn

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInline_AfterCommit(t *testing.T) {
	var calls []string
	ctx := context.Background()

	err := Inline.InTx(ctx, func(ctx context.Context) error {
		assert.True(t, Active(ctx))
		AfterCommit(ctx, func(context.Context) { calls = append(calls, "outer") })

		return Inline.InTx(ctx, func(ctx context.Context) error {
			AfterCommit(ctx, func(context.Context) { calls = append(calls, "inner") })
			assert.Empty(t, calls)
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, calls)
}

func TestInline_RollbackDropsHooks(t *testing.T) {
	called := false
	errBoom := errors.New("boom")

	err := Inline.InTx(context.Background(), func(ctx context.Context) error {
		AfterCommit(ctx, func(context.Context) { called = true })
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)
	assert.False(t, called)
}

func TestAfterCommit_OutsideTransaction(t *testing.T) {
	called := false
	AfterCommit(context.Background(), func(context.Context) { called = true })
	assert.True(t, called)
	assert.False(t, Active(context.Background()))
}
