package wallet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyDeltaCredit(t *testing.T) {
	ctx := context.Background()
	m := newMemStore()
	a, err := m.CreateAccount(ctx, 0)
	require.NoError(t, err)

	l := NewLedger()
	balance, err := l.ApplyDelta(ctx, m, a.ID, 500, TotalsDelta{Deposited: 500})
	require.NoError(t, err)
	require.Equal(t, float64(500), balance)

	got, err := m.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, float64(500), got.Balance)
	require.Equal(t, float64(500), got.TotalDeposited)
	require.Zero(t, got.TotalWithdrawn)
}

func TestApplyDeltaInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	m := newMemStore()
	a, err := m.CreateAccount(ctx, 200)
	require.NoError(t, err)

	l := NewLedger()
	_, err = l.ApplyDelta(ctx, m, a.ID, -300, TotalsDelta{})
	require.ErrorIs(t, err, ErrInsufficientFunds)

	// Rejected before any write.
	got, err := m.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, float64(200), got.Balance)
}

func TestApplyDeltaExactBalanceToZero(t *testing.T) {
	ctx := context.Background()
	m := newMemStore()
	a, err := m.CreateAccount(ctx, 300)
	require.NoError(t, err)

	l := NewLedger()
	balance, err := l.ApplyDelta(ctx, m, a.ID, -300, TotalsDelta{})
	require.NoError(t, err)
	require.Zero(t, balance)
}

func TestApplyDeltaUnknownAccount(t *testing.T) {
	m := newMemStore()
	l := NewLedger()

	_, err := l.ApplyDelta(context.Background(), m, 99, 100, TotalsDelta{})
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}
