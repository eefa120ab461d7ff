package store

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/wallet-infra/internal/config"
	"github.com/example/wallet-infra/internal/wallet"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(":memory:", Seed{
		ChannelRef:  "upi-primary@bank",
		DailyLimit:  20,
		RotateAfter: 2,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createAccount(t *testing.T, s *SQLite, balance float64) int64 {
	t.Helper()
	var id int64
	err := s.Atomically(context.Background(), func(ctx context.Context, tx wallet.Tx) error {
		a, err := tx.CreateAccount(ctx, balance)
		if err != nil {
			return err
		}
		id = a.ID
		return nil
	})
	require.NoError(t, err)
	return id
}

func newStoreWorkflow(s *SQLite) *wallet.Workflow {
	return wallet.NewWorkflow(s, wallet.WorkflowOptions{
		MinWithdrawal: 300,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestBootstrapIsIdempotent(t *testing.T) {
	s := openTestStore(t)

	// Re-running the schema and seed against the same database must not
	// duplicate the default channel.
	require.NoError(t, s.seedChannels(Seed{ChannelRef: "upi-primary@bank", DailyLimit: 20, RotateAfter: 2}))

	err := s.Atomically(context.Background(), func(ctx context.Context, tx wallet.Tx) error {
		n, err := tx.CountChannels(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(1), n)
		return nil
	})
	require.NoError(t, err)
}

func TestSeedFromConfig(t *testing.T) {
	t.Setenv("DATABASE_URL", ":memory:")
	t.Setenv("AUTH_SECRET", "test-secret")
	t.Setenv("DEFAULT_CHANNEL_REF", "upi-seeded@bank")
	t.Setenv("CHANNEL_ROTATE_AFTER", "4")
	t.Setenv("CHANNEL_DAILY_LIMIT", "8")

	cfg, err := config.Load()
	require.NoError(t, err)

	// The seed is built from the config fields exactly as the entrypoint
	// builds it.
	s, err := OpenSQLite(cfg.DatabaseURL, Seed{
		ChannelRef:  cfg.DefaultChannelRef,
		DailyLimit:  cfg.ChannelDailyLimit,
		RotateAfter: cfg.ChannelRotateAfter,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	err = s.Atomically(context.Background(), func(ctx context.Context, tx wallet.Tx) error {
		ch, err := tx.FirstChannel(ctx)
		require.NoError(t, err)
		require.Equal(t, "upi-seeded@bank", ch.ExternalRef)
		require.Equal(t, int64(4), ch.RotateAfter)
		require.Equal(t, int64(8), ch.DailyLimit)
		return nil
	})
	require.NoError(t, err)
}

func TestAtomicUnitRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	acctID := createAccount(t, s, 0)
	ctx := context.Background()

	sentinel := &wallet.ValidationError{Field: "amount", Reason: "boom"}
	err := s.Atomically(ctx, func(ctx context.Context, tx wallet.Tx) error {
		a, err := tx.GetAccount(ctx, acctID)
		require.NoError(t, err)
		a.Balance = 999
		require.NoError(t, tx.UpdateAccountBalances(ctx, a))
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	// The write inside the failed unit is gone.
	err = s.Atomically(ctx, func(ctx context.Context, tx wallet.Tx) error {
		a, err := tx.GetAccount(ctx, acctID)
		require.NoError(t, err)
		require.Zero(t, a.Balance)
		return nil
	})
	require.NoError(t, err)
}

func TestGettersReturnNotFound(t *testing.T) {
	s := openTestStore(t)

	err := s.Atomically(context.Background(), func(ctx context.Context, tx wallet.Tx) error {
		var nf *wallet.NotFoundError

		_, err := tx.GetAccount(ctx, 99)
		require.ErrorAs(t, err, &nf)

		_, err = tx.GetTransaction(ctx, 99)
		require.ErrorAs(t, err, &nf)

		_, err = tx.GetWithdrawal(ctx, 99)
		require.ErrorAs(t, err, &nf)

		_, err = tx.IncrementChannelUsage(ctx, 99)
		require.ErrorAs(t, err, &nf)

		// Lookup helpers report absence as nil, not as an error.
		pending, err := tx.LatestPendingDeposit(ctx, 99)
		require.NoError(t, err)
		require.Nil(t, pending)
		return nil
	})
	require.NoError(t, err)
}

func TestDepositAndWithdrawRoundTrip(t *testing.T) {
	s := openTestStore(t)
	acctID := createAccount(t, s, 0)
	ctx := context.Background()

	wf := newStoreWorkflow(s)

	dep, err := wf.DepositInitiate(ctx, acctID, 1000)
	require.NoError(t, err)
	require.Equal(t, "upi-primary@bank", dep.ChannelRef)

	balance, err := wf.DepositConfirm(ctx, acctID, dep.TransactionID)
	require.NoError(t, err)
	require.Equal(t, float64(1000), balance)

	wd, err := wf.WithdrawInitiate(ctx, acctID, 500, "payout@bank")
	require.NoError(t, err)
	require.Equal(t, float64(500), wd.NewBalance)

	approved, err := wf.WithdrawApprove(ctx, wd.WithdrawalID, 1)
	require.NoError(t, err)
	require.Equal(t, float64(500), approved.NewBalance)

	err = s.Atomically(ctx, func(ctx context.Context, tx wallet.Tx) error {
		a, err := tx.GetAccount(ctx, acctID)
		require.NoError(t, err)
		require.Equal(t, float64(500), a.Balance)
		require.Equal(t, float64(1000), a.TotalDeposited)
		require.Equal(t, float64(500), a.TotalWithdrawn)

		w, err := tx.GetWithdrawal(ctx, wd.WithdrawalID)
		require.NoError(t, err)
		require.Equal(t, wallet.StatusApproved, w.Status)

		paired, err := tx.GetTransaction(ctx, w.TransactionID)
		require.NoError(t, err)
		require.Equal(t, wallet.StatusCompleted, paired.Status)
		return nil
	})
	require.NoError(t, err)
}

func TestDenyRefundsThroughStore(t *testing.T) {
	s := openTestStore(t)
	acctID := createAccount(t, s, 1000)
	ctx := context.Background()

	wf := newStoreWorkflow(s)

	wd, err := wf.WithdrawInitiate(ctx, acctID, 400, "payout@bank")
	require.NoError(t, err)
	require.Equal(t, float64(600), wd.NewBalance)

	require.NoError(t, wf.WithdrawDeny(ctx, wd.WithdrawalID, 1, "mismatched receipt"))

	err = s.Atomically(ctx, func(ctx context.Context, tx wallet.Tx) error {
		a, err := tx.GetAccount(ctx, acctID)
		require.NoError(t, err)
		require.Equal(t, float64(1000), a.Balance)
		require.Zero(t, a.TotalWithdrawn)

		w, err := tx.GetWithdrawal(ctx, wd.WithdrawalID)
		require.NoError(t, err)
		require.Equal(t, wallet.StatusDenied, w.Status)
		require.Equal(t, "mismatched receipt", w.Reason)
		require.NotNil(t, w.ReviewerID)
		return nil
	})
	require.NoError(t, err)
}

func TestChannelRotationPersists(t *testing.T) {
	s := openTestStore(t)
	acctID := createAccount(t, s, 0)
	ctx := context.Background()

	wf := newStoreWorkflow(s)

	// The seeded channel rotates after two approved deposits; with no other
	// channel the third approval triggers a reset, so the counter ends at 1.
	for i := 0; i < 3; i++ {
		dep, err := wf.DepositInitiate(ctx, acctID, 100)
		require.NoError(t, err)
		_, err = wf.DepositApprove(ctx, dep.TransactionID)
		require.NoError(t, err)
	}

	err := s.Atomically(ctx, func(ctx context.Context, tx wallet.Tx) error {
		ch, err := tx.FirstChannel(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(1), ch.TodayCount)
		return nil
	})
	require.NoError(t, err)
}

func TestListingsOrderAndLimit(t *testing.T) {
	s := openTestStore(t)
	acctID := createAccount(t, s, 10_000)
	ctx := context.Background()

	wf := newStoreWorkflow(s)

	for i := 0; i < 4; i++ {
		_, err := wf.WithdrawInitiate(ctx, acctID, 300, "payout@bank")
		require.NoError(t, err)
	}

	transactions, err := wf.ListTransactions(ctx, acctID, 2)
	require.NoError(t, err)
	require.Len(t, transactions, 2)
	require.Greater(t, transactions[0].ID, transactions[1].ID)

	withdrawals, err := wf.ListWithdrawals(ctx, acctID)
	require.NoError(t, err)
	require.Len(t, withdrawals, 4)
	require.Greater(t, withdrawals[0].ID, withdrawals[1].ID)
}
