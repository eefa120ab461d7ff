package wallet

import (
	"context"
	"time"
)

// Store is the persistence boundary injected into the Workflow. Atomically
// runs fn inside one store transaction: every mutation fn performs is
// committed together or not at all. Implementations must guarantee that two
// concurrent units touching the same account do not interleave their balance
// reads and writes.
type Store interface {
	Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx exposes the entity operations available inside one atomic unit.
// Getters return *NotFoundError for unknown ids; lookup helpers that may
// legitimately find nothing (FirstEligibleChannel, LatestPendingDeposit)
// return (nil, nil) instead. All other failures are wrapped as *StoreError.
type Tx interface {
	// Accounts. GetAccount locks the row for update where the backend
	// supports it, so the read-modify-write in Ledger.ApplyDelta is
	// serialized per account.
	CreateAccount(ctx context.Context, initialBalance float64) (*Account, error)
	GetAccount(ctx context.Context, id int64) (*Account, error)
	UpdateAccountBalances(ctx context.Context, a *Account) error

	// Journal rows.
	InsertTransaction(ctx context.Context, t *Transaction) error
	GetTransaction(ctx context.Context, id int64) (*Transaction, error)
	LatestPendingDeposit(ctx context.Context, accountID int64) (*Transaction, error)
	SetTransactionStatus(ctx context.Context, id int64, status Status, updatedAt time.Time) error
	ListTransactions(ctx context.Context, accountID int64, limit int) ([]Transaction, error)

	// Withdrawal requests.
	InsertWithdrawal(ctx context.Context, w *WithdrawalRequest) error
	GetWithdrawal(ctx context.Context, id int64) (*WithdrawalRequest, error)
	UpdateWithdrawal(ctx context.Context, w *WithdrawalRequest) error
	ListWithdrawals(ctx context.Context, accountID int64, limit int) ([]WithdrawalRequest, error)

	// Payment channels.
	FirstEligibleChannel(ctx context.Context) (*Channel, error)
	FirstChannel(ctx context.Context) (*Channel, error)
	CountChannels(ctx context.Context) (int64, error)
	ResetChannelCounters(ctx context.Context) error
	IncrementChannelUsage(ctx context.Context, id int64) (*Channel, error)
}
