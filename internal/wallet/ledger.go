package wallet

import (
	"context"
	"fmt"
	"time"
)

// TotalsDelta carries the cumulative-total adjustments that accompany a
// balance change. Deltas are non-negative; a zero value leaves the
// corresponding total untouched.
type TotalsDelta struct {
	Deposited float64
	Withdrawn float64
	Bonus     float64
}

// Ledger is the single authority for balance mutation. It operates on an
// account row inside the caller's atomic unit; the Tx implementation
// provides the per-account serialization (row lock or single-writer store).
type Ledger struct{}

func NewLedger() *Ledger {
	return &Ledger{}
}

// ApplyDelta reads the current balance, applies balanceDelta and the
// cumulative totals, and writes the account back. It fails with
// ErrInsufficientFunds before any write when a negative delta would make the
// balance negative.
func (l *Ledger) ApplyDelta(ctx context.Context, tx Tx, accountID int64, balanceDelta float64, totals TotalsDelta) (float64, error) {
	account, err := tx.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}

	newBalance := account.Balance + balanceDelta
	if balanceDelta < 0 && newBalance < 0 {
		return 0, fmt.Errorf("account %d: balance %.2f, requested %.2f: %w",
			accountID, account.Balance, -balanceDelta, ErrInsufficientFunds)
	}

	account.Balance = newBalance
	account.TotalDeposited += totals.Deposited
	account.TotalWithdrawn += totals.Withdrawn
	account.TotalBonus += totals.Bonus
	account.UpdatedAt = time.Now().UTC()

	if err := tx.UpdateAccountBalances(ctx, account); err != nil {
		return 0, err
	}
	return newBalance, nil
}
