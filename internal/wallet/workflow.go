package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/wallet-infra/pkg/audit"
)

const (
	// DefaultMinWithdrawal is the configured floor applied when none is set.
	DefaultMinWithdrawal = 300

	minChannelRefLen = 3

	defaultTransactionLimit = 200
	withdrawalListLimit     = 50
)

// Auditor receives a tamper-evident record of every reviewer decision.
type Auditor interface {
	Append(payload string) *audit.Entry
}

// Workflow orchestrates the ledger, journal and channel allocator inside
// single atomic units of work against the injected Store. It implements the
// externally consumed operations: deposit initiate/approve, withdraw
// initiate/approve/deny, and the per-account listings.
type Workflow struct {
	store     Store
	ledger    *Ledger
	journal   *Journal
	allocator *Allocator
	auditor   Auditor
	logger    *slog.Logger

	minWithdrawal float64
}

// WorkflowOptions configures a Workflow.
type WorkflowOptions struct {
	MinWithdrawal float64
	Auditor       Auditor
	Logger        *slog.Logger
}

func NewWorkflow(store Store, opts WorkflowOptions) *Workflow {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MinWithdrawal <= 0 {
		opts.MinWithdrawal = DefaultMinWithdrawal
	}
	return &Workflow{
		store:         store,
		ledger:        NewLedger(),
		journal:       NewJournal(),
		allocator:     NewAllocator(opts.Logger),
		auditor:       opts.Auditor,
		logger:        opts.Logger,
		minWithdrawal: opts.MinWithdrawal,
	}
}

// DepositInitiateResult is returned to the API layer, which renders payment
// instructions (the channel's external handle) to the user.
type DepositInitiateResult struct {
	TransactionID int64   `json:"transaction_id"`
	ChannelRef    string  `json:"channel_ref"`
	Amount        float64 `json:"amount"`
}

// DepositInitiate allocates a payment channel and records a pending deposit
// against it. The channel counter is not touched until the deposit is
// approved.
func (wf *Workflow) DepositInitiate(ctx context.Context, accountID int64, amount float64) (*DepositInitiateResult, error) {
	if amount <= 0 {
		return nil, &ValidationError{Field: "amount", Reason: "must be positive"}
	}

	var result DepositInitiateResult
	err := wf.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetAccount(ctx, accountID); err != nil {
			return err
		}

		ch, err := wf.allocator.SelectActive(ctx, tx)
		if err != nil {
			return err
		}

		t, err := wf.journal.Create(ctx, tx, accountID, KindDeposit, amount, &ch.ID)
		if err != nil {
			return err
		}

		result = DepositInitiateResult{
			TransactionID: t.ID,
			ChannelRef:    ch.ExternalRef,
			Amount:        amount,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	wf.logger.Info("deposit initiated",
		"account_id", accountID, "transaction_id", result.TransactionID, "amount", amount)
	return &result, nil
}

// DepositApprove credits a pending deposit: journal transition, balance and
// total credit, and channel usage recording happen in one atomic unit.
// Approving an already-approved deposit is idempotent and returns the
// current balance unchanged.
func (wf *Workflow) DepositApprove(ctx context.Context, transactionID int64) (float64, error) {
	var balance float64
	err := wf.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		t, err := tx.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if t.Kind != KindDeposit {
			return &NotFoundError{Entity: "deposit transaction", ID: transactionID}
		}
		balance, err = wf.approveDeposit(ctx, tx, t)
		return err
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// DepositConfirm is the self-service variant of DepositApprove: the caller
// confirms their own deposit. With transactionID zero it resolves the
// account's most recent pending deposit, matching the original payment flow
// where the client does not always echo the id back.
func (wf *Workflow) DepositConfirm(ctx context.Context, accountID, transactionID int64) (float64, error) {
	var balance float64
	err := wf.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		var t *Transaction
		var err error

		if transactionID != 0 {
			t, err = tx.GetTransaction(ctx, transactionID)
			if err != nil {
				return err
			}
			if t.AccountID != accountID || t.Kind != KindDeposit {
				return &NotFoundError{Entity: "deposit transaction", ID: transactionID}
			}
		} else {
			t, err = tx.LatestPendingDeposit(ctx, accountID)
			if err != nil {
				return err
			}
			if t == nil {
				return &NotFoundError{Entity: "pending deposit for account", ID: accountID}
			}
		}

		balance, err = wf.approveDeposit(ctx, tx, t)
		return err
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// approveDeposit applies the approval inside the caller's atomic unit.
func (wf *Workflow) approveDeposit(ctx context.Context, tx Tx, t *Transaction) (float64, error) {
	if t.Status == StatusApproved {
		account, err := tx.GetAccount(ctx, t.AccountID)
		if err != nil {
			return 0, err
		}
		return account.Balance, nil
	}

	if _, err := wf.journal.Transition(ctx, tx, t.ID, StatusApproved); err != nil {
		return 0, err
	}

	balance, err := wf.ledger.ApplyDelta(ctx, tx, t.AccountID, t.Amount, TotalsDelta{Deposited: t.Amount})
	if err != nil {
		return 0, err
	}

	if t.ChannelID != nil {
		if err := wf.allocator.RecordUsage(ctx, tx, *t.ChannelID); err != nil {
			return 0, err
		}
	}

	wf.logger.Info("deposit approved",
		"account_id", t.AccountID, "transaction_id", t.ID, "amount", t.Amount)
	return balance, nil
}

// WithdrawInitiateResult reports the submitted request awaiting review.
type WithdrawInitiateResult struct {
	WithdrawalID int64   `json:"withdrawal_id"`
	Amount       float64 `json:"amount"`
	Status       Status  `json:"status"`
	NewBalance   float64 `json:"new_balance"`
}

// WithdrawInitiate reserves the amount immediately: the balance is deducted
// at initiation so the displayed balance stays accurate while the request
// awaits manual review. Denial refunds the reservation; totalWithdrawn is
// only incremented at approval.
func (wf *Workflow) WithdrawInitiate(ctx context.Context, accountID int64, amount float64, channelRef string) (*WithdrawInitiateResult, error) {
	if amount <= 0 {
		return nil, &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if amount < wf.minWithdrawal {
		return nil, &ValidationError{Field: "amount",
			Reason: fmt.Sprintf("minimum withdrawal is %.2f", wf.minWithdrawal)}
	}
	if len(channelRef) < minChannelRefLen {
		return nil, &ValidationError{Field: "channel_ref", Reason: "required"}
	}

	var result WithdrawInitiateResult
	err := wf.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		newBalance, err := wf.ledger.ApplyDelta(ctx, tx, accountID, -amount, TotalsDelta{})
		if err != nil {
			return err
		}

		t, err := wf.journal.Create(ctx, tx, accountID, KindWithdraw, amount, nil)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		w := &WithdrawalRequest{
			AccountID:       accountID,
			TransactionID:   t.ID,
			RequestedAmount: amount,
			Status:          StatusPending,
			ChannelRef:      channelRef,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.InsertWithdrawal(ctx, w); err != nil {
			return err
		}

		result = WithdrawInitiateResult{
			WithdrawalID: w.ID,
			Amount:       amount,
			Status:       StatusPending,
			NewBalance:   newBalance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	wf.logger.Info("withdrawal requested",
		"account_id", accountID, "withdrawal_id", result.WithdrawalID, "amount", amount)
	return &result, nil
}

// WithdrawApproveResult reports a settled withdrawal.
type WithdrawApproveResult struct {
	WithdrawalID int64   `json:"withdrawal_id"`
	Amount       float64 `json:"amount"`
	NewBalance   float64 `json:"new_balance"`
}

// WithdrawApprove settles a pending withdrawal. The balance was already
// deducted at initiation, so only totalWithdrawn moves here; the paired
// journal row completes in the same atomic unit.
func (wf *Workflow) WithdrawApprove(ctx context.Context, withdrawalID, reviewerID int64) (*WithdrawApproveResult, error) {
	var result WithdrawApproveResult
	err := wf.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		w, err := tx.GetWithdrawal(ctx, withdrawalID)
		if err != nil {
			return err
		}
		if w.Status != StatusPending {
			return &ConflictError{Entity: "withdrawal", ID: withdrawalID, From: w.Status, To: StatusApproved}
		}

		w.Status = StatusApproved
		w.ReviewerID = &reviewerID
		w.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateWithdrawal(ctx, w); err != nil {
			return err
		}

		if _, err := wf.journal.Transition(ctx, tx, w.TransactionID, StatusCompleted); err != nil {
			return err
		}

		newBalance, err := wf.ledger.ApplyDelta(ctx, tx, w.AccountID, 0, TotalsDelta{Withdrawn: w.RequestedAmount})
		if err != nil {
			return err
		}

		result = WithdrawApproveResult{
			WithdrawalID: withdrawalID,
			Amount:       w.RequestedAmount,
			NewBalance:   newBalance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	wf.audit(fmt.Sprintf("withdraw_approve id=%d reviewer=%d amount=%.2f",
		withdrawalID, reviewerID, result.Amount))
	wf.logger.Info("withdrawal approved",
		"withdrawal_id", withdrawalID, "reviewer_id", reviewerID, "amount", result.Amount)
	return &result, nil
}

// WithdrawDeny rejects a pending withdrawal and refunds the reserved amount
// in the same atomic unit; the paired journal row is marked failed.
func (wf *Workflow) WithdrawDeny(ctx context.Context, withdrawalID, reviewerID int64, reason string) error {
	if reason == "" {
		reason = "denied by reviewer"
	}

	var amount float64
	err := wf.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		w, err := tx.GetWithdrawal(ctx, withdrawalID)
		if err != nil {
			return err
		}
		if w.Status != StatusPending {
			return &ConflictError{Entity: "withdrawal", ID: withdrawalID, From: w.Status, To: StatusDenied}
		}

		w.Status = StatusDenied
		w.ReviewerID = &reviewerID
		w.Reason = reason
		w.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateWithdrawal(ctx, w); err != nil {
			return err
		}

		if _, err := wf.ledger.ApplyDelta(ctx, tx, w.AccountID, w.RequestedAmount, TotalsDelta{}); err != nil {
			return err
		}

		if _, err := wf.journal.Transition(ctx, tx, w.TransactionID, StatusFailed); err != nil {
			return err
		}

		amount = w.RequestedAmount
		return nil
	})
	if err != nil {
		return err
	}

	wf.audit(fmt.Sprintf("withdraw_deny id=%d reviewer=%d amount=%.2f reason=%q",
		withdrawalID, reviewerID, amount, reason))
	wf.logger.Info("withdrawal denied",
		"withdrawal_id", withdrawalID, "reviewer_id", reviewerID, "reason", reason)
	return nil
}

// ListWithdrawals returns an account's withdrawal requests, newest first.
func (wf *Workflow) ListWithdrawals(ctx context.Context, accountID int64) ([]WithdrawalRequest, error) {
	var out []WithdrawalRequest
	err := wf.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.ListWithdrawals(ctx, accountID, withdrawalListLimit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListTransactions returns an account's journal rows, newest first. A zero
// or oversized limit is clamped to the default page size.
func (wf *Workflow) ListTransactions(ctx context.Context, accountID int64, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > defaultTransactionLimit {
		limit = defaultTransactionLimit
	}

	var out []Transaction
	err := wf.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = wf.journal.ListByAccount(ctx, tx, accountID, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (wf *Workflow) audit(payload string) {
	if wf.auditor != nil {
		wf.auditor.Append(payload)
	}
}
