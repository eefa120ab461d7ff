package wallet

import (
	"context"
	"time"
)

// AllowedTransitions defines the one-way status graph for journal rows.
// Every non-pending status is terminal.
func AllowedTransitions() map[Status][]Status {
	return map[Status][]Status{
		StatusPending:   {StatusApproved, StatusCompleted, StatusDenied, StatusFailed},
		StatusApproved:  {},
		StatusCompleted: {},
		StatusDenied:    {},
		StatusFailed:    {},
	}
}

// Journal is the append-and-transition log of every deposit and withdrawal
// attempt. Rows are never deleted; status moves only forward.
type Journal struct{}

func NewJournal() *Journal {
	return &Journal{}
}

// Create appends a pending journal row.
func (j *Journal) Create(ctx context.Context, tx Tx, accountID int64, kind Kind, amount float64, channelID *int64) (*Transaction, error) {
	if amount <= 0 {
		return nil, &ValidationError{Field: "amount", Reason: "must be positive"}
	}

	now := time.Now().UTC()
	t := &Transaction{
		AccountID: accountID,
		Kind:      kind,
		Amount:    amount,
		ChannelID: channelID,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.InsertTransaction(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Transition moves a journal row to newStatus. Re-applying the status a row
// already has is a no-op returning the existing record, so duplicate
// approval calls are safe. Any other transition out of a terminal status
// fails with *ConflictError.
func (j *Journal) Transition(ctx context.Context, tx Tx, id int64, newStatus Status) (*Transaction, error) {
	t, err := tx.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}

	if t.Status == newStatus {
		return t, nil
	}
	if !j.isAllowed(t.Status, newStatus) {
		return nil, &ConflictError{Entity: "transaction", ID: id, From: t.Status, To: newStatus}
	}

	now := time.Now().UTC()
	if err := tx.SetTransactionStatus(ctx, id, newStatus, now); err != nil {
		return nil, err
	}
	t.Status = newStatus
	t.UpdatedAt = now
	return t, nil
}

// ListByAccount returns an account's journal rows, newest first. The result
// is a finite snapshot, restartable by calling again.
func (j *Journal) ListByAccount(ctx context.Context, tx Tx, accountID int64, limit int) ([]Transaction, error) {
	return tx.ListTransactions(ctx, accountID, limit)
}

func (j *Journal) isAllowed(from, to Status) bool {
	for _, s := range AllowedTransitions()[from] {
		if s == to {
			return true
		}
	}
	return false
}
