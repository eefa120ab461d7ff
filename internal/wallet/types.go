package wallet

import "time"

// Kind distinguishes the two money flows recorded in the journal.
type Kind string

const (
	KindDeposit  Kind = "deposit"
	KindWithdraw Kind = "withdraw"
)

// Status is the lifecycle state of a journal transaction or a withdrawal
// request. Transitions are one-way; everything except pending is terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusCompleted Status = "completed"
	StatusDenied    Status = "denied"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether a status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s != StatusPending
}

// Account holds a user's balance and cumulative totals. It is mutated only
// through Ledger.ApplyDelta; the balance is never negative after a committed
// operation.
type Account struct {
	ID             int64     `json:"id"`
	Balance        float64   `json:"balance"`
	TotalDeposited float64   `json:"total_deposited"`
	TotalWithdrawn float64   `json:"total_withdrawn"`
	TotalBonus     float64   `json:"total_bonus"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Transaction is one append-only journal row for a deposit or withdrawal
// attempt. ChannelID is set only for deposits routed through a payment
// channel.
type Transaction struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"account_id"`
	Kind      Kind      `json:"kind"`
	Amount    float64   `json:"amount"`
	ChannelID *int64    `json:"channel_id,omitempty"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WithdrawalRequest is the manual-review record paired 1:1 with a withdraw
// Transaction. ChannelRef is the payout handle supplied by the user.
type WithdrawalRequest struct {
	ID              int64     `json:"id"`
	AccountID       int64     `json:"account_id"`
	TransactionID   int64     `json:"transaction_id"`
	RequestedAmount float64   `json:"requested_amount"`
	Status          Status    `json:"status"`
	ChannelRef      string    `json:"channel_ref"`
	ReviewerID      *int64    `json:"reviewer_id,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Channel is one external payment-receiving handle. TodayCount only grows
// until the allocator performs a global reset; DailyLimit is provisioned
// metadata and not an enforcement point.
type Channel struct {
	ID          int64     `json:"id"`
	ExternalRef string    `json:"external_ref"`
	DailyLimit  int64     `json:"daily_limit"`
	TodayCount  int64     `json:"today_count"`
	RotateAfter int64     `json:"rotate_after"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
