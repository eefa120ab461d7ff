package wallet

import (
	"context"
	"sort"
	"time"
)

// memStore is an in-memory Store for unit tests. It runs each atomic unit
// against live maps without rollback, which is fine for tests that only
// assert on committed outcomes.
type memStore struct {
	accounts     map[int64]*Account
	transactions map[int64]*Transaction
	withdrawals  map[int64]*WithdrawalRequest
	channels     map[int64]*Channel

	nextAccountID     int64
	nextTransactionID int64
	nextWithdrawalID  int64
	nextChannelID     int64
}

func newMemStore() *memStore {
	return &memStore{
		accounts:     map[int64]*Account{},
		transactions: map[int64]*Transaction{},
		withdrawals:  map[int64]*WithdrawalRequest{},
		channels:     map[int64]*Channel{},
	}
}

func (m *memStore) Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return fn(ctx, m)
}

func (m *memStore) addChannel(ref string, rotateAfter int64) *Channel {
	m.nextChannelID++
	ch := &Channel{ID: m.nextChannelID, ExternalRef: ref, DailyLimit: rotateAfter * 2, RotateAfter: rotateAfter}
	m.channels[ch.ID] = ch
	return ch
}

func (m *memStore) CreateAccount(ctx context.Context, initialBalance float64) (*Account, error) {
	m.nextAccountID++
	now := time.Now().UTC()
	a := &Account{ID: m.nextAccountID, Balance: initialBalance, CreatedAt: now, UpdatedAt: now}
	m.accounts[a.ID] = a
	return a, nil
}

func (m *memStore) GetAccount(ctx context.Context, id int64) (*Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, &NotFoundError{Entity: "account", ID: id}
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) UpdateAccountBalances(ctx context.Context, a *Account) error {
	cur, ok := m.accounts[a.ID]
	if !ok {
		return &NotFoundError{Entity: "account", ID: a.ID}
	}
	cur.Balance = a.Balance
	cur.TotalDeposited = a.TotalDeposited
	cur.TotalWithdrawn = a.TotalWithdrawn
	cur.TotalBonus = a.TotalBonus
	cur.UpdatedAt = a.UpdatedAt
	return nil
}

func (m *memStore) InsertTransaction(ctx context.Context, t *Transaction) error {
	m.nextTransactionID++
	t.ID = m.nextTransactionID
	cp := *t
	m.transactions[t.ID] = &cp
	return nil
}

func (m *memStore) GetTransaction(ctx context.Context, id int64) (*Transaction, error) {
	t, ok := m.transactions[id]
	if !ok {
		return nil, &NotFoundError{Entity: "transaction", ID: id}
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) LatestPendingDeposit(ctx context.Context, accountID int64) (*Transaction, error) {
	var latest *Transaction
	for _, t := range m.transactions {
		if t.AccountID != accountID || t.Kind != KindDeposit || t.Status != StatusPending {
			continue
		}
		if latest == nil || t.ID > latest.ID {
			latest = t
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *memStore) SetTransactionStatus(ctx context.Context, id int64, status Status, updatedAt time.Time) error {
	t, ok := m.transactions[id]
	if !ok {
		return &NotFoundError{Entity: "transaction", ID: id}
	}
	t.Status = status
	t.UpdatedAt = updatedAt
	return nil
}

func (m *memStore) ListTransactions(ctx context.Context, accountID int64, limit int) ([]Transaction, error) {
	var out []Transaction
	for _, t := range m.transactions {
		if t.AccountID == accountID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) InsertWithdrawal(ctx context.Context, w *WithdrawalRequest) error {
	m.nextWithdrawalID++
	w.ID = m.nextWithdrawalID
	cp := *w
	m.withdrawals[w.ID] = &cp
	return nil
}

func (m *memStore) GetWithdrawal(ctx context.Context, id int64) (*WithdrawalRequest, error) {
	w, ok := m.withdrawals[id]
	if !ok {
		return nil, &NotFoundError{Entity: "withdrawal", ID: id}
	}
	cp := *w
	return &cp, nil
}

func (m *memStore) UpdateWithdrawal(ctx context.Context, w *WithdrawalRequest) error {
	if _, ok := m.withdrawals[w.ID]; !ok {
		return &NotFoundError{Entity: "withdrawal", ID: w.ID}
	}
	cp := *w
	m.withdrawals[w.ID] = &cp
	return nil
}

func (m *memStore) ListWithdrawals(ctx context.Context, accountID int64, limit int) ([]WithdrawalRequest, error) {
	var out []WithdrawalRequest
	for _, w := range m.withdrawals {
		if w.AccountID == accountID {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) sortedChannels() []*Channel {
	out := make([]*Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStore) FirstEligibleChannel(ctx context.Context) (*Channel, error) {
	for _, ch := range m.sortedChannels() {
		if ch.TodayCount < ch.RotateAfter {
			cp := *ch
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) FirstChannel(ctx context.Context) (*Channel, error) {
	chans := m.sortedChannels()
	if len(chans) == 0 {
		return nil, nil
	}
	cp := *chans[0]
	return &cp, nil
}

func (m *memStore) CountChannels(ctx context.Context) (int64, error) {
	return int64(len(m.channels)), nil
}

func (m *memStore) ResetChannelCounters(ctx context.Context) error {
	for _, ch := range m.channels {
		ch.TodayCount = 0
	}
	return nil
}

func (m *memStore) IncrementChannelUsage(ctx context.Context, id int64) (*Channel, error) {
	ch, ok := m.channels[id]
	if !ok {
		return nil, &NotFoundError{Entity: "channel", ID: id}
	}
	ch.TodayCount++
	cp := *ch
	return &cp, nil
}
