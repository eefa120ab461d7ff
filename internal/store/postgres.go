package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/wallet-infra/internal/wallet"
)

// Postgres is the production Store. Every atomic unit runs in a
// SERIALIZABLE transaction; serialization failures (SQLSTATE 40001) are
// retried a bounded number of times. Account reads inside a unit take a row
// lock, so concurrent units touching the same account are serialized.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

const maxTxRetries = 3

// Atomically runs fn inside one SERIALIZABLE transaction, retrying on
// serialization failure. Domain errors returned by fn are not retried.
func (p *Postgres) Atomically(ctx context.Context, fn func(ctx context.Context, tx wallet.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err = p.runOnce(ctx, fn)
		if err == nil {
			return nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "40001" {
			time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
			continue
		}
		return err
	}
	return &wallet.StoreError{Op: "atomic unit (serialization retries exhausted)", Err: err}
}

func (p *Postgres) runOnce(ctx context.Context, fn func(ctx context.Context, tx wallet.Tx) error) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return &wallet.StoreError{Op: "acquire connection", Err: err}
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return &wallet.StoreError{Op: "begin", Err: err}
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return &wallet.StoreError{Op: "commit", Err: err}
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) CreateAccount(ctx context.Context, initialBalance float64) (*wallet.Account, error) {
	now := time.Now().UTC()
	a := &wallet.Account{Balance: initialBalance, CreatedAt: now, UpdatedAt: now}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO accounts (balance, total_deposited, total_withdrawn, total_bonus, created_at, updated_at)
		VALUES ($1, 0, 0, 0, $2, $3)
		RETURNING id`,
		initialBalance, now, now).Scan(&a.ID)
	if err != nil {
		return nil, &wallet.StoreError{Op: "insert account", Err: err}
	}
	return a, nil
}

func (t *pgTx) GetAccount(ctx context.Context, id int64) (*wallet.Account, error) {
	var a wallet.Account
	err := t.tx.QueryRow(ctx, `
		SELECT id, balance, total_deposited, total_withdrawn, total_bonus, created_at, updated_at
		FROM accounts WHERE id = $1
		FOR UPDATE`, id).Scan(
		&a.ID, &a.Balance, &a.TotalDeposited, &a.TotalWithdrawn, &a.TotalBonus, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &wallet.NotFoundError{Entity: "account", ID: id}
		}
		return nil, &wallet.StoreError{Op: "get account", Err: err}
	}
	return &a, nil
}

func (t *pgTx) UpdateAccountBalances(ctx context.Context, a *wallet.Account) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE accounts
		SET balance = $1, total_deposited = $2, total_withdrawn = $3, total_bonus = $4, updated_at = $5
		WHERE id = $6`,
		a.Balance, a.TotalDeposited, a.TotalWithdrawn, a.TotalBonus, a.UpdatedAt, a.ID)
	if err != nil {
		return &wallet.StoreError{Op: "update account", Err: err}
	}
	return nil
}

func (t *pgTx) InsertTransaction(ctx context.Context, txn *wallet.Transaction) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO transactions (account_id, kind, amount, channel_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		txn.AccountID, txn.Kind, txn.Amount, txn.ChannelID, txn.Status, txn.CreatedAt, txn.UpdatedAt).Scan(&txn.ID)
	if err != nil {
		return &wallet.StoreError{Op: "insert transaction", Err: err}
	}
	return nil
}

func (t *pgTx) GetTransaction(ctx context.Context, id int64) (*wallet.Transaction, error) {
	var txn wallet.Transaction
	err := t.tx.QueryRow(ctx, `
		SELECT id, account_id, kind, amount, channel_id, status, created_at, updated_at
		FROM transactions WHERE id = $1`, id).Scan(
		&txn.ID, &txn.AccountID, &txn.Kind, &txn.Amount, &txn.ChannelID,
		&txn.Status, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &wallet.NotFoundError{Entity: "transaction", ID: id}
		}
		return nil, &wallet.StoreError{Op: "get transaction", Err: err}
	}
	return &txn, nil
}

func (t *pgTx) LatestPendingDeposit(ctx context.Context, accountID int64) (*wallet.Transaction, error) {
	var txn wallet.Transaction
	err := t.tx.QueryRow(ctx, `
		SELECT id, account_id, kind, amount, channel_id, status, created_at, updated_at
		FROM transactions
		WHERE account_id = $1 AND kind = $2 AND status = $3
		ORDER BY id DESC LIMIT 1`,
		accountID, wallet.KindDeposit, wallet.StatusPending).Scan(
		&txn.ID, &txn.AccountID, &txn.Kind, &txn.Amount, &txn.ChannelID,
		&txn.Status, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, &wallet.StoreError{Op: "latest pending deposit", Err: err}
	}
	return &txn, nil
}

func (t *pgTx) SetTransactionStatus(ctx context.Context, id int64, status wallet.Status, updatedAt time.Time) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE transactions SET status = $1, updated_at = $2 WHERE id = $3`,
		status, updatedAt, id)
	if err != nil {
		return &wallet.StoreError{Op: "set transaction status", Err: err}
	}
	return nil
}

func (t *pgTx) ListTransactions(ctx context.Context, accountID int64, limit int) ([]wallet.Transaction, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, account_id, kind, amount, channel_id, status, created_at, updated_at
		FROM transactions
		WHERE account_id = $1 ORDER BY id DESC LIMIT $2`,
		accountID, limit)
	if err != nil {
		return nil, &wallet.StoreError{Op: "list transactions", Err: err}
	}
	defer rows.Close()

	var out []wallet.Transaction
	for rows.Next() {
		var txn wallet.Transaction
		if err := rows.Scan(&txn.ID, &txn.AccountID, &txn.Kind, &txn.Amount, &txn.ChannelID,
			&txn.Status, &txn.CreatedAt, &txn.UpdatedAt); err != nil {
			return nil, &wallet.StoreError{Op: "scan transaction", Err: err}
		}
		out = append(out, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, &wallet.StoreError{Op: "list transactions", Err: err}
	}
	return out, nil
}

func (t *pgTx) InsertWithdrawal(ctx context.Context, w *wallet.WithdrawalRequest) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO withdrawals (account_id, transaction_id, requested_amount, status, channel_ref, reviewer_id, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		w.AccountID, w.TransactionID, w.RequestedAmount, w.Status, w.ChannelRef,
		w.ReviewerID, w.Reason, w.CreatedAt, w.UpdatedAt).Scan(&w.ID)
	if err != nil {
		return &wallet.StoreError{Op: "insert withdrawal", Err: err}
	}
	return nil
}

func (t *pgTx) GetWithdrawal(ctx context.Context, id int64) (*wallet.WithdrawalRequest, error) {
	var w wallet.WithdrawalRequest
	err := t.tx.QueryRow(ctx, `
		SELECT id, account_id, transaction_id, requested_amount, status, channel_ref, reviewer_id, reason, created_at, updated_at
		FROM withdrawals WHERE id = $1
		FOR UPDATE`, id).Scan(
		&w.ID, &w.AccountID, &w.TransactionID, &w.RequestedAmount, &w.Status,
		&w.ChannelRef, &w.ReviewerID, &w.Reason, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &wallet.NotFoundError{Entity: "withdrawal", ID: id}
		}
		return nil, &wallet.StoreError{Op: "get withdrawal", Err: err}
	}
	return &w, nil
}

func (t *pgTx) UpdateWithdrawal(ctx context.Context, w *wallet.WithdrawalRequest) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE withdrawals
		SET status = $1, reviewer_id = $2, reason = $3, updated_at = $4
		WHERE id = $5`,
		w.Status, w.ReviewerID, w.Reason, w.UpdatedAt, w.ID)
	if err != nil {
		return &wallet.StoreError{Op: "update withdrawal", Err: err}
	}
	return nil
}

func (t *pgTx) ListWithdrawals(ctx context.Context, accountID int64, limit int) ([]wallet.WithdrawalRequest, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, account_id, transaction_id, requested_amount, status, channel_ref, reviewer_id, reason, created_at, updated_at
		FROM withdrawals
		WHERE account_id = $1 ORDER BY id DESC LIMIT $2`,
		accountID, limit)
	if err != nil {
		return nil, &wallet.StoreError{Op: "list withdrawals", Err: err}
	}
	defer rows.Close()

	var out []wallet.WithdrawalRequest
	for rows.Next() {
		var w wallet.WithdrawalRequest
		if err := rows.Scan(&w.ID, &w.AccountID, &w.TransactionID, &w.RequestedAmount, &w.Status,
			&w.ChannelRef, &w.ReviewerID, &w.Reason, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, &wallet.StoreError{Op: "scan withdrawal", Err: err}
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, &wallet.StoreError{Op: "list withdrawals", Err: err}
	}
	return out, nil
}

func (t *pgTx) scanChannelRow(row pgx.Row) (*wallet.Channel, error) {
	var ch wallet.Channel
	err := row.Scan(&ch.ID, &ch.ExternalRef, &ch.DailyLimit, &ch.TodayCount,
		&ch.RotateAfter, &ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (t *pgTx) FirstEligibleChannel(ctx context.Context) (*wallet.Channel, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT id, external_ref, daily_limit, today_count, rotate_after, created_at, updated_at
		FROM channels
		WHERE today_count < rotate_after ORDER BY id ASC LIMIT 1`)
	ch, err := t.scanChannelRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, &wallet.StoreError{Op: "first eligible channel", Err: err}
	}
	return ch, nil
}

func (t *pgTx) FirstChannel(ctx context.Context) (*wallet.Channel, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT id, external_ref, daily_limit, today_count, rotate_after, created_at, updated_at
		FROM channels ORDER BY id ASC LIMIT 1`)
	ch, err := t.scanChannelRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, &wallet.StoreError{Op: "first channel", Err: err}
	}
	return ch, nil
}

func (t *pgTx) CountChannels(ctx context.Context) (int64, error) {
	var n int64
	if err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM channels`).Scan(&n); err != nil {
		return 0, &wallet.StoreError{Op: "count channels", Err: err}
	}
	return n, nil
}

func (t *pgTx) ResetChannelCounters(ctx context.Context) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE channels SET today_count = 0, updated_at = $1`, time.Now().UTC())
	if err != nil {
		return &wallet.StoreError{Op: "reset channel counters", Err: err}
	}
	return nil
}

func (t *pgTx) IncrementChannelUsage(ctx context.Context, id int64) (*wallet.Channel, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE channels SET today_count = today_count + 1, updated_at = $1
		WHERE id = $2
		RETURNING id, external_ref, daily_limit, today_count, rotate_after, created_at, updated_at`,
		time.Now().UTC(), id)
	ch, err := t.scanChannelRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &wallet.NotFoundError{Entity: "channel", ID: id}
		}
		return nil, &wallet.StoreError{Op: "increment channel usage", Err: err}
	}
	return ch, nil
}
