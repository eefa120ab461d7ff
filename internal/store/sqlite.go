package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/example/wallet-infra/internal/wallet"
)

// SQLite is the file-backed (or in-memory) Store used for development and
// tests. The connection pool is capped at one connection, which makes every
// atomic unit a single-writer transaction; combined with SQLite's
// transactional semantics this satisfies the per-account serialization the
// engine requires.
type SQLite struct {
	db *sql.DB
}

// Seed describes the default payment channel provisioned at bootstrap when
// the channel table is empty.
type Seed struct {
	ChannelRef  string
	DailyLimit  int
	RotateAfter int
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	balance REAL NOT NULL DEFAULT 0,
	total_deposited REAL NOT NULL DEFAULT 0,
	total_withdrawn REAL NOT NULL DEFAULT 0,
	total_bonus REAL NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id INTEGER NOT NULL REFERENCES accounts(id),
	kind TEXT NOT NULL,
	amount REAL NOT NULL,
	channel_id INTEGER,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS withdrawals (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id INTEGER NOT NULL REFERENCES accounts(id),
	transaction_id INTEGER NOT NULL REFERENCES transactions(id),
	requested_amount REAL NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	channel_ref TEXT NOT NULL,
	reviewer_id INTEGER,
	reason TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS channels (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	external_ref TEXT NOT NULL,
	daily_limit INTEGER NOT NULL DEFAULT 20,
	today_count INTEGER NOT NULL DEFAULT 0,
	rotate_after INTEGER NOT NULL DEFAULT 10,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account_id, id);
CREATE INDEX IF NOT EXISTS idx_withdrawals_account ON withdrawals(account_id, id);
`

// OpenSQLite opens (creating if necessary) a SQLite store, bootstraps the
// schema idempotently, and seeds the default channel when none exists.
func OpenSQLite(dsn string, seed Seed) (*SQLite, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.seedChannels(seed); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) seedChannels(seed Seed) error {
	if seed.ChannelRef == "" {
		return nil
	}

	var n int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM channels").Scan(&n); err != nil {
		return fmt.Errorf("count channels: %w", err)
	}
	if n > 0 {
		return nil
	}

	now := time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO channels (external_ref, daily_limit, today_count, rotate_after, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?, ?)`,
		seed.ChannelRef, seed.DailyLimit, seed.RotateAfter, now, now)
	if err != nil {
		return fmt.Errorf("seed default channel: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Atomically runs fn inside one SQLite transaction. Any error rolls the
// whole unit back; domain errors pass through unchanged.
func (s *SQLite) Atomically(ctx context.Context, fn func(ctx context.Context, tx wallet.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &wallet.StoreError{Op: "begin", Err: err}
	}

	if err := fn(ctx, &sqliteTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return &wallet.StoreError{Op: "commit", Err: err}
	}
	return nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) CreateAccount(ctx context.Context, initialBalance float64) (*wallet.Account, error) {
	now := time.Now().UTC()
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO accounts (balance, total_deposited, total_withdrawn, total_bonus, created_at, updated_at)
		VALUES (?, 0, 0, 0, ?, ?)`,
		initialBalance, now, now)
	if err != nil {
		return nil, &wallet.StoreError{Op: "insert account", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, &wallet.StoreError{Op: "insert account", Err: err}
	}
	return &wallet.Account{ID: id, Balance: initialBalance, CreatedAt: now, UpdatedAt: now}, nil
}

func (t *sqliteTx) GetAccount(ctx context.Context, id int64) (*wallet.Account, error) {
	var a wallet.Account
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, balance, total_deposited, total_withdrawn, total_bonus, created_at, updated_at
		FROM accounts WHERE id = ?`, id).Scan(
		&a.ID, &a.Balance, &a.TotalDeposited, &a.TotalWithdrawn, &a.TotalBonus, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &wallet.NotFoundError{Entity: "account", ID: id}
		}
		return nil, &wallet.StoreError{Op: "get account", Err: err}
	}
	return &a, nil
}

func (t *sqliteTx) UpdateAccountBalances(ctx context.Context, a *wallet.Account) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = ?, total_deposited = ?, total_withdrawn = ?, total_bonus = ?, updated_at = ?
		WHERE id = ?`,
		a.Balance, a.TotalDeposited, a.TotalWithdrawn, a.TotalBonus, a.UpdatedAt, a.ID)
	if err != nil {
		return &wallet.StoreError{Op: "update account", Err: err}
	}
	return nil
}

func (t *sqliteTx) InsertTransaction(ctx context.Context, txn *wallet.Transaction) error {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO transactions (account_id, kind, amount, channel_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		txn.AccountID, txn.Kind, txn.Amount, txn.ChannelID, txn.Status, txn.CreatedAt, txn.UpdatedAt)
	if err != nil {
		return &wallet.StoreError{Op: "insert transaction", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return &wallet.StoreError{Op: "insert transaction", Err: err}
	}
	txn.ID = id
	return nil
}

const transactionColumns = `id, account_id, kind, amount, channel_id, status, created_at, updated_at`

func (t *sqliteTx) scanTransaction(row *sql.Row) (*wallet.Transaction, error) {
	var txn wallet.Transaction
	var channelID sql.NullInt64
	err := row.Scan(&txn.ID, &txn.AccountID, &txn.Kind, &txn.Amount, &channelID,
		&txn.Status, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if channelID.Valid {
		txn.ChannelID = &channelID.Int64
	}
	return &txn, nil
}

func (t *sqliteTx) GetTransaction(ctx context.Context, id int64) (*wallet.Transaction, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	txn, err := t.scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &wallet.NotFoundError{Entity: "transaction", ID: id}
		}
		return nil, &wallet.StoreError{Op: "get transaction", Err: err}
	}
	return txn, nil
}

func (t *sqliteTx) LatestPendingDeposit(ctx context.Context, accountID int64) (*wallet.Transaction, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE account_id = ? AND kind = ? AND status = ?
		ORDER BY id DESC LIMIT 1`,
		accountID, wallet.KindDeposit, wallet.StatusPending)
	txn, err := t.scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, &wallet.StoreError{Op: "latest pending deposit", Err: err}
	}
	return txn, nil
}

func (t *sqliteTx) SetTransactionStatus(ctx context.Context, id int64, status wallet.Status, updatedAt time.Time) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE transactions SET status = ?, updated_at = ? WHERE id = ?`,
		status, updatedAt, id)
	if err != nil {
		return &wallet.StoreError{Op: "set transaction status", Err: err}
	}
	return nil
}

func (t *sqliteTx) ListTransactions(ctx context.Context, accountID int64, limit int) ([]wallet.Transaction, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE account_id = ? ORDER BY id DESC LIMIT ?`,
		accountID, limit)
	if err != nil {
		return nil, &wallet.StoreError{Op: "list transactions", Err: err}
	}
	defer rows.Close()

	var out []wallet.Transaction
	for rows.Next() {
		var txn wallet.Transaction
		var channelID sql.NullInt64
		if err := rows.Scan(&txn.ID, &txn.AccountID, &txn.Kind, &txn.Amount, &channelID,
			&txn.Status, &txn.CreatedAt, &txn.UpdatedAt); err != nil {
			return nil, &wallet.StoreError{Op: "scan transaction", Err: err}
		}
		if channelID.Valid {
			txn.ChannelID = &channelID.Int64
		}
		out = append(out, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, &wallet.StoreError{Op: "list transactions", Err: err}
	}
	return out, nil
}

func (t *sqliteTx) InsertWithdrawal(ctx context.Context, w *wallet.WithdrawalRequest) error {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO withdrawals (account_id, transaction_id, requested_amount, status, channel_ref, reviewer_id, reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.AccountID, w.TransactionID, w.RequestedAmount, w.Status, w.ChannelRef,
		w.ReviewerID, w.Reason, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return &wallet.StoreError{Op: "insert withdrawal", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return &wallet.StoreError{Op: "insert withdrawal", Err: err}
	}
	w.ID = id
	return nil
}

const withdrawalColumns = `id, account_id, transaction_id, requested_amount, status, channel_ref, reviewer_id, reason, created_at, updated_at`

func (t *sqliteTx) GetWithdrawal(ctx context.Context, id int64) (*wallet.WithdrawalRequest, error) {
	var w wallet.WithdrawalRequest
	var reviewerID sql.NullInt64
	err := t.tx.QueryRowContext(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = ?`, id).Scan(
		&w.ID, &w.AccountID, &w.TransactionID, &w.RequestedAmount, &w.Status,
		&w.ChannelRef, &reviewerID, &w.Reason, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &wallet.NotFoundError{Entity: "withdrawal", ID: id}
		}
		return nil, &wallet.StoreError{Op: "get withdrawal", Err: err}
	}
	if reviewerID.Valid {
		w.ReviewerID = &reviewerID.Int64
	}
	return &w, nil
}

func (t *sqliteTx) UpdateWithdrawal(ctx context.Context, w *wallet.WithdrawalRequest) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE withdrawals
		SET status = ?, reviewer_id = ?, reason = ?, updated_at = ?
		WHERE id = ?`,
		w.Status, w.ReviewerID, w.Reason, w.UpdatedAt, w.ID)
	if err != nil {
		return &wallet.StoreError{Op: "update withdrawal", Err: err}
	}
	return nil
}

func (t *sqliteTx) ListWithdrawals(ctx context.Context, accountID int64, limit int) ([]wallet.WithdrawalRequest, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawals
		WHERE account_id = ? ORDER BY id DESC LIMIT ?`,
		accountID, limit)
	if err != nil {
		return nil, &wallet.StoreError{Op: "list withdrawals", Err: err}
	}
	defer rows.Close()

	var out []wallet.WithdrawalRequest
	for rows.Next() {
		var w wallet.WithdrawalRequest
		var reviewerID sql.NullInt64
		if err := rows.Scan(&w.ID, &w.AccountID, &w.TransactionID, &w.RequestedAmount, &w.Status,
			&w.ChannelRef, &reviewerID, &w.Reason, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, &wallet.StoreError{Op: "scan withdrawal", Err: err}
		}
		if reviewerID.Valid {
			w.ReviewerID = &reviewerID.Int64
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, &wallet.StoreError{Op: "list withdrawals", Err: err}
	}
	return out, nil
}

const channelColumns = `id, external_ref, daily_limit, today_count, rotate_after, created_at, updated_at`

func (t *sqliteTx) scanChannel(row *sql.Row) (*wallet.Channel, error) {
	var ch wallet.Channel
	err := row.Scan(&ch.ID, &ch.ExternalRef, &ch.DailyLimit, &ch.TodayCount,
		&ch.RotateAfter, &ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (t *sqliteTx) FirstEligibleChannel(ctx context.Context) (*wallet.Channel, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+channelColumns+` FROM channels
		WHERE today_count < rotate_after ORDER BY id ASC LIMIT 1`)
	ch, err := t.scanChannel(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, &wallet.StoreError{Op: "first eligible channel", Err: err}
	}
	return ch, nil
}

func (t *sqliteTx) FirstChannel(ctx context.Context) (*wallet.Channel, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+channelColumns+` FROM channels ORDER BY id ASC LIMIT 1`)
	ch, err := t.scanChannel(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, &wallet.StoreError{Op: "first channel", Err: err}
	}
	return ch, nil
}

func (t *sqliteTx) CountChannels(ctx context.Context) (int64, error) {
	var n int64
	if err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM channels`).Scan(&n); err != nil {
		return 0, &wallet.StoreError{Op: "count channels", Err: err}
	}
	return n, nil
}

func (t *sqliteTx) ResetChannelCounters(ctx context.Context) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE channels SET today_count = 0, updated_at = ?`, time.Now().UTC())
	if err != nil {
		return &wallet.StoreError{Op: "reset channel counters", Err: err}
	}
	return nil
}

func (t *sqliteTx) IncrementChannelUsage(ctx context.Context, id int64) (*wallet.Channel, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE channels SET today_count = today_count + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return nil, &wallet.StoreError{Op: "increment channel usage", Err: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, &wallet.NotFoundError{Entity: "channel", ID: id}
	}

	row := t.tx.QueryRowContext(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE id = ?`, id)
	ch, err := t.scanChannel(row)
	if err != nil {
		return nil, &wallet.StoreError{Op: "increment channel usage", Err: err}
	}
	return ch, nil
}
