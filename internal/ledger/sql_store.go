package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	// Register Postgres SQL driver.
	_ "github.com/lib/pq"
	// Register SQLite SQL driver.
	_ "modernc.org/sqlite"
)

type sqlDialect string

const (
	dialectSQLite   sqlDialect = "sqlite"
	dialectPostgres sqlDialect = "postgres"
)

// SQLStore implements Store on SQLite or Postgres. SQLite is the default
// single-instance backend; Postgres is for multi-instance deployments.
type SQLStore struct {
	db      *sql.DB
	dialect sqlDialect
}

// NewSQLiteStore opens a SQLite-backed ledger.
// dsn can be a file path (e.g. /var/lib/veribill/ledger.db) or SQLite DSN.
func NewSQLiteStore(dsn string) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "veribill-ledger.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite ledger: %w", err)
	}
	s := &SQLStore{db: db, dialect: dialectSQLite}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore opens a Postgres-backed ledger.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres ledger: %w", err)
	}
	s := &SQLStore{db: db, dialect: dialectPostgres}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("ping %s ledger: %w", s.dialect, err)
	}

	var ddl string
	switch s.dialect {
	case dialectPostgres:
		ddl = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	balance BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL REFERENCES accounts(id),
	delta BIGINT NOT NULL,
	balance_after BIGINT NOT NULL,
	kind TEXT NOT NULL,
	reference TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account_id, created_at);`
	default:
		ddl = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	balance INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL REFERENCES accounts(id),
	delta INTEGER NOT NULL,
	balance_after INTEGER NOT NULL,
	kind TEXT NOT NULL,
	reference TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account_id, created_at);`
	}

	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize %s ledger schema: %w", s.dialect, err)
	}
	return nil
}

// Debit deducts points inside a single transaction. The guarded UPDATE
// (balance >= points) is what makes concurrent charges against the same
// account safe on both backends.
func (s *SQLStore) Debit(ctx context.Context, accountID string, points int, reference string) (int64, error) {
	if points < 0 {
		return 0, fmt.Errorf("debit points must be non-negative, got %d", points)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin debit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	q := s.bind(`UPDATE accounts SET balance = balance - ?, updated_at = ? WHERE id = ? AND balance >= ?`)
	res, err := tx.ExecContext(ctx, q, points, now, accountID, points)
	if err != nil {
		return 0, fmt.Errorf("debit account: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		// Distinguish a missing account from an insufficient balance.
		var exists int
		check := s.bind(`SELECT COUNT(1) FROM accounts WHERE id = ?`)
		if err := tx.QueryRowContext(ctx, check, accountID).Scan(&exists); err != nil {
			return 0, fmt.Errorf("debit account: %w", err)
		}
		if exists == 0 {
			return 0, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
		}
		return 0, ErrInsufficientPoints
	}

	balance, err := s.recordTx(ctx, tx, accountID, -int64(points), KindCharge, reference, now)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit debit: %w", err)
	}
	return balance, nil
}

// Credit adds points, creating the account on first use.
func (s *SQLStore) Credit(ctx context.Context, accountID string, points int, reference string) (int64, error) {
	if points < 0 {
		return 0, fmt.Errorf("credit points must be non-negative, got %d", points)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin credit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	insert := s.bind(`INSERT INTO accounts(id, balance, created_at, updated_at) VALUES(?, 0, ?, ?) ON CONFLICT (id) DO NOTHING`)
	if _, err := tx.ExecContext(ctx, insert, accountID, now, now); err != nil {
		return 0, fmt.Errorf("ensure account: %w", err)
	}

	update := s.bind(`UPDATE accounts SET balance = balance + ?, updated_at = ? WHERE id = ?`)
	if _, err := tx.ExecContext(ctx, update, points, now, accountID); err != nil {
		return 0, fmt.Errorf("credit account: %w", err)
	}

	balance, err := s.recordTx(ctx, tx, accountID, int64(points), KindCredit, reference, now)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit credit: %w", err)
	}
	return balance, nil
}

// recordTx reads the post-update balance and appends the history row.
func (s *SQLStore) recordTx(ctx context.Context, tx *sql.Tx, accountID string, delta int64, kind, reference string, now time.Time) (int64, error) {
	var balance int64
	q := s.bind(`SELECT balance FROM accounts WHERE id = ?`)
	if err := tx.QueryRowContext(ctx, q, accountID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}

	insert := s.bind(`
INSERT INTO transactions(id, account_id, delta, balance_after, kind, reference, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, insert, uuid.NewString(), accountID, delta, balance, kind, reference, now); err != nil {
		return 0, fmt.Errorf("record transaction: %w", err)
	}
	return balance, nil
}

// Balance returns the current balance for accountID.
func (s *SQLStore) Balance(ctx context.Context, accountID string) (int64, error) {
	var balance int64
	q := s.bind(`SELECT balance FROM accounts WHERE id = ?`)
	err := s.db.QueryRowContext(ctx, q, accountID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return balance, nil
}

// History returns up to limit transactions for accountID, newest first.
func (s *SQLStore) History(ctx context.Context, accountID string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	q := s.bind(`
SELECT id, account_id, delta, balance_after, kind, reference, created_at
FROM transactions
WHERE account_id = ?
ORDER BY created_at DESC, id
LIMIT ?`)

	rows, err := s.db.QueryContext(ctx, q, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]Transaction, 0, limit)
	for rows.Next() {
		var txn Transaction
		if err := rows.Scan(&txn.ID, &txn.AccountID, &txn.Delta, &txn.BalanceAfter, &txn.Kind, &txn.Reference, &txn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}

func (s *SQLStore) bind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var (
		b      strings.Builder
		argNum = 1
	)
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteString(fmt.Sprintf("$%d", argNum))
			argNum++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
