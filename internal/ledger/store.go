// Package ledger persists points accounts and their transaction history.
// It owns the only concurrency-sensitive operation in the billing system:
// the atomic balance deduction that prevents double-spending under
// concurrent requests from the same account. Everything above this layer
// is pure computation.
package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrInsufficientPoints is returned by Debit when the account balance
// cannot cover the charge. Nothing is deducted in that case.
var ErrInsufficientPoints = errors.New("ledger: insufficient points")

// ErrAccountNotFound is returned when an operation references an account
// that has never been credited.
var ErrAccountNotFound = errors.New("ledger: account not found")

// Transaction kinds recorded in the history.
const (
	KindCharge = "charge"
	KindCredit = "credit"
)

// Transaction is one ledger entry: a signed points delta and the balance
// it left behind.
type Transaction struct {
	ID           string    `json:"id"`
	AccountID    string    `json:"account_id"`
	Delta        int64     `json:"delta"`
	BalanceAfter int64     `json:"balance_after"`
	Kind         string    `json:"kind"`
	Reference    string    `json:"reference,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store is the account-store contract the billing engine charges against.
type Store interface {
	// Debit atomically deducts points from the account, returning the new
	// balance. Fails with ErrInsufficientPoints without deducting when the
	// balance is too low, and ErrAccountNotFound for unknown accounts.
	Debit(ctx context.Context, accountID string, points int, reference string) (int64, error)
	// Credit adds points to the account, creating it on first credit, and
	// returns the new balance.
	Credit(ctx context.Context, accountID string, points int, reference string) (int64, error)
	// Balance returns the current balance for the account.
	Balance(ctx context.Context, accountID string) (int64, error)
	// History returns the most recent transactions, newest first.
	History(ctx context.Context, accountID string, limit int) ([]Transaction, error)
}
