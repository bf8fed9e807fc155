// Package ledger applies settlements to the off-chain wallet balance. Every
// balance change is paired with an append-only transaction row in the same
// store transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Direction of a wallet transaction.
type Direction string

const (
	Credit Direction = "CREDIT"
	Debit  Direction = "DEBIT"
)

var (
	// ErrInvalidAmount is returned for zero or negative entries.
	ErrInvalidAmount = errors.New("ledger amount must be positive")
	// ErrInsufficientBalance is returned when a debit would drive the balance below zero.
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
)

// Wallet is a user's off-chain FIT balance.
type Wallet struct {
	ID        string
	UserID    string
	Balance   decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction is an immutable wallet entry.
type Transaction struct {
	ID        string
	WalletID  string
	Direction Direction
	Amount    decimal.Decimal
	Memo      string
	Reference string
	CreatedAt time.Time
}

// SignedAmount returns the entry's effect on the balance.
func (t Transaction) SignedAmount() decimal.Decimal {
	if t.Direction == Debit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Sum folds transactions into the balance they imply.
func Sum(txs []Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, t := range txs {
		total = total.Add(t.SignedAmount())
	}
	return total
}

// Tx is the part of a store transaction settlement runs against.
type Tx interface {
	// LockWallet returns the user's wallet, creating it with a zero balance
	// if absent, and holds a row lock until the transaction ends.
	LockWallet(ctx context.Context, userID string) (Wallet, error)
	SetBalance(ctx context.Context, walletID string, balance decimal.Decimal, at time.Time) error
	InsertTransaction(ctx context.Context, entry Transaction) error
}

// Entry is a balance change request.
type Entry struct {
	ID        string
	UserID    string
	Direction Direction
	Amount    decimal.Decimal
	Memo      string
	Reference string
	At        time.Time
}

// Apply locks the wallet, moves its balance and appends the matching
// transaction. Callers own the surrounding transaction; any error must abort it.
func Apply(ctx context.Context, tx Tx, e Entry) (Wallet, Transaction, error) {
	if !e.Amount.IsPositive() {
		return Wallet{}, Transaction{}, ErrInvalidAmount
	}
	if e.Direction != Credit && e.Direction != Debit {
		return Wallet{}, Transaction{}, fmt.Errorf("ledger: unknown direction %q", e.Direction)
	}

	wallet, err := tx.LockWallet(ctx, e.UserID)
	if err != nil {
		return Wallet{}, Transaction{}, fmt.Errorf("lock wallet: %w", err)
	}

	entry := Transaction{
		ID:        e.ID,
		WalletID:  wallet.ID,
		Direction: e.Direction,
		Amount:    e.Amount,
		Memo:      e.Memo,
		Reference: e.Reference,
		CreatedAt: e.At.UTC(),
	}

	balance := wallet.Balance.Add(entry.SignedAmount())
	if balance.IsNegative() {
		return Wallet{}, Transaction{}, ErrInsufficientBalance
	}
	if err := tx.SetBalance(ctx, wallet.ID, balance, entry.CreatedAt); err != nil {
		return Wallet{}, Transaction{}, fmt.Errorf("update balance: %w", err)
	}
	if err := tx.InsertTransaction(ctx, entry); err != nil {
		return Wallet{}, Transaction{}, fmt.Errorf("insert wallet transaction: %w", err)
	}

	wallet.Balance = balance
	wallet.UpdatedAt = entry.CreatedAt
	return wallet, entry, nil
}
