package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"example.com/fitrewards/internal/domain"
	"example.com/fitrewards/internal/ledger"
)

func (t *pgTx) LockWallet(ctx context.Context, userID string) (ledger.Wallet, error) {
	if _, err := t.tx.Exec(ctx,
		`INSERT INTO wallets (wallet_id, user_id) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`,
		uuid.NewString(), userID,
	); err != nil {
		return ledger.Wallet{}, err
	}

	var (
		w       ledger.Wallet
		balance string
	)
	err := t.tx.QueryRow(ctx,
		`SELECT wallet_id, user_id, balance::text, created_at, updated_at
           FROM wallets WHERE user_id = $1 FOR UPDATE`, userID,
	).Scan(&w.ID, &w.UserID, &balance, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return ledger.Wallet{}, err
	}
	if w.Balance, err = parseAmount(balance); err != nil {
		return ledger.Wallet{}, err
	}
	w.CreatedAt, w.UpdatedAt = utc(w.CreatedAt), utc(w.UpdatedAt)
	return w, nil
}

func (t *pgTx) SetBalance(ctx context.Context, walletID string, balance decimal.Decimal, at time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE wallets SET balance = $2::numeric, updated_at = $3 WHERE wallet_id = $1`,
		walletID, balance.String(), at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return pgx.ErrNoRows
	}
	return nil
}

func (t *pgTx) InsertTransaction(ctx context.Context, e ledger.Transaction) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO wallet_transactions (transaction_id, wallet_id, direction, amount, memo, reference, created_at)
         VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)`,
		e.ID, e.WalletID, string(e.Direction), e.Amount.String(), e.Memo, e.Reference, e.CreatedAt,
	)
	return err
}

// EnsureWallet implements ledger.Reader.
func (s *Store) EnsureWallet(ctx context.Context, userID string) (ledger.Wallet, error) {
	var wallet ledger.Wallet
	err := s.WithinTx(ctx, "", func(tx domain.Tx) error {
		var err error
		wallet, err = tx.LockWallet(ctx, userID)
		return err
	})
	return wallet, err
}

// RecentTransactions implements ledger.Reader.
func (s *Store) RecentTransactions(ctx context.Context, walletID string, limit int) ([]ledger.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT transaction_id, wallet_id, direction, amount::text, memo, reference, created_at
           FROM wallet_transactions
          WHERE wallet_id = $1
          ORDER BY created_at DESC, transaction_id DESC
          LIMIT $2`,
		walletID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ledger.Transaction, 0, limit)
	for rows.Next() {
		var (
			e         ledger.Transaction
			direction string
			amount    string
		)
		if err := rows.Scan(&e.ID, &e.WalletID, &direction, &amount, &e.Memo, &e.Reference, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.Amount, err = parseAmount(amount); err != nil {
			return nil, err
		}
		e.Direction = ledger.Direction(direction)
		e.CreatedAt = utc(e.CreatedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
