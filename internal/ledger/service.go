package ledger

import "context"

// DefaultHistoryLimit is how many transactions a wallet listing returns.
const DefaultHistoryLimit = 25

// Reader exposes wallet reads outside of settlement.
type Reader interface {
	EnsureWallet(ctx context.Context, userID string) (Wallet, error)
	RecentTransactions(ctx context.Context, walletID string, limit int) ([]Transaction, error)
}

// Service answers balance and history queries.
type Service struct {
	reader Reader
}

// NewService constructs a Service.
func NewService(reader Reader) *Service {
	return &Service{reader: reader}
}

// Balance returns the user's wallet, creating an empty one on first use.
func (s *Service) Balance(ctx context.Context, userID string) (Wallet, error) {
	return s.reader.EnsureWallet(ctx, userID)
}

// Transactions returns the newest entries first.
func (s *Service) Transactions(ctx context.Context, userID string, limit int) (Wallet, []Transaction, error) {
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}
	wallet, err := s.reader.EnsureWallet(ctx, userID)
	if err != nil {
		return Wallet{}, nil, err
	}
	txs, err := s.reader.RecentTransactions(ctx, wallet.ID, limit)
	if err != nil {
		return Wallet{}, nil, err
	}
	return wallet, txs, nil
}
