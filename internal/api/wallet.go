package api

import (
	"net/http"
	"time"

	"example.com/fitrewards/internal/domain"
	"example.com/fitrewards/internal/ledger"
)

// WalletView is the off-chain balance of a user.
type WalletView struct {
	Wallet    string    `json:"wallet"`
	Balance   string    `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TransactionView is one ledger entry.
type TransactionView struct {
	ID        string    `json:"id"`
	Direction string    `json:"direction"`
	Amount    string    `json:"amount"`
	Memo      string    `json:"memo,omitempty"`
	Reference string    `json:"reference,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TransactionsResponse is returned by GET /v1/wallet/transactions.
type TransactionsResponse struct {
	WalletView
	Transactions []TransactionView `json:"transactions"`
}

func (h *Handler) walletBalance(w http.ResponseWriter, r *http.Request) {
	wallet, ok := h.walletFor(w, r, r.URL.Query().Get("wallet"))
	if !ok {
		return
	}
	user, err := h.users.EnsureUser(r.Context(), wallet)
	if err != nil {
		h.writeDomainError(w, r, domain.Dependency("ensure user", err))
		return
	}
	balance, err := h.wallets.Balance(r.Context(), user.ID)
	if err != nil {
		h.writeDomainError(w, r, domain.Dependency("load balance", err))
		return
	}
	writeJSON(w, http.StatusOK, toWalletView(wallet, balance))
}

func (h *Handler) walletTransactions(w http.ResponseWriter, r *http.Request) {
	wallet, ok := h.walletFor(w, r, r.URL.Query().Get("wallet"))
	if !ok {
		return
	}
	user, err := h.users.EnsureUser(r.Context(), wallet)
	if err != nil {
		h.writeDomainError(w, r, domain.Dependency("ensure user", err))
		return
	}
	balance, txs, err := h.wallets.Transactions(r.Context(), user.ID, ledger.DefaultHistoryLimit)
	if err != nil {
		h.writeDomainError(w, r, domain.Dependency("load transactions", err))
		return
	}

	resp := TransactionsResponse{
		WalletView:   toWalletView(wallet, balance),
		Transactions: make([]TransactionView, 0, len(txs)),
	}
	for _, tx := range txs {
		resp.Transactions = append(resp.Transactions, TransactionView{
			ID:        tx.ID,
			Direction: string(tx.Direction),
			Amount:    fit(tx.Amount),
			Memo:      tx.Memo,
			Reference: tx.Reference,
			CreatedAt: tx.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func toWalletView(address string, w ledger.Wallet) WalletView {
	return WalletView{Wallet: address, Balance: fit(w.Balance), UpdatedAt: w.UpdatedAt}
}
