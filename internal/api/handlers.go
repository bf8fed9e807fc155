// Package api exposes the reward engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"example.com/fitrewards/internal/auth"
	"example.com/fitrewards/internal/domain"
	"example.com/fitrewards/internal/ingest"
	"example.com/fitrewards/internal/ledger"
	"example.com/fitrewards/internal/provider"
	"example.com/fitrewards/internal/rewards"
)

// Users resolves wallets to users.
type Users interface {
	UserByWallet(ctx context.Context, wallet string) (*domain.User, error)
	EnsureUser(ctx context.Context, wallet string) (domain.User, error)
}

// Handler coordinates HTTP requests with the reward services.
type Handler struct {
	claims     *domain.ClaimService
	activities *domain.ActivityService
	wallets    *ledger.Service
	users      Users
	syncs      ingest.Scheduler
	logger     *slog.Logger
}

// Deps bundles the services a Handler serves. Syncs may be nil when no provider is configured.
type Deps struct {
	Claims     *domain.ClaimService
	Activities *domain.ActivityService
	Wallets    *ledger.Service
	Users      Users
	Syncs      ingest.Scheduler
	Logger     *slog.Logger
}

// NewHandler builds a Handler.
func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		claims:     d.Claims,
		activities: d.Activities,
		wallets:    d.Wallets,
		users:      d.Users,
		syncs:      d.Syncs,
		logger:     logger,
	}
}

// RegisterRoutes wires endpoints to the mux, each guarded by its scope.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", healthz)

	mux.HandleFunc("GET /v1/claims/preview", auth.RequireScope(auth.ScopeRewardsRead, h.preview))
	mux.HandleFunc("POST /v1/claims/prepare", auth.RequireScope(auth.ScopeRewardsClaim, h.prepare))
	mux.HandleFunc("POST /v1/claims/confirm-inapp", auth.RequireScope(auth.ScopeRewardsClaim, h.confirmInApp))
	mux.HandleFunc("POST /v1/claims/confirm-onchain", auth.RequireScope(auth.ScopeRewardsClaim, h.confirmOnchain))
	mux.HandleFunc("POST /v1/claims/sign", auth.RequireScope(auth.ScopeRewardsClaim, h.sign))

	mux.HandleFunc("GET /v1/wallet/balance", auth.RequireScope(auth.ScopeRewardsRead, h.walletBalance))
	mux.HandleFunc("GET /v1/wallet/transactions", auth.RequireScope(auth.ScopeRewardsRead, h.walletTransactions))

	mux.HandleFunc("GET /v1/activities", auth.RequireScope(auth.ScopeRewardsRead, h.listActivities))
	mux.HandleFunc("POST /v1/activities", auth.RequireScope(auth.ScopeActivitiesWrite, h.createActivity))
	mux.HandleFunc("POST /v1/providers/strava/sync", auth.RequireScope(auth.ScopeActivitiesWrite, h.syncStrava))
}

// Router returns the routes behind bearer authentication.
func (h *Handler) Router(mw auth.Middleware) http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mw.Wrap(mux)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// walletFor validates the wallet and checks the token may act for it.
func (h *Handler) walletFor(w http.ResponseWriter, r *http.Request, raw string) (string, bool) {
	wallet, err := domain.NormalizeWallet(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return "", false
	}
	if claims, ok := auth.FromContext(r.Context()); ok && !claims.AllowsWallet(wallet) {
		writeError(w, http.StatusForbidden, "forbidden", "token is not bound to this wallet")
		return "", false
	}
	return wallet, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return false
	}
	return true
}

// writeDomainError maps the engine's error taxonomy onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidWallet),
		errors.Is(err, domain.ErrClaimIDRequired),
		errors.Is(err, domain.ErrInvalidTxRef),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrInvalidActivity):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrClaimNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrClaimNotPending),
		errors.Is(err, domain.ErrActivityLocked),
		errors.Is(err, domain.ErrPendingClaimExists),
		errors.Is(err, provider.ErrNotConnected):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "not_configured", err.Error())
	case domain.IsRetryable(err):
		h.logger.Warn("dependency failure", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"type":      "unavailable",
			"detail":    err.Error(),
			"retryable": true,
		})
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// fit renders an amount with the ledger's fixed precision.
func fit(d decimal.Decimal) string {
	return d.StringFixed(rewards.AmountPlaces)
}
