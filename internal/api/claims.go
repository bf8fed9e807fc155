package api

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"example.com/fitrewards/internal/domain"
)

// ClaimRequest is the body of prepare, confirm and sign calls.
type ClaimRequest struct {
	Wallet  string `json:"wallet"`
	ClaimID string `json:"claim_id,omitempty"`
	TxRef   string `json:"tx_ref,omitempty"`
}

// PreviewActivityView is one scored activity in a preview or history page.
type PreviewActivityView struct {
	ActivityID     string     `json:"activity_id"`
	Provider       string     `json:"provider"`
	Kind           string     `json:"kind"`
	StartedAt      time.Time  `json:"started_at"`
	DurationSec    int        `json:"duration_sec"`
	DistanceM      *float64   `json:"distance_m,omitempty"`
	AvgSpeedMps    *float64   `json:"avg_speed_mps,omitempty"`
	IntensityScore int        `json:"intensity_score"`
	GenuineScore   int        `json:"genuine_score"`
	Earned         string     `json:"earned"`
	ClaimID        *string    `json:"claim_id,omitempty"`
	ClaimedAt      *time.Time `json:"claimed_at,omitempty"`
}

// PendingClaimView summarises the day's pending claim.
type PendingClaimView struct {
	ClaimID string `json:"claim_id"`
	Amount  string `json:"amount"`
}

// PreviewResponse is returned by GET /v1/claims/preview.
type PreviewResponse struct {
	DayKey          string                `json:"day_key"`
	DailyCap        string                `json:"daily_cap"`
	AlreadyClaimed  string                `json:"already_claimed"`
	RemainingCap    string                `json:"remaining_cap"`
	TotalUncapped   string                `json:"total_uncapped"`
	ClaimableAmount string                `json:"claimable_amount"`
	PendingClaim    *PendingClaimView     `json:"pending_claim,omitempty"`
	Activities      []PreviewActivityView `json:"activities"`
}

// PrepareResponse is returned by POST /v1/claims/prepare. ClaimID is null
// unless the status is PENDING.
type PrepareResponse struct {
	Status      string   `json:"status"`
	ClaimID     *string  `json:"claim_id"`
	Amount      string   `json:"amount"`
	ActivityIDs []string `json:"activity_ids,omitempty"`
	Partial     bool     `json:"partial,omitempty"`
	Replay      bool     `json:"idempotent_replay,omitempty"`
	DailyCap    string   `json:"daily_cap,omitempty"`
}

// ConfirmResponse is returned by both confirm endpoints.
type ConfirmResponse struct {
	ClaimID        string `json:"claim_id"`
	Status         string `json:"status"`
	SettlementRef  string `json:"settlement_ref,omitempty"`
	CreditedAmount string `json:"credited_amount"`
	Balance        string `json:"balance,omitempty"`
	Replay         bool   `json:"idempotent_replay"`
}

// SignResponse is returned by POST /v1/claims/sign.
type SignResponse struct {
	ClaimID     string `json:"claim_id"`
	Wallet      string `json:"wallet"`
	Amount      string `json:"amount"`
	AmountWei   string `json:"amount_wei"`
	ClaimIDHash string `json:"claim_id_hash"`
	Nonce       string `json:"nonce"`
	Expiry      int64  `json:"expiry"`
	Signature   string `json:"signature"`
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	wallet, ok := h.walletFor(w, r, r.URL.Query().Get("wallet"))
	if !ok {
		return
	}

	p, err := h.claims.Preview(r.Context(), wallet)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	resp := PreviewResponse{
		DayKey:          p.DayKey,
		DailyCap:        fit(p.DailyCap),
		AlreadyClaimed:  fit(p.AlreadyClaimed),
		RemainingCap:    fit(p.RemainingCap),
		TotalUncapped:   fit(p.TotalUncapped),
		ClaimableAmount: fit(p.Claimable),
		Activities:      toActivityViews(p.Activities),
	}
	if p.PendingClaim != nil {
		resp.PendingClaim = &PendingClaimView{ClaimID: p.PendingClaim.ID, Amount: fit(p.PendingClaim.Amount)}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) prepare(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if !decodeBody(w, r, &req) {
		return
	}
	wallet, ok := h.walletFor(w, r, req.Wallet)
	if !ok {
		return
	}

	outcome, err := h.claims.Prepare(r.Context(), wallet)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	resp := PrepareResponse{Status: string(outcome.Status()), Amount: fit(decimal.Zero)}
	switch o := outcome.(type) {
	case domain.Pending:
		id := o.ClaimID
		resp.ClaimID = &id
		resp.Amount = fit(o.Amount)
		resp.ActivityIDs = o.ActivityIDs
		resp.Partial = o.Partial
		resp.Replay = o.Replay
	case domain.DailyCapReached:
		resp.DailyCap = fit(o.DailyCap)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) confirmInApp(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if !decodeBody(w, r, &req) {
		return
	}
	wallet, ok := h.walletFor(w, r, req.Wallet)
	if !ok {
		return
	}
	result, err := h.claims.ConfirmInApp(r.Context(), wallet, req.ClaimID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toConfirmResponse(result))
}

func (h *Handler) confirmOnchain(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if !decodeBody(w, r, &req) {
		return
	}
	wallet, ok := h.walletFor(w, r, req.Wallet)
	if !ok {
		return
	}
	result, err := h.claims.ConfirmOnchain(r.Context(), wallet, req.ClaimID, req.TxRef)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toConfirmResponse(result))
}

func (h *Handler) sign(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if !decodeBody(w, r, &req) {
		return
	}
	wallet, ok := h.walletFor(w, r, req.Wallet)
	if !ok {
		return
	}
	a, err := h.claims.Authorize(r.Context(), wallet, req.ClaimID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SignResponse{
		ClaimID:     a.ClaimID,
		Wallet:      a.Wallet,
		Amount:      fit(a.Amount),
		AmountWei:   a.AmountWei,
		ClaimIDHash: a.ClaimIDHash,
		Nonce:       a.Nonce,
		Expiry:      a.Deadline,
		Signature:   a.Signature,
	})
}

func toConfirmResponse(c domain.Confirmation) ConfirmResponse {
	resp := ConfirmResponse{
		ClaimID:        c.Claim.ID,
		Status:         string(c.Claim.Status),
		CreditedAmount: fit(c.Credited),
		Replay:         c.Replay,
	}
	if c.Claim.SettlementRef != nil {
		resp.SettlementRef = *c.Claim.SettlementRef
	}
	if c.Wallet != nil {
		resp.Balance = fit(c.Wallet.Balance)
	}
	return resp
}

func toActivityViews(scored []domain.ScoredActivity) []PreviewActivityView {
	out := make([]PreviewActivityView, 0, len(scored))
	for _, s := range scored {
		a := s.Activity
		out = append(out, PreviewActivityView{
			ActivityID:     a.ID,
			Provider:       a.Provider,
			Kind:           string(a.Kind),
			StartedAt:      a.StartedAt,
			DurationSec:    a.DurationSec,
			DistanceM:      a.DistanceM,
			AvgSpeedMps:    a.AvgSpeedMps,
			IntensityScore: s.Score.Intensity,
			GenuineScore:   s.Score.Genuine,
			Earned:         fit(s.Score.Earned),
			ClaimID:        a.ClaimID,
			ClaimedAt:      a.ClaimedAt,
		})
	}
	return out
}
