package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/fitrewards/internal/domain"
	"example.com/fitrewards/internal/persistence"
	"example.com/fitrewards/internal/rewards"
)

// ManualProvider labels activities submitted directly through the API.
const ManualProvider = "MANUAL"

// ActivityRequest is the body of POST /v1/activities.
type ActivityRequest struct {
	Wallet             string    `json:"wallet"`
	Provider           string    `json:"provider,omitempty"`
	ProviderActivityID string    `json:"provider_activity_id"`
	Kind               string    `json:"kind"`
	StartedAt          time.Time `json:"started_at"`
	DurationSec        int       `json:"duration_sec"`
	DistanceM          *float64  `json:"distance_m,omitempty"`
	IntensityScore     *int      `json:"intensity_score,omitempty"`
	GenuineScore       *int      `json:"genuine_score,omitempty"`
}

// ActivityResponse acknowledges an ingested activity.
type ActivityResponse struct {
	ActivityID string `json:"activity_id,omitempty"`
	Duplicate  bool   `json:"duplicate"`
}

// HistoryResponse is one page of activity history.
type HistoryResponse struct {
	Range      string                `json:"range"`
	Activities []PreviewActivityView `json:"activities"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

// SyncResponse is returned by the provider sync endpoint.
type SyncResponse struct {
	Status  string `json:"status"`
	JobID   int64  `json:"job_id,omitempty"`
	Fetched int    `json:"fetched"`
	Saved   int    `json:"saved"`
	Skipped int    `json:"skipped"`
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	wallet, ok := h.walletFor(w, r, q.Get("wallet"))
	if !ok {
		return
	}

	historyRange := domain.RangeWeek
	switch q.Get("range") {
	case "", string(domain.RangeWeek):
	case string(domain.RangeMonth):
		historyRange = domain.RangeMonth
	default:
		writeError(w, http.StatusBadRequest, "validation_failed", "range must be week or month")
		return
	}

	cursor, err := persistence.DecodeCursor(q.Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "limit must be a non-negative integer")
			return
		}
	}

	resp := HistoryResponse{Range: string(historyRange), Activities: []PreviewActivityView{}}
	user, err := h.users.UserByWallet(r.Context(), wallet)
	if err != nil {
		h.writeDomainError(w, r, domain.Dependency("lookup user", err))
		return
	}
	if user == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	scored, next, err := h.activities.History(r.Context(), user.ID, historyRange, cursor, limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	resp.Activities = toActivityViews(scored)
	resp.NextCursor = persistence.EncodeCursor(next)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	var req ActivityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	wallet, ok := h.walletFor(w, r, req.Wallet)
	if !ok {
		return
	}
	user, err := h.users.EnsureUser(r.Context(), wallet)
	if err != nil {
		h.writeDomainError(w, r, domain.Dependency("ensure user", err))
		return
	}

	providerName := strings.ToUpper(strings.TrimSpace(req.Provider))
	if providerName == "" {
		providerName = ManualProvider
	}
	activity, dup, err := h.activities.Ingest(r.Context(), domain.IngestInput{
		UserID:             user.ID,
		Provider:           providerName,
		ProviderActivityID: strings.TrimSpace(req.ProviderActivityID),
		Kind:               rewards.Kind(strings.ToUpper(req.Kind)),
		StartedAt:          req.StartedAt,
		DurationSec:        req.DurationSec,
		DistanceM:          req.DistanceM,
		IntensityScore:     req.IntensityScore,
		GenuineScore:       req.GenuineScore,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if dup {
		writeJSON(w, http.StatusOK, ActivityResponse{Duplicate: true})
		return
	}
	writeJSON(w, http.StatusCreated, ActivityResponse{ActivityID: activity.ID})
}

func (h *Handler) syncStrava(w http.ResponseWriter, r *http.Request) {
	if h.syncs == nil {
		writeError(w, http.StatusServiceUnavailable, "not_configured", "provider sync is not configured")
		return
	}
	var req ClaimRequest
	if !decodeBody(w, r, &req) {
		return
	}
	wallet, ok := h.walletFor(w, r, req.Wallet)
	if !ok {
		return
	}
	user, err := h.users.UserByWallet(r.Context(), wallet)
	if err != nil {
		h.writeDomainError(w, r, domain.Dependency("lookup user", err))
		return
	}
	if user == nil {
		h.writeDomainError(w, r, domain.ErrUserNotFound)
		return
	}

	ticket, err := h.syncs.ScheduleSync(r.Context(), user.ID)
	if err != nil {
		h.writeDomainError(w, r, domain.Dependency("schedule sync", err))
		return
	}
	if ticket.Result == nil {
		writeJSON(w, http.StatusAccepted, SyncResponse{Status: "queued", JobID: ticket.JobID})
		return
	}
	writeJSON(w, http.StatusOK, SyncResponse{
		Status:  "completed",
		Fetched: ticket.Result.Fetched,
		Saved:   ticket.Result.Saved,
		Skipped: ticket.Result.Skipped,
	})
}
