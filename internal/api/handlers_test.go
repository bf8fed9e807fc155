package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"example.com/fitrewards/internal/auth"
	"example.com/fitrewards/internal/domain"
	"example.com/fitrewards/internal/ingest"
	"example.com/fitrewards/internal/ledger"
	"example.com/fitrewards/internal/persistence/memory"
	"example.com/fitrewards/internal/provider"
	"example.com/fitrewards/internal/rewards"
)

const (
	alice = "0x00000000000000000000000000000000000000a1"
	bob   = "0x00000000000000000000000000000000000000b2"
)

var (
	testAuth  = auth.Config{Secret: "test-secret", Issuer: "test-issuer"}
	allScopes = []string{auth.ScopeRewardsRead, auth.ScopeRewardsClaim, auth.ScopeActivitiesWrite}
	noon      = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
)

type stubAuthorizer struct{}

func (stubAuthorizer) Authorize(_ context.Context, wallet string, claim domain.RewardClaim) (domain.Authorization, error) {
	return domain.Authorization{
		ClaimID:     claim.ID,
		Wallet:      wallet,
		Amount:      claim.Amount,
		AmountWei:   claim.Amount.Shift(18).String(),
		ClaimIDHash: "0xhash",
		Nonce:       "7",
		Deadline:    noon.Add(10 * time.Minute).Unix(),
		Signature:   "0xsig",
	}, nil
}

type stubScheduler struct {
	ticket ingest.Ticket
	err    error
	users  []string
}

func (s *stubScheduler) ScheduleSync(_ context.Context, userID string) (ingest.Ticket, error) {
	s.users = append(s.users, userID)
	return s.ticket, s.err
}

type stubUsers struct {
	err error
}

func (s stubUsers) UserByWallet(context.Context, string) (*domain.User, error) {
	return nil, s.err
}

func (s stubUsers) EnsureUser(context.Context, string) (domain.User, error) {
	return domain.User{}, s.err
}

type fixture struct {
	t      *testing.T
	store  *memory.Store
	server http.Handler
}

func newFixture(t *testing.T, syncs ingest.Scheduler, opts ...domain.Option) *fixture {
	t.Helper()
	store := memory.New()
	clock := func() time.Time { return noon }
	scorer := rewards.Scorer{BaseRatePerMinute: 0.5, DefaultGenuine: 80}
	claims := domain.NewClaimService(store, domain.Config{
		DailyCap:           decimal.NewFromInt(50),
		MinActivitySeconds: 60,
		Scorer:             scorer,
		RequestTimeout:     time.Second,
	}, append([]domain.Option{domain.WithClock(clock)}, opts...)...)

	h := NewHandler(Deps{
		Claims:     claims,
		Activities: domain.NewActivityService(store, store, scorer, nil, domain.WithActivityClock(clock)),
		Wallets:    ledger.NewService(store),
		Users:      store,
		Syncs:      syncs,
	})
	return &fixture{t: t, store: store, server: h.Router(auth.NewMiddleware(testAuth))}
}

func token(t *testing.T, wallet string, scopes ...string) string {
	t.Helper()
	tok, err := auth.Issue(testAuth, "user-1", wallet, scopes, time.Hour)
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(method, path, tok string, body any) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// tenMinuteRun earns exactly ten FIT: full intensity and genuineness pay one per minute.
func tenMinuteRun(wallet, id string) ActivityRequest {
	full := 100
	return ActivityRequest{
		Wallet:             wallet,
		ProviderActivityID: id,
		Kind:               "run",
		StartedAt:          time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC),
		DurationSec:        600,
		IntensityScore:     &full,
		GenuineScore:       &full,
	}
}

func TestHealthzSkipsAuth(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestAuthorizationFailures(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/v1/claims/preview?wallet="+alice, "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	readOnly := token(t, "", auth.ScopeRewardsRead)
	rec = f.do(http.MethodPost, "/v1/claims/prepare", readOnly, ClaimRequest{Wallet: alice})
	require.Equal(t, http.StatusForbidden, rec.Code)

	bound := token(t, bob, allScopes...)
	rec = f.do(http.MethodGet, "/v1/claims/preview?wallet="+alice, bound, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "forbidden", decode[map[string]string](t, rec)["type"])
}

func TestClaimLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t, nil)
	tok := token(t, alice, allScopes...)

	rec := f.do(http.MethodPost, "/v1/activities", tok, tenMinuteRun(alice, "run-1"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[ActivityResponse](t, rec)
	require.NotEmpty(t, created.ActivityID)
	require.False(t, created.Duplicate)

	rec = f.do(http.MethodPost, "/v1/activities", tok, tenMinuteRun(alice, "run-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decode[ActivityResponse](t, rec).Duplicate)

	rec = f.do(http.MethodGet, "/v1/claims/preview?wallet="+alice, tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	preview := decode[PreviewResponse](t, rec)
	require.Equal(t, "2026-03-14", preview.DayKey)
	require.Equal(t, "10.000000", preview.ClaimableAmount)
	require.Equal(t, "50.000000", preview.RemainingCap)
	require.Len(t, preview.Activities, 1)
	require.Nil(t, preview.PendingClaim)

	rec = f.do(http.MethodPost, "/v1/claims/prepare", tok, ClaimRequest{Wallet: alice})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	prepared := decode[PrepareResponse](t, rec)
	require.Equal(t, "PENDING", prepared.Status)
	require.NotNil(t, prepared.ClaimID)
	require.Equal(t, "10.000000", prepared.Amount)
	require.Equal(t, []string{created.ActivityID}, prepared.ActivityIDs)
	require.False(t, prepared.Replay)

	rec = f.do(http.MethodPost, "/v1/claims/prepare", tok, ClaimRequest{Wallet: alice})
	require.Equal(t, http.StatusOK, rec.Code)
	replayed := decode[PrepareResponse](t, rec)
	require.Equal(t, *prepared.ClaimID, *replayed.ClaimID)
	require.True(t, replayed.Replay)

	claimID := *prepared.ClaimID
	rec = f.do(http.MethodPost, "/v1/claims/confirm-inapp", tok, ClaimRequest{Wallet: alice, ClaimID: claimID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	confirmed := decode[ConfirmResponse](t, rec)
	require.Equal(t, "CONFIRMED", confirmed.Status)
	require.Equal(t, "10.000000", confirmed.CreditedAmount)
	require.Equal(t, "10.000000", confirmed.Balance)
	require.Equal(t, domain.InAppSettlementRef, confirmed.SettlementRef)
	require.False(t, confirmed.Replay)

	rec = f.do(http.MethodPost, "/v1/claims/confirm-inapp", tok, ClaimRequest{Wallet: alice, ClaimID: claimID})
	require.Equal(t, http.StatusOK, rec.Code)
	again := decode[ConfirmResponse](t, rec)
	require.True(t, again.Replay)
	require.Equal(t, "0.000000", again.CreditedAmount)

	rec = f.do(http.MethodPost, "/v1/claims/prepare", tok, ClaimRequest{Wallet: alice})
	require.Equal(t, http.StatusOK, rec.Code)
	nothing := decode[PrepareResponse](t, rec)
	require.Equal(t, "NOTHING_TO_CLAIM", nothing.Status)
	require.Nil(t, nothing.ClaimID)

	rec = f.do(http.MethodGet, "/v1/wallet/balance?wallet="+alice, tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "10.000000", decode[WalletView](t, rec).Balance)

	rec = f.do(http.MethodGet, "/v1/wallet/transactions?wallet="+alice, tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[TransactionsResponse](t, rec)
	require.Len(t, history.Transactions, 1)
	require.Equal(t, "CREDIT", history.Transactions[0].Direction)
	require.Equal(t, claimID, history.Transactions[0].Reference)

	rec = f.do(http.MethodGet, "/v1/activities?wallet="+alice+"&range=month", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[HistoryResponse](t, rec)
	require.Equal(t, "month", page.Range)
	require.Len(t, page.Activities, 1)
	require.NotNil(t, page.Activities[0].ClaimID)
	require.Equal(t, claimID, *page.Activities[0].ClaimID)
}

func TestPrepareReportsDailyCap(t *testing.T) {
	f := newFixture(t, nil)
	tok := token(t, alice, allScopes...)

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		rec := f.do(http.MethodPost, "/v1/activities", tok, tenMinuteRun(alice, id))
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	prepared := decode[PrepareResponse](t, f.do(http.MethodPost, "/v1/claims/prepare", tok, ClaimRequest{Wallet: alice}))
	require.Equal(t, "50.000000", prepared.Amount)
	rec := f.do(http.MethodPost, "/v1/claims/confirm-inapp", tok, ClaimRequest{Wallet: alice, ClaimID: *prepared.ClaimID})
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/v1/activities", tok, tenMinuteRun(alice, "f")).Code)
	rec = f.do(http.MethodPost, "/v1/claims/prepare", tok, ClaimRequest{Wallet: alice})
	require.Equal(t, http.StatusOK, rec.Code)
	capped := decode[PrepareResponse](t, rec)
	require.Equal(t, "DAILY_CAP_REACHED", capped.Status)
	require.Equal(t, "50.000000", capped.DailyCap)
	require.Equal(t, "0.000000", capped.Amount)
}

func TestClaimErrors(t *testing.T) {
	f := newFixture(t, nil)
	tok := token(t, "", allScopes...)

	rec := f.do(http.MethodPost, "/v1/claims/prepare", tok, ClaimRequest{Wallet: "not-a-wallet"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "validation_failed", decode[map[string]string](t, rec)["type"])

	req := httptest.NewRequest(http.MethodPost, "/v1/claims/prepare", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+tok)
	bad := httptest.NewRecorder()
	f.server.ServeHTTP(bad, req)
	require.Equal(t, http.StatusBadRequest, bad.Code)

	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/v1/activities", tok, tenMinuteRun(alice, "run-1")).Code)
	rec = f.do(http.MethodPost, "/v1/claims/confirm-inapp", tok, ClaimRequest{Wallet: alice, ClaimID: "missing"})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodPost, "/v1/claims/confirm-onchain", tok, ClaimRequest{Wallet: alice, ClaimID: "missing", TxRef: "0x12"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/v1/claims/sign", tok, ClaimRequest{Wallet: alice, ClaimID: "missing"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "not_configured", decode[map[string]string](t, rec)["type"])
}

func TestDependencyFailureIsRetryable(t *testing.T) {
	f := newFixture(t, nil)
	tok := token(t, alice, allScopes...)
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/v1/activities", tok, tenMinuteRun(alice, "run-1")).Code)

	f.store.FailOn("LockActivities", errors.New("connection reset"))
	rec := f.do(http.MethodPost, "/v1/claims/prepare", tok, ClaimRequest{Wallet: alice})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[map[string]any](t, rec)
	require.Equal(t, "unavailable", body["type"])
	require.Equal(t, true, body["retryable"])

	f.store.FailOn("LockActivities", nil)
	rec = f.do(http.MethodPost, "/v1/claims/prepare", tok, ClaimRequest{Wallet: alice})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "PENDING", decode[PrepareResponse](t, rec).Status)
}

func TestSignAndConfirmOnchain(t *testing.T) {
	f := newFixture(t, nil, domain.WithAuthorizer(stubAuthorizer{}))
	tok := token(t, alice, allScopes...)
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/v1/activities", tok, tenMinuteRun(alice, "run-1")).Code)
	claimID := *decode[PrepareResponse](t, f.do(http.MethodPost, "/v1/claims/prepare", tok, ClaimRequest{Wallet: alice})).ClaimID

	rec := f.do(http.MethodPost, "/v1/claims/sign", tok, ClaimRequest{Wallet: alice, ClaimID: claimID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	signed := decode[SignResponse](t, rec)
	require.Equal(t, claimID, signed.ClaimID)
	require.Equal(t, "10.000000", signed.Amount)
	require.Equal(t, "10000000000000000000", signed.AmountWei)
	require.Equal(t, "0xsig", signed.Signature)

	txRef := "0x" + string(bytes.Repeat([]byte("ab"), 32))
	rec = f.do(http.MethodPost, "/v1/claims/confirm-onchain", tok, ClaimRequest{Wallet: alice, ClaimID: claimID, TxRef: txRef})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	confirmed := decode[ConfirmResponse](t, rec)
	require.Equal(t, "CONFIRMED", confirmed.Status)
	require.Equal(t, txRef, confirmed.SettlementRef)

	rec = f.do(http.MethodPost, "/v1/claims/sign", tok, ClaimRequest{Wallet: alice, ClaimID: claimID})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestListActivities(t *testing.T) {
	f := newFixture(t, nil)
	tok := token(t, "", allScopes...)

	rec := f.do(http.MethodGet, "/v1/activities?wallet="+bob, tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decode[HistoryResponse](t, rec).Activities)

	rec = f.do(http.MethodGet, "/v1/activities?wallet="+bob+"&range=year", tok, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/v1/activities?wallet="+bob+"&cursor=%25%25", tok, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	for _, id := range []string{"one", "two", "three"} {
		require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/v1/activities", tok, tenMinuteRun(bob, id)).Code)
	}
	first := decode[HistoryResponse](t, f.do(http.MethodGet, "/v1/activities?wallet="+bob+"&limit=2", tok, nil))
	require.Len(t, first.Activities, 2)
	require.NotEmpty(t, first.NextCursor)

	second := decode[HistoryResponse](t, f.do(http.MethodGet, "/v1/activities?wallet="+bob+"&limit=2&cursor="+first.NextCursor, tok, nil))
	require.Len(t, second.Activities, 1)
	require.Empty(t, second.NextCursor)
}

func TestCreateActivityRejectsIneligibleKind(t *testing.T) {
	f := newFixture(t, nil)
	tok := token(t, alice, allScopes...)
	req := tenMinuteRun(alice, "swim-1")
	req.Kind = "swim"
	rec := f.do(http.MethodPost, "/v1/activities", tok, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUserLookupFailureIsRetryable(t *testing.T) {
	h := NewHandler(Deps{Users: stubUsers{err: errors.New("pool closed")}})
	server := h.Router(auth.NewMiddleware(testAuth))
	tok := token(t, alice, allScopes...)

	for _, path := range []string{
		"/v1/wallet/balance?wallet=" + alice,
		"/v1/wallet/transactions?wallet=" + alice,
		"/v1/activities?wallet=" + alice,
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		body := decode[map[string]any](t, rec)
		require.Equal(t, "unavailable", body["type"], path)
		require.Equal(t, true, body["retryable"], path)
	}
}

func TestStravaSync(t *testing.T) {
	tok := token(t, alice, allScopes...)

	t.Run("not configured", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := f.do(http.MethodPost, "/v1/providers/strava/sync", tok, ClaimRequest{Wallet: alice})
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newFixture(t, &stubScheduler{})
		rec := f.do(http.MethodPost, "/v1/providers/strava/sync", tok, ClaimRequest{Wallet: alice})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("queued", func(t *testing.T) {
		sched := &stubScheduler{ticket: ingest.Ticket{JobID: 42}}
		f := newFixture(t, sched)
		user, err := f.store.EnsureUser(context.Background(), alice)
		require.NoError(t, err)

		rec := f.do(http.MethodPost, "/v1/providers/strava/sync", tok, ClaimRequest{Wallet: alice})
		require.Equal(t, http.StatusAccepted, rec.Code)
		resp := decode[SyncResponse](t, rec)
		require.Equal(t, "queued", resp.Status)
		require.Equal(t, int64(42), resp.JobID)
		require.Equal(t, []string{user.ID}, sched.users)
	})

	t.Run("scheduler unavailable", func(t *testing.T) {
		f := newFixture(t, &stubScheduler{err: errors.New("queue unavailable")})
		_, err := f.store.EnsureUser(context.Background(), alice)
		require.NoError(t, err)

		rec := f.do(http.MethodPost, "/v1/providers/strava/sync", tok, ClaimRequest{Wallet: alice})
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		body := decode[map[string]any](t, rec)
		require.Equal(t, "unavailable", body["type"])
		require.Equal(t, true, body["retryable"])
	})

	t.Run("not connected", func(t *testing.T) {
		f := newFixture(t, &stubScheduler{err: provider.ErrNotConnected})
		_, err := f.store.EnsureUser(context.Background(), alice)
		require.NoError(t, err)

		rec := f.do(http.MethodPost, "/v1/providers/strava/sync", tok, ClaimRequest{Wallet: alice})
		require.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("inline", func(t *testing.T) {
		sched := &stubScheduler{ticket: ingest.Ticket{Result: &ingest.SyncResult{Fetched: 3, Saved: 2, Skipped: 1}}}
		f := newFixture(t, sched)
		_, err := f.store.EnsureUser(context.Background(), alice)
		require.NoError(t, err)

		rec := f.do(http.MethodPost, "/v1/providers/strava/sync", tok, ClaimRequest{Wallet: alice})
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[SyncResponse](t, rec)
		require.Equal(t, "completed", resp.Status)
		require.Equal(t, 2, resp.Saved)
	})
}
