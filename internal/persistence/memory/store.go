// Package memory provides an in-process Store with the same transactional
// guarantees as the Postgres store. All transactions are serialised and
// work on a copy of the state that is swapped in only on success.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"example.com/fitrewards/internal/domain"
	"example.com/fitrewards/internal/ledger"
	"example.com/fitrewards/internal/provider"
)

type state struct {
	users         map[string]domain.User
	usersByWallet map[string]string
	activities    map[string]domain.Activity
	providerIndex map[string]string
	claims        map[string]domain.RewardClaim
	wallets       map[string]ledger.Wallet
	transactions  []ledger.Transaction
	events        []domain.Event
	connections   map[string]provider.Connection
}

func newState() *state {
	return &state{
		users:         make(map[string]domain.User),
		usersByWallet: make(map[string]string),
		activities:    make(map[string]domain.Activity),
		providerIndex: make(map[string]string),
		claims:        make(map[string]domain.RewardClaim),
		wallets:       make(map[string]ledger.Wallet),
		connections:   make(map[string]provider.Connection),
	}
}

// clone copies the maps; values are replaced, never written through, so
// pointer fields may be shared.
func (s *state) clone() *state {
	out := newState()
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.usersByWallet {
		out.usersByWallet[k] = v
	}
	for k, v := range s.activities {
		out.activities[k] = v
	}
	for k, v := range s.providerIndex {
		out.providerIndex[k] = v
	}
	for k, v := range s.claims {
		out.claims[k] = v
	}
	for k, v := range s.wallets {
		out.wallets[k] = v
	}
	for k, v := range s.connections {
		out.connections[k] = v
	}
	out.transactions = append([]ledger.Transaction(nil), s.transactions...)
	out.events = append([]domain.Event(nil), s.events...)
	return out
}

// Store is the in-memory implementation.
type Store struct {
	mu       sync.Mutex
	st       *state
	failures map[string]error
	now      func() time.Time
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		st:       newState(),
		failures: make(map[string]error),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// FailOn makes the named transaction operation return err until cleared with a nil err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// UserByWallet implements domain.Store.
func (s *Store) UserByWallet(ctx context.Context, wallet string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.st.usersByWallet[wallet]
	if !ok {
		return nil, nil
	}
	user := s.st.users[id]
	return &user, nil
}

// EnsureUser implements domain.Store.
func (s *Store) EnsureUser(ctx context.Context, wallet string) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.st.usersByWallet[wallet]; ok {
		return s.st.users[id], nil
	}
	user := domain.User{ID: uuid.NewString(), Wallet: wallet, CreatedAt: s.now()}
	s.st.users[user.ID] = user
	s.st.usersByWallet[wallet] = user.ID
	return user, nil
}

// WithinTx implements domain.Store. Transactions are fully serialised, so lockKey is not needed.
func (s *Store) WithinTx(ctx context.Context, _ string, fn func(domain.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{st: s.st.clone(), failures: s.failures, now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

// Snapshot helpers for tests and the local dev server.

// Activity returns a stored activity.
func (s *Store) Activity(id string) (domain.Activity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.st.activities[id]
	return a, ok
}

// Claims returns every claim for a user.
func (s *Store) Claims(userID string) []domain.RewardClaim {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.RewardClaim
	for _, c := range s.st.claims {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Wallet returns the user's wallet and its transactions.
func (s *Store) Wallet(userID string) (ledger.Wallet, []ledger.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.st.wallets[userID]
	if !ok {
		return ledger.Wallet{}, nil, false
	}
	var txs []ledger.Transaction
	for _, t := range s.st.transactions {
		if t.WalletID == w.ID {
			txs = append(txs, t)
		}
	}
	return w, txs, true
}

// Events returns the outbox contents in append order.
func (s *Store) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.st.events...)
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
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ledger.Transaction, 0, limit)
	for i := len(s.st.transactions) - 1; i >= 0 && len(out) < limit; i-- {
		if s.st.transactions[i].WalletID == walletID {
			out = append(out, s.st.transactions[i])
		}
	}
	return out, nil
}

// ListActivities implements domain.ActivityReader.
func (s *Store) ListActivities(ctx context.Context, userID string, since time.Time, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []domain.Activity
	for _, a := range s.st.activities {
		if a.UserID != userID || a.StartedAt.Before(since) {
			continue
		}
		if cursor != nil && !before(a, *cursor) {
			continue
		}
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].StartedAt.Equal(all[j].StartedAt) {
			return all[i].StartedAt.After(all[j].StartedAt)
		}
		return all[i].ID > all[j].ID
	})
	if len(all) > limit {
		all = all[:limit]
	}
	var next *domain.Cursor
	if len(all) == limit && limit > 0 {
		last := all[len(all)-1]
		next = &domain.Cursor{StartedAt: last.StartedAt, ID: last.ID}
	}
	return all, next, nil
}

// before reports whether a sorts after the cursor in newest-first order.
func before(a domain.Activity, c domain.Cursor) bool {
	if a.StartedAt.Equal(c.StartedAt) {
		return a.ID < c.ID
	}
	return a.StartedAt.Before(c.StartedAt)
}

func connectionKey(userID, providerName string) string {
	return userID + "|" + providerName
}

// Connection implements provider.ConnectionStore.
func (s *Store) Connection(ctx context.Context, userID, providerName string) (*provider.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.st.connections[connectionKey(userID, providerName)]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// SaveConnection implements provider.ConnectionStore.
func (s *Store) SaveConnection(ctx context.Context, conn provider.Connection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.connections[connectionKey(conn.UserID, conn.Provider)] = conn
	return nil
}

var _ domain.Store = (*Store)(nil)
var _ domain.ActivityReader = (*Store)(nil)
var _ ledger.Reader = (*Store)(nil)
var _ provider.ConnectionStore = (*Store)(nil)

type memTx struct {
	st       *state
	failures map[string]error
	now      func() time.Time
}

func (t *memTx) fail(op string) error {
	return t.failures[op]
}

func (t *memTx) PendingClaim(_ context.Context, userID, dayKey string) (*domain.RewardClaim, error) {
	if err := t.fail("PendingClaim"); err != nil {
		return nil, err
	}
	for _, c := range t.st.claims {
		if c.UserID == userID && c.DayKey == dayKey && c.Status == domain.ClaimStatusPending {
			claim := c
			return &claim, nil
		}
	}
	return nil, nil
}

func (t *memTx) ConfirmedTotal(_ context.Context, userID, dayKey string) (decimal.Decimal, error) {
	if err := t.fail("ConfirmedTotal"); err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, c := range t.st.claims {
		if c.UserID == userID && c.DayKey == dayKey && c.Status == domain.ClaimStatusConfirmed {
			total = total.Add(c.Amount)
		}
	}
	return total, nil
}

func (t *memTx) EligibleActivities(_ context.Context, f domain.EligibilityFilter) ([]domain.Activity, error) {
	if err := t.fail("EligibleActivities"); err != nil {
		return nil, err
	}
	var out []domain.Activity
	for _, a := range t.st.activities {
		if a.UserID != f.UserID || !f.Window.Contains(a.StartedAt) || a.ClaimedAt != nil {
			continue
		}
		if a.DurationSec < f.MinDurationSec {
			continue
		}
		if a.ClaimID != nil && *a.ClaimID != f.IncludeClaimID {
			continue
		}
		kindOK := false
		for _, k := range f.Kinds {
			if a.Kind == k {
				kindOK = true
				break
			}
		}
		if kindOK {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *memTx) ClaimActivityIDs(_ context.Context, claimID string) ([]string, error) {
	var locked []domain.Activity
	for _, a := range t.st.activities {
		if a.ClaimID != nil && *a.ClaimID == claimID {
			locked = append(locked, a)
		}
	}
	sort.Slice(locked, func(i, j int) bool {
		if !locked[i].StartedAt.Equal(locked[j].StartedAt) {
			return locked[i].StartedAt.Before(locked[j].StartedAt)
		}
		return locked[i].ID < locked[j].ID
	})
	ids := make([]string, 0, len(locked))
	for _, a := range locked {
		ids = append(ids, a.ID)
	}
	return ids, nil
}

func (t *memTx) InsertClaim(_ context.Context, claim domain.RewardClaim) error {
	if err := t.fail("InsertClaim"); err != nil {
		return err
	}
	for _, c := range t.st.claims {
		if c.UserID == claim.UserID && c.DayKey == claim.DayKey && c.Status == domain.ClaimStatusPending {
			return domain.ErrPendingClaimExists
		}
	}
	t.st.claims[claim.ID] = claim
	return nil
}

func (t *memTx) LockActivities(_ context.Context, claimID string, ids []string) (int, error) {
	if err := t.fail("LockActivities"); err != nil {
		return 0, err
	}
	locked := 0
	for _, id := range ids {
		a, ok := t.st.activities[id]
		if !ok || a.ClaimID != nil || a.ClaimedAt != nil {
			continue
		}
		cid := claimID
		a.ClaimID = &cid
		t.st.activities[id] = a
		locked++
	}
	return locked, nil
}

func (t *memTx) ClaimForUpdate(_ context.Context, claimID string) (*domain.RewardClaim, error) {
	if err := t.fail("ClaimForUpdate"); err != nil {
		return nil, err
	}
	c, ok := t.st.claims[claimID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (t *memTx) MarkClaimConfirmed(_ context.Context, claimID, ref string, at time.Time) error {
	if err := t.fail("MarkClaimConfirmed"); err != nil {
		return err
	}
	c, ok := t.st.claims[claimID]
	if !ok || c.Status != domain.ClaimStatusPending {
		return domain.ErrClaimNotPending
	}
	c.Status = domain.ClaimStatusConfirmed
	c.SettlementRef = &ref
	c.ConfirmedAt = &at
	t.st.claims[claimID] = c
	return nil
}

func (t *memTx) MarkActivitiesClaimed(_ context.Context, claimID, ref string, at time.Time) (int, error) {
	if err := t.fail("MarkActivitiesClaimed"); err != nil {
		return 0, err
	}
	n := 0
	for id, a := range t.st.activities {
		if a.ClaimID == nil || *a.ClaimID != claimID || a.ClaimedAt != nil {
			continue
		}
		claimedAt, settlement := at, ref
		a.ClaimedAt = &claimedAt
		a.SettlementRef = &settlement
		t.st.activities[id] = a
		n++
	}
	return n, nil
}

func (t *memTx) InsertActivity(_ context.Context, a domain.Activity) error {
	if err := t.fail("InsertActivity"); err != nil {
		return err
	}
	key := a.Provider + "|" + a.ProviderActivityID
	if _, exists := t.st.providerIndex[key]; exists {
		return domain.ErrDuplicateActivity
	}
	t.st.providerIndex[key] = a.ID
	t.st.activities[a.ID] = a
	return nil
}

func (t *memTx) AppendEvent(_ context.Context, e domain.Event) error {
	if err := t.fail("AppendEvent"); err != nil {
		return err
	}
	t.st.events = append(t.st.events, e)
	return nil
}

func (t *memTx) LockWallet(_ context.Context, userID string) (ledger.Wallet, error) {
	if err := t.fail("LockWallet"); err != nil {
		return ledger.Wallet{}, err
	}
	if w, ok := t.st.wallets[userID]; ok {
		return w, nil
	}
	now := t.now()
	w := ledger.Wallet{ID: uuid.NewString(), UserID: userID, Balance: decimal.Zero, CreatedAt: now, UpdatedAt: now}
	t.st.wallets[userID] = w
	return w, nil
}

func (t *memTx) SetBalance(_ context.Context, walletID string, balance decimal.Decimal, at time.Time) error {
	if err := t.fail("SetBalance"); err != nil {
		return err
	}
	for userID, w := range t.st.wallets {
		if w.ID == walletID {
			w.Balance = balance
			w.UpdatedAt = at
			t.st.wallets[userID] = w
			return nil
		}
	}
	return fmt.Errorf("wallet %s not found", walletID)
}

func (t *memTx) InsertTransaction(_ context.Context, entry ledger.Transaction) error {
	if err := t.fail("InsertTransaction"); err != nil {
		return err
	}
	t.st.transactions = append(t.st.transactions, entry)
	return nil
}
