package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"example.com/fitrewards/internal/events"
	"example.com/fitrewards/internal/ledger"
	"example.com/fitrewards/internal/observability"
	"example.com/fitrewards/internal/rewards"
)

// Config carries the engine's tunables.
type Config struct {
	DailyCap           decimal.Decimal
	MinActivitySeconds int
	Scorer             rewards.Scorer
	// RequestTimeout bounds every engine call; zero disables the bound.
	RequestTimeout time.Duration
}

// Authorization is a signed on-chain mint authorization for a claim.
type Authorization struct {
	ClaimID     string
	Wallet      string
	Amount      decimal.Decimal
	AmountWei   string
	ClaimIDHash string
	Nonce       string
	Deadline    int64
	Signature   string
}

// Authorizer signs settlement payloads for the claim contract.
type Authorizer interface {
	Authorize(ctx context.Context, wallet string, claim RewardClaim) (Authorization, error)
}

// Confirmation is the result of a confirm call.
type Confirmation struct {
	Claim    RewardClaim
	Replay   bool
	Credited decimal.Decimal
	Wallet   *ledger.Wallet
}

// ClaimService drives the claim lifecycle.
type ClaimService struct {
	store      Store
	cfg        Config
	authorizer Authorizer
	now        func() time.Time
	newID      func() string
	logger     *slog.Logger
}

// Option customises a ClaimService.
type Option func(*ClaimService)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *ClaimService) { s.now = now }
}

// WithIDGenerator overrides id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *ClaimService) { s.newID = fn }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *ClaimService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAuthorizer enables on-chain claim signing.
func WithAuthorizer(a Authorizer) Option {
	return func(s *ClaimService) { s.authorizer = a }
}

// NewClaimService constructs a ClaimService.
func NewClaimService(store Store, cfg Config, opts ...Option) *ClaimService {
	s := &ClaimService{
		store:  store,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DailyCap returns the configured cap.
func (s *ClaimService) DailyCap() decimal.Decimal { return s.cfg.DailyCap }

func (s *ClaimService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.RequestTimeout)
}

func (s *ClaimService) existingUser(ctx context.Context, rawWallet string) (User, error) {
	wallet, err := NormalizeWallet(rawWallet)
	if err != nil {
		return User{}, err
	}
	user, err := s.store.UserByWallet(ctx, wallet)
	if err != nil {
		return User{}, Dependency("lookup user", err)
	}
	if user == nil {
		return User{}, ErrUserNotFound
	}
	return *user, nil
}

func (s *ClaimService) eligibility(userID string, window rewards.DayWindow, includeClaimID string) EligibilityFilter {
	return EligibilityFilter{
		UserID:         userID,
		Window:         window,
		MinDurationSec: s.cfg.MinActivitySeconds,
		Kinds:          rewards.EligibleKinds,
		IncludeClaimID: includeClaimID,
	}
}

func prepareLockKey(userID, dayKey string) string {
	return fmt.Sprintf("prepare:%s:%s", userID, dayKey)
}

func claimLockKey(claimID string) string {
	return "claim:" + claimID
}

// Prepare returns the user's pending claim for today, creating one from the
// allocator's selection when none exists. Creating the claim and locking its
// activities happen in one transaction serialised per user and day.
func (s *ClaimService) Prepare(ctx context.Context, rawWallet string) (PrepareOutcome, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := s.existingUser(ctx, rawWallet)
	if err != nil {
		return nil, err
	}
	window := rewards.DayWindowAt(s.now())

	outcome, err := s.prepare(ctx, user, window)
	if errors.Is(err, ErrPendingClaimExists) {
		// another writer won the insert; the retry sees its claim
		outcome, err = s.prepare(ctx, user, window)
	}
	if err != nil {
		return nil, Dependency("prepare claim", err)
	}

	observability.RecordPrepareOutcome(string(outcome.Status()))
	if p, ok := outcome.(Pending); ok && !p.Replay {
		s.logger.Info("claim prepared",
			"claim_id", p.ClaimID,
			"user_id", user.ID,
			"day_key", window.Key,
			"amount", p.Amount.String(),
			"activities", len(p.ActivityIDs),
			"partial", p.Partial,
		)
	}
	return outcome, nil
}

func (s *ClaimService) prepare(ctx context.Context, user User, window rewards.DayWindow) (PrepareOutcome, error) {
	var outcome PrepareOutcome
	err := s.store.WithinTx(ctx, prepareLockKey(user.ID, window.Key), func(tx Tx) error {
		pending, err := tx.PendingClaim(ctx, user.ID, window.Key)
		if err != nil {
			return err
		}
		if pending != nil {
			ids, err := tx.ClaimActivityIDs(ctx, pending.ID)
			if err != nil {
				return err
			}
			outcome = Pending{ClaimID: pending.ID, Amount: pending.Amount, ActivityIDs: ids, Replay: true}
			return nil
		}

		confirmed, err := tx.ConfirmedTotal(ctx, user.ID, window.Key)
		if err != nil {
			return err
		}
		remaining := rewards.RemainingCap(s.cfg.DailyCap, confirmed)
		if !remaining.IsPositive() {
			outcome = DailyCapReached{DailyCap: s.cfg.DailyCap}
			return nil
		}

		activities, err := tx.EligibleActivities(ctx, s.eligibility(user.ID, window, ""))
		if err != nil {
			return err
		}
		alloc := rewards.Allocate(s.candidates(activities), remaining)
		if alloc.Empty() {
			outcome = NothingToClaim{}
			return nil
		}

		now := s.now()
		claim := RewardClaim{
			ID:        s.newID(),
			UserID:    user.ID,
			DayKey:    window.Key,
			Amount:    alloc.Amount,
			Status:    ClaimStatusPending,
			CreatedAt: now,
		}
		if err := tx.InsertClaim(ctx, claim); err != nil {
			return err
		}
		locked, err := tx.LockActivities(ctx, claim.ID, alloc.ActivityIDs)
		if err != nil {
			return err
		}
		if locked != len(alloc.ActivityIDs) {
			return ErrActivityLocked
		}
		if err := tx.AppendEvent(ctx, Event{
			AggregateType: "claim",
			AggregateID:   claim.ID,
			EventType:     events.TypeClaimPrepared,
			PartitionKey:  user.ID,
			Payload: events.ClaimPrepared{
				ClaimID:     claim.ID,
				UserID:      user.ID,
				DayKey:      claim.DayKey,
				Amount:      claim.Amount.StringFixed(rewards.AmountPlaces),
				ActivityIDs: alloc.ActivityIDs,
				Partial:     alloc.Partial,
				OccurredAt:  now,
			},
		}); err != nil {
			return err
		}

		outcome = Pending{ClaimID: claim.ID, Amount: claim.Amount, ActivityIDs: alloc.ActivityIDs, Partial: alloc.Partial}
		return nil
	})
	return outcome, err
}

func (s *ClaimService) candidates(activities []Activity) []rewards.Candidate {
	out := make([]rewards.Candidate, 0, len(activities))
	for _, a := range activities {
		if !a.Kind.Eligible() {
			continue
		}
		out = append(out, rewards.Candidate{
			ActivityID: a.ID,
			StartedAt:  a.StartedAt,
			Earned:     s.cfg.Scorer.Evaluate(a.Measurement()).Earned,
		})
	}
	return out
}

// ConfirmOnchain settles a claim against an observed mint transaction.
func (s *ClaimService) ConfirmOnchain(ctx context.Context, rawWallet, claimID, txRef string) (Confirmation, error) {
	if err := validateClaimRequest(rawWallet, claimID); err != nil {
		return Confirmation{}, err
	}
	if !ValidTxRef(txRef) {
		return Confirmation{}, ErrInvalidTxRef
	}
	return s.confirm(ctx, rawWallet, claimID, "onchain", txRef, nil)
}

// ConfirmInApp settles a claim into the user's off-chain wallet.
func (s *ClaimService) ConfirmInApp(ctx context.Context, rawWallet, claimID string) (Confirmation, error) {
	if err := validateClaimRequest(rawWallet, claimID); err != nil {
		return Confirmation{}, err
	}
	return s.confirm(ctx, rawWallet, claimID, "inapp", InAppSettlementRef, s.creditWallet)
}

func validateClaimRequest(rawWallet, claimID string) error {
	if _, err := NormalizeWallet(rawWallet); err != nil {
		return err
	}
	if claimID == "" {
		return ErrClaimIDRequired
	}
	return nil
}

type settleFunc func(ctx context.Context, tx Tx, claim RewardClaim, at time.Time, result *Confirmation) error

func (s *ClaimService) confirm(ctx context.Context, rawWallet, claimID, channel, settlementRef string, settle settleFunc) (Confirmation, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := s.existingUser(ctx, rawWallet)
	if err != nil {
		return Confirmation{}, err
	}

	var result Confirmation
	err = s.store.WithinTx(ctx, claimLockKey(claimID), func(tx Tx) error {
		result = Confirmation{Credited: decimal.Zero}
		claim, err := tx.ClaimForUpdate(ctx, claimID)
		if err != nil {
			return err
		}
		if claim == nil || claim.UserID != user.ID {
			return ErrClaimNotFound
		}
		if claim.Status == ClaimStatusConfirmed {
			result.Claim = *claim
			result.Replay = true
			return nil
		}

		now := s.now()
		if err := tx.MarkClaimConfirmed(ctx, claim.ID, settlementRef, now); err != nil {
			return err
		}
		if _, err := tx.MarkActivitiesClaimed(ctx, claim.ID, settlementRef, now); err != nil {
			return err
		}
		claim.Status = ClaimStatusConfirmed
		claim.SettlementRef = &settlementRef
		claim.ConfirmedAt = &now
		result.Claim = *claim

		if settle != nil {
			if err := settle(ctx, tx, *claim, now, &result); err != nil {
				return err
			}
		}

		return tx.AppendEvent(ctx, Event{
			AggregateType: "claim",
			AggregateID:   claim.ID,
			EventType:     events.TypeClaimConfirmed,
			PartitionKey:  user.ID,
			Payload: events.ClaimConfirmed{
				ClaimID:       claim.ID,
				UserID:        user.ID,
				DayKey:        claim.DayKey,
				Amount:        claim.Amount.StringFixed(rewards.AmountPlaces),
				Channel:       channel,
				SettlementRef: settlementRef,
				OccurredAt:    now,
			},
		})
	})
	if err != nil {
		return Confirmation{}, Dependency("confirm claim", err)
	}

	observability.RecordConfirmation(channel, result.Replay)
	if !result.Replay {
		s.logger.Info("claim confirmed",
			"claim_id", claimID,
			"user_id", user.ID,
			"channel", channel,
			"amount", result.Claim.Amount.String(),
		)
		if result.Credited.IsPositive() {
			observability.RecordCredited(result.Credited.InexactFloat64())
		}
	}
	return result, nil
}

func (s *ClaimService) creditWallet(ctx context.Context, tx Tx, claim RewardClaim, at time.Time, result *Confirmation) error {
	wallet, entry, err := ledger.Apply(ctx, tx, ledger.Entry{
		ID:        s.newID(),
		UserID:    claim.UserID,
		Direction: ledger.Credit,
		Amount:    claim.Amount,
		Memo:      InAppMemo,
		Reference: claim.ID,
		At:        at,
	})
	if err != nil {
		return err
	}
	result.Credited = entry.Amount
	result.Wallet = &wallet
	return tx.AppendEvent(ctx, Event{
		AggregateType: "wallet",
		AggregateID:   wallet.ID,
		EventType:     events.TypeWalletCredited,
		PartitionKey:  claim.UserID,
		DedupeKey:     entry.ID + ":" + events.TypeWalletCredited,
		Payload: events.WalletCredited{
			WalletID:      wallet.ID,
			UserID:        claim.UserID,
			TransactionID: entry.ID,
			Amount:        entry.Amount.StringFixed(rewards.AmountPlaces),
			Balance:       wallet.Balance.StringFixed(rewards.AmountPlaces),
			Reference:     claim.ID,
			OccurredAt:    at,
		},
	})
}

// Authorize signs an on-chain settlement for a pending claim owned by the wallet.
func (s *ClaimService) Authorize(ctx context.Context, rawWallet, claimID string) (Authorization, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if s.authorizer == nil {
		return Authorization{}, ErrNotConfigured
	}
	if err := validateClaimRequest(rawWallet, claimID); err != nil {
		return Authorization{}, err
	}
	user, err := s.existingUser(ctx, rawWallet)
	if err != nil {
		return Authorization{}, err
	}

	var claim RewardClaim
	err = s.store.WithinTx(ctx, "", func(tx Tx) error {
		found, err := tx.ClaimForUpdate(ctx, claimID)
		if err != nil {
			return err
		}
		if found == nil || found.UserID != user.ID {
			return ErrClaimNotFound
		}
		if found.Status != ClaimStatusPending || !found.Amount.IsPositive() {
			return ErrClaimNotPending
		}
		claim = *found
		return nil
	})
	if err != nil {
		return Authorization{}, Dependency("load claim", err)
	}

	auth, err := s.authorizer.Authorize(ctx, user.Wallet, claim)
	if err != nil {
		observability.RecordSignature(false)
		s.logger.Error("claim authorization failed", "claim_id", claim.ID, "error", err)
		return Authorization{}, Dependency("authorize claim", err)
	}
	observability.RecordSignature(true)
	return auth, nil
}
