package domain

import (
	"context"

	"github.com/shopspring/decimal"

	"example.com/fitrewards/internal/rewards"
)

// ScoredActivity pairs an activity with its computed reward.
type ScoredActivity struct {
	Activity Activity
	Score    rewards.Score
}

// Preview is a read-only projection of what the user can claim today.
type Preview struct {
	DayKey         string
	DailyCap       decimal.Decimal
	AlreadyClaimed decimal.Decimal
	RemainingCap   decimal.Decimal
	TotalUncapped  decimal.Decimal
	Claimable      decimal.Decimal
	PendingClaim   *RewardClaim
	Activities     []ScoredActivity
}

// Preview projects today's claimable amount without mutating anything.
// Activities already locked into today's pending claim are included. When the
// cap is exhausted the projection is zero with no activities.
func (s *ClaimService) Preview(ctx context.Context, rawWallet string) (Preview, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	wallet, err := NormalizeWallet(rawWallet)
	if err != nil {
		return Preview{}, err
	}
	window := rewards.DayWindowAt(s.now())
	out := Preview{
		DayKey:         window.Key,
		DailyCap:       s.cfg.DailyCap,
		AlreadyClaimed: decimal.Zero,
		RemainingCap:   s.cfg.DailyCap,
		TotalUncapped:  decimal.Zero,
		Claimable:      decimal.Zero,
		Activities:     []ScoredActivity{},
	}

	user, err := s.store.UserByWallet(ctx, wallet)
	if err != nil {
		return Preview{}, Dependency("lookup user", err)
	}
	if user == nil {
		return out, nil
	}

	err = s.store.WithinTx(ctx, "", func(tx Tx) error {
		confirmed, err := tx.ConfirmedTotal(ctx, user.ID, window.Key)
		if err != nil {
			return err
		}
		out.AlreadyClaimed = confirmed
		out.RemainingCap = rewards.RemainingCap(s.cfg.DailyCap, confirmed)
		if !out.RemainingCap.IsPositive() {
			return nil
		}

		pending, err := tx.PendingClaim(ctx, user.ID, window.Key)
		if err != nil {
			return err
		}
		include := ""
		if pending != nil {
			out.PendingClaim = pending
			include = pending.ID
		}

		activities, err := tx.EligibleActivities(ctx, s.eligibility(user.ID, window, include))
		if err != nil {
			return err
		}
		total := decimal.Zero
		for _, a := range activities {
			if !a.Kind.Eligible() {
				continue
			}
			score := s.cfg.Scorer.Evaluate(a.Measurement())
			total = total.Add(score.Earned)
			out.Activities = append(out.Activities, ScoredActivity{Activity: a, Score: score})
		}
		out.TotalUncapped = total.Round(rewards.AmountPlaces)
		out.Claimable = decimal.Min(out.RemainingCap, out.TotalUncapped)
		return nil
	})
	if err != nil {
		return Preview{}, Dependency("preview claim", err)
	}
	return out, nil
}
