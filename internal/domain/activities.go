package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/fitrewards/internal/events"
	"example.com/fitrewards/internal/observability"
	"example.com/fitrewards/internal/rewards"
)

// HistoryRange selects how far back activity history reaches.
type HistoryRange string

const (
	RangeWeek  HistoryRange = "week"
	RangeMonth HistoryRange = "month"
)

// Days returns the range length, defaulting to a week.
func (r HistoryRange) Days() int {
	if r == RangeMonth {
		return 30
	}
	return 7
}

// MaxRows caps how many activities one history page may return.
func (r HistoryRange) MaxRows() int {
	if r == RangeMonth {
		return 200
	}
	return 80
}

// IngestInput is a normalised activity from a provider or the manual endpoint.
type IngestInput struct {
	UserID             string
	Provider           string
	ProviderActivityID string
	Kind               rewards.Kind
	StartedAt          time.Time
	DurationSec        int
	DistanceM          *float64
	IntensityScore     *int
	GenuineScore       *int
	RawHash            string
}

// Validate enforces the minimal shape of an ingested activity.
func (in IngestInput) Validate() error {
	switch {
	case in.UserID == "":
		return fmt.Errorf("%w: user id required", ErrInvalidActivity)
	case strings.TrimSpace(in.Provider) == "" || strings.TrimSpace(in.ProviderActivityID) == "":
		return fmt.Errorf("%w: provider and provider activity id required", ErrInvalidActivity)
	case !in.Kind.Eligible():
		return fmt.Errorf("%w: kind must be RUN or WALK", ErrInvalidActivity)
	case in.DurationSec <= 0:
		return fmt.Errorf("%w: duration must be positive", ErrInvalidActivity)
	case in.StartedAt.IsZero():
		return fmt.Errorf("%w: start time required", ErrInvalidActivity)
	case in.DistanceM != nil && *in.DistanceM < 0:
		return fmt.Errorf("%w: distance must not be negative", ErrInvalidActivity)
	case in.GenuineScore != nil && (*in.GenuineScore < 0 || *in.GenuineScore > 100):
		return fmt.Errorf("%w: genuine score must be within 0-100", ErrInvalidActivity)
	}
	return nil
}

// ActivityService ingests activities and serves history.
type ActivityService struct {
	store  Store
	reader ActivityReader
	scorer rewards.Scorer
	now    func() time.Time
	logger *slog.Logger
}

// ActivityOption customises an ActivityService.
type ActivityOption func(*ActivityService)

// WithActivityClock overrides the wall clock used for history ranges.
func WithActivityClock(now func() time.Time) ActivityOption {
	return func(s *ActivityService) { s.now = now }
}

// NewActivityService constructs an ActivityService.
func NewActivityService(store Store, reader ActivityReader, scorer rewards.Scorer, logger *slog.Logger, opts ...ActivityOption) *ActivityService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ActivityService{
		store:  store,
		reader: reader,
		scorer: scorer,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest stores one activity. A repeated provider activity id is reported
// as duplicate=true with no error.
func (s *ActivityService) Ingest(ctx context.Context, in IngestInput) (Activity, bool, error) {
	if err := in.Validate(); err != nil {
		return Activity{}, false, err
	}

	now := s.now()
	activity := Activity{
		ID:                 uuid.NewString(),
		UserID:             in.UserID,
		Provider:           in.Provider,
		ProviderActivityID: in.ProviderActivityID,
		Kind:               in.Kind,
		StartedAt:          in.StartedAt.UTC(),
		DurationSec:        in.DurationSec,
		DistanceM:          in.DistanceM,
		IntensityScore:     in.IntensityScore,
		GenuineScore:       in.GenuineScore,
		RawHash:            in.RawHash,
		CreatedAt:          now,
	}
	if in.DistanceM != nil {
		speed := rewards.AverageSpeed(*in.DistanceM, in.DurationSec)
		activity.AvgSpeedMps = &speed
	}
	if activity.IntensityScore == nil || *activity.IntensityScore <= 0 {
		intensity := rewards.Intensity(activity.Kind, activity.AvgSpeedMps)
		activity.IntensityScore = &intensity
	}

	err := s.store.WithinTx(ctx, "", func(tx Tx) error {
		if err := tx.InsertActivity(ctx, activity); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, Event{
			AggregateType: "activity",
			AggregateID:   activity.ID,
			EventType:     events.TypeActivityIngested,
			PartitionKey:  activity.UserID,
			Payload: events.ActivityIngested{
				ActivityID:         activity.ID,
				UserID:             activity.UserID,
				Provider:           activity.Provider,
				ProviderActivityID: activity.ProviderActivityID,
				Kind:               string(activity.Kind),
				StartedAt:          activity.StartedAt,
				DurationSec:        activity.DurationSec,
				OccurredAt:         now,
			},
		})
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateActivity) {
			s.logger.Debug("duplicate activity skipped", "provider", activity.Provider, "provider_activity_id", activity.ProviderActivityID)
			observability.RecordActivityIngested(activity.Provider, true)
			return Activity{}, true, nil
		}
		return Activity{}, false, Dependency("ingest activity", err)
	}

	observability.RecordActivityIngested(activity.Provider, false)
	return activity, false, nil
}

// History lists activities started within the range, newest first, with
// their scores attached.
func (s *ActivityService) History(ctx context.Context, userID string, r HistoryRange, cursor *Cursor, limit int) ([]ScoredActivity, *Cursor, error) {
	if limit <= 0 || limit > r.MaxRows() {
		limit = r.MaxRows()
	}
	since := s.now().AddDate(0, 0, -r.Days())
	activities, next, err := s.reader.ListActivities(ctx, userID, since, cursor, limit)
	if err != nil {
		return nil, nil, Dependency("list activities", err)
	}
	out := make([]ScoredActivity, 0, len(activities))
	for _, a := range activities {
		out = append(out, ScoredActivity{Activity: a, Score: s.scorer.Evaluate(a.Measurement())})
	}
	return out, next, nil
}
