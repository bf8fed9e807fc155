package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"example.com/fitrewards/internal/provider"
)

// SyncJobArgs enqueues a provider sync for one user.
type SyncJobArgs struct {
	UserID   string `json:"user_id"`
	Provider string `json:"provider"`
}

func (SyncJobArgs) Kind() string { return "provider_sync" }

// SyncWorker runs provider syncs from the job queue.
type SyncWorker struct {
	river.WorkerDefaults[SyncJobArgs]
	syncer *Syncer
}

// NewSyncWorker constructs a SyncWorker.
func NewSyncWorker(syncer *Syncer) *SyncWorker {
	return &SyncWorker{syncer: syncer}
}

// Work implements river.Worker. A missing connection cancels the job instead of retrying.
func (w *SyncWorker) Work(ctx context.Context, job *river.Job[SyncJobArgs]) error {
	_, err := w.syncer.Sync(ctx, job.Args.UserID)
	if errors.Is(err, provider.ErrNotConnected) {
		return river.JobCancel(err)
	}
	return err
}

// Timeout bounds one sync run.
func (w *SyncWorker) Timeout(*river.Job[SyncJobArgs]) time.Duration { return time.Minute }

// Ticket describes a scheduled or completed sync.
type Ticket struct {
	JobID  int64
	Result *SyncResult
}

// Scheduler starts a provider sync for a user.
type Scheduler interface {
	ScheduleSync(ctx context.Context, userID string) (Ticket, error)
}

// RiverScheduler enqueues syncs; repeated requests within a minute collapse into one job.
type RiverScheduler struct {
	client *river.Client[pgx.Tx]
}

// NewRiverScheduler constructs a RiverScheduler.
func NewRiverScheduler(client *river.Client[pgx.Tx]) *RiverScheduler {
	return &RiverScheduler{client: client}
}

// ScheduleSync implements Scheduler.
func (s *RiverScheduler) ScheduleSync(ctx context.Context, userID string) (Ticket, error) {
	res, err := s.client.Insert(ctx, SyncJobArgs{UserID: userID, Provider: provider.Strava}, &river.InsertOpts{
		MaxAttempts: 5,
		UniqueOpts: river.UniqueOpts{
			ByArgs:   true,
			ByPeriod: time.Minute,
		},
	})
	if err != nil {
		return Ticket{}, err
	}
	return Ticket{JobID: res.Job.ID}, nil
}

// InlineScheduler runs the sync in the request, for local runs without a job queue.
type InlineScheduler struct {
	syncer *Syncer
}

// NewInlineScheduler constructs an InlineScheduler.
func NewInlineScheduler(syncer *Syncer) *InlineScheduler {
	return &InlineScheduler{syncer: syncer}
}

// ScheduleSync implements Scheduler.
func (s *InlineScheduler) ScheduleSync(ctx context.Context, userID string) (Ticket, error) {
	res, err := s.syncer.Sync(ctx, userID)
	if err != nil {
		return Ticket{}, err
	}
	return Ticket{Result: &res}, nil
}
