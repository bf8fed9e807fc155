package domain

import "github.com/shopspring/decimal"

// PrepareStatus is the wire name of a prepare outcome.
type PrepareStatus string

const (
	PrepareStatusPending         PrepareStatus = "PENDING"
	PrepareStatusNothingToClaim  PrepareStatus = "NOTHING_TO_CLAIM"
	PrepareStatusDailyCapReached PrepareStatus = "DAILY_CAP_REACHED"
)

// PrepareOutcome is one of Pending, NothingToClaim or DailyCapReached.
type PrepareOutcome interface {
	Status() PrepareStatus
	prepareOutcome()
}

// Pending carries the user's pending claim for the day.
type Pending struct {
	ClaimID     string
	Amount      decimal.Decimal
	ActivityIDs []string
	Partial     bool
	// Replay is set when an existing pending claim was returned unchanged.
	Replay bool
}

// NothingToClaim means no eligible activity earns anything.
type NothingToClaim struct{}

// DailyCapReached means the day's confirmed total already meets the cap.
type DailyCapReached struct {
	DailyCap decimal.Decimal
}

func (Pending) Status() PrepareStatus         { return PrepareStatusPending }
func (NothingToClaim) Status() PrepareStatus  { return PrepareStatusNothingToClaim }
func (DailyCapReached) Status() PrepareStatus { return PrepareStatusDailyCapReached }

func (Pending) prepareOutcome()         {}
func (NothingToClaim) prepareOutcome()  {}
func (DailyCapReached) prepareOutcome() {}
