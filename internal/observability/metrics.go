// Package observability registers the reward engine's Prometheus collectors.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	prepareOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reward_engine",
		Subsystem: "claims",
		Name:      "prepare_outcomes_total",
		Help:      "Prepare calls by outcome status.",
	}, []string{"status"})
	confirmations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reward_engine",
		Subsystem: "claims",
		Name:      "confirmations_total",
		Help:      "Claim confirmations by settlement channel and replay flag.",
	}, []string{"channel", "replay"})
	creditedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "reward_engine",
		Subsystem: "ledger",
		Name:      "credited_fit_total",
		Help:      "FIT credited to in-app wallets.",
	})
	signatures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reward_engine",
		Subsystem: "chain",
		Name:      "signatures_total",
		Help:      "Claim authorization signatures by result.",
	}, []string{"result"})
	activitiesIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reward_engine",
		Subsystem: "ingest",
		Name:      "activities_total",
		Help:      "Activities offered for ingestion by provider and result.",
	}, []string{"provider", "result"})
	lastSyncGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "reward_engine",
		Subsystem: "ingest",
		Name:      "last_provider_sync_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completed provider sync.",
	}, []string{"provider"})
)

func init() {
	prometheus.MustRegister(prepareOutcomes, confirmations, creditedTotal, signatures, activitiesIngested, lastSyncGauge)
}

// RecordPrepareOutcome counts a prepare result.
func RecordPrepareOutcome(status string) {
	prepareOutcomes.WithLabelValues(status).Inc()
}

// RecordConfirmation counts a confirm result.
func RecordConfirmation(channel string, replay bool) {
	confirmations.WithLabelValues(channel, strconv.FormatBool(replay)).Inc()
}

// RecordCredited adds a ledger credit to the running total.
func RecordCredited(amount float64) {
	if amount <= 0 {
		return
	}
	creditedTotal.Add(amount)
}

// RecordSignature counts an authorization attempt.
func RecordSignature(ok bool) {
	result := "signed"
	if !ok {
		result = "failed"
	}
	signatures.WithLabelValues(result).Inc()
}

// RecordActivityIngested counts an ingested or skipped activity.
func RecordActivityIngested(provider string, duplicate bool) {
	result := "saved"
	if duplicate {
		result = "skipped"
	}
	activitiesIngested.WithLabelValues(provider, result).Inc()
}

// RecordProviderSync updates the sync watermark gauge.
func RecordProviderSync(provider string, ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastSyncGauge.WithLabelValues(provider).Set(float64(ts.Unix()))
}
