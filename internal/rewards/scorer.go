package rewards

import (
	"math"

	"github.com/shopspring/decimal"
)

// Measurement carries the activity fields scoring depends on.
type Measurement struct {
	Kind        Kind
	DurationSec int
	DistanceM   *float64
	AvgSpeedMps *float64
	// Intensity is the cached score; zero or negative means "not computed".
	Intensity *int
	Genuine   *int
}

// Score is the scoring result for one activity.
type Score struct {
	Intensity int
	Genuine   int
	Earned    decimal.Decimal
}

// Scorer applies the configured base rate and trust default.
type Scorer struct {
	BaseRatePerMinute float64
	DefaultGenuine    int
}

// Evaluate scores m, deriving speed from distance when it is missing.
func (s Scorer) Evaluate(m Measurement) Score {
	intensity := 0
	if m.Intensity != nil {
		intensity = *m.Intensity
	}
	if intensity <= 0 {
		intensity = Intensity(m.Kind, s.speed(m))
	}

	genuine := s.DefaultGenuine
	if m.Genuine != nil {
		genuine = *m.Genuine
	}

	earned := Earned(m.DurationSec, intensity, genuine, s.BaseRatePerMinute)
	return Score{
		Intensity: intensity,
		Genuine:   genuine,
		Earned:    decimal.NewFromFloat(earned),
	}
}

func (s Scorer) speed(m Measurement) *float64 {
	if m.AvgSpeedMps != nil && *m.AvgSpeedMps > 0 {
		return m.AvgSpeedMps
	}
	if m.DistanceM == nil || m.DurationSec <= 0 {
		return m.AvgSpeedMps
	}
	derived := AverageSpeed(*m.DistanceM, m.DurationSec)
	return &derived
}

// AverageSpeed returns distance/duration in m/s rounded to 3 decimals.
func AverageSpeed(distanceM float64, durationSec int) float64 {
	if durationSec <= 0 || distanceM <= 0 {
		return 0
	}
	return math.Round(distanceM/float64(durationSec)*1000) / 1000
}
