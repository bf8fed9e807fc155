// Package rewards holds the pure accrual math: activity scoring, the UTC day
// window and the daily cap allocator. Nothing in here performs I/O.
package rewards

import "math"

// Kind is the workout category an activity was recorded as.
type Kind string

const (
	KindRun  Kind = "RUN"
	KindWalk Kind = "WALK"
)

// EligibleKinds lists the kinds that earn rewards.
var EligibleKinds = []Kind{KindRun, KindWalk}

// Eligible reports whether activities of this kind earn rewards.
func (k Kind) Eligible() bool {
	return k == KindRun || k == KindWalk
}

const (
	// NoSpeedIntensity is the score assigned when speed data is missing.
	NoSpeedIntensity = 10

	minIntensityMultiplier = 0.6
	maxIntensityMultiplier = 2.0
)

type speedPoint struct {
	speed float64
	score float64
}

// speedCurve is a piecewise-linear speed to score mapping through three reference points.
type speedCurve struct {
	low, mid, high speedPoint
	floor, ceiling int
}

var curves = map[Kind]speedCurve{
	KindWalk: {
		low:   speedPoint{speed: 0.8, score: 20},
		mid:   speedPoint{speed: 1.5, score: 70},
		high:  speedPoint{speed: 2.2, score: 90},
		floor: 10, ceiling: 95,
	},
	KindRun: {
		low:   speedPoint{speed: 2.0, score: 30},
		mid:   speedPoint{speed: 3.3, score: 70},
		high:  speedPoint{speed: 5.0, score: 95},
		floor: 10, ceiling: 98,
	},
}

// IntensityBounds returns the floor and ceiling a kind's intensity is clamped to.
func IntensityBounds(kind Kind) (floor, ceiling int) {
	c, ok := curves[kind]
	if !ok {
		return NoSpeedIntensity, NoSpeedIntensity
	}
	return c.floor, c.ceiling
}

// Intensity maps an average speed in m/s to a 0-100 score for the given kind.
// Missing or non-positive speed yields NoSpeedIntensity.
func Intensity(kind Kind, avgSpeedMps *float64) int {
	c, ok := curves[kind]
	if !ok || avgSpeedMps == nil || *avgSpeedMps <= 0 || math.IsNaN(*avgSpeedMps) {
		return NoSpeedIntensity
	}
	return c.score(*avgSpeedMps)
}

func (c speedCurve) score(speed float64) int {
	var raw float64
	if speed <= c.mid.speed {
		raw = interpolate(c.low, c.mid, speed)
	} else {
		raw = interpolate(c.mid, c.high, speed)
	}
	return clampInt(int(math.Floor(raw+0.5)), c.floor, c.ceiling)
}

// interpolate extends the segment through a and b beyond its ends.
func interpolate(a, b speedPoint, speed float64) float64 {
	slope := (b.score - a.score) / (b.speed - a.speed)
	return a.score + (speed-a.speed)*slope
}

// Earned computes the reward for one activity:
// minutes * baseRate * intensityMultiplier * genuineMultiplier.
// Both scores are clamped to [0,100]; the result is never negative.
func Earned(durationSec int, intensity, genuine int, baseRatePerMinute float64) float64 {
	if durationSec <= 0 || baseRatePerMinute <= 0 {
		return 0
	}
	minutes := float64(durationSec) / 60
	intensityMultiplier := minIntensityMultiplier + float64(clampInt(intensity, 0, 100))/100*(maxIntensityMultiplier-minIntensityMultiplier)
	genuineMultiplier := float64(clampInt(genuine, 0, 100)) / 100
	return math.Max(0, minutes*baseRatePerMinute*intensityMultiplier*genuineMultiplier)
}

func clampInt(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
