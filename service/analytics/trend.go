package analytics

import (
	"math"
	"time"
)

// Trend directions.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
	DirectionFlat = "flat"
)

// flatSlope is the slope (approvals per day) below which a trend is flat.
const flatSlope = 0.05

// Trend is the linear trend of daily approvals.
type Trend struct {
	Direction string `json:"direction"`
	// Magnitude is the absolute slope in approvals per day.
	Magnitude float64   `json:"magnitude"`
	Daily     []float64 `json:"daily,omitempty"`
}

// Slope returns the least squares slope of values over their index.
func Slope(values []float64) float64 {
	n := float64(len(values))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denominator := n*sumXX - sumX*sumX
	if denominator == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denominator
}

// NewTrend builds the trend of daily counts.
func NewTrend(daily []float64) *Trend {
	slope := Slope(daily)
	ret := &Trend{Direction: DirectionFlat, Magnitude: math.Abs(slope), Daily: daily}
	switch {
	case slope > flatSlope:
		ret.Direction = DirectionUp
	case slope < -flatSlope:
		ret.Direction = DirectionDown
	}
	return ret
}

// days returns the number of whole or partial UTC days in [from, to).
func days(from, to time.Time) int {
	start := from.UTC().Truncate(24 * time.Hour)
	if !to.After(start) {
		return 0
	}
	return int((to.Sub(start) + 24*time.Hour - 1) / (24 * time.Hour))
}

func dayIndex(from, at time.Time) int {
	start := from.UTC().Truncate(24 * time.Hour)
	return int(at.UTC().Sub(start) / (24 * time.Hour))
}
