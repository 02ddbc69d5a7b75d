package risk

import (
	"math"
	"time"

	"github.com/viant/adminflow/model"
	"github.com/viant/adminflow/policy"
)

// Factor weights; they sum to 1.
var Weights = map[string]float64{
	model.FactorAmount:             0.30,
	model.FactorAdminExperience:    0.25,
	model.FactorResourceComplexity: 0.20,
	model.FactorHistoricalPattern:  0.15,
	model.FactorTemporal:           0.10,
}

const (
	maxAmountRisk          = 0.9
	amountScale            = 6.0
	noviceThreshold        = 10
	noviceRisk             = 0.8
	noHistoryRisk          = 0.1
	historyWindow          = 30 * 24 * time.Hour
	businessHoursRisk      = 0.1
	eveningRisk            = 0.3
	offHoursRisk           = 0.5
	fallbackComplexityPart = 0.5
	fallbackBase           = 0.25
)

var complexity = map[model.ResourceType]float64{
	model.ResourceDispute: 0.7,
	model.ResourceEscrow:  0.3,
	model.ResourceOrder:   0.2,
}

// AmountRisk grows with the order of magnitude of the amount in major units:
// log10(1+amount)/6, capped at 0.9.
func AmountRisk(minorUnits int64) float64 {
	if minorUnits <= 0 {
		return 0
	}
	major := policy.MajorUnits(minorUnits).InexactFloat64()
	return math.Min(maxAmountRisk, math.Log10(1+major)/amountScale)
}

// AdminExperienceRisk is 1 - success rate, or flat 0.8 below 10 approvals.
func AdminExperienceRisk(approvals int, successRate float64) float64 {
	if approvals < noviceThreshold {
		return noviceRisk
	}
	return clamp(1 - successRate)
}

// ComplexityRisk returns the constant of resourceType.
func ComplexityRisk(resourceType model.ResourceType) float64 {
	if v, ok := complexity[resourceType]; ok {
		return v
	}
	return complexity[model.ResourceDispute]
}

// HistoricalRisk is the rejection rate of similar requests, or 0.1 without
// history.
func HistoricalRisk(rejectionRate float64, hasHistory bool) float64 {
	if !hasHistory {
		return noHistoryRisk
	}
	return clamp(rejectionRate)
}

// TemporalRisk buckets the time of day: weekday business hours (09:00-18:00)
// 0.1, other daytime and evening hours (06:00-22:00) 0.3, night 0.5.
func TemporalRisk(at time.Time) float64 {
	hour := at.Hour()
	weekend := at.Weekday() == time.Saturday || at.Weekday() == time.Sunday
	switch {
	case !weekend && hour >= 9 && hour < 18:
		return businessHoursRisk
	case hour >= 6 && hour < 22:
		return eveningRisk
	default:
		return offHoursRisk
	}
}

// Score combines factors with Weights and clamps the sum to [0,1].
func Score(factors map[string]float64) float64 {
	var sum float64
	for name, weight := range Weights {
		sum += weight * factors[name]
	}
	return clamp(sum)
}

// FallbackScore is the heuristic used when scoring times out.
func FallbackScore(resourceType model.ResourceType) float64 {
	return clamp(fallbackComplexityPart*ComplexityRisk(resourceType) + fallbackBase)
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
