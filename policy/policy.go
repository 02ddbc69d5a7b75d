package policy

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/viant/adminflow/model"
)

// Threshold defaults.
const (
	DefaultSoftThreshold   = 0.7
	DefaultHardCeiling     = 0.8
	DefaultExperiencedBand = 0.5
	// MinorUnitExponent converts stored minor units into major units.
	MinorUnitExponent = -2
)

// Decision is the risk band of a score.
type Decision string

const (
	DecisionStandard    Decision = "standard"
	DecisionExperienced Decision = "experienced"
	DecisionEscalate    Decision = "escalate"
	DecisionDeny        Decision = "deny"
)

// Policy represents the risk thresholds in force.
//
//   - scores above HardCeiling are refused when approving,
//   - scores above SoftThreshold, or high-value resources, must be escalated,
//   - scores above ExperiencedBand go to an experienced admin.
type Policy struct {
	SoftThreshold   float64
	HardCeiling     float64
	ExperiencedBand float64
	// HighValue holds per resource type limits in major currency units.
	HighValue map[model.ResourceType]decimal.Decimal
}

// Default returns the engine policy: escrow above $1000 and orders above
// $5000 are high value.
func Default() *Policy {
	return &Policy{
		SoftThreshold:   DefaultSoftThreshold,
		HardCeiling:     DefaultHardCeiling,
		ExperiencedBand: DefaultExperiencedBand,
		HighValue: map[model.ResourceType]decimal.Decimal{
			model.ResourceEscrow: decimal.NewFromInt(1000),
			model.ResourceOrder:  decimal.NewFromInt(5000),
		},
	}
}

// MajorUnits converts a minor-unit amount to major units.
func MajorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, MinorUnitExponent)
}

// IsHighValue returns true when amount (minor units) exceeds the limit of
// resourceType. Resource types without a limit are never high value.
func (p *Policy) IsHighValue(resourceType model.ResourceType, amount int64) bool {
	limit, ok := p.HighValue[resourceType]
	if !ok {
		return false
	}
	return MajorUnits(amount).GreaterThan(limit)
}

// RequiresAdditionalApproval returns true above the soft threshold or for a
// high-value resource.
func (p *Policy) RequiresAdditionalApproval(score float64, highValue bool) bool {
	return highValue || score > p.SoftThreshold
}

// ExceedsCeiling returns true above the hard ceiling.
func (p *Policy) ExceedsCeiling(score float64) bool {
	return score > p.HardCeiling
}

// Decide maps a score to its band.
func (p *Policy) Decide(score float64, highValue bool) Decision {
	switch {
	case p.ExceedsCeiling(score):
		return DecisionDeny
	case p.RequiresAdditionalApproval(score, highValue):
		return DecisionEscalate
	case score > p.ExperiencedBand:
		return DecisionExperienced
	default:
		return DecisionStandard
	}
}

// ---------------------------------------------------------------------------
// Config <-> Policy converters
// ---------------------------------------------------------------------------

// Config represents the serialisable thresholds.
type Config struct {
	SoftThreshold   float64           `json:"softThreshold,omitempty" yaml:"softThreshold,omitempty" env:"SOFT_THRESHOLD"`
	HardCeiling     float64           `json:"hardCeiling,omitempty" yaml:"hardCeiling,omitempty" env:"HARD_CEILING"`
	ExperiencedBand float64           `json:"experiencedBand,omitempty" yaml:"experiencedBand,omitempty" env:"EXPERIENCED_BAND"`
	HighValue       map[string]string `json:"highValue,omitempty" yaml:"highValue,omitempty" env:"HIGH_VALUE"`
}

// ToConfig converts a Policy into a persistable Config.
func ToConfig(p *Policy) *Config {
	if p == nil {
		return nil
	}
	ret := &Config{
		SoftThreshold:   p.SoftThreshold,
		HardCeiling:     p.HardCeiling,
		ExperiencedBand: p.ExperiencedBand,
		HighValue:       map[string]string{},
	}
	for k, v := range p.HighValue {
		ret.HighValue[string(k)] = v.String()
	}
	return ret
}

// FromConfig converts a Config to a Policy; zero fields keep defaults.
func FromConfig(c *Config) (*Policy, error) {
	ret := Default()
	if c == nil {
		return ret, nil
	}
	if c.SoftThreshold > 0 {
		ret.SoftThreshold = c.SoftThreshold
	}
	if c.HardCeiling > 0 {
		ret.HardCeiling = c.HardCeiling
	}
	if c.ExperiencedBand > 0 {
		ret.ExperiencedBand = c.ExperiencedBand
	}
	for k, v := range c.HighValue {
		limit, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("invalid high value limit for %s: %w", k, err)
		}
		ret.HighValue[model.ResourceType(k)] = limit
	}
	return ret, ret.Validate()
}

// Validate checks threshold ordering.
func (p *Policy) Validate() error {
	if !(p.ExperiencedBand <= p.SoftThreshold && p.SoftThreshold <= p.HardCeiling && p.HardCeiling <= 1) {
		return fmt.Errorf("thresholds must satisfy experiencedBand <= softThreshold <= hardCeiling <= 1, got %v/%v/%v",
			p.ExperiencedBand, p.SoftThreshold, p.HardCeiling)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Context helpers
// ---------------------------------------------------------------------------

type ctxKeyT struct{}

var ctxKey ctxKeyT

// WithPolicy embeds policy in ctx.
func WithPolicy(ctx context.Context, p *Policy) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey, p)
}

// FromContext extracts the policy, or nil.
func FromContext(ctx context.Context) *Policy {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxKey).(*Policy); ok {
		return v
	}
	return nil
}

// Resolve returns the context policy when present, otherwise fallback.
func Resolve(ctx context.Context, fallback *Policy) *Policy {
	if p := FromContext(ctx); p != nil {
		return p
	}
	if fallback != nil {
		return fallback
	}
	return Default()
}
