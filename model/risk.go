package model

import "time"

// Risk factor names.
const (
	FactorAmount             = "amount_risk"
	FactorAdminExperience    = "admin_experience_risk"
	FactorResourceComplexity = "resource_complexity_risk"
	FactorHistoricalPattern  = "historical_pattern_risk"
	FactorTemporal           = "temporal_risk"
)

// RiskAssessment is the scored outcome of the risk engine.
type RiskAssessment struct {
	ID           string             `json:"id"`
	ApprovalID   string             `json:"approvalId,omitempty"`
	AdminID      string             `json:"adminId"`
	ResourceType ResourceType       `json:"resourceType"`
	ResourceID   string             `json:"resourceId"`
	Action       Action             `json:"action"`
	Score        float64            `json:"score"`
	Factors      map[string]float64 `json:"factors"`
	// HighValue is set when the resource amount exceeds its fixed limit.
	HighValue                  bool      `json:"highValue,omitempty"`
	RequiresAdditionalApproval bool      `json:"requiresAdditionalApproval"`
	Fallback                   bool      `json:"fallback,omitempty"`
	AssessedAt                 time.Time `json:"assessedAt"`
}

// RoutingStrategy names the selected routing rule set.
type RoutingStrategy string

const (
	StrategyEscalated   RoutingStrategy = "escalated_approval"
	StrategyExperienced RoutingStrategy = "experienced_admin"
	StrategyStandard    RoutingStrategy = "standard_routing"
)

// Routing is the routing decision attached to a request.
type Routing struct {
	Strategy           RoutingStrategy `json:"strategy"`
	AssignedAdminID    string          `json:"assignedAdminId,omitempty"`
	RequiresEscalation bool            `json:"requiresEscalation"`
}
