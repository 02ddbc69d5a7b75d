package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Metadata keys written by the engine.
const (
	MetaRiskAssessment   = "risk_assessment"
	MetaRouting          = "routing"
	MetaAction           = "action"
	MetaReason           = "reason"
	MetaActorIP          = "actor_ip"
	MetaActorAgent       = "actor_agent"
	MetaAdminID          = "admin_id"
	MetaApprovedAt       = "approved_at"
	MetaRejectionReason  = "rejection_reason"
	MetaEscalationReason = "escalation_reason"
	MetaExecution        = "execution"
)

var reservedKeys = []string{
	MetaRiskAssessment, MetaRouting, MetaAction, MetaReason, MetaActorIP, MetaActorAgent,
	MetaAdminID, MetaApprovedAt, MetaRejectionReason, MetaEscalationReason, MetaExecution,
}

// Metadata holds loosely typed request details
type Metadata map[string]interface{}

// Reserved returns the engine keys present in m.
func (m Metadata) Reserved() []string {
	var ret []string
	for _, key := range reservedKeys {
		if _, ok := m[key]; ok {
			ret = append(ret, key)
		}
	}
	return ret
}

// Clone returns a shallow copy; nil stays nil.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	ret := make(Metadata, len(m))
	for k, v := range m {
		ret[k] = v
	}
	return ret
}

// Merge copies every entry of other into a clone of m.
func (m Metadata) Merge(other Metadata) Metadata {
	ret := m.Clone()
	if ret == nil {
		ret = Metadata{}
	}
	for k, v := range other {
		ret[k] = v
	}
	return ret
}

// String returns a string value or empty.
func (m Metadata) String(key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// UnmarshalJSON restores the typed values of engine keys so that metadata
// read back from storage matches the metadata that was written.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*m = nil
		return nil
	}
	ret := make(Metadata, len(raw))
	for key, value := range raw {
		var err error
		switch key {
		case MetaRiskAssessment:
			assessment := &RiskAssessment{}
			err = json.Unmarshal(value, assessment)
			ret[key] = assessment
		case MetaRouting:
			routing := &Routing{}
			err = json.Unmarshal(value, routing)
			ret[key] = routing
		case MetaApprovedAt:
			var at time.Time
			err = json.Unmarshal(value, &at)
			ret[key] = at
		default:
			var v interface{}
			err = json.Unmarshal(value, &v)
			ret[key] = v
		}
		if err != nil {
			return fmt.Errorf("invalid metadata %s: %w", key, err)
		}
	}
	*m = ret
	return nil
}
