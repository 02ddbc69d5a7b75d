package model

import "time"

// ApprovalRequest tracks a privileged action awaiting admin sign-off.
type ApprovalRequest struct {
	ID           string       `json:"id"`
	AdminID      string       `json:"adminId"`
	ResourceType ResourceType `json:"resourceType"`
	ResourceID   string       `json:"resourceId"`
	Action       Action       `json:"action"`
	Status       Status       `json:"status"`
	Reason       string       `json:"reason,omitempty"`
	Metadata     Metadata     `json:"metadata,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	ApprovedAt   *time.Time   `json:"approvedAt,omitempty"`
	// Version increases by exactly one per committed transition.
	Version int `json:"version"`
}

// Clone returns a copy safe to mutate.
func (r *ApprovalRequest) Clone() *ApprovalRequest {
	if r == nil {
		return nil
	}
	ret := *r
	ret.Metadata = r.Metadata.Clone()
	if r.ApprovedAt != nil {
		at := *r.ApprovedAt
		ret.ApprovedAt = &at
	}
	return &ret
}

// State returns the outbound view of the request.
func (r *ApprovalRequest) State() *State {
	if r == nil {
		return nil
	}
	ret := &State{
		ApprovalID: r.ID,
		Status:     r.Status,
		Reason:     r.Reason,
		Metadata:   r.Metadata.Clone(),
		Version:    r.Version,
	}
	if r.ApprovedAt != nil {
		at := *r.ApprovedAt
		ret.ApprovedAt = &at
	}
	return ret
}

// RiskAssessment returns the attached assessment, if any.
func (r *ApprovalRequest) RiskAssessment() *RiskAssessment {
	if r == nil {
		return nil
	}
	assessment, _ := r.Metadata[MetaRiskAssessment].(*RiskAssessment)
	return assessment
}

// AssignedAdminID returns the admin selected by routing, if any.
func (r *ApprovalRequest) AssignedAdminID() string {
	if r == nil {
		return ""
	}
	switch routing := r.Metadata[MetaRouting].(type) {
	case *Routing:
		return routing.AssignedAdminID
	case map[string]interface{}:
		if v, ok := routing["assignedAdminId"].(string); ok {
			return v
		}
	}
	return ""
}

// State is the outbound result of a processed command.
type State struct {
	ApprovalID string     `json:"approvalId"`
	Status     Status     `json:"status"`
	Reason     string     `json:"reason,omitempty"`
	Metadata   Metadata   `json:"metadata,omitempty"`
	Version    int        `json:"version"`
	ApprovedAt *time.Time `json:"approvedAt,omitempty"`
}
