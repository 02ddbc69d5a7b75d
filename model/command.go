package model

import "strings"

// Actor describes where a command came from.
type Actor struct {
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// Command is an inbound admin instruction. Submit uses the resource fields
// to open a request; Process additionally needs ApprovalID and TargetStatus.
type Command struct {
	ApprovalID   string       `json:"approvalId,omitempty"`
	AdminID      string       `json:"adminId"`
	ResourceType ResourceType `json:"resourceType"`
	ResourceID   string       `json:"resourceId"`
	Action       Action       `json:"action"`
	TargetStatus Status       `json:"targetStatus,omitempty"`
	Reason       string       `json:"reason,omitempty"`
	Metadata     Metadata     `json:"metadata,omitempty"`
	// ExpectedVersion is the version the caller last read; zero means unknown.
	ExpectedVersion int    `json:"expectedVersion,omitempty"`
	Actor           *Actor `json:"actor,omitempty"`
}

// Validate checks the command shape shared by every operation.
func (c *Command) Validate() error {
	if c == nil {
		return NewValidationError("command", "command is nil")
	}
	var missing []string
	if strings.TrimSpace(c.AdminID) == "" {
		missing = append(missing, "admin_id")
	}
	if strings.TrimSpace(string(c.ResourceType)) == "" {
		missing = append(missing, "resource_type")
	}
	if strings.TrimSpace(c.ResourceID) == "" {
		missing = append(missing, "resource_id")
	}
	if strings.TrimSpace(string(c.Action)) == "" {
		missing = append(missing, "action")
	}
	if len(missing) > 0 {
		return NewValidationError("command", "missing "+strings.Join(missing, ", "))
	}
	if !c.ResourceType.IsValid() {
		return NewValidationError("resource_type", "unsupported resource type "+string(c.ResourceType))
	}
	if c.TargetStatus != "" && !c.TargetStatus.IsValid() {
		return NewValidationError("target_status", "unknown status "+string(c.TargetStatus))
	}
	if reserved := c.Metadata.Reserved(); len(reserved) > 0 {
		return NewValidationError("metadata", "reserved keys "+strings.Join(reserved, ", "))
	}
	return nil
}

// ValidateTransition checks fields required to transition an existing request.
func (c *Command) ValidateTransition() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.ApprovalID) == "" {
		return NewValidationError("approval_id", "missing approval_id")
	}
	if c.TargetStatus == "" {
		return NewValidationError("target_status", "missing target_status")
	}
	return nil
}

// ActorMetadata returns actor details keyed for event metadata.
func (c *Command) ActorMetadata() Metadata {
	ret := Metadata{}
	if c.Actor == nil {
		return ret
	}
	if c.Actor.IPAddress != "" {
		ret[MetaActorIP] = c.Actor.IPAddress
	}
	if c.Actor.UserAgent != "" {
		ret[MetaActorAgent] = c.Actor.UserAgent
	}
	return ret
}
