package model

// Status represents the lifecycle status of an approval request
type Status string

const (
	StatusPending     Status = "pending"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusEscalated   Status = "escalated"
)

// Statuses lists every known status in declaration order.
var Statuses = []Status{StatusPending, StatusUnderReview, StatusApproved, StatusRejected, StatusEscalated}

// IsValid returns true for a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusUnderReview, StatusApproved, StatusRejected, StatusEscalated:
		return true
	}
	return false
}

// IsOpen returns true while the request still waits for a decision; open
// requests count towards an admin's workload.
func (s Status) IsOpen() bool {
	return s == StatusPending || s == StatusUnderReview
}

// IsDecided returns true for approved or rejected requests.
func (s Status) IsDecided() bool {
	return s == StatusApproved || s == StatusRejected
}
