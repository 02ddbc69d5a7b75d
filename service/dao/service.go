package dao

import (
	"context"
	"time"

	"github.com/viant/adminflow/model"
)

type Service[K comparable, T any] interface {
	Save(ctx context.Context, t *T) error

	Load(ctx context.Context, id K) (*T, error)

	Delete(ctx context.Context, id K) error

	List(ctx context.Context, parameters ...*Parameter) ([]*T, error)
}

// AssessmentDAO stores risk assessments for the model-training export.
type AssessmentDAO = Service[string, model.RiskAssessment]

// Commit describes one atomic state change: the new request state guarded by
// the version the writer read, the audit event and the outbox messages.
type Commit struct {
	Request         *model.ApprovalRequest
	ExpectedVersion int
	Event           *model.TransitionEvent
	Outbox          []*model.OutboxMessage
}

// ApprovalDAO persists approval requests. Create and Commit write the request,
// its event and outbox messages in one serializable unit; Commit fails with
// *model.ConcurrencyConflictError when the stored version moved on.
type ApprovalDAO interface {
	Create(ctx context.Context, request *model.ApprovalRequest, event *model.TransitionEvent, outbox []*model.OutboxMessage) error

	Load(ctx context.Context, id string) (*model.ApprovalRequest, error)

	List(ctx context.Context, parameters ...*Parameter) ([]*model.ApprovalRequest, error)

	Commit(ctx context.Context, commit *Commit) error
}

// EventDAO reads the append-only transition log. Events are returned ordered
// by occurrence, then version.
type EventDAO interface {
	Events(ctx context.Context, approvalID string) ([]*model.TransitionEvent, error)

	EventsBetween(ctx context.Context, from, to time.Time) ([]*model.TransitionEvent, error)
}

// ApprovalCount aggregates the approvals one admin made for one action.
// Successes counts approvals that are still the latest transition of their
// request.
type ApprovalCount struct {
	AdminID   string
	Action    model.Action
	Approvals int
	Successes int
}

// StatsDAO aggregates the transition log per approving admin. An empty
// adminIDs selects every admin.
type StatsDAO interface {
	ApprovalCounts(ctx context.Context, adminIDs []string) ([]*ApprovalCount, error)
}

// OutboxDAO drains published events written by Create/Commit.
type OutboxDAO interface {
	Pending(ctx context.Context, now time.Time, limit int) ([]*model.OutboxMessage, error)

	MarkDispatched(ctx context.Context, id string, at time.Time) error

	MarkFailed(ctx context.Context, id string, reason string, nextAttemptAt time.Time, deadLetter bool) error
}
