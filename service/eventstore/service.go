// Package eventstore reads the append-only transition log and rebuilds
// approval state from it.
package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/viant/adminflow/model"
	"github.com/viant/adminflow/runtime/transition"
	"github.com/viant/adminflow/service/dao"
)

// MismatchError reports fields on which the live record and its replay differ.
type MismatchError struct {
	ApprovalID string
	Fields     []string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("approval %s diverges from its event log on: %s", e.ApprovalID, strings.Join(e.Fields, ", "))
}

// Service represents the event store read side
type Service struct {
	events    dao.EventDAO
	approvals dao.ApprovalDAO
}

// New creates an event store
func New(events dao.EventDAO, approvals dao.ApprovalDAO) *Service {
	return &Service{events: events, approvals: approvals}
}

// Events returns the ordered history of approvalID.
func (s *Service) Events(ctx context.Context, approvalID string) ([]*model.TransitionEvent, error) {
	return s.events.Events(ctx, approvalID)
}

// Between returns events with from <= occurredAt < to across approvals.
func (s *Service) Between(ctx context.Context, from, to time.Time) ([]*model.TransitionEvent, error) {
	return s.events.EventsBetween(ctx, from, to)
}

// Replay folds the history of approvalID through the status machine.
func (s *Service) Replay(ctx context.Context, approvalID string) (*model.ApprovalRequest, error) {
	events, err := s.events.Events(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, dao.ErrNotFound
	}
	state, err := transition.Replay(events)
	if err != nil {
		return nil, fmt.Errorf("failed to replay %s: %w", approvalID, err)
	}
	return state, nil
}

// Verify replays approvalID and compares the result with the stored record.
func (s *Service) Verify(ctx context.Context, approvalID string) error {
	replayed, err := s.Replay(ctx, approvalID)
	if err != nil {
		return err
	}
	live, err := s.approvals.Load(ctx, approvalID)
	if err != nil {
		return err
	}
	if fields := Diff(live, replayed); len(fields) > 0 {
		return &MismatchError{ApprovalID: approvalID, Fields: fields}
	}
	return nil
}

// Diff lists the fields on which a and b differ. Timestamps compare as
// instants and metadata compares by its JSON form.
func Diff(a, b *model.ApprovalRequest) []string {
	var fields []string
	check := func(name string, equal bool) {
		if !equal {
			fields = append(fields, name)
		}
	}
	check("id", a.ID == b.ID)
	check("admin_id", a.AdminID == b.AdminID)
	check("resource_type", a.ResourceType == b.ResourceType)
	check("resource_id", a.ResourceID == b.ResourceID)
	check("action", a.Action == b.Action)
	check("status", a.Status == b.Status)
	check("reason", a.Reason == b.Reason)
	check("version", a.Version == b.Version)
	check("created_at", a.CreatedAt.Equal(b.CreatedAt))
	check("approved_at", sameInstant(a.ApprovedAt, b.ApprovedAt))
	check("metadata", reflect.DeepEqual(canonical(a.Metadata), canonical(b.Metadata)))
	return fields
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// canonical converts metadata into plain JSON values with timestamps in UTC.
func canonical(metadata model.Metadata) interface{} {
	if len(metadata) == 0 {
		return nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return err.Error()
	}
	var ret interface{}
	if err = json.Unmarshal(data, &ret); err != nil {
		return err.Error()
	}
	return normalize(ret)
}

func normalize(value interface{}) interface{} {
	switch actual := value.(type) {
	case map[string]interface{}:
		for k, v := range actual {
			actual[k] = normalize(v)
		}
		return actual
	case []interface{}:
		for i, v := range actual {
			actual[i] = normalize(v)
		}
		return actual
	case string:
		if at, err := time.Parse(time.RFC3339Nano, actual); err == nil {
			return at.UTC().Format(time.RFC3339Nano)
		}
	}
	return value
}
