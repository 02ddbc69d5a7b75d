package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/viant/adminflow/model"
	"github.com/viant/adminflow/service/dao"
	"github.com/viant/adminflow/service/dao/criteria"
)

// Service implements approval, event and outbox storage in memory. A single
// lock guards all three collections so every Create/Commit is atomic and
// serializable. All operations return **copies** of the stored objects to
// prevent data races when callers mutate the returned instances.
type Service struct {
	mux       sync.RWMutex
	approvals map[string]*model.ApprovalRequest
	events    map[string][]*model.TransitionEvent
	log       []*model.TransitionEvent
	outbox    map[string]*model.OutboxMessage
	outboxSeq []string

	// counts indexes approvals by admin and action; approvedBy holds the
	// latest event of requests whose latest transition is an approval.
	counts     map[string]map[model.Action]*dao.ApprovalCount
	approvedBy map[string]*model.TransitionEvent
}

// Compile-time checks.
var (
	_ dao.ApprovalDAO = (*Service)(nil)
	_ dao.EventDAO    = (*Service)(nil)
	_ dao.OutboxDAO   = (*Service)(nil)
	_ dao.StatsDAO    = (*Service)(nil)
)

// New constructor.
func New() *Service {
	return &Service{
		approvals:  map[string]*model.ApprovalRequest{},
		events:     map[string][]*model.TransitionEvent{},
		outbox:     map[string]*model.OutboxMessage{},
		counts:     map[string]map[model.Action]*dao.ApprovalCount{},
		approvedBy: map[string]*model.TransitionEvent{},
	}
}

// Create stores a new request with its creation event.
func (s *Service) Create(_ context.Context, request *model.ApprovalRequest, event *model.TransitionEvent, outbox []*model.OutboxMessage) error {
	if request == nil || event == nil {
		return dao.ErrNilEntity
	}
	if request.ID == "" {
		return dao.ErrInvalidID
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	if _, ok := s.approvals[request.ID]; ok {
		return dao.ErrDuplicate
	}
	s.approvals[request.ID] = request.Clone()
	s.appendEvent(event)
	s.enqueue(outbox)
	return nil
}

// Load retrieves a copy of the request or dao.ErrNotFound.
func (s *Service) Load(_ context.Context, id string) (*model.ApprovalRequest, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	s.mux.RLock()
	request, ok := s.approvals[id]
	s.mux.RUnlock()
	if !ok {
		return nil, dao.ErrNotFound
	}
	return request.Clone(), nil
}

// List returns copies of requests matching parameters, oldest first.
func (s *Service) List(_ context.Context, parameters ...*dao.Parameter) ([]*model.ApprovalRequest, error) {
	s.mux.RLock()
	out := make([]*model.ApprovalRequest, 0, len(s.approvals))
	for _, request := range s.approvals {
		if criteria.Matches(request, parameters) {
			out = append(out, request.Clone())
		}
	}
	s.mux.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Commit applies a compare-and-swap on version, then appends the event and
// outbox messages under the same lock.
func (s *Service) Commit(_ context.Context, commit *dao.Commit) error {
	if commit == nil || commit.Request == nil || commit.Event == nil {
		return dao.ErrNilEntity
	}
	id := commit.Request.ID
	s.mux.Lock()
	defer s.mux.Unlock()
	stored, ok := s.approvals[id]
	if !ok {
		return dao.ErrNotFound
	}
	if stored.Version != commit.ExpectedVersion || commit.Request.Version != commit.ExpectedVersion+1 {
		return &model.ConcurrencyConflictError{ApprovalID: id, Expected: commit.ExpectedVersion, Actual: stored.Version}
	}
	s.approvals[id] = commit.Request.Clone()
	s.appendEvent(commit.Event)
	s.enqueue(commit.Outbox)
	return nil
}

func (s *Service) appendEvent(event *model.TransitionEvent) {
	clone := *event
	clone.Metadata = event.Metadata.Clone()
	s.events[event.ApprovalID] = append(s.events[event.ApprovalID], &clone)
	s.log = append(s.log, &clone)
	s.countApproval(&clone)
}

func (s *Service) countApproval(event *model.TransitionEvent) {
	if previous, ok := s.approvedBy[event.ApprovalID]; ok {
		s.count(previous).Successes--
		delete(s.approvedBy, event.ApprovalID)
	}
	if event.NewStatus != model.StatusApproved {
		return
	}
	count := s.count(event)
	count.Approvals++
	count.Successes++
	s.approvedBy[event.ApprovalID] = event
}

func (s *Service) count(event *model.TransitionEvent) *dao.ApprovalCount {
	byAction, ok := s.counts[event.AdminID]
	if !ok {
		byAction = map[model.Action]*dao.ApprovalCount{}
		s.counts[event.AdminID] = byAction
	}
	count, ok := byAction[event.Action]
	if !ok {
		count = &dao.ApprovalCount{AdminID: event.AdminID, Action: event.Action}
		byAction[event.Action] = count
	}
	return count
}

// ApprovalCounts returns the indexed approval counts ordered by admin, then action.
func (s *Service) ApprovalCounts(_ context.Context, adminIDs []string) ([]*dao.ApprovalCount, error) {
	s.mux.RLock()
	var out []*dao.ApprovalCount
	collect := func(byAction map[model.Action]*dao.ApprovalCount) {
		for _, count := range byAction {
			clone := *count
			out = append(out, &clone)
		}
	}
	if len(adminIDs) == 0 {
		for _, byAction := range s.counts {
			collect(byAction)
		}
	}
	for _, id := range adminIDs {
		collect(s.counts[id])
	}
	s.mux.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].AdminID == out[j].AdminID {
			return out[i].Action < out[j].Action
		}
		return out[i].AdminID < out[j].AdminID
	})
	return out, nil
}

func (s *Service) enqueue(messages []*model.OutboxMessage) {
	for _, message := range messages {
		clone := *message
		s.outbox[message.ID] = &clone
		s.outboxSeq = append(s.outboxSeq, message.ID)
	}
}

// Events returns copies of the events of approvalID in order.
func (s *Service) Events(_ context.Context, approvalID string) ([]*model.TransitionEvent, error) {
	if approvalID == "" {
		return nil, dao.ErrInvalidID
	}
	s.mux.RLock()
	out := copyEvents(s.events[approvalID])
	s.mux.RUnlock()
	sortEvents(out)
	return out, nil
}

// EventsBetween returns events with from <= occurredAt < to; a zero bound is open.
func (s *Service) EventsBetween(_ context.Context, from, to time.Time) ([]*model.TransitionEvent, error) {
	s.mux.RLock()
	var selected []*model.TransitionEvent
	for _, event := range s.log {
		if !from.IsZero() && event.OccurredAt.Before(from) {
			continue
		}
		if !to.IsZero() && !event.OccurredAt.Before(to) {
			continue
		}
		selected = append(selected, event)
	}
	out := copyEvents(selected)
	s.mux.RUnlock()
	sortEvents(out)
	return out, nil
}

// Pending returns undelivered messages due at now, in write order. Messages
// queued behind a not yet due message of the same approval are held back.
func (s *Service) Pending(_ context.Context, now time.Time, limit int) ([]*model.OutboxMessage, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	var out []*model.OutboxMessage
	blocked := map[string]bool{}
	for _, id := range s.outboxSeq {
		message := s.outbox[id]
		if message.DispatchedAt != nil || message.DeadLettered || blocked[message.ApprovalID] {
			continue
		}
		if message.NextAttemptAt.After(now) {
			blocked[message.ApprovalID] = true
			continue
		}
		clone := *message
		out = append(out, &clone)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// MarkDispatched records a successful delivery.
func (s *Service) MarkDispatched(_ context.Context, id string, at time.Time) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	message, ok := s.outbox[id]
	if !ok {
		return dao.ErrNotFound
	}
	message.DispatchedAt = &at
	message.LastError = ""
	return nil
}

// MarkFailed records a failed delivery attempt.
func (s *Service) MarkFailed(_ context.Context, id string, reason string, nextAttemptAt time.Time, deadLetter bool) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	message, ok := s.outbox[id]
	if !ok {
		return dao.ErrNotFound
	}
	message.Attempts++
	message.LastError = reason
	message.NextAttemptAt = nextAttemptAt
	message.DeadLettered = deadLetter
	return nil
}

// Outbox returns copies of every outbox message in write order.
func (s *Service) Outbox() []*model.OutboxMessage {
	s.mux.RLock()
	defer s.mux.RUnlock()
	out := make([]*model.OutboxMessage, 0, len(s.outboxSeq))
	for _, id := range s.outboxSeq {
		clone := *s.outbox[id]
		out = append(out, &clone)
	}
	return out
}

func copyEvents(events []*model.TransitionEvent) []*model.TransitionEvent {
	out := make([]*model.TransitionEvent, len(events))
	for i, event := range events {
		clone := *event
		clone.Metadata = event.Metadata.Clone()
		out[i] = &clone
	}
	return out
}

func sortEvents(events []*model.TransitionEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].OccurredAt.Equal(events[j].OccurredAt) {
			if events[i].ApprovalID == events[j].ApprovalID {
				return events[i].Version < events[j].Version
			}
			return events[i].ID < events[j].ID
		}
		return events[i].OccurredAt.Before(events[j].OccurredAt)
	})
}
