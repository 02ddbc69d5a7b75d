// Package directory answers questions about admins: who may approve, and how
// they performed historically. Statistics are derived from the transition log
// and the current approval records.
package directory

import (
	"context"
	"time"

	"github.com/viant/adminflow/model"
	"github.com/viant/adminflow/service/dao"
)

// ActionStats counts approvals of one action.
type ActionStats struct {
	Approvals int `json:"approvals"`
	Successes int `json:"successes"`
}

// SuccessRate returns successes/approvals, zero without approvals.
func (a ActionStats) SuccessRate() float64 {
	if a.Approvals == 0 {
		return 0
	}
	return float64(a.Successes) / float64(a.Approvals)
}

// Stats summarises the history of an admin. An approval is successful when
// it was not reversed afterwards.
type Stats struct {
	AdminID   string                        `json:"adminId"`
	Approvals int                           `json:"approvals"`
	Successes int                           `json:"successes"`
	ByAction  map[model.Action]*ActionStats `json:"byAction,omitempty"`
	// Workload counts open requests assigned to the admin by routing.
	Workload int `json:"workload"`
}

// SuccessRate returns successes/approvals, zero without approvals.
func (s *Stats) SuccessRate() float64 {
	return ActionStats{Approvals: s.Approvals, Successes: s.Successes}.SuccessRate()
}

// Action returns the stats of action, never nil.
func (s *Stats) Action(action model.Action) ActionStats {
	if stats, ok := s.ByAction[action]; ok {
		return *stats
	}
	return ActionStats{}
}

// Service computes admin statistics
type Service struct {
	roster    Roster
	events    dao.EventDAO
	approvals dao.ApprovalDAO
}

// New creates a directory service
func New(roster Roster, events dao.EventDAO, approvals dao.ApprovalDAO) *Service {
	return &Service{roster: roster, events: events, approvals: approvals}
}

// Roster returns the admin roster.
func (s *Service) Roster() Roster { return s.roster }

// Admin returns the roster entry of id.
func (s *Service) Admin(ctx context.Context, id string) (*Admin, error) {
	return s.roster.Admin(ctx, id)
}

// Stats returns the statistics of adminID.
func (s *Service) Stats(ctx context.Context, adminID string) (*Stats, error) {
	all, err := s.collect(ctx, map[string]bool{adminID: true})
	if err != nil {
		return nil, err
	}
	return all[adminID], nil
}

// AllStats returns statistics of every admin able to approve, ordered by id.
func (s *Service) AllStats(ctx context.Context) ([]*Stats, error) {
	admins, err := s.roster.Admins(ctx)
	if err != nil {
		return nil, err
	}
	wanted := map[string]bool{}
	var ids []string
	for _, admin := range admins {
		if admin.CanApprove() {
			wanted[admin.ID] = true
			ids = append(ids, admin.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	all, err := s.collect(ctx, wanted)
	if err != nil {
		return nil, err
	}
	ret := make([]*Stats, len(ids))
	for i, id := range ids {
		ret[i] = all[id]
	}
	return ret, nil
}

func (s *Service) collect(ctx context.Context, wanted map[string]bool) (map[string]*Stats, error) {
	ids := make([]string, 0, len(wanted))
	ret := make(map[string]*Stats, len(wanted))
	for id := range wanted {
		ids = append(ids, id)
		ret[id] = &Stats{AdminID: id, ByAction: map[model.Action]*ActionStats{}}
	}
	activity, err := s.loadActivity(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, count := range activity.counts {
		stats, ok := ret[count.AdminID]
		if !ok {
			continue
		}
		stats.Approvals += count.Approvals
		stats.Successes += count.Successes
		stats.ByAction[count.Action] = &ActionStats{Approvals: count.Approvals, Successes: count.Successes}
	}
	for _, request := range activity.open {
		if stats, ok := ret[request.AssignedAdminID()]; ok {
			stats.Workload++
		}
	}
	return ret, nil
}

// loadActivity reads approval counts and open requests, once per snapshot.
func (s *Service) loadActivity(ctx context.Context, ids []string) (*activity, error) {
	if memo, ok := ctx.Value(snapshotKey{}).(*snapshot); ok {
		return memo.load(ctx, func(ctx context.Context) (*activity, error) { return s.read(ctx, nil) })
	}
	return s.read(ctx, ids)
}

func (s *Service) read(ctx context.Context, ids []string) (*activity, error) {
	var counts []*dao.ApprovalCount
	var err error
	if aggregator, ok := s.events.(dao.StatsDAO); ok {
		counts, err = aggregator.ApprovalCounts(ctx, ids)
	} else {
		counts, err = s.countApprovals(ctx, ids)
	}
	if err != nil {
		return nil, err
	}
	open, err := s.approvals.List(ctx, dao.WithStatus(model.StatusPending, model.StatusUnderReview))
	if err != nil {
		return nil, err
	}
	return &activity{counts: counts, open: open}, nil
}

// countApprovals scans the transition log of event stores without aggregation.
func (s *Service) countApprovals(ctx context.Context, ids []string) ([]*dao.ApprovalCount, error) {
	events, err := s.events.EventsBetween(ctx, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	wanted := map[string]bool{}
	for _, id := range ids {
		wanted[id] = true
	}
	last := map[string]int{}
	for i, event := range events {
		last[event.ApprovalID] = i
	}
	type key struct {
		admin  string
		action model.Action
	}
	index := map[key]*dao.ApprovalCount{}
	var ret []*dao.ApprovalCount
	for i, event := range events {
		if event.NewStatus != model.StatusApproved || (len(wanted) > 0 && !wanted[event.AdminID]) {
			continue
		}
		k := key{admin: event.AdminID, action: event.Action}
		count, ok := index[k]
		if !ok {
			count = &dao.ApprovalCount{AdminID: event.AdminID, Action: event.Action}
			index[k] = count
			ret = append(ret, count)
		}
		count.Approvals++
		if last[event.ApprovalID] == i {
			count.Successes++
		}
	}
	return ret, nil
}

// RejectionRate returns the share of rejected among decided requests of the
// same resource type and action created in [since, until). ok is false when
// no such request was decided.
func (s *Service) RejectionRate(ctx context.Context, resourceType model.ResourceType, action model.Action, since, until time.Time) (rate float64, ok bool, err error) {
	parameters := append(dao.WithCreatedBetween(since, until),
		dao.WithResourceType(resourceType),
		dao.WithAction(action),
		dao.WithStatus(model.StatusApproved, model.StatusRejected))
	decided, err := s.approvals.List(ctx, parameters...)
	if err != nil {
		return 0, false, err
	}
	if len(decided) == 0 {
		return 0, false, nil
	}
	rejected := 0
	for _, request := range decided {
		if request.Status == model.StatusRejected {
			rejected++
		}
	}
	return float64(rejected) / float64(len(decided)), true, nil
}
