package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/viant/adminflow/internal/clock"
	"github.com/viant/adminflow/internal/metrics"
	"github.com/viant/adminflow/model"
	"github.com/viant/adminflow/service/analytics/cache"
	"github.com/viant/adminflow/service/dao"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config represents analytics settings
type Config struct {
	BucketSize time.Duration `json:"bucketSize,omitempty" yaml:"bucketSize,omitempty" env:"BUCKET_SIZE"`
	CacheTTL   time.Duration `json:"cacheTTL,omitempty" yaml:"cacheTTL,omitempty" env:"CACHE_TTL"`
}

// DefaultConfig returns hourly buckets cached for five minutes.
func DefaultConfig() Config {
	return Config{BucketSize: time.Hour, CacheTTL: 5 * time.Minute}
}

// Report kinds.
const (
	KindAdmin        = "admin"
	KindResourceType = "resource_type"
	KindTrend        = "trend"
)

const keyVersion = "v1"

// Summary aggregates approvals of one admin or resource type.
type Summary struct {
	Total       int     `json:"total"`
	Pending     int     `json:"pending"`
	UnderReview int     `json:"underReview"`
	Approved    int     `json:"approved"`
	Rejected    int     `json:"rejected"`
	Escalated   int     `json:"escalated"`
	SuccessRate float64 `json:"successRate"`
	// AverageProcessingTime is the mean time from creation to approval.
	AverageProcessingTime time.Duration `json:"averageProcessingTime"`

	processing time.Duration
}

func (s *Summary) count(status model.Status) {
	s.Total++
	switch status {
	case model.StatusPending:
		s.Pending++
	case model.StatusUnderReview:
		s.UnderReview++
	case model.StatusApproved:
		s.Approved++
	case model.StatusRejected:
		s.Rejected++
	case model.StatusEscalated:
		s.Escalated++
	}
}

func (s *Summary) finish() {
	if decided := s.Approved + s.Rejected; decided > 0 {
		s.SuccessRate = float64(s.Approved) / float64(decided)
	}
	if s.Approved > 0 {
		s.AverageProcessingTime = s.processing / time.Duration(s.Approved)
	}
}

// Report is the complete analytics view of a range.
type Report struct {
	From           time.Time                       `json:"from"`
	To             time.Time                       `json:"to"`
	ByAdmin        map[string]*Summary             `json:"byAdmin"`
	ByResourceType map[model.ResourceType]*Summary `json:"byResourceType"`
	Trend          *Trend                          `json:"trend"`
}

// Service computes analytics
type Service struct {
	config    Config
	approvals dao.ApprovalDAO
	events    dao.EventDAO
	cache     cache.Cache
	clock     clock.Clock
	logger    *zap.Logger
}

type Option func(*Service)

// WithConfig sets analytics settings.
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithCache sets the result cache.
func WithCache(c cache.Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New creates an analytics service
func New(approvals dao.ApprovalDAO, events dao.EventDAO, options ...Option) *Service {
	ret := &Service{config: DefaultConfig(), approvals: approvals, events: events, clock: clock.System(), logger: zap.NewNop()}
	for _, opt := range options {
		opt(ret)
	}
	if ret.cache == nil {
		ret.cache = cache.NewMemory(ret.clock)
	}
	return ret
}

// Bucket aligns [from, to) outward to the bucket size.
func (s *Service) Bucket(from, to time.Time) (time.Time, time.Time) {
	size := s.config.BucketSize
	from, to = from.UTC(), to.UTC()
	if size <= 0 {
		return from, to
	}
	start := from.Truncate(size)
	end := to.Truncate(size)
	if end.Before(to) {
		end = end.Add(size)
	}
	return start, end
}

// Key returns the cache key of kind over the bucketed range.
func Key(kind string, from, to time.Time) string {
	return fmt.Sprintf("analytics:%s:%s:%d:%d", keyVersion, kind, from.Unix(), to.Unix())
}

// Report computes every kind over [from, to) concurrently.
func (s *Service) Report(ctx context.Context, from, to time.Time) (*Report, error) {
	from, to = s.Bucket(from, to)
	ret := &Report{From: from, To: to}
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() (err error) {
		ret.ByAdmin, err = s.ByAdmin(ctx, from, to)
		return err
	})
	group.Go(func() (err error) {
		ret.ByResourceType, err = s.ByResourceType(ctx, from, to)
		return err
	})
	group.Go(func() (err error) {
		ret.Trend, err = s.Trend(ctx, from, to)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return ret, nil
}

// ByAdmin summarises the transitions each admin performed in [from, to).
// An admin's processing time is measured on the requests they approved.
func (s *Service) ByAdmin(ctx context.Context, from, to time.Time) (map[string]*Summary, error) {
	from, to = s.Bucket(from, to)
	ret := map[string]*Summary{}
	err := cached(ctx, s, KindAdmin, from, to, &ret, func() error {
		events, err := s.events.EventsBetween(ctx, from, to)
		if err != nil {
			return err
		}
		created := map[string]time.Time{}
		for _, event := range events {
			if event.IsCreation() {
				created[event.ApprovalID] = event.OccurredAt
				continue
			}
			summary, ok := ret[event.AdminID]
			if !ok {
				summary = &Summary{}
				ret[event.AdminID] = summary
			}
			summary.count(event.NewStatus)
			if event.NewStatus != model.StatusApproved {
				continue
			}
			createdAt, ok := created[event.ApprovalID]
			if !ok {
				request, err := s.approvals.Load(ctx, event.ApprovalID)
				if err != nil {
					return fmt.Errorf("failed to load approval %s: %w", event.ApprovalID, err)
				}
				createdAt = request.CreatedAt
				created[event.ApprovalID] = createdAt
			}
			summary.processing += event.OccurredAt.Sub(createdAt)
		}
		for _, summary := range ret {
			summary.finish()
		}
		return nil
	})
	return ret, err
}

// ByResourceType summarises requests created in [from, to) by their current
// status.
func (s *Service) ByResourceType(ctx context.Context, from, to time.Time) (map[model.ResourceType]*Summary, error) {
	from, to = s.Bucket(from, to)
	ret := map[model.ResourceType]*Summary{}
	err := cached(ctx, s, KindResourceType, from, to, &ret, func() error {
		requests, err := s.approvals.List(ctx, dao.WithCreatedBetween(from, to)...)
		if err != nil {
			return err
		}
		for _, request := range requests {
			summary, ok := ret[request.ResourceType]
			if !ok {
				summary = &Summary{}
				ret[request.ResourceType] = summary
			}
			summary.count(request.Status)
			if request.Status == model.StatusApproved && request.ApprovedAt != nil {
				summary.processing += request.ApprovedAt.Sub(request.CreatedAt)
			}
		}
		for _, summary := range ret {
			summary.finish()
		}
		return nil
	})
	return ret, err
}

// Trend fits a line through the daily approval counts of [from, to).
func (s *Service) Trend(ctx context.Context, from, to time.Time) (*Trend, error) {
	from, to = s.Bucket(from, to)
	ret := &Trend{}
	err := cached(ctx, s, KindTrend, from, to, ret, func() error {
		events, err := s.events.EventsBetween(ctx, from, to)
		if err != nil {
			return err
		}
		daily := make([]float64, days(from, to))
		for _, event := range events {
			if event.NewStatus != model.StatusApproved || event.IsCreation() {
				continue
			}
			if i := dayIndex(from, event.OccurredAt); i >= 0 && i < len(daily) {
				daily[i]++
			}
		}
		*ret = *NewTrend(daily)
		return nil
	})
	return ret, err
}

// Invalidate drops every cached kind of the bucketed range.
func (s *Service) Invalidate(ctx context.Context, from, to time.Time) error {
	from, to = s.Bucket(from, to)
	var errs []error
	for _, kind := range []string{KindAdmin, KindResourceType, KindTrend} {
		errs = append(errs, s.cache.Delete(ctx, Key(kind, from, to)))
	}
	return errors.Join(errs...)
}

// cached loads kind into target, or runs compute and stores target.
func cached(ctx context.Context, s *Service, kind string, from, to time.Time, target interface{}, compute func() error) error {
	key := Key(kind, from, to)
	data, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		if err = json.Unmarshal(data, target); err == nil {
			metrics.AnalyticsCache.WithLabelValues("hit").Inc()
			return nil
		}
		s.logger.Warn("discarding corrupt analytics entry", zap.String("key", key), zap.Error(err))
	case errors.Is(err, cache.ErrMiss):
		metrics.AnalyticsCache.WithLabelValues("miss").Inc()
	default:
		metrics.AnalyticsCache.WithLabelValues("error").Inc()
		s.logger.Warn("analytics cache unavailable", zap.String("key", key), zap.Error(err))
	}
	if err = compute(); err != nil {
		return fmt.Errorf("failed to compute %s analytics: %w", kind, err)
	}
	if data, err = json.Marshal(target); err != nil {
		return err
	}
	if err = s.cache.Set(ctx, key, data, s.config.CacheTTL); err != nil {
		s.logger.Warn("failed to cache analytics", zap.String("key", key), zap.Error(err))
	}
	return nil
}
