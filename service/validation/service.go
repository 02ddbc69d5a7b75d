package validation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/viant/adminflow/model"
	"github.com/viant/adminflow/service/resource"
	"github.com/viant/adminflow/tracing"
	"golang.org/x/sync/errgroup"
)

// Failure is the outcome of a failed check.
type Failure struct {
	Check string
	Err   error
}

// Result collects the failures of a pipeline run, in check order.
type Result struct {
	Failures []*Failure
}

// OK returns true when every check passed.
func (r *Result) OK() bool { return len(r.Failures) == 0 }

// Err returns the error to surface to the caller: a dependency failure when
// one occurred, otherwise the first failed rule.
func (r *Result) Err() error {
	if r.OK() {
		return nil
	}
	for _, failure := range r.Failures {
		if errors.Is(failure.Err, model.ErrDependencyUnavailable) {
			return failure.Err
		}
	}
	for _, failure := range r.Failures {
		if errors.Is(failure.Err, context.Canceled) || errors.Is(failure.Err, context.DeadlineExceeded) {
			return failure.Err
		}
	}
	first := r.Failures[0]
	var validation *model.ValidationError
	if errors.As(first.Err, &validation) {
		return validation
	}
	return model.NewValidationError(first.Check, first.Err.Error())
}

// Summary lists every failure for logging.
func (r *Result) Summary() string {
	parts := make([]string, len(r.Failures))
	for i, failure := range r.Failures {
		parts[i] = failure.Check + ": " + failure.Err.Error()
	}
	return strings.Join(parts, "; ")
}

// Service runs the validation checks
type Service struct {
	checks  []Check
	lookup  resource.Lookup
	workers int
}

// Option customises the pipeline.
type Option func(*Service)

// WithWorkers bounds how many checks run at once.
func WithWorkers(workers int) Option {
	return func(s *Service) {
		s.workers = workers
	}
}

// WithChecks replaces the checks.
func WithChecks(checks ...Check) Option {
	return func(s *Service) {
		s.checks = checks
	}
}

// New creates a pipeline reading resources from lookup.
func New(lookup resource.Lookup, options ...Option) *Service {
	ret := &Service{lookup: lookup, workers: 4}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

// Run executes every check and waits for all of them.
func (s *Service) Run(ctx context.Context, in *Input) (result *Result) {
	ctx, span := tracing.StartSpan(ctx, "validation.Run", "INTERNAL")
	defer func() { tracing.EndSpan(span, result.Err()) }()

	in.bind(ctx, s.lookup.Resource)
	failures := make([]*Failure, len(s.checks))
	group := &errgroup.Group{}
	if s.workers > 0 {
		group.SetLimit(s.workers)
	}
	for i, check := range s.checks {
		i, check := i, check
		group.Go(func() error {
			if err := s.run(ctx, check, in); err != nil {
				failures[i] = &Failure{Check: check.Name(), Err: err}
			}
			return nil
		})
	}
	_ = group.Wait()

	result = &Result{}
	for _, failure := range failures {
		if failure != nil {
			result.Failures = append(result.Failures, failure)
		}
	}
	return result
}

func (s *Service) run(ctx context.Context, check Check, in *Input) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = model.NewValidationError(check.Name(), fmt.Sprintf("check panicked: %v", r))
		}
	}()
	return check.Check(ctx, in)
}
