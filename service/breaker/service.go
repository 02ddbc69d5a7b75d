// Package breaker guards command categories with circuit breakers.
//
// A breaker opens after a run of consecutive failures, fails fast while open
// and lets a single trial through once the open timeout elapsed. Only
// dependency failures and unexpected errors count: a rejected command says
// nothing about the health of the engine.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/viant/adminflow/internal/metrics"
	"github.com/viant/adminflow/model"
	"go.uber.org/zap"
)

// Config represents breaker settings shared by every category.
type Config struct {
	ConsecutiveFailures uint32        `json:"consecutiveFailures,omitempty" yaml:"consecutiveFailures,omitempty" env:"CONSECUTIVE_FAILURES"`
	Interval            time.Duration `json:"interval,omitempty" yaml:"interval,omitempty" env:"INTERVAL"`
	Timeout             time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" env:"TIMEOUT"`
	MaxRequests         uint32        `json:"maxRequests,omitempty" yaml:"maxRequests,omitempty" env:"MAX_REQUESTS"`
}

// DefaultConfig returns 5 failures within 60s opening the breaker for 30s.
func DefaultConfig() Config {
	return Config{ConsecutiveFailures: 5, Interval: time.Minute, Timeout: 30 * time.Second, MaxRequests: 1}
}

// Validate checks the settings.
func (c Config) Validate() error {
	var errs []error
	if c.ConsecutiveFailures == 0 {
		errs = append(errs, fmt.Errorf("breaker: consecutiveFailures must be positive"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("breaker: timeout must be positive"))
	}
	if c.Interval < 0 {
		errs = append(errs, fmt.Errorf("breaker: interval must not be negative"))
	}
	return errors.Join(errs...)
}

// IsSuccessful reports whether err leaves the breaker healthy.
func IsSuccessful(err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, model.ErrValidation),
		errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrConcurrencyConflict),
		errors.Is(err, context.Canceled):
		return true
	}
	return false
}

// Registry holds one breaker per category.
type Registry struct {
	config   Config
	logger   *zap.Logger
	mux      sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// New creates a breaker registry
func New(config Config, options ...Option) *Registry {
	if config.ConsecutiveFailures == 0 {
		config.ConsecutiveFailures = DefaultConfig().ConsecutiveFailures
	}
	if config.MaxRequests == 0 {
		config.MaxRequests = 1
	}
	ret := &Registry{config: config, logger: zap.NewNop(), breakers: map[string]*gobreaker.CircuitBreaker[any]{}}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

func (r *Registry) breaker(category string) *gobreaker.CircuitBreaker[any] {
	r.mux.Lock()
	defer r.mux.Unlock()
	if cb, ok := r.breakers[category]; ok {
		return cb
	}
	threshold := r.config.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        category,
		MaxRequests: r.config.MaxRequests,
		Interval:    r.config.Interval,
		Timeout:     r.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerTransitions.WithLabelValues(name, to.String()).Inc()
			r.logger.Warn("circuit breaker state changed",
				zap.String("category", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
		IsSuccessful: IsSuccessful,
	})
	r.breakers[category] = cb
	return cb
}

// State returns the state of category.
func (r *Registry) State(category string) gobreaker.State {
	return r.breaker(category).State()
}

// Execute runs fn through the breaker of category. While the breaker is open
// fn is not called and a *model.DependencyUnavailableError is returned.
func Execute[T any](r *Registry, category string, fn func() (T, error)) (T, error) {
	var zero T
	out, err := r.breaker(category).Execute(func() (any, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return zero, model.NewDependencyUnavailable("circuit breaker "+category, err)
	}
	ret, _ := out.(T)
	return ret, err
}
