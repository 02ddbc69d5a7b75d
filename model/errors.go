package model

import (
	"errors"
	"fmt"
)

// Error kinds. Every typed error below matches exactly one kind through
// errors.Is, so callers can branch without type assertions.
var (
	ErrValidation            = errors.New("validation failed")
	ErrInvalidTransition     = errors.New("invalid transition")
	ErrConcurrencyConflict   = errors.New("concurrency conflict")
	ErrRiskThresholdExceeded = errors.New("risk threshold exceeded")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

// ValidationError reports a malformed command or a failed business rule.
type ValidationError struct {
	Check   string
	Message string
	// RiskExceeded marks a failure of the hard risk ceiling.
	RiskExceeded bool
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Check, e.Message)
}

// Is matches ErrValidation, and ErrRiskThresholdExceeded when flagged.
func (e *ValidationError) Is(target error) bool {
	if target == ErrValidation {
		return true
	}
	return e.RiskExceeded && target == ErrRiskThresholdExceeded
}

// NewValidationError creates a validation error for check.
func NewValidationError(check, message string) *ValidationError {
	return &ValidationError{Check: check, Message: message}
}

// NewRiskThresholdExceeded creates the validation error raised above the
// hard risk ceiling.
func NewRiskThresholdExceeded(score, ceiling float64) *ValidationError {
	return &ValidationError{
		Check:        "risk_threshold",
		Message:      fmt.Sprintf("risk score %.3f exceeds ceiling %.2f", score, ceiling),
		RiskExceeded: true,
	}
}

// InvalidTransitionError reports an illegal status change.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// ConcurrencyConflictError reports a version mismatch at commit time.
type ConcurrencyConflictError struct {
	ApprovalID string
	Expected   int
	Actual     int
}

func (e *ConcurrencyConflictError) Error() string {
	if e.Actual > 0 {
		return fmt.Sprintf("concurrency conflict on %s: expected version %d, found %d", e.ApprovalID, e.Expected, e.Actual)
	}
	return fmt.Sprintf("concurrency conflict on %s: expected version %d", e.ApprovalID, e.Expected)
}

func (e *ConcurrencyConflictError) Is(target error) bool { return target == ErrConcurrencyConflict }

// DependencyUnavailableError reports an unreachable store or service.
type DependencyUnavailableError struct {
	Dependency string
	Err        error
}

func (e *DependencyUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s unavailable", e.Dependency)
	}
	return fmt.Sprintf("%s unavailable: %v", e.Dependency, e.Err)
}

func (e *DependencyUnavailableError) Is(target error) bool { return target == ErrDependencyUnavailable }

func (e *DependencyUnavailableError) Unwrap() error { return e.Err }

// NewDependencyUnavailable wraps err as a dependency failure.
func NewDependencyUnavailable(dependency string, err error) *DependencyUnavailableError {
	return &DependencyUnavailableError{Dependency: dependency, Err: err}
}

// IsRetryable returns true when the caller may re-read state and retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict) || errors.Is(err, ErrDependencyUnavailable)
}
