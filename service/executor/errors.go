package executor

import "errors"

var (
	ErrExecutorNotFound = errors.New("executor not found for action")
	ErrNotApproved      = errors.New("executor invoked without admin approval")
)
