package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/viant/adminflow/model"
	"github.com/viant/adminflow/service/dao"
)

const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateUniqueViolation      = "23505"
)

const dependencyName = "postgres"

// translate maps driver errors onto the dao and model error kinds.
func translate(err error, approvalID string, expected int) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return dao.ErrNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateSerializationFailure, sqlStateDeadlockDetected:
			return &model.ConcurrencyConflictError{ApprovalID: approvalID, Expected: expected}
		case sqlStateUniqueViolation:
			if expected > 0 {
				return &model.ConcurrencyConflictError{ApprovalID: approvalID, Expected: expected}
			}
			return fmt.Errorf("%w: %s", dao.ErrDuplicate, pgErr.Detail)
		}
		return fmt.Errorf("postgres error %s: %w", pgErr.Code, err)
	}
	if pgconn.SafeToRetry(err) || isConnectError(err) {
		return model.NewDependencyUnavailable(dependencyName, err)
	}
	return err
}

func isConnectError(err error) bool {
	var connectErr *pgconn.ConnectError
	return errors.As(err, &connectErr)
}
