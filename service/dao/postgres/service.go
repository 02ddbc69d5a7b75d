package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/viant/adminflow/model"
	"github.com/viant/adminflow/service/dao"
)

//go:embed schema.sql
var Schema string

// Config represents the connection settings
type Config struct {
	DSN             string        `yaml:"dsn" env:"DSN"`
	MaxConns        int32         `yaml:"maxConns" env:"MAX_CONNS"`
	MinConns        int32         `yaml:"minConns" env:"MIN_CONNS"`
	MaxConnLifetime time.Duration `yaml:"maxConnLifetime" env:"MAX_CONN_LIFETIME"`
	Migrate         bool          `yaml:"migrate" env:"MIGRATE"`
}

// Service implements the approval, event and outbox DAOs on postgres. Every
// write runs in a serializable transaction; Commit guards the update with the
// version the writer read.
type Service struct {
	pool *pgxpool.Pool
}

var (
	_ dao.ApprovalDAO = (*Service)(nil)
	_ dao.EventDAO    = (*Service)(nil)
	_ dao.OutboxDAO   = (*Service)(nil)
	_ dao.StatsDAO    = (*Service)(nil)
)

// Open connects a pool and optionally applies the schema.
func Open(ctx context.Context, config Config) (*Service, error) {
	poolConfig, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, model.NewDependencyUnavailable(dependencyName, err)
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, model.NewDependencyUnavailable(dependencyName, err)
	}
	ret := New(pool)
	if config.Migrate {
		if _, err = pool.Exec(ctx, Schema); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return ret, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// Pool returns the underlying pool.
func (s *Service) Pool() *pgxpool.Pool { return s.pool }

// Close releases the pool.
func (s *Service) Close() { s.pool.Close() }

func (s *Service) serializable(ctx context.Context, approvalID string, expected int, fn func(tx pgx.Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return translate(err, approvalID, expected)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	if err = fn(tx); err != nil {
		return translate(err, approvalID, expected)
	}
	if err = tx.Commit(ctx); err != nil {
		return translate(err, approvalID, expected)
	}
	return nil
}

// Create inserts the request, its creation event and outbox messages.
func (s *Service) Create(ctx context.Context, request *model.ApprovalRequest, event *model.TransitionEvent, outbox []*model.OutboxMessage) error {
	if request == nil || event == nil {
		return dao.ErrNilEntity
	}
	if request.ID == "" {
		return dao.ErrInvalidID
	}
	metadata, err := json.Marshal(request.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return s.serializable(ctx, request.ID, 0, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
INSERT INTO approval_requests(id,admin_id,resource_type,resource_id,action,status,reason,metadata,assigned_admin_id,created_at,approved_at,version)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			request.ID, request.AdminID, request.ResourceType, request.ResourceID, request.Action, request.Status,
			request.Reason, metadata, request.AssignedAdminID(), request.CreatedAt, request.ApprovedAt, request.Version); err != nil {
			return err
		}
		return appendEvent(ctx, tx, event, outbox)
	})
}

// Commit updates the request when the stored version equals
// commit.ExpectedVersion and appends the event and outbox rows.
func (s *Service) Commit(ctx context.Context, commit *dao.Commit) error {
	if commit == nil || commit.Request == nil || commit.Event == nil {
		return dao.ErrNilEntity
	}
	request := commit.Request
	metadata, err := json.Marshal(request.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return s.serializable(ctx, request.ID, commit.ExpectedVersion, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
UPDATE approval_requests
SET status=$3, reason=$4, metadata=$5, assigned_admin_id=$6, approved_at=$7, version=$8
WHERE id=$1 AND version=$2`,
			request.ID, commit.ExpectedVersion, request.Status, request.Reason, metadata,
			request.AssignedAdminID(), request.ApprovedAt, request.Version)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var actual int
			if err = tx.QueryRow(ctx, `SELECT version FROM approval_requests WHERE id=$1`, request.ID).Scan(&actual); err != nil {
				return err
			}
			return &model.ConcurrencyConflictError{ApprovalID: request.ID, Expected: commit.ExpectedVersion, Actual: actual}
		}
		return appendEvent(ctx, tx, commit.Event, commit.Outbox)
	})
}

func appendEvent(ctx context.Context, tx pgx.Tx, event *model.TransitionEvent, outbox []*model.OutboxMessage) error {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal event metadata: %w", err)
	}
	if _, err = tx.Exec(ctx, `
INSERT INTO approval_transition_events(id,approval_id,version,previous_status,new_status,admin_id,resource_type,resource_id,action,reason,metadata,occurred_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		event.ID, event.ApprovalID, event.Version, event.PreviousStatus, event.NewStatus, event.AdminID,
		event.ResourceType, event.ResourceID, event.Action, event.Reason, metadata, event.OccurredAt); err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for _, message := range outbox {
		payload, err := json.Marshal(message.Event)
		if err != nil {
			return fmt.Errorf("failed to marshal outbox event: %w", err)
		}
		batch.Queue(`
INSERT INTO approval_outbox(id,approval_id,event,attempts,created_at,next_attempt_at)
VALUES($1,$2,$3,$4,$5,$6)`,
			message.ID, message.ApprovalID, payload, message.Attempts, message.CreatedAt, message.NextAttemptAt)
	}
	if batch.Len() == 0 {
		return nil
	}
	return tx.SendBatch(ctx, batch).Close()
}

const selectRequest = `SELECT id,admin_id,resource_type,resource_id,action,status,reason,metadata,created_at,approved_at,version FROM approval_requests`

// Load reads a request by id.
func (s *Service) Load(ctx context.Context, id string) (*model.ApprovalRequest, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	request, err := scanRequest(s.pool.QueryRow(ctx, selectRequest+` WHERE id=$1`, id))
	if err != nil {
		return nil, translate(err, id, 0)
	}
	return request, nil
}

// List returns requests matching parameters, oldest first.
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*model.ApprovalRequest, error) {
	where, args := buildCriteria(parameters)
	rows, err := s.pool.Query(ctx, selectRequest+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, translate(err, "", 0)
	}
	defer rows.Close()
	var out []*model.ApprovalRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, request)
	}
	return out, translate(rows.Err(), "", 0)
}

func scanRequest(row pgx.Row) (*model.ApprovalRequest, error) {
	var request model.ApprovalRequest
	var metadata []byte
	if err := row.Scan(&request.ID, &request.AdminID, &request.ResourceType, &request.ResourceID, &request.Action,
		&request.Status, &request.Reason, &metadata, &request.CreatedAt, &request.ApprovedAt, &request.Version); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(metadata, &request.Metadata); err != nil {
		return nil, fmt.Errorf("invalid metadata of %s: %w", request.ID, err)
	}
	return &request, nil
}

// buildCriteria translates listing parameters into a WHERE clause.
func buildCriteria(parameters []*dao.Parameter) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	add := func(clause string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	columns := map[string]string{
		dao.ParamStatus:          "status",
		dao.ParamAdminID:         "admin_id",
		dao.ParamAssignedAdminID: "assigned_admin_id",
		dao.ParamResourceType:    "resource_type",
		dao.ParamAction:          "action",
	}
	for _, parameter := range parameters {
		if parameter == nil {
			continue
		}
		if column, ok := columns[parameter.Name]; ok {
			switch value := parameter.Value.(type) {
			case string:
				add(column+" = $%d", value)
			case []string:
				add(column+" = ANY($%d)", value)
			}
			continue
		}
		switch parameter.Name {
		case dao.ParamCreatedFrom:
			if at, ok := parameter.Value.(time.Time); ok {
				add("created_at >= $%d", at)
			}
		case dao.ParamCreatedTo:
			if at, ok := parameter.Value.(time.Time); ok {
				add("created_at < $%d", at)
			}
		}
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

const selectEvent = `SELECT id,approval_id,version,previous_status,new_status,admin_id,resource_type,resource_id,action,reason,metadata,occurred_at FROM approval_transition_events`

// Events returns the transition log of approvalID.
func (s *Service) Events(ctx context.Context, approvalID string) ([]*model.TransitionEvent, error) {
	if approvalID == "" {
		return nil, dao.ErrInvalidID
	}
	return s.queryEvents(ctx, selectEvent+` WHERE approval_id=$1 ORDER BY occurred_at, version`, approvalID)
}

// EventsBetween returns events with from <= occurred_at < to; a zero bound is open.
func (s *Service) EventsBetween(ctx context.Context, from, to time.Time) ([]*model.TransitionEvent, error) {
	var clauses []string
	var args []interface{}
	if !from.IsZero() {
		args = append(args, from)
		clauses = append(clauses, fmt.Sprintf("occurred_at >= $%d", len(args)))
	}
	if !to.IsZero() {
		args = append(args, to)
		clauses = append(clauses, fmt.Sprintf("occurred_at < $%d", len(args)))
	}
	query := selectEvent
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	return s.queryEvents(ctx, query+` ORDER BY occurred_at, approval_id, version`, args...)
}

func (s *Service) queryEvents(ctx context.Context, query string, args ...interface{}) ([]*model.TransitionEvent, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err, "", 0)
	}
	defer rows.Close()
	var out []*model.TransitionEvent
	for rows.Next() {
		var event model.TransitionEvent
		var metadata []byte
		if err = rows.Scan(&event.ID, &event.ApprovalID, &event.Version, &event.PreviousStatus, &event.NewStatus, &event.AdminID,
			&event.ResourceType, &event.ResourceID, &event.Action, &event.Reason, &metadata, &event.OccurredAt); err != nil {
			return nil, err
		}
		if err = json.Unmarshal(metadata, &event.Metadata); err != nil {
			return nil, fmt.Errorf("invalid metadata of event %s: %w", event.ID, err)
		}
		out = append(out, &event)
	}
	return out, translate(rows.Err(), "", 0)
}

// approvalCounts counts approvals per admin and action; an approval succeeded
// when its version is still the request version.
const approvalCounts = `SELECT e.admin_id, e.action, COUNT(*), COUNT(*) FILTER (WHERE e.version = r.version)
FROM approval_transition_events e
JOIN approval_requests r ON r.id = e.approval_id
WHERE e.new_status = $1`

// ApprovalCounts aggregates approvals per admin and action in the database.
func (s *Service) ApprovalCounts(ctx context.Context, adminIDs []string) ([]*dao.ApprovalCount, error) {
	query := approvalCounts
	args := []interface{}{string(model.StatusApproved)}
	if len(adminIDs) > 0 {
		args = append(args, adminIDs)
		query += ` AND e.admin_id = ANY($2)`
	}
	rows, err := s.pool.Query(ctx, query+` GROUP BY e.admin_id, e.action ORDER BY e.admin_id, e.action`, args...)
	if err != nil {
		return nil, translate(err, "", 0)
	}
	defer rows.Close()
	var out []*dao.ApprovalCount
	for rows.Next() {
		count := &dao.ApprovalCount{}
		if err = rows.Scan(&count.AdminID, &count.Action, &count.Approvals, &count.Successes); err != nil {
			return nil, err
		}
		out = append(out, count)
	}
	return out, translate(rows.Err(), "", 0)
}

// Pending returns due messages in write order, skipping approvals whose
// earlier message is still waiting for a retry.
func (s *Service) Pending(ctx context.Context, now time.Time, limit int) ([]*model.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
SELECT o.id,o.approval_id,o.event,o.attempts,o.last_error,o.created_at,o.next_attempt_at
FROM approval_outbox o
WHERE o.dispatched_at IS NULL AND NOT o.dead_lettered AND o.next_attempt_at <= $1
  AND NOT EXISTS (
    SELECT 1 FROM approval_outbox b
    WHERE b.approval_id = o.approval_id AND b.seq < o.seq
      AND b.dispatched_at IS NULL AND NOT b.dead_lettered AND b.next_attempt_at > $1)
ORDER BY o.seq
LIMIT $2`, now, limit)
	if err != nil {
		return nil, translate(err, "", 0)
	}
	defer rows.Close()
	var out []*model.OutboxMessage
	for rows.Next() {
		var message model.OutboxMessage
		var payload []byte
		if err = rows.Scan(&message.ID, &message.ApprovalID, &payload, &message.Attempts, &message.LastError,
			&message.CreatedAt, &message.NextAttemptAt); err != nil {
			return nil, err
		}
		message.Event = &model.PublishedEvent{}
		if err = json.Unmarshal(payload, message.Event); err != nil {
			return nil, fmt.Errorf("invalid outbox payload %s: %w", message.ID, err)
		}
		out = append(out, &message)
	}
	return out, translate(rows.Err(), "", 0)
}

// MarkDispatched records a successful delivery.
func (s *Service) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE approval_outbox SET dispatched_at=$2, last_error='' WHERE id=$1`, id, at)
	if err != nil {
		return translate(err, "", 0)
	}
	if tag.RowsAffected() == 0 {
		return dao.ErrNotFound
	}
	return nil
}

// MarkFailed records a failed delivery attempt.
func (s *Service) MarkFailed(ctx context.Context, id string, reason string, nextAttemptAt time.Time, deadLetter bool) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE approval_outbox SET attempts=attempts+1, last_error=$2, next_attempt_at=$3, dead_lettered=$4 WHERE id=$1`,
		id, reason, nextAttemptAt, deadLetter)
	if err != nil {
		return translate(err, "", 0)
	}
	if tag.RowsAffected() == 0 {
		return dao.ErrNotFound
	}
	return nil
}
