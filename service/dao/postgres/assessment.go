package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/viant/adminflow/model"
	"github.com/viant/adminflow/service/dao"
)

// AssessmentService stores risk assessments for the model-training export.
type AssessmentService struct {
	pool *pgxpool.Pool
}

var _ dao.AssessmentDAO = (*AssessmentService)(nil)

// NewAssessmentService wraps pool.
func NewAssessmentService(pool *pgxpool.Pool) *AssessmentService {
	return &AssessmentService{pool: pool}
}

func (s *AssessmentService) Save(ctx context.Context, assessment *model.RiskAssessment) error {
	if assessment == nil {
		return dao.ErrNilEntity
	}
	if assessment.ID == "" {
		return dao.ErrInvalidID
	}
	payload, err := json.Marshal(assessment)
	if err != nil {
		return fmt.Errorf("failed to marshal assessment: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO risk_assessments(id,approval_id,admin_id,resource_type,resource_id,action,score,payload,assessed_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET approval_id=EXCLUDED.approval_id, score=EXCLUDED.score, payload=EXCLUDED.payload`,
		assessment.ID, assessment.ApprovalID, assessment.AdminID, assessment.ResourceType, assessment.ResourceID,
		assessment.Action, assessment.Score, payload, assessment.AssessedAt)
	return translate(err, "", 0)
}

func (s *AssessmentService) Load(ctx context.Context, id string) (*model.RiskAssessment, error) {
	var payload []byte
	if err := s.pool.QueryRow(ctx, `SELECT payload FROM risk_assessments WHERE id=$1`, id).Scan(&payload); err != nil {
		return nil, translate(err, "", 0)
	}
	ret := &model.RiskAssessment{}
	if err := json.Unmarshal(payload, ret); err != nil {
		return nil, fmt.Errorf("invalid assessment %s: %w", id, err)
	}
	return ret, nil
}

func (s *AssessmentService) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM risk_assessments WHERE id=$1`, id)
	return translate(err, "", 0)
}

// List supports the AdminID, ResourceType and Action parameters.
func (s *AssessmentService) List(ctx context.Context, parameters ...*dao.Parameter) ([]*model.RiskAssessment, error) {
	var supported []*dao.Parameter
	for _, parameter := range parameters {
		if parameter == nil {
			continue
		}
		switch parameter.Name {
		case dao.ParamAdminID, dao.ParamResourceType, dao.ParamAction:
			supported = append(supported, parameter)
		}
	}
	where, args := buildCriteria(supported)
	rows, err := s.pool.Query(ctx, `SELECT payload FROM risk_assessments`+where+` ORDER BY assessed_at, id`, args...)
	if err != nil {
		return nil, translate(err, "", 0)
	}
	defer rows.Close()
	var out []*model.RiskAssessment
	for rows.Next() {
		var payload []byte
		if err = rows.Scan(&payload); err != nil {
			return nil, err
		}
		assessment := &model.RiskAssessment{}
		if err = json.Unmarshal(payload, assessment); err != nil {
			return nil, err
		}
		out = append(out, assessment)
	}
	return out, translate(rows.Err(), "", 0)
}
