package dao

import (
	"time"

	"github.com/viant/adminflow/model"
)

// Parameter names understood by approval listings.
const (
	ParamStatus          = "Status"
	ParamAdminID         = "AdminID"
	ParamAssignedAdminID = "AssignedAdminID"
	ParamResourceType    = "ResourceType"
	ParamAction          = "Action"
	ParamCreatedFrom     = "CreatedFrom"
	ParamCreatedTo       = "CreatedTo"
)

type Parameter struct {
	Name  string
	Value interface{}
}

func NewParameter(name string, values ...string) *Parameter {
	if len(values) == 1 {
		return &Parameter{Name: name, Value: values[0]}
	}
	return &Parameter{Name: name, Value: values}
}

// WithStatus filters by one or more statuses.
func WithStatus(statuses ...model.Status) *Parameter {
	values := make([]string, len(statuses))
	for i, status := range statuses {
		values[i] = string(status)
	}
	return NewParameter(ParamStatus, values...)
}

// WithResourceType filters by resource type.
func WithResourceType(resourceType model.ResourceType) *Parameter {
	return NewParameter(ParamResourceType, string(resourceType))
}

// WithAction filters by action.
func WithAction(action model.Action) *Parameter {
	return NewParameter(ParamAction, string(action))
}

// WithAssignedAdminID filters by the admin selected by routing.
func WithAssignedAdminID(adminID string) *Parameter {
	return NewParameter(ParamAssignedAdminID, adminID)
}

// WithCreatedBetween filters by creation time, [from, to).
func WithCreatedBetween(from, to time.Time) []*Parameter {
	var ret []*Parameter
	if !from.IsZero() {
		ret = append(ret, &Parameter{Name: ParamCreatedFrom, Value: from})
	}
	if !to.IsZero() {
		ret = append(ret, &Parameter{Name: ParamCreatedTo, Value: to})
	}
	return ret
}
