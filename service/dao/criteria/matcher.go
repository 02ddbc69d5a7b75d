package criteria

import (
	"time"

	"github.com/viant/adminflow/model"
	"github.com/viant/adminflow/service/dao"
)

// Matches returns true when request satisfies every parameter. Unknown
// parameters are ignored.
func Matches(request *model.ApprovalRequest, parameters []*dao.Parameter) bool {
	for _, parameter := range parameters {
		if parameter == nil {
			continue
		}
		switch parameter.Name {
		case dao.ParamStatus:
			if !matchString(string(request.Status), parameter.Value) {
				return false
			}
		case dao.ParamAdminID:
			if !matchString(request.AdminID, parameter.Value) {
				return false
			}
		case dao.ParamAssignedAdminID:
			if !matchString(request.AssignedAdminID(), parameter.Value) {
				return false
			}
		case dao.ParamResourceType:
			if !matchString(string(request.ResourceType), parameter.Value) {
				return false
			}
		case dao.ParamAction:
			if !matchString(string(request.Action), parameter.Value) {
				return false
			}
		case dao.ParamCreatedFrom:
			if from, ok := parameter.Value.(time.Time); ok && request.CreatedAt.Before(from) {
				return false
			}
		case dao.ParamCreatedTo:
			if to, ok := parameter.Value.(time.Time); ok && !request.CreatedAt.Before(to) {
				return false
			}
		}
	}
	return true
}

func matchString(actual string, expected interface{}) bool {
	switch value := expected.(type) {
	case string:
		return actual == value
	case []string:
		for _, s := range value {
			if actual == s {
				return true
			}
		}
		return false
	}
	return true
}
