package directory

import (
	"context"
	"sort"
	"sync"

	"github.com/viant/adminflow/service/dao"
)

// CapabilityApprove is the capability required to act on approvals.
const CapabilityApprove = "approvals:decide"

// Admin is an entry of the admin roster.
type Admin struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name,omitempty" yaml:"name,omitempty"`
	Active       bool     `json:"active" yaml:"active"`
	Capabilities []string `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
}

// CanApprove returns true for an active admin holding CapabilityApprove.
func (a *Admin) CanApprove() bool {
	if a == nil || !a.Active {
		return false
	}
	for _, capability := range a.Capabilities {
		if capability == CapabilityApprove {
			return true
		}
	}
	return false
}

// Roster is the source of admin identities.
type Roster interface {
	// Admin returns the admin or dao.ErrNotFound.
	Admin(ctx context.Context, id string) (*Admin, error)
	// Admins returns every known admin ordered by id.
	Admins(ctx context.Context) ([]*Admin, error)
}

// MemoryRoster is an in-memory Roster.
type MemoryRoster struct {
	mux    sync.RWMutex
	admins map[string]*Admin
}

// NewMemoryRoster creates a roster seeded with admins.
func NewMemoryRoster(admins ...*Admin) *MemoryRoster {
	ret := &MemoryRoster{admins: map[string]*Admin{}}
	for _, admin := range admins {
		ret.Put(admin)
	}
	return ret
}

// Put adds or replaces an admin.
func (r *MemoryRoster) Put(admin *Admin) {
	clone := *admin
	clone.Capabilities = append([]string(nil), admin.Capabilities...)
	r.mux.Lock()
	r.admins[admin.ID] = &clone
	r.mux.Unlock()
}

func (r *MemoryRoster) Admin(_ context.Context, id string) (*Admin, error) {
	r.mux.RLock()
	defer r.mux.RUnlock()
	admin, ok := r.admins[id]
	if !ok {
		return nil, dao.ErrNotFound
	}
	clone := *admin
	return &clone, nil
}

func (r *MemoryRoster) Admins(_ context.Context) ([]*Admin, error) {
	r.mux.RLock()
	ret := make([]*Admin, 0, len(r.admins))
	for _, admin := range r.admins {
		clone := *admin
		ret = append(ret, &clone)
	}
	r.mux.RUnlock()
	sort.Slice(ret, func(i, j int) bool { return ret[i].ID < ret[j].ID })
	return ret, nil
}
