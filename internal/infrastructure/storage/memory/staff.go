package memory

import (
	"context"
	"sync"

	"jobcost/internal/core/id"
	"jobcost/internal/domain/costing"
)

// StaffDirectory is a fixed set of known staff ids.
type StaffDirectory struct {
	mu    sync.RWMutex
	staff map[id.ID]struct{}
}

// NewStaffDirectory creates a directory with the given staff.
func NewStaffDirectory(staffIDs ...id.ID) *StaffDirectory {
	d := &StaffDirectory{staff: make(map[id.ID]struct{}, len(staffIDs))}
	for _, s := range staffIDs {
		d.staff[s] = struct{}{}
	}
	return d
}

var _ costing.StaffDirectory = (*StaffDirectory)(nil)

// AddStaff registers a staff id.
func (d *StaffDirectory) AddStaff(staffID id.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.staff[staffID] = struct{}{}
}

func (d *StaffDirectory) StaffExists(_ context.Context, staffID id.ID) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.staff[staffID]
	return ok, nil
}
