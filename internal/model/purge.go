package model

import "time"

// DefaultPendingDeleteGrace is the undo window after a manual delete.
const DefaultPendingDeleteGrace = 3 * time.Second

// PurgePolicy decides when a task record leaves the visible list. It is a
// pure function of its inputs; both windows are independent.
type PurgePolicy struct {
	// PendingDeleteGrace is how long a manual delete stays reversible.
	PendingDeleteGrace time.Duration
	// CompletedRetention is how long a finished task stays visible.
	// Zero means completed tasks are kept forever.
	CompletedRetention time.Duration
}

// DefaultPurgePolicy keeps completed tasks forever and gives manual deletes
// a three-second undo window.
func DefaultPurgePolicy() PurgePolicy {
	return PurgePolicy{PendingDeleteGrace: DefaultPendingDeleteGrace}
}

// ShouldPurge reports whether the task may be removed at the given instant.
// force bypasses the pending-delete grace window only.
func (p PurgePolicy) ShouldPurge(t Task, now time.Time, force bool) bool {
	if t.PendingDelete {
		if force {
			return true
		}
		if t.DeleteMarkedAt == nil {
			return false
		}
		return now.Sub(*t.DeleteMarkedAt) >= p.PendingDeleteGrace
	}

	if t.Done && t.CompletedAt != nil && p.CompletedRetention > 0 {
		return now.Sub(*t.CompletedAt) >= p.CompletedRetention
	}

	return false
}
