// Package reconcile merges the authoritative task list into the local
// snapshot.
package reconcile

import (
	"github.com/fentz26/familydash/internal/models"
)

// PushKind says how a local task is sent back to the collaborator.
type PushKind int

const (
	// PushUpdate re-sends a local task that won a conflict.
	PushUpdate PushKind = iota
	// PushCreate sends a task the collaborator has never seen.
	PushCreate
)

func (k PushKind) String() string {
	if k == PushCreate {
		return "create"
	}
	return "update"
}

// Push is one local task that the collaborator does not yet reflect.
type Push struct {
	Kind PushKind
	Task models.Task
}

// Result is the outcome of Merge.
type Result struct {
	Tasks []models.Task
	// Changed is set when Tasks differs from the remote list by length or
	// id order.
	Changed bool
	Pushes  []Push
}

// Merge resolves local against remote. Remote tasks keep their order; a task
// present on both sides resolves to the side with the later creation
// timestamp, ties going to remote. Local tasks missing remotely are appended
// in local order.
//
// The policy compares CreatedAt, not a modification time, so an edit made
// to an existing task does not outrank an untouched copy with a newer
// creation stamp.
func Merge(local, remote []models.Task) Result {
	localByID := make(map[string]models.Task, len(local))
	for _, t := range local {
		localByID[t.ID] = t
	}

	res := Result{Tasks: make([]models.Task, 0, len(remote)+len(local))}
	remoteIDs := make(map[string]struct{}, len(remote))

	for _, r := range remote {
		remoteIDs[r.ID] = struct{}{}
		l, ok := localByID[r.ID]
		if ok && l.CreatedAt.After(r.CreatedAt) {
			res.Tasks = append(res.Tasks, l.Clone())
			res.Pushes = append(res.Pushes, Push{Kind: PushUpdate, Task: l.Clone()})
			continue
		}
		res.Tasks = append(res.Tasks, r.Clone())
	}

	for _, l := range local {
		if _, ok := remoteIDs[l.ID]; ok {
			continue
		}
		res.Tasks = append(res.Tasks, l.Clone())
		res.Pushes = append(res.Pushes, Push{Kind: PushCreate, Task: l.Clone()})
	}

	res.Changed = !SameOrder(res.Tasks, remote)
	return res
}

// SameOrder reports whether a and b hold the same ids in the same order.
func SameOrder(a, b []models.Task) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}

// SameTasks reports whether a and b are equal task by task.
func SameTasks(a, b []models.Task) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
