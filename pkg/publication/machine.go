package publication

import (
	"time"

	"github.com/google/uuid"

	"github.com/scrutin/scrutin/pkg/results"
)

// Machine applies publish and cancel actions to records.
//
//	NOT_PUBLISHED --publish--> PUBLISHED   node ready
//	CANCELLED     --publish--> PUBLISHED   subordinate units re-imported
//	PUBLISHED     --cancel-->  CANCELLED   elevated actor
//
// Every other combination is rejected. Apply never touches storage; the
// caller persists the returned record and entry with a compare-and-swap.
type Machine struct {
	Now   func() time.Time
	NewID func() string
}

// NewMachine returns a Machine using the wall clock and random UUIDs.
func NewMachine() *Machine {
	return &Machine{
		Now:   time.Now,
		NewID: uuid.NewString,
	}
}

// Apply checks action against rec and node and returns the next record with
// the new history entry appended, plus that entry. A refused action returns
// a *RejectedError and leaves rec untouched.
func (m *Machine) Apply(rec Record, node results.Node, action Action, actor Actor) (Record, HistoryEntry, error) {
	reject := func(kind error, reason string) (Record, HistoryEntry, error) {
		return rec, HistoryEntry{}, &RejectedError{
			EntityType: rec.EntityType,
			EntityID:   rec.EntityID,
			Action:     action,
			From:       rec.Status,
			Kind:       kind,
			Reason:     reason,
		}
	}

	if !actor.Elevated() {
		return reject(ErrUnauthorized, "actor "+actor.Name+" has read-only access")
	}

	var to Status
	switch action {
	case ActionPublish:
		switch rec.Status {
		case StatusPublished:
			return reject(ErrAlreadyInState, "already published")
		case StatusNotPublished:
			if ready, reason := Readiness(node, rec); !ready {
				return reject(ErrNotReady, reason)
			}
		case StatusCancelled:
			if node.ChildUnitCount == 0 {
				return reject(ErrNotReady, "no subordinate units")
			}
			if node.ImportedChildUnitCount != node.ChildUnitCount {
				return reject(ErrNotReady, importGap(node))
			}
		default:
			return reject(ErrIllegalTransition, "unknown status "+string(rec.Status))
		}
		to = StatusPublished

	case ActionCancel:
		switch rec.Status {
		case StatusPublished:
		case StatusCancelled:
			return reject(ErrAlreadyInState, "already cancelled")
		default:
			return reject(ErrCancelRequiresPublished, "cancel is only allowed on published results")
		}
		to = StatusCancelled

	default:
		return reject(ErrIllegalTransition, "unknown action "+string(action))
	}

	now := Timestamp(m.Now())
	entry := HistoryEntry{
		ID:         m.NewID(),
		EntityID:   rec.EntityID,
		EntityType: rec.EntityType,
		Action:     action,
		Actor:      actor.Name,
		At:         now,
		From:       rec.Status,
		To:         to,
	}

	next := rec
	next.Status = to
	next.LastUpdate = now
	next.History = append(append([]HistoryEntry(nil), rec.History...), entry)
	return next, entry, nil
}

// Allowed reports which actions the actor may currently be offered on rec.
// Read-only actors are offered nothing.
func Allowed(rec Record, node results.Node, actor Actor) []Action {
	if !actor.Elevated() {
		return nil
	}
	m := &Machine{Now: time.Now, NewID: func() string { return "" }}
	var out []Action
	for _, a := range []Action{ActionPublish, ActionCancel} {
		if _, _, err := m.Apply(rec, node, a, actor); err == nil {
			out = append(out, a)
		}
	}
	return out
}
