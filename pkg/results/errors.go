package results

import "fmt"

// DataShapeError reports a unit row that cannot be aggregated because a
// required field is missing or out of range. Such rows are rejected rather
// than coerced to zero.
type DataShapeError struct {
	UnitID string `json:"unit_id"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *DataShapeError) Error() string {
	return fmt.Sprintf("unit %s: field %s %s", e.UnitID, e.Field, e.Reason)
}

// ViolationKind names a non-fatal data inconsistency.
type ViolationKind string

const (
	ViolationTurnoutExceedsRegistered ViolationKind = "ACTUAL_EXCEEDS_REGISTERED"
)

// Violation is a non-fatal inconsistency found on a unit. It is reported to
// the caller but the unit still counts toward every total.
type Violation struct {
	UnitID  string        `json:"unit_id"`
	Kind    ViolationKind `json:"kind"`
	Summary string        `json:"summary"`
}

// Report collects what a build rejected or flagged.
type Report struct {
	Rejected   []*DataShapeError `json:"rejected"`
	Violations []Violation       `json:"violations"`
}

// Clean reports whether nothing was rejected or flagged.
func (r Report) Clean() bool {
	return len(r.Rejected) == 0 && len(r.Violations) == 0
}
