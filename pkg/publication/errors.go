package publication

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrIllegalTransition is matched by every rejected publish or cancel.
	ErrIllegalTransition = errors.New("illegal transition")

	ErrAlreadyInState          = errors.New("entity is already in the target status")
	ErrNotReady                = errors.New("entity is not ready to publish")
	ErrUnauthorized            = errors.New("actor may not change publication status")
	ErrCancelRequiresPublished = errors.New("only published results can be cancelled")

	// ErrConflict is matched by a mutation rejected because the record
	// changed since it was read. The caller may retry.
	ErrConflict = errors.New("concurrent modification")
)

// RejectedError is a publish or cancel refused by the guard table.
type RejectedError struct {
	EntityType EntityType
	EntityID   string
	Action     Action
	From       Status
	Kind       error
	Reason     string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s %s %s from %s: %s", e.Action, e.EntityType, e.EntityID, e.From, e.Reason)
}

func (e *RejectedError) Unwrap() []error {
	return []error{ErrIllegalTransition, e.Kind}
}

// ConflictError is a stale compare-and-swap on status and last update.
type ConflictError struct {
	EntityType       EntityType
	EntityID         string
	ExpectedStatus   Status
	ExpectedUpdateAt time.Time
}

func (e *ConflictError) Error() string {
	if e.ExpectedUpdateAt.IsZero() {
		return fmt.Sprintf("%s %s is being modified by another request", e.EntityType, e.EntityID)
	}
	return fmt.Sprintf("%s %s changed since %s (expected status %s)",
		e.EntityType, e.EntityID, e.ExpectedUpdateAt.Format(time.RFC3339Nano), e.ExpectedStatus)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// Retryable reports that the caller may read the record again and retry.
func (e *ConflictError) Retryable() bool { return true }

// Outcome is the presentation-facing result of a mutation: success with the
// new record, or failure with a typed reason.
type Outcome struct {
	OK        bool    `json:"ok"`
	Record    *Record `json:"record,omitempty"`
	Code      string  `json:"code,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	Retryable bool    `json:"retryable,omitempty"`
}

// OutcomeOf converts the result of a mutation into an Outcome.
func OutcomeOf(rec Record, err error) Outcome {
	if err == nil {
		return Outcome{OK: true, Record: &rec}
	}

	var rejected *RejectedError
	var conflict *ConflictError
	switch {
	case errors.As(err, &conflict):
		return Outcome{Code: "conflict", Reason: err.Error(), Retryable: true}
	case errors.As(err, &rejected):
		return Outcome{Code: codeOf(rejected.Kind), Reason: rejected.Reason}
	default:
		return Outcome{Code: "error", Reason: err.Error()}
	}
}

func codeOf(kind error) string {
	switch {
	case errors.Is(kind, ErrAlreadyInState):
		return "no_op"
	case errors.Is(kind, ErrNotReady):
		return "not_ready"
	case errors.Is(kind, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(kind, ErrCancelRequiresPublished):
		return "not_published"
	default:
		return "illegal_transition"
	}
}
