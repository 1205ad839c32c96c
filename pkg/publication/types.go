// Package publication governs when aggregated results may be shown to the
// public. It holds the publication record of an entity, the readiness rule
// and the state machine that moves a record between statuses.
package publication

import (
	"time"

	"github.com/scrutin/scrutin/pkg/results"
)

// Status is the publication status of an entity.
type Status string

const (
	StatusNotPublished Status = "NOT_PUBLISHED"
	StatusPublished    Status = "PUBLISHED"
	StatusCancelled    Status = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNotPublished, StatusPublished, StatusCancelled:
		return true
	}
	return false
}

// EntityType is the kind of entity whose results are published.
type EntityType string

const (
	EntityCirconscription EntityType = "circonscription"
	EntityDepartment      EntityType = "department"
	EntityCommune         EntityType = "commune"
)

// EntityTypes lists every publishable entity type.
var EntityTypes = []EntityType{EntityCirconscription, EntityDepartment, EntityCommune}

// Placement returns the hierarchy and level an entity type lives at.
func (t EntityType) Placement() (results.Hierarchy, results.Level, bool) {
	switch t {
	case EntityCirconscription:
		return results.Electoral, results.LevelCirconscription, true
	case EntityDepartment:
		return results.Geographic, results.LevelDepartment, true
	case EntityCommune:
		return results.Geographic, results.LevelCommune, true
	}
	return results.Hierarchy{}, "", false
}

// EntityTypeFor returns the entity type published at level, if any.
func EntityTypeFor(level results.Level) (EntityType, bool) {
	for _, t := range EntityTypes {
		if _, l, _ := t.Placement(); l == level {
			return t, true
		}
	}
	return "", false
}

// Action is a mutation of the publication status.
type Action string

const (
	ActionPublish Action = "publish"
	ActionCancel  Action = "cancel"
)

// Role is the permission level of an actor.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

// Actor is the already-authenticated caller of a mutation.
type Actor struct {
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// Elevated reports whether the actor may publish and cancel.
func (a Actor) Elevated() bool {
	return a.Role == RoleAdmin || a.Role == RoleOperator
}

// Record is the single source of truth for an entity's publication status.
// It is created once, defaulting to NOT_PUBLISHED, and never deleted.
type Record struct {
	EntityID      string     `json:"entity_id" db:"entity_id"`
	EntityType    EntityType `json:"entity_type" db:"entity_type"`
	Label         string     `json:"label" db:"label"`
	Status        Status     `json:"status" db:"status"`
	LastUpdate    time.Time  `json:"last_update" db:"last_update"`
	ExpectedUnits int        `json:"expected_units" db:"expected_units"`

	History []HistoryEntry `json:"history,omitempty" db:"-"`
}

// NewRecord returns the initial record of an entity.
func NewRecord(entityType EntityType, id, label string, expectedUnits int, now time.Time) Record {
	return Record{
		EntityID:      id,
		EntityType:    entityType,
		Label:         label,
		Status:        StatusNotPublished,
		LastUpdate:    Timestamp(now),
		ExpectedUnits: expectedUnits,
	}
}

// HistoryEntry is one past transition. Entries are append-only.
type HistoryEntry struct {
	ID          string     `json:"id" db:"id"`
	EntityID    string     `json:"entity_id" db:"entity_id"`
	EntityType  EntityType `json:"entity_type" db:"entity_type"`
	Action      Action     `json:"action" db:"action"`
	Actor       string     `json:"actor" db:"actor"`
	At          time.Time  `json:"at" db:"at"`
	From        Status     `json:"from" db:"from_status"`
	To          Status     `json:"to" db:"to_status"`
	SnapshotRef string     `json:"snapshot_ref,omitempty" db:"snapshot_ref"`
}

// Timestamp normalizes t to UTC microseconds, the precision Postgres keeps,
// so that a stored LastUpdate compares equal to the one that was written.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
