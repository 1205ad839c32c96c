// Package store is the data-access boundary of the aggregation engine. It
// keeps raw unit rows with their import status and the publication records
// with their history. Aggregation never happens here; callers rebuild trees
// from ListUnits on every read.
package store

import (
	"context"
	"errors"

	"github.com/scrutin/scrutin/pkg/publication"
	"github.com/scrutin/scrutin/pkg/results"
)

// ErrNotFound is returned when a publication record does not exist.
var ErrNotFound = errors.New("not found")

// UnitStore holds lowest-level unit rows per hierarchy.
type UnitStore interface {
	// ListUnits returns every row of the hierarchy ordered by unit ID.
	ListUnits(ctx context.Context, hierarchy string) ([]results.UnitRow, error)

	// UpsertUnits stores rows and marks each of them imported. A row that
	// already exists is replaced.
	UpsertUnits(ctx context.Context, hierarchy string, rows []results.UnitRow) error

	// ResetImports marks every unit below the ancestor at level as pending
	// again and returns how many rows changed.
	ResetImports(ctx context.Context, hierarchy string, level results.Level, ancestorID string) (int, error)
}

// PublicationStore holds publication records. Records are never deleted and
// history entries are append-only.
type PublicationStore interface {
	// EnsureRecord inserts rec if no record exists for its entity and
	// returns the stored record. created reports whether rec was inserted.
	EnsureRecord(ctx context.Context, rec publication.Record) (stored publication.Record, created bool, err error)

	// RegisterEntity sets the label and expected subordinate unit count of
	// an entity, creating a NOT_PUBLISHED record when missing. An empty
	// label keeps the current one. Status is never changed.
	RegisterEntity(ctx context.Context, rec publication.Record) (publication.Record, error)

	// GetRecord returns the record with its full history.
	GetRecord(ctx context.Context, entityType publication.EntityType, id string) (publication.Record, error)

	// ListRecords returns the records of one entity type ordered by ID,
	// without history.
	ListRecords(ctx context.Context, entityType publication.EntityType) ([]publication.Record, error)

	// History returns the entity's transitions, oldest first.
	History(ctx context.Context, entityType publication.EntityType, id string) ([]publication.HistoryEntry, error)

	// Transition replaces prev with next and appends entry, provided the
	// stored status and last update still equal prev's. Otherwise it
	// returns a *publication.ConflictError and changes nothing.
	Transition(ctx context.Context, prev, next publication.Record, entry publication.HistoryEntry) error
}

// Store is the full data-access collaborator.
type Store interface {
	UnitStore
	PublicationStore
	Ping(ctx context.Context) error
}

func conflict(prev publication.Record) *publication.ConflictError {
	return &publication.ConflictError{
		EntityType:       prev.EntityType,
		EntityID:         prev.EntityID,
		ExpectedStatus:   prev.Status,
		ExpectedUpdateAt: prev.LastUpdate,
	}
}

func underAncestor(row results.UnitRow, level results.Level, id string) bool {
	if ref, ok := row.Ancestors[level]; ok {
		return ref.ID == id
	}
	return false
}
