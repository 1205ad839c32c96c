package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/scrutin/scrutin/pkg/publication"
	"github.com/scrutin/scrutin/pkg/results"
)

type recordKey struct {
	entityType publication.EntityType
	id         string
}

// Memory is an in-process Store. It backs the daemon when no database is
// configured, the CLI, and tests.
type Memory struct {
	mu      sync.RWMutex
	units   map[string]map[string]results.UnitRow
	records map[recordKey]publication.Record
	history map[recordKey][]publication.HistoryEntry
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		units:   make(map[string]map[string]results.UnitRow),
		records: make(map[recordKey]publication.Record),
		history: make(map[recordKey][]publication.HistoryEntry),
	}
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) ListUnits(_ context.Context, hierarchy string) ([]results.UnitRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := make([]results.UnitRow, 0, len(m.units[hierarchy]))
	for _, r := range m.units[hierarchy] {
		rows = append(rows, copyRow(r))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, nil
}

func (m *Memory) UpsertUnits(_ context.Context, hierarchy string, rows []results.UnitRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byID, ok := m.units[hierarchy]
	if !ok {
		byID = make(map[string]results.UnitRow, len(rows))
		m.units[hierarchy] = byID
	}
	for _, r := range rows {
		if r.ID == "" {
			return fmt.Errorf("upsert unit: empty id")
		}
		c := copyRow(r)
		c.Imported = true
		byID[r.ID] = c
	}
	return nil
}

func (m *Memory) ResetImports(_ context.Context, hierarchy string, level results.Level, ancestorID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, r := range m.units[hierarchy] {
		if !r.Imported || !underAncestor(r, level, ancestorID) {
			continue
		}
		r.Imported = false
		m.units[hierarchy][id] = r
		n++
	}
	return n, nil
}

func (m *Memory) EnsureRecord(_ context.Context, rec publication.Record) (publication.Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := recordKey{rec.EntityType, rec.EntityID}
	if existing, ok := m.records[k]; ok {
		return existing, false, nil
	}
	rec.History = nil
	m.records[k] = rec
	return rec, true, nil
}

func (m *Memory) RegisterEntity(_ context.Context, rec publication.Record) (publication.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := recordKey{rec.EntityType, rec.EntityID}
	existing, ok := m.records[k]
	if !ok {
		rec.History = nil
		m.records[k] = rec
		return rec, nil
	}
	if rec.Label != "" {
		existing.Label = rec.Label
	}
	existing.ExpectedUnits = rec.ExpectedUnits
	m.records[k] = existing
	return existing, nil
}

func (m *Memory) GetRecord(_ context.Context, entityType publication.EntityType, id string) (publication.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k := recordKey{entityType, id}
	rec, ok := m.records[k]
	if !ok {
		return publication.Record{}, fmt.Errorf("%s %s: %w", entityType, id, ErrNotFound)
	}
	rec.History = append([]publication.HistoryEntry(nil), m.history[k]...)
	return rec, nil
}

func (m *Memory) ListRecords(_ context.Context, entityType publication.EntityType) ([]publication.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []publication.Record
	for k, rec := range m.records {
		if k.entityType == entityType {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out, nil
}

func (m *Memory) History(_ context.Context, entityType publication.EntityType, id string) ([]publication.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k := recordKey{entityType, id}
	if _, ok := m.records[k]; !ok {
		return nil, fmt.Errorf("%s %s: %w", entityType, id, ErrNotFound)
	}
	return append([]publication.HistoryEntry(nil), m.history[k]...), nil
}

func (m *Memory) Transition(_ context.Context, prev, next publication.Record, entry publication.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := recordKey{prev.EntityType, prev.EntityID}
	cur, ok := m.records[k]
	if !ok {
		return fmt.Errorf("%s %s: %w", prev.EntityType, prev.EntityID, ErrNotFound)
	}
	if cur.Status != prev.Status || !cur.LastUpdate.Equal(prev.LastUpdate) {
		return conflict(prev)
	}

	cur.Status = next.Status
	cur.LastUpdate = next.LastUpdate
	m.records[k] = cur
	m.history[k] = append(m.history[k], entry)
	return nil
}

func copyRow(r results.UnitRow) results.UnitRow {
	c := r
	if r.Ancestors != nil {
		c.Ancestors = make(map[results.Level]results.Ref, len(r.Ancestors))
		for k, v := range r.Ancestors {
			c.Ancestors[k] = v
		}
	}
	if r.Scores != nil {
		c.Scores = make(map[string]int64, len(r.Scores))
		for k, v := range r.Scores {
			c.Scores[k] = v
		}
	}
	for _, p := range []**int64{&c.RegisteredVoters, &c.ActualVoters, &c.ValidExpressedVotes, &c.BlankBallots, &c.NullBallots} {
		if *p != nil {
			*p = results.Ptr(**p)
		}
	}
	return c
}
