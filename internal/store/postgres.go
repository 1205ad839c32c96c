package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"github.com/scrutin/scrutin/pkg/publication"
	"github.com/scrutin/scrutin/pkg/results"
)

// upsertBatch bounds the number of rows per INSERT statement, keeping the
// bind parameter count under the Postgres limit.
const upsertBatch = 500

// Postgres is a Store backed by the schema in internal/platform/migrations.
type Postgres struct {
	db *sqlx.DB
}

var _ Store = (*Postgres)(nil)

// NewPostgres creates a Postgres store.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// jsonb stores a Go value in a JSONB column.
type jsonb[T any] struct {
	V T
}

func (j jsonb[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.V)
	if err != nil {
		return nil, err
	}
	// lib/pq sends []byte as bytea; JSONB wants text.
	return string(b), nil
}

func (j *jsonb[T]) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, &j.V)
	case string:
		return json.Unmarshal([]byte(v), &j.V)
	}
	return fmt.Errorf("scan jsonb: unsupported type %T", src)
}

type unitRecord struct {
	Hierarchy           string                               `db:"hierarchy"`
	ID                  string                               `db:"id"`
	Label               string                               `db:"label"`
	Ancestors           jsonb[map[results.Level]results.Ref] `db:"ancestors"`
	RegisteredVoters    int64                                `db:"registered_voters"`
	ActualVoters        int64                                `db:"actual_voters"`
	ValidExpressedVotes int64                                `db:"valid_expressed_votes"`
	BlankBallots        int64                                `db:"blank_ballots"`
	NullBallots         int64                                `db:"null_ballots"`
	Scores              jsonb[map[string]int64]              `db:"scores"`
	Imported            bool                                 `db:"imported"`
	UpdatedAt           time.Time                            `db:"updated_at"`
}

var unitColumns = []string{
	"hierarchy", "id", "label", "ancestors",
	"registered_voters", "actual_voters", "valid_expressed_votes", "blank_ballots", "null_ballots",
	"scores", "imported", "updated_at",
}

func (u unitRecord) row() results.UnitRow {
	return results.UnitRow{
		ID:                  u.ID,
		Label:               u.Label,
		Ancestors:           u.Ancestors.V,
		RegisteredVoters:    results.Ptr(u.RegisteredVoters),
		ActualVoters:        results.Ptr(u.ActualVoters),
		ValidExpressedVotes: results.Ptr(u.ValidExpressedVotes),
		BlankBallots:        results.Ptr(u.BlankBallots),
		NullBallots:         results.Ptr(u.NullBallots),
		Scores:              u.Scores.V,
		Imported:            u.Imported,
	}
}

func (p *Postgres) ListUnits(ctx context.Context, hierarchy string) ([]results.UnitRow, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(unitColumns...)
	sb.From("units")
	sb.Where(sb.Equal("hierarchy", hierarchy))
	sb.OrderBy("id")

	query, args := sb.Build()
	var recs []unitRecord
	if err := p.db.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, fmt.Errorf("list units %s: %w", hierarchy, err)
	}

	rows := make([]results.UnitRow, len(recs))
	for i, r := range recs {
		rows[i] = r.row()
	}
	return rows, nil
}

func (p *Postgres) UpsertUnits(ctx context.Context, hierarchy string, rows []results.UnitRow) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert units: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for start := 0; start < len(rows); start += upsertBatch {
		end := min(start+upsertBatch, len(rows))

		ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
		ib.InsertInto("units")
		ib.Cols(unitColumns...)
		for _, r := range rows[start:end] {
			if r.ID == "" || r.RegisteredVoters == nil || r.ActualVoters == nil ||
				r.ValidExpressedVotes == nil || r.BlankBallots == nil || r.NullBallots == nil {
				return fmt.Errorf("upsert unit %q: incomplete row", r.ID)
			}
			ib.Values(
				hierarchy, r.ID, r.Label, jsonb[map[results.Level]results.Ref]{V: r.Ancestors},
				*r.RegisteredVoters, *r.ActualVoters, *r.ValidExpressedVotes, *r.BlankBallots, *r.NullBallots,
				jsonb[map[string]int64]{V: r.Scores}, true, now,
			)
		}

		query, args := ib.Build()
		query += ` ON CONFLICT (hierarchy, id) DO UPDATE SET
			label = EXCLUDED.label,
			ancestors = EXCLUDED.ancestors,
			registered_voters = EXCLUDED.registered_voters,
			actual_voters = EXCLUDED.actual_voters,
			valid_expressed_votes = EXCLUDED.valid_expressed_votes,
			blank_ballots = EXCLUDED.blank_ballots,
			null_ballots = EXCLUDED.null_ballots,
			scores = EXCLUDED.scores,
			imported = TRUE,
			updated_at = EXCLUDED.updated_at`

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert units %s: %w", hierarchy, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert units: %w", err)
	}
	return nil
}

func (p *Postgres) ResetImports(ctx context.Context, hierarchy string, level results.Level, ancestorID string) (int, error) {
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("units")
	ub.Set(
		ub.Assign("imported", false),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("hierarchy", hierarchy),
		fmt.Sprintf("ancestors -> %s ->> 'id' = %s", ub.Var(string(level)), ub.Var(ancestorID)),
		"imported",
	)

	query, args := ub.Build()
	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("reset imports under %s %s: %w", level, ancestorID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset imports under %s %s: %w", level, ancestorID, err)
	}
	return int(n), nil
}

var recordColumns = []string{"entity_type", "entity_id", "label", "status", "last_update", "expected_units"}

func (p *Postgres) EnsureRecord(ctx context.Context, rec publication.Record) (publication.Record, bool, error) {
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("publications")
	ib.Cols(recordColumns...)
	ib.Values(string(rec.EntityType), rec.EntityID, rec.Label, string(rec.Status), rec.LastUpdate, rec.ExpectedUnits)
	ib.SQL("ON CONFLICT DO NOTHING")

	query, args := ib.Build()
	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return publication.Record{}, false, fmt.Errorf("ensure record %s %s: %w", rec.EntityType, rec.EntityID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return publication.Record{}, false, fmt.Errorf("ensure record %s %s: %w", rec.EntityType, rec.EntityID, err)
	}

	stored, err := p.getRecord(ctx, p.db, rec.EntityType, rec.EntityID)
	if err != nil {
		return publication.Record{}, false, err
	}
	return stored, n == 1, nil
}

func (p *Postgres) RegisterEntity(ctx context.Context, rec publication.Record) (publication.Record, error) {
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("publications")
	ib.Cols(recordColumns...)
	ib.Values(string(rec.EntityType), rec.EntityID, rec.Label, string(rec.Status), rec.LastUpdate, rec.ExpectedUnits)

	query, args := ib.Build()
	query += ` ON CONFLICT (entity_type, entity_id) DO UPDATE SET
		label = CASE WHEN EXCLUDED.label <> '' THEN EXCLUDED.label ELSE publications.label END,
		expected_units = EXCLUDED.expected_units
		RETURNING entity_type, entity_id, label, status, last_update, expected_units`

	var stored publication.Record
	if err := p.db.GetContext(ctx, &stored, query, args...); err != nil {
		return publication.Record{}, fmt.Errorf("register entity %s %s: %w", rec.EntityType, rec.EntityID, err)
	}
	stored.LastUpdate = publication.Timestamp(stored.LastUpdate)
	return stored, nil
}

func (p *Postgres) getRecord(ctx context.Context, q sqlx.QueryerContext, entityType publication.EntityType, id string) (publication.Record, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(recordColumns...)
	sb.From("publications")
	sb.Where(sb.Equal("entity_type", string(entityType)), sb.Equal("entity_id", id))

	query, args := sb.Build()
	var rec publication.Record
	if err := sqlx.GetContext(ctx, q, &rec, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return publication.Record{}, fmt.Errorf("%s %s: %w", entityType, id, ErrNotFound)
		}
		return publication.Record{}, fmt.Errorf("get record %s %s: %w", entityType, id, err)
	}
	rec.LastUpdate = publication.Timestamp(rec.LastUpdate)
	return rec, nil
}

func (p *Postgres) GetRecord(ctx context.Context, entityType publication.EntityType, id string) (publication.Record, error) {
	rec, err := p.getRecord(ctx, p.db, entityType, id)
	if err != nil {
		return publication.Record{}, err
	}
	rec.History, err = p.history(ctx, entityType, id)
	if err != nil {
		return publication.Record{}, err
	}
	return rec, nil
}

func (p *Postgres) ListRecords(ctx context.Context, entityType publication.EntityType) ([]publication.Record, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(recordColumns...)
	sb.From("publications")
	sb.Where(sb.Equal("entity_type", string(entityType)))
	sb.OrderBy("entity_id")

	query, args := sb.Build()
	var recs []publication.Record
	if err := p.db.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, fmt.Errorf("list records %s: %w", entityType, err)
	}
	for i := range recs {
		recs[i].LastUpdate = publication.Timestamp(recs[i].LastUpdate)
	}
	return recs, nil
}

func (p *Postgres) History(ctx context.Context, entityType publication.EntityType, id string) ([]publication.HistoryEntry, error) {
	if _, err := p.getRecord(ctx, p.db, entityType, id); err != nil {
		return nil, err
	}
	return p.history(ctx, entityType, id)
}

func (p *Postgres) history(ctx context.Context, entityType publication.EntityType, id string) ([]publication.HistoryEntry, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "entity_type", "entity_id", "action", "actor", "at", "from_status", "to_status", "snapshot_ref")
	sb.From("publication_history")
	sb.Where(sb.Equal("entity_type", string(entityType)), sb.Equal("entity_id", id))
	sb.OrderBy("at", "id")

	query, args := sb.Build()
	var entries []publication.HistoryEntry
	if err := p.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list history %s %s: %w", entityType, id, err)
	}
	for i := range entries {
		entries[i].At = publication.Timestamp(entries[i].At)
	}
	return entries, nil
}

func (p *Postgres) Transition(ctx context.Context, prev, next publication.Record, entry publication.HistoryEntry) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("publications")
	ub.Set(
		ub.Assign("status", string(next.Status)),
		ub.Assign("last_update", next.LastUpdate),
	)
	ub.Where(
		ub.Equal("entity_type", string(prev.EntityType)),
		ub.Equal("entity_id", prev.EntityID),
		ub.Equal("status", string(prev.Status)),
		ub.Equal("last_update", prev.LastUpdate),
	)

	query, args := ub.Build()
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update status %s %s: %w", prev.EntityType, prev.EntityID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update status %s %s: %w", prev.EntityType, prev.EntityID, err)
	}
	if n == 0 {
		if _, err := p.getRecord(ctx, tx, prev.EntityType, prev.EntityID); err != nil {
			return err
		}
		return conflict(prev)
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("publication_history")
	ib.Cols("id", "entity_type", "entity_id", "action", "actor", "at", "from_status", "to_status", "snapshot_ref")
	ib.Values(entry.ID, string(entry.EntityType), entry.EntityID, string(entry.Action), entry.Actor,
		entry.At, string(entry.From), string(entry.To), entry.SnapshotRef)

	query, args = ib.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("append history %s %s: %w", prev.EntityType, prev.EntityID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	return nil
}
