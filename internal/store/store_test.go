package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrutin/scrutin/internal/platform"
	"github.com/scrutin/scrutin/internal/store"
	"github.com/scrutin/scrutin/pkg/publication"
	"github.com/scrutin/scrutin/pkg/results"
)

func cel(id, circ string, imported bool) results.UnitRow {
	return results.UnitRow{
		ID:    id,
		Label: "CEL " + id,
		Ancestors: map[results.Level]results.Ref{
			results.LevelCirconscription: {ID: circ, Label: "Circ " + circ},
		},
		RegisteredVoters:    results.Ptr(100),
		ActualVoters:        results.Ptr(60),
		ValidExpressedVotes: results.Ptr(55),
		BlankBallots:        results.Ptr(3),
		NullBallots:         results.Ptr(2),
		Scores:              map[string]int64{"A": 30, "B": 25},
		Imported:            imported,
	}
}

func TestMemory(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) store.Store { return store.NewMemory() })
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("SCRUTIN_TEST_DATABASE_URL")
	if dsn == "" || testing.Short() {
		t.Skip("SCRUTIN_TEST_DATABASE_URL not set")
	}

	db, err := platform.Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, platform.AutoMigrate(db.DB))

	runStoreSuite(t, func(t *testing.T) store.Store {
		_, err := db.Exec(`TRUNCATE publication_history, publications, units`)
		require.NoError(t, err)
		return store.NewPostgres(db)
	})
}

func runStoreSuite(t *testing.T, open func(t *testing.T) store.Store) {
	ctx := context.Background()
	epoch := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

	t.Run("units round trip and are marked imported", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.UpsertUnits(ctx, "electoral", []results.UnitRow{cel("cel2", "001", false), cel("cel1", "001", false)}))

		rows, err := s.ListUnits(ctx, "electoral")
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "cel1", rows[0].ID)
		assert.True(t, rows[0].Imported)
		assert.Equal(t, int64(100), *rows[0].RegisteredVoters)
		assert.Equal(t, int64(25), rows[0].Scores["B"])
		assert.Equal(t, "001", rows[0].Ancestors[results.LevelCirconscription].ID)

		other, err := s.ListUnits(ctx, "geographic")
		require.NoError(t, err)
		assert.Empty(t, other)
	})

	t.Run("upsert replaces an existing unit", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.UpsertUnits(ctx, "electoral", []results.UnitRow{cel("cel1", "001", true)}))

		updated := cel("cel1", "001", true)
		updated.ActualVoters = results.Ptr(80)
		require.NoError(t, s.UpsertUnits(ctx, "electoral", []results.UnitRow{updated}))

		rows, err := s.ListUnits(ctx, "electoral")
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, int64(80), *rows[0].ActualVoters)
	})

	t.Run("reset imports only touches units under the ancestor", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.UpsertUnits(ctx, "electoral", []results.UnitRow{
			cel("cel1", "001", true), cel("cel2", "001", true), cel("cel3", "002", true),
		}))

		n, err := s.ResetImports(ctx, "electoral", results.LevelCirconscription, "001")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		rows, err := s.ListUnits(ctx, "electoral")
		require.NoError(t, err)
		imported := map[string]bool{}
		for _, r := range rows {
			imported[r.ID] = r.Imported
		}
		assert.Equal(t, map[string]bool{"cel1": false, "cel2": false, "cel3": true}, imported)

		n, err = s.ResetImports(ctx, "electoral", results.LevelCirconscription, "001")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("ensure record is insert-if-absent", func(t *testing.T) {
		s := open(t)
		rec := publication.NewRecord(publication.EntityCirconscription, "001", "Circ 001", 2, epoch)

		stored, created, err := s.EnsureRecord(ctx, rec)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, publication.StatusNotPublished, stored.Status)

		again := rec
		again.Label = "changed"
		stored, created, err = s.EnsureRecord(ctx, again)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "Circ 001", stored.Label)
	})

	t.Run("register entity updates expectations but not status", func(t *testing.T) {
		s := open(t)
		rec := publication.NewRecord(publication.EntityCommune, "C1", "Cocody", 3, epoch)
		_, err := s.RegisterEntity(ctx, rec)
		require.NoError(t, err)

		update := publication.NewRecord(publication.EntityCommune, "C1", "", 5, epoch.Add(time.Hour))
		update.Status = publication.StatusPublished
		got, err := s.RegisterEntity(ctx, update)
		require.NoError(t, err)

		assert.Equal(t, 5, got.ExpectedUnits)
		assert.Equal(t, "Cocody", got.Label)
		assert.Equal(t, publication.StatusNotPublished, got.Status)
		assert.True(t, got.LastUpdate.Equal(epoch))
	})

	t.Run("missing record is not found", func(t *testing.T) {
		s := open(t)
		_, err := s.GetRecord(ctx, publication.EntityDepartment, "D9")
		assert.ErrorIs(t, err, store.ErrNotFound)

		_, err = s.History(ctx, publication.EntityDepartment, "D9")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("transition is a compare-and-swap", func(t *testing.T) {
		s := open(t)
		rec, _, err := s.EnsureRecord(ctx, publication.NewRecord(publication.EntityCirconscription, "001", "Circ 001", 2, epoch))
		require.NoError(t, err)

		next := rec
		next.Status = publication.StatusPublished
		next.LastUpdate = publication.Timestamp(epoch.Add(time.Minute))
		entry := publication.HistoryEntry{
			ID:         "6f1c9a5e-2d44-4b8e-9a55-0c1f2b3d4e5f",
			EntityID:   "001",
			EntityType: publication.EntityCirconscription,
			Action:     publication.ActionPublish,
			Actor:      "alice",
			At:         next.LastUpdate,
			From:       publication.StatusNotPublished,
			To:         publication.StatusPublished,
		}
		require.NoError(t, s.Transition(ctx, rec, next, entry))

		// a second writer that read the same version loses
		stale := entry
		stale.ID = "7a2d0b6f-3e55-4c9f-8b66-1d2e3c4f5a6b"
		err = s.Transition(ctx, rec, next, stale)
		require.ErrorIs(t, err, publication.ErrConflict)
		var conflict *publication.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "001", conflict.EntityID)

		got, err := s.GetRecord(ctx, publication.EntityCirconscription, "001")
		require.NoError(t, err)
		assert.Equal(t, publication.StatusPublished, got.Status)
		assert.True(t, got.LastUpdate.Equal(next.LastUpdate))
		require.Len(t, got.History, 1)
		assert.Equal(t, entry.ID, got.History[0].ID)
		assert.Equal(t, "alice", got.History[0].Actor)

		history, err := s.History(ctx, publication.EntityCirconscription, "001")
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})

	t.Run("list records by type", func(t *testing.T) {
		s := open(t)
		for _, id := range []string{"003", "001", "002"} {
			_, _, err := s.EnsureRecord(ctx, publication.NewRecord(publication.EntityCirconscription, id, "", 1, epoch))
			require.NoError(t, err)
		}
		_, _, err := s.EnsureRecord(ctx, publication.NewRecord(publication.EntityCommune, "C1", "", 1, epoch))
		require.NoError(t, err)

		recs, err := s.ListRecords(ctx, publication.EntityCirconscription)
		require.NoError(t, err)
		var ids []string
		for _, r := range recs {
			ids = append(ids, r.EntityID)
		}
		assert.Equal(t, []string{"001", "002", "003"}, ids)
	})
}

func TestMemoryListUnitsReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, s.UpsertUnits(ctx, "electoral", []results.UnitRow{cel("cel1", "001", true)}))

	rows, err := s.ListUnits(ctx, "electoral")
	require.NoError(t, err)
	rows[0].Scores["A"] = 9999
	*rows[0].RegisteredVoters = 0

	again, err := s.ListUnits(ctx, "electoral")
	require.NoError(t, err)
	assert.Equal(t, int64(30), again[0].Scores["A"])
	assert.Equal(t, int64(100), *again[0].RegisteredVoters)
}
