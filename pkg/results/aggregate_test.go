package results_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrutin/scrutin/pkg/results"
)

func station(id string, registered, actual int64, scores map[string]int64) results.Node {
	var valid int64
	for _, v := range scores {
		valid += v
	}
	n, _, err := results.FromRow(results.LevelPollingStation, results.UnitRow{
		ID:                  id,
		RegisteredVoters:    results.Ptr(registered),
		ActualVoters:        results.Ptr(actual),
		ValidExpressedVotes: results.Ptr(valid),
		BlankBallots:        results.Ptr(0),
		NullBallots:         results.Ptr(0),
		Scores:              scores,
		Imported:            true,
	})
	if err != nil {
		panic(err)
	}
	return n
}

func TestAggregateSumsVotesPerCandidate(t *testing.T) {
	children := []results.Node{
		station("bv1", 100, 20, map[string]int64{"A": 10, "B": 5}),
		station("bv2", 100, 10, map[string]int64{"A": 0, "B": 7}),
		station("bv3", 100, 15, map[string]int64{"A": 5}),
	}

	parent := results.Aggregate("lv1", "Ecole A", results.LevelVotingPlace, children)

	assert.Equal(t, int64(15), parent.Scores["A"].Votes)
	assert.Equal(t, int64(12), parent.Scores["B"].Votes)
	assert.Equal(t, int64(300), parent.RegisteredVoters)
	assert.Equal(t, int64(45), parent.ActualVoters)
	assert.Equal(t, int64(27), parent.ValidExpressedVotes)
	assert.Equal(t, 3, parent.ChildUnitCount)
	assert.Equal(t, 3, parent.ImportedChildUnitCount)
}

func TestAggregateAdditivityAcrossPartitions(t *testing.T) {
	all := []results.Node{
		station("bv1", 100, 40, map[string]int64{"A": 10, "B": 30}),
		station("bv2", 200, 90, map[string]int64{"A": 60, "B": 30}),
		station("bv3", 50, 25, map[string]int64{"A": 5, "B": 20}),
		station("bv4", 80, 70, map[string]int64{"A": 35, "B": 35}),
	}

	whole := results.Aggregate("x", "", results.LevelVotingPlace, all)
	left := results.Aggregate("l", "", results.LevelVotingPlace, all[:2])
	right := results.Aggregate("r", "", results.LevelVotingPlace, all[2:])
	nested := results.Aggregate("x", "", results.LevelCommune, []results.Node{left, right})

	for _, c := range []string{"A", "B"} {
		assert.Equal(t, whole.Scores[c].Votes, nested.Scores[c].Votes, "candidate %s", c)
		assert.InDelta(t, whole.Scores[c].Percentage, nested.Scores[c].Percentage, 1e-9)
	}
	assert.Equal(t, whole.RegisteredVoters, nested.RegisteredVoters)
	assert.InDelta(t, whole.TurnoutRate, nested.TurnoutRate, 1e-9)
}

func TestAggregateTurnoutIsRecomputedNotAveraged(t *testing.T) {
	parent := results.Aggregate("p", "", results.LevelVotingPlace, []results.Node{
		station("bv1", 100, 50, map[string]int64{"A": 50}),
		station("bv2", 200, 50, map[string]int64{"A": 50}),
	})

	assert.InDelta(t, 33.333, parent.TurnoutRate, 0.001)
	assert.NotEqual(t, 37.5, parent.TurnoutRate)
}

func TestAggregatePercentagesUseSummedValidVotes(t *testing.T) {
	parent := results.Aggregate("p", "", results.LevelVotingPlace, []results.Node{
		station("bv1", 100, 10, map[string]int64{"A": 9, "B": 1}),  // A 90%
		station("bv2", 100, 90, map[string]int64{"A": 10, "B": 80}), // A ~11%
	})

	assert.InDelta(t, 19.0, parent.Scores["A"].Percentage, 1e-9)
	assert.InDelta(t, 81.0, parent.Scores["B"].Percentage, 1e-9)
}

func TestAggregateEmptyChildrenIsZeroNode(t *testing.T) {
	n := results.Aggregate("c1", "Circ 1", results.LevelCirconscription, nil)

	assert.Equal(t, "c1", n.ID)
	assert.Zero(t, n.RegisteredVoters)
	assert.Zero(t, n.TurnoutRate)
	assert.Zero(t, n.ChildUnitCount)
	assert.Empty(t, n.Scores)
	assert.False(t, n.Complete())
}

func TestAggregateCountsOnlyCompleteChildren(t *testing.T) {
	done := station("cel1", 10, 5, map[string]int64{"A": 5})
	pending := station("cel2", 10, 5, map[string]int64{"A": 5})
	pending.Imported = false

	n := results.Aggregate("c", "", results.LevelCirconscription, []results.Node{done, pending})

	assert.Equal(t, 2, n.ChildUnitCount)
	assert.Equal(t, 1, n.ImportedChildUnitCount)
	assert.False(t, n.Complete())
}

func TestApplyCompletionRaisesExpectedCount(t *testing.T) {
	n := results.Aggregate("c", "", results.LevelCirconscription, []results.Node{
		station("cel1", 10, 5, map[string]int64{"A": 5}),
	})

	results.ApplyCompletion(&n, results.Completion{Expected: 3})
	assert.Equal(t, 3, n.ChildUnitCount)
	assert.Equal(t, 1, n.ImportedChildUnitCount)

	results.ApplyCompletion(&n, results.Completion{Expected: 1})
	assert.Equal(t, 3, n.ChildUnitCount, "expected count never lowers the actual count")
}

func TestFromRow(t *testing.T) {
	full := func() results.UnitRow {
		return results.UnitRow{
			ID:                  "bv1",
			RegisteredVoters:    results.Ptr(100),
			ActualVoters:        results.Ptr(60),
			ValidExpressedVotes: results.Ptr(55),
			BlankBallots:        results.Ptr(3),
			NullBallots:         results.Ptr(2),
			Scores:              map[string]int64{"A": 30, "B": 25},
		}
	}

	tests := []struct {
		name      string
		mutate    func(r *results.UnitRow)
		wantField string
		wantViol  int
	}{
		{name: "complete row", mutate: func(r *results.UnitRow) {}},
		{name: "missing registered voters", mutate: func(r *results.UnitRow) { r.RegisteredVoters = nil }, wantField: "registered_voters"},
		{name: "missing actual voters", mutate: func(r *results.UnitRow) { r.ActualVoters = nil }, wantField: "actual_voters"},
		{name: "missing blank ballots", mutate: func(r *results.UnitRow) { r.BlankBallots = nil }, wantField: "blank_ballots"},
		{name: "negative null ballots", mutate: func(r *results.UnitRow) { r.NullBallots = results.Ptr(-1) }, wantField: "null_ballots"},
		{name: "negative candidate votes", mutate: func(r *results.UnitRow) { r.Scores["B"] = -4 }, wantField: "scores.B"},
		{name: "missing id", mutate: func(r *results.UnitRow) { r.ID = "" }, wantField: "id"},
		{name: "actual above registered is flagged", mutate: func(r *results.UnitRow) { r.ActualVoters = results.Ptr(120) }, wantViol: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := full()
			tt.mutate(&row)

			n, violations, err := results.FromRow(results.LevelPollingStation, row)
			if tt.wantField != "" {
				var shapeErr *results.DataShapeError
				require.ErrorAs(t, err, &shapeErr)
				assert.Equal(t, tt.wantField, shapeErr.Field)
				assert.Equal(t, row.ID, shapeErr.UnitID)
				return
			}
			require.NoError(t, err)
			assert.Len(t, violations, tt.wantViol)
			assert.Equal(t, row.ID, n.ID)
			assert.Equal(t, *row.ActualVoters, n.ActualVoters)
		})
	}
}

func TestFromRowMissingCandidateIsNotAnError(t *testing.T) {
	n, _, err := results.FromRow(results.LevelCEL, results.UnitRow{
		ID:                  "cel1",
		RegisteredVoters:    results.Ptr(10),
		ActualVoters:        results.Ptr(0),
		ValidExpressedVotes: results.Ptr(0),
		BlankBallots:        results.Ptr(0),
		NullBallots:         results.Ptr(0),
	})
	require.NoError(t, err)
	assert.Empty(t, n.Scores)
	assert.Zero(t, n.TurnoutRate)
}
