package results

import (
	"fmt"
	"sort"
)

// FromRow converts a raw unit row into a leaf node. A row missing a required
// numeric field, or carrying a negative count, is rejected with a
// *DataShapeError. An actual-voter count above the registered count is
// returned as a Violation and does not block the row.
func FromRow(level Level, row UnitRow) (Node, []Violation, error) {
	required := []struct {
		field string
		value *int64
	}{
		{"registered_voters", row.RegisteredVoters},
		{"actual_voters", row.ActualVoters},
		{"valid_expressed_votes", row.ValidExpressedVotes},
		{"blank_ballots", row.BlankBallots},
		{"null_ballots", row.NullBallots},
	}
	if row.ID == "" {
		return Node{}, nil, &DataShapeError{UnitID: row.ID, Field: "id", Reason: "is missing"}
	}
	for _, r := range required {
		if r.value == nil {
			return Node{}, nil, &DataShapeError{UnitID: row.ID, Field: r.field, Reason: "is missing"}
		}
		if *r.value < 0 {
			return Node{}, nil, &DataShapeError{UnitID: row.ID, Field: r.field, Reason: "is negative"}
		}
	}

	n := Node{
		ID:                  row.ID,
		Label:               row.Label,
		Level:               level,
		RegisteredVoters:    *row.RegisteredVoters,
		ActualVoters:        *row.ActualVoters,
		ValidExpressedVotes: *row.ValidExpressedVotes,
		BlankBallots:        *row.BlankBallots,
		NullBallots:         *row.NullBallots,
		Scores:              make(map[string]CandidateScore, len(row.Scores)),
		Imported:            row.Imported,
	}
	for id, votes := range row.Scores {
		if votes < 0 {
			return Node{}, nil, &DataShapeError{UnitID: row.ID, Field: "scores." + id, Reason: "is negative"}
		}
		n.Scores[id] = CandidateScore{CandidateID: id, Votes: votes}
	}
	n.recompute()

	var violations []Violation
	if n.ActualVoters > n.RegisteredVoters {
		violations = append(violations, Violation{
			UnitID:  row.ID,
			Kind:    ViolationTurnoutExceedsRegistered,
			Summary: fmt.Sprintf("%d actual voters for %d registered", n.ActualVoters, n.RegisteredVoters),
		})
	}
	return n, violations, nil
}

// Aggregate combines children into a parent node. Counts are summed, the
// candidate key set is the union across children, and rates are recomputed
// from the summed totals. An empty children list yields a zero-valued node.
func Aggregate(id, label string, level Level, children []Node) Node {
	parent := Node{
		ID:             id,
		Label:          label,
		Level:          level,
		Scores:         make(map[string]CandidateScore),
		ChildUnitCount: len(children),
		Children:       children,
	}

	for _, c := range children {
		parent.RegisteredVoters += c.RegisteredVoters
		parent.ActualVoters += c.ActualVoters
		parent.ValidExpressedVotes += c.ValidExpressedVotes
		parent.BlankBallots += c.BlankBallots
		parent.NullBallots += c.NullBallots

		for cid, s := range c.Scores {
			cur := parent.Scores[cid]
			cur.CandidateID = cid
			cur.Votes += s.Votes
			parent.Scores[cid] = cur
		}

		if c.Complete() {
			parent.ImportedChildUnitCount++
		}
	}

	parent.recompute()
	return parent
}

// ApplyCompletion raises the node's child unit count to the number of
// children the data-access collaborator expects. Children that do not exist
// yet count as not imported.
func ApplyCompletion(n *Node, c Completion) {
	if c.Expected > n.ChildUnitCount {
		n.ChildUnitCount = c.Expected
	}
}

// WithCandidates returns a copy of scores holding an entry for every
// candidate in ids. Existing entries are kept as is.
func WithCandidates(scores map[string]CandidateScore, ids []string) map[string]CandidateScore {
	out := make(map[string]CandidateScore, len(ids))
	for k, v := range scores {
		out[k] = v
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			out[id] = CandidateScore{CandidateID: id}
		}
	}
	return out
}

// recompute derives turnout and percentages from the node's own totals.
func (n *Node) recompute() {
	n.TurnoutRate = percent(n.ActualVoters, n.RegisteredVoters)
	for id, s := range n.Scores {
		s.Percentage = percent(s.Votes, n.ValidExpressedVotes)
		n.Scores[id] = s
	}
}

func percent(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

func sortedKeys(m map[string]CandidateScore) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
