// Package results implements the election results aggregation engine.
// It rolls per-unit vote counts up an electoral or geographic hierarchy,
// ranks candidates at any node and decides whether a node may be published.
package results

// Level identifies a tier of a hierarchy.
type Level string

const (
	LevelPollingStation  Level = "polling_station"
	LevelVotingPlace     Level = "voting_place"
	LevelCommune         Level = "commune"
	LevelDepartment      Level = "department"
	LevelRegion          Level = "region"
	LevelCEL             Level = "cel"
	LevelCirconscription Level = "circonscription"
	LevelNational        Level = "national"
)

// CandidateScore is the vote count of one candidate (or list) at one node.
type CandidateScore struct {
	CandidateID string  `json:"candidate_id"`
	Votes       int64   `json:"votes"`
	Percentage  float64 `json:"percentage"` // votes / valid expressed votes * 100
}

// Node is an aggregation node. The same type is used at every level of both
// hierarchies. Nodes are derived values rebuilt on every read.
type Node struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Level Level  `json:"level"`

	RegisteredVoters    int64   `json:"registered_voters"`
	ActualVoters        int64   `json:"actual_voters"`
	TurnoutRate         float64 `json:"turnout_rate"`
	ValidExpressedVotes int64   `json:"valid_expressed_votes"`
	BlankBallots        int64   `json:"blank_ballots"`
	NullBallots         int64   `json:"null_ballots"`

	// Scores holds one entry per candidate of the election, zero when the
	// node has no votes for that candidate.
	Scores map[string]CandidateScore `json:"scores"`

	ChildUnitCount         int `json:"child_unit_count"`
	ImportedChildUnitCount int `json:"imported_child_unit_count"`

	// Imported is the import status of a leaf unit as reported by the import
	// tracker. It is ignored on aggregated nodes, see Complete.
	Imported bool `json:"imported,omitempty"`

	Children []Node `json:"children,omitempty"`
}

// IsLeaf reports whether the node is a lowest-level importable unit.
func (n Node) IsLeaf() bool {
	return n.Level == LevelPollingStation || n.Level == LevelCEL
}

// Complete reports whether the node holds final data: a leaf that has been
// imported, or an aggregated node whose expected children are all complete.
func (n Node) Complete() bool {
	if n.IsLeaf() {
		return n.Imported
	}
	return n.ChildUnitCount > 0 && n.ImportedChildUnitCount == n.ChildUnitCount
}

// CandidateIDs returns the node's candidate keys in ascending order.
func (n Node) CandidateIDs() []string {
	return sortedKeys(n.Scores)
}

// Ref names an ancestor of a unit at a given level.
type Ref struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// UnitRow is the already-parsed raw result of one lowest-level unit
// (polling station or CEL). Numeric fields are pointers so that an absent
// value can be told apart from a zero.
type UnitRow struct {
	ID        string        `json:"id"`
	Label     string        `json:"label"`
	Ancestors map[Level]Ref `json:"ancestors"`

	RegisteredVoters    *int64 `json:"registered_voters"`
	ActualVoters        *int64 `json:"actual_voters"`
	ValidExpressedVotes *int64 `json:"valid_expressed_votes"`
	BlankBallots        *int64 `json:"blank_ballots"`
	NullBallots         *int64 `json:"null_ballots"`

	// Scores maps candidate ID to votes. A missing candidate means zero votes.
	Scores map[string]int64 `json:"scores"`

	Imported bool `json:"imported"`
}

// Completion is the import-completion signal for an aggregating node as
// known by the data-access collaborator.
type Completion struct {
	Expected int `json:"expected"`
}

// RankedResult is one candidate's position at a node.
type RankedResult struct {
	CandidateID string  `json:"candidate_id"`
	Votes       int64   `json:"votes"`
	Percentage  float64 `json:"percentage"`
	Rank        int     `json:"rank"` // 1-based competition ranking
	IsWinner    bool    `json:"is_winner"`
	IsTied      bool    `json:"is_tied"`
}

// Outcome classifies a node's ranking.
type Outcome string

const (
	OutcomeWinner Outcome = "winner"
	OutcomeTie    Outcome = "tie"
	OutcomeNoData Outcome = "no_data"
)

// Ptr returns a pointer to v. Handy for building UnitRow literals.
func Ptr(v int64) *int64 {
	return &v
}
