package results

import (
	"errors"
	"fmt"
	"sort"
)

// Hierarchy describes one way of rolling units up to the national total.
// Levels run top-down below the national root; the last level is the leaf
// level that raw unit rows belong to.
type Hierarchy struct {
	Name   string  `json:"name" yaml:"name"`
	Levels []Level `json:"levels" yaml:"levels"`
}

var (
	// Geographic rolls polling stations up through voting places, communes,
	// departments and regions.
	Geographic = Hierarchy{
		Name:   "geographic",
		Levels: []Level{LevelRegion, LevelDepartment, LevelCommune, LevelVotingPlace, LevelPollingStation},
	}

	// Electoral rolls CELs up through circonscriptions.
	Electoral = Hierarchy{
		Name:   "electoral",
		Levels: []Level{LevelCirconscription, LevelCEL},
	}
)

// HierarchyByName returns the built-in hierarchy with the given name.
func HierarchyByName(name string) (Hierarchy, bool) {
	switch name {
	case Geographic.Name:
		return Geographic, true
	case Electoral.Name:
		return Electoral, true
	}
	return Hierarchy{}, false
}

// LeafLevel returns the level raw rows are attached to.
func (h Hierarchy) LeafLevel() Level {
	return h.Levels[len(h.Levels)-1]
}

// Has reports whether level is one of the hierarchy's levels.
func (h Hierarchy) Has(level Level) bool {
	for _, l := range h.Levels {
		if l == level {
			return true
		}
	}
	return level == LevelNational
}

// CompletionFunc looks up the import-completion signal for an aggregating
// node. It returns false when the collaborator knows nothing about the node.
type CompletionFunc func(level Level, id string) (Completion, bool)

type leaf struct {
	node      Node
	ancestors map[Level]Ref
	row       UnitRow
}

// Validate splits rows into the ones that can be aggregated and a report of
// the ones that cannot, plus non-fatal violations of the accepted ones.
func (h Hierarchy) Validate(rows []UnitRow) ([]UnitRow, Report) {
	leaves, report := h.accept(rows)
	accepted := make([]UnitRow, len(leaves))
	for i, l := range leaves {
		accepted[i] = l.row
	}
	return accepted, report
}

// Build assembles the national tree from raw unit rows. Rows that fail
// validation are left out of every total and listed in the report, as are
// non-fatal violations. completion may be nil.
func (h Hierarchy) Build(rows []UnitRow, completion CompletionFunc) (Node, Report) {
	leaves, report := h.accept(rows)

	candidates := make(map[string]bool)
	for _, l := range leaves {
		for id := range l.node.Scores {
			candidates[id] = true
		}
	}
	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for i := range leaves {
		leaves[i].node.Scores = WithCandidates(leaves[i].node.Scores, ids)
	}

	root := Aggregate(string(LevelNational), "National", LevelNational, h.group(0, leaves, completion))
	root.Scores = WithCandidates(root.Scores, ids)
	return root, report
}

func (h Hierarchy) accept(rows []UnitRow) ([]leaf, Report) {
	var report Report
	leafLevel := h.LeafLevel()

	seen := make(map[string]bool, len(rows))
	leaves := make([]leaf, 0, len(rows))

	for _, row := range rows {
		if err := h.checkAncestors(row); err != nil {
			report.Rejected = append(report.Rejected, err)
			continue
		}
		if seen[row.ID] {
			report.Rejected = append(report.Rejected, &DataShapeError{UnitID: row.ID, Field: "id", Reason: "is duplicated"})
			continue
		}

		n, violations, err := FromRow(leafLevel, row)
		if err != nil {
			var shapeErr *DataShapeError
			if errors.As(err, &shapeErr) {
				report.Rejected = append(report.Rejected, shapeErr)
			}
			continue
		}
		seen[row.ID] = true
		report.Violations = append(report.Violations, violations...)
		leaves = append(leaves, leaf{node: n, ancestors: row.Ancestors, row: row})
	}
	return leaves, report
}

func (h Hierarchy) checkAncestors(row UnitRow) *DataShapeError {
	for _, level := range h.Levels[:len(h.Levels)-1] {
		if ref, ok := row.Ancestors[level]; !ok || ref.ID == "" {
			return &DataShapeError{UnitID: row.ID, Field: fmt.Sprintf("ancestors.%s", level), Reason: "is missing"}
		}
	}
	return nil
}

func (h Hierarchy) group(depth int, leaves []leaf, completion CompletionFunc) []Node {
	if depth == len(h.Levels)-1 {
		nodes := make([]Node, len(leaves))
		for i, l := range leaves {
			nodes[i] = l.node
		}
		sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
		return nodes
	}

	level := h.Levels[depth]
	refs := make(map[string]Ref)
	members := make(map[string][]leaf)
	for _, l := range leaves {
		ref := l.ancestors[level]
		if existing, ok := refs[ref.ID]; !ok || existing.Label == "" {
			refs[ref.ID] = ref
		}
		members[ref.ID] = append(members[ref.ID], l)
	}

	ids := make([]string, 0, len(refs))
	for id := range refs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	nodes := make([]Node, 0, len(ids))
	for _, id := range ids {
		n := Aggregate(id, refs[id].Label, level, h.group(depth+1, members[id], completion))
		if completion != nil {
			if c, ok := completion(level, id); ok {
				ApplyCompletion(&n, c)
			}
		}
		nodes = append(nodes, n)
	}
	return nodes
}

// Find returns the first node at level with the given ID, searching the tree
// depth-first.
func Find(root Node, level Level, id string) (Node, bool) {
	if root.Level == level && root.ID == id {
		return root, true
	}
	for _, c := range root.Children {
		if n, ok := Find(c, level, id); ok {
			return n, true
		}
	}
	return Node{}, false
}

// Collect returns every node at level in tree order.
func Collect(root Node, level Level) []Node {
	if root.Level == level {
		return []Node{root}
	}
	var out []Node
	for _, c := range root.Children {
		out = append(out, Collect(c, level)...)
	}
	return out
}
