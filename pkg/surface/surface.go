// Package surface defines output rendering for aggregated results.
// Implementations handle different output targets: terminal, Markdown, JSON.
package surface

import (
	"io"

	"github.com/scrutin/scrutin/pkg/publication"
	"github.com/scrutin/scrutin/pkg/results"
)

// Renderer produces formatted output from a Report.
type Renderer interface {
	// Render writes the formatted report to the writer.
	Render(w io.Writer, report *Report) error
}

// Report is everything shown about one node: its totals, the candidate
// ranking and, for publishable entities, the publication state.
type Report struct {
	Node       results.Node           `json:"node"`
	Ranking    []results.RankedResult `json:"ranking"`
	Outcome    results.Outcome        `json:"outcome"`
	Winner     string                 `json:"winner,omitempty"`
	Record     *publication.Record    `json:"record,omitempty"`
	Ready      bool                   `json:"ready"`
	Reason     string                 `json:"reason,omitempty"`
	Violations []results.Violation    `json:"violations,omitempty"`
}

// NewReport ranks node and, when rec is not nil, evaluates readiness.
func NewReport(node results.Node, rec *publication.Record, violations []results.Violation) *Report {
	ranked := results.Resolve(node)
	r := &Report{
		Node:       node,
		Ranking:    ranked,
		Outcome:    results.OutcomeOf(ranked),
		Winner:     results.Winner(ranked),
		Record:     rec,
		Violations: violations,
	}
	if rec != nil {
		r.Ready, r.Reason = publication.Readiness(node, *rec)
	}
	return r
}

// ForFormat returns the renderer for a CLI output format.
func ForFormat(format string) (Renderer, bool) {
	switch format {
	case "", "text":
		return &TerminalRenderer{}, true
	case "json":
		return &JSONRenderer{}, true
	case "markdown", "md":
		return &MarkdownRenderer{}, true
	}
	return nil, false
}
