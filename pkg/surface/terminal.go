package surface

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/scrutin/scrutin/pkg/publication"
	"github.com/scrutin/scrutin/pkg/results"
)

// TerminalRenderer renders a Report as colored terminal output.
type TerminalRenderer struct{}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

func statusColor(s publication.Status) string {
	if noColor() {
		return ""
	}
	switch s {
	case publication.StatusPublished:
		return colorGreen
	case publication.StatusNotPublished:
		return colorYellow
	case publication.StatusCancelled:
		return colorRed
	default:
		return ""
	}
}

func noColor() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}

func bold(s string) string {
	if noColor() {
		return s
	}
	return colorBold + s + colorReset
}

func dim(s string) string {
	if noColor() {
		return s
	}
	return colorDim + s + colorReset
}

func colored(s, color string) string {
	if noColor() || color == "" {
		return s
	}
	return color + s + colorReset
}

func (r *TerminalRenderer) Render(w io.Writer, report *Report) error {
	n := report.Node

	// Header
	fmt.Fprintf(w, "%s\n\n", bold(title(n)))

	fmt.Fprintf(w, "Turnout: %.2f%% (%d of %d registered) / valid %d / blank %d / null %d\n",
		n.TurnoutRate, n.ActualVoters, n.RegisteredVoters,
		n.ValidExpressedVotes, n.BlankBallots, n.NullBallots)
	fmt.Fprintf(w, "Imported: %d/%d subordinate units\n\n", n.ImportedChildUnitCount, n.ChildUnitCount)

	// Ranking
	if len(report.Ranking) == 0 || report.Outcome == results.OutcomeNoData {
		fmt.Fprintln(w, "No votes recorded.")
		fmt.Fprintln(w)
	} else {
		fmt.Fprintln(w, "Candidates:")
		for _, rr := range report.Ranking {
			line := fmt.Sprintf("  %2d. %-12s %10d  %6.2f%%", rr.Rank, rr.CandidateID, rr.Votes, rr.Percentage)
			switch {
			case rr.IsWinner:
				line = colored(line+"  leading", colorGreen)
			case rr.IsTied:
				line = colored(line+"  tied", colorYellow)
			}
			fmt.Fprintln(w, line)
		}
		fmt.Fprintln(w)
	}

	// Publication
	if report.Record != nil {
		rec := report.Record
		fmt.Fprintf(w, "Publication: %s  %s\n",
			colored(string(rec.Status), statusColor(rec.Status)),
			dim("updated "+rec.LastUpdate.Format("2006-01-02 15:04:05 MST")))
		if report.Ready {
			fmt.Fprintf(w, "  %s\n", colored("ready to publish", colorGreen))
		} else if report.Reason != "" {
			fmt.Fprintf(w, "  %s\n", dim(report.Reason))
		}
		fmt.Fprintln(w)
	}

	// Violations
	if len(report.Violations) > 0 {
		fmt.Fprintln(w, "Data warnings:")
		for _, v := range report.Violations {
			fmt.Fprintf(w, "  %s %s: %s\n", colored("●", colorRed), bold(v.UnitID), v.Summary)
		}
		fmt.Fprintln(w)
	}

	return nil
}

// RenderTable writes one line per entity, the way the list command shows a
// page of the dashboard.
func RenderTable(w io.Writer, reports []*Report) {
	for _, rep := range reports {
		status := ""
		if rep.Record != nil {
			status = colored(fmt.Sprintf("%-13s", rep.Record.Status), statusColor(rep.Record.Status))
		}
		ready := dim("-")
		if rep.Ready {
			ready = colored("ready", colorGreen)
		}
		fmt.Fprintf(w, "%-8s %-28s %s %3d/%-3d %s\n",
			rep.Node.ID, truncate(rep.Node.Label, 28), status,
			rep.Node.ImportedChildUnitCount, rep.Node.ChildUnitCount, ready)
	}
}

func truncate(s string, width int) string {
	if len(s) <= width {
		return s
	}
	return strings.TrimSpace(s[:width-1]) + "…"
}
