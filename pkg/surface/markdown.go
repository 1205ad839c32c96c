package surface

import (
	"fmt"
	"io"
	"strings"

	"github.com/scrutin/scrutin/pkg/results"
)

// MarkdownRenderer produces a results bulletin suitable for a press page or
// a published snapshot.
type MarkdownRenderer struct{}

func (r *MarkdownRenderer) Render(w io.Writer, report *Report) error {
	_, err := io.WriteString(w, BuildBulletin(report))
	return err
}

// BuildBulletin renders report as Markdown.
func BuildBulletin(report *Report) string {
	var sb strings.Builder
	n := report.Node

	sb.WriteString(fmt.Sprintf("## %s: %s\n\n", title(n), outcomeHeadline(report)))

	sb.WriteString("### Participation\n\n")
	sb.WriteString("| Metric | Count |\n|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Registered voters | %d |\n", n.RegisteredVoters))
	sb.WriteString(fmt.Sprintf("| Actual voters | %d |\n", n.ActualVoters))
	sb.WriteString(fmt.Sprintf("| Turnout | %.2f%% |\n", n.TurnoutRate))
	sb.WriteString(fmt.Sprintf("| Valid expressed votes | %d |\n", n.ValidExpressedVotes))
	sb.WriteString(fmt.Sprintf("| Blank ballots | %d |\n", n.BlankBallots))
	sb.WriteString(fmt.Sprintf("| Null ballots | %d |\n", n.NullBallots))
	sb.WriteString("\n")

	sb.WriteString("### Candidates\n\n")
	if len(report.Ranking) == 0 {
		sb.WriteString("_No candidates._\n\n")
	} else {
		sb.WriteString("| Rank | Candidate | Votes | Share |\n|------|-----------|-------|-------|\n")
		for _, rr := range report.Ranking {
			sb.WriteString(fmt.Sprintf("| %d | %s%s | %d | %.2f%% |\n",
				rr.Rank, rr.CandidateID, mark(rr), rr.Votes, rr.Percentage))
		}
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("_%d of %d subordinate units imported._\n",
		n.ImportedChildUnitCount, n.ChildUnitCount))
	if report.Record != nil {
		sb.WriteString(fmt.Sprintf("_Status: %s, last updated %s._\n",
			report.Record.Status, report.Record.LastUpdate.Format("2006-01-02 15:04 MST")))
	}

	return sb.String()
}

func title(n results.Node) string {
	if n.Label != "" {
		return fmt.Sprintf("%s %s (%s)", levelName(n.Level), n.ID, n.Label)
	}
	return fmt.Sprintf("%s %s", levelName(n.Level), n.ID)
}

func levelName(l results.Level) string {
	s := strings.ReplaceAll(string(l), "_", " ")
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func outcomeHeadline(report *Report) string {
	switch report.Outcome {
	case results.OutcomeWinner:
		return "leading candidate " + report.Winner
	case results.OutcomeTie:
		return "tie at the top"
	default:
		return "no votes recorded"
	}
}

func mark(rr results.RankedResult) string {
	switch {
	case rr.IsWinner:
		return " **(leading)**"
	case rr.IsTied:
		return " _(tied)_"
	}
	return ""
}
