package results

import "sort"

// Resolve ranks the node's candidates. Candidates are ordered by votes
// descending, then by candidate ID, and share a rank when their vote counts
// are equal (1, 1, 3). Only candidates with at least one vote can win or tie:
// a single candidate at rank 1 is the winner, several candidates at rank 1
// are tied and nobody wins. The function is pure and deterministic.
func Resolve(node Node) []RankedResult {
	ranked := make([]RankedResult, 0, len(node.Scores))
	for id, s := range node.Scores {
		ranked = append(ranked, RankedResult{
			CandidateID: id,
			Votes:       s.Votes,
			Percentage:  percent(s.Votes, node.ValidExpressedVotes),
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Votes != ranked[j].Votes {
			return ranked[i].Votes > ranked[j].Votes
		}
		return ranked[i].CandidateID < ranked[j].CandidateID
	})

	for i := range ranked {
		if i > 0 && ranked[i].Votes == ranked[i-1].Votes {
			ranked[i].Rank = ranked[i-1].Rank
		} else {
			ranked[i].Rank = i + 1
		}
	}

	leaders := 0
	for _, r := range ranked {
		if r.Rank == 1 && r.Votes > 0 {
			leaders++
		}
	}
	for i := range ranked {
		if ranked[i].Rank != 1 || ranked[i].Votes == 0 {
			continue
		}
		if leaders == 1 {
			ranked[i].IsWinner = true
		} else {
			ranked[i].IsTied = true
		}
	}

	return ranked
}

// OutcomeOf classifies a ranking: a single winner, a tie at the top, or no
// data when every candidate has zero votes.
func OutcomeOf(ranked []RankedResult) Outcome {
	for _, r := range ranked {
		if r.IsWinner {
			return OutcomeWinner
		}
		if r.IsTied {
			return OutcomeTie
		}
	}
	return OutcomeNoData
}

// Winner returns the winning candidate ID, or "" when the node is tied or
// has no data.
func Winner(ranked []RankedResult) string {
	for _, r := range ranked {
		if r.IsWinner {
			return r.CandidateID
		}
	}
	return ""
}
