package domain

// CandidateResult - candidate with its share of the vote.
type CandidateResult struct {
	Candidate
	// Percent - share of all votes in the range 0..100, 0 while nobody voted.
	Percent float64 `json:"percent"`
	Winner  bool    `json:"winner"`
}

// Tally - aggregate vote counts of one voting.
type Tally struct {
	Candidates []CandidateResult `json:"candidates"`
	TotalVotes uint64            `json:"totalVotes"`
	MaxVotes   uint64            `json:"maxVotes"`
}

// NewTally computes totals and winners. Winners are only flagged once the voting is closed,
// every candidate sharing the maximum is a winner.
func NewTally(candidates []Candidate, status Status) Tally {
	t := Tally{Candidates: make([]CandidateResult, len(candidates))}
	for _, c := range candidates {
		t.TotalVotes += c.VoteCount
		if c.VoteCount > t.MaxVotes {
			t.MaxVotes = c.VoteCount
		}
	}
	for i, c := range candidates {
		res := CandidateResult{Candidate: c}
		if t.TotalVotes > 0 {
			res.Percent = float64(c.VoteCount) / float64(t.TotalVotes) * 100
		}
		res.Winner = status.Closed() && t.MaxVotes > 0 && c.VoteCount == t.MaxVotes
		t.Candidates[i] = res
	}
	return t
}

// Winners returns the indices of all winning candidates.
func (t Tally) Winners() []int {
	var out []int
	for _, c := range t.Candidates {
		if c.Winner {
			out = append(out, c.Index)
		}
	}
	return out
}
