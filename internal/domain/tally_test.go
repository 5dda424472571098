package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidates(counts ...uint64) []Candidate {
	out := make([]Candidate, len(counts))
	for i, c := range counts {
		out[i] = Candidate{Index: i, Name: string(rune('A' + i)), VoteCount: c}
	}
	return out
}

func TestNewTally_TieYieldsSeveralWinners(t *testing.T) {
	tally := NewTally(candidates(3, 3, 1), StatusEnded)

	assert.Equal(t, uint64(7), tally.TotalVotes)
	assert.Equal(t, uint64(3), tally.MaxVotes)
	assert.Equal(t, []int{0, 1}, tally.Winners())
	require.Len(t, tally.Candidates, 3)
	assert.InDelta(t, 42.857, tally.Candidates[0].Percent, 0.001)
	assert.InDelta(t, 14.285, tally.Candidates[2].Percent, 0.001)
}

func TestNewTally_NoWinnersWhileOpen(t *testing.T) {
	for _, st := range []Status{StatusUpcoming, StatusActive} {
		tally := NewTally(candidates(5, 1), st)
		assert.Empty(t, tally.Winners(), "status %s", st)
	}

	tally := NewTally(candidates(5, 1), StatusFinalized)
	assert.Equal(t, []int{0}, tally.Winners())
}

func TestNewTally_ZeroVotes(t *testing.T) {
	tally := NewTally(candidates(0, 0), StatusEnded)

	assert.Zero(t, tally.TotalVotes)
	assert.Zero(t, tally.MaxVotes)
	assert.Empty(t, tally.Winners(), "nobody wins without votes")
	for _, c := range tally.Candidates {
		assert.Zero(t, c.Percent)
	}
}

func TestNewTally_NoCandidates(t *testing.T) {
	tally := NewTally(nil, StatusEnded)

	assert.Empty(t, tally.Candidates)
	assert.Zero(t, tally.MaxVotes)
}

func TestCanSelect(t *testing.T) {
	viewer := Identity("0xAbC")

	assert.True(t, CanSelect(StatusActive, viewer, Known(false)))
	assert.False(t, CanSelect(StatusActive, viewer, Known(true)))
	assert.False(t, CanSelect(StatusActive, viewer, Field[bool]{}), "unknown participation")
	assert.False(t, CanSelect(StatusActive, NoIdentity, Known(false)))
	assert.False(t, CanSelect(StatusEnded, viewer, Known(false)))
	assert.False(t, CanSelect(StatusUpcoming, viewer, Known(false)))
}
