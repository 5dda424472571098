package usecase_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Xausdorf/votechain/internal/domain"
	"github.com/Xausdorf/votechain/internal/repository/memory"
	"github.com/Xausdorf/votechain/internal/usecase"
)

type fakeClock struct {
	unix atomic.Int64
}

func (c *fakeClock) Now() time.Time {
	return time.Unix(c.unix.Load(), 0)
}

func (c *fakeClock) Set(t time.Time) {
	c.unix.Store(t.Unix())
}

func setup(t *testing.T, now time.Time) (*usecase.Orchestrator, *fakeClock) {
	t.Helper()
	clock := &fakeClock{}
	clock.Set(now)
	ledger := memory.NewLedger(clock.Now)
	o := usecase.NewOrchestrator(ledger, usecase.Options{
		Logger:   zaptest.NewLogger(t),
		Clock:    clock.Now,
		Location: time.UTC,
	})
	t.Cleanup(o.Shutdown)
	return o, clock
}

func TestVotingLifecycle(t *testing.T) {
	ctx := context.Background()
	t0 := time.Unix(1_700_000_000, 0)
	o, clock := setup(t, t0)

	creator := domain.Identity(gofakeit.Username())
	voter := domain.Identity("0xVoter")

	id, err := o.CreateVoting(ctx, domain.VotingDraft{
		Title:          "Best Color",
		CandidateNames: []string{"Red", "Blue"},
		Start:          t0,
		End:            t0.Add(time.Hour),
	}, creator)
	require.NoError(t, err)

	clock.Set(t0.Add(10 * time.Second))

	before, err := o.Observe(ctx, id, voter)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, before.Status)
	assert.Equal(t, "Best Color", before.Title.Or(""))
	assert.True(t, before.CanSelect)
	assert.False(t, before.IsCreator)
	require.Len(t, before.Tally.Candidates, 2)

	after, err := o.Vote(ctx, id, 1, voter)
	require.NoError(t, err)
	assert.Equal(t, before.Tally.Candidates[1].VoteCount+1, after.Tally.Candidates[1].VoteCount)
	assert.Equal(t, before.Tally.Candidates[0].VoteCount, after.Tally.Candidates[0].VoteCount)
	assert.True(t, after.HasVoted.Or(false))
	assert.False(t, after.CanSelect)
	assert.Equal(t, float64(100), after.Tally.Candidates[1].Percent)

	_, err = o.Vote(ctx, id, 0, "0xvoter")
	require.ErrorIs(t, err, usecase.ErrNotEligible)

	require.ErrorIs(t, o.Finalize(ctx, id, creator), usecase.ErrVotingNotEnded)

	clock.Set(t0.Add(2 * time.Hour))
	ended, err := o.Observe(ctx, id, creator)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEnded, ended.Status)
	assert.True(t, ended.IsCreator)
	assert.Equal(t, []int{1}, ended.Tally.Winners())

	require.ErrorIs(t, o.Finalize(ctx, id, voter), usecase.ErrNotCreator)
	require.NoError(t, o.Finalize(ctx, id, creator))

	final, err := o.Observe(ctx, id, voter)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinalized, final.Status)
}

func TestListingsNewestFirst(t *testing.T) {
	ctx := context.Background()
	t0 := time.Unix(1_700_000_000, 0)
	o, _ := setup(t, t0)

	alice := domain.Identity("0xa11ce")
	bob := domain.Identity("0xb0b")
	var aliceIDs []string
	for i, creator := range []domain.Identity{alice, bob, alice} {
		id, err := o.CreateVoting(ctx, domain.VotingDraft{
			Title:          gofakeit.Sentence(3),
			CandidateNames: []string{gofakeit.FirstName(), gofakeit.FirstName() + "2"},
			Start:          t0.Add(time.Duration(i) * time.Minute),
			End:            t0.Add(time.Hour),
		}, creator)
		require.NoError(t, err)
		if creator == alice {
			aliceIDs = append(aliceIDs, id)
		}
	}

	all, err := o.AllVotings(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := o.VotingsByCreator(ctx, "0xA11CE")
	require.NoError(t, err)
	assert.Equal(t, []string{aliceIDs[1], aliceIDs[0]}, mine)

	none, err := o.VotingsByCreator(ctx, "0xnobody")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestObserveUnknownVoting(t *testing.T) {
	o, _ := setup(t, time.Unix(1_700_000_000, 0))

	_, err := o.Observe(context.Background(), "0xmissing", domain.NoIdentity)
	require.ErrorIs(t, err, usecase.ErrVotingNotFound)
}

func TestCreateVotingRejectsInvalidDraft(t *testing.T) {
	o, _ := setup(t, time.Unix(1_700_000_000, 0))

	_, err := o.CreateVoting(context.Background(), domain.VotingDraft{
		Title:          "Solo",
		CandidateNames: []string{"Alice", " "},
	}, "0xcreator")
	require.ErrorIs(t, err, usecase.ErrTooFewCandidates)

	_, err = o.CreateVoting(context.Background(), domain.VotingDraft{}, domain.NoIdentity)
	require.ErrorIs(t, err, usecase.ErrIdentityRequired)
}
