package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Xausdorf/votechain/internal/domain"
)

var testNow = time.Unix(1000, 0)

type recorder struct {
	mu    sync.Mutex
	views []View
}

func (r *recorder) sink(v View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

func (r *recorder) since(n int) []View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]View(nil), r.views[n:]...)
}

func newTestOrchestrator(t *testing.T, ledger Ledger) *Orchestrator {
	t.Helper()
	o := NewOrchestrator(ledger, Options{
		Logger:   zaptest.NewLogger(t),
		Clock:    func() time.Time { return testNow },
		Location: time.UTC,
	})
	t.Cleanup(o.Shutdown)
	return o
}

func awaitSession(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Await(ctx))
}

func TestSessionSwitchDropsAbandonedSubject(t *testing.T) {
	ledger := newFakeLedger()
	ledger.add("0xa", "Slow", 500, 5000, "a1", "a2")
	ledger.add("0xb", "Fast", 500, 5000, "b1", "b2", "b3")
	ledger.delay["0xa"] = 80 * time.Millisecond

	rec := &recorder{}
	s := newTestOrchestrator(t, ledger).Open("card", rec.sink)

	s.Watch("0xa", "0xviewer")
	s.Watch("0xb", "0xviewer")
	mark := rec.len()
	awaitSession(t, s)
	// let the abandoned reads run out
	time.Sleep(150 * time.Millisecond)

	views := rec.since(mark - 1)
	require.NotEmpty(t, views)
	for _, v := range views {
		assert.Equal(t, "0xb", v.Address)
		for _, c := range v.Tally.Candidates {
			assert.NotEqual(t, "a1", c.Name)
		}
	}

	last := s.View()
	assert.Equal(t, "Fast", last.Title.Or(""))
	assert.Len(t, last.Tally.Candidates, 3)
	assert.False(t, last.Loading)
}

func TestSessionWatchSameSubjectIsNoop(t *testing.T) {
	ledger := newFakeLedger()
	ledger.add("0xa", "Once", 500, 5000, "a", "b")

	s := newTestOrchestrator(t, ledger).Open("", nil)
	s.Watch("0xa", "0xviewer")
	awaitSession(t, s)
	s.Watch("0xa", "0XVIEWER")
	awaitSession(t, s)

	assert.Equal(t, 1, ledger.calls("0xa"))
}

func TestSessionRefetchCoalesces(t *testing.T) {
	ledger := newFakeLedger()
	ledger.add("0xa", "Busy", 500, 5000, "a", "b")
	gate := make(chan struct{})
	ledger.gate["0xa"] = gate

	s := newTestOrchestrator(t, ledger).Open("", nil)
	s.Watch("0xa", "0xviewer")
	s.Refetch()
	s.Refetch()
	s.Refetch()
	close(gate)
	awaitSession(t, s)

	assert.Equal(t, 2, ledger.calls("0xa"))
}

func TestSessionZeroCandidatesStopsLoading(t *testing.T) {
	ledger := newFakeLedger()
	ledger.add("0xa", "Empty", 500, 5000)

	s := newTestOrchestrator(t, ledger).Open("", nil)
	s.Watch("0xa", domain.NoIdentity)
	awaitSession(t, s)

	v := s.View()
	assert.False(t, v.Loading)
	assert.Empty(t, v.Tally.Candidates)
	assert.Equal(t, uint64(0), v.CandidatesCount.Or(99))
	assert.False(t, v.CanSelect)
}

func TestSessionCountFailureEndsLoading(t *testing.T) {
	ledger := newFakeLedger()
	ledger.add("0xa", "Broken", 500, 5000, "a", "b")
	ledger.countFail = assert.AnError

	s := newTestOrchestrator(t, ledger).Open("", nil)
	s.Watch("0xa", "0xviewer")
	awaitSession(t, s)

	v := s.View()
	assert.False(t, v.Loading)
	assert.NotEmpty(t, v.CandidatesError)
	assert.False(t, v.CandidatesCount.Resolved())
	assert.ErrorIs(t, s.Err(), assert.AnError)
}

func TestSessionViewerWhoVotedCannotSelect(t *testing.T) {
	ledger := newFakeLedger()
	ledger.add("0xa", "Voted", 500, 5000, "a", "b")
	ledger.votings["0xa"].voters["0xviewer"] = true

	s := newTestOrchestrator(t, ledger).Open("", nil)
	s.Watch("0xa", "0xViewer")
	awaitSession(t, s)

	v := s.View()
	assert.Equal(t, domain.StatusActive, v.Status)
	assert.True(t, v.HasVoted.Or(false))
	assert.False(t, v.CanSelect)
	require.ErrorIs(t, s.Select(0), ErrNotEligible)
}

func TestSessionSelectAndSubmit(t *testing.T) {
	ledger := newFakeLedger()
	ledger.add("0xa", "Pick", 500, 5000, "a", "b")

	s := newTestOrchestrator(t, ledger).Open("", nil)
	s.Watch("0xa", "0xviewer")
	awaitSession(t, s)

	require.ErrorIs(t, s.Select(5), ErrNoSuchCandidate)
	require.NoError(t, s.Select(1))
	require.NotNil(t, s.View().Selected)

	require.NoError(t, s.Submit(context.Background()))
	awaitSession(t, s)

	v := s.View()
	assert.Nil(t, v.Selected)
	assert.True(t, v.HasVoted.Or(false))
	assert.Equal(t, uint64(1), v.Tally.Candidates[1].VoteCount)
	assert.Equal(t, uint64(1), v.Tally.TotalVotes)
}

func TestSessionUpcomingVotingNotSelectable(t *testing.T) {
	ledger := newFakeLedger()
	ledger.add("0xa", "Later", 2000, 5000, "a", "b")

	s := newTestOrchestrator(t, ledger).Open("", nil)
	s.Watch("0xa", "0xviewer")
	awaitSession(t, s)

	v := s.View()
	assert.Equal(t, domain.StatusUpcoming, v.Status)
	assert.Empty(t, v.Remaining)
	require.ErrorIs(t, s.Select(0), ErrNotEligible)
}

func TestOrchestratorApplySkipsOwnChanges(t *testing.T) {
	ledger := newFakeLedger()
	ledger.add("0xa", "Remote", 500, 5000, "a", "b")

	o := newTestOrchestrator(t, ledger)
	s := o.Open("", nil)
	s.Watch("0xa", "0xviewer")
	awaitSession(t, s)

	var mu sync.Mutex
	var seen []Change
	o.Subscribe("test", func(c Change) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, c)
	})

	o.Apply(Change{Kind: ChangeVoteCast, Voting: "0xa", Origin: o.Instance()})
	awaitSession(t, s)
	assert.Equal(t, 1, ledger.calls("0xa"))

	o.Apply(Change{Kind: ChangeVoteCast, Voting: "0xa", Origin: "other"})
	awaitSession(t, s)
	assert.Equal(t, 2, ledger.calls("0xa"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1)
	assert.Equal(t, "other", seen[0].Origin)
}

func TestOrchestratorReleaseClosesSession(t *testing.T) {
	o := newTestOrchestrator(t, newFakeLedger())
	s := o.Open("card", nil)
	assert.Equal(t, 1, o.SessionCount())

	o.Release("card")
	assert.Zero(t, o.SessionCount())

	s.Watch("0xa", "0xviewer")
	assert.Empty(t, s.Subject())
}

func TestSessionRefetchDropsFieldsOfFailedReads(t *testing.T) {
	ledger := newFakeLedger()
	ledger.add("0xa", "Twice", 500, 5000, "a", "b")

	s := newTestOrchestrator(t, ledger).Open("", nil)
	s.Watch("0xa", "0xviewer")
	awaitSession(t, s)
	require.Equal(t, uint64(2), s.View().CandidatesCount.Or(0))

	ledger.mu.Lock()
	ledger.countFail = assert.AnError
	ledger.mu.Unlock()

	s.Refetch()
	awaitSession(t, s)

	v := s.View()
	require.ErrorIs(t, s.Err(), assert.AnError)
	assert.False(t, v.CandidatesCount.Resolved())
	assert.Empty(t, v.Tally.Candidates)
	assert.NotEmpty(t, v.CandidatesError)
	assert.False(t, v.Loading)
	assert.Equal(t, "Twice", v.Title.Or(""))
}

func TestSessionSubmitStaysOnItsVoting(t *testing.T) {
	ledger := newFakeLedger()
	ledger.add("0xa", "First", 500, 5000, "a1", "a2")
	ledger.add("0xb", "Second", 500, 5000, "b1", "b2")
	entered, release := make(chan struct{}), make(chan struct{})
	ledger.castEntered, ledger.castRelease = entered, release

	s := newTestOrchestrator(t, ledger).Open("", nil)
	s.Watch("0xa", "0xviewer")
	awaitSession(t, s)
	require.NoError(t, s.Select(0))

	errCh := make(chan error, 1)
	go func() { errCh <- s.Submit(context.Background()) }()
	<-entered

	// the viewer moves on while the vote for 0xa is in flight
	s.Watch("0xb", "0xviewer")
	awaitSession(t, s)
	require.NoError(t, s.Select(1))

	close(release)
	require.NoError(t, <-errCh)

	assert.Equal(t, []string{"0xa/0"}, ledger.castLog())
	v := s.View()
	assert.Equal(t, "0xb", v.Address)
	require.NotNil(t, v.Selected)
	assert.Equal(t, 1, *v.Selected)
	assert.False(t, v.Submitting)
	assert.Empty(t, v.SubmitError)
}

func TestSessionSubmitReportsWriterMessage(t *testing.T) {
	ledger := newFakeLedger()
	ledger.add("0xa", "Rejected", 500, 5000, "a", "b")
	ledger.castErr = errors.New("user rejected the request")

	s := newTestOrchestrator(t, ledger).Open("", nil)
	s.Watch("0xa", "0xviewer")
	awaitSession(t, s)
	require.NoError(t, s.Select(1))

	err := s.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, "user rejected the request", err.Error())

	v := s.View()
	assert.Equal(t, "user rejected the request", v.SubmitError)
	require.NotNil(t, v.Selected)
	assert.Equal(t, 1, *v.Selected)
}

func TestTickEndsVotingAndClearsSelection(t *testing.T) {
	ledger := newFakeLedger()
	ledger.add("0xa", "Closing", 500, 1060, "a", "b")

	var now atomic.Int64
	now.Store(1000)
	o := NewOrchestrator(ledger, Options{
		Logger:   zaptest.NewLogger(t),
		Clock:    func() time.Time { return time.Unix(now.Load(), 0) },
		Location: time.UTC,
	})
	t.Cleanup(o.Shutdown)

	rec := &recorder{}
	s := o.Open("card", rec.sink)
	s.Watch("0xa", "0xviewer")
	awaitSession(t, s)
	require.NoError(t, s.Select(1))

	v := s.View()
	assert.Equal(t, domain.StatusActive, v.Status)
	assert.Equal(t, "1m left", v.Remaining)
	require.NotNil(t, v.Selected)

	now.Store(1061)
	mark := rec.len()
	o.Tick()

	views := rec.since(mark)
	require.Len(t, views, 1)
	assert.Equal(t, domain.StatusEnded, views[0].Status)
	assert.Empty(t, views[0].Remaining)
	assert.Nil(t, views[0].Selected)
	assert.False(t, views[0].CanSelect)
	require.ErrorIs(t, s.Select(0), ErrNotEligible)
}
