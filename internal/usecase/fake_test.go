package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Xausdorf/votechain/internal/domain"
)

type fakeVoting struct {
	title      string
	start, end uint64
	finalized  bool
	creator    domain.Identity
	candidates []domain.Candidate
	voters     map[string]bool
}

// fakeLedger serves canned votings. Reads can be delayed per voting and per candidate index,
// and any read or write can be made to fail.
type fakeLedger struct {
	mu         sync.Mutex
	votings    map[string]*fakeVoting
	delay      map[string]time.Duration
	candDelay  map[uint64]time.Duration
	candFail   map[uint64]error
	countFail  error
	castErr    error
	castCalls  int
	countCalls map[string]int
	gate       map[string]chan struct{}
	// castEntered and castRelease, when set, hold CastVote until the test lets it go
	castEntered chan struct{}
	castRelease chan struct{}
	casts       []string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		votings:    make(map[string]*fakeVoting),
		delay:      make(map[string]time.Duration),
		candDelay:  make(map[uint64]time.Duration),
		candFail:   make(map[uint64]error),
		countCalls: make(map[string]int),
		gate:       make(map[string]chan struct{}),
	}
}

func (f *fakeLedger) add(id, title string, start, end uint64, names ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := &fakeVoting{title: title, start: start, end: end, creator: "0xcreator", voters: make(map[string]bool)}
	for i, n := range names {
		v.candidates = append(v.candidates, domain.Candidate{Index: i, Name: n})
	}
	f.votings[id] = v
}

func (f *fakeLedger) wait(ctx context.Context, id string) error {
	f.mu.Lock()
	d := f.delay[id]
	g := f.gate[id]
	f.mu.Unlock()
	if g != nil {
		select {
		case <-g:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if d == 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeLedger) voting(ctx context.Context, id string) (*fakeVoting, error) {
	if err := f.wait(ctx, id); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.votings[id]
	if !ok {
		return nil, ErrVotingNotFound
	}
	cp := *v
	cp.candidates = append([]domain.Candidate(nil), v.candidates...)
	return &cp, nil
}

func (f *fakeLedger) Title(ctx context.Context, id string) (string, error) {
	v, err := f.voting(ctx, id)
	if err != nil {
		return "", err
	}
	return v.title, nil
}

func (f *fakeLedger) StartTime(ctx context.Context, id string) (uint64, error) {
	v, err := f.voting(ctx, id)
	if err != nil {
		return 0, err
	}
	return v.start, nil
}

func (f *fakeLedger) EndTime(ctx context.Context, id string) (uint64, error) {
	v, err := f.voting(ctx, id)
	if err != nil {
		return 0, err
	}
	return v.end, nil
}

func (f *fakeLedger) Finalized(ctx context.Context, id string) (bool, error) {
	v, err := f.voting(ctx, id)
	if err != nil {
		return false, err
	}
	return v.finalized, nil
}

func (f *fakeLedger) CandidatesCount(ctx context.Context, id string) (uint64, error) {
	f.mu.Lock()
	f.countCalls[id]++
	fail := f.countFail
	f.mu.Unlock()
	if fail != nil {
		return 0, fail
	}
	v, err := f.voting(ctx, id)
	if err != nil {
		return 0, err
	}
	return uint64(len(v.candidates)), nil
}

func (f *fakeLedger) Candidate(ctx context.Context, id string, index uint64) (string, uint64, error) {
	f.mu.Lock()
	d := f.candDelay[index]
	fail := f.candFail[index]
	f.mu.Unlock()
	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return "", 0, ctx.Err()
		}
	}
	if fail != nil {
		return "", 0, fail
	}
	v, err := f.voting(ctx, id)
	if err != nil {
		return "", 0, err
	}
	if index >= uint64(len(v.candidates)) {
		return "", 0, ErrNoSuchCandidate
	}
	c := v.candidates[index]
	return c.Name, c.VoteCount, nil
}

func (f *fakeLedger) HasVoted(ctx context.Context, id string, voter domain.Identity) (bool, error) {
	v, err := f.voting(ctx, id)
	if err != nil {
		return false, err
	}
	return v.voters[voter.Key()], nil
}

func (f *fakeLedger) Creator(ctx context.Context, id string) (domain.Identity, error) {
	v, err := f.voting(ctx, id)
	if err != nil {
		return domain.NoIdentity, err
	}
	return v.creator, nil
}

func (f *fakeLedger) VotingsByCreator(_ context.Context, creator domain.Identity) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for id, v := range f.votings {
		if v.creator.Equal(creator) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (f *fakeLedger) AllVotings(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.votings))
	for id := range f.votings {
		out = append(out, id)
	}
	return out, nil
}

func (f *fakeLedger) CreateVoting(_ context.Context, _ domain.VotingPayload, _ domain.Identity) (string, error) {
	return "", errors.New("not supported")
}

func (f *fakeLedger) CastVote(_ context.Context, id string, index uint64, voter domain.Identity) error {
	f.mu.Lock()
	entered, release := f.castEntered, f.castRelease
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.castCalls++
	f.casts = append(f.casts, fmt.Sprintf("%s/%d", id, index))
	if f.castErr != nil {
		return f.castErr
	}
	v, ok := f.votings[id]
	if !ok {
		return ErrVotingNotFound
	}
	if v.voters[voter.Key()] {
		return ErrAlreadyVoted
	}
	v.voters[voter.Key()] = true
	v.candidates[index].VoteCount++
	return nil
}

func (f *fakeLedger) castLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.casts...)
}

func (f *fakeLedger) calls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.countCalls[id]
}
