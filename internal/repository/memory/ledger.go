package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Xausdorf/votechain/internal/domain"
	"github.com/Xausdorf/votechain/internal/usecase"
)

type voting struct {
	id         string
	title      string
	start      uint64
	end        uint64
	finalized  bool
	creator    domain.Identity
	candidates []domain.Candidate
	voters     map[string]struct{}
}

// Ledger is an in-process ledger with the rules of the voting contract.
type Ledger struct {
	mu      sync.RWMutex
	clock   func() time.Time
	order   []string
	votings map[string]*voting
}

func NewLedger(clock func() time.Time) *Ledger {
	if clock == nil {
		clock = time.Now
	}
	return &Ledger{
		clock:   clock,
		votings: make(map[string]*voting),
	}
}

func (l *Ledger) get(ctx context.Context, id string) (*voting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, ok := l.votings[id]
	if !ok {
		return nil, usecase.ErrVotingNotFound
	}
	return v, nil
}

func (l *Ledger) Title(ctx context.Context, id string) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, err := l.get(ctx, id)
	if err != nil {
		return "", err
	}
	return v.title, nil
}

func (l *Ledger) StartTime(ctx context.Context, id string) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, err := l.get(ctx, id)
	if err != nil {
		return 0, err
	}
	return v.start, nil
}

func (l *Ledger) EndTime(ctx context.Context, id string) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, err := l.get(ctx, id)
	if err != nil {
		return 0, err
	}
	return v.end, nil
}

func (l *Ledger) Finalized(ctx context.Context, id string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, err := l.get(ctx, id)
	if err != nil {
		return false, err
	}
	return v.finalized, nil
}

func (l *Ledger) CandidatesCount(ctx context.Context, id string) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, err := l.get(ctx, id)
	if err != nil {
		return 0, err
	}
	return uint64(len(v.candidates)), nil
}

func (l *Ledger) Candidate(ctx context.Context, id string, index uint64) (string, uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, err := l.get(ctx, id)
	if err != nil {
		return "", 0, err
	}
	if index >= uint64(len(v.candidates)) {
		return "", 0, usecase.ErrNoSuchCandidate
	}
	c := v.candidates[index]
	return c.Name, c.VoteCount, nil
}

func (l *Ledger) HasVoted(ctx context.Context, id string, voter domain.Identity) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, err := l.get(ctx, id)
	if err != nil {
		return false, err
	}
	_, ok := v.voters[voter.Key()]
	return ok, nil
}

func (l *Ledger) Creator(ctx context.Context, id string) (domain.Identity, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, err := l.get(ctx, id)
	if err != nil {
		return domain.NoIdentity, err
	}
	return v.creator, nil
}

// VotingsByCreator returns ids in creation order.
func (l *Ledger) VotingsByCreator(ctx context.Context, creator domain.Identity) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0)
	for _, id := range l.order {
		if l.votings[id].creator.Equal(creator) {
			out = append(out, id)
		}
	}
	return out, nil
}

// AllVotings returns ids in creation order.
func (l *Ledger) AllVotings(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out, nil
}

func (l *Ledger) CreateVoting(ctx context.Context, payload domain.VotingPayload, creator domain.Identity) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if creator.IsZero() {
		return "", usecase.ErrIdentityRequired
	}
	v := &voting{
		id:         domain.NewAddress(),
		title:      payload.Title,
		start:      payload.StartTime,
		end:        payload.EndTime,
		creator:    creator,
		candidates: make([]domain.Candidate, len(payload.CandidateNames)),
		voters:     make(map[string]struct{}),
	}
	for i, name := range payload.CandidateNames {
		v.candidates[i] = domain.Candidate{Index: i, Name: name}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.votings[v.id] = v
	l.order = append(l.order, v.id)
	return v.id, nil
}

func (l *Ledger) CastVote(ctx context.Context, id string, index uint64, voter domain.Identity) error {
	if voter.IsZero() {
		return usecase.ErrIdentityRequired
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	v, err := l.get(ctx, id)
	if err != nil {
		return err
	}
	if domain.DeriveStatus(l.clock(), v.start, v.end, v.finalized) != domain.StatusActive {
		return usecase.ErrVotingNotActive
	}
	if _, ok := v.voters[voter.Key()]; ok {
		return usecase.ErrAlreadyVoted
	}
	if index >= uint64(len(v.candidates)) {
		return usecase.ErrNoSuchCandidate
	}
	v.voters[voter.Key()] = struct{}{}
	v.candidates[index].VoteCount++
	return nil
}

// Finalize marks the voting final. Only the creator may do it, and only after the end time.
func (l *Ledger) Finalize(ctx context.Context, id string, sender domain.Identity) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, err := l.get(ctx, id)
	if err != nil {
		return err
	}
	if !v.creator.Equal(sender) {
		return usecase.ErrNotCreator
	}
	if v.finalized {
		return usecase.ErrAlreadyFinalized
	}
	if uint64(l.clock().Unix()) <= v.end {
		return usecase.ErrVotingNotEnded
	}
	v.finalized = true
	return nil
}
