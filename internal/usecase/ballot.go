package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/Xausdorf/votechain/internal/domain"
)

var (
	ErrNotEligible       = errors.New("voting is not open for this identity")
	ErrNoSelection       = errors.New("no candidate selected")
	ErrSubmissionPending = errors.New("vote submission already in progress")
)

// FallbackSubmissionMessage - message shown when a failed write carries no reason.
const FallbackSubmissionMessage = "Transaction failed"

// Ballot holds the candidate selection of one viewer for one voting and submits it.
type Ballot struct {
	mu         sync.Mutex
	selected   int
	hasPick    bool
	eligible   bool
	submitting bool
	lastErr    string
	// epoch changes on Clear; a submission claimed in an older epoch cannot touch the new state
	epoch uint64
}

func NewBallot() *Ballot {
	return &Ballot{}
}

// Reconcile records the current eligibility. Losing eligibility clears the selection, so a pick made
// under stale conditions can never be submitted.
func (b *Ballot) Reconcile(eligible bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.eligible = eligible
	if !eligible {
		b.hasPick = false
	}
}

// Select picks a candidate, or deselects it when it is already selected.
func (b *Ballot) Select(index int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.eligible {
		return ErrNotEligible
	}
	if index < 0 {
		return ErrNoSuchCandidate
	}
	if b.hasPick && b.selected == index {
		b.hasPick = false
		return nil
	}
	b.selected = index
	b.hasPick = true
	return nil
}

// Selected returns the selected index, if any.
func (b *Ballot) Selected() (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selected, b.hasPick
}

// Clear drops the selection, the last error and any submission in flight.
func (b *Ballot) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hasPick = false
	b.lastErr = ""
	b.submitting = false
	b.epoch++
}

// State returns the selection, whether a submission is in flight and the last failure message.
func (b *Ballot) State() (selected *int, submitting bool, lastErr string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.hasPick {
		idx := b.selected
		selected = &idx
	}
	return selected, b.submitting, b.lastErr
}

// Submit hands a vote for the selected candidate to the writer. No vote count is updated locally,
// the caller refetches the voting afterwards. On failure the selection stays for a retry.
func (b *Ballot) Submit(ctx context.Context, writer LedgerWriter, votingID string, voter domain.Identity) error {
	index, epoch, err := b.claim(voter)
	if err != nil {
		return err
	}
	return b.settle(epoch, index, writer.CastVote(ctx, votingID, uint64(index), voter))
}

// claim marks the selection as being submitted and returns it with the current epoch.
func (b *Ballot) claim(voter domain.Identity) (index int, epoch uint64, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.submitting:
		return 0, 0, ErrSubmissionPending
	case !b.hasPick:
		return 0, 0, ErrNoSelection
	case !b.eligible || voter.IsZero():
		return 0, 0, ErrNotEligible
	}
	b.submitting = true
	b.lastErr = ""
	return b.selected, b.epoch, nil
}

// settle records the writer's answer for a claimed submission. The error is returned as the writer gave it.
func (b *Ballot) settle(epoch uint64, index int, err error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if epoch != b.epoch {
		return err
	}
	b.submitting = false
	if err != nil {
		b.lastErr = SubmissionMessage(err)
		return err
	}
	if b.selected == index {
		b.hasPick = false
	}
	return nil
}

// SubmissionMessage renders a write failure for the user.
func SubmissionMessage(err error) string {
	if err == nil {
		return ""
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return FallbackSubmissionMessage
}
