package usecase

import (
	"context"
	"errors"

	"github.com/Xausdorf/votechain/internal/domain"
)

var (
	ErrVotingNotFound    = errors.New("voting not found")
	ErrVotingNotActive   = errors.New("voting is not active")
	ErrVotingNotEnded    = errors.New("voting has not ended yet")
	ErrAlreadyVoted      = errors.New("already voted")
	ErrAlreadyFinalized  = errors.New("voting is already finalized")
	ErrNoSuchCandidate   = errors.New("there is no such candidate in voting")
	ErrNotCreator        = errors.New("user is not voting creator")
	ErrIdentityRequired  = errors.New("identity required")
	ErrTooManyCandidates = errors.New("candidates count exceeds limit")
)

// LedgerReader - read port of the ledger. Every call is independent and may resolve in any order.
type LedgerReader interface {
	Title(ctx context.Context, votingID string) (string, error)
	StartTime(ctx context.Context, votingID string) (uint64, error)
	EndTime(ctx context.Context, votingID string) (uint64, error)
	Finalized(ctx context.Context, votingID string) (bool, error)
	CandidatesCount(ctx context.Context, votingID string) (uint64, error)
	Candidate(ctx context.Context, votingID string, index uint64) (name string, voteCount uint64, err error)
	HasVoted(ctx context.Context, votingID string, voter domain.Identity) (bool, error)
	Creator(ctx context.Context, votingID string) (domain.Identity, error)
	VotingsByCreator(ctx context.Context, creator domain.Identity) ([]string, error)
	AllVotings(ctx context.Context) ([]string, error)
}

// LedgerWriter - write port of the ledger. The identity stands for the signing account.
type LedgerWriter interface {
	CreateVoting(ctx context.Context, payload domain.VotingPayload, creator domain.Identity) (string, error)
	CastVote(ctx context.Context, votingID string, candidateIndex uint64, voter domain.Identity) error
}

// Finalizer - authority operation closing a voting for good. Not every ledger exposes it.
type Finalizer interface {
	Finalize(ctx context.Context, votingID string, sender domain.Identity) error
}

// Ledger - both ports of one backend.
type Ledger interface {
	LedgerReader
	LedgerWriter
}

// ChangeKind - what happened on the ledger.
type ChangeKind string

const (
	ChangeVoteCast  ChangeKind = "vote.cast"
	ChangeCreated   ChangeKind = "voting.created"
	ChangeFinalized ChangeKind = "voting.finalized"
)

// Change - notification that a successful mutation made observed state stale.
type Change struct {
	Kind   ChangeKind `json:"kind"`
	Voting string     `json:"voting,omitempty"`
	// Origin - instance that performed the mutation.
	Origin string `json:"origin"`
}

// Notifier - fan-out of changes to other engine instances.
type Notifier interface {
	Publish(ctx context.Context, change Change) error
}
