package ttadapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tarantool/go-iproto"
	"github.com/tarantool/go-tarantool/v2"
	"go.uber.org/zap"

	"github.com/Xausdorf/votechain/internal/domain"
	"github.com/Xausdorf/votechain/internal/usecase"
)

const (
	votingSpace    = "votings"
	candidateSpace = "candidates"
	ballotSpace    = "ballots"

	listLimit = 10000
)

// Ledger keeps votings in tarantool and enforces the voting contract rules on write.
type Ledger struct {
	conn   tarantool.Doer
	clock  func() time.Time
	logger *zap.Logger
}

func NewLedger(conn tarantool.Doer, clock func() time.Time, logger *zap.Logger) *Ledger {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		conn:   conn,
		clock:  clock,
		logger: logger,
	}
}

func (l *Ledger) voting(ctx context.Context, id string) (domain.Voting, error) {
	var res []VotingModel
	if err := l.conn.Do(
		tarantool.NewSelectRequest(votingSpace).
			Context(ctx).
			Index("primary").
			Limit(1).
			Key(tarantool.StringKey{S: id}),
	).GetTyped(&res); err != nil {
		return domain.Voting{}, fmt.Errorf("could not select typed voting in tarantool: %w", err)
	}
	if len(res) == 0 {
		return domain.Voting{}, usecase.ErrVotingNotFound
	}
	return res[0].ToVoting(), nil
}

func (l *Ledger) Title(ctx context.Context, id string) (string, error) {
	v, err := l.voting(ctx, id)
	if err != nil {
		return "", err
	}
	return v.Title, nil
}

func (l *Ledger) StartTime(ctx context.Context, id string) (uint64, error) {
	v, err := l.voting(ctx, id)
	if err != nil {
		return 0, err
	}
	return v.StartTime, nil
}

func (l *Ledger) EndTime(ctx context.Context, id string) (uint64, error) {
	v, err := l.voting(ctx, id)
	if err != nil {
		return 0, err
	}
	return v.EndTime, nil
}

func (l *Ledger) Finalized(ctx context.Context, id string) (bool, error) {
	v, err := l.voting(ctx, id)
	if err != nil {
		return false, err
	}
	return v.Finalized, nil
}

func (l *Ledger) CandidatesCount(ctx context.Context, id string) (uint64, error) {
	v, err := l.voting(ctx, id)
	if err != nil {
		return 0, err
	}
	return v.CandidatesCount, nil
}

func (l *Ledger) Creator(ctx context.Context, id string) (domain.Identity, error) {
	v, err := l.voting(ctx, id)
	if err != nil {
		return domain.NoIdentity, err
	}
	return v.Creator, nil
}

func (l *Ledger) Candidate(ctx context.Context, id string, index uint64) (string, uint64, error) {
	var res []CandidateModel
	if err := l.conn.Do(
		tarantool.NewSelectRequest(candidateSpace).
			Context(ctx).
			Index("primary").
			Limit(1).
			Key([]interface{}{id, index}),
	).GetTyped(&res); err != nil {
		return "", 0, fmt.Errorf("could not select typed candidate in tarantool: %w", err)
	}
	if len(res) == 0 {
		return "", 0, usecase.ErrNoSuchCandidate
	}
	c := res[0].ToCandidate()
	return c.Name, c.VoteCount, nil
}

func (l *Ledger) HasVoted(ctx context.Context, id string, voter domain.Identity) (bool, error) {
	if voter.IsZero() {
		return false, nil
	}
	var res []BallotModel
	if err := l.conn.Do(
		tarantool.NewSelectRequest(ballotSpace).
			Context(ctx).
			Index("primary").
			Limit(1).
			Key([]interface{}{id, voter.Key()}),
	).GetTyped(&res); err != nil {
		return false, fmt.Errorf("could not select typed ballot in tarantool: %w", err)
	}
	return len(res) > 0, nil
}

// VotingsByCreator returns ids in creation order.
func (l *Ledger) VotingsByCreator(ctx context.Context, creator domain.Identity) ([]string, error) {
	var res []VotingModel
	if err := l.conn.Do(
		tarantool.NewSelectRequest(votingSpace).
			Context(ctx).
			Index("creator").
			Iterator(tarantool.IterEq).
			Limit(listLimit).
			Key([]interface{}{creator.Key()}),
	).GetTyped(&res); err != nil {
		return nil, fmt.Errorf("could not select votings of creator in tarantool: %w", err)
	}
	return votingIDs(res), nil
}

// AllVotings returns ids in creation order.
func (l *Ledger) AllVotings(ctx context.Context) ([]string, error) {
	var res []VotingModel
	if err := l.conn.Do(
		tarantool.NewSelectRequest(votingSpace).
			Context(ctx).
			Index("created").
			Iterator(tarantool.IterAll).
			Limit(listLimit).
			Key([]interface{}{}),
	).GetTyped(&res); err != nil {
		return nil, fmt.Errorf("could not select votings in tarantool: %w", err)
	}
	return votingIDs(res), nil
}

// CreateVoting stores candidates before the voting row, so a voting is never visible without them.
func (l *Ledger) CreateVoting(ctx context.Context, payload domain.VotingPayload, creator domain.Identity) (string, error) {
	if creator.IsZero() {
		return "", usecase.ErrIdentityRequired
	}
	id := domain.NewAddress()
	for _, c := range NewCandidateModels(id, payload.CandidateNames) {
		if _, err := l.conn.Do(
			tarantool.NewInsertRequest(candidateSpace).
				Context(ctx).
				Tuple(c),
		).Get(); err != nil {
			return "", fmt.Errorf("could not insert candidate in tarantool: %w", err)
		}
	}
	if _, err := l.conn.Do(
		tarantool.NewInsertRequest(votingSpace).
			Context(ctx).
			Tuple(NewVotingModel(id, payload, creator, l.clock().UnixNano())),
	).Get(); err != nil {
		return "", fmt.Errorf("could not insert voting in tarantool: %w", err)
	}
	return id, nil
}

// CastVote records the ballot first. The unique ballot key rejects a second vote of the same voter
// even when two instances race.
func (l *Ledger) CastVote(ctx context.Context, id string, index uint64, voter domain.Identity) error {
	if voter.IsZero() {
		return usecase.ErrIdentityRequired
	}
	v, err := l.voting(ctx, id)
	if err != nil {
		return err
	}
	now := l.clock()
	if domain.DeriveStatus(now, v.StartTime, v.EndTime, v.Finalized) != domain.StatusActive {
		return usecase.ErrVotingNotActive
	}
	if index >= v.CandidatesCount {
		return usecase.ErrNoSuchCandidate
	}

	ballot := NewBallotModel(id, voter, index, now.Unix())
	if _, err = l.conn.Do(
		tarantool.NewInsertRequest(ballotSpace).
			Context(ctx).
			Tuple(ballot),
	).Get(); err != nil {
		if isDuplicate(err) {
			return usecase.ErrAlreadyVoted
		}
		return fmt.Errorf("could not insert ballot in tarantool: %w", err)
	}

	if _, err = l.conn.Do(
		tarantool.NewUpdateRequest(candidateSpace).
			Context(ctx).
			Index("primary").
			Key([]interface{}{id, index}).
			Operations(tarantool.NewOperations().Add(candidateVotesField, 1)),
	).Get(); err != nil {
		return fmt.Errorf("could not count vote in tarantool: %w", errors.Join(err, l.dropBallot(ctx, ballot)))
	}
	return nil
}

// dropBallot removes a ballot whose vote was not counted. It runs even when ctx is already done,
// otherwise the voter would stay marked as voted.
func (l *Ledger) dropBallot(ctx context.Context, b *BallotModel) error {
	if _, err := l.conn.Do(
		tarantool.NewDeleteRequest(ballotSpace).
			Context(context.WithoutCancel(ctx)).
			Index("primary").
			Key([]interface{}{b.VotingID, b.VoterKey}),
	).Get(); err != nil {
		l.logger.Error("could not drop uncounted ballot",
			zap.String("voting", b.VotingID),
			zap.String("voter", b.VoterKey),
			zap.Error(err))
		return fmt.Errorf("could not drop ballot in tarantool: %w", err)
	}
	return nil
}

// Finalize marks the voting final. Only the creator may do it, and only after the end time.
func (l *Ledger) Finalize(ctx context.Context, id string, sender domain.Identity) error {
	v, err := l.voting(ctx, id)
	if err != nil {
		return err
	}
	if !sender.Equal(v.Creator) {
		return usecase.ErrNotCreator
	}
	if v.Finalized {
		return usecase.ErrAlreadyFinalized
	}
	if uint64(l.clock().Unix()) <= v.EndTime {
		return usecase.ErrVotingNotEnded
	}
	if _, err = l.conn.Do(
		tarantool.NewUpdateRequest(votingSpace).
			Context(ctx).
			Index("primary").
			Key(tarantool.StringKey{S: id}).
			Operations(tarantool.NewOperations().Assign(votingFinalizedField, true)),
	).Get(); err != nil {
		return fmt.Errorf("could not finalize voting in tarantool: %w", err)
	}
	return nil
}

func votingIDs(models []VotingModel) []string {
	out := make([]string, len(models))
	for i := range models {
		out[i] = models[i].ID
	}
	return out
}

func isDuplicate(err error) bool {
	var ttErr tarantool.Error
	if errors.As(err, &ttErr) {
		return ttErr.Code == iproto.ER_TUPLE_FOUND
	}
	var ttErrPtr *tarantool.Error
	return errors.As(err, &ttErrPtr) && ttErrPtr.Code == iproto.ER_TUPLE_FOUND
}
