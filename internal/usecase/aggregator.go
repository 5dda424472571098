package usecase

import (
	"context"
	"fmt"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/Xausdorf/votechain/internal/domain"
)

// DefaultMaxCandidates - largest candidates count the aggregator agrees to read.
const DefaultMaxCandidates = 1024

// Aggregator reads the candidates of a voting index by index.
type Aggregator struct {
	reader        LedgerReader
	pool          pond.Pool
	logger        *zap.Logger
	maxCandidates uint64
}

func NewAggregator(reader LedgerReader, pool pond.Pool, logger *zap.Logger, maxCandidates uint64) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxCandidates == 0 {
		maxCandidates = DefaultMaxCandidates
	}
	return &Aggregator{
		reader:        reader,
		pool:          pool,
		logger:        logger,
		maxCandidates: maxCandidates,
	}
}

// Aggregate issues one read per index in index order and returns the candidates ordered by index,
// whatever order the reads complete in. ctx is the cancellation token of the subject: once it is
// cancelled no result is returned. A single failed read fails the whole pass.
func (a *Aggregator) Aggregate(ctx context.Context, votingID string, count uint64) ([]domain.Candidate, error) {
	if count == 0 {
		return []domain.Candidate{}, nil
	}
	if count > a.maxCandidates {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyCandidates, count, a.maxCandidates)
	}

	out := make([]domain.Candidate, count)
	group := a.pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	for i := uint64(0); i < count; i++ {
		group.SubmitErr(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			name, votes, err := a.reader.Candidate(groupCtx, votingID, i)
			if err != nil {
				return fmt.Errorf("read candidate %d: %w", i, err)
			}
			out[i] = domain.Candidate{Index: int(i), Name: name, VoteCount: votes}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		if ctx.Err() == nil {
			a.logger.Warn("candidate aggregation failed",
				zap.String("voting", votingID),
				zap.Uint64("count", count),
				zap.Error(err))
		}
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
