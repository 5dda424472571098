package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/Xausdorf/votechain/internal/domain"
)

const (
	defaultFieldWorkers     = 64
	defaultCandidateWorkers = 64
)

// Options tune an Orchestrator. Zero values select defaults.
type Options struct {
	Logger           *zap.Logger
	Clock            func() time.Time
	Location         *time.Location
	Notifier         Notifier
	FieldWorkers     int
	CandidateWorkers int
	MaxCandidates    uint64
}

// Orchestrator owns every live Session, reruns them after mutations and drives their clock.
type Orchestrator struct {
	ctx    context.Context
	cancel context.CancelFunc

	reader     LedgerReader
	writer     LedgerWriter
	aggregator *Aggregator
	fields     pond.Pool
	candidates pond.Pool
	notifier   Notifier

	clock    func() time.Time
	loc      *time.Location
	logger   *zap.Logger
	instance string

	sessions  *xsync.Map[string, *Session]
	listeners *xsync.Map[string, func(Change)]
}

func NewOrchestrator(ledger Ledger, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.FieldWorkers <= 0 {
		opts.FieldWorkers = defaultFieldWorkers
	}
	if opts.CandidateWorkers <= 0 {
		opts.CandidateWorkers = defaultCandidateWorkers
	}

	ctx, cancel := context.WithCancel(context.Background())
	candidates := pond.NewPool(opts.CandidateWorkers)

	return &Orchestrator{
		ctx:        ctx,
		cancel:     cancel,
		reader:     ledger,
		writer:     ledger,
		aggregator: NewAggregator(ledger, candidates, opts.Logger, opts.MaxCandidates),
		// field reads wait on candidate reads, so they never share a pool
		fields:     pond.NewPool(opts.FieldWorkers),
		candidates: candidates,
		notifier:   opts.Notifier,
		clock:      opts.Clock,
		loc:        opts.Location,
		logger:     opts.Logger,
		instance:   uuid.NewString(),
		sessions:   xsync.NewMap[string, *Session](),
		listeners:  xsync.NewMap[string, func(Change)](),
	}
}

// Instance identifies this orchestrator in published changes.
func (o *Orchestrator) Instance() string {
	return o.instance
}

func (o *Orchestrator) now() time.Time {
	return o.clock()
}

// Open registers a new session. An empty key gets a generated one; an existing session with the
// same key is closed and replaced.
func (o *Orchestrator) Open(key string, sink Sink) *Session {
	if key == "" {
		key = uuid.NewString()
	}
	s := newSession(key, o, sink)
	if prev, loaded := o.sessions.LoadAndStore(key, s); loaded {
		prev.Close()
	}
	return s
}

func (o *Orchestrator) Session(key string) (*Session, bool) {
	return o.sessions.Load(key)
}

// Release closes and forgets a session.
func (o *Orchestrator) Release(key string) {
	if s, ok := o.sessions.LoadAndDelete(key); ok {
		s.Close()
	}
}

func (o *Orchestrator) SessionCount() int {
	return o.sessions.Size()
}

// Tick republishes every live session with the current time.
func (o *Orchestrator) Tick() {
	o.sessions.Range(func(_ string, s *Session) bool {
		s.Tick()
		return true
	})
}

// Subscribe registers fn for every change, local or remote, under key.
func (o *Orchestrator) Subscribe(key string, fn func(Change)) {
	o.listeners.Store(key, fn)
}

func (o *Orchestrator) Unsubscribe(key string) {
	o.listeners.Delete(key)
}

// VotingChanged refreshes local observers of a mutated voting and tells other instances about it.
func (o *Orchestrator) VotingChanged(ctx context.Context, kind ChangeKind, votingID string) {
	change := Change{Kind: kind, Voting: votingID, Origin: o.instance}
	o.refresh(change)
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Publish(ctx, change); err != nil {
		o.logger.Warn("failed to publish change",
			zap.String("kind", string(kind)),
			zap.String("voting", votingID),
			zap.Error(err))
	}
}

// Apply handles a change published by another instance.
func (o *Orchestrator) Apply(change Change) {
	if change.Origin == o.instance {
		return
	}
	o.logger.Debug("remote change received",
		zap.String("kind", string(change.Kind)),
		zap.String("voting", change.Voting),
		zap.String("origin", change.Origin))
	o.refresh(change)
}

func (o *Orchestrator) refresh(change Change) {
	if change.Voting != "" {
		o.sessions.Range(func(_ string, s *Session) bool {
			if s.Subject() == change.Voting {
				s.Refetch()
			}
			return true
		})
	}
	o.listeners.Range(func(_ string, fn func(Change)) bool {
		fn(change)
		return true
	})
}

// Observe runs one full pass for votingID and returns the settled view.
func (o *Orchestrator) Observe(ctx context.Context, votingID string, viewer domain.Identity) (View, error) {
	s := o.Open("", nil)
	defer o.Release(s.Key())

	s.Watch(votingID, viewer)
	if err := s.Await(ctx); err != nil {
		return View{}, err
	}
	if err := s.Err(); errors.Is(err, ErrVotingNotFound) {
		return View{}, err
	}
	return s.View(), nil
}

// Vote selects candidate index on votingID as voter, submits it and returns the refetched view.
func (o *Orchestrator) Vote(ctx context.Context, votingID string, index int, voter domain.Identity) (View, error) {
	if voter.IsZero() {
		return View{}, ErrIdentityRequired
	}
	s := o.Open("", nil)
	defer o.Release(s.Key())

	s.Watch(votingID, voter)
	if err := s.Await(ctx); err != nil {
		return View{}, err
	}
	if err := s.Err(); errors.Is(err, ErrVotingNotFound) {
		return View{}, err
	}
	if err := s.Select(index); err != nil {
		return s.View(), err
	}
	if err := s.Submit(ctx); err != nil {
		return s.View(), err
	}
	if err := s.Await(ctx); err != nil {
		return View{}, err
	}
	return s.View(), nil
}

// CreateVoting validates the draft, hands it to the ledger and refreshes catalog listeners.
func (o *Orchestrator) CreateVoting(ctx context.Context, draft domain.VotingDraft, creator domain.Identity) (string, error) {
	if creator.IsZero() {
		return "", ErrIdentityRequired
	}
	payload, err := ValidateDraft(draft)
	if err != nil {
		return "", err
	}
	id, err := o.writer.CreateVoting(ctx, payload, creator)
	if err != nil {
		return "", fmt.Errorf("could not create voting: %w", err)
	}
	o.logger.Info("voting created",
		zap.String("voting", id),
		zap.String("creator", string(creator)),
		zap.Int("candidates", len(payload.CandidateNames)))
	o.VotingChanged(ctx, ChangeCreated, id)
	return id, nil
}

// Finalize closes a voting on ledgers that support it.
func (o *Orchestrator) Finalize(ctx context.Context, votingID string, sender domain.Identity) error {
	if sender.IsZero() {
		return ErrIdentityRequired
	}
	f, ok := o.writer.(Finalizer)
	if !ok {
		return errors.New("ledger does not support finalization")
	}
	if err := f.Finalize(ctx, votingID, sender); err != nil {
		return fmt.Errorf("could not finalize voting: %w", err)
	}
	o.VotingChanged(ctx, ChangeFinalized, votingID)
	return nil
}

// AllVotings lists every voting, newest first.
func (o *Orchestrator) AllVotings(ctx context.Context) ([]string, error) {
	ids, err := o.reader.AllVotings(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list votings: %w", err)
	}
	return newestFirst(ids), nil
}

// VotingsByCreator lists the votings deployed by creator, newest first.
func (o *Orchestrator) VotingsByCreator(ctx context.Context, creator domain.Identity) ([]string, error) {
	if creator.IsZero() {
		return nil, ErrIdentityRequired
	}
	ids, err := o.reader.VotingsByCreator(ctx, creator)
	if err != nil {
		return nil, fmt.Errorf("could not list votings of %s: %w", creator, err)
	}
	return newestFirst(ids), nil
}

// Shutdown closes every session and waits for in-flight reads to drain.
func (o *Orchestrator) Shutdown() {
	o.cancel()
	o.sessions.Range(func(key string, s *Session) bool {
		s.Close()
		o.sessions.Delete(key)
		return true
	})
	o.fields.StopAndWait()
	o.candidates.StopAndWait()
}

func newestFirst(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	slices.Reverse(out)
	return out
}
