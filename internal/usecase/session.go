package usecase

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Xausdorf/votechain/internal/domain"
)

// Sink receives every view a session publishes. It is called with the session lock held,
// so it must not block and must not call back into the session.
type Sink func(View)

// Session observes one subject voting on behalf of one viewer, like a single card on a page.
// Each change of subject starts a new pass; results of older passes are dropped by generation.
type Session struct {
	key    string
	o      *Orchestrator
	sink   Sink
	ballot *Ballot

	mu       sync.Mutex
	subject  string
	viewer   domain.Identity
	gen      uint64
	revision uint64
	cancel   context.CancelFunc
	running  bool
	rerun    bool
	done     chan struct{}
	closed   bool
	snap     domain.Snapshot
	cands    candidateState
	readErr  error
}

func newSession(key string, o *Orchestrator, sink Sink) *Session {
	return &Session{
		key:    key,
		o:      o,
		sink:   sink,
		ballot: NewBallot(),
	}
}

func (s *Session) Key() string {
	return s.key
}

// Subject returns the voting currently observed, empty when none.
func (s *Session) Subject() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subject
}

// Watch makes subject the observed voting for viewer. Watching the same subject with the same viewer
// again does nothing; anything else supersedes the live pass. An empty subject stops observing.
func (s *Session) Watch(subject string, viewer domain.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if subject == s.subject && viewer.Key() == s.viewer.Key() {
		return
	}

	sameSubject := subject == s.subject
	s.subject = subject
	s.viewer = viewer
	s.ballot.Clear()

	if subject == "" {
		s.stopLocked()
		s.snap = domain.Snapshot{}
		s.cands = candidateState{}
		return
	}
	if sameSubject {
		// only the viewer changed, participation must be read again
		s.snap.HasVoted = domain.Field[bool]{}
	} else {
		s.snap = domain.Snapshot{Address: subject}
		s.cands = candidateState{loading: true}
	}
	s.startLocked()
	s.publishLocked()
}

// Refetch reads the current subject again. While a pass is live the new one is queued behind it.
func (s *Session) Refetch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.subject == "" {
		return
	}
	if s.running {
		s.rerun = true
		return
	}
	s.startLocked()
}

// Await blocks until no pass is live or queued for the session.
func (s *Session) Await(ctx context.Context) error {
	for {
		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			return nil
		}
		done := s.done
		s.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// View returns the view of the current subject at the current time.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Err returns the first read failure of the latest pass.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readErr
}

// Tick republishes the view so time-dependent state (status, remaining time) follows the clock.
func (s *Session) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.subject == "" {
		return
	}
	s.publishLocked()
}

// Select picks (or unpicks) a candidate of the current subject.
func (s *Session) Select(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.reconcileLocked() {
		return ErrNotEligible
	}
	if index < 0 || index >= len(s.cands.list) {
		return ErrNoSuchCandidate
	}
	if err := s.ballot.Select(index); err != nil {
		return err
	}
	s.publishLocked()
	return nil
}

// Submit casts the selected vote and refetches the subject once the ledger accepted it.
// The selection is claimed together with the subject, so a later Watch cannot redirect it.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	subject, viewer := s.subject, s.viewer
	s.reconcileLocked()
	index, epoch, err := s.ballot.claim(viewer)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.publishLocked()
	s.mu.Unlock()

	err = s.ballot.settle(epoch, index, s.o.writer.CastVote(ctx, subject, uint64(index), viewer))

	s.mu.Lock()
	if s.subject == subject && !s.closed {
		s.publishLocked()
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.o.VotingChanged(ctx, ChangeVoteCast, subject)
	return nil
}

// Close stops observing. The session cannot be reused.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stopLocked()
}

func (s *Session) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	s.rerun = false
	if s.running {
		s.running = false
		close(s.done)
	}
}

func (s *Session) startLocked() {
	s.stopLocked()
	ctx, cancel := context.WithCancel(s.o.ctx)
	s.cancel = cancel
	s.running = true
	s.done = make(chan struct{})
	s.readErr = nil
	go s.run(ctx, s.gen, s.subject, s.viewer)
}

func (s *Session) run(ctx context.Context, gen uint64, subject string, viewer domain.Identity) {
	defer s.settle(gen)

	r := s.o.reader
	group := s.o.fields.NewGroupContext(ctx)

	group.Submit(
		func() {
			v, err := r.Title(ctx, subject)
			s.apply(gen, "title", err, func(sn *domain.Snapshot) { sn.Title = outcome(v, err) })
		},
		func() {
			v, err := r.StartTime(ctx, subject)
			s.apply(gen, "startTime", err, func(sn *domain.Snapshot) { sn.StartTime = outcome(v, err) })
		},
		func() {
			v, err := r.EndTime(ctx, subject)
			s.apply(gen, "endTime", err, func(sn *domain.Snapshot) { sn.EndTime = outcome(v, err) })
		},
		func() {
			v, err := r.Finalized(ctx, subject)
			s.apply(gen, "finalized", err, func(sn *domain.Snapshot) { sn.Finalized = outcome(v, err) })
		},
		func() {
			v, err := r.Creator(ctx, subject)
			s.apply(gen, "creator", err, func(sn *domain.Snapshot) { sn.Creator = outcome(v, err) })
		},
		func() {
			n, err := r.CandidatesCount(ctx, subject)
			if !s.apply(gen, "candidatesCount", err, func(sn *domain.Snapshot) { sn.CandidatesCount = outcome(n, err) }) {
				if err != nil {
					s.applyCandidates(gen, nil, err)
				}
				return
			}
			list, err := s.o.aggregator.Aggregate(ctx, subject, n)
			s.applyCandidates(gen, list, err)
		},
	)

	if viewer.IsZero() {
		s.apply(gen, "hasVoted", nil, func(sn *domain.Snapshot) { sn.HasVoted = domain.Known(false) })
	} else {
		group.Submit(func() {
			v, err := r.HasVoted(ctx, subject, viewer)
			s.apply(gen, "hasVoted", err, func(sn *domain.Snapshot) { sn.HasVoted = outcome(v, err) })
		})
	}

	_ = group.Wait()
}

// outcome turns a read result into a field. A failed read leaves the field unresolved.
func outcome[T any](v T, err error) domain.Field[T] {
	if err != nil {
		return domain.Field[T]{}
	}
	return domain.Known(v)
}

// apply publishes one read result if its pass is still current. It reports whether the read succeeded.
func (s *Session) apply(gen uint64, field string, err error, mutate func(*domain.Snapshot)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	if err != nil {
		if s.readErr == nil {
			s.readErr = err
		}
		s.o.logger.Warn("ledger read failed",
			zap.String("session", s.key),
			zap.String("voting", s.subject),
			zap.String("field", field),
			zap.Error(err))
	}
	mutate(&s.snap)
	s.publishLocked()
	return err == nil
}

// applyCandidates replaces the candidate list wholesale. A failed pass publishes no list at all.
func (s *Session) applyCandidates(gen uint64, list []domain.Candidate, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	if err != nil {
		if s.readErr == nil {
			s.readErr = err
		}
		s.cands = candidateState{err: err.Error()}
	} else {
		s.cands = candidateState{list: list}
	}
	s.publishLocked()
}

func (s *Session) settle(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	if s.rerun {
		s.rerun = false
		s.startLocked()
		return
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.running = false
	close(s.done)
}

func (s *Session) reconcileLocked() bool {
	if s.subject == "" {
		s.ballot.Reconcile(false)
		return false
	}
	eligible := domain.CanSelect(s.snap.Status(s.o.now()), s.viewer, s.snap.HasVoted)
	s.ballot.Reconcile(eligible)
	return eligible
}

func (s *Session) viewLocked() View {
	v := buildView(s.snap, s.cands, s.viewer, s.o.now(), s.o.loc)
	v.Revision = s.revision
	v.Selected, v.Submitting, v.SubmitError = s.ballot.State()
	return v
}

func (s *Session) publishLocked() {
	s.reconcileLocked()
	s.revision++
	if s.sink != nil {
		s.sink(s.viewLocked())
	}
}
