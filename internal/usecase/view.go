package usecase

import (
	"time"

	"github.com/Xausdorf/votechain/internal/domain"
)

// View - everything derived for one subject at one instant. Rebuilt on every publication, never stored.
type View struct {
	Address  string `json:"address"`
	Revision uint64 `json:"revision"`

	Title           domain.Field[string]          `json:"title"`
	StartTime       domain.Field[uint64]          `json:"startTime"`
	EndTime         domain.Field[uint64]          `json:"endTime"`
	Finalized       domain.Field[bool]            `json:"finalized"`
	Creator         domain.Field[domain.Identity] `json:"creator"`
	HasVoted        domain.Field[bool]            `json:"hasVoted"`
	CandidatesCount domain.Field[uint64]          `json:"candidatesCount"`

	Status     domain.Status `json:"status"`
	StartLabel string        `json:"startLabel"`
	EndLabel   string        `json:"endLabel"`
	Remaining  string        `json:"remaining,omitempty"`
	IsCreator  bool          `json:"isCreator"`

	Loading         bool         `json:"loading"`
	CandidatesError string       `json:"candidatesError,omitempty"`
	Tally           domain.Tally `json:"tally"`

	CanSelect   bool   `json:"canSelect"`
	Selected    *int   `json:"selected"`
	Submitting  bool   `json:"submitting"`
	SubmitError string `json:"submitError,omitempty"`
}

type candidateState struct {
	loading bool
	list    []domain.Candidate
	err     string
}

func buildView(snap domain.Snapshot, cands candidateState, viewer domain.Identity, now time.Time, loc *time.Location) View {
	status := snap.Status(now)
	v := View{
		Address:         snap.Address,
		Title:           snap.Title,
		StartTime:       snap.StartTime,
		EndTime:         snap.EndTime,
		Finalized:       snap.Finalized,
		Creator:         snap.Creator,
		HasVoted:        snap.HasVoted,
		CandidatesCount: snap.CandidatesCount,
		Status:          status,
		StartLabel:      domain.FormatTime(snap.StartTime.Or(0), loc),
		EndLabel:        domain.FormatTime(snap.EndTime.Or(0), loc),
		IsCreator:       snap.IsCreatedBy(viewer),
		Loading:         cands.loading,
		CandidatesError: cands.err,
		Tally:           domain.NewTally(cands.list, status),
		CanSelect:       domain.CanSelect(status, viewer, snap.HasVoted),
	}
	if status == domain.StatusActive {
		if d, ok := domain.TimeRemaining(now, snap.EndTime.Or(0)); ok {
			v.Remaining = domain.FormatRemaining(d)
		}
	}
	return v
}
