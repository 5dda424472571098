package usecase

import (
	"strings"

	"github.com/Xausdorf/votechain/internal/domain"
)

// MinCandidates - smallest number of named candidates a voting may have.
const MinCandidates = 2

// ValidationError - rejected draft, the message is meant for the user.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

var (
	ErrTooFewCandidates = &ValidationError{msg: "At least 2 candidates are required"}
	ErrTitleRequired    = &ValidationError{msg: "Title is required"}
	ErrTimesRequired    = &ValidationError{msg: "Start and end times are required"}
	ErrEndBeforeStart   = &ValidationError{msg: "End time must be after start time"}
	ErrTimeBeforeEpoch  = &ValidationError{msg: "Start and end times must not be before 1970"}
)

// ValidateDraft checks a proposed voting. Rules are evaluated in order and the first failure wins.
func ValidateDraft(draft domain.VotingDraft) (domain.VotingPayload, error) {
	names := make([]string, 0, len(draft.CandidateNames))
	for _, name := range draft.CandidateNames {
		if strings.TrimSpace(name) != "" {
			names = append(names, name)
		}
	}
	if len(names) < MinCandidates {
		return domain.VotingPayload{}, ErrTooFewCandidates
	}

	title := strings.TrimSpace(draft.Title)
	if title == "" {
		return domain.VotingPayload{}, ErrTitleRequired
	}

	if draft.Start.IsZero() || draft.End.IsZero() {
		return domain.VotingPayload{}, ErrTimesRequired
	}
	// ledger timestamps are unsigned epoch seconds
	if draft.Start.Unix() < 0 || draft.End.Unix() < 0 {
		return domain.VotingPayload{}, ErrTimeBeforeEpoch
	}

	start, end := draft.Start.Unix(), draft.End.Unix()
	if start >= end {
		return domain.VotingPayload{}, ErrEndBeforeStart
	}

	return domain.VotingPayload{
		Title:          title,
		CandidateNames: names,
		StartTime:      uint64(start),
		EndTime:        uint64(end),
	}, nil
}
