package domain

import "time"

// VotingDraft - proposed voting as entered by the creator, not validated yet.
// Zero times mean the value was not provided.
type VotingDraft struct {
	Title          string
	CandidateNames []string
	Start          time.Time
	End            time.Time
}

// VotingPayload - normalized voting accepted by the validator and ready for the ledger.
type VotingPayload struct {
	Title          string
	CandidateNames []string
	StartTime      uint64
	EndTime        uint64
}
