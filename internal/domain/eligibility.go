package domain

// CanSelect reports whether viewer may pick a candidate and cast a vote.
// An unresolved hasVoted is not enough: eligibility is granted only on a confirmed false.
func CanSelect(status Status, viewer Identity, hasVoted Field[bool]) bool {
	voted, ok := hasVoted.Get()
	return status == StatusActive && !viewer.IsZero() && ok && !voted
}
