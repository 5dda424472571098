package domain

import "time"

// Status - lifecycle stage of a voting. Derived, never stored.
type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusActive    Status = "active"
	StatusEnded     Status = "ended"
	StatusFinalized Status = "finalized"
)

// DeriveStatus computes the lifecycle status from the raw ledger fields.
// Unknown timestamps must be passed as 0, which derives as ended and never grants voting rights early.
func DeriveStatus(now time.Time, start, end uint64, finalized bool) Status {
	if finalized {
		return StatusFinalized
	}
	// A window that closes before it opens can only come from a misbehaving source.
	if start >= end {
		return StatusEnded
	}
	ts := now.Unix()
	if ts < 0 {
		ts = 0
	}
	t := uint64(ts)
	switch {
	case t < start:
		return StatusUpcoming
	case t > end:
		return StatusEnded
	default:
		return StatusActive
	}
}

// Status derives the status of the snapshot, reading unresolved fields as zero.
func (s Snapshot) Status(now time.Time) Status {
	return DeriveStatus(now, s.StartTime.Or(0), s.EndTime.Or(0), s.Finalized.Or(false))
}

// Closed reports whether results are final enough to flag winners.
func (st Status) Closed() bool {
	return st == StatusEnded || st == StatusFinalized
}

func (st Status) Label() string {
	switch st {
	case StatusUpcoming:
		return "Upcoming"
	case StatusActive:
		return "Active"
	case StatusEnded:
		return "Ended"
	case StatusFinalized:
		return "Finalized"
	}
	return string(st)
}
