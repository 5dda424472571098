package domain

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// Identity - externally verified account reference of the caller. Empty when unauthenticated.
type Identity string

// NoIdentity - identity of an unauthenticated caller.
const NoIdentity Identity = ""

func (i Identity) IsZero() bool {
	return strings.TrimSpace(string(i)) == ""
}

// Equal compares identities case-insensitively, addresses differ only in checksum casing.
func (i Identity) Equal(other Identity) bool {
	return !i.IsZero() && strings.EqualFold(string(i), string(other))
}

// Key - normalized form used for storage lookups.
func (i Identity) Key() string {
	return strings.ToLower(strings.TrimSpace(string(i)))
}

// Voting - structure for storing all fields of one deployed voting.
type Voting struct {
	Address   string
	Title     string
	StartTime uint64
	EndTime   uint64
	Finalized bool
	// Creator - identity of the account that deployed the voting.
	Creator         Identity
	CandidatesCount uint64
}

// Candidate - one selectable option of a voting, addressed by its position.
type Candidate struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	VoteCount uint64 `json:"voteCount"`
}

// Field - value read from the ledger that may not be known yet.
type Field[T any] struct {
	value    T
	resolved bool
}

func Known[T any](v T) Field[T] {
	return Field[T]{value: v, resolved: true}
}

func (f Field[T]) Get() (T, bool) {
	return f.value, f.resolved
}

func (f Field[T]) Resolved() bool {
	return f.resolved
}

// Or returns the value or def while the field is unresolved.
func (f Field[T]) Or(def T) T {
	if !f.resolved {
		return def
	}
	return f.value
}

func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.resolved {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}

// Snapshot - independently resolving fields of one voting as observed by one viewer.
type Snapshot struct {
	Address         string
	Title           Field[string]
	StartTime       Field[uint64]
	EndTime         Field[uint64]
	Finalized       Field[bool]
	CandidatesCount Field[uint64]
	HasVoted        Field[bool]
	Creator         Field[Identity]
}

// IsCreatedBy reports whether viewer deployed the voting. False while the creator is unknown.
func (s Snapshot) IsCreatedBy(viewer Identity) bool {
	creator, ok := s.Creator.Get()
	return ok && viewer.Equal(creator)
}

// ShortAddress renders an address as 0x1234…abcd.
func ShortAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "…" + address[len(address)-4:]
}

// NewAddress mints a fresh voting address.
func NewAddress() string {
	return "0x" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
