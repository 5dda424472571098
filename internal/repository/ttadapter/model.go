package ttadapter

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/Xausdorf/votechain/internal/domain"
)

type VotingModel struct {
	ID              string
	Title           string
	StartTime       uint64
	EndTime         uint64
	Finalized       bool
	Creator         string
	CreatorKey      string
	CandidatesCount uint64
	Created         int64
}

type CandidateModel struct {
	VotingID  string
	Index     uint64
	Name      string
	VoteCount uint64
}

type BallotModel struct {
	VotingID  string
	VoterKey  string
	Candidate uint64
	CastAt    int64
}

const (
	votingModelFields    = 9
	candidateModelFields = 4
	ballotModelFields    = 4
)

// Field numbers used by update operations.
const (
	votingFinalizedField = 4
	candidateVotesField  = 3
)

func NewVotingModel(id string, payload domain.VotingPayload, creator domain.Identity, created int64) *VotingModel {
	return &VotingModel{
		ID:              id,
		Title:           payload.Title,
		StartTime:       payload.StartTime,
		EndTime:         payload.EndTime,
		Creator:         string(creator),
		CreatorKey:      creator.Key(),
		CandidatesCount: uint64(len(payload.CandidateNames)),
		Created:         created,
	}
}

func (v *VotingModel) ToVoting() domain.Voting {
	return domain.Voting{
		Address:         v.ID,
		Title:           v.Title,
		StartTime:       v.StartTime,
		EndTime:         v.EndTime,
		Finalized:       v.Finalized,
		Creator:         domain.Identity(v.Creator),
		CandidatesCount: v.CandidatesCount,
	}
}

func (v *VotingModel) EncodeMsgpack(e *msgpack.Encoder) error {
	if err := e.EncodeArrayLen(votingModelFields); err != nil {
		return err
	}
	if err := e.EncodeString(v.ID); err != nil {
		return err
	}
	if err := e.EncodeString(v.Title); err != nil {
		return err
	}
	if err := e.EncodeUint(v.StartTime); err != nil {
		return err
	}
	if err := e.EncodeUint(v.EndTime); err != nil {
		return err
	}
	if err := e.EncodeBool(v.Finalized); err != nil {
		return err
	}
	if err := e.EncodeString(v.Creator); err != nil {
		return err
	}
	if err := e.EncodeString(v.CreatorKey); err != nil {
		return err
	}
	if err := e.EncodeUint(v.CandidatesCount); err != nil {
		return err
	}
	if err := e.EncodeInt(v.Created); err != nil {
		return err
	}
	return nil
}

func (v *VotingModel) DecodeMsgpack(d *msgpack.Decoder) error {
	var err error
	var l int
	if l, err = d.DecodeArrayLen(); err != nil {
		return err
	}
	if l != votingModelFields {
		return fmt.Errorf("array len doesn't match: %d", l)
	}
	if v.ID, err = d.DecodeString(); err != nil {
		return err
	}
	if v.Title, err = d.DecodeString(); err != nil {
		return err
	}
	if v.StartTime, err = d.DecodeUint64(); err != nil {
		return err
	}
	if v.EndTime, err = d.DecodeUint64(); err != nil {
		return err
	}
	if v.Finalized, err = d.DecodeBool(); err != nil {
		return err
	}
	if v.Creator, err = d.DecodeString(); err != nil {
		return err
	}
	if v.CreatorKey, err = d.DecodeString(); err != nil {
		return err
	}
	if v.CandidatesCount, err = d.DecodeUint64(); err != nil {
		return err
	}
	if v.Created, err = d.DecodeInt64(); err != nil {
		return err
	}
	return nil
}

func NewCandidateModels(votingID string, names []string) []*CandidateModel {
	out := make([]*CandidateModel, len(names))
	for i, name := range names {
		out[i] = &CandidateModel{VotingID: votingID, Index: uint64(i), Name: name}
	}
	return out
}

func (c *CandidateModel) ToCandidate() domain.Candidate {
	return domain.Candidate{
		Index:     int(c.Index),
		Name:      c.Name,
		VoteCount: c.VoteCount,
	}
}

func (c *CandidateModel) EncodeMsgpack(e *msgpack.Encoder) error {
	if err := e.EncodeArrayLen(candidateModelFields); err != nil {
		return err
	}
	if err := e.EncodeString(c.VotingID); err != nil {
		return err
	}
	if err := e.EncodeUint(c.Index); err != nil {
		return err
	}
	if err := e.EncodeString(c.Name); err != nil {
		return err
	}
	if err := e.EncodeUint(c.VoteCount); err != nil {
		return err
	}
	return nil
}

func (c *CandidateModel) DecodeMsgpack(d *msgpack.Decoder) error {
	var err error
	var l int
	if l, err = d.DecodeArrayLen(); err != nil {
		return err
	}
	if l != candidateModelFields {
		return fmt.Errorf("array len doesn't match: %d", l)
	}
	if c.VotingID, err = d.DecodeString(); err != nil {
		return err
	}
	if c.Index, err = d.DecodeUint64(); err != nil {
		return err
	}
	if c.Name, err = d.DecodeString(); err != nil {
		return err
	}
	if c.VoteCount, err = d.DecodeUint64(); err != nil {
		return err
	}
	return nil
}

func NewBallotModel(votingID string, voter domain.Identity, candidate uint64, castAt int64) *BallotModel {
	return &BallotModel{
		VotingID:  votingID,
		VoterKey:  voter.Key(),
		Candidate: candidate,
		CastAt:    castAt,
	}
}

func (b *BallotModel) EncodeMsgpack(e *msgpack.Encoder) error {
	if err := e.EncodeArrayLen(ballotModelFields); err != nil {
		return err
	}
	if err := e.EncodeString(b.VotingID); err != nil {
		return err
	}
	if err := e.EncodeString(b.VoterKey); err != nil {
		return err
	}
	if err := e.EncodeUint(b.Candidate); err != nil {
		return err
	}
	if err := e.EncodeInt(b.CastAt); err != nil {
		return err
	}
	return nil
}

func (b *BallotModel) DecodeMsgpack(d *msgpack.Decoder) error {
	var err error
	var l int
	if l, err = d.DecodeArrayLen(); err != nil {
		return err
	}
	if l != ballotModelFields {
		return fmt.Errorf("array len doesn't match: %d", l)
	}
	if b.VotingID, err = d.DecodeString(); err != nil {
		return err
	}
	if b.VoterKey, err = d.DecodeString(); err != nil {
		return err
	}
	if b.Candidate, err = d.DecodeUint64(); err != nil {
		return err
	}
	if b.CastAt, err = d.DecodeInt64(); err != nil {
		return err
	}
	return nil
}
