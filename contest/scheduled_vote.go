package contest

import (
	"github.com/evotools/contestd/common/types"
)

// ScheduledVote is a persisted instruction to cast a vote at a future
// time, keyed by (voter, contested name).
type ScheduledVote struct {
	VoterID       types.Identifier `json:"voterId"`
	ContestedName string           `json:"contestedName"`
	Choice        VoteChoice       `json:"choice"`
	// TargetTime is the millisecond timestamp at which the vote
	// becomes due. Must not exceed the contest's end time when that
	// is known locally.
	TargetTime uint64 `json:"targetTime"`
	// Executed is monotonic: once true it is never reset except by
	// deleting the record.
	Executed bool `json:"executed"`
}

// Due reports whether the vote should be cast now.
func (v *ScheduledVote) Due(nowMS uint64) bool {
	return !v.Executed && v.TargetTime <= nowMS
}
