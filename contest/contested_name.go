package contest

import (
	"github.com/evotools/contestd/common/types"
)

// ContestState classifies where a contested name is in its voting
// lifecycle.
type ContestState int

const (
	StateUnknown ContestState = iota
	StateJoinable
	StateOngoing
	StateLocked
	StateWonBy
)

func (s ContestState) String() string {
	switch s {
	case StateJoinable:
		return "Joinable"
	case StateOngoing:
		return "Ongoing"
	case StateLocked:
		return "Locked"
	case StateWonBy:
		return "WonBy"
	default:
		return "Unknown"
	}
}

type Contestant struct {
	IdentityID types.Identifier `json:"identityId"`
	Name       string           `json:"name"`
	Votes      uint64           `json:"votes"`
}

// ContestedName is the persisted record of one naming contest, keyed
// by the normalized name. Only the refresh pipeline writes it.
type ContestedName struct {
	Name string `json:"name"`
	// EndTime is the millisecond deadline of the contest. Immutable
	// once set.
	EndTime      *uint64          `json:"endTime,omitempty"`
	LastUpdated  uint64           `json:"lastUpdated"`
	LockedVotes  uint64           `json:"lockedVotes"`
	AbstainVotes uint64           `json:"abstainVotes"`
	Contestants  []Contestant     `json:"contestants,omitempty"`
	State        ContestState     `json:"state"`
	WonBy        types.Identifier `json:"wonBy,omitempty"`
}

// Ended reports whether the contest deadline is known and past.
func (c *ContestedName) Ended(nowMS uint64) bool {
	return c.EndTime != nil && *c.EndTime <= nowMS
}

// DeriveState recomputes State from the tallies and deadline. A winner
// always wins; a finished contest where the lock tally leads every
// contestant is Locked; tallies without a decision mean Ongoing; a
// contest with no contestants yet is Joinable.
func (c *ContestedName) DeriveState(nowMS uint64) ContestState {
	if !c.WonBy.IsZero() {
		return StateWonBy
	}
	if len(c.Contestants) == 0 && c.LockedVotes == 0 && c.AbstainVotes == 0 {
		if c.EndTime == nil {
			return StateUnknown
		}
		return StateJoinable
	}
	if c.Ended(nowMS) && c.LockedVotes > c.leadingContestantVotes() {
		return StateLocked
	}
	return StateOngoing
}

func (c *ContestedName) leadingContestantVotes() uint64 {
	var max uint64
	for _, contestant := range c.Contestants {
		if contestant.Votes > max {
			max = contestant.Votes
		}
	}
	return max
}
