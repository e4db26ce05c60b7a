package platform

import (
	"context"

	"github.com/evotools/contestd/common/types"
)

// Client is the opaque platform dependency. Every call may block for an
// unbounded duration; timeouts and cancellation live behind this
// interface, not above it.
type Client interface {
	// FetchContestedResources pages through the values of a contested
	// index. Values come back in the order requested; an empty result
	// means the cursor is past the last contest.
	FetchContestedResources(ctx context.Context, query ResourceQuery) ([]string, error)

	// FetchEndingTime returns the millisecond timestamp at which the
	// given vote poll closes.
	FetchEndingTime(ctx context.Context, poll VotePollRef) (uint64, error)

	// FetchContenders returns the current tallies of a vote poll.
	FetchContenders(ctx context.Context, poll VotePollRef) (*ContendersResult, error)

	// BroadcastVoteTransition submits a signed vote transition and
	// blocks until the platform confirms it or rejects it.
	BroadcastVoteTransition(ctx context.Context, transition *SignedTransition) (*Confirmation, error)
}

// ContestCoordinates locates the contested document index all queries
// and votes target.
type ContestCoordinates struct {
	ContractID     types.Identifier `json:"contractId"`
	DocumentType   string           `json:"documentType"`
	IndexName      string           `json:"indexName"`
	PartitionValue string           `json:"partitionValue"`
}

// PollRef builds the vote-poll reference for one contested name under
// these coordinates.
func (c ContestCoordinates) PollRef(name string) VotePollRef {
	return VotePollRef{
		ContractID:   c.ContractID,
		DocumentType: c.DocumentType,
		IndexName:    c.IndexName,
		IndexValues:  []string{c.PartitionValue, name},
	}
}

type ResourceQuery struct {
	ContractID        types.Identifier
	DocumentType      string
	IndexName         string
	StartIndexValues  []string
	// StartAt is the paging cursor: the last value of the previous
	// page, exclusive. Empty means start from the beginning.
	StartAt   string
	Limit     int
	Ascending bool
}

type VotePollRef struct {
	ContractID   types.Identifier
	DocumentType string
	IndexName    string
	IndexValues  []string
}

type Contender struct {
	IdentityID types.Identifier
	Name       string
	Votes      uint64
}

type ContendersResult struct {
	Contenders   []Contender
	LockedVotes  uint64
	AbstainVotes uint64
	// Winner is set once the poll has been decided.
	Winner *types.Identifier
}

type SignedTransition struct {
	VoterID   types.Identifier
	PollID    types.Identifier
	Payload   []byte
	PublicKey []byte
	Signature []byte
}

type Confirmation struct {
	BlockHeight uint64
	TimeMS      uint64
}
