package caster

import (
	"context"

	"github.com/inconshreveable/log15"
	"golang.org/x/crypto/ed25519"

	"github.com/evotools/contestd/common/types"
	"github.com/evotools/contestd/config"
	"github.com/evotools/contestd/contest"
	"github.com/evotools/contestd/platform"
	"github.com/evotools/contestd/scheduler"
	"github.com/evotools/contestd/wallet"
)

var cLog = log15.New("module", "caster")

// KeyProvider resolves the delegated voting key of an identity; nil
// key material (without error) means the identity cannot vote.
type KeyProvider interface {
	ResolveVotingKey(id types.Identifier) (*wallet.KeyMaterial, error)
}

type EventKind int

const (
	// EventCastStarting fires before any voter is processed so
	// observers can show an in-progress indicator immediately.
	EventCastStarting EventKind = iota
	EventCastDone
)

type Event struct {
	Kind          EventKind
	ContestedName string
	Choice        contest.VoteChoice
	Voters        int
}

// Outcome is the per-voter result of one cast attempt. Ephemeral,
// never persisted.
type Outcome struct {
	ContestedName string
	Choice        contest.VoteChoice
	VoterID       types.Identifier
	Err           error
}

func (o Outcome) Succeeded() bool { return o.Err == nil }

// Caster builds, signs and broadcasts vote transitions.
type Caster struct {
	client platform.Client
	keys   KeyProvider
	sched  *scheduler.Scheduler
	coords platform.ContestCoordinates
	notify chan<- Event
	log    log15.Logger
}

// New wires a caster. notify may be nil; when set, event sends block
// until consumed.
func New(client platform.Client, keys KeyProvider, sched *scheduler.Scheduler, cfg config.Contest, notify chan<- Event) (*Caster, error) {
	coords, err := cfg.Coordinates()
	if err != nil {
		return nil, err
	}
	return &Caster{
		client: client,
		keys:   keys,
		sched:  sched,
		coords: coords,
		notify: notify,
		log:    cLog,
	}, nil
}

// CastVote casts one choice on one contested name for each voter and
// returns one outcome per voter, in input order. Voters fail
// independently: a missing key or rejected broadcast for one voter
// never aborts the rest of the batch. Broadcasts block until the
// platform confirms or errors; there is no timeout at this layer.
func (c *Caster) CastVote(ctx context.Context, name string, choice contest.VoteChoice, voters []types.Identifier) []Outcome {
	c.sendEvent(ctx, Event{Kind: EventCastStarting, ContestedName: name, Choice: choice, Voters: len(voters)})

	pollID := PollAddress(c.coords, name)
	outcomes := make([]Outcome, 0, len(voters))
	for _, voter := range voters {
		err := c.castOne(ctx, pollID, voter, choice)
		if err != nil {
			c.log.Error("vote cast failed", "name", name, "voter", voter.Hex(), "err", err)
		} else {
			c.log.Info("vote cast", "name", name, "voter", voter.Hex(), "choice", choice.String())
		}
		outcomes = append(outcomes, Outcome{
			ContestedName: name,
			Choice:        choice,
			VoterID:       voter,
			Err:           err,
		})
	}

	c.sendEvent(ctx, Event{Kind: EventCastDone, ContestedName: name, Choice: choice, Voters: len(voters)})
	return outcomes
}

// CastScheduledVote is CastVote restricted to the vote's single
// (name, choice, voter) triple. Success policy is strict: the entry is
// marked executed only when the broadcast confirmed; on any failure it
// stays pending for a later attempt.
func (c *Caster) CastScheduledVote(ctx context.Context, vote contest.ScheduledVote) error {
	outcomes := c.CastVote(ctx, vote.ContestedName, vote.Choice, []types.Identifier{vote.VoterID})
	if err := outcomes[0].Err; err != nil {
		return err
	}
	return c.sched.MarkExecuted(vote.VoterID, vote.ContestedName)
}

func (c *Caster) castOne(ctx context.Context, pollID types.Identifier, voter types.Identifier, choice contest.VoteChoice) error {
	km, err := c.keys.ResolveVotingKey(voter)
	if err != nil {
		return platform.WrapError(platform.KindStoreIO, err, "resolving voting key")
	}
	if km == nil {
		return platform.Errorf(platform.KindMissingKey, "no delegated voting key for identity %s", voter.Hex())
	}

	payload := encodeVotePayload(pollID, voter, choice)
	transition := &platform.SignedTransition{
		VoterID:   voter,
		PollID:    pollID,
		Payload:   payload,
		PublicKey: km.PublicKey,
		Signature: ed25519.Sign(km.PrivateKey, payload),
	}

	if _, err := c.client.BroadcastVoteTransition(ctx, transition); err != nil {
		return platform.Classify(err)
	}
	return nil
}

func (c *Caster) sendEvent(ctx context.Context, ev Event) {
	if c.notify == nil {
		return
	}
	select {
	case c.notify <- ev:
	case <-ctx.Done():
	}
}
