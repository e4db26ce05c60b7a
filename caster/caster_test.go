package caster

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ed25519"

	"github.com/evotools/contestd/common/types"
	"github.com/evotools/contestd/config"
	"github.com/evotools/contestd/contest"
	"github.com/evotools/contestd/platform"
	"github.com/evotools/contestd/scheduler"
	"github.com/evotools/contestd/store"
	"github.com/evotools/contestd/wallet"
)

const testContractHex = "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"

type fakeKeys struct {
	keys map[types.Identifier]*wallet.KeyMaterial
	err  error
}

func (f *fakeKeys) ResolveVotingKey(id types.Identifier) (*wallet.KeyMaterial, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.keys[id], nil
}

type fakeBroadcaster struct {
	mu         sync.Mutex
	broadcasts []*platform.SignedTransition
	errByVoter map[types.Identifier]error
}

func (f *fakeBroadcaster) FetchContestedResources(ctx context.Context, query platform.ResourceQuery) ([]string, error) {
	return nil, fmt.Errorf("not supported by fake")
}

func (f *fakeBroadcaster) FetchEndingTime(ctx context.Context, poll platform.VotePollRef) (uint64, error) {
	return 0, fmt.Errorf("not supported by fake")
}

func (f *fakeBroadcaster) FetchContenders(ctx context.Context, poll platform.VotePollRef) (*platform.ContendersResult, error) {
	return nil, fmt.Errorf("not supported by fake")
}

func (f *fakeBroadcaster) BroadcastVoteTransition(ctx context.Context, transition *platform.SignedTransition) (*platform.Confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errByVoter[transition.VoterID]; err != nil {
		return nil, err
	}
	f.broadcasts = append(f.broadcasts, transition)
	return &platform.Confirmation{BlockHeight: 1}, nil
}

func testKeyMaterial(t *testing.T) *wallet.KeyMaterial {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return &wallet.KeyMaterial{KeyID: 1, PublicKey: pub, PrivateKey: priv}
}

func testContestConfig() config.Contest {
	return config.Contest{
		ContractID:       testContractHex,
		DocumentType:     "domain",
		IndexName:        "parentNameAndLabel",
		PartitionValue:   "dash",
		PageSize:         100,
		MaxRetries:       3,
		FetchConcurrency: 24,
	}
}

func newTestCaster(t *testing.T, client platform.Client, keys KeyProvider, notify chan<- Event) (*Caster, *scheduler.Scheduler) {
	t.Helper()
	st, err := store.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	sched := scheduler.New(st)
	c, err := New(client, keys, sched, testContestConfig(), notify)
	require.NoError(t, err)
	return c, sched
}

func TestCastVoteVoterIndependence(t *testing.T) {
	voterA := types.Identifier{0xa}
	voterB := types.Identifier{0xb}

	client := &fakeBroadcaster{}
	keys := &fakeKeys{keys: map[types.Identifier]*wallet.KeyMaterial{
		voterB: testKeyMaterial(t),
	}}
	c, _ := newTestCaster(t, client, keys, nil)

	outcomes := c.CastVote(context.Background(), "alice", contest.AbstainChoice(), []types.Identifier{voterA, voterB})
	require.Len(t, outcomes, 2)

	// Input order is preserved; A's missing key does not affect B.
	assert.Equal(t, voterA, outcomes[0].VoterID)
	assert.False(t, outcomes[0].Succeeded())
	assert.Equal(t, platform.KindMissingKey, platform.KindOf(outcomes[0].Err))

	assert.Equal(t, voterB, outcomes[1].VoterID)
	assert.True(t, outcomes[1].Succeeded())

	require.Len(t, client.broadcasts, 1)
	assert.Equal(t, voterB, client.broadcasts[0].VoterID)
}

func TestCastVoteEmitsStartingFirst(t *testing.T) {
	voter := types.Identifier{1}
	client := &fakeBroadcaster{}
	keys := &fakeKeys{keys: map[types.Identifier]*wallet.KeyMaterial{voter: testKeyMaterial(t)}}

	notify := make(chan Event, 8)
	c, _ := newTestCaster(t, client, keys, notify)

	c.CastVote(context.Background(), "alice", contest.LockChoice(), []types.Identifier{voter})
	close(notify)

	var events []Event
	for ev := range notify {
		events = append(events, ev)
	}
	require.Len(t, events, 2)
	assert.Equal(t, EventCastStarting, events[0].Kind)
	assert.Equal(t, 1, events[0].Voters)
	assert.Equal(t, EventCastDone, events[1].Kind)
}

func TestCastVoteSignsPayload(t *testing.T) {
	voter := types.Identifier{1}
	km := testKeyMaterial(t)
	client := &fakeBroadcaster{}
	keys := &fakeKeys{keys: map[types.Identifier]*wallet.KeyMaterial{voter: km}}
	c, _ := newTestCaster(t, client, keys, nil)

	id := types.Identifier{9}
	outcomes := c.CastVote(context.Background(), "alice", contest.TowardsIdentity(id), []types.Identifier{voter})
	require.True(t, outcomes[0].Succeeded())

	require.Len(t, client.broadcasts, 1)
	tr := client.broadcasts[0]
	assert.True(t, ed25519.Verify(km.PublicKey, tr.Payload, tr.Signature))

	coords, err := testContestConfig().Coordinates()
	require.NoError(t, err)
	assert.Equal(t, PollAddress(coords, "alice"), tr.PollID)
}

func TestCastVoteBroadcastFailure(t *testing.T) {
	voter := types.Identifier{1}
	client := &fakeBroadcaster{errByVoter: map[types.Identifier]error{
		voter: fmt.Errorf("insufficient balance"),
	}}
	keys := &fakeKeys{keys: map[types.Identifier]*wallet.KeyMaterial{voter: testKeyMaterial(t)}}
	c, _ := newTestCaster(t, client, keys, nil)

	outcomes := c.CastVote(context.Background(), "alice", contest.LockChoice(), []types.Identifier{voter})
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Succeeded())
	assert.Contains(t, outcomes[0].Err.Error(), "insufficient balance")
}

func TestCastScheduledVoteMarksExecutedOnlyOnSuccess(t *testing.T) {
	voter := types.Identifier{1}
	client := &fakeBroadcaster{errByVoter: map[types.Identifier]error{}}
	keys := &fakeKeys{keys: map[types.Identifier]*wallet.KeyMaterial{voter: testKeyMaterial(t)}}
	c, sched := newTestCaster(t, client, keys, nil)

	vote := contest.ScheduledVote{
		VoterID:       voter,
		ContestedName: "alice",
		Choice:        contest.AbstainChoice(),
		TargetTime:    1_000,
	}
	require.NoError(t, sched.Schedule([]contest.ScheduledVote{vote}))

	// Failed broadcast: strict policy leaves the entry pending.
	client.errByVoter[voter] = fmt.Errorf("rejected")
	require.Error(t, c.CastScheduledVote(context.Background(), vote))

	votes, err := sched.List()
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.False(t, votes[0].Executed)

	// Confirmed broadcast marks it executed.
	delete(client.errByVoter, voter)
	require.NoError(t, c.CastScheduledVote(context.Background(), vote))

	votes, err = sched.List()
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.True(t, votes[0].Executed)
}

func TestCastScheduledVoteMissingKeyStaysPending(t *testing.T) {
	voter := types.Identifier{1}
	client := &fakeBroadcaster{}
	keys := &fakeKeys{keys: map[types.Identifier]*wallet.KeyMaterial{}}
	c, sched := newTestCaster(t, client, keys, nil)

	vote := contest.ScheduledVote{
		VoterID:       voter,
		ContestedName: "alice",
		Choice:        contest.LockChoice(),
		TargetTime:    1_000,
	}
	require.NoError(t, sched.Schedule([]contest.ScheduledVote{vote}))

	err := c.CastScheduledVote(context.Background(), vote)
	require.Error(t, err)
	assert.Equal(t, platform.KindMissingKey, platform.KindOf(err))

	votes, listErr := sched.List()
	require.NoError(t, listErr)
	require.Len(t, votes, 1)
	assert.False(t, votes[0].Executed)
}

func TestPollAddressDeterministic(t *testing.T) {
	coords, err := testContestConfig().Coordinates()
	require.NoError(t, err)

	assert.Equal(t, PollAddress(coords, "alice"), PollAddress(coords, "alice"))
	assert.NotEqual(t, PollAddress(coords, "alice"), PollAddress(coords, "bob"))

	other := coords
	other.PartitionValue = "io"
	assert.NotEqual(t, PollAddress(coords, "alice"), PollAddress(other, "alice"))
}
