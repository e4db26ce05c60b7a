package refresh

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evotools/contestd/common/types"
	"github.com/evotools/contestd/config"
	"github.com/evotools/contestd/platform"
	"github.com/evotools/contestd/store"
)

const testContractHex = "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"

// fakePlatform serves a fixed sorted name list page by page and lets
// tests inject per-call failures.
type fakePlatform struct {
	mu sync.Mutex

	names       []string
	pageErrs    []error // consumed one per FetchContestedResources call
	pageCursors []string

	endingTimes    map[string]uint64
	endingErrs     map[string]error
	endingCalls    []string
	contenders     map[string]*platform.ContendersResult
	contenderErrs  map[string]error
	contenderCalls []string

	gate chan struct{} // when set, page fetches wait on it
}

func newFakePlatform(names []string) *fakePlatform {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return &fakePlatform{
		names:         sorted,
		endingTimes:   map[string]uint64{},
		endingErrs:    map[string]error{},
		contenders:    map[string]*platform.ContendersResult{},
		contenderErrs: map[string]error{},
	}
}

func (f *fakePlatform) FetchContestedResources(ctx context.Context, query platform.ResourceQuery) ([]string, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pageCursors = append(f.pageCursors, query.StartAt)
	if len(f.pageErrs) > 0 {
		err := f.pageErrs[0]
		f.pageErrs = f.pageErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	start := 0
	if query.StartAt != "" {
		start = sort.SearchStrings(f.names, query.StartAt)
		if start < len(f.names) && f.names[start] == query.StartAt {
			start++
		}
	}
	end := start + query.Limit
	if end > len(f.names) {
		end = len(f.names)
	}
	return append([]string(nil), f.names[start:end]...), nil
}

func (f *fakePlatform) FetchEndingTime(ctx context.Context, poll platform.VotePollRef) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := poll.IndexValues[len(poll.IndexValues)-1]
	f.endingCalls = append(f.endingCalls, name)
	if err := f.endingErrs[name]; err != nil {
		return 0, err
	}
	if ts, ok := f.endingTimes[name]; ok {
		return ts, nil
	}
	return 5000, nil
}

func (f *fakePlatform) FetchContenders(ctx context.Context, poll platform.VotePollRef) (*platform.ContendersResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := poll.IndexValues[len(poll.IndexValues)-1]
	f.contenderCalls = append(f.contenderCalls, name)
	if err := f.contenderErrs[name]; err != nil {
		return nil, err
	}
	if result, ok := f.contenders[name]; ok {
		return result, nil
	}
	return &platform.ContendersResult{}, nil
}

func (f *fakePlatform) BroadcastVoteTransition(ctx context.Context, transition *platform.SignedTransition) (*platform.Confirmation, error) {
	return nil, fmt.Errorf("not supported by fake")
}

func (f *fakePlatform) pageCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.pageCursors...)
}

func newTestRefresher(t *testing.T, client platform.Client) (*Refresher, *store.Store) {
	t.Helper()
	st, err := store.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.Contest{
		ContractID:       testContractHex,
		DocumentType:     "domain",
		IndexName:        "parentNameAndLabel",
		PartitionValue:   "dash",
		PageSize:         100,
		MaxRetries:       3,
		FetchConcurrency: 4,
	}
	r, err := New(client, st, cfg)
	require.NoError(t, err)
	return r, st
}

func collectEvents(t *testing.T, r *Refresher) []Event {
	t.Helper()
	ch, err := r.Refresh(context.Background())
	require.NoError(t, err)
	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func terminalEvent(t *testing.T, events []Event) Event {
	t.Helper()
	require.NotEmpty(t, events)
	return events[len(events)-1]
}

func genNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("name-%03d", i)
	}
	return names
}

func TestRefreshPagination(t *testing.T) {
	client := newFakePlatform(genNames(237))
	r, st := newTestRefresher(t, client)

	events := collectEvents(t, r)
	assert.Equal(t, EventSuccess, terminalEvent(t, events).Kind)

	// ceil(237/100) pages, each starting from the previous page's
	// last value.
	assert.Equal(t, []string{"", "name-099", "name-199"}, client.pageCalls())

	stored, err := st.ListContestedNames()
	require.NoError(t, err)
	assert.Len(t, stored, 237)

	// No name reported new twice across pages.
	seen := map[string]bool{}
	for _, ev := range events {
		for _, name := range ev.NewNames {
			assert.False(t, seen[name], name)
			seen[name] = true
		}
	}
	assert.Len(t, seen, 237)
}

func TestRefreshExactPageBoundary(t *testing.T) {
	// Exactly one full page: the 100th name becomes the next cursor
	// and the empty second page ends the loop.
	client := newFakePlatform(genNames(100))
	r, _ := newTestRefresher(t, client)

	events := collectEvents(t, r)
	assert.Equal(t, EventSuccess, terminalEvent(t, events).Kind)
	assert.Equal(t, []string{"", "name-099"}, client.pageCalls())
}

func TestRefreshShortPageEndsRun(t *testing.T) {
	client := newFakePlatform(genNames(37))
	r, st := newTestRefresher(t, client)

	events := collectEvents(t, r)
	assert.Equal(t, EventSuccess, terminalEvent(t, events).Kind)
	assert.Equal(t, []string{""}, client.pageCalls())

	stored, err := st.ListContestedNames()
	require.NoError(t, err)
	assert.Len(t, stored, 37)
}

func TestRefreshIdempotent(t *testing.T) {
	client := newFakePlatform(genNames(37))
	r, _ := newTestRefresher(t, client)

	collectEvents(t, r)
	detailCallsAfterFirst := len(client.endingCalls)
	assert.Equal(t, 37, detailCallsAfterFirst)

	events := collectEvents(t, r)
	assert.Equal(t, EventSuccess, terminalEvent(t, events).Kind)

	// Second run discovers nothing new and fetches no details.
	for _, ev := range events {
		assert.Empty(t, ev.NewNames)
	}
	assert.Equal(t, detailCallsAfterFirst, len(client.endingCalls))
}

func TestRefreshRetriesTransientErrors(t *testing.T) {
	client := newFakePlatform(genNames(5))
	client.pageErrs = []error{
		fmt.Errorf("try another server"),
		fmt.Errorf("try another server"),
		fmt.Errorf("contract not found when querying from value with contract info"),
	}
	r, st := newTestRefresher(t, client)

	events := collectEvents(t, r)
	assert.Equal(t, EventSuccess, terminalEvent(t, events).Kind)

	// Three transient failures then success, all against the same
	// cursor.
	assert.Equal(t, []string{"", "", "", ""}, client.pageCalls())

	stored, err := st.ListContestedNames()
	require.NoError(t, err)
	assert.Len(t, stored, 5)
}

func TestRefreshRetryCapEscalates(t *testing.T) {
	client := newFakePlatform(genNames(5))
	for i := 0; i < 4; i++ {
		client.pageErrs = append(client.pageErrs, fmt.Errorf("try another server"))
	}
	r, st := newTestRefresher(t, client)

	events := collectEvents(t, r)
	terminal := terminalEvent(t, events)
	assert.Equal(t, EventError, terminal.Kind)
	assert.Equal(t, platform.KindTransientNetwork, platform.KindOf(terminal.Err))
	assert.Len(t, client.pageCalls(), 4)

	stored, err := st.ListContestedNames()
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestRefreshFatalErrorFailsImmediately(t *testing.T) {
	client := newFakePlatform(genNames(5))
	client.pageErrs = []error{fmt.Errorf("no contested index on document type")}
	r, _ := newTestRefresher(t, client)

	events := collectEvents(t, r)
	terminal := terminalEvent(t, events)
	assert.Equal(t, EventError, terminal.Kind)
	assert.Equal(t, platform.KindFatalProtocol, platform.KindOf(terminal.Err))
	assert.Len(t, client.pageCalls(), 1)
}

func TestRefreshProofFailureAudited(t *testing.T) {
	client := newFakePlatform(genNames(5))
	client.pageErrs = []error{&platform.ProofError{
		RequestType: "getContestedResources",
		Height:      7,
		ProofBytes:  []byte{0xde, 0xad},
		Cause:       fmt.Errorf("root hash mismatch"),
	}}
	r, st := newTestRefresher(t, client)

	events := collectEvents(t, r)
	terminal := terminalEvent(t, events)
	assert.Equal(t, EventError, terminal.Kind)
	assert.Equal(t, platform.KindProofVerification, platform.KindOf(terminal.Err))

	count, err := st.ProofAuditCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDetailFailuresAreIsolated(t *testing.T) {
	client := newFakePlatform([]string{"alice", "bob"})
	client.endingTimes["alice"] = 1111
	client.endingTimes["bob"] = 2222
	client.contenderErrs["bob"] = fmt.Errorf("boom")
	client.contenders["alice"] = &platform.ContendersResult{
		Contenders: []platform.Contender{
			{IdentityID: types.Identifier{1}, Name: "alice", Votes: 3},
		},
		LockedVotes:  1,
		AbstainVotes: 2,
	}
	r, st := newTestRefresher(t, client)

	events := collectEvents(t, r)
	// A per-name failure does not fail the run.
	assert.Equal(t, EventSuccess, terminalEvent(t, events).Kind)

	var perNameErrors int
	for _, ev := range events {
		if ev.Kind == EventError {
			perNameErrors++
			assert.Contains(t, ev.Message, "bob")
		}
	}
	assert.Equal(t, 1, perNameErrors)

	alice, err := st.GetContestedName("alice")
	require.NoError(t, err)
	require.NotNil(t, alice.EndTime)
	assert.Equal(t, uint64(1111), *alice.EndTime)
	assert.Len(t, alice.Contestants, 1)

	bob, err := st.GetContestedName("bob")
	require.NoError(t, err)
	require.NotNil(t, bob.EndTime)
	assert.Empty(t, bob.Contestants)
}

func TestRefreshSingleFlight(t *testing.T) {
	client := newFakePlatform(genNames(5))
	client.gate = make(chan struct{})
	r, _ := newTestRefresher(t, client)

	ch, err := r.Refresh(context.Background())
	require.NoError(t, err)

	_, err = r.Refresh(context.Background())
	assert.Equal(t, ErrAlreadyRunning, err)

	close(client.gate)
	for range ch {
	}

	// Finished runs release the guard.
	ch, err = r.Refresh(context.Background())
	require.NoError(t, err)
	for range ch {
	}
}
