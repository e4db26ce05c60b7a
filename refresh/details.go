package refresh

import (
	"context"
	"fmt"
	"sync"

	"github.com/evotools/contestd/contest"
	"github.com/evotools/contestd/platform"
)

// fetchDetails runs one ending-time task and one contenders task per
// name, at most FetchConcurrency in flight at once. Each task acquires
// a permit before its network call and releases it on completion,
// success or failure. Failures are isolated per task: they are
// reported as EventError and never cancel siblings. The call returns
// only after every task has finished.
func (r *Refresher) fetchDetails(ctx context.Context, names []string, ch chan<- Event) {
	if len(names) == 0 {
		return
	}

	permits := make(chan struct{}, r.cfg.FetchConcurrency)
	var wg sync.WaitGroup
	for _, name := range names {
		name := name
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.runDetailTask(ctx, permits, ch, "ending time", name, r.fetchEndingTime)
		}()
		go func() {
			defer wg.Done()
			r.runDetailTask(ctx, permits, ch, "contenders", name, r.fetchContenders)
		}()
	}
	wg.Wait()
}

func (r *Refresher) runDetailTask(ctx context.Context, permits chan struct{}, ch chan<- Event,
	what, name string, fn func(context.Context, string) error) {
	select {
	case permits <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-permits }()

	if err := fn(ctx, name); err != nil {
		r.log.Error("detail fetch failed", "what", what, "name", name, "err", err)
		r.send(ctx, ch, Event{
			Kind:    EventError,
			Message: fmt.Sprintf("error querying %s for %s: %v", what, name, err),
			Err:     err,
		})
		return
	}
	r.send(ctx, ch, Event{Kind: EventRefresh})
}

func (r *Refresher) fetchEndingTime(ctx context.Context, name string) error {
	endTime, err := r.client.FetchEndingTime(ctx, r.coords.PollRef(name))
	if err != nil {
		return platform.Classify(err)
	}
	if err := r.store.SetEndingTime(name, endTime); err != nil {
		return platform.WrapError(platform.KindStoreIO, err, "updating ending time")
	}
	return nil
}

func (r *Refresher) fetchContenders(ctx context.Context, name string) error {
	result, err := r.client.FetchContenders(ctx, r.coords.PollRef(name))
	if err != nil {
		return platform.Classify(err)
	}
	contestants := make([]contest.Contestant, 0, len(result.Contenders))
	for _, c := range result.Contenders {
		contestants = append(contestants, contest.Contestant{
			IdentityID: c.IdentityID,
			Name:       c.Name,
			Votes:      c.Votes,
		})
	}
	if err := r.store.UpdateContenders(name, result.LockedVotes, result.AbstainVotes, contestants, result.Winner); err != nil {
		return platform.WrapError(platform.KindStoreIO, err, "updating contenders")
	}
	return nil
}
