package refresh

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/inconshreveable/log15"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/evotools/contestd/config"
	"github.com/evotools/contestd/platform"
	"github.com/evotools/contestd/store"
)

var rLog = log15.New("module", "refresh")

var ErrAlreadyRunning = errors.New("refresh already in progress")

// Refresher discovers which names are currently contested and keeps
// their tallies and deadlines current. Paging is strictly sequential;
// detail fetches fan out afterwards, bounded by a permit pool.
type Refresher struct {
	client platform.Client
	store  *store.Store
	coords platform.ContestCoordinates
	cfg    config.Contest

	running *atomic.Bool
	log     log15.Logger
}

func New(client platform.Client, st *store.Store, cfg config.Contest) (*Refresher, error) {
	coords, err := cfg.Coordinates()
	if err != nil {
		return nil, err
	}
	return &Refresher{
		client:  client,
		store:   st,
		coords:  coords,
		cfg:     cfg,
		running: atomic.NewBool(false),
		log:     rLog,
	}, nil
}

// Refresh starts one refresh run and returns its event stream. The
// channel closes after the terminal EventSuccess or EventError. Only
// one run may be in flight; a second call fails fast with
// ErrAlreadyRunning. Event sends block until consumed, so a slow
// consumer backpressures the run rather than losing events.
func (r *Refresher) Refresh(ctx context.Context) (<-chan Event, error) {
	if !r.running.CAS(false, true) {
		return nil, ErrAlreadyRunning
	}
	ch := make(chan Event)
	go func() {
		defer close(ch)
		defer r.running.Store(false)
		r.run(ctx, ch)
	}()
	return ch, nil
}

func (r *Refresher) run(ctx context.Context, ch chan<- Event) {
	newNames, err := r.pageAll(ctx, ch)
	if err != nil {
		r.log.Error("contested resource refresh failed", "err", err)
		r.send(ctx, ch, Event{
			Kind:    EventError,
			Message: fmt.Sprintf("contested resource query failed: %v", err),
			Err:     err,
		})
		return
	}

	r.fetchDetails(ctx, newNames, ch)

	if ctx.Err() != nil {
		r.send(ctx, ch, Event{
			Kind:    EventError,
			Message: "refresh canceled",
			Err:     ctx.Err(),
		})
		return
	}
	r.send(ctx, ch, Event{
		Kind:    EventSuccess,
		Message: fmt.Sprintf("successfully refreshed contested names, %d newly discovered", len(newNames)),
	})
}

// pageAll walks the contested index ascending, one page at a time,
// using the last value of each page as the next cursor. It returns the
// names not previously known to the store.
func (r *Refresher) pageAll(ctx context.Context, ch chan<- Event) ([]string, error) {
	var newNames []string
	cursor := ""
	for {
		query := platform.ResourceQuery{
			ContractID:       r.coords.ContractID,
			DocumentType:     r.coords.DocumentType,
			IndexName:        r.coords.IndexName,
			StartIndexValues: []string{r.coords.PartitionValue},
			StartAt:          cursor,
			Limit:            r.cfg.PageSize,
			Ascending:        true,
		}

		page, err := r.fetchPage(ctx, query)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		newly, err := r.store.UpsertContestedNames(page)
		if err != nil {
			return nil, platform.WrapError(platform.KindStoreIO, err, "inserting contested names")
		}
		newNames = append(newNames, newly...)

		if !r.send(ctx, ch, Event{Kind: EventRefresh, NewNames: newly}) {
			return nil, ctx.Err()
		}

		if len(page) < r.cfg.PageSize {
			break
		}
		cursor = page[len(page)-1]
	}
	return newNames, nil
}

// fetchPage issues one page query, retrying transient errors against
// the same cursor up to MaxRetries times. Fatal errors escalate
// immediately; proof-verification failures are audited first.
func (r *Refresher) fetchPage(ctx context.Context, query platform.ResourceQuery) ([]string, error) {
	retries := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := r.client.FetchContestedResources(ctx, query)
		if err == nil {
			return page, nil
		}

		perr := platform.Classify(err)
		if perr.Kind == platform.KindProofVerification {
			r.auditProofFailure(query, perr)
			return nil, perr
		}
		if !platform.IsTransient(perr) {
			return nil, perr
		}
		retries++
		if retries > r.cfg.MaxRetries {
			return nil, platform.WrapError(platform.KindTransientNetwork, perr,
				fmt.Sprintf("contested resource query failed after %d retries", r.cfg.MaxRetries))
		}
		r.log.Warn("transient error fetching contested resources, retrying",
			"cursor", query.StartAt, "retry", retries, "err", err)
	}
}

// auditProofFailure persists the raw proof material for offline
// analysis. Audit write failures are logged, not escalated; the query
// failure itself is what propagates.
func (r *Refresher) auditProofFailure(query platform.ResourceQuery, perr error) {
	var proofErr *platform.ProofError
	if !errors.As(perr, &proofErr) {
		return
	}
	requestBytes, err := json.Marshal(&query)
	if err != nil {
		r.log.Error("encoding query for proof audit", "err", err)
		return
	}
	record := store.ProofAuditRecord{
		RequestType:    proofErr.RequestType,
		RequestBytes:   requestBytes,
		PathQueryBytes: proofErr.PathQueryBytes,
		Height:         proofErr.Height,
		TimeMS:         proofErr.TimeMS,
		ProofBytes:     proofErr.ProofBytes,
		Error:          proofErr.Error(),
	}
	if err := r.store.AppendProofAuditRecord(record); err != nil {
		r.log.Error("appending proof audit record", "err", err)
	}
}

func (r *Refresher) send(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
