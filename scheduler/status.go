package scheduler

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/evotools/contestd/common/types"
	"github.com/evotools/contestd/store"
)

// Status is the derived execution state of a scheduled vote. Only the
// executed flag is persisted; InProgress and Failed are transient
// in-memory markers set by the driving loop, so a restart falls back
// to NotStarted/Completed and a crash mid-cast never leaves a record
// stuck in progress.
type Status int

const (
	StatusNotStarted Status = iota
	StatusInProgress
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusInProgress:
		return "InProgress"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	default:
		return "NotStarted"
	}
}

// Marker lifetime. A marker that old means the driving loop died
// mid-cast; expiring it lets the vote be retried.
const markerTTL = time.Hour

type StatusTracker struct {
	store *store.Store
	marks *gocache.Cache
}

func NewStatusTracker(st *store.Store) *StatusTracker {
	return &StatusTracker{
		store: st,
		marks: gocache.New(markerTTL, 10*time.Minute),
	}
}

func markKey(voterID types.Identifier, name string) string {
	return voterID.Hex() + "|" + name
}

// MarkInProgress is called by the driving loop immediately before a
// cast attempt.
func (t *StatusTracker) MarkInProgress(voterID types.Identifier, name string) {
	t.marks.Set(markKey(voterID, name), StatusInProgress, gocache.DefaultExpiration)
}

// MarkFailed records a failed attempt. Failed is terminal but
// retryable: a later attempt moves the record back to InProgress.
func (t *StatusTracker) MarkFailed(voterID types.Identifier, name string) {
	t.marks.Set(markKey(voterID, name), StatusFailed, gocache.DefaultExpiration)
}

// Status derives the execution state. The persisted executed flag wins
// over any transient marker, so Completed is monotonic.
func (t *StatusTracker) Status(voterID types.Identifier, name string) (Status, error) {
	vote, err := t.store.GetScheduledVote(voterID, name)
	if err != nil {
		return StatusNotStarted, err
	}
	if vote == nil {
		t.marks.Delete(markKey(voterID, name))
		return StatusNotStarted, nil
	}
	if vote.Executed {
		return StatusCompleted, nil
	}
	if mark, ok := t.marks.Get(markKey(voterID, name)); ok {
		return mark.(Status), nil
	}
	return StatusNotStarted, nil
}
