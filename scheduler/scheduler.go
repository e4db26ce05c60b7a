package scheduler

import (
	"github.com/inconshreveable/log15"

	"github.com/evotools/contestd/common/types"
	"github.com/evotools/contestd/contest"
	"github.com/evotools/contestd/platform"
	"github.com/evotools/contestd/store"
)

var schedLog = log15.New("module", "scheduler")

// Scheduler validates and persists future-vote instructions.
type Scheduler struct {
	store *store.Store
	log   log15.Logger
}

func New(st *store.Store) *Scheduler {
	return &Scheduler{store: st, log: schedLog}
}

// Schedule persists a batch of scheduled votes, all or nothing. Every
// entry's target time is checked against the locally-known contest
// deadline; when the deadline is unknown the check is skipped for that
// entry (best-effort enforcement). Any invalid entry rejects the whole
// batch, naming the first offending contested name, and nothing is
// persisted. Valid entries upsert by (voter, name), overwriting an
// existing pending entry.
func (s *Scheduler) Schedule(entries []contest.ScheduledVote) error {
	for _, entry := range entries {
		record, err := s.store.GetContestedName(entry.ContestedName)
		if err != nil {
			return platform.WrapError(platform.KindStoreIO, err, "loading contested name for validation")
		}
		if record == nil || record.EndTime == nil {
			continue
		}
		if entry.TargetTime > *record.EndTime {
			return platform.Errorf(platform.KindValidation,
				"scheduled time for %q is after the contest ending time", entry.ContestedName)
		}
	}

	for _, entry := range entries {
		entry.Executed = false
		if err := s.store.UpsertScheduledVote(entry); err != nil {
			return platform.WrapError(platform.KindStoreIO, err, "inserting scheduled vote")
		}
	}
	s.log.Info("scheduled votes", "count", len(entries))
	return nil
}

func (s *Scheduler) List() ([]contest.ScheduledVote, error) {
	votes, err := s.store.ListScheduledVotes()
	if err != nil {
		return nil, platform.WrapError(platform.KindStoreIO, err, "listing scheduled votes")
	}
	return votes, nil
}

// Due returns the pending votes whose target time has arrived.
func (s *Scheduler) Due(nowMS uint64) ([]contest.ScheduledVote, error) {
	votes, err := s.List()
	if err != nil {
		return nil, err
	}
	var due []contest.ScheduledVote
	for _, v := range votes {
		if v.Due(nowMS) {
			due = append(due, v)
		}
	}
	return due, nil
}

func (s *Scheduler) Delete(voterID types.Identifier, name string) error {
	if err := s.store.DeleteScheduledVote(voterID, name); err != nil {
		return platform.WrapError(platform.KindStoreIO, err, "deleting scheduled vote")
	}
	return nil
}

func (s *Scheduler) ClearAll() error {
	if err := s.store.ClearAllScheduledVotes(); err != nil {
		return platform.WrapError(platform.KindStoreIO, err, "clearing scheduled votes")
	}
	return nil
}

func (s *Scheduler) ClearExecuted() error {
	if err := s.store.ClearExecutedScheduledVotes(); err != nil {
		return platform.WrapError(platform.KindStoreIO, err, "clearing executed scheduled votes")
	}
	return nil
}

// MarkExecuted sets the monotonic executed flag after a confirmed
// cast.
func (s *Scheduler) MarkExecuted(voterID types.Identifier, name string) error {
	if err := s.store.MarkVoteExecuted(voterID, name); err != nil {
		return platform.WrapError(platform.KindStoreIO, err, "marking scheduled vote executed")
	}
	return nil
}
