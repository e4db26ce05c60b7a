package store

import (
	"encoding/json"

	"github.com/go-errors/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/evotools/contestd/common/types"
	"github.com/evotools/contestd/contest"
)

// UpsertScheduledVote writes the record keyed by (voter, name). An
// existing record for the same key is overwritten wholesale, so a
// re-schedule resets the executed flag.
func (s *Store) UpsertScheduledVote(vote contest.ScheduledVote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, err := json.Marshal(&vote)
	if err != nil {
		return errors.WrapPrefix(err, "marshal scheduled vote", 0)
	}
	key := createVoteKey(vote.VoterID.Bytes(), vote.ContestedName)
	if err := s.db.Put(key, value, nil); err != nil {
		return errors.WrapPrefix(err, "put scheduled vote", 0)
	}
	return nil
}

// GetScheduledVote returns nil without error when no vote is scheduled
// for the pair.
func (s *Store) GetScheduledVote(voterID types.Identifier, name string) (*contest.ScheduledVote, error) {
	value, err := s.db.Get(createVoteKey(voterID.Bytes(), name), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, nil
		}
		return nil, errors.WrapPrefix(err, "get scheduled vote", 0)
	}
	vote := &contest.ScheduledVote{}
	if err := json.Unmarshal(value, vote); err != nil {
		return nil, errors.WrapPrefix(err, "unmarshal scheduled vote", 0)
	}
	return vote, nil
}

func (s *Store) ListScheduledVotes() ([]contest.ScheduledVote, error) {
	var result []contest.ScheduledVote
	iter := s.db.NewIterator(util.BytesPrefix([]byte{idxScheduledVote}), nil)
	defer iter.Release()
	for iter.Next() {
		vote := contest.ScheduledVote{}
		if err := json.Unmarshal(iter.Value(), &vote); err != nil {
			return nil, errors.WrapPrefix(err, "unmarshal scheduled vote", 0)
		}
		result = append(result, vote)
	}
	if err := iter.Error(); err != nil {
		return nil, errors.WrapPrefix(err, "iterate scheduled votes", 0)
	}
	return result, nil
}

// DeleteScheduledVote is idempotent; deleting an absent record is not
// an error.
func (s *Store) DeleteScheduledVote(voterID types.Identifier, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Delete(createVoteKey(voterID.Bytes(), name), nil); err != nil {
		return errors.WrapPrefix(err, "delete scheduled vote", 0)
	}
	return nil
}

func (s *Store) ClearAllScheduledVotes() error {
	return s.clearVotes(func(*contest.ScheduledVote) bool { return true })
}

func (s *Store) ClearExecutedScheduledVotes() error {
	return s.clearVotes(func(v *contest.ScheduledVote) bool { return v.Executed })
}

func (s *Store) clearVotes(match func(*contest.ScheduledVote) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := new(leveldb.Batch)
	iter := s.db.NewIterator(util.BytesPrefix([]byte{idxScheduledVote}), nil)
	for iter.Next() {
		vote := &contest.ScheduledVote{}
		if err := json.Unmarshal(iter.Value(), vote); err != nil {
			iter.Release()
			return errors.WrapPrefix(err, "unmarshal scheduled vote", 0)
		}
		if match(vote) {
			key := make([]byte, len(iter.Key()))
			copy(key, iter.Key())
			batch.Delete(key)
		}
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return errors.WrapPrefix(err, "iterate scheduled votes", 0)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := s.db.Write(batch, nil); err != nil {
		return errors.WrapPrefix(err, "clear scheduled votes", 0)
	}
	return nil
}

// MarkVoteExecuted sets the monotonic executed flag. It never clears
// the flag and fails when no vote is scheduled for the pair.
func (s *Store) MarkVoteExecuted(voterID types.Identifier, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := createVoteKey(voterID.Bytes(), name)
	value, err := s.db.Get(key, nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return errors.Errorf("mark executed: no scheduled vote for voter %s on %q", voterID.Hex(), name)
		}
		return errors.WrapPrefix(err, "get scheduled vote", 0)
	}
	vote := &contest.ScheduledVote{}
	if err := json.Unmarshal(value, vote); err != nil {
		return errors.WrapPrefix(err, "unmarshal scheduled vote", 0)
	}
	if vote.Executed {
		return nil
	}
	vote.Executed = true
	updated, err := json.Marshal(vote)
	if err != nil {
		return errors.WrapPrefix(err, "marshal scheduled vote", 0)
	}
	if err := s.db.Put(key, updated, nil); err != nil {
		return errors.WrapPrefix(err, "put scheduled vote", 0)
	}
	return nil
}
