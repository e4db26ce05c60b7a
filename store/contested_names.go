package store

import (
	"encoding/json"

	"github.com/go-errors/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/evotools/contestd/common"
	"github.com/evotools/contestd/common/types"
	"github.com/evotools/contestd/contest"
)

// UpsertContestedNames inserts the names that are not yet known and
// returns that newly-inserted subset, in input order. Known names are
// left untouched.
func (s *Store) UpsertContestedNames(names []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := common.NowMillis()
	batch := new(leveldb.Batch)
	var newNames []string
	for _, name := range names {
		key := createNameKey(name)
		has, err := s.db.Has(key, nil)
		if err != nil {
			return nil, errors.WrapPrefix(err, "has contested name", 0)
		}
		if has {
			continue
		}
		record := &contest.ContestedName{
			Name:        name,
			LastUpdated: now,
			State:       contest.StateUnknown,
		}
		value, err := json.Marshal(record)
		if err != nil {
			return nil, errors.WrapPrefix(err, "marshal contested name", 0)
		}
		batch.Put(key, value)
		newNames = append(newNames, name)
	}
	if batch.Len() > 0 {
		if err := s.db.Write(batch, nil); err != nil {
			return nil, errors.WrapPrefix(err, "write contested names", 0)
		}
	}
	for _, name := range newNames {
		s.nameCache.Remove(name)
	}
	return newNames, nil
}

// GetContestedName returns nil without error when the name is unknown.
func (s *Store) GetContestedName(name string) (*contest.ContestedName, error) {
	if cached, ok := s.nameCache.Get(name); ok {
		record := cached.(contest.ContestedName)
		return &record, nil
	}

	value, err := s.db.Get(createNameKey(name), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, nil
		}
		return nil, errors.WrapPrefix(err, "get contested name", 0)
	}
	record := &contest.ContestedName{}
	if err := json.Unmarshal(value, record); err != nil {
		return nil, errors.WrapPrefix(err, "unmarshal contested name", 0)
	}
	s.nameCache.Add(name, *record)
	return record, nil
}

func (s *Store) ListContestedNames() ([]*contest.ContestedName, error) {
	var result []*contest.ContestedName
	iter := s.db.NewIterator(util.BytesPrefix([]byte{idxContestedName}), nil)
	defer iter.Release()
	for iter.Next() {
		record := &contest.ContestedName{}
		if err := json.Unmarshal(iter.Value(), record); err != nil {
			return nil, errors.WrapPrefix(err, "unmarshal contested name", 0)
		}
		result = append(result, record)
	}
	if err := iter.Error(); err != nil {
		return nil, errors.WrapPrefix(err, "iterate contested names", 0)
	}
	return result, nil
}

// SetEndingTime records the contest deadline. The deadline is
// immutable: a second call for the same name is a no-op.
func (s *Store) SetEndingTime(name string, endTimeMS uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.getForUpdate(name)
	if err != nil {
		return err
	}
	if record == nil {
		return errors.Errorf("set ending time: unknown contested name %q", name)
	}
	if record.EndTime != nil {
		return nil
	}
	record.EndTime = &endTimeMS
	record.LastUpdated = common.NowMillis()
	record.State = record.DeriveState(record.LastUpdated)
	return s.putName(record)
}

// UpdateContenders replaces the tallies of a contest and re-derives
// its state.
func (s *Store) UpdateContenders(name string, lockedVotes, abstainVotes uint64, contestants []contest.Contestant, winner *types.Identifier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.getForUpdate(name)
	if err != nil {
		return err
	}
	if record == nil {
		return errors.Errorf("update contenders: unknown contested name %q", name)
	}
	record.LockedVotes = lockedVotes
	record.AbstainVotes = abstainVotes
	record.Contestants = contestants
	if winner != nil {
		record.WonBy = *winner
	}
	record.LastUpdated = common.NowMillis()
	record.State = record.DeriveState(record.LastUpdated)
	return s.putName(record)
}

func (s *Store) getForUpdate(name string) (*contest.ContestedName, error) {
	value, err := s.db.Get(createNameKey(name), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, nil
		}
		return nil, errors.WrapPrefix(err, "get contested name", 0)
	}
	record := &contest.ContestedName{}
	if err := json.Unmarshal(value, record); err != nil {
		return nil, errors.WrapPrefix(err, "unmarshal contested name", 0)
	}
	return record, nil
}

func (s *Store) putName(record *contest.ContestedName) error {
	value, err := json.Marshal(record)
	if err != nil {
		return errors.WrapPrefix(err, "marshal contested name", 0)
	}
	if err := s.db.Put(createNameKey(record.Name), value, nil); err != nil {
		return errors.WrapPrefix(err, "put contested name", 0)
	}
	s.nameCache.Remove(record.Name)
	return nil
}
