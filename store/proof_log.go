package store

import (
	"encoding/binary"
	"encoding/json"

	"github.com/go-errors/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ProofAuditRecord captures the raw material of a failed proof
// verification for offline analysis. The log is append-only; the core
// never reads it back.
type ProofAuditRecord struct {
	RequestType    string `json:"requestType"`
	RequestBytes   []byte `json:"requestBytes"`
	PathQueryBytes []byte `json:"pathQueryBytes"`
	Height         uint64 `json:"height"`
	TimeMS         uint64 `json:"timeMs"`
	ProofBytes     []byte `json:"proofBytes"`
	Error          string `json:"error"`
}

func (s *Store) AppendProofAuditRecord(record ProofAuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, err := s.nextAuditSeq()
	if err != nil {
		return err
	}
	value, err := json.Marshal(&record)
	if err != nil {
		return errors.WrapPrefix(err, "marshal proof audit record", 0)
	}
	if err := s.db.Put(createAuditKey(seq), value, nil); err != nil {
		return errors.WrapPrefix(err, "put proof audit record", 0)
	}
	sLog.Warn("proof verification failure recorded", "request", record.RequestType, "height", record.Height, "seq", seq)
	return nil
}

// ProofAuditCount is for operators and tests; the running core only
// appends.
func (s *Store) ProofAuditCount() (int, error) {
	count := 0
	iter := s.db.NewIterator(util.BytesPrefix([]byte{idxProofAudit}), nil)
	defer iter.Release()
	for iter.Next() {
		count++
	}
	if err := iter.Error(); err != nil {
		return 0, errors.WrapPrefix(err, "iterate proof audit log", 0)
	}
	return count, nil
}

func (s *Store) nextAuditSeq() (uint64, error) {
	var seq uint64
	value, err := s.db.Get(auditSeqKey, nil)
	if err == nil {
		seq = binary.BigEndian.Uint64(value)
	} else if err != leveldb.ErrNotFound {
		return 0, errors.WrapPrefix(err, "get audit sequence", 0)
	}
	seq++
	next := make([]byte, 8)
	binary.BigEndian.PutUint64(next, seq)
	if err := s.db.Put(auditSeqKey, next, nil); err != nil {
		return 0, errors.WrapPrefix(err, "put audit sequence", 0)
	}
	return seq, nil
}
