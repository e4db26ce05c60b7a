package store

import (
	"path/filepath"
	"sync"

	"github.com/go-errors/errors"
	lru "github.com/hashicorp/golang-lru"
	"github.com/inconshreveable/log15"
	"github.com/syndtr/goleveldb/leveldb"
)

var sLog = log15.New("module", "store")

// Key namespaces. Every record key is its namespace byte followed by
// the record key material.
const (
	idxContestedName = byte(0)
	idxScheduledVote = byte(1)
	idxProofAudit    = byte(2)
	idxMeta          = byte(3)
)

const nameCacheSize = 1024

// Store is the local persistence layer: contested names, scheduled
// votes and the append-only proof audit log. All writes go through a
// single mutex; the refresh fan-out and the scheduler may call in
// concurrently and per-record upserts must not lose updates.
type Store struct {
	db *leveldb.DB
	mu sync.Mutex

	nameCache *lru.Cache
}

func NewStore(dataDir string) (*Store, error) {
	db, err := leveldb.OpenFile(filepath.Join(dataDir, "contestd"), nil)
	if err != nil {
		return nil, errors.WrapPrefix(err, "open store", 0)
	}
	cache, err := lru.New(nameCacheSize)
	if err != nil {
		db.Close()
		return nil, errors.WrapPrefix(err, "new name cache", 0)
	}
	return &Store{db: db, nameCache: cache}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func createNameKey(name string) []byte {
	key := make([]byte, 0, 1+len(name))
	key = append(key, idxContestedName)
	return append(key, name...)
}

func createVoteKey(voterID []byte, name string) []byte {
	key := make([]byte, 0, 1+len(voterID)+len(name))
	key = append(key, idxScheduledVote)
	key = append(key, voterID...)
	return append(key, name...)
}

func createAuditKey(seq uint64) []byte {
	key := make([]byte, 9)
	key[0] = idxProofAudit
	for i := 0; i < 8; i++ {
		key[1+i] = byte(seq >> uint(56-8*i))
	}
	return key
}

var auditSeqKey = []byte{idxMeta, 'a', 's'}
