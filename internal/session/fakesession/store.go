// Package fakesession is a reference Session implementation backed by
// one in-memory goleveldb instance per group, adapted from the
// teacher's internal/replica/level_db.go LevelStore. It exists so this
// module's write/read/bulk engine tests can exercise the full protocol
// (chunked writes, compensation, quorum, latest-replica reads) without
// a live storage cluster — the real transport session is out of scope
// per spec.md §1.
package fakesession

import (
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// groupStore is a single group's object store, keyed by "type/hex raw id".
type groupStore struct {
	mu sync.Mutex
	db *leveldb.DB
}

func newGroupStore() (*groupStore, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("fakesession: open store: %w", err)
	}
	return &groupStore{db: db}, nil
}

func (s *groupStore) get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// writeAt overwrites/extends the value at key starting at offset,
// zero-padding any gap. Chunked writes always arrive in increasing,
// contiguous offset order, so this is sufficient to model prepare/
// plain/commit without tracking reservation state separately.
func (s *groupStore) writeAt(key string, offset uint64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, err := s.db.Get([]byte(key), nil)
	if err != nil && err != leveldb.ErrNotFound {
		return err
	}
	end := offset + uint64(len(data))
	if uint64(len(existing)) < end {
		grown := make([]byte, end)
		copy(grown, existing)
		existing = grown
	}
	copy(existing[offset:end], data)
	return s.db.Put([]byte(key), existing, nil)
}

func (s *groupStore) delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Delete([]byte(key), nil)
}

func (s *groupStore) rangeKeys(from, to string) ([]string, [][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	iter := s.db.NewIterator(&util.Range{Start: []byte(from), Limit: []byte(to)}, nil)
	defer iter.Release()

	var keys []string
	var vals [][]byte
	for iter.Next() {
		keys = append(keys, string(iter.Key()))
		v := append([]byte(nil), iter.Value()...)
		vals = append(vals, v)
	}
	return keys, vals, iter.Error()
}

func (s *groupStore) close() {
	s.db.Close()
}
