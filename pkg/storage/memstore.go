package storage

import (
	"sync"

	"github.com/uhyunpark/spotmatch/pkg/app/spot"
)

// MemStore holds the encoded snapshot in memory. Saves are still encoded so
// a loaded snapshot never aliases engine state.
type MemStore struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

func NewMemStore() *MemStore { return &MemStore{} }

func (s *MemStore) Save(snap spot.Snapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	s.saves++
	return nil
}

func (s *MemStore) Load() (spot.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return spot.Snapshot{}, ErrNotFound
	}
	return decodeSnapshot(s.data)
}

// Saves reports how many snapshots have been written
func (s *MemStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *MemStore) Close() error { return nil }
