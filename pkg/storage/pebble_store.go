package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/spotmatch/pkg/app/spot"
	"github.com/uhyunpark/spotmatch/pkg/util"
)

// DefaultRetain is how many historical snapshots PebbleStore keeps
const DefaultRetain = 10

// PebbleStore keeps the latest snapshot under snapshot/latest and a short
// history under snapshot/h/<unix millis>.
type PebbleStore struct {
	db     *pebble.DB
	clock  util.Clock
	retain int
}

func NewPebbleStore(path string, retain int) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	if retain < 1 {
		retain = DefaultRetain
	}
	return &PebbleStore{db: db, clock: util.RealClock{}, retain: retain}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// Save writes latest and the history entry in one synced batch, then drops
// history beyond the retention limit.
func (s *PebbleStore) Save(snap spot.Snapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(latestKey(), data, nil); err != nil {
		return fmt.Errorf("failed to stage snapshot: %w", err)
	}
	if err := b.Set(historyKey(s.clock.Now().UnixMilli()), data, nil); err != nil {
		return fmt.Errorf("failed to stage snapshot history: %w", err)
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return s.prune()
}

func (s *PebbleStore) Load() (spot.Snapshot, error) {
	return s.get(latestKey())
}

// LoadAt returns the historical snapshot saved at ts
func (s *PebbleStore) LoadAt(ts time.Time) (spot.Snapshot, error) {
	return s.get(historyKey(ts.UnixMilli()))
}

func (s *PebbleStore) get(key []byte) (spot.Snapshot, error) {
	data, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return spot.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return spot.Snapshot{}, fmt.Errorf("failed to get snapshot: %w", err)
	}
	defer closer.Close()
	return decodeSnapshot(data)
}

// History lists the retained snapshot times, newest first
func (s *PebbleStore) History() ([]time.Time, error) {
	prefix := historyPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []time.Time
	for iter.Last(); iter.Valid(); iter.Prev() {
		ms, ok := parseHistoryKey(iter.Key())
		if !ok {
			continue
		}
		out = append(out, time.UnixMilli(ms))
	}
	return out, nil
}

func (s *PebbleStore) prune() error {
	prefix := historyPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return err
	}

	var cut []byte
	n := 0
	for iter.Last(); iter.Valid(); iter.Prev() {
		n++
		if n == s.retain {
			cut = append([]byte(nil), iter.Key()...)
			break
		}
	}
	if err := iter.Close(); err != nil {
		return err
	}
	if cut == nil {
		return nil
	}
	// everything older than the oldest retained entry
	if err := s.db.DeleteRange(prefix, cut, pebble.NoSync); err != nil {
		return fmt.Errorf("failed to prune snapshot history: %w", err)
	}
	return nil
}
