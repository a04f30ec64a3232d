package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/spotmatch/pkg/app/spot"
	"github.com/uhyunpark/spotmatch/pkg/metrics"
	"github.com/uhyunpark/spotmatch/pkg/util"
)

// Source produces a consistent point-in-time snapshot
type Source interface {
	Snapshot() spot.Snapshot
}

// Target accepts a previously saved snapshot
type Target interface {
	Restore(spot.Snapshot) error
}

// Snapshotter periodically persists the engine state. Snapshot itself runs
// under the engine lock; encoding and I/O happen outside it.
type Snapshotter struct {
	src      Source
	store    Store
	interval time.Duration
	clock    util.Clock
	log      *zap.SugaredLogger
	metrics  *metrics.Metrics
}

func NewSnapshotter(src Source, store Store, interval time.Duration, logger *zap.SugaredLogger, m *metrics.Metrics) *Snapshotter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Snapshotter{
		src:      src,
		store:    store,
		interval: interval,
		clock:    util.RealClock{},
		log:      logger,
		metrics:  m,
	}
}

// Run saves every interval until ctx is done, then saves once more so a
// clean shutdown loses nothing.
func (s *Snapshotter) Run(ctx context.Context) error {
	s.log.Infow("snapshotter_started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			err := s.SaveNow()
			s.log.Infow("snapshotter_stopped", "final_save_err", err)
			return err
		case <-s.clock.After(s.interval):
			// a failed periodic save is retried on the next tick
			_ = s.SaveNow()
		}
	}
}

// SaveNow captures and persists one snapshot
func (s *Snapshotter) SaveNow() error {
	start := s.clock.Now()
	snap := s.src.Snapshot()
	if err := s.store.Save(snap); err != nil {
		s.metrics.SnapshotFailures.Inc()
		s.log.Errorw("snapshot_failed", "err", err)
		return err
	}
	elapsed := s.clock.Now().Sub(start)
	s.metrics.SnapshotDuration.Observe(elapsed.Seconds())
	s.log.Debugw("snapshot_saved", "markets", len(snap.Orderbooks), "users", len(snap.Balances), "elapsed", elapsed)
	return nil
}

// RestoreLatest loads the last saved snapshot into t. It returns false
// without error when the store is empty.
func RestoreLatest(store Store, t Target) (bool, error) {
	snap, err := store.Load()
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := t.Restore(snap); err != nil {
		return false, fmt.Errorf("restore snapshot: %w", err)
	}
	return true, nil
}
