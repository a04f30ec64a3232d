package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/uhyunpark/spotmatch/pkg/app/core/orderbook"
	"github.com/uhyunpark/spotmatch/pkg/app/spot"
	"github.com/uhyunpark/spotmatch/pkg/metrics"
	"github.com/uhyunpark/spotmatch/pkg/util"
)

type nopPublisher struct{}

func (nopPublisher) SendReply(context.Context, string, spot.Reply) error     { return nil }
func (nopPublisher) PushEvent(context.Context, spot.Event) error             { return nil }
func (nopPublisher) PublishStream(context.Context, spot.StreamMessage) error { return nil }

func newEngine(t *testing.T) *spot.Engine {
	t.Helper()
	e, err := spot.NewEngine(spot.Config{BaseCurrency: "INR", Markets: []string{"TATA_INR"}}, nopPublisher{}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	return e
}

func exec(t *testing.T, e *spot.Engine, typ string, payload interface{}) spot.Reply {
	t.Helper()
	cmd, err := spot.NewCommand(typ, payload)
	require.NoError(t, err)
	reply, _ := e.Execute(context.Background(), cmd)
	return reply
}

// populatedEngine has one resting bid, one trade and two funded users
func populatedEngine(t *testing.T) *spot.Engine {
	t.Helper()
	e := newEngine(t)
	exec(t, e, spot.OnRamp, spot.OnRampRequest{UserID: "alice", Amount: decimal.NewFromInt(1000)})
	exec(t, e, spot.OnRamp, spot.OnRampRequest{UserID: "bob", Amount: decimal.NewFromInt(5), Asset: "TATA"})
	exec(t, e, spot.CreateOrder, spot.CreateOrderRequest{Market: "TATA_INR", Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(4), Side: orderbook.Buy, UserID: "alice"})
	exec(t, e, spot.CreateOrder, spot.CreateOrderRequest{Market: "TATA_INR", Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1), Side: orderbook.Sell, UserID: "bob"})
	return e
}

func depth(t *testing.T, e *spot.Engine) orderbook.Depth {
	t.Helper()
	return exec(t, e, spot.GetDepth, spot.MarketRequest{Market: "TATA_INR"}).Payload.(orderbook.Depth)
}

func requireRoundTrip(t *testing.T, s Store) {
	t.Helper()
	_, err := s.Load()
	require.ErrorIs(t, err, ErrNotFound)

	src := populatedEngine(t)
	require.NoError(t, s.Save(src.Snapshot()))

	dst := newEngine(t)
	restored, err := RestoreLatest(s, dst)
	require.NoError(t, err)
	require.True(t, restored)
	require.Equal(t, depth(t, src), depth(t, dst))

	bal := exec(t, dst, spot.GetBalance, spot.BalanceRequest{UserID: "alice"}).Payload.(spot.BalancePayload)
	require.True(t, bal.Balances["INR"].Locked.Equal(decimal.NewFromInt(300)))
	require.True(t, bal.Balances["TATA"].Available.Equal(decimal.NewFromInt(1)))
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(filepath.Join(dir, "state", "snapshot.json"))
	require.NoError(t, err)
	requireRoundTrip(t, s)

	entries, err := os.ReadDir(filepath.Join(dir, "state"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files are cleaned up")
}

func TestFileStoreRejectsCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
	s, err := NewFileStore(path)
	require.NoError(t, err)

	_, err = s.Load()
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)
}

func TestEmptySnapshotEncodesEmptyLists(t *testing.T) {
	data, err := encodeSnapshot(spot.Snapshot{})
	require.NoError(t, err)
	require.JSONEq(t, `{"orderbooks":[],"balances":[]}`, string(data))
}

func TestPebbleStoreRoundTrip(t *testing.T) {
	s, err := NewPebbleStore(t.TempDir(), 3)
	require.NoError(t, err)
	defer s.Close()
	requireRoundTrip(t, s)
}

func TestPebbleStoreKeepsBoundedHistory(t *testing.T) {
	dir := t.TempDir()
	s, err := NewPebbleStore(dir, 3)
	require.NoError(t, err)
	s.clock = util.NewManualClock(time.UnixMilli(1_700_000_000_000), time.Second)

	e := newEngine(t)
	for i := 0; i < 5; i++ {
		exec(t, e, spot.OnRamp, spot.OnRampRequest{UserID: "alice", Amount: decimal.NewFromInt(1)})
		require.NoError(t, s.Save(e.Snapshot()))
	}

	history, err := s.History()
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.True(t, history[0].After(history[1]), "newest first")

	oldest, err := s.LoadAt(history[2])
	require.NoError(t, err)
	require.Len(t, oldest.Balances, 1)
	require.True(t, oldest.Balances[0].Balances["INR"].Available.Equal(decimal.NewFromInt(3)))

	// reopening sees the same latest snapshot
	require.NoError(t, s.Close())
	s, err = NewPebbleStore(dir, 3)
	require.NoError(t, err)
	defer s.Close()
	latest, err := s.Load()
	require.NoError(t, err)
	require.True(t, latest.Balances[0].Balances["INR"].Available.Equal(decimal.NewFromInt(5)))
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	fs, err := Open("file", filepath.Join(dir, "s.json"), "")
	require.NoError(t, err)
	require.IsType(t, &FileStore{}, fs)

	ps, err := Open("pebble", "", filepath.Join(dir, "db"))
	require.NoError(t, err)
	require.IsType(t, &PebbleStore{}, ps)
	require.NoError(t, ps.Close())

	_, err = Open("s3", "", "")
	require.Error(t, err)
}

type failingStore struct{ MemStore }

func (*failingStore) Save(spot.Snapshot) error { return errors.New("disk full") }

func TestSnapshotterCountsFailures(t *testing.T) {
	m := metrics.New(nil)
	snap := NewSnapshotter(newEngine(t), &failingStore{}, time.Second, zaptest.NewLogger(t).Sugar(), m)

	require.Error(t, snap.SaveNow())
	require.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotFailures))
}

func TestSnapshotterSavesOnShutdown(t *testing.T) {
	store := NewMemStore()
	snap := NewSnapshotter(populatedEngine(t), store, time.Hour, zaptest.NewLogger(t).Sugar(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- snap.Run(ctx) }()
	cancel()

	require.NoError(t, <-done)
	require.Equal(t, 1, store.Saves())

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded.Orderbooks, 1)
	require.Len(t, loaded.Orderbooks[0].Bids, 1)
}

func TestSnapshotterSavesPeriodically(t *testing.T) {
	store := NewMemStore()
	snap := NewSnapshotter(newEngine(t), store, 5*time.Millisecond, zaptest.NewLogger(t).Sugar(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- snap.Run(ctx) }()

	require.Eventually(t, func() bool { return store.Saves() >= 2 }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestRestoreLatestEmptyStore(t *testing.T) {
	restored, err := RestoreLatest(NewMemStore(), newEngine(t))
	require.NoError(t, err)
	require.False(t, restored)
}
