package spot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/uhyunpark/spotmatch/pkg/app/core/ledger"
	"github.com/uhyunpark/spotmatch/pkg/app/core/orderbook"
	"github.com/uhyunpark/spotmatch/pkg/metrics"
	"github.com/uhyunpark/spotmatch/pkg/util"
)

const testMarket = "TATA_INR"

type sentReply struct {
	clientID string
	reply    Reply
}

// recorder is an in-memory Publisher
type recorder struct {
	mu      sync.Mutex
	replies []sentReply
	events  []Event
	streams []StreamMessage
	err     error
}

func (r *recorder) SendReply(_ context.Context, clientID string, reply Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, sentReply{clientID: clientID, reply: reply})
	return r.err
}

func (r *recorder) PushEvent(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) PublishStream(_ context.Context, msg StreamMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams = append(r.streams, msg)
	return r.err
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies, r.events, r.streams = nil, nil, nil
}

func (r *recorder) depthUpdates() []DepthUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []DepthUpdate
	for _, m := range r.streams {
		if u, ok := m.Data.(DepthUpdate); ok {
			out = append(out, u)
		}
	}
	return out
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *recorder, *metrics.Metrics) {
	t.Helper()
	rec := &recorder{}
	m := metrics.New(nil)
	seq := 0
	base := []Option{
		WithMetrics(m),
		WithClock(util.NewManualClock(time.UnixMilli(1700000000000), 0)),
		WithIDGenerator(func() string { seq++; return fmt.Sprintf("o%d", seq) }),
	}
	e, err := NewEngine(Config{BaseCurrency: "INR", Markets: []string{testMarket}}, rec, zaptest.NewLogger(t).Sugar(), append(base, opts...)...)
	require.NoError(t, err)
	return e, rec, m
}

func mustCmd(t *testing.T, typ string, payload interface{}) Command {
	t.Helper()
	cmd, err := NewCommand(typ, payload)
	require.NoError(t, err)
	return cmd
}

func deposit(t *testing.T, e *Engine, user, asset, amount string) {
	t.Helper()
	_, ok := e.Execute(context.Background(), mustCmd(t, OnRamp, OnRampRequest{UserID: user, Amount: d(amount), TxnID: "t", Asset: asset}))
	require.False(t, ok, "on-ramp has no reply")
}

func place(t *testing.T, e *Engine, user string, side orderbook.Side, price, qty string) Reply {
	t.Helper()
	reply, ok := e.Execute(context.Background(), mustCmd(t, CreateOrder, CreateOrderRequest{
		Market: testMarket, Price: d(price), Quantity: d(qty), Side: side, UserID: user,
	}))
	require.True(t, ok)
	return reply
}

func cancel(t *testing.T, e *Engine, orderID string) (Reply, bool) {
	t.Helper()
	return e.Execute(context.Background(), mustCmd(t, CancelOrder, CancelOrderRequest{OrderID: orderID, Market: testMarket}))
}

func requireBalance(t *testing.T, e *Engine, user, asset, available, locked string) {
	t.Helper()
	bal := e.lookup(user)[asset]
	require.True(t, bal.Available.Equal(d(available)), "%s %s available: want %s got %s", user, asset, available, bal.Available)
	require.True(t, bal.Locked.Equal(d(locked)), "%s %s locked: want %s got %s", user, asset, locked, bal.Locked)
}

func depthOf(t *testing.T, e *Engine) orderbook.Depth {
	t.Helper()
	reply, ok := e.Execute(context.Background(), mustCmd(t, GetDepth, MarketRequest{Market: testMarket}))
	require.True(t, ok)
	require.Equal(t, Depth, reply.Type)
	return reply.Payload.(orderbook.Depth)
}

func TestBuyRestsOnEmptyBook(t *testing.T) {
	e, rec, _ := newTestEngine(t)
	deposit(t, e, "alice", "", "1000")

	reply := place(t, e, "alice", orderbook.Buy, "100", "10")

	require.Equal(t, OrderPlaced, reply.Type)
	placed := reply.Payload.(OrderPlacedPayload)
	require.Equal(t, "o1", placed.OrderID)
	require.True(t, placed.ExecutedQty.IsZero())
	require.Empty(t, placed.Fills)

	require.Equal(t, [][2]string{{"100", "10"}}, depthOf(t, e).Bids)
	requireBalance(t, e, "alice", "INR", "0", "1000")

	updates := rec.depthUpdates()
	require.Len(t, updates, 1)
	require.Equal(t, [][2]string{{"100", "10"}}, updates[0].Bids)
	require.Empty(t, updates[0].Asks)
}

func TestPartialCross(t *testing.T) {
	e, rec, m := newTestEngine(t)
	deposit(t, e, "alice", "INR", "1000")
	deposit(t, e, "bob", "TATA", "5")
	place(t, e, "bob", orderbook.Sell, "100", "5")
	rec.reset()

	reply := place(t, e, "alice", orderbook.Buy, "100", "10")

	placed := reply.Payload.(OrderPlacedPayload)
	require.True(t, placed.ExecutedQty.Equal(d("5")))
	require.Len(t, placed.Fills, 1)
	require.Equal(t, "o1", placed.Fills[0].MakerOrderID)
	require.Equal(t, "bob", placed.Fills[0].OtherUserID)
	require.Equal(t, int64(1), placed.Fills[0].TradeID)

	depth := depthOf(t, e)
	require.Equal(t, [][2]string{{"100", "5"}}, depth.Bids)
	require.Empty(t, depth.Asks)

	requireBalance(t, e, "alice", "INR", "0", "500")
	requireBalance(t, e, "alice", "TATA", "5", "0")
	requireBalance(t, e, "bob", "INR", "500", "0")
	requireBalance(t, e, "bob", "TATA", "0", "0")

	// trade record, taker update, one maker update
	require.Len(t, rec.events, 3)
	trade := rec.events[0].Data.(TradeAddedData)
	require.Equal(t, TradeAdded, rec.events[0].Type)
	require.Equal(t, "1", trade.ID)
	require.False(t, trade.IsMaker, "buyer was the taker")
	require.True(t, trade.QuoteQuantity.Equal(d("500")))
	require.Equal(t, int64(1700000000000), trade.Timestamp)

	taker := rec.events[1].Data.(OrderUpdateData)
	require.Equal(t, "o2", taker.OrderID)
	require.True(t, taker.ExecutedQty.Equal(d("5")))
	require.Equal(t, testMarket, taker.Market)
	maker := rec.events[2].Data.(OrderUpdateData)
	require.Equal(t, "o1", maker.OrderID)
	require.True(t, maker.ExecutedQty.Equal(d("5")))
	require.Empty(t, maker.Market)

	updates := rec.depthUpdates()
	require.Len(t, updates, 1)
	require.Equal(t, [][2]string{{"100", "0"}}, updates[0].Asks)
	require.Equal(t, [][2]string{{"100", "5"}}, updates[0].Bids)

	require.Len(t, rec.streams, 2)
	require.Equal(t, "trade@TATA_INR", rec.streams[1].Stream)
	tu := rec.streams[1].Data.(TradeUpdate)
	require.Equal(t, int64(1), tu.TradeID)
	require.Equal(t, "100", tu.Price)
	require.Equal(t, "5", tu.Quantity)

	require.Equal(t, 1.0, testutil.ToFloat64(m.Fills.WithLabelValues(testMarket)))
}

func TestTakerBuyGetsPriceImprovementBack(t *testing.T) {
	e, _, _ := newTestEngine(t)
	deposit(t, e, "alice", "INR", "1000")
	deposit(t, e, "bob", "TATA", "5")
	place(t, e, "bob", orderbook.Sell, "90", "5")

	place(t, e, "alice", orderbook.Buy, "100", "5")

	requireBalance(t, e, "alice", "INR", "550", "0")
	requireBalance(t, e, "alice", "TATA", "5", "0")
	requireBalance(t, e, "bob", "INR", "450", "0")
	requireBalance(t, e, "bob", "TATA", "0", "0")
}

func TestTakerSellAgainstRestingBid(t *testing.T) {
	e, rec, _ := newTestEngine(t)
	deposit(t, e, "alice", "INR", "1000")
	deposit(t, e, "bob", "TATA", "8")
	place(t, e, "alice", orderbook.Buy, "100", "4")
	rec.reset()

	reply := place(t, e, "bob", orderbook.Sell, "95", "8")

	placed := reply.Payload.(OrderPlacedPayload)
	require.True(t, placed.ExecutedQty.Equal(d("4")))
	require.True(t, placed.Fills[0].Price.Equal(d("100")), "fill at maker price")

	requireBalance(t, e, "alice", "INR", "600", "0")
	requireBalance(t, e, "alice", "TATA", "4", "0")
	requireBalance(t, e, "bob", "INR", "400", "0")
	requireBalance(t, e, "bob", "TATA", "0", "4")

	depth := depthOf(t, e)
	require.Empty(t, depth.Bids)
	require.Equal(t, [][2]string{{"95", "4"}}, depth.Asks)

	updates := rec.depthUpdates()
	require.Len(t, updates, 1)
	require.Equal(t, [][2]string{{"100", "0"}}, updates[0].Bids)
	require.Equal(t, [][2]string{{"95", "4"}}, updates[0].Asks)

	trade := rec.events[0].Data.(TradeAddedData)
	require.True(t, trade.IsMaker, "buyer was the maker")
}

func TestCancelPartiallyFilledBuy(t *testing.T) {
	e, rec, _ := newTestEngine(t)
	deposit(t, e, "alice", "INR", "1000")
	deposit(t, e, "bob", "TATA", "3")
	place(t, e, "alice", orderbook.Buy, "100", "10")
	place(t, e, "bob", orderbook.Sell, "100", "3")
	requireBalance(t, e, "alice", "INR", "0", "700")
	rec.reset()

	reply, ok := cancel(t, e, "o1")

	require.True(t, ok)
	require.Equal(t, OrderCancelled, reply.Type)
	cancelled := reply.Payload.(OrderCancelledPayload)
	require.Equal(t, "o1", cancelled.OrderID)
	require.True(t, cancelled.ExecutedQty.Equal(d("3")))
	require.True(t, cancelled.RemainingQty.Equal(d("7")))

	requireBalance(t, e, "alice", "INR", "700", "0")
	requireBalance(t, e, "alice", "TATA", "3", "0")
	require.Empty(t, depthOf(t, e).Bids)

	updates := rec.depthUpdates()
	require.Len(t, updates, 1)
	require.Equal(t, [][2]string{{"100", "0"}}, updates[0].Bids)
	require.Empty(t, updates[0].Asks)
	require.Equal(t, "cancelled", rec.events[0].Data.(OrderUpdateData).Status)

	// second cancel is a silent no-op
	_, ok = cancel(t, e, "o1")
	require.False(t, ok)
	requireBalance(t, e, "alice", "INR", "700", "0")
}

func TestCancelSellUnlocksBase(t *testing.T) {
	e, _, _ := newTestEngine(t)
	deposit(t, e, "bob", "TATA", "6")
	place(t, e, "bob", orderbook.Sell, "120", "6")
	requireBalance(t, e, "bob", "TATA", "0", "6")

	_, ok := cancel(t, e, "o1")
	require.True(t, ok)
	requireBalance(t, e, "bob", "TATA", "6", "0")
	requireBalance(t, e, "bob", "INR", "0", "0")
}

func TestCreateOrderRejections(t *testing.T) {
	tests := []struct {
		name string
		req  CreateOrderRequest
	}{
		{"unknown market", CreateOrderRequest{Market: "FOO_INR", Price: d("1"), Quantity: d("1"), Side: orderbook.Buy, UserID: "alice"}},
		{"insufficient quote", CreateOrderRequest{Market: testMarket, Price: d("100"), Quantity: d("11"), Side: orderbook.Buy, UserID: "alice"}},
		{"insufficient base", CreateOrderRequest{Market: testMarket, Price: d("100"), Quantity: d("1"), Side: orderbook.Sell, UserID: "alice"}},
		{"unknown user", CreateOrderRequest{Market: testMarket, Price: d("1"), Quantity: d("1"), Side: orderbook.Buy, UserID: "ghost"}},
		{"zero quantity", CreateOrderRequest{Market: testMarket, Price: d("1"), Quantity: d("0"), Side: orderbook.Buy, UserID: "alice"}},
		{"bad side", CreateOrderRequest{Market: testMarket, Price: d("1"), Quantity: d("1"), Side: "hold", UserID: "alice"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, rec, m := newTestEngine(t)
			deposit(t, e, "alice", "INR", "1000")

			reply, ok := e.Execute(context.Background(), mustCmd(t, CreateOrder, tt.req))

			require.True(t, ok)
			require.Equal(t, rejectedOrder(), reply)
			requireBalance(t, e, "alice", "INR", "1000", "0")
			require.Empty(t, depthOf(t, e).Bids)
			require.Empty(t, rec.events)
			require.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues(CreateOrder, "rejected")))
		})
	}
}

func TestCreateOrderMalformedPayload(t *testing.T) {
	e, _, _ := newTestEngine(t)
	reply, ok := e.Execute(context.Background(), Command{Type: CreateOrder, Data: []byte(`{"price":"abc"}`)})
	require.True(t, ok)
	require.Equal(t, rejectedOrder(), reply)
}

func TestMissingMakerRecordAbortsWithoutMutation(t *testing.T) {
	e, _, m := newTestEngine(t)
	// a resting ask whose owner has no balance record
	snap := Snapshot{
		Orderbooks: []orderbook.Snapshot{{
			BaseAsset:  "TATA",
			QuoteAsset: "INR",
			Asks: []orderbook.Order{{
				ID: "ghost-ask", UserID: "ghost", Side: orderbook.Sell,
				Price: d("100"), Quantity: d("1"), Filled: decimal.Zero,
			}},
		}},
	}
	require.NoError(t, e.Restore(snap))
	deposit(t, e, "alice", "INR", "100")

	reply := place(t, e, "alice", orderbook.Buy, "100", "1")

	require.Equal(t, rejectedOrder(), reply)
	requireBalance(t, e, "alice", "INR", "100", "0")
	require.Equal(t, [][2]string{{"100", "1"}}, depthOf(t, e).Asks)
	require.Equal(t, 1.0, testutil.ToFloat64(m.Faults.WithLabelValues(CreateOrder)))
}

func TestReadCommands(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	deposit(t, e, "alice", "INR", "1000")
	deposit(t, e, "alice", "TATA", "2")
	place(t, e, "alice", orderbook.Buy, "90", "1")
	place(t, e, "alice", orderbook.Sell, "110", "2")

	t.Run("open orders", func(t *testing.T) {
		reply, ok := e.Execute(ctx, mustCmd(t, GetOpenOrders, OpenOrdersRequest{UserID: "alice", Market: testMarket}))
		require.True(t, ok)
		orders := reply.Payload.([]orderbook.Order)
		require.Len(t, orders, 2)
		require.Equal(t, "o1", orders[0].ID)

		reply, _ = e.Execute(ctx, mustCmd(t, GetOpenOrders, OpenOrdersRequest{UserID: "alice", Market: "NOPE_INR"}))
		require.Empty(t, reply.Payload.([]orderbook.Order))
	})

	t.Run("depth of unknown market", func(t *testing.T) {
		reply, ok := e.Execute(ctx, mustCmd(t, GetDepth, MarketRequest{Market: "NOPE_INR"}))
		require.True(t, ok)
		require.Equal(t, orderbook.Depth{Bids: [][2]string{}, Asks: [][2]string{}}, reply.Payload)
	})

	t.Run("balance", func(t *testing.T) {
		reply, ok := e.Execute(ctx, mustCmd(t, GetBalance, BalanceRequest{UserID: "alice"}))
		require.True(t, ok)
		bal := reply.Payload.(BalancePayload).Balances
		require.True(t, bal["INR"].Locked.Equal(d("90")))
		require.True(t, bal["TATA"].Locked.Equal(d("2")))

		reply, _ = e.Execute(ctx, mustCmd(t, GetBalance, BalanceRequest{UserID: "nobody"}))
		zero := reply.Payload.(BalancePayload).Balances
		require.Len(t, zero, 2)
		require.True(t, zero["INR"].Available.IsZero())
	})

	t.Run("ticker", func(t *testing.T) {
		reply, ok := e.Execute(ctx, mustCmd(t, GetTicker, MarketRequest{Market: testMarket}))
		require.True(t, ok)
		tk := reply.Payload.(TickerPayload)
		require.True(t, tk.BestBid.Equal(d("90")))
		require.True(t, tk.BestAsk.Equal(d("110")))
		require.Equal(t, int64(0), tk.LastTradeID)
	})

	t.Run("trades and unknown types have no reply", func(t *testing.T) {
		_, ok := e.Execute(ctx, mustCmd(t, GetTrades, MarketRequest{Market: testMarket}))
		require.False(t, ok)
		_, ok = e.Execute(ctx, Command{Type: "MYSTERY"})
		require.False(t, ok)
	})
}

func TestOnRampRejectsBadInput(t *testing.T) {
	e, _, _ := newTestEngine(t)
	deposit(t, e, "alice", "", "-5")
	deposit(t, e, "alice", "DOGE", "5")
	deposit(t, e, "", "", "5")

	_, ok := e.ledger.Lookup("alice")
	require.False(t, ok)
	require.Equal(t, 0, e.ledger.Users())
}

func TestPublishFailureDoesNotRollBack(t *testing.T) {
	e, rec, m := newTestEngine(t)
	rec.err = errors.New("transport down")
	deposit(t, e, "alice", "INR", "1000")
	deposit(t, e, "bob", "TATA", "1")
	place(t, e, "bob", orderbook.Sell, "100", "1")

	e.Process(context.Background(), Envelope{ClientID: "c1", Message: mustCmd(t, CreateOrder, CreateOrderRequest{
		Market: testMarket, Price: d("100"), Quantity: d("1"), Side: orderbook.Buy, UserID: "alice",
	})})

	requireBalance(t, e, "alice", "TATA", "1", "0")
	requireBalance(t, e, "bob", "INR", "100", "0")
	require.Equal(t, 1.0, testutil.ToFloat64(m.PublishFailures.WithLabelValues("reply")))
	require.Greater(t, testutil.ToFloat64(m.PublishFailures.WithLabelValues("event")), 0.0)
}

func TestRunRoutesReplies(t *testing.T) {
	e, rec, _ := newTestEngine(t)
	in := make(chan Envelope, 3)
	in <- Envelope{ClientID: "c1", Message: mustCmd(t, OnRamp, OnRampRequest{UserID: "alice", Amount: d("100")})}
	in <- Envelope{ClientID: "c2", Message: mustCmd(t, GetDepth, MarketRequest{Market: testMarket})}
	in <- Envelope{ClientID: "c3", Message: mustCmd(t, CreateOrder, CreateOrderRequest{
		Market: testMarket, Price: d("10"), Quantity: d("10"), Side: orderbook.Buy, UserID: "alice",
	})}
	close(in)

	require.NoError(t, e.Run(context.Background(), in))

	require.Len(t, rec.replies, 2)
	require.Equal(t, "c2", rec.replies[0].clientID)
	require.Equal(t, Depth, rec.replies[0].reply.Type)
	require.Equal(t, "c3", rec.replies[1].clientID)
	require.Equal(t, OrderPlaced, rec.replies[1].reply.Type)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := e.Run(ctx, make(chan Envelope))
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewEngineValidation(t *testing.T) {
	_, err := NewEngine(Config{BaseCurrency: "INR", Markets: []string{"BAD"}}, &recorder{}, nil)
	require.Error(t, err)
	_, err = NewEngine(Config{Markets: []string{testMarket}}, &recorder{}, nil)
	require.Error(t, err)
	_, err = NewEngine(Config{BaseCurrency: "INR"}, nil, nil)
	require.Error(t, err)
}

// requireLedgerSane checks no balance is negative
func requireLedgerSane(t *testing.T, l *ledger.Ledger) {
	t.Helper()
	for _, entry := range l.Snapshot() {
		for asset, bal := range entry.Balances {
			require.False(t, bal.Available.IsNegative(), "%s %s available negative", entry.UserID, asset)
			require.False(t, bal.Locked.IsNegative(), "%s %s locked negative", entry.UserID, asset)
		}
	}
}
