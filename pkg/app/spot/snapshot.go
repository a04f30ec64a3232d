package spot

import (
	"fmt"
	"sort"

	"github.com/uhyunpark/spotmatch/pkg/app/core/ledger"
	"github.com/uhyunpark/spotmatch/pkg/app/core/market"
	"github.com/uhyunpark/spotmatch/pkg/app/core/orderbook"
)

// Snapshot takes a point-in-time copy of every book and the balance table.
// It holds the engine lock, so it never interleaves with a command.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	symbols := make([]string, 0, len(e.books))
	for sym := range e.books {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	snap := Snapshot{
		Orderbooks: make([]orderbook.Snapshot, 0, len(symbols)),
		Balances:   e.ledger.Snapshot(),
	}
	for _, sym := range symbols {
		snap.Orderbooks = append(snap.Orderbooks, e.books[sym].Snapshot())
	}
	return snap
}

// Restore replaces engine state with snap. Markets present in the snapshot
// but not configured are added; configured markets missing from it start
// empty. Books saved without a quote asset are quoted in the base currency.
// On error the engine is left unchanged.
func (e *Engine) Restore(snap Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	books := make(map[string]*orderbook.OrderBook, len(e.books))
	for sym, ob := range e.books {
		books[sym] = orderbook.NewOrderBook(ob.BaseAsset(), ob.QuoteAsset())
	}
	var added []*market.Market
	for _, bs := range snap.Orderbooks {
		if bs.QuoteAsset == "" {
			bs.QuoteAsset = e.baseCurrency
		}
		ob, err := orderbook.Restore(bs)
		if err != nil {
			return fmt.Errorf("restore orderbook %s_%s: %w", bs.BaseAsset, bs.QuoteAsset, err)
		}
		if _, ok := books[ob.Market()]; !ok {
			added = append(added, market.New(ob.BaseAsset(), ob.QuoteAsset()))
		}
		books[ob.Market()] = ob
	}

	assets := e.ledger.Assets()
	for _, m := range added {
		assets = append(assets, m.BaseAsset, m.QuoteAsset)
	}
	l := ledger.New(assets...)
	if err := l.Restore(snap.Balances); err != nil {
		return fmt.Errorf("restore balances: %w", err)
	}

	for _, m := range added {
		if err := e.markets.RegisterMarket(m); err != nil {
			return err
		}
	}
	e.books = books
	e.ledger = l
	for sym, ob := range books {
		e.metrics.RestingOrders.WithLabelValues(sym).Set(float64(ob.Len()))
	}
	e.log.Infow("snapshot_restored", "markets", len(books), "users", l.Users())
	return nil
}
