package orderbook

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Snapshot is the persisted form of a book. Bids and Asks are in arrival
// order so a restored book matches exactly as the saved one would.
type Snapshot struct {
	BaseAsset    string          `json:"baseAsset"`
	QuoteAsset   string          `json:"quoteAsset"`
	Bids         []Order         `json:"bids"`
	Asks         []Order         `json:"asks"`
	LastTradeID  int64           `json:"lastTradeId"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`
}

// Snapshot exports the full book state
func (ob *OrderBook) Snapshot() Snapshot {
	entries := make([]*entry, 0, len(ob.orders))
	for _, e := range ob.orders {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	snap := Snapshot{
		BaseAsset:    ob.baseAsset,
		QuoteAsset:   ob.quoteAsset,
		Bids:         []Order{},
		Asks:         []Order{},
		LastTradeID:  ob.lastTradeID,
		CurrentPrice: ob.currentPrice,
	}
	for _, e := range entries {
		if e.order.Side == Buy {
			snap.Bids = append(snap.Bids, e.order)
		} else {
			snap.Asks = append(snap.Asks, e.order)
		}
	}
	return snap
}

// Restore rebuilds a book from a snapshot. Orders are rested without
// matching; a snapshot holding a crossed book is restored as is.
func Restore(snap Snapshot) (*OrderBook, error) {
	if snap.BaseAsset == "" || snap.QuoteAsset == "" {
		return nil, fmt.Errorf("snapshot missing market assets: base=%q quote=%q", snap.BaseAsset, snap.QuoteAsset)
	}
	ob := NewOrderBook(snap.BaseAsset, snap.QuoteAsset)
	ob.lastTradeID = snap.LastTradeID
	ob.currentPrice = snap.CurrentPrice

	load := func(orders []Order, side Side) error {
		for _, o := range orders {
			if o.Side != side {
				return fmt.Errorf("order %s: %w: %s order in %s list", o.ID, ErrInvalidOrder, o.Side, side)
			}
			if err := o.Validate(); err != nil {
				return fmt.Errorf("order %s: %w", o.ID, err)
			}
			if _, dup := ob.orders[o.ID]; dup {
				return fmt.Errorf("order %s: %w: duplicate id", o.ID, ErrInvalidOrder)
			}
			if !o.Remaining().IsPositive() {
				continue
			}
			ob.rest(o)
		}
		return nil
	}
	if err := load(snap.Bids, Buy); err != nil {
		return nil, err
	}
	if err := load(snap.Asks, Sell); err != nil {
		return nil, err
	}
	return ob, nil
}
