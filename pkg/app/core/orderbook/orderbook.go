package orderbook

import (
	"container/heap"
	"container/list"
	"slices"
	"sort"

	"github.com/shopspring/decimal"
)

// entry is a resting order plus its arrival sequence
type entry struct {
	order Order
	seq   uint64
	elem  *list.Element
	lvl   *level
}

// level is the FIFO queue of resting orders at one price
type level struct {
	price  decimal.Decimal
	orders *list.List      // *entry, arrival order
	total  decimal.Decimal // sum of remaining qty, the depth aggregate
}

// bookSide keeps price levels sorted low to high
type bookSide struct {
	levels []*level
}

func (s *bookSide) find(p decimal.Decimal) (int, bool) {
	i := sort.Search(len(s.levels), func(i int) bool { return s.levels[i].price.GreaterThanOrEqual(p) })
	return i, i < len(s.levels) && s.levels[i].price.Equal(p)
}

func (s *bookSide) push(e *entry) {
	i, ok := s.find(e.order.Price)
	if !ok {
		lvl := &level{price: e.order.Price, orders: list.New(), total: decimal.Zero}
		s.levels = slices.Insert(s.levels, i, lvl)
	}
	lvl := s.levels[i]
	e.lvl = lvl
	e.elem = lvl.orders.PushBack(e)
	lvl.total = lvl.total.Add(e.order.Remaining())
}

// remove drops e from its level. rem is the quantity e still contributed
// to the aggregate. Levels that become empty or non-positive are removed.
func (s *bookSide) remove(e *entry, rem decimal.Decimal) {
	lvl := e.lvl
	lvl.orders.Remove(e.elem)
	lvl.total = lvl.total.Sub(rem)
	s.prune(lvl)
}

func (s *bookSide) prune(lvl *level) {
	if lvl.orders.Len() > 0 && lvl.total.IsPositive() {
		return
	}
	if i, ok := s.find(lvl.price); ok {
		s.levels = slices.Delete(s.levels, i, i+1)
	}
}

// OrderBook is a single market's book. Orders are held in an arena keyed by
// id; each side indexes them by price level.
//
// OrderBook is not safe for concurrent use. The engine serializes access.
type OrderBook struct {
	baseAsset  string
	quoteAsset string

	bids *bookSide
	asks *bookSide

	// Order index for O(1) cancellation
	orders map[string]*entry

	seq          uint64
	lastTradeID  int64
	currentPrice decimal.Decimal // most recent fill price
}

func NewOrderBook(baseAsset, quoteAsset string) *OrderBook {
	return &OrderBook{
		baseAsset:    baseAsset,
		quoteAsset:   quoteAsset,
		bids:         &bookSide{},
		asks:         &bookSide{},
		orders:       make(map[string]*entry),
		currentPrice: decimal.Zero,
	}
}

// Market returns the BASE_QUOTE ticker
func (ob *OrderBook) Market() string {
	return ob.baseAsset + "_" + ob.quoteAsset
}

func (ob *OrderBook) BaseAsset() string  { return ob.baseAsset }
func (ob *OrderBook) QuoteAsset() string { return ob.quoteAsset }

func (ob *OrderBook) side(s Side) *bookSide {
	if s == Buy {
		return ob.bids
	}
	return ob.asks
}

// crossing returns the counter-side levels an order at o.Price may trade
// with: asks priced at or below a bid, or bids priced at or above an ask.
func (ob *OrderBook) crossing(o Order) []*level {
	if o.Side == Buy {
		n := sort.Search(len(ob.asks.levels), func(i int) bool { return ob.asks.levels[i].price.GreaterThan(o.Price) })
		return ob.asks.levels[:n]
	}
	i := sort.Search(len(ob.bids.levels), func(i int) bool { return ob.bids.levels[i].price.GreaterThanOrEqual(o.Price) })
	return ob.bids.levels[i:]
}

type match struct {
	maker *entry
	qty   decimal.Decimal
}

// walk plans the matches for o without touching the book. Every eligible
// counter-order is consumed strictly in arrival order regardless of which
// crossing level it rests at. No maker is visited twice: a maker is either
// fully consumed or it exhausts the incoming order.
func (ob *OrderBook) walk(o Order) []match {
	remaining := o.Remaining()
	levels := ob.crossing(o)

	h := make(seqHeap, 0, len(levels))
	for _, lvl := range levels {
		if front := lvl.orders.Front(); front != nil {
			h = append(h, front)
		}
	}
	heap.Init(&h)

	var matches []match
	for remaining.IsPositive() && h.Len() > 0 {
		el := heap.Pop(&h).(*list.Element)
		maker := el.Value.(*entry)
		qty := decimal.Min(remaining, maker.order.Remaining())
		matches = append(matches, match{maker: maker, qty: qty})
		remaining = remaining.Sub(qty)
		if next := el.Next(); next != nil {
			heap.Push(&h, next)
		}
	}
	return matches
}

func (ob *OrderBook) fills(matches []match) []Fill {
	fills := make([]Fill, 0, len(matches))
	for i, m := range matches {
		fills = append(fills, Fill{
			Price:        m.maker.order.Price,
			Qty:          m.qty,
			TradeID:      ob.lastTradeID + int64(i) + 1,
			OtherUserID:  m.maker.order.UserID,
			MakerOrderID: m.maker.order.ID,
		})
	}
	return fills
}

// Preview returns the fills AddOrder would produce for o, oldest match
// first, without changing the book.
func (ob *OrderBook) Preview(o Order) []Fill {
	return ob.fills(ob.walk(o))
}

// AddOrder matches o against the opposite side and rests any remainder at
// the back of its own side. The caller must have validated o.
func (ob *OrderBook) AddOrder(o Order) Result {
	matches := ob.walk(o)
	fills := ob.fills(matches)

	executed := decimal.Zero
	for _, m := range matches {
		executed = executed.Add(m.qty)
		ob.consume(m.maker, m.qty)
	}
	if n := len(fills); n > 0 {
		ob.lastTradeID = fills[n-1].TradeID
		ob.currentPrice = fills[n-1].Price
	}

	o.Filled = o.Filled.Add(executed)
	res := Result{ExecutedQty: executed, Fills: fills, Order: o}
	if o.Remaining().IsPositive() {
		ob.rest(o)
		res.Resting = true
	}
	return res
}

func (ob *OrderBook) consume(e *entry, qty decimal.Decimal) {
	e.order.Filled = e.order.Filled.Add(qty)
	s := ob.side(e.order.Side)
	if e.order.Remaining().IsPositive() {
		e.lvl.total = e.lvl.total.Sub(qty)
		s.prune(e.lvl)
		return
	}
	s.remove(e, qty)
	delete(ob.orders, e.order.ID)
}

func (ob *OrderBook) rest(o Order) {
	ob.seq++
	e := &entry{order: o, seq: ob.seq}
	ob.side(o.Side).push(e)
	ob.orders[o.ID] = e
}

// Cancel removes a resting order by id and returns it as it stood, so the
// caller can release funds for the unfilled part and refresh the level.
// An unknown id is a no-op.
func (ob *OrderBook) Cancel(id string) (Order, bool) {
	e, ok := ob.orders[id]
	if !ok {
		return Order{}, false
	}
	ob.side(e.order.Side).remove(e, e.order.Remaining())
	delete(ob.orders, id)
	return e.order, true
}

// Get returns a resting order by id
func (ob *OrderBook) Get(id string) (Order, bool) {
	e, ok := ob.orders[id]
	if !ok {
		return Order{}, false
	}
	return e.order, true
}

// Level returns the aggregate resting quantity at price on side s, zero if
// the level does not exist.
func (ob *OrderBook) Level(s Side, price decimal.Decimal) decimal.Decimal {
	bs := ob.side(s)
	if i, ok := bs.find(price); ok {
		return bs.levels[i].total
	}
	return decimal.Zero
}

// BidLevels returns bid levels sorted high to low (best bid first)
func (ob *OrderBook) BidLevels() []PriceLevel {
	levels := make([]PriceLevel, 0, len(ob.bids.levels))
	for i := len(ob.bids.levels) - 1; i >= 0; i-- {
		lvl := ob.bids.levels[i]
		levels = append(levels, PriceLevel{Price: lvl.price, Qty: lvl.total})
	}
	return levels
}

// AskLevels returns ask levels sorted low to high (best ask first)
func (ob *OrderBook) AskLevels() []PriceLevel {
	levels := make([]PriceLevel, 0, len(ob.asks.levels))
	for _, lvl := range ob.asks.levels {
		levels = append(levels, PriceLevel{Price: lvl.price, Qty: lvl.total})
	}
	return levels
}

// Depth returns the aggregate book in wire form
func (ob *OrderBook) Depth() Depth {
	return Depth{Bids: pairs(ob.BidLevels()), Asks: pairs(ob.AskLevels())}
}

func pairs(levels []PriceLevel) [][2]string {
	out := make([][2]string, 0, len(levels))
	for _, l := range levels {
		out = append(out, [2]string{l.Price.String(), l.Qty.String()})
	}
	return out
}

// OpenOrders returns a user's resting orders on both sides in arrival order
func (ob *OrderBook) OpenOrders(userID string) []Order {
	var entries []*entry
	for _, e := range ob.orders {
		if e.order.UserID == userID {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]Order, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.order)
	}
	return out
}

// BestBid returns the highest bid price
func (ob *OrderBook) BestBid() (decimal.Decimal, bool) {
	if n := len(ob.bids.levels); n > 0 {
		return ob.bids.levels[n-1].price, true
	}
	return decimal.Zero, false
}

// BestAsk returns the lowest ask price
func (ob *OrderBook) BestAsk() (decimal.Decimal, bool) {
	if len(ob.asks.levels) > 0 {
		return ob.asks.levels[0].price, true
	}
	return decimal.Zero, false
}

// LastTradeID returns the id of the most recent fill, 0 before any trade
func (ob *OrderBook) LastTradeID() int64 { return ob.lastTradeID }

// CurrentPrice returns the price of the most recent fill
// Returns 0 if no trades have occurred
func (ob *OrderBook) CurrentPrice() decimal.Decimal { return ob.currentPrice }

// Len returns the number of resting orders
func (ob *OrderBook) Len() int { return len(ob.orders) }
