package spot

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/spotmatch/pkg/app/core/orderbook"
)

func (e *Engine) publishFailed(sink string, err error) {
	e.log.Warnw("publish_failed", "sink", sink, "err", err)
	e.metrics.PublishFailures.WithLabelValues(sink).Inc()
}

func (e *Engine) pushEvent(ctx context.Context, ev Event) {
	if err := e.pub.PushEvent(ctx, ev); err != nil {
		e.publishFailed("event", err)
	}
}

func (e *Engine) publishStream(ctx context.Context, msg StreamMessage) {
	if err := e.pub.PublishStream(ctx, msg); err != nil {
		e.publishFailed("stream", err)
	}
}

// publishTradeRecords emits one TRADE_ADDED per fill. isMaker reports
// whether the buyer was the maker, which is the case when the taker sold.
func (e *Engine) publishTradeRecords(ctx context.Context, book *orderbook.OrderBook, takerSide orderbook.Side, fills []orderbook.Fill) {
	ts := e.clock.Now().UnixMilli()
	for _, f := range fills {
		e.pushEvent(ctx, Event{Type: TradeAdded, Data: TradeAddedData{
			Market:        book.Market(),
			ID:            strconv.FormatInt(f.TradeID, 10),
			IsMaker:       takerSide == orderbook.Sell,
			Price:         f.Price,
			Quantity:      f.Qty,
			QuoteQuantity: f.Qty.Mul(f.Price),
			Timestamp:     ts,
		}})
	}
}

// publishOrderUpdates emits the taker's full update followed by one
// incremental update per maker fill
func (e *Engine) publishOrderUpdates(ctx context.Context, book *orderbook.OrderBook, res orderbook.Result) {
	o := res.Order
	price, quantity := o.Price, o.Quantity
	e.pushEvent(ctx, Event{Type: OrderUpdate, Data: OrderUpdateData{
		OrderID:     o.ID,
		ExecutedQty: res.ExecutedQty,
		Market:      book.Market(),
		Price:       &price,
		Quantity:    &quantity,
		Side:        o.Side,
	}})
	for _, f := range res.Fills {
		e.pushEvent(ctx, Event{Type: OrderUpdate, Data: OrderUpdateData{
			OrderID:     f.MakerOrderID,
			ExecutedQty: f.Qty,
		}})
	}
}

// publishDepthAfterMatch sends the counter-side levels the fills touched
// and the taker's own level if its remainder rests. Levels that emptied are
// sent with quantity 0.
func (e *Engine) publishDepthAfterMatch(ctx context.Context, book *orderbook.OrderBook, res orderbook.Result) {
	o := res.Order
	counter := levels(book, o.Side.Opposite(), fillPrices(res.Fills))
	var own [][2]string
	if res.Resting {
		own = levels(book, o.Side, []decimal.Decimal{o.Price})
	}
	if len(counter) == 0 && len(own) == 0 {
		return
	}

	update := DepthUpdate{Event: "depth", Asks: counter, Bids: own}
	if o.Side == orderbook.Sell {
		update.Asks, update.Bids = own, counter
	}
	e.publishDepth(ctx, book, update)
}

// publishLevel sends a single-level update for one side
func (e *Engine) publishLevel(ctx context.Context, book *orderbook.OrderBook, side orderbook.Side, price decimal.Decimal) {
	lvl := levels(book, side, []decimal.Decimal{price})
	update := DepthUpdate{Event: "depth", Asks: [][2]string{}, Bids: [][2]string{}}
	if side == orderbook.Buy {
		update.Bids = lvl
	} else {
		update.Asks = lvl
	}
	e.publishDepth(ctx, book, update)
}

func (e *Engine) publishDepth(ctx context.Context, book *orderbook.OrderBook, update DepthUpdate) {
	if update.Asks == nil {
		update.Asks = [][2]string{}
	}
	if update.Bids == nil {
		update.Bids = [][2]string{}
	}
	e.publishStream(ctx, StreamMessage{Stream: DepthStream(book.Market()), Data: update})
}

// publishTrades sends one trade@MARKET message per fill
func (e *Engine) publishTrades(ctx context.Context, book *orderbook.OrderBook, takerSide orderbook.Side, fills []orderbook.Fill) {
	for _, f := range fills {
		e.publishStream(ctx, StreamMessage{Stream: TradeStream(book.Market()), Data: TradeUpdate{
			Event:      "trade",
			TradeID:    f.TradeID,
			BuyerMaker: takerSide == orderbook.Sell,
			Price:      f.Price.String(),
			Quantity:   f.Qty.String(),
			Symbol:     book.Market(),
		}})
	}
}

// fillPrices returns the distinct fill prices in first-seen order
func fillPrices(fills []orderbook.Fill) []decimal.Decimal {
	var out []decimal.Decimal
	for _, f := range fills {
		seen := false
		for _, p := range out {
			if p.Equal(f.Price) {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, f.Price)
		}
	}
	return out
}

func levels(book *orderbook.OrderBook, side orderbook.Side, prices []decimal.Decimal) [][2]string {
	out := make([][2]string, 0, len(prices))
	for _, p := range prices {
		out = append(out, [2]string{p.String(), book.Level(side, p).String()})
	}
	return out
}
