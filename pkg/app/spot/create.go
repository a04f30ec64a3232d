package spot

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/spotmatch/pkg/app/core/ledger"
	"github.com/uhyunpark/spotmatch/pkg/app/core/orderbook"
)

func (e *Engine) handleCreate(ctx context.Context, cmd Command) (Reply, error) {
	var req CreateOrderRequest
	if err := cmd.decode(&req); err != nil {
		return rejectedOrder(), fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	res, err := e.createOrder(ctx, req)
	if err != nil {
		return rejectedOrder(), err
	}
	fills := res.Fills
	if fills == nil {
		fills = []orderbook.Fill{}
	}
	return Reply{
		Type: OrderPlaced,
		Payload: OrderPlacedPayload{
			OrderID:     res.Order.ID,
			ExecutedQty: res.ExecutedQty,
			Fills:       fills,
		},
	}, nil
}

// rejectedOrder is the reply for a create that failed before execution: it
// reads as a cancellation with nothing executed.
func rejectedOrder() Reply {
	return Reply{
		Type: OrderCancelled,
		Payload: OrderCancelledPayload{
			OrderID:      "",
			ExecutedQty:  decimal.Zero,
			RemainingQty: decimal.Zero,
		},
	}
}

// createOrder locks the taker's funds, matches, settles every fill and
// publishes the results. Either the whole order executes with its
// settlement or nothing changes.
func (e *Engine) createOrder(ctx context.Context, req CreateOrderRequest) (orderbook.Result, error) {
	book, err := e.book(req.Market)
	if err != nil {
		return orderbook.Result{}, err
	}
	baseAsset, quoteAsset := book.BaseAsset(), book.QuoteAsset()

	o := orderbook.Order{
		ID:       e.newID(),
		UserID:   req.UserID,
		Side:     req.Side,
		Price:    req.Price,
		Quantity: req.Quantity,
		Filled:   decimal.Zero,
	}
	if req.UserID == "" {
		return orderbook.Result{}, fmt.Errorf("%w: missing user id", ErrInvalidOrder)
	}
	if err := o.Validate(); err != nil {
		return orderbook.Result{}, err
	}

	lockAsset, lockAmount := quoteAsset, o.Price.Mul(o.Quantity)
	if o.Side == orderbook.Sell {
		lockAsset, lockAmount = baseAsset, o.Quantity
	}
	if err := e.ledger.Lock(o.UserID, lockAsset, lockAmount); err != nil {
		return orderbook.Result{}, fmt.Errorf("lock %s for order: %w", lockAsset, err)
	}

	// Validate settlement against a dry run before the book is touched so a
	// failure can be unwound by releasing the lock alone.
	preview := book.Preview(o)
	plan, err := e.ledger.Plan(settlements(o, baseAsset, quoteAsset, preview)...)
	if err != nil {
		if uerr := e.ledger.Unlock(o.UserID, lockAsset, lockAmount); uerr != nil {
			e.fault("unlock_after_abort", uerr)
		}
		return orderbook.Result{}, fmt.Errorf("settle order %s: %w", o.ID, err)
	}

	res := book.AddOrder(o)
	if err := plan.Commit(); err != nil {
		e.fault("settlement_commit", fmt.Errorf("order %s: %w", o.ID, err))
	}

	e.metrics.Fills.WithLabelValues(book.Market()).Add(float64(len(res.Fills)))
	e.metrics.RestingOrders.WithLabelValues(book.Market()).Set(float64(book.Len()))
	e.log.Infow("order_placed",
		"market", book.Market(),
		"order_id", o.ID,
		"user", o.UserID,
		"side", o.Side,
		"price", o.Price,
		"qty", o.Quantity,
		"executed", res.ExecutedQty,
		"fills", len(res.Fills),
	)

	e.publishTradeRecords(ctx, book, o.Side, res.Fills)
	e.publishOrderUpdates(ctx, book, res)
	e.publishDepthAfterMatch(ctx, book, res)
	e.publishTrades(ctx, book, o.Side, res.Fills)
	return res, nil
}

// settlements converts fills into ledger trades. A buy taker locked quote at
// its own limit; a buy maker locked at its resting price, which is the fill
// price.
func settlements(taker orderbook.Order, baseAsset, quoteAsset string, fills []orderbook.Fill) []ledger.Trade {
	trades := make([]ledger.Trade, 0, len(fills))
	for _, f := range fills {
		t := ledger.Trade{
			BaseAsset:  baseAsset,
			QuoteAsset: quoteAsset,
			Qty:        f.Qty,
			Price:      f.Price,
		}
		if taker.Side == orderbook.Buy {
			t.Buyer, t.Seller = taker.UserID, f.OtherUserID
			t.LockPrice = taker.Price
		} else {
			t.Buyer, t.Seller = f.OtherUserID, taker.UserID
			t.LockPrice = f.Price
		}
		trades = append(trades, t)
	}
	return trades
}
