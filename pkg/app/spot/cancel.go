package spot

import (
	"context"
	"fmt"

	"github.com/uhyunpark/spotmatch/pkg/app/core/orderbook"
)

// handleCancel replies only when an order was actually removed. Misses are
// logged and produce no reply.
func (e *Engine) handleCancel(ctx context.Context, cmd Command) (Reply, bool, error) {
	var req CancelOrderRequest
	if err := cmd.decode(&req); err != nil {
		return Reply{}, false, err
	}
	o, err := e.cancelOrder(ctx, req)
	if err != nil {
		return Reply{}, false, err
	}
	return Reply{
		Type: OrderCancelled,
		Payload: OrderCancelledPayload{
			OrderID:      o.ID,
			ExecutedQty:  o.Filled,
			RemainingQty: o.Remaining(),
		},
	}, true, nil
}

// cancelOrder removes a resting order and releases the funds still locked
// for its unfilled part: (quantity-filled)*price of quote for a buy,
// quantity-filled of base for a sell.
func (e *Engine) cancelOrder(ctx context.Context, req CancelOrderRequest) (orderbook.Order, error) {
	book, err := e.book(req.Market)
	if err != nil {
		e.log.Infow("cancel_miss", "market", req.Market, "order_id", req.OrderID, "reason", "unknown market")
		return orderbook.Order{}, err
	}
	o, ok := book.Get(req.OrderID)
	if !ok {
		e.log.Infow("cancel_miss", "market", req.Market, "order_id", req.OrderID)
		return orderbook.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, req.OrderID)
	}

	asset, amount := book.QuoteAsset(), o.Remaining().Mul(o.Price)
	if o.Side == orderbook.Sell {
		asset, amount = book.BaseAsset(), o.Remaining()
	}
	if err := e.ledger.Unlock(o.UserID, asset, amount); err != nil {
		return orderbook.Order{}, fmt.Errorf("cancel %s: %w", o.ID, err)
	}
	book.Cancel(o.ID)

	e.metrics.RestingOrders.WithLabelValues(book.Market()).Set(float64(book.Len()))
	e.log.Infow("order_cancelled",
		"market", book.Market(),
		"order_id", o.ID,
		"user", o.UserID,
		"unlocked", amount,
		"asset", asset,
	)

	price, quantity := o.Price, o.Quantity
	e.pushEvent(ctx, Event{Type: OrderUpdate, Data: OrderUpdateData{
		OrderID:     o.ID,
		ExecutedQty: o.Filled,
		Market:      book.Market(),
		Price:       &price,
		Quantity:    &quantity,
		Side:        o.Side,
		Status:      "cancelled",
	}})
	e.publishLevel(ctx, book, o.Side, o.Price)
	return o, nil
}
