package orderbook

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrInvalidOrder = errors.New("invalid order")

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Opposite returns the side an order of this side matches against
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Order is a limit order. Filled grows as the order is matched and never
// exceeds Quantity.
type Order struct {
	ID       string          `json:"orderId"`
	UserID   string          `json:"userId"`
	Side     Side            `json:"side"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Filled   decimal.Decimal `json:"filled"`
}

// Remaining returns the unfilled quantity
func (o Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.Filled)
}

// Validate checks the order can be placed on a book
func (o Order) Validate() error {
	switch {
	case o.ID == "":
		return fmt.Errorf("%w: missing order id", ErrInvalidOrder)
	case !o.Side.Valid():
		return fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, o.Side)
	case !o.Price.IsPositive():
		return fmt.Errorf("%w: price must be positive, got %s", ErrInvalidOrder, o.Price)
	case !o.Quantity.IsPositive():
		return fmt.Errorf("%w: quantity must be positive, got %s", ErrInvalidOrder, o.Quantity)
	case o.Filled.IsNegative() || o.Filled.GreaterThan(o.Quantity):
		return fmt.Errorf("%w: filled %s outside [0, %s]", ErrInvalidOrder, o.Filled, o.Quantity)
	}
	return nil
}

// Fill is one match step between the incoming order and a resting maker.
// Price is always the maker's price.
type Fill struct {
	Price        decimal.Decimal `json:"price"`
	Qty          decimal.Decimal `json:"qty"`
	TradeID      int64           `json:"tradeId"`
	OtherUserID  string          `json:"otherUserId"`
	MakerOrderID string          `json:"makerOrderId"`
}

// Result is the outcome of AddOrder. Order carries the taker's state after
// matching; Resting reports whether its remainder was added to the book.
type Result struct {
	ExecutedQty decimal.Decimal
	Fills       []Fill
	Order       Order
	Resting     bool
}

// PriceLevel is one aggregated depth entry
type PriceLevel struct {
	Price decimal.Decimal
	Qty   decimal.Decimal
}

// Depth holds [price, qty] string pairs. Bids are sorted high to low, asks
// low to high.
type Depth struct {
	Bids [][2]string `json:"bids"`
	Asks [][2]string `json:"asks"`
}
