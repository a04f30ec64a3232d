package spot

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/spotmatch/pkg/app/core/ledger"
	"github.com/uhyunpark/spotmatch/pkg/app/core/orderbook"
)

// Command types
const (
	CreateOrder   = "CREATE_ORDER"
	CancelOrder   = "CANCEL_ORDER"
	GetOpenOrders = "GET_OPEN_ORDERS"
	GetBalance    = "GET_BALANCE"
	OnRamp        = "ON_RAMP"
	GetDepth      = "GET_DEPTH"
	GetTicker     = "GET_TICKER"
	GetTrades     = "GET_TRADES"
)

// Reply types
const (
	OrderPlaced    = "ORDER_PLACED"
	OrderCancelled = "ORDER_CANCELLED"
	OpenOrders     = "OPEN_ORDERS"
	Depth          = "DEPTH"
	Balance        = "BALANCE"
	Ticker         = "TICKER"
)

// Event types pushed to the persistence queue
const (
	OrderUpdate = "ORDER_UPDATE"
	TradeAdded  = "TRADE_ADDED"
)

// Command is one request to the engine. Data holds the payload for Type.
type Command struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewCommand encodes payload as the command's data
func NewCommand(typ string, payload interface{}) (Command, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Command{}, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return Command{Type: typ, Data: data}, nil
}

func (c Command) decode(v interface{}) error {
	if len(c.Data) == 0 {
		return fmt.Errorf("%s: empty payload", c.Type)
	}
	if err := json.Unmarshal(c.Data, v); err != nil {
		return fmt.Errorf("%s: decode payload: %w", c.Type, err)
	}
	return nil
}

// Envelope is a command plus the caller's correlation token. Replies are
// routed back on ClientID.
type Envelope struct {
	ClientID string  `json:"clientId"`
	Message  Command `json:"message"`
}

type CreateOrderRequest struct {
	Market   string          `json:"market"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Side     orderbook.Side  `json:"side"`
	UserID   string          `json:"userId"`
}

type CancelOrderRequest struct {
	OrderID string `json:"orderId"`
	Market  string `json:"market"`
}

type OpenOrdersRequest struct {
	UserID string `json:"userId"`
	Market string `json:"market"`
}

type BalanceRequest struct {
	UserID string `json:"userId"`
}

// OnRampRequest credits Amount to the user. Asset defaults to the engine's
// base currency.
type OnRampRequest struct {
	UserID string          `json:"userId"`
	Amount decimal.Decimal `json:"amount"`
	TxnID  string          `json:"txnId"`
	Asset  string          `json:"asset,omitempty"`
}

// MarketRequest is the payload of GET_DEPTH, GET_TICKER and GET_TRADES
type MarketRequest struct {
	Market string `json:"market"`
}

// Reply is the typed result sent back to the caller
type Reply struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type OrderPlacedPayload struct {
	OrderID     string           `json:"orderId"`
	ExecutedQty decimal.Decimal  `json:"executedQty"`
	Fills       []orderbook.Fill `json:"fills"`
}

type OrderCancelledPayload struct {
	OrderID      string          `json:"orderId"`
	ExecutedQty  decimal.Decimal `json:"executedQty"`
	RemainingQty decimal.Decimal `json:"remainingQty"`
}

type BalancePayload struct {
	UserID   string          `json:"userId"`
	Balances ledger.Balances `json:"balances"`
}

type TickerPayload struct {
	Market      string           `json:"market"`
	LastPrice   decimal.Decimal  `json:"lastPrice"`
	BestBid     *decimal.Decimal `json:"bestBid,omitempty"`
	BestAsk     *decimal.Decimal `json:"bestAsk,omitempty"`
	LastTradeID int64            `json:"lastTradeId"`
}

// Event is a record for the persistence collaborator
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// OrderUpdateData describes an order's new execution state. Maker updates
// carry only OrderID and the quantity of that one fill.
type OrderUpdateData struct {
	OrderID     string           `json:"orderId"`
	ExecutedQty decimal.Decimal  `json:"executedQty"`
	Market      string           `json:"market,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Quantity    *decimal.Decimal `json:"quantity,omitempty"`
	Side        orderbook.Side   `json:"side,omitempty"`
	Status      string           `json:"status,omitempty"`
}

type TradeAddedData struct {
	Market        string          `json:"market"`
	ID            string          `json:"id"`
	IsMaker       bool            `json:"isMaker"` // buyer was the maker
	Price         decimal.Decimal `json:"price"`
	Quantity      decimal.Decimal `json:"quantity"`
	QuoteQuantity decimal.Decimal `json:"quoteQuantity"`
	Timestamp     int64           `json:"timestamp"` // unix millis
}

// StreamMessage is published on depth@MARKET and trade@MARKET
type StreamMessage struct {
	Stream string      `json:"stream"`
	Data   interface{} `json:"data"`
}

type DepthUpdate struct {
	Event string      `json:"e"`
	Asks  [][2]string `json:"a"`
	Bids  [][2]string `json:"b"`
}

type TradeUpdate struct {
	Event      string `json:"e"`
	TradeID    int64  `json:"t"`
	BuyerMaker bool   `json:"m"`
	Price      string `json:"p"`
	Quantity   string `json:"q"`
	Symbol     string `json:"s"`
}

// DepthStream and TradeStream name a market's streams
func DepthStream(market string) string { return "depth@" + market }
func TradeStream(market string) string { return "trade@" + market }

// Snapshot is the engine's full persisted state
type Snapshot struct {
	Orderbooks []orderbook.Snapshot `json:"orderbooks"`
	Balances   []ledger.Entry       `json:"balances"`
}
