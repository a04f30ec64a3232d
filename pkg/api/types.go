package api

import "github.com/shopspring/decimal"

// API response types for REST endpoints and WebSocket messages

// ==============================
// REST Response Types
// ==============================

// MarketInfo represents a traded market
type MarketInfo struct {
	Symbol     string `json:"symbol"`     // e.g., "TATA_INR"
	BaseAsset  string `json:"baseAsset"`  // e.g., "TATA"
	QuoteAsset string `json:"quoteAsset"` // e.g., "INR"
}

// OrderbookSnapshot represents current aggregated depth
type OrderbookSnapshot struct {
	Symbol    string      `json:"symbol"`
	Bids      [][2]string `json:"bids"`      // [price, quantity], high to low
	Asks      [][2]string `json:"asks"`      // [price, quantity], low to high
	Timestamp int64       `json:"timestamp"` // Unix milliseconds
}

// BalanceInfo is one asset's balance for a user
type BalanceInfo struct {
	Asset     string          `json:"asset"`
	Available decimal.Decimal `json:"available"`
	Locked    decimal.Decimal `json:"locked"`
}

// OrderInfo represents a resting order
type OrderInfo struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"` // "buy" or "sell"
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Filled    decimal.Decimal `json:"filled"`
	Remaining decimal.Decimal `json:"remaining"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by client to subscribe to streams
type WSSubscribeRequest struct {
	Op      string   `json:"op"`      // "subscribe" or "unsubscribe"
	Streams []string `json:"streams"` // e.g., ["depth@TATA_INR", "trade@TATA_INR"]
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
