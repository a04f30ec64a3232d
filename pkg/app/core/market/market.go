package market

import (
	"fmt"
	"strings"
)

// Delimiter separates base and quote in a market symbol, e.g. TATA_INR
const Delimiter = "_"

// Market is a spot trading pair
type Market struct {
	Symbol     string `json:"symbol"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
}

// New builds a market from its two assets
func New(baseAsset, quoteAsset string) *Market {
	return &Market{
		Symbol:     baseAsset + Delimiter + quoteAsset,
		BaseAsset:  baseAsset,
		QuoteAsset: quoteAsset,
	}
}

// Parse splits a BASE_QUOTE symbol into its assets
func Parse(symbol string) (*Market, error) {
	base, quote, ok := strings.Cut(symbol, Delimiter)
	if !ok || base == "" || quote == "" || strings.Contains(quote, Delimiter) {
		return nil, fmt.Errorf("invalid market symbol %q: want BASE%sQUOTE", symbol, Delimiter)
	}
	return New(base, quote), nil
}
