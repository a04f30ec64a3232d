package market

import (
	"fmt"
	"sort"
	"sync"
)

// MarketRegistry manages multiple markets in a thread-safe manner
type MarketRegistry struct {
	mu      sync.RWMutex
	markets map[string]*Market // symbol -> market
}

// NewMarketRegistry creates an empty market registry
func NewMarketRegistry() *MarketRegistry {
	return &MarketRegistry{
		markets: make(map[string]*Market),
	}
}

// RegisterMarket adds a new market to the registry
// Returns error if market with same symbol already exists
func (mr *MarketRegistry) RegisterMarket(m *Market) error {
	if m == nil {
		return fmt.Errorf("cannot register nil market")
	}

	mr.mu.Lock()
	defer mr.mu.Unlock()

	if _, exists := mr.markets[m.Symbol]; exists {
		return fmt.Errorf("market %s already registered", m.Symbol)
	}

	mr.markets[m.Symbol] = m
	return nil
}

// GetMarket retrieves a market by symbol
func (mr *MarketRegistry) GetMarket(symbol string) (*Market, bool) {
	mr.mu.RLock()
	defer mr.mu.RUnlock()

	m, exists := mr.markets[symbol]
	return m, exists
}

// ListMarkets returns all registered markets sorted by symbol
func (mr *MarketRegistry) ListMarkets() []*Market {
	mr.mu.RLock()
	defer mr.mu.RUnlock()

	markets := make([]*Market, 0, len(mr.markets))
	for _, m := range mr.markets {
		markets = append(markets, m)
	}
	sort.Slice(markets, func(i, j int) bool { return markets[i].Symbol < markets[j].Symbol })

	return markets
}

// Assets returns every base and quote asset across markets, sorted
func (mr *MarketRegistry) Assets() []string {
	mr.mu.RLock()
	defer mr.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, m := range mr.markets {
		seen[m.BaseAsset] = struct{}{}
		seen[m.QuoteAsset] = struct{}{}
	}
	assets := make([]string, 0, len(seen))
	for a := range seen {
		assets = append(assets, a)
	}
	sort.Strings(assets)
	return assets
}

// Count returns the total number of registered markets
func (mr *MarketRegistry) Count() int {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return len(mr.markets)
}

// Exists checks if a market is registered
func (mr *MarketRegistry) Exists(symbol string) bool {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	_, exists := mr.markets[symbol]
	return exists
}
