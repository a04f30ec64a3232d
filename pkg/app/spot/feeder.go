package spot

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/spotmatch/pkg/app/core/market"
	"github.com/uhyunpark/spotmatch/pkg/app/core/orderbook"
)

// FeederConfig controls synthetic order flow for local runs
type FeederConfig struct {
	BatchSize   int           // Number of commands per batch
	Interval    time.Duration // How often to generate batches
	NumAccounts int           // Number of simulated traders
	MidPrice    int64         // Prices are drawn around this value (±5%)
	Seed        int64         // RNG seed, 0 picks one from the clock
}

// DefaultFeederConfig returns reasonable defaults for testing
func DefaultFeederConfig() FeederConfig {
	return FeederConfig{
		BatchSize:   10,
		Interval:    100 * time.Millisecond,
		NumAccounts: 20,
		MidPrice:    1000,
	}
}

// Generator creates random trading commands for a set of markets
type Generator struct {
	accounts []string
	markets  []*market.Market
	midPrice int64
	rng      *rand.Rand
	open     []CancelOrderRequest // recently placed orders, cancel candidates
}

func NewGenerator(numAccounts int, markets []*market.Market, midPrice int64, seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	accounts := make([]string, numAccounts)
	for i := 0; i < numAccounts; i++ {
		accounts[i] = fmt.Sprintf("trader_%d", i+1)
	}
	return &Generator{
		accounts: accounts,
		markets:  markets,
		midPrice: midPrice,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// mustCommand encodes a generator payload. The payload types always encode,
// so a failure is a programming error.
func mustCommand(typ string, payload interface{}) Command {
	cmd, err := NewCommand(typ, payload)
	if err != nil {
		panic(err)
	}
	return cmd
}

// Funding returns the ON_RAMP commands that give every simulated trader
// quote and base funds in every market
func (g *Generator) Funding() []Command {
	var cmds []Command
	for _, acct := range g.accounts {
		for _, m := range g.markets {
			for _, credit := range []struct {
				asset  string
				amount int64
			}{
				{m.QuoteAsset, g.midPrice * 1000},
				{m.BaseAsset, 1000},
			} {
				cmd := mustCommand(OnRamp, OnRampRequest{
					UserID: acct,
					Amount: decimal.NewFromInt(credit.amount),
					TxnID:  fmt.Sprintf("seed-%s-%s", acct, credit.asset),
					Asset:  credit.asset,
				})
				cmds = append(cmds, cmd)
			}
		}
	}
	return cmds
}

// GenerateOrder creates a random limit order
func (g *Generator) GenerateOrder() Command {
	m := g.markets[g.rng.Intn(len(g.markets))]

	side := orderbook.Buy
	if g.rng.Intn(2) == 1 {
		side = orderbook.Sell
	}

	spread := g.midPrice / 20
	if spread < 1 {
		spread = 1
	}
	price := g.midPrice + g.rng.Int63n(2*spread+1) - spread
	if price < 1 {
		price = 1
	}

	cmd := mustCommand(CreateOrder, CreateOrderRequest{
		Market:   m.Symbol,
		Price:    decimal.NewFromInt(price),
		Quantity: decimal.NewFromInt(int64(g.rng.Intn(10) + 1)),
		Side:     side,
		UserID:   g.accounts[g.rng.Intn(len(g.accounts))],
	})
	return cmd
}

// GenerateCancel cancels one of the recently placed orders, if any
func (g *Generator) GenerateCancel() (Command, bool) {
	if len(g.open) == 0 {
		return Command{}, false
	}
	i := g.rng.Intn(len(g.open))
	req := g.open[i]
	g.open = append(g.open[:i], g.open[i+1:]...)
	cmd := mustCommand(CancelOrder, req)
	return cmd, true
}

// GenerateMix creates a random command (90% orders, 10% cancels)
func (g *Generator) GenerateMix() Command {
	if g.rng.Intn(100) >= 90 {
		if cmd, ok := g.GenerateCancel(); ok {
			return cmd
		}
	}
	return g.GenerateOrder()
}

// Observe records placed orders so later cancels target real ids
func (g *Generator) Observe(cmd Command, reply Reply) {
	placed, ok := reply.Payload.(OrderPlacedPayload)
	if !ok || reply.Type != OrderPlaced {
		return
	}
	var req CreateOrderRequest
	if err := cmd.decode(&req); err != nil {
		return
	}
	g.open = append(g.open, CancelOrderRequest{OrderID: placed.OrderID, Market: req.Market})
	if len(g.open) > 100 {
		g.open = g.open[len(g.open)-100:]
	}
}

// StartFeeder starts a background goroutine that continuously feeds
// commands to the engine
// Returns a cancel function to stop the feeder
func StartFeeder(ctx context.Context, e *Engine, cfg FeederConfig, logger *zap.SugaredLogger) context.CancelFunc {
	markets := e.Markets()
	if len(markets) == 0 || cfg.NumAccounts <= 0 {
		logger.Warnw("feeder_disabled", "markets", len(markets), "accounts", cfg.NumAccounts)
		return func() {}
	}
	gen := NewGenerator(cfg.NumAccounts, markets, cfg.MidPrice, cfg.Seed)
	for _, cmd := range gen.Funding() {
		e.Execute(ctx, cmd)
	}

	feedCtx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()

		startTime := time.Now()
		total := 0

		logger.Infow("feeder_started", "batch", cfg.BatchSize, "interval", cfg.Interval, "accounts", cfg.NumAccounts)

		for {
			select {
			case <-feedCtx.Done():
				elapsed := time.Since(startTime)
				logger.Infow("feeder_stopped",
					"commands", total,
					"elapsed", elapsed.Round(time.Second),
					"rate", float64(total)/elapsed.Seconds(),
				)
				return

			case <-ticker.C:
				for i := 0; i < cfg.BatchSize; i++ {
					cmd := gen.GenerateMix()
					if reply, ok := e.Execute(feedCtx, cmd); ok {
						gen.Observe(cmd, reply)
					}
				}
				total += cfg.BatchSize
			}
		}
	}()

	return cancel
}
