package spot

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uhyunpark/spotmatch/pkg/app/core/ledger"
	"github.com/uhyunpark/spotmatch/pkg/app/core/market"
	"github.com/uhyunpark/spotmatch/pkg/app/core/orderbook"
	"github.com/uhyunpark/spotmatch/pkg/metrics"
	"github.com/uhyunpark/spotmatch/pkg/util"
)

// Publisher delivers engine output. Calls are fire-and-forget from the
// engine's point of view: a failed publish is logged and counted but never
// rolls back state.
type Publisher interface {
	SendReply(ctx context.Context, clientID string, reply Reply) error
	PushEvent(ctx context.Context, event Event) error
	PublishStream(ctx context.Context, msg StreamMessage) error
}

type Config struct {
	BaseCurrency string   // asset credited by ON_RAMP
	Markets      []string // BASE_QUOTE symbols
}

// Engine is the single writer over all order books and the balance ledger.
// Every command runs to completion under mu before the next one starts.
type Engine struct {
	mu sync.Mutex

	baseCurrency string
	markets      *market.MarketRegistry
	books        map[string]*orderbook.OrderBook
	ledger       *ledger.Ledger

	pub     Publisher
	log     *zap.SugaredLogger
	clock   util.Clock
	metrics *metrics.Metrics
	newID   func() string
}

type Option func(*Engine)

// WithClock sets the clock used for trade timestamps
func WithClock(c util.Clock) Option { return func(e *Engine) { e.clock = c } }

func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithIDGenerator replaces the UUID order id source
func WithIDGenerator(f func() string) Option { return func(e *Engine) { e.newID = f } }

func NewEngine(cfg Config, pub Publisher, logger *zap.SugaredLogger, opts ...Option) (*Engine, error) {
	if pub == nil {
		return nil, fmt.Errorf("engine requires a publisher")
	}
	if cfg.BaseCurrency == "" {
		return nil, fmt.Errorf("engine requires a base currency")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	e := &Engine{
		baseCurrency: cfg.BaseCurrency,
		markets:      market.NewMarketRegistry(),
		books:        make(map[string]*orderbook.OrderBook),
		pub:          pub,
		log:          logger,
		clock:        util.RealClock{},
		newID:        func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.New(nil)
	}

	for _, sym := range cfg.Markets {
		m, err := market.Parse(sym)
		if err != nil {
			return nil, err
		}
		if err := e.markets.RegisterMarket(m); err != nil {
			return nil, err
		}
		e.books[m.Symbol] = orderbook.NewOrderBook(m.BaseAsset, m.QuoteAsset)
	}
	e.ledger = ledger.New(append(e.markets.Assets(), e.baseCurrency)...)
	return e, nil
}

// Markets lists the traded markets
func (e *Engine) Markets() []*market.Market {
	return e.markets.ListMarkets()
}

// Process executes one envelope and routes its reply, if any, to the
// envelope's client.
func (e *Engine) Process(ctx context.Context, env Envelope) {
	reply, ok := e.Execute(ctx, env.Message)
	if !ok {
		return
	}
	if env.ClientID == "" {
		e.log.Warnw("reply_dropped", "reason", "missing client id", "type", reply.Type)
		return
	}
	if err := e.pub.SendReply(ctx, env.ClientID, reply); err != nil {
		e.publishFailed("reply", err)
	}
}

// Run drains envelopes one at a time until ctx is done or the channel is
// closed.
func (e *Engine) Run(ctx context.Context, in <-chan Envelope) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-in:
			if !ok {
				return nil
			}
			e.Process(ctx, env)
		}
	}
}

// Execute runs a single command and returns its reply. The bool is false
// for commands that have no reply (ON_RAMP, GET_TRADES, cancel misses).
func (e *Engine) Execute(ctx context.Context, cmd Command) (Reply, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		reply Reply
		ok    bool
		err   error
	)
	switch cmd.Type {
	case CreateOrder:
		reply, err = e.handleCreate(ctx, cmd)
		ok = true
	case CancelOrder:
		reply, ok, err = e.handleCancel(ctx, cmd)
	case GetOpenOrders:
		reply, err = e.handleOpenOrders(cmd)
		ok = true
	case GetBalance:
		reply, err = e.handleBalance(cmd)
		ok = true
	case OnRamp:
		err = e.handleOnRamp(cmd)
	case GetDepth:
		reply, err = e.handleDepth(cmd)
		ok = true
	case GetTicker:
		reply, err = e.handleTicker(cmd)
		ok = true
	case GetTrades:
		e.log.Infow("command_unsupported", "type", cmd.Type, "reason", "served by trade store")
		e.metrics.Commands.WithLabelValues(cmd.Type, "ignored").Inc()
		return Reply{}, false
	default:
		e.log.Warnw("command_unknown", "type", cmd.Type)
		e.metrics.Commands.WithLabelValues("unknown", "ignored").Inc()
		return Reply{}, false
	}

	outcome := "ok"
	if err != nil {
		outcome = "rejected"
		if isFault(err) {
			e.fault(cmd.Type, err)
		} else {
			e.log.Infow("command_rejected", "type", cmd.Type, "err", err)
		}
	}
	e.metrics.Commands.WithLabelValues(cmd.Type, outcome).Inc()
	return reply, ok
}

func (e *Engine) fault(kind string, err error) {
	e.log.Errorw("engine_fault", "kind", kind, "err", err)
	e.metrics.Faults.WithLabelValues(kind).Inc()
}

func (e *Engine) book(symbol string) (*orderbook.OrderBook, error) {
	ob, ok := e.books[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoOrderbook, symbol)
	}
	return ob, nil
}

// lookup returns a user's balances. Unknown users report zero in every
// known asset.
func (e *Engine) lookup(userID string) ledger.Balances {
	if bals, ok := e.ledger.Lookup(userID); ok {
		return bals
	}
	bals := make(ledger.Balances)
	for _, a := range e.ledger.Assets() {
		bals[a] = ledger.Balance{}
	}
	return bals
}
