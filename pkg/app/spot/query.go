package spot

import (
	"fmt"
	"slices"

	"github.com/uhyunpark/spotmatch/pkg/app/core/ledger"
	"github.com/uhyunpark/spotmatch/pkg/app/core/orderbook"
)

func (e *Engine) handleOpenOrders(cmd Command) (Reply, error) {
	reply := Reply{Type: OpenOrders, Payload: []orderbook.Order{}}
	var req OpenOrdersRequest
	if err := cmd.decode(&req); err != nil {
		return reply, err
	}
	book, err := e.book(req.Market)
	if err != nil {
		return reply, err
	}
	reply.Payload = book.OpenOrders(req.UserID)
	return reply, nil
}

func (e *Engine) handleBalance(cmd Command) (Reply, error) {
	var req BalanceRequest
	if err := cmd.decode(&req); err != nil {
		return Reply{Type: Balance, Payload: BalancePayload{Balances: ledger.Balances{}}}, err
	}
	return Reply{
		Type:    Balance,
		Payload: BalancePayload{UserID: req.UserID, Balances: e.lookup(req.UserID)},
	}, nil
}

// handleOnRamp credits the base currency, or another traded asset when
// the request names one. There is no reply.
func (e *Engine) handleOnRamp(cmd Command) error {
	var req OnRampRequest
	if err := cmd.decode(&req); err != nil {
		return err
	}
	if req.UserID == "" {
		return fmt.Errorf("%w: on-ramp without user id", ledger.ErrInvalidAmount)
	}
	asset := e.baseCurrency
	if req.Asset != "" {
		if !slices.Contains(e.ledger.Assets(), req.Asset) {
			return fmt.Errorf("%w: on-ramp of unknown asset %q", ledger.ErrInvalidAmount, req.Asset)
		}
		asset = req.Asset
	}
	if err := e.ledger.Credit(req.UserID, asset, req.Amount); err != nil {
		return fmt.Errorf("on-ramp %s: %w", req.TxnID, err)
	}
	e.log.Infow("on_ramp", "user", req.UserID, "asset", asset, "amount", req.Amount, "txn_id", req.TxnID)
	return nil
}

// handleDepth answers with empty sides on any failure
func (e *Engine) handleDepth(cmd Command) (Reply, error) {
	reply := Reply{Type: Depth, Payload: orderbook.Depth{Bids: [][2]string{}, Asks: [][2]string{}}}
	var req MarketRequest
	if err := cmd.decode(&req); err != nil {
		return reply, err
	}
	book, err := e.book(req.Market)
	if err != nil {
		return reply, err
	}
	reply.Payload = book.Depth()
	return reply, nil
}

func (e *Engine) handleTicker(cmd Command) (Reply, error) {
	var req MarketRequest
	if err := cmd.decode(&req); err != nil {
		return Reply{Type: Ticker, Payload: TickerPayload{}}, err
	}
	book, err := e.book(req.Market)
	if err != nil {
		return Reply{Type: Ticker, Payload: TickerPayload{Market: req.Market}}, err
	}
	t := TickerPayload{
		Market:      book.Market(),
		LastPrice:   book.CurrentPrice(),
		LastTradeID: book.LastTradeID(),
	}
	if bid, ok := book.BestBid(); ok {
		t.BestBid = &bid
	}
	if ask, ok := book.BestAsk(); ok {
		t.BestAsk = &ask
	}
	return Reply{Type: Ticker, Payload: t}, nil
}
