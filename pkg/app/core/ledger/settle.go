package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Trade is one fill as the ledger sees it. The buyer's quote was locked at
// LockPrice per unit when its order was placed; the trade clears at Price,
// which never exceeds LockPrice. The seller's base was locked one for one.
//
//	buyer:  quote locked -= Qty*LockPrice, quote available += Qty*(LockPrice-Price), base available += Qty
//	seller: base locked -= Qty, quote available += Qty*Price
//
// Summed over both parties each asset is unchanged.
type Trade struct {
	Buyer      string
	Seller     string
	BaseAsset  string
	QuoteAsset string
	Qty        decimal.Decimal
	Price      decimal.Decimal
	LockPrice  decimal.Decimal
}

type slot struct {
	user  string
	asset string
}

type delta struct {
	available decimal.Decimal
	locked    decimal.Decimal
}

// Plan is a validated batch of settlements. Nothing is applied until Commit.
type Plan struct {
	l      *Ledger
	deltas map[slot]delta
	order  []slot
}

func (p *Plan) add(user, asset string, available, locked decimal.Decimal) {
	k := slot{user: user, asset: asset}
	cur, ok := p.deltas[k]
	if !ok {
		cur = delta{available: decimal.Zero, locked: decimal.Zero}
		p.order = append(p.order, k)
	}
	cur.available = cur.available.Add(available)
	cur.locked = cur.locked.Add(locked)
	p.deltas[k] = cur
}

// Plan computes the balance changes for trades and checks that every party
// has a record and no balance would go negative. Deltas of a user trading
// with itself are netted before the check.
func (l *Ledger) Plan(trades ...Trade) (*Plan, error) {
	p := &Plan{l: l, deltas: make(map[slot]delta)}
	for i, t := range trades {
		if !t.Qty.IsPositive() || !t.Price.IsPositive() || t.LockPrice.LessThan(t.Price) {
			return nil, fmt.Errorf("%w: trade %d: qty=%s price=%s lock=%s", ErrInvalidAmount, i, t.Qty, t.Price, t.LockPrice)
		}
		notional := t.Qty.Mul(t.Price)
		locked := t.Qty.Mul(t.LockPrice)

		p.add(t.Buyer, t.QuoteAsset, locked.Sub(notional), locked.Neg())
		p.add(t.Buyer, t.BaseAsset, t.Qty, decimal.Zero)
		p.add(t.Seller, t.BaseAsset, decimal.Zero, t.Qty.Neg())
		p.add(t.Seller, t.QuoteAsset, notional, decimal.Zero)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if err := p.check(); err != nil {
		return nil, err
	}
	return p, nil
}

// check validates the plan against current balances (assumes lock is held)
func (p *Plan) check() error {
	for _, k := range p.order {
		acc, ok := p.l.accounts[k.user]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingBalanceRecord, k.user)
		}
		bal := acc[k.asset]
		d := p.deltas[k]
		if bal.Available.Add(d.available).IsNegative() || bal.Locked.Add(d.locked).IsNegative() {
			return fmt.Errorf("%w: %s %s would go negative: available=%s (delta %s) locked=%s (delta %s)",
				ErrInvariant, k.user, k.asset, bal.Available, d.available, bal.Locked, d.locked)
		}
	}
	return nil
}

// Commit applies the plan atomically. Balances are re-checked first so a
// plan that went stale is rejected without partial effect.
func (p *Plan) Commit() error {
	p.l.mu.Lock()
	defer p.l.mu.Unlock()

	if err := p.check(); err != nil {
		return err
	}
	for _, k := range p.order {
		acc := p.l.accounts[k.user]
		bal := acc[k.asset]
		d := p.deltas[k]
		bal.Available = bal.Available.Add(d.available)
		bal.Locked = bal.Locked.Add(d.locked)
		acc[k.asset] = bal
	}
	return nil
}

// Settle plans and commits in one step
func (l *Ledger) Settle(trades ...Trade) error {
	p, err := l.Plan(trades...)
	if err != nil {
		return err
	}
	return p.Commit()
}
