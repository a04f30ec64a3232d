package ledger

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrMissingBalanceRecord = errors.New("missing balance record")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvariant            = errors.New("ledger invariant violated")
)

// Balance is one asset's funds for one user. Locked funds back resting
// orders; available funds can be locked, withdrawn or traded.
type Balance struct {
	Available decimal.Decimal `json:"available"`
	Locked    decimal.Decimal `json:"locked"`
}

// Total returns available + locked
func (b Balance) Total() decimal.Decimal {
	return b.Available.Add(b.Locked)
}

// Balances maps asset symbol to balance
type Balances map[string]Balance

func (b Balances) clone() Balances {
	out := make(Balances, len(b))
	for asset, bal := range b {
		out[asset] = bal
	}
	return out
}

// Ledger holds every user's balances in a thread-safe manner.
// available + locked for a (user, asset) only changes through Lock, Unlock,
// Credit or a committed settlement Plan.
type Ledger struct {
	mu       sync.RWMutex
	assets   []string            // known assets, new records are seeded with these
	accounts map[string]Balances // userID -> balances
}

// New creates an empty ledger aware of the given assets
func New(assets ...string) *Ledger {
	l := &Ledger{accounts: make(map[string]Balances)}
	for _, a := range assets {
		l.addAssetLocked(a)
	}
	return l
}

// Assets returns the known asset symbols
func (l *Ledger) Assets() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.assets)
}

func (l *Ledger) addAssetLocked(asset string) {
	if asset == "" || slices.Contains(l.assets, asset) {
		return
	}
	l.assets = append(l.assets, asset)
	slices.Sort(l.assets)
}

// Lock moves amount from available to locked.
// Unknown users and assets have zero available funds.
func (l *Ledger) Lock(userID, asset string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: lock amount must be positive: %s", ErrInvalidAmount, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bal := l.accounts[userID][asset]
	if bal.Available.LessThan(amount) {
		return fmt.Errorf("%w: %s %s: have %s, need %s", ErrInsufficientFunds, userID, asset, bal.Available, amount)
	}
	bal.Available = bal.Available.Sub(amount)
	bal.Locked = bal.Locked.Add(amount)
	l.accounts[userID][asset] = bal
	return nil
}

// Unlock releases locked funds back to available.
// Used when orders are cancelled or a placement is aborted.
func (l *Ledger) Unlock(userID, asset string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: unlock amount cannot be negative: %s", ErrInvalidAmount, amount)
	}
	if amount.IsZero() {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[userID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingBalanceRecord, userID)
	}
	bal := acc[asset]
	if bal.Locked.LessThan(amount) {
		return fmt.Errorf("%w: cannot unlock more than locked: %s %s locked=%s, unlock=%s",
			ErrInvariant, userID, asset, bal.Locked, amount)
	}
	bal.Locked = bal.Locked.Sub(amount)
	bal.Available = bal.Available.Add(amount)
	acc[asset] = bal
	return nil
}

// Credit adds amount to available (deposit / on-ramp).
// Creates the user's record if absent, seeded with zero in every known asset.
func (l *Ledger) Credit(userID, asset string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: credit amount must be positive: %s", ErrInvalidAmount, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.addAssetLocked(asset)
	acc := l.accountLocked(userID)
	bal := acc[asset]
	bal.Available = bal.Available.Add(amount)
	acc[asset] = bal
	return nil
}

// accountLocked returns the user's record, creating it if needed (assumes lock is held)
func (l *Ledger) accountLocked(userID string) Balances {
	acc, ok := l.accounts[userID]
	if !ok {
		acc = make(Balances, len(l.assets))
		l.accounts[userID] = acc
	}
	for _, a := range l.assets {
		if _, ok := acc[a]; !ok {
			acc[a] = Balance{Available: decimal.Zero, Locked: decimal.Zero}
		}
	}
	return acc
}

// Lookup returns a copy of a user's balances.
// The bool is false for users that have never been credited.
func (l *Ledger) Lookup(userID string) (Balances, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	acc, ok := l.accounts[userID]
	if !ok {
		return nil, false
	}
	return acc.clone(), true
}

// Totals sums available + locked per asset across all users
func (l *Ledger) Totals() map[string]decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]decimal.Decimal)
	for _, acc := range l.accounts {
		for asset, bal := range acc {
			cur, ok := out[asset]
			if !ok {
				cur = decimal.Zero
			}
			out[asset] = cur.Add(bal.Total())
		}
	}
	return out
}

// Users returns the number of balance records
func (l *Ledger) Users() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.accounts)
}
