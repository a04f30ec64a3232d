package ledger

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Entry is one user's record in a snapshot. It encodes as a
// [userId, balances] pair.
type Entry struct {
	UserID   string
	Balances Balances
}

func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{e.UserID, e.Balances})
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("balance entry: %w", err)
	}
	if err := json.Unmarshal(raw[0], &e.UserID); err != nil {
		return fmt.Errorf("balance entry user: %w", err)
	}
	if err := json.Unmarshal(raw[1], &e.Balances); err != nil {
		return fmt.Errorf("balance entry %s: %w", e.UserID, err)
	}
	return nil
}

// Snapshot exports the full balance table sorted by user
func (l *Ledger) Snapshot() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, 0, len(l.accounts))
	for user, acc := range l.accounts {
		out = append(out, Entry{UserID: user, Balances: acc.clone()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Restore replaces the balance table. Assets found in the entries become
// known assets and every record is seeded with zero for the known assets it
// lacks. Negative balances are rejected and leave the ledger as is.
func (l *Ledger) Restore(entries []Entry) error {
	accounts := make(map[string]Balances, len(entries))
	for _, e := range entries {
		if e.UserID == "" {
			return fmt.Errorf("%w: entry without user id", ErrInvariant)
		}
		if _, dup := accounts[e.UserID]; dup {
			return fmt.Errorf("%w: duplicate entry for %s", ErrInvariant, e.UserID)
		}
		for asset, bal := range e.Balances {
			if bal.Available.IsNegative() || bal.Locked.IsNegative() {
				return fmt.Errorf("%w: %s %s negative balance", ErrInvariant, e.UserID, asset)
			}
		}
		accounts[e.UserID] = e.Balances.clone()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.accounts = accounts
	for _, acc := range accounts {
		for asset := range acc {
			l.addAssetLocked(asset)
		}
	}
	for user := range accounts {
		l.accountLocked(user)
	}
	return nil
}
