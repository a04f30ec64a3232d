package spot

import (
	"errors"

	"github.com/uhyunpark/spotmatch/pkg/app/core/ledger"
	"github.com/uhyunpark/spotmatch/pkg/app/core/orderbook"
)

var (
	ErrNoOrderbook   = errors.New("no orderbook for market")
	ErrOrderNotFound = errors.New("order not found")

	ErrInvalidOrder         = orderbook.ErrInvalidOrder
	ErrInsufficientFunds    = ledger.ErrInsufficientFunds
	ErrMissingBalanceRecord = ledger.ErrMissingBalanceRecord
	ErrInvariant            = ledger.ErrInvariant
)

// isFault reports whether err indicates corrupted state rather than a bad
// request
func isFault(err error) bool {
	return errors.Is(err, ErrMissingBalanceRecord) || errors.Is(err, ErrInvariant)
}
