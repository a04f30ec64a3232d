package storage

import (
	"encoding/json"
	"fmt"

	"github.com/uhyunpark/spotmatch/pkg/app/core/ledger"
	"github.com/uhyunpark/spotmatch/pkg/app/core/orderbook"
	"github.com/uhyunpark/spotmatch/pkg/app/spot"
)

func encodeSnapshot(snap spot.Snapshot) ([]byte, error) {
	if snap.Orderbooks == nil {
		snap.Orderbooks = []orderbook.Snapshot{}
	}
	if snap.Balances == nil {
		snap.Balances = []ledger.Entry{}
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return b, nil
}

func decodeSnapshot(b []byte) (spot.Snapshot, error) {
	var snap spot.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return spot.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}
