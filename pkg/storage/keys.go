package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// Key schema:
//
//	snapshot/latest          → most recent snapshot
//	snapshot/h/<timestamp>   → retained history
//
// Timestamps are unix millis zero-padded to 20 digits for lexicographic sorting.
const (
	keyLatest     = "snapshot/latest"
	prefixHistory = "snapshot/h/"
)

func latestKey() []byte { return []byte(keyLatest) }

func historyKey(unixMilli int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixHistory, unixMilli))
}

func historyPrefix() []byte { return []byte(prefixHistory) }

func parseHistoryKey(key []byte) (int64, bool) {
	s, ok := strings.CutPrefix(string(key), prefixHistory)
	if !ok {
		return 0, false
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	return ms, err == nil
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
