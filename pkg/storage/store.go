// Package storage persists engine snapshots.
package storage

import (
	"errors"
	"fmt"

	"github.com/uhyunpark/spotmatch/pkg/app/spot"
)

// ErrNotFound is returned by Load when nothing has been saved yet
var ErrNotFound = errors.New("snapshot not found")

// Store keeps the most recent engine snapshot
type Store interface {
	Save(snap spot.Snapshot) error
	Load() (spot.Snapshot, error)
	Close() error
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*PebbleStore)(nil)
	_ Store = (*MemStore)(nil)
)

// Open returns the store for backend: "file" writes a JSON document at path,
// "pebble" opens a Pebble database in dir.
func Open(backend, path, dir string) (Store, error) {
	switch backend {
	case "", "file":
		return NewFileStore(path)
	case "pebble":
		return NewPebbleStore(dir, DefaultRetain)
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", backend)
	}
}
