package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/uhyunpark/spotmatch/pkg/app/spot"
)

// FileStore writes the snapshot as a single JSON document. Saves go to a
// temp file in the same directory and are renamed into place, so readers
// only ever see a complete document.
type FileStore struct {
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Save(snap spot.Snapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to install snapshot: %w", err)
	}
	return nil
}

func (s *FileStore) Load() (spot.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return spot.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return spot.Snapshot{}, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return decodeSnapshot(data)
}

func (s *FileStore) Close() error { return nil }
