// Package fsstore keeps blocks as files named by their hex digest
package fsstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nearfs/gateway/pkg/blockstore"
)

// Store is a blockstore.Store rooted at a directory
type Store struct {
	root string
}

var _ blockstore.Store = (*Store)(nil)

// New opens a store at root, creating the directory if needed
func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("fsstore: storage path is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) pathFor(digest []byte) string {
	return filepath.Join(s.root, blockstore.Key(digest))
}

func (s *Store) Get(_ context.Context, digest []byte) ([]byte, error) {
	if err := blockstore.CheckDigest(digest); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.pathFor(digest))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, blockstore.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (s *Store) Put(_ context.Context, digest []byte, data []byte) error {
	if err := blockstore.VerifyDigest(digest, data); err != nil {
		return err
	}
	path := s.pathFor(digest)
	info, err := os.Stat(path)
	switch {
	case err == nil:
		skip, err := blockstore.CheckExisting(digest, info.Size(), len(data))
		if skip || err != nil {
			return err
		}
	case !errors.Is(err, fs.ErrNotExist):
		return err
	}
	return writeAtomic(s.root, path, data)
}

func (s *Store) LatestHeight(ctx context.Context) (uint64, bool, error) {
	text, ok, err := s.readScalar(blockstore.LatestHeightKey)
	if !ok || err != nil {
		return 0, ok, err
	}
	height, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parsing %s: %w", blockstore.LatestHeightKey, err)
	}
	return height, true, nil
}

func (s *Store) SetLatestHeight(_ context.Context, height uint64) error {
	return writeAtomic(s.root, filepath.Join(s.root, blockstore.LatestHeightKey), []byte(strconv.FormatUint(height, 10)))
}

func (s *Store) LatestTimestamp(ctx context.Context) (int64, bool, error) {
	text, ok, err := s.readScalar(blockstore.LatestTimestampKey)
	if !ok || err != nil {
		return 0, ok, err
	}
	timestamp, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parsing %s: %w", blockstore.LatestTimestampKey, err)
	}
	return timestamp, true, nil
}

func (s *Store) SetLatestTimestamp(_ context.Context, timestamp int64) error {
	return writeAtomic(s.root, filepath.Join(s.root, blockstore.LatestTimestampKey), []byte(strconv.FormatInt(timestamp, 10)))
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) readScalar(name string) (string, bool, error) {
	data, err := os.ReadFile(filepath.Join(s.root, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	return strings.TrimSpace(string(data)), true, nil
}

// writeAtomic writes to a temp file in dir and renames it over path, so
// readers never observe a partial block
func writeAtomic(dir, path string, data []byte) error {
	f, err := os.CreateTemp(dir, ".tmp-")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()
	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp, 0o644); err != nil {
		return err
	}
	err = os.Rename(tmp, path)
	return err
}
