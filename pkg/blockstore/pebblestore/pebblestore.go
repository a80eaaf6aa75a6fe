// Package pebblestore keeps blocks in an embedded pebble key value store
package pebblestore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/nearfs/gateway/pkg/blockstore"
)

var (
	blockPrefix    = []byte("b/")
	progressPrefix = []byte("p/")
)

type Store struct {
	db *pebble.DB
	// serializes the read-check-write in Put
	putLk sync.Mutex
}

var _ blockstore.Store = (*Store)(nil)

func New(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening pebble store: %w", err)
	}
	return &Store{db: db}, nil
}

func blockKey(digest []byte) []byte {
	return append(append([]byte{}, blockPrefix...), digest...)
}

func progressKey(name string) []byte {
	return append(append([]byte{}, progressPrefix...), name...)
}

func (s *Store) get(key []byte) ([]byte, bool, error) {
	value, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

func (s *Store) Get(_ context.Context, digest []byte) ([]byte, error) {
	if err := blockstore.CheckDigest(digest); err != nil {
		return nil, err
	}
	data, ok, err := s.get(blockKey(digest))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, blockstore.ErrNotFound
	}
	return data, nil
}

func (s *Store) Put(_ context.Context, digest []byte, data []byte) error {
	if err := blockstore.VerifyDigest(digest, data); err != nil {
		return err
	}
	s.putLk.Lock()
	defer s.putLk.Unlock()
	existing, ok, err := s.get(blockKey(digest))
	if err != nil {
		return err
	}
	if ok {
		_, err := blockstore.CheckExisting(digest, int64(len(existing)), len(data))
		return err
	}
	return s.db.Set(blockKey(digest), data, pebble.Sync)
}

func (s *Store) scalar(name string) (uint64, bool, error) {
	value, ok, err := s.get(progressKey(name))
	if !ok || err != nil {
		return 0, false, err
	}
	if len(value) != 8 {
		return 0, false, fmt.Errorf("%s: expected 8 bytes, got %d", name, len(value))
	}
	return binary.BigEndian.Uint64(value), true, nil
}

func (s *Store) setScalar(name string, value uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], value)
	return s.db.Set(progressKey(name), buf[:], pebble.Sync)
}

func (s *Store) LatestHeight(_ context.Context) (uint64, bool, error) {
	return s.scalar(blockstore.LatestHeightKey)
}

func (s *Store) SetLatestHeight(_ context.Context, height uint64) error {
	return s.setScalar(blockstore.LatestHeightKey, height)
}

func (s *Store) LatestTimestamp(_ context.Context) (int64, bool, error) {
	value, ok, err := s.scalar(blockstore.LatestTimestampKey)
	return int64(value), ok, err
}

func (s *Store) SetLatestTimestamp(_ context.Context, timestamp int64) error {
	return s.setScalar(blockstore.LatestTimestampKey, uint64(timestamp))
}

func (s *Store) Close() error {
	return s.db.Close()
}
