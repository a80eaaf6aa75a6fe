// Package dsstore adapts any go-datastore to the block store contract
package dsstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/nearfs/gateway/pkg/blockstore"
)

var (
	blocksPrefix   = datastore.NewKey("/blocks")
	progressPrefix = datastore.NewKey("/progress")
)

type Store struct {
	ds    datastore.Datastore
	putLk sync.Mutex
}

var _ blockstore.Store = (*Store)(nil)

func New(ds datastore.Datastore) *Store {
	return &Store{ds: ds}
}

// NewMemory returns a store backed by a thread safe in memory map
func NewMemory() *Store {
	return New(dssync.MutexWrap(datastore.NewMapDatastore()))
}

func blockKey(digest []byte) datastore.Key {
	return blocksPrefix.ChildString(blockstore.Key(digest))
}

func (s *Store) Get(ctx context.Context, digest []byte) ([]byte, error) {
	if err := blockstore.CheckDigest(digest); err != nil {
		return nil, err
	}
	data, err := s.ds.Get(ctx, blockKey(digest))
	if errors.Is(err, datastore.ErrNotFound) {
		return nil, blockstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	// in-memory datastores hand out the stored slice itself
	return append([]byte(nil), data...), nil
}

func (s *Store) Put(ctx context.Context, digest []byte, data []byte) error {
	if err := blockstore.VerifyDigest(digest, data); err != nil {
		return err
	}
	s.putLk.Lock()
	defer s.putLk.Unlock()
	size, err := s.ds.GetSize(ctx, blockKey(digest))
	switch {
	case err == nil:
		_, err := blockstore.CheckExisting(digest, int64(size), len(data))
		return err
	case !errors.Is(err, datastore.ErrNotFound):
		return err
	}
	// the map datastore keeps the slice it is given
	stored := make([]byte, len(data))
	copy(stored, data)
	return s.ds.Put(ctx, blockKey(digest), stored)
}

func (s *Store) scalar(ctx context.Context, name string) (string, bool, error) {
	value, err := s.ds.Get(ctx, progressPrefix.ChildString(name))
	if errors.Is(err, datastore.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(value), true, nil
}

func (s *Store) LatestHeight(ctx context.Context) (uint64, bool, error) {
	text, ok, err := s.scalar(ctx, blockstore.LatestHeightKey)
	if !ok || err != nil {
		return 0, false, err
	}
	height, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parsing %s: %w", blockstore.LatestHeightKey, err)
	}
	return height, true, nil
}

func (s *Store) SetLatestHeight(ctx context.Context, height uint64) error {
	return s.ds.Put(ctx, progressPrefix.ChildString(blockstore.LatestHeightKey), []byte(strconv.FormatUint(height, 10)))
}

func (s *Store) LatestTimestamp(ctx context.Context) (int64, bool, error) {
	text, ok, err := s.scalar(ctx, blockstore.LatestTimestampKey)
	if !ok || err != nil {
		return 0, false, err
	}
	timestamp, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parsing %s: %w", blockstore.LatestTimestampKey, err)
	}
	return timestamp, true, nil
}

func (s *Store) SetLatestTimestamp(ctx context.Context, timestamp int64) error {
	return s.ds.Put(ctx, progressPrefix.ChildString(blockstore.LatestTimestampKey), []byte(strconv.FormatInt(timestamp, 10)))
}

func (s *Store) Close() error {
	return s.ds.Close()
}
