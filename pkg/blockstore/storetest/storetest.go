// Package storetest is a conformance suite for blockstore backends
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	blocksutil "github.com/ipfs/go-ipfs-blocksutil"
	"github.com/nearfs/gateway/pkg/blockstore"
	"github.com/stretchr/testify/require"
)

// NewStore constructs a fresh, empty store isolated from other tests
type NewStore func(t *testing.T) blockstore.Store

// RunConformance checks the blockstore contract against a backend
func RunConformance(t *testing.T, newStore NewStore) {
	t.Helper()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		req := require.New(t)
		ctx := context.Background()
		store := newStore(t)
		gen := blocksutil.NewBlockGenerator()
		for _, blk := range gen.Blocks(5) {
			digest, err := blockstore.PutData(ctx, store, blk.RawData())
			req.NoError(err)
			req.Equal(blockstore.Digest(blk.RawData()), digest)
			got, err := store.Get(ctx, digest)
			req.NoError(err)
			req.Equal(blk.RawData(), got)
		}
	})

	t.Run("GetReturnsOwnedBytes", func(t *testing.T) {
		req := require.New(t)
		ctx := context.Background()
		store := newStore(t)
		data := []byte("unchanged")
		digest, err := blockstore.PutData(ctx, store, data)
		req.NoError(err)
		got, err := store.Get(ctx, digest)
		req.NoError(err)
		for i := range got {
			got[i] = 'x'
		}
		again, err := store.Get(ctx, digest)
		req.NoError(err)
		req.Equal([]byte("unchanged"), again)
	})

	t.Run("GetMissing", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(context.Background(), blockstore.Digest([]byte("missing")))
		require.ErrorIs(t, err, blockstore.ErrNotFound)
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		req := require.New(t)
		ctx := context.Background()
		store := newStore(t)
		data := []byte("same bytes")
		digest := blockstore.Digest(data)
		req.NoError(store.Put(ctx, digest, data))
		req.NoError(store.Put(ctx, digest, data))
		got, err := store.Get(ctx, digest)
		req.NoError(err)
		req.Equal(data, got)
	})

	t.Run("EmptyBlock", func(t *testing.T) {
		req := require.New(t)
		ctx := context.Background()
		store := newStore(t)
		digest, err := blockstore.PutData(ctx, store, []byte{})
		req.NoError(err)
		got, err := store.Get(ctx, digest)
		req.NoError(err)
		req.Len(got, 0)
	})

	t.Run("RejectDigestMismatch", func(t *testing.T) {
		req := require.New(t)
		ctx := context.Background()
		store := newStore(t)
		digest := blockstore.Digest([]byte("original"))
		err := store.Put(ctx, digest, []byte("impostor"))
		req.ErrorIs(err, blockstore.ErrDigestMismatch)
		_, err = store.Get(ctx, digest)
		req.ErrorIs(err, blockstore.ErrNotFound)

		err = store.Put(ctx, []byte("short"), []byte("short"))
		req.ErrorIs(err, blockstore.ErrInvalidDigest)
	})

	t.Run("ConcurrentPuts", func(t *testing.T) {
		req := require.New(t)
		ctx := context.Background()
		store := newStore(t)
		data := []byte("written by many writers")
		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := blockstore.PutData(ctx, store, data)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			req.NoError(err)
		}
		got, err := store.Get(ctx, blockstore.Digest(data))
		req.NoError(err)
		req.Equal(data, got)
	})

	t.Run("Progress", func(t *testing.T) {
		req := require.New(t)
		ctx := context.Background()
		store := newStore(t)

		_, ok, err := store.LatestHeight(ctx)
		req.NoError(err)
		req.False(ok)
		_, ok, err = store.LatestTimestamp(ctx)
		req.NoError(err)
		req.False(ok)

		req.NoError(store.SetLatestHeight(ctx, 123))
		height, ok, err := store.LatestHeight(ctx)
		req.NoError(err)
		req.True(ok)
		req.Equal(uint64(123), height)

		// slots are independent
		_, ok, err = store.LatestTimestamp(ctx)
		req.NoError(err)
		req.False(ok)

		now := time.Now().UnixNano()
		req.NoError(store.SetLatestTimestamp(ctx, now))
		timestamp, ok, err := store.LatestTimestamp(ctx)
		req.NoError(err)
		req.True(ok)
		req.Equal(now, timestamp)

		req.NoError(store.SetLatestHeight(ctx, 124))
		height, _, err = store.LatestHeight(ctx)
		req.NoError(err)
		req.Equal(uint64(124), height)
	})
}
