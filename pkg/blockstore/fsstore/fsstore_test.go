package fsstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nearfs/gateway/pkg/blockstore"
	"github.com/nearfs/gateway/pkg/blockstore/fsstore"
	"github.com/nearfs/gateway/pkg/blockstore/storetest"
	"github.com/stretchr/testify/require"
)

func TestConformance(t *testing.T) {
	storetest.RunConformance(t, func(t *testing.T) blockstore.Store {
		store, err := fsstore.New(t.TempDir())
		require.NoError(t, err)
		return store
	})
}

func TestLayout(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	dir := t.TempDir()
	store, err := fsstore.New(dir)
	req.NoError(err)

	data := []byte("Hello, World\n")
	digest, err := blockstore.PutData(ctx, store, data)
	req.NoError(err)
	onDisk, err := os.ReadFile(filepath.Join(dir, blockstore.Key(digest)))
	req.NoError(err)
	req.Equal(data, onDisk)

	req.NoError(store.SetLatestHeight(ctx, 42))
	height, err := os.ReadFile(filepath.Join(dir, blockstore.LatestHeightKey))
	req.NoError(err)
	req.Equal("42", string(height))

	// no temp files are left behind
	entries, err := os.ReadDir(dir)
	req.NoError(err)
	req.Len(entries, 2)
}

func TestInconsistentLength(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	dir := t.TempDir()
	store, err := fsstore.New(dir)
	req.NoError(err)

	data := []byte("the full block")
	digest := blockstore.Digest(data)
	// a truncated block written out of band
	req.NoError(os.WriteFile(filepath.Join(dir, blockstore.Key(digest)), data[:4], 0o644))

	err = store.Put(ctx, digest, data)
	req.ErrorIs(err, blockstore.ErrInconsistent)
}

func TestScalarParseError(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	store, err := fsstore.New(dir)
	req.NoError(err)
	req.NoError(os.WriteFile(filepath.Join(dir, blockstore.LatestTimestampKey), []byte("soon"), 0o644))
	_, _, err = store.LatestTimestamp(context.Background())
	req.Error(err)
}
