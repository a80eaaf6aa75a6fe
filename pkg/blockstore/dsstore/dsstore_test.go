package dsstore_test

import (
	"context"
	"testing"

	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/nearfs/gateway/pkg/blockstore"
	"github.com/nearfs/gateway/pkg/blockstore/dsstore"
	"github.com/nearfs/gateway/pkg/blockstore/storetest"
	"github.com/stretchr/testify/require"
)

func TestConformance(t *testing.T) {
	storetest.RunConformance(t, func(t *testing.T) blockstore.Store {
		return dsstore.NewMemory()
	})
}

func TestKeyLayout(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ds := dssync.MutexWrap(datastore.NewMapDatastore())
	store := dsstore.New(ds)

	data := []byte("laid out")
	digest, err := blockstore.PutData(ctx, store, data)
	req.NoError(err)
	raw, err := ds.Get(ctx, datastore.NewKey("/blocks/"+blockstore.Key(digest)))
	req.NoError(err)
	req.Equal(data, raw)

	req.NoError(store.SetLatestHeight(ctx, 9))
	raw, err = ds.Get(ctx, datastore.NewKey("/progress/"+blockstore.LatestHeightKey))
	req.NoError(err)
	req.Equal("9", string(raw))
}

func TestInconsistentLength(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ds := dssync.MutexWrap(datastore.NewMapDatastore())
	store := dsstore.New(ds)

	data := []byte("the full block")
	digest := blockstore.Digest(data)
	req.NoError(ds.Put(ctx, datastore.NewKey("/blocks/"+blockstore.Key(digest)), data[:3]))
	req.ErrorIs(store.Put(ctx, digest, data), blockstore.ErrInconsistent)
}
