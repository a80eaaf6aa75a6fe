package sqlstore_test

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/nearfs/gateway/pkg/blockstore"
	"github.com/nearfs/gateway/pkg/blockstore/sqlstore"
	"github.com/nearfs/gateway/pkg/blockstore/storetest"
	"github.com/stretchr/testify/require"
)

func CreateTestTmpDB(t *testing.T) *sql.DB {
	f, err := os.CreateTemp(t.TempDir(), "*.db")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	d, err := sqlstore.SqlDB(f.Name())
	require.NoError(t, err)
	require.NoError(t, sqlstore.CreateTables(context.Background(), d))
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestConformance(t *testing.T) {
	storetest.RunConformance(t, func(t *testing.T) blockstore.Store {
		return sqlstore.NewSQLBlockStore(CreateTestTmpDB(t))
	})
}

func TestInconsistentLength(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	sqldb := CreateTestTmpDB(t)
	store := sqlstore.NewSQLBlockStore(sqldb)

	data := []byte("the full block")
	digest := blockstore.Digest(data)
	// a truncated row written out of band
	req.NoError(sqlstore.InsertBlock(ctx, sqldb, &sqlstore.Block{Digest: digest, Size: 4, Data: data[:4]}))

	err := store.Put(ctx, digest, data)
	req.ErrorIs(err, blockstore.ErrInconsistent)

	got, err := store.Get(ctx, digest)
	req.NoError(err)
	req.Equal(data[:4], got)
}

func TestOpenCreatesTables(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	path := t.TempDir() + "/blocks.db"

	store, err := sqlstore.Open(ctx, path)
	req.NoError(err)
	digest, err := blockstore.PutData(ctx, store, []byte("persisted"))
	req.NoError(err)
	req.NoError(store.SetLatestHeight(ctx, 7))
	req.NoError(store.Close())

	store, err = sqlstore.Open(ctx, path)
	req.NoError(err)
	defer store.Close()
	got, err := store.Get(ctx, digest)
	req.NoError(err)
	req.Equal("persisted", string(got))
	height, ok, err := store.LatestHeight(ctx)
	req.NoError(err)
	req.True(ok)
	req.Equal(uint64(7), height)
}
