package storeutil_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/ipfs/go-unixfsnode/data/builder"
	cidlink "github.com/ipld/go-ipld-prime/linking/cid"
	"github.com/nearfs/gateway/internal/config"
	"github.com/nearfs/gateway/internal/storeutil"
	"github.com/nearfs/gateway/pkg/blockstore"
	"github.com/nearfs/gateway/pkg/cidcodec"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	testCases := []struct {
		name string
		cfg  config.Storage
		err  bool
	}{
		{name: "fs", cfg: config.Storage{Type: config.StorageFS, Path: filepath.Join(dir, "fs")}},
		{name: "sqlite", cfg: config.Storage{Type: config.StorageSQLite, Path: filepath.Join(dir, "db", "blocks.db")}},
		{name: "pebble", cfg: config.Storage{Type: config.StoragePebble, Path: filepath.Join(dir, "pebble")}},
		{name: "memory", cfg: config.Storage{Type: config.StorageMemory}},
		{name: "unknown", cfg: config.Storage{Type: "tape"}, err: true},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			ctx := context.Background()
			store, err := storeutil.Open(ctx, testCase.cfg)
			if testCase.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer store.Close()
			digest, err := blockstore.PutData(ctx, store, []byte("opened"))
			require.NoError(t, err)
			got, err := store.Get(ctx, digest)
			require.NoError(t, err)
			require.Equal(t, "opened", string(got))
		})
	}
}

func TestLinkSystemForStore(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store, err := storeutil.Open(ctx, config.Storage{Type: config.StorageMemory})
	req.NoError(err)
	lsys := storeutil.LinkSystemForStore(store)

	content := bytes.Repeat([]byte("nearfs "), 1000)
	root, size, err := builder.BuildUnixFSFile(bytes.NewReader(content), "size-1024", &lsys)
	req.NoError(err)
	req.Equal(uint64(len(content)), size)

	c := root.(cidlink.Link).Cid
	req.NoError(cidcodec.Validate(c))
	block, err := store.Get(ctx, cidcodec.Digest(c))
	req.NoError(err)
	req.NotEmpty(block)
	req.Equal(cidcodec.DagPb, c.Prefix().Codec)
}
