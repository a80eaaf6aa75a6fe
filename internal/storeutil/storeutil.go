package storeutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"
	"github.com/ipld/go-ipld-prime"
	"github.com/ipld/go-ipld-prime/linking"
	cidlink "github.com/ipld/go-ipld-prime/linking/cid"
	"github.com/nearfs/gateway/internal/config"
	"github.com/nearfs/gateway/pkg/blockstore"
	"github.com/nearfs/gateway/pkg/blockstore/dsstore"
	"github.com/nearfs/gateway/pkg/blockstore/fsstore"
	"github.com/nearfs/gateway/pkg/blockstore/pebblestore"
	"github.com/nearfs/gateway/pkg/blockstore/s3store"
	"github.com/nearfs/gateway/pkg/blockstore/sqlstore"
	"github.com/nearfs/gateway/pkg/cidcodec"
)

func s3Config(cfg config.S3) s3store.Config {
	return s3store.Config{
		Region:    cfg.Region,
		Endpoint:  cfg.Endpoint,
		Bucket:    cfg.Bucket,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
	}
}

// Open constructs the configured block store backend
func Open(ctx context.Context, cfg config.Storage) (blockstore.Store, error) {
	switch cfg.Type {
	case config.StorageFS:
		return fsstore.New(cfg.Path)
	case config.StorageS3:
		return s3store.New(s3Config(cfg.S3))
	case config.StorageSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, err
		}
		return sqlstore.Open(ctx, cfg.Path)
	case config.StoragePebble:
		return pebblestore.New(cfg.Path)
	case config.StorageMemory:
		return dsstore.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// Init prepares a backend for first use: directories, tables or the bucket
func Init(ctx context.Context, cfg config.Storage) error {
	if cfg.Type == config.StorageS3 {
		store, err := s3store.New(s3Config(cfg.S3))
		if err != nil {
			return err
		}
		return store.Init(ctx)
	}
	store, err := Open(ctx, cfg)
	if err != nil {
		return err
	}
	return store.Close()
}

// LinkSystemForStore exposes a block store to go-ipld-prime, for building
// and walking DAGs. Only sha2-256 links can be stored or loaded.
func LinkSystemForStore(store blockstore.Store) ipld.LinkSystem {
	lsys := cidlink.DefaultLinkSystem()
	lsys.StorageReadOpener = func(lctx linking.LinkContext, lnk ipld.Link) (io.Reader, error) {
		c, err := linkCid(lnk)
		if err != nil {
			return nil, err
		}
		data, err := store.Get(linkContext(lctx), cidcodec.Digest(c))
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", c, err)
		}
		return bytes.NewReader(data), nil
	}
	lsys.StorageWriteOpener = func(lctx linking.LinkContext) (io.Writer, linking.BlockWriteCommitter, error) {
		var buf bytes.Buffer
		return &buf, func(lnk ipld.Link) error {
			c, err := linkCid(lnk)
			if err != nil {
				return err
			}
			return store.Put(linkContext(lctx), cidcodec.Digest(c), buf.Bytes())
		}, nil
	}
	return lsys
}

func linkCid(lnk ipld.Link) (cid.Cid, error) {
	cl, ok := lnk.(cidlink.Link)
	if !ok {
		return cid.Undef, fmt.Errorf("unsupported link type %T", lnk)
	}
	return cl.Cid, nil
}

// the unixfs builders store blocks with an empty link context
func linkContext(lctx linking.LinkContext) context.Context {
	if lctx.Ctx == nil {
		return context.Background()
	}
	return lctx.Ctx
}
