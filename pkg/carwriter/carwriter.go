// Package carwriter exports a DAG from the block store as a CARv1 stream
package carwriter

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/ipld/go-car"
	"github.com/ipld/go-car/util"
	"github.com/klauspost/compress/zstd"
	nearfs "github.com/nearfs/gateway/pkg"
	"github.com/nearfs/gateway/pkg/blockstore"
	"github.com/nearfs/gateway/pkg/cidcodec"
	"github.com/nearfs/gateway/pkg/dagnode"
)

var log = logging.Logger("nearfs/carwriter")

// Stats summarizes a written archive
type Stats struct {
	Blocks int
	Bytes  int64
}

// WriteCar writes a CARv1 with root as its only root, followed by every block
// reachable from it in depth first order. Blocks shared by several parents
// are written once.
func WriteCar(ctx context.Context, w io.Writer, root cid.Cid, store blockstore.Reader) (Stats, error) {
	header := car.CarHeader{
		Version: 1,
		Roots:   []cid.Cid{root},
	}
	err := car.WriteHeader(&header, w)
	if err != nil {
		return Stats{}, fmt.Errorf("writing car header: %w", err)
	}

	var stats Stats
	seen := make(map[string]struct{})
	stack := []cid.Cid{root}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[next.KeyString()]; ok {
			continue
		}
		seen[next.KeyString()] = struct{}{}

		data, err := loadBlock(ctx, store, next)
		if err != nil {
			return stats, err
		}
		if err := util.LdWrite(w, next.Bytes(), data); err != nil {
			return stats, fmt.Errorf("writing block %s: %w", next, err)
		}
		stats.Blocks++
		stats.Bytes += int64(len(data))

		nd, err := dagnode.Decode(next, data)
		if err != nil {
			return stats, err
		}
		// push in reverse so links are visited in node order
		for i := len(nd.Links) - 1; i >= 0; i-- {
			stack = append(stack, nd.Links[i].Cid)
		}
	}
	log.Debugw("wrote CAR", "root", root, "blocks", stats.Blocks, "bytes", stats.Bytes)
	return stats, nil
}

func loadBlock(ctx context.Context, store blockstore.Reader, c cid.Cid) ([]byte, error) {
	if err := cidcodec.Validate(c); err != nil {
		return nil, err
	}
	data, err := store.Get(ctx, cidcodec.Digest(c))
	if errors.Is(err, blockstore.ErrNotFound) {
		return nil, nearfs.ErrNotFound{Cid: c}
	}
	if err != nil {
		return nil, nearfs.ErrStorageBackend{Op: "get " + c.String(), Err: err}
	}
	return data, nil
}

// NewZstdWriter compresses everything written to it into w. Close flushes
// the final frame but does not close w.
func NewZstdWriter(w io.Writer) (io.WriteCloser, error) {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("opening zstd stream: %w", err)
	}
	return enc, nil
}
