// Package carimport loads CAR archives into a block store
package carimport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	carv2 "github.com/ipld/go-car/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/nearfs/gateway/pkg/blockstore"
)

var log = logging.Logger("nearfs/carimport")

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// ErrHashMismatch means a CAR section's bytes do not hash to its CID
var ErrHashMismatch = errors.New("carimport: block does not match its CID")

// Summary describes an imported archive
type Summary struct {
	// Roots are the roots named in the CAR header
	Roots []cid.Cid
	// Discovered are the imported blocks that no other imported block links
	// to. Archives written without roots can be served from these.
	Discovered []cid.Cid
	Blocks     int
	Bytes      int64
}

// Import copies every block of a CARv1 or CARv2 stream into store. zstd
// compressed input is detected from its magic bytes.
func Import(ctx context.Context, r io.Reader, store blockstore.Writer) (Summary, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(len(zstdMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return Summary{}, fmt.Errorf("reading CAR: %w", err)
	}
	var src io.Reader = br
	if bytes.Equal(magic, zstdMagic) {
		dec, err := zstd.NewReader(br)
		if err != nil {
			return Summary{}, fmt.Errorf("opening zstd stream: %w", err)
		}
		defer dec.Close()
		src = dec
	}

	reader, err := carv2.NewBlockReader(src)
	if err != nil {
		return Summary{}, fmt.Errorf("reading CAR header: %w", err)
	}
	summary := Summary{Roots: reader.Roots}
	tracker := newRootTracker()
	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		blk, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return summary, fmt.Errorf("reading block %d: %w", summary.Blocks, err)
		}
		if err := verify(blk); err != nil {
			return summary, err
		}
		if _, err := blockstore.PutData(ctx, store, blk.RawData()); err != nil {
			return summary, fmt.Errorf("storing %s: %w", blk.Cid(), err)
		}
		tracker.observe(blk.Cid(), blk.RawData())
		summary.Blocks++
		summary.Bytes += int64(len(blk.RawData()))
		log.Debugw("imported block", "cid", blk.Cid(), "size", len(blk.RawData()))
	}
	summary.Discovered = tracker.roots()
	log.Infow("imported CAR", "version", reader.Version, "roots", summary.Roots, "blocks", summary.Blocks, "bytes", summary.Bytes)
	return summary, nil
}

// verify recomputes a block's multihash with the parameters of its own CID
func verify(blk blocks.Block) error {
	expected := blk.Cid()
	actual, err := expected.Prefix().Sum(blk.RawData())
	if err != nil {
		return fmt.Errorf("hashing %s: %w", expected, err)
	}
	if !actual.Equals(expected) {
		return fmt.Errorf("%w: %s hashes to %s", ErrHashMismatch, expected, actual)
	}
	return nil
}
