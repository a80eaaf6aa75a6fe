package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/nearfs/gateway/pkg/blockwriter"
	"github.com/nearfs/gateway/pkg/carwriter"
	"github.com/nearfs/gateway/pkg/cidcodec"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
)

const exportBufferSize = 16 << 20

var exportCmd = &cli.Command{
	Name:      "export",
	Usage:     "Write a DAG from the block store as a CAR file",
	ArgsUsage: "<cid> <output.car>",
	Before:    before,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "zstd",
			Usage: "compress the CAR with zstd",
		},
	},
	Action: func(cctx *cli.Context) (err error) {
		if cctx.Args().Len() != 2 {
			return fmt.Errorf("usage: export <cid> <output.car>")
		}
		root, err := cidcodec.Decode(cctx.Args().Get(0))
		if err != nil {
			return err
		}
		outName, err := homedir.Expand(cctx.Args().Get(1))
		if err != nil {
			return fmt.Errorf("expanding output path: %w", err)
		}

		_, store, err := openStore(cctx)
		if err != nil {
			return err
		}
		defer closeStore(store, &err)

		f, err := os.Create(outName)
		if err != nil {
			return fmt.Errorf("creating CAR: %w", err)
		}
		defer func() {
			err = multierr.Append(err, f.Close())
			if err != nil {
				_ = os.Remove(outName)
			}
		}()

		// block reads continue while earlier sections are being written
		buffered := blockwriter.NewBlockWriter(f, exportBufferSize)
		var w io.Writer = buffered
		var compressor io.WriteCloser
		if cctx.Bool("zstd") {
			compressor, err = carwriter.NewZstdWriter(buffered)
			if err != nil {
				return multierr.Append(err, buffered.Close())
			}
			w = compressor
		}
		stats, err := carwriter.WriteCar(cctx.Context, w, root, store)
		if compressor != nil {
			err = multierr.Append(err, compressor.Close())
		}
		err = multierr.Append(err, buffered.Close())
		if err != nil {
			return fmt.Errorf("exporting %s: %w", cidcodec.Encode(root), err)
		}
		fmt.Printf("Exported %d blocks (%d bytes) to %s\n", stats.Blocks, stats.Bytes, outName)
		return nil
	},
}
