package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"
	chunk "github.com/ipfs/go-ipfs-chunker"
	"github.com/ipfs/go-unixfsnode/data/builder"
	"github.com/ipld/go-ipld-prime"
	cidlink "github.com/ipld/go-ipld-prime/linking/cid"
	"github.com/mitchellh/go-homedir"
	"github.com/nearfs/gateway/internal/storeutil"
	"github.com/nearfs/gateway/pkg/blockstore"
	"github.com/nearfs/gateway/pkg/carimport"
	"github.com/nearfs/gateway/pkg/cidcodec"
	"github.com/urfave/cli/v2"
)

var importCmd = &cli.Command{
	Name:      "import",
	Usage:     "Import a file, a directory or a CAR file into the block store",
	ArgsUsage: "<path>",
	Before:    before,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "car",
			Usage: "Imports a car file directly",
			Value: false,
		},
		&cli.StringFlag{
			Name:  "chunker",
			Usage: "chunking strategy for a single file, e.g. size-262144 or rabin-262144",
			Value: "size-262144",
		},
	},
	Action: func(cctx *cli.Context) (err error) {
		if cctx.Args().Len() != 1 {
			return fmt.Errorf("usage: import <path>")
		}
		srcName, err := homedir.Expand(cctx.Args().First())
		if err != nil {
			return fmt.Errorf("expanding source file path: %w", err)
		}
		srcName, err = filepath.Abs(srcName)
		if err != nil {
			return fmt.Errorf("expanding source file path: %w", err)
		}
		chunker := cctx.String("chunker")
		if _, err := chunk.FromString(bytes.NewReader(nil), chunker); err != nil {
			return fmt.Errorf("invalid chunker %q: %w", chunker, err)
		}

		_, store, err := openStore(cctx)
		if err != nil {
			return err
		}
		defer closeStore(store, &err)

		if cctx.Bool("car") {
			return importCar(cctx, store, srcName)
		}
		root, size, err := importUnixFS(store, srcName, chunker)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %s (%d bytes) as %s\n", srcName, size, cidcodec.Encode(root))
		return nil
	},
}

func importCar(cctx *cli.Context, store blockstore.Store, srcName string) error {
	f, err := os.Open(srcName)
	if err != nil {
		return fmt.Errorf("opening CAR: %w", err)
	}
	defer f.Close()
	summary, err := carimport.Import(cctx.Context, f, store)
	if err != nil {
		return fmt.Errorf("importing %s: %w", srcName, err)
	}
	for _, root := range summary.Roots {
		fmt.Printf("Root %s\n", cidcodec.Encode(root))
	}
	for _, root := range summary.Discovered {
		fmt.Printf("Unreferenced %s\n", cidcodec.Encode(root))
	}
	fmt.Printf("Imported %d blocks (%d bytes)\n", summary.Blocks, summary.Bytes)
	return nil
}

// importUnixFS builds a UnixFS DAG straight into the store. The chunker
// applies to single files; directories use the builder's default.
func importUnixFS(store blockstore.Store, srcName string, chunker string) (cid.Cid, uint64, error) {
	info, err := os.Stat(srcName)
	if err != nil {
		return cid.Undef, 0, err
	}
	lsys := storeutil.LinkSystemForStore(store)
	var root ipld.Link
	var size uint64
	if info.IsDir() {
		root, size, err = builder.BuildUnixFSRecursive(srcName, &lsys)
	} else {
		var f *os.File
		f, err = os.Open(srcName)
		if err != nil {
			return cid.Undef, 0, err
		}
		defer f.Close()
		root, size, err = builder.BuildUnixFSFile(f, chunker, &lsys)
	}
	if err != nil {
		return cid.Undef, 0, fmt.Errorf("importing data: %w", err)
	}
	return root.(cidlink.Link).Cid, size, nil
}
