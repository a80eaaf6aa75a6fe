package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	nearfs "github.com/nearfs/gateway/pkg"
	"github.com/nearfs/gateway/pkg/cidcodec"
	"github.com/nearfs/gateway/pkg/resolver"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
)

var getCmd = &cli.Command{
	Name:      "get",
	Usage:     "Resolve <cid>[/path] against the block store and print the file or directory listing",
	ArgsUsage: "<cid>[/path] [output]",
	Before:    before,
	Action: func(cctx *cli.Context) (err error) {
		if cctx.Args().Len() < 1 || cctx.Args().Len() > 2 {
			return fmt.Errorf("usage: get <cid>[/path] [output]")
		}
		target := strings.TrimPrefix(cctx.Args().First(), "/ipfs/")
		cidString, subPath, _ := strings.Cut(target, "/")
		root, err := cidcodec.Decode(cidString)
		if err != nil {
			return err
		}

		cfg, store, err := openStore(cctx)
		if err != nil {
			return err
		}
		defer closeStore(store, &err)

		r := resolver.New(store,
			resolver.WithMaxDepth(cfg.Server.MaxDepth),
			resolver.WithMaxLinks(cfg.Server.MaxLinks),
		)
		result, err := r.Resolve(cctx.Context, root, subPath, false)
		if err != nil {
			return err
		}

		if cctx.Args().Len() == 2 {
			return writeOutput(cctx.Args().Get(1), func(out io.Writer) error {
				return writeResult(cctx.Context, out, result)
			})
		}
		return writeResult(cctx.Context, os.Stdout, result)
	},
}

// writeOutput creates name and hands it to write. A failed close is reported
// since it can lose buffered data.
func writeOutput(name string, write func(io.Writer) error) (err error) {
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()
	return write(f)
}

// writeResult prints a directory listing, or copies the file contents
func writeResult(ctx context.Context, out io.Writer, result nearfs.Result) error {
	switch result := result.(type) {
	case *nearfs.DirectoryListing:
		for _, link := range result.Links() {
			if _, err := fmt.Fprintf(out, "%s\t%d\t%s\n", cidcodec.Encode(link.Cid), link.Size, link.Name); err != nil {
				return err
			}
		}
		return nil
	case *nearfs.FileStream:
		content, err := result.Open(ctx)
		if err != nil {
			return err
		}
		defer content.Close()
		if _, err := io.Copy(out, content); err != nil {
			return fmt.Errorf("reading %s: %w", cidcodec.Encode(result.Cid()), err)
		}
		return nil
	default:
		return fmt.Errorf("unexpected result %T", result)
	}
}
