package main

import (
	"fmt"

	"github.com/nearfs/gateway/internal/storeutil"
	"github.com/urfave/cli/v2"
)

var initCmd = &cli.Command{
	Name:   "init",
	Usage:  "Prepare the configured block store for first use",
	Before: before,
	Flags:  []cli.Flag{},
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		if err := storeutil.Init(cctx.Context, cfg.Storage); err != nil {
			return fmt.Errorf("initializing %s block store: %w", cfg.Storage.Type, err)
		}
		fmt.Printf("Initialized %s block store\n", cfg.Storage.Type)
		return nil
	},
}
