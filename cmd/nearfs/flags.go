package main

import (
	"fmt"

	"github.com/nearfs/gateway/internal/config"
	"github.com/nearfs/gateway/internal/storeutil"
	"github.com/nearfs/gateway/pkg/blockstore"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
)

var FlagConfig = &cli.StringFlag{
	Name:    "config",
	Usage:   "optional YAML config file; flags and environment override it",
	EnvVars: []string{"NEARFS_CONFIG"},
}

var storageFlags = []cli.Flag{
	FlagConfig,
	&cli.StringFlag{
		Name:    "storage-type",
		Usage:   "block store backend: fs, s3, sqlite, pebble or memory",
		EnvVars: []string{"NEARFS_STORAGE_TYPE"},
	},
	&cli.StringFlag{
		Name:    "storage-path",
		Usage:   "directory (fs, pebble) or database file (sqlite) of the block store",
		EnvVars: []string{"NEARFS_STORAGE_PATH"},
	},
	&cli.StringFlag{
		Name:    "s3-region",
		EnvVars: []string{"NEARFS_STORAGE_S3_REGION"},
	},
	&cli.StringFlag{
		Name:    "s3-endpoint",
		EnvVars: []string{"NEARFS_STORAGE_S3_ENDPOINT"},
	},
	&cli.StringFlag{
		Name:    "s3-bucket",
		EnvVars: []string{"NEARFS_STORAGE_S3_BUCKET_NAME"},
	},
	&cli.StringFlag{
		Name:    "s3-access-key",
		EnvVars: []string{"NEARFS_STORAGE_AWS_ACCESS_KEY_ID"},
	},
	&cli.StringFlag{
		Name:    "s3-secret-key",
		EnvVars: []string{"NEARFS_STORAGE_AWS_SECRET_ACCESS_KEY"},
	},
}

// loadConfig builds the configuration: defaults, then the config file, then
// any flag or environment variable that is set
func loadConfig(cctx *cli.Context) (config.Config, error) {
	cfg, err := config.Load(cctx.String(FlagConfig.Name))
	if err != nil {
		return cfg, err
	}
	overrides := []struct {
		flag   string
		target *string
	}{
		{"storage-type", &cfg.Storage.Type},
		{"storage-path", &cfg.Storage.Path},
		{"s3-region", &cfg.Storage.S3.Region},
		{"s3-endpoint", &cfg.Storage.S3.Endpoint},
		{"s3-bucket", &cfg.Storage.S3.Bucket},
		{"s3-access-key", &cfg.Storage.S3.AccessKey},
		{"s3-secret-key", &cfg.Storage.S3.SecretKey},
	}
	for _, override := range overrides {
		if cctx.IsSet(override.flag) {
			*override.target = cctx.String(override.flag)
		}
	}
	if cctx.IsSet("port") {
		cfg.Server.Port = cctx.Int("port")
	}
	if cctx.IsSet("gzip") {
		cfg.Server.Gzip = cctx.Bool("gzip")
	}
	if cctx.IsSet("eager-sizes") {
		cfg.Server.EagerSizes = cctx.Bool("eager-sizes")
	}
	if err := cfg.Normalize(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openStore loads the configuration and opens its block store
func openStore(cctx *cli.Context) (config.Config, blockstore.Store, error) {
	cfg, err := loadConfig(cctx)
	if err != nil {
		return cfg, nil, err
	}
	store, err := storeutil.Open(cctx.Context, cfg.Storage)
	if err != nil {
		return cfg, nil, fmt.Errorf("opening %s block store: %w", cfg.Storage.Type, err)
	}
	return cfg, store, nil
}

// closeStore folds the store's close error into err
func closeStore(store blockstore.Store, err *error) {
	*err = multierr.Append(*err, store.Close())
}
