package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nearfs/gateway/pkg/ingest"
	"github.com/urfave/cli/v2"
)

var loadLakeCmd = &cli.Command{
	Name:   "load-lake",
	Usage:  "Store fs_store payloads from NEAR Lake into the block store",
	Before: before,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "bucket-name",
			Usage: "NEAR Lake S3 bucket",
		},
		&cli.StringFlag{
			Name:  "region-name",
			Usage: "NEAR Lake S3 region",
		},
		&cli.StringFlag{
			Name:  "endpoint",
			Usage: "S3 compatible endpoint URL",
		},
		&cli.StringFlag{
			Name:  "dir",
			Usage: "read a NEAR Lake mirrored to a local directory instead of S3",
		},
		&cli.Uint64Flag{
			Name:  "start-block-height",
			Usage: "block height to start loading from. By default resumes after the latest stored block height",
		},
		&cli.StringSliceFlag{
			Name:  "include",
			Usage: "include only accounts matching this glob pattern. Can be specified multiple times; every pattern must match",
		},
		&cli.StringSliceFlag{
			Name:  "exclude",
			Usage: "exclude accounts matching this glob pattern. Can be specified multiple times",
		},
		&cli.IntFlag{
			Name:  "batch-size",
			Usage: "how many blocks to fetch in parallel",
		},
		&cli.IntFlag{
			Name:  "limit",
			Usage: "how many blocks to process before stopping. Unlimited by default",
		},
		&cli.BoolFlag{
			Name:  "update-block-height",
			Usage: "record the processed block height and timestamp",
			Value: true,
		},
		&cli.BoolFlag{
			Name:  "follow",
			Usage: "keep polling for new blocks once caught up",
		},
	},
	Action: func(cctx *cli.Context) (err error) {
		cfg, store, err := openStore(cctx)
		if err != nil {
			return err
		}
		defer closeStore(store, &err)

		lakeCfg := cfg.Lake
		if cctx.IsSet("bucket-name") {
			lakeCfg.Bucket = cctx.String("bucket-name")
		}
		if cctx.IsSet("region-name") {
			lakeCfg.Region = cctx.String("region-name")
		}
		if cctx.IsSet("endpoint") {
			lakeCfg.Endpoint = cctx.String("endpoint")
		}
		if cctx.IsSet("dir") {
			lakeCfg.Dir = cctx.String("dir")
		}
		if cctx.IsSet("batch-size") {
			lakeCfg.BatchSize = cctx.Int("batch-size")
		}
		if cctx.IsSet("limit") {
			lakeCfg.Limit = cctx.Int("limit")
		}
		if cctx.IsSet("follow") {
			lakeCfg.Follow = cctx.Bool("follow")
		}
		lakeCfg.Include = append(lakeCfg.Include, cctx.StringSlice("include")...)
		lakeCfg.Exclude = append(lakeCfg.Exclude, cctx.StringSlice("exclude")...)

		processor, err := ingest.NewProcessor(store,
			ingest.WithInclude(lakeCfg.Include...),
			ingest.WithExclude(lakeCfg.Exclude...),
			ingest.WithUpdateProgress(cctx.Bool("update-block-height")),
		)
		if err != nil {
			return err
		}

		var bucket ingest.Bucket
		if lakeCfg.Dir != "" {
			bucket = ingest.NewDirBucket(lakeCfg.Dir)
		} else {
			bucket, err = ingest.NewS3Bucket(lakeCfg.Region, lakeCfg.Endpoint, lakeCfg.Bucket)
			if err != nil {
				return fmt.Errorf("connecting to NEAR Lake: %w", err)
			}
		}
		opts := []ingest.LakeOption{ingest.WithBatchSize(lakeCfg.BatchSize)}
		if lakeCfg.Follow {
			opts = append(opts, ingest.WithFollow(ingest.DefaultPollInterval))
		}
		lake := ingest.NewLake(bucket, opts...)

		start := lakeCfg.StartBlockHeight
		if cctx.IsSet("start-block-height") {
			start = cctx.Uint64("start-block-height")
		} else if latest, ok, err := store.LatestHeight(cctx.Context); err != nil {
			return fmt.Errorf("reading latest block height: %w", err)
		} else if ok {
			start = latest + 1
		}

		log.Infow("loading from NEAR Lake", "bucket", lakeCfg.Bucket, "dir", lakeCfg.Dir, "start", start)
		started := time.Now()
		processed := 0
		err = lake.Stream(cctx.Context, start, func(ctx context.Context, msg *ingest.StreamerMessage) error {
			if _, err := processor.Process(ctx, msg); err != nil {
				return err
			}
			processed++
			if processed%100 == 0 {
				speed := float64(processed) / time.Since(started).Seconds()
				log.Infow("progress", "blocks", processed, "blocks_per_second", fmt.Sprintf("%.2f", speed))
			}
			if lakeCfg.Limit > 0 && processed >= lakeCfg.Limit {
				return ingest.ErrStop
			}
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Printf("Processed %d blocks\n", processed)
		return nil
	},
}
