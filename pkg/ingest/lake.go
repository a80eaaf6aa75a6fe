package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize is how many NEAR blocks are fetched concurrently
const DefaultBatchSize = 20

// DefaultPollInterval is the wait between listings once a following lake
// has caught up
const DefaultPollInterval = time.Second

// ErrStop ends a stream early without error when returned by a handler
var ErrStop = errors.New("ingest: stop")

// Bucket is a NEAR Lake layout: one <12 digit height>/ prefix per block
// holding block.json and shard_<n>.json
type Bucket interface {
	// ListHeights returns up to max block heights >= from, ascending
	ListHeights(ctx context.Context, from uint64, max int) ([]uint64, error)
	// Fetch returns one file of the block at height
	Fetch(ctx context.Context, height uint64, name string) ([]byte, error)
}

// HeightPrefix is the object prefix of a block
func HeightPrefix(height uint64) string {
	return fmt.Sprintf("%012d", height)
}

type LakeOption func(*Lake)

func WithBatchSize(size int) LakeOption {
	return func(l *Lake) {
		l.batchSize = size
	}
}

// WithFollow keeps polling for new blocks after reaching the end of the lake
func WithFollow(interval time.Duration) LakeOption {
	return func(l *Lake) {
		l.follow = true
		l.pollInterval = interval
	}
}

// Lake streams StreamerMessages out of a Bucket in height order
type Lake struct {
	bucket       Bucket
	batchSize    int
	follow       bool
	pollInterval time.Duration
}

func NewLake(bucket Bucket, opts ...LakeOption) *Lake {
	l := &Lake{
		bucket:       bucket,
		batchSize:    DefaultBatchSize,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.batchSize <= 0 {
		l.batchSize = DefaultBatchSize
	}
	return l
}

// Stream calls handle for every block at or after from, in height order.
// Blocks of one batch are downloaded concurrently. The stream ends at the
// end of the lake unless following, or when handle returns ErrStop.
func (l *Lake) Stream(ctx context.Context, from uint64, handle func(context.Context, *StreamerMessage) error) error {
	next := from
	for {
		heights, err := l.bucket.ListHeights(ctx, next, l.batchSize)
		if err != nil {
			return fmt.Errorf("listing blocks from %d: %w", next, err)
		}
		if len(heights) == 0 {
			if !l.follow {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(l.pollInterval):
			}
			continue
		}

		messages := make([]*StreamerMessage, len(heights))
		errg, fetchCtx := errgroup.WithContext(ctx)
		for i, height := range heights {
			i, height := i, height
			errg.Go(func() error {
				msg, err := l.fetchMessage(fetchCtx, height)
				if err != nil {
					return err
				}
				messages[i] = msg
				return nil
			})
		}
		if err := errg.Wait(); err != nil {
			return err
		}

		for _, msg := range messages {
			if err := handle(ctx, msg); err != nil {
				if errors.Is(err, ErrStop) {
					return nil
				}
				return err
			}
		}
		next = heights[len(heights)-1] + 1
	}
}

func (l *Lake) fetchMessage(ctx context.Context, height uint64) (*StreamerMessage, error) {
	raw, err := l.bucket.Fetch(ctx, height, "block.json")
	if err != nil {
		return nil, fmt.Errorf("fetching block %d: %w", height, err)
	}
	msg := &StreamerMessage{}
	if err := json.Unmarshal(raw, &msg.Block); err != nil {
		return nil, fmt.Errorf("decoding block %d: %w", height, err)
	}
	msg.Shards = make([]Shard, len(msg.Block.Chunks))
	for i := range msg.Block.Chunks {
		name := fmt.Sprintf("shard_%d.json", i)
		raw, err := l.bucket.Fetch(ctx, height, name)
		if err != nil {
			return nil, fmt.Errorf("fetching block %d %s: %w", height, name, err)
		}
		if err := json.Unmarshal(raw, &msg.Shards[i]); err != nil {
			return nil, fmt.Errorf("decoding block %d %s: %w", height, name, err)
		}
	}
	return msg, nil
}
