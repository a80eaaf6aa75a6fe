/*
Package ingest stores the blocks that NEAR contracts publish through fs_store
calls.

Every fs_store function call carries one block as its base64 arguments. The
processor writes those bytes under their sha256 digest and then records the
height and timestamp of the NEAR block it finished, which the gateway's
liveness probe reads back.
*/
package ingest

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	logging "github.com/ipfs/go-log/v2"
	"github.com/nearfs/gateway/pkg/blockstore"
	"go.uber.org/multierr"
)

var log = logging.Logger("nearfs/ingest")

// StoreMethod is the contract method whose arguments are stored blocks
const StoreMethod = "fs_store"

type Option func(*Processor)

// WithInclude keeps only receipts whose receiver matches every one of the
// glob patterns
func WithInclude(patterns ...string) Option {
	return func(p *Processor) {
		p.include = append(p.include, patterns...)
	}
}

// WithExclude drops receipts whose receiver matches any of the glob patterns
func WithExclude(patterns ...string) Option {
	return func(p *Processor) {
		p.exclude = append(p.exclude, patterns...)
	}
}

// WithUpdateProgress controls whether the processed height and timestamp are
// persisted after each message
func WithUpdateProgress(update bool) Option {
	return func(p *Processor) {
		p.updateProgress = update
	}
}

type Processor struct {
	store          blockstore.Store
	include        []string
	exclude        []string
	updateProgress bool
}

// Stats counts what one message contributed
type Stats struct {
	Receipts int
	Skipped  int
	Blocks   int
	Bytes    int64
}

func NewProcessor(store blockstore.Store, opts ...Option) (*Processor, error) {
	p := &Processor{store: store, updateProgress: true}
	for _, opt := range opts {
		opt(p)
	}
	var err error
	for _, pattern := range append(append([]string{}, p.include...), p.exclude...) {
		if !doublestar.ValidatePattern(pattern) {
			err = multierr.Append(err, fmt.Errorf("receiver pattern %q: %w", pattern, doublestar.ErrBadPattern))
		}
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Process stores every fs_store payload in msg. Any error is fatal to the
// run: progress is only recorded once all of a message's blocks are stored.
func (p *Processor) Process(ctx context.Context, msg *StreamerMessage) (Stats, error) {
	var stats Stats
	header := msg.Block.Header
	for _, shard := range msg.Shards {
		if shard.Chunk == nil {
			continue
		}
		for _, receipt := range shard.Chunk.Receipts {
			stats.Receipts++
			if !p.accepts(receipt.ReceiverID) {
				stats.Skipped++
				continue
			}
			if receipt.Receipt.Action == nil {
				continue
			}
			for _, action := range receipt.Receipt.Action.Actions {
				call := action.FunctionCall
				if call == nil || call.MethodName != StoreMethod {
					continue
				}
				data, err := base64.StdEncoding.DecodeString(call.Args)
				if err != nil {
					return stats, fmt.Errorf("block %d: decoding %s args for %s: %w", header.Height, StoreMethod, receipt.ReceiverID, err)
				}
				digest, err := blockstore.PutData(ctx, p.store, data)
				if err != nil {
					return stats, fmt.Errorf("block %d: storing block for %s: %w", header.Height, receipt.ReceiverID, err)
				}
				stats.Blocks++
				stats.Bytes += int64(len(data))
				log.Debugw("stored block", "height", header.Height, "receiver", receipt.ReceiverID, "digest", blockstore.Key(digest), "size", len(data))
			}
		}
	}

	if p.updateProgress {
		if err := p.store.SetLatestHeight(ctx, header.Height); err != nil {
			return stats, fmt.Errorf("recording block height %d: %w", header.Height, err)
		}
		if err := p.store.SetLatestTimestamp(ctx, int64(header.Timestamp)); err != nil {
			return stats, fmt.Errorf("recording block timestamp %d: %w", header.Timestamp, err)
		}
	}
	lag := time.Since(time.Unix(0, int64(header.Timestamp)))
	log.Infow("processed block", "height", header.Height, "shards", len(msg.Shards), "blocks", stats.Blocks, "lag", lag.Truncate(time.Millisecond))
	return stats, nil
}

// accepts applies the receiver filters. A receiver must match every include
// pattern; a match on any exclude pattern rejects it.
func (p *Processor) accepts(receiver string) bool {
	for _, pattern := range p.include {
		if !match(pattern, receiver) {
			return false
		}
	}
	for _, pattern := range p.exclude {
		if match(pattern, receiver) {
			return false
		}
	}
	return true
}

// match reports a glob match. Patterns are validated in NewProcessor.
func match(pattern, name string) bool {
	ok, _ := doublestar.Match(pattern, name)
	return ok
}
