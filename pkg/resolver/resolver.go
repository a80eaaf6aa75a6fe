/*
Package resolver walks UnixFS DAGs held in a block store.

Path segments and index document hops are followed in a loop. Chunked files
are resolved into a lazily assembled stream: a child block is only read when
the reader reaches it, so at most one chunk of file data is in memory per
nesting level. Path hops, index hops and chunk tree levels all count towards
the maximum depth.
*/
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	nearfs "github.com/nearfs/gateway/pkg"
	"github.com/nearfs/gateway/pkg/assembler"
	"github.com/nearfs/gateway/pkg/blockstore"
	"github.com/nearfs/gateway/pkg/cidcodec"
	"github.com/nearfs/gateway/pkg/dagnode"
	"golang.org/x/sync/errgroup"
)

var log = logging.Logger("nearfs/resolver")

const (
	DefaultMaxDepth = 64
	DefaultMaxLinks = 1 << 16

	// IndexDocument is served in place of a directory listing when present
	IndexDocument = "index.html"
)

var (
	ErrDepthExceeded  = errors.New("maximum DAG depth exceeded")
	ErrTooManyLinks   = errors.New("too many links in chunked file")
	ErrDirectoryChunk = errors.New("directory used as a file chunk")
	ErrNotServable    = errors.New("node is neither a file nor a directory")
)

type Option func(*Resolver)

// WithMaxDepth bounds the number of hops and chunk levels in one resolution
func WithMaxDepth(depth int) Option {
	return func(r *Resolver) {
		r.maxDepth = depth
	}
}

// WithMaxLinks bounds the number of chunks a single file node may have
func WithMaxLinks(links int) Option {
	return func(r *Resolver) {
		r.maxLinks = links
	}
}

// WithEagerSizes controls whether chunk sizes are resolved up front when a
// file declares no total size. When disabled such files have UnknownSize.
func WithEagerSizes(eager bool) Option {
	return func(r *Resolver) {
		r.eagerSizes = eager
	}
}

type Resolver struct {
	store      blockstore.Reader
	maxDepth   int
	maxLinks   int
	eagerSizes bool
}

var _ nearfs.PathResolver = (*Resolver)(nil)

func New(store blockstore.Reader, opts ...Option) *Resolver {
	r := &Resolver{
		store:      store,
		maxDepth:   DefaultMaxDepth,
		maxLinks:   DefaultMaxLinks,
		eagerSizes: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Resolve(ctx context.Context, root cid.Cid, path string, useIndexDocument bool) (nearfs.Result, error) {
	current := root
	remaining := path
	for depth := 0; ; depth++ {
		if depth > r.maxDepth {
			return nil, malformed(current, ErrDepthExceeded)
		}
		nd, err := r.load(ctx, current)
		if err != nil {
			var notFound nearfs.ErrNotFound
			if errors.As(err, &notFound) {
				return nil, nearfs.ErrNotFound{Cid: root, Path: path}
			}
			return nil, err
		}

		var segment string
		segment, remaining = nextSegment(remaining)
		if segment != "" {
			// a leaf has no sub-paths
			if nd.Kind == nearfs.NodeLeaf {
				return nil, nearfs.ErrNotFound{Cid: root, Path: path}
			}
			link, ok := nd.Lookup(segment)
			if !ok {
				return nil, nearfs.ErrNotFound{Cid: root, Path: path}
			}
			log.Debugw("path hop", "from", current, "segment", segment, "to", link.Cid)
			current = link.Cid
			continue
		}

		switch nd.Kind {
		case nearfs.NodeDirectory:
			if useIndexDocument {
				if link, ok := nd.Lookup(IndexDocument); ok {
					log.Debugw("index document", "directory", current, "index", link.Cid)
					current = link.Cid
					// the index document is never itself resolved to its index
					useIndexDocument = false
					continue
				}
			}
			return &nearfs.DirectoryListing{Root: current, Node: nd}, nil
		case nearfs.NodeUntyped:
			return nil, malformed(current, ErrNotServable)
		default:
			return r.fileStream(ctx, nd, depth)
		}
	}
}

// nextSegment splits off the first non-empty path segment
func nextSegment(path string) (string, string) {
	for {
		path = strings.TrimPrefix(path, "/")
		if path == "" {
			return "", ""
		}
		segment, rest, _ := strings.Cut(path, "/")
		if segment != "" {
			return segment, rest
		}
		path = rest
	}
}

func malformed(c cid.Cid, err error) error {
	return nearfs.ErrMalformedNode{Cid: c, Err: err}
}

func (r *Resolver) load(ctx context.Context, c cid.Cid) (*nearfs.Node, error) {
	if err := cidcodec.Validate(c); err != nil {
		return nil, err
	}
	block, err := r.store.Get(ctx, cidcodec.Digest(c))
	if err != nil {
		if errors.Is(err, blockstore.ErrNotFound) {
			return nil, nearfs.ErrNotFound{Cid: c}
		}
		return nil, nearfs.ErrStorageBackend{Op: "get " + cidcodec.Encode(c), Err: err}
	}
	return dagnode.Decode(c, block)
}

func (r *Resolver) fileStream(ctx context.Context, nd *nearfs.Node, depth int) (*nearfs.FileStream, error) {
	source, err := r.contentSource(nd, depth)
	if err != nil {
		return nil, err
	}
	size, err := r.nodeSize(ctx, nd, depth)
	if err != nil {
		return nil, err
	}
	return &nearfs.FileStream{Root: nd.Cid, Size: size, Source: source}, nil
}

// contentSource describes the bytes of a file node without reading any
// child block
func (r *Resolver) contentSource(nd *nearfs.Node, depth int) (assembler.Source, error) {
	switch nd.Kind {
	case nearfs.NodeLeaf:
		return assembler.Bytes(nd.Data), nil
	case nearfs.NodeFile, nearfs.NodeLegacyFile:
		if len(nd.Links) == 0 {
			return assembler.Bytes(nd.Data), nil
		}
		if len(nd.Links) > r.maxLinks {
			return nil, malformed(nd.Cid, fmt.Errorf("%w: %d", ErrTooManyLinks, len(nd.Links)))
		}
		sources := make([]assembler.Source, 0, len(nd.Links)+1)
		if len(nd.Data) > 0 {
			sources = append(sources, assembler.Bytes(nd.Data))
		}
		for _, link := range nd.Links {
			sources = append(sources, r.chunkSource(link.Cid, depth+1))
		}
		return assembler.Concat(sources...), nil
	case nearfs.NodeDirectory:
		return nil, malformed(nd.Cid, ErrDirectoryChunk)
	default:
		return nil, malformed(nd.Cid, ErrNotServable)
	}
}

// chunkSource loads a child when the assembler reaches it. Nested file nodes
// are expanded the same way, one level at a time.
func (r *Resolver) chunkSource(c cid.Cid, depth int) assembler.Source {
	return assembler.SourceFunc(func(ctx context.Context) (io.ReadCloser, error) {
		if depth > r.maxDepth {
			return nil, malformed(c, ErrDepthExceeded)
		}
		nd, err := r.load(ctx, c)
		if err != nil {
			return nil, err
		}
		source, err := r.contentSource(nd, depth)
		if err != nil {
			return nil, err
		}
		return source.Open(ctx)
	})
}

// nodeSize is the total byte length of a file node: the declared size when
// present, otherwise the sum of its chunks
func (r *Resolver) nodeSize(ctx context.Context, nd *nearfs.Node, depth int) (int64, error) {
	switch nd.Kind {
	case nearfs.NodeLeaf:
		return int64(len(nd.Data)), nil
	case nearfs.NodeFile, nearfs.NodeLegacyFile:
	case nearfs.NodeDirectory:
		return 0, malformed(nd.Cid, ErrDirectoryChunk)
	default:
		return 0, malformed(nd.Cid, ErrNotServable)
	}
	if len(nd.Links) == 0 {
		return int64(len(nd.Data)), nil
	}
	if len(nd.Links) > r.maxLinks {
		return 0, malformed(nd.Cid, fmt.Errorf("%w: %d", ErrTooManyLinks, len(nd.Links)))
	}
	if nd.HasFileSize {
		return int64(nd.FileSize), nil
	}
	if !r.eagerSizes {
		return nearfs.UnknownSize, nil
	}

	sizes := make([]int64, len(nd.Links))
	g, gctx := errgroup.WithContext(ctx)
	for i, link := range nd.Links {
		i, link := i, link
		g.Go(func() error {
			size, err := r.linkSize(gctx, link, depth+1)
			sizes[i] = size
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	total := int64(len(nd.Data))
	for _, size := range sizes {
		total += size
	}
	return total, nil
}

func (r *Resolver) linkSize(ctx context.Context, link nearfs.Link, depth int) (int64, error) {
	if depth > r.maxDepth {
		return 0, malformed(link.Cid, ErrDepthExceeded)
	}
	// the advertised size of a raw leaf is its length
	if link.Cid.Prefix().Codec == cidcodec.Raw && link.HasSize {
		return int64(link.Size), nil
	}
	nd, err := r.load(ctx, link.Cid)
	if err != nil {
		return 0, err
	}
	return r.nodeSize(ctx, nd, depth)
}
