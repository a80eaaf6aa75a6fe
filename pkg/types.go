package nearfs

import (
	"context"
	"io"

	"github.com/ipfs/go-cid"
	"github.com/nearfs/gateway/pkg/assembler"
)

// UnknownSize marks a FileStream whose total length could not be derived
// without reading it.
const UnknownSize int64 = -1

// Result is the outcome of a successful resolution: a *FileStream or a
// *DirectoryListing. Not found is reported as ErrNotFound.
type Result interface {
	// Cid is the CID the path resolved to
	Cid() cid.Cid
	isResult()
}

// FileStream is a lazily assembled file. Opening it starts block reads.
type FileStream struct {
	Root   cid.Cid
	Size   int64
	Source assembler.Source
}

func (fs *FileStream) Cid() cid.Cid { return fs.Root }
func (*FileStream) isResult()       {}

// Open returns a reader over the whole file contents
func (fs *FileStream) Open(ctx context.Context) (io.ReadCloser, error) {
	return fs.Source.Open(ctx)
}

// HasSize reports whether the total byte length is known
func (fs *FileStream) HasSize() bool {
	return fs.Size >= 0
}

// DirectoryListing is a UnixFS directory node whose links are listed in node
// order.
type DirectoryListing struct {
	Root cid.Cid
	Node *Node
}

func (dl *DirectoryListing) Cid() cid.Cid { return dl.Root }
func (*DirectoryListing) isResult()       {}

// Links returns the directory entries in node order
func (dl *DirectoryListing) Links() []Link {
	return dl.Node.Links
}
