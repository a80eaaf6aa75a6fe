package nearfs

import (
	"context"

	"github.com/ipfs/go-cid"
)

// PathResolver resolves a root CID and a slash separated path
type PathResolver interface {
	// Resolve walks from root along path. On success it returns a *FileStream
	// or a *DirectoryListing. It returns:
	// - ErrNotFound if a block is absent or a path segment names no link
	// - ErrInvalidCID / ErrUnsupportedCodec / ErrMalformedNode for structural
	//   problems in the DAG
	// - ErrStorageBackend if the block store failed
	//
	// When useIndexDocument is set and the path ends at a directory holding an
	// "index.html" link, that document is resolved instead of the listing.
	Resolve(ctx context.Context, root cid.Cid, path string, useIndexDocument bool) (Result, error)
}
