package nearfs

import (
	"fmt"

	"github.com/ipfs/go-cid"
)

// ErrNotFound is the expected negative result of a resolution: the block is
// absent or the path names no link.
type ErrNotFound struct {
	Cid  cid.Cid
	Path string
}

func (e ErrNotFound) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("unable to find CID: %s", e.Cid)
	}
	return fmt.Sprintf("unable to find %q under CID: %s", e.Path, e.Cid)
}

type ErrInvalidCID struct {
	Text   string
	Reason string
}

func (e ErrInvalidCID) Error() string {
	return fmt.Sprintf("invalid CID %q: %s", e.Text, e.Reason)
}

type ErrUnsupportedCodec struct {
	Codec uint64
}

func (e ErrUnsupportedCodec) Error() string {
	return fmt.Sprintf("unsupported CID codec 0x%x", e.Codec)
}

// ErrMalformedNode signals corrupt or unsupported DAG data. It is a server
// error and is never reported as not found.
type ErrMalformedNode struct {
	Cid cid.Cid
	Err error
}

func (e ErrMalformedNode) Unwrap() error {
	return e.Err
}

func (e ErrMalformedNode) Error() string {
	return fmt.Sprintf("malformed node %s: %s", e.Cid, e.Err)
}

// ErrStorageBackend wraps an I/O failure talking to the block store.
type ErrStorageBackend struct {
	Op  string
	Err error
}

func (e ErrStorageBackend) Unwrap() error {
	return e.Err
}

func (e ErrStorageBackend) Error() string {
	return fmt.Sprintf("block store %s: %s", e.Op, e.Err)
}
