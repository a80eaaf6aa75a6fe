/*
Package blockstore defines the content addressed block store the gateway reads
from and the ingestion tooling writes to.

Blocks are keyed by the sha256 digest of their bytes. A key always returns the
same bytes or nothing, and blocks are never mutated once written.
*/
package blockstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// DigestLength is the size of a block key
const DigestLength = sha256.Size

var (
	// ErrNotFound is returned by Get for an absent block. Absence is a normal
	// outcome, not a failure.
	ErrNotFound = errors.New("blockstore: block not found")
	// ErrInconsistent means a digest is already stored with a different
	// length. It contradicts content addressing and is fatal to writers.
	ErrInconsistent = errors.New("blockstore: stored block length does not match")
	// ErrDigestMismatch means a caller tried to store bytes under a key that
	// is not their sha256 digest
	ErrDigestMismatch = errors.New("blockstore: digest does not match data")
	// ErrInvalidDigest means a key is not a sha256 digest
	ErrInvalidDigest = errors.New("blockstore: invalid digest")
)

// Reader is the read side consumed by the resolution engine
type Reader interface {
	// Get returns the block stored under digest, or ErrNotFound
	Get(ctx context.Context, digest []byte) ([]byte, error)
}

// Writer is the write side used by ingestion and import tooling
type Writer interface {
	// Put stores data under digest. digest must be sha256(data). Storing a
	// block that is already present with the same length is a no-op; a
	// present block with a different length fails with ErrInconsistent.
	Put(ctx context.Context, digest []byte, data []byte) error
}

// Progress holds the two scalars written by the ingestion collaborator and
// read by the liveness probe. The slots are independent.
type Progress interface {
	LatestHeight(ctx context.Context) (uint64, bool, error)
	SetLatestHeight(ctx context.Context, height uint64) error
	// LatestTimestamp is in unix nanoseconds
	LatestTimestamp(ctx context.Context) (int64, bool, error)
	SetLatestTimestamp(ctx context.Context, timestamp int64) error
}

// Store is a complete backend
type Store interface {
	Reader
	Writer
	Progress
	Close() error
}

// Names of the persisted progress scalars, shared by all backends
const (
	LatestHeightKey    = "latest_block_height"
	LatestTimestampKey = "latest_block_timestamp"
)

// Digest returns the block key for data
func Digest(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// CheckDigest validates the shape of a key
func CheckDigest(digest []byte) error {
	if len(digest) != DigestLength {
		return fmt.Errorf("%w: length %d", ErrInvalidDigest, len(digest))
	}
	return nil
}

// VerifyDigest checks that digest is the key of data
func VerifyDigest(digest []byte, data []byte) error {
	if err := CheckDigest(digest); err != nil {
		return err
	}
	if !bytes.Equal(digest, Digest(data)) {
		return fmt.Errorf("%w: %s", ErrDigestMismatch, hex.EncodeToString(digest))
	}
	return nil
}

// CheckExisting applies the put policy to a block already present under
// digest: it reports whether the write can be skipped, or ErrInconsistent.
func CheckExisting(digest []byte, existingLen int64, newLen int) (bool, error) {
	if existingLen == int64(newLen) {
		return true, nil
	}
	return false, fmt.Errorf("%w: %s has %d bytes, writing %d", ErrInconsistent, hex.EncodeToString(digest), existingLen, newLen)
}

// PutData hashes data and stores it, returning its key
func PutData(ctx context.Context, w Writer, data []byte) ([]byte, error) {
	digest := Digest(data)
	if err := w.Put(ctx, digest, data); err != nil {
		return nil, err
	}
	return digest, nil
}

// Key renders a digest the way backends name blocks
func Key(digest []byte) string {
	return hex.EncodeToString(digest)
}

// ParseKey is the inverse of Key
func ParseKey(key string) ([]byte, error) {
	digest, err := hex.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDigest, err)
	}
	return digest, CheckDigest(digest)
}
