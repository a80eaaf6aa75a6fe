// Package cidcodec encodes and decodes the content identifiers served by the
// gateway: CIDv1, sha2-256, 32 byte digest, raw or dag-pb payload.
package cidcodec

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-cidutil/cidenc"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multicodec"
	"github.com/multiformats/go-multihash"
	"github.com/multiformats/go-varint"
	nearfs "github.com/nearfs/gateway/pkg"
)

const (
	// DigestLength is the length of a sha2-256 digest
	DigestLength = 32

	Raw    = uint64(multicodec.Raw)
	DagPb  = uint64(multicodec.DagPb)
	sha256 = uint64(multicodec.Sha2_256)
)

// base32 lower case is the only encoding that survives a DNS label
var encoder = cidenc.Encoder{Base: multibase.MustNewEncoder(multibase.Base32)}

// Decode parses the multibase text form of a CID
func Decode(text string) (cid.Cid, error) {
	if len(text) < 2 {
		return cid.Undef, nearfs.ErrInvalidCID{Text: text, Reason: "too short"}
	}
	_, raw, err := multibase.Decode(text)
	if err != nil {
		return cid.Undef, nearfs.ErrInvalidCID{Text: text, Reason: err.Error()}
	}
	version, n, err := varint.FromUvarint(raw)
	if err != nil {
		return cid.Undef, nearfs.ErrInvalidCID{Text: text, Reason: "reading version: " + err.Error()}
	}
	if version != 1 {
		return cid.Undef, nearfs.ErrInvalidCID{Text: text, Reason: fmt.Sprintf("unsupported version %d", version)}
	}
	raw = raw[n:]
	codec, n, err := varint.FromUvarint(raw)
	if err != nil {
		return cid.Undef, nearfs.ErrInvalidCID{Text: text, Reason: "reading codec: " + err.Error()}
	}
	mh := raw[n:]
	if err := checkMultihash(mh); err != nil {
		return cid.Undef, nearfs.ErrInvalidCID{Text: text, Reason: err.Error()}
	}
	if err := checkCodec(codec); err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(codec, multihash.Multihash(mh)), nil
}

// Encode renders a CID as base32 multibase text. Decode(Encode(c)) == c for
// every c accepted by Validate.
func Encode(c cid.Cid) string {
	return encoder.Encode(c)
}

// Validate applies the Decode rules to an already parsed CID
func Validate(c cid.Cid) error {
	if !c.Defined() {
		return nearfs.ErrInvalidCID{Reason: "undefined"}
	}
	if c.Version() != 1 {
		return nearfs.ErrInvalidCID{Text: c.String(), Reason: fmt.Sprintf("unsupported version %d", c.Version())}
	}
	if err := checkMultihash(c.Hash()); err != nil {
		return nearfs.ErrInvalidCID{Text: c.String(), Reason: err.Error()}
	}
	return checkCodec(c.Type())
}

// Sum builds the CIDv1 of data for the given codec
func Sum(codec uint64, data []byte) (cid.Cid, error) {
	if err := checkCodec(codec); err != nil {
		return cid.Undef, err
	}
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("computing multihash: %w", err)
	}
	return cid.NewCidV1(codec, mh), nil
}

// Digest returns the sha2-256 digest of c, which is the block store key for
// its bytes. It returns nil if c does not carry a sha2-256 multihash.
func Digest(c cid.Cid) []byte {
	decoded, err := multihash.Decode(c.Hash())
	if err != nil || decoded.Code != sha256 || len(decoded.Digest) != DigestLength {
		return nil
	}
	return decoded.Digest
}

func checkMultihash(mh []byte) error {
	decoded, err := multihash.Decode(mh)
	if err != nil {
		return fmt.Errorf("reading multihash: %w", err)
	}
	if decoded.Code != sha256 {
		return fmt.Errorf("unsupported hash function 0x%x", decoded.Code)
	}
	if len(decoded.Digest) != DigestLength {
		return fmt.Errorf("digest length %d, expected %d", len(decoded.Digest), DigestLength)
	}
	return nil
}

func checkCodec(codec uint64) error {
	switch codec {
	case Raw, DagPb:
		return nil
	default:
		return nearfs.ErrUnsupportedCodec{Codec: codec}
	}
}
