// Package dagnode turns block bytes into nearfs.Node values
package dagnode

import (
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-unixfsnode/data"
	dagpb "github.com/ipld/go-codec-dagpb"
	cidlink "github.com/ipld/go-ipld-prime/linking/cid"
	nearfs "github.com/nearfs/gateway/pkg"
	"github.com/nearfs/gateway/pkg/cidcodec"
)

var (
	ErrNotProtobuf       = errors.New("block is not a dag-pb node")
	ErrEmptyFile         = errors.New("file node has neither data nor links")
	ErrUnsupportedUnixFS = errors.New("unsupported unixfs type")
	ErrNegativeSize      = errors.New("negative size")
	ErrLinkNotCid        = errors.New("link is not a CID")
)

// Decode parses the block stored under c. Only the codec of c is consulted;
// the caller is expected to have checked that data hashes to c.
func Decode(c cid.Cid, block []byte) (*nearfs.Node, error) {
	switch codec := c.Prefix().Codec; codec {
	case cidcodec.Raw:
		return &nearfs.Node{Cid: c, Kind: nearfs.NodeLeaf, Data: block}, nil
	case cidcodec.DagPb:
		return decodeDagPb(c, block)
	default:
		return nil, nearfs.ErrUnsupportedCodec{Codec: codec}
	}
}

func malformed(c cid.Cid, err error) error {
	return nearfs.ErrMalformedNode{Cid: c, Err: err}
}

func decodeDagPb(c cid.Cid, block []byte) (*nearfs.Node, error) {
	nb := dagpb.Type.PBNode.NewBuilder()
	if err := dagpb.DecodeBytes(nb, block); err != nil {
		return nil, malformed(c, fmt.Errorf("%w: %s", ErrNotProtobuf, err))
	}
	pbnd, ok := nb.Build().(dagpb.PBNode)
	if !ok {
		return nil, malformed(c, ErrNotProtobuf)
	}

	nd := &nearfs.Node{Cid: c}
	links, err := decodeLinks(pbnd)
	if err != nil {
		return nil, malformed(c, err)
	}
	nd.Links = links

	if !pbnd.FieldData().Exists() {
		nd.Kind = classifyUntyped(links)
		return nd, nil
	}

	ufsdata, err := data.DecodeUnixFSData(pbnd.FieldData().Must().Bytes())
	if err != nil {
		return nil, malformed(c, fmt.Errorf("decoding unixfs data: %w", err))
	}
	switch dt := ufsdata.FieldDataType().Int(); dt {
	case data.Data_File, data.Data_Raw:
		nd.Kind = nearfs.NodeFile
	case data.Data_Directory:
		nd.Kind = nearfs.NodeDirectory
	default:
		return nil, malformed(c, fmt.Errorf("%w: %s", ErrUnsupportedUnixFS, data.DataTypeNames[dt]))
	}
	if ufsdata.FieldData().Exists() {
		nd.Data = ufsdata.FieldData().Must().Bytes()
	}
	if ufsdata.FieldFileSize().Exists() {
		size := ufsdata.FieldFileSize().Must().Int()
		if size < 0 {
			return nil, malformed(c, fmt.Errorf("%w: filesize %d", ErrNegativeSize, size))
		}
		nd.FileSize = uint64(size)
		nd.HasFileSize = true
	}
	if nd.Kind == nearfs.NodeFile && len(nd.Data) == 0 && len(nd.Links) == 0 {
		if !nd.HasFileSize || nd.FileSize != 0 {
			return nil, malformed(c, ErrEmptyFile)
		}
	}
	return nd, nil
}

func decodeLinks(pbnd dagpb.PBNode) ([]nearfs.Link, error) {
	links := make([]nearfs.Link, 0, pbnd.FieldLinks().Length())
	iter := pbnd.FieldLinks().Iterator()
	for !iter.Done() {
		_, next := iter.Next()
		lnk, ok := next.FieldHash().Link().(cidlink.Link)
		if !ok {
			return nil, ErrLinkNotCid
		}
		l := nearfs.Link{Cid: lnk.Cid}
		if next.FieldName().Exists() {
			l.Name = next.FieldName().Must().String()
		}
		if next.FieldTsize().Exists() {
			tsize := next.FieldTsize().Must().Int()
			if tsize < 0 {
				return nil, fmt.Errorf("%w: tsize %d on link %q", ErrNegativeSize, tsize, l.Name)
			}
			l.Size = uint64(tsize)
			l.HasSize = true
		}
		links = append(links, l)
	}
	return links, nil
}

// classifyUntyped handles dag-pb nodes that carry no UnixFS data. Older
// writers chunked files into unnamed links without a type tag.
func classifyUntyped(links []nearfs.Link) nearfs.NodeKind {
	for _, l := range links {
		if l.Name != "" {
			return nearfs.NodeUntyped
		}
	}
	return nearfs.NodeLegacyFile
}
