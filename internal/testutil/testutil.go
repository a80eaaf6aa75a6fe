package testutil

import (
	"bytes"
	"context"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-unixfsnode/data"
	"github.com/ipfs/go-unixfsnode/data/builder"
	dagpb "github.com/ipld/go-codec-dagpb"
	"github.com/ipld/go-ipld-prime"
	"github.com/ipld/go-ipld-prime/fluent/qp"
	cidlink "github.com/ipld/go-ipld-prime/linking/cid"
	"github.com/jbenet/go-random"
	"github.com/nearfs/gateway/internal/storeutil"
	"github.com/nearfs/gateway/pkg/blockstore"
	"github.com/nearfs/gateway/pkg/cidcodec"
	"github.com/stretchr/testify/require"
)

var seed int64

// RandomBytes returns n pseudo random bytes, different on every call
func RandomBytes(n int64) []byte {
	var buf bytes.Buffer
	if err := random.WritePseudoRandomBytes(n, &buf, atomic.AddInt64(&seed, 1)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// GenerateCid returns the raw CID of some random bytes
func GenerateCid() cid.Cid {
	c, err := cidcodec.Sum(cidcodec.Raw, RandomBytes(64))
	if err != nil {
		panic(err)
	}
	return c
}

func GenerateCids(n int) []cid.Cid {
	cids := make([]cid.Cid, 0, n)
	for i := 0; i < n; i++ {
		cids = append(cids, GenerateCid())
	}
	return cids
}

// DAG writes fixture blocks into a store
type DAG struct {
	t     *testing.T
	Store blockstore.Store
	LSys  ipld.LinkSystem
}

func NewDAG(t *testing.T, store blockstore.Store) *DAG {
	return &DAG{t: t, Store: store, LSys: storeutil.LinkSystemForStore(store)}
}

// Raw stores data as a raw block
func (d *DAG) Raw(content []byte) cid.Cid {
	c, err := cidcodec.Sum(cidcodec.Raw, content)
	require.NoError(d.t, err)
	require.NoError(d.t, d.Store.Put(context.Background(), cidcodec.Digest(c), content))
	return c
}

// File builds a UnixFS file with the standard chunker and raw leaves
func (d *DAG) File(content []byte, chunkSize int) (cid.Cid, uint64) {
	lnk, size, err := builder.BuildUnixFSFile(bytes.NewReader(content), "size-"+strconv.Itoa(chunkSize), &d.LSys)
	require.NoError(d.t, err)
	return lnk.(cidlink.Link).Cid, size
}

type Entry struct {
	Name string
	Cid  cid.Cid
	Size uint64
}

// Dir builds a UnixFS directory. Links end up sorted by name.
func (d *DAG) Dir(entries ...Entry) cid.Cid {
	pbLinks := make([]dagpb.PBLink, 0, len(entries))
	for _, e := range entries {
		l, err := builder.BuildUnixFSDirectoryEntry(e.Name, int64(e.Size), cidlink.Link{Cid: e.Cid})
		require.NoError(d.t, err)
		pbLinks = append(pbLinks, l)
	}
	lnk, _, err := builder.BuildUnixFSDirectory(pbLinks, &d.LSys)
	require.NoError(d.t, err)
	return lnk.(cidlink.Link).Cid
}

// PBLink describes a link of a hand built dag-pb node
type PBLink struct {
	Name  string
	Cid   cid.Cid
	Tsize int64
	// NoName and NoTsize omit the optional fields entirely
	NoName  bool
	NoTsize bool
}

// Node encodes and stores an arbitrary dag-pb node. unixfs is the raw Data
// field; nil leaves it absent.
func (d *DAG) Node(links []PBLink, unixfs []byte) cid.Cid {
	block := EncodeNode(d.t, links, unixfs)
	c, err := cidcodec.Sum(cidcodec.DagPb, block)
	require.NoError(d.t, err)
	require.NoError(d.t, d.Store.Put(context.Background(), cidcodec.Digest(c), block))
	return c
}

// EncodeNode serializes a dag-pb node. The codec sorts links by name,
// keeping the given order among equal names.
func EncodeNode(t *testing.T, links []PBLink, unixfs []byte) []byte {
	fields := int64(1)
	if unixfs != nil {
		fields++
	}
	nd, err := qp.BuildMap(dagpb.Type.PBNode, fields, func(ma ipld.MapAssembler) {
		qp.MapEntry(ma, "Links", qp.List(int64(len(links)), func(la ipld.ListAssembler) {
			for _, l := range links {
				l := l
				qp.ListEntry(la, qp.Map(3, func(ma ipld.MapAssembler) {
					qp.MapEntry(ma, "Hash", qp.Link(cidlink.Link{Cid: l.Cid}))
					if !l.NoName {
						qp.MapEntry(ma, "Name", qp.String(l.Name))
					}
					if !l.NoTsize {
						qp.MapEntry(ma, "Tsize", qp.Int(l.Tsize))
					}
				}))
			}
		}))
		if unixfs != nil {
			qp.MapEntry(ma, "Data", qp.Bytes(unixfs))
		}
	})
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, dagpb.Encode(nd, &buf))
	return buf.Bytes()
}

// UnixFS encodes a UnixFS Data field. A negative fileSize leaves it absent.
func UnixFS(t *testing.T, dataType int64, content []byte, fileSize int64, blockSizes ...uint64) []byte {
	ufs, err := builder.BuildUnixFS(func(b *builder.Builder) {
		builder.DataType(b, dataType)
		if content != nil {
			builder.Data(b, content)
		}
		if fileSize >= 0 {
			builder.FileSize(b, uint64(fileSize))
		}
		if len(blockSizes) > 0 {
			builder.BlockSizes(b, blockSizes)
		}
	})
	require.NoError(t, err)
	return data.EncodeUnixFSData(ufs)
}
