package carimport

import (
	"github.com/ipfs/go-cid"
	"github.com/nearfs/gateway/pkg/cidcodec"
	"github.com/nearfs/gateway/pkg/dagnode"
)

// rootTracker finds the blocks of an archive that no other block of the
// archive links to
type rootTracker struct {
	order    []cid.Cid
	seen     map[cid.Cid]struct{}
	nonRoots map[cid.Cid]struct{}
}

func newRootTracker() *rootTracker {
	return &rootTracker{
		seen:     make(map[cid.Cid]struct{}),
		nonRoots: make(map[cid.Cid]struct{}),
	}
}

func (rt *rootTracker) observe(c cid.Cid, data []byte) {
	if _, ok := rt.seen[c]; !ok {
		rt.seen[c] = struct{}{}
		rt.order = append(rt.order, c)
	}
	// raw blocks have no children
	if c.Prefix().Codec != cidcodec.DagPb {
		return
	}
	nd, err := dagnode.Decode(c, data)
	if err != nil {
		log.Debugw("not tracking children of undecodable node", "cid", c, "err", err)
		return
	}
	for _, link := range nd.Links {
		rt.nonRoots[link.Cid] = struct{}{}
	}
}

// roots returns the unreferenced blocks in archive order
func (rt *rootTracker) roots() []cid.Cid {
	var roots []cid.Cid
	for _, c := range rt.order {
		if _, ok := rt.nonRoots[c]; !ok {
			roots = append(roots, c)
		}
	}
	return roots
}
