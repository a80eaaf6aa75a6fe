package nearfs

import (
	"github.com/ipfs/go-cid"
)

// NodeKind is the structural classification of a decoded block
type NodeKind int

const (
	// NodeLeaf is a raw-codec block: file content verbatim
	NodeLeaf NodeKind = iota
	// NodeFile is a dag-pb node whose UnixFS type is File (or UnixFS Raw)
	NodeFile
	// NodeDirectory is a dag-pb node whose UnixFS type is Directory
	NodeDirectory
	// NodeLegacyFile is a dag-pb node without UnixFS data whose links are all
	// unnamed: an old-style chunked file
	NodeLegacyFile
	// NodeUntyped is a dag-pb node without UnixFS data and with named links.
	// It can be walked by path but not served.
	NodeUntyped
)

var nodeKindNames = map[NodeKind]string{
	NodeLeaf:       "leaf",
	NodeFile:       "file",
	NodeDirectory:  "directory",
	NodeLegacyFile: "legacy-file",
	NodeUntyped:    "untyped",
}

func (k NodeKind) String() string {
	if name, ok := nodeKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Link is one named edge of a dag-pb node
type Link struct {
	Name string
	Cid  cid.Cid
	// Size is the advertised cumulative size (Tsize); valid when HasSize
	Size    uint64
	HasSize bool
}

// Node is a decoded block
type Node struct {
	Cid   cid.Cid
	Kind  NodeKind
	Links []Link
	// Data is the block itself for leaves, or the UnixFS inline bytes
	Data []byte
	// FileSize is the declared total file size; valid when HasFileSize
	FileSize    uint64
	HasFileSize bool
}

// IsFile reports whether the node should be served as file content
func (n *Node) IsFile() bool {
	switch n.Kind {
	case NodeLeaf, NodeFile, NodeLegacyFile:
		return true
	default:
		return false
	}
}

// Lookup returns the first link whose name equals name exactly
func (n *Node) Lookup(name string) (Link, bool) {
	for _, l := range n.Links {
		if l.Name == name {
			return l, true
		}
	}
	return Link{}, false
}
