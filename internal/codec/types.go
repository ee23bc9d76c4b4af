// Package codec implements PicoFS's two interchangeable wire codecs for
// persisted state (spec.md §4.12): a self-describing CBOR codec and a
// tag/length/value (TLV) codec with varint lengths. Both round-trip every
// payload identically (P7); TLV is required to be strictly smaller than
// CBOR for every non-trivial payload (P8), since it drops CBOR's
// self-describing map keys in favor of fixed one-byte field tags.
package codec

import (
	"time"

	"github.com/picofs/picofs/internal/node"
)

// SnapshotNode is the recursive, wire-safe projection of a node.Node
// (spec.md §4.12). Nullable fields are distinguished from empty
// collections/strings by the codec's presence handling, not by Go zero
// values alone (a directory legitimately has zero children; a file
// legitimately has zero xattrs).
type SnapshotNode struct {
	Name             string
	Type             node.Type
	CreatedAtMillis  int64
	ModifiedAtMillis int64
	Permissions      node.Permissions
	IsMountPoint     bool

	// FILE
	Content []byte

	// DIRECTORY
	Children []*SnapshotNode

	// SYMLINK
	Target string

	// Present on FILE and DIRECTORY nodes; nil is distinct from empty.
	Xattrs map[string][]byte
}

// NodeToSnapshot converts a live node.Node subtree into its wire
// projection. The caller must hold at least a read lock on the owning
// TreeStore (see tree.TreeStore.WithSnapshot) for the duration of the
// call; every byte slice and string is copied, so the result never aliases
// the live tree once this call returns.
func NodeToSnapshot(n *node.Node) *SnapshotNode {
	sn := &SnapshotNode{
		Name:             n.Name,
		Type:             n.Type,
		CreatedAtMillis:  n.CreatedAt.UnixMilli(),
		ModifiedAtMillis: n.ModifiedAt.UnixMilli(),
		Permissions:      n.Permissions,
		IsMountPoint:     n.IsMountPoint,
	}
	switch n.Type {
	case node.File:
		sn.Content = append([]byte(nil), n.Content()...)
		sn.Xattrs = copyXattrs(n.Xattrs)
	case node.Directory:
		for _, name := range n.SortedChildNames() {
			sn.Children = append(sn.Children, NodeToSnapshot(n.Children[name]))
		}
		sn.Xattrs = copyXattrs(n.DirXattrs)
	case node.Symlink:
		sn.Target = n.Target
	}
	return sn
}

// SnapshotToNode reconstructs a live node.Node subtree from its wire
// projection.
func SnapshotToNode(sn *SnapshotNode) *node.Node {
	created := time.UnixMilli(sn.CreatedAtMillis).UTC()
	modified := time.UnixMilli(sn.ModifiedAtMillis).UTC()
	n := &node.Node{
		Name:        sn.Name,
		Type:        sn.Type,
		CreatedAt:   created,
		ModifiedAt:  modified,
		Permissions: sn.Permissions,
		IsMountPoint: sn.IsMountPoint,
	}
	switch sn.Type {
	case node.File:
		n.Xattrs = copyXattrs(sn.Xattrs)
		if n.Xattrs == nil {
			n.Xattrs = make(map[string][]byte)
		}
		if len(sn.Content) > 0 {
			n.SetContent(sn.Content)
		}
	case node.Directory:
		n.Children = make(map[string]*node.Node, len(sn.Children))
		n.DirXattrs = copyXattrs(sn.Xattrs)
		if n.DirXattrs == nil {
			n.DirXattrs = make(map[string][]byte)
		}
		for _, child := range sn.Children {
			n.AddChild(SnapshotToNode(child))
		}
	case node.Symlink:
		n.Target = sn.Target
	}
	return n
}

func copyXattrs(in map[string][]byte) map[string][]byte {
	if in == nil {
		return nil
	}
	out := make(map[string][]byte, len(in))
	for k, v := range in {
		cp := append([]byte(nil), v...)
		out[k] = cp
	}
	return out
}

// WalTag discriminates the 12 WalEntry variants (spec.md §4.12).
type WalTag uint8

const (
	WalCreateFile WalTag = iota + 1
	WalCreateDir
	WalCreateSymlink
	WalDelete
	WalWrite
	WalSetPermissions
	WalSetXattr
	WalRemoveXattr
	WalCopy
	WalMove
	WalMoveToTrash
	WalRestoreFromTrash
)

// WalEntry is one WAL record: a tagged union carrying only the fields its
// Tag uses (spec.md §4.12). Unused fields are left at their zero value.
type WalEntry struct {
	Tag WalTag

	Path string
	Dst  string // Copy/Move destination

	Offset int64
	Data   []byte

	Permissions node.Permissions

	XattrName  string
	XattrValue []byte

	TrashID string
	Target  string // CreateSymlink target
}

// MountRecord is the persisted projection of a mount.Mount (spec.md §3):
// {virtualPath, rootPath, readOnly}, with no DiskOps reference, so a
// restart can reconstruct intent without the host having re-attached a
// backend yet.
type MountRecord struct {
	VirtualPath string
	RootPath    string
	ReadOnly    bool
}

// VersionRecord is the persisted projection of one version.Version.
type VersionRecord struct {
	Path           string
	ID             string
	TimestampMillis int64
	Blob           []byte
}

// TrashRecord is the persisted projection of one trash entry. Node is nil
// for entries delegated to a mounted DiskOps backend (IsMounted == true);
// those are tracked by virtual path and the disk backend's own trash ID
// only, since the blob itself lives on the backend's disk.
type TrashRecord struct {
	TrashID          string
	OriginalPath     string
	IsDir            bool
	Size             int64
	DeletedAtMillis  int64
	IsMounted        bool
	MountVirtualPath string
	Node             *SnapshotNode
}

// Codec is implemented by both the CBOR and TLV wire formats. Every method
// operates on one payload at a time; CRC/length framing (spec.md §4.12's
// "Single payload" and "WAL record" shapes) is applied by
// internal/persistence, not by the codec itself, so the same codec can be
// reused across both framing shapes.
type Codec interface {
	Name() string

	EncodeSnapshot(root *SnapshotNode) ([]byte, error)
	DecodeSnapshot(data []byte) (*SnapshotNode, error)

	EncodeWalEntry(e *WalEntry) ([]byte, error)
	DecodeWalEntry(data []byte) (*WalEntry, error)

	EncodeMounts(mounts []MountRecord) ([]byte, error)
	DecodeMounts(data []byte) ([]MountRecord, error)

	EncodeVersions(versions []VersionRecord) ([]byte, error)
	DecodeVersions(data []byte) ([]VersionRecord, error)

	EncodeTrash(items []TrashRecord) ([]byte, error)
	DecodeTrash(data []byte) ([]TrashRecord, error)
}
