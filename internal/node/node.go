// Package node defines the tagged-variant Node that backs every entry in
// the in-memory tree, plus the supporting Permissions and Block types.
// It is split out of internal/tree (the teacher makes the same cut between
// pkg/types and internal/filesystem) so packages like internal/codec and
// internal/trash can share the data shapes without pulling in the tree
// engine itself.
package node

import (
	"sort"
	"time"
)

// Type is the tagged-variant discriminator for a Node (spec: FILE |
// DIRECTORY | SYMLINK). A plain enum + struct rather than an
// interface-per-variant, matching the sum-type style the teacher uses for
// things like its storage tier enum.
type Type int

const (
	File Type = iota
	Directory
	Symlink
)

func (t Type) String() string {
	switch t {
	case File:
		return "file"
	case Directory:
		return "directory"
	case Symlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// Permissions is the minimal rwx triple the spec defines. There is no
// owner/group distinction: every operation is evaluated against a single
// permission set per node.
type Permissions struct {
	Read    bool
	Write   bool
	Execute bool
}

// FullPermissions grants read, write and execute.
func FullPermissions() Permissions {
	return Permissions{Read: true, Write: true, Execute: true}
}

// DefaultBlockSize is the fixed chunk size used to store FILE content
// (spec §3: "default 64 KiB, last may be short").
const DefaultBlockSize = 64 * 1024

// Block is one fixed-size (except possibly the last) chunk of file content.
type Block struct {
	Data []byte
}

// Len returns the number of content bytes held by the block.
func (b *Block) Len() int { return len(b.Data) }

// Node is a single entry in the tree: a FILE, DIRECTORY, or SYMLINK. Only
// the fields relevant to the node's Type are meaningful; this mirrors the
// spec's tagged-variant Node rather than three separate Go types, since
// TreeStore operations (stat, rename, copy) are naturally generic over the
// variant and only special-case behavior at the leaves (read/write,
// readDir, readlink).
type Node struct {
	Name        string
	Type        Type
	CreatedAt   time.Time
	ModifiedAt  time.Time
	Permissions Permissions

	// FILE
	Blocks []*Block
	Size   int64
	Xattrs map[string][]byte

	// DIRECTORY
	Children     map[string]*Node
	ChildOrder   []string // insertion order; ReadDir lists SortedChildNames instead
	DirXattrs    map[string][]byte
	IsMountPoint bool

	// SYMLINK
	Target string
}

// NewFile creates an empty FILE node.
func NewFile(name string, perm Permissions, now time.Time) *Node {
	return &Node{
		Name:        name,
		Type:        File,
		CreatedAt:   now,
		ModifiedAt:  now,
		Permissions: perm,
		Xattrs:      make(map[string][]byte),
	}
}

// NewDirectory creates an empty DIRECTORY node.
func NewDirectory(name string, perm Permissions, now time.Time) *Node {
	return &Node{
		Name:        name,
		Type:        Directory,
		CreatedAt:   now,
		ModifiedAt:  now,
		Permissions: perm,
		Children:    make(map[string]*Node),
		DirXattrs:   make(map[string][]byte),
	}
}

// NewSymlink creates a SYMLINK node pointing at target (no existence check;
// dangling targets are legal per spec §4.9).
func NewSymlink(name, target string, now time.Time) *Node {
	return &Node{
		Name:       name,
		Type:       Symlink,
		CreatedAt:  now,
		ModifiedAt: now,
		Target:     target,
		// Symlinks carry full nominal permissions; the chain they
		// resolve through enforces real access control.
		Permissions: FullPermissions(),
	}
}

// xattrMap returns the map backing this node's extended attributes,
// regardless of variant, creating it on first use.
func (n *Node) xattrMap() map[string][]byte {
	switch n.Type {
	case Directory:
		if n.DirXattrs == nil {
			n.DirXattrs = make(map[string][]byte)
		}
		return n.DirXattrs
	default:
		if n.Xattrs == nil {
			n.Xattrs = make(map[string][]byte)
		}
		return n.Xattrs
	}
}

// SetXattr stores a copy of value under key.
func (n *Node) SetXattr(key string, value []byte) {
	cp := make([]byte, len(value))
	copy(cp, value)
	n.xattrMap()[key] = cp
}

// GetXattr returns a copy of the stored value, if any.
func (n *Node) GetXattr(key string) ([]byte, bool) {
	v, ok := n.xattrMap()[key]
	if !ok {
		return nil, false
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true
}

// RemoveXattr deletes key, reporting whether it was present.
func (n *Node) RemoveXattr(key string) bool {
	m := n.xattrMap()
	if _, ok := m[key]; !ok {
		return false
	}
	delete(m, key)
	return true
}

// ListXattr returns the xattr keys in insertion order is not guaranteed
// (spec §9(c): ordering is not a contract across backends); callers that
// need determinism sort the result themselves.
func (n *Node) ListXattr() []string {
	m := n.xattrMap()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// ReadAt reads up to length bytes at offset from the node's block chain,
// returning the bytes actually produced. Reads at or past EOF return nil
// per spec §4.2.
func (n *Node) ReadAt(offset int64, length int) []byte {
	if offset >= n.Size || length <= 0 {
		return nil
	}
	end := offset + int64(length)
	if end > n.Size {
		end = n.Size
	}
	out := make([]byte, 0, end-offset)
	blockSize := int64(DefaultBlockSize)
	for pos := offset; pos < end; {
		blockIdx := pos / blockSize
		blockOff := pos % blockSize
		if int(blockIdx) >= len(n.Blocks) {
			break
		}
		b := n.Blocks[blockIdx]
		avail := int64(b.Len()) - blockOff
		if avail <= 0 {
			break
		}
		want := end - pos
		if want > avail {
			want = avail
		}
		out = append(out, b.Data[blockOff:blockOff+want]...)
		pos += want
	}
	return out
}

// WriteAt writes data at offset, zero-extending and allocating blocks as
// needed, and updates Size (spec §3 I3: Size == sum of block lengths).
func (n *Node) WriteAt(offset int64, data []byte) {
	if len(data) == 0 {
		return
	}
	blockSize := int64(DefaultBlockSize)
	end := offset + int64(len(data))
	neededBlocks := int((end + blockSize - 1) / blockSize)

	for len(n.Blocks) < neededBlocks {
		n.Blocks = append(n.Blocks, &Block{})
	}

	written := 0
	for pos := offset; pos < end; {
		blockIdx := pos / blockSize
		blockOff := pos % blockSize
		b := n.Blocks[blockIdx]

		roomInBlock := blockSize - blockOff
		chunk := int64(len(data) - written)
		if chunk > roomInBlock {
			chunk = roomInBlock
		}

		requiredLen := int(blockOff + chunk)
		if len(b.Data) < requiredLen {
			grown := make([]byte, requiredLen)
			copy(grown, b.Data)
			b.Data = grown
		}
		copy(b.Data[blockOff:requiredLen], data[written:written+int(chunk)])

		written += int(chunk)
		pos += chunk
	}

	n.recomputeSize()
}

// Truncate resizes the file's content to size bytes, zero-extending or
// dropping trailing blocks as needed.
func (n *Node) Truncate(size int64) {
	if size < 0 {
		size = 0
	}
	blockSize := int64(DefaultBlockSize)
	neededBlocks := int((size + blockSize - 1) / blockSize)
	if neededBlocks == 0 {
		n.Blocks = nil
		n.Size = 0
		return
	}
	if len(n.Blocks) > neededBlocks {
		n.Blocks = n.Blocks[:neededBlocks]
	}
	for len(n.Blocks) < neededBlocks {
		n.Blocks = append(n.Blocks, &Block{})
	}
	last := n.Blocks[neededBlocks-1]
	lastLen := size - int64(neededBlocks-1)*blockSize
	if int64(len(last.Data)) != lastLen {
		grown := make([]byte, lastLen)
		copy(grown, last.Data)
		last.Data = grown
	}
	n.recomputeSize()
}

// Content concatenates every block into one contiguous byte slice.
func (n *Node) Content() []byte {
	out := make([]byte, 0, n.Size)
	for _, b := range n.Blocks {
		out = append(out, b.Data...)
	}
	return out
}

// SetContent replaces the node's entire content in one shot.
func (n *Node) SetContent(data []byte) {
	n.Blocks = nil
	n.Size = 0
	if len(data) == 0 {
		return
	}
	n.WriteAt(0, data)
}

func (n *Node) recomputeSize() {
	var total int64
	for _, b := range n.Blocks {
		total += int64(b.Len())
	}
	n.Size = total
}

// AddChild inserts child into a DIRECTORY node, recording insertion order.
func (n *Node) AddChild(child *Node) {
	if n.Children == nil {
		n.Children = make(map[string]*Node)
	}
	if _, exists := n.Children[child.Name]; !exists {
		n.ChildOrder = append(n.ChildOrder, child.Name)
	}
	n.Children[child.Name] = child
}

// RemoveChild deletes a child by name, reporting whether it existed.
func (n *Node) RemoveChild(name string) bool {
	if _, ok := n.Children[name]; !ok {
		return false
	}
	delete(n.Children, name)
	for i, nm := range n.ChildOrder {
		if nm == name {
			n.ChildOrder = append(n.ChildOrder[:i], n.ChildOrder[i+1:]...)
			break
		}
	}
	return true
}

// SortedChildNames returns child names sorted lexically; the TreeStore's
// ReadDir uses this for deterministic output (spec §3: "the core must
// return a deterministic set").
func (n *Node) SortedChildNames() []string {
	names := make([]string, 0, len(n.Children))
	for name := range n.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SubtreeFileBytes sums FILE sizes across n and, if n is a DIRECTORY, every
// descendant. Used by internal/trash to size a detached subtree for the
// quota meter's in-memory-trash-bytes term (spec §4.8's I5).
func SubtreeFileBytes(n *Node) int64 {
	if n.Type == File {
		return n.Size
	}
	var total int64
	for _, c := range n.Children {
		total += SubtreeFileBytes(c)
	}
	return total
}
