package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/picofs/picofs/internal/node"
)

// TLVCodec is the tag/length/value wire codec (spec.md §4.12): every field
// is written as a one-byte tag, a varint length, and its raw bytes, with no
// self-describing keys. This is required to encode strictly smaller than
// CBORCodec for every non-trivial payload (P8) and has no external
// dependency — PicoFS's default codec.
type TLVCodec struct{}

// NewTLV creates a TLVCodec. It is stateless; the zero value is usable.
func NewTLV() *TLVCodec { return &TLVCodec{} }

func (TLVCodec) Name() string { return "tlv" }

var _ Codec = TLVCodec{}

// --- low-level tag/length/value primitives ---

type writer struct{ buf bytes.Buffer }

func (w *writer) field(tag byte, value []byte) {
	w.buf.WriteByte(tag)
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(value)))
	w.buf.Write(lenBuf[:n])
	w.buf.Write(value)
}

func (w *writer) str(tag byte, s string)   { w.field(tag, []byte(s)) }
func (w *writer) bytesField(tag byte, b []byte) { w.field(tag, b) }
func (w *writer) varint(tag byte, v uint64) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	w.field(tag, buf[:n])
}
func (w *writer) zigzag(tag byte, v int64) {
	w.varint(tag, encodeZigZag(v))
}
func (w *writer) boolField(tag byte, b bool) {
	if b {
		w.field(tag, []byte{1})
	} else {
		w.field(tag, []byte{0})
	}
}
func (w *writer) bytes() []byte { return w.buf.Bytes() }

func encodeZigZag(v int64) uint64 { return uint64((v << 1) ^ (v >> 63)) }
func decodeZigZag(v uint64) int64 { return int64(v>>1) ^ -int64(v&1) }

// frame is one decoded tag/value pair.
type frame struct {
	tag   byte
	value []byte
}

// parse splits data into its top-level tag/length/value frames. It does
// not interpret nested structures; callers that expect nested blobs (e.g.
// SnapshotNode.Children) recursively parse a frame's value themselves.
func parseFrames(data []byte) ([]frame, error) {
	var out []frame
	r := bytes.NewReader(data)
	for r.Len() > 0 {
		tag, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		length, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("tlv: bad length for tag %d: %w", tag, err)
		}
		value := make([]byte, length)
		if _, err := io.ReadFull(r, value); err != nil {
			return nil, fmt.Errorf("tlv: short value for tag %d: %w", tag, err)
		}
		out = append(out, frame{tag: tag, value: value})
	}
	return out, nil
}

func findFirst(frames []frame, tag byte) ([]byte, bool) {
	for _, f := range frames {
		if f.tag == tag {
			return f.value, true
		}
	}
	return nil, false
}

func findAll(frames []frame, tag byte) [][]byte {
	var out [][]byte
	for _, f := range frames {
		if f.tag == tag {
			out = append(out, f.value)
		}
	}
	return out
}

func mustVarint(b []byte) uint64 {
	v, _ := binary.Uvarint(b)
	return v
}

// --- SnapshotNode ---

const (
	tagNodeName         = 1
	tagNodeType         = 2
	tagNodeCreatedAt    = 3
	tagNodeModifiedAt   = 4
	tagNodePermissions  = 5
	tagNodeIsMountPoint = 6
	tagNodeContent      = 7
	tagNodeChild        = 8
	tagNodeTarget       = 9
	tagNodeXattrs       = 10 // presence marker + nested xattr entries
	tagXattrEntry       = 11 // nested inside tagNodeXattrs's value
)

func packPermissions(p [3]bool) byte {
	var b byte
	if p[0] {
		b |= 1
	}
	if p[1] {
		b |= 2
	}
	if p[2] {
		b |= 4
	}
	return b
}

func (TLVCodec) EncodeSnapshot(root *SnapshotNode) ([]byte, error) {
	return encodeNode(root), nil
}

func encodeNode(sn *SnapshotNode) []byte {
	w := &writer{}
	w.str(tagNodeName, sn.Name)
	w.varint(tagNodeType, uint64(sn.Type))
	w.zigzag(tagNodeCreatedAt, sn.CreatedAtMillis)
	w.zigzag(tagNodeModifiedAt, sn.ModifiedAtMillis)
	w.field(tagNodePermissions, []byte{packPermissions([3]bool{sn.Permissions.Read, sn.Permissions.Write, sn.Permissions.Execute})})
	w.boolField(tagNodeIsMountPoint, sn.IsMountPoint)
	if sn.Content != nil {
		w.bytesField(tagNodeContent, sn.Content)
	}
	for _, child := range sn.Children {
		w.bytesField(tagNodeChild, encodeNode(child))
	}
	if sn.Target != "" {
		w.str(tagNodeTarget, sn.Target)
	}
	if sn.Xattrs != nil {
		w.bytesField(tagNodeXattrs, encodeXattrs(sn.Xattrs))
	}
	return w.bytes()
}

func encodeXattrs(m map[string][]byte) []byte {
	w := &writer{}
	for k, v := range m {
		entry := &writer{}
		entry.str(1, k)
		entry.bytesField(2, v)
		w.bytesField(tagXattrEntry, entry.bytes())
	}
	return w.bytes()
}

func decodeXattrs(data []byte) (map[string][]byte, error) {
	frames, err := parseFrames(data)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte)
	for _, f := range frames {
		if f.tag != tagXattrEntry {
			continue
		}
		ef, err := parseFrames(f.value)
		if err != nil {
			return nil, err
		}
		key, _ := findFirst(ef, 1)
		val, _ := findFirst(ef, 2)
		out[string(key)] = val
	}
	return out, nil
}

func (TLVCodec) DecodeSnapshot(data []byte) (*SnapshotNode, error) {
	return decodeNode(data)
}

func decodeNode(data []byte) (*SnapshotNode, error) {
	frames, err := parseFrames(data)
	if err != nil {
		return nil, err
	}
	sn := &SnapshotNode{}
	if v, ok := findFirst(frames, tagNodeName); ok {
		sn.Name = string(v)
	}
	if v, ok := findFirst(frames, tagNodeType); ok {
		sn.Type = node.Type(mustVarint(v))
	}
	if v, ok := findFirst(frames, tagNodeCreatedAt); ok {
		sn.CreatedAtMillis = decodeZigZag(mustVarint(v))
	}
	if v, ok := findFirst(frames, tagNodeModifiedAt); ok {
		sn.ModifiedAtMillis = decodeZigZag(mustVarint(v))
	}
	if v, ok := findFirst(frames, tagNodePermissions); ok && len(v) == 1 {
		sn.Permissions.Read = v[0]&1 != 0
		sn.Permissions.Write = v[0]&2 != 0
		sn.Permissions.Execute = v[0]&4 != 0
	}
	if v, ok := findFirst(frames, tagNodeIsMountPoint); ok && len(v) == 1 {
		sn.IsMountPoint = v[0] != 0
	}
	if v, ok := findFirst(frames, tagNodeContent); ok {
		sn.Content = v
	}
	for _, v := range findAll(frames, tagNodeChild) {
		child, err := decodeNode(v)
		if err != nil {
			return nil, err
		}
		sn.Children = append(sn.Children, child)
	}
	if v, ok := findFirst(frames, tagNodeTarget); ok {
		sn.Target = string(v)
	}
	if v, ok := findFirst(frames, tagNodeXattrs); ok {
		xattrs, err := decodeXattrs(v)
		if err != nil {
			return nil, err
		}
		sn.Xattrs = xattrs
	}
	return sn, nil
}

// --- WalEntry ---

const (
	tagWalTag         = 1
	tagWalPath        = 2
	tagWalDst         = 3
	tagWalOffset      = 4
	tagWalData        = 5
	tagWalPermissions = 6
	tagWalXattrName   = 7
	tagWalXattrValue  = 8
	tagWalTrashID     = 9
	tagWalTarget      = 10
)

func (TLVCodec) EncodeWalEntry(e *WalEntry) ([]byte, error) {
	w := &writer{}
	w.varint(tagWalTag, uint64(e.Tag))
	if e.Path != "" {
		w.str(tagWalPath, e.Path)
	}
	if e.Dst != "" {
		w.str(tagWalDst, e.Dst)
	}
	if e.Offset != 0 {
		w.zigzag(tagWalOffset, e.Offset)
	}
	if e.Data != nil {
		w.bytesField(tagWalData, e.Data)
	}
	w.field(tagWalPermissions, []byte{packPermissions([3]bool{e.Permissions.Read, e.Permissions.Write, e.Permissions.Execute})})
	if e.XattrName != "" {
		w.str(tagWalXattrName, e.XattrName)
	}
	if e.XattrValue != nil {
		w.bytesField(tagWalXattrValue, e.XattrValue)
	}
	if e.TrashID != "" {
		w.str(tagWalTrashID, e.TrashID)
	}
	if e.Target != "" {
		w.str(tagWalTarget, e.Target)
	}
	return w.bytes(), nil
}

func (TLVCodec) DecodeWalEntry(data []byte) (*WalEntry, error) {
	frames, err := parseFrames(data)
	if err != nil {
		return nil, err
	}
	e := &WalEntry{}
	if v, ok := findFirst(frames, tagWalTag); ok {
		e.Tag = WalTag(mustVarint(v))
	}
	if v, ok := findFirst(frames, tagWalPath); ok {
		e.Path = string(v)
	}
	if v, ok := findFirst(frames, tagWalDst); ok {
		e.Dst = string(v)
	}
	if v, ok := findFirst(frames, tagWalOffset); ok {
		e.Offset = decodeZigZag(mustVarint(v))
	}
	if v, ok := findFirst(frames, tagWalData); ok {
		e.Data = v
	}
	if v, ok := findFirst(frames, tagWalPermissions); ok && len(v) == 1 {
		e.Permissions.Read = v[0]&1 != 0
		e.Permissions.Write = v[0]&2 != 0
		e.Permissions.Execute = v[0]&4 != 0
	}
	if v, ok := findFirst(frames, tagWalXattrName); ok {
		e.XattrName = string(v)
	}
	if v, ok := findFirst(frames, tagWalXattrValue); ok {
		e.XattrValue = v
	}
	if v, ok := findFirst(frames, tagWalTrashID); ok {
		e.TrashID = string(v)
	}
	if v, ok := findFirst(frames, tagWalTarget); ok {
		e.Target = string(v)
	}
	return e, nil
}

// --- MountRecord ---

const (
	tagMountEntry       = 1 // nested, repeated
	tagMountVirtualPath = 1
	tagMountRootPath    = 2
	tagMountReadOnly    = 3
)

func (TLVCodec) EncodeMounts(mounts []MountRecord) ([]byte, error) {
	w := &writer{}
	for _, m := range mounts {
		ew := &writer{}
		ew.str(tagMountVirtualPath, m.VirtualPath)
		ew.str(tagMountRootPath, m.RootPath)
		ew.boolField(tagMountReadOnly, m.ReadOnly)
		w.bytesField(tagMountEntry, ew.bytes())
	}
	return w.bytes(), nil
}

func (TLVCodec) DecodeMounts(data []byte) ([]MountRecord, error) {
	frames, err := parseFrames(data)
	if err != nil {
		return nil, err
	}
	out := make([]MountRecord, 0, len(frames))
	for _, f := range frames {
		if f.tag != tagMountEntry {
			continue
		}
		ef, err := parseFrames(f.value)
		if err != nil {
			return nil, err
		}
		var m MountRecord
		if v, ok := findFirst(ef, tagMountVirtualPath); ok {
			m.VirtualPath = string(v)
		}
		if v, ok := findFirst(ef, tagMountRootPath); ok {
			m.RootPath = string(v)
		}
		if v, ok := findFirst(ef, tagMountReadOnly); ok && len(v) == 1 {
			m.ReadOnly = v[0] != 0
		}
		out = append(out, m)
	}
	return out, nil
}

// --- VersionRecord ---

const (
	tagVersionEntry     = 1 // nested, repeated
	tagVersionPath      = 1
	tagVersionID        = 2
	tagVersionTimestamp = 3
	tagVersionBlob      = 4
)

func (TLVCodec) EncodeVersions(versions []VersionRecord) ([]byte, error) {
	w := &writer{}
	for _, v := range versions {
		ew := &writer{}
		ew.str(tagVersionPath, v.Path)
		ew.str(tagVersionID, v.ID)
		ew.zigzag(tagVersionTimestamp, v.TimestampMillis)
		ew.bytesField(tagVersionBlob, v.Blob)
		w.bytesField(tagVersionEntry, ew.bytes())
	}
	return w.bytes(), nil
}

func (TLVCodec) DecodeVersions(data []byte) ([]VersionRecord, error) {
	frames, err := parseFrames(data)
	if err != nil {
		return nil, err
	}
	out := make([]VersionRecord, 0, len(frames))
	for _, f := range frames {
		if f.tag != tagVersionEntry {
			continue
		}
		ef, err := parseFrames(f.value)
		if err != nil {
			return nil, err
		}
		var rec VersionRecord
		if v, ok := findFirst(ef, tagVersionPath); ok {
			rec.Path = string(v)
		}
		if v, ok := findFirst(ef, tagVersionID); ok {
			rec.ID = string(v)
		}
		if v, ok := findFirst(ef, tagVersionTimestamp); ok {
			rec.TimestampMillis = decodeZigZag(mustVarint(v))
		}
		if v, ok := findFirst(ef, tagVersionBlob); ok {
			rec.Blob = v
		}
		out = append(out, rec)
	}
	return out, nil
}

// --- TrashRecord ---

const (
	tagTrashEntry        = 1 // nested, repeated
	tagTrashID           = 1
	tagTrashOriginalPath = 2
	tagTrashIsDir        = 3
	tagTrashSize         = 4
	tagTrashDeletedAt    = 5
	tagTrashIsMounted    = 6
	tagTrashMountPath    = 7
	tagTrashNode         = 8
)

func (TLVCodec) EncodeTrash(items []TrashRecord) ([]byte, error) {
	w := &writer{}
	for _, it := range items {
		ew := &writer{}
		ew.str(tagTrashID, it.TrashID)
		ew.str(tagTrashOriginalPath, it.OriginalPath)
		ew.boolField(tagTrashIsDir, it.IsDir)
		ew.zigzag(tagTrashSize, it.Size)
		ew.zigzag(tagTrashDeletedAt, it.DeletedAtMillis)
		ew.boolField(tagTrashIsMounted, it.IsMounted)
		if it.MountVirtualPath != "" {
			ew.str(tagTrashMountPath, it.MountVirtualPath)
		}
		if it.Node != nil {
			ew.bytesField(tagTrashNode, encodeNode(it.Node))
		}
		w.bytesField(tagTrashEntry, ew.bytes())
	}
	return w.bytes(), nil
}

func (TLVCodec) DecodeTrash(data []byte) ([]TrashRecord, error) {
	frames, err := parseFrames(data)
	if err != nil {
		return nil, err
	}
	out := make([]TrashRecord, 0, len(frames))
	for _, f := range frames {
		if f.tag != tagTrashEntry {
			continue
		}
		ef, err := parseFrames(f.value)
		if err != nil {
			return nil, err
		}
		var rec TrashRecord
		if v, ok := findFirst(ef, tagTrashID); ok {
			rec.TrashID = string(v)
		}
		if v, ok := findFirst(ef, tagTrashOriginalPath); ok {
			rec.OriginalPath = string(v)
		}
		if v, ok := findFirst(ef, tagTrashIsDir); ok && len(v) == 1 {
			rec.IsDir = v[0] != 0
		}
		if v, ok := findFirst(ef, tagTrashSize); ok {
			rec.Size = decodeZigZag(mustVarint(v))
		}
		if v, ok := findFirst(ef, tagTrashDeletedAt); ok {
			rec.DeletedAtMillis = decodeZigZag(mustVarint(v))
		}
		if v, ok := findFirst(ef, tagTrashIsMounted); ok && len(v) == 1 {
			rec.IsMounted = v[0] != 0
		}
		if v, ok := findFirst(ef, tagTrashMountPath); ok {
			rec.MountVirtualPath = string(v)
		}
		if v, ok := findFirst(ef, tagTrashNode); ok {
			n, err := decodeNode(v)
			if err != nil {
				return nil, err
			}
			rec.Node = n
		}
		out = append(out, rec)
	}
	return out, nil
}
