// Package persistence implements PicoFS's crash-safe Persistence component
// (spec.md §4.13): snapshot+WAL durability over a host-supplied Storage,
// with CRC32 framing and fail-soft recovery at every key.
package persistence

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/picofs/picofs/internal/buffer"
	"github.com/picofs/picofs/internal/codec"
	"github.com/picofs/picofs/internal/mount"
	"github.com/picofs/picofs/internal/node"
	"github.com/picofs/picofs/internal/trash"
	"github.com/picofs/picofs/internal/tree"
	"github.com/picofs/picofs/internal/version"
	"github.com/picofs/picofs/pkg/errors"
	"github.com/picofs/picofs/pkg/utils"
)

// DefaultSnapshotThreshold is N in spec.md §4.13: a full snapshot is taken
// after this many WAL appends since the last one. N=1 forces a snapshot on
// every write.
const DefaultSnapshotThreshold = 100

// frame wraps payload with its little-endian CRC32, for the "single
// payload" shape of spec.md §4.13: CRC32(payload) | payload. The frame is
// staged in a pooled scratch buffer (internal/buffer) rather than a fresh
// allocation per snapshot/mounts/versions/trash write, since those blobs
// can be large and this runs on every steady-state snapshot. Callers must
// return the buffer with releaseFrame once the write that consumes it has
// completed.
func frame(payload []byte) []byte {
	sum := crc32.ChecksumIEEE(payload)
	out := buffer.GetBuffer(4 + len(payload))
	binary.LittleEndian.PutUint32(out[:4], sum)
	copy(out[4:], payload)
	return out
}

// releaseFrame returns a buffer obtained from frame to the pool. Safe to
// call even when the storage call that consumed it failed.
func releaseFrame(buf []byte) {
	buffer.PutBuffer(buf)
}

// unframe validates and strips a single-payload frame's CRC, returning
// ok=false (not an error) on any corruption so callers degrade to an empty
// default per spec.md §7.
func unframe(data []byte) (payload []byte, ok bool) {
	if len(data) < 4 {
		return nil, false
	}
	want := binary.LittleEndian.Uint32(data[:4])
	payload = data[4:]
	return payload, crc32.ChecksumIEEE(payload) == want
}

// frameWALRecord wraps payload per the WAL record shape: CRC32(payload) |
// length(4 LE) | payload. Also staged in a pooled buffer; release with
// releaseFrame once appended.
func frameWALRecord(payload []byte) []byte {
	sum := crc32.ChecksumIEEE(payload)
	out := buffer.GetBuffer(8 + len(payload))
	binary.LittleEndian.PutUint32(out[0:4], sum)
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(payload)))
	copy(out[8:], payload)
	return out
}

// scanWAL walks a WAL blob record by record, invoking fn with each
// successfully-CRC-checked payload. A record whose CRC mismatches is
// skipped and the scan resumes right after it (spec.md §4.13: "a record
// with bad CRC is skipped ... but subsequent records remain eligible"). A
// record whose length field overruns the buffer ends the scan.
func scanWAL(data []byte, fn func(payload []byte)) {
	for len(data) >= 8 {
		wantCRC := binary.LittleEndian.Uint32(data[0:4])
		length := binary.LittleEndian.Uint32(data[4:8])
		if uint64(8+length) > uint64(len(data)) {
			return
		}
		payload := data[8 : 8+length]
		if crc32.ChecksumIEEE(payload) == wantCRC {
			fn(payload)
		}
		data = data[8+length:]
	}
}

// Persistence ties a Codec and a Storage together with the bookkeeping
// (WAL append counter, snapshot threshold) spec.md §4.13 describes as
// "steady-state".
type Persistence struct {
	mu sync.Mutex

	codec     codec.Codec
	storage   Storage
	threshold int
	sinceSnap int

	tree     *tree.TreeStore
	router   *mount.Router
	versions *version.Store
	trashMgr *trash.Manager

	logger   *utils.StructuredLogger
	warnings []error // accumulated during the in-progress Recover call
}

// Option configures a Persistence at construction.
type Option func(*Persistence)

// WithThreshold overrides DefaultSnapshotThreshold.
func WithThreshold(n int) Option {
	return func(p *Persistence) {
		if n > 0 {
			p.threshold = n
		}
	}
}

// WithLogger attaches a structured logger for fail-soft recovery
// diagnostics (corrupted keys, skipped WAL records).
func WithLogger(l *utils.StructuredLogger) Option {
	return func(p *Persistence) { p.logger = l }
}

// New creates a Persistence bound to the given codec and storage. The
// tree/router/versions/trashMgr references are the live components Recover
// populates and steady-state Snapshot* calls re-encode from.
func New(c codec.Codec, storage Storage, t *tree.TreeStore, router *mount.Router, versions *version.Store, trashMgr *trash.Manager, opts ...Option) *Persistence {
	logger, _ := utils.NewStructuredLogger(nil)
	p := &Persistence{
		codec:     c,
		storage:   storage,
		threshold: DefaultSnapshotThreshold,
		tree:      t,
		router:    router,
		versions:  versions,
		trashMgr:  trashMgr,
		logger:    logger.WithComponent("persistence"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Persistence) logDrop(key string, reason string) {
	p.warnings = append(p.warnings, fmt.Errorf("%s: %s", key, reason))
	if p.logger != nil {
		p.logger.Warn("dropping corrupted key, using empty default", map[string]interface{}{"key": key, "reason": reason})
	}
}

// Recover runs spec.md §4.13's fail-soft startup sequence: read the
// snapshot (or fall back to empty), replay the WAL over it, then load
// mounts/versions/trash. It installs the resulting state directly into the
// TreeStore/Router/Store/Manager this Persistence was constructed with.
// Recovery itself never fails (spec.md §7: "startup succeeds with the best
// recoverable state"); the returned error, when non-nil, aggregates every
// corrupted key and every WAL record that failed to decode or apply,
// purely for the caller to surface through its own logging, and never
// indicates recovery was aborted. WAL records dropped by scanWAL (bad CRC
// or a truncated tail) are not reported.
func (p *Persistence) Recover() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.warnings = nil

	root := p.readSnapshot()
	p.tree.LoadSnapshot(root)

	p.replayWAL()

	for _, m := range p.readMounts() {
		_ = p.router.Add(m.VirtualPath, m.RootPath, m.ReadOnly, nil)
	}
	p.versions.Import(p.readVersions())
	p.trashMgr.Import(p.readTrashEntries())

	p.sinceSnap = 0
	return multierr.Combine(p.warnings...)
}

func (p *Persistence) readSnapshot() *node.Node {
	data, err := p.storage.Read(KeySnapshot)
	if err != nil {
		return freshRoot()
	}
	payload, ok := unframe(data)
	if !ok {
		p.logDrop(KeySnapshot, "crc mismatch")
		return freshRoot()
	}
	sn, err := p.codec.DecodeSnapshot(payload)
	if err != nil {
		p.logDrop(KeySnapshot, err.Error())
		return freshRoot()
	}
	return codec.SnapshotToNode(sn)
}

func freshRoot() *node.Node {
	return node.NewDirectory("", node.FullPermissions(), time.Now())
}

func (p *Persistence) readMounts() []codec.MountRecord {
	data, err := p.storage.Read(KeyMounts)
	if err != nil {
		return nil
	}
	payload, ok := unframe(data)
	if !ok {
		p.logDrop(KeyMounts, "crc mismatch")
		return nil
	}
	mounts, err := p.codec.DecodeMounts(payload)
	if err != nil {
		p.logDrop(KeyMounts, err.Error())
		return nil
	}
	return mounts
}

func (p *Persistence) readVersions() []version.Version {
	data, err := p.storage.Read(KeyVersions)
	if err != nil {
		return nil
	}
	payload, ok := unframe(data)
	if !ok {
		p.logDrop(KeyVersions, "crc mismatch")
		return nil
	}
	records, err := p.codec.DecodeVersions(payload)
	if err != nil {
		p.logDrop(KeyVersions, err.Error())
		return nil
	}
	out := make([]version.Version, 0, len(records))
	for _, r := range records {
		out = append(out, version.Version{
			ID:        version.ID(r.ID),
			Path:      r.Path,
			Timestamp: millisToTime(r.TimestampMillis),
			Blob:      r.Blob,
		})
	}
	return out
}

func (p *Persistence) readTrashEntries() []trash.Exported {
	data, err := p.storage.Read(KeyTrash)
	if err != nil {
		return nil
	}
	payload, ok := unframe(data)
	if !ok {
		p.logDrop(KeyTrash, "crc mismatch")
		return nil
	}
	records, err := p.codec.DecodeTrash(payload)
	if err != nil {
		p.logDrop(KeyTrash, err.Error())
		return nil
	}
	out := make([]trash.Exported, 0, len(records))
	for _, r := range records {
		var root *node.Node
		if r.Node != nil {
			root = codec.SnapshotToNode(r.Node)
		}
		out = append(out, trash.Exported{
			TrashID:          r.TrashID,
			OriginalPath:     r.OriginalPath,
			IsDir:            r.IsDir,
			Size:             r.Size,
			DeletedAt:        millisToTime(r.DeletedAtMillis),
			Root:             root,
			IsMounted:        r.IsMounted,
			MountVirtualPath: r.MountVirtualPath,
		})
	}
	return out
}

// replayWAL applies every well-formed WAL record directly to p.tree and
// p.trashMgr, in the order recorded. Unknown tags and decode failures are
// skipped (spec.md §4.13): the tree remains exactly as far along as the
// WAL could bring it.
func (p *Persistence) replayWAL() {
	data, err := p.storage.Read(KeyWAL)
	if err != nil {
		return
	}
	scanWAL(data, func(payload []byte) {
		e, err := p.codec.DecodeWalEntry(payload)
		if err != nil {
			p.logDrop(KeyWAL, err.Error())
			return
		}
		p.applyWalEntry(e)
	})
}

func (p *Persistence) applyWalEntry(e *codec.WalEntry) {
	var err error
	switch e.Tag {
	case codec.WalCreateFile:
		err = p.tree.CreateFile(e.Path, e.Permissions)
	case codec.WalCreateDir:
		err = p.tree.CreateDir(e.Path, e.Permissions)
	case codec.WalCreateSymlink:
		err = p.tree.CreateSymlink(e.Path, e.Target)
	case codec.WalDelete:
		err = p.tree.DeleteRecursive(e.Path)
	case codec.WalWrite:
		err = p.replayWrite(e)
	case codec.WalSetPermissions:
		err = p.tree.SetPermissions(e.Path, e.Permissions)
	case codec.WalSetXattr:
		err = p.tree.SetXattr(e.Path, e.XattrName, e.XattrValue)
	case codec.WalRemoveXattr:
		_, err = p.tree.RemoveXattr(e.Path, e.XattrName)
	case codec.WalCopy:
		err = p.tree.Copy(e.Path, e.Dst)
	case codec.WalMove:
		err = p.tree.Rename(e.Path, e.Dst)
	case codec.WalMoveToTrash:
		_, err = p.trashMgr.MoveToTrashReplay(e.Path, e.TrashID)
	case codec.WalRestoreFromTrash:
		err = p.trashMgr.Restore(e.TrashID)
	default:
		return
	}
	if err != nil {
		p.warnings = append(p.warnings, fmt.Errorf("wal replay tag=%v path=%s: %w", e.Tag, e.Path, err))
		if p.logger != nil {
			p.logger.Warn("wal replay: entry failed, continuing", map[string]interface{}{
				"tag": e.Tag, "path": e.Path, "err": err.Error(),
			})
		}
	}
}

func (p *Persistence) replayWrite(e *codec.WalEntry) error {
	h, err := p.tree.Open(e.Path, tree.WriteOnly)
	if err != nil {
		return err
	}
	defer p.tree.Close(h)
	return p.tree.WriteAt(h, e.Offset, e.Data)
}

func millisToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// AppendWAL records one applied mutation and triggers a full snapshot once
// sinceSnap reaches the configured threshold (spec.md §4.13 steady-state).
func (p *Persistence) AppendWAL(e *codec.WalEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	payload, err := p.codec.EncodeWalEntry(e)
	if err != nil {
		return errors.Unknown(err)
	}
	rec := frameWALRecord(payload)
	err = p.storage.Append(KeyWAL, rec)
	releaseFrame(rec)
	if err != nil {
		return err
	}
	p.sinceSnap++
	if p.sinceSnap >= p.threshold {
		return p.snapshotLocked()
	}
	return nil
}

// Snapshot forces a full snapshot write and WAL truncation regardless of
// the append counter, for callers (e.g. graceful shutdown) that want a
// durable checkpoint immediately.
func (p *Persistence) Snapshot() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Persistence) snapshotLocked() error {
	var sn *codec.SnapshotNode
	p.tree.WithSnapshot(func(root *node.Node) {
		sn = codec.NodeToSnapshot(root)
	})
	payload, err := p.codec.EncodeSnapshot(sn)
	if err != nil {
		return errors.Unknown(err)
	}
	snap := frame(payload)
	err = p.storage.Write(KeySnapshot, snap)
	releaseFrame(snap)
	if err != nil {
		return err
	}
	// The WAL is truncated only after the snapshot is durably written
	// (spec.md §4.13): a crash between these two writes simply means the
	// next recovery replays a WAL whose entries are already reflected in
	// the new snapshot, which applyWalEntry tolerates (AlreadyExists/
	// NotFound from a re-applied entry is swallowed, not fatal).
	if err := p.storage.Write(KeyWAL, nil); err != nil {
		return err
	}
	p.sinceSnap = 0
	return nil
}

// SaveMounts re-encodes the router's full mount list (spec.md §4.13:
// "Mounts ... are re-encoded in full on each change").
func (p *Persistence) SaveMounts() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var records []codec.MountRecord
	for _, m := range p.router.List() {
		records = append(records, codec.MountRecord{VirtualPath: m.VirtualPath, RootPath: m.RootPath, ReadOnly: m.ReadOnly})
	}
	payload, err := p.codec.EncodeMounts(records)
	if err != nil {
		return errors.Unknown(err)
	}
	buf := frame(payload)
	err = p.storage.Write(KeyMounts, buf)
	releaseFrame(buf)
	return err
}

// SaveVersions re-encodes the version store's full history.
func (p *Persistence) SaveVersions() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var records []codec.VersionRecord
	for _, v := range p.versions.Export() {
		records = append(records, codec.VersionRecord{
			Path:            v.Path,
			ID:              string(v.ID),
			TimestampMillis: v.Timestamp.UnixMilli(),
			Blob:            v.Blob,
		})
	}
	payload, err := p.codec.EncodeVersions(records)
	if err != nil {
		return errors.Unknown(err)
	}
	buf := frame(payload)
	err = p.storage.Write(KeyVersions, buf)
	releaseFrame(buf)
	return err
}

// SaveTrash re-encodes the trash manager's full contents.
func (p *Persistence) SaveTrash() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var records []codec.TrashRecord
	for _, it := range p.trashMgr.Export() {
		var sn *codec.SnapshotNode
		if it.Root != nil {
			sn = codec.NodeToSnapshot(it.Root)
		}
		records = append(records, codec.TrashRecord{
			TrashID:          it.TrashID,
			OriginalPath:     it.OriginalPath,
			IsDir:            it.IsDir,
			Size:             it.Size,
			DeletedAtMillis:  it.DeletedAt.UnixMilli(),
			IsMounted:        it.IsMounted,
			MountVirtualPath: it.MountVirtualPath,
			Node:             sn,
		})
	}
	payload, err := p.codec.EncodeTrash(records)
	if err != nil {
		return errors.Unknown(err)
	}
	buf := frame(payload)
	err = p.storage.Write(KeyTrash, buf)
	releaseFrame(buf)
	return err
}
