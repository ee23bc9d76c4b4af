package filesystem

import (
	"time"

	"github.com/picofs/picofs/internal/archive"
	"github.com/picofs/picofs/internal/checksum"
	"github.com/picofs/picofs/internal/circuit"
	"github.com/picofs/picofs/internal/codec"
	"github.com/picofs/picofs/internal/events"
	"github.com/picofs/picofs/internal/mount"
	"github.com/picofs/picofs/internal/node"
	"github.com/picofs/picofs/internal/search"
	"github.com/picofs/picofs/internal/trash"
	"github.com/picofs/picofs/internal/tree"
	"github.com/picofs/picofs/internal/version"
	"github.com/picofs/picofs/pkg/errors"
	"github.com/picofs/picofs/pkg/retry"
)

// MountsNS is the facade's mount sub-namespace (spec.md §4.6): attaching,
// detaching, and listing DiskOps backends, each wrapped in the resilience
// decorators internal/mount ships.
type MountsNS struct{ fs *FileSystem }

// wrapOps applies RetryingDiskOps then, if enabled, a BreakingDiskOps
// around a host-supplied backend, per spec.md §5's "a pool for blocking
// disk I/O" resilience requirement. The breaker itself comes from the
// router's shared circuit.Manager (one per virtual path, looked up by
// name) rather than a fresh one per call, so re-attaching a backend after
// a restart or a host-initiated re-mount resumes with the same trip
// history instead of forgetting it.
func (n *MountsNS) wrapOps(virtualPath string, ops mount.DiskOps) mount.DiskOps {
	cfg := n.fs.cfg.Mount
	wrapped := mount.NewRetryingDiskOpsWithStats(ops, retry.Config{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
		Multiplier:   2,
	}, n.fs.router.RetryStats(virtualPath))
	breaker, ok := n.fs.router.Breaker(virtualPath)
	if !ok {
		return wrapped
	}
	return mount.WrapBreaker(breaker, wrapped)
}

// Add registers a new mount at virtualPath (spec.md §4.6 preconditions):
// the path must not be root, must not overlap an existing mount, and its
// parent must already exist as a directory in the tree. The mount point
// itself must be an existing empty directory, which this then flags via
// TreeStore.MarkMountPoint.
func (n *MountsNS) Add(virtualPath, rootPath string, readOnly bool, ops mount.DiskOps) error {
	fs := n.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.track("mount", "", 0, func() error {
		meta, err := fs.tree.Stat(virtualPath)
		if err != nil {
			return err
		}
		if meta.Type != node.Directory {
			return errors.NotDirectory(virtualPath)
		}
		entries, err := fs.tree.ReadDir(virtualPath)
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			return errors.AlreadyExists(virtualPath).WithDetail("reason", "mount point directory is not empty")
		}

		wrapped := n.wrapOps(virtualPath, ops)
		if err := fs.router.Add(virtualPath, rootPath, readOnly, wrapped); err != nil {
			return err
		}
		if err := fs.tree.MarkMountPoint(virtualPath, true); err != nil {
			_, _ = fs.router.Remove(virtualPath)
			return err
		}
		fs.cache.InvalidatePrefix(virtualPath)
		return fs.persistence.SaveMounts()
	})
}

// Attach binds ops to an already-registered pending mount (e.g. recovered
// from persistence at startup with no backend yet).
func (n *MountsNS) Attach(virtualPath string, ops mount.DiskOps) error {
	fs := n.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.router.Attach(virtualPath, n.wrapOps(virtualPath, ops))
}

// Remove detaches virtualPath's mount entirely.
func (n *MountsNS) Remove(virtualPath string) error {
	fs := n.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.track("unmount", "", 0, func() error {
		if _, err := fs.router.Remove(virtualPath); err != nil {
			return err
		}
		_ = fs.tree.MarkMountPoint(virtualPath, false)
		fs.cache.InvalidatePrefix(virtualPath)
		return fs.persistence.SaveMounts()
	})
}

// List returns every registered mount.
func (n *MountsNS) List() []mount.Mount { return n.fs.router.List() }

// Pending returns every registered mount awaiting a backend.
func (n *MountsNS) Pending() []mount.Mount { return n.fs.router.Pending() }

// VersionsNS is the facade's version-history sub-namespace (spec.md §4.8).
type VersionsNS struct{ fs *FileSystem }

// List returns path's version history, newest first.
func (n *VersionsNS) List(path string) []version.Version { return n.fs.versions.List(path) }

// Restore replaces path's live content with the historical blob recorded
// under id, first pushing the current content as a new version of its own
// (spec.md §4.8: "push current → overwrite with historical").
func (n *VersionsNS) Restore(path string, id version.ID) error {
	fs := n.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.track("restoreVersion", "", 0, func() error {
		current, err := fs.tree.ReadAllContent(path)
		if err != nil {
			return err
		}
		blob, err := fs.versions.Restore(id, current)
		if err != nil {
			return err
		}
		h, err := fs.tree.Open(path, 0)
		if err != nil {
			return err
		}
		_ = h
		return fs.writeAllInner(path, blob, node.FullPermissions())
	})
}

// SearchNS is the facade's glob/grep sub-namespace (spec.md §4.11).
type SearchNS struct{ fs *FileSystem }

// Glob runs a recursive name-glob search.
func (n *SearchNS) Glob(q search.GlobQuery) ([]search.GlobHit, error) {
	n.fs.mu.RLock()
	defer n.fs.mu.RUnlock()
	return n.fs.searchEng.Glob(q)
}

// Grep runs a recursive content grep.
func (n *SearchNS) Grep(q search.GrepQuery) ([]search.GrepHit, error) {
	n.fs.mu.RLock()
	defer n.fs.mu.RUnlock()
	return n.fs.searchEng.Grep(q)
}

// ObserveNS is the facade's event-subscription sub-namespace (spec.md
// §4.7).
type ObserveNS struct{ fs *FileSystem }

// Subscribe registers a subscription filtered by pathPrefix.
func (n *ObserveNS) Subscribe(pathPrefix string) *events.Subscription {
	return n.fs.bus.Subscribe(pathPrefix)
}

// Sync reconciles a mounted subtree's cached/observed state against its
// disk backend, translating drift into FsEvents and external version
// captures (spec.md §4.14).
func (n *ObserveNS) Sync(path string) error {
	return n.fs.Sync(path)
}

// Watch attaches a host-supplied DiskFileWatcher to virtualPath's mount,
// bridging its DiskFileEvent stream onto the EventBus (spec.md §4.7).
func (n *ObserveNS) Watch(virtualPath string, w mount.DiskFileWatcher) error {
	return n.fs.AttachWatcher(virtualPath, w)
}

// MountHealth reports an error naming every mounted backend whose circuit
// breaker is currently tripped open, so a caller can tell a mount that is
// merely slow apart from one the resilience pool has already given up on.
func (n *ObserveNS) MountHealth() error {
	return n.fs.router.HealthCheck()
}

// CircuitStats returns the current state and failure counters for every
// mount that has ever exercised its circuit breaker, keyed by virtual
// path.
func (n *ObserveNS) CircuitStats() map[string]circuit.CircuitBreakerStats {
	return n.fs.router.BreakerStats()
}

// ResetCircuitBreakers clears every mount's breaker back to closed,
// e.g. after an operator has confirmed a previously-failing backend has
// recovered.
func (n *ObserveNS) ResetCircuitBreakers() {
	n.fs.router.ResetBreakers()
}

// RetryStats returns how many attempts each mount's retry wrapper has
// needed, keyed by virtual path, e.g. to tell a mount that is quietly
// retrying every call apart from one that has never needed a second
// attempt.
func (n *ObserveNS) RetryStats() map[string]retry.Stats {
	return n.fs.router.AllRetryStats()
}

// StreamsNS groups the handle-based streaming operations (spec.md §4.2):
// a thin facade over FileSystem.Open/Close/ReadAt/WriteAt/Truncate so
// callers that think in terms of "the streaming namespace" have a single
// place to reach them, matching the ten-namespace shape spec.md describes.
type StreamsNS struct{ fs *FileSystem }

func (n *StreamsNS) Open(path string, mode tree.Mode) (*Handle, error) {
	return n.fs.Open(path, mode)
}
func (n *StreamsNS) Close(h *Handle)                                { n.fs.CloseHandle(h) }
func (n *StreamsNS) ReadAt(h *Handle, offset int64, length int) ([]byte, error) {
	return n.fs.ReadAt(h, offset, length)
}
func (n *StreamsNS) WriteAt(h *Handle, offset int64, data []byte) error {
	return n.fs.WriteAt(h, offset, data)
}
func (n *StreamsNS) Truncate(h *Handle, size int64) error { return n.fs.Truncate(h, size) }

// ChecksumNS is the facade's checksum sub-namespace (spec.md §4.12's
// sibling concern, content integrity).
type ChecksumNS struct{ fs *FileSystem }

// CRC32 returns the lowercase hex CRC32 (IEEE) of path's content.
func (n *ChecksumNS) CRC32(path string) (string, error) {
	content, err := n.fs.ReadAll(path)
	if err != nil {
		return "", err
	}
	return checksum.CRC32(content), nil
}

// SHA256 returns the lowercase hex SHA-256 of path's content.
func (n *ChecksumNS) SHA256(path string) (string, error) {
	content, err := n.fs.ReadAll(path)
	if err != nil {
		return "", err
	}
	return checksum.SHA256(content), nil
}

// XattrNS is the facade's extended-attribute sub-namespace (spec.md §4.9),
// dispatching between the tree and a mounted backend's own xattr methods.
type XattrNS struct{ fs *FileSystem }

func (n *XattrNS) Set(path, key string, value []byte) error {
	fs := n.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.track("setXattr", "", 0, func() error {
		if m, rel, ok := fs.router.Resolve(path); ok {
			if m.ReadOnly {
				return errors.PermissionDenied(path, "mount is read-only")
			}
			if m.Pending() {
				return errors.NotMounted(path)
			}
			if err := m.Ops.SetXattr(rel, key, value); err != nil {
				return err
			}
			fs.cache.Invalidate(path)
			fs.bus.Publish(fsEvent(path, events.Modified))
			return nil
		}
		if err := fs.tree.SetXattr(path, key, value); err != nil {
			return err
		}
		return fs.appendWAL(&codec.WalEntry{Tag: codec.WalSetXattr, Path: path, XattrName: key, XattrValue: value})
	})
}

func (n *XattrNS) Get(path, key string) ([]byte, bool, error) {
	fs := n.fs
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if m, rel, ok := fs.router.Resolve(path); ok {
		if m.Pending() {
			return nil, false, errors.NotMounted(path)
		}
		v, err := m.Ops.GetXattr(rel, key)
		if err != nil {
			if mount.IsNotSupported(err) {
				return nil, false, nil
			}
			return nil, false, err
		}
		return v, true, nil
	}
	return fs.tree.GetXattr(path, key)
}

func (n *XattrNS) Remove(path, key string) (bool, error) {
	fs := n.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var removed bool
	err := fs.track("removeXattr", "", 0, func() error {
		if m, rel, ok := fs.router.Resolve(path); ok {
			if m.ReadOnly {
				return errors.PermissionDenied(path, "mount is read-only")
			}
			if m.Pending() {
				return errors.NotMounted(path)
			}
			if err := m.Ops.RemoveXattr(rel, key); err != nil {
				if mount.IsNotSupported(err) {
					return nil
				}
				return err
			}
			removed = true
			fs.cache.Invalidate(path)
			fs.bus.Publish(fsEvent(path, events.Modified))
			return nil
		}
		r, err := fs.tree.RemoveXattr(path, key)
		removed = r
		if err != nil {
			return err
		}
		if !removed {
			return nil
		}
		return fs.appendWAL(&codec.WalEntry{Tag: codec.WalRemoveXattr, Path: path, XattrName: key})
	})
	return removed, err
}

func (n *XattrNS) List(path string) ([]string, error) {
	fs := n.fs
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if m, rel, ok := fs.router.Resolve(path); ok {
		if m.Pending() {
			return nil, errors.NotMounted(path)
		}
		keys, err := m.Ops.ListXattrs(rel)
		if err != nil && mount.IsNotSupported(err) {
			return nil, nil
		}
		return keys, err
	}
	return fs.tree.ListXattr(path)
}

// SymlinksNS is the facade's symlink sub-namespace (spec.md §4.9).
// Symlinks are an in-memory-tree-only concept: DiskOps has no symlink
// concern, so mounted paths cannot host one.
type SymlinksNS struct{ fs *FileSystem }

func (n *SymlinksNS) Create(path, target string) error {
	fs := n.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.track("createSymlink", "", 0, func() error {
		if err := fs.tree.CreateSymlink(path, target); err != nil {
			return err
		}
		return fs.appendWAL(&codec.WalEntry{Tag: codec.WalCreateSymlink, Path: path, Target: target})
	})
}

func (n *SymlinksNS) Read(path string) (string, error) {
	fs := n.fs
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.tree.ReadLink(path)
}

// ArchiveNS is the facade's compress/extract sub-namespace (spec.md §4.12),
// backed by the hand-rolled ZIP/TAR codecs over in-memory tree content, or
// delegated directly to a mounted backend's own Compress/Extract/ListArchive
// when the source subtree lives entirely under one mount.
type ArchiveNS struct{ fs *FileSystem }

// Compress archives every path in paths into a single in-memory blob of the
// given format, writing it to destPath.
func (n *ArchiveNS) Compress(paths []string, destPath string, format archive.Format) error {
	fs := n.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.track("archiveCompress", "write", 0, func() error {
		if m, rel, ok := fs.router.Resolve(destPath); ok {
			if m.ReadOnly {
				return errors.PermissionDenied(destPath, "mount is read-only")
			}
			relPaths := make([]string, len(paths))
			for i, p := range paths {
				_, r, ok := fs.router.Resolve(p)
				if !ok {
					return errors.InvalidPath(p).WithDetail("reason", "mixed tree/mount archive sources are not supported")
				}
				relPaths[i] = r
			}
			return m.Ops.Compress(relPaths, rel, string(format))
		}

		var entries []archive.Entry
		for _, p := range paths {
			es, err := fs.collectArchiveEntries(p)
			if err != nil {
				return err
			}
			entries = append(entries, es...)
		}
		var blob []byte
		var err error
		switch format {
		case archive.FormatZip:
			blob, err = archive.EncodeZip(entries)
		case archive.FormatTar:
			blob, err = archive.EncodeTar(entries)
		default:
			return errors.InvalidPath(destPath).WithDetail("reason", "unknown archive format")
		}
		if err != nil {
			return err
		}
		return fs.writeAllInner(destPath, blob, node.FullPermissions())
	})
}

// collectArchiveEntries walks an in-memory subtree rooted at path into flat
// archive.Entry records, the shape both EncodeZip and EncodeTar consume.
func (fs *FileSystem) collectArchiveEntries(path string) ([]archive.Entry, error) {
	meta, err := fs.tree.Stat(path)
	if err != nil {
		return nil, err
	}
	if meta.Type != node.Directory {
		content, err := fs.tree.ReadAllContent(path)
		if err != nil {
			return nil, err
		}
		return []archive.Entry{{Name: path, Data: content, ModifiedAt: meta.ModifiedAt}}, nil
	}
	entries := []archive.Entry{{Name: path, IsDir: true, ModifiedAt: meta.ModifiedAt}}
	children, err := fs.tree.ReadDir(path)
	if err != nil {
		return nil, err
	}
	for _, c := range children {
		childEntries, err := fs.collectArchiveEntries(pathJoinSimple(path, c.Name))
		if err != nil {
			return nil, err
		}
		entries = append(entries, childEntries...)
	}
	return entries, nil
}

func pathJoinSimple(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

// Extract unpacks the archive at archivePath into destPath, auto-creating
// missing directories as it goes.
func (n *ArchiveNS) Extract(archivePath, destPath string) error {
	fs := n.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.track("archiveExtract", "read", 0, func() error {
		if m, rel, ok := fs.router.Resolve(archivePath); ok {
			_, destRel, destMounted := fs.router.Resolve(destPath)
			if !destMounted {
				return errors.InvalidPath(destPath).WithDetail("reason", "mixed tree/mount archive extraction is not supported")
			}
			return m.Ops.Extract(rel, destRel)
		}

		blob, err := fs.tree.ReadAllContent(archivePath)
		if err != nil {
			return err
		}
		format, err := archive.DetectFormat(blob)
		if err != nil {
			return err
		}
		var entries []archive.Entry
		switch format {
		case archive.FormatZip:
			entries, err = archive.DecodeZip(blob)
		case archive.FormatTar:
			entries, err = archive.DecodeTar(blob)
		default:
			return errors.InvalidPath(archivePath).WithDetail("reason", "unrecognized archive format")
		}
		if err != nil {
			return err
		}
		for _, e := range entries {
			full := pathJoinSimple(destPath, e.Name)
			if e.IsDir {
				if err := fs.tree.CreateDirRecursive(full, node.FullPermissions()); err != nil {
					return err
				}
				continue
			}
			dir := parentDir(full)
			if err := fs.tree.CreateDirRecursive(dir, node.FullPermissions()); err != nil {
				return err
			}
			if err := fs.writeAllInner(full, e.Data, node.FullPermissions()); err != nil {
				return err
			}
		}
		return nil
	})
}

func parentDir(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			if i == 0 {
				return "/"
			}
			return p[:i]
		}
	}
	return "/"
}

// List returns the entries an archive contains without extracting them.
func (n *ArchiveNS) List(archivePath string) ([]archive.Entry, error) {
	fs := n.fs
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	blob, err := fs.readAllInner(archivePath)
	if err != nil {
		return nil, err
	}
	format, err := archive.DetectFormat(blob)
	if err != nil {
		return nil, err
	}
	switch format {
	case archive.FormatZip:
		return archive.DecodeZip(blob)
	case archive.FormatTar:
		return archive.DecodeTar(blob)
	default:
		return nil, errors.InvalidPath(archivePath).WithDetail("reason", "unrecognized archive format")
	}
}

// TrashNS is the facade's soft-delete sub-namespace (spec.md §4.10).
type TrashNS struct{ fs *FileSystem }

func (n *TrashNS) MoveToTrash(path string) (string, error) {
	fs := n.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var id string
	err := fs.track("moveToTrash", "", 0, func() error {
		trashID, err := fs.trashMgr.MoveToTrash(path)
		if err != nil {
			return err
		}
		id = trashID
		fs.cache.InvalidatePrefix(path)
		fs.bus.Publish(fsEvent(path, events.Deleted))
		if err := fs.appendWAL(&codec.WalEntry{Tag: codec.WalMoveToTrash, Path: path, TrashID: trashID}); err != nil {
			return err
		}
		return fs.persistence.SaveTrash()
	})
	return id, err
}

func (n *TrashNS) Restore(trashID string) error {
	fs := n.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.track("restoreFromTrash", "", 0, func() error {
		if err := fs.trashMgr.Restore(trashID); err != nil {
			return err
		}
		if err := fs.appendWAL(&codec.WalEntry{Tag: codec.WalRestoreFromTrash, TrashID: trashID}); err != nil {
			return err
		}
		return fs.persistence.SaveTrash()
	})
}

func (n *TrashNS) List() []trash.Info { return n.fs.trashMgr.List() }

func (n *TrashNS) Purge(trashID string) error {
	fs := n.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.track("purgeTrash", "", 0, func() error {
		if err := fs.trashMgr.Purge(trashID); err != nil {
			return err
		}
		return fs.persistence.SaveTrash()
	})
}

func (n *TrashNS) PurgeAll() error {
	fs := n.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.track("purgeAllTrash", "", 0, func() error {
		if err := fs.trashMgr.PurgeAll(); err != nil {
			return err
		}
		return fs.persistence.SaveTrash()
	})
}

var _ = time.Now
