package filesystem

import (
	"time"

	"github.com/picofs/picofs/internal/codec"
	"github.com/picofs/picofs/internal/events"
	"github.com/picofs/picofs/internal/mount"
	"github.com/picofs/picofs/internal/node"
	"github.com/picofs/picofs/internal/pathutil"
	"github.com/picofs/picofs/internal/tree"
	"github.com/picofs/picofs/pkg/errors"
)

// fsEvent builds the event published for a mount-dispatched mutation; tree-
// dispatched mutations instead flow through tree.Hooks.OnMutate (see
// onTreeMutate in facade.go), since only the tree calls that hook.
func fsEvent(path string, kind events.Kind) events.FsEvent {
	return events.FsEvent{Path: path, Kind: kind}
}

// track wraps one operation's body with the {duration, bytes, direction,
// success} bookkeeping every core operation reports to metrics.Collector
// (spec.md §4.14).
func (fs *FileSystem) track(operation, direction string, bytes int64, fn func() error) error {
	start := time.Now()
	err := fn()
	fs.metrics.RecordOperation(operation, time.Since(start), bytes, direction, err == nil)
	return err
}

// appendWAL logs e after a tree-dispatched mutation commits successfully.
// Failure here is reported to the caller as-is: the in-memory mutation
// already happened and is not rolled back by appendWAL itself — callers
// that can cheaply undo do so explicitly (see CreateFile/CreateDir below).
func (fs *FileSystem) appendWAL(e *codec.WalEntry) error {
	return fs.persistence.AppendWAL(e)
}

// Stat returns metadata for path, dispatching to the tree or, if path falls
// under a mount, to the mount's cache/DiskOps (spec.md §4.4, §4.6). Stat
// takes only a read lock: concurrent stats never block each other.
func (fs *FileSystem) Stat(path string) (tree.FsMeta, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var meta tree.FsMeta
	err := fs.track("stat", "", 0, func() error {
		if m, rel, ok := fs.router.Resolve(path); ok {
			if m.Pending() {
				return errors.NotMounted(path)
			}
			if cached, ok := fs.cache.GetStat(path); ok {
				meta = cached
				return nil
			}
			dm, err := m.Ops.Stat(rel)
			if err != nil {
				return err
			}
			meta = diskMetaToFsMeta(path, dm)
			fs.cache.PutStat(path, meta)
			return nil
		}
		m, err := fs.tree.Stat(path)
		meta = m
		return err
	})
	return meta, err
}

func diskMetaToFsMeta(path string, dm mount.DiskMeta) tree.FsMeta {
	t := node.File
	if dm.IsDir {
		t = node.Directory
	}
	return tree.FsMeta{
		Name:       pathBase(path),
		Path:       path,
		Type:       t,
		Size:       dm.Size,
		ModifiedAt: dm.ModifiedAt,
	}
}

// ReadDir lists path's children, dispatching the same way Stat does.
func (fs *FileSystem) ReadDir(path string) ([]tree.FsEntry, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var entries []tree.FsEntry
	err := fs.track("readDir", "", 0, func() error {
		if m, rel, ok := fs.router.Resolve(path); ok {
			if m.Pending() {
				return errors.NotMounted(path)
			}
			if cached, ok := fs.cache.GetReadDir(path); ok {
				entries = cached
				return nil
			}
			list, err := m.Ops.List(rel)
			if err != nil {
				return err
			}
			out := make([]tree.FsEntry, len(list))
			for i, e := range list {
				t := node.File
				if e.IsDir {
					t = node.Directory
				}
				out[i] = tree.FsEntry{Name: e.Name, Type: t}
			}
			entries = out
			fs.cache.PutReadDir(path, entries)
			return nil
		}
		es, err := fs.tree.ReadDir(path)
		entries = es
		return err
	})
	return entries, err
}

// CreateFile creates an empty file at path (spec.md §4.2). A tree-dispatched
// creation appends a WAL entry once committed; failure to append rolls the
// in-memory creation back so the two states never diverge.
func (fs *FileSystem) CreateFile(path string, perm node.Permissions) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.track("createFile", "", 0, func() error {
		if m, rel, ok := fs.router.Resolve(path); ok {
			if m.ReadOnly {
				return errors.PermissionDenied(path, "mount is read-only")
			}
			if m.Pending() {
				return errors.NotMounted(path)
			}
			if err := m.Ops.CreateFile(rel); err != nil {
				return err
			}
			fs.cache.Invalidate(path)
			fs.bus.Publish(fsEvent(path, events.Created))
			return nil
		}

		if err := fs.tree.CreateFile(path, perm); err != nil {
			return err
		}
		if err := fs.appendWAL(&codec.WalEntry{Tag: codec.WalCreateFile, Path: path, Permissions: perm}); err != nil {
			_ = fs.tree.Delete(path)
			return err
		}
		return nil
	})
}

// CreateDir creates an empty directory at path; the parent must exist.
func (fs *FileSystem) CreateDir(path string, perm node.Permissions) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.track("createDir", "", 0, func() error {
		if m, rel, ok := fs.router.Resolve(path); ok {
			if m.ReadOnly {
				return errors.PermissionDenied(path, "mount is read-only")
			}
			if m.Pending() {
				return errors.NotMounted(path)
			}
			if err := m.Ops.CreateDir(rel); err != nil {
				return err
			}
			fs.cache.Invalidate(path)
			fs.bus.Publish(fsEvent(path, events.Created))
			return nil
		}

		if err := fs.tree.CreateDir(path, perm); err != nil {
			return err
		}
		if err := fs.appendWAL(&codec.WalEntry{Tag: codec.WalCreateDir, Path: path, Permissions: perm}); err != nil {
			_ = fs.tree.Delete(path)
			return err
		}
		return nil
	})
}

// CreateDirRecursive creates path and any missing in-memory ancestors. It
// does not cross into a mount: spec.md's mount preconditions require the
// mount point's parent to already exist in the tree, so recursive creation
// is an in-memory-only convenience.
func (fs *FileSystem) CreateDirRecursive(path string, perm node.Permissions) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.track("createDirRecursive", "", 0, func() error {
		if _, _, ok := fs.router.Resolve(path); ok {
			return errors.InvalidPath(path).WithDetail("reason", "recursive directory creation is not supported under a mount")
		}
		if err := fs.tree.CreateDirRecursive(path, perm); err != nil {
			return err
		}
		return fs.appendWAL(&codec.WalEntry{Tag: codec.WalCreateDir, Path: path, Permissions: perm})
	})
}

// Delete removes an empty path (spec.md §4.2, §4.3).
func (fs *FileSystem) Delete(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.track("delete", "", 0, func() error {
		if m, rel, ok := fs.router.Resolve(path); ok {
			if m.ReadOnly {
				return errors.PermissionDenied(path, "mount is read-only")
			}
			if m.Pending() {
				return errors.NotMounted(path)
			}
			if err := m.Ops.Delete(rel); err != nil {
				return err
			}
			fs.cache.Invalidate(path)
			fs.bus.Publish(fsEvent(path, events.Deleted))
			return nil
		}

		if err := fs.tree.Delete(path); err != nil {
			return err
		}
		return fs.appendWAL(&codec.WalEntry{Tag: codec.WalDelete, Path: path})
	})
}

// DeleteRecursive removes path and its entire subtree.
func (fs *FileSystem) DeleteRecursive(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.track("deleteRecursive", "", 0, func() error {
		if m, rel, ok := fs.router.Resolve(path); ok {
			if m.ReadOnly {
				return errors.PermissionDenied(path, "mount is read-only")
			}
			if m.Pending() {
				return errors.NotMounted(path)
			}
			if err := m.Ops.Delete(rel); err != nil {
				return err
			}
			fs.cache.InvalidatePrefix(path)
			fs.bus.Publish(fsEvent(path, events.Deleted))
			return nil
		}

		if err := fs.tree.DeleteRecursive(path); err != nil {
			return err
		}
		return fs.appendWAL(&codec.WalEntry{Tag: codec.WalDelete, Path: path})
	})
}

// Rename moves oldPath to newPath. A rename that would cross from the tree
// into a mount, out of a mount, or between two different mounts is not a
// single atomic operation either namespace can perform, so it is reduced to
// Copy followed by DeleteRecursive of the source, matching the documented
// decision for cross-mount moves.
func (fs *FileSystem) Rename(oldPath, newPath string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.track("move", "", 0, func() error {
		oldMount, _, oldMounted := fs.router.Resolve(oldPath)
		newMount, _, newMounted := fs.router.Resolve(newPath)

		sameSide := oldMounted == newMounted && (!oldMounted || oldMount.VirtualPath == newMount.VirtualPath)
		if sameSide && oldMounted {
			if oldMount.ReadOnly {
				return errors.PermissionDenied(oldPath, "mount is read-only")
			}
			_, oldRel, _ := fs.router.Resolve(oldPath)
			_, newRel, _ := fs.router.Resolve(newPath)
			if oldMount.Pending() {
				return errors.NotMounted(oldPath)
			}
			if err := fs.renameOnMount(oldMount, oldRel, newRel); err != nil {
				return err
			}
			fs.cache.InvalidatePrefix(oldPath)
			fs.cache.InvalidatePrefix(newPath)
			fs.bus.Publish(fsEvent(oldPath, events.Deleted))
			fs.bus.Publish(fsEvent(newPath, events.Created))
			return nil
		}
		if sameSide && !oldMounted {
			if err := fs.tree.Rename(oldPath, newPath); err != nil {
				return err
			}
			return fs.appendWAL(&codec.WalEntry{Tag: codec.WalMove, Path: oldPath, Dst: newPath})
		}

		if err := fs.copyLocked(oldPath, newPath); err != nil {
			return err
		}
		if err := fs.deleteRecursiveLocked(oldPath); err != nil {
			_ = fs.deleteRecursiveLocked(newPath)
			return err
		}
		return nil
	})
}

// renameOnMount has no dedicated DiskOps rename method (spec.md §6 lists no
// such optional concern), so it degrades to read-then-write-then-delete
// against the same backend, which is correct for a single-mount move even
// though it is not atomic from the backend's perspective.
func (fs *FileSystem) renameOnMount(m *mount.Mount, oldRel, newRel string) error {
	meta, err := m.Ops.Stat(oldRel)
	if err != nil {
		return err
	}
	if meta.IsDir {
		if err := m.Ops.CreateDir(newRel); err != nil {
			return err
		}
	} else {
		data, err := m.Ops.ReadFile(oldRel, 0, int(meta.Size))
		if err != nil {
			return err
		}
		if err := m.Ops.CreateFile(newRel); err != nil {
			return err
		}
		if err := m.Ops.WriteFile(newRel, 0, data); err != nil {
			return err
		}
	}
	return m.Ops.Delete(oldRel)
}

// copyLocked and deleteRecursiveLocked let Rename compose Copy/Delete's
// bodies while already holding fs.mu, since Copy/Delete themselves acquire
// it.
func (fs *FileSystem) copyLocked(src, dst string) error {
	return fs.track("copy", "", 0, func() error { return fs.copyInner(src, dst) })
}

func (fs *FileSystem) deleteRecursiveLocked(path string) error {
	return fs.track("deleteRecursive", "", 0, func() error {
		if err := fs.tree.DeleteRecursive(path); err != nil {
			return err
		}
		return fs.appendWAL(&codec.WalEntry{Tag: codec.WalDelete, Path: path})
	})
}

// Copy duplicates src to dst (spec.md §4.2). Cross-namespace copies stream
// the source's full content through ReadAll/WriteAll rather than a single
// tree-internal clone, since the destination may live on a different mount
// (or the tree) than the source.
func (fs *FileSystem) Copy(src, dst string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.track("copy", "", 0, func() error { return fs.copyInner(src, dst) })
}

func (fs *FileSystem) copyInner(src, dst string) error {
	srcMount, srcRel, srcMounted := fs.router.Resolve(src)
	dstMount, dstRel, dstMounted := fs.router.Resolve(dst)

	if !srcMounted && !dstMounted {
		if err := fs.tree.Copy(src, dst); err != nil {
			return err
		}
		return fs.appendWAL(&codec.WalEntry{Tag: codec.WalCopy, Path: src, Dst: dst})
	}

	if srcMounted && dstMounted && srcMount.VirtualPath == dstMount.VirtualPath {
		if dstMount.ReadOnly {
			return errors.PermissionDenied(dst, "mount is read-only")
		}
		return fs.crossCopyOnSameMount(srcMount, srcRel, dstRel)
	}

	meta, err := fs.statInner(src)
	if err != nil {
		return err
	}
	if meta.Type == node.Directory {
		return errors.InvalidPath(src).WithDetail("reason", "cross-namespace directory copy is not supported")
	}
	content, err := fs.readAllInner(src)
	if err != nil {
		return err
	}
	return fs.writeAllInner(dst, content, meta.Permissions)
}

func (fs *FileSystem) crossCopyOnSameMount(m *mount.Mount, srcRel, dstRel string) error {
	meta, err := m.Ops.Stat(srcRel)
	if err != nil {
		return err
	}
	if meta.IsDir {
		return errors.InvalidPath(srcRel).WithDetail("reason", "cross-namespace directory copy is not supported")
	}
	data, err := m.Ops.ReadFile(srcRel, 0, int(meta.Size))
	if err != nil {
		return err
	}
	if err := m.Ops.CreateFile(dstRel); err != nil {
		return err
	}
	return m.Ops.WriteFile(dstRel, 0, data)
}

// SetPermissions replaces the permissions of the node at path. Mounted
// backends have no notion of PicoFS's rwx triple (spec.md §6 never lists a
// permissions concern in DiskOps), so this is an in-memory-tree-only
// operation.
func (fs *FileSystem) SetPermissions(path string, perm node.Permissions) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.track("setPermissions", "", 0, func() error {
		if err := fs.tree.SetPermissions(path, perm); err != nil {
			return err
		}
		return fs.appendWAL(&codec.WalEntry{Tag: codec.WalSetPermissions, Path: path, Permissions: perm})
	})
}

// ReadAll reads a file's complete content in one call.
func (fs *FileSystem) ReadAll(path string) ([]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	start := time.Now()
	content, err := fs.readAllInner(path)
	fs.metrics.RecordOperation("readAll", time.Since(start), int64(len(content)), "read", err == nil)
	return content, err
}

func (fs *FileSystem) readAllInner(path string) ([]byte, error) {
	if m, rel, ok := fs.router.Resolve(path); ok {
		if m.Pending() {
			return nil, errors.NotMounted(path)
		}
		meta, err := m.Ops.Stat(rel)
		if err != nil {
			return nil, err
		}
		return m.Ops.ReadFile(rel, 0, int(meta.Size))
	}
	return fs.tree.ReadAllContent(path)
}

func (fs *FileSystem) statInner(path string) (tree.FsMeta, error) {
	if m, rel, ok := fs.router.Resolve(path); ok {
		if m.Pending() {
			return tree.FsMeta{}, errors.NotMounted(path)
		}
		dm, err := m.Ops.Stat(rel)
		if err != nil {
			return tree.FsMeta{}, err
		}
		return diskMetaToFsMeta(path, dm), nil
	}
	return fs.tree.Stat(path)
}

// WriteAll replaces path's entire content in one call, creating the file
// first if it does not already exist.
func (fs *FileSystem) WriteAll(path string, content []byte, perm node.Permissions) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.track("writeAll", "write", int64(len(content)), func() error {
		return fs.writeAllInner(path, content, perm)
	})
}

func (fs *FileSystem) writeAllInner(path string, content []byte, perm node.Permissions) error {
	if m, rel, ok := fs.router.Resolve(path); ok {
		if m.ReadOnly {
			return errors.PermissionDenied(path, "mount is read-only")
		}
		if m.Pending() {
			return errors.NotMounted(path)
		}
		exists, err := m.Ops.Exists(rel)
		if err != nil {
			return err
		}
		if !exists {
			if err := m.Ops.CreateFile(rel); err != nil {
				return err
			}
		} else {
			fs.captureMountVersionIfNonEmpty(path, m, rel)
		}
		if err := m.Ops.WriteFile(rel, 0, content); err != nil {
			return err
		}
		fs.cache.Invalidate(path)
		fs.bus.Publish(fsEvent(path, events.Created))
		return nil
	}

	if _, err := fs.tree.Stat(path); err != nil {
		if !errors.Is(err, errors.ErrCodeNotFound) {
			return err
		}
		if err := fs.tree.CreateFile(path, perm); err != nil {
			return err
		}
		if err := fs.appendWAL(&codec.WalEntry{Tag: codec.WalCreateFile, Path: path, Permissions: perm}); err != nil {
			_ = fs.tree.Delete(path)
			return err
		}
	}

	h, err := fs.tree.Open(path, tree.WriteOnly)
	if err != nil {
		return err
	}
	defer fs.tree.Close(h)
	if err := fs.tree.Truncate(h, 0); err != nil {
		return err
	}
	if err := fs.tree.WriteAt(h, 0, content); err != nil {
		return err
	}
	return fs.appendWAL(&codec.WalEntry{Tag: codec.WalWrite, Path: path, Offset: 0, Data: content})
}

// Sync compares a fresh disk listing under path against the last disk
// state observed for that subtree, publishing CREATED/MODIFIED/DELETED
// FsEvents for whatever changed and, for each MODIFIED file, capturing a
// version of its prior content via VersionStore.ObserveExternal if the
// bytes actually differ (spec.md §4.14: "sync(path) ... compares a fresh
// disk listing against the last observed per-path snapshot"). path must
// resolve to an attached mount; sync of an in-memory path fails NotMounted
// since the in-memory tree has no external actor to drift from.
func (fs *FileSystem) Sync(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.track("sync", "", 0, func() error {
		m, _, ok := fs.router.Resolve(path)
		if !ok || m.Pending() {
			return errors.NotMounted(path)
		}
		norm := pathutil.Normalize(path)

		current := make(map[string]mount.DiskMeta)
		if err := fs.walkMountSubtree(m, norm, current); err != nil {
			return err
		}

		fs.observedMu.Lock()
		previous := make(map[string]mount.DiskMeta, len(current))
		for p, meta := range fs.lastObserved {
			if pathutil.HasPrefix(p, norm) {
				previous[p] = meta
			}
		}
		fs.observedMu.Unlock()

		for p, meta := range current {
			prior, existed := previous[p]
			delete(previous, p)
			fs.cache.Invalidate(p)
			switch {
			case !existed:
				fs.bus.Publish(fsEvent(p, events.Created))
			case !meta.IsDir && (meta.Size != prior.Size || !meta.ModifiedAt.Equal(prior.ModifiedAt)):
				fs.bus.Publish(fsEvent(p, events.Modified))
			}
			// Every observed file's content is diffed against the version
			// store's own last-seen baseline (seeded the first time a file is
			// observed), regardless of whether this cycle's stat comparison
			// flagged it: this is what lets the very next cycle's MODIFIED
			// detect and capture a real prior blob instead of finding no
			// baseline to diff against.
			if !meta.IsDir {
				fs.captureExternalVersion(p, meta)
			}
		}
		// Whatever remains in previous was observed last time but is no
		// longer present: it was deleted from disk since.
		for p := range previous {
			fs.cache.Invalidate(p)
			fs.bus.Publish(fsEvent(p, events.Deleted))
		}

		fs.observedMu.Lock()
		for p := range fs.lastObserved {
			if pathutil.HasPrefix(p, norm) {
				delete(fs.lastObserved, p)
			}
		}
		for p, meta := range current {
			fs.lastObserved[p] = meta
		}
		fs.observedMu.Unlock()

		return nil
	})
}

// walkMountSubtree recursively lists a mount's disk backend starting at
// virtualPath's resolved disk-relative location, recording every entry's
// DiskMeta keyed by its virtual path.
func (fs *FileSystem) walkMountSubtree(m *mount.Mount, virtualPath string, out map[string]mount.DiskMeta) error {
	_, rel, ok := fs.router.Resolve(virtualPath)
	if !ok {
		return errors.NotMounted(virtualPath)
	}
	entries, err := m.Ops.List(rel)
	if err != nil {
		return err
	}
	for _, e := range entries {
		childVirtual := pathutil.Join(virtualPath, e.Name)
		childRel := pathutil.Join(rel, e.Name)
		meta, err := m.Ops.Stat(childRel)
		if err != nil {
			continue
		}
		out[childVirtual] = meta
		if e.IsDir {
			if err := fs.walkMountSubtree(m, childVirtual, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// captureExternalVersion reads a modified mount file's full current
// content and hands it to VersionStore.ObserveExternal, which pushes the
// prior observed blob as a new version iff the bytes actually changed
// (spec.md §4.8). Read failures are swallowed: a version capture that
// can't read the new content simply skips this cycle's history entry
// rather than failing the whole sync.
func (fs *FileSystem) captureExternalVersion(virtualPath string, meta mount.DiskMeta) {
	m, rel, ok := fs.router.Resolve(virtualPath)
	if !ok || m.Pending() {
		return
	}
	content, err := m.Ops.ReadFile(rel, 0, int(meta.Size))
	if err != nil {
		return
	}
	fs.versions.ObserveExternal(virtualPath, content)
}

// captureMountVersionIfNonEmpty reads a mounted file's full current content
// and pushes it as a version iff non-empty, mirroring internal/tree's own
// "capture before any write to non-empty content" discipline (spec.md §3:
// "a new version is pushed on each write that replaces non-empty prior
// content") for mount-backed files, which have no hook into TreeStore's own
// version-capture path. Read failures are swallowed the same way
// captureExternalVersion's are: a version that can't be read is simply not
// captured, rather than failing the write in progress.
func (fs *FileSystem) captureMountVersionIfNonEmpty(path string, m *mount.Mount, rel string) {
	meta, err := m.Ops.Stat(rel)
	if err != nil || meta.Size == 0 {
		return
	}
	content, err := m.Ops.ReadFile(rel, 0, int(meta.Size))
	if err != nil || len(content) == 0 {
		return
	}
	fs.captureVersion(path, content)
}

// AttachWatcher binds w to virtualPath's mount and starts a dedicated
// goroutine translating its DiskFileEvent stream into FsEvents, capturing
// an external version on every MODIFIED (spec.md §4.7, §5: "events from a
// DiskFileWatcher are translated on a dedicated task that shares the same
// mutex discipline so version captures and event emission interleave
// correctly with user operations"). The bridge runs until Close stops it
// or w's Events channel closes on its own.
func (fs *FileSystem) AttachWatcher(virtualPath string, w mount.DiskFileWatcher) error {
	fs.mu.RLock()
	m, ok := fs.router.Get(virtualPath)
	stop := fs.watcherStop
	fs.mu.RUnlock()
	if !ok {
		return errors.NotMounted(virtualPath)
	}
	if m.Pending() {
		return errors.NotMounted(virtualPath)
	}

	fs.watcherWG.Add(1)
	go fs.runWatcher(virtualPath, w, stop)
	return nil
}

func (fs *FileSystem) runWatcher(virtualPath string, w mount.DiskFileWatcher, stop chan struct{}) {
	defer fs.watcherWG.Done()
	for {
		select {
		case ev, ok := <-w.Events():
			if !ok {
				return
			}
			fs.bridgeDiskEvent(virtualPath, ev)
		case <-stop:
			w.Stop()
			return
		}
	}
}

// bridgeDiskEvent applies one external DiskFileEvent under the write
// mutex, so it interleaves with ordinary writer operations exactly like
// any other mutation: cache invalidation, an external-version capture on
// MODIFIED, then the translated FsEvent publish.
func (fs *FileSystem) bridgeDiskEvent(virtualPath string, ev events.DiskFileEvent) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	full := pathutil.Join(virtualPath, ev.RelativePath)
	fs.cache.Invalidate(full)

	if ev.Kind == events.Modified {
		if m, ok := fs.router.Get(virtualPath); ok && !m.Pending() {
			if meta, err := m.Ops.Stat(ev.RelativePath); err == nil {
				fs.captureExternalVersion(full, meta)
			}
		}
	}

	fs.bus.PublishFromMount(virtualPath, ev)
}

func pathBase(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}

