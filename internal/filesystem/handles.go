package filesystem

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/picofs/picofs/internal/codec"
	"github.com/picofs/picofs/internal/events"
	"github.com/picofs/picofs/internal/locktable"
	"github.com/picofs/picofs/internal/mount"
	"github.com/picofs/picofs/internal/tree"
	"github.com/picofs/picofs/pkg/errors"
)

// Handle is an open file, covering both tree-backed and mount-backed paths
// behind one type (spec.md §4.2: "a handle records {path, mode, lockState,
// closed}"). Mounted backends have no native open/close primitive (DiskOps
// offers only offset-addressed ReadFile/WriteFile), so a mount-backed
// Handle exists purely to carry a HandleID for advisory locking and to
// reject operations after Close.
type Handle struct {
	fs   *FileSystem
	path string
	mode tree.Mode

	mounted    bool
	mountPoint *mount.Mount
	rel        string
	mountID    locktable.HandleID

	treeHandle *tree.FileHandle
	closed     bool
}

// Open resolves path and returns a Handle opened in mode. The node must
// already exist.
func (fs *FileSystem) Open(path string, mode tree.Mode) (*Handle, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var h *Handle
	err := fs.track("open", "", 0, func() error {
		if m, rel, ok := fs.router.Resolve(path); ok {
			if m.Pending() {
				return errors.NotMounted(path)
			}
			if modeCanWrite(mode) && m.ReadOnly {
				return errors.PermissionDenied(path, "mount is read-only")
			}
			if exists, err := m.Ops.Exists(rel); err != nil {
				return err
			} else if !exists {
				return errors.NotFound(path)
			}
			h = &Handle{
				fs:         fs,
				path:       path,
				mode:       mode,
				mounted:    true,
				mountPoint: m,
				rel:        rel,
				mountID:    locktable.HandleID(atomic.AddUint64(&fs.nextMountHandle, 1)),
			}
			return nil
		}

		th, err := fs.tree.Open(path, mode)
		if err != nil {
			return err
		}
		h = &Handle{fs: fs, path: path, mode: mode, treeHandle: th}
		return nil
	})
	return h, err
}

// CloseHandle releases every lock h holds and marks it closed. Idempotent.
func (fs *FileSystem) CloseHandle(h *Handle) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if h.closed {
		return
	}
	h.closed = true
	if h.mounted {
		fs.mountLocks.Unlock(h.path, h.mountID)
		return
	}
	fs.tree.Close(h.treeHandle)
}

// ReadAt reads up to length bytes from h's file at offset.
func (fs *FileSystem) ReadAt(h *Handle, offset int64, length int) ([]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if h.closed {
		return nil, errors.InvalidPath(h.path)
	}

	start := time.Now()
	var data []byte
	var err error
	if h.mounted {
		if !modeCanRead(h.mode) {
			err = errors.PermissionDenied(h.path, "handle not opened for read")
		} else {
			data, err = h.mountPoint.Ops.ReadFile(h.rel, offset, length)
		}
	} else {
		data, err = fs.tree.ReadAt(h.treeHandle, offset, length)
	}
	fs.metrics.RecordOperation("readAt", time.Since(start), int64(len(data)), "read", err == nil)
	return data, err
}

// WriteAt writes data to h's file at offset.
func (fs *FileSystem) WriteAt(h *Handle, offset int64, data []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if h.closed {
		return errors.InvalidPath(h.path)
	}

	return fs.track("writeAt", "write", int64(len(data)), func() error {
		if h.mounted {
			if !modeCanWrite(h.mode) {
				return errors.PermissionDenied(h.path, "handle not opened for write")
			}
			if h.mountPoint.ReadOnly {
				return errors.PermissionDenied(h.path, "mount is read-only")
			}
			fs.captureMountVersionIfNonEmpty(h.path, h.mountPoint, h.rel)
			if err := h.mountPoint.Ops.WriteFile(h.rel, offset, data); err != nil {
				return err
			}
			fs.cache.Invalidate(h.path)
			fs.bus.Publish(fsEvent(h.path, events.Modified))
			return nil
		}

		if err := fs.tree.WriteAt(h.treeHandle, offset, data); err != nil {
			return err
		}
		return fs.appendWAL(&codec.WalEntry{Tag: codec.WalWrite, Path: h.path, Offset: offset, Data: data})
	})
}

// Truncate resizes h's file to size bytes. Mounted backends have no
// truncate primitive distinct from a full rewrite, so a mounted Handle
// truncates by reading, resizing, and writing back the whole file.
func (fs *FileSystem) Truncate(h *Handle, size int64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if h.closed {
		return errors.InvalidPath(h.path)
	}

	return fs.track("truncate", "", 0, func() error {
		if h.mounted {
			if h.mountPoint.ReadOnly {
				return errors.PermissionDenied(h.path, "mount is read-only")
			}
			meta, err := h.mountPoint.Ops.Stat(h.rel)
			if err != nil {
				return err
			}
			fs.captureMountVersionIfNonEmpty(h.path, h.mountPoint, h.rel)
			readLen := meta.Size
			if size < readLen {
				readLen = size
			}
			data, err := h.mountPoint.Ops.ReadFile(h.rel, 0, int(readLen))
			if err != nil {
				return err
			}
			if int64(len(data)) < size {
				data = append(data, make([]byte, size-int64(len(data)))...)
			}
			if err := h.mountPoint.Ops.WriteFile(h.rel, 0, data[:size]); err != nil {
				return err
			}
			fs.cache.Invalidate(h.path)
			fs.bus.Publish(fsEvent(h.path, events.Modified))
			return nil
		}

		return fs.tree.Truncate(h.treeHandle, size)
	})
}

// TryLock attempts a non-blocking lock acquisition on h's path in the given
// mode (spec.md §4.3).
func (fs *FileSystem) TryLock(h *Handle, mode locktable.Mode) error {
	if h.mounted {
		return fs.mountLocks.TryLock(h.path, h.mountID, mode)
	}
	return fs.tree.Locks().TryLock(h.path, h.treeHandle.ID, mode)
}

// Lock blocks until path is acquired in mode or ctx is canceled.
func (fs *FileSystem) Lock(ctx context.Context, h *Handle, mode locktable.Mode) error {
	if h.mounted {
		return fs.mountLocks.Lock(ctx, h.path, h.mountID, mode)
	}
	return fs.tree.Locks().Lock(ctx, h.path, h.treeHandle.ID, mode)
}

// Unlock releases h's lock on its path, if any.
func (fs *FileSystem) Unlock(h *Handle) {
	if h.mounted {
		fs.mountLocks.Unlock(h.path, h.mountID)
		return
	}
	fs.tree.Locks().Unlock(h.path, h.treeHandle.ID)
}

// Path reports the path h was opened against.
func (h *Handle) Path() string { return h.path }

// modeCanRead and modeCanWrite mirror tree.Mode's own unexported
// canRead/canWrite predicates, needed here because a mounted Handle has no
// tree.FileHandle to delegate the check to.
func modeCanRead(m tree.Mode) bool  { return m == tree.ReadOnly || m == tree.ReadWrite }
func modeCanWrite(m tree.Mode) bool { return m == tree.WriteOnly || m == tree.ReadWrite }
