// Package trash implements PicoFS's TrashManager (spec.md §4.10): soft
// delete with restore, holding in-memory subtrees directly and delegating
// mounted paths to the owning DiskOps' trash hooks.
package trash

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/picofs/picofs/internal/mount"
	"github.com/picofs/picofs/internal/node"
	"github.com/picofs/picofs/internal/tree"
	"github.com/picofs/picofs/pkg/errors"
)

// Hooks lets Manager gate and observe quota changes without owning a
// QuotaMeter reference directly, mirroring tree.Hooks' decoupling.
type Hooks struct {
	// ReleaseQuota is called when an in-memory trash item is purged,
	// freeing the bytes it had been holding (spec.md §4.8 I5: purge
	// decrements used). moveToTrash itself never reserves: the bytes
	// were already counted as in-memory file bytes and simply move
	// buckets within the same "used" total.
	ReleaseQuota func(freed int64)
}

func (h *Hooks) releaseQuota(freed int64) {
	if h == nil || h.ReleaseQuota == nil || freed <= 0 {
		return
	}
	h.ReleaseQuota(freed)
}

// item is an in-memory TrashItem (spec.md §3): the detached subtree held
// intact, plus enough metadata to restore or purge it later.
type item struct {
	trashID      string
	originalPath string
	isDir        bool
	size         int64
	deletedAt    time.Time
	root         *node.Node
}

// mounted is a trash entry that lives on a mounted DiskOps backend; the
// Manager tracks it only well enough to route restore/purge back to the
// owning mount.
type mounted struct {
	diskTrashID  string
	virtualPath  string // mount this entry belongs to
	originalPath string
	size         int64
	deletedAt    time.Time
}

// Info is the public, read-only view of one trash entry (spec.md §4.10
// list()).
type Info struct {
	TrashID      string
	OriginalPath string
	IsDir        bool
	Size         int64
	DeletedAt    time.Time
	IsMounted    bool
}

// Manager is the TrashManager: it holds every in-memory trash item and
// routes mounted paths to their backend's trash hooks.
type Manager struct {
	mu      sync.Mutex
	tree    *tree.TreeStore
	router  *mount.Router
	hooks   *Hooks
	items   map[string]*item
	mounted map[string]*mounted // keyed by "virtualPath\x00diskTrashID"
}

// New creates a Manager backed by tree for in-memory paths and router for
// dispatching to mounted paths.
func New(t *tree.TreeStore, router *mount.Router, hooks *Hooks) *Manager {
	return &Manager{
		tree:    t,
		router:  router,
		hooks:   hooks,
		items:   make(map[string]*item),
		mounted: make(map[string]*mounted),
	}
}

func mountedKey(virtualPath, diskTrashID string) string {
	return virtualPath + "\x00" + diskTrashID
}

// MoveToTrash soft-deletes path (spec.md §4.10): NotFound/Locked propagate
// from the underlying detach, and "/" is rejected by the tree layer.
func (m *Manager) MoveToTrash(path string) (string, error) {
	return m.moveToTrashWithID(path, uuid.NewString())
}

// MoveToTrashReplay re-applies a previously logged MoveToTrash using its
// original trashID, so WAL replay (internal/persistence) reproduces the
// exact trash IDs a crashed session had already handed out rather than
// minting fresh ones.
func (m *Manager) MoveToTrashReplay(path, trashID string) (string, error) {
	return m.moveToTrashWithID(path, trashID)
}

func (m *Manager) moveToTrashWithID(path, id string) (string, error) {
	if mt, rel, ok := m.router.Resolve(path); ok {
		if mt.ReadOnly {
			return "", errors.PermissionDenied(path, "mount is read-only")
		}
		if mt.Pending() {
			return "", errors.NotMounted(path)
		}
		diskID, err := mt.Ops.MoveToTrash(rel)
		if err != nil {
			return "", err
		}
		meta, _ := mt.Ops.Stat(rel)
		m.mu.Lock()
		key := mountedKey(mt.VirtualPath, diskID)
		m.mounted[key] = &mounted{
			diskTrashID:  diskID,
			virtualPath:  mt.VirtualPath,
			originalPath: path,
			size:         meta.Size,
			deletedAt:    time.Now(),
		}
		m.mu.Unlock()
		return diskID, nil
	}

	n, err := m.tree.DetachForTrash(path)
	if err != nil {
		return "", err
	}

	it := &item{
		trashID:      id,
		originalPath: path,
		isDir:        n.Type == node.Directory,
		size:         node.SubtreeFileBytes(n),
		deletedAt:    time.Now(),
		root:         n,
	}
	m.mu.Lock()
	m.items[id] = it
	m.mu.Unlock()
	return id, nil
}

// Restore reverses a prior MoveToTrash, failing AlreadyExists if
// originalPath is occupied again and auto-recreating missing parent
// directories (spec.md §4.10).
func (m *Manager) Restore(trashID string) error {
	m.mu.Lock()
	it, ok := m.items[trashID]
	m.mu.Unlock()
	if ok {
		if err := m.tree.AttachFromTrash(it.originalPath, it.root); err != nil {
			return err
		}
		m.mu.Lock()
		delete(m.items, trashID)
		m.mu.Unlock()
		return nil
	}

	mt, found := m.findMounted(trashID)
	if !found {
		return errors.NotFound(trashID)
	}
	owner, ok := m.router.Get(mt.virtualPath)
	if !ok || owner.Pending() {
		return errors.NotMounted(mt.originalPath)
	}
	_, rel, ok := m.router.Resolve(mt.originalPath)
	if !ok {
		rel = strings.TrimPrefix(mt.originalPath, mt.virtualPath)
		if rel == "" {
			rel = "/"
		}
	}
	if exists, err := owner.Ops.Exists(rel); err == nil && exists {
		return errors.AlreadyExists(mt.originalPath)
	}
	if err := owner.Ops.RestoreFromTrash(mt.diskTrashID, rel); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.mounted, mountedKey(mt.virtualPath, mt.diskTrashID))
	m.mu.Unlock()
	return nil
}

func (m *Manager) findMounted(trashID string) (*mounted, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mt := range m.mounted {
		if mt.diskTrashID == trashID {
			return mt, true
		}
	}
	return nil, false
}

// List returns every trash entry, newest-first by deletion time (spec.md
// §4.10), merging in-memory items with the mounted entries this Manager
// moved to a backend's trash. A backend's own ListTrash is not consulted.
func (m *Manager) List() []Info {
	m.mu.Lock()
	out := make([]Info, 0, len(m.items)+len(m.mounted))
	for _, it := range m.items {
		out = append(out, Info{
			TrashID:      it.trashID,
			OriginalPath: it.originalPath,
			IsDir:        it.isDir,
			Size:         it.size,
			DeletedAt:    it.deletedAt,
			IsMounted:    false,
		})
	}
	for _, mt := range m.mounted {
		out = append(out, Info{
			TrashID:      mt.diskTrashID,
			OriginalPath: mt.originalPath,
			Size:         mt.size,
			DeletedAt:    mt.deletedAt,
			IsMounted:    true,
		})
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DeletedAt.After(out[j].DeletedAt) })
	return out
}

// Purge permanently frees a single trash entry.
func (m *Manager) Purge(trashID string) error {
	m.mu.Lock()
	it, ok := m.items[trashID]
	if ok {
		delete(m.items, trashID)
	}
	m.mu.Unlock()
	if ok {
		m.hooks.releaseQuota(it.size)
		return nil
	}

	mt, found := m.findMounted(trashID)
	if !found {
		return errors.NotFound(trashID)
	}
	owner, ok := m.router.Get(mt.virtualPath)
	if !ok || owner.Pending() {
		return errors.NotMounted(mt.originalPath)
	}
	if err := owner.Ops.PurgeTrash(mt.diskTrashID); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.mounted, mountedKey(mt.virtualPath, mt.diskTrashID))
	m.mu.Unlock()
	return nil
}

// PurgeAll empties every in-memory trash item and, for each currently
// attached mount that holds an entry this Manager moved there, that
// mount's whole trash. Mounts with no tracked entry are left untouched.
func (m *Manager) PurgeAll() error {
	m.mu.Lock()
	var freed int64
	for _, it := range m.items {
		freed += it.size
	}
	m.items = make(map[string]*item)

	byMount := make(map[string]bool)
	for _, mt := range m.mounted {
		byMount[mt.virtualPath] = true
	}
	m.mounted = make(map[string]*mounted)
	m.mu.Unlock()

	m.hooks.releaseQuota(freed)

	for vp := range byMount {
		if mt, ok := m.router.Get(vp); ok && !mt.Pending() {
			if err := mt.Ops.PurgeAllTrash(); err != nil && !mount.IsNotSupported(err) {
				return err
			}
		}
	}
	return nil
}

// Exported is the plain-data projection of one trash entry, used by
// internal/persistence to snapshot and restore Manager state without this
// package depending on internal/codec (which already depends on
// internal/node and would otherwise form an import cycle).
type Exported struct {
	TrashID          string
	OriginalPath     string
	IsDir            bool
	Size             int64
	DeletedAt        time.Time
	Root             *node.Node // nil when IsMounted
	IsMounted        bool
	MountVirtualPath string
}

// Export returns every trash entry Manager currently holds, in-memory and
// mounted alike, for persistence.Persistence to encode into vfs_trash.
func (m *Manager) Export() []Exported {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Exported, 0, len(m.items)+len(m.mounted))
	for _, it := range m.items {
		out = append(out, Exported{
			TrashID:      it.trashID,
			OriginalPath: it.originalPath,
			IsDir:        it.isDir,
			Size:         it.size,
			DeletedAt:    it.deletedAt,
			Root:         it.root,
		})
	}
	for _, mt := range m.mounted {
		out = append(out, Exported{
			TrashID:          mt.diskTrashID,
			OriginalPath:     mt.originalPath,
			Size:             mt.size,
			DeletedAt:        mt.deletedAt,
			IsMounted:        true,
			MountVirtualPath: mt.virtualPath,
		})
	}
	return out
}

// Import replaces Manager's state wholesale with entries previously
// produced by Export, used by internal/persistence during snapshot
// recovery. It bypasses the quota hooks: the FileSystem facade counts the
// in-memory entries' bytes when it seeds the quota meter after recovery.
func (m *Manager) Import(entries []Exported) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = make(map[string]*item, len(entries))
	m.mounted = make(map[string]*mounted, len(entries))
	for _, e := range entries {
		if e.IsMounted {
			key := mountedKey(e.MountVirtualPath, e.TrashID)
			m.mounted[key] = &mounted{
				diskTrashID:  e.TrashID,
				virtualPath:  e.MountVirtualPath,
				originalPath: e.OriginalPath,
				size:         e.Size,
				deletedAt:    e.DeletedAt,
			}
			continue
		}
		m.items[e.TrashID] = &item{
			trashID:      e.TrashID,
			originalPath: e.OriginalPath,
			isDir:        e.IsDir,
			size:         e.Size,
			deletedAt:    e.DeletedAt,
			root:         e.Root,
		}
	}
}
