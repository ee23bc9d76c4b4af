// Package tree implements the TreeStore: the in-memory namespace that backs
// every non-mounted path in a PicoFS instance (spec.md §4.2). It owns every
// Node, enforces permissions and the 40-hop symlink cap, and serialises
// mutations through a single write mutex per the concurrency model of
// spec.md §5.
package tree

import (
	"sync"
	"time"

	"github.com/picofs/picofs/internal/locktable"
	"github.com/picofs/picofs/internal/node"
	"github.com/picofs/picofs/internal/pathutil"
	"github.com/picofs/picofs/pkg/errors"
)

// MaxSymlinkHops bounds symlink-chain resolution (spec.md §4.9).
const MaxSymlinkHops = 40

// MutationKind classifies a committed change for the benefit of Hooks.
type MutationKind int

const (
	Created MutationKind = iota
	Modified
	Deleted
)

func (k MutationKind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Hooks lets callers observe and gate mutations without TreeStore knowing
// about caches, quotas, versions, or the event bus directly. All methods are
// invoked while the write mutex is held, matching the commit ordering of
// spec.md §5 (reserve quota and capture a version before the mutation is
// applied; invalidate and publish after). A nil *Hooks field behaves as a
// no-op, so the FileSystem facade is the only caller required to supply one.
type Hooks struct {
	// ReserveQuota is consulted before a write grows a file's content by
	// delta bytes (may be negative or zero, in which case it must not
	// reject). Returning an error aborts the operation with no state
	// change.
	ReserveQuota func(delta int64) error
	// ReleaseQuota is called after content shrinks or is removed.
	ReleaseQuota func(freed int64)
	// CaptureVersion is called before a write replaces non-empty prior
	// file content (spec.md §4.8: "first write to an empty file does not
	// create a version").
	CaptureVersion func(path string, priorContent []byte)
	// OnMutate fires after a mutation has been committed in-memory.
	OnMutate func(path string, kind MutationKind)
}

func (h *Hooks) reserveQuota(delta int64) error {
	if h == nil || h.ReserveQuota == nil || delta <= 0 {
		return nil
	}
	return h.ReserveQuota(delta)
}

func (h *Hooks) releaseQuota(freed int64) {
	if h == nil || h.ReleaseQuota == nil || freed <= 0 {
		return
	}
	h.ReleaseQuota(freed)
}

func (h *Hooks) captureVersion(path string, priorContent []byte) {
	if h == nil || h.CaptureVersion == nil || len(priorContent) == 0 {
		return
	}
	h.CaptureVersion(path, priorContent)
}

func (h *Hooks) onMutate(path string, kind MutationKind) {
	if h == nil || h.OnMutate == nil {
		return
	}
	h.OnMutate(path, kind)
}

// FsMeta is the stat result for a path: the cacheable projection of a Node.
type FsMeta struct {
	Name         string
	Path         string
	Type         node.Type
	Size         int64
	Permissions  node.Permissions
	CreatedAt    time.Time
	ModifiedAt   time.Time
	IsMountPoint bool
}

// FsEntry is one row of a directory listing.
type FsEntry struct {
	Name string
	Type node.Type
}

// Mode is the access mode a handle was opened with.
type Mode int

const (
	ReadOnly Mode = iota
	WriteOnly
	ReadWrite
)

func (m Mode) canRead() bool  { return m == ReadOnly || m == ReadWrite }
func (m Mode) canWrite() bool { return m == WriteOnly || m == ReadWrite }

// HandleID identifies an open FileHandle; it doubles as the locktable
// HandleID so a handle's locks are tracked under the same identity.
type HandleID = locktable.HandleID

// FileHandle is the state behind an open(path, mode) call (spec.md §4.2:
// "a handle records {path, mode, lockState, closed}; closed handles fail
// all operations").
type FileHandle struct {
	ID     HandleID
	Path   string
	Mode   Mode
	closed bool
}

// TreeStore is the in-memory namespace. The zero value is not usable; use
// New.
type TreeStore struct {
	mu    sync.RWMutex
	root  *node.Node
	locks *locktable.Table
	hooks *Hooks

	handlesMu  sync.Mutex
	handles    map[HandleID]*FileHandle
	nextHandle HandleID
}

// New creates an empty TreeStore with a root directory granted full
// permissions. hooks may be nil.
func New(hooks *Hooks) *TreeStore {
	now := time.Now()
	return &TreeStore{
		root:    node.NewDirectory("", node.FullPermissions(), now),
		locks:   locktable.New(),
		hooks:   hooks,
		handles: make(map[HandleID]*FileHandle),
	}
}

// NewFromRoot creates a TreeStore whose namespace starts at root instead of
// a fresh empty directory, used by internal/persistence to reconstruct a
// TreeStore from a decoded snapshot. hooks may be nil; the caller typically
// attaches real hooks via SetHooks only once recovery has finished applying
// the WAL, so replay never double-counts quota or emits spurious versions.
func NewFromRoot(root *node.Node, hooks *Hooks) *TreeStore {
	return &TreeStore{
		root:    root,
		locks:   locktable.New(),
		hooks:   hooks,
		handles: make(map[HandleID]*FileHandle),
	}
}

// SetHooks installs hooks for all subsequent mutations, replacing whatever
// was supplied at construction. Used to defer wiring quota/version/cache/
// event hooks until after a TreeStore has been populated by WAL replay.
func (t *TreeStore) SetHooks(hooks *Hooks) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hooks = hooks
}

// WithSnapshot runs fn with the tree's root node while holding the read
// lock, for callers (internal/persistence) that need a consistent view of
// the whole tree to serialize. fn must not retain root or mutate it after
// returning; it should copy out whatever it needs.
func (t *TreeStore) WithSnapshot(fn func(root *node.Node)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fn(t.root)
}

// Locks exposes the underlying lock table so the FileSystem facade can wire
// lock/tryLock/unlock operations without TreeStore re-exposing every
// locktable method itself.
func (t *TreeStore) Locks() *locktable.Table { return t.locks }

// LoadSnapshot replaces the entire namespace with root, discarding every
// live lock and open handle, for internal/persistence to install a
// recovered tree into an already-constructed TreeStore without copying the
// struct itself (which would copy its mutexes).
func (t *TreeStore) LoadSnapshot(root *node.Node) {
	t.mu.Lock()
	t.root = root
	t.locks = locktable.New()
	t.mu.Unlock()

	t.handlesMu.Lock()
	t.handles = make(map[HandleID]*FileHandle)
	t.nextHandle = 0
	t.handlesMu.Unlock()
}

// resolved is the outcome of walking a path to its terminal node, carrying
// enough context (parent + name) to support create/delete/rename without a
// second walk.
type resolved struct {
	node   *node.Node
	parent *node.Node
	name   string
}

// walk resolves path from root, following symlinks encountered along
// intermediate segments (but not the final segment) up to MaxSymlinkHops.
// The final segment's own symlink is resolved only when followFinal is
// true; callers that need the link itself (readlink, delete) pass false.
func (t *TreeStore) walk(path string, followFinal bool) (resolved, error) {
	if err := pathutil.Validate(path); err != nil {
		return resolved{}, err
	}
	norm := pathutil.Normalize(path)
	if pathutil.IsRoot(norm) {
		return resolved{node: t.root}, nil
	}

	segments := pathutil.Split(norm)
	cur := t.root
	dirPath := "/"
	var parent *node.Node
	var name string
	hops := 0

	for i, seg := range segments {
		isLast := i == len(segments)-1
		if cur.Type != node.Directory {
			return resolved{}, errors.NotDirectory(path)
		}
		if !cur.Permissions.Execute {
			return resolved{}, errors.PermissionDenied(path, "missing execute permission on ancestor")
		}
		child, ok := cur.Children[seg]
		if !ok {
			return resolved{}, errors.NotFound(path)
		}
		if child.Type == node.Symlink && (!isLast || followFinal) {
			target, err := t.followSymlink(child, dirPath, &hops)
			if err != nil {
				return resolved{}, err
			}
			cur = target.node
			if isLast {
				parent = target.parent
				name = target.name
			}
			dirPath = pathutil.Join(dirPath, seg)
			continue
		}
		parent = cur
		name = seg
		cur = child
		dirPath = pathutil.Join(dirPath, seg)
	}
	return resolved{node: cur, parent: parent, name: name}, nil
}

// followSymlink resolves a SYMLINK node to its target node, counting hops
// against the shared budget so a chain spanning multiple followSymlink
// calls still enforces the cap. dirPath is the virtual directory
// containing link, used to resolve a relative target (spec.md §3: "target
// string (absolute or relative to the link's parent)").
func (t *TreeStore) followSymlink(link *node.Node, dirPath string, hops *int) (resolved, error) {
	target := link.Target
	base := dirPath
	for {
		*hops++
		if *hops > MaxSymlinkHops {
			return resolved{}, errors.SymlinkLoop(target)
		}
		abs := target
		if len(target) == 0 || target[0] != '/' {
			abs = pathutil.Join(base, target)
		}
		r, err := t.walk(abs, false)
		if err != nil {
			return resolved{}, err
		}
		if r.node.Type != node.Symlink {
			return r, nil
		}
		target = r.node.Target
		base = pathutil.Dir(abs)
	}
}

func requireRead(n *node.Node, path string) error {
	if !n.Permissions.Read {
		return errors.PermissionDenied(path, "missing read permission")
	}
	return nil
}

func requireWrite(parent, n *node.Node, path string) error {
	if n != nil && !n.Permissions.Write {
		return errors.PermissionDenied(path, "missing write permission")
	}
	if parent != nil && (!parent.Permissions.Write || !parent.Permissions.Execute) {
		return errors.PermissionDenied(path, "missing write+execute permission on parent")
	}
	return nil
}

// Stat returns the metadata for path, following symlinks.
func (t *TreeStore) Stat(path string) (FsMeta, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, err := t.walk(path, true)
	if err != nil {
		return FsMeta{}, err
	}
	return toMeta(path, r.node), nil
}

// Lstat returns the metadata for path without following a final symlink.
func (t *TreeStore) Lstat(path string) (FsMeta, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, err := t.walk(path, false)
	if err != nil {
		return FsMeta{}, err
	}
	return toMeta(path, r.node), nil
}

func toMeta(path string, n *node.Node) FsMeta {
	return FsMeta{
		Name:         n.Name,
		Path:         path,
		Type:         n.Type,
		Size:         n.Size,
		Permissions:  n.Permissions,
		CreatedAt:    n.CreatedAt,
		ModifiedAt:   n.ModifiedAt,
		IsMountPoint: n.IsMountPoint,
	}
}

// ReadDir lists path's children, sorted by name (spec.md §4.2: "the core
// must return a deterministic set").
func (t *TreeStore) ReadDir(path string) ([]FsEntry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, err := t.walk(path, true)
	if err != nil {
		return nil, err
	}
	if r.node.Type != node.Directory {
		return nil, errors.NotDirectory(path)
	}
	if err := requireRead(r.node, path); err != nil {
		return nil, err
	}
	names := r.node.SortedChildNames()
	out := make([]FsEntry, 0, len(names))
	for _, name := range names {
		child := r.node.Children[name]
		out = append(out, FsEntry{Name: name, Type: child.Type})
	}
	return out, nil
}

// CreateFile creates an empty FILE node at path.
func (t *TreeStore) CreateFile(path string, perm node.Permissions) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	parentPath := pathutil.Dir(path)
	name := pathutil.Base(path)
	parent, err := t.resolveDirForCreate(parentPath, path)
	if err != nil {
		return err
	}
	if _, exists := parent.Children[name]; exists {
		return errors.AlreadyExists(path)
	}
	parent.AddChild(node.NewFile(name, perm, time.Now()))
	t.hooks.onMutate(path, Created)
	return nil
}

// CreateDir creates an empty DIRECTORY node at path; the parent must exist.
func (t *TreeStore) CreateDir(path string, perm node.Permissions) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.createDirLocked(path, perm)
}

func (t *TreeStore) createDirLocked(path string, perm node.Permissions) error {
	parentPath := pathutil.Dir(path)
	name := pathutil.Base(path)
	parent, err := t.resolveDirForCreate(parentPath, path)
	if err != nil {
		return err
	}
	if _, exists := parent.Children[name]; exists {
		return errors.AlreadyExists(path)
	}
	parent.AddChild(node.NewDirectory(name, perm, time.Now()))
	t.hooks.onMutate(path, Created)
	return nil
}

// CreateDirRecursive creates path and any missing ancestor directories,
// succeeding silently if path already exists as a directory.
func (t *TreeStore) CreateDirRecursive(path string, perm node.Permissions) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.createDirRecursiveLocked(path, perm)
}

func (t *TreeStore) createDirRecursiveLocked(path string, perm node.Permissions) error {
	norm := pathutil.Normalize(path)
	if pathutil.IsRoot(norm) {
		return nil
	}
	segments := pathutil.Split(norm)
	cur := t.root
	built := ""
	for _, seg := range segments {
		built = pathutil.Join(built, seg)
		child, ok := cur.Children[seg]
		if !ok {
			if err := requireWrite(cur, nil, built); err != nil {
				return err
			}
			child = node.NewDirectory(seg, perm, time.Now())
			cur.AddChild(child)
			t.hooks.onMutate(built, Created)
		} else if child.Type != node.Directory {
			return errors.NotDirectory(built)
		}
		cur = child
	}
	return nil
}

// resolveDirForCreate walks to parentPath, which must exist and be a
// writable directory; targetPath is used only for error messages.
func (t *TreeStore) resolveDirForCreate(parentPath, targetPath string) (*node.Node, error) {
	r, err := t.walk(parentPath, true)
	if err != nil {
		return nil, err
	}
	if r.node.Type != node.Directory {
		return nil, errors.NotDirectory(targetPath)
	}
	if err := requireWrite(r.node, nil, targetPath); err != nil {
		return nil, err
	}
	return r.node, nil
}

// Delete removes path. It fails if the node is a non-empty directory or has
// any live lock holder (spec.md §4.2, §4.3).
func (t *TreeStore) Delete(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deleteLocked(path, false)
}

// DeleteRecursive removes path and its entire subtree. It fails on root and
// if any descendant is locked.
func (t *TreeStore) DeleteRecursive(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	norm := pathutil.Normalize(path)
	if pathutil.IsRoot(norm) {
		return errors.InvalidPath(path)
	}
	if err := t.checkSubtreeUnlocked(norm); err != nil {
		return err
	}
	return t.deleteLocked(path, true)
}

func (t *TreeStore) checkSubtreeUnlocked(path string) error {
	r, err := t.walk(path, false)
	if err != nil {
		return err
	}
	return t.checkNodeSubtreeUnlocked(path, r.node)
}

func (t *TreeStore) checkNodeSubtreeUnlocked(path string, n *node.Node) error {
	if t.locks.HasLiveHolder(path) {
		return errors.Locked(path)
	}
	if n.Type != node.Directory {
		return nil
	}
	for _, name := range n.SortedChildNames() {
		childPath := pathutil.Join(path, name)
		if err := t.checkNodeSubtreeUnlocked(childPath, n.Children[name]); err != nil {
			return err
		}
	}
	return nil
}

func (t *TreeStore) deleteLocked(path string, recursive bool) error {
	norm := pathutil.Normalize(path)
	if pathutil.IsRoot(norm) {
		return errors.InvalidPath(path)
	}
	r, err := t.walk(path, false)
	if err != nil {
		return err
	}
	if r.node.IsMountPoint {
		return errors.PermissionDenied(path, "mount point is attached")
	}
	if !recursive {
		if t.locks.HasLiveHolder(path) {
			return errors.Locked(path)
		}
		if r.node.Type == node.Directory && len(r.node.Children) > 0 {
			return errors.InvalidPath(path).WithDetail("reason", "directory not empty")
		}
	}
	if err := requireWrite(r.parent, nil, path); err != nil {
		return err
	}

	var freed int64
	if r.node.Type == node.File {
		freed = r.node.Size
	} else if recursive {
		freed = sumFileSizes(r.node)
	}

	r.parent.RemoveChild(r.name)
	t.locks.Forget(path)
	t.hooks.releaseQuota(freed)
	t.hooks.onMutate(path, Deleted)
	return nil
}

// DetachForTrash removes path from the tree and returns its node intact
// (children included) for internal/trash to hold, rather than discarding
// it as Delete does. Quota is left untouched: the bytes move from "in-tree
// file" accounting to "in-memory trash" accounting, per spec.md §4.8's I5,
// not freed until a purge.
func (t *TreeStore) DetachForTrash(path string) (*node.Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	norm := pathutil.Normalize(path)
	if pathutil.IsRoot(norm) {
		return nil, errors.InvalidPath(path)
	}
	r, err := t.walk(path, false)
	if err != nil {
		return nil, err
	}
	if r.node.IsMountPoint {
		return nil, errors.PermissionDenied(path, "mount point is attached")
	}
	if t.locks.HasLiveHolder(norm) {
		return nil, errors.Locked(path)
	}
	if err := requireWrite(r.parent, nil, path); err != nil {
		return nil, err
	}

	r.parent.RemoveChild(r.name)
	t.locks.Forget(norm)
	t.hooks.onMutate(path, Deleted)
	return r.node, nil
}

// AttachFromTrash reinserts n at path, auto-creating any missing parent
// directories (spec.md §4.10: "restore ... auto-recreates missing parent
// directories"). It fails AlreadyExists if path is already occupied.
func (t *TreeStore) AttachFromTrash(path string, n *node.Node) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	norm := pathutil.Normalize(path)
	if pathutil.IsRoot(norm) {
		return errors.InvalidPath(path)
	}
	parentPath := pathutil.Dir(norm)
	if err := t.createDirRecursiveLocked(parentPath, node.FullPermissions()); err != nil {
		return err
	}
	parent, err := t.resolveDirForCreate(parentPath, path)
	if err != nil {
		return err
	}
	name := pathutil.Base(norm)
	if _, exists := parent.Children[name]; exists {
		return errors.AlreadyExists(path)
	}
	n.Name = name
	parent.AddChild(n)
	t.hooks.onMutate(path, Created)
	return nil
}

func sumFileSizes(n *node.Node) int64 {
	if n.Type == node.File {
		return n.Size
	}
	var total int64
	for _, c := range n.Children {
		total += sumFileSizes(c)
	}
	return total
}

// Rename moves a node from oldPath to newPath within the tree, atomically.
func (t *TreeStore) Rename(oldPath, newPath string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	src, err := t.walk(oldPath, false)
	if err != nil {
		return err
	}
	if src.node.IsMountPoint {
		return errors.PermissionDenied(oldPath, "mount point is attached")
	}
	if err := requireWrite(src.parent, nil, oldPath); err != nil {
		return err
	}

	dstParentPath := pathutil.Dir(newPath)
	dstName := pathutil.Base(newPath)
	dstParent, err := t.resolveDirForCreate(dstParentPath, newPath)
	if err != nil {
		return err
	}
	if _, exists := dstParent.Children[dstName]; exists {
		return errors.AlreadyExists(newPath)
	}

	src.parent.RemoveChild(src.name)
	src.node.Name = dstName
	dstParent.AddChild(src.node)
	t.locks.Rename(pathutil.Normalize(oldPath), pathutil.Normalize(newPath))
	t.hooks.onMutate(oldPath, Deleted)
	t.hooks.onMutate(newPath, Created)
	return nil
}

// Copy duplicates src to dst, recursing into directories. Locks and mount
// bindings are never copied.
func (t *TreeStore) Copy(src, dst string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.walk(src, false)
	if err != nil {
		return err
	}
	if err := requireRead(s.node, src); err != nil {
		return err
	}

	dstParentPath := pathutil.Dir(dst)
	dstName := pathutil.Base(dst)
	dstParent, err := t.resolveDirForCreate(dstParentPath, dst)
	if err != nil {
		return err
	}
	if _, exists := dstParent.Children[dstName]; exists {
		return errors.AlreadyExists(dst)
	}

	clone := cloneNode(s.node, dstName)
	if err := t.hooks.reserveQuota(sumFileSizes(clone)); err != nil {
		return err
	}
	dstParent.AddChild(clone)
	t.hooks.onMutate(dst, Created)
	return nil
}

func cloneNode(n *node.Node, name string) *node.Node {
	now := time.Now()
	switch n.Type {
	case node.File:
		f := node.NewFile(name, n.Permissions, now)
		f.SetContent(n.Content())
		for k, v := range n.Xattrs {
			f.SetXattr(k, v)
		}
		return f
	case node.Symlink:
		return node.NewSymlink(name, n.Target, now)
	default:
		d := node.NewDirectory(name, n.Permissions, now)
		for k, v := range n.DirXattrs {
			d.SetXattr(k, v)
		}
		for _, childName := range n.SortedChildNames() {
			d.AddChild(cloneNode(n.Children[childName], childName))
		}
		return d
	}
}

// CreateSymlink creates a SYMLINK node at path pointing at target. No
// existence check is performed on target (spec.md §4.9: dangling is legal).
func (t *TreeStore) CreateSymlink(path, target string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	parentPath := pathutil.Dir(path)
	name := pathutil.Base(path)
	parent, err := t.resolveDirForCreate(parentPath, path)
	if err != nil {
		return err
	}
	if _, exists := parent.Children[name]; exists {
		return errors.AlreadyExists(path)
	}
	parent.AddChild(node.NewSymlink(name, target, time.Now()))
	t.hooks.onMutate(path, Created)
	return nil
}

// ReadLink returns a symlink's literal target without following it.
func (t *TreeStore) ReadLink(path string) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, err := t.walk(path, false)
	if err != nil {
		return "", err
	}
	if r.node.Type != node.Symlink {
		return "", errors.NotFile(path)
	}
	return r.node.Target, nil
}

// Open resolves path (following symlinks) and returns a handle recording
// the requested mode. The node must already exist; callers needing
// create-on-open semantics call CreateFile first.
func (t *TreeStore) Open(path string, mode Mode) (*FileHandle, error) {
	t.mu.RLock()
	r, err := t.walk(path, true)
	t.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if r.node.Type != node.File {
		return nil, errors.NotFile(path)
	}
	if mode.canRead() {
		if err := requireRead(r.node, path); err != nil {
			return nil, err
		}
	}
	if mode.canWrite() {
		if !r.node.Permissions.Write {
			return nil, errors.PermissionDenied(path, "missing write permission")
		}
	}

	t.handlesMu.Lock()
	defer t.handlesMu.Unlock()
	t.nextHandle++
	h := &FileHandle{ID: t.nextHandle, Path: pathutil.Normalize(path), Mode: mode}
	t.handles[h.ID] = h
	return h, nil
}

// Close marks handle closed and releases every lock it holds. Idempotent.
func (t *TreeStore) Close(h *FileHandle) {
	t.handlesMu.Lock()
	if h.closed {
		t.handlesMu.Unlock()
		return
	}
	h.closed = true
	delete(t.handles, h.ID)
	t.handlesMu.Unlock()

	t.locks.Unlock(h.Path, h.ID)
}

// ReadAt reads up to length bytes from handle's file at offset.
func (t *TreeStore) ReadAt(h *FileHandle, offset int64, length int) ([]byte, error) {
	if h.closed {
		return nil, errors.InvalidPath(h.Path)
	}
	if !h.Mode.canRead() {
		return nil, errors.PermissionDenied(h.Path, "handle not opened for read")
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, err := t.walk(h.Path, true)
	if err != nil {
		return nil, err
	}
	if r.node.Type != node.File {
		return nil, errors.NotFile(h.Path)
	}
	return r.node.ReadAt(offset, length), nil
}

// WriteAt writes data to handle's file at offset, capturing a version of
// any non-empty prior content and enforcing quota on growth.
func (t *TreeStore) WriteAt(h *FileHandle, offset int64, data []byte) error {
	if h.closed {
		return errors.InvalidPath(h.Path)
	}
	if !h.Mode.canWrite() {
		return errors.PermissionDenied(h.Path, "handle not opened for write")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	r, err := t.walk(h.Path, true)
	if err != nil {
		return err
	}
	if r.node.Type != node.File {
		return errors.NotFile(h.Path)
	}
	if err := requireWrite(r.parent, r.node, h.Path); err != nil {
		return err
	}

	priorSize := r.node.Size
	newEnd := offset + int64(len(data))
	delta := newEnd - priorSize
	if err := t.hooks.reserveQuota(delta); err != nil {
		return err
	}

	if priorSize > 0 {
		t.hooks.captureVersion(h.Path, r.node.Content())
	}
	r.node.WriteAt(offset, data)
	t.hooks.onMutate(h.Path, Modified)
	return nil
}

// Truncate resizes handle's file to size bytes.
func (t *TreeStore) Truncate(h *FileHandle, size int64) error {
	if h.closed {
		return errors.InvalidPath(h.Path)
	}
	if !h.Mode.canWrite() {
		return errors.PermissionDenied(h.Path, "handle not opened for write")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	r, err := t.walk(h.Path, true)
	if err != nil {
		return err
	}
	if r.node.Type != node.File {
		return errors.NotFile(h.Path)
	}
	if err := requireWrite(r.parent, r.node, h.Path); err != nil {
		return err
	}

	priorSize := r.node.Size
	delta := size - priorSize
	if err := t.hooks.reserveQuota(delta); err != nil {
		return err
	}
	if delta < 0 {
		t.hooks.releaseQuota(-delta)
	}
	if priorSize > 0 {
		t.hooks.captureVersion(h.Path, r.node.Content())
	}
	r.node.Truncate(size)
	t.hooks.onMutate(h.Path, Modified)
	return nil
}

// MarkMountPoint flags the directory at path as hosting a mount, or clears
// the flag when mounted is false. The path must already be an empty
// directory when mounting (spec.md §4.6 mount preconditions are enforced by
// the MountRouter before calling this).
func (t *TreeStore) MarkMountPoint(path string, mounted bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, err := t.walk(path, false)
	if err != nil {
		return err
	}
	if r.node.Type != node.Directory {
		return errors.NotDirectory(path)
	}
	r.node.IsMountPoint = mounted
	return nil
}

// ReadAllContent returns the complete content of the file at path in one
// call, for callers (internal/checksum, internal/search) that need the
// whole blob rather than a handle-based range read.
func (t *TreeStore) ReadAllContent(path string) ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, err := t.walk(path, true)
	if err != nil {
		return nil, err
	}
	if r.node.Type != node.File {
		return nil, errors.NotFile(path)
	}
	if err := requireRead(r.node, path); err != nil {
		return nil, err
	}
	return r.node.Content(), nil
}

// SetXattr stores value under key on the node at path (spec.md §4.9).
func (t *TreeStore) SetXattr(path, key string, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, err := t.walk(path, true)
	if err != nil {
		return err
	}
	if err := requireWrite(r.parent, r.node, path); err != nil {
		return err
	}
	r.node.SetXattr(key, value)
	t.hooks.onMutate(path, Modified)
	return nil
}

// GetXattr returns the value stored under key on the node at path.
func (t *TreeStore) GetXattr(path, key string) ([]byte, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, err := t.walk(path, true)
	if err != nil {
		return nil, false, err
	}
	if err := requireRead(r.node, path); err != nil {
		return nil, false, err
	}
	v, ok := r.node.GetXattr(key)
	return v, ok, nil
}

// RemoveXattr deletes key from the node at path, reporting whether it was
// present.
func (t *TreeStore) RemoveXattr(path, key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, err := t.walk(path, true)
	if err != nil {
		return false, err
	}
	if err := requireWrite(r.parent, r.node, path); err != nil {
		return false, err
	}
	removed := r.node.RemoveXattr(key)
	if removed {
		t.hooks.onMutate(path, Modified)
	}
	return removed, nil
}

// ListXattr returns the xattr keys stored on the node at path. Ordering is
// not a contract across backends (spec.md §9(c)).
func (t *TreeStore) ListXattr(path string) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, err := t.walk(path, true)
	if err != nil {
		return nil, err
	}
	if err := requireRead(r.node, path); err != nil {
		return nil, err
	}
	return r.node.ListXattr(), nil
}

// SetPermissions replaces the permissions of the node at path.
func (t *TreeStore) SetPermissions(path string, perm node.Permissions) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, err := t.walk(path, true)
	if err != nil {
		return err
	}
	r.node.Permissions = perm
	t.hooks.onMutate(path, Modified)
	return nil
}
