// Package version implements PicoFS's VersionStore (spec.md §4.8): a
// per-path, newest-first history of prior file content, populated by
// TreeStore's pre-write hook, restore, and the external-watcher bridge.
package version

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/picofs/picofs/pkg/errors"
)

// ID identifies a single pushed version.
type ID string

// Version is one historical snapshot of a path's content.
type Version struct {
	ID        ID
	Path      string
	Timestamp time.Time
	Blob      []byte
}

// Store owns version history for every path that has ever been
// overwritten. VersionStore, TrashManager, and XattrStore each own copies
// of their blobs rather than aliasing live tree nodes (spec.md §3,
// "Ownership").
type Store struct {
	mu       sync.Mutex
	byPath   map[string][]Version
	byID     map[ID]Version
	lastBlob map[string][]byte // last observed blob, for external-watcher diffing
}

// New creates an empty version store.
func New() *Store {
	return &Store{
		byPath:   make(map[string][]Version),
		byID:     make(map[ID]Version),
		lastBlob: make(map[string][]byte),
	}
}

func newID() ID {
	return ID(uuid.NewString())
}

// Push records blob as the newest version of path, keyed by a fresh ID, and
// returns that ID. A copy of blob is stored.
func (s *Store) Push(path string, blob []byte) ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushLocked(path, blob)
}

func (s *Store) pushLocked(path string, blob []byte) ID {
	cp := make([]byte, len(blob))
	copy(cp, blob)
	v := Version{ID: newID(), Path: path, Timestamp: time.Now(), Blob: cp}
	s.byPath[path] = append([]Version{v}, s.byPath[path]...)
	s.byID[v.ID] = v
	s.lastBlob[path] = cp
	return v.ID
}

// List returns path's versions, newest first.
func (s *Store) List(path string) []Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Version, len(s.byPath[path]))
	copy(out, s.byPath[path])
	return out
}

// Read returns the version identified by id.
func (s *Store) Read(id ID) (Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.byID[id]
	if !ok {
		return Version{}, errors.NotFound(string(id))
	}
	return v, nil
}

// Restore returns the content that should replace the path's current
// content, and pushes the caller-supplied current content as a new version
// first (spec.md §4.8: "restore(id) (push current → overwrite with
// historical)"). The caller is responsible for performing the overwrite
// itself and supplying the content currently live before the restore.
func (s *Store) Restore(id ID, currentContent []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.byID[id]
	if !ok {
		return nil, errors.NotFound(string(id))
	}
	if len(currentContent) > 0 {
		s.pushLocked(v.Path, currentContent)
	}
	return v.Blob, nil
}

// ObserveExternal compares currentBlob against the last blob observed for
// path (by Push or a prior ObserveExternal) and, if they differ, pushes the
// prior content as a new version before recording currentBlob as the new
// baseline. Used by sync and the external-watcher bridge (spec.md §4.8:
// "pushes a version when the current on-disk content differs from the last
// observed version's blob").
func (s *Store) ObserveExternal(path string, currentBlob []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.lastBlob[path]
	if ok && bytesEqual(last, currentBlob) {
		return
	}
	if ok && len(last) > 0 {
		s.pushLocked(path, last)
	}
	cp := make([]byte, len(currentBlob))
	copy(cp, currentBlob)
	s.lastBlob[path] = cp
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Forget drops all version history for path (used when the path is
// permanently purged from trash, not on ordinary delete, since version
// history is kept by path independent of tree lifetime per §4.8's
// restore-after-delete use case... in practice TreeStore delete does not
// call this).
func (s *Store) Forget(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.byPath[path] {
		delete(s.byID, v.ID)
	}
	delete(s.byPath, path)
	delete(s.lastBlob, path)
}

// TotalBytes sums every stored version's blob length, for QuotaMeter's
// "Σ version blob bytes" term (spec.md I5).
func (s *Store) TotalBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, versions := range s.byPath {
		for _, v := range versions {
			total += int64(len(v.Blob))
		}
	}
	return total
}

// Export returns every stored version, grouped by path (sorted for
// deterministic output) and newest-first within a path, for
// internal/persistence to encode into vfs_versions.
func (s *Store) Export() []Version {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths := make([]string, 0, len(s.byPath))
	for p := range s.byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var out []Version
	for _, p := range paths {
		out = append(out, s.byPath[p]...)
	}
	return out
}

// Import replaces Store's state wholesale with versions previously produced
// by Export. lastBlob is reseeded from each path's newest version, which is
// exact as long as the store was Export()ed with no pending ObserveExternal
// diff in flight — true for the snapshot-boundary use persistence makes of
// it.
func (s *Store) Import(versions []Version) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byPath = make(map[string][]Version)
	s.byID = make(map[ID]Version)
	s.lastBlob = make(map[string][]byte)

	for _, v := range versions {
		s.byPath[v.Path] = append(s.byPath[v.Path], v)
		s.byID[v.ID] = v
		if _, seen := s.lastBlob[v.Path]; !seen {
			s.lastBlob[v.Path] = v.Blob
		}
	}
}
