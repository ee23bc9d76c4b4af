// Package mount implements PicoFS's MountRouter (spec.md §4.6): virtual-path
// routing to a host-supplied DiskOps backend, plus the resilience
// decorators (retry, circuit breaker) every mounted backend is wrapped in.
package mount

import (
	"strings"
	"time"

	"github.com/picofs/picofs/pkg/errors"
)

// DiskEntry is one row of a disk-side directory listing.
type DiskEntry struct {
	Name  string
	IsDir bool
}

// DiskMeta is the disk-side stat result for a disk-relative path.
type DiskMeta struct {
	Size       int64
	IsDir      bool
	ModifiedAt time.Time
}

// DiskTrashEntry is one row of a disk backend's trash listing.
type DiskTrashEntry struct {
	TrashID      string
	OriginalPath string
	DeletedAt    time.Time
	Size         int64
}

// DiskArchiveEntry is one row of a disk backend's archive listing.
type DiskArchiveEntry struct {
	Name  string
	Size  int64
	IsDir bool
}

// DiskOps is the host-supplied contract a mount point delegates to
// (spec.md §6). All paths are disk-root-relative; "/" is the disk root.
// The first eight methods are required; every method past Exists is
// optional and may return ErrNotSupported (PermissionDenied with reason
// "not supported") when the backend doesn't implement that concern —
// PicoFS degrades gracefully rather than treating it as fatal.
type DiskOps interface {
	CreateFile(path string) error
	CreateDir(path string) error
	ReadFile(path string, offset int64, length int) ([]byte, error)
	WriteFile(path string, offset int64, data []byte) error
	Delete(path string) error
	List(path string) ([]DiskEntry, error)
	Stat(path string) (DiskMeta, error)
	Exists(path string) (bool, error)

	SetXattr(path, key string, value []byte) error
	GetXattr(path, key string) ([]byte, error)
	RemoveXattr(path, key string) error
	ListXattrs(path string) ([]string, error)

	Compress(paths []string, destPath string, format string) error
	Extract(archivePath, destPath string) error
	ListArchive(archivePath string) ([]DiskArchiveEntry, error)

	MoveToTrash(path string) (trashID string, err error)
	RestoreFromTrash(trashID, destPath string) error
	ListTrash() ([]DiskTrashEntry, error)
	PurgeTrash(trashID string) error
	PurgeAllTrash() error
}

// ErrNotSupported is the canonical error an optional DiskOps method
// returns when its backend doesn't implement that concern (spec.md §6:
// "Optional ones may return 'not supported'").
func ErrNotSupported(path, what string) error {
	return errors.PermissionDenied(path, what+" not supported")
}

// IsNotSupported reports whether err is an ErrNotSupported result, so
// callers fanning out across many mounts (e.g. trash.Manager.PurgeAll)
// can treat a backend's lack of a concern as a no-op rather than a
// failure.
func IsNotSupported(err error) bool {
	fsErr, ok := err.(*errors.FsError)
	if !ok || fsErr.Code != errors.ErrCodePermissionDenied {
		return false
	}
	reason, _ := fsErr.Details["reason"].(string)
	return strings.HasSuffix(reason, "not supported")
}
