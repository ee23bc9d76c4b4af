package mount

import "github.com/picofs/picofs/internal/events"

// DiskFileWatcher is the host-supplied contract for a platform-specific
// file-change detector attached to a mount (spec.md §1: "per-platform
// file-change detectors (the bridging protocol is specified); ... not
// [implemented here]"). A watcher streams DiskFileEvents with paths
// relative to the mount's disk root until Stop is called; the channel
// returned by Events must be closed once the watcher has fully stopped so
// FileSystem's bridging goroutine can exit its receive loop.
type DiskFileWatcher interface {
	Events() <-chan events.DiskFileEvent
	Stop()
}
