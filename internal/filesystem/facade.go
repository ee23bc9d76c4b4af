// Package filesystem implements the FileSystem facade (spec.md §4.14 and
// §2's "FileSystem facade" row): the component the spec names but never
// details beyond "orchestrates the components; metric counters". It owns
// one instance each of every other internal component and dispatches every
// public path operation between the in-memory TreeStore and whichever
// mount owns the path, the way the teacher's own internal/filesystem
// package wires its collaborators behind one struct satisfying
// FilesystemInterface.
package filesystem

import (
	"sync"
	"time"

	"github.com/picofs/picofs/internal/cache"
	"github.com/picofs/picofs/internal/circuit"
	"github.com/picofs/picofs/internal/codec"
	"github.com/picofs/picofs/internal/config"
	"github.com/picofs/picofs/internal/events"
	"github.com/picofs/picofs/internal/locktable"
	"github.com/picofs/picofs/internal/metrics"
	"github.com/picofs/picofs/internal/mount"
	"github.com/picofs/picofs/internal/node"
	"github.com/picofs/picofs/internal/persistence"
	"github.com/picofs/picofs/internal/quota"
	"github.com/picofs/picofs/internal/search"
	"github.com/picofs/picofs/internal/trash"
	"github.com/picofs/picofs/internal/tree"
	"github.com/picofs/picofs/internal/version"
	"github.com/picofs/picofs/pkg/errors"
	"github.com/picofs/picofs/pkg/utils"
)

// FileSystem is a self-contained PicoFS instance: no process-wide
// singletons (spec.md §9, "Global state"), so a process may host many
// instances each bound to its own Storage. mu is the single logical
// write-mutex of spec.md §5: writers take it exclusively, readers
// (Stat/ReadDir/ReadAt/search) take it for reading so they never block
// behind each other, only behind an in-flight writer.
type FileSystem struct {
	mu sync.RWMutex

	cfg *config.Configuration

	tree        *tree.TreeStore
	router      *mount.Router
	cache       *cache.Cache
	quota       *quota.Meter
	bus         *events.Bus
	versions    *version.Store
	trashMgr    *trash.Manager
	persistence *persistence.Persistence
	metrics     *metrics.Collector
	searchEng   *search.Engine
	logger      *utils.StructuredLogger

	// mountLocks tracks advisory locks for handles opened against mounted
	// paths, mirroring the TreeStore's own locktable for in-memory paths
	// (exposed via tree.Locks()). Kept separate because only TreeStore
	// knows how to walk a subtree for DeleteRecursive's descendant-lock
	// check; a mounted subtree has no such walk to perform here.
	mountLocks      *locktable.Table
	nextMountHandle uint64

	// lastObserved records each mounted path's last-seen disk metadata,
	// consulted by Sync (spec.md §4.14) to detect CREATED/MODIFIED/DELETED
	// since the previous observation.
	observedMu   sync.Mutex
	lastObserved map[string]mount.DiskMeta

	watcherStop chan struct{}
	watcherWG   sync.WaitGroup

	Mounts   *MountsNS
	Versions *VersionsNS
	Search   *SearchNS
	Observe  *ObserveNS
	Streams  *StreamsNS
	Checksum *ChecksumNS
	Xattr    *XattrNS
	Symlinks *SymlinksNS
	Archive  *ArchiveNS
	Trash    *TrashNS
}

// New constructs a FileSystem bound to storage, recovering any
// previously-persisted state (spec.md §4.13's fail-soft startup sequence)
// before returning. A nil cfg uses config.NewDefault().
func New(cfg *config.Configuration, storage persistence.Storage) (*FileSystem, error) {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Unknown(err)
	}

	logger, err := utils.NewStructuredLogger(nil)
	if err != nil {
		return nil, errors.Unknown(err)
	}
	logger = logger.WithComponent("filesystem")

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   cfg.Monitoring.Metrics.Enabled,
		Namespace: "picofs",
	})
	if err != nil {
		return nil, errors.Unknown(err)
	}

	breakerThreshold := cfg.Mount.CircuitBreaker.FailureThreshold
	breakerCfg := circuit.Config{
		Timeout: cfg.Mount.CircuitBreaker.Timeout,
		ReadyToTrip: func(counts circuit.Counts) bool {
			return counts.ConsecutiveFailures >= breakerThreshold
		},
	}

	fs := &FileSystem{
		cfg:          cfg,
		router:       mount.New(breakerCfg, cfg.Mount.CircuitBreaker.Enabled),
		cache:        cache.New(cfg.Cache.StatMaxEntries),
		quota:        quota.New(cfg.Quota.Bytes),
		bus:          events.New(cfg.Events.SubscriberBufferSize),
		versions:     version.New(),
		metrics:      collector,
		logger:       logger,
		mountLocks:   locktable.New(),
		lastObserved: make(map[string]mount.DiskMeta),
		watcherStop:  make(chan struct{}),
	}

	// The tree starts with no hooks so that persistence.Recover's WAL
	// replay (which calls the real TreeStore.CreateFile/WriteAt/... methods
	// to rebuild state) neither double-reserves quota nor emits spurious
	// versions/events for history that already happened before this
	// process started. Real hooks are installed via SetHooks only after
	// recovery finishes, matching internal/tree's own NewFromRoot guidance.
	fs.tree = tree.New(nil)
	fs.trashMgr = trash.New(fs.tree, fs.router, &trash.Hooks{ReleaseQuota: fs.quota.Release})

	c := codec.NewTLV() // spec.md §11: TLV is the default (smaller, no external dependency)
	fs.persistence = persistence.New(c, storage, fs.tree, fs.router, fs.versions, fs.trashMgr,
		persistence.WithThreshold(cfg.Persistence.SnapshotEveryNWrites),
		persistence.WithLogger(logger))

	if warn := fs.persistence.Recover(); warn != nil {
		logger.Warn("recovery completed with warnings", map[string]interface{}{"err": warn.Error()})
	}

	// Seed the quota meter from whatever Recover just restored (file bytes,
	// retained version blobs and in-memory trash) before any caller can observe or grow
	// it. Best-effort: a quota lowered since the last run may reject this
	// single bulk reservation, in which case usage simply undercounts
	// until the next write recomputes headroom, rather than failing
	// startup (spec.md §7).
	var restoredBytes int64
	fs.tree.WithSnapshot(func(root *node.Node) { restoredBytes = node.SubtreeFileBytes(root) })
	restoredBytes += fs.versions.TotalBytes()
	for _, e := range fs.trashMgr.Export() {
		if !e.IsMounted {
			restoredBytes += e.Size
		}
	}
	if restoredBytes > 0 {
		if err := fs.quota.Reserve(restoredBytes); err != nil {
			logger.Warn("restored content exceeds configured quota", map[string]interface{}{"bytes": restoredBytes})
		}
	}

	fs.tree.SetHooks(&tree.Hooks{
		ReserveQuota:   fs.reserveQuota,
		ReleaseQuota:   fs.quota.Release,
		CaptureVersion: fs.captureVersion,
		OnMutate:       fs.onTreeMutate,
	})

	fs.searchEng = search.New(&namespaceAdapter{fs: fs})

	fs.Mounts = &MountsNS{fs: fs}
	fs.Versions = &VersionsNS{fs: fs}
	fs.Search = &SearchNS{fs: fs}
	fs.Observe = &ObserveNS{fs: fs}
	fs.Streams = &StreamsNS{fs: fs}
	fs.Checksum = &ChecksumNS{fs: fs}
	fs.Xattr = &XattrNS{fs: fs}
	fs.Symlinks = &SymlinksNS{fs: fs}
	fs.Archive = &ArchiveNS{fs: fs}
	fs.Trash = &TrashNS{fs: fs}

	return fs, nil
}

// reserveQuota is tree.Hooks.ReserveQuota; a thin adapter so TreeStore
// never imports internal/quota directly.
func (fs *FileSystem) reserveQuota(delta int64) error {
	return fs.quota.Reserve(delta)
}

// captureVersion is tree.Hooks.CaptureVersion: push the version, then
// best-effort count its bytes against the quota (spec.md I5: "Σ stored
// version blob sizes" is part of used). Quota admission for version bytes
// never aborts the write in progress — the write itself already passed
// its own admission check; a version blob that pushes the meter over
// quota just means subsequent writes see less headroom, not that this one
// rolls back.
func (fs *FileSystem) captureVersion(path string, priorContent []byte) {
	fs.versions.Push(path, priorContent)
	_ = fs.quota.Reserve(int64(len(priorContent)))
}

// onTreeMutate is tree.Hooks.OnMutate: invalidate the cache entry (a
// no-op for in-memory paths today, since only mount results are cached,
// but kept uniform) and publish the event. WAL append is NOT performed
// here (spec.md SPEC_FULL.md §6: the hook only carries (path, kind), not
// enough to reconstruct a WalEntry's offset/data/target/permissions
// payload) — each public operation below appends its own WAL entry after
// the tree call returns successfully.
func (fs *FileSystem) onTreeMutate(path string, kind tree.MutationKind) {
	fs.cache.Invalidate(path)
	fs.bus.Publish(events.FsEvent{Path: path, Kind: treeKindToEventKind(kind)})
}

func treeKindToEventKind(k tree.MutationKind) events.Kind {
	switch k {
	case tree.Created:
		return events.Created
	case tree.Deleted:
		return events.Deleted
	default:
		return events.Modified
	}
}

// Logger exposes the facade's structured logger so embedding callers can
// route their own diagnostics through the same sink.
func (fs *FileSystem) Logger() *utils.StructuredLogger { return fs.logger }

// Metrics returns the per-operation snapshot spec.md §4.14 describes.
func (fs *FileSystem) Metrics() metrics.Snapshot { return fs.metrics.Snapshot() }

// ResetMetrics zeros every counter (spec.md §4.14: "resetMetrics zeros
// them").
func (fs *FileSystem) ResetMetrics() { fs.metrics.Reset() }

// QuotaInfo reports the current quota usage (spec.md §4.5).
func (fs *FileSystem) QuotaInfo() quota.Usage { return fs.quota.Snapshot() }

// Subscribe registers an EventBus subscription filtered by pathPrefix
// (spec.md §4.7).
func (fs *FileSystem) Subscribe(pathPrefix string) *events.Subscription {
	return fs.bus.Subscribe(pathPrefix)
}

// Close stops the external-watcher bridge (if running) and forces a final
// durable snapshot, so a subsequent New(cfg, storage) against the same
// Storage recovers with nothing left in the WAL to replay.
func (fs *FileSystem) Close() error {
	if fs.watcherStop != nil {
		close(fs.watcherStop)
		fs.watcherWG.Wait()
		fs.watcherStop = nil
	}
	return fs.persistence.Snapshot()
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// namespaceAdapter implements search.Namespace by delegating to the
// facade's own dispatching Stat/ReadDir/ReadAll, so internal/search walks
// in-memory and mount-dispatched paths through the exact same read path
// the public API uses, without importing internal/tree or internal/mount
// itself.
type namespaceAdapter struct{ fs *FileSystem }

func (a *namespaceAdapter) Stat(p string) (search.Info, error) {
	meta, err := a.fs.Stat(p)
	if err != nil {
		return search.Info{}, err
	}
	return search.Info{Type: meta.Type}, nil
}

func (a *namespaceAdapter) ReadDir(p string) ([]search.Entry, error) {
	entries, err := a.fs.ReadDir(p)
	if err != nil {
		return nil, err
	}
	out := make([]search.Entry, len(entries))
	for i, e := range entries {
		out[i] = search.Entry{Name: e.Name, Type: e.Type}
	}
	return out, nil
}

func (a *namespaceAdapter) ReadAllContent(p string) ([]byte, error) {
	return a.fs.ReadAll(p)
}
