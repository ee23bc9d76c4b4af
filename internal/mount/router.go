package mount

import (
	"sort"
	"strings"
	"sync"

	"github.com/picofs/picofs/internal/circuit"
	"github.com/picofs/picofs/internal/pathutil"
	"github.com/picofs/picofs/pkg/errors"
	"github.com/picofs/picofs/pkg/retry"
)

// Mount is a single virtual-path-to-disk-backend binding (spec.md §3).
// RootPath is carried even once Ops is attached so a restart can persist
// and later reconstruct the intent to re-bind (spec.md §3: "persisted as
// {virtualPath, rootPath, readOnly} so a restart can reconstruct intent").
type Mount struct {
	VirtualPath string
	RootPath    string
	ReadOnly    bool
	Ops         DiskOps // nil until the host (re-)attaches a backend
}

// Pending reports whether this mount is awaiting its DiskOps (spec.md
// §4.6: "pending() returns persisted mounts whose DiskOps is not yet
// attached").
func (m Mount) Pending() bool { return m.Ops == nil }

// Router maps virtual paths to the longest-matching Mount (spec.md §4.6).
// It also owns the one circuit.Manager shared by every mounted backend, so
// a breaker looked up by virtual path survives independently of whatever
// DiskOps value happens to be attached at the moment (re-attaching a
// backend after a restart reuses the same breaker and its trip history,
// rather than starting a fresh one per attach).
type Router struct {
	mu     sync.RWMutex
	mounts map[string]*Mount // keyed by normalized virtualPath

	breakers        *circuit.Manager
	breakersEnabled bool

	retryStats map[string]*retry.StatsCollector // keyed by normalized virtualPath
}

// New creates an empty Router. breakerCfg configures every per-mount
// circuit breaker the router hands out via Breaker; breakersEnabled mirrors
// spec.md §5's resilience pool being an optional wrapper a deployment can
// turn off entirely.
func New(breakerCfg circuit.Config, breakersEnabled bool) *Router {
	return &Router{
		mounts:          make(map[string]*Mount),
		breakers:        circuit.NewManager(breakerCfg),
		breakersEnabled: breakersEnabled,
		retryStats:      make(map[string]*retry.StatsCollector),
	}
}

// Breaker returns the shared circuit breaker for virtualPath, creating it
// on first use. ok is false when circuit breaking is disabled entirely.
func (r *Router) Breaker(virtualPath string) (breaker *circuit.CircuitBreaker, ok bool) {
	if !r.breakersEnabled {
		return nil, false
	}
	return r.breakers.GetBreaker(pathutil.Normalize(virtualPath)), true
}

// HealthCheck reports an error naming every mount whose breaker is
// currently open (spec.md §5's resilience pool surfaced for diagnostics).
func (r *Router) HealthCheck() error {
	return r.breakers.HealthCheck()
}

// BreakerStats returns the current trip state and counters for every
// mount that has ever had a breaker created for it.
func (r *Router) BreakerStats() map[string]circuit.CircuitBreakerStats {
	return r.breakers.GetStats()
}

// ResetBreakers clears every mount breaker's trip history back to closed.
func (r *Router) ResetBreakers() {
	r.breakers.ResetAll()
}

// RetryStats returns the shared retry.StatsCollector for virtualPath,
// creating it on first use. Every RetryingDiskOps wrapping that mount's
// backend records into the same collector, so stats survive a re-attach
// the same way a mount's breaker does.
func (r *Router) RetryStats(virtualPath string) *retry.StatsCollector {
	norm := pathutil.Normalize(virtualPath)

	r.mu.Lock()
	defer r.mu.Unlock()
	sc, ok := r.retryStats[norm]
	if !ok {
		sc = retry.NewStatsCollector()
		r.retryStats[norm] = sc
	}
	return sc
}

// AllRetryStats returns a snapshot of every mount's retry statistics,
// keyed by virtual path.
func (r *Router) AllRetryStats() map[string]retry.Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]retry.Stats, len(r.retryStats))
	for name, sc := range r.retryStats {
		out[name] = sc.GetStats()
	}
	return out
}

// validatePrefix enforces spec.md §4.6's mount preconditions that this
// package alone can check: virtualPath != "/", not a prefix of an
// existing mount, and not nested under one. The caller (FileSystem
// facade) is responsible for confirming the parent directory exists in
// the tree before calling Add, since that requires tree access this
// package intentionally does not have.
func (r *Router) validatePrefix(virtualPath string) error {
	if pathutil.IsRoot(virtualPath) {
		return errors.InvalidPath(virtualPath).WithDetail("reason", "cannot mount at root")
	}
	norm := pathutil.Normalize(virtualPath)
	for existing := range r.mounts {
		if existing == norm || pathutil.HasPrefix(existing, norm) || pathutil.HasPrefix(norm, existing) {
			return errors.AlreadyExists(virtualPath).WithDetail("reason", "overlaps an existing mount").WithDetail("existing", existing)
		}
	}
	return nil
}

// Add registers a new mount binding. ops may be nil to record a pending
// mount recovered from persistence without yet attaching a backend.
func (r *Router) Add(virtualPath, rootPath string, readOnly bool, ops DiskOps) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.validatePrefix(virtualPath); err != nil {
		return err
	}
	norm := pathutil.Normalize(virtualPath)
	r.mounts[norm] = &Mount{VirtualPath: norm, RootPath: rootPath, ReadOnly: readOnly, Ops: ops}
	return nil
}

// Attach binds ops to an already-registered (pending) mount, e.g. when
// the host re-registers a backend after a restart.
func (r *Router) Attach(virtualPath string, ops DiskOps) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	norm := pathutil.Normalize(virtualPath)
	m, ok := r.mounts[norm]
	if !ok {
		return errors.NotMounted(virtualPath)
	}
	m.Ops = ops
	return nil
}

// Remove unregisters virtualPath's binding entirely.
func (r *Router) Remove(virtualPath string) (*Mount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	norm := pathutil.Normalize(virtualPath)
	m, ok := r.mounts[norm]
	if !ok {
		return nil, errors.NotMounted(virtualPath)
	}
	delete(r.mounts, norm)
	r.breakers.RemoveBreaker(norm)
	delete(r.retryStats, norm)
	return m, nil
}

// Resolve finds the longest mount prefix matching path, returning the
// mount and the disk-relative remainder. The second return is false if
// path is not under any mount.
func (r *Router) Resolve(path string) (*Mount, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	norm := pathutil.Normalize(path)
	var best *Mount
	for prefix, m := range r.mounts {
		if !pathutil.HasPrefix(norm, prefix) {
			continue
		}
		if best == nil || len(prefix) > len(best.VirtualPath) {
			best = m
		}
	}
	if best == nil {
		return nil, "", false
	}
	rel := strings.TrimPrefix(norm, best.VirtualPath)
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" {
		rel = "/"
	} else {
		rel = "/" + rel
	}
	return best, rel, true
}

// List returns every registered mount, sorted by virtual path.
func (r *Router) List() []Mount {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Mount, 0, len(r.mounts))
	for _, m := range r.mounts {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VirtualPath < out[j].VirtualPath })
	return out
}

// Pending returns every registered mount whose DiskOps has not yet been
// attached (spec.md §4.6).
func (r *Router) Pending() []Mount {
	all := r.List()
	out := all[:0:0]
	for _, m := range all {
		if m.Pending() {
			out = append(out, m)
		}
	}
	return out
}

// Get returns the mount registered at exactly virtualPath.
func (r *Router) Get(virtualPath string) (Mount, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.mounts[pathutil.Normalize(virtualPath)]
	if !ok {
		return Mount{}, false
	}
	return *m, true
}

// RequireWritable resolves path and fails with PermissionDenied if its
// mount is read-only (spec.md §4.6: "readOnly mounts reject every
// mutating operation").
func (r *Router) RequireWritable(path string) (*Mount, string, error) {
	m, rel, ok := r.Resolve(path)
	if !ok {
		return nil, "", errors.NotMounted(path)
	}
	if m.ReadOnly {
		return nil, "", errors.PermissionDenied(path, "mount is read-only")
	}
	return m, rel, nil
}
