package mount

import (
	"time"

	"github.com/picofs/picofs/internal/circuit"
	"github.com/picofs/picofs/pkg/retry"
)

// RetryingDiskOps wraps a DiskOps backend so transient failures are
// retried with exponential backoff (pkg/retry), per spec.md §5's "a pool
// for blocking disk I/O" — the core never retries on its own, but a
// mounted backend is free to be wrapped in one. stats tallies how many
// attempts each call actually used, surfaced through an observe namespace
// the same way a BreakingDiskOps's breaker counts are.
type RetryingDiskOps struct {
	inner   DiskOps
	retryer *retry.Retryer
	stats   *retry.StatsCollector
}

// NewRetryingDiskOps wraps inner with a retryer built from cfg and its own
// private stats collector.
func NewRetryingDiskOps(inner DiskOps, cfg retry.Config) *RetryingDiskOps {
	return NewRetryingDiskOpsWithStats(inner, cfg, retry.NewStatsCollector())
}

// NewRetryingDiskOpsWithStats wraps inner with a retryer built from cfg,
// recording every call's outcome into the given stats collector. Callers
// that want stats aggregated across mounts (e.g. Router.RetryStats) pass a
// collector they keep a reference to themselves.
func NewRetryingDiskOpsWithStats(inner DiskOps, cfg retry.Config, stats *retry.StatsCollector) *RetryingDiskOps {
	return &RetryingDiskOps{inner: inner, retryer: retry.New(cfg), stats: stats}
}

// Stats returns a snapshot of this wrapper's retry statistics.
func (d *RetryingDiskOps) Stats() retry.Stats { return d.stats.GetStats() }

// do runs fn through the retryer, counting how many attempts fn itself was
// invoked (fn runs once per attempt) and recording the outcome, without
// needing access to the retryer's own per-attempt bookkeeping.
func (d *RetryingDiskOps) do(fn func() error) error {
	start := time.Now()
	attempts := 0
	err := d.retryer.Do(func() error {
		attempts++
		return fn()
	})
	d.stats.RecordAttempt(attempts, err == nil, time.Since(start))
	return err
}

func (d *RetryingDiskOps) CreateFile(path string) error { return d.do(func() error { return d.inner.CreateFile(path) }) }
func (d *RetryingDiskOps) CreateDir(path string) error  { return d.do(func() error { return d.inner.CreateDir(path) }) }

func (d *RetryingDiskOps) ReadFile(path string, offset int64, length int) ([]byte, error) {
	var out []byte
	err := d.do(func() error {
		b, err := d.inner.ReadFile(path, offset, length)
		out = b
		return err
	})
	return out, err
}

func (d *RetryingDiskOps) WriteFile(path string, offset int64, data []byte) error {
	return d.do(func() error { return d.inner.WriteFile(path, offset, data) })
}

func (d *RetryingDiskOps) Delete(path string) error { return d.do(func() error { return d.inner.Delete(path) }) }

func (d *RetryingDiskOps) List(path string) ([]DiskEntry, error) {
	var out []DiskEntry
	err := d.do(func() error {
		e, err := d.inner.List(path)
		out = e
		return err
	})
	return out, err
}

func (d *RetryingDiskOps) Stat(path string) (DiskMeta, error) {
	var out DiskMeta
	err := d.do(func() error {
		m, err := d.inner.Stat(path)
		out = m
		return err
	})
	return out, err
}

func (d *RetryingDiskOps) Exists(path string) (bool, error) {
	var out bool
	err := d.do(func() error {
		b, err := d.inner.Exists(path)
		out = b
		return err
	})
	return out, err
}

func (d *RetryingDiskOps) SetXattr(path, key string, value []byte) error {
	return d.inner.SetXattr(path, key, value)
}
func (d *RetryingDiskOps) GetXattr(path, key string) ([]byte, error) { return d.inner.GetXattr(path, key) }
func (d *RetryingDiskOps) RemoveXattr(path, key string) error        { return d.inner.RemoveXattr(path, key) }
func (d *RetryingDiskOps) ListXattrs(path string) ([]string, error)  { return d.inner.ListXattrs(path) }

func (d *RetryingDiskOps) Compress(paths []string, destPath string, format string) error {
	return d.inner.Compress(paths, destPath, format)
}
func (d *RetryingDiskOps) Extract(archivePath, destPath string) error {
	return d.inner.Extract(archivePath, destPath)
}
func (d *RetryingDiskOps) ListArchive(archivePath string) ([]DiskArchiveEntry, error) {
	return d.inner.ListArchive(archivePath)
}

func (d *RetryingDiskOps) MoveToTrash(path string) (string, error)          { return d.inner.MoveToTrash(path) }
func (d *RetryingDiskOps) RestoreFromTrash(trashID, destPath string) error { return d.inner.RestoreFromTrash(trashID, destPath) }
func (d *RetryingDiskOps) ListTrash() ([]DiskTrashEntry, error)            { return d.inner.ListTrash() }
func (d *RetryingDiskOps) PurgeTrash(trashID string) error                 { return d.inner.PurgeTrash(trashID) }
func (d *RetryingDiskOps) PurgeAllTrash() error                            { return d.inner.PurgeAllTrash() }

// BreakingDiskOps wraps a DiskOps backend with a circuit breaker
// (internal/circuit) so a consistently failing backend degrades to
// failing fast instead of hanging every caller on repeated timeouts.
type BreakingDiskOps struct {
	inner   DiskOps
	breaker *circuit.CircuitBreaker
}

// NewBreakingDiskOps wraps inner with a breaker named name.
func NewBreakingDiskOps(name string, inner DiskOps, cfg circuit.Config) *BreakingDiskOps {
	return &BreakingDiskOps{inner: inner, breaker: circuit.NewCircuitBreaker(name, cfg)}
}

// WrapBreaker wraps inner with an already-constructed breaker, for callers
// that look theirs up from a shared circuit.Manager (e.g. Router.Breaker)
// instead of minting a standalone one per call.
func WrapBreaker(breaker *circuit.CircuitBreaker, inner DiskOps) *BreakingDiskOps {
	return &BreakingDiskOps{inner: inner, breaker: breaker}
}

func (d *BreakingDiskOps) CreateFile(path string) error { return d.breaker.Execute(func() error { return d.inner.CreateFile(path) }) }
func (d *BreakingDiskOps) CreateDir(path string) error  { return d.breaker.Execute(func() error { return d.inner.CreateDir(path) }) }

func (d *BreakingDiskOps) ReadFile(path string, offset int64, length int) ([]byte, error) {
	var out []byte
	err := d.breaker.Execute(func() error {
		b, err := d.inner.ReadFile(path, offset, length)
		out = b
		return err
	})
	return out, err
}

func (d *BreakingDiskOps) WriteFile(path string, offset int64, data []byte) error {
	return d.breaker.Execute(func() error { return d.inner.WriteFile(path, offset, data) })
}

func (d *BreakingDiskOps) Delete(path string) error { return d.breaker.Execute(func() error { return d.inner.Delete(path) }) }

func (d *BreakingDiskOps) List(path string) ([]DiskEntry, error) {
	var out []DiskEntry
	err := d.breaker.Execute(func() error {
		e, err := d.inner.List(path)
		out = e
		return err
	})
	return out, err
}

func (d *BreakingDiskOps) Stat(path string) (DiskMeta, error) {
	var out DiskMeta
	err := d.breaker.Execute(func() error {
		m, err := d.inner.Stat(path)
		out = m
		return err
	})
	return out, err
}

func (d *BreakingDiskOps) Exists(path string) (bool, error) {
	var out bool
	err := d.breaker.Execute(func() error {
		b, err := d.inner.Exists(path)
		out = b
		return err
	})
	return out, err
}

func (d *BreakingDiskOps) SetXattr(path, key string, value []byte) error {
	return d.inner.SetXattr(path, key, value)
}
func (d *BreakingDiskOps) GetXattr(path, key string) ([]byte, error) { return d.inner.GetXattr(path, key) }
func (d *BreakingDiskOps) RemoveXattr(path, key string) error        { return d.inner.RemoveXattr(path, key) }
func (d *BreakingDiskOps) ListXattrs(path string) ([]string, error)  { return d.inner.ListXattrs(path) }

func (d *BreakingDiskOps) Compress(paths []string, destPath string, format string) error {
	return d.inner.Compress(paths, destPath, format)
}
func (d *BreakingDiskOps) Extract(archivePath, destPath string) error {
	return d.inner.Extract(archivePath, destPath)
}
func (d *BreakingDiskOps) ListArchive(archivePath string) ([]DiskArchiveEntry, error) {
	return d.inner.ListArchive(archivePath)
}

func (d *BreakingDiskOps) MoveToTrash(path string) (string, error)          { return d.inner.MoveToTrash(path) }
func (d *BreakingDiskOps) RestoreFromTrash(trashID, destPath string) error { return d.inner.RestoreFromTrash(trashID, destPath) }
func (d *BreakingDiskOps) ListTrash() ([]DiskTrashEntry, error)            { return d.inner.ListTrash() }
func (d *BreakingDiskOps) PurgeTrash(trashID string) error                 { return d.inner.PurgeTrash(trashID) }
func (d *BreakingDiskOps) PurgeAllTrash() error                            { return d.inner.PurgeAllTrash() }
