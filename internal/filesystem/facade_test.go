package filesystem

import (
	"testing"

	"github.com/picofs/picofs/internal/archive"
	"github.com/picofs/picofs/internal/config"
	"github.com/picofs/picofs/internal/diskops/memdisk"
	"github.com/picofs/picofs/internal/locktable"
	"github.com/picofs/picofs/internal/node"
	"github.com/picofs/picofs/internal/persistence"
	"github.com/picofs/picofs/internal/tree"
	"github.com/picofs/picofs/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rwx = node.Permissions{Read: true, Write: true, Execute: true}

func newTestFS(t *testing.T, storage persistence.Storage) *FileSystem {
	t.Helper()
	if storage == nil {
		storage = persistence.NewMemStorage()
	}
	fs, err := New(config.NewDefault(), storage)
	require.NoError(t, err)
	return fs
}

// Scenario 1 (spec.md §8): createDir, writeAll, readAll, stat round-trip.
func TestScenarioCreateWriteReadStat(t *testing.T) {
	fs := newTestFS(t, nil)

	require.NoError(t, fs.CreateDir("/d", rwx))
	require.NoError(t, fs.WriteAll("/d/f.txt", []byte("Hello"), rwx))

	content, err := fs.ReadAll("/d/f.txt")
	require.NoError(t, err)
	assert.Equal(t, "Hello", string(content))

	meta, err := fs.Stat("/d/f.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), meta.Size)
}

// Scenario 2: the first write to an empty file suppresses version capture
// (spec.md §9 Open Question a); the second push records exactly one prior
// version, readable by id.
func TestScenarioVersionHistory(t *testing.T) {
	fs := newTestFS(t, nil)

	require.NoError(t, fs.WriteAll("/f", []byte("v1"), rwx))
	require.NoError(t, fs.WriteAll("/f", []byte("version 2"), rwx))

	versions := fs.Versions.List("/f")
	require.Len(t, versions, 1)

	v, err := fs.versions.Read(versions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(v.Blob))
}

// Scenario 3: content written before a restart is observable after a fresh
// FileSystem is constructed against the same Storage (spec.md §8 P6).
func TestScenarioPersistenceAcrossRestart(t *testing.T) {
	storage := persistence.NewMemStorage()
	fs := newTestFS(t, storage)

	require.NoError(t, fs.CreateDirRecursive("/d", rwx))
	require.NoError(t, fs.WriteAll("/d/file.txt", []byte("persisted"), rwx))
	require.NoError(t, fs.Close())

	fs2 := newTestFS(t, storage)
	content, err := fs2.ReadAll("/d/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(content))
}

// Scenario 4: a corrupted WAL degrades to whatever the last snapshot held,
// rather than failing recovery (spec.md §7, §8 P9).
func TestScenarioCorruptWALDegradesGracefully(t *testing.T) {
	storage := persistence.NewMemStorage()
	fs := newTestFS(t, storage)
	require.NoError(t, fs.Close()) // force an empty baseline snapshot

	require.NoError(t, storage.Write(persistence.KeyWAL, []byte("0123456789abc"))) // 13 garbage bytes, no valid CRC framing

	fs2 := newTestFS(t, storage)
	_, err := fs2.Stat("/bad.txt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
}

// Scenario 5: exclusive lock acquisition, contention, and release (spec.md
// §8 P5, §4.3 upgrade/contention semantics).
func TestScenarioLockContention(t *testing.T) {
	fs := newTestFS(t, nil)
	require.NoError(t, fs.WriteAll("/f", []byte("x"), rwx))

	h1, err := fs.Open("/f", tree.ReadWrite)
	require.NoError(t, err)
	h2, err := fs.Open("/f", tree.ReadWrite)
	require.NoError(t, err)

	require.NoError(t, fs.TryLock(h1, locktable.Exclusive))
	err = fs.TryLock(h2, locktable.Exclusive)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeLocked))

	fs.CloseHandle(h1)
	require.NoError(t, fs.TryLock(h2, locktable.Exclusive))
	fs.CloseHandle(h2)
}

// Scenario 6: quota admission rejects a write that would exceed the
// configured ceiling, and frees headroom on delete (spec.md §8 P10, §4.5).
func TestScenarioQuotaAdmission(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Quota.Bytes = 100
	fs, err := New(cfg, persistence.NewMemStorage())
	require.NoError(t, err)

	require.NoError(t, fs.WriteAll("/a.txt", make([]byte, 50), rwx))
	err = fs.WriteAll("/b.txt", make([]byte, 60), rwx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeQuotaExceeded))

	require.NoError(t, fs.Delete("/a.txt"))
	require.NoError(t, fs.WriteAll("/b.txt", make([]byte, 60), rwx))

	assert.Equal(t, int64(60), fs.QuotaInfo().Used)
}

// Scenario 7: a ZIP archive round-trips a directory subtree byte-identically
// (spec.md §8, ArchiveCodec).
func TestScenarioArchiveRoundTrip(t *testing.T) {
	fs := newTestFS(t, nil)
	require.NoError(t, fs.CreateDir("/d", rwx))
	require.NoError(t, fs.WriteAll("/d/a.txt", []byte("aaa"), rwx))
	require.NoError(t, fs.WriteAll("/d/b.txt", []byte("bbbbb"), rwx))

	require.NoError(t, fs.Archive.Compress([]string{"/d"}, "/out.zip", archive.FormatZip))

	entries, err := fs.Archive.List("/out.zip")
	require.NoError(t, err)
	sizes := map[string]int{}
	for _, e := range entries {
		sizes[e.Name] = len(e.Data)
	}
	assert.Contains(t, sizes, "/d/a.txt")
	assert.Equal(t, 3, sizes["/d/a.txt"])
	assert.Equal(t, 5, sizes["/d/b.txt"])

	require.NoError(t, fs.Archive.Extract("/out.zip", "/restored"))
	content, err := fs.ReadAll("/restored/d/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "aaa", string(content))
}

// Mounted-path writes are routed to the backing DiskOps, never buffered in
// memory (spec.md I6), and trigger cache invalidation + event publication.
func TestMountRoutesWritesToDiskOps(t *testing.T) {
	fs := newTestFS(t, nil)
	require.NoError(t, fs.CreateDir("/mnt", rwx))

	disk := memdisk.New()
	require.NoError(t, fs.Mounts.Add("/mnt", "/", false, disk))

	require.NoError(t, fs.WriteAll("/mnt/f.txt", []byte("disk content"), rwx))
	content, err := fs.ReadAll("/mnt/f.txt")
	require.NoError(t, err)
	assert.Equal(t, "disk content", string(content))

	diskContent, err := disk.ReadFile("/f.txt", 0, 64)
	require.NoError(t, err)
	assert.Equal(t, "disk content", string(diskContent))
}

// Sync detects out-of-band disk changes under a mount and both publishes a
// translated event and captures a version of the prior content (spec.md
// §4.14, §4.8's external-watcher bridge semantics applied via sync).
func TestSync(t *testing.T) {
	fs := newTestFS(t, nil)
	require.NoError(t, fs.CreateDir("/mnt", rwx))

	disk := memdisk.New()
	require.NoError(t, fs.Mounts.Add("/mnt", "/", false, disk))

	require.NoError(t, fs.WriteAll("/mnt/f.txt", []byte("v1"), rwx))
	require.NoError(t, fs.Observe.Sync("/mnt"))

	sub := fs.Subscribe("/mnt")
	defer sub.Close()

	require.NoError(t, disk.WriteFile("/f.txt", 0, []byte("v2-longer")))
	require.NoError(t, fs.Observe.Sync("/mnt"))

	select {
	case ev := <-sub.Events():
		assert.Equal(t, "/mnt/f.txt", ev.Path)
	default:
		t.Fatal("expected a MODIFIED event from sync")
	}

	versions := fs.Versions.List("/mnt/f.txt")
	require.Len(t, versions, 1)
	assert.Equal(t, "v1", string(versions[0].Blob))
}

// Sync against a non-mounted path fails NotMounted (spec.md §4.14).
func TestSyncRequiresMount(t *testing.T) {
	fs := newTestFS(t, nil)
	require.NoError(t, fs.CreateDir("/d", rwx))
	err := fs.Observe.Sync("/d")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeNotMounted))
}

// Move/rename (spec.md §8 P4): the source no longer stats, and the
// destination carries the source's prior content.
func TestScenarioMove(t *testing.T) {
	fs := newTestFS(t, nil)
	require.NoError(t, fs.WriteAll("/a", []byte("content"), rwx))
	require.NoError(t, fs.Rename("/a", "/b"))

	_, err := fs.Stat("/a")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))

	content, err := fs.ReadAll("/b")
	require.NoError(t, err)
	assert.Equal(t, "content", string(content))
}

// Copy (spec.md §8 P3): the source is left unchanged.
func TestScenarioCopy(t *testing.T) {
	fs := newTestFS(t, nil)
	require.NoError(t, fs.WriteAll("/a", []byte("content"), rwx))
	require.NoError(t, fs.Copy("/a", "/b"))

	aContent, err := fs.ReadAll("/a")
	require.NoError(t, err)
	bContent, err := fs.ReadAll("/b")
	require.NoError(t, err)
	assert.Equal(t, aContent, bContent)
}

// Trash round-trip: moveToTrash then restore reproduces the file.
func TestTrashRoundTrip(t *testing.T) {
	fs := newTestFS(t, nil)
	require.NoError(t, fs.WriteAll("/f", []byte("keep me"), rwx))

	id, err := fs.Trash.MoveToTrash("/f")
	require.NoError(t, err)

	_, err = fs.Stat("/f")
	require.Error(t, err)

	require.NoError(t, fs.Trash.Restore(id))
	content, err := fs.ReadAll("/f")
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(content))
}

// Metrics are recorded per operation and reset to zero on demand (spec.md
// §4.14).
func TestMetrics(t *testing.T) {
	fs := newTestFS(t, nil)
	require.NoError(t, fs.WriteAll("/f", []byte("x"), rwx))
	_, err := fs.ReadAll("/f")
	require.NoError(t, err)

	snap := fs.Metrics()
	assert.GreaterOrEqual(t, snap.Operations["writeAll"].SuccessCount, int64(1))
	assert.GreaterOrEqual(t, snap.Operations["readAll"].SuccessCount, int64(1))

	fs.ResetMetrics()
	snap = fs.Metrics()
	assert.Empty(t, snap.Operations)
}
