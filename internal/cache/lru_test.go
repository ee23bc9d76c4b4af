package cache

import (
	"sync"
	"testing"

	"github.com/picofs/picofs/internal/node"
	"github.com/picofs/picofs/internal/tree"
	"github.com/stretchr/testify/assert"
)

func TestStatCachePutGet(t *testing.T) {
	t.Parallel()

	c := New(0)
	meta := tree.FsMeta{Path: "/a.txt", Type: node.File, Size: 42}
	c.PutStat("/a.txt", meta)

	got, ok := c.GetStat("/a.txt")
	assert.True(t, ok)
	assert.Equal(t, int64(42), got.Size)

	_, ok = c.GetStat("/missing")
	assert.False(t, ok)
}

func TestReadDirCachePutGet(t *testing.T) {
	t.Parallel()

	c := New(0)
	entries := []tree.FsEntry{{Name: "a", Type: node.File}, {Name: "b", Type: node.Directory}}
	c.PutReadDir("/dir", entries)

	got, ok := c.GetReadDir("/dir")
	assert.True(t, ok)
	assert.Equal(t, entries, got)
}

func TestInvalidateClearsPathAndParentReadDir(t *testing.T) {
	t.Parallel()

	c := New(0)
	c.PutStat("/dir/f.txt", tree.FsMeta{Path: "/dir/f.txt"})
	c.PutReadDir("/dir/f.txt", nil)
	c.PutReadDir("/dir", []tree.FsEntry{{Name: "f.txt", Type: node.File}})

	c.Invalidate("/dir/f.txt")

	_, ok := c.GetStat("/dir/f.txt")
	assert.False(t, ok)
	_, ok = c.GetReadDir("/dir/f.txt")
	assert.False(t, ok)
	_, ok = c.GetReadDir("/dir")
	assert.False(t, ok, "parent readDir entry must be invalidated too")
}

func TestInvalidatePrefixClearsMountSubtree(t *testing.T) {
	t.Parallel()

	c := New(0)
	c.PutStat("/mnt/a", tree.FsMeta{Path: "/mnt/a"})
	c.PutStat("/mnt/sub/b", tree.FsMeta{Path: "/mnt/sub/b"})
	c.PutStat("/other", tree.FsMeta{Path: "/other"})

	c.InvalidatePrefix("/mnt")

	_, ok := c.GetStat("/mnt/a")
	assert.False(t, ok)
	_, ok = c.GetStat("/mnt/sub/b")
	assert.False(t, ok)
	_, ok = c.GetStat("/other")
	assert.True(t, ok)
}

func TestEvictionByEntryCount(t *testing.T) {
	t.Parallel()

	c := New(2)
	c.PutStat("/a", tree.FsMeta{Path: "/a"})
	c.PutStat("/b", tree.FsMeta{Path: "/b"})
	c.PutStat("/c", tree.FsMeta{Path: "/c"}) // evicts /a (least recently used)

	_, ok := c.GetStat("/a")
	assert.False(t, ok)
	_, ok = c.GetStat("/b")
	assert.True(t, ok)
	_, ok = c.GetStat("/c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.StatLen())
}

func TestGetRefreshesRecency(t *testing.T) {
	t.Parallel()

	c := New(2)
	c.PutStat("/a", tree.FsMeta{Path: "/a"})
	c.PutStat("/b", tree.FsMeta{Path: "/b"})
	c.GetStat("/a") // refresh /a so /b becomes the LRU victim
	c.PutStat("/c", tree.FsMeta{Path: "/c"})

	_, ok := c.GetStat("/b")
	assert.False(t, ok)
	_, ok = c.GetStat("/a")
	assert.True(t, ok)
}

func TestClearEmptiesBothMaps(t *testing.T) {
	t.Parallel()

	c := New(0)
	c.PutStat("/a", tree.FsMeta{Path: "/a"})
	c.PutReadDir("/a", nil)
	c.Clear()

	assert.Equal(t, 0, c.StatLen())
	assert.Equal(t, 0, c.ReadDirLen())
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	c := New(1000)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.PutStat("/k", tree.FsMeta{Size: int64(i*100 + j)})
				c.GetStat("/k")
			}
		}()
	}
	wg.Wait()
}
