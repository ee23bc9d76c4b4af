package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFiltersByPrefix(t *testing.T) {
	t.Parallel()

	b := New(0)
	mntSub := b.Subscribe("/mnt")
	defer mntSub.Close()
	rootSub := b.Subscribe("/")
	defer rootSub.Close()

	b.Publish(FsEvent{Path: "/mnt/a.txt", Kind: Created})
	b.Publish(FsEvent{Path: "/other/b.txt", Kind: Created})

	select {
	case ev := <-mntSub.Events():
		assert.Equal(t, "/mnt/a.txt", ev.Path)
	case <-time.After(time.Second):
		t.Fatal("mount subscriber missed event")
	}

	select {
	case ev := <-mntSub.Events():
		t.Fatalf("mount subscriber should not see %v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case ev := <-rootSub.Events():
			seen[ev.Path] = true
		case <-time.After(time.Second):
			t.Fatal("root subscriber missed an event")
		}
	}
	assert.True(t, seen["/mnt/a.txt"])
	assert.True(t, seen["/other/b.txt"])
}

func TestOverflowDropsOldest(t *testing.T) {
	t.Parallel()

	b := New(2)
	sub := b.Subscribe("/")
	defer sub.Close()

	b.Publish(FsEvent{Path: "/a", Kind: Created})
	b.Publish(FsEvent{Path: "/b", Kind: Created})
	b.Publish(FsEvent{Path: "/c", Kind: Created})

	first := <-sub.Events()
	second := <-sub.Events()
	assert.Equal(t, "/b", first.Path, "oldest event should have been dropped")
	assert.Equal(t, "/c", second.Path)
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	t.Parallel()

	b := New(1)
	slow := b.Subscribe("/")
	defer slow.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(FsEvent{Path: "/x", Kind: Modified})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestSubscriptionCloseStopsDelivery(t *testing.T) {
	t.Parallel()

	b := New(0)
	sub := b.Subscribe("/")
	sub.Close()

	_, ok := <-sub.Events()
	assert.False(t, ok, "channel should be closed")

	require.NotPanics(t, func() { b.Publish(FsEvent{Path: "/x", Kind: Deleted}) })
}

func TestPublishFromMountPrefixesVirtualPath(t *testing.T) {
	t.Parallel()

	b := New(0)
	sub := b.Subscribe("/mnt")
	defer sub.Close()

	b.PublishFromMount("/mnt", DiskFileEvent{RelativePath: "/dir/f.txt", Kind: Modified})

	select {
	case ev := <-sub.Events():
		assert.Equal(t, "/mnt/dir/f.txt", ev.Path)
		assert.Equal(t, Modified, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected translated event")
	}
}
