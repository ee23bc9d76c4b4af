package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushListNewestFirst(t *testing.T) {
	t.Parallel()

	s := New()
	id1 := s.Push("/f.txt", []byte("one"))
	id2 := s.Push("/f.txt", []byte("two"))

	versions := s.List("/f.txt")
	require.Len(t, versions, 2)
	assert.Equal(t, id2, versions[0].ID)
	assert.Equal(t, id1, versions[1].ID)
	assert.Equal(t, []byte("two"), versions[0].Blob)
}

func TestReadUnknownID(t *testing.T) {
	t.Parallel()

	s := New()
	_, err := s.Read("nope")
	assert.Error(t, err)
}

func TestRestorePushesCurrentFirst(t *testing.T) {
	t.Parallel()

	s := New()
	id1 := s.Push("/f.txt", []byte("original"))

	blob, err := s.Restore(id1, []byte("current-before-restore"))
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), blob)

	versions := s.List("/f.txt")
	require.Len(t, versions, 2)
	assert.Equal(t, []byte("current-before-restore"), versions[0].Blob)
}

func TestBlobsAreCopiesNotAliases(t *testing.T) {
	t.Parallel()

	s := New()
	data := []byte("mutate-me")
	s.Push("/f.txt", data)
	data[0] = 'X'

	versions := s.List("/f.txt")
	assert.Equal(t, byte('m'), versions[0].Blob[0])
}

func TestObserveExternalPushesOnDiff(t *testing.T) {
	t.Parallel()

	s := New()
	s.ObserveExternal("/f.txt", []byte("v1"))
	s.ObserveExternal("/f.txt", []byte("v1")) // no change: no version
	assert.Empty(t, s.List("/f.txt"))

	s.ObserveExternal("/f.txt", []byte("v2"))
	versions := s.List("/f.txt")
	require.Len(t, versions, 1)
	assert.Equal(t, []byte("v1"), versions[0].Blob)
}

func TestTotalBytes(t *testing.T) {
	t.Parallel()

	s := New()
	s.Push("/a", []byte("1234"))
	s.Push("/b", []byte("123"))
	assert.Equal(t, int64(7), s.TotalBytes())
}

func TestExportImportRoundTrip(t *testing.T) {
	t.Parallel()

	s := New()
	s.Push("/a", []byte("a1"))
	s.Push("/a", []byte("a2"))
	s.Push("/b", []byte("b1"))

	exported := s.Export()
	require.Len(t, exported, 3)

	restored := New()
	restored.Import(exported)

	assert.Equal(t, s.List("/a"), restored.List("/a"))
	assert.Equal(t, s.List("/b"), restored.List("/b"))
	assert.Equal(t, s.TotalBytes(), restored.TotalBytes())
}

func TestForgetRemovesHistory(t *testing.T) {
	t.Parallel()

	s := New()
	id := s.Push("/f.txt", []byte("x"))
	s.Forget("/f.txt")

	assert.Empty(t, s.List("/f.txt"))
	_, err := s.Read(id)
	assert.Error(t, err)
}
