package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picofs/picofs/internal/node"
)

func sampleSnapshot() *SnapshotNode {
	return &SnapshotNode{
		Name:             "/",
		Type:             node.Directory,
		CreatedAtMillis:  1000,
		ModifiedAtMillis: 2000,
		Xattrs:           map[string][]byte{},
		Children: []*SnapshotNode{
			{
				Name:             "hello.txt",
				Type:             node.File,
				CreatedAtMillis:  1500,
				ModifiedAtMillis: 1600,
				Permissions:      node.Permissions{Read: true, Write: true},
				Content:          []byte("hello world, this is a reasonably sized payload for comparison"),
				Xattrs:           map[string][]byte{"user.tag": []byte("v1")},
			},
			{
				Name:             "link",
				Type:             node.Symlink,
				CreatedAtMillis:  1700,
				ModifiedAtMillis: 1700,
				Target:           "hello.txt",
			},
			{
				Name:             "sub",
				Type:             node.Directory,
				CreatedAtMillis:  1800,
				ModifiedAtMillis: 1800,
				Xattrs:           map[string][]byte{},
			},
		},
	}
}

func TestCBORSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	c := NewCBOR()
	sn := sampleSnapshot()

	data, err := c.EncodeSnapshot(sn)
	require.NoError(t, err)

	decoded, err := c.DecodeSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, sn, decoded)
}

func TestTLVSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	c := NewTLV()
	sn := sampleSnapshot()

	data, err := c.EncodeSnapshot(sn)
	require.NoError(t, err)

	decoded, err := c.DecodeSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, sn, decoded)
}

func TestTLVSmallerThanCBOR(t *testing.T) {
	t.Parallel()

	sn := sampleSnapshot()

	cborData, err := NewCBOR().EncodeSnapshot(sn)
	require.NoError(t, err)
	tlvData, err := NewTLV().EncodeSnapshot(sn)
	require.NoError(t, err)

	assert.Less(t, len(tlvData), len(cborData))
}

func TestWalEntryRoundTrip(t *testing.T) {
	t.Parallel()

	e := &WalEntry{
		Tag:         WalWrite,
		Path:        "/hello.txt",
		Offset:      42,
		Data:        []byte("payload"),
		Permissions: node.Permissions{Read: true},
	}

	for _, c := range []Codec{NewCBOR(), NewTLV()} {
		data, err := c.EncodeWalEntry(e)
		require.NoError(t, err)
		decoded, err := c.DecodeWalEntry(data)
		require.NoError(t, err)
		assert.Equal(t, e, decoded)
	}
}

func TestMountsRoundTrip(t *testing.T) {
	t.Parallel()

	mounts := []MountRecord{
		{VirtualPath: "/data", RootPath: "/srv/data", ReadOnly: false},
		{VirtualPath: "/backup", RootPath: "s3://bucket/prefix", ReadOnly: true},
	}

	for _, c := range []Codec{NewCBOR(), NewTLV()} {
		data, err := c.EncodeMounts(mounts)
		require.NoError(t, err)
		decoded, err := c.DecodeMounts(data)
		require.NoError(t, err)
		assert.Equal(t, mounts, decoded)
	}
}

func TestVersionsRoundTrip(t *testing.T) {
	t.Parallel()

	versions := []VersionRecord{
		{Path: "/f.txt", ID: "v1", TimestampMillis: 100, Blob: []byte("old")},
		{Path: "/f.txt", ID: "v2", TimestampMillis: 200, Blob: []byte("older")},
	}

	for _, c := range []Codec{NewCBOR(), NewTLV()} {
		data, err := c.EncodeVersions(versions)
		require.NoError(t, err)
		decoded, err := c.DecodeVersions(data)
		require.NoError(t, err)
		assert.Equal(t, versions, decoded)
	}
}

func TestTrashRoundTrip(t *testing.T) {
	t.Parallel()

	items := []TrashRecord{
		{
			TrashID:         "t1",
			OriginalPath:    "/deleted.txt",
			IsDir:           false,
			Size:            10,
			DeletedAtMillis: 500,
			Node: &SnapshotNode{
				Name:            "deleted.txt",
				Type:            node.File,
				Content:         []byte("gone"),
				CreatedAtMillis: 100,
			},
		},
		{
			TrashID:          "t2",
			OriginalPath:     "/mount/file",
			IsMounted:        true,
			MountVirtualPath: "/mount",
			DeletedAtMillis:  600,
		},
	}

	for _, c := range []Codec{NewCBOR(), NewTLV()} {
		data, err := c.EncodeTrash(items)
		require.NoError(t, err)
		decoded, err := c.DecodeTrash(data)
		require.NoError(t, err)
		assert.Equal(t, items, decoded)
	}
}

func TestNodeSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	perm := node.Permissions{Read: true, Write: true}
	root := node.NewDirectory("/", perm, now)
	file := node.NewFile("hello.txt", perm, now)
	file.SetContent([]byte("hi"))
	file.SetXattr("user.tag", []byte("v1"))
	root.AddChild(file)
	link := node.NewSymlink("link", "hello.txt", now)
	root.AddChild(link)

	sn := NodeToSnapshot(root)
	rebuilt := SnapshotToNode(sn)

	assert.Equal(t, root.Name, rebuilt.Name)
	assert.Equal(t, root.Type, rebuilt.Type)
	require.Contains(t, rebuilt.Children, "hello.txt")
	assert.Equal(t, []byte("hi"), rebuilt.Children["hello.txt"].Content())
	v, ok := rebuilt.Children["hello.txt"].GetXattr("user.tag")
	assert.True(t, ok)
	assert.Equal(t, []byte("v1"), v)
	require.Contains(t, rebuilt.Children, "link")
	assert.Equal(t, "hello.txt", rebuilt.Children["link"].Target)
}
