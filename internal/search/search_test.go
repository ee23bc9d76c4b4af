package search

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picofs/picofs/internal/node"
)

// fakeNamespace is an in-memory Namespace double, independent of
// internal/tree, so these tests exercise Engine's walk/match logic in
// isolation from the tree engine it will be wired to in production.
type fakeNamespace struct {
	files map[string][]byte    // path -> content, FILE entries
	dirs  map[string][]Entry   // path -> children, DIRECTORY entries
	types map[string]node.Type // path -> type, every path
}

func newFakeNamespace() *fakeNamespace {
	return &fakeNamespace{
		files: make(map[string][]byte),
		dirs:  make(map[string][]Entry),
		types: map[string]node.Type{"/": node.Directory},
	}
}

func (f *fakeNamespace) mkdir(path string) {
	f.types[path] = node.Directory
	if _, ok := f.dirs[path]; !ok {
		f.dirs[path] = nil
	}
}

func (f *fakeNamespace) addChild(parent, name string, t node.Type) {
	f.dirs[parent] = append(f.dirs[parent], Entry{Name: name, Type: t})
}

func (f *fakeNamespace) writeFile(dir, name string, content []byte) string {
	p := dir
	if p == "/" {
		p = "/" + name
	} else {
		p = p + "/" + name
	}
	f.types[p] = node.File
	f.files[p] = content
	f.addChild(dir, name, node.File)
	return p
}

func (f *fakeNamespace) Stat(p string) (Info, error) {
	t, ok := f.types[p]
	if !ok {
		return Info{}, assertNotFound(p)
	}
	return Info{Type: t}, nil
}

func (f *fakeNamespace) ReadDir(p string) ([]Entry, error) {
	entries, ok := f.dirs[p]
	if !ok {
		return nil, assertNotFound(p)
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out, nil
}

func (f *fakeNamespace) ReadAllContent(p string) ([]byte, error) {
	c, ok := f.files[p]
	if !ok {
		return nil, assertNotFound(p)
	}
	return c, nil
}

func assertNotFound(p string) error {
	return notFoundErr{p}
}

type notFoundErr struct{ path string }

func (e notFoundErr) Error() string { return "not found: " + e.path }

func buildFixture() *fakeNamespace {
	ns := newFakeNamespace()
	ns.mkdir("/d")
	ns.addChild("/", "d", node.Directory)
	ns.mkdir("/d/sub")
	ns.addChild("/d", "sub", node.Directory)
	ns.writeFile("/d", "report.txt", []byte("line one\nerror: disk full\nline three\n"))
	ns.writeFile("/d", "notes.md", []byte("nothing interesting here\n"))
	ns.writeFile("/d/sub", "report.txt", []byte("another error: timeout\n"))
	return ns
}

func TestGlobMatchesByBaseName(t *testing.T) {
	ns := buildFixture()
	e := New(ns)

	hits, err := e.Glob(GlobQuery{Root: "/", Pattern: "report.txt"})
	require.NoError(t, err)

	var paths []string
	for _, h := range hits {
		paths = append(paths, h.Path)
	}
	sort.Strings(paths)
	assert.Equal(t, []string{"/d/report.txt", "/d/sub/report.txt"}, paths)
}

func TestGlobRespectsMaxResults(t *testing.T) {
	ns := buildFixture()
	e := New(ns)

	hits, err := e.Glob(GlobQuery{Root: "/", Pattern: "*.txt", MaxResults: 1})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestGlobRejectsMalformedPattern(t *testing.T) {
	ns := buildFixture()
	e := New(ns)

	_, err := e.Glob(GlobQuery{Root: "/", Pattern: "["})
	assert.Error(t, err)
}

func TestGrepFindsMatchingLinesAcrossTree(t *testing.T) {
	ns := buildFixture()
	e := New(ns)

	hits, err := e.Grep(GrepQuery{Root: "/", Pattern: "error:"})
	require.NoError(t, err)
	require.Len(t, hits, 2)

	sort.Slice(hits, func(i, j int) bool { return hits[i].Path < hits[j].Path })
	assert.Equal(t, "/d/report.txt", hits[0].Path)
	assert.Equal(t, 2, hits[0].Line)
	assert.Equal(t, "/d/sub/report.txt", hits[1].Path)
	assert.Equal(t, 1, hits[1].Line)
}

func TestGrepIgnoresNonFileEntries(t *testing.T) {
	ns := buildFixture()
	e := New(ns)

	hits, err := e.Grep(GrepQuery{Root: "/d/sub", Pattern: "."})
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, "/d/sub", h.Path)
	}
}

func TestGrepRejectsMalformedRegexp(t *testing.T) {
	ns := buildFixture()
	e := New(ns)

	_, err := e.Grep(GrepQuery{Root: "/", Pattern: "(unterminated"})
	assert.Error(t, err)
}
