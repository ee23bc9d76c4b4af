package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                "/",
		"/":               "/",
		"a":               "/a",
		"/a/./b/../c":     "/a/c",
		"/a//b":           "/a/b",
		"/../../etc":      "/etc",
		"/a/b/":           "/a/b",
		"/a/b/../../../c": "/c",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "Normalize(%q)", in)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{"", "/", "/a/./b/../c", "/x/y/z", "weird//../path"}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		assert.Equal(t, once, twice, "P1 violated for %q", in)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Validate("/a/b"))
	assert.Error(t, Validate("/a\x00b"))

	long := make([]byte, MaxSegmentLength+1)
	for i := range long {
		long[i] = 'x'
	}
	assert.Error(t, Validate("/"+string(long)))

	ok := make([]byte, MaxSegmentLength)
	for i := range ok {
		ok[i] = 'x'
	}
	assert.NoError(t, Validate("/"+string(ok)))
}

func TestSplitJoinDirBase(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a", "b"}, Split("/a/b"))
	assert.Nil(t, Split("/"))

	assert.Equal(t, "/a/b/c", Join("/a", "b", "c"))
	assert.Equal(t, "/a/b", Dir("/a/b/c"))
	assert.Equal(t, "/", Dir("/a"))
	assert.Equal(t, "c", Base("/a/b/c"))
	assert.Equal(t, "/", Base("/"))
}

func TestHasPrefix(t *testing.T) {
	t.Parallel()

	assert.True(t, HasPrefix("/mnt/data/f.txt", "/mnt"))
	assert.True(t, HasPrefix("/mnt", "/mnt"))
	assert.False(t, HasPrefix("/mntx", "/mnt"))
	assert.True(t, HasPrefix("/anything", "/"))
}
