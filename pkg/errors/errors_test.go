package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	err := New(ErrCodeNotFound, "no such file or directory")
	require.NotNil(t, err)
	assert.Equal(t, ErrCodeNotFound, err.Code)
	assert.Equal(t, CategoryLookup, err.Category)
	assert.Equal(t, "no such file or directory", err.Message)
	assert.NotNil(t, err.Details)
	assert.NotNil(t, err.Context)
	assert.False(t, err.Timestamp.IsZero())
	assert.False(t, err.Retryable)
}

func TestUnknownIsRetryable(t *testing.T) {
	t.Parallel()

	err := Unknown(fmt.Errorf("disk exploded"))
	assert.Equal(t, ErrCodeUnknown, err.Code)
	assert.True(t, err.Retryable)
	assert.Equal(t, CategoryInternal, err.Category)
}

func TestCategoryDerivation(t *testing.T) {
	t.Parallel()

	cases := map[ErrorCode]ErrorCategory{
		ErrCodeNotFound:         CategoryLookup,
		ErrCodeAlreadyExists:    CategoryLookup,
		ErrCodeNotDirectory:     CategoryValidation,
		ErrCodeNotFile:          CategoryValidation,
		ErrCodeInvalidPath:      CategoryValidation,
		ErrCodeSymlinkLoop:      CategoryValidation,
		ErrCodeNotMounted:       CategoryMount,
		ErrCodePermissionDenied: CategoryMount,
		ErrCodeLocked:           CategoryLocking,
		ErrCodeQuotaExceeded:    CategoryResource,
		ErrCodeUnknown:          CategoryInternal,
	}
	for code, want := range cases {
		assert.Equal(t, want, GetCategory(code), "code %s", code)
	}
}

func TestErrorString(t *testing.T) {
	t.Parallel()

	err := NotFound("/a/b").WithComponent("tree").WithOperation("stat")
	assert.Equal(t, "[tree:stat] NOT_FOUND: no such file or directory", err.Error())

	bare := NotFound("/a/b")
	assert.Equal(t, "NOT_FOUND: no such file or directory", bare.Error())
}

func TestWrapAndUnwrap(t *testing.T) {
	t.Parallel()

	cause := fmt.Errorf("boom")
	err := Unknown(cause)
	assert.Equal(t, cause, err.Unwrap())
	assert.ErrorIs(t, err, cause)
}

func TestIsHelper(t *testing.T) {
	t.Parallel()

	err := QuotaExceeded("/big.bin")
	wrapped := fmt.Errorf("writeAll failed: %w", err)

	assert.True(t, Is(err, ErrCodeQuotaExceeded))
	assert.True(t, Is(wrapped, ErrCodeQuotaExceeded))
	assert.False(t, Is(wrapped, ErrCodeLocked))
	assert.False(t, Is(fmt.Errorf("plain"), ErrCodeQuotaExceeded))
}

func TestConvenienceConstructors(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ErrCodeAlreadyExists, AlreadyExists("/x").Code)
	assert.Equal(t, ErrCodeNotDirectory, NotDirectory("/x").Code)
	assert.Equal(t, ErrCodeNotFile, NotFile("/x").Code)
	assert.Equal(t, ErrCodeInvalidPath, InvalidPath("/x").Code)
	assert.Equal(t, ErrCodeNotMounted, NotMounted("/x").Code)
	assert.Equal(t, ErrCodeLocked, Locked("/x").Code)
	assert.Equal(t, ErrCodeSymlinkLoop, SymlinkLoop("/x").Code)

	perm := PermissionDenied("/x", "xattr not supported")
	assert.Equal(t, "xattr not supported", perm.Details["reason"])
}

func TestWithDetailAndContext(t *testing.T) {
	t.Parallel()

	err := NotFound("/x").WithDetail("attempt", 3).WithContext("caller", "sync")
	assert.Equal(t, 3, err.Details["attempt"])
	assert.Equal(t, "sync", err.Context["caller"])

	j := err.JSON()
	assert.Contains(t, j, "NOT_FOUND")
}
