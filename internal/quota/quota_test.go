package quota

import (
	"testing"

	picoerrors "github.com/picofs/picofs/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveWithinQuota(t *testing.T) {
	t.Parallel()

	m := New(100)
	require.NoError(t, m.Reserve(40))
	require.NoError(t, m.Reserve(60))
	assert.Equal(t, int64(100), m.Snapshot().Used)
	assert.Equal(t, int64(0), m.Snapshot().Available)
}

func TestReserveOverQuotaMakesNoChange(t *testing.T) {
	t.Parallel()

	m := New(100)
	require.NoError(t, m.Reserve(90))

	err := m.Reserve(20)
	require.Error(t, err)
	assert.True(t, picoerrors.Is(err, picoerrors.ErrCodeQuotaExceeded))
	assert.Equal(t, int64(90), m.Snapshot().Used, "rejected reservation must not change used")
}

func TestOverwriteToSameSizeIsFree(t *testing.T) {
	t.Parallel()

	m := New(10)
	require.NoError(t, m.Reserve(10))
	assert.NoError(t, m.Reserve(0))
}

func TestReleaseDecrementsUsed(t *testing.T) {
	t.Parallel()

	m := New(100)
	require.NoError(t, m.Reserve(50))
	m.Release(30)
	assert.Equal(t, int64(20), m.Snapshot().Used)
}

func TestUnlimitedDisablesChecks(t *testing.T) {
	t.Parallel()

	m := New(Unlimited)
	require.NoError(t, m.Reserve(1<<40))
	u := m.Snapshot()
	assert.Equal(t, Unlimited, u.Quota)
	assert.Equal(t, maxAvailable, u.Available)
}

func TestNegativeDeltaNeverFails(t *testing.T) {
	t.Parallel()

	m := New(10)
	require.NoError(t, m.Reserve(5))
	require.NoError(t, m.Reserve(-100))
	assert.Equal(t, int64(0), m.Snapshot().Used)
}
