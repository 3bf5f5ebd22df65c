package runlock

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks", "frolicsim.lock")

	release, err := Acquire(path)
	require.NoError(t, err)

	_, err = Acquire(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLocked), "got %v", err)

	require.NoError(t, release())
	require.NoError(t, release())

	again, err := Acquire(path)
	require.NoError(t, err)
	assert.NoError(t, again())
}

func TestAcquireEmptyPath(t *testing.T) {
	release, err := Acquire("")
	require.NoError(t, err)
	assert.NoError(t, release())
}
