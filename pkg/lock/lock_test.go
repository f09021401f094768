package lock

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChanExcludesSecondHolder(t *testing.T) {
	l := NewChan()

	release, ok, err := l.TryLock()
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock()
	require.NoError(t, err)
	assert.False(t, ok, "second TryLock while held")

	release()
	release, ok, err = l.TryLock()
	require.NoError(t, err)
	assert.True(t, ok, "TryLock after release")
	release()
}

func TestFileExcludesSecondHolder(t *testing.T) {
	dir, err := ioutil.TempDir("", "fhdeploy-lock")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	// Two File values on the same path stand in for two processes;
	// flock locks belong to the open file description, so this
	// conflicts even within one process.
	path := filepath.Join(dir, "state.json.lock")
	a, b := File{Path: path}, File{Path: path}

	release, ok, err := a.TryLock()
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = b.TryLock()
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	release, ok, err = b.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	release()
}

func TestAllReleasesPartialAcquisition(t *testing.T) {
	first, second := NewChan(), NewChan()

	heldElsewhere, ok, _ := second.TryLock()
	require.True(t, ok)

	_, ok, err := All{first, second}.TryLock()
	require.NoError(t, err)
	assert.False(t, ok)

	// first must have been given back
	release, ok, _ := first.TryLock()
	assert.True(t, ok)
	release()
	heldElsewhere()

	release, ok, err = All{first, second}.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	release()
	assert.Len(t, first, 0)
	assert.Len(t, second, 0)
}
