package state

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fhdeployerr "github.com/fluxcd/fhdeploy/pkg/errors"
)

func setup(t *testing.T) (*FileStore, func()) {
	dir, err := ioutil.TempDir("", "fhdeploy-state")
	require.NoError(t, err)
	s := NewFileStore(filepath.Join(dir, DefaultName), log.NewLogfmtLogger(os.Stdout))
	return s, func() { os.RemoveAll(dir) }
}

var now = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func TestReadAbsentIsEmpty(t *testing.T) {
	s, cleanup := setup(t)
	defer cleanup()

	assert.Equal(t, Empty(), s.Read(context.Background()))
}

func TestReadCorruptIsEmpty(t *testing.T) {
	s, cleanup := setup(t)
	defer cleanup()

	for _, contents := range []string{
		"FAILED:v1",
		"{not json",
		`{"lastAttemptedVersion": "v1", "outcome": "exploded"}`,
	} {
		require.NoError(t, ioutil.WriteFile(s.Path(), []byte(contents), 0644))
		assert.Equal(t, Empty(), s.Read(context.Background()), contents)
	}
}

func TestWriteThenRead(t *testing.T) {
	s, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	rec := Empty().Success("v2", now)
	require.NoError(t, s.Write(ctx, rec))
	assert.Equal(t, rec, s.Read(ctx))

	failed := rec.Failure("v3", now)
	require.NoError(t, s.Write(ctx, failed))
	got := s.Read(ctx)
	assert.Equal(t, "v3", got.LastAttemptedVersion)
	assert.Equal(t, OutcomeFailed, got.Outcome)
	assert.Equal(t, "v2", got.LastGoodVersion)
}

func TestWriteCreatesDirectory(t *testing.T) {
	dir, err := ioutil.TempDir("", "fhdeploy-state")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	s := NewFileStore(filepath.Join(dir, "nested", "deeper", DefaultName), nil)
	require.NoError(t, s.Write(context.Background(), Empty().Success("v1", now)))
	assert.True(t, s.Read(context.Background()).Succeeded("v1"))
}

// A crash between writing the temporary file and renaming it must
// leave the previous record in place.
func TestCrashBeforeRenameKeepsPreviousRecord(t *testing.T) {
	s, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	previous := Empty().Success("v1", now)
	require.NoError(t, s.Write(ctx, previous))

	s.rename = func(_, _ string) error {
		return errors.New("simulated crash")
	}
	err := s.Write(ctx, previous.Failure("v2", now))
	require.Error(t, err)
	assert.True(t, fhdeployerr.Is(err, fhdeployerr.StateStore))

	assert.Equal(t, previous, s.Read(ctx))

	// and nothing is left lying around
	entries, err := ioutil.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// If the process dies outright, the temporary file may be left
// behind; it must not be mistaken for the record.
func TestStrayTemporaryFileIsIgnored(t *testing.T) {
	s, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	previous := Empty().Success("v1", now)
	require.NoError(t, s.Write(ctx, previous))

	stray := filepath.Join(filepath.Dir(s.Path()), "."+DefaultName+".tmp-123")
	require.NoError(t, ioutil.WriteFile(stray, []byte(`{"lastAttemptedVersion": "v2", "outc`), 0644))

	assert.Equal(t, previous, s.Read(ctx))
}

func TestReset(t *testing.T) {
	s, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, s.Reset(), "reset with no record")

	require.NoError(t, s.Write(ctx, Empty().Failure("v1", now)))
	require.NoError(t, s.Reset())
	assert.Equal(t, Empty(), s.Read(ctx))
}

func TestRecordPredicates(t *testing.T) {
	r := Empty().Success("v1", now)
	assert.True(t, r.Succeeded("v1"))
	assert.False(t, r.Failed("v1"))
	assert.False(t, r.Succeeded("v2"))

	f := r.Failure("v2", now)
	assert.True(t, f.Failed("v2"))
	assert.False(t, f.Succeeded("v2"))
	assert.Equal(t, "v1", f.LastGoodVersion)

	assert.False(t, Empty().Succeeded(""))
	assert.False(t, Empty().Failed(""))
}
