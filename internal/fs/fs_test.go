package fs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "attribute", "price")
	lfs := LocalFS{}

	require.NoError(t, lfs.MkdirAll(dir, 0o755))

	path := filepath.Join(dir, "data")
	f, err := lfs.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	info, err := lfs.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())

	entries, err := lfs.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	renamed := filepath.Join(dir, "data.tmp")
	require.NoError(t, lfs.Rename(path, renamed))
	require.NoError(t, lfs.Remove(renamed))

	require.NoError(t, lfs.RemoveAll(filepath.Dir(dir)))
	_, err = lfs.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestFaultyFSWriteLimit(t *testing.T) {
	ffs := NewFaultyFS(nil)
	ffs.AddRule("offset", Fault{FailAfterBytes: 5})

	dir := t.TempDir()
	f, err := ffs.OpenFile(filepath.Join(dir, "offset"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)

	n, err := f.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = f.Write([]byte("!"))
	assert.ErrorIs(t, err, ErrInjected)
	assert.Equal(t, 0, n)
	require.NoError(t, f.Close())

	// Unmatched files are unaffected.
	g, err := ffs.OpenFile(filepath.Join(dir, "data"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = g.Write(make([]byte, 64))
	require.NoError(t, err)
	require.NoError(t, g.Close())

	assert.Equal(t, int64(69), ffs.Written())
}

func TestFaultyFSLongestPatternWins(t *testing.T) {
	custom := errors.New("disk full")
	ffs := NewFaultyFS(LocalFS{})
	ffs.AddRule("data", Fault{FailAfterBytes: -1, FailOnSync: true})
	ffs.AddRule("data_info", Fault{FailAfterBytes: -1, FailOnClose: true, Err: custom})

	f, err := ffs.OpenFile(filepath.Join(t.TempDir(), "data_info"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	assert.ErrorIs(t, f.Close(), custom)
}

func TestFaultyFSFailOnOpen(t *testing.T) {
	ffs := NewFaultyFS(nil)
	ffs.AddRule("segment_info", Fault{FailOnOpen: true})

	_, err := ffs.OpenFile(filepath.Join(t.TempDir(), "segment_info"), os.O_CREATE|os.O_RDWR, 0o644)
	assert.ErrorIs(t, err, ErrInjected)
}
