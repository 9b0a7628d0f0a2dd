package fsutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fahmaliyi/otpvault/fsutil"
)

func TestWriteFileCreatesParentsAndReplaces(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "file.bin")

	require.NoError(t, fsutil.WriteFile(path, []byte("one"), 0o600))
	require.NoError(t, fsutil.WriteFile(path, []byte("two"), 0o600))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	leftovers, err := filepath.Glob(filepath.Join(dir, "a", "b", ".otpvault-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestExists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	assert.False(t, fsutil.Exists(dir))
	assert.False(t, fsutil.Exists(filepath.Join(dir, "nope")))

	path := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	assert.True(t, fsutil.Exists(path))

	_, err := os.Stat(filepath.Join(dir, "nope"))
	assert.True(t, fsutil.IsNotExist(err))
}
