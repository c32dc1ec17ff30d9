package lifecycle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/evsieve/evsieve/internal/log2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicSymlinkCreatesLink(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "evsieve-virtual-keyboard")

	require.NoError(t, atomicSymlink("/dev/input/event7", link))

	got, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, "/dev/input/event7", got)
}

func TestAtomicSymlinkReplacesExistingLink(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "evsieve-virtual-keyboard")

	require.NoError(t, atomicSymlink("/dev/input/event7", link))
	require.NoError(t, atomicSymlink("/dev/input/event9", link))

	got, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, "/dev/input/event9", got, "re-pointing must replace the old target, not fail or leave it stale")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no leftover temp-name link should remain after the rename")
}

func TestRemoveSymlinkIgnoresMissingPath(t *testing.T) {
	dir := t.TempDir()
	log := log2.NewTest(t, log2.LAll)
	removeSymlink(filepath.Join(dir, "does-not-exist"), log)
}

func TestRemoveSymlinkRemovesExistingLink(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "evsieve-virtual-keyboard")
	require.NoError(t, atomicSymlink("/dev/input/event7", link))

	log := log2.NewTest(t, log2.LAll)
	removeSymlink(link, log)

	_, err := os.Lstat(link)
	assert.True(t, os.IsNotExist(err))
}
