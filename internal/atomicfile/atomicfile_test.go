package atomicfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReplacesAndStampsModTime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chat.json")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	stamp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, Write(path, []byte("new"), 0o644, stamp))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(stamp), "modtime = %v", info.ModTime())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, IsTemp(e.Name()), "leftover temp file %s", e.Name())
	}
}

func TestWriteFailsForMissingDir(t *testing.T) {
	err := Write(filepath.Join(t.TempDir(), "missing", "x.json"), []byte("x"), 0o644, time.Time{})
	require.Error(t, err)
}
