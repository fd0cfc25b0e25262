package helper

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchFiles(t *testing.T) {
	dir := t.TempDir()
	older := filepath.Join(dir, "20240501_100000_aa.avi")
	newer := filepath.Join(dir, "20240501_110000_bb.avi")
	require.NoError(t, os.WriteFile(older, make([]byte, 2048), 0644))
	require.NoError(t, os.WriteFile(newer, []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), nil, 0644))
	require.NoError(t, os.Chtimes(older, time.Now().Add(-time.Hour), time.Now().Add(-time.Hour)))

	files, err := FetchFiles(dir, ".avi", "video")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "20240501_110000_bb.avi", files[0].Filename)
	assert.Equal(t, "2.0 kB", files[1].Size)
	assert.Equal(t, "video", files[1].Kind)

	files, err = FetchFiles(filepath.Join(dir, "missing"), ".avi", "video")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDiskUsage(t *testing.T) {
	used, free, err := DiskUsage(t.TempDir())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, used, 0.0)
	assert.LessOrEqual(t, used, 1.0)
	assert.NotEmpty(t, free)

	_, _, err = DiskUsage(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, 0.42, Truncate(0.4299, 0.01))
	assert.Equal(t, 1.5, Truncate(1.59, 0.5))
}
