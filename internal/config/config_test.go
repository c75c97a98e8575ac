package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	c := Default()
	assert.Equal(t, 64, c.Buffer.NumFrames)
	assert.Equal(t, 2, c.Buffer.K)
	assert.Equal(t, 4096, c.Storage.PageSize)
	assert.False(t, c.Log.Enabled)
}

func TestLoadOverlaysOntoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagestore.yaml")
	yaml := `
buffer:
  num_frames: 128
storage:
  disk_path: /tmp/custom.db
log:
  enabled: true
  dir: /tmp/custom-log
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 128, c.Buffer.NumFrames)
	assert.Equal(t, 2, c.Buffer.K, "k is not overridden by the file, default carries through")
	assert.Equal(t, "/tmp/custom.db", c.Storage.DiskPath)
	assert.True(t, c.Log.Enabled)
	assert.Equal(t, "/tmp/custom-log", c.Log.Dir)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}
