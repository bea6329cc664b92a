package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moose-platform/moosecore/internal/config"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cluster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func Test_LoadAppliesDefaultsForOmittedFields(t *testing.T) {
	path := writeTemp(t, `
groups:
  - threads: 4
    nodes: 1
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2*datasize.MB, cfg.BlockSize)
	assert.False(t, cfg.Multinode())
}

func Test_LoadParsesClusterTopology(t *testing.T) {
	path := writeTemp(t, `
block_size: 4MB
groups:
  - threads: 8
    nodes: 3
cluster:
  node_index: 1
  peers:
    - "10.0.0.1:9301"
    - "10.0.0.2:9301"
    - "10.0.0.3:9301"
logging:
  level: debug
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4*datasize.MB, cfg.BlockSize)
	assert.True(t, cfg.Multinode())
	assert.Equal(t, 1, cfg.Cluster.NodeIndex)
	assert.Len(t, cfg.Cluster.Peers, 3)
	assert.Equal(t, uint32(8), cfg.Groups[0].Threads)
}

func Test_LoadRejectsZeroBlockSize(t *testing.T) {
	path := writeTemp(t, `
block_size: 0
groups:
  - threads: 1
    nodes: 1
`)

	_, err := config.Load(path)
	require.Error(t, err)
}

func Test_LoadRejectsNodeIndexOutOfRange(t *testing.T) {
	path := writeTemp(t, `
groups:
  - threads: 1
    nodes: 1
cluster:
  node_index: 5
  peers:
    - "10.0.0.1:9301"
    - "10.0.0.2:9301"
`)

	_, err := config.Load(path)
	require.Error(t, err)
}

func Test_LoadRejectsMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
