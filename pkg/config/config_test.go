package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_EmptyDocumentGetsFullDefaults(t *testing.T) {
	cfg, err := Parse([]byte(``))
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestParse_OverridesOnlyNamedFields(t *testing.T) {
	cfg, err := Parse([]byte(`
thresholds:
  block_score: 0.95
hnsw:
  m: 32
`))
	require.NoError(t, err)

	assert.InDelta(t, 0.95, cfg.Thresholds.BlockScore, 1e-9)
	assert.Equal(t, Default().Thresholds.FlagScore, cfg.Thresholds.FlagScore)
	assert.Equal(t, 32, cfg.HNSW.M)
	assert.Equal(t, Default().HNSW.EfSearch, cfg.HNSW.EfSearch)
}

func TestParse_RejectsUnknownTopLevelKey(t *testing.T) {
	_, err := Parse([]byte(`not_a_real_section: {}`))
	assert.Error(t, err)
}

func TestParse_RejectsWrongType(t *testing.T) {
	_, err := Parse([]byte(`thresholds: { block_score: "high" }`))
	assert.Error(t, err)
}

func TestParse_RejectsOutOfRangeValue(t *testing.T) {
	_, err := Parse([]byte(`thresholds: { block_score: 1.5 }`))
	assert.Error(t, err)
}

func TestLoad_ReadsFileFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunker:\n  max_depth: 6\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Chunker.MaxDepth)
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
