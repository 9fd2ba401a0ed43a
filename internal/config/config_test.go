package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBBox(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
		isSet   bool
	}{
		{"", false, false},
		{"13.0,52.3,13.8,52.7", false, true},
		{" 13.0 , 52.3 , 13.8 , 52.7 ", false, true},
		{"13.0,52.3,13.8", true, false},
		{"13.8,52.3,13.0,52.7", true, false},
		{"13.0,52.7,13.8,52.3", true, false},
		{"a,b,c,d", true, false},
	}

	for _, tt := range tests {
		bbox, err := ParseBBox(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.isSet, bbox.IsSet)
	}
}

func TestBBoxContainsAndBounds(t *testing.T) {
	bbox, err := ParseBBox("13.0,52.3,13.8,52.7")
	require.NoError(t, err)

	assert.True(t, bbox.Contains(52.5, 13.4))
	assert.False(t, bbox.Contains(48.1, 11.5))

	b := bbox.Bounds()
	require.NotNil(t, b)
	assert.Equal(t, 52.3, b.MinLat)
	assert.Equal(t, 13.8, b.MaxLon)

	var unset *BBox
	assert.True(t, unset.Contains(0, 0))
	assert.Nil(t, unset.Bounds())
}

func TestDefaultConfigValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "osmhuge.yaml")
	yml := `
pbf:
  block_size: 4000
  dense_nodes: true
  bbox: "13.0,52.3,13.8,52.7"
index:
  backing: mmap
  temp_dir: /var/tmp
export:
  projection: 3857
metrics_interval: 10s
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.PBF.BlockSize)
	assert.True(t, cfg.PBF.DenseNodes)
	assert.True(t, cfg.PBF.Compression, "unset keys keep their defaults")
	require.NotNil(t, cfg.PBF.BBox)
	assert.True(t, cfg.PBF.BBox.IsSet)
	assert.Equal(t, 52.7, cfg.PBF.BBox.MaxLat)
	assert.Equal(t, BackingMmap, cfg.Index.Backing)
	assert.Equal(t, "/var/tmp", cfg.Index.TempDir)
	assert.Equal(t, int64(5), cfg.Index.EstimatedSize)
	assert.Equal(t, 3857, cfg.Export.Projection)
	assert.Equal(t, 10*time.Second, cfg.MetricsInterval)
}

func TestLoadFileInvalid(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("index:\n  backing: tape\n"), 0644))
	_, err = LoadFile(bad)
	assert.ErrorContains(t, err, "index backing")

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("pbf: [unclosed"), 0644))
	_, err = LoadFile(broken)
	assert.ErrorContains(t, err, "failed to parse config YAML")
}
