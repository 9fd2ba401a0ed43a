package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/osm"
	"gopkg.in/yaml.v3"
)

// BBox represents a geographic bounding box
type BBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
	IsSet                          bool
}

// Contains checks if a point is within the bounding box
func (b *BBox) Contains(lat, lon float64) bool {
	if b == nil || !b.IsSet {
		return true
	}
	return lon >= b.MinLon && lon <= b.MaxLon && lat >= b.MinLat && lat <= b.MaxLat
}

// Bounds converts the box for a PBF header. Unset boxes return nil.
func (b *BBox) Bounds() *osm.Bounds {
	if b == nil || !b.IsSet {
		return nil
	}
	return &osm.Bounds{MinLat: b.MinLat, MaxLat: b.MaxLat, MinLon: b.MinLon, MaxLon: b.MaxLon}
}

// UnmarshalYAML reads a box written as "minlon,minlat,maxlon,maxlat".
func (b *BBox) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseBBox(s)
	if err != nil {
		return err
	}
	*b = *parsed
	return nil
}

// ParseBBox parses a bbox string in format "minlon,minlat,maxlon,maxlat"
func ParseBBox(s string) (*BBox, error) {
	if s == "" {
		return &BBox{IsSet: false}, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bbox must have 4 values: minlon,minlat,maxlon,maxlat")
	}

	var coords [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bbox coordinate %q: %w", p, err)
		}
		coords[i] = v
	}

	bbox := &BBox{
		MinLon: coords[0],
		MinLat: coords[1],
		MaxLon: coords[2],
		MaxLat: coords[3],
		IsSet:  true,
	}
	if bbox.MinLon > bbox.MaxLon {
		return nil, fmt.Errorf("minlon (%f) must be <= maxlon (%f)", bbox.MinLon, bbox.MaxLon)
	}
	if bbox.MinLat > bbox.MaxLat {
		return nil, fmt.Errorf("minlat (%f) must be <= maxlat (%f)", bbox.MinLat, bbox.MaxLat)
	}
	return bbox, nil
}

// Backing names where the coordinate index keeps its arrays.
const (
	BackingMemory = "memory"
	BackingMmap   = "mmap"
)

// PBFConfig controls how PBF files are written and read.
type PBFConfig struct {
	BlockSize        int   `yaml:"block_size"`
	Compression      bool  `yaml:"compression"`
	CompressionLevel int   `yaml:"compression_level"`
	DenseNodes       bool  `yaml:"dense_nodes"`
	Granularity      int32 `yaml:"granularity"`
	DateGranularity  int32 `yaml:"date_granularity"`

	SkipNodes     bool  `yaml:"skip_nodes"`
	SkipWays      bool  `yaml:"skip_ways"`
	SkipRelations bool  `yaml:"skip_relations"`
	BBox          *BBox `yaml:"bbox"`

	// ReplicationState is a state.txt whose sequence and timestamp are
	// written into converted headers. ReplicationSource names the stream.
	ReplicationState  string `yaml:"replication_state"`
	ReplicationSource string `yaml:"replication_source"`
}

// IndexConfig controls the node and way coordinate stores.
type IndexConfig struct {
	Backing       string `yaml:"backing"`
	TempDir       string `yaml:"temp_dir"`
	ExpectedMaxID int64  `yaml:"expected_max_id"`
	EstimatedSize int64  `yaml:"estimated_size"`
	GrowthChunk   int64  `yaml:"growth_chunk"`
	Compress      bool   `yaml:"compress"`
}

// ExportConfig controls the parquet export.
type ExportConfig struct {
	Projection int `yaml:"projection"` // target SRID, 4326 or 3857
	BatchSize  int `yaml:"batch_size"`
}

// Config holds the global configuration. Files loaded with LoadFile
// override the defaults; command-line flags override both.
type Config struct {
	PBF    PBFConfig    `yaml:"pbf"`
	Index  IndexConfig  `yaml:"index"`
	Export ExportConfig `yaml:"export"`

	// Logging and metrics
	Verbose         bool          `yaml:"verbose"`
	LogFile         string        `yaml:"log_file"`         // empty = no file logging
	MetricsInterval time.Duration `yaml:"metrics_interval"` // 0 disables metrics
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		PBF: PBFConfig{
			BlockSize:        8000,
			Compression:      true,
			CompressionLevel: 6,
			Granularity:      100,
			DateGranularity:  1000,
			BBox:             &BBox{},
		},
		Index: IndexConfig{
			Backing:       BackingMemory,
			ExpectedMaxID: 1 << 20,
			EstimatedSize: 5,
			GrowthChunk:   1 << 20,
			Compress:      true,
		},
		Export: ExportConfig{
			Projection: 4326,
			BatchSize:  10000,
		},
		MetricsInterval: 30 * time.Second,
	}
}

// LoadFile reads a YAML configuration on top of DefaultConfig.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.PBF.BlockSize < 1 {
		return fmt.Errorf("block size must be at least 1")
	}
	if c.PBF.Granularity < 1 || c.PBF.DateGranularity < 1 {
		return fmt.Errorf("granularity and date granularity must be positive")
	}
	if c.PBF.CompressionLevel < -2 || c.PBF.CompressionLevel > 9 {
		return fmt.Errorf("compression level must be between -2 and 9")
	}
	switch c.Index.Backing {
	case BackingMemory, BackingMmap:
	default:
		return fmt.Errorf("index backing must be %q or %q, got %q", BackingMemory, BackingMmap, c.Index.Backing)
	}
	if c.Index.ExpectedMaxID < 0 {
		return fmt.Errorf("expected max id must not be negative")
	}
	if c.Index.EstimatedSize < 1 || c.Index.GrowthChunk < 1 {
		return fmt.Errorf("estimated size and growth chunk must be positive")
	}
	if c.Export.Projection != 4326 && c.Export.Projection != 3857 {
		return fmt.Errorf("projection must be 4326 or 3857")
	}
	if c.Export.BatchSize < 1 {
		return fmt.Errorf("export batch size must be at least 1")
	}
	return nil
}
