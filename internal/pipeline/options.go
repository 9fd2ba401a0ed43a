package pipeline

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/wegman-software/osmhuge/internal/config"
	"github.com/wegman-software/osmhuge/internal/coordindex"
	"github.com/wegman-software/osmhuge/internal/nodeindex"
	"github.com/wegman-software/osmhuge/internal/pbf"
)

// cancelCheckInterval is how many objects are handled between context checks.
const cancelCheckInterval = 4096

func sourceOptions(cfg *config.Config, log *zap.Logger, extra ...pbf.Option) []pbf.Option {
	opts := []pbf.Option{pbf.WithLogger(log)}
	if cfg.PBF.SkipNodes {
		opts = append(opts, pbf.IgnoreNodes())
	}
	if cfg.PBF.SkipWays {
		opts = append(opts, pbf.IgnoreWays())
	}
	if cfg.PBF.SkipRelations {
		opts = append(opts, pbf.IgnoreRelations())
	}
	return append(opts, extra...)
}

func targetOptions(cfg *config.Config, log *zap.Logger) []pbf.Option {
	opts := []pbf.Option{
		pbf.WithLogger(log),
		pbf.WithBlockSize(cfg.PBF.BlockSize),
		pbf.WithCompression(cfg.PBF.Compression),
		pbf.WithCompressionLevel(cfg.PBF.CompressionLevel),
		pbf.WithDenseNodes(cfg.PBF.DenseNodes),
		pbf.WithGranularity(cfg.PBF.Granularity),
		pbf.WithDateGranularity(cfg.PBF.DateGranularity),
	}
	if b := cfg.PBF.BBox.Bounds(); b != nil {
		opts = append(opts, pbf.WithBounds(b))
	}
	return opts
}

func coordOptions(cfg *config.Config, log *zap.Logger) []coordindex.Option {
	opts := []coordindex.Option{
		coordindex.WithEstimatedSize(cfg.Index.EstimatedSize),
		coordindex.WithGrowthChunk(cfg.Index.GrowthChunk),
		coordindex.WithLogger(log),
	}
	if cfg.Index.Backing == config.BackingMmap {
		opts = append(opts, coordindex.WithAllocator(coordindex.MmapAllocator{Dir: cfg.Index.TempDir}))
	}
	return opts
}

func newNodeIndex(cfg *config.Config) (*nodeindex.Index, error) {
	var (
		idx *nodeindex.Index
		err error
	)
	if cfg.Index.Backing == config.BackingMmap {
		idx, err = nodeindex.NewTempMmap(cfg.Index.TempDir, cfg.Index.ExpectedMaxID)
	} else {
		idx = nodeindex.NewMemory(cfg.Index.ExpectedMaxID)
	}
	if err != nil {
		return nil, err
	}
	idx.SetGrowthChunk(cfg.Index.GrowthChunk)
	return idx, nil
}

// openInput opens a PBF file and returns it with its size.
func openInput(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open input: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("failed to stat input: %w", err)
	}
	return f, info.Size(), nil
}

// checkCancel returns ctx.Err() for the first object and every
// cancelCheckInterval objects after it. n counts from 1.
func checkCancel(ctx context.Context, n int64) error {
	if (n-1)%cancelCheckInterval != 0 {
		return nil
	}
	return ctx.Err()
}

func orNop(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
