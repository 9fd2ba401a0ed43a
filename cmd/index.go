package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/osmhuge/internal/config"
	"github.com/wegman-software/osmhuge/internal/logger"
	"github.com/wegman-software/osmhuge/internal/pipeline"
)

var indexBBox string

var indexCmd = &cobra.Command{
	Use:   "index <input.osm.pbf> <output.idx>",
	Short: "Build a way coordinate index",
	Long: `Build a coordinate index of all ways in a PBF file.

Pass 1 stores every node location in a node index. The source is then
rewound and pass 2 resolves the node references of every way into a
coordinate collection. Ways with unresolved nodes are skipped. The index is
compacted and serialized to the output file.

With --bbox only nodes inside the box are indexed, so only ways fully
inside it are kept.`,
	Args: cobra.ExactArgs(2),
	Run:  runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)

	indexCmd.Flags().Int64Var(&cfg.Index.ExpectedMaxID, "expected-max-id", cfg.Index.ExpectedMaxID, "Expected highest way id, used to pre-size arrays")
	indexCmd.Flags().Int64Var(&cfg.Index.EstimatedSize, "estimated-size", cfg.Index.EstimatedSize, "Expected average number of nodes per way")
	indexCmd.Flags().Int64Var(&cfg.Index.GrowthChunk, "growth-chunk", cfg.Index.GrowthChunk, "Minimum array growth step")
	indexCmd.Flags().BoolVar(&cfg.Index.Compress, "compress", cfg.Index.Compress, "Compact the index before writing it")
	indexCmd.Flags().StringVar(&indexBBox, "bbox", "", "Only index nodes inside minlon,minlat,maxlon,maxlat")
}

func runIndex(cmd *cobra.Command, args []string) {
	log := logger.Get()

	if indexBBox != "" {
		bbox, err := config.ParseBBox(indexBBox)
		if err != nil {
			exitWithError("invalid bbox", err)
		}
		cfg.PBF.BBox = bbox
	}

	log.Info("Starting index build",
		zap.String("input", args[0]),
		zap.String("output", args[1]),
		zap.String("backing", cfg.Index.Backing),
	)

	start := time.Now()
	ix := pipeline.NewIndexer(cfg, log)
	err := run(ix.Stats(), func(ctx context.Context) error {
		return ix.Run(ctx, args[0], args[1])
	})
	if err != nil {
		exitWithError("index build failed", err)
	}

	stats := ix.Stats()
	log.Info("Index build finished",
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)),
		zap.Int64("nodes", stats.Nodes.Load()),
		zap.Int64("ways", stats.Ways.Load()),
		zap.Int64("stored", stats.Stored.Load()),
		zap.Int64("skipped", stats.Skipped.Load()),
	)
}
