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

var convertBBox string

var convertCmd = &cobra.Command{
	Use:   "convert <input.osm.pbf> <output.osm.pbf>",
	Short: "Re-encode a PBF file",
	Long: `Read a PBF file and write its objects to a new PBF file.

Block size, dense node encoding, compression and coordinate granularity
of the output are configurable. Object types can be dropped with the
--skip-* flags. --bbox only sets the header bounds; objects are not
clipped. Bounds and replication fields of the input header are kept
unless overridden.`,
	Args: cobra.ExactArgs(2),
	Run:  runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().IntVar(&cfg.PBF.BlockSize, "block-size", cfg.PBF.BlockSize, "Objects per primitive block")
	convertCmd.Flags().BoolVar(&cfg.PBF.Compression, "compress", cfg.PBF.Compression, "zlib-compress blobs")
	convertCmd.Flags().IntVar(&cfg.PBF.CompressionLevel, "compression-level", cfg.PBF.CompressionLevel, "zlib level (-2..9)")
	convertCmd.Flags().BoolVar(&cfg.PBF.DenseNodes, "dense", cfg.PBF.DenseNodes, "Write nodes in dense format")
	convertCmd.Flags().Int32Var(&cfg.PBF.Granularity, "granularity", cfg.PBF.Granularity, "Coordinate granularity in nanodegrees")
	convertCmd.Flags().Int32Var(&cfg.PBF.DateGranularity, "date-granularity", cfg.PBF.DateGranularity, "Timestamp granularity in milliseconds")
	convertCmd.Flags().BoolVar(&cfg.PBF.SkipNodes, "skip-nodes", false, "Drop nodes")
	convertCmd.Flags().BoolVar(&cfg.PBF.SkipWays, "skip-ways", false, "Drop ways")
	convertCmd.Flags().BoolVar(&cfg.PBF.SkipRelations, "skip-relations", false, "Drop relations")
	convertCmd.Flags().StringVar(&cfg.PBF.ReplicationState, "replication-state", "", "state.txt to record in the output header")
	convertCmd.Flags().StringVar(&cfg.PBF.ReplicationSource, "replication-source", "", "Replication stream of the output, e.g. planet-minute or geofabrik/monaco")
	convertCmd.Flags().StringVar(&convertBBox, "bbox", "", "Header bounds as minlon,minlat,maxlon,maxlat")
}

func runConvert(cmd *cobra.Command, args []string) {
	log := logger.Get()

	if convertBBox != "" {
		bbox, err := config.ParseBBox(convertBBox)
		if err != nil {
			exitWithError("invalid bbox", err)
		}
		cfg.PBF.BBox = bbox
	}

	log.Info("Starting PBF conversion",
		zap.String("input", args[0]),
		zap.String("output", args[1]),
		zap.Int("block_size", cfg.PBF.BlockSize),
		zap.Bool("dense", cfg.PBF.DenseNodes),
		zap.Bool("compress", cfg.PBF.Compression),
	)

	start := time.Now()
	conv := pipeline.NewConverter(cfg, log)
	err := run(conv.Stats(), func(ctx context.Context) error {
		return conv.Run(ctx, args[0], args[1])
	})
	if err != nil {
		exitWithError("conversion failed", err)
	}

	elapsed := time.Since(start)
	log.Info("Conversion finished",
		zap.Duration("duration", elapsed.Round(time.Millisecond)),
		zap.Float64("throughput_mb_s", throughput(conv.Stats().BytesRead.Load(), elapsed)),
	)
}
