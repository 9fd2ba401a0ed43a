package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/osmhuge/internal/logger"
	"github.com/wegman-software/osmhuge/internal/pipeline"
	"github.com/wegman-software/osmhuge/internal/proj"
)

var exportProjection string

var exportCmd = &cobra.Command{
	Use:   "export <input.osm.pbf> <input.idx> <output.parquet>",
	Short: "Export way geometries to Parquet",
	Long: `Write every tagged way of a PBF file that has an entry in the coordinate
index to a Parquet file with columns:

  osm_id, osm_type, geom_type, srid, tags (JSON), geom_wkb (EWKB)

Closed ways with area tags become polygons, all others linestrings.`,
	Args: cobra.ExactArgs(3),
	Run:  runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&exportProjection, "projection", "", "Output projection: 4326 or 3857 (default from config)")
	exportCmd.Flags().IntVar(&cfg.Export.BatchSize, "batch-size", cfg.Export.BatchSize, "Rows per Parquet record batch")
}

func runExport(cmd *cobra.Command, args []string) {
	log := logger.Get()

	if exportProjection != "" {
		srid, err := proj.ParseSRID(exportProjection)
		if err != nil {
			exitWithError("invalid projection", err)
		}
		cfg.Export.Projection = srid
	}

	log.Info("Starting export",
		zap.String("input", args[0]),
		zap.String("index", args[1]),
		zap.String("output", args[2]),
		zap.Int("srid", cfg.Export.Projection),
	)

	start := time.Now()
	exp := pipeline.NewExporter(cfg, log)
	err := run(exp.Stats(), func(ctx context.Context) error {
		return exp.Run(ctx, args[0], args[1], args[2])
	})
	if err != nil {
		exitWithError("export failed", err)
	}

	log.Info("Export finished",
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)),
		zap.Int64("rows", exp.Stats().Stored.Load()),
	)
}
