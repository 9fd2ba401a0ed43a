package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/osmhuge/internal/config"
	"github.com/wegman-software/osmhuge/internal/logger"
	"github.com/wegman-software/osmhuge/internal/metrics"
	"github.com/wegman-software/osmhuge/internal/pipeline"
)

var (
	cfg        = config.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "osmhuge",
	Short: "OSM PBF codec and huge coordinate index tools",
	Long: `osmhuge reads and writes OpenStreetMap PBF files and builds coordinate
indexes for datasets larger than memory.

Features:
  - Streaming PBF decoding and encoding (dense or plain nodes, zlib or raw)
  - Two-pass way coordinate index backed by heap or memory-mapped files
  - Serialized indexes that can be inspected or reopened without copying
  - Way geometry export to Parquet as WKB`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			if err := loadConfig(cmd.Flags(), configFile); err != nil {
				return err
			}
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		logger.Init(logger.Options{Debug: cfg.Verbose, File: cfg.LogFile})
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML configuration file; flags override its values")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Enable verbose output")

	// Logging and metrics flags
	rootCmd.PersistentFlags().StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Path to log file for persistent logging (JSON format)")
	rootCmd.PersistentFlags().DurationVar(&cfg.MetricsInterval, "metrics-interval", cfg.MetricsInterval, "Interval for system metrics logging (e.g., 10s, 1m); 0 disables")

	// Index storage flags are shared by index, inspect and export
	rootCmd.PersistentFlags().StringVar(&cfg.Index.Backing, "backing", cfg.Index.Backing, "Array backing: memory or mmap")
	rootCmd.PersistentFlags().StringVar(&cfg.Index.TempDir, "temp-dir", cfg.Index.TempDir, "Directory for mmap backing files")
}

// loadConfig replaces cfg with the file's values and re-applies flags set on
// the command line.
func loadConfig(flags *pflag.FlagSet, path string) error {
	changed := map[string]string{}
	flags.Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	loaded, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	*cfg = *loaded

	for name, value := range changed {
		if err := flags.Set(name, value); err != nil {
			return fmt.Errorf("failed to apply --%s: %w", name, err)
		}
	}
	return nil
}

// run executes fn with a context cancelled on SIGINT/SIGTERM. When metrics
// are enabled a collector runs next to fn and reports stats.
func run(stats *pipeline.Stats, fn func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.Get()
	g, gctx := errgroup.WithContext(ctx)
	metricsCtx, cancelMetrics := context.WithCancel(gctx)
	defer cancelMetrics()

	if cfg.MetricsInterval > 0 {
		collector := metrics.NewCollector(cfg.MetricsInterval, log)
		stats.Register(collector)
		g.Go(func() error {
			collector.Start(metricsCtx)
			return nil
		})
		log.Info("System metrics collection started", zap.Duration("interval", cfg.MetricsInterval))
	}

	g.Go(func() error {
		defer cancelMetrics()
		return fn(gctx)
	})
	return g.Wait()
}

func exitWithError(msg string, err error) {
	log := logger.Get()
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	logger.Sync()
	os.Exit(1)
}

func throughput(bytes int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(bytes) / (1024 * 1024) / elapsed.Seconds()
}
