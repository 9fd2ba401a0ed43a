package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/paulmach/osm"
	"go.uber.org/zap"

	"github.com/wegman-software/osmhuge/internal/config"
	"github.com/wegman-software/osmhuge/internal/pbf"
	"github.com/wegman-software/osmhuge/internal/progress"
	"github.com/wegman-software/osmhuge/internal/replication"
)

// Converter re-encodes a PBF file with the configured block layout,
// compression and type filters.
type Converter struct {
	cfg   *config.Config
	log   *zap.Logger
	stats Stats
}

// NewConverter creates a converter. A nil logger discards output.
func NewConverter(cfg *config.Config, log *zap.Logger) *Converter {
	return &Converter{cfg: cfg, log: orNop(log)}
}

// Stats returns the live counters of the converter.
func (c *Converter) Stats() *Stats {
	return &c.stats
}

// headerOptions carries bounds and replication fields of the input header
// over to the output, unless the configuration overrides them.
func headerOptions(cfg *config.Config, h *pbf.HeaderBlock) ([]pbf.Option, error) {
	var opts []pbf.Option
	if cfg.PBF.BBox.Bounds() == nil && h.Bounds != nil {
		opts = append(opts, pbf.WithBounds(h.Bounds))
	}
	if h.Source != "" {
		opts = append(opts, pbf.WithHeaderSource(h.Source))
	}

	repl := pbf.Replication{
		Timestamp: h.ReplicationTimestamp,
		Sequence:  h.ReplicationSequence,
		BaseURL:   h.ReplicationBaseURL,
	}
	if cfg.PBF.ReplicationState != "" {
		state, err := replication.ParseStateFile(cfg.PBF.ReplicationState)
		if err != nil {
			return nil, err
		}
		repl = state.Header(repl.BaseURL)
	}
	if cfg.PBF.ReplicationSource != "" {
		rs, err := replication.ParseSource(cfg.PBF.ReplicationSource)
		if err != nil {
			return nil, err
		}
		repl.BaseURL = rs.BaseURL
	}
	return append(opts, pbf.WithReplication(repl)), nil
}

// Run reads input and writes output. A partially written output is removed
// on failure.
func (c *Converter) Run(ctx context.Context, input, output string) (err error) {
	in, size, err := openInput(input)
	if err != nil {
		return err
	}
	defer in.Close()

	src, err := pbf.NewSource(in, sourceOptions(c.cfg, c.log)...)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", input, err)
	}
	defer src.Close()

	out, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(output)
		}
	}()

	bw := bufio.NewWriterSize(out, 1<<20)
	header, err := headerOptions(c.cfg, src.Header())
	if err != nil {
		return err
	}
	dst, err := pbf.NewTarget(bw, append(targetOptions(c.cfg, c.log), header...)...)
	if err != nil {
		return err
	}

	tracker := progress.NewTracker(size, "Converting")
	stop := progress.Report(ctx, tracker, c.log, 5*time.Second)
	defer stop()

	start := time.Now()
	var n int64
	for src.MoveNext() {
		n++
		if err := checkCancel(ctx, n); err != nil {
			return errors.Join(err, dst.Close())
		}

		obj := src.Current()
		switch obj.(type) {
		case *osm.Node:
			c.stats.Nodes.Add(1)
		case *osm.Way:
			c.stats.Ways.Add(1)
		case *osm.Relation:
			c.stats.Relations.Add(1)
		}
		if err := dst.Add(obj); err != nil {
			return fmt.Errorf("failed to write object %v: %w", obj.ObjectID(), err)
		}
		c.stats.Stored.Add(1)
		c.stats.BytesRead.Store(src.BytesRead())
		c.stats.BytesWritten.Store(dst.BytesWritten())
		tracker.Update(n, src.BytesRead())
	}
	if err := src.Err(); err != nil {
		return errors.Join(fmt.Errorf("failed to read %s: %w", input, err), dst.Close())
	}
	if err := dst.Close(); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}
	c.stats.BytesWritten.Store(dst.BytesWritten())

	c.log.Info("Conversion complete",
		zap.Int64("nodes", c.stats.Nodes.Load()),
		zap.Int64("ways", c.stats.Ways.Load()),
		zap.Int64("relations", c.stats.Relations.Load()),
		zap.String("read", progress.FormatBytes(src.BytesRead())),
		zap.String("written", progress.FormatBytes(dst.BytesWritten())),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return nil
}
