package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/paulmach/osm"
	"go.uber.org/zap"

	"github.com/wegman-software/osmhuge/internal/config"
	"github.com/wegman-software/osmhuge/internal/coordindex"
	"github.com/wegman-software/osmhuge/internal/parquet"
	"github.com/wegman-software/osmhuge/internal/pbf"
	"github.com/wegman-software/osmhuge/internal/progress"
	"github.com/wegman-software/osmhuge/internal/proj"
	"github.com/wegman-software/osmhuge/internal/wkb"
)

// Exporter writes way geometries to Parquet. Tags come from the PBF file
// and coordinates from a serialized coordinate index built by Indexer.
type Exporter struct {
	cfg   *config.Config
	log   *zap.Logger
	stats Stats
}

// NewExporter creates an exporter. A nil logger discards output.
func NewExporter(cfg *config.Config, log *zap.Logger) *Exporter {
	return &Exporter{cfg: cfg, log: orNop(log)}
}

// Stats returns the live counters of the exporter.
func (e *Exporter) Stats() *Stats {
	return &e.stats
}

// OpenIndex deserializes the index file at path. With the memory backing
// the index is copied onto the heap and the file is closed right away;
// with mmap the index reads through the file, which is closed by the
// returned close function.
func OpenIndex(cfg *config.Config, log *zap.Logger, path string) (*coordindex.Index, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open index: %w", err)
	}

	copyData := cfg.Index.Backing != config.BackingMmap
	x, err := coordindex.Deserialize(f, copyData, coordOptions(cfg, orNop(log))...)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to load index %s: %w", path, err)
	}
	if copyData {
		if err := f.Close(); err != nil {
			x.Close()
			return nil, nil, err
		}
		return x, x.Close, nil
	}
	return x, func() error { return errors.Join(x.Close(), f.Close()) }, nil
}

// Run exports every tagged way of input found in the index at indexPath.
func (e *Exporter) Run(ctx context.Context, input, indexPath, output string) (err error) {
	tr, err := proj.NewTransformer(e.cfg.Export.Projection)
	if err != nil {
		return err
	}

	coords, closeIndex, err := OpenIndex(e.cfg, e.log, indexPath)
	if err != nil {
		return err
	}
	defer closeIndex()

	in, size, err := openInput(input)
	if err != nil {
		return err
	}
	defer in.Close()

	src, err := pbf.NewSource(in, pbf.WithLogger(e.log), pbf.IgnoreNodes(), pbf.IgnoreRelations())
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", input, err)
	}
	defer src.Close()

	w, err := parquet.NewGeometryWriter(output, e.cfg.Export.BatchSize)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(output)
		}
	}()

	tracker := progress.NewTracker(size, "Exporting ways")
	stop := progress.Report(ctx, tracker, e.log, 5*time.Second)
	defer stop()

	start := time.Now()
	enc := wkb.NewEncoder(1024, tr.SRID())
	flat := make([]float64, 0, 4000)
	var n int64
	for src.MoveNextWay() {
		n++
		if err := checkCancel(ctx, n); err != nil {
			return err
		}
		way := src.Current().(*osm.Way)
		e.stats.Ways.Add(1)
		e.stats.BytesRead.Store(src.BytesRead())
		tracker.Update(n, src.BytesRead())

		if !hasMeaningfulTags(way.Tags) {
			continue
		}
		c, ok := coords.Get(int64(way.ID))
		if !ok {
			e.stats.Skipped.Add(1)
			continue
		}

		flat = tr.AppendCollection(flat[:0], c)
		kind := parquet.KindLineString
		var geom []byte
		if isClosed(way) && isArea(way.Tags) {
			kind = parquet.KindPolygon
			geom, err = enc.Polygon(flat)
		} else {
			geom, err = enc.LineString(flat)
		}
		if errors.Is(err, wkb.ErrTooFewPoints) {
			e.stats.Skipped.Add(1)
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to encode way %d: %w", way.ID, err)
		}

		err = w.Write(parquet.Row{
			ID:       way.ObjectID(),
			GeomType: kind,
			SRID:     tr.SRID(),
			Tags:     way.Tags,
			WKB:      geom,
		})
		if err != nil {
			return err
		}
		e.stats.Stored.Add(1)
	}
	if err := src.Err(); err != nil {
		return fmt.Errorf("failed to read ways: %w", err)
	}

	e.log.Info("Export complete",
		zap.Int64("ways", e.stats.Ways.Load()),
		zap.Int64("rows", w.Rows()),
		zap.Int64("skipped", e.stats.Skipped.Load()),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return nil
}
