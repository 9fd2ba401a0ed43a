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
	"github.com/wegman-software/osmhuge/internal/nodeindex"
	"github.com/wegman-software/osmhuge/internal/pbf"
	"github.com/wegman-software/osmhuge/internal/progress"
)

// Indexer builds a way coordinate index from a PBF file in two passes over
// the same Source: nodes into a node index, then ways resolved against it.
type Indexer struct {
	cfg   *config.Config
	log   *zap.Logger
	stats Stats
}

// NewIndexer creates an indexer. A nil logger discards output.
func NewIndexer(cfg *config.Config, log *zap.Logger) *Indexer {
	return &Indexer{cfg: cfg, log: orNop(log)}
}

// Stats returns the live counters of the indexer.
func (ix *Indexer) Stats() *Stats {
	return &ix.stats
}

// Run indexes input and serializes the result to output.
func (ix *Indexer) Run(ctx context.Context, input, output string) error {
	in, size, err := openInput(input)
	if err != nil {
		return err
	}
	defer in.Close()

	src, err := pbf.NewSource(in, pbf.WithLogger(ix.log), pbf.IgnoreRelations())
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", input, err)
	}
	defer src.Close()

	nodes, err := newNodeIndex(ix.cfg)
	if err != nil {
		return err
	}
	defer nodes.Close()

	ix.log.Info("Pass 1: Building node coordinate index")
	start := time.Now()
	if err := ix.indexNodes(ctx, src, nodes, size); err != nil {
		return err
	}
	ix.log.Info("Pass 1 complete",
		zap.Int64("nodes", ix.stats.Nodes.Load()),
		zap.Int64("slots", nodes.Len()),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))

	if err := src.Reset(); err != nil {
		return err
	}

	coords, err := coordindex.New(ix.cfg.Index.ExpectedMaxID, coordOptions(ix.cfg, ix.log)...)
	if err != nil {
		return err
	}
	defer coords.Close()

	ix.log.Info("Pass 2: Resolving way coordinates")
	start = time.Now()
	if err := ix.indexWays(ctx, src, nodes, coords, size); err != nil {
		return err
	}
	ix.log.Info("Pass 2 complete",
		zap.Int64("ways", ix.stats.Ways.Load()),
		zap.Int64("stored", ix.stats.Stored.Load()),
		zap.Int64("skipped", ix.stats.Skipped.Load()),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))

	if ix.cfg.Index.Compress {
		if err := coords.Compress(); err != nil {
			return fmt.Errorf("failed to compress index: %w", err)
		}
	}
	return ix.write(coords, output)
}

func (ix *Indexer) indexNodes(ctx context.Context, src *pbf.Source, nodes *nodeindex.Index, size int64) error {
	tracker := progress.NewTracker(size, "Indexing nodes")
	stop := progress.Report(ctx, tracker, ix.log, 5*time.Second)
	defer stop()

	bbox := ix.cfg.PBF.BBox
	var n int64
	for src.MoveNextNode() {
		n++
		if err := checkCancel(ctx, n); err != nil {
			return err
		}
		node := src.Current().(*osm.Node)
		ix.stats.Nodes.Add(1)
		tracker.Update(n, src.BytesRead())
		ix.stats.BytesRead.Store(src.BytesRead())

		if !bbox.Contains(node.Lat, node.Lon) {
			ix.stats.Skipped.Add(1)
			continue
		}
		if err := nodes.Put(int64(node.ID), node.Lat, node.Lon); err != nil {
			if errors.Is(err, nodeindex.ErrNodeID) {
				ix.stats.Skipped.Add(1)
				continue
			}
			return err
		}
	}
	if err := src.Err(); err != nil {
		return fmt.Errorf("failed to read nodes: %w", err)
	}
	return nodes.Sync()
}

func (ix *Indexer) indexWays(ctx context.Context, src *pbf.Source, nodes *nodeindex.Index, coords *coordindex.Index, size int64) error {
	tracker := progress.NewTracker(size, "Indexing ways")
	stop := progress.Report(ctx, tracker, ix.log, 5*time.Second)
	defer stop()

	buf := make([]coordindex.Coordinate, 0, 2000)
	var n int64
	for src.MoveNextWay() {
		n++
		if err := checkCancel(ctx, n); err != nil {
			return err
		}
		way := src.Current().(*osm.Way)
		ix.stats.Ways.Add(1)
		tracker.Update(n, src.BytesRead())
		ix.stats.BytesRead.Store(src.BytesRead())

		buf = buf[:0]
		complete := true
		for _, wn := range way.Nodes {
			lat, lon, ok := nodes.Get(int64(wn.ID))
			if !ok {
				complete = false
				break
			}
			buf = append(buf, coordindex.Coordinate{Lat: float32(lat), Lon: float32(lon)})
		}
		if !complete || len(buf) == 0 {
			ix.stats.Skipped.Add(1)
			continue
		}

		if err := coords.Add(int64(way.ID), buf); err != nil {
			if errors.Is(err, coordindex.ErrCollectionTooLarge) {
				ix.log.Warn("Skipping oversized way", zap.Int64("way", int64(way.ID)), zap.Int("nodes", len(buf)))
				ix.stats.Skipped.Add(1)
				continue
			}
			return fmt.Errorf("failed to store way %d: %w", way.ID, err)
		}
		ix.stats.Stored.Add(1)
	}
	if err := src.Err(); err != nil {
		return fmt.Errorf("failed to read ways: %w", err)
	}
	return nil
}

func (ix *Indexer) write(coords *coordindex.Index, output string) (err error) {
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(output)
		}
	}()

	n, err := coords.Serialize(f)
	if err != nil {
		return err
	}
	ix.stats.BytesWritten.Store(n)

	ix.log.Info("Index written",
		zap.String("path", output),
		zap.Int64("entries", coords.Len()),
		zap.Int64("pairs", coords.UsedPairs()),
		zap.String("size", progress.FormatBytes(n)))
	return nil
}
