package pipeline

import (
	"sync/atomic"

	"github.com/wegman-software/osmhuge/internal/metrics"
)

// Stats holds counters for one run. They are updated by the run and may be
// read concurrently, for example by the metrics collector.
type Stats struct {
	Nodes     atomic.Int64
	Ways      atomic.Int64
	Relations atomic.Int64

	// Stored counts collections written to the coordinate index or rows
	// written to the export.
	Stored atomic.Int64
	// Skipped counts objects dropped for missing or invalid input.
	Skipped atomic.Int64

	BytesRead    atomic.Int64
	BytesWritten atomic.Int64
}

// Register exposes the counters as work gauges on c.
func (s *Stats) Register(c *metrics.Collector) {
	c.Register("nodes", s.Nodes.Load)
	c.Register("ways", s.Ways.Load)
	c.Register("relations", s.Relations.Load)
	c.Register("stored", s.Stored.Load)
	c.Register("skipped", s.Skipped.Load)
	c.Register("bytes_read", s.BytesRead.Load)
	c.Register("bytes_written", s.BytesWritten.Load)
}
