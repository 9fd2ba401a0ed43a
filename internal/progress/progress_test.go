package progress

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestCalculate(t *testing.T) {
	tr := NewTracker(1000, "nodes")
	tr.startTime = time.Now().Add(-10 * time.Second)

	p := tr.Calculate(500, 250)
	assert.Equal(t, int64(500), p.Current)
	assert.Equal(t, int64(1000), p.Total)
	assert.InDelta(t, 25.0, p.Percentage, 0.001)
	assert.InDelta(t, 50.0, p.Throughput, 1.0)
	assert.InDelta(t, 30*time.Second, p.ETA, float64(time.Second))
	assert.Equal(t, "nodes", p.Description)

	p = tr.Calculate(500, 2000)
	assert.Equal(t, 100.0, p.Percentage)
	assert.Zero(t, p.ETA)
}

func TestCalculateUnknownTotal(t *testing.T) {
	tr := NewTracker(0, "ways")
	p := tr.Calculate(10, 10)
	assert.Zero(t, p.Percentage)
	assert.Zero(t, p.ETA)
}

func TestTrackerCounters(t *testing.T) {
	tr := NewTracker(100, "blocks")
	tr.Add(3)
	tr.Add(4)
	tr.SetBytes(50)
	assert.Equal(t, int64(7), tr.Count())

	p := tr.Snapshot()
	assert.Equal(t, int64(7), p.Current)
	assert.InDelta(t, 50.0, p.Percentage, 0.001)

	tr.Update(1, 100)
	assert.Equal(t, int64(1), tr.Count())
}

func TestFormatETA(t *testing.T) {
	assert.Equal(t, "calculating...", FormatETA(0))
	assert.Equal(t, "42s", FormatETA(42*time.Second))
	assert.Equal(t, "3m 5s", FormatETA(3*time.Minute+5*time.Second))
	assert.Equal(t, "2h 0m 1s", FormatETA(2*time.Hour+time.Second))
}

func TestFormatThroughput(t *testing.T) {
	assert.Equal(t, "12/s", FormatThroughput(12))
	assert.Equal(t, "1.5K/s", FormatThroughput(1500))
	assert.Equal(t, "2.0M/s", FormatThroughput(2_000_000))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "1.0 MB", FormatBytes(1<<20))
	assert.Equal(t, "3.0 GB", FormatBytes(3<<30))
}

func TestTickerRunsUntilCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	tk := NewTicker(ctx, 5*time.Millisecond, func() { calls.Add(1) })

	done := make(chan struct{})
	go func() {
		tk.Run()
		close(done)
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 2*time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestNewTickerDefaultInterval(t *testing.T) {
	tk := NewTicker(context.Background(), 0, func() {})
	assert.Equal(t, DefaultInterval, tk.interval)
}

func TestReportLogsFinalLine(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	tr := NewTracker(10, "relations")
	tr.Add(9)

	stop := Report(context.Background(), tr, zap.New(core), time.Hour)
	stop()

	entries := logs.FilterMessage("relations").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(9), entries[0].ContextMap()["count"])
}
