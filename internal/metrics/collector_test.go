package metrics

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

func TestNewCollectorDefaults(t *testing.T) {
	c := NewCollector(0, nil)
	assert.Equal(t, 30*time.Second, c.interval)
	assert.NotNil(t, c.logger)
	assert.Nil(t, c.GetMetrics())
}

func TestCollectSamplesGauges(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	c := NewCollector(time.Minute, zap.New(core))

	var decoded atomic.Int64
	decoded.Store(42)
	c.Register("objects", decoded.Load)
	c.Register("pairs", func() int64 { return 7 })

	m := c.Collect()
	require.NotNil(t, m)
	assert.Equal(t, int64(42), m.Work["objects"])
	assert.Equal(t, int64(7), m.Work["pairs"])
	assert.Same(t, m, c.GetMetrics())

	entries := logs.FilterMessage("System metrics").All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, int64(42), ctx["objects"])
	assert.Contains(t, ctx, "mem_used")

	decoded.Store(100)
	c.Register("pairs", func() int64 { return 8 })
	m = c.Collect()
	assert.Equal(t, int64(100), m.Work["objects"])
	assert.Equal(t, int64(8), m.Work["pairs"])
}

func TestStartStopsOnCancel(t *testing.T) {
	c := NewCollector(time.Second, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return c.GetMetrics() != nil }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("collector did not stop")
	}
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "1.5 GB", formatGB(1.5))
	assert.Equal(t, "0.0 MB/s", formatMBps(0.01))
	assert.Equal(t, "12.3 MB/s", formatMBps(12.34))
	assert.InDelta(t, 1.0, toGB(1<<30), 1e-9)
}
