package progress

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is how often Ticker fires when no interval is given.
const DefaultInterval = 500 * time.Millisecond

// Tracker tracks progress of a pass over an input of known size.
// Counters are atomic so a reader loop can update them while a ticker
// goroutine reports.
type Tracker struct {
	totalBytes  int64
	startTime   time.Time
	description string

	count atomic.Int64
	bytes atomic.Int64
}

// NewTracker creates a new progress tracker. totalBytes may be 0 when the
// input size is unknown; no percentage or ETA is reported then.
func NewTracker(totalBytes int64, description string) *Tracker {
	return &Tracker{
		totalBytes:  totalBytes,
		startTime:   time.Now(),
		description: description,
	}
}

// Progress holds current progress information
type Progress struct {
	Current     int64
	Total       int64
	Percentage  float64
	Elapsed     time.Duration
	ETA         time.Duration
	Throughput  float64 // items per second
	Description string
}

// Update records the number of items handled and the bytes consumed so far.
func (t *Tracker) Update(count, bytesProcessed int64) {
	t.count.Store(count)
	t.bytes.Store(bytesProcessed)
}

// Add increments the item count by n.
func (t *Tracker) Add(n int64) {
	t.count.Add(n)
}

// SetBytes records the bytes consumed so far.
func (t *Tracker) SetBytes(b int64) {
	t.bytes.Store(b)
}

// Count returns the number of items recorded so far.
func (t *Tracker) Count() int64 {
	return t.count.Load()
}

// Snapshot returns progress for the current counters.
func (t *Tracker) Snapshot() Progress {
	return t.Calculate(t.count.Load(), t.bytes.Load())
}

// Calculate returns progress metrics for the given count and bytes processed
func (t *Tracker) Calculate(currentCount int64, bytesProcessed int64) Progress {
	elapsed := time.Since(t.startTime)

	var percentage float64
	var eta time.Duration

	if t.totalBytes > 0 && bytesProcessed > 0 {
		percentage = float64(bytesProcessed) / float64(t.totalBytes) * 100
		if percentage > 100 {
			percentage = 100
		}
		if percentage < 100 && elapsed > 0 {
			bytesPerSecond := float64(bytesProcessed) / elapsed.Seconds()
			remaining := t.totalBytes - bytesProcessed
			if bytesPerSecond > 0 {
				eta = time.Duration(float64(remaining) / bytesPerSecond * float64(time.Second))
			}
		}
	}

	var throughput float64
	if elapsed.Seconds() > 0 {
		throughput = float64(currentCount) / elapsed.Seconds()
	}

	return Progress{
		Current:     currentCount,
		Total:       t.totalBytes,
		Percentage:  percentage,
		Elapsed:     elapsed.Round(time.Second),
		ETA:         eta.Round(time.Second),
		Throughput:  throughput,
		Description: t.description,
	}
}

// Log writes the current progress as one structured log line.
func (t *Tracker) Log(logger *zap.Logger) {
	p := t.Snapshot()
	logger.Info(p.Description,
		zap.Int64("count", p.Current),
		zap.String("done", fmt.Sprintf("%.1f%%", p.Percentage)),
		zap.String("rate", FormatThroughput(p.Throughput)),
		zap.String("elapsed", p.Elapsed.String()),
		zap.String("eta", FormatETA(p.ETA)),
	)
}

// Ticker calls a function periodically until its context is done
type Ticker struct {
	ctx      context.Context
	callback func()
	interval time.Duration
}

// NewTicker creates a ticker firing every interval, or DefaultInterval
// when interval is not positive.
func NewTicker(ctx context.Context, interval time.Duration, callback func()) *Ticker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Ticker{
		ctx:      ctx,
		callback: callback,
		interval: interval,
	}
}

// Run blocks until the context is cancelled.
func (p *Ticker) Run() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.callback()
		}
	}
}

// Report logs t every interval until the returned stop function is called.
// stop logs a final line and waits for the ticker goroutine to exit.
func Report(ctx context.Context, t *Tracker, logger *zap.Logger, interval time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewTicker(ctx, interval, func() { t.Log(logger) }).Run()
	}()
	return func() {
		cancel()
		<-done
		t.Log(logger)
	}
}

// FormatETA formats the ETA duration in a human-readable format
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "calculating..."
	}

	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// FormatThroughput formats throughput as human-readable items per second
func FormatThroughput(itemsPerSec float64) string {
	if itemsPerSec >= 1_000_000 {
		return fmt.Sprintf("%.1fM/s", itemsPerSec/1_000_000)
	}
	if itemsPerSec >= 1_000 {
		return fmt.Sprintf("%.1fK/s", itemsPerSec/1_000)
	}
	return fmt.Sprintf("%.0f/s", itemsPerSec)
}

// FormatBytes formats bytes in a human-readable format
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
