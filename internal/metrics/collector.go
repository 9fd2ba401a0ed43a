package metrics

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// SystemMetrics holds a snapshot of system and process metrics.
type SystemMetrics struct {
	CPUPercent        float64 // system-wide CPU usage (0-100%)
	ProcessCPUPercent float64 // can exceed 100% on multi-core
	ProcessRSSGB      float64 // resident set of this process; mmap'd arrays show up here
	IOWaitPercent     float64
	MemoryUsedGB      float64
	MemoryTotalGB     float64
	MemoryPercent     float64
	DiskReadMBps      float64
	DiskWriteMBps     float64
	DiskBusyPercent   float64
	Work              map[string]int64 // values of registered gauges
	Timestamp         time.Time
}

// Gauge reports a work counter, such as objects decoded or index pairs
// allocated. It is called from the collector goroutine and must be safe
// for concurrent use.
type Gauge func() int64

// Collector periodically collects and logs system metrics
type Collector struct {
	interval time.Duration
	logger   *zap.Logger
	proc     *process.Process

	lastDiskStats map[string]disk.IOCountersStat
	lastDiskTime  time.Time
	lastCPUTimes  cpu.TimesStat
	hasCPUTimes   bool

	mu          sync.RWMutex
	gauges      map[string]Gauge
	lastMetrics *SystemMetrics
}

// NewCollector creates a new metrics collector. Intervals below one
// second fall back to 30s.
func NewCollector(interval time.Duration, logger *zap.Logger) *Collector {
	if interval < time.Second {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	proc, _ := process.NewProcess(int32(os.Getpid()))

	return &Collector{
		interval: interval,
		logger:   logger,
		proc:     proc,
		gauges:   make(map[string]Gauge),
	}
}

// Register adds a named work gauge that is sampled with every collection.
// Registering the same name again replaces the gauge.
func (c *Collector) Register(name string, g Gauge) {
	c.mu.Lock()
	c.gauges[name] = g
	c.mu.Unlock()
}

// Start begins periodic metrics collection. Returns when context is cancelled.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// first sample initializes the disk and CPU baselines
	c.Collect()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Metrics collection stopped")
			return
		case <-ticker.C:
			c.Collect()
		}
	}
}

// GetMetrics returns the last collected metrics
func (c *Collector) GetMetrics() *SystemMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastMetrics
}

// Collect gathers one snapshot, stores it and logs it.
func (c *Collector) Collect() *SystemMetrics {
	metrics := &SystemMetrics{
		Timestamp: time.Now(),
	}

	if cpuPercent, err := cpu.Percent(0, false); err == nil && len(cpuPercent) > 0 {
		metrics.CPUPercent = cpuPercent[0]
	}

	if c.proc != nil {
		if procCPU, err := c.proc.Percent(0); err == nil {
			metrics.ProcessCPUPercent = procCPU
		}
		if info, err := c.proc.MemoryInfo(); err == nil {
			metrics.ProcessRSSGB = toGB(info.RSS)
		}
	}

	metrics.IOWaitPercent = c.calculateIOWait()

	if vmem, err := mem.VirtualMemory(); err == nil {
		metrics.MemoryPercent = vmem.UsedPercent
		metrics.MemoryUsedGB = toGB(vmem.Used)
		metrics.MemoryTotalGB = toGB(vmem.Total)
	}

	metrics.DiskReadMBps, metrics.DiskWriteMBps, metrics.DiskBusyPercent = c.calculateDiskMetrics()

	c.mu.Lock()
	metrics.Work = make(map[string]int64, len(c.gauges))
	for name, g := range c.gauges {
		metrics.Work[name] = g()
	}
	c.lastMetrics = metrics
	c.mu.Unlock()

	fields := []zap.Field{
		zap.Float64("sys_cpu", metrics.CPUPercent),
		zap.Float64("proc_cpu", metrics.ProcessCPUPercent),
		zap.String("proc_rss", formatGB(metrics.ProcessRSSGB)),
		zap.Float64("iowait", metrics.IOWaitPercent),
		zap.Float64("mem_pct", metrics.MemoryPercent),
		zap.String("mem_used", formatGB(metrics.MemoryUsedGB)),
		zap.String("disk_r", formatMBps(metrics.DiskReadMBps)),
		zap.String("disk_w", formatMBps(metrics.DiskWriteMBps)),
		zap.Float64("disk_busy", metrics.DiskBusyPercent),
	}
	names := make([]string, 0, len(metrics.Work))
	for name := range metrics.Work {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fields = append(fields, zap.Int64(name, metrics.Work[name]))
	}
	c.logger.Info("System metrics", fields...)

	return metrics
}

// calculateIOWait calculates the I/O wait percentage from CPU times
func (c *Collector) calculateIOWait() float64 {
	times, err := cpu.Times(false)
	if err != nil || len(times) == 0 {
		return 0
	}

	current := times[0]
	if !c.hasCPUTimes {
		c.lastCPUTimes = current
		c.hasCPUTimes = true
		return 0
	}

	last := c.lastCPUTimes
	totalDelta := (current.User - last.User) +
		(current.System - last.System) +
		(current.Idle - last.Idle) +
		(current.Iowait - last.Iowait) +
		(current.Irq - last.Irq) +
		(current.Softirq - last.Softirq) +
		(current.Steal - last.Steal)
	iowaitDelta := current.Iowait - last.Iowait
	c.lastCPUTimes = current

	if totalDelta <= 0 {
		return 0
	}
	return (iowaitDelta / totalDelta) * 100
}

// calculateDiskMetrics calculates disk read/write rates and busy percentage
func (c *Collector) calculateDiskMetrics() (readMBps, writeMBps, busyPct float64) {
	counters, err := disk.IOCounters()
	if err != nil {
		return 0, 0, 0
	}

	now := time.Now()
	if c.lastDiskStats == nil {
		c.lastDiskStats = counters
		c.lastDiskTime = now
		return 0, 0, 0
	}

	elapsed := now.Sub(c.lastDiskTime).Seconds()
	if elapsed < 0.1 {
		return 0, 0, 0
	}

	var readDelta, writeDelta, ioTimeDelta uint64
	for name, counter := range counters {
		last, ok := c.lastDiskStats[name]
		if !ok {
			continue
		}
		// counters can wrap
		if counter.ReadBytes >= last.ReadBytes {
			readDelta += counter.ReadBytes - last.ReadBytes
		}
		if counter.WriteBytes >= last.WriteBytes {
			writeDelta += counter.WriteBytes - last.WriteBytes
		}
		if counter.IoTime >= last.IoTime {
			ioTimeDelta += counter.IoTime - last.IoTime // ms
		}
	}
	c.lastDiskStats = counters
	c.lastDiskTime = now

	readMBps = float64(readDelta) / elapsed / (1024 * 1024)
	writeMBps = float64(writeDelta) / elapsed / (1024 * 1024)
	busyPct = float64(ioTimeDelta) / (elapsed * 1000) * 100
	if busyPct > 100 {
		busyPct = 100
	}
	return readMBps, writeMBps, busyPct
}

func toGB(b uint64) float64 {
	return float64(b) / (1024 * 1024 * 1024)
}

func formatGB(gb float64) string {
	return fmt.Sprintf("%.1f GB", gb)
}

func formatMBps(mbps float64) string {
	return fmt.Sprintf("%.1f MB/s", mbps)
}
