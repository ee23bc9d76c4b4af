package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector backs FileSystem.Metrics() (spec.md §4.14): per-operation
// {count, successCount, failureCount, totalTimeMs, maxTimeMs} plus
// totalBytesRead/totalBytesWritten, exposed as a prometheus.Registry so a
// host that wants to serve /metrics can mount promhttp itself — PicoFS has
// no HTTP surface of its own (SPEC_FULL.md §6: "serving metrics over HTTP
// is a host/outer-shell concern").
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry

	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesCounter      *prometheus.CounterVec

	operations       map[string]*OperationMetrics
	totalBytesRead    int64
	totalBytesWritten int64
	lastReset         time.Time
}

// Config represents metrics configuration.
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// OperationMetrics tracks spec.md §4.14's per-operation counters for one
// named operation (createFile, createDir, delete, readDir, stat, open,
// readAll, writeAll, copy, move, mount, unmount, sync, setPermissions).
type OperationMetrics struct {
	Count         int64
	SuccessCount  int64
	FailureCount  int64
	TotalTimeMs   int64
	MaxTimeMs     int64
}

// NewCollector creates a metrics collector. A nil config uses defaults
// with Prometheus enabled under the "picofs" namespace.
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = &Config{Enabled: true, Namespace: "picofs"}
	}

	if !config.Enabled {
		return &Collector{config: config, operations: make(map[string]*OperationMetrics), lastReset: time.Now()}, nil
	}

	registry := prometheus.NewRegistry()
	c := &Collector{
		config:     config,
		registry:   registry,
		operations: make(map[string]*OperationMetrics),
		lastReset:  time.Now(),
	}
	if err := c.initMetrics(); err != nil {
		return nil, err
	}
	if err := c.registerMetrics(); err != nil {
		return nil, err
	}
	return c, nil
}

// Registry exposes the underlying Prometheus registry so a host can mount
// promhttp.HandlerFor(registry, ...) at whatever path it chooses.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) initMetrics() error {
	c.operationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "operations_total",
			Help:      "Total number of filesystem operations by status",
		},
		[]string{"operation", "status"},
	)
	c.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "operation_duration_seconds",
			Help:      "Duration of filesystem operations in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 18),
		},
		[]string{"operation"},
	)
	c.bytesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "bytes_total",
			Help:      "Total bytes read or written",
		},
		[]string{"direction"},
	)
	return nil
}

func (c *Collector) registerMetrics() error {
	for _, m := range []prometheus.Collector{c.operationCounter, c.operationDuration, c.bytesCounter} {
		if err := c.registry.Register(m); err != nil {
			return err
		}
	}
	return nil
}

// RecordOperation records one completed operation's duration, success, and
// any bytes it moved. direction is "read", "write", or "" for operations
// that move no bytes.
func (c *Collector) RecordOperation(operation string, duration time.Duration, bytes int64, direction string, success bool) {
	if c.config == nil || !c.config.Enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ms := duration.Milliseconds()
	m, ok := c.operations[operation]
	if !ok {
		m = &OperationMetrics{}
		c.operations[operation] = m
	}
	m.Count++
	m.TotalTimeMs += ms
	if ms > m.MaxTimeMs {
		m.MaxTimeMs = ms
	}
	if success {
		m.SuccessCount++
	} else {
		m.FailureCount++
	}

	switch direction {
	case "read":
		c.totalBytesRead += bytes
	case "write":
		c.totalBytesWritten += bytes
	}

	status := "success"
	if !success {
		status = "error"
	}
	c.operationCounter.With(prometheus.Labels{"operation": operation, "status": status}).Inc()
	c.operationDuration.With(prometheus.Labels{"operation": operation}).Observe(duration.Seconds())
	if bytes > 0 && direction != "" {
		c.bytesCounter.With(prometheus.Labels{"direction": direction}).Add(float64(bytes))
	}
}

// Snapshot is the spec.md §4.14 read view: one OperationMetrics per
// recorded operation name, plus the two running byte totals.
type Snapshot struct {
	Operations        map[string]OperationMetrics
	TotalBytesRead    int64
	TotalBytesWritten int64
	LastReset         time.Time
}

// Snapshot returns the current metrics without mutating them.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ops := make(map[string]OperationMetrics, len(c.operations))
	for name, m := range c.operations {
		ops[name] = *m
	}
	return Snapshot{
		Operations:        ops,
		TotalBytesRead:    c.totalBytesRead,
		TotalBytesWritten: c.totalBytesWritten,
		LastReset:         c.lastReset,
	}
}

// Reset zeros every counter (spec.md §4.14: "resetMetrics zeros them").
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.operations = make(map[string]*OperationMetrics)
	c.totalBytesRead = 0
	c.totalBytesWritten = 0
	c.lastReset = time.Now()
}
