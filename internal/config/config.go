package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Configuration is PicoFS's complete runtime configuration: everything the
// FileSystem facade needs to construct its components, loadable from YAML
// (the teacher's own config format) with environment-variable overrides.
type Configuration struct {
	Global     GlobalConfig     `yaml:"global"`
	Tree       TreeConfig       `yaml:"tree"`
	Cache      CacheConfig      `yaml:"cache"`
	Quota      QuotaConfig      `yaml:"quota"`
	Locking    LockingConfig    `yaml:"locking"`
	Events     EventsConfig     `yaml:"events"`
	Mount      MountConfig      `yaml:"mount"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// GlobalConfig represents top-level service settings.
type GlobalConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFile   string `yaml:"log_file"`
	LogFormat string `yaml:"log_format"`
}

// TreeConfig records the in-memory TreeStore's content chunking settings.
// The TreeStore does not read them; it uses node.DefaultBlockSize and
// tree.MaxSymlinkHops.
type TreeConfig struct {
	BlockSize      int `yaml:"block_size"`
	MaxSymlinkHops int `yaml:"max_symlink_hops"`
}

// CacheConfig bounds the mount-scoped stat/readDir cache (spec.md §4.4).
// StatMaxEntries bounds each of the two maps; ReadDirMaxEntries is not
// read by the facade.
type CacheConfig struct {
	StatMaxEntries    int `yaml:"stat_max_entries"`
	ReadDirMaxEntries int `yaml:"readdir_max_entries"`
}

// QuotaConfig sets the admission-control ceiling (spec.md §4.5). Bytes is
// -1 for unlimited.
type QuotaConfig struct {
	Bytes int64 `yaml:"bytes"`
}

// LockingConfig records a default wait for blocking lock acquisition
// (spec.md §4.3: "Timeouts are the caller's concern"). The facade does not
// apply it: a blocking lock waits until the caller's context ends.
type LockingConfig struct {
	DefaultWaitTimeout time.Duration `yaml:"default_wait_timeout"`
}

// EventsConfig controls the EventBus's per-subscriber buffering.
type EventsConfig struct {
	SubscriberBufferSize int `yaml:"subscriber_buffer_size"`
}

// MountConfig controls the resilience wrapper applied to every mounted
// DiskOps backend (spec.md §5: "a pool for blocking disk I/O"). Retry and
// CircuitBreaker are applied; DiskPoolSize is validated but not read, and
// mounted calls run on the calling goroutine.
type MountConfig struct {
	DiskPoolSize   int                  `yaml:"disk_pool_size"`
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// RetryConfig mirrors pkg/retry.Config's tunables.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// CircuitBreakerConfig mirrors internal/circuit.Config's tunables for a
// mounted backend's breaker.
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// PersistenceConfig controls snapshot/WAL behavior (spec.md §4.13).
type PersistenceConfig struct {
	SnapshotEveryNWrites int `yaml:"snapshot_every_n_writes"`
}

// MonitoringConfig represents metrics settings.
type MonitoringConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig represents metrics settings.
type MetricsConfig struct {
	Enabled    bool `yaml:"enabled"`
	Prometheus bool `yaml:"prometheus"`
}

// NewDefault returns a configuration with sensible defaults.
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:  "INFO",
			LogFile:   "",
			LogFormat: "text",
		},
		Tree: TreeConfig{
			BlockSize:      64 * 1024,
			MaxSymlinkHops: 40,
		},
		Cache: CacheConfig{
			StatMaxEntries:    10000,
			ReadDirMaxEntries: 10000,
		},
		Quota: QuotaConfig{
			Bytes: -1,
		},
		Locking: LockingConfig{
			DefaultWaitTimeout: 30 * time.Second,
		},
		Events: EventsConfig{
			SubscriberBufferSize: 256,
		},
		Mount: MountConfig{
			DiskPoolSize: 8,
			Retry: RetryConfig{
				MaxAttempts:  5,
				InitialDelay: 100 * time.Millisecond,
				MaxDelay:     30 * time.Second,
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				Timeout:          60 * time.Second,
			},
		},
		Persistence: PersistenceConfig{
			SnapshotEveryNWrites: 100,
		},
		Monitoring: MonitoringConfig{
			Metrics: MetricsConfig{
				Enabled:    true,
				Prometheus: true,
			},
		},
	}
}

// LoadFromFile loads configuration from a YAML file, overlaying it onto
// whatever c already holds (call NewDefault first for defaults-then-file
// precedence).
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// LoadFromEnv applies PICOFS_* environment variable overrides.
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("PICOFS_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv("PICOFS_LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}
	if val := os.Getenv("PICOFS_LOG_FORMAT"); val != "" {
		c.Global.LogFormat = val
	}
	if val := os.Getenv("PICOFS_BLOCK_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Tree.BlockSize = n
		}
	}
	if val := os.Getenv("PICOFS_QUOTA_BYTES"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			c.Quota.Bytes = n
		}
	}
	if val := os.Getenv("PICOFS_SNAPSHOT_EVERY_N_WRITES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Persistence.SnapshotEveryNWrites = n
		}
	}
	if val := os.Getenv("PICOFS_METRICS_ENABLED"); val != "" {
		c.Monitoring.Metrics.Enabled = strings.ToLower(val) == "true"
	}
	return nil
}

// SaveToFile saves the configuration to a YAML file.
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for internally inconsistent values.
func (c *Configuration) Validate() error {
	if c.Tree.BlockSize <= 0 {
		return fmt.Errorf("tree.block_size must be greater than 0")
	}
	if c.Tree.MaxSymlinkHops <= 0 {
		return fmt.Errorf("tree.max_symlink_hops must be greater than 0")
	}
	if c.Quota.Bytes < -1 {
		return fmt.Errorf("quota.bytes must be -1 (unlimited) or >= 0")
	}
	if c.Persistence.SnapshotEveryNWrites <= 0 {
		return fmt.Errorf("persistence.snapshot_every_n_writes must be greater than 0")
	}
	if c.Mount.DiskPoolSize <= 0 {
		return fmt.Errorf("mount.disk_pool_size must be greater than 0")
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	ok := false
	for _, level := range validLogLevels {
		if c.Global.LogLevel == level {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}
	return nil
}
