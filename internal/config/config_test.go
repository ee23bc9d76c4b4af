package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	if cfg.Global.LogLevel != "INFO" {
		t.Errorf("Expected LogLevel to be INFO, got %s", cfg.Global.LogLevel)
	}
	if cfg.Tree.BlockSize != 64*1024 {
		t.Errorf("Expected BlockSize to be 65536, got %d", cfg.Tree.BlockSize)
	}
	if cfg.Tree.MaxSymlinkHops != 40 {
		t.Errorf("Expected MaxSymlinkHops to be 40, got %d", cfg.Tree.MaxSymlinkHops)
	}
	if cfg.Quota.Bytes != -1 {
		t.Errorf("Expected Quota.Bytes to be -1 (unlimited), got %d", cfg.Quota.Bytes)
	}
	if cfg.Persistence.SnapshotEveryNWrites != 100 {
		t.Errorf("Expected SnapshotEveryNWrites to be 100, got %d", cfg.Persistence.SnapshotEveryNWrites)
	}
	if cfg.Locking.DefaultWaitTimeout != 30*time.Second {
		t.Errorf("Expected DefaultWaitTimeout to be 30s, got %v", cfg.Locking.DefaultWaitTimeout)
	}
	if !cfg.Monitoring.Metrics.Enabled {
		t.Error("Expected Metrics.Enabled to default true")
	}
}

func TestValidate(t *testing.T) {
	cfg := NewDefault()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}

	cfg.Tree.BlockSize = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero block size")
	}

	cfg = NewDefault()
	cfg.Quota.Bytes = -5
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for quota below -1")
	}

	cfg = NewDefault()
	cfg.Global.LogLevel = "TRACE"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid log level")
	}
}

func TestSaveAndLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "picofs.yaml")

	cfg := NewDefault()
	cfg.Quota.Bytes = 1024
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile: %v", err)
	}

	loaded := NewDefault()
	if err := loaded.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if loaded.Quota.Bytes != 1024 {
		t.Errorf("Expected loaded Quota.Bytes to be 1024, got %d", loaded.Quota.Bytes)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PICOFS_LOG_LEVEL", "DEBUG")
	t.Setenv("PICOFS_QUOTA_BYTES", "2048")

	cfg := NewDefault()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Global.LogLevel != "DEBUG" {
		t.Errorf("Expected LogLevel DEBUG, got %s", cfg.Global.LogLevel)
	}
	if cfg.Quota.Bytes != 2048 {
		t.Errorf("Expected Quota.Bytes 2048, got %d", cfg.Quota.Bytes)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := NewDefault()
	if err := cfg.LoadFromFile(filepath.Join(os.TempDir(), "does-not-exist-picofs.yaml")); err == nil {
		t.Error("expected error loading missing file")
	}
}
