package metrics

import (
	"testing"
	"time"
)

func TestNewCollector(t *testing.T) {
	t.Run("with valid config", func(t *testing.T) {
		config := &Config{Enabled: true, Namespace: "picofs", Subsystem: "test"}
		collector, err := NewCollector(config)
		if err != nil {
			t.Fatalf("NewCollector() error = %v, want nil", err)
		}
		if collector.registry == nil {
			t.Error("collector.registry is nil")
		}
		if collector.operations == nil {
			t.Error("collector.operations map is nil")
		}
	})

	t.Run("with nil config uses defaults", func(t *testing.T) {
		collector, err := NewCollector(nil)
		if err != nil {
			t.Fatalf("NewCollector(nil) error = %v, want nil", err)
		}
		if collector.config.Namespace != "picofs" {
			t.Errorf("default namespace = %q, want %q", collector.config.Namespace, "picofs")
		}
	})

	t.Run("with disabled config", func(t *testing.T) {
		collector, err := NewCollector(&Config{Enabled: false})
		if err != nil {
			t.Fatalf("NewCollector() error = %v, want nil", err)
		}
		if collector.registry != nil {
			t.Error("disabled collector should not have a registry")
		}
	})
}

func TestRecordOperation(t *testing.T) {
	collector, err := NewCollector(&Config{Enabled: true, Namespace: "test"})
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}

	collector.RecordOperation("writeAll", 10*time.Millisecond, 1024, "write", true)
	collector.RecordOperation("writeAll", 40*time.Millisecond, 512, "write", true)
	collector.RecordOperation("writeAll", 5*time.Millisecond, 0, "", false)

	snap := collector.Snapshot()
	op, ok := snap.Operations["writeAll"]
	if !ok {
		t.Fatal("writeAll operation not recorded")
	}
	if op.Count != 3 {
		t.Errorf("op.Count = %d, want 3", op.Count)
	}
	if op.SuccessCount != 2 {
		t.Errorf("op.SuccessCount = %d, want 2", op.SuccessCount)
	}
	if op.FailureCount != 1 {
		t.Errorf("op.FailureCount = %d, want 1", op.FailureCount)
	}
	if op.MaxTimeMs != 40 {
		t.Errorf("op.MaxTimeMs = %d, want 40", op.MaxTimeMs)
	}
	if op.TotalTimeMs != 55 {
		t.Errorf("op.TotalTimeMs = %d, want 55", op.TotalTimeMs)
	}
	if snap.TotalBytesWritten != 1536 {
		t.Errorf("TotalBytesWritten = %d, want 1536", snap.TotalBytesWritten)
	}
}

func TestRecordOperationReadDirection(t *testing.T) {
	collector, _ := NewCollector(&Config{Enabled: true, Namespace: "test"})
	collector.RecordOperation("readAll", time.Millisecond, 200, "read", true)
	snap := collector.Snapshot()
	if snap.TotalBytesRead != 200 {
		t.Errorf("TotalBytesRead = %d, want 200", snap.TotalBytesRead)
	}
	if snap.TotalBytesWritten != 0 {
		t.Errorf("TotalBytesWritten = %d, want 0", snap.TotalBytesWritten)
	}
}

func TestReset(t *testing.T) {
	collector, _ := NewCollector(&Config{Enabled: true, Namespace: "test"})
	collector.RecordOperation("stat", time.Millisecond, 0, "", true)
	collector.Reset()

	snap := collector.Snapshot()
	if len(snap.Operations) != 0 {
		t.Errorf("expected no operations after Reset, got %d", len(snap.Operations))
	}
	if snap.TotalBytesRead != 0 || snap.TotalBytesWritten != 0 {
		t.Error("expected byte totals to be zeroed after Reset")
	}
}

func TestDisabledCollectorRecordsNothing(t *testing.T) {
	collector, _ := NewCollector(&Config{Enabled: false})
	collector.RecordOperation("stat", time.Millisecond, 0, "", true)
	snap := collector.Snapshot()
	if len(snap.Operations) != 0 {
		t.Error("disabled collector should not record operations")
	}
}
