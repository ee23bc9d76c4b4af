package retry

import (
	"context"
	"testing"
	"time"

	"github.com/picofs/picofs/pkg/errors"
)

func TestRetryer_Success(t *testing.T) {
	config := DefaultConfig()
	config.MaxAttempts = 3
	retryer := New(config)

	attempts := 0
	err := retryer.Do(func() error {
		attempts++
		return nil // Success on first attempt
	})

	if err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}

	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetryer_RetryableError(t *testing.T) {
	config := DefaultConfig()
	config.MaxAttempts = 3
	config.InitialDelay = 10 * time.Millisecond
	config.Jitter = false
	retryer := New(config)

	attempts := 0
	err := retryer.Do(func() error {
		attempts++
		if attempts < 3 {
			return errors.Unknown(nil).WithDetail("attempt", attempts)
		}
		return nil // Success on third attempt
	})

	if err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}

	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetryer_NonRetryableError(t *testing.T) {
	config := DefaultConfig()
	config.MaxAttempts = 3
	retryer := New(config)

	attempts := 0
	err := retryer.Do(func() error {
		attempts++
		return errors.NotFound("/missing")
	})

	if err == nil {
		t.Fatal("Expected an error")
	}
	if attempts != 1 {
		t.Errorf("NotFound is not retryable; expected 1 attempt, got %d", attempts)
	}
}

func TestRetryer_ExhaustsMaxAttempts(t *testing.T) {
	config := DefaultConfig()
	config.MaxAttempts = 3
	config.InitialDelay = 5 * time.Millisecond
	config.Jitter = false
	retryer := New(config)

	attempts := 0
	err := retryer.Do(func() error {
		attempts++
		return errors.Unknown(nil)
	})

	if err == nil {
		t.Fatal("Expected an error after exhausting attempts")
	}
	if attempts != config.MaxAttempts {
		t.Errorf("Expected %d attempts, got %d", config.MaxAttempts, attempts)
	}
}

func TestRetryer_ConfiguredRetryableCode(t *testing.T) {
	config := DefaultConfig()
	config.MaxAttempts = 3
	config.InitialDelay = 5 * time.Millisecond
	config.Jitter = false
	// Opt a normally non-retryable code in explicitly, as a caller wrapping
	// a flaky DiskOps backend might for e.g. NotMounted during a remount.
	config.RetryableErrors = []errors.ErrorCode{errors.ErrCodeNotMounted}
	retryer := New(config)

	attempts := 0
	err := retryer.Do(func() error {
		attempts++
		if attempts < 2 {
			return errors.NotMounted("/mnt/data")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestRetryer_ContextCancellation(t *testing.T) {
	config := DefaultConfig()
	config.MaxAttempts = 5
	config.InitialDelay = 50 * time.Millisecond
	config.Jitter = false
	retryer := New(config)

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := retryer.DoWithContext(ctx, func(ctx context.Context) error {
		attempts++
		return errors.Unknown(nil)
	})

	if err == nil {
		t.Fatal("Expected a cancellation error")
	}
	if attempts > 2 {
		t.Errorf("Expected early cancellation to cut off retries, got %d attempts", attempts)
	}
}

func TestRetryer_OnRetryCallback(t *testing.T) {
	config := DefaultConfig()
	config.MaxAttempts = 3
	config.InitialDelay = 5 * time.Millisecond
	config.Jitter = false

	var callbackCalls int
	config.OnRetry = func(attempt int, err error, delay time.Duration) {
		callbackCalls++
	}
	retryer := New(config)

	attempts := 0
	_ = retryer.Do(func() error {
		attempts++
		if attempts < 3 {
			return errors.Unknown(nil)
		}
		return nil
	})

	if callbackCalls != 2 {
		t.Errorf("Expected 2 callback invocations, got %d", callbackCalls)
	}
}

func TestCalculateDelayRespectsMaxDelay(t *testing.T) {
	config := DefaultConfig()
	config.InitialDelay = time.Second
	config.MaxDelay = 2 * time.Second
	config.Multiplier = 10
	config.Jitter = false
	retryer := New(config)

	delay := retryer.calculateDelay(5)
	if delay != config.MaxDelay {
		t.Errorf("Expected delay capped at %v, got %v", config.MaxDelay, delay)
	}
}

func TestStatsCollector(t *testing.T) {
	sc := NewStatsCollector()
	sc.RecordAttempt(1, true, 0)
	sc.RecordAttempt(3, false, 200*time.Millisecond)

	stats := sc.GetStats()
	if stats.TotalAttempts != 2 {
		t.Errorf("Expected TotalAttempts 2, got %d", stats.TotalAttempts)
	}
	if stats.SuccessfulRetry != 1 || stats.FailedRetry != 1 {
		t.Errorf("Expected 1 success and 1 failure, got %+v", stats)
	}
	if stats.MaxAttemptsUsed != 3 {
		t.Errorf("Expected MaxAttemptsUsed 3, got %d", stats.MaxAttemptsUsed)
	}

	sc.Reset()
	if sc.GetStats().TotalAttempts != 0 {
		t.Error("Expected stats to be cleared after Reset")
	}
}
