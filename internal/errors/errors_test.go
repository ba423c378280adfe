package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestScanError(t *testing.T) {
	t.Run("error with target", func(t *testing.T) {
		err := NewScanErrorWithTarget(CodeTargetInvalid, "host id out of range", "192.168.0.7")
		expected := "[TARGET_INVALID] host id out of range (target: 192.168.0.7)"
		if err.Error() != expected {
			t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
		}
	})

	t.Run("error without target", func(t *testing.T) {
		err := NewScanError(CodeValidation, "validation failed")
		expected := "[VALIDATION] validation failed"
		if err.Error() != expected {
			t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
		}
	})

	t.Run("wrapped error", func(t *testing.T) {
		cause := fmt.Errorf("network error")
		err := WrapScanError(CodeDiscoveryFailed, "network issue", cause)
		if !errors.Is(err, cause) {
			t.Error("Wrapped error should be unwrappable")
		}
	})

	t.Run("with context", func(t *testing.T) {
		err := ErrInvalidState("pause", "idle")
		if err.Context["command"] != "pause" {
			t.Errorf("Expected command 'pause', got %v", err.Context["command"])
		}
		if err.Context["state"] != "idle" {
			t.Errorf("Expected state 'idle', got %v", err.Context["state"])
		}
		expected := "[INVALID_STATE] Cannot pause while idle"
		if err.Error() != expected {
			t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
		}
	})

	t.Run("drain timeout", func(t *testing.T) {
		err := ErrDrainTimeout(3, context.DeadlineExceeded)
		if !IsCode(err, CodeDrainTimeout) {
			t.Errorf("Expected CodeDrainTimeout, got %s", GetCode(err))
		}
		if err.Context["pending"] != 3 {
			t.Errorf("Expected pending 3, got %v", err.Context["pending"])
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Error("Should unwrap to the wait error")
		}
	})
}

func TestStorageError(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := WrapStorageError(CodeStorageQuery, "insert failed", cause).
		WithOperation("record_cycle").
		WithQuery("INSERT INTO scan_cycles")

	expected := "[STORAGE_QUERY] insert failed (operation: record_cycle)"
	if err.Error() != expected {
		t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
	}
	if err.Query != "INSERT INTO scan_cycles" {
		t.Errorf("Expected query to be recorded, got '%s'", err.Query)
	}
	if !errors.Is(err, cause) {
		t.Error("Should unwrap to original error")
	}
}

func TestDiscoveryError(t *testing.T) {
	err := ErrDiscoveryFailed("192.168.0.0/24", fmt.Errorf("nmap not found"))
	expected := "[DISCOVERY_FAILED] Network discovery failed (network: 192.168.0.0/24)"
	if err.Error() != expected {
		t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorCode
	}{
		{"scan error", NewScanError(CodeTargetInvalid, "x"), CodeTargetInvalid},
		{"storage error", WrapStorageError(CodeStorageTimeout, "x", nil), CodeStorageTimeout},
		{"discovery error", WrapDiscoveryError(CodeResolveFailed, "x", nil), CodeResolveFailed},
		{"config error", ErrConfigInvalid("scan.worker_threads", 0), CodeValidation},
		{"wrapped with fmt", fmt.Errorf("outer: %w", NewScanError(CodeDrainTimeout, "x")), CodeDrainTimeout},
		{"plain error", fmt.Errorf("plain"), CodeUnknown},
		{"nil error", nil, CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.expected {
				t.Errorf("Expected code %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestIsCode(t *testing.T) {
	if IsCode(nil, CodeUnknown) {
		t.Error("nil error should not match any code")
	}
	if !IsCode(ErrScanInProgress(), CodeScanInProgress) {
		t.Error("Expected CodeScanInProgress to match")
	}
}

func TestRetryableAndFatal(t *testing.T) {
	retryable := []error{
		WrapStorageError(CodeStorageConnection, "refused", nil),
		WrapStorageError(CodeStorageTimeout, "slow", nil),
		ErrDiscoveryFailed("10.0.0.0/24", nil),
		ErrDrainTimeout(1, nil),
		fmt.Errorf("publish: %w", WrapScanError(CodePublishFailed, "broker down", nil)),
	}
	for _, err := range retryable {
		if !IsRetryable(err) {
			t.Errorf("%v should be retryable", err)
		}
	}
	if IsRetryable(WrapStorageError(CodeStorageMigration, "bad migration", nil)) {
		t.Error("migration failures should not be retryable")
	}
	if IsRetryable(fmt.Errorf("plain")) {
		t.Error("uncoded errors should not be retryable")
	}
	if !IsFatal(WrapConfigError(CodeConfiguration, "bad config", nil)) {
		t.Error("configuration errors should be fatal")
	}
	if IsFatal(ErrDiscoveryFailed("10.0.0.0/24", nil)) {
		t.Error("discovery failures degrade the scan and must not be fatal")
	}
}
