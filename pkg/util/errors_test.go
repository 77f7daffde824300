package util

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestDeviceError(t *testing.T) {
	cause := errors.New("ssh: unable to authenticate")
	err := NewDeviceError("core1", "open", KindAuthFailure, cause)

	msg := err.Error()
	for _, want := range []string{"open", "core1", "auth_failure", "unable to authenticate"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error message should contain %q: %s", want, msg)
		}
	}

	if !errors.Is(err, cause) {
		t.Error("DeviceError should unwrap to its cause")
	}
	if KindOf(err) != KindAuthFailure {
		t.Errorf("KindOf = %q, want %q", KindOf(err), KindAuthFailure)
	}
}

func TestDeviceErrorNoCause(t *testing.T) {
	err := NewDeviceError("core1", "execute", KindTransportClosed, nil)
	if strings.HasSuffix(err.Error(), ": ") {
		t.Errorf("Error message should not end with a dangling separator: %q", err.Error())
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"plain", errors.New("boom"), KindUnknown},
		{"device error", NewDeviceError("d", "open", KindConnectTimeout, nil), KindConnectTimeout},
		{"wrapped device error", fmt.Errorf("backup: %w", NewDeviceError("d", "execute", KindCommandRejected, nil)), KindCommandRejected},
		{"config error", NewConfigError("rules.yaml", "bad kind"), KindConfiguration},
		{"wrapped invalid config", fmt.Errorf("load: %w", ErrInvalidConfig), KindConfiguration},
		{"context canceled", fmt.Errorf("dial: %w", context.Canceled), KindCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestConfigError(t *testing.T) {
	t.Run("single error", func(t *testing.T) {
		err := NewConfigError("devices.yaml", "device[0]: host is required")
		msg := err.Error()
		if !strings.Contains(msg, "devices.yaml") || !strings.Contains(msg, "host is required") {
			t.Errorf("Error message should contain source and error: %s", msg)
		}
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("ConfigError should unwrap to ErrInvalidConfig")
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		err := NewConfigError("", "field1 is required", "field2 is invalid", "field3 out of range")
		msg := err.Error()
		if !strings.Contains(msg, "field1") || !strings.Contains(msg, "field2") || !strings.Contains(msg, "field3") {
			t.Errorf("Error message should contain all errors: %s", msg)
		}
	})
}

func TestValidationBuilder(t *testing.T) {
	t.Run("no errors", func(t *testing.T) {
		v := NewValidationBuilder("rules")
		v.Add(true, "this should not appear")
		v.Add(true, "neither should this")

		if v.HasErrors() {
			t.Error("Should not have errors when all conditions are true")
		}
		if err := v.Build(); err != nil {
			t.Errorf("Build() should return nil when no errors: %v", err)
		}
	})

	t.Run("with errors", func(t *testing.T) {
		v := NewValidationBuilder("rules")
		v.Add(false, "first error")
		v.Add(true, "this passes")
		v.Add(false, "second error")
		v.AddError("unconditional error")
		v.AddErrorf("formatted error: %d", 42)

		if !v.HasErrors() {
			t.Error("Should have errors")
		}

		err := v.Build()
		if err == nil {
			t.Fatal("Build() should return error")
		}

		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("Expected *ConfigError, got %T", err)
		}
		if len(cfgErr.Errors) != 4 {
			t.Errorf("Expected 4 errors, got %d", len(cfgErr.Errors))
		}
		if cfgErr.Source != "rules" {
			t.Errorf("Source = %q, want %q", cfgErr.Source, "rules")
		}
	})

	t.Run("chaining", func(t *testing.T) {
		err := NewValidationBuilder("").
			Add(false, "error1").
			Add(false, "error2").
			AddErrorf("error%d", 3).
			Build()

		if err == nil {
			t.Fatal("Expected error")
		}
		if !strings.Contains(err.Error(), "error1") {
			t.Errorf("Missing error1 in: %s", err.Error())
		}
	})
}

func TestSentinelErrors(t *testing.T) {
	sentinels := []error{
		ErrNotConnected,
		ErrNotFound,
		ErrAlreadyExists,
		ErrInvalidConfig,
	}

	for i, err1 := range sentinels {
		for j, err2 := range sentinels {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("Sentinel errors should be distinct: %v == %v", err1, err2)
			}
		}
	}
}

func TestKindsAreDistinct(t *testing.T) {
	seen := map[ErrorKind]bool{}
	for _, k := range Kinds {
		if seen[k] {
			t.Errorf("duplicate kind %q", k)
		}
		seen[k] = true
	}
	if len(Kinds) != 7 {
		t.Errorf("expected 7 kinds, got %d", len(Kinds))
	}
}
