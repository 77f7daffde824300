// Package util provides utility functions and common error types.
package util

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors
var (
	ErrNotConnected  = errors.New("device not connected")
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ErrorKind is the normalized failure taxonomy. Engines and callers branch on
// the kind; raw transport errors are kept only as diagnostic text.
type ErrorKind string

const (
	KindConnectTimeout  ErrorKind = "connect_timeout"
	KindAuthFailure     ErrorKind = "auth_failure"
	KindCommandRejected ErrorKind = "command_rejected"
	KindTransportClosed ErrorKind = "transport_closed"
	KindCancelled       ErrorKind = "cancelled"
	KindConfiguration   ErrorKind = "configuration_error"
	KindUnknown         ErrorKind = "unknown"
)

// Kinds lists every ErrorKind in taxonomy order.
var Kinds = []ErrorKind{
	KindConnectTimeout,
	KindAuthFailure,
	KindCommandRejected,
	KindTransportClosed,
	KindCancelled,
	KindConfiguration,
	KindUnknown,
}

// Kinded is implemented by errors that carry a normalized ErrorKind.
type Kinded interface {
	ErrorKind() ErrorKind
}

// KindOf returns the ErrorKind carried by err. Errors that carry no kind map to
// KindConfiguration when they wrap ErrInvalidConfig, KindCancelled when they
// wrap context.Canceled, and KindUnknown otherwise. A nil error has no kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var k Kinded
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	switch {
	case errors.Is(err, ErrInvalidConfig):
		return KindConfiguration
	case errors.Is(err, context.Canceled):
		return KindCancelled
	}
	return KindUnknown
}

// DeviceError is a failure of one operation against one device, normalized
// into the error taxonomy.
type DeviceError struct {
	Device string
	Op     string
	Kind   ErrorKind
	Err    error
}

func (e *DeviceError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Op, e.Device, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// ErrorKind returns the normalized kind.
func (e *DeviceError) ErrorKind() ErrorKind {
	return e.Kind
}

// NewDeviceError creates a device error
func NewDeviceError(device, op string, kind ErrorKind, err error) *DeviceError {
	return &DeviceError{
		Device: device,
		Op:     op,
		Kind:   kind,
		Err:    err,
	}
}

// ConfigError reports one or more problems with a request's inputs (inventory
// records, rule definitions, engine settings). It is surfaced before any
// device work begins.
type ConfigError struct {
	Source string
	Errors []string
}

func (e *ConfigError) Error() string {
	prefix := "invalid configuration"
	if e.Source != "" {
		prefix += " in " + e.Source
	}
	if len(e.Errors) == 1 {
		return prefix + ": " + e.Errors[0]
	}
	return fmt.Sprintf("%s:\n  - %s", prefix, strings.Join(e.Errors, "\n  - "))
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// ErrorKind always reports KindConfiguration.
func (e *ConfigError) ErrorKind() ErrorKind {
	return KindConfiguration
}

// NewConfigError creates a configuration error from messages
func NewConfigError(source string, messages ...string) *ConfigError {
	return &ConfigError{Source: source, Errors: messages}
}

// ValidationBuilder helps accumulate configuration errors
type ValidationBuilder struct {
	source string
	errors []string
}

// NewValidationBuilder creates a builder whose errors are attributed to source.
func NewValidationBuilder(source string) *ValidationBuilder {
	return &ValidationBuilder{source: source}
}

// Add adds an error message if condition is false
func (v *ValidationBuilder) Add(condition bool, message string) *ValidationBuilder {
	if !condition {
		v.errors = append(v.errors, message)
	}
	return v
}

// AddError adds an error message unconditionally
func (v *ValidationBuilder) AddError(message string) *ValidationBuilder {
	v.errors = append(v.errors, message)
	return v
}

// AddErrorf adds a formatted error message
func (v *ValidationBuilder) AddErrorf(format string, args ...interface{}) *ValidationBuilder {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
	return v
}

// HasErrors returns true if there are validation errors
func (v *ValidationBuilder) HasErrors() bool {
	return len(v.errors) > 0
}

// Build returns the configuration error or nil if no errors
func (v *ValidationBuilder) Build() error {
	if len(v.errors) == 0 {
		return nil
	}
	return &ConfigError{Source: v.source, Errors: v.errors}
}
