package ports

import (
	"errors"
	"fmt"
)

// Infrastructure errors raised around the import engine rather than by
// layer translation itself.
var (
	// ErrRegistryFrozen indicates a registration attempt after the
	// registry or shape engine was frozen.
	ErrRegistryFrozen = errors.New("registry frozen")

	// ErrOverlappingRange indicates an adapter registration whose version
	// range overlaps an existing entry for the same layer type.
	ErrOverlappingRange = errors.New("overlapping version range")

	// ErrUnknownDescriptorFormat indicates no decoder is registered for the
	// requested descriptor format or file extension.
	ErrUnknownDescriptorFormat = errors.New("unknown descriptor format")

	// ErrMalformedDescriptor indicates the descriptor could not be decoded
	// into a raw graph.
	ErrMalformedDescriptor = errors.New("malformed descriptor")

	// ErrConfigNotFound indicates that required configuration is missing.
	ErrConfigNotFound = errors.New("configuration not found")
)

// DecodeError represents a failure to decode a descriptor.
// It includes the descriptor format and, when known, the source path.
type DecodeError struct {
	// Format is the descriptor format being decoded.
	Format string

	// Source is the file path or "<reader>".
	Source string

	// Err is the underlying error that occurred.
	Err error
}

// Error implements the error interface for DecodeError.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error: format=%s, source=%s, err=%v", e.Format, e.Source, e.Err)
}

// Unwrap returns the underlying error and ErrMalformedDescriptor.
func (e *DecodeError) Unwrap() []error { return []error{ErrMalformedDescriptor, e.Err} }

// NewDecodeError creates a new DecodeError with the given details.
func NewDecodeError(format, source string, err error) *DecodeError {
	return &DecodeError{
		Format: format,
		Source: source,
		Err:    err,
	}
}

// MetricsError represents an error from metrics collection operations.
type MetricsError struct {
	// Metric is the name of the metric that was being collected when the
	// error occurred.
	Metric string

	// Operation is the name of the metrics operation that failed.
	Operation string

	// Err is the underlying error that caused the metrics operation to fail.
	Err error
}

// Error implements the error interface for MetricsError.
func (e *MetricsError) Error() string {
	return fmt.Sprintf("metrics error: operation=%s, metric=%s, err=%v", e.Operation, e.Metric, e.Err)
}

// Unwrap returns the underlying error.
func (e *MetricsError) Unwrap() error { return e.Err }

// NewMetricsError creates a new MetricsError with the given details.
func NewMetricsError(metric, operation string, err error) *MetricsError {
	return &MetricsError{
		Metric:    metric,
		Operation: operation,
		Err:       err,
	}
}

// ConfigError represents an error from configuration operations.
type ConfigError struct {
	// ConfigKey is the configuration key that was involved in the failed
	// operation.
	ConfigKey string

	// Err is the underlying error that caused the configuration operation
	// to fail.
	Err error
}

// Error implements the error interface for ConfigError.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: key=%s, err=%v", e.ConfigKey, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError creates a new ConfigError with the given details.
func NewConfigError(key string, err error) *ConfigError {
	return &ConfigError{
		ConfigKey: key,
		Err:       err,
	}
}
