// Package config loads the importer configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-netimport/internal/domain"
	"github.com/ahrav/go-netimport/internal/ports"
)

// Environment variables that override file values.
const (
	EnvLogLevel         = "NETIMPORT_LOG_LEVEL"
	EnvEnforceTraining  = "NETIMPORT_ENFORCE_TRAINING"
	defaultLogLevel     = "info"
	defaultLogFormat    = "text"
	defaultConcurrency  = 8
	defaultFormatString = "keras2"
)

// ImporterConfig controls how descriptors are imported.
type ImporterConfig struct {
	// EnforceTrainingConfig makes adapters reject training-only options
	// they would otherwise log and ignore.
	EnforceTrainingConfig bool `yaml:"enforce_training_config"`
	// DefaultFormat is the format version assumed by the CLI when a
	// descriptor does not declare one.
	DefaultFormat string `yaml:"default_format" validate:"required,formatversion"`
	// CacheEnabled toggles the content-hash model cache. Nil means enabled.
	CacheEnabled *bool `yaml:"cache_enabled"`
	// MaxConcurrentImports bounds batch imports.
	MaxConcurrentImports int           `yaml:"max_concurrent_imports" validate:"min=1,max=1024"`
	Log                  LogConfig     `yaml:"log"`
	Metrics              MetricsConfig `yaml:"metrics"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// MetricsConfig toggles the Prometheus collector.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used when no file is given.
func Default() *ImporterConfig {
	c := &ImporterConfig{}
	c.applyDefaults()
	return c
}

// Cache reports whether the model cache is enabled.
func (c *ImporterConfig) Cache() bool {
	return c.CacheEnabled == nil || *c.CacheEnabled
}

// Format parses DefaultFormat. It only fails on configs that skipped
// Validate.
func (c *ImporterConfig) Format() (domain.FormatVersion, error) {
	return domain.ParseFormatVersion(c.DefaultFormat)
}

func (c *ImporterConfig) applyDefaults() {
	if c.DefaultFormat == "" {
		c.DefaultFormat = defaultFormatString
	}
	if c.MaxConcurrentImports == 0 {
		c.MaxConcurrentImports = defaultConcurrency
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = defaultLogFormat
	}
}

// applyEnv overlays environment overrides read through lookup.
func (c *ImporterConfig) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v, ok := lookup(EnvEnforceTraining); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return ports.NewConfigError(EnvEnforceTraining, err)
		}
		c.EnforceTrainingConfig = b
	}
	return nil
}

// Validate checks field constraints.
func (c *ImporterConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			ve := domain.NewValidationError("importer config")
			for _, fe := range verrs {
				ve.AddError(fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return ve
		}
		return fmt.Errorf("struct validation failed: %w", err)
	}
	return nil
}

// Load reads the configuration at path, applies defaults and environment
// overrides, and validates the result. An empty path yields the defaults
// with overrides applied.
func Load(path string) (*ImporterConfig, error) {
	if path == "" {
		return finish(Default(), os.LookupEnv)
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ports.NewConfigError(path, ports.ErrConfigNotFound)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return parse(bytes.NewReader(data), os.LookupEnv)
}

// Parse decodes a configuration from r using the process environment for
// overrides.
func Parse(r io.Reader) (*ImporterConfig, error) {
	return parse(r, os.LookupEnv)
}

func parse(r io.Reader, lookup func(string) (string, bool)) (*ImporterConfig, error) {
	var c ImporterConfig
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true) // Strict mode - fail on unknown fields.
	if err := decoder.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}
	c.applyDefaults()
	return finish(&c, lookup)
}

func finish(c *ImporterConfig, lookup func(string) (string, bool)) (*ImporterConfig, error) {
	if err := c.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("formatversion", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseFormatVersion(fl.Field().String())
		return err == nil
	})
	return v
}
