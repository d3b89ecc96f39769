package application

import (
	"fmt"
	"sync"

	"github.com/ahrav/go-netimport/infrastructure/adapters"
	"github.com/ahrav/go-netimport/infrastructure/decoders"
)

// NewBuiltinTables returns an adapter registry and shape engine populated
// with every built-in layer type. Both are still open, so callers may add
// their own adapters before handing them to NewImporter.
func NewBuiltinTables() (*AdapterRegistry, *ShapeEngine, error) {
	registry := NewAdapterRegistry()
	engine := NewShapeEngine()
	if err := adapters.RegisterBuiltins(registry, engine); err != nil {
		return nil, nil, fmt.Errorf("failed to register built-in layers: %w", err)
	}
	return registry, engine, nil
}

type builtinTables struct {
	registry *AdapterRegistry
	engine   *ShapeEngine
}

var defaultTables = sync.OnceValues(func() (builtinTables, error) {
	registry, engine, err := NewBuiltinTables()
	if err != nil {
		return builtinTables{}, err
	}
	registry.Freeze()
	engine.Freeze()
	return builtinTables{registry: registry, engine: engine}, nil
})

// DefaultRegistry returns the process-wide registry holding every built-in
// adapter. It is populated once and frozen.
func DefaultRegistry() (*AdapterRegistry, error) {
	t, err := defaultTables()
	return t.registry, err
}

// DefaultShapeEngine returns the process-wide engine holding every
// built-in shape rule. It is populated once and frozen.
func DefaultShapeEngine() (*ShapeEngine, error) {
	t, err := defaultTables()
	return t.engine, err
}

// DefaultDecoders binds the built-in descriptor decoders to their formats
// and file extensions.
func DefaultDecoders() []ImporterOption {
	return []ImporterOption{
		WithDecoder(DescriptorYAML, decoders.NewYAMLDecoder(), "yaml", "yml"),
		WithDecoder(DescriptorKerasJSON, decoders.NewKerasJSONDecoder(), "json"),
		WithDecoder(DescriptorHCL, decoders.NewHCLDecoder(), "hcl"),
	}
}

// NewDefaultImporter builds an importer over the process-wide built-in
// tables and decoders. opts are applied after the defaults and may override
// them.
func NewDefaultImporter(opts ...ImporterOption) (*Importer, error) {
	t, err := defaultTables()
	if err != nil {
		return nil, err
	}
	all := append(DefaultDecoders(), opts...)
	return NewImporter(t.registry, t.engine, all...), nil
}
