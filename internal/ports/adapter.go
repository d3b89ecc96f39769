// Package ports defines the core interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import (
	"github.com/ahrav/go-netimport/internal/domain"
)

// LayerAdapter translates the attribute dictionary of one node into a
// validated LayerSpec. Adapters are stateless table entries: the same
// adapter value serves every import concurrently.
type LayerAdapter interface {
	// Build reads attrs and returns a fully validated spec, or fails with
	// one of the domain import errors. Build is all-or-nothing: it never
	// returns a partially populated spec alongside an error.
	//
	// When enforceTrainingConfig is true, training-only attributes that
	// cannot be represented (regularizers, constraints) fail with
	// ErrUnsupportedConfiguration; otherwise they are ignored.
	//
	// attrs carries the node name under the reserved "name" key.
	Build(attrs domain.Attributes, enforceTrainingConfig bool) (domain.LayerSpec, error)
}

// AdapterFunc lets an ordinary function serve as a LayerAdapter.
type AdapterFunc func(attrs domain.Attributes, enforceTrainingConfig bool) (domain.LayerSpec, error)

// Build calls f(attrs, enforceTrainingConfig).
func (f AdapterFunc) Build(attrs domain.Attributes, enforceTrainingConfig bool) (domain.LayerSpec, error) {
	return f(attrs, enforceTrainingConfig)
}

// AdapterInfo describes one registry entry.
type AdapterInfo struct {
	// LayerType is the type name as it was first registered.
	LayerType string `yaml:"type"`
	// Versions is the range of format versions the adapter accepts.
	Versions domain.VersionRange `yaml:"-"`
	// VersionLabel is Versions rendered for listings.
	VersionLabel string `yaml:"versions"`
	// Kind is the LayerSpec variant the adapter produces.
	Kind domain.LayerKind `yaml:"kind"`
}

// AdapterRegistry maps (format version, layer type name) to adapters.
// Registration happens during process initialization; once frozen the
// registry is read-only and safe for concurrent Resolve calls.
type AdapterRegistry interface {
	// Register adds an adapter for layerType across versions. It fails if
	// the registry is frozen or the range overlaps an existing entry for
	// the same type name.
	Register(versions domain.VersionRange, layerType string, adapter LayerAdapter, kind domain.LayerKind) error

	// Resolve returns the adapter whose range contains version, together
	// with the kind it produces. It fails with an UnsupportedLayerError
	// when no entry matches.
	Resolve(version domain.FormatVersion, layerType string) (LayerAdapter, domain.LayerKind, error)

	// SupportedTypes lists every entry sorted by type name then version.
	SupportedTypes() []AdapterInfo

	// Freeze ends the registration phase.
	Freeze()
}
