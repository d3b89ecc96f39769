package application

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/text/cases"

	"github.com/ahrav/go-netimport/internal/domain"
	"github.com/ahrav/go-netimport/internal/ports"
)

// Verify interface compliance at compile time.
var _ ports.AdapterRegistry = (*AdapterRegistry)(nil)

// adapterEntry is one registration: a type name bound to an adapter for a
// range of format versions.
type adapterEntry struct {
	layerType string
	versions  domain.VersionRange
	adapter   ports.LayerAdapter
	kind      domain.LayerKind
}

// AdapterRegistry maps (format version, layer type name) to the adapter
// that translates that layer. Type names are matched after Unicode case
// folding, so "UpSampling2D" and "Upsampling2D" share entries.
//
// The registry has an init-then-read lifecycle: Register is only allowed
// until Freeze, after which Resolve runs without taking any lock.
type AdapterRegistry struct {
	// entries maps folded type names to their registrations, sorted by
	// the start of their version range.
	entries map[string][]adapterEntry
	// mu serializes registration and guards reads before Freeze.
	mu sync.RWMutex
	// frozen is set once by Freeze and never cleared.
	frozen atomic.Bool
}

// NewAdapterRegistry creates an empty, unfrozen registry.
func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{entries: make(map[string][]adapterEntry)}
}

func canonicalType(layerType string) string {
	return cases.Fold().String(strings.TrimSpace(layerType))
}

// Register adds an adapter for layerType across versions.
// Register returns an error if the registry is frozen, the arguments are
// empty or invalid, or versions overlaps an existing range for the same
// type name.
func (r *AdapterRegistry) Register(
	versions domain.VersionRange,
	layerType string,
	adapter ports.LayerAdapter,
	kind domain.LayerKind,
) error {
	if strings.TrimSpace(layerType) == "" {
		return fmt.Errorf("layer type cannot be empty")
	}
	if adapter == nil {
		return fmt.Errorf("adapter for %s cannot be nil", layerType)
	}
	if kind == "" {
		return fmt.Errorf("adapter for %s must declare a layer kind", layerType)
	}
	if !versions.Valid() {
		return fmt.Errorf("invalid version range %s for %s", versions, layerType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		return fmt.Errorf("register %s: %w", layerType, ports.ErrRegistryFrozen)
	}

	key := canonicalType(layerType)
	for _, e := range r.entries[key] {
		if e.versions.Overlaps(versions) {
			return fmt.Errorf("register %s for %s: already registered as %s for %s: %w",
				layerType, versions, e.layerType, e.versions, ports.ErrOverlappingRange)
		}
	}

	list := append(r.entries[key], adapterEntry{
		layerType: layerType,
		versions:  versions,
		adapter:   adapter,
		kind:      kind,
	})
	slices.SortFunc(list, func(a, b adapterEntry) int { return cmp.Compare(a.versions.Min, b.versions.Min) })
	r.entries[key] = list
	return nil
}

// MustRegister is like Register but panics on error. It is meant for
// package initialization of built-in adapters.
func (r *AdapterRegistry) MustRegister(
	versions domain.VersionRange,
	layerType string,
	adapter ports.LayerAdapter,
	kind domain.LayerKind,
) {
	if err := r.Register(versions, layerType, adapter, kind); err != nil {
		panic(err)
	}
}

// Resolve returns the adapter registered for layerType whose version range
// contains version, together with the kind it produces.
// Resolve returns an UnsupportedLayerError carrying a closest-name
// suggestion when nothing matches.
func (r *AdapterRegistry) Resolve(version domain.FormatVersion, layerType string) (ports.LayerAdapter, domain.LayerKind, error) {
	if !r.frozen.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}

	for _, e := range r.entries[canonicalType(layerType)] {
		if e.versions.Contains(version) {
			return e.adapter, e.kind, nil
		}
	}

	return nil, "", domain.NewUnsupportedLayerError(layerType, version, r.suggestLocked(layerType, version))
}

// suggestLocked proposes a registered type name for a misspelled one. Only
// names available in version are considered.
func (r *AdapterRegistry) suggestLocked(layerType string, version domain.FormatVersion) string {
	candidates := make([]string, 0, len(r.entries))
	for _, key := range slices.Sorted(maps.Keys(r.entries)) {
		for _, e := range r.entries[key] {
			if e.versions.Contains(version) {
				candidates = append(candidates, e.layerType)
				break
			}
		}
	}
	s := closestName(layerType, candidates)
	if canonicalType(s) == canonicalType(layerType) {
		return ""
	}
	return s
}

// SupportedTypes returns every registration sorted by folded type name and
// then by version. It is useful for validation, documentation, and
// introspection purposes.
func (r *AdapterRegistry) SupportedTypes() []ports.AdapterInfo {
	if !r.frozen.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}

	var out []ports.AdapterInfo
	for _, key := range slices.Sorted(maps.Keys(r.entries)) {
		for _, e := range r.entries[key] {
			out = append(out, ports.AdapterInfo{
				LayerType:    e.layerType,
				Versions:     e.versions,
				VersionLabel: e.versions.String(),
				Kind:         e.kind,
			})
		}
	}
	return out
}

// Freeze ends the registration phase. It is idempotent.
func (r *AdapterRegistry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen.Store(true)
}

// Frozen reports whether Freeze has been called.
func (r *AdapterRegistry) Frozen() bool { return r.frozen.Load() }
