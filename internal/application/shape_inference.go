package application

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ahrav/go-netimport/internal/domain"
	"github.com/ahrav/go-netimport/internal/ports"
)

// Verify interface compliance at compile time.
var (
	_ ports.ShapeInferer = (*ShapeEngine)(nil)
	_ ports.RuleRegistry = (*ShapeEngine)(nil)
)

type shapeEntry struct {
	arity ports.Arity
	rule  ports.ShapeRule
}

// ShapeEngine maps layer kinds to pure shape rules. Like AdapterRegistry it
// is populated during initialization and frozen before the first import.
type ShapeEngine struct {
	rules  map[domain.LayerKind]shapeEntry
	mu     sync.RWMutex
	frozen atomic.Bool
}

// NewShapeEngine creates an empty, unfrozen engine.
func NewShapeEngine() *ShapeEngine {
	return &ShapeEngine{rules: make(map[domain.LayerKind]shapeEntry)}
}

// RegisterRule binds rule to kind. Each kind has exactly one rule.
func (e *ShapeEngine) RegisterRule(kind domain.LayerKind, arity ports.Arity, rule ports.ShapeRule) error {
	if kind == "" {
		return fmt.Errorf("layer kind cannot be empty")
	}
	if rule == nil {
		return fmt.Errorf("shape rule for %s cannot be nil", kind)
	}
	if arity.Min < 0 || (arity.Max >= 0 && arity.Max < arity.Min) {
		return fmt.Errorf("invalid arity %+v for %s", arity, kind)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.frozen.Load() {
		return fmt.Errorf("register rule %s: %w", kind, ports.ErrRegistryFrozen)
	}
	if _, exists := e.rules[kind]; exists {
		return fmt.Errorf("shape rule for %s already registered", kind)
	}
	e.rules[kind] = shapeEntry{arity: arity, rule: rule}
	return nil
}

// Freeze ends the registration phase. It is idempotent.
func (e *ShapeEngine) Freeze() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frozen.Store(true)
}

func (e *ShapeEngine) lookup(kind domain.LayerKind) (shapeEntry, bool) {
	if !e.frozen.Load() {
		e.mu.RLock()
		defer e.mu.RUnlock()
	}
	entry, ok := e.rules[kind]
	return entry, ok
}

// Arity returns the input arity registered for kind.
func (e *ShapeEngine) Arity(kind domain.LayerKind) (ports.Arity, bool) {
	entry, ok := e.lookup(kind)
	return entry.arity, ok
}

// Infer computes the output shape of spec from its ordered input shapes.
// The input count is checked against the kind's arity before the rule
// runs. Inputs are copied so a rule can never alter an upstream node's
// recorded shape.
func (e *ShapeEngine) Infer(spec domain.LayerSpec, inputs []domain.Shape) (domain.Shape, error) {
	if spec == nil {
		return nil, domain.NewInvalidConfigurationError("cannot infer shape of a nil layer spec", nil)
	}
	entry, ok := e.lookup(spec.Kind())
	if !ok {
		return nil, domain.NewUnsupportedLayerError(string(spec.Kind()), domain.LatestFormat, "")
	}

	if !entry.arity.Allows(len(inputs)) {
		return nil, domain.NewInvalidConfigurationError(
			fmt.Sprintf("%s layer expects %s input(s), received %d", spec.Kind(), entry.arity, len(inputs)),
			map[string]any{"expected": entry.arity.String(), "received": len(inputs)})
	}

	copies := make([]domain.Shape, len(inputs))
	for i, s := range inputs {
		copies[i] = s.Clone()
	}

	out, err := entry.rule(spec, copies)
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}
