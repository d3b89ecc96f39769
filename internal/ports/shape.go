package ports

import (
	"fmt"

	"github.com/ahrav/go-netimport/internal/domain"
)

// ShapeRule computes the output shape of a layer from its validated spec
// and the ordered shapes of its inputs. Rules are pure: they depend only
// on their arguments and never mutate them.
type ShapeRule func(spec domain.LayerSpec, inputs []domain.Shape) (domain.Shape, error)

// Arity bounds the number of inputs a layer kind accepts. Max < 0 means
// unbounded.
type Arity struct {
	Min int
	Max int
}

// Common arities.
var (
	NoInputs         = Arity{Min: 0, Max: 0}
	SingleInput      = Arity{Min: 1, Max: 1}
	AtLeastTwoInputs = Arity{Min: 2, Max: -1}
)

// Allows reports whether n inputs satisfy the arity.
func (a Arity) Allows(n int) bool {
	return n >= a.Min && (a.Max < 0 || n <= a.Max)
}

// String renders the arity as "1", "0..2" or "2+".
func (a Arity) String() string {
	switch {
	case a.Max < 0:
		return fmt.Sprintf("%d+", a.Min)
	case a.Min == a.Max:
		return fmt.Sprintf("%d", a.Min)
	default:
		return fmt.Sprintf("%d..%d", a.Min, a.Max)
	}
}

// RuleRegistry accepts shape rules during initialization.
type RuleRegistry interface {
	// RegisterRule binds a rule and its arity to a layer kind. It fails if
	// the kind already has a rule or the registry is frozen.
	RegisterRule(kind domain.LayerKind, arity Arity, rule ShapeRule) error
}

// ShapeInferer computes output shapes for validated specs.
type ShapeInferer interface {
	// Infer checks the input count against the kind's arity, then applies
	// the kind's rule.
	Infer(spec domain.LayerSpec, inputs []domain.Shape) (domain.Shape, error)
}
