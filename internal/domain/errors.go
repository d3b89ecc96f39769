package domain

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Error kinds raised while importing a network configuration. Every failure
// returned by the import engine matches exactly one of these with errors.Is.
var (
	// ErrMissingKey indicates a required attribute is absent and no default
	// was supplied.
	ErrMissingKey = errors.New("missing key")

	// ErrTypeMismatch indicates an attribute is present but cannot be
	// coerced to the requested type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrUnsupportedLayer indicates no adapter exists for a layer type in
	// any compatible format version.
	ErrUnsupportedLayer = errors.New("unsupported layer")

	// ErrInvalidConfiguration indicates parameters are present but violate
	// a legality constraint.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrUnsupportedConfiguration indicates a construct that is valid in the
	// source format but has no faithful representation in the model.
	ErrUnsupportedConfiguration = errors.New("unsupported configuration")

	// ErrCyclicGraph indicates the node dependencies admit no topological order.
	ErrCyclicGraph = errors.New("cyclic graph")

	// ErrUnresolvedReference indicates an input name that is never defined
	// as a node.
	ErrUnresolvedReference = errors.New("unresolved reference")

	// ErrDanglingOutput indicates a declared graph output with no node.
	ErrDanglingOutput = errors.New("dangling output")

	// ErrMissingInputShape indicates an upstream node had no resolved shape
	// when its dependent was processed.
	ErrMissingInputShape = errors.New("missing input shape")

	// ErrDuplicateNode indicates two nodes share a name.
	ErrDuplicateNode = errors.New("duplicate node")
)

// ImportError describes a single import failure. Kind is one of the
// sentinel errors above, Node names the offending node when known, and
// Params carries the parameter values that triggered the failure.
type ImportError struct {
	// Kind is the sentinel describing the class of failure.
	Kind error

	// Node is the name of the node being processed, empty for graph-level
	// failures that have no single node.
	Node string

	// Detail is a human readable description of the failure.
	Detail string

	// Params holds the offending parameter values for diagnostics.
	Params map[string]any

	// Err is an optional underlying cause.
	Err error
}

// Error implements the error interface for ImportError.
func (e *ImportError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Node != "" {
		fmt.Fprintf(&b, ": node=%s", e.Node)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if len(e.Params) > 0 {
		keys := slices.Sorted(maps.Keys(e.Params))
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, e.Params[k]))
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause so errors.Is matches either.
func (e *ImportError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// WithNode returns err with the node name attached. Errors that already
// name a node, and errors that are not ImportErrors, are wrapped so the
// node context is still visible in the message.
func WithNode(err error, node string) error {
	if err == nil {
		return nil
	}
	var ie *ImportError
	if errors.As(err, &ie) {
		if ie.Node != "" {
			return err
		}
		cp := *ie
		cp.Node = node
		return &cp
	}
	return fmt.Errorf("node %s: %w", node, err)
}

func newImportError(kind error, detail string, params map[string]any) *ImportError {
	return &ImportError{Kind: kind, Detail: detail, Params: params}
}

// NewMissingKeyError reports a required attribute that is absent.
func NewMissingKeyError(key string) *ImportError {
	return newImportError(ErrMissingKey, fmt.Sprintf("required attribute %q not found", key),
		map[string]any{"key": key})
}

// NewTypeMismatchError reports an attribute that cannot be coerced.
func NewTypeMismatchError(key, expected string, actual any) *ImportError {
	return newImportError(ErrTypeMismatch,
		fmt.Sprintf("attribute %q must be %s, got %T", key, expected, actual),
		map[string]any{"key": key, "value": actual})
}

// NewUnsupportedLayerError reports a layer type without an adapter.
func NewUnsupportedLayerError(layerType string, version FormatVersion, suggestion string) *ImportError {
	detail := fmt.Sprintf("no adapter for layer type %q in format %s", layerType, version)
	if suggestion != "" {
		detail += fmt.Sprintf(", did you mean %q?", suggestion)
	}
	return newImportError(ErrUnsupportedLayer, detail,
		map[string]any{"layer_type": layerType, "format": version.String()})
}

// NewInvalidConfigurationError reports parameters that violate a legality
// constraint. params should carry the offending values.
func NewInvalidConfigurationError(detail string, params map[string]any) *ImportError {
	return newImportError(ErrInvalidConfiguration, detail, params)
}

// NewUnsupportedConfigurationError reports a valid construct that the
// model cannot represent.
func NewUnsupportedConfigurationError(detail string, params map[string]any) *ImportError {
	return newImportError(ErrUnsupportedConfiguration, detail, params)
}

// NewCyclicGraphError reports the nodes forming a dependency cycle.
func NewCyclicGraphError(cycle []string) *ImportError {
	e := newImportError(ErrCyclicGraph,
		fmt.Sprintf("dependency cycle %s", strings.Join(cycle, " -> ")),
		map[string]any{"cycle": slices.Clone(cycle)})
	if len(cycle) > 0 {
		e.Node = cycle[0]
	}
	return e
}

// NewUnresolvedReferenceError reports an input name with no node.
func NewUnresolvedReferenceError(node, reference, suggestion string) *ImportError {
	detail := fmt.Sprintf("input %q is not defined", reference)
	if suggestion != "" {
		detail += fmt.Sprintf(", did you mean %q?", suggestion)
	}
	e := newImportError(ErrUnresolvedReference, detail, map[string]any{"reference": reference})
	e.Node = node
	return e
}

// NewDanglingOutputError reports a declared output with no node.
func NewDanglingOutputError(output string) *ImportError {
	e := newImportError(ErrDanglingOutput,
		fmt.Sprintf("declared output %q has no corresponding node", output),
		map[string]any{"output": output})
	e.Node = output
	return e
}

// NewMissingInputShapeError reports an unresolved upstream shape.
func NewMissingInputShapeError(node, upstream string) *ImportError {
	e := newImportError(ErrMissingInputShape,
		fmt.Sprintf("upstream node %q has no resolved output shape", upstream),
		map[string]any{"upstream": upstream})
	e.Node = node
	return e
}

// NewDuplicateNodeError reports a node name defined more than once.
func NewDuplicateNodeError(node string) *ImportError {
	e := newImportError(ErrDuplicateNode, "node name defined more than once", nil)
	e.Node = node
	return e
}

// ValidationError collects several validation failures for one entity.
// Descriptor decoders use it to report every structural problem at once.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// Unwrap lets validation failures match ErrInvalidConfiguration.
func (e *ValidationError) Unwrap() error { return ErrInvalidConfiguration }

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}
