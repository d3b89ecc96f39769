package adapters

import (
	"fmt"

	"github.com/ahrav/go-netimport/internal/domain"
	"github.com/ahrav/go-netimport/internal/ports"
)

var (
	keyMergeMode   = domain.NewKey[string]("mode")
	keyConcatAxis  = domain.NewKey[int]("axis")
	keyKeras1Axis  = domain.NewKey[int]("concat_axis")
	keras1MergeMap = map[string]domain.MergeMode{
		"sum":    domain.MergeAdd,
		"mul":    domain.MergeMultiply,
		"ave":    domain.MergeAverage,
		"max":    domain.MergeMaximum,
		"concat": domain.MergeConcatenate,
	}
)

// Merge returns the adapter for one keras2 merge layer type (Add,
// Multiply, Concatenate, ...). Only Concatenate reads an axis.
func Merge(mode domain.MergeMode) ports.AdapterFunc {
	return func(attrs domain.Attributes, enforce bool) (domain.LayerSpec, error) {
		name, err := nodeName(attrs)
		if err != nil {
			return nil, err
		}
		axis := -1
		if mode == domain.MergeConcatenate {
			if axis, err = domain.Optional(attrs, keyConcatAxis, -1); err != nil {
				return nil, err
			}
		}
		spec, err := domain.NewMergeSpec(name, mode, axis)
		if err != nil {
			return nil, err
		}
		return spec, nil
	}
}

// BuildKeras1Merge translates the keras1 Merge layer, whose mode attribute
// selects the operation. Dot products, cosine similarity and custom
// callables have no representation.
func BuildKeras1Merge(attrs domain.Attributes, enforce bool) (domain.LayerSpec, error) {
	name, err := nodeName(attrs)
	if err != nil {
		return nil, err
	}
	raw, err := domain.Optional(attrs, keyMergeMode, "sum")
	if err != nil {
		if v, ok := attrs.Raw(keyMergeMode.Name()); ok {
			return nil, domain.NewUnsupportedConfigurationError(
				"custom merge functions are not supported", map[string]any{"mode": v})
		}
		return nil, err
	}
	mode, ok := keras1MergeMap[raw]
	if !ok {
		if raw == "dot" || raw == "cos" {
			return nil, domain.NewUnsupportedConfigurationError(
				fmt.Sprintf("merge mode %q is not supported", raw), map[string]any{"mode": raw})
		}
		return nil, domain.NewInvalidConfigurationError(
			fmt.Sprintf("unknown merge mode %q", raw), map[string]any{"mode": raw})
	}
	axis, err := domain.Optional(attrs, keyKeras1Axis, -1)
	if err != nil {
		return nil, err
	}
	spec, err := domain.NewMergeSpec(name, mode, axis)
	if err != nil {
		return nil, err
	}
	return spec, nil
}

// MergeShape combines the input shapes. Element-wise modes need
// compatible shapes; concatenation sums the merge axis.
func MergeShape(spec domain.LayerSpec, inputs []domain.Shape) (domain.Shape, error) {
	s, err := specAs[*domain.MergeSpec](spec)
	if err != nil {
		return nil, err
	}
	if s.Mode() == domain.MergeSubtract && len(inputs) != 2 {
		return nil, domain.NewInvalidConfigurationError(
			fmt.Sprintf("subtract takes exactly 2 inputs, got %d", len(inputs)),
			map[string]any{"expected": 2, "received": len(inputs)})
	}
	rank := inputs[0].Rank()
	for _, in := range inputs[1:] {
		if in.Rank() != rank {
			return nil, mismatch(s, inputs)
		}
	}

	if s.Mode().Elementwise() {
		out := inputs[0].Clone()
		for _, in := range inputs[1:] {
			for i := range out {
				d, ok := unify(out[i], in[i])
				if !ok {
					return nil, mismatch(s, inputs)
				}
				out[i] = d
			}
		}
		return out, nil
	}

	axis, err := normalizeAxis(s.Axis(), inputs[0])
	if err != nil {
		return nil, err
	}
	out := inputs[0].Clone()
	for _, in := range inputs[1:] {
		for i := range out {
			if i == axis {
				if out[i], err = domain.AddDims(out[i], in[i]); err != nil {
					return nil, err
				}
				continue
			}
			d, ok := unify(out[i], in[i])
			if !ok {
				return nil, mismatch(s, inputs)
			}
			out[i] = d
		}
	}
	return out, nil
}

// unify merges two dims that must agree. An unknown dim matches anything.
func unify(a, b int64) (int64, bool) {
	switch {
	case a < 0:
		return b, true
	case b < 0, a == b:
		return a, true
	}
	return 0, false
}

func mismatch(s *domain.MergeSpec, inputs []domain.Shape) error {
	shapes := make([]string, len(inputs))
	for i, in := range inputs {
		shapes[i] = in.String()
	}
	return domain.NewInvalidConfigurationError(
		fmt.Sprintf("%s merge received incompatible shapes", s.Mode()),
		map[string]any{"input_shapes": shapes})
}
