package adapters

import (
	"fmt"

	"github.com/ahrav/go-netimport/internal/domain"
)

var keyZeroPadding = domain.NewKey[[]any]("padding")

// BuildZeroPadding2D translates ZeroPadding2D. padding is an int applied
// everywhere, a (rows, cols) pair applied symmetrically, or
// ((top, bottom), (left, right)).
func BuildZeroPadding2D(attrs domain.Attributes, enforce bool) (domain.LayerSpec, error) {
	name, err := nodeName(attrs)
	if err != nil {
		return nil, err
	}
	top, bottom, left, right, err := paddingAmounts(attrs)
	if err != nil {
		return nil, err
	}
	format, err := dataFormat(attrs)
	if err != nil {
		return nil, err
	}
	spec, err := domain.NewZeroPadding2DSpec(name, top, bottom, left, right, format)
	if err != nil {
		return nil, err
	}
	return spec, nil
}

func paddingAmounts(attrs domain.Attributes) (top, bottom, left, right int, err error) {
	raw, ok := attrs.Raw(keyZeroPadding.Name())
	if !ok || raw == nil {
		return 1, 1, 1, 1, nil
	}
	if n, ok := domain.AsInt(raw); ok {
		return n, n, n, n, nil
	}
	list, err := domain.Required(attrs, keyZeroPadding)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	bad := domain.NewInvalidConfigurationError(
		fmt.Sprintf("padding must be an int, a pair, or a pair of pairs, got %v", raw),
		map[string]any{"padding": raw})
	if len(list) != 2 {
		return 0, 0, 0, 0, bad
	}

	var amounts [4]int
	for i, elem := range list {
		if n, ok := domain.AsInt(elem); ok {
			amounts[2*i], amounts[2*i+1] = n, n
			continue
		}
		pair, ok := domain.AsIntSlice(elem)
		if !ok || len(pair) != 2 {
			return 0, 0, 0, 0, bad
		}
		amounts[2*i], amounts[2*i+1] = pair[0], pair[1]
	}
	return amounts[0], amounts[1], amounts[2], amounts[3], nil
}

// ZeroPadding2DShape adds the padding amounts to the spatial axes.
func ZeroPadding2DShape(spec domain.LayerSpec, inputs []domain.Shape) (domain.Shape, error) {
	s, err := specAs[*domain.ZeroPadding2DSpec](spec)
	if err != nil {
		return nil, err
	}
	in := inputs[0]
	if in.Rank() != 4 {
		return nil, invalidRank(s.Kind(), 4, in)
	}
	h, w, _ := s.DataFormat().SpatialAxes()
	top, bottom, left, right := s.Amounts()
	out := in.Clone()
	if out[h], err = domain.AddDims(in[h], int64(top)+int64(bottom)); err != nil {
		return nil, err
	}
	if out[w], err = domain.AddDims(in[w], int64(left)+int64(right)); err != nil {
		return nil, err
	}
	return out, nil
}
