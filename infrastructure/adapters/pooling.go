package adapters

import (
	"github.com/ahrav/go-netimport/internal/domain"
	"github.com/ahrav/go-netimport/internal/ports"
)

var (
	keyPoolSize    = domain.NewKey[[]int]("pool_size")
	keyPoolStrides = domain.NewKey[[]int]("strides")
)

type pooling2DParams struct {
	PoolSize []int `validate:"len=2,dive,gt=0"`
	Strides  []int `validate:"omitempty,len=2,dive,gt=0"`
}

// Pooling2D returns the adapter for MaxPooling2D or AveragePooling2D.
func Pooling2D(mode domain.PoolMode) ports.AdapterFunc {
	return func(attrs domain.Attributes, enforce bool) (domain.LayerSpec, error) {
		name, err := nodeName(attrs)
		if err != nil {
			return nil, err
		}
		poolSize, err := domain.IntTuple(attrs, keyPoolSize, 2, []int{2, 2})
		if err != nil {
			return nil, err
		}
		var strides []int
		if v, ok := attrs.Raw(keyPoolStrides.Name()); ok && v != nil {
			if strides, err = domain.IntTuple(attrs, keyPoolStrides, 2, nil); err != nil {
				return nil, err
			}
		}
		pad, err := padding(attrs)
		if err != nil {
			return nil, err
		}
		format, err := dataFormat(attrs)
		if err != nil {
			return nil, err
		}
		if err := validateParams(pooling2DParams{PoolSize: poolSize, Strides: strides},
			map[string]any{"pool_size": poolSize, "strides": strides}); err != nil {
			return nil, err
		}

		spec, err := domain.NewPooling2DSpec(name, mode, poolSize, strides, pad, format)
		if err != nil {
			return nil, err
		}
		return spec, nil
	}
}

// Pooling2DShape applies the pooling window to both spatial axes.
func Pooling2DShape(spec domain.LayerSpec, inputs []domain.Shape) (domain.Shape, error) {
	s, err := specAs[*domain.Pooling2DSpec](spec)
	if err != nil {
		return nil, err
	}
	in := inputs[0]
	if in.Rank() != 4 {
		return nil, invalidRank(s.Kind(), 4, in)
	}
	h, w, _ := s.DataFormat().SpatialAxes()
	k, st := s.PoolSize(), s.Strides()

	out := in.Clone()
	for i, axis := range []int{h, w} {
		d, err := windowDim(in[axis], k[i], st[i], 1, s.Padding())
		if err != nil {
			return nil, err
		}
		out[axis] = d
	}
	return out, nil
}

// GlobalPooling2D returns the adapter for GlobalMaxPooling2D or
// GlobalAveragePooling2D.
func GlobalPooling2D(mode domain.PoolMode) ports.AdapterFunc {
	return func(attrs domain.Attributes, enforce bool) (domain.LayerSpec, error) {
		name, err := nodeName(attrs)
		if err != nil {
			return nil, err
		}
		format, err := dataFormat(attrs)
		if err != nil {
			return nil, err
		}
		spec, err := domain.NewGlobalPooling2DSpec(name, mode, format)
		if err != nil {
			return nil, err
		}
		return spec, nil
	}
}

// GlobalPooling2DShape reduces [b, h, w, c] to [b, c].
func GlobalPooling2DShape(spec domain.LayerSpec, inputs []domain.Shape) (domain.Shape, error) {
	s, err := specAs[*domain.GlobalPooling2DSpec](spec)
	if err != nil {
		return nil, err
	}
	in := inputs[0]
	if in.Rank() != 4 {
		return nil, invalidRank(s.Kind(), 4, in)
	}
	_, _, c := s.DataFormat().SpatialAxes()
	return domain.Shape{in[0], in[c]}, nil
}
