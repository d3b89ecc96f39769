package adapters

import (
	"fmt"

	"github.com/ahrav/go-netimport/internal/domain"
)

var (
	keyUpsampling2DSize = domain.NewKey[[]int]("size")
	keyUpsampling1DSize = domain.NewKey[int]("size", "length")
	keyInterpolation    = domain.NewKey[string]("interpolation")
)

// upsampling2DParams holds the per-axis factors before they are reduced to
// the single uniform factor of an Upsampling2DSpec.
type upsampling2DParams struct {
	Size []int `validate:"len=2,dive,gt=0"`
}

// BuildUpsampling2D translates an UpSampling2D layer. size may be a scalar
// or a two-element list; both factors must be equal because the model
// represents a single uniform factor.
func BuildUpsampling2D(attrs domain.Attributes, _ bool) (domain.LayerSpec, error) {
	name, err := nodeName(attrs)
	if err != nil {
		return nil, err
	}
	size, err := domain.IntTuple(attrs, keyUpsampling2DSize, 2, nil)
	if err != nil {
		return nil, err
	}
	format, err := dataFormat(attrs)
	if err != nil {
		return nil, err
	}
	interp, err := domain.Optional(attrs, keyInterpolation, "nearest")
	if err != nil {
		return nil, err
	}
	if interp != "nearest" {
		return nil, domain.NewUnsupportedConfigurationError(
			fmt.Sprintf("interpolation %q is not supported", interp),
			map[string]any{"interpolation": interp})
	}
	if err := validateParams(upsampling2DParams{Size: size}, map[string]any{"size": size}); err != nil {
		return nil, err
	}

	spec, err := domain.NewUniformUpsampling2DSpec(name, size, format)
	if err != nil {
		return nil, err
	}
	return spec, nil
}

// Upsampling2DShape multiplies both spatial axes of a rank-4 input by the
// factor. Batch and channel axes pass through and unknown dims stay
// unknown.
func Upsampling2DShape(spec domain.LayerSpec, inputs []domain.Shape) (domain.Shape, error) {
	s, err := specAs[*domain.Upsampling2DSpec](spec)
	if err != nil {
		return nil, err
	}
	in := inputs[0]
	if in.Rank() != 4 {
		return nil, invalidRank(s.Kind(), 4, in)
	}
	h, w, _ := s.DataFormat().SpatialAxes()
	out := in.Clone()
	for _, axis := range []int{h, w} {
		if out[axis], err = domain.ScaleDim(in[axis], int64(s.Size())); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// BuildUpsampling1D translates an UpSampling1D layer (keras1 "length").
func BuildUpsampling1D(attrs domain.Attributes, _ bool) (domain.LayerSpec, error) {
	name, err := nodeName(attrs)
	if err != nil {
		return nil, err
	}
	size, err := domain.Optional(attrs, keyUpsampling1DSize, 2)
	if err != nil {
		return nil, err
	}
	spec, err := domain.NewUpsampling1DSpec(name, size)
	if err != nil {
		return nil, err
	}
	return spec, nil
}

// Upsampling1DShape repeats each step of a [batch, steps, channels] input.
func Upsampling1DShape(spec domain.LayerSpec, inputs []domain.Shape) (domain.Shape, error) {
	s, err := specAs[*domain.Upsampling1DSpec](spec)
	if err != nil {
		return nil, err
	}
	in := inputs[0]
	if in.Rank() != 3 {
		return nil, invalidRank(s.Kind(), 3, in)
	}
	steps, err := domain.ScaleDim(in[1], int64(s.Size()))
	if err != nil {
		return nil, err
	}
	return domain.Shape{in[0], steps, in[2]}, nil
}
