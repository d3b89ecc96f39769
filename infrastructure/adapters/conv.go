package adapters

import (
	"fmt"

	"github.com/ahrav/go-netimport/internal/domain"
)

var (
	keyFilters    = domain.NewKey[int]("filters", "nb_filter")
	keyKernelSize = domain.NewKey[[]int]("kernel_size")
	keyKernelRows = domain.NewKey[int]("nb_row")
	keyKernelCols = domain.NewKey[int]("nb_col")
	keyStrides    = domain.NewKey[[]int]("strides", "subsample")
	keyDilation   = domain.NewKey[[]int]("dilation_rate", "atrous_rate")
)

type conv2DParams struct {
	Filters  int   `validate:"gt=0"`
	Kernel   []int `validate:"len=2,dive,gt=0"`
	Strides  []int `validate:"len=2,dive,gt=0"`
	Dilation []int `validate:"len=2,dive,gt=0"`
}

// BuildConv2D translates Conv2D (keras2) and Convolution2D (keras1). The
// keras1 kernel is given as separate nb_row and nb_col values.
func BuildConv2D(attrs domain.Attributes, enforce bool) (domain.LayerSpec, error) {
	name, err := nodeName(attrs)
	if err != nil {
		return nil, err
	}
	if err := checkTrainingConfig(attrs, name, enforce); err != nil {
		return nil, err
	}
	filters, err := domain.Required(attrs, keyFilters)
	if err != nil {
		return nil, err
	}
	kernel, err := kernelSize(attrs)
	if err != nil {
		return nil, err
	}
	strides, err := domain.IntTuple(attrs, keyStrides, 2, []int{1, 1})
	if err != nil {
		return nil, err
	}
	dilation, err := domain.IntTuple(attrs, keyDilation, 2, []int{1, 1})
	if err != nil {
		return nil, err
	}
	pad, err := padding(attrs)
	if err != nil {
		return nil, err
	}
	format, err := dataFormat(attrs)
	if err != nil {
		return nil, err
	}
	act, err := activation(attrs)
	if err != nil {
		return nil, err
	}
	useBias, err := domain.Optional(attrs, keyUseBias, true)
	if err != nil {
		return nil, err
	}

	p := conv2DParams{Filters: filters, Kernel: kernel, Strides: strides, Dilation: dilation}
	if err := validateParams(p, map[string]any{
		"filters": filters, "kernel_size": kernel, "strides": strides, "dilation_rate": dilation,
	}); err != nil {
		return nil, err
	}

	spec, err := domain.NewConv2DSpec(name, filters, kernel, domain.Conv2DOptions{
		Strides:    strides,
		Dilation:   dilation,
		Padding:    pad,
		DataFormat: format,
		Activation: act,
		UseBias:    useBias,
	})
	if err != nil {
		return nil, err
	}
	return spec, nil
}

// kernelSize reads kernel_size, falling back to the keras1 nb_row/nb_col
// pair.
func kernelSize(attrs domain.Attributes) ([]int, error) {
	k, err := domain.IntTuple(attrs, keyKernelSize, 2, nil)
	if err == nil || !isMissing(err) {
		return k, err
	}
	rows, rerr := domain.Required(attrs, keyKernelRows)
	if rerr != nil {
		if isMissing(rerr) {
			return nil, err
		}
		return nil, rerr
	}
	cols, cerr := domain.Required(attrs, keyKernelCols)
	if cerr != nil {
		return nil, cerr
	}
	return []int{rows, cols}, nil
}

// Conv2DShape computes the spatial output of a convolution and replaces
// the channel axis with the filter count.
func Conv2DShape(spec domain.LayerSpec, inputs []domain.Shape) (domain.Shape, error) {
	s, err := specAs[*domain.Conv2DSpec](spec)
	if err != nil {
		return nil, err
	}
	in := inputs[0]
	if in.Rank() != 4 {
		return nil, invalidRank(s.Kind(), 4, in)
	}
	h, w, c := s.DataFormat().SpatialAxes()
	k, st, dl := s.KernelSize(), s.Strides(), s.Dilation()

	out := in.Clone()
	for i, axis := range []int{h, w} {
		d, err := windowDim(in[axis], k[i], st[i], dl[i], s.Padding())
		if err != nil {
			return nil, err
		}
		out[axis] = d
	}
	out[c] = int64(s.Filters())
	return out, nil
}

// windowDim is the output length of a sliding window over n elements.
// Unknown input stays unknown.
func windowDim(n int64, kernel, stride, dilation int, pad domain.Padding) (int64, error) {
	if n < 0 {
		return domain.UnknownDim, nil
	}
	span, err := domain.ScaleDim(int64(kernel-1), int64(dilation))
	if err != nil {
		return 0, err
	}
	eff, err := domain.AddDims(span, 1)
	if err != nil {
		return 0, err
	}
	s := int64(stride)
	if pad == domain.PaddingSame {
		out := n / s
		if n%s != 0 {
			out++
		}
		return out, nil
	}
	if n < eff {
		return 0, domain.NewInvalidConfigurationError(
			fmt.Sprintf("window of size %d does not fit input of size %d", eff, n),
			map[string]any{"kernel": kernel, "dilation": dilation, "input": n})
	}
	return (n-eff)/s + 1, nil
}
