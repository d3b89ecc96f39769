package adapters

import (
	"fmt"

	"github.com/ahrav/go-netimport/internal/domain"
)

var (
	keyBatchShape  = domain.NewKey[domain.Shape]("batch_input_shape", "batch_shape")
	keyInputShape  = domain.NewKey[domain.Shape]("shape", "input_shape")
	keyUnits       = domain.NewKey[int]("units", "output_dim")
	keyRate        = domain.NewKey[float64]("rate", "p")
	keyTargetShape = domain.NewKey[domain.Shape]("target_shape")
)

// denseParams mirrors the constraints of a dense layer for validation.
type denseParams struct {
	Units int `validate:"gt=0"`
}

// dropoutParams mirrors the constraints of a dropout layer for validation.
type dropoutParams struct {
	Rate float64 `validate:"gte=0,lt=1"`
}

// BuildInput translates an InputLayer. The shape comes from
// batch_input_shape, or from shape with an unknown batch axis prepended.
func BuildInput(attrs domain.Attributes, enforce bool) (domain.LayerSpec, error) {
	name, err := nodeName(attrs)
	if err != nil {
		return nil, err
	}

	shape, err := domain.Required(attrs, keyBatchShape)
	if err != nil {
		if !isMissing(err) {
			return nil, err
		}
		inner, ierr := domain.Required(attrs, keyInputShape)
		if ierr != nil {
			if isMissing(ierr) {
				return nil, err
			}
			return nil, ierr
		}
		shape = append(domain.Shape{domain.UnknownDim}, inner...)
	}

	spec, err := domain.NewInputSpec(name, shape)
	if err != nil {
		return nil, err
	}
	return spec, nil
}

// InputShape returns the declared batch shape.
func InputShape(spec domain.LayerSpec, _ []domain.Shape) (domain.Shape, error) {
	s, err := specAs[*domain.InputSpec](spec)
	if err != nil {
		return nil, err
	}
	return s.BatchShape(), nil
}

// BuildDense translates a Dense layer (keras1 output_dim, keras2 units).
func BuildDense(attrs domain.Attributes, enforce bool) (domain.LayerSpec, error) {
	name, err := nodeName(attrs)
	if err != nil {
		return nil, err
	}
	if err := checkTrainingConfig(attrs, name, enforce); err != nil {
		return nil, err
	}
	units, err := domain.Required(attrs, keyUnits)
	if err != nil {
		return nil, err
	}
	if err := validateParams(denseParams{Units: units}, map[string]any{"units": units}); err != nil {
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

	spec, err := domain.NewDenseSpec(name, units, act, useBias)
	if err != nil {
		return nil, err
	}
	return spec, nil
}

// DenseShape replaces the last axis with the unit count.
func DenseShape(spec domain.LayerSpec, inputs []domain.Shape) (domain.Shape, error) {
	s, err := specAs[*domain.DenseSpec](spec)
	if err != nil {
		return nil, err
	}
	in := inputs[0]
	if in.Rank() < 2 {
		return nil, invalidRank(s.Kind(), 2, in)
	}
	out := in.Clone()
	out[len(out)-1] = int64(s.Units())
	return out, nil
}

// BuildActivation translates an Activation layer.
func BuildActivation(attrs domain.Attributes, enforce bool) (domain.LayerSpec, error) {
	name, err := nodeName(attrs)
	if err != nil {
		return nil, err
	}
	act, err := domain.Required(attrs, keyActivation)
	if err != nil {
		return nil, err
	}
	spec, err := domain.NewActivationSpec(name, act)
	if err != nil {
		return nil, err
	}
	return spec, nil
}

// BuildDropout translates a Dropout layer (keras1 p, keras2 rate).
func BuildDropout(attrs domain.Attributes, enforce bool) (domain.LayerSpec, error) {
	name, err := nodeName(attrs)
	if err != nil {
		return nil, err
	}
	rate, err := domain.Required(attrs, keyRate)
	if err != nil {
		return nil, err
	}
	if err := validateParams(dropoutParams{Rate: rate}, map[string]any{"rate": rate}); err != nil {
		return nil, err
	}
	spec, err := domain.NewDropoutSpec(name, rate)
	if err != nil {
		return nil, err
	}
	return spec, nil
}

// IdentityShape passes the single input through unchanged.
func IdentityShape(_ domain.LayerSpec, inputs []domain.Shape) (domain.Shape, error) {
	return inputs[0].Clone(), nil
}

// BuildFlatten translates a Flatten layer. Only channels_last flattening
// is supported since channels_first changes element order.
func BuildFlatten(attrs domain.Attributes, enforce bool) (domain.LayerSpec, error) {
	name, err := nodeName(attrs)
	if err != nil {
		return nil, err
	}
	spec, err := domain.NewFlattenSpec(name)
	if err != nil {
		return nil, err
	}
	return spec, nil
}

// FlattenShape collapses every non-batch axis into one. The result is
// unknown when any collapsed axis is unknown.
func FlattenShape(spec domain.LayerSpec, inputs []domain.Shape) (domain.Shape, error) {
	in := inputs[0]
	if in.Rank() < 2 {
		return nil, invalidRank(spec.Kind(), 2, in)
	}
	n, known, err := domain.ElementCount(in[1:])
	if err != nil {
		return nil, err
	}
	if !known {
		return domain.Shape{in[0], domain.UnknownDim}, nil
	}
	return domain.Shape{in[0], n}, nil
}

// BuildReshape translates a Reshape layer.
func BuildReshape(attrs domain.Attributes, enforce bool) (domain.LayerSpec, error) {
	name, err := nodeName(attrs)
	if err != nil {
		return nil, err
	}
	target, err := domain.Required(attrs, keyTargetShape)
	if err != nil {
		return nil, err
	}
	spec, err := domain.NewReshapeSpec(name, target)
	if err != nil {
		return nil, err
	}
	return spec, nil
}

// ReshapeShape resolves the target shape against the input element count.
// A single -1 in the target is inferred when the count is known.
func ReshapeShape(spec domain.LayerSpec, inputs []domain.Shape) (domain.Shape, error) {
	s, err := specAs[*domain.ReshapeSpec](spec)
	if err != nil {
		return nil, err
	}
	in := inputs[0]
	if in.Rank() < 2 {
		return nil, invalidRank(s.Kind(), 2, in)
	}
	target := s.TargetShape()
	out := append(domain.Shape{in[0]}, target...)

	total, known, err := domain.ElementCount(in[1:])
	if err != nil {
		return nil, err
	}
	if !known {
		return out, nil
	}

	product, unknownAt := int64(1), -1
	for i, d := range target {
		if d == domain.UnknownDim {
			unknownAt = i
			continue
		}
		if product, err = domain.ScaleDim(product, d); err != nil {
			return nil, err
		}
	}
	params := map[string]any{"input_shape": in.String(), "target_shape": target.String()}
	if unknownAt < 0 {
		if product != total {
			return nil, domain.NewInvalidConfigurationError(
				fmt.Sprintf("cannot reshape %d elements into %s", total, target), params)
		}
		return out, nil
	}
	if product == 0 || total%product != 0 {
		return nil, domain.NewInvalidConfigurationError(
			fmt.Sprintf("cannot reshape %d elements into %s", total, target), params)
	}
	out[unknownAt+1] = total / product
	return out, nil
}
