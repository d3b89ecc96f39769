package adapters

import (
	"fmt"

	"github.com/ahrav/go-netimport/internal/domain"
)

var (
	keyAxis     = domain.NewKey[int]("axis")
	keyEpsilon  = domain.NewKey[float64]("epsilon")
	keyMomentum = domain.NewKey[float64]("momentum")
	keyCenter   = domain.NewKey[bool]("center")
	keyScale    = domain.NewKey[bool]("scale")
	keyBNMode   = domain.NewKey[int]("mode")
)

type batchNormParams struct {
	Epsilon  float64 `validate:"gt=0"`
	Momentum float64 `validate:"gte=0,lte=1"`
}

// BuildBatchNormalization translates BatchNormalization. keras1 modes
// other than 0 (feature-wise) normalize per sample and are rejected.
func BuildBatchNormalization(attrs domain.Attributes, enforce bool) (domain.LayerSpec, error) {
	name, err := nodeName(attrs)
	if err != nil {
		return nil, err
	}
	if err := checkTrainingConfig(attrs, name, enforce); err != nil {
		return nil, err
	}
	if attrs.Version() == domain.FormatKeras1 {
		mode, err := domain.Optional(attrs, keyBNMode, 0)
		if err != nil {
			return nil, err
		}
		if mode != 0 {
			return nil, domain.NewUnsupportedConfigurationError(
				fmt.Sprintf("batch normalization mode %d is not supported", mode),
				map[string]any{"mode": mode})
		}
	}
	axis, err := domain.Optional(attrs, keyAxis, -1)
	if err != nil {
		return nil, err
	}
	eps, err := domain.Optional(attrs, keyEpsilon, 1e-3)
	if err != nil {
		return nil, err
	}
	momentum, err := domain.Optional(attrs, keyMomentum, 0.99)
	if err != nil {
		return nil, err
	}
	center, err := domain.Optional(attrs, keyCenter, true)
	if err != nil {
		return nil, err
	}
	scale, err := domain.Optional(attrs, keyScale, true)
	if err != nil {
		return nil, err
	}
	if err := validateParams(batchNormParams{Epsilon: eps, Momentum: momentum},
		map[string]any{"epsilon": eps, "momentum": momentum}); err != nil {
		return nil, err
	}

	spec, err := domain.NewBatchNormalizationSpec(name, axis, eps, momentum, center, scale)
	if err != nil {
		return nil, err
	}
	return spec, nil
}

// BatchNormalizationShape passes the input through after checking the
// normalized axis exists and is not the batch axis.
func BatchNormalizationShape(spec domain.LayerSpec, inputs []domain.Shape) (domain.Shape, error) {
	s, err := specAs[*domain.BatchNormalizationSpec](spec)
	if err != nil {
		return nil, err
	}
	in := inputs[0]
	if _, err := normalizeAxis(s.Axis(), in); err != nil {
		return nil, err
	}
	return in.Clone(), nil
}

// normalizeAxis resolves a possibly negative axis against in. The batch
// axis is never a valid target.
func normalizeAxis(axis int, in domain.Shape) (int, error) {
	a := axis
	if a < 0 {
		a += in.Rank()
	}
	if a <= 0 || a >= in.Rank() {
		return 0, domain.NewInvalidConfigurationError(
			fmt.Sprintf("axis %d is out of range for input %s", axis, in),
			map[string]any{"axis": axis, "input_shape": in.String()})
	}
	return a, nil
}
