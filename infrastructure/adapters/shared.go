// Package adapters provides the built-in layer adapters and shape rules
// that plug into the import engine's registry. Each adapter reads one
// layer type's attribute dictionary, for every descriptor revision it
// supports, and produces a validated domain.LayerSpec.
package adapters

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-netimport/internal/domain"
)

// Package-level validator instance for parameter validation.
// Uses go-playground/validator v10 for struct tag-based validation.
var validate = validator.New()

// Attribute keys shared by several layer families. Aliases list the
// keras1 spelling after the keras2 one.
var (
	keyName       = domain.NewKey[string]("name")
	keyActivation = domain.NewKey[string]("activation")
	keyUseBias    = domain.NewKey[bool]("use_bias", "bias")
	keyDataFormat = domain.NewKey[string]("data_format", "dim_ordering")
	keyPadding    = domain.NewKey[string]("padding", "border_mode")
)

// trainingOnlyKeys are attributes that only affect training and have no
// representation in a ConfigurationModel.
var trainingOnlyKeys = []string{
	"kernel_regularizer", "bias_regularizer", "activity_regularizer",
	"kernel_constraint", "bias_constraint",
	"gamma_regularizer", "beta_regularizer", "gamma_constraint", "beta_constraint",
	"depthwise_regularizer", "pointwise_regularizer",
	"W_regularizer", "b_regularizer", "W_constraint", "b_constraint",
}

// nodeName reads the reserved node name attribute.
func nodeName(attrs domain.Attributes) (string, error) {
	return domain.Required(attrs, keyName)
}

// dataFormat reads data_format (keras2) or dim_ordering (keras1),
// defaulting to channels_last.
func dataFormat(attrs domain.Attributes) (domain.DataFormat, error) {
	s, err := domain.Optional(attrs, keyDataFormat, "")
	if err != nil {
		return "", err
	}
	return domain.ParseDataFormat(s)
}

// padding reads padding (keras2) or border_mode (keras1), defaulting to
// valid.
func padding(attrs domain.Attributes) (domain.Padding, error) {
	s, err := domain.Optional(attrs, keyPadding, "")
	if err != nil {
		return "", err
	}
	return domain.ParsePadding(s)
}

// checkTrainingConfig rejects training-only attributes when enforce is set
// and logs them as ignored otherwise.
func checkTrainingConfig(attrs domain.Attributes, layer string, enforce bool) error {
	var present []string
	for _, k := range trainingOnlyKeys {
		if v, ok := attrs.Raw(k); ok && v != nil {
			present = append(present, k)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if enforce {
		return domain.NewUnsupportedConfigurationError(
			fmt.Sprintf("training-only attributes %s are not supported", strings.Join(present, ", ")),
			map[string]any{"attributes": present})
	}
	slog.Warn("ignoring training-only attributes", "node", layer, "attributes", present)
	return nil
}

// validateParams runs struct validation on p and converts failures into an
// InvalidConfigurationError carrying the offending values.
func validateParams(p any, params map[string]any) error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("parameter validation failed: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
	}
	return domain.NewInvalidConfigurationError(strings.Join(msgs, "; "), params)
}

// activation reads the activation name, defaulting to linear.
func activation(attrs domain.Attributes) (string, error) {
	return domain.Optional(attrs, keyActivation, "linear")
}

// invalidRank reports an input of the wrong rank.
func invalidRank(kind domain.LayerKind, want int, got domain.Shape) error {
	return domain.NewInvalidConfigurationError(
		fmt.Sprintf("%s layer expects a rank-%d input, got %s", kind, want, got),
		map[string]any{"input_shape": got.String(), "expected_rank": want})
}

// specAs narrows spec to the concrete type a shape rule expects.
func specAs[T domain.LayerSpec](spec domain.LayerSpec) (T, error) {
	s, ok := spec.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s shape rule cannot handle %T", spec.Kind(), spec)
	}
	return s, nil
}

// isMissing reports whether err is a MissingKeyError.
func isMissing(err error) bool { return errors.Is(err, domain.ErrMissingKey) }
