package adapters

import (
	"fmt"

	"github.com/ahrav/go-netimport/internal/domain"
	"github.com/ahrav/go-netimport/internal/ports"
)

// Builtin is one adapter table entry.
type Builtin struct {
	LayerType string
	Versions  domain.VersionRange
	Kind      domain.LayerKind
	Adapter   ports.LayerAdapter
}

// RuleEntry binds a shape rule and arity to a kind.
type RuleEntry struct {
	Kind  domain.LayerKind
	Arity ports.Arity
	Rule  ports.ShapeRule
}

var (
	keras1 = domain.OnlyVersion(domain.FormatKeras1)
	keras2 = domain.OnlyVersion(domain.FormatKeras2)
	all    = domain.AllVersions
)

// Builtins returns the built-in adapter table.
func Builtins() []Builtin {
	return []Builtin{
		{"InputLayer", all, domain.KindInput, ports.AdapterFunc(BuildInput)},
		{"Dense", all, domain.KindDense, ports.AdapterFunc(BuildDense)},
		{"Activation", all, domain.KindActivation, ports.AdapterFunc(BuildActivation)},
		{"Dropout", all, domain.KindDropout, ports.AdapterFunc(BuildDropout)},
		{"Flatten", all, domain.KindFlatten, ports.AdapterFunc(BuildFlatten)},
		{"Reshape", all, domain.KindReshape, ports.AdapterFunc(BuildReshape)},
		{"BatchNormalization", all, domain.KindBatchNormalization, ports.AdapterFunc(BuildBatchNormalization)},

		{"Convolution2D", keras1, domain.KindConv2D, ports.AdapterFunc(BuildConv2D)},
		{"Conv2D", keras2, domain.KindConv2D, ports.AdapterFunc(BuildConv2D)},

		{"MaxPooling2D", all, domain.KindPooling2D, Pooling2D(domain.PoolMax)},
		{"AveragePooling2D", all, domain.KindPooling2D, Pooling2D(domain.PoolAverage)},
		{"GlobalMaxPooling2D", all, domain.KindGlobalPooling2D, GlobalPooling2D(domain.PoolMax)},
		{"GlobalAveragePooling2D", all, domain.KindGlobalPooling2D, GlobalPooling2D(domain.PoolAverage)},
		{"ZeroPadding2D", all, domain.KindZeroPadding2D, ports.AdapterFunc(BuildZeroPadding2D)},

		{"UpSampling1D", all, domain.KindUpsampling1D, ports.AdapterFunc(BuildUpsampling1D)},
		{"UpSampling2D", all, domain.KindUpsampling2D, ports.AdapterFunc(BuildUpsampling2D)},

		{"Merge", keras1, domain.KindMerge, ports.AdapterFunc(BuildKeras1Merge)},
		{"Add", keras2, domain.KindMerge, Merge(domain.MergeAdd)},
		{"Subtract", keras2, domain.KindMerge, Merge(domain.MergeSubtract)},
		{"Multiply", keras2, domain.KindMerge, Merge(domain.MergeMultiply)},
		{"Average", keras2, domain.KindMerge, Merge(domain.MergeAverage)},
		{"Maximum", keras2, domain.KindMerge, Merge(domain.MergeMaximum)},
		{"Concatenate", keras2, domain.KindMerge, Merge(domain.MergeConcatenate)},
	}
}

// Rules returns the built-in shape rule table.
func Rules() []RuleEntry {
	return []RuleEntry{
		{domain.KindInput, ports.NoInputs, InputShape},
		{domain.KindDense, ports.SingleInput, DenseShape},
		{domain.KindActivation, ports.SingleInput, IdentityShape},
		{domain.KindDropout, ports.SingleInput, IdentityShape},
		{domain.KindFlatten, ports.SingleInput, FlattenShape},
		{domain.KindReshape, ports.SingleInput, ReshapeShape},
		{domain.KindBatchNormalization, ports.SingleInput, BatchNormalizationShape},
		{domain.KindConv2D, ports.SingleInput, Conv2DShape},
		{domain.KindPooling2D, ports.SingleInput, Pooling2DShape},
		{domain.KindGlobalPooling2D, ports.SingleInput, GlobalPooling2DShape},
		{domain.KindZeroPadding2D, ports.SingleInput, ZeroPadding2DShape},
		{domain.KindUpsampling1D, ports.SingleInput, Upsampling1DShape},
		{domain.KindUpsampling2D, ports.SingleInput, Upsampling2DShape},
		{domain.KindMerge, ports.AtLeastTwoInputs, MergeShape},
	}
}

// RegisterBuiltins adds every built-in adapter to reg and every built-in
// shape rule to rules. Either may be nil to skip that table.
func RegisterBuiltins(reg ports.AdapterRegistry, rules ports.RuleRegistry) error {
	if reg != nil {
		for _, b := range Builtins() {
			if err := reg.Register(b.Versions, b.LayerType, b.Adapter, b.Kind); err != nil {
				return fmt.Errorf("registering adapter %s: %w", b.LayerType, err)
			}
		}
	}
	if rules != nil {
		for _, r := range Rules() {
			if err := rules.RegisterRule(r.Kind, r.Arity, r.Rule); err != nil {
				return fmt.Errorf("registering shape rule %s: %w", r.Kind, err)
			}
		}
	}
	return nil
}
