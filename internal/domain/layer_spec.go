package domain

import (
	"fmt"
	"slices"
	"strings"
)

// LayerKind tags the variant held by a LayerSpec. Shape rules are keyed by
// kind, not by source layer type name, so several type names (e.g.
// "Conv2D" and "Convolution2D") can share one kind.
type LayerKind string

// Supported layer kinds.
const (
	KindInput              LayerKind = "input"
	KindDense              LayerKind = "dense"
	KindActivation         LayerKind = "activation"
	KindDropout            LayerKind = "dropout"
	KindFlatten            LayerKind = "flatten"
	KindReshape            LayerKind = "reshape"
	KindConv2D             LayerKind = "conv2d"
	KindPooling2D          LayerKind = "pooling2d"
	KindGlobalPooling2D    LayerKind = "global_pooling2d"
	KindZeroPadding2D      LayerKind = "zero_padding2d"
	KindUpsampling1D       LayerKind = "upsampling1d"
	KindUpsampling2D       LayerKind = "upsampling2d"
	KindBatchNormalization LayerKind = "batch_normalization"
	KindMerge              LayerKind = "merge"
)

// LayerSpec is a validated, kind-specific layer description. Values are
// only obtainable through the New*Spec constructors, so a LayerSpec in hand
// always satisfies the legality constraints of its kind.
type LayerSpec interface {
	// Kind returns the variant tag.
	Kind() LayerKind

	// Name returns the node name the spec was built for.
	Name() string

	// Params returns the validated parameters using the attribute names of
	// the latest descriptor format. Feeding the result back through the
	// kind's adapter yields an equal spec.
	Params() map[string]any
}

// DataFormat is the axis layout of spatial tensors.
type DataFormat string

// Supported data formats.
const (
	ChannelsLast  DataFormat = "channels_last"
	ChannelsFirst DataFormat = "channels_first"
)

// ParseDataFormat accepts the keras2 names and the keras1 "tf"/"th"
// dim_ordering values. An empty string selects ChannelsLast.
func ParseDataFormat(s string) (DataFormat, error) {
	switch strings.ToLower(s) {
	case "", "channels_last", "tf":
		return ChannelsLast, nil
	case "channels_first", "th":
		return ChannelsFirst, nil
	default:
		return "", NewInvalidConfigurationError(
			fmt.Sprintf("unknown data format %q", s), map[string]any{"data_format": s})
	}
}

// SpatialAxes returns the indices of the height and width axes of a rank-4
// tensor, and the channel axis.
func (f DataFormat) SpatialAxes() (h, w, c int) {
	if f == ChannelsFirst {
		return 2, 3, 1
	}
	return 1, 2, 3
}

// Padding is the border mode of convolution and pooling layers.
type Padding string

// Supported padding modes.
const (
	PaddingValid Padding = "valid"
	PaddingSame  Padding = "same"
)

// ParsePadding accepts "valid" and "same". "causal" and "full" are valid in
// the source format but have no representation here.
func ParsePadding(s string) (Padding, error) {
	switch strings.ToLower(s) {
	case "", "valid":
		return PaddingValid, nil
	case "same":
		return PaddingSame, nil
	case "causal", "full":
		return "", NewUnsupportedConfigurationError(
			fmt.Sprintf("padding mode %q is not supported", s), map[string]any{"padding": s})
	default:
		return "", NewInvalidConfigurationError(
			fmt.Sprintf("unknown padding mode %q", s), map[string]any{"padding": s})
	}
}

// PoolMode selects the reduction used by pooling layers.
type PoolMode string

// Supported pooling modes.
const (
	PoolMax     PoolMode = "max"
	PoolAverage PoolMode = "average"
)

// MergeMode selects how a merge layer combines its inputs.
type MergeMode string

// Supported merge modes.
const (
	MergeAdd         MergeMode = "add"
	MergeSubtract    MergeMode = "subtract"
	MergeMultiply    MergeMode = "multiply"
	MergeAverage     MergeMode = "average"
	MergeMaximum     MergeMode = "maximum"
	MergeConcatenate MergeMode = "concatenate"
)

// Elementwise reports whether the mode requires identical input shapes.
func (m MergeMode) Elementwise() bool { return m != MergeConcatenate }

func (m MergeMode) valid() bool {
	switch m {
	case MergeAdd, MergeSubtract, MergeMultiply, MergeAverage, MergeMaximum, MergeConcatenate:
		return true
	}
	return false
}

// base holds the node name shared by every spec.
type base struct{ name string }

// Name returns the node name.
func (b base) Name() string { return b.name }

func checkName(name string) error {
	if strings.TrimSpace(name) == "" {
		return NewInvalidConfigurationError("layer name cannot be empty", nil)
	}
	return nil
}

func checkPositive(params map[string]any, pairs ...any) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		key := pairs[i].(string)
		var v int
		switch n := pairs[i+1].(type) {
		case int:
			v = n
		case []int:
			for _, x := range n {
				if x <= 0 {
					return NewInvalidConfigurationError(
						fmt.Sprintf("%s must be positive, got %v", key, n), params)
				}
			}
			continue
		}
		if v <= 0 {
			return NewInvalidConfigurationError(
				fmt.Sprintf("%s must be positive, got %d", key, v), params)
		}
	}
	return nil
}

func pair(v []int) ([2]int, error) {
	if len(v) != 2 {
		return [2]int{}, NewInvalidConfigurationError(
			fmt.Sprintf("expected 2 values, got %d", len(v)), map[string]any{"values": v})
	}
	return [2]int{v[0], v[1]}, nil
}

// InputSpec declares a graph input with a fixed batch shape.
type InputSpec struct {
	base
	batchShape Shape
}

// NewInputSpec validates that shape has rank >= 2 and only -1 for unknowns.
func NewInputSpec(name string, batchShape Shape) (*InputSpec, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	params := map[string]any{"batch_input_shape": batchShape.Clone()}
	if batchShape.Rank() < 2 {
		return nil, NewInvalidConfigurationError(
			fmt.Sprintf("input shape must have rank >= 2, got %d", batchShape.Rank()), params)
	}
	for _, d := range batchShape {
		if d < UnknownDim || d == 0 {
			return nil, NewInvalidConfigurationError(
				fmt.Sprintf("input shape %s has an invalid dimension", batchShape), params)
		}
	}
	return &InputSpec{base: base{name}, batchShape: batchShape.Clone()}, nil
}

// Kind implements LayerSpec.
func (s *InputSpec) Kind() LayerKind { return KindInput }

// BatchShape returns the declared shape including the batch axis.
func (s *InputSpec) BatchShape() Shape { return s.batchShape.Clone() }

// Params implements LayerSpec.
func (s *InputSpec) Params() map[string]any {
	return map[string]any{"batch_input_shape": shapeToAny(s.batchShape)}
}

// DenseSpec is a fully connected layer.
type DenseSpec struct {
	base
	units      int
	activation string
	useBias    bool
}

// NewDenseSpec validates a dense layer.
func NewDenseSpec(name string, units int, activation string, useBias bool) (*DenseSpec, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if err := checkPositive(map[string]any{"units": units}, "units", units); err != nil {
		return nil, err
	}
	if activation == "" {
		activation = "linear"
	}
	return &DenseSpec{base: base{name}, units: units, activation: activation, useBias: useBias}, nil
}

func (s *DenseSpec) Kind() LayerKind    { return KindDense }
func (s *DenseSpec) Units() int         { return s.units }
func (s *DenseSpec) Activation() string { return s.activation }
func (s *DenseSpec) UseBias() bool      { return s.useBias }

func (s *DenseSpec) Params() map[string]any {
	return map[string]any{"units": s.units, "activation": s.activation, "use_bias": s.useBias}
}

// ActivationSpec applies an element-wise activation function.
type ActivationSpec struct {
	base
	activation string
}

// NewActivationSpec requires a non-empty activation name.
func NewActivationSpec(name, activation string) (*ActivationSpec, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if activation == "" {
		return nil, NewInvalidConfigurationError("activation cannot be empty", nil)
	}
	return &ActivationSpec{base: base{name}, activation: activation}, nil
}

func (s *ActivationSpec) Kind() LayerKind    { return KindActivation }
func (s *ActivationSpec) Activation() string { return s.activation }

func (s *ActivationSpec) Params() map[string]any {
	return map[string]any{"activation": s.activation}
}

// DropoutSpec randomly zeroes a fraction of its inputs during training.
type DropoutSpec struct {
	base
	rate float64
}

// NewDropoutSpec requires 0 <= rate < 1.
func NewDropoutSpec(name string, rate float64) (*DropoutSpec, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if rate < 0 || rate >= 1 {
		return nil, NewInvalidConfigurationError(
			fmt.Sprintf("dropout rate must be in [0, 1), got %g", rate), map[string]any{"rate": rate})
	}
	return &DropoutSpec{base: base{name}, rate: rate}, nil
}

func (s *DropoutSpec) Kind() LayerKind        { return KindDropout }
func (s *DropoutSpec) Rate() float64          { return s.rate }
func (s *DropoutSpec) Params() map[string]any { return map[string]any{"rate": s.rate} }

// FlattenSpec collapses all non-batch axes into one.
type FlattenSpec struct{ base }

// NewFlattenSpec builds a flatten layer.
func NewFlattenSpec(name string) (*FlattenSpec, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	return &FlattenSpec{base{name}}, nil
}

func (s *FlattenSpec) Kind() LayerKind        { return KindFlatten }
func (s *FlattenSpec) Params() map[string]any { return map[string]any{} }

// ReshapeSpec reshapes the non-batch axes to a target shape. At most one
// target dimension may be -1.
type ReshapeSpec struct {
	base
	target Shape
}

// NewReshapeSpec validates the target shape.
func NewReshapeSpec(name string, target Shape) (*ReshapeSpec, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	params := map[string]any{"target_shape": target.Clone()}
	if target.Rank() == 0 {
		return nil, NewInvalidConfigurationError("target shape cannot be empty", params)
	}
	unknown := 0
	for _, d := range target {
		switch {
		case d == UnknownDim:
			unknown++
		case d <= 0:
			return nil, NewInvalidConfigurationError(
				fmt.Sprintf("target shape %s has an invalid dimension", target), params)
		}
	}
	if unknown > 1 {
		return nil, NewInvalidConfigurationError(
			"target shape may contain at most one unknown dimension", params)
	}
	return &ReshapeSpec{base: base{name}, target: target.Clone()}, nil
}

func (s *ReshapeSpec) Kind() LayerKind    { return KindReshape }
func (s *ReshapeSpec) TargetShape() Shape { return s.target.Clone() }
func (s *ReshapeSpec) Params() map[string]any {
	return map[string]any{"target_shape": shapeToAny(s.target)}
}

// Conv2DSpec is a 2D convolution.
type Conv2DSpec struct {
	base
	filters    int
	kernel     [2]int
	strides    [2]int
	dilation   [2]int
	padding    Padding
	dataFormat DataFormat
	activation string
	useBias    bool
}

// Conv2DOptions carries the optional parameters of NewConv2DSpec.
type Conv2DOptions struct {
	Strides    []int
	Dilation   []int
	Padding    Padding
	DataFormat DataFormat
	Activation string
	UseBias    bool
}

// NewConv2DSpec validates a convolution. Strided and dilated convolution
// cannot be combined.
func NewConv2DSpec(name string, filters int, kernel []int, opts Conv2DOptions) (*Conv2DSpec, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if opts.Strides == nil {
		opts.Strides = []int{1, 1}
	}
	if opts.Dilation == nil {
		opts.Dilation = []int{1, 1}
	}
	if opts.Padding == "" {
		opts.Padding = PaddingValid
	}
	if opts.DataFormat == "" {
		opts.DataFormat = ChannelsLast
	}
	if opts.Activation == "" {
		opts.Activation = "linear"
	}
	params := map[string]any{
		"filters": filters, "kernel_size": kernel,
		"strides": opts.Strides, "dilation_rate": opts.Dilation,
	}
	if err := checkPositive(params, "filters", filters, "kernel_size", kernel,
		"strides", opts.Strides, "dilation_rate", opts.Dilation); err != nil {
		return nil, err
	}
	k, err := pair(kernel)
	if err != nil {
		return nil, err
	}
	st, err := pair(opts.Strides)
	if err != nil {
		return nil, err
	}
	dl, err := pair(opts.Dilation)
	if err != nil {
		return nil, err
	}
	if (st != [2]int{1, 1}) && (dl != [2]int{1, 1}) {
		return nil, NewInvalidConfigurationError(
			"strides > 1 cannot be combined with dilation_rate > 1", params)
	}
	return &Conv2DSpec{
		base: base{name}, filters: filters, kernel: k, strides: st, dilation: dl,
		padding: opts.Padding, dataFormat: opts.DataFormat,
		activation: opts.Activation, useBias: opts.UseBias,
	}, nil
}

func (s *Conv2DSpec) Kind() LayerKind        { return KindConv2D }
func (s *Conv2DSpec) Filters() int           { return s.filters }
func (s *Conv2DSpec) KernelSize() [2]int     { return s.kernel }
func (s *Conv2DSpec) Strides() [2]int        { return s.strides }
func (s *Conv2DSpec) Dilation() [2]int       { return s.dilation }
func (s *Conv2DSpec) Padding() Padding       { return s.padding }
func (s *Conv2DSpec) DataFormat() DataFormat { return s.dataFormat }
func (s *Conv2DSpec) Activation() string     { return s.activation }

func (s *Conv2DSpec) Params() map[string]any {
	return map[string]any{
		"filters":       s.filters,
		"kernel_size":   pairSlice(s.kernel),
		"strides":       pairSlice(s.strides),
		"dilation_rate": pairSlice(s.dilation),
		"padding":       string(s.padding),
		"data_format":   string(s.dataFormat),
		"activation":    s.activation,
		"use_bias":      s.useBias,
	}
}

// Pooling2DSpec is a windowed max or average pooling layer.
type Pooling2DSpec struct {
	base
	mode       PoolMode
	poolSize   [2]int
	strides    [2]int
	padding    Padding
	dataFormat DataFormat
}

// NewPooling2DSpec validates a pooling layer. Nil strides default to the
// pool size.
func NewPooling2DSpec(name string, mode PoolMode, poolSize, strides []int, padding Padding, format DataFormat) (*Pooling2DSpec, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if mode != PoolMax && mode != PoolAverage {
		return nil, NewInvalidConfigurationError(
			fmt.Sprintf("unknown pooling mode %q", mode), map[string]any{"mode": string(mode)})
	}
	if strides == nil {
		strides = poolSize
	}
	if padding == "" {
		padding = PaddingValid
	}
	if format == "" {
		format = ChannelsLast
	}
	params := map[string]any{"pool_size": poolSize, "strides": strides}
	if err := checkPositive(params, "pool_size", poolSize, "strides", strides); err != nil {
		return nil, err
	}
	ps, err := pair(poolSize)
	if err != nil {
		return nil, err
	}
	st, err := pair(strides)
	if err != nil {
		return nil, err
	}
	return &Pooling2DSpec{base: base{name}, mode: mode, poolSize: ps, strides: st,
		padding: padding, dataFormat: format}, nil
}

func (s *Pooling2DSpec) Kind() LayerKind        { return KindPooling2D }
func (s *Pooling2DSpec) Mode() PoolMode         { return s.mode }
func (s *Pooling2DSpec) PoolSize() [2]int       { return s.poolSize }
func (s *Pooling2DSpec) Strides() [2]int        { return s.strides }
func (s *Pooling2DSpec) Padding() Padding       { return s.padding }
func (s *Pooling2DSpec) DataFormat() DataFormat { return s.dataFormat }

func (s *Pooling2DSpec) Params() map[string]any {
	return map[string]any{
		"pool_size":   pairSlice(s.poolSize),
		"strides":     pairSlice(s.strides),
		"padding":     string(s.padding),
		"data_format": string(s.dataFormat),
	}
}

// GlobalPooling2DSpec reduces both spatial axes to a single value per
// channel.
type GlobalPooling2DSpec struct {
	base
	mode       PoolMode
	dataFormat DataFormat
}

// NewGlobalPooling2DSpec validates a global pooling layer.
func NewGlobalPooling2DSpec(name string, mode PoolMode, format DataFormat) (*GlobalPooling2DSpec, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if mode != PoolMax && mode != PoolAverage {
		return nil, NewInvalidConfigurationError(
			fmt.Sprintf("unknown pooling mode %q", mode), map[string]any{"mode": string(mode)})
	}
	if format == "" {
		format = ChannelsLast
	}
	return &GlobalPooling2DSpec{base: base{name}, mode: mode, dataFormat: format}, nil
}

func (s *GlobalPooling2DSpec) Kind() LayerKind        { return KindGlobalPooling2D }
func (s *GlobalPooling2DSpec) Mode() PoolMode         { return s.mode }
func (s *GlobalPooling2DSpec) DataFormat() DataFormat { return s.dataFormat }

func (s *GlobalPooling2DSpec) Params() map[string]any {
	return map[string]any{"data_format": string(s.dataFormat)}
}

// ZeroPadding2DSpec pads the spatial axes with zeros.
type ZeroPadding2DSpec struct {
	base
	top, bottom, left, right int
	dataFormat               DataFormat
}

// NewZeroPadding2DSpec requires non-negative padding amounts.
func NewZeroPadding2DSpec(name string, top, bottom, left, right int, format DataFormat) (*ZeroPadding2DSpec, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if top < 0 || bottom < 0 || left < 0 || right < 0 {
		return nil, NewInvalidConfigurationError("padding must be non-negative",
			map[string]any{"padding": []int{top, bottom, left, right}})
	}
	if format == "" {
		format = ChannelsLast
	}
	return &ZeroPadding2DSpec{base: base{name}, top: top, bottom: bottom, left: left, right: right,
		dataFormat: format}, nil
}

func (s *ZeroPadding2DSpec) Kind() LayerKind        { return KindZeroPadding2D }
func (s *ZeroPadding2DSpec) DataFormat() DataFormat { return s.dataFormat }

// Amounts returns the padding as top, bottom, left, right.
func (s *ZeroPadding2DSpec) Amounts() (top, bottom, left, right int) {
	return s.top, s.bottom, s.left, s.right
}

func (s *ZeroPadding2DSpec) Params() map[string]any {
	return map[string]any{
		"padding":     []any{[]int{s.top, s.bottom}, []int{s.left, s.right}},
		"data_format": string(s.dataFormat),
	}
}

// Upsampling1DSpec repeats each temporal step size times.
type Upsampling1DSpec struct {
	base
	size int
}

// NewUpsampling1DSpec requires a positive size.
func NewUpsampling1DSpec(name string, size int) (*Upsampling1DSpec, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if err := checkPositive(map[string]any{"size": size}, "size", size); err != nil {
		return nil, err
	}
	return &Upsampling1DSpec{base: base{name}, size: size}, nil
}

func (s *Upsampling1DSpec) Kind() LayerKind        { return KindUpsampling1D }
func (s *Upsampling1DSpec) Size() int              { return s.size }
func (s *Upsampling1DSpec) Params() map[string]any { return map[string]any{"size": s.size} }

// Upsampling2DSpec scales both spatial axes by one uniform integer factor.
type Upsampling2DSpec struct {
	base
	size       int
	dataFormat DataFormat
}

// NewUpsampling2DSpec requires a positive factor. Per-axis factors must be
// reduced to a single value by the caller; see NewUniformUpsampling2DSpec.
func NewUpsampling2DSpec(name string, size int, format DataFormat) (*Upsampling2DSpec, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if err := checkPositive(map[string]any{"size": size}, "size", size); err != nil {
		return nil, err
	}
	if format == "" {
		format = ChannelsLast
	}
	return &Upsampling2DSpec{base: base{name}, size: size, dataFormat: format}, nil
}

// NewUniformUpsampling2DSpec builds an Upsampling2DSpec from per-axis
// factors, rejecting any set whose factors are not all equal.
func NewUniformUpsampling2DSpec(name string, sizes []int, format DataFormat) (*Upsampling2DSpec, error) {
	if len(sizes) == 0 {
		return nil, NewInvalidConfigurationError("upsampling size cannot be empty", nil)
	}
	for _, f := range sizes[1:] {
		if f != sizes[0] {
			return nil, NewInvalidConfigurationError(
				fmt.Sprintf("upsampling factors must be equal on every spatial axis, got %v", sizes),
				map[string]any{"size": slices.Clone(sizes)})
		}
	}
	return NewUpsampling2DSpec(name, sizes[0], format)
}

func (s *Upsampling2DSpec) Kind() LayerKind        { return KindUpsampling2D }
func (s *Upsampling2DSpec) Size() int              { return s.size }
func (s *Upsampling2DSpec) DataFormat() DataFormat { return s.dataFormat }

func (s *Upsampling2DSpec) Params() map[string]any {
	return map[string]any{
		"size":        []int{s.size, s.size},
		"data_format": string(s.dataFormat),
	}
}

// BatchNormalizationSpec normalizes activations along one axis.
type BatchNormalizationSpec struct {
	base
	axis     int
	epsilon  float64
	momentum float64
	center   bool
	scale    bool
}

// NewBatchNormalizationSpec requires epsilon > 0 and 0 <= momentum <= 1.
func NewBatchNormalizationSpec(name string, axis int, epsilon, momentum float64, center, scale bool) (*BatchNormalizationSpec, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	params := map[string]any{"axis": axis, "epsilon": epsilon, "momentum": momentum}
	if epsilon <= 0 {
		return nil, NewInvalidConfigurationError(
			fmt.Sprintf("epsilon must be positive, got %g", epsilon), params)
	}
	if momentum < 0 || momentum > 1 {
		return nil, NewInvalidConfigurationError(
			fmt.Sprintf("momentum must be in [0, 1], got %g", momentum), params)
	}
	return &BatchNormalizationSpec{base: base{name}, axis: axis, epsilon: epsilon,
		momentum: momentum, center: center, scale: scale}, nil
}

func (s *BatchNormalizationSpec) Kind() LayerKind   { return KindBatchNormalization }
func (s *BatchNormalizationSpec) Axis() int         { return s.axis }
func (s *BatchNormalizationSpec) Epsilon() float64  { return s.epsilon }
func (s *BatchNormalizationSpec) Momentum() float64 { return s.momentum }

func (s *BatchNormalizationSpec) Params() map[string]any {
	return map[string]any{
		"axis": s.axis, "epsilon": s.epsilon, "momentum": s.momentum,
		"center": s.center, "scale": s.scale,
	}
}

// MergeSpec combines two or more inputs.
type MergeSpec struct {
	base
	mode MergeMode
	axis int
}

// NewMergeSpec validates the merge mode. axis is only used by
// MergeConcatenate and may be negative to count from the end.
func NewMergeSpec(name string, mode MergeMode, axis int) (*MergeSpec, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if !mode.valid() {
		return nil, NewInvalidConfigurationError(
			fmt.Sprintf("unknown merge mode %q", mode), map[string]any{"mode": string(mode)})
	}
	if axis == 0 && mode == MergeConcatenate {
		return nil, NewInvalidConfigurationError("cannot concatenate along the batch axis",
			map[string]any{"axis": axis})
	}
	return &MergeSpec{base: base{name}, mode: mode, axis: axis}, nil
}

func (s *MergeSpec) Kind() LayerKind { return KindMerge }
func (s *MergeSpec) Mode() MergeMode { return s.mode }
func (s *MergeSpec) Axis() int       { return s.axis }

func (s *MergeSpec) Params() map[string]any {
	p := map[string]any{"mode": string(s.mode)}
	if s.mode == MergeConcatenate {
		p["axis"] = s.axis
	}
	return p
}

func shapeToAny(s Shape) []any {
	out := make([]any, len(s))
	for i, d := range s {
		if d == UnknownDim {
			out[i] = nil
			continue
		}
		out[i] = d
	}
	return out
}

func pairSlice(p [2]int) []int { return []int{p[0], p[1]} }
