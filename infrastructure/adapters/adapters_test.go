package adapters

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-netimport/internal/domain"
	"github.com/ahrav/go-netimport/internal/ports"
)

// buildCase is one adapter invocation and the expected outcome.
type buildCase struct {
	name        string
	version     domain.FormatVersion
	attrs       map[string]any
	enforce     bool
	input       []domain.Shape
	wantShape   domain.Shape
	expectedErr error
}

// runBuildCases builds each case, then applies rule to the result.
func runBuildCases(t *testing.T, build ports.AdapterFunc, rule ports.ShapeRule, tests []buildCase) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version := tt.version
			if version == 0 {
				version = domain.FormatKeras2
			}
			spec, err := build(layerAttrs(version, "node", tt.attrs), tt.enforce)
			if err == nil && tt.input != nil {
				var out domain.Shape
				out, err = rule(spec, tt.input)
				if err == nil {
					assert.Equal(t, tt.wantShape, out)
				}
			}
			if tt.expectedErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "node", spec.Name())
		})
	}
}

func shapes(s ...domain.Shape) []domain.Shape { return s }

func TestInputAdapter(t *testing.T) {
	runBuildCases(t, BuildInput, InputShape, []buildCase{
		{
			name:      "batch_input_shape with null batch",
			attrs:     map[string]any{"batch_input_shape": []any{nil, 28, 28, 1}},
			input:     []domain.Shape{},
			wantShape: domain.NewShape(-1, 28, 28, 1),
		},
		{
			name:      "shape without batch axis",
			attrs:     map[string]any{"shape": []any{784}},
			input:     []domain.Shape{},
			wantShape: domain.NewShape(-1, 784),
		},
		{
			name:      "keras1 float dims",
			version:   domain.FormatKeras1,
			attrs:     map[string]any{"batch_input_shape": []any{nil, 32.0, 32.0, 3.0}},
			input:     []domain.Shape{},
			wantShape: domain.NewShape(-1, 32, 32, 3),
		},
		{
			name:        "no shape",
			attrs:       map[string]any{},
			expectedErr: domain.ErrMissingKey,
		},
		{
			name:        "rank one",
			attrs:       map[string]any{"batch_input_shape": []any{nil}},
			expectedErr: domain.ErrInvalidConfiguration,
		},
		{
			name:        "zero dimension",
			attrs:       map[string]any{"batch_input_shape": []any{nil, 0}},
			expectedErr: domain.ErrInvalidConfiguration,
		},
	})
}

func TestDenseAdapter(t *testing.T) {
	runBuildCases(t, BuildDense, DenseShape, []buildCase{
		{
			name:      "keras2 units",
			attrs:     map[string]any{"units": 10, "activation": "softmax"},
			input:     shapes(domain.NewShape(-1, 784)),
			wantShape: domain.NewShape(-1, 10),
		},
		{
			name:      "keras1 output_dim",
			version:   domain.FormatKeras1,
			attrs:     map[string]any{"output_dim": 64, "bias": false},
			input:     shapes(domain.NewShape(-1, 5, 8)),
			wantShape: domain.NewShape(-1, 5, 64),
		},
		{
			name:        "zero units",
			attrs:       map[string]any{"units": 0},
			expectedErr: domain.ErrInvalidConfiguration,
		},
		{
			name:        "missing units",
			attrs:       map[string]any{},
			expectedErr: domain.ErrMissingKey,
		},
		{
			name:        "rank one input",
			attrs:       map[string]any{"units": 4},
			input:       shapes(domain.NewShape(10)),
			expectedErr: domain.ErrInvalidConfiguration,
		},
		{
			name:      "regularizer ignored",
			attrs:     map[string]any{"units": 4, "kernel_regularizer": map[string]any{"l2": 0.01}},
			input:     shapes(domain.NewShape(-1, 3)),
			wantShape: domain.NewShape(-1, 4),
		},
		{
			name:        "regularizer rejected when enforced",
			attrs:       map[string]any{"units": 4, "kernel_regularizer": map[string]any{"l2": 0.01}},
			enforce:     true,
			expectedErr: domain.ErrUnsupportedConfiguration,
		},
	})
}

func TestActivationAndDropoutAdapters(t *testing.T) {
	t.Run("activation", func(t *testing.T) {
		runBuildCases(t, BuildActivation, IdentityShape, []buildCase{
			{
				name:      "relu",
				attrs:     map[string]any{"activation": "relu"},
				input:     shapes(domain.NewShape(-1, 3, 3)),
				wantShape: domain.NewShape(-1, 3, 3),
			},
			{
				name:        "missing activation",
				attrs:       map[string]any{},
				expectedErr: domain.ErrMissingKey,
			},
		})
	})
	t.Run("dropout", func(t *testing.T) {
		runBuildCases(t, BuildDropout, IdentityShape, []buildCase{
			{
				name:      "keras1 p",
				version:   domain.FormatKeras1,
				attrs:     map[string]any{"p": 0.5},
				input:     shapes(domain.NewShape(-1, 128)),
				wantShape: domain.NewShape(-1, 128),
			},
			{
				name:        "rate of one",
				attrs:       map[string]any{"rate": 1.0},
				expectedErr: domain.ErrInvalidConfiguration,
			},
			{
				name:        "string rate",
				attrs:       map[string]any{"rate": "half"},
				expectedErr: domain.ErrTypeMismatch,
			},
		})
	})
}

func TestFlattenAndReshapeAdapters(t *testing.T) {
	t.Run("flatten", func(t *testing.T) {
		runBuildCases(t, BuildFlatten, FlattenShape, []buildCase{
			{
				name:      "known dims",
				input:     shapes(domain.NewShape(-1, 7, 7, 64)),
				wantShape: domain.NewShape(-1, 3136),
			},
			{
				name:      "unknown dim",
				input:     shapes(domain.NewShape(-1, -1, 7, 3)),
				wantShape: domain.NewShape(-1, -1),
			},
			{
				name:        "rank one",
				input:       shapes(domain.NewShape(5)),
				expectedErr: domain.ErrInvalidConfiguration,
			},
			{
				name:        "element count overflows",
				input:       shapes(domain.NewShape(-1, 1<<32, 1<<32)),
				expectedErr: domain.ErrInvalidConfiguration,
			},
		})
	})
	t.Run("reshape", func(t *testing.T) {
		runBuildCases(t, BuildReshape, ReshapeShape, []buildCase{
			{
				name:      "explicit target",
				attrs:     map[string]any{"target_shape": []any{28, 28, 1}},
				input:     shapes(domain.NewShape(-1, 784)),
				wantShape: domain.NewShape(-1, 28, 28, 1),
			},
			{
				name:      "inferred axis",
				attrs:     map[string]any{"target_shape": []any{-1, 2}},
				input:     shapes(domain.NewShape(-1, 3, 4)),
				wantShape: domain.NewShape(-1, 6, 2),
			},
			{
				name:      "unknown input keeps target",
				attrs:     map[string]any{"target_shape": []any{-1, 2}},
				input:     shapes(domain.NewShape(-1, -1, 4)),
				wantShape: domain.NewShape(-1, -1, 2),
			},
			{
				name:        "element count mismatch",
				attrs:       map[string]any{"target_shape": []any{5}},
				input:       shapes(domain.NewShape(-1, 6)),
				expectedErr: domain.ErrInvalidConfiguration,
			},
			{
				name:        "indivisible inferred axis",
				attrs:       map[string]any{"target_shape": []any{4, -1}},
				input:       shapes(domain.NewShape(-1, 6)),
				expectedErr: domain.ErrInvalidConfiguration,
			},
			{
				name:        "two inferred axes",
				attrs:       map[string]any{"target_shape": []any{-1, -1}},
				expectedErr: domain.ErrInvalidConfiguration,
			},
			{
				name:        "target product overflows",
				attrs:       map[string]any{"target_shape": []any{1 << 32, 1 << 32, -1}},
				input:       shapes(domain.NewShape(-1, 6)),
				expectedErr: domain.ErrInvalidConfiguration,
			},
		})
	})
}

func TestConv2DAdapter(t *testing.T) {
	runBuildCases(t, BuildConv2D, Conv2DShape, []buildCase{
		{
			name:      "keras2 valid",
			attrs:     map[string]any{"filters": 32, "kernel_size": []any{3, 3}},
			input:     shapes(domain.NewShape(-1, 28, 28, 1)),
			wantShape: domain.NewShape(-1, 26, 26, 32),
		},
		{
			name:      "keras2 same with stride",
			attrs:     map[string]any{"filters": 8, "kernel_size": 3, "strides": 2, "padding": "same"},
			input:     shapes(domain.NewShape(-1, 28, 27, 1)),
			wantShape: domain.NewShape(-1, 14, 14, 8),
		},
		{
			name:    "keras1 names",
			version: domain.FormatKeras1,
			attrs: map[string]any{
				"nb_filter": 16, "nb_row": 5, "nb_col": 3,
				"subsample": []any{1, 1}, "border_mode": "valid", "dim_ordering": "th",
			},
			input:     shapes(domain.NewShape(-1, 3, 32, 32)),
			wantShape: domain.NewShape(-1, 16, 28, 30),
		},
		{
			name:      "dilated",
			attrs:     map[string]any{"filters": 4, "kernel_size": 3, "dilation_rate": 2},
			input:     shapes(domain.NewShape(-1, 10, 10, 2)),
			wantShape: domain.NewShape(-1, 6, 6, 4),
		},
		{
			name:      "unknown spatial dims",
			attrs:     map[string]any{"filters": 4, "kernel_size": 3},
			input:     shapes(domain.NewShape(-1, -1, -1, 3)),
			wantShape: domain.NewShape(-1, -1, -1, 4),
		},
		{
			name:        "kernel larger than input",
			attrs:       map[string]any{"filters": 4, "kernel_size": 5},
			input:       shapes(domain.NewShape(-1, 3, 3, 1)),
			expectedErr: domain.ErrInvalidConfiguration,
		},
		{
			name:        "strided and dilated",
			attrs:       map[string]any{"filters": 4, "kernel_size": 3, "strides": 2, "dilation_rate": 2},
			expectedErr: domain.ErrInvalidConfiguration,
		},
		{
			name:        "causal padding",
			attrs:       map[string]any{"filters": 4, "kernel_size": 3, "padding": "causal"},
			expectedErr: domain.ErrUnsupportedConfiguration,
		},
		{
			name:        "missing kernel",
			attrs:       map[string]any{"filters": 4},
			expectedErr: domain.ErrMissingKey,
		},
		{
			name:        "negative filters",
			attrs:       map[string]any{"filters": -1, "kernel_size": 3},
			expectedErr: domain.ErrInvalidConfiguration,
		},
		{
			name:        "rank three input",
			attrs:       map[string]any{"filters": 4, "kernel_size": 3},
			input:       shapes(domain.NewShape(-1, 10, 3)),
			expectedErr: domain.ErrInvalidConfiguration,
		},
	})
}

func TestPoolingAdapters(t *testing.T) {
	t.Run("max", func(t *testing.T) {
		runBuildCases(t, Pooling2D(domain.PoolMax), Pooling2DShape, []buildCase{
			{
				name:      "default pool size",
				attrs:     map[string]any{},
				input:     shapes(domain.NewShape(-1, 26, 26, 32)),
				wantShape: domain.NewShape(-1, 13, 13, 32),
			},
			{
				name:      "same padding stride one",
				attrs:     map[string]any{"pool_size": 3, "strides": 1, "padding": "same"},
				input:     shapes(domain.NewShape(-1, 9, 7, 4)),
				wantShape: domain.NewShape(-1, 9, 7, 4),
			},
			{
				name:      "channels first",
				attrs:     map[string]any{"pool_size": []any{2, 2}, "data_format": "channels_first"},
				input:     shapes(domain.NewShape(-1, 4, 9, 9)),
				wantShape: domain.NewShape(-1, 4, 4, 4),
			},
			{
				name:        "zero pool size",
				attrs:       map[string]any{"pool_size": 0},
				expectedErr: domain.ErrInvalidConfiguration,
			},
		})
	})
	t.Run("global average", func(t *testing.T) {
		runBuildCases(t, GlobalPooling2D(domain.PoolAverage), GlobalPooling2DShape, []buildCase{
			{
				name:      "channels last",
				input:     shapes(domain.NewShape(-1, 7, 7, 64)),
				wantShape: domain.NewShape(-1, 64),
			},
			{
				name:      "channels first",
				attrs:     map[string]any{"data_format": "channels_first"},
				input:     shapes(domain.NewShape(-1, 64, 7, 7)),
				wantShape: domain.NewShape(-1, 64),
			},
		})
	})
}

func TestZeroPadding2DAdapter(t *testing.T) {
	runBuildCases(t, BuildZeroPadding2D, ZeroPadding2DShape, []buildCase{
		{
			name:      "default",
			input:     shapes(domain.NewShape(-1, 4, 4, 1)),
			wantShape: domain.NewShape(-1, 6, 6, 1),
		},
		{
			name:      "symmetric pair",
			attrs:     map[string]any{"padding": []any{2, 3}},
			input:     shapes(domain.NewShape(-1, 4, 4, 1)),
			wantShape: domain.NewShape(-1, 8, 10, 1),
		},
		{
			name:      "pair of pairs",
			attrs:     map[string]any{"padding": []any{[]any{1, 2}, []any{3, 4}}},
			input:     shapes(domain.NewShape(-1, 4, -1, 1)),
			wantShape: domain.NewShape(-1, 7, -1, 1),
		},
		{
			name:        "padded dim overflows",
			input:       shapes(domain.NewShape(-1, math.MaxInt64, 4, 1)),
			expectedErr: domain.ErrInvalidConfiguration,
		},
		{
			name:        "wrong length",
			attrs:       map[string]any{"padding": []any{1, 2, 3}},
			expectedErr: domain.ErrInvalidConfiguration,
		},
		{
			name:        "negative amount",
			attrs:       map[string]any{"padding": -1},
			expectedErr: domain.ErrInvalidConfiguration,
		},
	})
}

func TestBatchNormalizationAdapter(t *testing.T) {
	runBuildCases(t, BuildBatchNormalization, BatchNormalizationShape, []buildCase{
		{
			name:      "defaults",
			input:     shapes(domain.NewShape(-1, 8, 8, 3)),
			wantShape: domain.NewShape(-1, 8, 8, 3),
		},
		{
			name:      "keras1 mode zero",
			version:   domain.FormatKeras1,
			attrs:     map[string]any{"mode": 0, "axis": 1, "epsilon": 1e-5},
			input:     shapes(domain.NewShape(-1, 3, 8, 8)),
			wantShape: domain.NewShape(-1, 3, 8, 8),
		},
		{
			name:        "keras1 sample-wise mode",
			version:     domain.FormatKeras1,
			attrs:       map[string]any{"mode": 2},
			expectedErr: domain.ErrUnsupportedConfiguration,
		},
		{
			name:        "zero epsilon",
			attrs:       map[string]any{"epsilon": 0.0},
			expectedErr: domain.ErrInvalidConfiguration,
		},
		{
			name:        "axis out of range",
			attrs:       map[string]any{"axis": 4},
			input:       shapes(domain.NewShape(-1, 8, 8, 3)),
			expectedErr: domain.ErrInvalidConfiguration,
		},
		{
			name:        "batch axis",
			attrs:       map[string]any{"axis": 0},
			input:       shapes(domain.NewShape(-1, 8)),
			expectedErr: domain.ErrInvalidConfiguration,
		},
	})
}

func TestMergeAdapters(t *testing.T) {
	t.Run("add", func(t *testing.T) {
		runBuildCases(t, Merge(domain.MergeAdd), MergeShape, []buildCase{
			{
				name:      "matching shapes",
				input:     shapes(domain.NewShape(-1, 10), domain.NewShape(-1, 10), domain.NewShape(-1, 10)),
				wantShape: domain.NewShape(-1, 10),
			},
			{
				name:      "unknown dim unifies",
				input:     shapes(domain.NewShape(-1, -1), domain.NewShape(-1, 10)),
				wantShape: domain.NewShape(-1, 10),
			},
			{
				name:        "mismatched dims",
				input:       shapes(domain.NewShape(-1, 10), domain.NewShape(-1, 11)),
				expectedErr: domain.ErrInvalidConfiguration,
			},
			{
				name:        "mismatched rank",
				input:       shapes(domain.NewShape(-1, 10), domain.NewShape(-1, 10, 1)),
				expectedErr: domain.ErrInvalidConfiguration,
			},
		})
	})
	t.Run("subtract", func(t *testing.T) {
		runBuildCases(t, Merge(domain.MergeSubtract), MergeShape, []buildCase{
			{
				name:        "three inputs",
				input:       shapes(domain.NewShape(-1, 2), domain.NewShape(-1, 2), domain.NewShape(-1, 2)),
				expectedErr: domain.ErrInvalidConfiguration,
			},
		})
	})
	t.Run("concatenate", func(t *testing.T) {
		runBuildCases(t, Merge(domain.MergeConcatenate), MergeShape, []buildCase{
			{
				name:      "last axis",
				input:     shapes(domain.NewShape(-1, 4, 3), domain.NewShape(-1, 4, 5)),
				wantShape: domain.NewShape(-1, 4, 8),
			},
			{
				name:      "explicit axis with unknown",
				attrs:     map[string]any{"axis": 1},
				input:     shapes(domain.NewShape(-1, -1, 3), domain.NewShape(-1, 2, 3)),
				wantShape: domain.NewShape(-1, -1, 3),
			},
			{
				name:        "other axes differ",
				input:       shapes(domain.NewShape(-1, 4, 3), domain.NewShape(-1, 5, 3)),
				expectedErr: domain.ErrInvalidConfiguration,
			},
			{
				name:        "batch axis",
				attrs:       map[string]any{"axis": 0},
				expectedErr: domain.ErrInvalidConfiguration,
			},
		})
	})
	t.Run("keras1 merge", func(t *testing.T) {
		runBuildCases(t, BuildKeras1Merge, MergeShape, []buildCase{
			{
				name:      "concat",
				version:   domain.FormatKeras1,
				attrs:     map[string]any{"mode": "concat", "concat_axis": 1},
				input:     shapes(domain.NewShape(-1, 2), domain.NewShape(-1, 3)),
				wantShape: domain.NewShape(-1, 5),
			},
			{
				name:      "default sum",
				version:   domain.FormatKeras1,
				input:     shapes(domain.NewShape(-1, 2), domain.NewShape(-1, 2)),
				wantShape: domain.NewShape(-1, 2),
			},
			{
				name:        "dot",
				version:     domain.FormatKeras1,
				attrs:       map[string]any{"mode": "dot"},
				expectedErr: domain.ErrUnsupportedConfiguration,
			},
			{
				name:        "callable",
				version:     domain.FormatKeras1,
				attrs:       map[string]any{"mode": map[string]any{"function": "lambda"}},
				expectedErr: domain.ErrUnsupportedConfiguration,
			},
			{
				name:        "unknown",
				version:     domain.FormatKeras1,
				attrs:       map[string]any{"mode": "blend"},
				expectedErr: domain.ErrInvalidConfiguration,
			},
		})
	})
}

func TestParamsRoundTrip(t *testing.T) {
	conv, err := domain.NewConv2DSpec("node", 16, []int{3, 5}, domain.Conv2DOptions{
		Strides: []int{2, 1}, Padding: domain.PaddingSame, DataFormat: domain.ChannelsFirst,
		Activation: "relu", UseBias: true,
	})
	require.NoError(t, err)
	input, err := domain.NewInputSpec("node", domain.NewShape(-1, 32, 32, 3))
	require.NoError(t, err)
	dense, err := domain.NewDenseSpec("node", 10, "softmax", false)
	require.NoError(t, err)
	reshape, err := domain.NewReshapeSpec("node", domain.NewShape(-1, 4))
	require.NoError(t, err)
	pool, err := domain.NewPooling2DSpec("node", domain.PoolMax, []int{3, 3}, []int{2, 2}, domain.PaddingValid, domain.ChannelsLast)
	require.NoError(t, err)
	global, err := domain.NewGlobalPooling2DSpec("node", domain.PoolAverage, domain.ChannelsFirst)
	require.NoError(t, err)
	pad, err := domain.NewZeroPadding2DSpec("node", 1, 2, 3, 4, domain.ChannelsLast)
	require.NoError(t, err)
	bn, err := domain.NewBatchNormalizationSpec("node", 1, 1e-5, 0.9, true, false)
	require.NoError(t, err)
	concat, err := domain.NewMergeSpec("node", domain.MergeConcatenate, 2)
	require.NoError(t, err)
	dropout, err := domain.NewDropoutSpec("node", 0.25)
	require.NoError(t, err)

	tests := []struct {
		name  string
		spec  domain.LayerSpec
		build ports.AdapterFunc
	}{
		{"conv2d", conv, BuildConv2D},
		{"input", input, BuildInput},
		{"dense", dense, BuildDense},
		{"reshape", reshape, BuildReshape},
		{"pooling", pool, Pooling2D(domain.PoolMax)},
		{"global pooling", global, GlobalPooling2D(domain.PoolAverage)},
		{"zero padding", pad, BuildZeroPadding2D},
		{"batch normalization", bn, BuildBatchNormalization},
		{"concatenate", concat, Merge(domain.MergeConcatenate)},
		{"dropout", dropout, BuildDropout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rebuilt, err := tt.build(layerAttrs(domain.FormatKeras2, "node", tt.spec.Params()), false)
			require.NoError(t, err)
			assert.Equal(t, tt.spec, rebuilt)
		})
	}
}

// recordingRegistry captures registrations without enforcing any policy.
type recordingRegistry struct {
	adapters map[string][]domain.VersionRange
	rules    map[domain.LayerKind]ports.Arity
}

func (r *recordingRegistry) Register(v domain.VersionRange, layerType string, _ ports.LayerAdapter, _ domain.LayerKind) error {
	r.adapters[layerType] = append(r.adapters[layerType], v)
	return nil
}

func (r *recordingRegistry) RegisterRule(kind domain.LayerKind, arity ports.Arity, _ ports.ShapeRule) error {
	r.rules[kind] = arity
	return nil
}

func TestRegisterBuiltins(t *testing.T) {
	reg := &recordingRegistry{
		adapters: make(map[string][]domain.VersionRange),
		rules:    make(map[domain.LayerKind]ports.Arity),
	}
	require.NoError(t, RegisterBuiltins(adapterRegistryOf(reg), reg))

	assert.Equal(t, []domain.VersionRange{domain.AllVersions}, reg.adapters["UpSampling2D"])
	assert.Equal(t, []domain.VersionRange{domain.OnlyVersion(domain.FormatKeras1)}, reg.adapters["Convolution2D"])
	assert.Equal(t, []domain.VersionRange{domain.OnlyVersion(domain.FormatKeras2)}, reg.adapters["Conv2D"])
	assert.Len(t, reg.adapters, len(Builtins()))

	for _, b := range Builtins() {
		_, ok := reg.rules[b.Kind]
		assert.True(t, ok, "kind %s of %s has no shape rule", b.Kind, b.LayerType)
	}
	assert.Equal(t, ports.AtLeastTwoInputs, reg.rules[domain.KindMerge])
	assert.Equal(t, ports.NoInputs, reg.rules[domain.KindInput])
}

// adapterRegistryOf adapts recordingRegistry to ports.AdapterRegistry.
func adapterRegistryOf(r *recordingRegistry) ports.AdapterRegistry { return recordingAdapters{r} }

type recordingAdapters struct{ *recordingRegistry }

func (recordingAdapters) Resolve(domain.FormatVersion, string) (ports.LayerAdapter, domain.LayerKind, error) {
	return nil, "", domain.ErrUnsupportedLayer
}
func (recordingAdapters) SupportedTypes() []ports.AdapterInfo { return nil }
func (recordingAdapters) Freeze()                             {}
