package application

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-netimport/internal/domain"
	"github.com/ahrav/go-netimport/internal/ports"
)

// firstInput is a rule that returns its first input after scribbling on
// it, so tests can check the engine isolates rules from caller state.
func firstInput(_ domain.LayerSpec, inputs []domain.Shape) (domain.Shape, error) {
	out := inputs[0]
	inputs[0][0] = 99
	return out, nil
}

func TestShapeEngine_RegisterRule(t *testing.T) {
	tests := []struct {
		name   string
		kind   domain.LayerKind
		arity  ports.Arity
		rule   ports.ShapeRule
		errMsg string
	}{
		{name: "empty kind", arity: ports.SingleInput, rule: firstInput, errMsg: "cannot be empty"},
		{name: "nil rule", kind: domain.KindFlatten, arity: ports.SingleInput, errMsg: "cannot be nil"},
		{name: "negative min", kind: domain.KindFlatten, arity: ports.Arity{Min: -1, Max: 1}, rule: firstInput, errMsg: "invalid arity"},
		{name: "max below min", kind: domain.KindFlatten, arity: ports.Arity{Min: 2, Max: 1}, rule: firstInput, errMsg: "invalid arity"},
		{name: "duplicate kind", kind: domain.KindDense, arity: ports.SingleInput, rule: firstInput, errMsg: "already registered"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewShapeEngine()
			require.NoError(t, e.RegisterRule(domain.KindDense, ports.SingleInput, firstInput))

			err := e.RegisterRule(tt.kind, tt.arity, tt.rule)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	t.Run("frozen", func(t *testing.T) {
		e := NewShapeEngine()
		e.Freeze()
		err := e.RegisterRule(domain.KindDense, ports.SingleInput, firstInput)
		assert.ErrorIs(t, err, ports.ErrRegistryFrozen)
	})
}

func TestShapeEngine_Infer(t *testing.T) {
	e := NewShapeEngine()
	require.NoError(t, e.RegisterRule(domain.KindFlatten, ports.SingleInput, firstInput))
	require.NoError(t, e.RegisterRule(domain.KindMerge, ports.AtLeastTwoInputs, firstInput))
	e.Freeze()

	flatten, err := domain.NewFlattenSpec("flat")
	require.NoError(t, err)
	merge, err := domain.NewMergeSpec("sum", domain.MergeAdd, -1)
	require.NoError(t, err)
	up, err := domain.NewUpsampling2DSpec("up", 2, domain.ChannelsLast)
	require.NoError(t, err)

	t.Run("rule output is isolated from inputs", func(t *testing.T) {
		in := domain.NewShape(-1, 4)
		out, err := e.Infer(flatten, []domain.Shape{in})
		require.NoError(t, err)
		assert.Equal(t, domain.NewShape(99, 4), out)
		assert.Equal(t, domain.NewShape(-1, 4), in)
	})

	arityTests := []struct {
		name     string
		spec     domain.LayerSpec
		inputs   int
		expected string
	}{
		{name: "single input given none", spec: flatten, inputs: 0, expected: "1"},
		{name: "single input given two", spec: flatten, inputs: 2, expected: "1"},
		{name: "merge given one", spec: merge, inputs: 1, expected: "2+"},
	}
	for _, tt := range arityTests {
		t.Run(tt.name, func(t *testing.T) {
			inputs := make([]domain.Shape, tt.inputs)
			for i := range inputs {
				inputs[i] = domain.NewShape(-1, 3)
			}
			_, err := e.Infer(tt.spec, inputs)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

			var ie *domain.ImportError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, tt.expected, ie.Params["expected"])
			assert.Equal(t, tt.inputs, ie.Params["received"])
		})
	}

	t.Run("unknown kind", func(t *testing.T) {
		_, err := e.Infer(up, []domain.Shape{domain.NewShape(-1, 2, 2, 1)})
		assert.ErrorIs(t, err, domain.ErrUnsupportedLayer)
	})

	t.Run("nil spec", func(t *testing.T) {
		_, err := e.Infer(nil, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})

	arity, ok := e.Arity(domain.KindMerge)
	require.True(t, ok)
	assert.Equal(t, ports.AtLeastTwoInputs, arity)
	_, ok = e.Arity(domain.KindConv2D)
	assert.False(t, ok)
}

func TestShapeEngine_BuiltinUpsampling(t *testing.T) {
	_, e, err := NewBuiltinTables()
	require.NoError(t, err)
	e.Freeze()

	tests := []struct {
		name     string
		factor   int
		format   domain.DataFormat
		input    domain.Shape
		expected domain.Shape
	}{
		{
			name:     "factor three scales both spatial axes",
			factor:   3,
			format:   domain.ChannelsLast,
			input:    domain.NewShape(-1, 5, 7, 2),
			expected: domain.NewShape(-1, 15, 21, 2),
		},
		{
			name:     "channels first",
			factor:   2,
			format:   domain.ChannelsFirst,
			input:    domain.NewShape(4, 3, 8, 8),
			expected: domain.NewShape(4, 3, 16, 16),
		},
		{
			name:     "unknown spatial dims stay unknown",
			factor:   2,
			format:   domain.ChannelsLast,
			input:    domain.NewShape(-1, -1, 10, 3),
			expected: domain.NewShape(-1, -1, 20, 3),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := domain.NewUpsampling2DSpec("up", tt.factor, tt.format)
			require.NoError(t, err)
			out, err := e.Infer(spec, []domain.Shape{tt.input})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out)
		})
	}
}
