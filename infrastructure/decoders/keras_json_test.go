package decoders

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-netimport/internal/domain"
)

const keras1Sequential = `{
  "class_name": "Sequential",
  "keras_version": "1.2.2",
  "config": [
    {"class_name": "Convolution2D", "config": {"name": "conv", "nb_filter": 8, "nb_row": 3, "nb_col": 3,
      "batch_input_shape": [null, 3, 32, 32], "dim_ordering": "th", "border_mode": "same"}},
    {"class_name": "UpSampling2D", "config": {"name": "up", "size": [2, 2], "dim_ordering": "th"}}
  ]
}`

const keras2Sequential = `{
  "class_name": "Sequential",
  "keras_version": "2.4.0",
  "backend": "tensorflow",
  "config": {
    "name": "seq",
    "layers": [
      {"class_name": "InputLayer", "config": {"name": "in", "batch_input_shape": [null, 784]}},
      {"class_name": "Dense", "config": {"name": "dense", "units": 10}}
    ]
  }
}`

const keras2Functional = `{
  "class_name": "Functional",
  "keras_version": "2.9.0",
  "config": {
    "name": "resnet_block",
    "layers": [
      {"name": "x", "class_name": "InputLayer", "config": {"batch_input_shape": [null, 8, 8, 4]}, "inbound_nodes": []},
      {"name": "c1", "class_name": "Conv2D", "config": {"filters": 4, "kernel_size": [3, 3], "padding": "same"},
       "inbound_nodes": [[["x", 0, 0, {}]]]},
      {"name": "sum", "class_name": "Add", "config": {}, "inbound_nodes": [[["x", 0, 0, {}], ["c1", 0, 0, {}]]]}
    ],
    "input_layers": [["x", 0, 0]],
    "output_layers": [["sum", 0, 0]]
  }
}`

func TestKerasJSONDecoder_Keras1Sequential(t *testing.T) {
	raw, err := NewKerasJSONDecoder().Decode(context.Background(), strings.NewReader(keras1Sequential))
	require.NoError(t, err)

	assert.Equal(t, domain.FormatKeras1, raw.Format)
	assert.Equal(t, []string{"conv_input", "conv", "up"}, raw.NodeNames())

	input := raw.Nodes[0]
	assert.Equal(t, "InputLayer", input.LayerType)
	assert.Equal(t, []any{nil, 3.0, 32.0, 32.0}, input.Attributes["batch_input_shape"])
	assert.Empty(t, input.Inputs)

	assert.Equal(t, []string{"conv_input"}, raw.Nodes[1].Inputs)
	assert.Equal(t, []string{"conv"}, raw.Nodes[2].Inputs)
	assert.NotContains(t, raw.Nodes[1].Attributes, "name")
	assert.Equal(t, "th", raw.Nodes[2].Attributes["dim_ordering"])
}

func TestKerasJSONDecoder_Keras2Sequential(t *testing.T) {
	raw, err := NewKerasJSONDecoder().Decode(context.Background(), strings.NewReader(keras2Sequential))
	require.NoError(t, err)

	assert.Equal(t, "seq", raw.Name)
	assert.Equal(t, domain.FormatKeras2, raw.Format)
	assert.Equal(t, []string{"in", "dense"}, raw.NodeNames())
	assert.Equal(t, []string{"in"}, raw.Nodes[1].Inputs)
	assert.Equal(t, 10.0, raw.Nodes[1].Attributes["units"])
}

func TestKerasJSONDecoder_Functional(t *testing.T) {
	raw, err := NewKerasJSONDecoder().Decode(context.Background(), strings.NewReader(keras2Functional))
	require.NoError(t, err)

	assert.Equal(t, "resnet_block", raw.Name)
	assert.Equal(t, []string{"x", "c1", "sum"}, raw.NodeNames())
	assert.Equal(t, []string{"x"}, raw.Inputs)
	assert.Equal(t, []string{"sum"}, raw.Outputs)
	assert.Empty(t, raw.Nodes[0].Inputs)
	assert.Equal(t, []string{"x"}, raw.Nodes[1].Inputs)
	assert.Equal(t, []string{"x", "c1"}, raw.Nodes[2].Inputs)
}

func TestKerasJSONDecoder_ModelConfigString(t *testing.T) {
	wrapped := `{"model_config": ` + quoteJSON(keras2Sequential) + `}`
	raw, err := NewKerasJSONDecoder().Decode(context.Background(), strings.NewReader(wrapped))
	require.NoError(t, err)
	assert.Equal(t, []string{"in", "dense"}, raw.NodeNames())
}

func TestKerasJSONDecoder_Errors(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		expectedError string
		expectedIs    error
	}{
		{
			name:          "invalid json",
			input:         `{"class_name": `,
			expectedError: "invalid JSON",
		},
		{
			name:       "not a model",
			input:      `{"foo": 1}`,
			expectedIs: errNotKerasModel,
		},
		{
			name:       "unknown model class",
			input:      `{"class_name": "Pipeline", "config": {}}`,
			expectedIs: errNotKerasModel,
		},
		{
			name:          "empty sequential",
			input:         `{"class_name": "Sequential", "config": []}`,
			expectedError: "no layers",
		},
		{
			name:          "unsupported keras version",
			input:         `{"class_name": "Sequential", "keras_version": "3.1.0", "config": []}`,
			expectedError: "unsupported format version",
		},
		{
			name: "shared layer",
			input: `{"class_name": "Model", "config": {"layers": [
				{"name": "a", "class_name": "InputLayer", "config": {}, "inbound_nodes": []},
				{"name": "d", "class_name": "Dense", "config": {}, "inbound_nodes": [[["a", 0, 0, {}]], [["a", 0, 0, {}]]]}
			]}}`,
			expectedIs: domain.ErrUnsupportedConfiguration,
		},
		{
			name: "second call site",
			input: `{"class_name": "Model", "config": {"layers": [
				{"name": "d", "class_name": "Dense", "config": {}, "inbound_nodes": [[["a", 1, 0, {}]]]}
			]}}`,
			expectedIs: domain.ErrUnsupportedConfiguration,
		},
		{
			name: "layer without class",
			input: `{"class_name": "Model", "config": {"layers": [
				{"name": "d", "config": {}}
			]}}`,
			expectedError: "no class_name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewKerasJSONDecoder().Decode(context.Background(), strings.NewReader(tt.input))
			require.Error(t, err)
			if tt.expectedError != "" {
				assert.Contains(t, err.Error(), tt.expectedError)
			}
			if tt.expectedIs != nil {
				assert.ErrorIs(t, err, tt.expectedIs)
			}
		})
	}
}

// quoteJSON encodes s as a JSON string literal.
func quoteJSON(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}
