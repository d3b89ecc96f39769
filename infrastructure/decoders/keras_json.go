package decoders

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ahrav/go-netimport/internal/domain"
	"github.com/ahrav/go-netimport/internal/logging"
	"github.com/ahrav/go-netimport/internal/ports"
)

var errNotKerasModel = errors.New("document is not a Keras model configuration")

// KerasJSONDecoder reads the JSON produced by Keras model.to_json(), for
// Sequential models in both the keras1 list layout and the keras2 object
// layout, and for functional Model/Functional graphs.
type KerasJSONDecoder struct{}

// NewKerasJSONDecoder creates a Keras JSON decoder.
func NewKerasJSONDecoder() *KerasJSONDecoder { return &KerasJSONDecoder{} }

// Decode implements ports.Decoder.
func (d *KerasJSONDecoder) Decode(ctx context.Context, r io.Reader) (*domain.RawGraph, error) {
	data, err := readAll(ctx, r)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid JSON")
	}

	doc := gjson.ParseBytes(data)
	root := doc
	if mc := doc.Get("model_config"); mc.Exists() {
		// Weight files store the model under model_config, sometimes as an
		// embedded JSON string.
		root = mc
		if mc.Type == gjson.String {
			root = gjson.Parse(mc.String())
		}
	}
	if !root.Get("class_name").Exists() {
		return nil, errNotKerasModel
	}

	format, err := kerasFormat(doc, root)
	if err != nil {
		return nil, err
	}

	var raw *domain.RawGraph
	switch class := root.Get("class_name").String(); class {
	case "Sequential":
		raw, err = decodeSequential(root.Get("config"))
	case "Model", "Functional":
		raw, err = decodeFunctional(root.Get("config"))
	default:
		return nil, fmt.Errorf("unsupported model class %q: %w", class, errNotKerasModel)
	}
	if err != nil {
		return nil, err
	}
	raw.Format = format

	logging.FromContext(ctx).Debug("decoded Keras JSON descriptor",
		"graph", raw.Name, "nodes", len(raw.Nodes), "format", format.String())
	return raw, nil
}

// kerasFormat reads keras_version from the document or the model root. A
// missing version is left unset.
func kerasFormat(doc, root gjson.Result) (domain.FormatVersion, error) {
	v := doc.Get("keras_version")
	if !v.Exists() {
		v = root.Get("keras_version")
	}
	if !v.Exists() || v.String() == "" {
		return 0, nil
	}
	return domain.ParseFormatVersion(v.String())
}

// decodeSequential chains layers in order. A first layer carrying
// batch_input_shape gets a synthesized InputLayer in front of it.
func decodeSequential(config gjson.Result) (*domain.RawGraph, error) {
	layers := config
	name := ""
	if config.IsObject() {
		layers = config.Get("layers")
		name = config.Get("name").String()
	}
	if !layers.IsArray() || len(layers.Array()) == 0 {
		return nil, fmt.Errorf("sequential model has no layers")
	}

	raw := &domain.RawGraph{Name: name}
	prev := ""
	for i, layer := range layers.Array() {
		node, err := layerNode(layer, i)
		if err != nil {
			return nil, err
		}
		if i == 0 && node.LayerType != "InputLayer" {
			if shape, ok := node.Attributes["batch_input_shape"]; ok && shape != nil {
				input := domain.RawNode{
					Name:       node.Name + "_input",
					LayerType:  "InputLayer",
					Attributes: map[string]any{"batch_input_shape": shape},
				}
				raw.Nodes = append(raw.Nodes, input)
				prev = input.Name
			}
		}
		if prev != "" {
			node.Inputs = []string{prev}
		}
		raw.Nodes = append(raw.Nodes, node)
		prev = node.Name
	}
	return raw, nil
}

// decodeFunctional reads a functional graph from inbound_nodes,
// input_layers and output_layers.
func decodeFunctional(config gjson.Result) (*domain.RawGraph, error) {
	layers := config.Get("layers")
	if !layers.IsArray() || len(layers.Array()) == 0 {
		return nil, fmt.Errorf("functional model has no layers")
	}

	raw := &domain.RawGraph{Name: config.Get("name").String()}
	for i, layer := range layers.Array() {
		node, err := layerNode(layer, i)
		if err != nil {
			return nil, err
		}
		inputs, err := inboundLayers(node.Name, layer.Get("inbound_nodes"))
		if err != nil {
			return nil, err
		}
		node.Inputs = inputs
		raw.Nodes = append(raw.Nodes, node)
	}

	var err error
	if raw.Inputs, err = layerRefs(config.Get("input_layers")); err != nil {
		return nil, fmt.Errorf("input_layers: %w", err)
	}
	if raw.Outputs, err = layerRefs(config.Get("output_layers")); err != nil {
		return nil, fmt.Errorf("output_layers: %w", err)
	}
	return raw, nil
}

// layerNode converts one entry of a layers array. The name comes from the
// entry itself, then its config, then a positional fallback.
func layerNode(layer gjson.Result, index int) (domain.RawNode, error) {
	class := layer.Get("class_name").String()
	if class == "" {
		return domain.RawNode{}, fmt.Errorf("layer %d has no class_name", index)
	}
	attrs := map[string]any{}
	if cfg := layer.Get("config"); cfg.IsObject() {
		m, ok := cfg.Value().(map[string]any)
		if !ok {
			return domain.RawNode{}, fmt.Errorf("layer %d config is not an object", index)
		}
		attrs = m
	}

	name := layer.Get("name").String()
	if name == "" {
		if n, ok := attrs["name"].(string); ok {
			name = n
		}
	}
	if name == "" {
		name = fmt.Sprintf("%s_%d", strings.ToLower(class), index+1)
	}
	delete(attrs, "name")

	return domain.RawNode{Name: name, LayerType: class, Attributes: attrs}, nil
}

// inboundLayers returns the upstream layer names of a layer's single call
// site. Layers called more than once share weights across call sites,
// which a ConfigurationModel cannot express.
func inboundLayers(layer string, inbound gjson.Result) ([]string, error) {
	calls := inbound.Array()
	switch len(calls) {
	case 0:
		return nil, nil
	case 1:
	default:
		return nil, domain.WithNode(domain.NewUnsupportedConfigurationError(
			fmt.Sprintf("shared layer called %d times", len(calls)),
			map[string]any{"inbound_nodes": len(calls)}), layer)
	}

	var names []string
	for _, ref := range calls[0].Array() {
		// [name, node_index, tensor_index, kwargs]
		parts := ref.Array()
		if len(parts) < 3 {
			return nil, fmt.Errorf("layer %s: malformed inbound node %s", layer, ref.Raw)
		}
		if parts[1].Int() != 0 {
			return nil, domain.WithNode(domain.NewUnsupportedConfigurationError(
				fmt.Sprintf("input %s refers to call site %d of a shared layer", parts[0].String(), parts[1].Int()),
				map[string]any{"node_index": parts[1].Int()}), layer)
		}
		names = append(names, parts[0].String())
	}
	return names, nil
}

// layerRefs reads [[name, node_index, tensor_index], ...] or a single
// [name, node_index, tensor_index] triple.
func layerRefs(refs gjson.Result) ([]string, error) {
	if !refs.Exists() {
		return nil, nil
	}
	items := refs.Array()
	if len(items) > 0 && items[0].Type == gjson.String {
		items = []gjson.Result{refs}
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		parts := item.Array()
		if len(parts) == 0 || parts[0].Type != gjson.String {
			return nil, fmt.Errorf("malformed layer reference %s", item.Raw)
		}
		names = append(names, parts[0].String())
	}
	return names, nil
}

var _ ports.Decoder = (*KerasJSONDecoder)(nil)
