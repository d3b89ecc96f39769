// Package decoders turns serialized network descriptors into the
// decoder-neutral domain.RawGraph. Decoders check structure only; layer
// semantics are left to the adapters.
package decoders

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-netimport/internal/domain"
	"github.com/ahrav/go-netimport/internal/logging"
	"github.com/ahrav/go-netimport/internal/ports"
)

// GraphConfig is the native YAML descriptor of a network.
type GraphConfig struct {
	// Name identifies the network in logs and summaries.
	Name string `yaml:"name" validate:"max=255"`
	// Format is the attribute dialect of the layers: "keras1", "keras2", or
	// a Keras version string. Empty leaves the choice to the importer.
	Format string `yaml:"format" validate:"omitempty,formatversion"`
	// Inputs lists graph input node names. Empty means every InputLayer.
	Inputs []string `yaml:"inputs" validate:"dive,layername"`
	// Outputs lists graph output node names. Empty means every sink.
	Outputs []string `yaml:"outputs" validate:"dive,layername"`
	// Layers declares the nodes in order.
	Layers []LayerConfig `yaml:"layers" validate:"required,min=1,dive"`
}

// LayerConfig is one node of a GraphConfig.
type LayerConfig struct {
	Name   string   `yaml:"name" validate:"required,layername"`
	Type   string   `yaml:"type" validate:"required,max=100"`
	Inputs []string `yaml:"inputs" validate:"dive,layername"`
	// Attributes stays undecoded until the whole document has passed
	// validation.
	Attributes yaml.Node `yaml:"attributes"`
}

// YAMLDecoder reads GraphConfig documents.
type YAMLDecoder struct {
	validator *validator.Validate
}

// NewYAMLDecoder creates a decoder with the descriptor validators
// registered.
func NewYAMLDecoder() *YAMLDecoder {
	return &YAMLDecoder{validator: newDescriptorValidator()}
}

// Decode implements ports.Decoder. Unknown fields are rejected so typos in
// a descriptor are not silently ignored.
func (d *YAMLDecoder) Decode(ctx context.Context, r io.Reader) (*domain.RawGraph, error) {
	data, err := readAll(ctx, r)
	if err != nil {
		return nil, err
	}

	var config GraphConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Strict mode - fail on unknown fields.
	if err := decoder.Decode(&config); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("YAML decode failed: empty document")
		}
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}

	if err := d.validator.Struct(&config); err != nil {
		return nil, fmt.Errorf("struct validation failed: %w", err)
	}
	if err := validateUniqueNames(config.Layers); err != nil {
		return nil, fmt.Errorf("semantic validation failed: %w", err)
	}

	raw, err := config.toRawGraph()
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Debug("decoded YAML descriptor", "graph", raw.Name, "nodes", len(raw.Nodes))
	return raw, nil
}

// toRawGraph converts a validated config.
func (c *GraphConfig) toRawGraph() (*domain.RawGraph, error) {
	var format domain.FormatVersion
	if c.Format != "" {
		f, err := domain.ParseFormatVersion(c.Format)
		if err != nil {
			return nil, err
		}
		format = f
	}

	raw := &domain.RawGraph{
		Name:    c.Name,
		Format:  format,
		Nodes:   make([]domain.RawNode, 0, len(c.Layers)),
		Inputs:  c.Inputs,
		Outputs: c.Outputs,
	}
	for _, l := range c.Layers {
		attrs, err := decodeAttributes(&l.Attributes)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", l.Name, err)
		}
		raw.Nodes = append(raw.Nodes, domain.RawNode{
			Name:       l.Name,
			LayerType:  l.Type,
			Attributes: attrs,
			Inputs:     l.Inputs,
		})
	}
	return raw, nil
}

// decodeAttributes decodes an attributes mapping. An absent or null node
// yields an empty map.
func decodeAttributes(node *yaml.Node) (map[string]any, error) {
	if node.Kind == 0 || (node.Kind == yaml.ScalarNode && node.ShortTag() == "!!null") {
		return map[string]any{}, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("attributes must be a mapping, got line %d", node.Line)
	}
	var attrs map[string]any
	if err := node.Decode(&attrs); err != nil {
		return nil, fmt.Errorf("failed to decode attributes: %w", err)
	}
	return attrs, nil
}

// validateUniqueNames rejects layer names that appear twice.
func validateUniqueNames(layers []LayerConfig) error {
	seen := make(map[string]struct{}, len(layers))
	for _, l := range layers {
		if _, dup := seen[l.Name]; dup {
			return domain.NewDuplicateNodeError(l.Name)
		}
		seen[l.Name] = struct{}{}
	}
	return nil
}

// newDescriptorValidator registers the descriptor-specific tags.
func newDescriptorValidator() *validator.Validate {
	v := validator.New()
	// Registration only fails for empty tags or nil functions.
	_ = v.RegisterValidation("formatversion", validateFormatVersion)
	_ = v.RegisterValidation("layername", validateLayerName)
	return v
}

// validateFormatVersion accepts anything domain.ParseFormatVersion does.
func validateFormatVersion(fl validator.FieldLevel) bool {
	_, err := domain.ParseFormatVersion(fl.Field().String())
	return err == nil
}

// validateLayerName requires a non-empty name without whitespace or
// control characters.
func validateLayerName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if name == "" {
		return false
	}
	return !strings.ContainsFunc(name, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	})
}

// readAll reads r fully unless ctx is already done.
func readAll(ctx context.Context, r io.Reader) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	return data, nil
}

var _ ports.Decoder = (*YAMLDecoder)(nil)
