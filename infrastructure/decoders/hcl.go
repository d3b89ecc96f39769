package decoders

import (
	"context"
	"fmt"
	"io"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/ahrav/go-netimport/internal/domain"
	"github.com/ahrav/go-netimport/internal/logging"
	"github.com/ahrav/go-netimport/internal/ports"
)

// hclDescriptor is the top-level structure of an HCL descriptor.
type hclDescriptor struct {
	Name    *string     `hcl:"name,optional"`
	Format  *string     `hcl:"format,optional"`
	Inputs  []string    `hcl:"inputs,optional"`
	Outputs []string    `hcl:"outputs,optional"`
	Layers  []*hclLayer `hcl:"layer,block"`
}

// hclLayer is one `layer "<name>" { ... }` block.
type hclLayer struct {
	Name       string         `hcl:"name,label"`
	Type       string         `hcl:"type"`
	Inputs     []string       `hcl:"inputs,optional"`
	Attributes hcl.Expression `hcl:"attributes,optional"`
}

// HCLDecoder reads HCL descriptors:
//
//	format = "keras2"
//	layer "image" {
//	  type       = "InputLayer"
//	  attributes = { batch_input_shape = [null, 16, 16, 3] }
//	}
//	layer "up1" {
//	  type       = "UpSampling2D"
//	  inputs     = ["image"]
//	  attributes = { size = 2 }
//	}
type HCLDecoder struct{}

// NewHCLDecoder creates an HCL decoder.
func NewHCLDecoder() *HCLDecoder { return &HCLDecoder{} }

// Decode implements ports.Decoder. Attribute expressions are evaluated
// without variables or functions.
func (d *HCLDecoder) Decode(ctx context.Context, r io.Reader) (*domain.RawGraph, error) {
	data, err := readAll(ctx, r)
	if err != nil {
		return nil, err
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, "descriptor.hcl")
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL: %w", diags)
	}

	var desc hclDescriptor
	if diags := gohcl.DecodeBody(file.Body, nil, &desc); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %w", diags)
	}
	if len(desc.Layers) == 0 {
		return nil, fmt.Errorf("descriptor declares no layers")
	}

	raw := &domain.RawGraph{
		Nodes:   make([]domain.RawNode, 0, len(desc.Layers)),
		Inputs:  desc.Inputs,
		Outputs: desc.Outputs,
	}
	if desc.Name != nil {
		raw.Name = *desc.Name
	}
	if desc.Format != nil {
		if raw.Format, err = domain.ParseFormatVersion(*desc.Format); err != nil {
			return nil, err
		}
	}

	for _, l := range desc.Layers {
		attrs, err := layerAttributes(l)
		if err != nil {
			return nil, err
		}
		raw.Nodes = append(raw.Nodes, domain.RawNode{
			Name:       l.Name,
			LayerType:  l.Type,
			Attributes: attrs,
			Inputs:     l.Inputs,
		})
	}

	logging.FromContext(ctx).Debug("decoded HCL descriptor", "graph", raw.Name, "nodes", len(raw.Nodes))
	return raw, nil
}

// layerAttributes evaluates the attributes object of a layer block.
func layerAttributes(l *hclLayer) (map[string]any, error) {
	if l.Attributes == nil {
		return map[string]any{}, nil
	}
	val, diags := l.Attributes.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("layer %s: failed to evaluate attributes: %w", l.Name, diags)
	}
	if val.IsNull() {
		return map[string]any{}, nil
	}
	if !val.Type().IsObjectType() && !val.Type().IsMapType() {
		return nil, fmt.Errorf("layer %s: attributes must be an object, got %s", l.Name, val.Type().FriendlyName())
	}
	native, err := ctyToNative(val)
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", l.Name, err)
	}
	return native.(map[string]any), nil
}

// ctyToNative recursively converts a cty.Value to its natural Go
// counterpart. Numbers become float64 and null becomes nil.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("could not convert cty.Number to float64: %w", err)
		}
		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		slice := make([]any, 0)
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, err
			}
			slice = append(slice, native)
		}
		return slice, nil

	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		for it := v.ElementIterator(); it.Next(); {
			key, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, fmt.Errorf("in attribute '%s': %w", key.AsString(), err)
			}
			out[key.AsString()] = native
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported cty type: %s", ty.FriendlyName())
	}
}

var _ ports.Decoder = (*HCLDecoder)(nil)
