package application

import (
	"maps"
	"slices"

	"github.com/ahrav/go-netimport/internal/domain"
)

// GraphNode is one fully resolved node of a ConfigurationModel.
type GraphNode struct {
	// Name is the unique node identifier.
	Name string
	// LayerType is the type name as declared in the descriptor.
	LayerType string
	// Spec is the validated layer specification.
	Spec domain.LayerSpec
	// InputNames lists upstream node names in the order the layer consumes
	// them.
	InputNames []string
	// InputShapes holds the resolved shape of each input, aligned with
	// InputNames.
	InputShapes []domain.Shape
	// OutputShape is the resolved output shape.
	OutputShape domain.Shape
}

func (n GraphNode) clone() GraphNode {
	shapes := make([]domain.Shape, len(n.InputShapes))
	for i, s := range n.InputShapes {
		shapes[i] = s.Clone()
	}
	n.InputNames = slices.Clone(n.InputNames)
	n.InputShapes = shapes
	n.OutputShape = n.OutputShape.Clone()
	return n
}

// ConfigurationModel is the validated, shape-inferred network produced by
// an import. It is immutable: every accessor returns copies, so a model
// can be shared freely between goroutines and cached across imports.
//
// Invariants: the node graph is acyclic, every input name refers to a
// node, and every node has a resolved output shape.
type ConfigurationModel struct {
	name    string
	format  domain.FormatVersion
	nodes   []GraphNode
	index   map[string]int
	inputs  []string
	outputs []string
}

func newConfigurationModel(name string, format domain.FormatVersion, nodes []GraphNode, inputs, outputs []string) *ConfigurationModel {
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n.Name] = i
	}
	return &ConfigurationModel{
		name:    name,
		format:  format,
		nodes:   nodes,
		index:   index,
		inputs:  slices.Clone(inputs),
		outputs: slices.Clone(outputs),
	}
}

// Name returns the graph name from the descriptor, possibly empty.
func (m *ConfigurationModel) Name() string { return m.name }

// Format returns the descriptor format version the model was imported from.
func (m *ConfigurationModel) Format() domain.FormatVersion { return m.format }

// Len returns the number of nodes.
func (m *ConfigurationModel) Len() int { return len(m.nodes) }

// Nodes returns every node in build (topological) order.
func (m *ConfigurationModel) Nodes() []GraphNode {
	out := make([]GraphNode, len(m.nodes))
	for i, n := range m.nodes {
		out[i] = n.clone()
	}
	return out
}

// Node returns the node called name.
func (m *ConfigurationModel) Node(name string) (GraphNode, bool) {
	i, ok := m.index[name]
	if !ok {
		return GraphNode{}, false
	}
	return m.nodes[i].clone(), true
}

// Inputs returns the declared graph input names.
func (m *ConfigurationModel) Inputs() []string { return slices.Clone(m.inputs) }

// Outputs returns the declared graph output names.
func (m *ConfigurationModel) Outputs() []string { return slices.Clone(m.outputs) }

// OutputShapes maps each graph output to its resolved shape.
func (m *ConfigurationModel) OutputShapes() map[string]domain.Shape {
	out := make(map[string]domain.Shape, len(m.outputs))
	for _, name := range m.outputs {
		out[name] = m.nodes[m.index[name]].OutputShape.Clone()
	}
	return out
}

// ModelSummary is a serializable description of a ConfigurationModel.
type ModelSummary struct {
	Name    string        `yaml:"name,omitempty" json:"name,omitempty"`
	Format  string        `yaml:"format" json:"format"`
	Inputs  []string      `yaml:"inputs" json:"inputs"`
	Outputs []string      `yaml:"outputs" json:"outputs"`
	Layers  []NodeSummary `yaml:"layers" json:"layers"`
}

// NodeSummary describes one node of a ModelSummary.
type NodeSummary struct {
	Name        string         `yaml:"name" json:"name"`
	Type        string         `yaml:"type" json:"type"`
	Kind        string         `yaml:"kind" json:"kind"`
	Inputs      []string       `yaml:"inputs,omitempty,flow" json:"inputs,omitempty"`
	OutputShape string         `yaml:"output_shape" json:"output_shape"`
	Params      map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// Summary returns a description of the model suitable for YAML or JSON
// encoding.
func (m *ConfigurationModel) Summary() ModelSummary {
	s := ModelSummary{
		Name:    m.name,
		Format:  m.format.String(),
		Inputs:  m.Inputs(),
		Outputs: m.Outputs(),
		Layers:  make([]NodeSummary, 0, len(m.nodes)),
	}
	for _, n := range m.nodes {
		s.Layers = append(s.Layers, NodeSummary{
			Name:        n.Name,
			Type:        n.LayerType,
			Kind:        string(n.Spec.Kind()),
			Inputs:      slices.Clone(n.InputNames),
			OutputShape: n.OutputShape.String(),
			Params:      maps.Clone(n.Spec.Params()),
		})
	}
	return s
}
