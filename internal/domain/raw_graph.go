package domain

// RawNode is one node of an already-decoded configuration graph. Attributes
// hold the loosely-typed values exactly as the decoder produced them.
type RawNode struct {
	Name       string         `yaml:"name"`
	LayerType  string         `yaml:"type"`
	Attributes map[string]any `yaml:"attributes,omitempty"`
	Inputs     []string       `yaml:"inputs,omitempty"`
}

// RawGraph is the decoder-independent input to the import engine. Node
// order is the declared order and breaks ties during topological sorting.
// A zero Format means the descriptor did not declare one.
type RawGraph struct {
	Name    string        `yaml:"name,omitempty"`
	Format  FormatVersion `yaml:"format"`
	Nodes   []RawNode     `yaml:"nodes"`
	Inputs  []string      `yaml:"inputs,omitempty"`
	Outputs []string      `yaml:"outputs,omitempty"`
}

// NodeNames returns the node names in declared order.
func (g *RawGraph) NodeNames() []string {
	names := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		names[i] = n.Name
	}
	return names
}
