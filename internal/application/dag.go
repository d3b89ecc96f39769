package application

import (
	"fmt"
	"slices"

	"github.com/ahrav/go-netimport/internal/domain"
)

// DependencyGraph is a directed graph of node names where an edge A -> B
// means B consumes the output of A. It records declared order so that
// topological sorting is deterministic: among nodes that are ready at the
// same time, the one declared first comes first.
//
// A DependencyGraph belongs to a single import and is not safe for
// concurrent mutation.
type DependencyGraph struct {
	// order holds node names in declared order.
	order []string
	// index maps a node name to its position in order.
	index map[string]int
	// edges represents the adjacency list mapping each node to the
	// dependents that consume it. A dependent appears once per use, so a
	// node reading the same input twice contributes two edges.
	edges map[string][]string
	// inDegree tracks the number of incoming edges for each node,
	// used for efficient topological sorting algorithms.
	inDegree map[string]int
}

// NewDependencyGraph creates an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		index:    make(map[string]int),
		edges:    make(map[string][]string),
		inDegree: make(map[string]int),
	}
}

// AddNode registers a node name. AddNode returns a DuplicateNodeError if
// the name already exists.
func (g *DependencyGraph) AddNode(name string) error {
	if _, exists := g.index[name]; exists {
		return domain.NewDuplicateNodeError(name)
	}
	g.index[name] = len(g.order)
	g.order = append(g.order, name)
	g.edges[name] = nil
	g.inDegree[name] = 0
	return nil
}

// HasNode reports whether name was added.
func (g *DependencyGraph) HasNode(name string) bool {
	_, ok := g.index[name]
	return ok
}

// Names returns the node names in declared order.
func (g *DependencyGraph) Names() []string { return slices.Clone(g.order) }

// AddEdge records that target consumes source.
// AddEdge returns an error if either node does not exist.
func (g *DependencyGraph) AddEdge(source, target string) error {
	if !g.HasNode(source) {
		return fmt.Errorf("source node %s does not exist", source)
	}
	if !g.HasNode(target) {
		return fmt.Errorf("target node %s does not exist", target)
	}
	g.edges[source] = append(g.edges[source], target)
	g.inDegree[target]++
	return nil
}

// Dependents returns the nodes consuming name, in edge insertion order.
func (g *DependencyGraph) Dependents(name string) []string { return slices.Clone(g.edges[name]) }

// TopologicalSort orders the nodes so every node follows all of its
// inputs, using Kahn's algorithm. The ready set is kept ordered by
// declared position, which makes the result a pure function of the graph.
// TopologicalSort returns a CyclicGraphError naming the nodes of one cycle
// when no order exists.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	inDegree := make(map[string]int, len(g.inDegree))
	for k, v := range g.inDegree {
		inDegree[k] = v
	}

	// ready holds declared indices, kept sorted ascending.
	ready := make([]int, 0)
	for i, name := range g.order {
		if inDegree[name] == 0 {
			ready = append(ready, i)
		}
	}

	result := make([]string, 0, len(g.order))
	for len(ready) > 0 {
		name := g.order[ready[0]]
		ready = ready[1:]
		result = append(result, name)

		for _, dep := range g.edges[name] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				idx := g.index[dep]
				pos, _ := slices.BinarySearch(ready, idx)
				ready = slices.Insert(ready, pos, idx)
			}
		}
	}

	if len(result) != len(g.order) {
		return nil, domain.NewCyclicGraphError(g.FindCycle())
	}
	return result, nil
}

// HasCycle reports whether the graph contains a cycle.
func (g *DependencyGraph) HasCycle() bool { return g.FindCycle() != nil }

// FindCycle returns the nodes of one cycle as a closed path, for example
// [a b a], or nil if the graph is acyclic. The search starts from nodes in
// declared order so the reported cycle is stable.
func (g *DependencyGraph) FindCycle() []string {
	// White (0): unvisited, Gray (1): visiting, Black (2): visited.
	colors := make(map[string]int, len(g.order))
	var stack []string

	var dfs func(name string) []string
	dfs = func(name string) []string {
		colors[name] = 1
		stack = append(stack, name)

		for _, next := range g.edges[name] {
			switch colors[next] {
			case 1:
				// Back edge: the cycle is the stack suffix starting at next.
				start := slices.Index(stack, next)
				cycle := slices.Clone(stack[start:])
				return append(cycle, next)
			case 0:
				if c := dfs(next); c != nil {
					return c
				}
			}
		}

		stack = stack[:len(stack)-1]
		colors[name] = 2
		return nil
	}

	for _, name := range g.order {
		if colors[name] == 0 {
			if c := dfs(name); c != nil {
				return c
			}
		}
	}
	return nil
}
