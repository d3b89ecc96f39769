package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-netimport/internal/domain"
	"github.com/ahrav/go-netimport/internal/logging"
	"github.com/ahrav/go-netimport/internal/ports"
)

// tracerName identifies spans emitted by the import engine.
const tracerName = "github.com/ahrav/go-netimport/internal/application"

// nameKey is the reserved attribute key through which adapters receive the
// node name.
const nameKey = "name"

// BuilderOption configures a GraphBuilder.
type BuilderOption func(*GraphBuilder)

// WithEnforceTrainingConfig makes adapters reject training-only attributes
// they cannot represent instead of ignoring them.
func WithEnforceTrainingConfig(enforce bool) BuilderOption {
	return func(b *GraphBuilder) { b.enforceTrainingConfig = enforce }
}

// WithMetrics sets the collector that receives per-layer build metrics.
func WithMetrics(m ports.MetricsCollector) BuilderOption {
	return func(b *GraphBuilder) {
		if m != nil {
			b.metrics = m
		}
	}
}

// WithTracer overrides the OpenTelemetry tracer, which defaults to the
// global provider's tracer.
func WithTracer(t trace.Tracer) BuilderOption {
	return func(b *GraphBuilder) {
		if t != nil {
			b.tracer = t
		}
	}
}

// GraphBuilder turns a RawGraph into a ConfigurationModel. The builder
// itself holds only frozen, shared collaborators; all per-import state
// lives on the stack of Build, so one builder serves concurrent imports.
type GraphBuilder struct {
	registry              ports.AdapterRegistry
	shapes                ports.ShapeInferer
	metrics               ports.MetricsCollector
	tracer                trace.Tracer
	enforceTrainingConfig bool
}

// NewGraphBuilder creates a builder over registry and shapes.
func NewGraphBuilder(registry ports.AdapterRegistry, shapes ports.ShapeInferer, opts ...BuilderOption) *GraphBuilder {
	b := &GraphBuilder{
		registry: registry,
		shapes:   shapes,
		metrics:  ports.NoopMetrics{},
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build validates raw, orders it topologically, translates every node
// through its adapter, and propagates shapes. The first failure aborts the
// build and no partial model is returned. Cancellation of ctx is observed
// between node steps.
func (b *GraphBuilder) Build(ctx context.Context, raw *domain.RawGraph) (*ConfigurationModel, error) {
	if raw == nil {
		return nil, domain.NewInvalidConfigurationError("raw graph cannot be nil", nil)
	}
	log := logging.FromContext(ctx)

	format := raw.Format
	if format == 0 {
		format = domain.LatestFormat
	}

	// Phase 1: one attribute dictionary per node, in declared order.
	dag := NewDependencyGraph()
	attrs := make(map[string]domain.Attributes, len(raw.Nodes))
	for _, node := range raw.Nodes {
		if node.Name == "" {
			return nil, domain.NewInvalidConfigurationError("node name cannot be empty",
				map[string]any{"type": node.LayerType})
		}
		if err := dag.AddNode(node.Name); err != nil {
			return nil, err
		}
		attrs[node.Name] = nodeAttributes(node, format)
	}

	// Phase 2: reference integrity, then a deterministic order. Nothing is
	// built until every reference resolves and the graph is acyclic.
	if err := b.checkReferences(raw, dag); err != nil {
		return nil, err
	}
	for _, node := range raw.Nodes {
		for _, in := range node.Inputs {
			if err := dag.AddEdge(in, node.Name); err != nil {
				return nil, domain.WithNode(err, node.Name)
			}
		}
	}
	order, err := dag.TopologicalSort()
	if err != nil {
		return nil, err
	}

	byName := make(map[string]domain.RawNode, len(raw.Nodes))
	for _, node := range raw.Nodes {
		byName[node.Name] = node
	}

	// Phase 3: translate and infer in order.
	shapes := make(map[string]domain.Shape, len(order))
	nodes := make([]GraphNode, 0, len(order))
	for _, name := range order {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("import cancelled before node %s: %w", name, err)
		}
		gn, err := b.buildNode(ctx, format, byName[name], attrs[name], shapes)
		if err != nil {
			return nil, err
		}
		shapes[name] = gn.OutputShape
		nodes = append(nodes, gn)
		log.Debug("node resolved", "node", name, "type", gn.LayerType, "output_shape", gn.OutputShape.String())
	}

	// Phase 4: declared outputs.
	inputs, outputs := raw.Inputs, raw.Outputs
	if len(inputs) == 0 {
		inputs = defaultInputs(nodes)
	}
	if len(outputs) == 0 {
		outputs = defaultOutputs(dag, nodes)
	}
	for _, out := range outputs {
		if _, ok := shapes[out]; !ok {
			return nil, domain.NewDanglingOutputError(out)
		}
	}

	return newConfigurationModel(raw.Name, format, nodes, inputs, outputs), nil
}

// checkReferences verifies every node input and declared graph input names
// an existing node.
func (b *GraphBuilder) checkReferences(raw *domain.RawGraph, dag *DependencyGraph) error {
	for _, node := range raw.Nodes {
		for _, in := range node.Inputs {
			if !dag.HasNode(in) {
				return domain.NewUnresolvedReferenceError(node.Name, in, closestName(in, dag.Names()))
			}
		}
	}
	for _, in := range raw.Inputs {
		if !dag.HasNode(in) {
			return domain.NewUnresolvedReferenceError(in, in, closestName(in, dag.Names()))
		}
	}
	return nil
}

// buildNode resolves, builds and infers a single node. Every returned
// error carries the node name.
func (b *GraphBuilder) buildNode(
	ctx context.Context,
	format domain.FormatVersion,
	node domain.RawNode,
	attrs domain.Attributes,
	shapes map[string]domain.Shape,
) (gn GraphNode, err error) {
	_, span := b.tracer.Start(ctx, "GraphBuilder.buildNode", trace.WithAttributes(
		attribute.String("node.name", node.Name),
		attribute.String("node.type", node.LayerType),
		attribute.String("format", format.String()),
	))
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = errorKind(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.String("node.output_shape", gn.OutputShape.String()))
			span.SetStatus(codes.Ok, "")
		}
		span.End()

		labels := map[string]string{"layer_type": node.LayerType, "status": status}
		b.metrics.RecordLatency("build_node", time.Since(start), labels)
		b.metrics.RecordCounter("layers_built_total", 1, labels)
	}()

	adapter, kind, err := b.registry.Resolve(format, node.LayerType)
	if err != nil {
		return GraphNode{}, domain.WithNode(err, node.Name)
	}

	spec, err := adapter.Build(attrs, b.enforceTrainingConfig)
	if err != nil {
		return GraphNode{}, domain.WithNode(err, node.Name)
	}
	if spec == nil {
		return GraphNode{}, domain.WithNode(fmt.Errorf("adapter for %s returned no spec", node.LayerType), node.Name)
	}
	if spec.Kind() != kind {
		return GraphNode{}, domain.WithNode(
			fmt.Errorf("adapter for %s produced kind %s, registered as %s", node.LayerType, spec.Kind(), kind),
			node.Name)
	}

	inputShapes := make([]domain.Shape, len(node.Inputs))
	for i, in := range node.Inputs {
		s, ok := shapes[in]
		if !ok {
			return GraphNode{}, domain.NewMissingInputShapeError(node.Name, in)
		}
		inputShapes[i] = s
	}

	out, err := b.shapes.Infer(spec, inputShapes)
	if err != nil {
		return GraphNode{}, domain.WithNode(err, node.Name)
	}

	return GraphNode{
		Name:        node.Name,
		LayerType:   node.LayerType,
		Spec:        spec,
		InputNames:  append([]string(nil), node.Inputs...),
		InputShapes: inputShapes,
		OutputShape: out,
	}, nil
}

// nodeAttributes builds the attribute dictionary for node, exposing the
// node name under the reserved name key.
func nodeAttributes(node domain.RawNode, format domain.FormatVersion) domain.Attributes {
	raw := make(map[string]any, len(node.Attributes)+1)
	for k, v := range node.Attributes {
		raw[k] = v
	}
	raw[nameKey] = node.Name
	return domain.NewAttributes(raw, format)
}

// defaultInputs treats every input-kind node as a graph input when the
// descriptor declares none.
func defaultInputs(nodes []GraphNode) []string {
	var out []string
	for _, n := range nodes {
		if n.Spec.Kind() == domain.KindInput {
			out = append(out, n.Name)
		}
	}
	return out
}

// defaultOutputs treats every node without dependents as a graph output
// when the descriptor declares none.
func defaultOutputs(dag *DependencyGraph, nodes []GraphNode) []string {
	var out []string
	for _, n := range nodes {
		if len(dag.Dependents(n.Name)) == 0 {
			out = append(out, n.Name)
		}
	}
	return out
}

// errorKind maps an import error to a short metric label.
func errorKind(err error) string {
	kinds := []struct {
		sentinel error
		label    string
	}{
		{domain.ErrMissingKey, "missing_key"},
		{domain.ErrTypeMismatch, "type_mismatch"},
		{domain.ErrUnsupportedLayer, "unsupported_layer"},
		{domain.ErrInvalidConfiguration, "invalid_configuration"},
		{domain.ErrUnsupportedConfiguration, "unsupported_configuration"},
		{domain.ErrMissingInputShape, "missing_input_shape"},
		{domain.ErrCyclicGraph, "cyclic_graph"},
		{domain.ErrUnresolvedReference, "unresolved_reference"},
		{domain.ErrDanglingOutput, "dangling_output"},
		{domain.ErrDuplicateNode, "duplicate_node"},
		{context.Canceled, "cancelled"},
		{context.DeadlineExceeded, "deadline_exceeded"},
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.label
		}
	}
	return "error"
}
