package application

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-netimport/internal/domain"
	"github.com/ahrav/go-netimport/internal/logging"
	"github.com/ahrav/go-netimport/internal/ports"
)

// DescriptorFormat names a serialized descriptor syntax.
type DescriptorFormat string

// Supported descriptor formats.
const (
	DescriptorYAML      DescriptorFormat = "yaml"
	DescriptorKerasJSON DescriptorFormat = "keras-json"
	DescriptorHCL       DescriptorFormat = "hcl"
)

// DefaultMaxConcurrentImports bounds ImportAll when no limit is configured.
const DefaultMaxConcurrentImports = 8

// FreezableInferer is a ShapeInferer with an init-then-read lifecycle.
type FreezableInferer interface {
	ports.ShapeInferer
	Freeze()
}

// ImporterOption configures an Importer.
type ImporterOption func(*Importer)

// WithBuilderOptions forwards options to the underlying GraphBuilder.
func WithBuilderOptions(opts ...BuilderOption) ImporterOption {
	return func(im *Importer) { im.builderOpts = append(im.builderOpts, opts...) }
}

// WithDecoder registers a decoder for format and binds the given file
// extensions (with or without the leading dot) to it.
func WithDecoder(format DescriptorFormat, dec ports.Decoder, extensions ...string) ImporterOption {
	return func(im *Importer) {
		im.decoders[format] = dec
		for _, ext := range extensions {
			im.extensions[normalizeExt(ext)] = format
		}
	}
}

// WithCache enables or disables the content-hash model cache. The cache is
// enabled by default.
func WithCache(enabled bool) ImporterOption {
	return func(im *Importer) { im.cacheEnabled = enabled }
}

// WithMaxConcurrentImports bounds the number of graphs ImportAll builds at
// once. Values below one select DefaultMaxConcurrentImports.
func WithMaxConcurrentImports(n int) ImporterOption {
	return func(im *Importer) {
		if n > 0 {
			im.maxConcurrent = n
		}
	}
}

// WithDefaultFormat sets the format version assumed for graphs that do not
// declare one. Without it such graphs use domain.LatestFormat.
func WithDefaultFormat(v domain.FormatVersion) ImporterOption {
	return func(im *Importer) { im.defaultFormat = v }
}

// WithImportMetrics sets the collector for import-level and per-layer
// metrics.
func WithImportMetrics(m ports.MetricsCollector) ImporterOption {
	return func(im *Importer) {
		if m != nil {
			im.metrics = m
		}
	}
}

// Importer is the entry point of the import engine. It decodes
// descriptors, builds ConfigurationModels, and caches them by content hash
// so identical graphs are compiled once.
//
// Constructing an Importer freezes the adapter registry and shape engine it
// is given; from then on imports run concurrently without contention.
type Importer struct {
	builder     *GraphBuilder
	builderOpts []BuilderOption
	metrics     ports.MetricsCollector

	decoders   map[DescriptorFormat]ports.Decoder
	extensions map[string]DescriptorFormat

	// cache stores built models indexed by the SHA256 hash of the
	// canonical YAML encoding of their raw graph. Models are immutable,
	// so cached values are shared between callers.
	cache        map[string]*ConfigurationModel
	cacheMu      sync.RWMutex
	cacheEnabled bool
	// sf prevents duplicate builds when multiple goroutines import the
	// same graph simultaneously.
	sf singleflight.Group

	maxConcurrent int
	defaultFormat domain.FormatVersion
}

// NewImporter creates an importer over registry and engine, freezing both.
func NewImporter(registry ports.AdapterRegistry, engine FreezableInferer, opts ...ImporterOption) *Importer {
	registry.Freeze()
	engine.Freeze()

	im := &Importer{
		metrics:       ports.NoopMetrics{},
		decoders:      make(map[DescriptorFormat]ports.Decoder),
		extensions:    make(map[string]DescriptorFormat),
		cache:         make(map[string]*ConfigurationModel),
		cacheEnabled:  true,
		maxConcurrent: DefaultMaxConcurrentImports,
	}
	for _, opt := range opts {
		opt(im)
	}

	builderOpts := append([]BuilderOption{WithMetrics(im.metrics)}, im.builderOpts...)
	im.builder = NewGraphBuilder(registry, engine, builderOpts...)
	return im
}

// Import builds a ConfigurationModel from an already-decoded graph.
// WARNING: when caching is enabled the returned model may be shared with
// other callers; it is immutable, so this is safe.
func (im *Importer) Import(ctx context.Context, raw *domain.RawGraph) (*ConfigurationModel, error) {
	if raw == nil {
		return nil, domain.NewInvalidConfigurationError("raw graph cannot be nil", nil)
	}
	if raw.Format == 0 && im.defaultFormat != 0 {
		withFormat := *raw
		withFormat.Format = im.defaultFormat
		raw = &withFormat
	}

	importID := uuid.NewString()
	log := logging.FromContext(ctx).With("import_id", importID, "graph", raw.Name)
	ctx = logging.WithLogger(ctx, log)

	ctx, span := im.builder.tracer.Start(ctx, "Importer.Import", trace.WithAttributes(
		attribute.String("import.id", importID),
		attribute.String("graph.name", raw.Name),
		attribute.Int("graph.nodes", len(raw.Nodes)),
	))
	defer span.End()

	start := time.Now()
	model, cached, err := im.importGraph(ctx, raw, importID)
	elapsed := time.Since(start)

	status := "ok"
	if err != nil {
		status = errorKind(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Debug("import failed", "error", err, "duration", elapsed)
	} else {
		span.SetAttributes(attribute.Bool("import.cached", cached))
		span.SetStatus(codes.Ok, "")
		im.metrics.RecordHistogram("graph_nodes", float64(model.Len()), nil)
		log.Debug("import completed", "nodes", model.Len(), "cached", cached, "duration", elapsed)
	}
	im.metrics.RecordCounter("imports_total", 1, map[string]string{"status": status})
	im.metrics.RecordLatency("import", elapsed, map[string]string{"status": status})

	if err != nil {
		return nil, err
	}
	return model, nil
}

// sharedBuild is the value produced by a singleflight build. builtBy holds
// the import id of the caller that ran the build, or is empty when the
// model was already cached.
type sharedBuild struct {
	model   *ConfigurationModel
	builtBy string
}

// importGraph runs the build, going through the cache when enabled. cached
// reports whether the model came from another caller's build or the cache.
func (im *Importer) importGraph(ctx context.Context, raw *domain.RawGraph, importID string) (*ConfigurationModel, bool, error) {
	if !im.cacheEnabled {
		m, err := im.builder.Build(ctx, raw)
		return m, false, err
	}

	hash, err := calculateGraphHash(raw)
	if err != nil {
		return nil, false, fmt.Errorf("failed to calculate hash: %w", err)
	}

	if m, ok := im.getCachedModel(hash); ok {
		im.metrics.RecordCounter("cache_hits_total", 1, nil)
		return m, true, nil
	}

	// The build is shared by every caller importing the same graph, so it
	// is detached from the cancellation of whichever caller started it.
	// Each caller still stops waiting when its own context ends.
	buildCtx := context.WithoutCancel(ctx)
	ch := im.sf.DoChan(hash, func() (any, error) {
		// Check cache inside singleflight to handle race between cache check
		// and singleflight group execution.
		if m, ok := im.getCachedModel(hash); ok {
			return sharedBuild{model: m}, nil
		}
		m, err := im.builder.Build(buildCtx, raw)
		if err != nil {
			return nil, err
		}
		im.cacheModel(hash, m)
		im.metrics.RecordCounter("cache_misses_total", 1, nil)
		im.metrics.RecordGauge("cached_models", float64(im.CacheLen()), nil)
		return sharedBuild{model: m, builtBy: importID}, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, fmt.Errorf("import cancelled while waiting for build: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		b := res.Val.(sharedBuild)
		switch b.builtBy {
		case importID:
			return b.model, false, nil
		case "":
			im.metrics.RecordCounter("cache_hits_total", 1, nil)
		default:
			im.metrics.RecordCounter("cache_shared_total", 1, nil)
		}
		return b.model, true, nil
	}
}

// ImportFile decodes the descriptor at path, choosing the decoder from the
// file extension, and imports it.
func (im *Importer) ImportFile(ctx context.Context, path string) (*ConfigurationModel, error) {
	// Clean the path to prevent directory traversal attacks.
	cleanPath := filepath.Clean(path)

	format, ok := im.extensions[normalizeExt(filepath.Ext(cleanPath))]
	if !ok {
		return nil, fmt.Errorf("no decoder for %q: %w", filepath.Ext(cleanPath), ports.ErrUnknownDescriptorFormat)
	}

	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open descriptor: %w", err)
	}
	defer f.Close()

	raw, err := im.decode(ctx, f, format, cleanPath)
	if err != nil {
		return nil, err
	}
	return im.Import(ctx, raw)
}

// ImportReader decodes a descriptor of the given format from r and imports
// it.
func (im *Importer) ImportReader(ctx context.Context, r io.Reader, format DescriptorFormat) (*ConfigurationModel, error) {
	raw, err := im.decode(ctx, r, format, "<reader>")
	if err != nil {
		return nil, err
	}
	return im.Import(ctx, raw)
}

// Decode runs only the decoder for format, which is useful for validating
// descriptors without building them.
func (im *Importer) Decode(ctx context.Context, r io.Reader, format DescriptorFormat) (*domain.RawGraph, error) {
	return im.decode(ctx, r, format, "<reader>")
}

func (im *Importer) decode(ctx context.Context, r io.Reader, format DescriptorFormat, source string) (*domain.RawGraph, error) {
	dec, ok := im.decoders[format]
	if !ok {
		return nil, fmt.Errorf("format %q: %w", format, ports.ErrUnknownDescriptorFormat)
	}
	raw, err := dec.Decode(ctx, r)
	if err != nil {
		var de *ports.DecodeError
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, ports.NewDecodeError(string(format), source, err)
	}
	return raw, nil
}

// FormatForPath returns the descriptor format bound to the extension of
// path.
func (im *Importer) FormatForPath(path string) (DescriptorFormat, bool) {
	f, ok := im.extensions[normalizeExt(filepath.Ext(path))]
	return f, ok
}

// ImportAll imports independent graphs concurrently, at most the
// configured number at a time. Results are aligned with graphs. The first
// failure cancels the remaining imports and is returned.
func (im *Importer) ImportAll(ctx context.Context, graphs []*domain.RawGraph) ([]*ConfigurationModel, error) {
	results := make([]*ConfigurationModel, len(graphs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.maxConcurrent)
	for i, raw := range graphs {
		g.Go(func() error {
			m, err := im.Import(gctx, raw)
			if err != nil {
				name := raw.Name
				if name == "" {
					name = fmt.Sprintf("#%d", i)
				}
				return fmt.Errorf("graph %s: %w", name, err)
			}
			results[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// calculateGraphHash computes the SHA256 hash of the canonical YAML
// encoding of raw. yaml.v3 emits map keys in sorted order, so equal graphs
// hash equally regardless of how their attribute maps were built.
func calculateGraphHash(raw *domain.RawGraph) (string, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2) // Use consistent 2-space indentation.

	if err := encoder.Encode(raw); err != nil {
		return "", fmt.Errorf("failed to encode graph for hashing: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return "", fmt.Errorf("failed to encode graph for hashing: %w", err)
	}

	hash := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(hash[:]), nil
}

// getCachedModel is safe for concurrent use.
func (im *Importer) getCachedModel(hash string) (*ConfigurationModel, bool) {
	im.cacheMu.RLock()
	defer im.cacheMu.RUnlock()

	m, ok := im.cache[hash]
	return m, ok
}

// cacheModel is safe for concurrent use and will overwrite any existing
// entry with the same hash.
func (im *Importer) cacheModel(hash string, m *ConfigurationModel) {
	im.cacheMu.Lock()
	defer im.cacheMu.Unlock()

	im.cache[hash] = m
}

// ClearCache removes all cached models, forcing subsequent imports to
// rebuild from source.
func (im *Importer) ClearCache() {
	im.cacheMu.Lock()
	defer im.cacheMu.Unlock()

	im.cache = make(map[string]*ConfigurationModel)
}

// CacheLen returns the number of cached models.
func (im *Importer) CacheLen() int {
	im.cacheMu.RLock()
	defer im.cacheMu.RUnlock()
	return len(im.cache)
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
