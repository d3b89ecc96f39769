// Command netimport imports neural-network layer configurations and prints
// the reconstructed graph.
//
// Usage:
//
//	netimport [-config file] [-log-level level] import [-format f] [-metrics-file path] <descriptor>
//	netimport [-config file] validate [-format f] <descriptor>...
//	netimport types
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-netimport/infrastructure/observability"
	"github.com/ahrav/go-netimport/internal/application"
	"github.com/ahrav/go-netimport/internal/config"
	"github.com/ahrav/go-netimport/internal/logging"
	"github.com/ahrav/go-netimport/internal/ports"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("netimport", flag.ContinueOnError)
	global.SetOutput(stderr)
	var (
		configPath = global.String("config", "", "Path to the importer configuration file")
		logLevel   = global.String("log-level", "", "Override the configured log level")
	)
	global.Usage = func() {
		fmt.Fprintln(stderr, "usage: netimport [flags] <import|validate|types> [args]")
		global.PrintDefaults()
	}
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format, stderr)
	ctx := logging.WithLogger(context.Background(), logger)
	// Adapters log through the package-level slog functions.
	prev := slog.Default()
	slog.SetDefault(logger)
	defer slog.SetDefault(prev)

	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "import":
		err = runImport(ctx, cfg, rest, stdout, stderr)
	case "validate":
		err = runValidate(ctx, cfg, rest, stdout, stderr)
	case "types":
		err = runTypes(stdout)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		global.Usage()
		return 2
	}

	if errors.Is(err, flag.ErrHelp) || errors.Is(err, errUsage) {
		return 2
	}
	if err != nil {
		logger.Error("command failed", "command", cmd, "error", err)
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

var errUsage = errors.New("usage error")

// newImporter builds an importer from cfg. reg receives the metrics when
// cfg enables them.
func newImporter(cfg *config.ImporterConfig, reg prometheus.Registerer) (*application.Importer, error) {
	format, err := cfg.Format()
	if err != nil {
		return nil, err
	}
	opts := []application.ImporterOption{
		application.WithCache(cfg.Cache()),
		application.WithMaxConcurrentImports(cfg.MaxConcurrentImports),
		application.WithDefaultFormat(format),
		application.WithBuilderOptions(application.WithEnforceTrainingConfig(cfg.EnforceTrainingConfig)),
	}
	if cfg.Metrics.Enabled && reg != nil {
		opts = append(opts, application.WithImportMetrics(observability.NewPrometheusMetrics(reg)))
	}
	return application.NewDefaultImporter(opts...)
}

func runImport(ctx context.Context, cfg *config.ImporterConfig, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		format      = fs.String("format", "", "Descriptor format: yaml, keras-json or hcl (default: from extension)")
		metricsFile = fs.String("metrics-file", "", "Write Prometheus metrics in text format to this file")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: netimport import [-format f] [-metrics-file path] <descriptor>")
		return errUsage
	}
	path := fs.Arg(0)

	if *metricsFile != "" {
		cfg.Metrics.Enabled = true
	}
	reg := prometheus.NewRegistry()
	im, err := newImporter(cfg, reg)
	if err != nil {
		return err
	}
	model, err := importPath(ctx, im, *format, path)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(stdout)
	enc.SetIndent(2)
	if err := enc.Encode(model.Summary()); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	if *metricsFile != "" {
		if err := prometheus.WriteToTextfile(*metricsFile, reg); err != nil {
			return ports.NewMetricsError("netimport", "WriteToTextfile", err)
		}
	}
	return nil
}

// importPath imports path with the decoder named by formatFlag, or the one
// bound to its extension when formatFlag is empty.
func importPath(ctx context.Context, im *application.Importer, formatFlag, path string) (*application.ConfigurationModel, error) {
	if formatFlag == "" {
		return im.ImportFile(ctx, path)
	}
	format := application.DescriptorFormat(strings.ToLower(formatFlag))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open descriptor: %w", err)
	}
	defer f.Close()
	return im.ImportReader(ctx, f, format)
}

func runValidate(ctx context.Context, cfg *config.ImporterConfig, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	format := fs.String("format", "", "Descriptor format: yaml, keras-json or hcl (default: from extension)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "usage: netimport validate [-format f] <descriptor>...")
		return errUsage
	}

	im, err := newImporter(cfg, nil)
	if err != nil {
		return err
	}
	log := logging.FromContext(ctx)

	var failed int
	for _, path := range fs.Args() {
		model, err := importPath(ctx, im, *format, path)
		if err != nil {
			failed++
			fmt.Fprintf(stdout, "FAIL %s: %v\n", path, err)
			continue
		}
		log.Debug("descriptor valid", slog.String("path", path), slog.Int("nodes", model.Len()))
		fmt.Fprintf(stdout, "ok   %s (%d layers)\n", path, model.Len())
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d descriptors failed", failed, fs.NArg())
	}
	return nil
}

func runTypes(stdout io.Writer) error {
	registry, err := application.DefaultRegistry()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tVERSIONS\tKIND")
	for _, info := range registry.SupportedTypes() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", info.LayerType, info.VersionLabel, info.Kind)
	}
	return tw.Flush()
}
