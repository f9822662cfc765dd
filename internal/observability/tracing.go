package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/intersection-scheduler/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Exporter selects where tick spans are sent.
type Exporter string

const (
	ExporterStdout Exporter = "stdout"
	ExporterOTLP   Exporter = "otlp"

	namespace           = "intersection"
	defaultServiceName  = "intersection-scheduler"
	defaultOTLPEndpoint = "localhost:4317"
	shutdownTimeout     = 5 * time.Second
)

// ParseExporter accepts "stdout", "otlp" and the "otlpgrpc" alias, ignoring case.
// An empty name selects stdout.
func ParseExporter(name string) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", string(ExporterStdout):
		return ExporterStdout, nil
	case string(ExporterOTLP), "otlpgrpc":
		return ExporterOTLP, nil
	default:
		return "", fmt.Errorf("unsupported tracing exporter: %q", name)
	}
}

// TracingConfig governs how tick spans are exported.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    string
	Endpoint    string
	SampleRatio float64

	// RunAttributes are attached to the trace resource, e.g. the catalog
	// path and seed of the run, so spans from different runs can be told apart.
	RunAttributes map[string]string

	// Output receives spans from the stdout exporter. Defaults to os.Stdout.
	Output io.Writer
}

// TracingConfigFromEnv reads the SCHED_TRACING_* and SCHED_OTLP_ENDPOINT
// variables. Malformed or out-of-range sample ratios fall back to 1.
func TracingConfigFromEnv() TracingConfig {
	cfg := TracingConfig{
		Enabled:     strings.EqualFold(os.Getenv("SCHED_TRACING_ENABLED"), "true"),
		ServiceName: os.Getenv("SCHED_TRACING_SERVICE_NAME"),
		Exporter:    strings.ToLower(os.Getenv("SCHED_TRACING_EXPORTER")),
		Endpoint:    os.Getenv("SCHED_OTLP_ENDPOINT"),
		SampleRatio: 1,
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}
	if cfg.Exporter == "" {
		cfg.Exporter = string(ExporterStdout)
	}
	if raw := os.Getenv("SCHED_TRACING_SAMPLE_RATIO"); raw != "" {
		if r, err := strconv.ParseFloat(raw, 64); err == nil && r >= 0 && r <= 1 {
			cfg.SampleRatio = r
		}
	}
	return cfg
}

// InitTracing installs the global tracer provider the scheduler's tick spans
// are recorded through. When tracing is disabled a noop provider is installed
// so instrumented code needs no nil checks. The returned function flushes and
// stops the provider.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		log.Debug(ctx, "tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	kind, err := ParseExporter(cfg.Exporter)
	if err != nil {
		return nil, err
	}
	exp, err := newExporter(ctx, kind, cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s exporter: %w", kind, err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(resourceAttributes(cfg)...))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", string(kind)),
		logging.String("service_name", serviceName(cfg)),
		logging.Float("sample_ratio", cfg.SampleRatio),
	)
	return tp.Shutdown, nil
}

func serviceName(cfg TracingConfig) string {
	if cfg.ServiceName == "" {
		return defaultServiceName
	}
	return cfg.ServiceName
}

// resourceAttributes orders run attributes by key so exported resources are
// stable between runs with the same configuration.
func resourceAttributes(cfg TracingConfig) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("service.name", serviceName(cfg)),
		attribute.String("service.namespace", namespace),
	}
	keys := make([]string, 0, len(cfg.RunAttributes))
	for k := range cfg.RunAttributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, attribute.String("run."+k, cfg.RunAttributes[k]))
	}
	return attrs
}

func newExporter(ctx context.Context, kind Exporter, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	if kind == ExporterOTLP {
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = defaultOTLPEndpoint
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		))
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	return stdouttrace.New(stdouttrace.WithWriter(out), stdouttrace.WithoutTimestamps())
}

// ShutdownWithTimeout flushes pending spans within a fixed deadline. Failures
// are logged, since callers run it from a defer at process exit.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}
