package observability

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"atsbeaters/internal/ai"
	"atsbeaters/internal/workspace"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	_ ai.Recorder        = (*ObservabilityManager)(nil)
	_ workspace.Observer = (*ObservabilityManager)(nil)
)

// Metrics holds all custom metrics for ATS Beaters
type Metrics struct {
	// AI operation metrics
	AIProcessingTime metric.Float64Histogram
	AIRequestCount   metric.Int64Counter
	AIErrorCount     metric.Int64Counter
	AITokenUsage     metric.Int64Histogram
	RateLimitWait    metric.Float64Histogram

	// Business metrics
	TaskRuns      metric.Int64Counter
	TaskDuration  metric.Float64Histogram
	GateBlocks    metric.Int64Counter
	HistorySaves  metric.Int64Counter
	SecretReloads metric.Int64Counter
}

// Option tunes an ObservabilityManager
type Option func(*ObservabilityManager)

// WithMetricReader adds a reader next to the configured ones
func WithMetricReader(r sdkmetric.Reader) Option {
	return func(om *ObservabilityManager) { om.extraReaders = append(om.extraReaders, r) }
}

// ObservabilityManager manages OpenTelemetry setup
type ObservabilityManager struct {
	config         ObservabilityConfig
	resource       *resource.Resource
	tracerProvider *trace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	metrics        *Metrics
	shutdownFuncs  []func(context.Context) error
	registry       *prometheus.Registry
	extraReaders   []sdkmetric.Reader
}

// NewObservabilityManager creates a new observability manager. A disabled
// manager is still usable: every recording method becomes a no-op.
func NewObservabilityManager(obsConfig ObservabilityConfig, opts ...Option) (*ObservabilityManager, error) {
	om := &ObservabilityManager{config: obsConfig}
	for _, opt := range opts {
		opt(om)
	}
	if !obsConfig.Enabled {
		return om, nil
	}

	if err := om.initResource(); err != nil {
		return nil, fmt.Errorf("failed to initialize resource: %w", err)
	}

	if err := om.initTracing(); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	if err := om.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return om, nil
}

// Enabled reports whether telemetry is being produced
func (om *ObservabilityManager) Enabled() bool {
	return om != nil && om.config.Enabled
}

func (om *ObservabilityManager) initResource() error {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(om.config.ServiceName),
			semconv.ServiceVersion(om.config.ServiceVersion),
			semconv.ServiceInstanceID(om.getServiceInstanceID()),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}
	om.resource = res
	return nil
}

// initTracing sets up OpenTelemetry tracing
func (om *ObservabilityManager) initTracing() error {
	var exporter trace.SpanExporter
	var err error

	switch {
	case om.config.ConsoleOutput:
		opts := []stdouttrace.Option{stdouttrace.WithWriter(os.Stderr)}
		if om.config.PrettyPrint {
			opts = append(opts, stdouttrace.WithPrettyPrint())
		}
		exporter, err = stdouttrace.New(opts...)
	case om.config.OTLP.Enabled:
		exporter, err = om.createOTLPExporter()
	default:
		exporter = &noOpSpanExporter{}
	}
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(om.resource),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(om.config.SampleRate))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	om.tracerProvider = tp
	om.shutdownFuncs = append(om.shutdownFuncs, tp.Shutdown)

	return nil
}

// initMetrics sets up OpenTelemetry metrics
func (om *ObservabilityManager) initMetrics() error {
	readers, err := om.setupMetricReaders()
	if err != nil {
		return err
	}

	meterProviderOptions := []sdkmetric.Option{
		sdkmetric.WithResource(om.resource),
	}
	for _, reader := range readers {
		meterProviderOptions = append(meterProviderOptions, sdkmetric.WithReader(reader))
	}

	mp := sdkmetric.NewMeterProvider(meterProviderOptions...)

	otel.SetMeterProvider(mp)
	om.meterProvider = mp
	om.shutdownFuncs = append(om.shutdownFuncs, mp.Shutdown)

	return om.initCustomMetrics()
}

// setupMetricReaders sets up all metric readers based on configuration
func (om *ObservabilityManager) setupMetricReaders() ([]sdkmetric.Reader, error) {
	readers := append([]sdkmetric.Reader(nil), om.extraReaders...)

	if om.config.ConsoleOutput {
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
		if err != nil {
			return nil, fmt.Errorf("failed to create console metric exporter: %w", err)
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(om.getMetricsCollectionInterval())))
	}

	if om.config.OTLP.Enabled {
		otlpReader, err := om.createOTLPMetricsReader()
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metrics reader: %w", err)
		}
		readers = append(readers, otlpReader)
	}

	promReader, reg, err := SetupPrometheusExporter(om.config.Prometheus)
	if err != nil {
		return nil, err
	}
	if promReader != nil {
		readers = append(readers, promReader)
		om.registry = reg
	}

	// If no readers configured, use manual reader as fallback
	if len(readers) == 0 {
		readers = append(readers, sdkmetric.NewManualReader())
	}

	return readers, nil
}

// initCustomMetrics creates all custom metrics for ATS Beaters
func (om *ObservabilityManager) initCustomMetrics() error {
	meter := om.meterProvider.Meter(om.config.ServiceName)
	om.metrics = &Metrics{}

	if err := om.createAIMetrics(meter); err != nil {
		return err
	}
	return om.createBusinessMetrics(meter)
}

// createAIMetrics creates AI-related metrics
func (om *ObservabilityManager) createAIMetrics(meter metric.Meter) error {
	var err error

	om.metrics.AIProcessingTime, err = meter.Float64Histogram(
		"atsbeaters_ai_processing_duration_seconds",
		metric.WithDescription("Time spent processing AI requests"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create AI processing time metric: %w", err)
	}

	om.metrics.AIRequestCount, err = meter.Int64Counter(
		"atsbeaters_ai_requests_total",
		metric.WithDescription("Total number of AI requests"),
	)
	if err != nil {
		return fmt.Errorf("failed to create AI request count metric: %w", err)
	}

	om.metrics.AIErrorCount, err = meter.Int64Counter(
		"atsbeaters_ai_errors_total",
		metric.WithDescription("Total number of AI request errors"),
	)
	if err != nil {
		return fmt.Errorf("failed to create AI error count metric: %w", err)
	}

	om.metrics.AITokenUsage, err = meter.Int64Histogram(
		"atsbeaters_ai_token_usage",
		metric.WithDescription("Token usage for AI requests (input, output)"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create AI token usage metric: %w", err)
	}

	om.metrics.RateLimitWait, err = meter.Float64Histogram(
		"atsbeaters_rate_limit_wait_seconds",
		metric.WithDescription("Time spent waiting on the client-side rate limiter"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create rate limit wait metric: %w", err)
	}

	return nil
}

// createBusinessMetrics creates business-related metrics
func (om *ObservabilityManager) createBusinessMetrics(meter metric.Meter) error {
	var err error

	om.metrics.TaskRuns, err = meter.Int64Counter(
		"atsbeaters_task_runs_total",
		metric.WithDescription("Finished task runs by task and final state"),
	)
	if err != nil {
		return fmt.Errorf("failed to create task runs metric: %w", err)
	}

	om.metrics.TaskDuration, err = meter.Float64Histogram(
		"atsbeaters_task_duration_seconds",
		metric.WithDescription("Wall time of a task run from submit to result"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create task duration metric: %w", err)
	}

	om.metrics.GateBlocks, err = meter.Int64Counter(
		"atsbeaters_gate_blocks_total",
		metric.WithDescription("Submissions refused by the free-tier usage gate"),
	)
	if err != nil {
		return fmt.Errorf("failed to create gate blocks metric: %w", err)
	}

	om.metrics.HistorySaves, err = meter.Int64Counter(
		"atsbeaters_history_saves_total",
		metric.WithDescription("Results saved to the user history"),
	)
	if err != nil {
		return fmt.Errorf("failed to create history saves metric: %w", err)
	}

	om.metrics.SecretReloads, err = meter.Int64Counter(
		"atsbeaters_secret_reloads_total",
		metric.WithDescription("API key reloads picked up from Vault"),
	)
	if err != nil {
		return fmt.Errorf("failed to create secret reloads metric: %w", err)
	}

	return nil
}

// GetMetrics returns the metrics instance
func (om *ObservabilityManager) GetMetrics() *Metrics {
	if om == nil || om.metrics == nil {
		return &Metrics{}
	}
	return om.metrics
}

// Tracer returns a tracer for the service
func (om *ObservabilityManager) Tracer(name string) oteltrace.Tracer {
	if !om.Enabled() {
		return noop.NewTracerProvider().Tracer(name)
	}
	return om.tracerProvider.Tracer(name)
}

// StartCommand opens the root span of one CLI command
func (om *ObservabilityManager) StartCommand(ctx context.Context, command string) (context.Context, oteltrace.Span) {
	return om.Tracer("atsbeaters.cli").Start(ctx, "cli."+command,
		oteltrace.WithAttributes(attribute.String("command", command)))
}

// EndCommand closes a span opened by StartCommand, recording err if any
func EndCommand(span oteltrace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Shutdown writes the Prometheus textfile if configured, then flushes and
// stops every exporter.
func (om *ObservabilityManager) Shutdown(ctx context.Context) error {
	if !om.Enabled() {
		return nil
	}
	var errs []error
	if err := WriteTextfile(om.registry, om.config.Prometheus.TextfilePath); err != nil {
		errs = append(errs, err)
	}
	for _, shutdown := range om.shutdownFuncs {
		if err := shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordAIRequest records one model call
func (om *ObservabilityManager) RecordAIRequest(ctx context.Context, task, model string, duration time.Duration, inputTokens, outputTokens int64, err error) {
	if !om.aiMetricsEnabled() {
		return
	}
	m := om.metrics
	attrs := metric.WithAttributes(
		attribute.String("task", task),
		attribute.String("model", model),
		attribute.Bool("success", err == nil),
	)

	m.AIRequestCount.Add(ctx, 1, attrs)
	if err != nil {
		m.AIErrorCount.Add(ctx, 1, attrs)
	}
	if om.config.CustomMetrics.AIOperations.TrackDuration {
		m.AIProcessingTime.Record(ctx, duration.Seconds(), attrs)
	}
	if om.config.CustomMetrics.AIOperations.TrackTokenUsage && err == nil {
		om.recordTokenMetrics(ctx, task, model, inputTokens, outputTokens)
	}
}

func (om *ObservabilityManager) recordTokenMetrics(ctx context.Context, task, model string, input, output int64) {
	for _, tt := range []struct {
		tokenType string
		value     int64
	}{
		{"input", input},
		{"output", output},
	} {
		om.metrics.AITokenUsage.Record(ctx, tt.value, metric.WithAttributes(
			attribute.String("task", task),
			attribute.String("model", model),
			attribute.String("token_type", tt.tokenType),
		))
	}
}

// RecordRateLimitWait records time spent blocked on the limiter
func (om *ObservabilityManager) RecordRateLimitWait(ctx context.Context, task string, wait time.Duration) {
	if !om.aiMetricsEnabled() || !om.config.CustomMetrics.AIOperations.TrackRateLimits {
		return
	}
	om.metrics.RateLimitWait.Record(ctx, wait.Seconds(),
		metric.WithAttributes(attribute.String("task", task)))
}

// GateBlocked counts a submission refused by the usage gate
func (om *ObservabilityManager) GateBlocked(ctx context.Context, task string) {
	if !om.businessMetricsEnabled() {
		return
	}
	om.metrics.GateBlocks.Add(ctx, 1, metric.WithAttributes(attribute.String("task", task)))
}

// TaskFinished counts a run that reached succeeded or failed
func (om *ObservabilityManager) TaskFinished(ctx context.Context, task string, state workspace.State, duration time.Duration) {
	if !om.businessMetricsEnabled() {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("task", task),
		attribute.String("state", string(state)),
	)
	om.metrics.TaskRuns.Add(ctx, 1, attrs)
	om.metrics.TaskDuration.Record(ctx, duration.Seconds(), attrs)
}

// HistorySaved counts a result stored in the user history
func (om *ObservabilityManager) HistorySaved(ctx context.Context, task string) {
	if !om.businessMetricsEnabled() {
		return
	}
	om.metrics.HistorySaves.Add(ctx, 1, metric.WithAttributes(attribute.String("task", task)))
}

// SecretReloaded counts an API key rotation seen by the Vault watcher
func (om *ObservabilityManager) SecretReloaded(ctx context.Context, err error) {
	if !om.businessMetricsEnabled() {
		return
	}
	om.metrics.SecretReloads.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", err == nil)))
}

func (om *ObservabilityManager) aiMetricsEnabled() bool {
	return om.Enabled() && om.metrics != nil && om.config.CustomMetrics.AIOperations.Enabled
}

func (om *ObservabilityManager) businessMetricsEnabled() bool {
	return om.Enabled() && om.metrics != nil && om.config.CustomMetrics.BusinessMetrics.Enabled
}

// noOpSpanExporter is used when neither console nor OTLP output is on
type noOpSpanExporter struct{}

func (n *noOpSpanExporter) ExportSpans(ctx context.Context, spans []trace.ReadOnlySpan) error {
	return nil
}

func (n *noOpSpanExporter) Shutdown(ctx context.Context) error {
	return nil
}

// createOTLPExporter creates an OTLP HTTP trace exporter
func (om *ObservabilityManager) createOTLPExporter() (trace.SpanExporter, error) {
	otlpConfig := om.config.OTLP

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpointURL(otlpConfig.Endpoint),
	}
	if otlpConfig.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(otlpConfig.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(otlpConfig.Headers))
	}

	exporter, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	return exporter, nil
}

// createOTLPMetricsReader creates an OTLP HTTP metrics reader
func (om *ObservabilityManager) createOTLPMetricsReader() (sdkmetric.Reader, error) {
	otlpConfig := om.config.OTLP

	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpointURL(otlpConfig.Endpoint),
	}
	if otlpConfig.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	if len(otlpConfig.Headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(otlpConfig.Headers))
	}

	exporter, err := otlpmetrichttp.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
	}

	return sdkmetric.NewPeriodicReader(exporter,
		sdkmetric.WithInterval(om.getMetricsCollectionInterval())), nil
}

// getServiceInstanceID returns the configured instance id or one derived
// from the host name
func (om *ObservabilityManager) getServiceInstanceID() string {
	if om.config.ServiceInstance != "" {
		return om.config.ServiceInstance
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return "atsbeaters-" + host
	}
	return "atsbeaters-1"
}

func (om *ObservabilityManager) getMetricsCollectionInterval() time.Duration {
	if om.config.CollectionInterval > 0 {
		return om.config.CollectionInterval
	}
	return 15 * time.Second
}
