package telemetry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	tracerName = "pdf-office"

	// Span attribute size limits
	defaultMaxAttributeSize = 4096  // 4KB default for span attributes
	minAttributeSize        = 1024  // 1KB minimum
	maxAttributeSize        = 65536 // 64KB maximum
)

var (
	// globalMutex protects access to global tracer variables
	globalMutex sync.RWMutex
	// global tracer instance
	globalTracer trace.Tracer
	// global tracer provider for shutdown
	globalTracerProvider *sdktrace.TracerProvider
	// operations that won't create spans
	disabledOperations map[string]bool
	// is tracing enabled
	tracingEnabled bool
)

// otelErrorHandler adapts OTEL SDK errors to our logging system
type otelErrorHandler struct {
	logger *logrus.Logger
}

func (h *otelErrorHandler) Handle(err error) {
	if err == nil {
		return
	}
	h.logger.WithError(err).Debug("OTEL: SDK error occurred")
}

// InitTracer initialises the OpenTelemetry tracer based on environment variables
// Returns a shutdown function and an error if initialisation fails.
// The application can continue with a noop tracer even if initialisation fails.
func InitTracer(logger *logrus.Logger, version string) (func() error, error) {
	globalMutex.Lock()
	defer globalMutex.Unlock()

	// Parse disabled operations (always, regardless of whether tracing is enabled)
	disabledOperations = parseDisabledOperations()
	if len(disabledOperations) > 0 {
		logger.WithField("disabled_operations", disabledOperations).Debug("OTEL: Disabled operations configured")
	}

	// Check if OTEL is explicitly disabled
	if isDisabled := os.Getenv("OTEL_SDK_DISABLED"); strings.ToLower(isDisabled) == "true" {
		logger.Debug("OTEL: Explicitly disabled via OTEL_SDK_DISABLED")
		globalTracer = noop.NewTracerProvider().Tracer(tracerName)
		tracingEnabled = false
		return func() error { return nil }, nil
	}

	// An endpoint is required for enabling tracing
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		logger.Debug("OTEL: Not configured (OTEL_EXPORTER_OTLP_ENDPOINT not set), using noop tracer")
		globalTracer = noop.NewTracerProvider().Tracer(tracerName)
		tracingEnabled = false
		return func() error { return nil }, nil
	}

	tracingEnabled = true
	logger.WithField("endpoint", endpoint).Info("OTEL: Initialising tracer")

	otel.SetErrorHandler(&otelErrorHandler{logger: logger})

	protocol := getOTLPProtocol()
	logger.WithField("protocol", protocol).Debug("OTEL: Using protocol")

	var exporter *otlptrace.Exporter
	var err error

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch protocol {
	case "grpc":
		exporter, err = otlptracegrpc.New(ctx)
	case "http/protobuf", "http":
		exporter, err = otlptracehttp.New(ctx)
	default:
		logger.WithField("protocol", protocol).Warn("OTEL: Unknown protocol, defaulting to http")
		exporter, err = otlptracehttp.New(ctx)
	}

	if err != nil {
		logger.WithError(err).Warn("OTEL: Failed to create exporter, falling back to noop tracer")
		globalTracer = noop.NewTracerProvider().Tracer(tracerName)
		tracingEnabled = false
		return func() error { return nil }, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(getServiceName()),
			semconv.ServiceVersionKey.String(version),
			attribute.String("deployment.environment", getDeploymentEnvironment()),
		),
		resource.WithFromEnv(), // Allow additional attributes from OTEL_RESOURCE_ATTRIBUTES
	)
	if err != nil {
		logger.WithError(err).Warn("OTEL: Failed to create resource, using default")
		res = resource.Default()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(createSampler(logger)),
	)

	otel.SetTracerProvider(tp)

	// W3C Trace Context so browser and proxy traces join ours
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	globalTracer = tp.Tracer(tracerName)
	globalTracerProvider = tp

	logger.Info("OTEL: Tracer initialised successfully")

	return func() error {
		globalMutex.Lock()
		defer globalMutex.Unlock()

		if globalTracerProvider != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := globalTracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("OTEL: Failed to shutdown tracer provider")
				return fmt.Errorf("failed to shutdown tracer provider: %w", err)
			}
			logger.Debug("OTEL: Tracer provider shutdown successfully")
		}
		return nil
	}, nil
}

// GetTracer returns the global tracer instance
// Returns a noop tracer if not initialised
func GetTracer() trace.Tracer {
	globalMutex.RLock()
	defer globalMutex.RUnlock()

	if globalTracer == nil {
		return noop.NewTracerProvider().Tracer(tracerName)
	}
	return globalTracer
}

// IsEnabled returns true if tracing is enabled
func IsEnabled() bool {
	globalMutex.RLock()
	defer globalMutex.RUnlock()
	return tracingEnabled
}

// IsOperationTracingDisabled returns true if tracing is disabled for the operation
// via the TRACING_DISABLED_OPERATIONS environment variable
func IsOperationTracingDisabled(operation string) bool {
	globalMutex.RLock()
	defer globalMutex.RUnlock()
	return disabledOperations[operation]
}

// StartOperationSpan creates a span covering one conversion request.
// The caller MUST end the span with EndSpan.
func StartOperationSpan(ctx context.Context, operation, requestID string, params map[string]string, inputs int) (context.Context, trace.Span) {
	if !IsEnabled() || IsOperationTracingDisabled(operation) {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := GetTracer().Start(ctx, SpanNameOperation, trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.String(AttrOperationName, operation),
		attribute.String(AttrRequestID, requestID),
		attribute.Int(AttrOperationInputs, inputs),
	)

	sanitisedParams := SanitiseParams(params)
	maxAttrSize := getMaxAttributeSize()
	if len(sanitisedParams) <= maxAttrSize {
		span.SetAttributes(attribute.String(AttrOperationParams, sanitisedParams))
	} else {
		span.SetAttributes(
			attribute.String(AttrOperationParams, TruncateString(sanitisedParams, maxAttrSize)),
			attribute.Bool(AttrOperationParams+".truncated", true),
		)
	}

	return ctx, span
}

// StartProcessSpan creates a child span for an external converter process
func StartProcessSpan(ctx context.Context, binary string, args []string) (context.Context, trace.Span) {
	if !IsEnabled() {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := GetTracer().Start(ctx, SpanNameProcess, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String(AttrProcessBinary, filepath.Base(binary)),
		attribute.Int(AttrProcessArgCount, len(args)),
	)
	return ctx, span
}

// EndSpan ends a span with success or error
func EndSpan(span trace.Span, err error) {
	if span == nil || !span.IsRecording() {
		return
	}

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(
			attribute.Bool(AttrResultSuccess, false),
			attribute.String(AttrResultError, TruncateString(err.Error(), getMaxAttributeSize())),
		)
	} else {
		span.SetStatus(codes.Ok, "")
		span.SetAttributes(attribute.Bool(AttrResultSuccess, true))
	}

	span.End()
}

// Helper functions

func parseDisabledOperations() map[string]bool {
	disabled := make(map[string]bool)
	disabledStr := os.Getenv("TRACING_DISABLED_OPERATIONS")
	if disabledStr == "" {
		return disabled
	}

	for op := range strings.SplitSeq(disabledStr, ",") {
		op = strings.TrimSpace(op)
		if op != "" {
			disabled[op] = true
		}
	}

	return disabled
}

func getOTLPProtocol() string {
	protocol := os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL")
	if protocol == "" {
		// Check endpoint to guess protocol
		endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		if strings.Contains(endpoint, ":4317") {
			return "grpc" // Default gRPC port
		}
		return "http/protobuf"
	}
	return protocol
}

func getServiceName() string {
	if name := os.Getenv("OTEL_SERVICE_NAME"); name != "" {
		return name
	}
	return tracerName
}

func getDeploymentEnvironment() string {
	for _, envVar := range []string{"ENVIRONMENT", "ENV", "DEPLOYMENT_ENV"} {
		if env := os.Getenv(envVar); env != "" {
			return env
		}
	}

	// Parse from OTEL_RESOURCE_ATTRIBUTES if set
	if attrs := os.Getenv("OTEL_RESOURCE_ATTRIBUTES"); attrs != "" {
		for pair := range strings.SplitSeq(attrs, ",") {
			kv := strings.SplitN(pair, "=", 2)
			if len(kv) == 2 && kv[0] == "deployment.environment" {
				return kv[1]
			}
		}
	}

	return "development"
}

func createSampler(logger *logrus.Logger) sdktrace.Sampler {
	samplerType := os.Getenv("OTEL_TRACES_SAMPLER")
	if samplerType == "" {
		return sdktrace.AlwaysSample()
	}

	samplerArg := os.Getenv("OTEL_TRACES_SAMPLER_ARG")

	switch samplerType {
	case "always_on":
		return sdktrace.AlwaysSample()
	case "always_off":
		return sdktrace.NeverSample()
	case "traceidratio":
		if samplerArg != "" {
			return sdktrace.TraceIDRatioBased(parseFloat(samplerArg, 1.0))
		}
		return sdktrace.AlwaysSample()
	case "parentbased_always_on":
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case "parentbased_always_off":
		return sdktrace.ParentBased(sdktrace.NeverSample())
	case "parentbased_traceidratio":
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(parseFloat(samplerArg, 1.0)))
	default:
		logger.WithField("sampler", samplerType).Warn("OTEL: Unknown sampler type, using always_on")
		return sdktrace.AlwaysSample()
	}
}

func parseFloat(s string, defaultVal float64) float64 {
	var f float64
	if _, err := fmt.Sscanf(s, "%f", &f); err != nil {
		return defaultVal
	}
	if f < 0.0 {
		return 0.0
	}
	if f > 1.0 {
		return 1.0
	}
	return f
}

func getMaxAttributeSize() int {
	sizeStr := os.Getenv("TRACING_MAX_ATTRIBUTE_SIZE")
	if sizeStr == "" {
		return defaultMaxAttributeSize
	}

	var size int
	if _, err := fmt.Sscanf(sizeStr, "%d", &size); err != nil {
		return defaultMaxAttributeSize
	}

	if size < minAttributeSize {
		return minAttributeSize
	}
	if size > maxAttributeSize {
		return maxAttributeSize
	}

	return size
}
