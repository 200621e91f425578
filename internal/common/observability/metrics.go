package observability

import (
	"context"
	"time"

	"ethics-review/internal/common/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability owns the OpenTelemetry meter provider. Its instruments are
// exported through the default Prometheus registry next to the promauto
// collectors. A nil *Observability records nothing.
type Observability struct {
	meterProvider     *metric.MeterProvider
	meter             otelmetric.Meter
	submissionCounter otelmetric.Int64Counter
	uploadCounter     otelmetric.Int64Counter
	operationDuration otelmetric.Float64Histogram
}

func New(serviceName string, log logger.Logger) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Warn("failed to create Prometheus exporter", map[string]interface{}{"error": err.Error()})
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	submissionCounter, _ := meter.Int64Counter(
		"applications.submissions",
		otelmetric.WithDescription("Number of submission attempts"),
	)

	uploadCounter, _ := meter.Int64Counter(
		"documents.uploads",
		otelmetric.WithDescription("Number of document uploads"),
	)

	operationDuration, _ := meter.Float64Histogram(
		"operations.duration",
		otelmetric.WithDescription("Duration of submissions and uploads"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider:     provider,
		meter:             meter,
		submissionCounter: submissionCounter,
		uploadCounter:     uploadCounter,
		operationDuration: operationDuration,
	}
}

func (o *Observability) RecordSubmission(ctx context.Context, outcome string, duration time.Duration) {
	if o == nil || o.submissionCounter == nil {
		return
	}
	attrs := otelmetric.WithAttributes(attribute.String("outcome", outcome))
	o.submissionCounter.Add(ctx, 1, attrs)
	o.recordDuration(ctx, "submission", outcome, duration)
}

func (o *Observability) RecordUpload(ctx context.Context, outcome string, duration time.Duration) {
	if o == nil || o.uploadCounter == nil {
		return
	}
	o.uploadCounter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("outcome", outcome)))
	o.recordDuration(ctx, "upload", outcome, duration)
}

func (o *Observability) recordDuration(ctx context.Context, operation, outcome string, duration time.Duration) {
	if o.operationDuration == nil {
		return
	}
	o.operationDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

func (o *Observability) Shutdown() {
	if o != nil && o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.meterProvider.Shutdown(ctx)
	}
}
