package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability records per-delivery meters through OpenTelemetry.
// Values are exported on the default Prometheus registry next to the promauto collectors.
type Observability struct {
	meterProvider *metric.MeterProvider
	meter         otelmetric.Meter
	jobCounter    otelmetric.Int64Counter
	jobDuration   otelmetric.Float64Histogram
}

// New installs a global meter provider backed by the Prometheus exporter.
// On exporter failure it returns a no-op instance and the error.
func New(serviceName string) (*Observability, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return NewNoop(), err
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	o := newFromMeter(provider.Meter(serviceName))
	o.meterProvider = provider
	return o, nil
}

// NewNoop returns an instance whose Record methods do nothing.
func NewNoop() *Observability {
	return &Observability{}
}

// NewWithReader is New without touching the global provider; tests pass a ManualReader.
func NewWithReader(serviceName string, reader metric.Reader) *Observability {
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	o := newFromMeter(provider.Meter(serviceName))
	o.meterProvider = provider
	return o
}

func newFromMeter(meter otelmetric.Meter) *Observability {
	jobCounter, _ := meter.Int64Counter(
		"notifications.processed",
		otelmetric.WithDescription("Number of notification deliveries processed"),
	)

	jobDuration, _ := meter.Float64Histogram(
		"notifications.duration",
		otelmetric.WithDescription("Notification delivery processing duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meter:       meter,
		jobCounter:  jobCounter,
		jobDuration: jobDuration,
	}
}

func (o *Observability) RecordJobProcessed(ctx context.Context, template, outcome string) {
	if o == nil || o.jobCounter == nil {
		return
	}
	o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("template", template),
		attribute.String("outcome", outcome),
	))
}

func (o *Observability) RecordJobDuration(ctx context.Context, duration time.Duration, outcome string) {
	if o == nil || o.jobDuration == nil {
		return
	}
	o.jobDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil || o.meterProvider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return o.meterProvider.Shutdown(ctx)
}
