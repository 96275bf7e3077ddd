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

// Observability records sync run meters through OpenTelemetry, exported on
// the default Prometheus registry next to the promauto metrics.
type Observability struct {
	meterProvider *metric.MeterProvider
	syncRuns      otelmetric.Int64Counter
	syncDuration  otelmetric.Float64Histogram
}

// New returns a usable Observability even with a non-nil error; missing
// instruments record nothing.
func New(serviceName string) (*Observability, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return &Observability{}, err
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	syncRuns, err := meter.Int64Counter(
		"review_sync.runs",
		otelmetric.WithDescription("Review sync runs by platform and status"),
	)
	if err != nil {
		return &Observability{meterProvider: provider}, err
	}

	syncDuration, err := meter.Float64Histogram(
		"review_sync.duration",
		otelmetric.WithDescription("Review sync run duration"),
		otelmetric.WithUnit("ms"),
	)
	if err != nil {
		return &Observability{meterProvider: provider, syncRuns: syncRuns}, err
	}

	return &Observability{
		meterProvider: provider,
		syncRuns:      syncRuns,
		syncDuration:  syncDuration,
	}, nil
}

// RecordSyncRun counts one finished sync run and its duration.
func (o *Observability) RecordSyncRun(ctx context.Context, platform, status string, duration time.Duration) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("platform", platform),
		attribute.String("status", status),
	)
	if o.syncRuns != nil {
		o.syncRuns.Add(ctx, 1, attrs)
	}
	if o.syncDuration != nil {
		o.syncDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil || o.meterProvider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return o.meterProvider.Shutdown(ctx)
}
