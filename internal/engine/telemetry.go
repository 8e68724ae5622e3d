package engine

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"crossexchange/internal/domain"
)

const instrumentationName = "crossexchange/engine"

// Telemetry holds the executor's OpenTelemetry instruments.
type Telemetry struct {
	tracer   trace.Tracer
	recorded metric.Int64Counter
	rejected metric.Int64Counter
}

// NewTelemetry uses the global tracer and meter providers.
func NewTelemetry() (*Telemetry, error) {
	return NewTelemetryWithProviders(otel.GetTracerProvider(), otel.GetMeterProvider())
}

// NewTelemetryWithProviders creates a Telemetry with custom providers.
func NewTelemetryWithProviders(tp trace.TracerProvider, mp metric.MeterProvider) (*Telemetry, error) {
	meter := mp.Meter(instrumentationName)
	t := &Telemetry{tracer: tp.Tracer(instrumentationName)}

	var err error
	t.recorded, err = meter.Int64Counter(
		"crossexchange.trades.recorded",
		metric.WithDescription("Trades appended to the ledger"),
	)
	if err != nil {
		return nil, err
	}
	t.rejected, err = meter.Int64Counter(
		"crossexchange.trades.rejected",
		metric.WithDescription("Trade requests rejected, by reason"),
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Telemetry) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (t *Telemetry) recordTrade(ctx context.Context, tr domain.Trade) {
	t.recorded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", string(tr.Action)),
	))
}

func (t *Telemetry) recordRejection(ctx context.Context, reason domain.Reason) {
	t.rejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", string(reason)),
	))
}
