package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"crossexchange/internal/config"
)

// InitMetrics installs a meter provider pushing to cfg.Endpoint every
// interval. Without an endpoint the global no-op provider stays in place.
func InitMetrics(ctx context.Context, cfg config.Telemetry, interval time.Duration) (ShutdownFunc, error) {
	if cfg.Endpoint == "" {
		return noop, nil
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(mp)
	return mp.Shutdown, nil
}

// Init installs both providers and returns a shutdown that stops them in
// reverse order.
func Init(ctx context.Context, cfg config.Telemetry) (ShutdownFunc, error) {
	stopTracer, err := InitTracer(ctx, cfg)
	if err != nil {
		return nil, err
	}
	stopMetrics, err := InitMetrics(ctx, cfg, 0)
	if err != nil {
		stopTracer(ctx)
		return nil, err
	}
	return func(ctx context.Context) error {
		return errors.Join(stopMetrics(ctx), stopTracer(ctx))
	}, nil
}
