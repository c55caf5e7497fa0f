package daemon

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const serviceName = "admitcored"

// setupOtel installs a global TracerProvider so the spans opened by
// pkg/gate's tracer are sampled and resource-tagged instead of
// discarded by the no-op default. No OTLP exporter ships by default;
// an operator wires one in by extending this function once a
// collector endpoint is agreed on.
func setupOtel(ctx context.Context) error {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return fmt.Errorf("otel: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	go func() {
		<-ctx.Done()
		_ = tp.Shutdown(context.Background())
	}()

	return nil
}
