package obs

import (
	"context"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
)

// Instruments holds the counters and histograms shared across scheduler
// invocations and the dispatch driver. Retry and circuit-breaker counts
// are not duplicated here: internal/resilience registers and increments
// its own instruments directly against the same "dagsched" meter, and a
// second counter under the same metric name would double-count every
// event.
type Instruments struct {
	Invocations     metric.Int64Counter
	InvocationFails metric.Int64Counter
	Makespan        metric.Float64Histogram
	SchedulerTime   metric.Float64Histogram
	TimesheetInsert metric.Int64Counter
}

// InitMetrics sets up a global OTLP metrics exporter (push) and returns the
// shutdown function plus the shared instrument set.
func InitMetrics(ctx context.Context, component string) (shutdown func(context.Context) error, m Instruments) {
	res, _ := sdkresource.Merge(sdkresource.Default(), sdkresource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(component),
		attribute.String("component", component),
	))
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT")
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint == "" {
		endpoint = "localhost:4317"
	}
	ctxInit, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exp, err := otlpmetricgrpc.New(ctxInit,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithDialOption(grpc.WithInsecure()),
	)
	if err != nil {
		slog.Warn("metrics exporter init failed, metrics disabled", "error", err)
		return func(context.Context) error { return nil }, createInstruments()
	}
	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(10*time.Second))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)
	slog.Info("metrics initialized", "endpoint", endpoint)
	return mp.Shutdown, createInstruments()
}

func createInstruments() Instruments {
	meter := otel.Meter("dagsched")
	invocations, _ := meter.Int64Counter("dagsched_scheduler_invocations_total")
	fails, _ := meter.Int64Counter("dagsched_scheduler_invocation_failures_total")
	makespan, _ := meter.Float64Histogram("dagsched_predicted_makespan_seconds")
	schedTime, _ := meter.Float64Histogram("dagsched_scheduler_wallclock_seconds")
	inserts, _ := meter.Int64Counter("dagsched_timesheet_inserts_total")
	return Instruments{
		Invocations:     invocations,
		InvocationFails: fails,
		Makespan:        makespan,
		SchedulerTime:   schedTime,
		TimesheetInsert: inserts,
	}
}
