package metrics

import (
	"context"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the application's metric instruments.
type AppMetrics struct {
	HTTPRequestsTotal      metric.Int64Counter
	HTTPRequestDuration    metric.Float64Histogram
	DBQueryDurationSeconds metric.Float64Histogram
	DBQueryErrorsTotal     metric.Int64Counter
	PinsCapturedTotal      metric.Int64Counter
	RouteAssembliesTotal   metric.Int64Counter
	EngagementOpsTotal     metric.Int64Counter
	ReconcileRepairsTotal  metric.Int64Counter
	PlaceLookupsTotal      metric.Int64Counter
	EventsPublishedTotal   metric.Int64Counter
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// InitAppMetrics initializes the global metrics instruments once, from the
// globally configured MeterProvider.
func InitAppMetrics() {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("loci-routes")
		m := &AppMetrics{}

		m.HTTPRequestsTotal = mustCounter(meter, "http_requests_total", "Total number of HTTP requests completed", "{request}")
		m.DBQueryErrorsTotal = mustCounter(meter, "db_query_errors_total", "Total number of database query errors", "{error}")
		m.PinsCapturedTotal = mustCounter(meter, "pins_captured_total", "Total number of pins dropped", "{pin}")
		m.RouteAssembliesTotal = mustCounter(meter, "route_assemblies_total", "Route assembly attempts by outcome", "{assembly}")
		m.EngagementOpsTotal = mustCounter(meter, "engagement_operations_total", "Like and favorite operations by kind", "{operation}")
		m.ReconcileRepairsTotal = mustCounter(meter, "reconcile_repairs_total", "Pins repaired by the reconciliation job", "{pin}")
		m.PlaceLookupsTotal = mustCounter(meter, "place_lookups_total", "Place lookups by result", "{lookup}")
		m.EventsPublishedTotal = mustCounter(meter, "events_published_total", "Domain events published by result", "{event}")

		var err error
		m.HTTPRequestDuration, err = meter.Float64Histogram(
			"http_request_duration_seconds",
			metric.WithDescription("Duration of HTTP requests in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create http_request_duration_seconds: %v", err)
		}

		m.DBQueryDurationSeconds, err = meter.Float64Histogram(
			"db_query_duration_seconds",
			metric.WithDescription("Duration of database queries in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create db_query_duration_seconds: %v", err)
		}

		appMetrics = m
	})
}

func mustCounter(meter metric.Meter, name, desc, unit string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil {
		log.Fatalf("Metrics: Failed to create %s: %v", name, err)
	}
	return c
}

// Get returns the global AppMetrics, initializing it against whatever
// MeterProvider is installed (the no-op one in tests).
func Get() *AppMetrics {
	InitAppMetrics()
	return appMetrics
}

// Count adds one to counter with a single "result" style attribute.
func Count(ctx context.Context, counter metric.Int64Counter, key, value string) {
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String(key, value)))
}
