package database

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/FACorreiaa/loci-routes/internal/app/observability/metrics"
)

// Observe records the duration of a repository operation and counts failures.
// Use it as: defer database.Observe(ctx, "pins.create", time.Now(), &err).
func Observe(ctx context.Context, op string, start time.Time, errp *error) {
	m := metrics.Get()
	attrs := metric.WithAttributes(attribute.String("db.operation", op))
	m.DBQueryDurationSeconds.Record(ctx, time.Since(start).Seconds(), attrs)
	if errp != nil && *errp != nil {
		m.DBQueryErrorsTotal.Add(ctx, 1, attrs)
	}
}
