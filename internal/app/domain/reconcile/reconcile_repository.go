package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	database "github.com/FACorreiaa/loci-routes/internal/db"
)

var _ Repository = (*RepositoryImpl)(nil)

type Repository interface {
	// ReleaseOrphanedPins frees pins whose route no longer exists.
	ReleaseOrphanedPins(ctx context.Context) (int64, error)
	// ReclaimRoutePins consumes still-unconsumed pins that an existing route
	// was assembled from. When several routes reference one pin, the oldest
	// route wins. Routes younger than a minute are skipped so an assembly
	// that is still claiming its own pins is left alone.
	ReclaimRoutePins(ctx context.Context) (int64, error)
}

type RepositoryImpl struct {
	logger *zap.Logger
	pgpool database.Pool
}

func NewRepository(pgpool database.Pool, logger *zap.Logger) *RepositoryImpl {
	return &RepositoryImpl{
		logger: logger,
		pgpool: pgpool,
	}
}

func (r *RepositoryImpl) ReleaseOrphanedPins(ctx context.Context) (_ int64, err error) {
	ctx, span := otel.Tracer("ReconcileRepository").Start(ctx, "ReleaseOrphanedPins")
	defer span.End()
	defer database.Observe(ctx, "reconcile.release_orphans", time.Now(), &err)

	query := `
		UPDATE pins p
		SET consumed = FALSE, route_id = NULL, updated_at = NOW()
		WHERE p.consumed = TRUE
		  AND NOT EXISTS (SELECT 1 FROM routes r WHERE r.id = p.route_id)`

	tag, err := r.pgpool.Exec(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "release failed")
		return 0, fmt.Errorf("failed to release orphaned pins: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *RepositoryImpl) ReclaimRoutePins(ctx context.Context) (_ int64, err error) {
	ctx, span := otel.Tracer("ReconcileRepository").Start(ctx, "ReclaimRoutePins")
	defer span.End()
	defer database.Observe(ctx, "reconcile.reclaim", time.Now(), &err)

	query := `
		UPDATE pins p
		SET consumed = TRUE, route_id = src.route_id, updated_at = NOW()
		FROM (
			SELECT DISTINCT ON (pin_id) pin_id, route_id, user_id
			FROM (
				SELECT (s->>'pin_id')::uuid AS pin_id, r.id AS route_id, r.user_id, r.created_at
				FROM routes r
				CROSS JOIN LATERAL jsonb_array_elements(r.stops) s
				WHERE s ? 'pin_id'
				  AND r.created_at < NOW() - INTERVAL '1 minute'
			) refs
			ORDER BY pin_id, created_at ASC, route_id ASC
		) src
		WHERE p.id = src.pin_id
		  AND p.user_id = src.user_id
		  AND p.consumed = FALSE`

	tag, err := r.pgpool.Exec(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reclaim failed")
		return 0, fmt.Errorf("failed to reclaim route pins: %w", err)
	}
	return tag.RowsAffected(), nil
}
