package discover

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-routes/internal/app/domain/routes"
	"github.com/FACorreiaa/loci-routes/internal/app/models"
	database "github.com/FACorreiaa/loci-routes/internal/db"
)

var _ Repository = (*RepositoryImpl)(nil)

type Repository interface {
	// ListRoutes returns one page of matching routes and the total match count.
	ListRoutes(ctx context.Context, q ListQuery) ([]models.Route, int64, error)
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

func (r *RepositoryImpl) ListRoutes(ctx context.Context, q ListQuery) (_ []models.Route, _ int64, err error) {
	ctx, span := otel.Tracer("DiscoverRepository").Start(ctx, "ListRoutes", trace.WithAttributes(
		attribute.String("sort", string(q.Sort)),
		attribute.Int("page", q.Page.Page),
	))
	defer span.End()
	defer database.Observe(ctx, "routes.list", time.Now(), &err)

	countSQL, countArgs, err := buildCountQuery(q.Filter).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build count query: %w", err)
	}
	var total int64
	if err = r.pgpool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "count failed")
		return nil, 0, fmt.Errorf("failed to count routes: %w", err)
	}
	if total == 0 || q.Page.Offset() >= uint64(total) {
		return []models.Route{}, total, nil
	}

	pageSQL, pageArgs, err := buildPageQuery(q).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build list query: %w", err)
	}
	rows, err := r.pgpool.Query(ctx, pageSQL, pageArgs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return nil, 0, fmt.Errorf("failed to list routes: %w", err)
	}
	defer rows.Close()

	items := make([]models.Route, 0, q.Page.PageSize)
	for rows.Next() {
		var favorited bool
		route, err := routes.ScanRoute(rows, &favorited)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan route: %w", err)
		}
		if q.Viewer != uuid.Nil {
			route.IsFavorited = &favorited
		}
		items = append(items, *route)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating routes: %w", err)
	}

	span.SetAttributes(attribute.Int64("routes.total", total), attribute.Int("routes.page_items", len(items)))
	return items, total, nil
}
