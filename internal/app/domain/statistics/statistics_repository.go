package statistics

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-routes/internal/app/models"
	database "github.com/FACorreiaa/loci-routes/internal/db"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var _ Repository = (*RepositoryImpl)(nil)

type Repository interface {
	PopularPlaces(ctx context.Context, limit int) ([]models.PopularPlace, error)
	// GlobalTotals returns the number of public routes and of distinct users
	// that own a route or a pin.
	GlobalTotals(ctx context.Context) (routes int64, users int64, err error)
	UserTotals(ctx context.Context, owner uuid.UUID) (*models.UserStats, error)
	// CategoryHistogram counts public routes per category, restricted to owner when set.
	CategoryHistogram(ctx context.Context, owner *uuid.UUID) ([]models.CountBucket, error)
	// CountryHistogram counts public routes per country, restricted to owner
	// when set. A limit <= 0 returns every country.
	CountryHistogram(ctx context.Context, owner *uuid.UUID, limit int) ([]models.CountBucket, error)
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

func (r *RepositoryImpl) PopularPlaces(ctx context.Context, limit int) (_ []models.PopularPlace, err error) {
	ctx, span := otel.Tracer("StatisticsRepository").Start(ctx, "PopularPlaces", trace.WithAttributes(
		attribute.Int("limit", limit),
	))
	defer span.End()
	defer database.Observe(ctx, "stats.popular_places", time.Now(), &err)

	query := `
		SELECT country, COUNT(*) AS route_count, COUNT(DISTINCT LOWER(city)) AS distinct_city_count
		FROM routes
		WHERE is_public = TRUE AND country IS NOT NULL AND BTRIM(country) <> ''
		GROUP BY country
		ORDER BY route_count DESC, country ASC
		LIMIT $1`

	rows, err := r.pgpool.Query(ctx, query, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("failed to query popular places: %w", err)
	}
	defer rows.Close()

	places := make([]models.PopularPlace, 0, limit)
	for rows.Next() {
		var p models.PopularPlace
		if err = rows.Scan(&p.Country, &p.RouteCount, &p.DistinctCityCount); err != nil {
			return nil, fmt.Errorf("failed to scan popular place: %w", err)
		}
		places = append(places, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating popular places: %w", err)
	}
	return places, nil
}

func (r *RepositoryImpl) GlobalTotals(ctx context.Context) (routes int64, users int64, err error) {
	ctx, span := otel.Tracer("StatisticsRepository").Start(ctx, "GlobalTotals")
	defer span.End()
	defer database.Observe(ctx, "stats.global_totals", time.Now(), &err)

	query := `
		SELECT
			(SELECT COUNT(*) FROM routes WHERE is_public = TRUE),
			(SELECT COUNT(*) FROM (
				SELECT user_id FROM routes
				UNION
				SELECT user_id FROM pins
			) owners)`

	if err = r.pgpool.QueryRow(ctx, query).Scan(&routes, &users); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return 0, 0, fmt.Errorf("failed to count totals: %w", err)
	}
	return routes, users, nil
}

func (r *RepositoryImpl) UserTotals(ctx context.Context, owner uuid.UUID) (_ *models.UserStats, err error) {
	ctx, span := otel.Tracer("StatisticsRepository").Start(ctx, "UserTotals", trace.WithAttributes(
		attribute.String("user.id", owner.String()),
	))
	defer span.End()
	defer database.Observe(ctx, "stats.user_totals", time.Now(), &err)

	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE r.is_public),
			COUNT(*) FILTER (WHERE NOT r.is_public),
			(SELECT COUNT(*) FROM route_likes rl JOIN routes lr ON lr.id = rl.route_id WHERE lr.user_id = $1),
			COALESCE(SUM(r.view_count), 0)::BIGINT,
			(SELECT COUNT(*) FROM route_favorites rf WHERE rf.user_id = $1),
			COUNT(*) FILTER (WHERE r.created_at >= NOW() - INTERVAL '30 days')
		FROM routes r
		WHERE r.user_id = $1`

	var s models.UserStats
	err = r.pgpool.QueryRow(ctx, query, owner).Scan(
		&s.TotalRoutes, &s.PublicRoutes, &s.PrivateRoutes,
		&s.TotalLikes, &s.TotalViews, &s.TotalFavorites, &s.RecentRoutes,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("failed to compute user totals: %w", err)
	}
	return &s, nil
}

func (r *RepositoryImpl) CategoryHistogram(ctx context.Context, owner *uuid.UUID) (_ []models.CountBucket, err error) {
	defer database.Observe(ctx, "stats.category_histogram", time.Now(), &err)
	return r.histogram(ctx, "CategoryHistogram", "category", owner, 0)
}

func (r *RepositoryImpl) CountryHistogram(ctx context.Context, owner *uuid.UUID, limit int) (_ []models.CountBucket, err error) {
	defer database.Observe(ctx, "stats.country_histogram", time.Now(), &err)
	return r.histogram(ctx, "CountryHistogram", "country", owner, limit)
}

// histogram groups public routes by column. Null or blank keys are skipped.
func (r *RepositoryImpl) histogram(ctx context.Context, method, column string, owner *uuid.UUID, limit int) ([]models.CountBucket, error) {
	ctx, span := otel.Tracer("StatisticsRepository").Start(ctx, method)
	defer span.End()

	builder := psql.Select(column+" AS key", "COUNT(*) AS count").
		From("routes").
		Where("is_public = TRUE").
		Where(column+" IS NOT NULL").
		Where("BTRIM("+column+") <> ''").
		GroupBy(column).
		OrderBy("count DESC", "key ASC")
	if owner != nil {
		builder = builder.Where("user_id = ?", *owner)
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build %s histogram: %w", column, err)
	}

	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("failed to query %s histogram: %w", column, err)
	}
	defer rows.Close()

	buckets := []models.CountBucket{}
	for rows.Next() {
		var b models.CountBucket
		if err := rows.Scan(&b.Key, &b.Count); err != nil {
			return nil, fmt.Errorf("failed to scan %s bucket: %w", column, err)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s histogram: %w", column, err)
	}
	return buckets, nil
}
