package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-routes/internal/app/models"
	database "github.com/FACorreiaa/loci-routes/internal/db"
)

var _ Repository = (*RepositoryImpl)(nil)

type Repository interface {
	CreateRoute(ctx context.Context, route *models.Route) error
	// GetRoute loads a route with derived engagement counts. viewer may be
	// uuid.Nil; otherwise IsLiked and IsFavorited are filled for that user.
	GetRoute(ctx context.Context, routeID, viewer uuid.UUID) (*models.Route, error)
	UpdateRoute(ctx context.Context, route *models.Route) error
	DeleteRoute(ctx context.Context, routeID, owner uuid.UUID) error
	IncrementViews(ctx context.Context, routeID uuid.UUID) error
	IncrementShares(ctx context.Context, routeID uuid.UUID) (int64, error)
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

// RouteColumns is the stored column list of routes aliased as r, followed by
// the derived like and favorite counts.
var RouteColumns = []string{
	"r.id", "r.user_id", "r.title", "r.description", "r.city", "r.country", "r.category",
	"r.difficulty", "r.estimated_duration", "r.distance", "r.tags", "r.is_public", "r.stops",
	"r.view_count", "r.share_count", "r.created_at", "r.updated_at",
	"(SELECT COUNT(*) FROM route_likes rl WHERE rl.route_id = r.id) AS likes_count",
	"(SELECT COUNT(*) FROM route_favorites rf WHERE rf.route_id = r.id) AS favorites_count",
}

// ScanRoute reads one row selected with RouteColumns, then any extra columns
// into extra.
func ScanRoute(row pgx.Row, extra ...any) (*models.Route, error) {
	var (
		r                    models.Route
		category, difficulty string
		stops                []byte
	)
	dest := []any{
		&r.ID, &r.UserID, &r.Title, &r.Description, &r.City, &r.Country, &category,
		&difficulty, &r.EstimatedDuration, &r.Distance, &r.Tags, &r.IsPublic, &stops,
		&r.ViewCount, &r.ShareCount, &r.CreatedAt, &r.UpdatedAt,
		&r.LikesCount, &r.FavoritesCount,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	r.Category = models.RouteCategory(category)
	r.Difficulty = models.Difficulty(difficulty)
	if r.Tags == nil {
		r.Tags = []string{}
	}
	r.Stops = []models.Stop{}
	if len(stops) > 0 {
		if err := json.Unmarshal(stops, &r.Stops); err != nil {
			return nil, fmt.Errorf("failed to decode stops of route %s: %w", r.ID, err)
		}
	}
	return &r, nil
}

func encodeStops(stops []models.Stop) ([]byte, error) {
	if stops == nil {
		stops = []models.Stop{}
	}
	b, err := json.Marshal(stops)
	if err != nil {
		return nil, fmt.Errorf("failed to encode stops: %w", err)
	}
	return b, nil
}

func (r *RepositoryImpl) CreateRoute(ctx context.Context, route *models.Route) (err error) {
	ctx, span := otel.Tracer("RouteRepository").Start(ctx, "CreateRoute", trace.WithAttributes(
		attribute.String("route.id", route.ID.String()),
		attribute.Int("route.stops", len(route.Stops)),
	))
	defer span.End()
	defer database.Observe(ctx, "routes.create", time.Now(), &err)

	stops, err := encodeStops(route.Stops)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO routes (
            id, user_id, title, description, city, country, category, difficulty,
            estimated_duration, distance, tags, is_public, stops
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        RETURNING created_at, updated_at
    `
	err = r.pgpool.QueryRow(ctx, query,
		route.ID, route.UserID, route.Title, route.Description, route.City, route.Country,
		string(route.Category), string(route.Difficulty), route.EstimatedDuration, route.Distance,
		route.Tags, route.IsPublic, stops,
	).Scan(&route.CreatedAt, &route.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("route %s: %w", route.ID, models.ErrConflict)
		}
		r.logger.Error("Failed to insert route", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return fmt.Errorf("failed to create route: %w", err)
	}
	span.SetStatus(codes.Ok, "route created")
	return nil
}

func (r *RepositoryImpl) GetRoute(ctx context.Context, routeID, viewer uuid.UUID) (_ *models.Route, err error) {
	ctx, span := otel.Tracer("RouteRepository").Start(ctx, "GetRoute", trace.WithAttributes(
		attribute.String("route.id", routeID.String()),
	))
	defer span.End()
	defer database.Observe(ctx, "routes.get", time.Now(), &err)

	query := `SELECT ` + strings.Join(RouteColumns, ", ") + `,
               EXISTS (SELECT 1 FROM route_likes WHERE route_id = r.id AND user_id = $2) AS is_liked,
               EXISTS (SELECT 1 FROM route_favorites WHERE route_id = r.id AND user_id = $2) AS is_favorited
        FROM routes r
        WHERE r.id = $1`

	var liked, favorited bool
	route, err := ScanRoute(r.pgpool.QueryRow(ctx, query, routeID, viewer), &liked, &favorited)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.NewNotFoundError("route not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("failed to load route: %w", err)
	}
	if viewer != uuid.Nil {
		route.IsLiked = &liked
		route.IsFavorited = &favorited
	}
	return route, nil
}

// UpdateRoute overwrites the mutable fields and stop list of an owned route.
// Concurrent edits are last-write-wins.
func (r *RepositoryImpl) UpdateRoute(ctx context.Context, route *models.Route) (err error) {
	ctx, span := otel.Tracer("RouteRepository").Start(ctx, "UpdateRoute", trace.WithAttributes(
		attribute.String("route.id", route.ID.String()),
	))
	defer span.End()
	defer database.Observe(ctx, "routes.update", time.Now(), &err)

	stops, err := encodeStops(route.Stops)
	if err != nil {
		return err
	}

	query := `
        UPDATE routes
        SET title = $3, description = $4, city = $5, country = $6, category = $7,
            difficulty = $8, estimated_duration = $9, distance = $10, tags = $11,
            is_public = $12, stops = $13, updated_at = NOW()
        WHERE id = $1 AND user_id = $2
        RETURNING updated_at
    `
	err = r.pgpool.QueryRow(ctx, query,
		route.ID, route.UserID, route.Title, route.Description, route.City, route.Country,
		string(route.Category), string(route.Difficulty), route.EstimatedDuration, route.Distance,
		route.Tags, route.IsPublic, stops,
	).Scan(&route.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.NewNotFoundError("route not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return fmt.Errorf("failed to update route: %w", err)
	}
	return nil
}

func (r *RepositoryImpl) DeleteRoute(ctx context.Context, routeID, owner uuid.UUID) (err error) {
	ctx, span := otel.Tracer("RouteRepository").Start(ctx, "DeleteRoute", trace.WithAttributes(
		attribute.String("route.id", routeID.String()),
	))
	defer span.End()
	defer database.Observe(ctx, "routes.delete", time.Now(), &err)

	tag, err := r.pgpool.Exec(ctx, `DELETE FROM routes WHERE id = $1 AND user_id = $2`, routeID, owner)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return fmt.Errorf("failed to delete route: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.NewNotFoundError("route not found")
	}
	return nil
}

func (r *RepositoryImpl) IncrementViews(ctx context.Context, routeID uuid.UUID) (err error) {
	defer database.Observe(ctx, "routes.views", time.Now(), &err)

	if _, err = r.pgpool.Exec(ctx, `UPDATE routes SET view_count = view_count + 1 WHERE id = $1`, routeID); err != nil {
		return fmt.Errorf("failed to increment views: %w", err)
	}
	return nil
}

// IncrementShares bumps the share counter of a public route and returns the new value.
func (r *RepositoryImpl) IncrementShares(ctx context.Context, routeID uuid.UUID) (_ int64, err error) {
	defer database.Observe(ctx, "routes.shares", time.Now(), &err)

	var count int64
	err = r.pgpool.QueryRow(ctx,
		`UPDATE routes SET share_count = share_count + 1 WHERE id = $1 AND is_public RETURNING share_count`,
		routeID,
	).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, models.NewNotFoundError("route not found")
		}
		return 0, fmt.Errorf("failed to increment shares: %w", err)
	}
	return count, nil
}
