package engagement

import (
	"context"
	"errors"
	"fmt"
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

// Set names one of the per-route user sets.
type Set string

const (
	Likes     Set = "route_likes"
	Favorites Set = "route_favorites"
)

var _ Repository = (*RepositoryImpl)(nil)

type Repository interface {
	// RouteAccess returns the owner and visibility of a route.
	RouteAccess(ctx context.Context, routeID uuid.UUID) (owner uuid.UUID, isPublic bool, err error)
	// Add inserts userID into the set; it reports whether the set changed.
	Add(ctx context.Context, set Set, routeID, userID uuid.UUID) (bool, error)
	// Remove deletes userID from the set; it reports whether the set changed.
	Remove(ctx context.Context, set Set, routeID, userID uuid.UUID) (bool, error)
	State(ctx context.Context, routeID, userID uuid.UUID) (*models.EngagementState, error)
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

func (s Set) valid() bool {
	return s == Likes || s == Favorites
}

func (r *RepositoryImpl) RouteAccess(ctx context.Context, routeID uuid.UUID) (owner uuid.UUID, isPublic bool, err error) {
	defer database.Observe(ctx, "engagement.route_access", time.Now(), &err)

	err = r.pgpool.QueryRow(ctx, `SELECT user_id, is_public FROM routes WHERE id = $1`, routeID).Scan(&owner, &isPublic)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, false, models.NewNotFoundError("route not found")
		}
		return uuid.Nil, false, fmt.Errorf("failed to load route access: %w", err)
	}
	return owner, isPublic, nil
}

// Add relies on the (route_id, user_id) primary key for set semantics, so
// concurrent adds from different users never lose an update and a repeated
// add is a no-op.
func (r *RepositoryImpl) Add(ctx context.Context, set Set, routeID, userID uuid.UUID) (_ bool, err error) {
	ctx, span := otel.Tracer("EngagementRepository").Start(ctx, "Add", trace.WithAttributes(
		attribute.String("set", string(set)),
		attribute.String("route.id", routeID.String()),
	))
	defer span.End()
	defer database.Observe(ctx, "engagement.add", time.Now(), &err)

	if !set.valid() {
		return false, fmt.Errorf("unknown engagement set %q", set)
	}
	query := fmt.Sprintf(`INSERT INTO %s (route_id, user_id) VALUES ($1, $2) ON CONFLICT (route_id, user_id) DO NOTHING`, set)
	tag, err := r.pgpool.Exec(ctx, query, routeID, userID)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return false, models.NewNotFoundError("route not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return false, fmt.Errorf("failed to add to %s: %w", set, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RepositoryImpl) Remove(ctx context.Context, set Set, routeID, userID uuid.UUID) (_ bool, err error) {
	ctx, span := otel.Tracer("EngagementRepository").Start(ctx, "Remove", trace.WithAttributes(
		attribute.String("set", string(set)),
		attribute.String("route.id", routeID.String()),
	))
	defer span.End()
	defer database.Observe(ctx, "engagement.remove", time.Now(), &err)

	if !set.valid() {
		return false, fmt.Errorf("unknown engagement set %q", set)
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE route_id = $1 AND user_id = $2`, set)
	tag, err := r.pgpool.Exec(ctx, query, routeID, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return false, fmt.Errorf("failed to remove from %s: %w", set, err)
	}
	return tag.RowsAffected() == 1, nil
}

// State derives counts and membership from the sets at read time.
func (r *RepositoryImpl) State(ctx context.Context, routeID, userID uuid.UUID) (_ *models.EngagementState, err error) {
	defer database.Observe(ctx, "engagement.state", time.Now(), &err)

	query := `
        SELECT (SELECT COUNT(*) FROM route_likes WHERE route_id = $1),
               (SELECT COUNT(*) FROM route_favorites WHERE route_id = $1),
               EXISTS (SELECT 1 FROM route_likes WHERE route_id = $1 AND user_id = $2),
               EXISTS (SELECT 1 FROM route_favorites WHERE route_id = $1 AND user_id = $2)
    `
	st := models.EngagementState{RouteID: routeID}
	err = r.pgpool.QueryRow(ctx, query, routeID, userID).Scan(
		&st.LikesCount, &st.FavoritesCount, &st.IsLiked, &st.IsFavorited,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load engagement state: %w", err)
	}
	return &st, nil
}
