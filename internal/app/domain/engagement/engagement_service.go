package engagement

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-routes/internal/app/models"
	"github.com/FACorreiaa/loci-routes/internal/app/observability/metrics"
)

var _ Service = (*ServiceImpl)(nil)

// Service is the engagement ledger. Every operation is idempotent.
type Service interface {
	Like(ctx context.Context, routeID, userID uuid.UUID) (*models.EngagementState, error)
	Unlike(ctx context.Context, routeID, userID uuid.UUID) (*models.EngagementState, error)
	Favorite(ctx context.Context, routeID, userID uuid.UUID) (*models.EngagementState, error)
	Unfavorite(ctx context.Context, routeID, userID uuid.UUID) (*models.EngagementState, error)
	IsFavorited(ctx context.Context, routeID, userID uuid.UUID) (bool, error)
}

type ServiceImpl struct {
	logger *zap.Logger
	repo   Repository
}

func NewService(repo Repository, logger *zap.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger: logger,
		repo:   repo,
	}
}

type access int

const (
	// anyExisting only requires the route to exist.
	anyExisting access = iota
	// visible requires the route to be public or owned by the user.
	visible
	// publicOnly rejects non-public routes with ErrForbidden.
	publicOnly
)

func (s *ServiceImpl) check(ctx context.Context, routeID, userID uuid.UUID, need access) error {
	owner, isPublic, err := s.repo.RouteAccess(ctx, routeID)
	if err != nil {
		return err
	}
	switch need {
	case visible:
		if !isPublic && owner != userID {
			return models.NewNotFoundError("route not found")
		}
	case publicOnly:
		if !isPublic {
			return models.NewForbiddenError("only public routes can be favorited")
		}
	}
	return nil
}

func (s *ServiceImpl) apply(ctx context.Context, op string, set Set, add bool, need access, routeID, userID uuid.UUID) (*models.EngagementState, error) {
	ctx, span := otel.Tracer("EngagementService").Start(ctx, op, trace.WithAttributes(
		attribute.String("route.id", routeID.String()),
		attribute.String("user.id", userID.String()),
	))
	defer span.End()

	l := s.logger.With(zap.String("method", op), zap.String("routeID", routeID.String()), zap.String("userID", userID.String()))

	if err := s.check(ctx, routeID, userID, need); err != nil {
		l.Debug("Engagement rejected", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "rejected")
		return nil, err
	}

	var (
		changed bool
		err     error
	)
	if add {
		changed, err = s.repo.Add(ctx, set, routeID, userID)
	} else {
		changed, err = s.repo.Remove(ctx, set, routeID, userID)
	}
	if err != nil {
		l.Error("Engagement write failed", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return nil, err
	}

	metrics.Count(ctx, metrics.Get().EngagementOpsTotal, "op", op)
	l.Debug("Engagement applied", zap.Bool("changed", changed))

	state, err := s.repo.State(ctx, routeID, userID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetStatus(codes.Ok, op)
	return state, nil
}

func (s *ServiceImpl) Like(ctx context.Context, routeID, userID uuid.UUID) (*models.EngagementState, error) {
	return s.apply(ctx, "Like", Likes, true, visible, routeID, userID)
}

func (s *ServiceImpl) Unlike(ctx context.Context, routeID, userID uuid.UUID) (*models.EngagementState, error) {
	return s.apply(ctx, "Unlike", Likes, false, anyExisting, routeID, userID)
}

// Favorite is only allowed on public routes.
func (s *ServiceImpl) Favorite(ctx context.Context, routeID, userID uuid.UUID) (*models.EngagementState, error) {
	return s.apply(ctx, "Favorite", Favorites, true, publicOnly, routeID, userID)
}

func (s *ServiceImpl) Unfavorite(ctx context.Context, routeID, userID uuid.UUID) (*models.EngagementState, error) {
	return s.apply(ctx, "Unfavorite", Favorites, false, anyExisting, routeID, userID)
}

func (s *ServiceImpl) IsFavorited(ctx context.Context, routeID, userID uuid.UUID) (bool, error) {
	ctx, span := otel.Tracer("EngagementService").Start(ctx, "IsFavorited", trace.WithAttributes(
		attribute.String("route.id", routeID.String()),
	))
	defer span.End()

	if err := s.check(ctx, routeID, userID, anyExisting); err != nil {
		return false, err
	}
	state, err := s.repo.State(ctx, routeID, userID)
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	return state.IsFavorited, nil
}
