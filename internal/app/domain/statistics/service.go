package statistics

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/FACorreiaa/loci-routes/internal/app/models"
)

const (
	DefaultPopularLimit = 10
	MaxPopularLimit     = 50
	topCountries        = 10
)

var _ Service = (*ServiceImpl)(nil)

type Service interface {
	PopularPlaces(ctx context.Context, limit int) ([]models.PopularPlace, error)
	Stats(ctx context.Context) (*models.GlobalStats, error)
	UserStats(ctx context.Context, owner uuid.UUID) (*models.UserStats, error)
}

type ServiceImpl struct {
	repo   Repository
	logger *zap.Logger
}

func NewService(repo Repository, logger *zap.Logger) *ServiceImpl {
	return &ServiceImpl{
		repo:   repo,
		logger: logger,
	}
}

func (s *ServiceImpl) PopularPlaces(ctx context.Context, limit int) ([]models.PopularPlace, error) {
	if limit <= 0 {
		limit = DefaultPopularLimit
	}
	limit = min(limit, MaxPopularLimit)

	ctx, span := otel.Tracer("StatisticsService").Start(ctx, "PopularPlaces", trace.WithAttributes(
		attribute.Int("limit", limit),
	))
	defer span.End()

	l := s.logger.With(zap.String("method", "PopularPlaces"))
	places, err := s.repo.PopularPlaces(ctx, limit)
	if err != nil {
		l.Error("Failed to get popular places", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "popular places failed")
		return nil, fmt.Errorf("failed to get popular places: %w", err)
	}

	l.Debug("Retrieved popular places", zap.Int("count", len(places)))
	span.SetStatus(codes.Ok, "popular places retrieved")
	return places, nil
}

// Stats runs the global rollups concurrently.
func (s *ServiceImpl) Stats(ctx context.Context) (*models.GlobalStats, error) {
	ctx, span := otel.Tracer("StatisticsService").Start(ctx, "Stats")
	defer span.End()

	l := s.logger.With(zap.String("method", "Stats"))
	var stats models.GlobalStats

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats.TotalRoutes, stats.TotalUsers, err = s.repo.GlobalTotals(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		stats.CategoryStats, err = s.repo.CategoryHistogram(gctx, nil)
		return err
	})
	g.Go(func() error {
		var err error
		stats.CountryStats, err = s.repo.CountryHistogram(gctx, nil, topCountries)
		return err
	})
	if err := g.Wait(); err != nil {
		l.Error("Failed to compute global statistics", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "stats failed")
		return nil, fmt.Errorf("failed to compute statistics: %w", err)
	}

	span.SetStatus(codes.Ok, "stats computed")
	return &stats, nil
}

// UserStats rolls up owner's routes. Histograms only cover public routes.
func (s *ServiceImpl) UserStats(ctx context.Context, owner uuid.UUID) (*models.UserStats, error) {
	ctx, span := otel.Tracer("StatisticsService").Start(ctx, "UserStats", trace.WithAttributes(
		attribute.String("user.id", owner.String()),
	))
	defer span.End()

	l := s.logger.With(zap.String("method", "UserStats"), zap.String("userID", owner.String()))

	var (
		totals     *models.UserStats
		categories []models.CountBucket
		countries  []models.CountBucket
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		totals, err = s.repo.UserTotals(gctx, owner)
		return err
	})
	g.Go(func() error {
		var err error
		categories, err = s.repo.CategoryHistogram(gctx, &owner)
		return err
	})
	g.Go(func() error {
		var err error
		countries, err = s.repo.CountryHistogram(gctx, &owner, 0)
		return err
	})
	if err := g.Wait(); err != nil {
		l.Error("Failed to compute user statistics", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "user stats failed")
		return nil, fmt.Errorf("failed to compute user statistics: %w", err)
	}

	totals.CategoryStats = categories
	totals.CountryStats = countries
	span.SetStatus(codes.Ok, "user stats computed")
	return totals, nil
}
