package discover

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-routes/internal/app/models"
)

const DefaultPageSize = 10

var _ Service = (*ServiceImpl)(nil)

type Service interface {
	ListRoutes(ctx context.Context, filter models.RouteFilter, sort models.SortKey, page models.PageRequest, caller *uuid.UUID) (*models.RoutePage, error)
	ListUserRoutes(ctx context.Context, owner uuid.UUID, country string, sort models.SortKey, page models.PageRequest) (*models.RoutePage, error)
	ListFavoriteRoutes(ctx context.Context, userID uuid.UUID, page models.PageRequest) (*models.RoutePage, error)
}

type ServiceImpl struct {
	logger   *zap.Logger
	repo     Repository
	pageSize int
}

func NewService(repo Repository, pageSize int, logger *zap.Logger) *ServiceImpl {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &ServiceImpl{
		logger:   logger,
		repo:     repo,
		pageSize: pageSize,
	}
}

func (s *ServiceImpl) list(ctx context.Context, method string, q ListQuery) (*models.RoutePage, error) {
	ctx, span := otel.Tracer("DiscoverService").Start(ctx, method, trace.WithAttributes(
		attribute.String("sort", string(q.Sort)),
		attribute.Int("page", q.Page.Page),
	))
	defer span.End()

	q.Page = models.PageRequest{Page: q.Page.Page, PageSize: s.pageSize}.Normalised(s.pageSize)

	items, total, err := s.repo.ListRoutes(ctx, q)
	if err != nil {
		s.logger.Error("Failed to list routes", zap.String("method", method), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}

	span.SetStatus(codes.Ok, "listed")
	return &models.RoutePage{
		Items:      items,
		TotalCount: total,
		Page:       q.Page.Page,
		TotalPages: models.TotalPages(total, q.Page.PageSize),
	}, nil
}

// ListRoutes lists public routes. Authenticated callers get is_favorited on
// every item.
func (s *ServiceImpl) ListRoutes(ctx context.Context, filter models.RouteFilter, sort models.SortKey, page models.PageRequest, caller *uuid.UUID) (*models.RoutePage, error) {
	filter.OwnerID = nil
	filter.FavoritedBy = nil
	q := ListQuery{Filter: filter, Sort: models.ParseSortKey(string(sort)), Page: page}
	if caller != nil {
		q.Viewer = *caller
	}
	return s.list(ctx, "ListRoutes", q)
}

// ListUserRoutes lists every route of owner, public or not. Only latest and
// oldest orderings apply.
func (s *ServiceImpl) ListUserRoutes(ctx context.Context, owner uuid.UUID, country string, sort models.SortKey, page models.PageRequest) (*models.RoutePage, error) {
	if sort = models.ParseSortKey(string(sort)); sort != models.SortOldest {
		sort = models.SortLatest
	}
	return s.list(ctx, "ListUserRoutes", ListQuery{
		Filter: models.RouteFilter{OwnerID: &owner, Country: country},
		Sort:   sort,
		Page:   page,
		Viewer: owner,
	})
}

// ListFavoriteRoutes lists public routes userID favorited, most recently updated first.
func (s *ServiceImpl) ListFavoriteRoutes(ctx context.Context, userID uuid.UUID, page models.PageRequest) (*models.RoutePage, error) {
	return s.list(ctx, "ListFavoriteRoutes", ListQuery{
		Filter: models.RouteFilter{FavoritedBy: &userID},
		Sort:   sortRecentlyUpdated,
		Page:   page,
		Viewer: userID,
	})
}
