package routes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-routes/internal/app/domain/pins"
	"github.com/FACorreiaa/loci-routes/internal/app/models"
	"github.com/FACorreiaa/loci-routes/internal/app/observability/metrics"
	"github.com/FACorreiaa/loci-routes/internal/pkg/events"
	"github.com/FACorreiaa/loci-routes/internal/pkg/geo"
)

// PinStore is the part of the pin repository route assembly depends on.
type PinStore interface {
	FetchUnconsumedPins(ctx context.Context, owner uuid.UUID, pinIDs []uuid.UUID) ([]models.Pin, error)
	ClaimPins(ctx context.Context, routeID, owner uuid.UUID, pinIDs []uuid.UUID) error
	ReleaseRoutePins(ctx context.Context, routeID uuid.UUID) (int64, error)
}

var _ Service = (*ServiceImpl)(nil)

type Service interface {
	CreateRouteFromPins(ctx context.Context, owner uuid.UUID, req models.CreateRouteFromPinsRequest) (*models.Route, error)
	CreateRoute(ctx context.Context, owner uuid.UUID, req models.CreateRouteRequest) (*models.Route, error)
	GetRoute(ctx context.Context, routeID uuid.UUID, caller *uuid.UUID) (*models.Route, error)
	UpdateRoute(ctx context.Context, owner, routeID uuid.UUID, req models.UpdateRouteRequest) (*models.Route, error)
	DeleteRoute(ctx context.Context, owner, routeID uuid.UUID) error
	ShareRoute(ctx context.Context, routeID uuid.UUID) (int64, error)

	// Stop editing, owner only
	AddStop(ctx context.Context, owner, routeID uuid.UUID, in models.StopInput) (*models.Route, error)
	UpdateStop(ctx context.Context, owner, routeID, stopID uuid.UUID, patch models.StopPatch) (*models.Route, error)
	RemoveStop(ctx context.Context, owner, routeID, stopID uuid.UUID) (*models.Route, error)
	ReorderStops(ctx context.Context, owner, routeID uuid.UUID, stopIDs []uuid.UUID) (*models.Route, error)
}

type ServiceImpl struct {
	logger    *zap.Logger
	repo      Repository
	pins      PinStore
	publisher events.Publisher
}

func NewService(repo Repository, pinStore PinStore, publisher events.Publisher, logger *zap.Logger) *ServiceImpl {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &ServiceImpl{
		logger:    logger,
		repo:      repo,
		pins:      pinStore,
		publisher: publisher,
	}
}

// CreateRouteFromPins turns a homogeneous batch of unconsumed pins into a
// route. The route is stored first and the pins are then claimed with a
// conditional write; if the claim fails the route is deleted again.
func (s *ServiceImpl) CreateRouteFromPins(ctx context.Context, owner uuid.UUID, req models.CreateRouteFromPinsRequest) (*models.Route, error) {
	ctx, span := otel.Tracer("RouteService").Start(ctx, "CreateRouteFromPins", trace.WithAttributes(
		attribute.String("user.id", owner.String()),
		attribute.Int("pins.count", len(req.PinIDs)),
	))
	defer span.End()

	l := s.logger.With(zap.String("method", "CreateRouteFromPins"), zap.String("userID", owner.String()))
	l.Debug("Assembling route from pins")

	fail := func(outcome string, err error) (*models.Route, error) {
		metrics.Count(ctx, metrics.Get().RouteAssembliesTotal, "outcome", outcome)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}

	if len(req.PinIDs) == 0 {
		return fail("rejected", models.NewValidationError("pin_ids", "at least one pin is required"))
	}
	seen := make(map[uuid.UUID]struct{}, len(req.PinIDs))
	for _, id := range req.PinIDs {
		if _, dup := seen[id]; dup {
			return fail("rejected", models.NewValidationError("pin_ids", "pin ids must be unique"))
		}
		seen[id] = struct{}{}
	}

	route := &models.Route{ID: uuid.New(), UserID: owner}
	if err := req.RouteMeta.Apply(route); err != nil {
		return fail("rejected", err)
	}

	fetched, err := s.pins.FetchUnconsumedPins(ctx, owner, req.PinIDs)
	if err != nil {
		l.Error("Failed to fetch pins", zap.Error(err))
		return fail("error", fmt.Errorf("failed to fetch pins: %w", err))
	}
	if len(fetched) != len(req.PinIDs) {
		l.Warn("Pin batch rejected", zap.Int("requested", len(req.PinIDs)), zap.Int("found", len(fetched)))
		return fail("invalid_batch", models.NewInvalidBatchError("some pins not found or already used"))
	}

	ordered, err := inInputOrder(fetched, req.PinIDs)
	if err != nil {
		return fail("invalid_batch", err)
	}
	if err := checkHomogeneous(ordered); err != nil {
		l.Warn("Pin batch is not homogeneous", zap.Error(err))
		return fail("heterogeneous", err)
	}

	first := ordered[0]
	route.City = first.City
	if route.Country == nil && first.Country != nil {
		country := *first.Country
		route.Country = &country
	}
	route.Country = canonicalCountry(route.Country)
	route.Stops = make([]models.Stop, len(ordered))
	for i, p := range ordered {
		route.Stops[i] = models.StopFromPin(p, i)
	}
	estimateDistance(route)

	if err := s.repo.CreateRoute(ctx, route); err != nil {
		l.Error("Failed to persist route", zap.Error(err))
		return fail("error", fmt.Errorf("failed to create route: %w", err))
	}

	if err := s.pins.ClaimPins(ctx, route.ID, owner, req.PinIDs); err != nil {
		l.Warn("Pin claim failed after route was stored, compensating", zap.String("routeID", route.ID.String()), zap.Error(err))
		s.compensate(ctx, l, route, req.PinIDs, err)
		if errors.Is(err, models.ErrInvalidBatch) {
			return fail("invalid_batch", err)
		}
		return fail("error", fmt.Errorf("failed to claim pins: %w", err))
	}

	metrics.Count(ctx, metrics.Get().RouteAssembliesTotal, "outcome", "created")
	s.publishRoute(ctx, events.RouteCreated, route, req.PinIDs, nil)
	l.Info("Route assembled", zap.String("routeID", route.ID.String()), zap.Int("stops", len(route.Stops)))
	span.SetStatus(codes.Ok, "route created")
	return route, nil
}

// compensate removes a stored route whose pins could not be claimed. When that
// also fails the inconsistency is published for the reconciliation job.
func (s *ServiceImpl) compensate(ctx context.Context, l *zap.Logger, route *models.Route, pinIDs []uuid.UUID, cause error) {
	ctx = context.WithoutCancel(ctx)
	if err := s.repo.DeleteRoute(ctx, route.ID, route.UserID); err != nil {
		l.Error("Compensating route delete failed, leaving repair to reconciliation",
			zap.String("routeID", route.ID.String()), zap.Error(err))
		s.publishRoute(ctx, events.RouteAssemblyInconsistent, route, pinIDs, map[string]any{
			"claim_error":  cause.Error(),
			"delete_error": err.Error(),
		})
	}
}

func inInputOrder(fetched []models.Pin, ids []uuid.UUID) ([]models.Pin, error) {
	byID := make(map[uuid.UUID]models.Pin, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}
	out := make([]models.Pin, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			return nil, models.NewInvalidBatchError("some pins not found or already used")
		}
		out = append(out, p)
	}
	return out, nil
}

// checkHomogeneous requires every pin to share the first pin's city and local
// capture day.
func checkHomogeneous(pins []models.Pin) error {
	first := pins[0]
	for _, p := range pins[1:] {
		if !strings.EqualFold(strings.TrimSpace(p.City), strings.TrimSpace(first.City)) {
			return models.NewHeterogeneousBatchError("city", "all pins must be from the same city")
		}
		if p.CaptureDay != first.CaptureDay {
			return models.NewHeterogeneousBatchError("day", "all pins must be captured on the same day")
		}
	}
	return nil
}

// estimateDistance fills a missing distance with the great-circle length of
// the stop path.
func estimateDistance(route *models.Route) {
	if route.Distance != nil || len(route.Stops) < 2 {
		return
	}
	pts := make([]models.Coordinates, len(route.Stops))
	for i, st := range route.Stops {
		pts[i] = st.Coordinates
	}
	d := geo.PathKilometers(pts)
	route.Distance = &d
}

// CreateRoute authors a route directly from caller supplied stops, which may be empty.
func (s *ServiceImpl) CreateRoute(ctx context.Context, owner uuid.UUID, req models.CreateRouteRequest) (*models.Route, error) {
	ctx, span := otel.Tracer("RouteService").Start(ctx, "CreateRoute", trace.WithAttributes(
		attribute.String("user.id", owner.String()),
		attribute.Int("stops.count", len(req.Stops)),
	))
	defer span.End()

	l := s.logger.With(zap.String("method", "CreateRoute"), zap.String("userID", owner.String()))

	route := &models.Route{ID: uuid.New(), UserID: owner}
	if err := req.RouteMeta.Apply(route); err != nil {
		span.RecordError(err)
		return nil, err
	}
	route.City = pins.CanonicalPlaceName(req.City)
	if route.City == "" {
		return nil, models.NewValidationError("city", "city is required")
	}
	route.Country = canonicalCountry(route.Country)
	route.Stops = make([]models.Stop, 0, len(req.Stops))
	for _, in := range req.Stops {
		stop, err := in.ToStop()
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		route.Stops = append(route.Stops, stop)
	}
	renumber(route.Stops)
	estimateDistance(route)

	if err := s.repo.CreateRoute(ctx, route); err != nil {
		l.Error("Failed to persist route", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return nil, fmt.Errorf("failed to create route: %w", err)
	}

	s.publishRoute(ctx, events.RouteCreated, route, nil, nil)
	l.Info("Route created", zap.String("routeID", route.ID.String()))
	span.SetStatus(codes.Ok, "route created")
	return route, nil
}

// GetRoute returns a route the caller may see. Private routes of other users
// are reported as not found. Views by anyone but the owner are counted.
func (s *ServiceImpl) GetRoute(ctx context.Context, routeID uuid.UUID, caller *uuid.UUID) (*models.Route, error) {
	ctx, span := otel.Tracer("RouteService").Start(ctx, "GetRoute", trace.WithAttributes(
		attribute.String("route.id", routeID.String()),
	))
	defer span.End()

	viewer := uuid.Nil
	if caller != nil {
		viewer = *caller
	}
	route, err := s.repo.GetRoute(ctx, routeID, viewer)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !route.VisibleTo(caller) {
		return nil, models.NewNotFoundError("route not found")
	}

	if viewer != route.UserID {
		if err := s.repo.IncrementViews(ctx, routeID); err != nil {
			s.logger.Warn("Failed to count route view", zap.String("routeID", routeID.String()), zap.Error(err))
		} else {
			route.ViewCount++
		}
	}
	span.SetStatus(codes.Ok, "route loaded")
	return route, nil
}

// loadOwned fetches a route for an owner-only mutation.
func (s *ServiceImpl) loadOwned(ctx context.Context, owner, routeID uuid.UUID) (*models.Route, error) {
	route, err := s.repo.GetRoute(ctx, routeID, owner)
	if err != nil {
		return nil, err
	}
	if !route.VisibleTo(&owner) {
		return nil, models.NewNotFoundError("route not found")
	}
	if err := route.RequireOwner(owner); err != nil {
		return nil, err
	}
	return route, nil
}

// mutate loads an owned route, applies edit and stores the result.
func (s *ServiceImpl) mutate(ctx context.Context, method string, owner, routeID uuid.UUID, edit func(*models.Route) error) (*models.Route, error) {
	ctx, span := otel.Tracer("RouteService").Start(ctx, method, trace.WithAttributes(
		attribute.String("user.id", owner.String()),
		attribute.String("route.id", routeID.String()),
	))
	defer span.End()

	l := s.logger.With(zap.String("method", method), zap.String("routeID", routeID.String()))

	route, err := s.loadOwned(ctx, owner, routeID)
	if err != nil {
		l.Warn("Route mutation rejected", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "rejected")
		return nil, err
	}
	if err := edit(route); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rejected")
		return nil, err
	}
	if err := s.repo.UpdateRoute(ctx, route); err != nil {
		l.Error("Failed to store route", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return nil, fmt.Errorf("failed to update route: %w", err)
	}
	l.Info("Route updated")
	span.SetStatus(codes.Ok, "route updated")
	return route, nil
}

func (s *ServiceImpl) UpdateRoute(ctx context.Context, owner, routeID uuid.UUID, req models.UpdateRouteRequest) (*models.Route, error) {
	return s.mutate(ctx, "UpdateRoute", owner, routeID, func(r *models.Route) error {
		if err := req.Apply(r); err != nil {
			return err
		}
		r.City = pins.CanonicalPlaceName(r.City)
		r.Country = canonicalCountry(r.Country)
		return nil
	})
}

// canonicalCountry cases a country like pin capture does so rollups group
// "france" and "France" together.
func canonicalCountry(country *string) *string {
	if country == nil {
		return nil
	}
	c := pins.CanonicalPlaceName(*country)
	if c == "" {
		return nil
	}
	return &c
}

func (s *ServiceImpl) AddStop(ctx context.Context, owner, routeID uuid.UUID, in models.StopInput) (*models.Route, error) {
	return s.mutate(ctx, "AddStop", owner, routeID, func(r *models.Route) error {
		stop, err := in.ToStop()
		if err != nil {
			return err
		}
		r.Stops = insertStop(r.Stops, stop, in.Position)
		return nil
	})
}

func (s *ServiceImpl) UpdateStop(ctx context.Context, owner, routeID, stopID uuid.UUID, patch models.StopPatch) (*models.Route, error) {
	return s.mutate(ctx, "UpdateStop", owner, routeID, func(r *models.Route) error {
		stops, err := patchStop(r.Stops, stopID, patch)
		if err != nil {
			return err
		}
		r.Stops = stops
		return nil
	})
}

func (s *ServiceImpl) RemoveStop(ctx context.Context, owner, routeID, stopID uuid.UUID) (*models.Route, error) {
	return s.mutate(ctx, "RemoveStop", owner, routeID, func(r *models.Route) error {
		stops, err := removeStop(r.Stops, stopID)
		if err != nil {
			return err
		}
		r.Stops = stops
		return nil
	})
}

// ReorderStops rejects any list that does not name every stop exactly once.
func (s *ServiceImpl) ReorderStops(ctx context.Context, owner, routeID uuid.UUID, stopIDs []uuid.UUID) (*models.Route, error) {
	return s.mutate(ctx, "ReorderStops", owner, routeID, func(r *models.Route) error {
		stops, err := reorderStops(r.Stops, stopIDs)
		if err != nil {
			return err
		}
		r.Stops = stops
		return nil
	})
}

// DeleteRoute removes an owned route and releases the pins it consumed. The
// release is best effort; leftovers are repaired by reconciliation.
func (s *ServiceImpl) DeleteRoute(ctx context.Context, owner, routeID uuid.UUID) error {
	ctx, span := otel.Tracer("RouteService").Start(ctx, "DeleteRoute", trace.WithAttributes(
		attribute.String("user.id", owner.String()),
		attribute.String("route.id", routeID.String()),
	))
	defer span.End()

	l := s.logger.With(zap.String("method", "DeleteRoute"), zap.String("routeID", routeID.String()))

	route, err := s.loadOwned(ctx, owner, routeID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := s.repo.DeleteRoute(ctx, routeID, owner); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return err
	}

	released, err := s.pins.ReleaseRoutePins(context.WithoutCancel(ctx), routeID)
	if err != nil {
		l.Error("Failed to release pins of deleted route", zap.Error(err))
		s.publishRoute(ctx, events.RouteAssemblyInconsistent, route, pinIDsOf(route.Stops), map[string]any{
			"release_error": err.Error(),
		})
	}

	s.publishRoute(ctx, events.RouteDeleted, route, pinIDsOf(route.Stops), map[string]any{"released": released})
	l.Info("Route deleted", zap.Int64("pinsReleased", released))
	span.SetStatus(codes.Ok, "route deleted")
	return nil
}

// ShareRoute counts a share of a public route.
func (s *ServiceImpl) ShareRoute(ctx context.Context, routeID uuid.UUID) (int64, error) {
	ctx, span := otel.Tracer("RouteService").Start(ctx, "ShareRoute", trace.WithAttributes(
		attribute.String("route.id", routeID.String()),
	))
	defer span.End()

	count, err := s.repo.IncrementShares(ctx, routeID)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	return count, nil
}

func (s *ServiceImpl) publishRoute(ctx context.Context, t events.Type, route *models.Route, pinIDs []uuid.UUID, detail map[string]any) {
	ev := events.NewEvent(t)
	routeID, userID := route.ID, route.UserID
	ev.RouteID = &routeID
	ev.UserID = &userID
	ev.PinIDs = pinIDs
	ev.Detail = detail
	if err := s.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Warn("Failed to publish route event", zap.String("type", string(t)), zap.Error(err))
	}
}
