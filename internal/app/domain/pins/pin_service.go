package pins

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/FACorreiaa/loci-routes/internal/app/models"
	"github.com/FACorreiaa/loci-routes/internal/app/observability/metrics"
)

const (
	DefaultGroupLimit = 30
	MaxGroupLimit     = 100
	enrichTimeout     = 3 * time.Second
)

var _ Service = (*ServiceImpl)(nil)

type Service interface {
	DropPin(ctx context.Context, owner uuid.UUID, req models.DropPinRequest) (*models.Pin, error)
	ListDailyPins(ctx context.Context, owner uuid.UUID, city, day string) ([]models.Pin, error)
	ListGroupedPins(ctx context.Context, owner uuid.UUID, limit int) ([]models.PinGroup, error)
	DeletePin(ctx context.Context, owner, pinID uuid.UUID) error
	PinStats(ctx context.Context, owner uuid.UUID) (*models.PinStats, error)
}

// PlaceEnricher resolves place details by external place id.
type PlaceEnricher interface {
	PlaceDetails(ctx context.Context, placeID string) (*models.Place, error)
}

// Geocoder resolves the city and country at a coordinate. An enricher that
// also implements Geocoder fills a missing city or country on DropPin.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, at models.Coordinates) ([]models.GeocodeResult, error)
}

type ServiceImpl struct {
	logger   *zap.Logger
	repo     Repository
	enricher PlaceEnricher
	location *time.Location
	now      func() time.Time
}

// NewService creates a pin service. enricher may be nil; loc is the zone used
// for pins dropped without an explicit capture timestamp.
func NewService(repo Repository, enricher PlaceEnricher, loc *time.Location, logger *zap.Logger) *ServiceImpl {
	if loc == nil {
		loc = time.UTC
	}
	return &ServiceImpl{
		logger:   logger,
		repo:     repo,
		enricher: enricher,
		location: loc,
		now:      time.Now,
	}
}

// CanonicalPlaceName normalises whitespace and casing of a city or country so
// grouping by name is stable across captures.
func CanonicalPlaceName(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return s
	}
	return cases.Title(language.Und).String(strings.ToLower(s))
}

// DropPin validates and stores a new unconsumed pin. The capture day is the
// calendar day of the capture timestamp in the timestamp's own offset.
func (s *ServiceImpl) DropPin(ctx context.Context, owner uuid.UUID, req models.DropPinRequest) (*models.Pin, error) {
	ctx, span := otel.Tracer("PinService").Start(ctx, "DropPin", trace.WithAttributes(
		attribute.String("user.id", owner.String()),
		attribute.String("pin.city", req.City),
	))
	defer span.End()

	l := s.logger.With(zap.String("method", "DropPin"), zap.String("userID", owner.String()))
	l.Debug("Dropping pin")

	if g, ok := s.enricher.(Geocoder); ok {
		s.locate(ctx, l, g, &req)
	}

	pin, err := req.ToPin(owner)
	if err != nil {
		l.Warn("Rejected pin", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return nil, err
	}

	pin.ID = uuid.New()
	pin.City = CanonicalPlaceName(pin.City)
	if pin.Country != nil {
		country := CanonicalPlaceName(*pin.Country)
		pin.Country = &country
	}
	if pin.CapturedAt.IsZero() {
		pin.CapturedAt = s.now().In(s.location)
	}
	pin.CaptureDay = models.CaptureDayOf(pin.CapturedAt)

	if pin.PlaceID != nil && s.enricher != nil {
		s.enrich(ctx, l, pin)
	}

	if err := s.repo.CreatePin(ctx, pin); err != nil {
		l.Error("Failed to store pin", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		return nil, fmt.Errorf("failed to drop pin: %w", err)
	}

	metrics.Count(ctx, metrics.Get().PinsCapturedTotal, "city", pin.City)
	l.Info("Pin dropped", zap.String("pinID", pin.ID.String()), zap.String("day", pin.CaptureDay))
	span.SetStatus(codes.Ok, "pin dropped")
	return pin, nil
}

// locate fills a blank city or country from reverse geocoding. It never fails
// the drop; a pin that still has no city is rejected by validation.
func (s *ServiceImpl) locate(ctx context.Context, l *zap.Logger, g Geocoder, req *models.DropPinRequest) {
	needCity := strings.TrimSpace(req.City) == ""
	needCountry := req.Country == nil || strings.TrimSpace(*req.Country) == ""
	if !needCity && !needCountry {
		return
	}
	if req.Coordinates == nil || req.Coordinates.Lat.Value == nil || req.Coordinates.Lng.Value == nil {
		return
	}
	at := models.Coordinates{Lat: *req.Coordinates.Lat.Value, Lng: *req.Coordinates.Lng.Value}
	if at.Validate() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, enrichTimeout)
	defer cancel()

	results, err := g.ReverseGeocode(ctx, at)
	if err != nil {
		l.Warn("Reverse geocoding failed, storing pin as submitted", zap.Error(err))
		return
	}
	for _, r := range results {
		if needCity && strings.TrimSpace(r.City) != "" {
			req.City = r.City
			needCity = false
		}
		if needCountry && strings.TrimSpace(r.Country) != "" {
			country := r.Country
			req.Country = &country
			needCountry = false
		}
	}
}

// enrich fills fields the client left empty from the place lookup. Failures are
// logged and ignored.
func (s *ServiceImpl) enrich(ctx context.Context, l *zap.Logger, pin *models.Pin) {
	ctx, cancel := context.WithTimeout(ctx, enrichTimeout)
	defer cancel()

	place, err := s.enricher.PlaceDetails(ctx, *pin.PlaceID)
	if err != nil {
		l.Warn("Place enrichment failed, storing pin as submitted", zap.String("placeID", *pin.PlaceID), zap.Error(err))
		return
	}
	if place == nil {
		return
	}

	fill := func(dst **string, v string) {
		if *dst == nil && strings.TrimSpace(v) != "" {
			val := v
			*dst = &val
		}
	}
	fill(&pin.Address, place.Address)
	fill(&pin.Website, place.Website)
	fill(&pin.PhoneNumber, place.PhoneNumber)
	fill(&pin.BusinessStatus, place.BusinessStatus)
	if pin.Rating == nil && place.Rating != nil {
		pin.Rating = place.Rating
	}
	if pin.PriceLevel == nil && place.PriceLevel != nil {
		pin.PriceLevel = place.PriceLevel
	}
	if len(pin.Types) == 0 && len(place.Types) > 0 {
		pin.Types = append([]string(nil), place.Types...)
	}
}

func (s *ServiceImpl) ListDailyPins(ctx context.Context, owner uuid.UUID, city, day string) ([]models.Pin, error) {
	ctx, span := otel.Tracer("PinService").Start(ctx, "ListDailyPins", trace.WithAttributes(
		attribute.String("user.id", owner.String()),
		attribute.String("pin.city", city),
		attribute.String("pin.day", day),
	))
	defer span.End()

	if _, err := time.Parse(models.CaptureDayLayout, day); err != nil {
		return nil, models.NewValidationError("date", "date must be YYYY-MM-DD")
	}
	city = CanonicalPlaceName(city)
	if city == "" {
		return nil, models.NewValidationError("city", "city is required")
	}

	pins, err := s.repo.ListDailyPins(ctx, owner, city, day)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return nil, fmt.Errorf("failed to list daily pins: %w", err)
	}
	span.SetStatus(codes.Ok, "listed")
	return pins, nil
}

func (s *ServiceImpl) ListGroupedPins(ctx context.Context, owner uuid.UUID, limit int) ([]models.PinGroup, error) {
	ctx, span := otel.Tracer("PinService").Start(ctx, "ListGroupedPins", trace.WithAttributes(
		attribute.String("user.id", owner.String()),
		attribute.Int("limit", limit),
	))
	defer span.End()

	switch {
	case limit <= 0:
		limit = DefaultGroupLimit
	case limit > MaxGroupLimit:
		limit = MaxGroupLimit
	}

	groups, err := s.repo.ListGroupedPins(ctx, owner, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return nil, fmt.Errorf("failed to list grouped pins: %w", err)
	}
	span.SetStatus(codes.Ok, "listed")
	return groups, nil
}

// DeletePin removes an unconsumed pin. Consumed pins belong to a route and
// cannot be deleted.
func (s *ServiceImpl) DeletePin(ctx context.Context, owner, pinID uuid.UUID) error {
	ctx, span := otel.Tracer("PinService").Start(ctx, "DeletePin", trace.WithAttributes(
		attribute.String("user.id", owner.String()),
		attribute.String("pin.id", pinID.String()),
	))
	defer span.End()

	l := s.logger.With(zap.String("method", "DeletePin"), zap.String("pinID", pinID.String()))
	if err := s.repo.DeleteUnconsumedPin(ctx, owner, pinID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return err
	}
	l.Info("Pin deleted")
	span.SetStatus(codes.Ok, "deleted")
	return nil
}

func (s *ServiceImpl) PinStats(ctx context.Context, owner uuid.UUID) (*models.PinStats, error) {
	ctx, span := otel.Tracer("PinService").Start(ctx, "PinStats", trace.WithAttributes(
		attribute.String("user.id", owner.String()),
	))
	defer span.End()

	stats, err := s.repo.PinStats(ctx, owner)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stats failed")
		return nil, fmt.Errorf("failed to load pin stats: %w", err)
	}
	return stats, nil
}
