package places

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/FACorreiaa/loci-routes/internal/app/models"
	"github.com/FACorreiaa/loci-routes/internal/app/observability/metrics"
	"github.com/FACorreiaa/loci-routes/internal/pkg/cache"
)

const (
	DefaultRadiusMeters = 5000
	MaxRadiusMeters     = 50000
	defaultCacheTTL     = 10 * time.Minute
)

var _ Service = (*ServiceImpl)(nil)

type Service interface {
	SearchPlaces(ctx context.Context, text string, near *models.Coordinates, radius int) ([]models.Place, error)
	NearbyPlaces(ctx context.Context, at models.Coordinates, radius int, keyword string) ([]models.Place, error)
	PlaceDetails(ctx context.Context, placeID string) (*models.Place, error)
	Autocomplete(ctx context.Context, input string, near *models.Coordinates, radius int, types string) ([]models.PlacePrediction, error)
	ReverseGeocode(ctx context.Context, at models.Coordinates) ([]models.GeocodeResult, error)
	PlaceTypes() []models.PlaceType
}

type ServiceImpl struct {
	logger      *zap.Logger
	client      Client
	results     *cache.UnifiedCache[[]models.Place]
	details     *cache.UnifiedCache[*models.Place]
	predictions *cache.UnifiedCache[[]models.PlacePrediction]
	geocodes    *cache.UnifiedCache[[]models.GeocodeResult]
	group       singleflight.Group
}

func NewService(client Client, cacheTTL time.Duration, logger *zap.Logger) *ServiceImpl {
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &ServiceImpl{
		logger:      logger,
		client:      client,
		results:     cache.NewUnifiedCache[[]models.Place](cacheTTL, "place_results", logger),
		details:     cache.NewUnifiedCache[*models.Place](cacheTTL, "place_details", logger),
		predictions: cache.NewUnifiedCache[[]models.PlacePrediction](cacheTTL, "place_predictions", logger),
		geocodes:    cache.NewUnifiedCache[[]models.GeocodeResult](cacheTTL, "place_geocodes", logger),
	}
}

func normaliseRadius(radius int) (int, error) {
	if radius == 0 {
		return DefaultRadiusMeters, nil
	}
	if radius < 0 || radius > MaxRadiusMeters {
		return 0, models.NewValidationError("radius", fmt.Sprintf("radius must be between 1 and %d meters", MaxRadiusMeters))
	}
	return radius, nil
}

func (s *ServiceImpl) SearchPlaces(ctx context.Context, text string, near *models.Coordinates, radius int) ([]models.Place, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, models.NewValidationError("query", "query is required")
	}
	if near != nil {
		if err := near.Validate(); err != nil {
			return nil, err
		}
	}
	radius, err := normaliseRadius(radius)
	if err != nil {
		return nil, err
	}

	q := models.PlaceQuery{Text: text, Near: near, Radius: radius}
	key, err := cache.NewCacheKeyBuilder("search").Add("text", strings.ToLower(text)).Add("near", near).Add("radius", radius).Build()
	if err != nil {
		return nil, err
	}
	return s.lookup(ctx, "SearchPlaces", key, func(ctx context.Context) ([]models.Place, error) {
		return s.client.TextSearch(ctx, q)
	})
}

func (s *ServiceImpl) NearbyPlaces(ctx context.Context, at models.Coordinates, radius int, keyword string) ([]models.Place, error) {
	if err := at.Validate(); err != nil {
		return nil, err
	}
	radius, err := normaliseRadius(radius)
	if err != nil {
		return nil, err
	}
	keyword = strings.TrimSpace(keyword)

	q := models.PlaceQuery{Near: &at, Radius: radius, Keyword: keyword}
	key, err := cache.NewCacheKeyBuilder("nearby").Add("at", at).Add("radius", radius).Add("keyword", strings.ToLower(keyword)).Build()
	if err != nil {
		return nil, err
	}
	return s.lookup(ctx, "NearbyPlaces", key, func(ctx context.Context) ([]models.Place, error) {
		return s.client.NearbySearch(ctx, q)
	})
}

func (s *ServiceImpl) lookup(ctx context.Context, method, key string, fetch func(context.Context) ([]models.Place, error)) ([]models.Place, error) {
	return cachedLookup(ctx, s, s.results, method, key, fetch)
}

// cachedLookup serves from store, otherwise collapses concurrent identical
// calls into one upstream request.
func cachedLookup[T any](ctx context.Context, s *ServiceImpl, store *cache.UnifiedCache[T], method, key string, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	ctx, span := otel.Tracer("PlacesService").Start(ctx, method, trace.WithAttributes(
		attribute.String("cache.key", key),
	))
	defer span.End()

	if cached, ok := store.Get(key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		metrics.Count(ctx, metrics.Get().PlaceLookupsTotal, "result", "cache_hit")
		return cached, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	v, err, shared := s.group.Do(method+":"+key, func() (any, error) {
		res, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		store.Set(key, res)
		return res, nil
	})
	if err != nil {
		s.logger.Warn("Place lookup failed", zap.String("method", method), zap.Error(err))
		metrics.Count(ctx, metrics.Get().PlaceLookupsTotal, "result", "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		return zero, asUpstream(err)
	}

	metrics.Count(ctx, metrics.Get().PlaceLookupsTotal, "result", "ok")
	span.SetAttributes(attribute.Bool("singleflight.shared", shared))
	span.SetStatus(codes.Ok, "lookup done")
	return v.(T), nil
}

// Autocomplete suggests places for a partial input, optionally biased towards
// a location. types is passed to the provider as its category filter.
func (s *ServiceImpl) Autocomplete(ctx context.Context, input string, near *models.Coordinates, radius int, types string) ([]models.PlacePrediction, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, models.NewValidationError("input", "input is required")
	}
	if near != nil {
		if err := near.Validate(); err != nil {
			return nil, err
		}
	}
	radius, err := normaliseRadius(radius)
	if err != nil {
		return nil, err
	}
	types = strings.TrimSpace(types)

	q := models.PlaceQuery{Text: input, Near: near, Radius: radius, Types: types}
	key, err := cache.NewCacheKeyBuilder("autocomplete").Add("input", strings.ToLower(input)).Add("near", near).Add("radius", radius).Add("types", types).Build()
	if err != nil {
		return nil, err
	}
	return cachedLookup(ctx, s, s.predictions, "Autocomplete", key, func(ctx context.Context) ([]models.PlacePrediction, error) {
		return s.client.Autocomplete(ctx, q)
	})
}

// ReverseGeocode resolves the addresses found at a coordinate.
func (s *ServiceImpl) ReverseGeocode(ctx context.Context, at models.Coordinates) ([]models.GeocodeResult, error) {
	if err := at.Validate(); err != nil {
		return nil, err
	}
	key, err := cache.NewCacheKeyBuilder("geocode").Add("at", at).Build()
	if err != nil {
		return nil, err
	}
	return cachedLookup(ctx, s, s.geocodes, "ReverseGeocode", key, func(ctx context.Context) ([]models.GeocodeResult, error) {
		return s.client.ReverseGeocode(ctx, at)
	})
}

var placeTypes = []models.PlaceType{
	{Value: "restaurant", Label: "Restaurant"},
	{Value: "tourist_attraction", Label: "Tourist Attraction"},
	{Value: "lodging", Label: "Hotel"},
	{Value: "shopping_mall", Label: "Shopping Mall"},
	{Value: "museum", Label: "Museum"},
	{Value: "park", Label: "Park"},
	{Value: "church", Label: "Church"},
	{Value: "hospital", Label: "Hospital"},
	{Value: "school", Label: "School"},
	{Value: "bank", Label: "Bank"},
	{Value: "gas_station", Label: "Gas Station"},
	{Value: "atm", Label: "ATM"},
	{Value: "pharmacy", Label: "Pharmacy"},
	{Value: "gym", Label: "Gym"},
	{Value: "cafe", Label: "Cafe"},
	{Value: "bar", Label: "Bar"},
	{Value: "night_club", Label: "Night Club"},
	{Value: "movie_theater", Label: "Movie Theater"},
	{Value: "zoo", Label: "Zoo"},
	{Value: "aquarium", Label: "Aquarium"},
}

// PlaceTypes lists the categories clients may filter by. The list is static.
func (s *ServiceImpl) PlaceTypes() []models.PlaceType {
	return slices.Clone(placeTypes)
}

// PlaceDetails resolves one place by provider id.
func (s *ServiceImpl) PlaceDetails(ctx context.Context, placeID string) (*models.Place, error) {
	placeID = strings.TrimSpace(placeID)
	if placeID == "" {
		return nil, models.NewValidationError("place_id", "place id is required")
	}

	ctx, span := otel.Tracer("PlacesService").Start(ctx, "PlaceDetails", trace.WithAttributes(
		attribute.String("place.id", placeID),
	))
	defer span.End()

	if cached, ok := s.details.Get(placeID); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		metrics.Count(ctx, metrics.Get().PlaceLookupsTotal, "result", "cache_hit")
		return cached, nil
	}

	v, err, _ := s.group.Do("details:"+placeID, func() (any, error) {
		place, err := s.client.Details(context.WithoutCancel(ctx), placeID)
		if err != nil {
			return nil, err
		}
		s.details.Set(placeID, place)
		return place, nil
	})
	if err != nil {
		metrics.Count(ctx, metrics.Get().PlaceLookupsTotal, "result", "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "details failed")
		return nil, asUpstream(err)
	}

	metrics.Count(ctx, metrics.Get().PlaceLookupsTotal, "result", "ok")
	span.SetStatus(codes.Ok, "details resolved")
	return v.(*models.Place), nil
}

// asUpstream keeps already-classified errors and wraps the rest.
func asUpstream(err error) error {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return models.NewUpstreamError("place lookup failed", err)
}
