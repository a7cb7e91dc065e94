package nearby

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-routes/internal/app/models"
	"github.com/FACorreiaa/loci-routes/internal/pkg/geo"
)

const (
	DefaultRadiusMeters = 1000
	MaxRadiusMeters     = 50000
	DefaultLimit        = 10
	MaxLimit            = 100
)

// Finder is the spatial near-query over a user's unconsumed pins.
type Finder interface {
	FindNearbyPins(ctx context.Context, owner uuid.UUID, at models.Coordinates, radiusMeters float64, limit int) ([]models.NearbyPin, error)
}

var _ Service = (*ServiceImpl)(nil)

type Service interface {
	NearbyPins(ctx context.Context, owner uuid.UUID, at models.Coordinates, radiusMeters float64, limit int) ([]models.NearbyPin, error)
}

type ServiceImpl struct {
	logger *zap.Logger
	finder Finder
}

func NewService(finder Finder, logger *zap.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger: logger,
		finder: finder,
	}
}

// NearbyPins returns owner's unconsumed pins within radiusMeters of at,
// nearest first with ties broken by pin id. A zero radius or limit takes
// the default.
func (s *ServiceImpl) NearbyPins(ctx context.Context, owner uuid.UUID, at models.Coordinates, radiusMeters float64, limit int) ([]models.NearbyPin, error) {
	ctx, span := otel.Tracer("NearbyService").Start(ctx, "NearbyPins", trace.WithAttributes(
		attribute.String("user.id", owner.String()),
		attribute.Float64("radius_m", radiusMeters),
		attribute.Int("limit", limit),
	))
	defer span.End()

	l := s.logger.With(zap.String("method", "NearbyPins"), zap.String("userID", owner.String()))

	if err := at.Validate(); err != nil {
		span.SetStatus(codes.Error, "invalid coordinates")
		return nil, err
	}
	if radiusMeters == 0 {
		radiusMeters = DefaultRadiusMeters
	}
	if math.IsNaN(radiusMeters) || radiusMeters < 0 || radiusMeters > MaxRadiusMeters {
		span.SetStatus(codes.Error, "invalid radius")
		return nil, models.NewValidationError("radius", fmt.Sprintf("radius must be between 0 and %d meters", MaxRadiusMeters))
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	found, err := s.finder.FindNearbyPins(ctx, owner, at, radiusMeters, limit)
	if err != nil {
		l.Error("Failed to find nearby pins", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "near query failed")
		return nil, fmt.Errorf("failed to find nearby pins: %w", err)
	}

	result := withinRadius(found, at, radiusMeters)
	if len(result) > limit {
		result = result[:limit]
	}

	l.Debug("Nearby pins found", zap.Int("count", len(result)))
	span.SetAttributes(attribute.Int("pins.count", len(result)))
	span.SetStatus(codes.Ok, "nearby pins found")
	return result, nil
}

// withinRadius recomputes great-circle distances, drops anything outside
// radius and orders by (distance, id).
func withinRadius(found []models.NearbyPin, at models.Coordinates, radius float64) []models.NearbyPin {
	out := make([]models.NearbyPin, 0, len(found))
	for _, p := range found {
		d := geo.DistanceMeters(at, p.Coordinates)
		if d > radius {
			continue
		}
		p.DistanceMeters = d
		out = append(out, p)
	}
	slices.SortStableFunc(out, func(a, b models.NearbyPin) int {
		if a.DistanceMeters != b.DistanceMeters {
			if a.DistanceMeters < b.DistanceMeters {
				return -1
			}
			return 1
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
	return out
}
