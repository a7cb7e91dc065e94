package pins

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-routes/internal/app/models"
)

// MockRepository is a mock implementation of Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreatePin(ctx context.Context, pin *models.Pin) error {
	args := m.Called(ctx, pin)
	return args.Error(0)
}

func (m *MockRepository) ListDailyPins(ctx context.Context, owner uuid.UUID, city, day string) ([]models.Pin, error) {
	args := m.Called(ctx, owner, city, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Pin), args.Error(1)
}

func (m *MockRepository) ListGroupedPins(ctx context.Context, owner uuid.UUID, limit int) ([]models.PinGroup, error) {
	args := m.Called(ctx, owner, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PinGroup), args.Error(1)
}

func (m *MockRepository) DeleteUnconsumedPin(ctx context.Context, owner, pinID uuid.UUID) error {
	args := m.Called(ctx, owner, pinID)
	return args.Error(0)
}

func (m *MockRepository) PinStats(ctx context.Context, owner uuid.UUID) (*models.PinStats, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PinStats), args.Error(1)
}

func (m *MockRepository) FetchUnconsumedPins(ctx context.Context, owner uuid.UUID, pinIDs []uuid.UUID) ([]models.Pin, error) {
	args := m.Called(ctx, owner, pinIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Pin), args.Error(1)
}

func (m *MockRepository) ClaimPins(ctx context.Context, routeID, owner uuid.UUID, pinIDs []uuid.UUID) error {
	args := m.Called(ctx, routeID, owner, pinIDs)
	return args.Error(0)
}

func (m *MockRepository) ReleaseRoutePins(ctx context.Context, routeID uuid.UUID) (int64, error) {
	args := m.Called(ctx, routeID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) FindNearbyPins(ctx context.Context, owner uuid.UUID, at models.Coordinates, radiusMeters float64, limit int) ([]models.NearbyPin, error) {
	args := m.Called(ctx, owner, at, radiusMeters, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.NearbyPin), args.Error(1)
}

type MockEnricher struct {
	mock.Mock
}

func (m *MockEnricher) PlaceDetails(ctx context.Context, placeID string) (*models.Place, error) {
	args := m.Called(ctx, placeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Place), args.Error(1)
}

type MockGeocodingEnricher struct {
	MockEnricher
}

func (m *MockGeocodingEnricher) ReverseGeocode(ctx context.Context, at models.Coordinates) ([]models.GeocodeResult, error) {
	args := m.Called(ctx, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.GeocodeResult), args.Error(1)
}

func strPtr(s string) *string { return &s }

func validRequest() models.DropPinRequest {
	return models.DropPinRequest{
		Name:        "Miradouro",
		Coordinates: &models.CoordinatesInput{Lat: models.NumberOf(38.71), Lng: models.NumberOf(-9.13)},
		City:        "  lisbon ",
	}
}

func TestDropPin(t *testing.T) {
	owner := uuid.New()
	lisbon := time.FixedZone("WEST", 3600)

	t.Run("defaults capture time to the configured zone", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo, nil, lisbon, zap.NewNop())
		svc.now = func() time.Time { return time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC) }

		repo.On("CreatePin", mock.Anything, mock.MatchedBy(func(p *models.Pin) bool {
			return p.CaptureDay == "2024-05-02" && p.City == "Lisbon" && !p.Consumed && p.RouteID == nil
		})).Return(nil).Once()

		pin, err := svc.DropPin(context.Background(), owner, validRequest())
		require.NoError(t, err)
		assert.Equal(t, owner, pin.UserID)
		assert.NotEqual(t, uuid.Nil, pin.ID)
		repo.AssertExpectations(t)
	})

	t.Run("explicit timestamp keeps its own offset", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo, nil, time.UTC, zap.NewNop())

		req := validRequest()
		at := time.Date(2024, 5, 1, 23, 30, 0, 0, time.FixedZone("PDT", -7*3600))
		req.CapturedAt = &at

		repo.On("CreatePin", mock.Anything, mock.Anything).Return(nil).Once()

		pin, err := svc.DropPin(context.Background(), owner, req)
		require.NoError(t, err)
		assert.Equal(t, "2024-05-01", pin.CaptureDay)
	})

	t.Run("validation failure never reaches the store", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo, nil, time.UTC, zap.NewNop())

		req := validRequest()
		req.City = ""

		_, err := svc.DropPin(context.Background(), owner, req)
		assert.True(t, errors.Is(err, models.ErrValidation))
		repo.AssertNotCalled(t, "CreatePin", mock.Anything, mock.Anything)
	})

	t.Run("enrichment fills only empty fields", func(t *testing.T) {
		repo := new(MockRepository)
		enricher := new(MockEnricher)
		svc := NewService(repo, enricher, time.UTC, zap.NewNop())

		rating := 4.6
		enricher.On("PlaceDetails", mock.Anything, "place-1").Return(&models.Place{
			PlaceID: "place-1", Address: "Largo das Portas do Sol", Website: "https://example.com",
			Rating: &rating, Types: []string{"viewpoint"},
		}, nil).Once()
		repo.On("CreatePin", mock.Anything, mock.Anything).Return(nil).Once()

		req := validRequest()
		req.PlaceID = strPtr("place-1")
		req.Website = strPtr("https://mine.example")

		pin, err := svc.DropPin(context.Background(), owner, req)
		require.NoError(t, err)
		assert.Equal(t, "Largo das Portas do Sol", *pin.Address)
		assert.Equal(t, "https://mine.example", *pin.Website)
		assert.Equal(t, 4.6, *pin.Rating)
		assert.Equal(t, []string{"viewpoint"}, pin.Types)
	})

	t.Run("enrichment failure is not fatal", func(t *testing.T) {
		repo := new(MockRepository)
		enricher := new(MockEnricher)
		svc := NewService(repo, enricher, time.UTC, zap.NewNop())

		enricher.On("PlaceDetails", mock.Anything, "place-1").
			Return(nil, models.NewUpstreamError("place lookup failed", errors.New("timeout"))).Once()
		repo.On("CreatePin", mock.Anything, mock.Anything).Return(nil).Once()

		req := validRequest()
		req.PlaceID = strPtr("place-1")

		pin, err := svc.DropPin(context.Background(), owner, req)
		require.NoError(t, err)
		assert.Nil(t, pin.Address)
	})

	t.Run("missing city and country come from reverse geocoding", func(t *testing.T) {
		repo := new(MockRepository)
		geo := new(MockGeocodingEnricher)
		svc := NewService(repo, geo, time.UTC, zap.NewNop())

		geo.On("ReverseGeocode", mock.Anything, models.Coordinates{Lat: 38.71, Lng: -9.13}).Return([]models.GeocodeResult{
			{FormattedAddress: "Portugal", Country: "Portugal"},
			{FormattedAddress: "Lisboa, Portugal", City: "LISBOA", Country: "Portugal"},
		}, nil).Once()
		repo.On("CreatePin", mock.Anything, mock.Anything).Return(nil).Once()

		req := validRequest()
		req.City = " "

		pin, err := svc.DropPin(context.Background(), owner, req)
		require.NoError(t, err)
		assert.Equal(t, "Lisboa", pin.City)
		require.NotNil(t, pin.Country)
		assert.Equal(t, "Portugal", *pin.Country)
		geo.AssertExpectations(t)
	})

	t.Run("client city wins over reverse geocoding", func(t *testing.T) {
		repo := new(MockRepository)
		geo := new(MockGeocodingEnricher)
		svc := NewService(repo, geo, time.UTC, zap.NewNop())

		geo.On("ReverseGeocode", mock.Anything, mock.Anything).
			Return([]models.GeocodeResult{{City: "Almada", Country: "Portugal"}}, nil).Once()
		repo.On("CreatePin", mock.Anything, mock.Anything).Return(nil).Once()

		pin, err := svc.DropPin(context.Background(), owner, validRequest())
		require.NoError(t, err)
		assert.Equal(t, "Lisbon", pin.City)
		assert.Equal(t, "Portugal", *pin.Country)
	})

	t.Run("geocoding failure leaves a cityless pin rejected", func(t *testing.T) {
		repo := new(MockRepository)
		geo := new(MockGeocodingEnricher)
		svc := NewService(repo, geo, time.UTC, zap.NewNop())

		geo.On("ReverseGeocode", mock.Anything, mock.Anything).
			Return(nil, models.NewUpstreamError("place lookup failed", errors.New("timeout"))).Once()

		req := validRequest()
		req.City = ""

		_, err := svc.DropPin(context.Background(), owner, req)
		assert.ErrorIs(t, err, models.ErrValidation)
		repo.AssertNotCalled(t, "CreatePin", mock.Anything, mock.Anything)
	})

	t.Run("nothing is looked up when city and country are given", func(t *testing.T) {
		repo := new(MockRepository)
		geo := new(MockGeocodingEnricher)
		svc := NewService(repo, geo, time.UTC, zap.NewNop())
		repo.On("CreatePin", mock.Anything, mock.Anything).Return(nil).Once()

		req := validRequest()
		req.Country = strPtr("portugal")

		_, err := svc.DropPin(context.Background(), owner, req)
		require.NoError(t, err)
		geo.AssertNotCalled(t, "ReverseGeocode", mock.Anything, mock.Anything)
	})
}

func TestListDailyPinsValidatesDate(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, nil, time.UTC, zap.NewNop())
	owner := uuid.New()

	_, err := svc.ListDailyPins(context.Background(), owner, "Lisbon", "01/05/2024")
	assert.True(t, errors.Is(err, models.ErrValidation))

	repo.On("ListDailyPins", mock.Anything, owner, "Lisbon", "2024-05-01").Return([]models.Pin{}, nil).Once()
	pins, err := svc.ListDailyPins(context.Background(), owner, "lisbon", "2024-05-01")
	require.NoError(t, err)
	assert.Empty(t, pins)
	repo.AssertExpectations(t)
}

func TestListGroupedPinsLimit(t *testing.T) {
	owner := uuid.New()
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"default", 0, DefaultGroupLimit},
		{"explicit", 5, 5},
		{"capped", 1000, MaxGroupLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			svc := NewService(repo, nil, time.UTC, zap.NewNop())
			repo.On("ListGroupedPins", mock.Anything, owner, tt.want).Return([]models.PinGroup{}, nil).Once()

			_, err := svc.ListGroupedPins(context.Background(), owner, tt.limit)
			require.NoError(t, err)
			repo.AssertExpectations(t)
		})
	}
}

func TestDeletePinPropagatesNotFound(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, nil, time.UTC, zap.NewNop())
	owner, pinID := uuid.New(), uuid.New()

	repo.On("DeleteUnconsumedPin", mock.Anything, owner, pinID).
		Return(models.NewNotFoundError("pin not found or already used")).Once()

	err := svc.DeletePin(context.Background(), owner, pinID)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestCanonicalPlaceName(t *testing.T) {
	assert.Equal(t, "São Paulo", CanonicalPlaceName("  são   PAULO "))
	assert.Equal(t, "", CanonicalPlaceName("   "))
}

func TestPinStats(t *testing.T) {
	owner := uuid.New()

	t.Run("used and unused add up", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo, nil, time.UTC, zap.NewNop())
		repo.On("PinStats", mock.Anything, owner).
			Return(&models.PinStats{TotalPins: 7, UsedPins: 4, UnusedPins: 3, CityCount: 2, CategoryCount: 3}, nil).Once()

		stats, err := svc.PinStats(context.Background(), owner)
		require.NoError(t, err)
		assert.Equal(t, stats.TotalPins, stats.UsedPins+stats.UnusedPins)
	})

	t.Run("storage failure is wrapped", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo, nil, time.UTC, zap.NewNop())
		repo.On("PinStats", mock.Anything, owner).Return(nil, errors.New("conn reset")).Once()

		_, err := svc.PinStats(context.Background(), owner)
		assert.ErrorContains(t, err, "failed to load pin stats")
	})
}
