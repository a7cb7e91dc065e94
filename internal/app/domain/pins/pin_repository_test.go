package pins

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-routes/internal/app/models"
)

var pinColumnNames = []string{
	"id", "user_id", "name", "address", "description", "image", "latitude", "longitude",
	"place_id", "category", "rating", "price_level", "website", "phone_number", "types",
	"business_status", "city", "country", "captured_at", "capture_day", "consumed", "route_id",
	"created_at", "updated_at",
}

func pinRow(p models.Pin) []any {
	return []any{
		p.ID, p.UserID, p.Name, p.Address, p.Description, p.Image, p.Coordinates.Lat, p.Coordinates.Lng,
		p.PlaceID, p.Category, p.Rating, p.PriceLevel, p.Website, p.PhoneNumber, p.Types,
		p.BusinessStatus, p.City, p.Country, p.CapturedAt, p.CaptureDay, p.Consumed, p.RouteID,
		p.CreatedAt, p.UpdatedAt,
	}
}

func newMockRepo(t *testing.T) (*RepositoryImpl, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewRepository(mock, zap.NewNop()), mock
}

func TestClaimPinsCommitsWhenEveryPinFlips(t *testing.T) {
	repo, mock := newMockRepo(t)
	routeID, owner := uuid.New(), uuid.New()
	ids := []uuid.UUID{uuid.New(), uuid.New()}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE pins")).
		WithArgs(routeID, ids, owner).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectCommit()

	require.NoError(t, repo.ClaimPins(context.Background(), routeID, owner, ids))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimPinsAcceptsPinsAlreadyHeldByTheRoute(t *testing.T) {
	repo, mock := newMockRepo(t)
	routeID, owner := uuid.New(), uuid.New()
	ids := []uuid.UUID{uuid.New(), uuid.New()}

	// Reconciliation may have flipped the pins to this route already; the
	// claim must still count them so assembly does not compensate.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = ANY($2) AND user_id = $3 AND (consumed = FALSE OR route_id = $1)")).
		WithArgs(routeID, ids, owner).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectCommit()

	require.NoError(t, repo.ClaimPins(context.Background(), routeID, owner, ids))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimPinsRollsBackWhenAPinWasTaken(t *testing.T) {
	repo, mock := newMockRepo(t)
	routeID, owner := uuid.New(), uuid.New()
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("consumed = FALSE")).
		WithArgs(routeID, ids, owner).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectRollback()

	err := repo.ClaimPins(context.Background(), routeID, owner, ids)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidBatch))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimPinsRollsBackOnStorageError(t *testing.T) {
	repo, mock := newMockRepo(t)
	routeID, owner := uuid.New(), uuid.New()
	ids := []uuid.UUID{uuid.New()}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE pins").
		WithArgs(routeID, ids, owner).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.ClaimPins(context.Background(), routeID, owner, ids)
	require.Error(t, err)
	assert.Nil(t, models.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteUnconsumedPin(t *testing.T) {
	owner, pinID := uuid.New(), uuid.New()

	t.Run("deleted", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM pins WHERE id = $1 AND user_id = $2 AND consumed = FALSE")).
			WithArgs(pinID, owner).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		assert.NoError(t, repo.DeleteUnconsumedPin(context.Background(), owner, pinID))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("consumed or missing", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec("DELETE FROM pins").
			WithArgs(pinID, owner).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		err := repo.DeleteUnconsumedPin(context.Background(), owner, pinID)
		assert.True(t, errors.Is(err, models.ErrNotFound))
	})
}

func TestReleaseRoutePins(t *testing.T) {
	repo, mock := newMockRepo(t)
	routeID := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("SET consumed = FALSE, route_id = NULL")).
		WithArgs(routeID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := repo.ReleaseRoutePins(context.Background(), routeID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchUnconsumedPinsScansRows(t *testing.T) {
	repo, mock := newMockRepo(t)
	owner := uuid.New()
	now := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	addr := "Rua Augusta 1"
	pin := models.Pin{
		ID: uuid.New(), UserID: owner, Name: "Pastelaria", Address: &addr,
		Coordinates: models.Coordinates{Lat: 38.71, Lng: -9.14}, Types: []string{"bakery"},
		City: "Lisbon", CapturedAt: now, CaptureDay: "2024-05-01", CreatedAt: now, UpdatedAt: now,
	}
	ids := []uuid.UUID{pin.ID}

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = ANY($1) AND user_id = $2 AND consumed = FALSE")).
		WithArgs(ids, owner).
		WillReturnRows(pgxmock.NewRows(pinColumnNames).AddRow(pinRow(pin)...))

	got, err := repo.FetchUnconsumedPins(context.Background(), owner, ids)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, pin.ID, got[0].ID)
	assert.Equal(t, "Rua Augusta 1", *got[0].Address)
	assert.Equal(t, "2024-05-01", got[0].CaptureDay)
	assert.Nil(t, got[0].RouteID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPinStatsQuery(t *testing.T) {
	repo, mock := newMockRepo(t)
	owner := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("COUNT(*) FILTER (WHERE consumed)")).
		WithArgs(owner).
		WillReturnRows(pgxmock.NewRows([]string{"total", "used", "unused", "cities", "categories"}).
			AddRow(int64(5), int64(2), int64(3), int64(2), int64(1)))

	stats, err := repo.PinStats(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, models.PinStats{TotalPins: 5, UsedPins: 2, UnusedPins: 3, CityCount: 2, CategoryCount: 1}, *stats)
}

func TestGroupPinsKeepsOrderAndCounts(t *testing.T) {
	pins := []models.Pin{
		{Name: "a", CaptureDay: "2024-05-02", City: "Lisbon"},
		{Name: "b", CaptureDay: "2024-05-02", City: "Lisbon"},
		{Name: "c", CaptureDay: "2024-05-02", City: "Porto"},
		{Name: "d", CaptureDay: "2024-05-01", City: "Lisbon"},
	}

	groups := groupPins(pins)
	require.Len(t, groups, 3)
	assert.Equal(t, "Lisbon", groups[0].City)
	assert.Equal(t, 2, groups[0].Count)
	assert.Equal(t, "Porto", groups[1].City)
	assert.Equal(t, "2024-05-01", groups[2].Day)
	assert.Equal(t, "d", groups[2].Pins[0].Name)

	assert.Empty(t, groupPins(nil))
}

func TestFindNearbyPinsQuery(t *testing.T) {
	repo, mock := newMockRepo(t)
	owner := uuid.New()
	at := models.Coordinates{Lat: 38.71, Lng: -9.14}
	now := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	pin := models.Pin{
		ID: uuid.New(), UserID: owner, Name: "Miradouro",
		Coordinates: models.Coordinates{Lat: 38.712, Lng: -9.14},
		City:        "Lisbon", CapturedAt: now, CaptureDay: "2024-05-01", CreatedAt: now, UpdatedAt: now,
	}

	mock.ExpectQuery(`WHERE user_id = \$1 AND consumed = FALSE.*ST_DWithin\(location, .*\$4, false\).*ORDER BY distance_m ASC, id ASC.*LIMIT \$5`).
		WithArgs(owner, at.Lng, at.Lat, 1000.0, 10).
		WillReturnRows(pgxmock.NewRows(append(append([]string{}, pinColumnNames...), "distance_m")).
			AddRow(append(pinRow(pin), 222.4)...))

	got, err := repo.FindNearbyPins(context.Background(), owner, at, 1000, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, pin.ID, got[0].ID)
	assert.InDelta(t, 222.4, got[0].DistanceMeters, 1e-9)
	assert.Equal(t, []string{}, got[0].Types)
	assert.NoError(t, mock.ExpectationsWereMet())
}
