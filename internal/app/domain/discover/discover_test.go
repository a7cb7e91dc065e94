package discover

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-routes/internal/app/models"
)

func TestBuildPageQueryFilterAndSort(t *testing.T) {
	viewer := uuid.New()
	q := ListQuery{
		Filter: models.RouteFilter{City: "par"},
		Sort:   models.SortLikes,
		Page:   models.PageRequest{Page: 2, PageSize: 20},
		Viewer: viewer,
	}

	sql, args, err := buildPageQuery(q).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "fv.user_id = $1) AS is_favorited")
	assert.Contains(t, sql, "r.is_public = $2")
	assert.Contains(t, sql, "r.city ILIKE $3")
	assert.Contains(t, sql, "ORDER BY likes_count DESC, r.created_at DESC, r.id DESC")
	assert.Contains(t, sql, "LIMIT 20")
	assert.Contains(t, sql, "OFFSET 20")
	assert.Equal(t, []any{viewer, true, "%par%"}, args)
}

func TestWhereClauseComposition(t *testing.T) {
	owner, fan := uuid.New(), uuid.New()

	tests := []struct {
		name        string
		filter      models.RouteFilter
		contains    []string
		notContains []string
		args        []any
	}{
		{
			name:     "public only by default",
			filter:   models.RouteFilter{},
			contains: []string{"r.is_public = ?"},
			args:     []any{true},
		},
		{
			name:   "text search spans title and description",
			filter: models.RouteFilter{Query: "tile", Category: models.CategoryCulture},
			contains: []string{
				"r.category = ?",
				"(r.title ILIKE ? OR r.description ILIKE ?)",
			},
			args: []any{true, "culture", "%tile%", "%tile%"},
		},
		{
			name:        "owner listing lifts the public clause",
			filter:      models.RouteFilter{OwnerID: &owner, Country: "portugal"},
			contains:    []string{"r.user_id = ?", "r.country ILIKE ?"},
			notContains: []string{"is_public"},
			args:        []any{owner, "%portugal%"},
		},
		{
			name:     "favorites stay public",
			filter:   models.RouteFilter{FavoritedBy: &fan},
			contains: []string{"r.is_public = ?", "fb.user_id = ?"},
			args:     []any{true, fan},
		},
		{
			name:     "wildcards are escaped",
			filter:   models.RouteFilter{City: "50%_off"},
			contains: []string{"r.city ILIKE ?"},
			args:     []any{true, `%50\%\_off%`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := whereClause(tt.filter).ToSql()
			require.NoError(t, err)
			for _, s := range tt.contains {
				assert.Contains(t, sql, s)
			}
			for _, s := range tt.notContains {
				assert.NotContains(t, sql, s)
			}
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestOrderByAlwaysTieBreaksOnID(t *testing.T) {
	for _, k := range []models.SortKey{
		models.SortLatest, models.SortOldest, models.SortLikes, models.SortViews, models.SortPopular, sortRecentlyUpdated,
	} {
		keys := orderBy(k)
		assert.Contains(t, keys[len(keys)-1], "r.id", string(k))
	}
	assert.Equal(t, []string{"likes_count DESC", "r.view_count DESC", "r.created_at DESC", "r.id DESC"}, orderBy(models.SortPopular))
}

func TestCountQueryIgnoresPaging(t *testing.T) {
	sql, _, err := buildCountQuery(models.RouteFilter{City: "x"}).ToSql()
	require.NoError(t, err)
	assert.NotContains(t, sql, "LIMIT")
	assert.Contains(t, sql, "SELECT COUNT(*) FROM routes r")
}

func TestListRoutesSkipsPageQueryPastTheEnd(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()
	repo := NewRepository(mockPool, zap.NewNop())

	mockPool.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM routes r")).
		WithArgs(true).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(5)))

	items, total, err := repo.ListRoutes(context.Background(), ListQuery{
		Page: models.PageRequest{Page: 3, PageSize: 20},
	})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, int64(5), total)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) ListRoutes(ctx context.Context, q ListQuery) ([]models.Route, int64, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]models.Route), args.Get(1).(int64), args.Error(2)
}

func TestListRoutesPaging(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, 20, zap.NewNop())

	repo.On("ListRoutes", mock.Anything, mock.MatchedBy(func(q ListQuery) bool {
		return q.Page.Page == 1 && q.Page.PageSize == 20 && q.Sort == models.SortLatest && q.Viewer == uuid.Nil
	})).Return(make([]models.Route, 20), int64(41), nil).Once()

	page, err := svc.ListRoutes(context.Background(), models.RouteFilter{}, "", models.PageRequest{Page: 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, int64(41), page.TotalCount)
	assert.Equal(t, 3, page.TotalPages)
	repo.AssertExpectations(t)
}

func TestListRoutesIgnoresScopeFromCaller(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, 10, zap.NewNop())
	sneaky := uuid.New()
	caller := uuid.New()

	repo.On("ListRoutes", mock.Anything, mock.MatchedBy(func(q ListQuery) bool {
		return q.Filter.OwnerID == nil && q.Filter.FavoritedBy == nil && q.Viewer == caller
	})).Return([]models.Route{}, int64(0), nil).Once()

	_, err := svc.ListRoutes(context.Background(), models.RouteFilter{OwnerID: &sneaky}, models.SortViews, models.PageRequest{Page: 1}, &caller)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestListUserRoutesRestrictsSort(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, 10, zap.NewNop())
	owner := uuid.New()

	repo.On("ListRoutes", mock.Anything, mock.MatchedBy(func(q ListQuery) bool {
		return q.Sort == models.SortLatest && *q.Filter.OwnerID == owner
	})).Return([]models.Route{}, int64(0), nil).Once()

	_, err := svc.ListUserRoutes(context.Background(), owner, "", models.SortLikes, models.PageRequest{Page: 1})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestListFavoriteRoutesError(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, 10, zap.NewNop())

	repo.On("ListRoutes", mock.Anything, mock.Anything).Return(nil, int64(0), errors.New("timeout")).Once()

	_, err := svc.ListFavoriteRoutes(context.Background(), uuid.New(), models.PageRequest{Page: 1})
	assert.ErrorContains(t, err, "timeout")
}
