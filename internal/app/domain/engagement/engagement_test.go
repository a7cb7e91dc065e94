package engagement

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-routes/internal/app/models"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) RouteAccess(ctx context.Context, routeID uuid.UUID) (uuid.UUID, bool, error) {
	args := m.Called(ctx, routeID)
	return args.Get(0).(uuid.UUID), args.Bool(1), args.Error(2)
}

func (m *MockRepository) Add(ctx context.Context, set Set, routeID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, set, routeID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) Remove(ctx context.Context, set Set, routeID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, set, routeID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) State(ctx context.Context, routeID, userID uuid.UUID) (*models.EngagementState, error) {
	args := m.Called(ctx, routeID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EngagementState), args.Error(1)
}

func TestLike(t *testing.T) {
	owner, user, routeID := uuid.New(), uuid.New(), uuid.New()

	tests := []struct {
		name     string
		isPublic bool
		caller   uuid.UUID
		wantErr  error
	}{
		{"public route", true, user, nil},
		{"own private route", false, owner, nil},
		{"someone else's private route", false, user, models.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			svc := NewService(repo, zap.NewNop())

			repo.On("RouteAccess", mock.Anything, routeID).Return(owner, tt.isPublic, nil).Once()
			if tt.wantErr == nil {
				repo.On("Add", mock.Anything, Likes, routeID, tt.caller).Return(true, nil).Once()
				repo.On("State", mock.Anything, routeID, tt.caller).
					Return(&models.EngagementState{RouteID: routeID, LikesCount: 1, IsLiked: true}, nil).Once()
			}

			state, err := svc.Like(context.Background(), routeID, tt.caller)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
				repo.AssertNotCalled(t, "Add", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			assert.True(t, state.IsLiked)
			repo.AssertExpectations(t)
		})
	}
}

func TestLikeTwiceIsANoOp(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, zap.NewNop())
	owner, user, routeID := uuid.New(), uuid.New(), uuid.New()

	repo.On("RouteAccess", mock.Anything, routeID).Return(owner, true, nil).Twice()
	repo.On("Add", mock.Anything, Likes, routeID, user).Return(true, nil).Once()
	repo.On("Add", mock.Anything, Likes, routeID, user).Return(false, nil).Once()
	repo.On("State", mock.Anything, routeID, user).
		Return(&models.EngagementState{RouteID: routeID, LikesCount: 1, IsLiked: true}, nil).Twice()

	first, err := svc.Like(context.Background(), routeID, user)
	require.NoError(t, err)
	second, err := svc.Like(context.Background(), routeID, user)
	require.NoError(t, err)
	assert.Equal(t, first.LikesCount, second.LikesCount)
}

func TestFavoriteRequiresPublicRoute(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, zap.NewNop())
	owner, routeID := uuid.New(), uuid.New()

	repo.On("RouteAccess", mock.Anything, routeID).Return(owner, false, nil).Once()

	_, err := svc.Favorite(context.Background(), routeID, owner)
	assert.True(t, errors.Is(err, models.ErrForbidden))
	repo.AssertNotCalled(t, "Add", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUnfavoriteWorksAfterRouteWentPrivate(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, zap.NewNop())
	owner, user, routeID := uuid.New(), uuid.New(), uuid.New()

	repo.On("RouteAccess", mock.Anything, routeID).Return(owner, false, nil).Once()
	repo.On("Remove", mock.Anything, Favorites, routeID, user).Return(true, nil).Once()
	repo.On("State", mock.Anything, routeID, user).Return(&models.EngagementState{RouteID: routeID}, nil).Once()

	state, err := svc.Unfavorite(context.Background(), routeID, user)
	require.NoError(t, err)
	assert.False(t, state.IsFavorited)
}

func TestIsFavoritedMissingRoute(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, zap.NewNop())
	routeID := uuid.New()

	repo.On("RouteAccess", mock.Anything, routeID).Return(uuid.Nil, false, models.NewNotFoundError("route not found")).Once()

	_, err := svc.IsFavorited(context.Background(), routeID, uuid.New())
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestRepositoryAddUsesSetSemantics(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()
	repo := NewRepository(mockPool, zap.NewNop())
	routeID, userID := uuid.New(), uuid.New()

	mockPool.ExpectExec(regexp.QuoteMeta("INSERT INTO route_likes (route_id, user_id) VALUES ($1, $2) ON CONFLICT (route_id, user_id) DO NOTHING")).
		WithArgs(routeID, userID).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	changed, err := repo.Add(context.Background(), Likes, routeID, userID)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRepositoryAddOnDeletedRoute(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()
	repo := NewRepository(mockPool, zap.NewNop())
	routeID, userID := uuid.New(), uuid.New()

	mockPool.ExpectExec("INSERT INTO route_favorites").
		WithArgs(routeID, userID).
		WillReturnError(&pgconn.PgError{Code: "23503"})

	_, err = repo.Add(context.Background(), Favorites, routeID, userID)
	assert.True(t, errors.Is(err, models.ErrNotFound))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRepositoryRejectsUnknownSet(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()
	repo := NewRepository(mockPool, zap.NewNop())

	_, err = repo.Remove(context.Background(), Set("users; --"), uuid.New(), uuid.New())
	assert.Error(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func newEngagementRouter(repo *MockRepository, caller *uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(NewService(repo, zap.NewNop()), zap.NewNop())
	r := gin.New()
	if caller != nil {
		r.Use(func(c *gin.Context) { c.Set("user_id", *caller) })
	}
	r.POST("/api/routes/:id/like", h.Like())
	r.POST("/api/routes/:id/favorite", h.Favorite())
	r.GET("/api/routes/:id/favorite", h.IsFavorited)
	return r
}

func TestHandlers(t *testing.T) {
	owner, user, routeID := uuid.New(), uuid.New(), uuid.New()

	t.Run("like returns the derived state", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("RouteAccess", mock.Anything, routeID).Return(owner, true, nil).Once()
		repo.On("Add", mock.Anything, Likes, routeID, user).Return(true, nil).Once()
		repo.On("State", mock.Anything, routeID, user).
			Return(&models.EngagementState{RouteID: routeID, LikesCount: 3, IsLiked: true}, nil).Once()

		w := httptest.NewRecorder()
		newEngagementRouter(repo, &user).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/routes/"+routeID.String()+"/like", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var state models.EngagementState
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
		assert.Equal(t, int64(3), state.LikesCount)
		assert.True(t, state.IsLiked)
	})

	t.Run("anonymous callers are rejected", func(t *testing.T) {
		repo := new(MockRepository)
		w := httptest.NewRecorder()
		newEngagementRouter(repo, nil).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/routes/"+routeID.String()+"/like", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		repo.AssertNotCalled(t, "RouteAccess", mock.Anything, mock.Anything)
	})

	t.Run("malformed route id", func(t *testing.T) {
		w := httptest.NewRecorder()
		newEngagementRouter(new(MockRepository), &user).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/routes/nope/like", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("favoriting a private route is forbidden", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("RouteAccess", mock.Anything, routeID).Return(owner, false, nil).Once()

		w := httptest.NewRecorder()
		newEngagementRouter(repo, &owner).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/routes/"+routeID.String()+"/favorite", nil))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("is favorited", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("RouteAccess", mock.Anything, routeID).Return(owner, true, nil).Once()
		repo.On("State", mock.Anything, routeID, user).
			Return(&models.EngagementState{RouteID: routeID, FavoritesCount: 1, IsFavorited: true}, nil).Once()

		w := httptest.NewRecorder()
		newEngagementRouter(repo, &user).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/routes/"+routeID.String()+"/favorite", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			IsFavorited bool `json:"is_favorited"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.True(t, body.IsFavorited)
	})
}
