package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-routes/internal/pkg/config"
	"github.com/FACorreiaa/loci-routes/internal/pkg/events"
)

func newTestRouter(t *testing.T) (*gin.Engine, pgxmock.PgxPoolIface) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	cfg := &config.Config{
		JWT:             config.JWTConfig{SecretKey: "test-secret"},
		Places:          config.PlacesConfig{CacheTTL: time.Minute},
		RateLimit:       config.RateLimitConfig{PerMinute: 600, Burst: 50},
		PageSize:        10,
		CaptureTimezone: time.UTC,
	}
	r := gin.New()
	limiter := Setup(r, Dependencies{Pool: pool, Config: cfg, Publisher: events.NopPublisher{}, Logger: zap.NewNop()})
	t.Cleanup(limiter.Stop)
	return r, pool
}

func TestHealth(t *testing.T) {
	r, pool := newTestRouter(t)
	pool.ExpectPing()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestProtectedRoutesRejectAnonymousCallers(t *testing.T) {
	r, _ := newTestRouter(t)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/pins"},
		{http.MethodGet, "/api/pins/grouped"},
		{http.MethodGet, "/api/pins/nearby?lat=1&lng=1"},
		{http.MethodPost, "/api/routes/from-pins"},
		{http.MethodDelete, "/api/routes/0b5b1c1e-7c53-4f38-9a77-08d1b4b2e1a1"},
		{http.MethodPost, "/api/routes/0b5b1c1e-7c53-4f38-9a77-08d1b4b2e1a1/favorite"},
		{http.MethodGet, "/api/users/me/stats"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestPlacesDisabledWithoutKey(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/places/search?query=tram", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/places/autocomplete?input=tram", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/places/reverse-geocode?lat=38.7&lng=-9.1", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/places/types", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"value":"tourist_attraction"`)
}

func TestUnknownRoute(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
