package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-routes/internal/app/models"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.NewValidationError("name", "bad"), http.StatusBadRequest},
		{models.NewInvalidBatchError("bad"), http.StatusBadRequest},
		{models.NewHeterogeneousBatchError("city", "bad"), http.StatusBadRequest},
		{models.NewIncompleteReorderError("bad"), http.StatusBadRequest},
		{models.NewForbiddenError("no"), http.StatusForbidden},
		{fmt.Errorf("wrapped: %w", models.NewNotFoundError("gone")), http.StatusNotFound},
		{models.NewConflictError("dup"), http.StatusConflict},
		{models.NewUpstreamError("places", errors.New("timeout")), http.StatusBadGateway},
		{models.ErrUnauthenticated, http.StatusUnauthorized},
		{errors.New("pq: connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestFailHidesInternalErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewBaseHandler(zap.NewNop())

	r := gin.New()
	r.GET("/internal", func(c *gin.Context) { h.Fail(c, errors.New("relation pins does not exist")) })
	r.GET("/hetero", func(c *gin.Context) {
		h.Fail(c, models.NewHeterogeneousBatchError("day", "pins were captured on different days"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/internal", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "relation pins")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/hetero", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "heterogeneous_batch", body["kind"])
	assert.Equal(t, "day", body["predicate"])
}

func TestCallerRequiresIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewBaseHandler(zap.NewNop())

	r := gin.New()
	r.GET("/", func(c *gin.Context) {
		if _, ok := h.Caller(c); !ok {
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPageQueryRejectsPagesPastTheCap(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewBaseHandler(zap.NewNop())

	r := gin.New()
	r.GET("/", func(c *gin.Context) {
		page, ok := h.PageQuery(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"page": page.Page})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/?page=5534023222112865486", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/?page=%d", models.MaxPage), nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"page":%d}`, models.MaxPage), w.Body.String())
}
