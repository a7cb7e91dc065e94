package statistics

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-routes/internal/app/handlers"
)

type Handler struct {
	*handlers.BaseHandler
	service Service
}

func NewHandler(service Service, log *zap.Logger) *Handler {
	return &Handler{
		BaseHandler: handlers.NewBaseHandler(log),
		service:     service,
	}
}

// PopularPlaces handles GET /api/routes/popular-places
func (h *Handler) PopularPlaces(c *gin.Context) {
	limit, ok := h.IntQuery(c, "limit", DefaultPopularLimit)
	if !ok {
		return
	}

	places, err := h.service.PopularPlaces(c.Request.Context(), limit)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"places": places})
}

// Stats handles GET /api/routes/stats
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// UserStats handles GET /api/users/me/stats
func (h *Handler) UserStats(c *gin.Context) {
	owner, ok := h.Caller(c)
	if !ok {
		return
	}

	stats, err := h.service.UserStats(c.Request.Context(), owner)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
