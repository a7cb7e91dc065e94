package nearby

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-routes/internal/app/handlers"
	"github.com/FACorreiaa/loci-routes/internal/app/models"
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

// NearbyPins handles GET /api/pins/nearby
func (h *Handler) NearbyPins(c *gin.Context) {
	owner, ok := h.Caller(c)
	if !ok {
		return
	}
	lat, ok := h.FloatQuery(c, "lat")
	if !ok {
		return
	}
	lng, ok := h.FloatQuery(c, "lng")
	if !ok {
		return
	}
	if lat == nil || lng == nil {
		h.Fail(c, models.NewValidationError("lat", "lat and lng are required"))
		return
	}
	radius, ok := h.FloatQuery(c, "radius")
	if !ok {
		return
	}
	limit, ok := h.IntQuery(c, "limit", DefaultLimit)
	if !ok {
		return
	}

	var radiusMeters float64
	if radius != nil {
		radiusMeters = *radius
	}
	pins, err := h.service.NearbyPins(c.Request.Context(), owner, models.Coordinates{Lat: *lat, Lng: *lng}, radiusMeters, limit)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pins": pins, "count": len(pins)})
}
