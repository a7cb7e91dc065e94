package places

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

// coordinateQuery reads lat/lng. Both or neither must be present.
func (h *Handler) coordinateQuery(c *gin.Context) (*models.Coordinates, bool) {
	lat, ok := h.FloatQuery(c, "lat")
	if !ok {
		return nil, false
	}
	lng, ok := h.FloatQuery(c, "lng")
	if !ok {
		return nil, false
	}
	if lat == nil && lng == nil {
		return nil, true
	}
	if lat == nil || lng == nil {
		h.Fail(c, models.NewValidationError("lat", "lat and lng must be given together"))
		return nil, false
	}
	return &models.Coordinates{Lat: *lat, Lng: *lng}, true
}

// SearchPlaces handles GET /api/places/search
func (h *Handler) SearchPlaces(c *gin.Context) {
	near, ok := h.coordinateQuery(c)
	if !ok {
		return
	}
	radius, ok := h.IntQuery(c, "radius", DefaultRadiusMeters)
	if !ok {
		return
	}

	places, err := h.service.SearchPlaces(c.Request.Context(), c.Query("query"), near, radius)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"places": places})
}

// NearbyPlaces handles GET /api/places/nearby
func (h *Handler) NearbyPlaces(c *gin.Context) {
	at, ok := h.coordinateQuery(c)
	if !ok {
		return
	}
	if at == nil {
		h.Fail(c, models.NewValidationError("lat", "lat and lng are required"))
		return
	}
	radius, ok := h.IntQuery(c, "radius", DefaultRadiusMeters)
	if !ok {
		return
	}

	places, err := h.service.NearbyPlaces(c.Request.Context(), *at, radius, c.Query("keyword"))
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"places": places})
}

// PlaceDetails handles GET /api/places/details/:placeId
func (h *Handler) PlaceDetails(c *gin.Context) {
	place, err := h.service.PlaceDetails(c.Request.Context(), c.Param("placeId"))
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, place)
}

// Autocomplete handles GET /api/places/autocomplete
func (h *Handler) Autocomplete(c *gin.Context) {
	near, ok := h.coordinateQuery(c)
	if !ok {
		return
	}
	radius, ok := h.IntQuery(c, "radius", DefaultRadiusMeters)
	if !ok {
		return
	}

	predictions, err := h.service.Autocomplete(c.Request.Context(), c.Query("input"), near, radius, c.Query("types"))
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"predictions": predictions})
}

// ReverseGeocode handles GET /api/places/reverse-geocode
func (h *Handler) ReverseGeocode(c *gin.Context) {
	at, ok := h.coordinateQuery(c)
	if !ok {
		return
	}
	if at == nil {
		h.Fail(c, models.NewValidationError("lat", "lat and lng are required"))
		return
	}

	results, err := h.service.ReverseGeocode(c.Request.Context(), *at)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// PlaceTypes handles GET /api/places/types
func (h *Handler) PlaceTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"types": h.service.PlaceTypes()})
}
