package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-routes/internal/app/handlers"
	"github.com/FACorreiaa/loci-routes/internal/app/models"
	"github.com/FACorreiaa/loci-routes/internal/pkg/middleware"
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

type reorderRequest struct {
	StopIDs []uuid.UUID `json:"stop_ids"`
}

// CreateRouteFromPins handles POST /api/routes/from-pins
func (h *Handler) CreateRouteFromPins(c *gin.Context) {
	owner, ok := h.Caller(c)
	if !ok {
		return
	}
	var req models.CreateRouteFromPinsRequest
	if !h.BindJSON(c, &req) {
		return
	}

	route, err := h.service.CreateRouteFromPins(c.Request.Context(), owner, req)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, route)
}

// CreateRoute handles POST /api/routes
func (h *Handler) CreateRoute(c *gin.Context) {
	owner, ok := h.Caller(c)
	if !ok {
		return
	}
	var req models.CreateRouteRequest
	if !h.BindJSON(c, &req) {
		return
	}

	route, err := h.service.CreateRoute(c.Request.Context(), owner, req)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, route)
}

// GetRoute handles GET /api/routes/:id
func (h *Handler) GetRoute(c *gin.Context) {
	routeID, ok := h.UUIDParam(c, "id")
	if !ok {
		return
	}

	route, err := h.service.GetRoute(c.Request.Context(), routeID, middleware.OptionalCallerID(c))
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, route)
}

// UpdateRoute handles PATCH /api/routes/:id
func (h *Handler) UpdateRoute(c *gin.Context) {
	owner, ok := h.Caller(c)
	if !ok {
		return
	}
	routeID, ok := h.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req models.UpdateRouteRequest
	if !h.BindJSON(c, &req) {
		return
	}

	route, err := h.service.UpdateRoute(c.Request.Context(), owner, routeID, req)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, route)
}

// DeleteRoute handles DELETE /api/routes/:id
func (h *Handler) DeleteRoute(c *gin.Context) {
	owner, ok := h.Caller(c)
	if !ok {
		return
	}
	routeID, ok := h.UUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteRoute(c.Request.Context(), owner, routeID); err != nil {
		h.Fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddStop handles POST /api/routes/:id/stops
func (h *Handler) AddStop(c *gin.Context) {
	owner, ok := h.Caller(c)
	if !ok {
		return
	}
	routeID, ok := h.UUIDParam(c, "id")
	if !ok {
		return
	}
	var in models.StopInput
	if !h.BindJSON(c, &in) {
		return
	}

	route, err := h.service.AddStop(c.Request.Context(), owner, routeID, in)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, route)
}

// UpdateStop handles PATCH /api/routes/:id/stops/:stopId
func (h *Handler) UpdateStop(c *gin.Context) {
	owner, ok := h.Caller(c)
	if !ok {
		return
	}
	routeID, ok := h.UUIDParam(c, "id")
	if !ok {
		return
	}
	stopID, ok := h.UUIDParam(c, "stopId")
	if !ok {
		return
	}
	var patch models.StopPatch
	if !h.BindJSON(c, &patch) {
		return
	}

	route, err := h.service.UpdateStop(c.Request.Context(), owner, routeID, stopID, patch)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, route)
}

// RemoveStop handles DELETE /api/routes/:id/stops/:stopId
func (h *Handler) RemoveStop(c *gin.Context) {
	owner, ok := h.Caller(c)
	if !ok {
		return
	}
	routeID, ok := h.UUIDParam(c, "id")
	if !ok {
		return
	}
	stopID, ok := h.UUIDParam(c, "stopId")
	if !ok {
		return
	}

	route, err := h.service.RemoveStop(c.Request.Context(), owner, routeID, stopID)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, route)
}

// ReorderStops handles PUT /api/routes/:id/stops/order
func (h *Handler) ReorderStops(c *gin.Context) {
	owner, ok := h.Caller(c)
	if !ok {
		return
	}
	routeID, ok := h.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req reorderRequest
	if !h.BindJSON(c, &req) {
		return
	}

	route, err := h.service.ReorderStops(c.Request.Context(), owner, routeID, req.StopIDs)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, route)
}

// ShareRoute handles POST /api/routes/:id/share
func (h *Handler) ShareRoute(c *gin.Context) {
	routeID, ok := h.UUIDParam(c, "id")
	if !ok {
		return
	}

	count, err := h.service.ShareRoute(c.Request.Context(), routeID)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"share_count": count})
}
