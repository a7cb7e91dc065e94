package pins

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

// DropPin handles POST /api/pins
func (h *Handler) DropPin(c *gin.Context) {
	owner, ok := h.Caller(c)
	if !ok {
		return
	}
	var req models.DropPinRequest
	if !h.BindJSON(c, &req) {
		return
	}

	pin, err := h.service.DropPin(c.Request.Context(), owner, req)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, pin)
}

// ListDailyPins handles GET /api/pins/daily/:date/:city
func (h *Handler) ListDailyPins(c *gin.Context) {
	owner, ok := h.Caller(c)
	if !ok {
		return
	}

	pins, err := h.service.ListDailyPins(c.Request.Context(), owner, c.Param("city"), c.Param("date"))
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pins": pins, "count": len(pins)})
}

// ListGroupedPins handles GET /api/pins/grouped
func (h *Handler) ListGroupedPins(c *gin.Context) {
	owner, ok := h.Caller(c)
	if !ok {
		return
	}
	limit, ok := h.IntQuery(c, "limit", DefaultGroupLimit)
	if !ok {
		return
	}

	groups, err := h.service.ListGroupedPins(c.Request.Context(), owner, limit)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// PinStats handles GET /api/pins/stats
func (h *Handler) PinStats(c *gin.Context) {
	owner, ok := h.Caller(c)
	if !ok {
		return
	}

	stats, err := h.service.PinStats(c.Request.Context(), owner)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// DeletePin handles DELETE /api/pins/:id
func (h *Handler) DeletePin(c *gin.Context) {
	owner, ok := h.Caller(c)
	if !ok {
		return
	}
	pinID, ok := h.UUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.service.DeletePin(c.Request.Context(), owner, pinID); err != nil {
		h.Fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
