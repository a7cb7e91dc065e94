package discover

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
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

// ListRoutes handles GET /api/routes
func (h *Handler) ListRoutes(c *gin.Context) {
	page, ok := h.PageQuery(c)
	if !ok {
		return
	}
	filter := models.RouteFilter{
		City:    c.Query("city"),
		Country: c.Query("country"),
		Query:   c.Query("q"),
	}
	if raw := strings.TrimSpace(c.Query("category")); raw != "" {
		category, err := models.ParseRouteCategory(raw)
		if err != nil {
			h.Fail(c, err)
			return
		}
		filter.Category = category
	}

	result, err := h.service.ListRoutes(c.Request.Context(), filter, models.SortKey(c.Query("sort")), page, middleware.OptionalCallerID(c))
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListUserRoutes handles GET /api/users/me/routes
func (h *Handler) ListUserRoutes(c *gin.Context) {
	owner, ok := h.Caller(c)
	if !ok {
		return
	}
	page, ok := h.PageQuery(c)
	if !ok {
		return
	}

	result, err := h.service.ListUserRoutes(c.Request.Context(), owner, c.Query("country"), models.SortKey(c.Query("sort")), page)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListFavoriteRoutes handles GET /api/users/me/favorites
func (h *Handler) ListFavoriteRoutes(c *gin.Context) {
	userID, ok := h.Caller(c)
	if !ok {
		return
	}
	page, ok := h.PageQuery(c)
	if !ok {
		return
	}

	result, err := h.service.ListFavoriteRoutes(c.Request.Context(), userID, page)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
