package engagement

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
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

type stateOp func(ctx context.Context, routeID, userID uuid.UUID) (*models.EngagementState, error)

func (h *Handler) handle(op stateOp) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := h.Caller(c)
		if !ok {
			return
		}
		routeID, ok := h.UUIDParam(c, "id")
		if !ok {
			return
		}

		state, err := op(c.Request.Context(), routeID, userID)
		if err != nil {
			h.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, state)
	}
}

// Like handles POST /api/routes/:id/like
func (h *Handler) Like() gin.HandlerFunc { return h.handle(h.service.Like) }

// Unlike handles DELETE /api/routes/:id/like
func (h *Handler) Unlike() gin.HandlerFunc { return h.handle(h.service.Unlike) }

// Favorite handles POST /api/routes/:id/favorite
func (h *Handler) Favorite() gin.HandlerFunc { return h.handle(h.service.Favorite) }

// Unfavorite handles DELETE /api/routes/:id/favorite
func (h *Handler) Unfavorite() gin.HandlerFunc { return h.handle(h.service.Unfavorite) }

// IsFavorited handles GET /api/routes/:id/favorite
func (h *Handler) IsFavorited(c *gin.Context) {
	userID, ok := h.Caller(c)
	if !ok {
		return
	}
	routeID, ok := h.UUIDParam(c, "id")
	if !ok {
		return
	}

	favorited, err := h.service.IsFavorited(c.Request.Context(), routeID, userID)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"route_id": routeID, "is_favorited": favorited})
}
