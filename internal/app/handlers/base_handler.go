package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-routes/internal/app/models"
	"github.com/FACorreiaa/loci-routes/internal/pkg/middleware"
)

type BaseHandler struct {
	Logger *zap.Logger
}

func NewBaseHandler(logger *zap.Logger) *BaseHandler {
	return &BaseHandler{Logger: logger}
}

type errorBody struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Predicate string `json:"predicate,omitempty"`
}

// StatusFor maps an error's kind to the HTTP status it is reported with.
func StatusFor(err error) int {
	switch models.KindOf(err) {
	case models.ErrValidation, models.ErrInvalidBatch, models.ErrHeterogeneousBatch, models.ErrIncompleteReorder:
		return http.StatusBadRequest
	case models.ErrUnauthenticated:
		return http.StatusUnauthorized
	case models.ErrForbidden:
		return http.StatusForbidden
	case models.ErrNotFound:
		return http.StatusNotFound
	case models.ErrConflict:
		return http.StatusConflict
	case models.ErrUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func kindName(err error) string {
	switch models.KindOf(err) {
	case models.ErrValidation:
		return "validation"
	case models.ErrInvalidBatch:
		return "invalid_batch"
	case models.ErrHeterogeneousBatch:
		return "heterogeneous_batch"
	case models.ErrIncompleteReorder:
		return "incomplete_reorder"
	case models.ErrUnauthenticated:
		return "unauthenticated"
	case models.ErrForbidden:
		return "forbidden"
	case models.ErrNotFound:
		return "not_found"
	case models.ErrConflict:
		return "conflict"
	case models.ErrUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Fail writes err as a JSON error. Unclassified errors are logged and reported
// with a generic message.
func (h *BaseHandler) Fail(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("Request failed",
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
			zap.Error(err))
	}
	body := errorBody{Error: models.PublicMessage(err), Kind: kindName(err)}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		body.Predicate = appErr.Predicate
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

// Caller returns the authenticated caller or writes 401.
func (h *BaseHandler) Caller(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.CallerID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "authentication required", Kind: "unauthenticated"})
		return uuid.Nil, false
	}
	return id, true
}

// UUIDParam parses a path parameter, writing 400 when it is malformed.
func (h *BaseHandler) UUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.Fail(c, models.NewValidationError(name, "invalid id"))
		return uuid.Nil, false
	}
	return id, true
}

// BindJSON decodes the body, writing 400 on malformed JSON.
func (h *BaseHandler) BindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.Fail(c, models.NewValidationError("body", "invalid request body"))
		return false
	}
	return true
}

// IntQuery reads an optional integer query parameter.
func (h *BaseHandler) IntQuery(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		h.Fail(c, models.NewValidationError(name, "must be an integer"))
		return 0, false
	}
	return v, true
}

// FloatQuery reads an optional float query parameter.
func (h *BaseHandler) FloatQuery(c *gin.Context, name string) (*float64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		h.Fail(c, models.NewValidationError(name, "must be a number"))
		return nil, false
	}
	return &v, true
}

// PageQuery reads the 1-indexed page. Page size is fixed by configuration.
func (h *BaseHandler) PageQuery(c *gin.Context) (models.PageRequest, bool) {
	page, ok := h.IntQuery(c, "page", 1)
	if !ok {
		return models.PageRequest{}, false
	}
	if page > models.MaxPage {
		h.Fail(c, models.NewValidationError("page", fmt.Sprintf("must be at most %d", models.MaxPage)))
		return models.PageRequest{}, false
	}
	return models.PageRequest{Page: page}, true
}
