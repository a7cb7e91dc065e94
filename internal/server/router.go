package server

import (
	"github.com/gin-gonic/gin"

	"github.com/FACorreiaa/loci-routes/internal/pkg/middleware"
	"github.com/FACorreiaa/loci-routes/internal/routes"
)

// SetupRouter configures the Gin engine with the middleware chain and the
// /api routes. The returned limiter must be stopped on shutdown.
func SetupRouter(deps routes.Dependencies) (*gin.Engine, *middleware.RateLimiter) {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.OTELGinMiddleware(deps.Config.Observability.ServiceName))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORSMiddleware(deps.Config.CORSOrigins))

	limiter := routes.Setup(r, deps)
	return r, limiter
}
