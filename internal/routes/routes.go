package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-routes/internal/app/domain/discover"
	"github.com/FACorreiaa/loci-routes/internal/app/domain/engagement"
	"github.com/FACorreiaa/loci-routes/internal/app/domain/nearby"
	"github.com/FACorreiaa/loci-routes/internal/app/domain/pins"
	"github.com/FACorreiaa/loci-routes/internal/app/domain/places"
	routesPkg "github.com/FACorreiaa/loci-routes/internal/app/domain/routes"
	"github.com/FACorreiaa/loci-routes/internal/app/domain/statistics"
	database "github.com/FACorreiaa/loci-routes/internal/db"
	"github.com/FACorreiaa/loci-routes/internal/pkg/config"
	"github.com/FACorreiaa/loci-routes/internal/pkg/events"
	"github.com/FACorreiaa/loci-routes/internal/pkg/middleware"
)

type AppHandlers struct {
	Pins       *pins.Handler
	Routes     *routesPkg.Handler
	Engagement *engagement.Handler
	Discover   *discover.Handler
	Statistics *statistics.Handler
	Nearby     *nearby.Handler
	Places     *places.Handler
}

// Dependencies are the process-wide resources the HTTP surface is built on.
type Dependencies struct {
	Pool      database.Pool
	Config    *config.Config
	Publisher events.Publisher
	Logger    *zap.Logger
}

// Setup wires repositories, services and handlers and registers the /api
// routes on r. The returned limiter must be stopped on shutdown.
func Setup(r *gin.Engine, deps Dependencies) *middleware.RateLimiter {
	handlers := setupDependencies(deps)
	limiter := middleware.NewRateLimiter(deps.Logger, deps.Config.RateLimit.PerMinute, deps.Config.RateLimit.Burst)
	setupRouter(r, handlers, deps, limiter)
	return limiter
}

// The place service doubles as the pin geocoder.
var _ pins.Geocoder = (*places.ServiceImpl)(nil)

func newPlaceClient(cfg config.PlacesConfig, log *zap.Logger) places.Client {
	if !cfg.Enabled() {
		log.Info("No place provider key configured, place lookup is disabled")
		return places.DisabledClient{}
	}
	return places.NewHTTPClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout, log)
}

func setupDependencies(deps Dependencies) *AppHandlers {
	cfg, log := deps.Config, deps.Logger

	// Repositories
	pinRepo := pins.NewRepository(deps.Pool, log)
	routeRepo := routesPkg.NewRepository(deps.Pool, log)
	engagementRepo := engagement.NewRepository(deps.Pool, log)
	discoverRepo := discover.NewRepository(deps.Pool, log)
	statisticsRepo := statistics.NewRepository(deps.Pool, log)

	// Services
	placesService := places.NewService(newPlaceClient(cfg.Places, log), cfg.Places.CacheTTL, log)
	pinService := pins.NewService(pinRepo, placesService, cfg.CaptureTimezone, log)
	routeService := routesPkg.NewService(routeRepo, pinRepo, deps.Publisher, log)
	engagementService := engagement.NewService(engagementRepo, log)
	discoverService := discover.NewService(discoverRepo, cfg.PageSize, log)
	statisticsService := statistics.NewService(statisticsRepo, log)
	nearbyService := nearby.NewService(pinRepo, log)

	return &AppHandlers{
		Pins:       pins.NewHandler(pinService, log),
		Routes:     routesPkg.NewHandler(routeService, log),
		Engagement: engagement.NewHandler(engagementService, log),
		Discover:   discover.NewHandler(discoverService, log),
		Statistics: statistics.NewHandler(statisticsService, log),
		Nearby:     nearby.NewHandler(nearbyService, log),
		Places:     places.NewHandler(placesService, log),
	}
}

func setupRouter(r *gin.Engine, h *AppHandlers, deps Dependencies, limiter *middleware.RateLimiter) {
	// Every route resolves the caller when a valid token is present.
	api := r.Group("/api")
	api.Use(middleware.JWTAuthMiddleware(middleware.JWTConfig{
		SecretKey: deps.Config.JWT.SecretKey,
		Logger:    deps.Logger,
		Optional:  true,
	}))

	requireAuth := middleware.RequireAuthMiddleware()
	limitWrites := limiter.Middleware()

	api.GET("/health", healthHandler(deps.Pool))

	// Pins
	pinsGroup := api.Group("/pins", requireAuth)
	{
		pinsGroup.POST("", limitWrites, h.Pins.DropPin)
		pinsGroup.GET("/daily/:date/:city", h.Pins.ListDailyPins)
		pinsGroup.GET("/grouped", h.Pins.ListGroupedPins)
		pinsGroup.GET("/nearby", h.Nearby.NearbyPins)
		pinsGroup.GET("/stats", h.Pins.PinStats)
		pinsGroup.DELETE("/:id", limitWrites, h.Pins.DeletePin)
	}

	// Routes: public reads
	routesGroup := api.Group("/routes")
	{
		routesGroup.GET("", h.Discover.ListRoutes)
		routesGroup.GET("/popular-places", h.Statistics.PopularPlaces)
		routesGroup.GET("/stats", h.Statistics.Stats)
		routesGroup.GET("/:id", h.Routes.GetRoute)
		routesGroup.POST("/:id/share", limitWrites, h.Routes.ShareRoute)
	}

	// Routes: owner and engagement writes
	authed := routesGroup.Group("", requireAuth)
	{
		authed.POST("", limitWrites, h.Routes.CreateRoute)
		authed.POST("/from-pins", limitWrites, h.Routes.CreateRouteFromPins)
		authed.PATCH("/:id", limitWrites, h.Routes.UpdateRoute)
		authed.DELETE("/:id", limitWrites, h.Routes.DeleteRoute)

		authed.POST("/:id/stops", limitWrites, h.Routes.AddStop)
		authed.PUT("/:id/stops/order", limitWrites, h.Routes.ReorderStops)
		authed.PATCH("/:id/stops/:stopId", limitWrites, h.Routes.UpdateStop)
		authed.DELETE("/:id/stops/:stopId", limitWrites, h.Routes.RemoveStop)

		authed.POST("/:id/like", limitWrites, h.Engagement.Like())
		authed.DELETE("/:id/like", limitWrites, h.Engagement.Unlike())
		authed.POST("/:id/favorite", limitWrites, h.Engagement.Favorite())
		authed.DELETE("/:id/favorite", limitWrites, h.Engagement.Unfavorite())
		authed.GET("/:id/favorite", h.Engagement.IsFavorited)
	}

	// Current user
	me := api.Group("/users/me", requireAuth)
	{
		me.GET("/routes", h.Discover.ListUserRoutes)
		me.GET("/favorites", h.Discover.ListFavoriteRoutes)
		me.GET("/stats", h.Statistics.UserStats)
	}

	// Place lookup
	placesGroup := api.Group("/places")
	{
		placesGroup.GET("/search", h.Places.SearchPlaces)
		placesGroup.GET("/nearby", h.Places.NearbyPlaces)
		placesGroup.GET("/details/:placeId", h.Places.PlaceDetails)
		placesGroup.GET("/autocomplete", h.Places.Autocomplete)
		placesGroup.GET("/reverse-geocode", h.Places.ReverseGeocode)
		placesGroup.GET("/types", h.Places.PlaceTypes)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "kind": "not_found"})
	})
}

func healthHandler(pool database.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "ok"})
	}
}
