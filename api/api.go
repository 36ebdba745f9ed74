// Package api exposes the bike-share services over HTTP.
package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/semanticallynull/bikeshare-backend/bike"
	"github.com/semanticallynull/bikeshare-backend/customer"
	"github.com/semanticallynull/bikeshare-backend/internal/middleware"
	"github.com/semanticallynull/bikeshare-backend/internal/o11y"
	"github.com/semanticallynull/bikeshare-backend/otp"
	"github.com/semanticallynull/bikeshare-backend/ride"
	"github.com/semanticallynull/bikeshare-backend/station"
)

// Services are the domain services behind the routes.
type Services struct {
	Bikes    *bike.Inventory
	Stations *station.Directory
	Rides    *ride.Lifecycle
	OTP      *otp.Issuer
	Accounts *customer.Accounts
	// Live upgrades /ws connections into the notification registry.
	Live http.Handler
}

type Config struct {
	// Auth guards /api/v1 when set.
	Auth gin.HandlerFunc

	MetricsUsername string
	MetricsPassword string

	// CORSOrigins lists the browser origins allowed to call the API. Empty
	// allows any origin.
	CORSOrigins []string
}

type API struct {
	r   *gin.Engine
	svc Services
}

func New(svc Services, obs *o11y.Observability, cfg Config) *API {
	a := &API{
		r:   gin.New(),
		svc: svc,
	}
	// Handlers pass the gin context on; its values must reach the request
	// context so spans nest under the server span.
	a.r.ContextWithFallback = true

	registry := obs.Registry
	a.r.Use(gin.Recovery(), middleware.Tracing(), middleware.Logging(obs.Logger), middleware.Metrics(registry))
	a.r.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	a.r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	metrics := gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	if cfg.MetricsUsername != "" {
		a.r.GET("/metrics", gin.BasicAuth(gin.Accounts{cfg.MetricsUsername: cfg.MetricsPassword}), metrics)
	} else {
		a.r.GET("/metrics", metrics)
	}

	if svc.Live != nil {
		a.r.GET("/ws", gin.WrapH(svc.Live))
	}

	v1 := a.r.Group("/api/v1")
	if cfg.Auth != nil {
		v1.Use(cfg.Auth)
	}
	{
		v1.GET("/me", a.meHandler)

		v1.GET("/bikes", a.bikesHandler)
		v1.POST("/bikes/generate-otp", a.generateOTPHandler)
		v1.POST("/bikes/verify-otp", a.verifyOTPHandler)

		v1.POST("/rides/start", a.startRideHandler)
		v1.POST("/rides/end", a.endRideHandler)
		v1.GET("/rides/current", a.currentRideHandler)
		v1.GET("/rides/user/:userId/summary", a.rideSummaryHandler)
		v1.GET("/users/:userId/rides", a.rideHistoryHandler)

		v1.GET("/stations", a.stationsHandler)
		v1.POST("/stations", a.createStationHandler)
		v1.GET("/stations/nearest", a.nearestStationsHandler)

		v1.GET("/distance", a.distanceHandler)

		admin := v1.Group("/admin")
		admin.GET("/summary", a.adminSummaryHandler)
		admin.GET("/rides", a.adminRidesHandler)
		admin.POST("/bikes", a.createBikeHandler)
		admin.DELETE("/bikes/:id", a.deleteBikeHandler)
		admin.POST("/bikes/:id/station", a.assignBikeHandler)
		admin.POST("/stations", a.createStationHandler)
		admin.DELETE("/stations/:id", a.deleteStationHandler)
	}

	return a
}

func (a *API) Router() *gin.Engine {
	return a.r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization")
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}
