package api

import (
	"net/http"
	"time"

	"github.com/Domenick1991/airticket/config"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Handlers struct {
	Bookings    *BookingHandler
	Flights     *FlightHandler
	Allocations *AllocationHandler
	Payments    *PaymentHandler
	Refunds     *RefundHandler
}

// NewRouter mounts every handler under /api/v1. Nil handlers are skipped.
func NewRouter(cfg config.HTTPConfig, handlers Handlers, tokens TokenParser, logger logrus.FieldLogger) *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), Logger(logger), Recovery(logger))

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", HeaderRequestID},
		ExposeHeaders:    []string{"Content-Length", HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORSOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	} else {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	}
	router.Use(cors.New(corsConfig))

	if cfg.RateLimitRPS > 0 {
		router.Use(RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	if tokens != nil {
		v1.Use(OptionalAuth(tokens))
	}

	registrars := []interface{ Register(*gin.RouterGroup) }{}
	if handlers.Flights != nil {
		registrars = append(registrars, handlers.Flights)
	}
	if handlers.Bookings != nil {
		registrars = append(registrars, handlers.Bookings)
	}
	if handlers.Allocations != nil {
		registrars = append(registrars, handlers.Allocations)
	}
	if handlers.Payments != nil {
		registrars = append(registrars, handlers.Payments)
	}
	if handlers.Refunds != nil {
		registrars = append(registrars, handlers.Refunds)
	}
	for _, r := range registrars {
		r.Register(v1)
	}
	return router
}
