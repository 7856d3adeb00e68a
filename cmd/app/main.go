package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/airticket/api"
	"github.com/Domenick1991/airticket/config"
	"github.com/Domenick1991/airticket/internal/auth"
	"github.com/Domenick1991/airticket/internal/bootstrap"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	logger := bootstrap.NewLogger(cfg.Log)
	if logger.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := bootstrap.OpenStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("open storage: %v", err)
	}
	defer store.Close()

	services := bootstrap.NewServices(ctx, cfg, store, logger)
	defer services.Close(logger)

	// A nil *auth.Service must not reach the router as a non-nil interface.
	var tokens api.TokenParser
	if cfg.Auth.JWTSecret != "" {
		tokens = auth.NewService(cfg.Auth)
	} else {
		logger.Warn("JWT_SECRET not set, every caller is anonymous")
	}

	router := api.NewRouter(cfg.HTTP, api.Handlers{
		Bookings:    api.NewBookingHandler(services.Bookings),
		Flights:     api.NewFlightHandler(services.Flights),
		Allocations: api.NewAllocationHandler(services.Allocator),
		Payments:    api.NewPaymentHandler(services.Payments, services.Checkout),
		Refunds:     api.NewRefundHandler(services.Refunds),
	}, tokens, logger)

	if err := bootstrap.Run(ctx, cfg, router, logger); err != nil {
		logger.Fatalf("server error: %v", err)
	}
}
