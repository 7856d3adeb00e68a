package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/airticket/config"
	"github.com/Domenick1991/airticket/internal/bootstrap"
	"github.com/Domenick1991/airticket/internal/email"
	"github.com/Domenick1991/airticket/internal/kafka"
	"github.com/Domenick1991/airticket/internal/worker"
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
	logger := bootstrap.NewLogger(cfg.Log).WithField("process", "worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := bootstrap.OpenStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("open storage: %v", err)
	}
	defer store.Close()

	services := bootstrap.NewServices(ctx, cfg, store, logger)
	defer services.Close(logger)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic, logger)
	defer consumer.Close()

	sender := email.NewSender(cfg.Email, logger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Consume(ctx, worker.NotificationHandler(sender, logger)); err != nil {
			logger.WithError(err).Error("notification consumer stopped")
			stop()
		}
	}()

	scheduler, err := worker.Schedule(ctx, worker.NewReconcile(services.Checkout, cfg.Worker, logger))
	if err != nil {
		logger.Fatalf("schedule reconcile: %v", err)
	}
	scheduler.Start()
	logger.WithField("schedule", cfg.Worker.ReconcileSchedule).Info("worker started")

	<-ctx.Done()
	logger.Info("shutting down worker")
	<-scheduler.Stop().Done()
	<-done
}
