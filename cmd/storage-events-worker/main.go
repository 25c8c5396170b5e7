package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/alfianlosari/arinventory/internal/backend"
	"github.com/alfianlosari/arinventory/internal/notifications"
	"github.com/alfianlosari/arinventory/pkg/config"
	"github.com/alfianlosari/arinventory/pkg/instance"
	"github.com/alfianlosari/arinventory/pkg/logger"
	"github.com/alfianlosari/arinventory/pkg/pubsub"
)

const serviceName = "storage-events-worker"

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: serviceName})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Instance:    instance.GetID(),
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	stores, err := backend.New(ctx, cfg, logg)
	requireResource(ctx, logg, "backends", err)
	defer stores.Close()

	services, err := stores.Services(cfg.Assets, logg, nil)
	requireResource(ctx, logg, "services", err)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer pubsubClient.Close()

	reconciler, err := notifications.NewReconciler(services.Repository, stores.Blobs, logg)
	requireResource(ctx, logg, "reconciler", err)

	consumer, err := notifications.NewConsumer(reconciler, pubsubClient.StorageSubscription(), logg)
	requireResource(ctx, logg, "storage notifications consumer", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":          cfg.App.Env,
		"subscription": cfg.PubSub.StorageSubscription,
	})
	logg.Info(runCtx, "storage events worker ready")

	if err := consumer.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "storage events worker not working", err)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
