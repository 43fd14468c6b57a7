package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/deliverydash/gateway"
	"github.com/example/deliverydash/pkg/checkout"
	"github.com/example/deliverydash/pkg/config"
	"github.com/example/deliverydash/pkg/discovery"
	"github.com/example/deliverydash/pkg/maps"
	"github.com/example/deliverydash/pkg/models"
	"github.com/example/deliverydash/pkg/repository"
	"github.com/example/deliverydash/pkg/tracking"
	"go.uber.org/zap"
)

func main() {
	// Load config
	cfg, err := config.Load("config/server.yaml")
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Setup logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting storefront service",
		zap.String("name", cfg.Server.Name),
		zap.Int("port", cfg.Server.Port))

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	// MongoDB: catalog and audit trail
	mongoRepo, err := repository.NewMongoRepository(&cfg.MongoDB)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer mongoRepo.Close(context.Background())

	// Redis: active-order markers and courier fixes
	redisRepo := repository.NewRedisRepository(&cfg.Redis)
	defer redisRepo.Close()
	if err := redisRepo.Ping(rootCtx); err != nil {
		logger.Warn("Redis connection failed", zap.Error(err))
	} else {
		logger.Info("Redis connected successfully")
	}

	// MySQL: orders
	orderRepo, err := repository.NewOrderRepository(&cfg.MySQL, mongoRepo, logger)
	if err != nil {
		logger.Fatal("Failed to connect to MySQL", zap.Error(err))
	}

	// External routing/geocoding providers
	mapsClient := maps.NewClient(cfg.Routing.RouteBaseURL, cfg.Routing.GeocodeBaseURL, cfg.Routing.Timeout, logger)

	checkouts := checkout.NewManager(checkout.Params{
		Restaurant:  models.Coordinates{Lat: cfg.Delivery.RestaurantLat, Lng: cfg.Delivery.RestaurantLng},
		BaseFee:     cfg.Delivery.BaseFee,
		PricePerKm:  cfg.Delivery.PricePerKm,
		SubmitDelay: cfg.Checkout.SubmitDelay,
	}, orderRepo, redisRepo, logger)

	trackers := tracking.NewManager(orderRepo, redisRepo, mapsClient, tracking.Config{
		OrderPollInterval:   cfg.Tracking.OrderPollInterval,
		CourierPollInterval: cfg.Tracking.CourierPollInterval,
		MoveThresholdKm:     cfg.Tracking.MoveThresholdKm,
	}, logger)
	defer trackers.StopAll()

	// Service discovery is best effort
	reg, err := discovery.NewRegistry(&cfg.Etcd)
	if err != nil {
		logger.Warn("Failed to connect to etcd, continuing without service discovery", zap.Error(err))
	} else {
		defer reg.Close()
		if err := reg.Register(rootCtx, cfg.Server.Name, cfg.Server.Host, cfg.Server.Port); err != nil {
			logger.Warn("Failed to register service", zap.Error(err))
		} else {
			logger.Info("Service registered in etcd",
				zap.String("name", cfg.Server.Name),
				zap.String("address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)))
		}
	}

	gw := gateway.NewGateway(rootCtx, checkouts, trackers, mongoRepo, orderRepo, redisRepo, mapsClient, logger)

	// Start gateway in goroutine
	gwErr := make(chan error, 1)
	go func() {
		if err := gw.Run(cfg.Server.Host, cfg.Server.Port); err != nil {
			gwErr <- err
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("Received shutdown signal")
	case err := <-gwErr:
		logger.Fatal("Gateway error", zap.Error(err))
	}

	if reg != nil {
		if err := reg.Deregister(context.Background(), cfg.Server.Name, cfg.Server.Host, cfg.Server.Port); err != nil {
			logger.Error("Failed to deregister service", zap.Error(err))
		}
	}

	logger.Info("Service stopped")
}
