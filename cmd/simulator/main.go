package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/example/deliverydash/pkg/config"
	"github.com/example/deliverydash/pkg/models"
	"github.com/example/deliverydash/pkg/repository"
	"go.uber.org/zap"
)

const tickInterval = 5 * time.Second

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

	logger.Info("Starting delivery simulator")

	redisRepo := repository.NewRedisRepository(&cfg.Redis)
	defer redisRepo.Close()

	mongoRepo, err := repository.NewMongoRepository(&cfg.MongoDB)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer mongoRepo.Close(context.Background())

	orderRepo, err := repository.NewOrderRepository(&cfg.MySQL, mongoRepo, logger)
	if err != nil {
		logger.Fatal("Failed to connect to MySQL", zap.Error(err))
	}

	restaurant := models.Coordinates{Lat: cfg.Delivery.RestaurantLat, Lng: cfg.Delivery.RestaurantLng}

	// Create actor system
	system := actor.NewActorSystem()

	kitchenProps := actor.PropsFromProducer(func() actor.Actor {
		return &KitchenActor{orders: orderRepo, couriers: redisRepo, logger: logger.Named("kitchen-actor")}
	})
	kitchenPid, err := system.Root.SpawnNamed(kitchenProps, "kitchen-actor")
	if err != nil {
		logger.Fatal("Failed to spawn kitchen actor", zap.Error(err))
	}

	courierProps := actor.PropsFromProducer(func() actor.Actor {
		return &CourierActor{couriers: redisRepo, start: restaurant, logger: logger.Named("courier-actor")}
	})
	courierPid, err := system.Root.SpawnNamed(courierProps, "courier-actor")
	if err != nil {
		logger.Fatal("Failed to spawn courier actor", zap.Error(err))
	}

	logger.Info("Simulator actors started",
		zap.String("kitchen_actor", kitchenPid.Id),
		zap.String("courier_actor", courierPid.Id))

	ctx, stop := context.WithCancel(context.Background())
	go tick(ctx, system, kitchenPid, courierPid, orderRepo, restaurant, logger)

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	stop()
	system.Root.Stop(kitchenPid)
	system.Root.Stop(courierPid)
	logger.Info("Simulator stopped")
}

// tick periodically walks the open orders, asking the kitchen to
// advance each one and the courier to move toward its current target:
// the restaurant until pickup, the customer afterwards.
func tick(ctx context.Context, system *actor.ActorSystem, kitchenPid, courierPid *actor.PID, orders *repository.OrderRepository, restaurant models.Coordinates, logger *zap.Logger) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		open, err := orders.ListOpen(ctx)
		if err != nil {
			logger.Warn("Failed to list open orders", zap.Error(err))
			continue
		}

		for _, order := range open {
			system.Root.Send(kitchenPid, &AdvanceOrder{Order: order})

			if order.CourierID == nil {
				continue
			}
			target := restaurant
			if order.Status != models.StatusPending && order.Status != models.StatusAccepted &&
				order.DestLat != nil && order.DestLng != nil {
				target = models.Coordinates{Lat: *order.DestLat, Lng: *order.DestLng}
			}
			system.Root.Send(courierPid, &MoveCourier{CourierID: *order.CourierID, Target: target})
		}
	}
}
