package main

import (
	"context"
	"sync"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/example/deliverydash/pkg/geo"
	"github.com/example/deliverydash/pkg/models"
	"github.com/example/deliverydash/pkg/repository"
	"go.uber.org/zap"
)

// The simulator plays the collaborators the storefront only observes:
// a kitchen that advances order status and a courier that reports
// moving fixes. Orders walk pending -> accepted -> picked_up -> on_way
// and are delivered once the courier fix reaches the customer.

const (
	courierStepFraction = 0.2  // fraction of the remaining leg per move
	deliveredWithinKm   = 0.05 // close enough to hand over
)

type AdvanceOrder struct {
	Order *models.Order
}

type MoveCourier struct {
	CourierID string
	Target    models.Coordinates
}

// KitchenActor drives the order state machine through the same
// transition checks the API enforces.
type KitchenActor struct {
	orders   *repository.OrderRepository
	couriers *repository.RedisRepository
	logger   *zap.Logger
}

func (a *KitchenActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *AdvanceOrder:
		a.advance(msg.Order)

	case *actor.Started:
		a.logger.Info("Kitchen actor started")

	case *actor.Stopped:
		a.logger.Info("Kitchen actor stopped")
	}
}

func (a *KitchenActor) advance(order *models.Order) {
	bg := context.Background()

	var next models.OrderStatus
	switch order.Status {
	case models.StatusPending:
		next = models.StatusAccepted
	case models.StatusAccepted:
		if order.CourierID == nil {
			courierID := "courier-" + order.ID[:8]
			if _, err := a.orders.AssignCourier(bg, order.ID, courierID); err != nil {
				a.logger.Warn("Failed to assign courier", zap.String("order_id", order.ID), zap.Error(err))
				return
			}
			a.logger.Info("Courier assigned",
				zap.String("order_id", order.ID),
				zap.String("courier_id", courierID))
			return
		}
		next = models.StatusPickedUp
	case models.StatusPickedUp:
		next = models.StatusOnWay
	case models.StatusOnWay:
		if !a.courierArrived(bg, order) {
			return
		}
		next = models.StatusDelivered
	default:
		return
	}

	if _, err := a.orders.UpdateStatus(bg, order.ID, next); err != nil {
		a.logger.Warn("Failed to advance order",
			zap.String("order_id", order.ID),
			zap.String("next", string(next)),
			zap.Error(err))
		return
	}
	a.logger.Info("Order advanced",
		zap.String("order_id", order.ID),
		zap.String("status", string(next)))
}

func (a *KitchenActor) courierArrived(ctx context.Context, order *models.Order) bool {
	if order.CourierID == nil || order.DestLat == nil || order.DestLng == nil {
		// Nothing to wait for; hand the order over.
		return true
	}
	fix, err := a.couriers.CourierLocation(ctx, *order.CourierID)
	if err != nil || fix == nil {
		return false
	}
	dest := models.Coordinates{Lat: *order.DestLat, Lng: *order.DestLng}
	return geo.DistanceKm(*fix, dest) <= deliveredWithinKm
}

// CourierActor steps each courier a fraction of the remaining leg per
// move and publishes the fix.
type CourierActor struct {
	couriers *repository.RedisRepository
	start    models.Coordinates
	logger   *zap.Logger

	mu        sync.Mutex
	positions map[string]models.Coordinates
}

func (a *CourierActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *MoveCourier:
		a.move(msg.CourierID, msg.Target)

	case *actor.Started:
		a.positions = make(map[string]models.Coordinates)
		a.logger.Info("Courier actor started")

	case *actor.Stopped:
		a.logger.Info("Courier actor stopped")
	}
}

func (a *CourierActor) move(courierID string, target models.Coordinates) {
	a.mu.Lock()
	pos, ok := a.positions[courierID]
	if !ok {
		pos = a.start
	}
	pos.Lat += (target.Lat - pos.Lat) * courierStepFraction
	pos.Lng += (target.Lng - pos.Lng) * courierStepFraction
	a.positions[courierID] = pos
	a.mu.Unlock()

	if err := a.couriers.SetCourierLocation(context.Background(), courierID, pos); err != nil {
		a.logger.Warn("Failed to publish courier fix",
			zap.String("courier_id", courierID),
			zap.Error(err))
		return
	}
	a.logger.Debug("Courier moved",
		zap.String("courier_id", courierID),
		zap.Float64("lat", pos.Lat),
		zap.Float64("lng", pos.Lng))
}
