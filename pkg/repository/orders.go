package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/deliverydash/pkg/config"
	"github.com/example/deliverydash/pkg/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrNoLines           = errors.New("order must have at least one line")
	ErrIllegalTransition = errors.New("illegal status transition")
)

// OrderRepository is the MySQL-backed implementation of the order
// collaborators the checkout and tracking engines depend on.
type OrderRepository struct {
	db     *gorm.DB
	mongo  *MongoRepository
	logger *zap.Logger
}

func NewOrderRepository(cfg *config.MySQLConfig, mongoRepo *MongoRepository, logger *zap.Logger) (*OrderRepository, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	if err := db.AutoMigrate(&models.Order{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return &OrderRepository{db: db, mongo: mongoRepo, logger: logger}, nil
}

// SubmitOrder creates the order in a single insert; an order with no
// line items is not creatable.
func (r *OrderRepository) SubmitOrder(ctx context.Context, clientID string, details models.DeliveryDetails, totals models.CartTotals, lines []models.CartLine) (*models.Order, error) {
	if len(lines) == 0 {
		return nil, ErrNoLines
	}

	linesJSON, err := json.Marshal(lines)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize lines: %w", err)
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize details: %w", err)
	}

	order := &models.Order{
		ID:          uuid.New().String(),
		ClientID:    clientID,
		Status:      models.StatusPending,
		Lines:       string(linesJSON),
		Details:     string(detailsJSON),
		Subtotal:    totals.Subtotal,
		DeliveryFee: totals.DeliveryFee,
		TotalAmount: totals.Total,
	}
	if details.Location != nil {
		lat, lng := details.Location.Lat, details.Location.Lng
		order.DestLat = &lat
		order.DestLng = &lng
	}

	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		r.logger.Error("Failed to create order", zap.Error(err))
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	r.audit("create_order", order.ID, bson.M{"client_id": clientID, "total": order.TotalAmount})

	return order, nil
}

// Get returns the full order row.
func (r *OrderRepository) Get(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &order, nil
}

// FetchOrder adapts the store to the tracking collaborator interface.
func (r *OrderRepository) FetchOrder(ctx context.Context, orderID string) (*models.OrderSnapshot, error) {
	order, err := r.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	snap := order.Snapshot()
	return &snap, nil
}

// ListOpen returns non-terminal orders, oldest first. The simulator
// uses it to find work.
func (r *OrderRepository) ListOpen(ctx context.Context) ([]*models.Order, error) {
	var orders []*models.Order
	err := r.db.WithContext(ctx).
		Where("status NOT IN ?", []models.OrderStatus{models.StatusDelivered, models.StatusCancelled}).
		Order("created_at asc").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list open orders: %w", err)
	}
	return orders, nil
}

// UpdateStatus moves the order along the server-owned state machine.
// Only forward transitions are legal, plus cancellation from any
// non-terminal status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, next models.OrderStatus) (*models.Order, error) {
	order, err := r.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, order.Status, next)
	}

	if err := r.db.WithContext(ctx).Model(order).Update("status", next).Error; err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}
	order.Status = next

	r.audit("update_status", order.ID, bson.M{"status": string(next)})

	return order, nil
}

// AssignCourier attaches a courier reference and records the
// restaurant origin if it was never set.
func (r *OrderRepository) AssignCourier(ctx context.Context, orderID, courierID string) (*models.Order, error) {
	order, err := r.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status.Terminal() {
		return nil, fmt.Errorf("%w: order is %s", ErrIllegalTransition, order.Status)
	}

	if err := r.db.WithContext(ctx).Model(order).Update("courier_id", courierID).Error; err != nil {
		return nil, fmt.Errorf("failed to assign courier: %w", err)
	}
	order.CourierID = &courierID

	r.audit("assign_courier", order.ID, bson.M{"courier_id": courierID})

	return order, nil
}

func (r *OrderRepository) audit(action, orderID string, data bson.M) {
	if r.mongo == nil {
		return
	}
	go func() {
		if err := r.mongo.CreateAuditLog(context.Background(), &AuditLog{
			Action:  action,
			OrderID: orderID,
			Data:    data,
		}); err != nil {
			r.logger.Warn("Failed to write audit log",
				zap.String("action", action),
				zap.String("order_id", orderID),
				zap.Error(err))
		}
	}()
}
