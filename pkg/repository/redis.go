package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/deliverydash/pkg/config"
	"github.com/example/deliverydash/pkg/models"
	"github.com/go-redis/redis/v8"
)

type RedisRepository struct {
	client *redis.Client
	config *config.RedisConfig
}

func NewRedisRepository(cfg *config.RedisConfig) *RedisRepository {
	return &RedisRepository{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		}),
		config: cfg,
	}
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

// Active-order marker: the durable record that decides whether app
// start resumes tracking or begins a fresh cart. No TTL; it lives
// until the customer finishes the order.

func activeOrderKey(clientID string) string {
	return fmt.Sprintf("active_order:%s", clientID)
}

func (r *RedisRepository) SetActiveOrder(ctx context.Context, clientID, orderID string) error {
	return r.client.Set(ctx, activeOrderKey(clientID), orderID, 0).Err()
}

// ActiveOrder returns "" when no marker exists.
func (r *RedisRepository) ActiveOrder(ctx context.Context, clientID string) (string, error) {
	orderID, err := r.client.Get(ctx, activeOrderKey(clientID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return orderID, nil
}

func (r *RedisRepository) ClearActiveOrder(ctx context.Context, clientID string) error {
	return r.client.Del(ctx, activeOrderKey(clientID)).Err()
}

// Courier locations are volatile: a short TTL makes a courier that
// stopped reporting disappear instead of pinning a stale fix.

const courierLocationTTL = 2 * time.Minute

func courierLocationKey(courierID string) string {
	return fmt.Sprintf("courier_location:%s", courierID)
}

func (r *RedisRepository) SetCourierLocation(ctx context.Context, courierID string, fix models.Coordinates) error {
	data, err := json.Marshal(fix)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, courierLocationKey(courierID), data, courierLocationTTL).Err()
}

// CourierLocation returns (nil, nil) when no fix is known.
func (r *RedisRepository) CourierLocation(ctx context.Context, courierID string) (*models.Coordinates, error) {
	data, err := r.client.Get(ctx, courierLocationKey(courierID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var fix models.Coordinates
	if err := json.Unmarshal([]byte(data), &fix); err != nil {
		return nil, err
	}
	return &fix, nil
}

// FetchCourierLocation adapts the store to the tracking collaborator
// interface.
func (r *RedisRepository) FetchCourierLocation(ctx context.Context, courierID string) (*models.Coordinates, error) {
	return r.CourierLocation(ctx, courierID)
}
