package models

import (
	"time"
)

// OrderStatus is the server-owned lifecycle state of a submitted order.
// The storefront client only ever observes it.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusAccepted  OrderStatus = "accepted"
	StatusPickedUp  OrderStatus = "picked_up"
	StatusOnWay     OrderStatus = "on_way"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

// ProgressIndex maps a status onto the 0..3 progress scale shown to the
// customer. picked_up and on_way share a step. Cancelled and unknown
// statuses return -1.
func (s OrderStatus) ProgressIndex() int {
	switch s {
	case StatusPending:
		return 0
	case StatusAccepted:
		return 1
	case StatusPickedUp, StatusOnWay:
		return 2
	case StatusDelivered:
		return 3
	}
	return -1
}

func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransition reports whether the order-management side may move an
// order from s to next: forward along the progress scale, or to
// cancelled from any non-terminal status.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	from, to := s.ProgressIndex(), next.ProgressIndex()
	if from < 0 || to < 0 {
		return false
	}
	return to > from || (to == from && s == StatusPickedUp && next == StatusOnWay)
}

type Order struct {
	ID          string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ClientID    string      `gorm:"type:varchar(36);not null;index" json:"client_id"`
	Status      OrderStatus `gorm:"type:varchar(20);default:'pending'" json:"status"`
	CourierID   *string     `gorm:"type:varchar(36)" json:"courier_id"`
	OriginLat   float64     `gorm:"type:decimal(10,7)" json:"origin_lat"`
	OriginLng   float64     `gorm:"type:decimal(10,7)" json:"origin_lng"`
	DestLat     *float64    `gorm:"type:decimal(10,7)" json:"dest_lat"`
	DestLng     *float64    `gorm:"type:decimal(10,7)" json:"dest_lng"`
	Lines       string      `gorm:"type:text" json:"lines"`   // JSON string
	Details     string      `gorm:"type:text" json:"details"` // JSON string
	Subtotal    float64     `gorm:"type:decimal(10,2)" json:"subtotal"`
	DeliveryFee float64     `gorm:"type:decimal(10,2)" json:"delivery_fee"`
	TotalAmount float64     `gorm:"type:decimal(10,2)" json:"total_amount"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	DeletedAt   *time.Time  `gorm:"index" json:"-"`
}

func (Order) TableName() string {
	return "orders"
}

// Snapshot is the read-only view of an order handed to tracking
// clients.
func (o *Order) Snapshot() OrderSnapshot {
	snap := OrderSnapshot{
		ID:          o.ID,
		Status:      o.Status,
		Origin:      Coordinates{Lat: o.OriginLat, Lng: o.OriginLng},
		CourierID:   o.CourierID,
		Subtotal:    o.Subtotal,
		DeliveryFee: o.DeliveryFee,
		Total:       o.TotalAmount,
		UpdatedAt:   o.UpdatedAt,
	}
	if o.DestLat != nil && o.DestLng != nil {
		snap.Destination = &Coordinates{Lat: *o.DestLat, Lng: *o.DestLng}
	}
	return snap
}

type OrderSnapshot struct {
	ID          string       `json:"id"`
	Status      OrderStatus  `json:"status"`
	Origin      Coordinates  `json:"origin"`
	Destination *Coordinates `json:"destination,omitempty"`
	CourierID   *string      `json:"courier_id,omitempty"`
	Subtotal    float64      `json:"subtotal"`
	DeliveryFee float64      `json:"delivery_fee"`
	Total       float64      `json:"total"`
	UpdatedAt   time.Time    `json:"updated_at"`
}
