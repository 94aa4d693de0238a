package db_models

import "github.com/google/uuid"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusShipping  OrderStatus = "SHIPPING"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentStatusUnpaid    PaymentStatus = "UNPAID"
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusPaid      PaymentStatus = "PAID"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// Order is owned by the catalog/checkout side. The payment subsystem only
// touches its payment fields, its cancellation state and its fulfillment record.
type Order struct {
	BaseModel
	OrderNumber   string    `gorm:"size:32;uniqueIndex"`
	CustomerID    uuid.UUID `gorm:"type:uuid;index;not null"`
	CustomerName  string
	CustomerEmail string
	CustomerPhone string `gorm:"size:20"`
	TotalAmount   int64  `gorm:"not null"`

	Status        OrderStatus   `gorm:"size:16;index;not null"`
	PaymentStatus PaymentStatus `gorm:"size:16;index;not null"`

	PaymentTransactionID *string `gorm:"size:40"`
	GatewayOrderCode     *int64
	VoucherID            *uuid.UUID `gorm:"type:uuid"`

	PaidAt       *int64
	CancelledAt  *int64
	CancelReason string

	Items []OrderItem `gorm:"foreignKey:OrderID"`
}

type OrderItem struct {
	BaseModel
	OrderID   uuid.UUID `gorm:"type:uuid;index;not null"`
	ProductID uuid.UUID `gorm:"type:uuid;index;not null"`
	Quantity  int       `gorm:"not null"`
	UnitPrice int64
}

// OrderState is the fulfillment-state record for an order (one row per order).
type OrderState struct {
	BaseModel
	OrderID uuid.UUID   `gorm:"type:uuid;uniqueIndex;not null"`
	State   OrderStatus `gorm:"size:16;not null"`
	Note    string
}
