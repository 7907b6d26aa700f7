package domain

import (
	"time"

	"github.com/google/uuid"
)

// Cancel reasons stored on cancelled orders.
const (
	CancelReasonExpired  = "auto-cancelled"
	CancelReasonRejected = "rejected"
)

// BuyerInfo is the point-in-time contact snapshot copied onto an order at checkout.
type BuyerInfo struct {
	Name    string `json:"buyer_name" db:"buyer_name"`
	Phone   string `json:"buyer_phone" db:"buyer_phone"`
	Address string `json:"buyer_address" db:"buyer_address"`
}

// Order is the aggregate root of the fulfillment pipeline.
type Order struct {
	BuyerInfo

	ID              uuid.UUID   `json:"id" db:"id"`
	BuyerID         uuid.UUID   `json:"buyer_id" db:"buyer_id"`
	Status          Status      `json:"status" db:"status"`
	TotalPrice      int64       `json:"total_price" db:"total_price"`
	PaymentProofURL *string     `json:"payment_proof_url" db:"payment_proof_url"`
	CancelReason    *string     `json:"cancel_reason,omitempty" db:"cancel_reason"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
	Items           []OrderItem `json:"items,omitempty" db:"-"`
}

// OrderItem is an immutable line of an order. Price is the unit price at checkout.
type OrderItem struct {
	ID          uuid.UUID `json:"id" db:"id"`
	OrderID     uuid.UUID `json:"order_id" db:"order_id"`
	ProductID   uuid.UUID `json:"product_id" db:"product_id"`
	ProductName string    `json:"product_name" db:"product_name"`
	Quantity    int       `json:"quantity" db:"quantity"`
	Price       int64     `json:"price" db:"price"`
}

// Subtotal returns quantity times unit price.
func (i OrderItem) Subtotal() int64 {
	return int64(i.Quantity) * i.Price
}

// OwnedBy reports whether the order belongs to the given buyer.
func (o *Order) OwnedBy(buyerID uuid.UUID) bool {
	return o.BuyerID == buyerID
}

// ExpiredOrder is the minimal record returned by the bulk expiry update.
type ExpiredOrder struct {
	ID      uuid.UUID `json:"id" db:"id"`
	BuyerID uuid.UUID `json:"-" db:"buyer_id"`
	Status  Status    `json:"status" db:"status"`
	Reason  string    `json:"reason" db:"cancel_reason"`
}
