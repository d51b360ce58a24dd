package order

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending OrderStatus = "PENDING"
	StatusFailed  OrderStatus = "FAILED"
	StatusPaid    OrderStatus = "PAID"
	StatusShipped OrderStatus = "SHIPPED"
)

func (os OrderStatus) String() string {
	return string(os)
}

func (os OrderStatus) Valid() bool {
	_, ok := allowedTransitions[os]
	return ok
}

type OrderItem struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	OrderID   uuid.UUID       `json:"orderId" db:"order_id"`
	ProductID *uuid.UUID      `json:"productId,omitempty" db:"product_id"`
	VariantID *uuid.UUID      `json:"variantId,omitempty" db:"variant_id"`
	Quantity  int             `json:"quantity" db:"quantity"`
	Price     decimal.Decimal `json:"price" db:"price"`
}

type Order struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	OrderNumber int64           `json:"orderNumber" db:"order_number"`
	UserID      uuid.UUID       `json:"userId" db:"user_id"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Status      OrderStatus     `json:"status" db:"status"`
	SessionID   *string         `json:"sessionId,omitempty" db:"session_id"`
	Items       []OrderItem     `json:"items" db:"-"` // loaded separately from order_items
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" db:"updated_at"`
}
