package summary

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

// OrderSummary holds running totals over all orders. CreatedAt is the watermark:
// orders created at or before it are already counted.
type OrderSummary struct {
	ID                    uuid.UUID       `json:"id" db:"id"`
	TotalOrders           int64           `json:"totalOrders" db:"total_orders"`
	TotalProductsInOrders int64           `json:"totalProductsInOrders" db:"total_products_in_orders"`
	TotalOrderAmount      decimal.Decimal `json:"totalOrderAmount" db:"total_order_amount"`
	CreatedAt             time.Time       `json:"createdAt" db:"created_at"`
}

// Totals is an aggregate over a window of orders.
type Totals struct {
	Orders   int64           `json:"orders"`
	Products int64           `json:"products"`
	Amount   decimal.Decimal `json:"amount"`
}

func (t Totals) IsZero() bool {
	return t.Orders == 0 && t.Products == 0 && t.Amount.IsZero()
}

func (s *OrderSummary) add(delta Totals) {
	s.TotalOrders += delta.Orders
	s.TotalProductsInOrders += delta.Products
	s.TotalOrderAmount = s.TotalOrderAmount.Add(delta.Amount)
}

type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeSkipped means a concurrent run created the summary first.
	OutcomeSkipped Outcome = "skipped"
)

func (o Outcome) String() string {
	return string(o)
}

type RunResult struct {
	Outcome Outcome       `json:"outcome"`
	Summary *OrderSummary `json:"summary,omitempty"`
	Delta   Totals        `json:"delta"`
}
