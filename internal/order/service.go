package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Payment moves a pending order to PAID or FAILED; only paid orders ship.
var allowedTransitions = map[OrderStatus]map[OrderStatus]bool{
	StatusPending: {
		StatusPaid:   true,
		StatusFailed: true,
	},
	StatusPaid: {
		StatusShipped: true,
	},
	StatusFailed:  {},
	StatusShipped: {},
}

var (
	ErrInvalidStatus           = errors.New("unknown order status")
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
	ErrInvalidOrder            = errors.New("invalid order")
)

type Service interface {
	CreateOrder(ctx context.Context, orderInput *Order) (*Order, error)
	GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, newStatus OrderStatus) error
}

type service struct {
	orderRepo Repository
}

func NewService(orderRepo Repository) Service {
	return &service{
		orderRepo: orderRepo,
	}
}

func (s *service) CreateOrder(ctx context.Context, orderInput *Order) (*Order, error) {
	if len(orderInput.Items) == 0 {
		log.Warn().Msg("service: attempt to create order with no items")
		return nil, fmt.Errorf("%w: order must contain at least one item", ErrInvalidOrder)
	}
	if orderInput.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidOrder)
	}

	orderInput.ID = uuid.Nil
	amount := decimal.Zero

	for i := range orderInput.Items {
		item := &orderInput.Items[i]

		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item %d quantity must be greater than zero", ErrInvalidOrder, i)
		}
		if item.Price.IsNegative() {
			return nil, fmt.Errorf("%w: item %d price cannot be negative", ErrInvalidOrder, i)
		}
		if item.ProductID == nil && item.VariantID == nil {
			return nil, fmt.Errorf("%w: item %d must reference a product or a variant", ErrInvalidOrder, i)
		}

		item.ID = uuid.Nil
		item.OrderID = uuid.Nil

		amount = amount.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	orderInput.Status = StatusPending
	orderInput.Amount = amount

	_, err := s.orderRepo.CreateOrder(ctx, orderInput)
	if err != nil {
		if errors.Is(err, ErrReferenceNotFound) || errors.Is(err, ErrDuplicateSession) {
			log.Warn().Err(err).Stringer("user_id", orderInput.UserID).Msg("service: order rejected by repository")
			return nil, err
		}
		log.Error().Err(err).Msg("service: failed to create order in repository")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}

	log.Info().Stringer("order_id", orderInput.ID).Int64("order_number", orderInput.OrderNumber).Stringer("user_id", orderInput.UserID).Msg("service: order created")

	return orderInput, nil
}

func (s *service) GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	order, err := s.orderRepo.GetOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Err(err).Stringer("order_id", id).Msg("service: order not found by id")
			return nil, ErrOrderNotFound
		}

		log.Error().Err(err).Msg("service: failed to fetch order by id in repository")
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}

	return order, nil
}

func (s *service) GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	orders, err := s.orderRepo.GetOrdersByUserID(ctx, userID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to fetch user orders in repository")
		return nil, fmt.Errorf("service: failed to fetch user orders: %w", err)
	}

	return orders, nil
}

func (s *service) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, newStatus OrderStatus) error {
	if !newStatus.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, newStatus)
	}

	currentOrder, err := s.orderRepo.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Err(err).Stringer("order_id", orderID).Stringer("new_status", newStatus).Msg("service: order not found, cannot update status")
			return ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to get order for status update")
		return fmt.Errorf("service: failed to get order for status update: %w", err)
	}

	if currentOrder.Status == newStatus {
		log.Info().Stringer("order_id", orderID).Stringer("status", newStatus).Msg("service: order status is already the same, no update needed")
		return nil
	}

	if !allowedTransitions[currentOrder.Status][newStatus] {
		log.Warn().
			Stringer("order_id", currentOrder.ID).
			Stringer("current_status", currentOrder.Status).
			Stringer("new_status", newStatus).
			Msg("service: invalid status transition attempt")
		return fmt.Errorf("%w: from %s to %s", ErrInvalidStatusTransition, currentOrder.Status, newStatus)
	}

	err = s.orderRepo.UpdateOrderStatus(ctx, orderID, newStatus)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Err(err).Stringer("order_id", orderID).Stringer("new_status", newStatus).Msg("service: order disappeared before status update")
			return ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", orderID).Stringer("new_status", newStatus).Msg("service: failed to update order status in repository")
		return fmt.Errorf("service: failed to update order status: %w", err)
	}

	log.Info().Stringer("order_id", orderID).Stringer("old_status", currentOrder.Status).Stringer("new_status", newStatus).Msg("service: order status updated successfully")
	return nil
}
