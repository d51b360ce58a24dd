package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrReferenceNotFound means the user, product or variant an order points to does not exist.
	ErrReferenceNotFound = errors.New("referenced entity not found")
	ErrDuplicateSession  = errors.New("order for this session already exists")
)

type Repository interface {
	CreateOrder(ctx context.Context, order *Order) (uuid.UUID, error)
	GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, newStatus OrderStatus) error
	GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) CreateOrder(ctx context.Context, orderInput *Order) (orderID uuid.UUID, err error) {
	finalOrderID := orderInput.ID
	if finalOrderID == uuid.Nil {
		genID, genErr := uuid.NewV4()
		if genErr != nil {
			log.Error().Err(genErr).Msg("repository: failed to generate order ID")
			return uuid.Nil, fmt.Errorf("repository: failed to generate order ID: %w", genErr)
		}
		finalOrderID = genID
	}
	orderInput.ID = finalOrderID

	tx, beginErr := r.db.Begin(ctx)
	if beginErr != nil {
		return uuid.Nil, fmt.Errorf("repository: failed to begin transaction: %w", beginErr)
	}
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic_value", p).Stringer("order_id_attempted", finalOrderID).Msg("Panic recovered during CreateOrder, rolling back")
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id_attempted", finalOrderID).Msg("Failed to rollback transaction after panic")
			}
			panic(p)
		} else if err != nil {
			log.Warn().Err(err).Stringer("order_id_attempted", finalOrderID).Msg("Transaction for CreateOrder failed, rolling back")
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id_attempted", finalOrderID).Msg("Failed to rollback transaction")
			}
		} else if commitErr := tx.Commit(ctx); commitErr != nil {
			log.Error().Err(commitErr).Stringer("order_id", finalOrderID).Msg("Failed to commit transaction")
			err = fmt.Errorf("repository: failed to commit transaction: %w", commitErr)
		}
	}()

	queryOrder := `
		INSERT INTO orders (id, user_id, amount, status, session_id)
		VALUES ($1, $2, $3, $4::order_status, $5)
		RETURNING order_number, created_at, updated_at
	`
	err = tx.QueryRow(ctx, queryOrder,
		finalOrderID,
		orderInput.UserID,
		orderInput.Amount,
		string(orderInput.Status),
		orderInput.SessionID,
	).Scan(&orderInput.OrderNumber, &orderInput.CreatedAt, &orderInput.UpdatedAt)
	if err != nil {
		return uuid.Nil, classify(fmt.Errorf("repository: failed to insert order: %w", err))
	}

	queryItem := `
		INSERT INTO order_items (id, order_id, product_id, variant_id, quantity, price)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for i := range orderInput.Items {
		item := &orderInput.Items[i]

		itemID, genErr := uuid.NewV4()
		if genErr != nil {
			return uuid.Nil, fmt.Errorf("repository: failed to generate order item ID: %w", genErr)
		}
		item.ID = itemID
		item.OrderID = finalOrderID

		_, err = tx.Exec(ctx, queryItem,
			item.ID,
			item.OrderID,
			item.ProductID,
			item.VariantID,
			item.Quantity,
			item.Price,
		)
		if err != nil {
			return uuid.Nil, classify(fmt.Errorf("repository: failed to insert order item for order %s: %w", finalOrderID, err))
		}
	}
	return finalOrderID, nil
}

const selectOrder = `
	SELECT id, order_number, user_id, amount, status::text, session_id, created_at, updated_at
	FROM orders
`

const selectItems = `
	SELECT id, order_id, product_id, variant_id, quantity, price
	FROM order_items
`

func scanOrder(row pgx.Row, o *Order) error {
	var status string
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.Amount, &status, &o.SessionID, &o.CreatedAt, &o.UpdatedAt)
	o.Status = OrderStatus(status)
	return err
}

func scanItem(row pgx.Row, item *OrderItem) error {
	return row.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.VariantID, &item.Quantity, &item.Price)
}

func (r *postgresRepository) GetOrderByID(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	var order Order
	err := scanOrder(r.db.QueryRow(ctx, selectOrder+" WHERE id = $1", orderID), &order)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", orderID, err)
	}

	rows, err := r.db.Query(ctx, selectItems+" WHERE order_id = $1 ORDER BY id", orderID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items for order id %s: %w", orderID, err)
	}
	defer rows.Close()

	order.Items = make([]OrderItem, 0)
	for rows.Next() {
		var item OrderItem
		if err := scanItem(rows, &item); err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item for order id %s: %w", orderID, err)
		}
		order.Items = append(order.Items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items for order id %s: %w", orderID, err)
	}

	return &order, nil
}

func (r *postgresRepository) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, newStatus OrderStatus) error {
	query := `
		UPDATE orders
		SET status = $1::order_status, updated_at = NOW()
		WHERE id = $2
	`

	cmdTag, err := r.db.Exec(ctx, query, string(newStatus), orderID)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Stringer("new_status", newStatus).Msg("repository: failed to update order status")
		return fmt.Errorf("repository: failed to update order status %s: %w", orderID, err)
	}

	if cmdTag.RowsAffected() == 0 {
		log.Warn().Stringer("order_id", orderID).Stringer("new_status", newStatus).Msg("repository: order not found for status update")
		return ErrOrderNotFound
	}

	return nil
}

func (r *postgresRepository) GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	orderRows, err := r.db.Query(ctx, selectOrder+" WHERE user_id = $1 ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders for user id %s: %w", userID, err)
	}
	defer orderRows.Close()

	ordersMap := make(map[uuid.UUID]*Order)
	var orderIDs []uuid.UUID

	for orderRows.Next() {
		var order Order
		if err := scanOrder(orderRows, &order); err != nil {
			return nil, fmt.Errorf("repository: failed scan order for user id %s: %w", userID, err)
		}
		order.Items = make([]OrderItem, 0)
		ordersMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}
	if err = orderRows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating orders for user id %s: %w", userID, err)
	}

	if len(orderIDs) == 0 {
		return []Order{}, nil
	}

	itemRows, err := r.db.Query(ctx, selectItems+" WHERE order_id = ANY($1)", orderIDs)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items for user id %s: %w", userID, err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var item OrderItem
		if err := scanItem(itemRows, &item); err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item for user id %s: %w", userID, err)
		}
		if order, ok := ordersMap[item.OrderID]; ok {
			order.Items = append(order.Items, item)
		}
	}
	if err = itemRows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating order items by user id %s: %w", userID, err)
	}

	resultOrders := make([]Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		resultOrders = append(resultOrders, *ordersMap[id])
	}

	return resultOrders, nil
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgerrcode.ForeignKeyViolation:
		return fmt.Errorf("%w: %w", ErrReferenceNotFound, err)
	case pgerrcode.UniqueViolation:
		if pgErr.ConstraintName == "orders_session_id_key" {
			return fmt.Errorf("%w: %w", ErrDuplicateSession, err)
		}
	}
	return err
}
