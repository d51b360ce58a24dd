package summary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var ErrSummaryNotFound = errors.New("order summary not found")

type Repository interface {
	// RunInTx runs fn in one transaction, committing only when fn returns nil.
	RunInTx(ctx context.Context, fn func(q Queries) error) error
	Current(ctx context.Context) (*OrderSummary, error)
}

// Queries are the statements available inside a summary transaction.
type Queries interface {
	// LockSummary returns the summary row locked for update, or ErrSummaryNotFound.
	LockSummary(ctx context.Context) (*OrderSummary, error)
	// OrderTotals aggregates orders with after < created_at <= until. A nil after
	// means no lower bound.
	OrderTotals(ctx context.Context, after *time.Time, until time.Time) (Totals, error)
	// InsertSummary reports false when another transaction inserted the row first.
	InsertSummary(ctx context.Context, s *OrderSummary) (bool, error)
	UpdateSummary(ctx context.Context, s *OrderSummary) error
}

const selectSummary = `
	SELECT id, total_orders, total_products_in_orders, total_order_amount, created_at
	FROM order_summaries
	WHERE singleton
`

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) RunInTx(ctx context.Context, fn func(q Queries) error) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Msg("repository: failed to rollback summary transaction after panic")
			}
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Msg("repository: failed to rollback summary transaction")
			}
		} else if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("repository: failed to commit summary transaction: %w", commitErr)
		}
	}()

	return fn(&txQueries{tx: tx})
}

func (r *postgresRepository) Current(ctx context.Context) (*OrderSummary, error) {
	return scanSummary(r.db.QueryRow(ctx, selectSummary))
}

type txQueries struct {
	tx pgx.Tx
}

func (q *txQueries) LockSummary(ctx context.Context) (*OrderSummary, error) {
	return scanSummary(q.tx.QueryRow(ctx, selectSummary+" FOR UPDATE"))
}

func (q *txQueries) OrderTotals(ctx context.Context, after *time.Time, until time.Time) (Totals, error) {
	query := `
		WITH window_orders AS (
			SELECT id, amount
			FROM orders
			WHERE ($1::timestamptz IS NULL OR created_at > $1::timestamptz)
			  AND created_at <= $2
		)
		SELECT
			(SELECT COUNT(*) FROM window_orders),
			(SELECT COALESCE(SUM(oi.quantity), 0)::bigint
			 FROM order_items oi
			 JOIN window_orders w ON w.id = oi.order_id),
			(SELECT COALESCE(SUM(amount), 0) FROM window_orders)
	`

	var totals Totals
	err := q.tx.QueryRow(ctx, query, after, until).Scan(&totals.Orders, &totals.Products, &totals.Amount)
	if err != nil {
		return Totals{}, fmt.Errorf("repository: failed to aggregate orders: %w", err)
	}
	return totals, nil
}

func (q *txQueries) InsertSummary(ctx context.Context, s *OrderSummary) (bool, error) {
	query := `
		INSERT INTO order_summaries (id, singleton, total_orders, total_products_in_orders, total_order_amount, created_at)
		VALUES ($1, TRUE, $2, $3, $4, $5)
		ON CONFLICT (singleton) DO NOTHING
	`
	cmdTag, err := q.tx.Exec(ctx, query, s.ID, s.TotalOrders, s.TotalProductsInOrders, s.TotalOrderAmount, s.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("repository: failed to insert order summary: %w", err)
	}
	return cmdTag.RowsAffected() == 1, nil
}

func (q *txQueries) UpdateSummary(ctx context.Context, s *OrderSummary) error {
	query := `
		UPDATE order_summaries
		SET total_orders = $1, total_products_in_orders = $2, total_order_amount = $3, created_at = $4
		WHERE id = $5
	`
	cmdTag, err := q.tx.Exec(ctx, query, s.TotalOrders, s.TotalProductsInOrders, s.TotalOrderAmount, s.CreatedAt, s.ID)
	if err != nil {
		return fmt.Errorf("repository: failed to update order summary %s: %w", s.ID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrSummaryNotFound
	}
	return nil
}

func scanSummary(row pgx.Row) (*OrderSummary, error) {
	var s OrderSummary
	err := row.Scan(&s.ID, &s.TotalOrders, &s.TotalProductsInOrders, &s.TotalOrderAmount, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSummaryNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order summary: %w", err)
	}
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}
