package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

var (
	ErrProductNotFound = errors.New("product not found")
	// ErrConflict marks a row rejected by a uniqueness or other integrity constraint.
	ErrConflict = errors.New("integrity constraint violation")
	// ErrInvalidRow marks a row whose values failed validation or type conversion.
	ErrInvalidRow = errors.New("invalid row")
)

type Repository interface {
	ListActive(ctx context.Context) ([]Product, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
	BeginImport(ctx context.Context) (ImportBatch, error)
}

// ImportBatch is one importer transaction. Savepoints scope the writes of a single row.
type ImportBatch interface {
	// ResolveProduct returns the product for handle, creating it if needed. A
	// soft-deleted product is reported as ErrConflict.
	ResolveProduct(ctx context.Context, handle, title string) (uuid.UUID, error)
	InsertVariant(ctx context.Context, variant *ProductVariant) error
	Savepoint(ctx context.Context) error
	RollbackToSavepoint(ctx context.Context) error
	ReleaseSavepoint(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type postgresRepository struct {
	pool *pgxpool.Pool
	sql  *sqlx.DB
}

func NewRepository(pool *pgxpool.Pool, sqlDB *sqlx.DB) Repository {
	return &postgresRepository{pool: pool, sql: sqlDB}
}

func (r *postgresRepository) ListActive(ctx context.Context) ([]Product, error) {
	products := make([]Product, 0)
	err := r.sql.SelectContext(ctx, &products, `
		SELECT id, handle, title, is_deleted, created_at, updated_at
		FROM products
		WHERE NOT is_deleted
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to select products: %w", err)
	}

	if len(products) == 0 {
		return products, nil
	}

	var variants []ProductVariant
	err = r.sql.SelectContext(ctx, &variants, `
		SELECT v.id, v.product_id, v.color, v.color_code, v.size::text AS size, v.img,
		       v.price, v.stock, v.is_deleted, v.created_at, v.updated_at
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE NOT p.is_deleted AND NOT v.is_deleted
		ORDER BY v.created_at, v.id
	`)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to select product variants: %w", err)
	}

	byID := make(map[uuid.UUID]*Product, len(products))
	for i := range products {
		products[i].Variants = make([]ProductVariant, 0)
		byID[products[i].ID] = &products[i]
	}
	for _, v := range variants {
		if p, ok := byID[v.ProductID]; ok {
			p.Variants = append(p.Variants, v)
		}
	}

	return products, nil
}

func (r *postgresRepository) SoftDelete(ctx context.Context, id uuid.UUID) (err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("product_id", id).Msg("repository: failed to rollback soft delete")
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("repository: failed to commit soft delete: %w", commitErr)
		}
	}()

	now := time.Now().UTC()
	tag, err := tx.Exec(ctx, `
		UPDATE products SET is_deleted = TRUE, updated_at = $1
		WHERE id = $2 AND NOT is_deleted
	`, now, id)
	if err != nil {
		return fmt.Errorf("repository: failed to soft delete product %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}

	_, err = tx.Exec(ctx, `
		UPDATE product_variants SET is_deleted = TRUE, updated_at = $1
		WHERE product_id = $2 AND NOT is_deleted
	`, now, id)
	if err != nil {
		return fmt.Errorf("repository: failed to soft delete variants of product %s: %w", id, err)
	}

	return nil
}

func (r *postgresRepository) BeginImport(ctx context.Context) (ImportBatch, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to begin import transaction: %w", err)
	}
	return &pgImportBatch{tx: tx}, nil
}

type pgImportBatch struct {
	tx pgx.Tx
}

const rowSavepoint = "import_row"

func (b *pgImportBatch) ResolveProduct(ctx context.Context, handle, title string) (uuid.UUID, error) {
	newID, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, fmt.Errorf("repository: failed to generate product ID: %w", err)
	}

	now := time.Now().UTC()
	var (
		id      uuid.UUID
		deleted bool
	)
	err = b.tx.QueryRow(ctx, `
		INSERT INTO products (id, handle, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (handle) DO UPDATE SET handle = EXCLUDED.handle
		RETURNING id, is_deleted
	`, newID, handle, title, now).Scan(&id, &deleted)
	if err != nil {
		return uuid.Nil, classify(fmt.Errorf("repository: failed to resolve product %q: %w", handle, err))
	}
	if deleted {
		return uuid.Nil, fmt.Errorf("%w: product %q is deleted", ErrConflict, handle)
	}
	return id, nil
}

func (b *pgImportBatch) InsertVariant(ctx context.Context, v *ProductVariant) error {
	if v.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate variant ID: %w", err)
		}
		v.ID = id
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now

	_, err := b.tx.Exec(ctx, `
		INSERT INTO product_variants
			(id, product_id, color, color_code, size, img, price, stock, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::product_size, $6, $7, $8, $9, $9)
	`, v.ID, v.ProductID, v.Color, v.ColorCode, string(v.Size), v.Img, v.Price, v.Stock, now)
	if err != nil {
		return classify(fmt.Errorf("repository: failed to insert variant for product %s: %w", v.ProductID, err))
	}
	return nil
}

func (b *pgImportBatch) Savepoint(ctx context.Context) error {
	_, err := b.tx.Exec(ctx, "SAVEPOINT "+rowSavepoint)
	return err
}

func (b *pgImportBatch) RollbackToSavepoint(ctx context.Context) error {
	_, err := b.tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+rowSavepoint)
	return err
}

func (b *pgImportBatch) ReleaseSavepoint(ctx context.Context) error {
	_, err := b.tx.Exec(ctx, "RELEASE SAVEPOINT "+rowSavepoint)
	return err
}

func (b *pgImportBatch) Commit(ctx context.Context) error {
	return b.tx.Commit(ctx)
}

func (b *pgImportBatch) Rollback(ctx context.Context) error {
	err := b.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// classify tags constraint and data errors so the importer can skip the row instead
// of aborting the batch.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgerrcode.IsIntegrityConstraintViolation(pgErr.Code):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case pgerrcode.IsDataException(pgErr.Code):
		return fmt.Errorf("%w: %w", ErrInvalidRow, err)
	}
	return err
}
