package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ResultFileNotFound is reported in ImportResult.Error when the CSV path does not exist.
const ResultFileNotFound = "CSV file not found"

const DefaultImportBatchSize = 400

var ErrInvalidHeader = errors.New("invalid CSV header")

// Prices are stored as NUMERIC(12, 2).
const priceScale = 2

var maxPrice = decimal.New(1, 10)

// CSV columns, matched case-insensitively. ColProductIndex is an alias of ColProductID.
const (
	ColProductID    = "product_id"
	ColProductIndex = "product_index"
	ColTitle        = "title"
	ColColor        = "color"
	ColColorCode    = "colorcode"
	ColSize         = "size"
	ColImg          = "img"
	ColPrice        = "price"
	ColStock        = "stock"
)

type ImportResult struct {
	Imported int    `json:"imported"`
	Skipped  int    `json:"skipped"`
	Error    string `json:"error,omitempty"`
}

func (r *ImportResult) FileNotFound() bool {
	return r.Error == ResultFileNotFound
}

// ProductRow is one parsed data row with defaults applied.
type ProductRow struct {
	ProductID string          `validate:"required"`
	Title     string          `validate:"required"`
	Color     string
	ColorCode *string
	Size      Size            `validate:"oneof=S M L XL"`
	Img       string
	Price     decimal.Decimal `validate:"gte=0"`
	Stock     int             `validate:"gte=0"`
}

type Importer struct {
	repo      Repository
	listing   Service
	validate  *validator.Validate
	batchSize int
}

// NewImporter builds an importer committing every batchSize rows. listing may be nil;
// when set, its cached product listing is invalidated after rows are imported.
func NewImporter(repo Repository, listing Service, batchSize int) *Importer {
	if batchSize < 1 {
		batchSize = DefaultImportBatchSize
	}
	return &Importer{
		repo:      repo,
		listing:   listing,
		validate:  newRowValidator(),
		batchSize: batchSize,
	}
}

func newRowValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

func (im *Importer) Import(ctx context.Context, path string) (*ImportResult, error) {
	log.Info().Str("csv_path", path).Msg("importer: starting product import")

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Error().Str("csv_path", path).Msg("importer: file not found")
			return &ImportResult{Error: ResultFileNotFound}, nil
		}
		return nil, fmt.Errorf("importer: failed to open %s: %w", path, err)
	}
	defer file.Close()

	result, err := im.ImportReader(ctx, file)
	if err != nil {
		return nil, err
	}
	log.Info().Str("csv_path", path).Int("imported", result.Imported).Int("skipped", result.Skipped).Msg("importer: import complete")
	return result, nil
}

// ImportReader imports rows from r. Row-level failures are skipped and counted;
// any other failure rolls back the open batch and is returned.
func (im *Importer) ImportReader(ctx context.Context, r io.Reader) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	result := &ImportResult{}

	headerRecord, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	columns, err := parseHeader(headerRecord)
	if err != nil {
		return nil, err
	}

	batch, err := im.repo.BeginImport(ctx)
	if err != nil {
		return nil, fmt.Errorf("importer: %w", err)
	}

	abort := func(cause error) (*ImportResult, error) {
		if rbErr := batch.Rollback(ctx); rbErr != nil {
			log.Error().Err(rbErr).Msg("importer: failed to rollback batch")
		}
		if result.Imported > 0 {
			im.invalidateListing(ctx)
		}
		log.Error().Err(cause).Int("imported", result.Imported).Int("skipped", result.Skipped).Msg("importer: import aborted")
		return nil, cause
	}

	products := make(map[string]uuid.UUID)
	pending := 0

	for rowNum := 1; ; rowNum++ {
		if err := ctx.Err(); err != nil {
			return abort(err)
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		var rowErr error
		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return abort(fmt.Errorf("importer: failed to read row %d: %w", rowNum, err))
			}
			rowErr = fmt.Errorf("%w: %w", ErrInvalidRow, err)
		} else {
			var fatalErr error
			rowErr, fatalErr = im.importRow(ctx, batch, products, columns, record)
			if fatalErr != nil {
				return abort(fmt.Errorf("importer: row %d: %w", rowNum, fatalErr))
			}
		}

		if rowErr != nil {
			result.Skipped++
			log.Warn().Err(rowErr).Int("row", rowNum).Msg("importer: row skipped")
		} else {
			result.Imported++
		}

		pending++
		if pending == im.batchSize {
			if err := batch.Commit(ctx); err != nil {
				return abort(fmt.Errorf("importer: failed to commit batch at row %d: %w", rowNum, err))
			}
			log.Info().Int("rows", rowNum).Int("imported", result.Imported).Msg("importer: batch committed")

			batch, err = im.repo.BeginImport(ctx)
			if err != nil {
				// Earlier batches are already committed.
				if result.Imported > 0 {
					im.invalidateListing(ctx)
				}
				log.Error().Err(err).Int("imported", result.Imported).Int("skipped", result.Skipped).Msg("importer: import aborted")
				return nil, fmt.Errorf("importer: %w", err)
			}
			pending = 0
		}
	}

	if err := batch.Commit(ctx); err != nil {
		return abort(fmt.Errorf("importer: failed to commit final batch: %w", err))
	}

	if result.Imported > 0 {
		im.invalidateListing(ctx)
	}
	return result, nil
}

// importRow writes one row inside a savepoint. rowErr means the row was skipped and
// its writes undone; fatalErr means the batch can no longer continue.
func (im *Importer) importRow(ctx context.Context, batch ImportBatch, products map[string]uuid.UUID, columns map[string]int, record []string) (rowErr, fatalErr error) {
	row, err := parseRow(columns, record)
	if err != nil {
		return err, nil
	}
	if err := im.validate.Struct(row); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRow, err), nil
	}

	if err := batch.Savepoint(ctx); err != nil {
		return nil, fmt.Errorf("failed to create savepoint: %w", err)
	}

	productID, known := products[row.ProductID]
	if !known {
		productID, err = batch.ResolveProduct(ctx, row.ProductID, row.Title)
	}
	if err == nil {
		err = batch.InsertVariant(ctx, &ProductVariant{
			ProductID: productID,
			Color:     row.Color,
			ColorCode: row.ColorCode,
			Size:      row.Size,
			Img:       row.Img,
			Price:     row.Price,
			Stock:     row.Stock,
		})
	}

	if err != nil {
		if !errors.Is(err, ErrConflict) && !errors.Is(err, ErrInvalidRow) {
			return nil, err
		}
		if rbErr := batch.RollbackToSavepoint(ctx); rbErr != nil {
			return nil, fmt.Errorf("failed to rollback to savepoint: %w", rbErr)
		}
		return err, nil
	}

	if err := batch.ReleaseSavepoint(ctx); err != nil {
		return nil, fmt.Errorf("failed to release savepoint: %w", err)
	}
	if !known {
		products[row.ProductID] = productID
	}
	return nil, nil
}

func (im *Importer) invalidateListing(ctx context.Context) {
	if im.listing != nil {
		im.listing.InvalidateListing(ctx)
	}
}

func parseHeader(record []string) (map[string]int, error) {
	columns := make(map[string]int, len(record))
	for i, name := range record {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if name == ColProductIndex {
			name = ColProductID
		}
		if _, dup := columns[name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrInvalidHeader, name)
		}
		columns[name] = i
	}
	if _, ok := columns[ColProductID]; !ok {
		return nil, fmt.Errorf("%w: missing %s column", ErrInvalidHeader, ColProductID)
	}
	return columns, nil
}

func parseRow(columns map[string]int, record []string) (ProductRow, error) {
	field := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	row := ProductRow{
		ProductID: field(ColProductID),
		Title:     field(ColTitle),
		Color:     field(ColColor),
		Img:       field(ColImg),
		Size:      DefaultSize,
		Price:     decimal.Zero,
	}

	if code := field(ColColorCode); code != "" {
		row.ColorCode = &code
	}
	if size := field(ColSize); size != "" {
		row.Size = Size(strings.ToUpper(size))
	}
	if price := field(ColPrice); price != "" {
		p, err := decimal.NewFromString(price)
		if err != nil {
			return ProductRow{}, fmt.Errorf("%w: invalid price %q", ErrInvalidRow, price)
		}
		if !p.Equal(p.Round(priceScale)) {
			return ProductRow{}, fmt.Errorf("%w: price %q has more than %d decimal places", ErrInvalidRow, price, priceScale)
		}
		if p.GreaterThanOrEqual(maxPrice) {
			return ProductRow{}, fmt.Errorf("%w: price %q out of range", ErrInvalidRow, price)
		}
		row.Price = p
	}
	if stock := field(ColStock); stock != "" {
		// stock is an INTEGER column
		n, err := strconv.ParseInt(stock, 10, 32)
		if err != nil {
			return ProductRow{}, fmt.Errorf("%w: invalid stock %q", ErrInvalidRow, stock)
		}
		row.Stock = int(n)
	}

	return row, nil
}
