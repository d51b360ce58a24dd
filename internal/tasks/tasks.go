// Package tasks names the background jobs and binds them to the domain services.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vasiliy-maslov/ecommerce-backend/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/queue"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/summary"
)

const (
	GetOrderSummary       = "tasks.get_order_summary"
	ImportProductsFromCSV = "tasks.import_products_from_csv"
)

var ErrInvalidArgs = errors.New("invalid task arguments")

type ImportProductsArgs struct {
	CSVPath string `json:"csv_path" validate:"required"`
}

// SummaryTaskResult is stored as the result of GetOrderSummary.
type SummaryTaskResult struct {
	Status  string                `json:"status"`
	Outcome summary.Outcome       `json:"outcome"`
	Summary *summary.OrderSummary `json:"summary,omitempty"`
}

type SummaryRunner interface {
	Run(ctx context.Context) (*summary.RunResult, error)
}

type ProductImporter interface {
	Import(ctx context.Context, path string) (*catalog.ImportResult, error)
}

func EnqueueOrderSummary(ctx context.Context, enq queue.Enqueuer) (*queue.TaskInfo, error) {
	return enq.Enqueue(ctx, GetOrderSummary, nil)
}

func EnqueueImportProducts(ctx context.Context, enq queue.Enqueuer, csvPath string) (*queue.TaskInfo, error) {
	return enq.Enqueue(ctx, ImportProductsFromCSV, ImportProductsArgs{CSVPath: csvPath})
}

// Register binds every task to its handler.
func Register(w *queue.Worker, agg SummaryRunner, importer ProductImporter) {
	w.Register(GetOrderSummary, SummaryHandler(agg))
	w.Register(ImportProductsFromCSV, ImportHandler(importer))
}

// Schedule adds the periodic summary refresh.
func Schedule(s *queue.Scheduler, every time.Duration) {
	s.Add(queue.Entry{Name: "run-order-summary", Task: GetOrderSummary, Every: every})
}

func SummaryHandler(agg SummaryRunner) queue.HandlerFunc {
	return func(ctx context.Context, _ json.RawMessage) (any, error) {
		res, err := agg.Run(ctx)
		if err != nil {
			return nil, err
		}
		return SummaryTaskResult{Status: "success", Outcome: res.Outcome, Summary: res.Summary}, nil
	}
}

func ImportHandler(importer ProductImporter) queue.HandlerFunc {
	validate := validator.New()
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args ImportProductsArgs
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidArgs, err)
			}
		}
		if err := validate.Struct(args); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArgs, err)
		}
		return importer.Import(ctx, args.CSVPath)
	}
}
