package summary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

// Aggregator folds orders created since the last run into the singleton summary.
type Aggregator struct {
	repo Repository
	now  func() time.Time
}

func NewAggregator(repo Repository) *Aggregator {
	return &Aggregator{repo: repo, now: time.Now}
}

// Run creates the summary from every order on the first call and afterwards adds
// the orders created since the watermark. Nothing is written when there is no new
// order. On error the transaction is rolled back and the summary is untouched.
func (a *Aggregator) Run(ctx context.Context) (*RunResult, error) {
	// Postgres keeps microseconds; the watermark must compare equal after a round trip.
	runAt := a.now().UTC().Truncate(time.Microsecond)

	var result *RunResult
	err := a.repo.RunInTx(ctx, func(q Queries) error {
		current, err := q.LockSummary(ctx)
		if errors.Is(err, ErrSummaryNotFound) {
			result, err = a.create(ctx, q, runAt)
			return err
		}
		if err != nil {
			return err
		}
		result, err = a.update(ctx, q, current, runAt)
		return err
	})
	if err != nil {
		log.Error().Err(err).Time("run_at", runAt).Msg("aggregator: failed to update order summary")
		return nil, fmt.Errorf("aggregator: %w", err)
	}

	log.Info().
		Stringer("outcome", result.Outcome).
		Int64("new_orders", result.Delta.Orders).
		Int64("new_products", result.Delta.Products).
		Stringer("new_amount", result.Delta.Amount).
		Msg("aggregator: order summary run complete")
	return result, nil
}

func (a *Aggregator) create(ctx context.Context, q Queries, runAt time.Time) (*RunResult, error) {
	totals, err := q.OrderTotals(ctx, nil, runAt)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("failed to generate summary ID: %w", err)
	}
	s := &OrderSummary{ID: id, CreatedAt: runAt}
	s.add(totals)

	inserted, err := q.InsertSummary(ctx, s)
	if err != nil {
		return nil, err
	}
	if !inserted {
		log.Info().Msg("aggregator: summary created by a concurrent run, skipping")
		return &RunResult{Outcome: OutcomeSkipped}, nil
	}
	return &RunResult{Outcome: OutcomeCreated, Summary: s, Delta: totals}, nil
}

func (a *Aggregator) update(ctx context.Context, q Queries, current *OrderSummary, runAt time.Time) (*RunResult, error) {
	watermark := current.CreatedAt
	delta, err := q.OrderTotals(ctx, &watermark, runAt)
	if err != nil {
		return nil, err
	}
	if delta.IsZero() {
		return &RunResult{Outcome: OutcomeUnchanged, Summary: current, Delta: delta}, nil
	}

	updated := *current
	updated.add(delta)
	updated.CreatedAt = runAt
	if err := q.UpdateSummary(ctx, &updated); err != nil {
		return nil, err
	}
	return &RunResult{Outcome: OutcomeUpdated, Summary: &updated, Delta: delta}, nil
}

// Current returns the stored summary or ErrSummaryNotFound.
func (a *Aggregator) Current(ctx context.Context) (*OrderSummary, error) {
	s, err := a.repo.Current(ctx)
	if err != nil {
		if errors.Is(err, ErrSummaryNotFound) {
			return nil, ErrSummaryNotFound
		}
		log.Error().Err(err).Msg("aggregator: failed to read order summary")
		return nil, fmt.Errorf("aggregator: failed to read order summary: %w", err)
	}
	return s, nil
}
