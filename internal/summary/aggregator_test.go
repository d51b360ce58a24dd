package summary

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrder struct {
	createdAt time.Time
	quantity  int64
	amount    decimal.Decimal
}

// fakeRepository keeps the summary row in memory; a transaction works on a copy
// that is only published when fn succeeds.
type fakeRepository struct {
	orders  []fakeOrder
	summary *OrderSummary

	totalsErr    error
	insertLoses  bool
	inserts      int
	updates      int
	transactions int
}

func (f *fakeRepository) RunInTx(ctx context.Context, fn func(q Queries) error) error {
	f.transactions++
	tx := &fakeTx{repo: f}
	if f.summary != nil {
		s := *f.summary
		tx.summary = &s
	}
	if err := fn(tx); err != nil {
		return err
	}
	f.summary = tx.summary
	return nil
}

func (f *fakeRepository) Current(ctx context.Context) (*OrderSummary, error) {
	if f.summary == nil {
		return nil, ErrSummaryNotFound
	}
	s := *f.summary
	return &s, nil
}

type fakeTx struct {
	repo    *fakeRepository
	summary *OrderSummary
}

func (t *fakeTx) LockSummary(ctx context.Context) (*OrderSummary, error) {
	if t.summary == nil {
		return nil, ErrSummaryNotFound
	}
	s := *t.summary
	return &s, nil
}

func (t *fakeTx) OrderTotals(ctx context.Context, after *time.Time, until time.Time) (Totals, error) {
	if t.repo.totalsErr != nil {
		return Totals{}, t.repo.totalsErr
	}
	totals := Totals{Amount: decimal.Zero}
	for _, o := range t.repo.orders {
		if after != nil && !o.createdAt.After(*after) {
			continue
		}
		if o.createdAt.After(until) {
			continue
		}
		totals.Orders++
		totals.Products += o.quantity
		totals.Amount = totals.Amount.Add(o.amount)
	}
	return totals, nil
}

func (t *fakeTx) InsertSummary(ctx context.Context, s *OrderSummary) (bool, error) {
	if t.repo.insertLoses {
		return false, nil
	}
	t.repo.inserts++
	cp := *s
	t.summary = &cp
	return true, nil
}

func (t *fakeTx) UpdateSummary(ctx context.Context, s *OrderSummary) error {
	t.repo.updates++
	cp := *s
	t.summary = &cp
	return nil
}

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestAggregator(repo *fakeRepository, start time.Time) (*Aggregator, *clock) {
	c := &clock{t: start}
	a := NewAggregator(repo)
	a.now = c.now
	return a, c
}

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func order(at time.Time, qty int64, amount string) fakeOrder {
	return fakeOrder{createdAt: at, quantity: qty, amount: decimal.RequireFromString(amount)}
}

func TestAggregator_FirstRunCountsAllOrders(t *testing.T) {
	repo := &fakeRepository{orders: []fakeOrder{
		order(t0.Add(-3*time.Hour), 1, "10"),
		order(t0.Add(-2*time.Hour), 2, "20"),
		order(t0.Add(-1*time.Hour), 3, "30"),
	}}
	agg, _ := newTestAggregator(repo, t0)

	res, err := agg.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeCreated, res.Outcome)
	require.NotNil(t, repo.summary)
	assert.Equal(t, int64(3), repo.summary.TotalOrders)
	assert.Equal(t, int64(6), repo.summary.TotalProductsInOrders)
	assert.True(t, repo.summary.TotalOrderAmount.Equal(decimal.NewFromInt(60)))
	assert.Equal(t, t0, repo.summary.CreatedAt)
	assert.Equal(t, 1, repo.inserts)
}

func TestAggregator_FirstRunWithoutOrders(t *testing.T) {
	repo := &fakeRepository{}
	agg, _ := newTestAggregator(repo, t0)

	res, err := agg.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeCreated, res.Outcome)
	require.NotNil(t, repo.summary)
	assert.Zero(t, repo.summary.TotalOrders)
	assert.True(t, repo.summary.TotalOrderAmount.IsZero())
}

func TestAggregator_RerunWithoutNewOrdersIsNoop(t *testing.T) {
	repo := &fakeRepository{orders: []fakeOrder{order(t0.Add(-time.Hour), 2, "15.50")}}
	agg, clk := newTestAggregator(repo, t0)

	_, err := agg.Run(context.Background())
	require.NoError(t, err)
	before := *repo.summary

	clk.advance(30 * time.Minute)
	res, err := agg.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeUnchanged, res.Outcome)
	assert.True(t, res.Delta.IsZero())
	assert.Equal(t, before, *repo.summary)
	assert.Equal(t, t0, repo.summary.CreatedAt, "watermark must not move")
	assert.Zero(t, repo.updates)
}

func TestAggregator_AddsOrdersSinceWatermark(t *testing.T) {
	repo := &fakeRepository{orders: []fakeOrder{
		order(t0.Add(-time.Hour), 1, "10"),
		order(t0.Add(-time.Minute), 1, "20"),
	}}
	agg, clk := newTestAggregator(repo, t0)

	_, err := agg.Run(context.Background())
	require.NoError(t, err)

	repo.orders = append(repo.orders,
		order(t0.Add(10*time.Minute), 4, "30"),
		// created after the next run starts
		order(t0.Add(45*time.Minute), 1, "99"),
	)

	clk.advance(30 * time.Minute)
	res, err := agg.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeUpdated, res.Outcome)
	assert.Equal(t, Totals{Orders: 1, Products: 4, Amount: res.Delta.Amount}, res.Delta)
	assert.True(t, res.Delta.Amount.Equal(decimal.NewFromInt(30)))

	assert.Equal(t, int64(3), repo.summary.TotalOrders)
	assert.Equal(t, int64(6), repo.summary.TotalProductsInOrders)
	assert.True(t, repo.summary.TotalOrderAmount.Equal(decimal.NewFromInt(60)))
	assert.Equal(t, t0.Add(30*time.Minute), repo.summary.CreatedAt)

	clk.advance(30 * time.Minute)
	res, err = agg.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, res.Outcome)
	assert.Equal(t, int64(4), repo.summary.TotalOrders)
	assert.True(t, repo.summary.TotalOrderAmount.Equal(decimal.NewFromInt(159)))
}

func TestAggregator_OrderAtWatermarkIsNotCountedTwice(t *testing.T) {
	repo := &fakeRepository{orders: []fakeOrder{order(t0, 1, "5")}}
	agg, clk := newTestAggregator(repo, t0)

	_, err := agg.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), repo.summary.TotalOrders)

	clk.advance(time.Minute)
	res, err := agg.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, res.Outcome)
	assert.Equal(t, int64(1), repo.summary.TotalOrders)
}

func TestAggregator_DatabaseErrorLeavesSummaryUntouched(t *testing.T) {
	repo := &fakeRepository{orders: []fakeOrder{order(t0.Add(-time.Hour), 1, "10")}}
	agg, clk := newTestAggregator(repo, t0)

	_, err := agg.Run(context.Background())
	require.NoError(t, err)
	before := *repo.summary

	repo.orders = append(repo.orders, order(t0.Add(time.Minute), 1, "10"))
	repo.totalsErr = errors.New("connection reset")

	clk.advance(30 * time.Minute)
	res, err := agg.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, repo.totalsErr)
	assert.Equal(t, before, *repo.summary)
}

func TestAggregator_ConcurrentCreateIsSkipped(t *testing.T) {
	repo := &fakeRepository{insertLoses: true}
	agg, _ := newTestAggregator(repo, t0)

	res, err := agg.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Nil(t, res.Summary)
	assert.Nil(t, repo.summary)
}

func TestAggregator_TruncatesWatermarkToMicroseconds(t *testing.T) {
	repo := &fakeRepository{}
	agg, _ := newTestAggregator(repo, t0.Add(1500*time.Nanosecond))

	_, err := agg.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Microsecond), repo.summary.CreatedAt)
}

func TestAggregator_Current(t *testing.T) {
	repo := &fakeRepository{}
	agg, _ := newTestAggregator(repo, t0)

	_, err := agg.Current(context.Background())
	require.ErrorIs(t, err, ErrSummaryNotFound)

	_, err = agg.Run(context.Background())
	require.NoError(t, err)

	got, err := agg.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, t0, got.CreatedAt)
}
