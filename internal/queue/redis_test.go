package queue_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/ecommerce-backend/internal/cache"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/config"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/queue"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR_TEST")
	if addr == "" {
		addr = "localhost:6379"
	}
	client, err := cache.NewRedisClient(context.Background(), config.RedisConfig{Addr: addr, DB: 14})
	if err != nil {
		t.Skipf("redis not available at %s: %v", addr, err)
	}
	client.FlushDB(context.Background())
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}

func TestRedisBroker_ReserveAckRequeue(t *testing.T) {
	client := testRedis(t)
	broker := queue.NewRedisBroker(client)
	ctx := context.Background()

	_, err := broker.Reserve(ctx, "q", 100*time.Millisecond)
	require.ErrorIs(t, err, queue.ErrNoMessage)

	require.NoError(t, broker.Push(ctx, "q", []byte("first")))
	require.NoError(t, broker.Push(ctx, "q", []byte("second")))

	got, err := broker.Reserve(ctx, "q", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))
	assert.Equal(t, int64(1), client.LLen(ctx, "queue:q:processing").Val())

	require.NoError(t, broker.Ack(ctx, "q", got))
	assert.Equal(t, int64(0), client.LLen(ctx, "queue:q:processing").Val())

	got, err = broker.Reserve(ctx, "q", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	moved, err := broker.Requeue(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	got, err = broker.Reserve(ctx, "q", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestRedisResultStore_TTL(t *testing.T) {
	client := testRedis(t)
	store := queue.NewRedisResultStore(client, time.Hour)
	ctx := context.Background()

	_, err := store.Get(ctx, "nope")
	require.ErrorIs(t, err, queue.ErrTaskNotFound)

	require.NoError(t, store.Set(ctx, &queue.TaskResult{ID: "t1", Name: "tasks.x", State: queue.StateSuccess}))
	r, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, queue.StateSuccess, r.State)

	ttl := client.TTL(ctx, "task:t1").Val()
	assert.Greater(t, ttl, 59*time.Minute)
}

func TestQueue_EndToEndOverRedis(t *testing.T) {
	client := testRedis(t)
	broker := queue.NewRedisBroker(client)
	results := queue.NewRedisResultStore(client, time.Minute)
	q := queue.NewClient(broker, results, "e2e")

	w := queue.NewWorker(broker, results, queue.WorkerOptions{Queue: "e2e", Concurrency: 2, PollTimeout: 100 * time.Millisecond})
	w.Register("tasks.ping", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return "pong", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	info, err := q.Enqueue(context.Background(), "tasks.ping", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		r, err := q.Result(context.Background(), info.ID)
		return err == nil && r.State == queue.StateSuccess && string(r.Result) == `"pong"`
	}, 5*time.Second, 20*time.Millisecond)
}
