package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// HandlerFunc runs one task. The returned value is stored as the task result.
type HandlerFunc func(ctx context.Context, args json.RawMessage) (any, error)

type WorkerOptions struct {
	Queue       string
	Concurrency int
	// PollTimeout bounds each blocking reserve so shutdown is noticed.
	PollTimeout time.Duration
	// RetryDelay is the pause after a broker error.
	RetryDelay time.Duration
}

type Worker struct {
	broker  Broker
	results ResultStore
	opts    WorkerOptions

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewWorker(broker Broker, results ResultStore, opts WorkerOptions) *Worker {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 2 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	return &Worker{
		broker:   broker,
		results:  results,
		opts:     opts,
		handlers: make(map[string]HandlerFunc),
	}
}

func (w *Worker) Register(name string, h HandlerFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[name] = h
}

func (w *Worker) handler(name string) (HandlerFunc, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	h, ok := w.handlers[name]
	return h, ok
}

// Run consumes the queue until ctx is cancelled. Messages left in flight by a
// previous process are requeued first.
func (w *Worker) Run(ctx context.Context) error {
	moved, err := w.broker.Requeue(ctx, w.opts.Queue)
	if err != nil {
		return fmt.Errorf("worker: failed to requeue in-flight messages: %w", err)
	}
	if moved > 0 {
		log.Warn().Int("messages", moved).Str("queue", w.opts.Queue).Msg("worker: requeued unfinished messages")
	}

	log.Info().Str("queue", w.opts.Queue).Int("concurrency", w.opts.Concurrency).Msg("worker: started")

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.opts.Concurrency; i++ {
		slot := i
		g.Go(func() error {
			w.loop(gctx, slot)
			return nil
		})
	}
	err = g.Wait()
	log.Info().Str("queue", w.opts.Queue).Msg("worker: stopped")
	return err
}

func (w *Worker) loop(ctx context.Context, slot int) {
	for ctx.Err() == nil {
		payload, err := w.broker.Reserve(ctx, w.opts.Queue, w.opts.PollTimeout)
		if errors.Is(err, ErrNoMessage) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Int("slot", slot).Msg("worker: failed to reserve message")
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.opts.RetryDelay):
			}
			continue
		}
		w.process(ctx, payload)
	}
}

// process runs one reserved message. A message interrupted by shutdown stays in
// flight so the next Run delivers it again.
func (w *Worker) process(ctx context.Context, payload []byte) {
	// Bookkeeping must finish even while the worker shuts down.
	bg := context.WithoutCancel(ctx)

	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil || msg.ID == "" {
		log.Error().Err(err).Bytes("payload", payload).Msg("worker: dropping malformed message")
		w.ack(bg, payload)
		return
	}
	logger := log.With().Str("task_id", msg.ID).Str("task", msg.Name).Logger()

	started := time.Now()
	w.store(bg, &TaskResult{ID: msg.ID, Name: msg.Name, State: StateStarted, UpdatedAt: started.UTC()})

	value, err := w.run(ctx, msg)
	if err != nil && ctx.Err() != nil {
		logger.Warn().Err(err).Msg("worker: task interrupted by shutdown, leaving it for redelivery")
		return
	}

	result := &TaskResult{ID: msg.ID, Name: msg.Name, UpdatedAt: time.Now().UTC()}
	if err == nil {
		result.State = StateSuccess
		if value != nil {
			raw, encErr := json.Marshal(value)
			if encErr != nil {
				err = fmt.Errorf("failed to encode result: %w", encErr)
			} else {
				result.Result = raw
			}
		}
	}
	if err != nil {
		result.State = StateFailure
		result.Error = err.Error()
		logger.Error().Err(err).Dur("took", time.Since(started)).Msg("worker: task failed")
	} else {
		logger.Info().Dur("took", time.Since(started)).Msg("worker: task succeeded")
	}

	w.store(bg, result)
	w.ack(bg, payload)
}

func (w *Worker) run(ctx context.Context, msg Message) (value any, err error) {
	h, ok := w.handler(msg.Name)
	if !ok {
		return nil, fmt.Errorf("unregistered task %q", msg.Name)
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic_value", p).Str("task_id", msg.ID).Bytes("stack", debug.Stack()).Msg("worker: panic recovered in task handler")
			value, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()
	return h(ctx, msg.Args)
}

func (w *Worker) store(ctx context.Context, result *TaskResult) {
	if err := w.results.Set(ctx, result); err != nil {
		log.Error().Err(err).Str("task_id", result.ID).Stringer("state", result.State).Msg("worker: failed to store task result")
	}
}

func (w *Worker) ack(ctx context.Context, payload []byte) {
	if err := w.broker.Ack(ctx, w.opts.Queue, payload); err != nil {
		log.Error().Err(err).Msg("worker: failed to ack message")
	}
}
