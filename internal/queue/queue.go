// Package queue is a small Redis-backed task queue. Producers enqueue named tasks
// with JSON arguments and get a task id back; workers run registered handlers and
// record each task's state in a result store that callers poll by id.
//
// Delivery is at-least-once: a message is only removed from the broker after its
// result is stored, so handlers must tolerate being run twice.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	// ErrNoMessage is returned by Broker.Reserve when the wait timed out.
	ErrNoMessage = errors.New("no message available")
)

type State string

const (
	StatePending State = "PENDING"
	StateStarted State = "STARTED"
	StateSuccess State = "SUCCESS"
	StateFailure State = "FAILURE"
)

func (s State) String() string {
	return string(s)
}

// Done reports whether the task reached a final state.
func (s State) Done() bool {
	return s == StateSuccess || s == StateFailure
}

// Message is the broker payload.
type Message struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Args       json.RawMessage `json:"args,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

type TaskInfo struct {
	ID         string    `json:"task_id"`
	Name       string    `json:"name"`
	Queue      string    `json:"queue"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

type TaskResult struct {
	ID        string          `json:"task_id"`
	Name      string          `json:"name"`
	State     State           `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Broker moves raw messages between a queue and its in-flight list.
type Broker interface {
	Push(ctx context.Context, queue string, payload []byte) error
	// Reserve blocks up to timeout for a message and moves it to the in-flight list.
	Reserve(ctx context.Context, queue string, timeout time.Duration) ([]byte, error)
	// Ack removes a reserved message from the in-flight list.
	Ack(ctx context.Context, queue string, payload []byte) error
	// Requeue moves every in-flight message back to the queue.
	Requeue(ctx context.Context, queue string) (int, error)
}

type ResultStore interface {
	Set(ctx context.Context, result *TaskResult) error
	// Get returns ErrTaskNotFound for unknown or expired ids.
	Get(ctx context.Context, id string) (*TaskResult, error)
}

// Client enqueues tasks and reads their results.
type Client struct {
	broker  Broker
	results ResultStore
	queue   string
}

func NewClient(broker Broker, results ResultStore, queue string) *Client {
	return &Client{broker: broker, results: results, queue: queue}
}

// Enqueue records the task as PENDING and pushes it to the queue. args is encoded
// as JSON; nil means no arguments.
func (c *Client) Enqueue(ctx context.Context, name string, args any) (*TaskInfo, error) {
	msg := Message{
		ID:         uuid.NewString(),
		Name:       name,
		EnqueuedAt: time.Now().UTC(),
	}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("queue: failed to encode args for %s: %w", name, err)
		}
		msg.Args = raw
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("queue: failed to encode message: %w", err)
	}

	err = c.results.Set(ctx, &TaskResult{ID: msg.ID, Name: name, State: StatePending, UpdatedAt: msg.EnqueuedAt})
	if err != nil {
		return nil, fmt.Errorf("queue: failed to record pending task %s: %w", msg.ID, err)
	}
	if err := c.broker.Push(ctx, c.queue, payload); err != nil {
		return nil, fmt.Errorf("queue: failed to enqueue %s: %w", name, err)
	}

	log.Info().Str("task_id", msg.ID).Str("task", name).Str("queue", c.queue).Msg("queue: task enqueued")
	return &TaskInfo{ID: msg.ID, Name: name, Queue: c.queue, EnqueuedAt: msg.EnqueuedAt}, nil
}

func (c *Client) Result(ctx context.Context, id string) (*TaskResult, error) {
	result, err := c.results.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("queue: failed to read result %s: %w", id, err)
	}
	return result, nil
}
