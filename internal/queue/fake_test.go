package queue

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// memBroker is an in-process Broker with the same list semantics as RedisBroker.
type memBroker struct {
	mu         sync.Mutex
	pending    map[string][][]byte
	processing map[string][][]byte
	acks       int
}

func newMemBroker() *memBroker {
	return &memBroker{
		pending:    make(map[string][][]byte),
		processing: make(map[string][][]byte),
	}
}

func (b *memBroker) Push(ctx context.Context, queue string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[queue] = append(b.pending[queue], payload)
	return nil
}

func (b *memBroker) Reserve(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		b.mu.Lock()
		if len(b.pending[queue]) > 0 {
			payload := b.pending[queue][0]
			b.pending[queue] = b.pending[queue][1:]
			b.processing[queue] = append(b.processing[queue], payload)
			b.mu.Unlock()
			return payload, nil
		}
		b.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, ErrNoMessage
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func (b *memBroker) Ack(ctx context.Context, queue string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acks++
	list := b.processing[queue]
	for i, p := range list {
		if bytes.Equal(p, payload) {
			b.processing[queue] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	return nil
}

func (b *memBroker) Requeue(ctx context.Context, queue string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	moved := len(b.processing[queue])
	b.pending[queue] = append(b.processing[queue], b.pending[queue]...)
	b.processing[queue] = nil
	return moved, nil
}

func (b *memBroker) inFlight(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.processing[queue])
}

type memResults struct {
	mu      sync.Mutex
	results map[string]TaskResult
	history map[string][]State
}

func newMemResults() *memResults {
	return &memResults{results: make(map[string]TaskResult), history: make(map[string][]State)}
}

func (s *memResults) Set(ctx context.Context, r *TaskResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[r.ID] = *r
	s.history[r.ID] = append(s.history[r.ID], r.State)
	return nil
}

func (s *memResults) Get(ctx context.Context, id string) (*TaskResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return &r, nil
}

func (s *memResults) states(id string) []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]State(nil), s.history[id]...)
}
