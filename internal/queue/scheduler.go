package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, name string, args any) (*TaskInfo, error)
}

// Entry enqueues Task every Every, on multiples of Every since the zero time
// (so 30 minutes fires at :00 and :30 UTC).
type Entry struct {
	Name  string
	Task  string
	Args  any
	Every time.Duration
}

type Scheduler struct {
	enqueuer Enqueuer
	entries  []Entry
	now      func() time.Time
}

func NewScheduler(enqueuer Enqueuer, entries ...Entry) *Scheduler {
	return &Scheduler{enqueuer: enqueuer, entries: entries, now: time.Now}
}

func (s *Scheduler) Add(e Entry) {
	s.entries = append(s.entries, e)
}

// Run fires entries until ctx is cancelled. Enqueue failures are logged and the
// entry waits for its next slot.
func (s *Scheduler) Run(ctx context.Context) error {
	for _, e := range s.entries {
		if e.Every <= 0 {
			return fmt.Errorf("scheduler: entry %q has non-positive interval %s", e.Name, e.Every)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range s.entries {
		entry := e
		g.Go(func() error {
			s.runEntry(gctx, entry)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) runEntry(ctx context.Context, e Entry) {
	for {
		now := s.now()
		next := nextRun(now, e.Every)
		log.Debug().Str("entry", e.Name).Time("next_run", next).Msg("scheduler: waiting")

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		info, err := s.enqueuer.Enqueue(ctx, e.Task, e.Args)
		if err != nil {
			log.Error().Err(err).Str("entry", e.Name).Str("task", e.Task).Msg("scheduler: failed to enqueue")
			continue
		}
		log.Info().Str("entry", e.Name).Str("task_id", info.ID).Msg("scheduler: task enqueued")
	}
}

// nextRun returns the first interval boundary strictly after now.
func nextRun(now time.Time, every time.Duration) time.Time {
	return now.Truncate(every).Add(every)
}
