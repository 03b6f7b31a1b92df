// Package scheduler runs the recurring pipeline jobs on fixed intervals,
// with a distributed lock so only one replica executes each job.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// JobFunc is the unit of scheduled work.
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	interval time.Duration
	fn       JobFunc
}

// Scheduler runs registered jobs until its context is cancelled.
type Scheduler struct {
	locker Locker
	jobs   []job
}

// New creates a scheduler over the given locker.
func New(locker Locker) *Scheduler {
	return &Scheduler{locker: locker}
}

// Add registers a job to run every interval.
func (s *Scheduler) Add(name string, interval time.Duration, fn JobFunc) error {
	if interval <= 0 {
		return fmt.Errorf("scheduler: job %q interval must be positive, got %s", name, interval)
	}
	s.jobs = append(s.jobs, job{name: name, interval: interval, fn: fn})
	return nil
}

// Run executes every job once immediately, then on its interval, until
// ctx is cancelled. It returns ctx.Err() on shutdown.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.jobs) == 0 {
		return fmt.Errorf("scheduler: no jobs registered")
	}

	var wg sync.WaitGroup
	for _, j := range s.jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			s.loop(ctx, j)
		}(j)
	}

	log.Info().Int("jobs", len(s.jobs)).Msg("scheduler: started")
	wg.Wait()
	return ctx.Err()
}

func (s *Scheduler) loop(ctx context.Context, j job) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	s.runOnce(ctx, j)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, j)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, j job) {
	acquired, err := s.locker.Acquire(ctx, j.name, j.interval)
	if err != nil {
		log.Error().Err(err).Str("job", j.name).Msg("scheduler: lock acquire failed")
		return
	}
	if !acquired {
		log.Debug().Str("job", j.name).Msg("scheduler: lock held elsewhere, skipping")
		return
	}
	defer func() {
		if err := s.locker.Release(ctx, j.name); err != nil {
			log.Warn().Err(err).Str("job", j.name).Msg("scheduler: lock release failed")
		}
	}()

	started := time.Now()
	if err := j.fn(ctx); err != nil {
		log.Error().Err(err).Str("job", j.name).
			Dur("elapsed", time.Since(started)).Msg("scheduler: job failed")
		return
	}
	log.Info().Str("job", j.name).Dur("elapsed", time.Since(started)).Msg("scheduler: job complete")
}
