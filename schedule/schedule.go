// Package schedule wraps robfig/cron into the named, replaceable job
// registry spec.md §6's task surface needs: a high-frequency chain, a
// low-frequency chain, and the weekly revival check, each on its own
// cron expression with a friendly next-run rendering for the API.
// Grounded on the teacher's services/scheduler.Scheduler (register by
// name, cooperative Stop/wait) adapted from a timer loop onto cron.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mediabridge/logging"
)

// Job is one named unit of recurring work. Execute receives a context
// tagged with the job's name (logging.WithTask) and a wall-clock
// deadline already applied when the registering chain carries a
// MaxRuntime budget.
type Job func(ctx context.Context) error

type entry struct {
	name string
	spec string
	job  Job
	id   cron.EntryID
}

// Scheduler registers named jobs against cron expressions and reports
// their next scheduled run. main.go creates one instance, and every
// task chain (high-frequency, low-frequency, revival-check) is
// registered on it.
type Scheduler struct {
	cron    *cron.Cron
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		entries: make(map[string]*entry),
	}
}

// Register adds or replaces the job named name, running it on spec
// (standard 5-field cron syntax) with maxRuntime as a deadline applied
// to the context passed to job (zero means no deadline).
func (s *Scheduler) Register(name, spec string, maxRuntime time.Duration, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[name]; ok {
		s.cron.Remove(existing.id)
	}

	wrapped := func() {
		ctx := context.Background()
		if maxRuntime > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, maxRuntime)
			defer cancel()
		}
		taskCtx, log := logging.WithTask(ctx, name)
		start := time.Now()
		if err := job(taskCtx); err != nil {
			log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("scheduled job failed")
			return
		}
		log.Info().Dur("elapsed", time.Since(start)).Msg("scheduled job finished")
	}

	id, err := s.cron.AddFunc(spec, wrapped)
	if err != nil {
		return fmt.Errorf("schedule: registering %q with cron %q: %w", name, spec, err)
	}
	s.entries[name] = &entry{name: name, spec: spec, job: job, id: id}
	return nil
}

// RunNow runs a registered job immediately, out of band from its cron
// schedule, the way the API's manual-trigger endpoints do.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("schedule: no job registered as %q", name)
	}
	taskCtx, log := logging.WithTask(ctx, name)
	start := time.Now()
	err := e.job(taskCtx)
	log.Info().Err(err).Dur("elapsed", time.Since(start)).Msg("manually triggered job finished")
	return err
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels future runs and blocks until any in-flight job returns.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// NextRun reports when name will next fire, and a human-friendly
// rendering of that time for the status API.
func (s *Scheduler) NextRun(name string) (time.Time, string, bool) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, "", false
	}
	next := s.cron.Entry(e.id).Next
	return next, friendly(next), true
}

func friendly(t time.Time) string {
	if t.IsZero() {
		return "not scheduled"
	}
	d := time.Until(t)
	if d < 0 {
		return "due now"
	}
	switch {
	case d < time.Minute:
		return "in under a minute"
	case d < time.Hour:
		return fmt.Sprintf("in %d minutes", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("in %d hours", int(d.Hours()))
	default:
		return fmt.Sprintf("in %d days", int(d.Hours()/24))
	}
}
