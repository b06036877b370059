// Package scheduler runs the maintenance jobs of the daemon on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

// Scheduler manages named cron jobs in one timezone. A job that is still
// running when its next tick fires is skipped for that tick.
type Scheduler struct {
	cron     *cron.Cron
	mu       sync.Mutex
	entries  map[string]cron.EntryID
	location *time.Location
	ctx      context.Context
	log      logrus.FieldLogger
}

// New creates a Scheduler in the given timezone. Jobs receive ctx.
func New(ctx context.Context, timezone string, logger logrus.FieldLogger) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", timezone, err)
	}

	log := logger.WithField("component", "scheduler")
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(
			cron.Recover(cron.PrintfLogger(log)),
			cron.SkipIfStillRunning(cron.PrintfLogger(log)),
		),
	)

	return &Scheduler{
		cron:     c,
		entries:  make(map[string]cron.EntryID),
		location: loc,
		ctx:      ctx,
		log:      log,
	}, nil
}

// Schedule registers job under name with a standard five-field cron spec.
// An existing job with the same name is replaced.
func (s *Scheduler) Schedule(name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if spec == "" {
		return fmt.Errorf("empty schedule for job %q", name)
	}
	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}

	log := s.log.WithField("job", name)
	id, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		log.Info("Job started")
		if err := job(s.ctx); err != nil {
			log.WithError(err).Error("Job failed")
			return
		}
		log.WithField("duration", time.Since(start).String()).Info("Job finished")
	})
	if err != nil {
		return fmt.Errorf("adding cron entry for %q: %w", name, err)
	}

	s.entries[name] = id
	log.WithFields(logrus.Fields{"cron": spec, "timezone": s.location.String()}).Info("Job scheduled")
	return nil
}

// Next returns the next activation of name, or the zero time if unknown.
func (s *Scheduler) Next(name string) time.Time {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// Start begins the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
