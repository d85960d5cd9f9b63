package daemon

import (
	"time"

	"github.com/go-co-op/gocron"
)

const reindexTag = "reindex"

// Scheduler triggers periodic reindex runs from a cron expression.
type Scheduler struct {
	scheduler *gocron.Scheduler
	expr      string
}

// NewScheduler creates a scheduler evaluating expr in UTC.
func NewScheduler(expr string) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	// A slow run delays the next tick instead of overlapping it.
	s.SingletonModeAll()

	return &Scheduler{
		scheduler: s,
		expr:      expr,
	}
}

// Expr returns the cron expression.
func (s *Scheduler) Expr() string {
	return s.expr
}

// Schedule registers job as the reindex job.
func (s *Scheduler) Schedule(job func()) error {
	_, err := s.scheduler.Cron(s.expr).Tag(reindexTag).Do(job)
	return err
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// NextRun returns when the reindex job fires next.
func (s *Scheduler) NextRun() (time.Time, bool) {
	jobs, err := s.scheduler.FindJobsByTag(reindexTag)
	if err != nil || len(jobs) == 0 {
		return time.Time{}, false
	}
	next := jobs[0].NextRun()
	return next, !next.IsZero()
}
