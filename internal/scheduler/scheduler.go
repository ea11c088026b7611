// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/user/claudebridge/internal/observability"
)

// DefaultSchedule prunes the registry every ten minutes.
const DefaultSchedule = "@every 10m"

// Pruner is implemented by *state.Registry.
type Pruner interface {
	Prune(ctx context.Context) int
}

// Scheduler periodically drops expired entries from the session registry so
// the backing file does not grow with conversations nobody resumes.
type Scheduler struct {
	pruner   Pruner
	schedule string
	cron     *cron.Cron
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field, plus descriptors like
// "@every 10m".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates a Scheduler running pruner on schedule. An empty schedule uses
// DefaultSchedule.
func New(pruner Pruner, schedule string) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Scheduler{
		pruner:   pruner,
		schedule: schedule,
		cron:     cron.New(cron.WithParser(cronParser)),
	}
}

// Start registers the prune job and starts the cron ticker. An invalid
// schedule is returned as an error and nothing is started.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.schedule, s.prune)
	if err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	slog.Info("session pruning scheduled", "schedule", s.schedule)
	return nil
}

func (s *Scheduler) prune() {
	n := s.pruner.Prune(context.Background())
	observability.RecordPruned(n)
	if n > 0 {
		slog.Info("pruned expired sessions", "count", n)
	}
}

// Stop stops the cron ticker and waits for a running prune to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
